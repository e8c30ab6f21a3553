// Command fieldsync manages the offline capture queue for field crews.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestline/fieldsync/internal/config"
	"github.com/crestline/fieldsync/internal/logging"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline capture queue and sync engine for field crews",
	Long: `fieldsync keeps door-to-door captures (leads, dispositions, door knocks,
photos, voice notes) in a durable local queue and syncs them to the hosted
backend whenever connectivity allows.

Captures always land locally first; nothing is lost when the device is
offline. Synced records are removed from the queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.New(cfg.Log)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"config file (default $HOME/.fieldsync/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
