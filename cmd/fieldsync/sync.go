package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass against the backend",
	Long: `Run a single sync pass: drain pending captures collection by collection
(leads first, voice notes last) and report the outcome.

Items that fail submission stay queued and are retried on later passes,
up to the retry bound. Items past the bound are quarantined.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.syncer.SyncAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync pass failed: %w", err)
		}

		if res.Total == 0 {
			fmt.Println("Nothing to sync.")
			return nil
		}
		fmt.Printf("Synced %d of %d items (%d failed)\n", res.Success, res.Total, res.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
