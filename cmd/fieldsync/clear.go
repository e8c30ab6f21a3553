package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearAll bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clean up the local queue",
	Long: `Remove residual synced rows from the local queue.

With --all, wipe the entire queue including pending captures, blobs, and
the sync log. This destroys unsynced data and asks for confirmation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		if !clearAll {
			n, err := a.syncer.ClearSynced(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d synced rows\n", n)
			return nil
		}

		status, err := a.captures.Status(ctx)
		if err != nil {
			return err
		}
		if pending := status.TotalPending(); pending > 0 {
			fmt.Printf("The queue holds %d unsynced captures that will be lost.\n", pending)
			fmt.Print("Type 'yes' to continue: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(answer) != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := a.syncer.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("Queue cleared.")
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearAll, "all", false,
		"wipe the entire queue including unsynced captures")
	rootCmd.AddCommand(clearCmd)
}
