package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crestline/fieldsync/internal/record"
)

var statusActivity int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts, storage usage, and recent sync activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()

		status, err := a.captures.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Queue: %s\n\n", cfg.Store.Path)
		fmt.Printf("%-14s %8s %12s\n", "COLLECTION", "PENDING", "QUARANTINED")
		for _, c := range record.Collections() {
			fmt.Printf("%-14s %8d %12d\n", c, status.Pending[c], status.Quarantined[c])
		}

		fmt.Printf("\nStorage: %s used", formatBytes(status.UsedBytes))
		if status.AvailableBytes >= 0 {
			fmt.Printf(", %s available", formatBytes(status.AvailableBytes))
		}
		fmt.Println()

		if statusActivity > 0 {
			entries, err := a.captures.RecentActivity(ctx, statusActivity)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				fmt.Println("\nRecent activity:")
				for _, e := range entries {
					line := fmt.Sprintf("  %s  %-12s %-12s %s",
						e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						e.Action, e.Collection, e.ItemID)
					if e.Error != "" {
						line += "  (" + e.Error + ")"
					}
					fmt.Println(line)
				}
			}
		}
		return nil
	},
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	statusCmd.Flags().IntVarP(&statusActivity, "activity", "a", 0,
		"also show the N most recent sync log entries")
	rootCmd.AddCommand(statusCmd)
}
