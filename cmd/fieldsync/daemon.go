package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crestline/fieldsync/internal/daemon"
	"github.com/crestline/fieldsync/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run fieldsync as a long-lived daemon: watch the spool directory for
dropped capture files, queue them locally, and sync on a fixed cadence.

While the backend is unreachable the daemon backs off exponentially and
keeps queuing captures; nothing is lost offline. With the dashboard
enabled, sync progress is broadcast over a local WebSocket feed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		daemonCfg := daemon.Config{
			SpoolDir:   cfg.Daemon.SpoolDir,
			Interval:   cfg.Daemon.Interval,
			MaxBackoff: cfg.Daemon.MaxBackoff,
		}

		if cfg.Dashboard.Enabled {
			server := dashboard.NewServer(cfg.Dashboard.Addr, slog.Default())
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()

			feed := dashboard.NewFeed(server, a.captures, slog.Default())
			feed.Attach(a.syncer)
			defer feed.Detach()
			feed.PublishStatus(ctx)
			daemonCfg.OnPassComplete = feed.PublishPassResult
		}

		d, err := daemon.New(a.captures, a.syncer, daemonCfg)
		if err != nil {
			return err
		}
		return d.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
