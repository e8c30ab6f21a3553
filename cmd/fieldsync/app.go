package main

import (
	"fmt"
	"log/slog"

	"github.com/crestline/fieldsync/internal/queue"
	"github.com/crestline/fieldsync/internal/remote"
	"github.com/crestline/fieldsync/internal/store"
	"github.com/crestline/fieldsync/internal/sync"
)

// app bundles the wired components behind every subcommand.
type app struct {
	store    *store.Store
	captures *queue.Service
	syncer   *sync.Syncer
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close queue store", "error", err)
	}
}

// openApp opens the local store and wires the capture service and sync
// engine from the loaded configuration.
func openApp() (*app, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue at %s: %w", cfg.Store.Path, err)
	}

	captures := queue.NewService(st, queue.Options{
		MaxRetries: cfg.Sync.MaxRetries,
		QuotaBytes: cfg.Store.QuotaBytes,
	})

	backend := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.Remote.BaseURL,
		APIKey:  cfg.Remote.APIKey,
		Timeout: cfg.Remote.Timeout,
	})

	syncer := sync.New(sync.Config{
		Store:         st,
		Submitters:    sync.NewSubmitters(backend, st),
		MaxRetries:    cfg.Sync.MaxRetries,
		SubmitTimeout: cfg.Sync.SubmitTimeout,
	})

	return &app{store: st, captures: captures, syncer: syncer}, nil
}
