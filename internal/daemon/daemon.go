// Package daemon runs fieldsync in the background: it watches a spool
// directory for dropped capture files, queues them locally, and drives
// periodic sync passes against the remote backend.
//
// The daemon:
//  1. Ingests any capture files already in the spool on startup
//  2. Watches the spool for new *.json capture files
//  3. Runs a sync pass on a fixed cadence, backing off while offline
//  4. Shuts down cleanly on context cancellation
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/crestline/fieldsync/internal/queue"
	"github.com/crestline/fieldsync/internal/sync"
)

// Config holds daemon configuration.
type Config struct {
	// SpoolDir is the directory watched for capture files. Empty disables
	// spool ingestion; the daemon then only runs periodic sync passes.
	SpoolDir string

	// Interval is the periodic sync cadence.
	Interval time.Duration

	// MaxBackoff caps the delay between passes while the backend is
	// unreachable.
	MaxBackoff time.Duration

	// DebounceInterval batches rapid file events before ingestion, so a
	// capture still being written is not read half-finished.
	DebounceInterval time.Duration

	// OnPassComplete, when set, is invoked after every completed sync
	// pass with its aggregate result. The dashboard feed hangs off this.
	OnPassComplete func(ctx context.Context, res sync.Result)

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         60 * time.Second,
		MaxBackoff:       10 * time.Minute,
		DebounceInterval: 200 * time.Millisecond,
	}
}

// Daemon orchestrates spool ingestion and periodic syncing.
type Daemon struct {
	captures *queue.Service
	syncer   *sync.Syncer
	cfg      Config
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	pendingMu gosync.Mutex
	pending   map[string]time.Time

	wg gosync.WaitGroup
}

// New creates a daemon. Captures and syncer are required.
func New(captures *queue.Service, syncer *sync.Syncer, cfg Config) (*Daemon, error) {
	if captures == nil {
		return nil, fmt.Errorf("capture service cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Daemon{
		captures: captures,
		syncer:   syncer,
		cfg:      cfg,
		logger:   cfg.Logger,
		pending:  make(map[string]time.Time),
	}, nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon starting", "spool", d.cfg.SpoolDir, "interval", d.cfg.Interval)

	if d.cfg.SpoolDir != "" {
		if err := os.MkdirAll(d.cfg.SpoolDir, 0o755); err != nil {
			return fmt.Errorf("failed to create spool directory: %w", err)
		}

		// Pick up anything dropped while the daemon was down.
		d.ingestExisting(ctx)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create spool watcher: %w", err)
		}
		if err := watcher.Add(d.cfg.SpoolDir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch spool directory %s: %w", d.cfg.SpoolDir, err)
		}
		d.watcher = watcher

		d.wg.Add(2)
		go d.watchSpool(ctx)
		go d.drainPending(ctx)
	}

	d.wg.Add(1)
	go d.syncLoop(ctx)

	<-ctx.Done()
	d.logger.Info("daemon stopping")

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.logger.Warn("failed to close spool watcher", "error", err)
		}
	}
	d.wg.Wait()

	d.logger.Info("daemon stopped")
	return nil
}

// ingestExisting queues every capture file already present in the spool.
func (d *Daemon) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(d.cfg.SpoolDir)
	if err != nil {
		d.logger.Error("failed to read spool directory", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		d.ingestFile(ctx, filepath.Join(d.cfg.SpoolDir, e.Name()))
	}
}

// watchSpool converts fsnotify events into pending ingestions.
func (d *Daemon) watchSpool(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.pendingMu.Lock()
			d.pending[event.Name] = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("spool watcher error", "error", err)
		}
	}
}

// drainPending ingests files that have been quiet for a debounce interval.
func (d *Daemon) drainPending(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ingestQuiet(ctx)
		}
	}
}

func (d *Daemon) ingestQuiet(ctx context.Context) {
	d.pendingMu.Lock()
	var ready []string
	now := time.Now()
	for path, seen := range d.pending {
		if now.Sub(seen) >= d.cfg.DebounceInterval {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	d.pendingMu.Unlock()

	for _, path := range ready {
		d.ingestFile(ctx, path)
	}
}

// syncLoop runs periodic sync passes with exponential backoff while the
// backend is unreachable.
func (d *Daemon) syncLoop(ctx context.Context) {
	defer d.wg.Done()

	delay := d.cfg.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			res, err := d.syncer.SyncAll(ctx)
			if err == nil && d.cfg.OnPassComplete != nil {
				d.cfg.OnPassComplete(ctx, res)
			}
			switch {
			case err != nil:
				d.logger.Warn("sync pass aborted", "error", err)
				delay = d.nextBackoff(delay)
			case res.Total > 0 && res.Success == 0:
				// Nothing got through; assume we are offline and slow
				// down until a pass succeeds.
				delay = d.nextBackoff(delay)
				d.logger.Info("backend unreachable, backing off", "next_pass_in", delay)
			default:
				delay = d.cfg.Interval
			}
			timer.Reset(delay)
		}
	}
}

func (d *Daemon) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > d.cfg.MaxBackoff {
		next = d.cfg.MaxBackoff
	}
	return next
}
