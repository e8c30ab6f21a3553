// Package sync drives the reconciliation of locally queued captures against
// the remote backend.
//
// One sync pass walks the five collections in fixed priority order (leads
// first, voice notes last) and drains each collection's worklist serially,
// preserving backend insertion order and bounding resource use on a
// constrained connection. Items are retried across passes up to the retry
// bound; items past the bound are quarantined and never selected again.
//
// At most one pass runs at a time. A SyncAll call made while a pass is in
// flight returns a zero result immediately instead of queuing or blocking.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crestline/fieldsync/internal/record"
	"github.com/crestline/fieldsync/internal/store"
	"github.com/crestline/fieldsync/pkg/metrics"
)

// Result aggregates the outcome of one sync pass.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// ErrPassInFlight is returned by maintenance operations attempted while a
// sync pass is running. SyncAll itself never returns it; an overlapping
// call just reports a zero Result.
var ErrPassInFlight = errors.New("sync pass in flight")

// Config configures a Syncer.
type Config struct {
	Store      *store.Store
	Submitters map[record.Collection]Submitter
	Logger     *slog.Logger

	// MaxRetries bounds submission attempts per item. Defaults to
	// record.MaxRetries.
	MaxRetries int

	// SubmitTimeout bounds each individual submission so a stuck remote
	// call cannot block the pass forever. A timeout counts as a network
	// failure against the item's retry budget. Defaults to 30s.
	SubmitTimeout time.Duration
}

// Syncer executes sync passes. It owns the single-pass-at-a-time invariant
// and the progress notifier.
type Syncer struct {
	store      *store.Store
	submitters map[record.Collection]Submitter
	notifier   *Notifier
	logger     *slog.Logger

	maxRetries int
	timeout    time.Duration
	inFlight   atomic.Bool
}

// New creates a Syncer from cfg. Store and Submitters are required.
func New(cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = record.MaxRetries
	}
	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{
		store:      cfg.Store,
		submitters: cfg.Submitters,
		notifier:   NewNotifier(logger),
		logger:     logger,
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

// Subscribe registers a progress observer for all future passes and returns
// its unsubscribe function.
func (s *Syncer) Subscribe(fn func(Progress)) func() {
	return s.notifier.Subscribe(fn)
}

// InFlight reports whether a sync pass is currently running.
func (s *Syncer) InFlight() bool {
	return s.inFlight.Load()
}

// SyncAll executes one complete sync pass and returns aggregate counts.
//
// Safe to call with nothing pending. If a pass is already in flight the
// call returns a zero Result immediately and mutates nothing. The pass
// stops early only when ctx is cancelled; per-item failures are recorded
// on the item and never abort the pass.
func (s *Syncer) SyncAll(ctx context.Context) (Result, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Info("sync pass already in flight, skipping")
		metrics.PassesRejected.Inc()
		return Result{}, nil
	}
	defer s.inFlight.Store(false)

	// No pass is running besides this one, so any row still at syncing is
	// a leftover from a store error on a previous attempt (a failed
	// Delete or MarkFailed). Sweep them back to pending so they are not
	// stranded until the next process restart.
	if n, err := s.store.RecoverStale(ctx); err != nil {
		s.logger.Error("failed to sweep stale items", "error", err)
	} else if n > 0 {
		s.logger.Warn("requeued stale syncing items", "count", n)
	}

	start := time.Now()
	var res Result

	for _, c := range record.Collections() {
		// The worklist is captured once per collection; items enqueued
		// mid-pass wait for the next pass.
		worklist, err := s.store.FetchWorklist(ctx, c, s.maxRetries)
		if err != nil {
			s.logger.Error("failed to fetch worklist", "collection", c, "error", err)
			continue
		}
		if len(worklist) == 0 {
			continue
		}

		s.logger.Info("syncing collection", "collection", c, "count", len(worklist))
		prog := Progress{Collection: c, Total: len(worklist)}

		for _, it := range worklist {
			select {
			case <-ctx.Done():
				s.logger.Warn("sync pass cancelled", "collection", c)
				return res, ctx.Err()
			default:
			}

			res.Total++
			prog.CurrentID = it.ID

			// Retry-bound guard. The worklist query already excludes
			// quarantined items; this catches counters that crossed the
			// bound between fetch and processing.
			if it.RetryCount >= s.maxRetries {
				res.Failed++
				prog.Failed++
				s.notifier.Publish(prog)
				continue
			}

			if err := s.syncOne(ctx, it); err != nil {
				res.Failed++
				prog.Failed++
				metrics.ItemsProcessed.WithLabelValues("failed", string(c)).Inc()
			} else {
				res.Success++
				prog.Completed++
				metrics.ItemsProcessed.WithLabelValues("synced", string(c)).Inc()
			}
			s.notifier.Publish(prog)
		}
	}

	metrics.PassDuration.Observe(time.Since(start).Seconds())
	metrics.PassSize.Observe(float64(res.Total))
	s.updateBacklogGauges(ctx)

	if res.Total > 0 {
		s.logger.Info("sync pass complete",
			"success", res.Success,
			"failed", res.Failed,
			"total", res.Total,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return res, nil
}

// syncOne drives a single item through one submission attempt.
func (s *Syncer) syncOne(ctx context.Context, it *record.Item) error {
	submitter, ok := s.submitters[it.Collection]
	if !ok {
		// Unknown collections cannot happen with the fixed table, but a
		// half-wired Syncer must not silently drop captures.
		return s.fail(ctx, it, fmt.Errorf("no submitter for collection %q", it.Collection))
	}

	if err := s.store.MarkSyncing(ctx, it.ID); err != nil {
		s.logger.Error("failed to mark item syncing", "id", it.ID, "error", err)
		return err
	}
	s.logEvent(ctx, it, store.LogSyncStart, "")

	subCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := submitter.Submit(subCtx, it)
	cancel()

	if err != nil {
		return s.fail(ctx, it, err)
	}

	// Success destroys the local record; the durable copy now lives on
	// the backend.
	if err := s.store.Delete(ctx, it.Collection, it.ID); err != nil {
		// The remote write landed but the local copy stayed. The item
		// will be resubmitted next pass; submitters are idempotent, so
		// this is safe, just noisy.
		s.logger.Error("failed to delete synced item", "id", it.ID, "error", err)
		return err
	}
	s.logEvent(ctx, it, store.LogSyncSuccess, "")

	s.logger.Debug("item synced", "collection", it.Collection, "id", it.ID)
	return nil
}

func (s *Syncer) fail(ctx context.Context, it *record.Item, cause error) error {
	if err := s.store.MarkFailed(ctx, it.ID, cause.Error()); err != nil {
		s.logger.Error("failed to record item failure", "id", it.ID, "error", err)
	}
	s.logEvent(ctx, it, store.LogSyncFailed, cause.Error())

	s.logger.Warn("item submission failed",
		"collection", it.Collection,
		"id", it.ID,
		"retry_count", it.RetryCount+1,
		"error", cause,
	)
	return cause
}

// logEvent appends to the sync-event log. The log is audit-only, so a
// failed append is reported but never fails the item.
func (s *Syncer) logEvent(ctx context.Context, it *record.Item, action, errMsg string) {
	if err := s.store.AppendLog(ctx, it.Collection, it.ID, action, errMsg); err != nil {
		s.logger.Warn("failed to append sync log", "id", it.ID, "action", action, "error", err)
	}
}

func (s *Syncer) updateBacklogGauges(ctx context.Context) {
	pending, err := s.store.PendingCounts(ctx)
	if err == nil {
		for _, c := range record.Collections() {
			metrics.PendingBacklog.WithLabelValues(string(c)).Set(float64(pending[c]))
		}
	}
	quarantined, err := s.store.QuarantinedCounts(ctx, s.maxRetries)
	if err == nil {
		for _, c := range record.Collections() {
			metrics.QuarantineSize.WithLabelValues(string(c)).Set(float64(quarantined[c]))
		}
	}
}

// ClearSynced removes residual synced rows. Refused while a pass is in
// flight.
func (s *Syncer) ClearSynced(ctx context.Context) (int64, error) {
	if s.inFlight.Load() {
		return 0, ErrPassInFlight
	}
	return s.store.ClearSynced(ctx)
}

// ClearAll wipes the entire local queue, blobs, and sync log. Refused while
// a pass is in flight.
func (s *Syncer) ClearAll(ctx context.Context) error {
	if s.inFlight.Load() {
		return ErrPassInFlight
	}
	return s.store.ClearAll(ctx)
}
