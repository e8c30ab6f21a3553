// Package queue is the capture-side API of the offline queue.
//
// Every save lands durably in the local store with status pending before the
// call returns; nothing here talks to the network. The sync engine drains
// the queue separately.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crestline/fieldsync/internal/record"
	"github.com/crestline/fieldsync/internal/store"
)

// ErrQuotaExceeded is returned by saves once the local queue database has
// grown past the configured quota. Existing items still sync and drain.
var ErrQuotaExceeded = errors.New("local queue quota exceeded")

// Service accepts captures into the local queue and answers status queries.
type Service struct {
	store      *store.Store
	logger     *slog.Logger
	maxRetries int
	quota      int64
}

// Options configures a Service.
type Options struct {
	Logger *slog.Logger

	// MaxRetries must match the sync scheduler's bound; it drives the
	// quarantine counts reported by Status. Defaults to record.MaxRetries.
	MaxRetries int

	// QuotaBytes caps the queue database size. Zero disables the check.
	QuotaBytes int64
}

// NewService wraps st in a capture service.
func NewService(st *store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = record.MaxRetries
	}
	return &Service{
		store:      st,
		logger:     logger,
		maxRetries: maxRetries,
		quota:      opts.QuotaBytes,
	}
}

// SaveLead queues a lead capture and returns its queue id.
func (s *Service) SaveLead(ctx context.Context, lead *record.Lead) (string, error) {
	item, err := record.NewLead(lead)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, item, nil)
}

// SaveDisposition queues a property disposition and returns its queue id.
func (s *Service) SaveDisposition(ctx context.Context, d *record.Disposition) (string, error) {
	item, err := record.NewDisposition(d)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, item, nil)
}

// SaveDoorKnock queues a door-knock attempt and returns its queue id.
func (s *Service) SaveDoorKnock(ctx context.Context, k *record.DoorKnock) (string, error) {
	item, err := record.NewDoorKnock(k)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, item, nil)
}

// SavePhoto queues a photo capture. Image bytes are required; thumbnail is
// optional and, when present, flips the payload's HasThumbnail flag.
func (s *Service) SavePhoto(ctx context.Context, p *record.Photo, image, thumbnail []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("photo image bytes are required")
	}
	p.HasThumbnail = len(thumbnail) > 0

	item, err := record.NewPhoto(p)
	if err != nil {
		return "", err
	}

	blobs := map[string][]byte{record.BlobImage: image}
	if p.HasThumbnail {
		blobs[record.BlobThumbnail] = thumbnail
	}
	return s.enqueue(ctx, item, blobs)
}

// SaveVoiceNote queues a voice-note capture with its audio bytes.
func (s *Service) SaveVoiceNote(ctx context.Context, v *record.VoiceNote, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("voice note audio bytes are required")
	}

	item, err := record.NewVoiceNote(v)
	if err != nil {
		return "", err
	}
	return s.enqueue(ctx, item, map[string][]byte{record.BlobAudio: audio})
}

func (s *Service) enqueue(ctx context.Context, item *record.Item, blobs map[string][]byte) (string, error) {
	if err := s.checkQuota(); err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, item, blobs); err != nil {
		return "", fmt.Errorf("failed to queue %s: %w", item.Collection, err)
	}

	s.logger.Debug("capture queued", "collection", item.Collection, "id", item.ID)
	return item.ID, nil
}

func (s *Service) checkQuota() error {
	if s.quota <= 0 {
		return nil
	}
	used, err := s.store.Usage()
	if err != nil {
		// An unreadable size must not block field captures.
		s.logger.Warn("failed to read queue usage", "error", err)
		return nil
	}
	if used >= s.quota {
		return fmt.Errorf("%w: %d of %d bytes used", ErrQuotaExceeded, used, s.quota)
	}
	return nil
}

// Status summarizes the queue for display.
type Status struct {
	Pending     map[record.Collection]int `json:"pending"`
	Quarantined map[record.Collection]int `json:"quarantined"`

	// UsedBytes is the queue database size on disk. AvailableBytes is the
	// remaining quota, or -1 when no quota is configured.
	UsedBytes      int64 `json:"used_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// TotalPending sums pending items across collections.
func (st Status) TotalPending() int {
	total := 0
	for _, n := range st.Pending {
		total += n
	}
	return total
}

// Status reports pending and quarantined counts plus storage usage.
func (s *Service) Status(ctx context.Context) (Status, error) {
	pending, err := s.store.PendingCounts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count pending items: %w", err)
	}
	quarantined, err := s.store.QuarantinedCounts(ctx, s.maxRetries)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count quarantined items: %w", err)
	}
	used, err := s.store.Usage()
	if err != nil {
		return Status{}, fmt.Errorf("failed to read queue usage: %w", err)
	}

	available := int64(-1)
	if s.quota > 0 {
		available = s.quota - used
		if available < 0 {
			available = 0
		}
	}

	return Status{
		Pending:        pending,
		Quarantined:    quarantined,
		UsedBytes:      used,
		AvailableBytes: available,
	}, nil
}

// History returns the queued items for one property, oldest first, across
// the given collection.
func (s *Service) History(ctx context.Context, c record.Collection, groupKey string) ([]*record.Item, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return s.store.GetByGroupKey(ctx, c, groupKey)
}

// RecentActivity returns the newest sync-log entries, most recent first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]store.LogEntry, error) {
	return s.store.RecentLog(ctx, limit)
}

// ItemLog returns the full sync history of one item, oldest first.
func (s *Service) ItemLog(ctx context.Context, itemID string) ([]store.LogEntry, error) {
	return s.store.LogForItem(ctx, itemID)
}
