package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/crestline/fieldsync/internal/queue"
	"github.com/crestline/fieldsync/internal/sync"
)

// Feed bridges the sync engine's progress notifier and the capture service
// to dashboard broadcasts.
type Feed struct {
	server   *Server
	captures *queue.Service
	logger   *slog.Logger

	syncer      *sync.Syncer
	unsubscribe func()
}

// statusFrame is the queue status snapshot broadcast to clients, extended
// with whether a sync pass is currently running.
type statusFrame struct {
	queue.Status
	SyncInFlight bool `json:"sync_in_flight"`
}

// NewFeed wires a feed to server. Call Attach to start forwarding.
func NewFeed(server *Server, captures *queue.Service, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{server: server, captures: captures, logger: logger}
}

// Attach subscribes the feed to syncer progress events.
func (f *Feed) Attach(syncer *sync.Syncer) {
	f.syncer = syncer
	f.unsubscribe = syncer.Subscribe(f.onProgress)
}

// Detach stops forwarding progress events.
func (f *Feed) Detach() {
	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
}

func (f *Feed) onProgress(p sync.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		f.logger.Error("failed to marshal progress", "error", err)
		return
	}
	f.server.Broadcast(Message{
		Type:      MessageTypeProgress,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// PublishPassResult broadcasts the aggregate result of a finished pass and
// a fresh queue status snapshot.
func (f *Feed) PublishPassResult(ctx context.Context, res sync.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		f.logger.Error("failed to marshal pass result", "error", err)
		return
	}
	f.server.Broadcast(Message{
		Type:      MessageTypePassComplete,
		Timestamp: time.Now(),
		Data:      data,
	})

	f.PublishStatus(ctx)
}

// PublishStatus broadcasts the current queue status.
func (f *Feed) PublishStatus(ctx context.Context) {
	status, err := f.captures.Status(ctx)
	if err != nil {
		f.logger.Warn("failed to read queue status", "error", err)
		return
	}

	frame := statusFrame{Status: status}
	if f.syncer != nil {
		frame.SyncInFlight = f.syncer.InFlight()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		f.logger.Error("failed to marshal status", "error", err)
		return
	}
	f.server.Broadcast(Message{
		Type:      MessageTypeStatus,
		Timestamp: time.Now(),
		Data:      data,
	})
}
