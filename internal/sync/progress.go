package sync

import (
	"log/slog"
	"sync"

	"github.com/crestline/fieldsync/internal/record"
)

// Progress is a live snapshot of a sync pass within one collection,
// published after every processed item.
type Progress struct {
	Collection record.Collection `json:"collection"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	CurrentID  string            `json:"current_id"`
}

// Notifier fans sync progress out to any number of observers.
//
// Publish invokes every current subscriber synchronously, in subscription
// order. A panicking observer is recovered and logged; it stops neither the
// sync pass nor later observers.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
	logger *slog.Logger
}

type subscriber struct {
	id int
	fn func(Progress)
}

// NewNotifier creates a Notifier. A nil logger falls back to slog.Default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// Subscribe registers an observer and returns its unsubscribe function.
// Unsubscribing twice is harmless.
func (n *Notifier) Subscribe(fn func(Progress)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs = append(n.subs, subscriber{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers p to every subscriber in subscription order.
func (n *Notifier) Publish(p Progress) {
	n.mu.Lock()
	subs := make([]subscriber, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		n.deliver(s, p)
	}
}

func (n *Notifier) deliver(s subscriber, p Progress) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("progress observer panicked", "panic", r)
		}
	}()
	s.fn(p)
}
