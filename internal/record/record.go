// Package record defines the queued item types for the offline capture queue.
//
// Every capture made in the field (a lead, a disposition, a door knock, a
// photo, a voice note) is stored locally as an Item: a common envelope
// (id, sync status, retry counter, creation time) wrapping a type-specific
// JSON payload. Binary payloads (photo and audio bytes) are held out of line
// by the store and are not part of the envelope.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the sync state of a queued item.
//
// Items are created pending, move to syncing when a submission attempt
// starts, and either disappear (successful submission deletes the item) or
// move to failed. A failed item whose retry counter has reached MaxRetries
// is quarantined: it keeps the failed status but is never selected again.
type Status string

const (
	// StatusPending marks an item waiting for its first or next submission.
	StatusPending Status = "pending"

	// StatusSyncing marks an item with a submission attempt in flight.
	StatusSyncing Status = "syncing"

	// StatusFailed marks an item whose last submission attempt failed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusFailed:
		return true
	}
	return false
}

// Collection identifies one of the five queued record collections.
type Collection string

const (
	Leads        Collection = "leads"
	Dispositions Collection = "dispositions"
	DoorKnocks   Collection = "door_knocks"
	Photos       Collection = "photos"
	VoiceNotes   Collection = "voice_notes"
)

// Collections returns all collections in sync priority order.
//
// Small, high-value records (a contact capture) come first so they are not
// starved behind large binary uploads on a constrained connection.
func Collections() []Collection {
	return []Collection{Leads, Dispositions, DoorKnocks, Photos, VoiceNotes}
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	switch c {
	case Leads, Dispositions, DoorKnocks, Photos, VoiceNotes:
		return true
	}
	return false
}

// MaxRetries is the per-item submission attempt bound. An item whose
// RetryCount reaches this value is quarantined and excluded from all
// future sync passes.
const MaxRetries = 5

// Item is the envelope shared by every queued record.
type Item struct {
	// ID is generated locally at creation time and never changes.
	ID string `json:"id"`

	// Collection names the record type this item belongs to.
	Collection Collection `json:"collection"`

	// Status is the current sync state. Only the sync scheduler moves it
	// past pending.
	Status Status `json:"status"`

	// RetryCount is incremented on every failed submission attempt and
	// never decremented. It is the sole input to the quarantine decision.
	RetryCount int `json:"retry_count"`

	// GroupKey clusters records belonging to the same property/job.
	// Empty for leads, which are not tied to a property yet.
	GroupKey string `json:"group_key,omitempty"`

	// LastError is the message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt is the client-clock capture time, immutable.
	CreatedAt time.Time `json:"created_at"`

	// Payload is the type-specific business payload, stored as JSON.
	Payload json.RawMessage `json:"payload"`
}

// Quarantined reports whether the item has exhausted its retry budget.
// Quarantine is a derived condition, not a distinct stored status.
func (it *Item) Quarantined() bool {
	return it.Status == StatusFailed && it.RetryCount >= MaxRetries
}

// Validate checks the envelope fields. Payload contents are validated by
// the typed payload's own Validate method.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !it.Collection.Valid() {
		return fmt.Errorf("unknown collection %q", it.Collection)
	}
	if !it.Status.Valid() {
		return fmt.Errorf("unknown status %q", it.Status)
	}
	if it.RetryCount < 0 {
		return fmt.Errorf("retry_count must not be negative (got %d)", it.RetryCount)
	}
	if it.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if len(it.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

// newItem wraps a payload in a fresh envelope. Status and retry counter are
// forced regardless of what the caller supplied in the payload, so callers
// cannot fabricate already-synced records.
func newItem(c Collection, groupKey string, payload any) (*Item, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", c, err)
	}
	return &Item{
		ID:         uuid.NewString(),
		Collection: c,
		Status:     StatusPending,
		RetryCount: 0,
		GroupKey:   groupKey,
		CreatedAt:  time.Now().UTC(),
		Payload:    raw,
	}, nil
}
