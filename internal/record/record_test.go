package record

import (
	"encoding/json"
	"testing"
)

func TestNewLeadForcesPendingEnvelope(t *testing.T) {
	item, err := NewLead(&Lead{FirstName: "Jane", Phone: "555-0100"})
	if err != nil {
		t.Fatalf("NewLead failed: %v", err)
	}

	if item.Status != StatusPending {
		t.Errorf("expected status pending, got %q", item.Status)
	}
	if item.RetryCount != 0 {
		t.Errorf("expected retry count 0, got %d", item.RetryCount)
	}
	if item.ID == "" {
		t.Error("expected generated id")
	}
	if item.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if item.Collection != Leads {
		t.Errorf("expected collection leads, got %q", item.Collection)
	}
	if item.GroupKey != "" {
		t.Errorf("leads have no group key, got %q", item.GroupKey)
	}

	if err := item.Validate(); err != nil {
		t.Errorf("new item should validate: %v", err)
	}
}

func TestNewLeadRejectsEmptyContact(t *testing.T) {
	if _, err := NewLead(&Lead{FirstName: "Jane"}); err == nil {
		t.Error("expected error for lead with no contact fields")
	}
	if _, err := NewLead(&Lead{Phone: "555-0100"}); err == nil {
		t.Error("expected error for lead without first name")
	}
}

func TestGroupKeyFollowsPropertyID(t *testing.T) {
	tests := []struct {
		name string
		make func() (*Item, error)
		want string
	}{
		{"disposition", func() (*Item, error) {
			return NewDisposition(&Disposition{PropertyID: "prop-1", Outcome: "interested"})
		}, "prop-1"},
		{"door knock", func() (*Item, error) {
			return NewDoorKnock(&DoorKnock{PropertyID: "prop-2", Outcome: "no_answer", UserID: "u-1"})
		}, "prop-2"},
		{"photo", func() (*Item, error) {
			return NewPhoto(&Photo{PropertyID: "prop-3", Category: "roof"})
		}, "prop-3"},
		{"voice note", func() (*Item, error) {
			return NewVoiceNote(&VoiceNote{PropertyID: "prop-4", DurationSec: 12.5})
		}, "prop-4"},
	}

	for _, tt := range tests {
		item, err := tt.make()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if item.GroupKey != tt.want {
			t.Errorf("%s: expected group key %q, got %q", tt.name, tt.want, item.GroupKey)
		}
	}
}

func TestCollectionsPriorityOrder(t *testing.T) {
	want := []Collection{Leads, Dispositions, DoorKnocks, Photos, VoiceNotes}
	got := Collections()

	if len(got) != len(want) {
		t.Fatalf("expected %d collections, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestQuarantinedDerivedFromRetryCount(t *testing.T) {
	item := &Item{Status: StatusFailed, RetryCount: MaxRetries - 1}
	if item.Quarantined() {
		t.Error("item under the retry bound must not be quarantined")
	}

	item.RetryCount = MaxRetries
	if !item.Quarantined() {
		t.Error("failed item at the retry bound must be quarantined")
	}

	item.Status = StatusPending
	if item.Quarantined() {
		t.Error("pending item must not be quarantined regardless of retry count")
	}
}

func TestVoiceNoteDefaultsTranscriptionPending(t *testing.T) {
	item, err := NewVoiceNote(&VoiceNote{PropertyID: "prop-1", DurationSec: 3})
	if err != nil {
		t.Fatalf("NewVoiceNote failed: %v", err)
	}

	var note VoiceNote
	if err := json.Unmarshal(item.Payload, &note); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if note.TranscriptionStatus != TranscriptionPending {
		t.Errorf("expected transcription status pending, got %q", note.TranscriptionStatus)
	}
}

func TestDecodePayload(t *testing.T) {
	item, err := NewDoorKnock(&DoorKnock{PropertyID: "prop-1", Outcome: "callback", UserID: "u-9"})
	if err != nil {
		t.Fatalf("NewDoorKnock failed: %v", err)
	}

	payload, err := DecodePayload(item)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	knock, ok := payload.(*DoorKnock)
	if !ok {
		t.Fatalf("expected *DoorKnock, got %T", payload)
	}
	if knock.Outcome != "callback" {
		t.Errorf("expected outcome callback, got %q", knock.Outcome)
	}

	item.Payload = []byte(`{not json`)
	if _, err := DecodePayload(item); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestItemValidate(t *testing.T) {
	item, err := NewLead(&Lead{FirstName: "Jane", Email: "jane@example.com"})
	if err != nil {
		t.Fatalf("NewLead failed: %v", err)
	}

	bad := *item
	bad.Collection = "mystery"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown collection")
	}

	bad = *item
	bad.Status = "synced"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown status")
	}

	bad = *item
	bad.RetryCount = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative retry count")
	}
}
