package record

import (
	"encoding/json"
	"fmt"
)

// Geo is a client-reported capture location.
type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Lead is a contact captured at the door or from a referral.
type Lead struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	Source    string `json:"source,omitempty"`
	Location  *Geo   `json:"location,omitempty"`
}

// Validate checks the lead payload before submission.
func (l *Lead) Validate() error {
	if l.FirstName == "" {
		return fmt.Errorf("first_name is required")
	}
	if l.Phone == "" && l.Email == "" && l.Address == "" {
		return fmt.Errorf("at least one of phone, email, or address is required")
	}
	return nil
}

// Disposition records the outcome of a property visit.
type Disposition struct {
	PropertyID string `json:"property_id"`
	Outcome    string `json:"outcome"`
	Notes      string `json:"notes,omitempty"`
	Location   *Geo   `json:"location,omitempty"`
}

func (d *Disposition) Validate() error {
	if d.PropertyID == "" {
		return fmt.Errorf("property_id is required")
	}
	if d.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	return nil
}

// DoorKnock records a single door-knock attempt by a canvasser.
type DoorKnock struct {
	PropertyID string `json:"property_id"`
	Outcome    string `json:"outcome"`
	UserID     string `json:"user_id"`
	Location   *Geo   `json:"location,omitempty"`
}

func (k *DoorKnock) Validate() error {
	if k.PropertyID == "" {
		return fmt.Errorf("property_id is required")
	}
	if k.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if k.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// Photo describes a captured roof/property photo. The image bytes (and
// optional thumbnail) live in the store's blob area under the item id,
// not in this payload.
type Photo struct {
	PropertyID string `json:"property_id"`
	Category   string `json:"category,omitempty"` // e.g. roof, gutter, interior

	// DamageAnalysis carries a pre-computed AI damage assessment when one
	// was produced on-device before the capture went offline.
	DamageAnalysis json.RawMessage `json:"damage_analysis,omitempty"`

	HasThumbnail bool `json:"has_thumbnail,omitempty"`
}

func (p *Photo) Validate() error {
	if p.PropertyID == "" {
		return fmt.Errorf("property_id is required")
	}
	return nil
}

// Transcription states for a voice note.
const (
	TranscriptionPending = "pending"
	TranscriptionDone    = "done"
)

// VoiceNote describes a captured audio note. The audio bytes live in the
// store's blob area under the item id.
type VoiceNote struct {
	PropertyID  string  `json:"property_id"`
	DurationSec float64 `json:"duration_sec"`

	// Transcription is filled in during sync when the transcription
	// function is reachable; a failed transcription leaves it empty with
	// status pending rather than failing the submission.
	Transcription       string `json:"transcription,omitempty"`
	TranscriptionStatus string `json:"transcription_status,omitempty"`
}

func (v *VoiceNote) Validate() error {
	if v.PropertyID == "" {
		return fmt.Errorf("property_id is required")
	}
	if v.DurationSec <= 0 {
		return fmt.Errorf("duration_sec must be positive (got %g)", v.DurationSec)
	}
	return nil
}

// Blob names used by photo and voice-note items in the store's blob area.
const (
	BlobImage     = "image"
	BlobThumbnail = "thumbnail"
	BlobAudio     = "audio"
)

// NewLead wraps a lead payload in a pending envelope.
func NewLead(l *Lead) (*Item, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lead: %w", err)
	}
	return newItem(Leads, "", l)
}

// NewDisposition wraps a disposition payload in a pending envelope, grouped
// by property.
func NewDisposition(d *Disposition) (*Item, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid disposition: %w", err)
	}
	return newItem(Dispositions, d.PropertyID, d)
}

// NewDoorKnock wraps a door-knock payload in a pending envelope, grouped by
// property.
func NewDoorKnock(k *DoorKnock) (*Item, error) {
	if err := k.Validate(); err != nil {
		return nil, fmt.Errorf("invalid door knock: %w", err)
	}
	return newItem(DoorKnocks, k.PropertyID, k)
}

// NewPhoto wraps a photo payload in a pending envelope, grouped by property.
// Image bytes are passed to the store separately as blobs.
func NewPhoto(p *Photo) (*Item, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid photo: %w", err)
	}
	return newItem(Photos, p.PropertyID, p)
}

// NewVoiceNote wraps a voice-note payload in a pending envelope, grouped by
// property. Audio bytes are passed to the store separately as a blob.
func NewVoiceNote(v *VoiceNote) (*Item, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid voice note: %w", err)
	}
	if v.TranscriptionStatus == "" {
		v.TranscriptionStatus = TranscriptionPending
	}
	return newItem(VoiceNotes, v.PropertyID, v)
}

// DecodePayload unmarshals the item payload into the typed struct matching
// its collection and returns it. The scheduler uses this for pre-submission
// validation; a malformed payload is a submission failure.
func DecodePayload(it *Item) (interface{ Validate() error }, error) {
	var payload interface{ Validate() error }
	switch it.Collection {
	case Leads:
		payload = &Lead{}
	case Dispositions:
		payload = &Disposition{}
	case DoorKnocks:
		payload = &DoorKnock{}
	case Photos:
		payload = &Photo{}
	case VoiceNotes:
		payload = &VoiceNote{}
	default:
		return nil, fmt.Errorf("unknown collection %q", it.Collection)
	}
	if err := json.Unmarshal(it.Payload, payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", it.Collection, err)
	}
	return payload, nil
}
