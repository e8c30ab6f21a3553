package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crestline/fieldsync/internal/record"
	"github.com/crestline/fieldsync/internal/remote"
)

// Submitter maps one local record to its remote write(s). Each submitter is
// all-or-nothing: any error means the whole attempt failed and will be
// retried, so submitters must tolerate re-running against the same item.
type Submitter interface {
	Submit(ctx context.Context, it *record.Item) error
}

// BlobSource supplies the binary payloads held out of line by the store.
type BlobSource interface {
	GetBlob(ctx context.Context, itemID, name string) ([]byte, error)
}

// NewSubmitters builds the fixed dispatch table from collection to
// submitter. The five record types are known at compile time; nothing is
// registered dynamically.
func NewSubmitters(backend remote.Backend, blobs BlobSource) map[record.Collection]Submitter {
	return map[record.Collection]Submitter{
		record.Leads:        &leadSubmitter{backend: backend},
		record.Dispositions: &dispositionSubmitter{backend: backend},
		record.DoorKnocks:   &doorKnockSubmitter{backend: backend},
		record.Photos:       &photoSubmitter{backend: backend, blobs: blobs},
		record.VoiceNotes:   &voiceNoteSubmitter{backend: backend, blobs: blobs},
	}
}

type leadSubmitter struct {
	backend remote.Backend
}

func (s *leadSubmitter) Submit(ctx context.Context, it *record.Item) error {
	var lead record.Lead
	if err := decodePayload(it, &lead); err != nil {
		return err
	}

	row := map[string]any{
		"client_id":   it.ID,
		"first_name":  lead.FirstName,
		"last_name":   lead.LastName,
		"phone":       lead.Phone,
		"email":       lead.Email,
		"address":     lead.Address,
		"source":      lead.Source,
		"captured_at": it.CreatedAt,
	}
	if lead.Location != nil {
		row["lat"] = lead.Location.Lat
		row["lng"] = lead.Location.Lng
	}

	return s.backend.Insert(ctx, "leads", row)
}

type dispositionSubmitter struct {
	backend remote.Backend
}

func (s *dispositionSubmitter) Submit(ctx context.Context, it *record.Item) error {
	var d record.Disposition
	if err := decodePayload(it, &d); err != nil {
		return err
	}

	body := map[string]any{
		"client_id":   it.ID,
		"property_id": d.PropertyID,
		"outcome":     d.Outcome,
		"notes":       d.Notes,
		"captured_at": it.CreatedAt,
	}
	if d.Location != nil {
		body["lat"] = d.Location.Lat
		body["lng"] = d.Location.Lng
	}

	// Dispositions run backend business rules (pipeline stage updates),
	// so they go through the remote function rather than a bare insert.
	_, err := s.backend.Invoke(ctx, "record-disposition", body)
	return err
}

type doorKnockSubmitter struct {
	backend remote.Backend
}

func (s *doorKnockSubmitter) Submit(ctx context.Context, it *record.Item) error {
	var k record.DoorKnock
	if err := decodePayload(it, &k); err != nil {
		return err
	}

	row := map[string]any{
		"client_id":   it.ID,
		"property_id": k.PropertyID,
		"outcome":     k.Outcome,
		"user_id":     k.UserID,
		"captured_at": it.CreatedAt,
	}
	if k.Location != nil {
		row["lat"] = k.Location.Lat
		row["lng"] = k.Location.Lng
	}

	return s.backend.Insert(ctx, "door_knocks", row)
}

type photoSubmitter struct {
	backend remote.Backend
	blobs   BlobSource
}

// PhotoObjectPath returns the storage path for a photo item. The path is
// derived from the grouping key and record id only, so retried attempts
// overwrite the same object instead of orphaning a new one.
func PhotoObjectPath(it *record.Item) string {
	return fmt.Sprintf("captures/properties/%s/photos/%s.jpg", it.GroupKey, it.ID)
}

// ThumbnailObjectPath returns the storage path for a photo's thumbnail.
func ThumbnailObjectPath(it *record.Item) string {
	return fmt.Sprintf("captures/properties/%s/photos/%s_thumb.jpg", it.GroupKey, it.ID)
}

func (s *photoSubmitter) Submit(ctx context.Context, it *record.Item) error {
	var p record.Photo
	if err := decodePayload(it, &p); err != nil {
		return err
	}

	image, err := s.blobs.GetBlob(ctx, it.ID, record.BlobImage)
	if err != nil {
		return remote.LocalErr("load photo blob", err)
	}

	ref, err := s.backend.Upload(ctx, PhotoObjectPath(it), image, "image/jpeg")
	if err != nil {
		return err
	}

	row := map[string]any{
		"client_id":   it.ID,
		"property_id": p.PropertyID,
		"category":    p.Category,
		"image_ref":   ref,
		"captured_at": it.CreatedAt,
	}

	if p.HasThumbnail {
		thumb, err := s.blobs.GetBlob(ctx, it.ID, record.BlobThumbnail)
		if err != nil {
			return remote.LocalErr("load thumbnail blob", err)
		}
		thumbRef, err := s.backend.Upload(ctx, ThumbnailObjectPath(it), thumb, "image/jpeg")
		if err != nil {
			return err
		}
		row["thumbnail_ref"] = thumbRef
	}

	if len(p.DamageAnalysis) > 0 {
		row["damage_analysis"] = p.DamageAnalysis
	}

	return s.backend.Insert(ctx, "property_photos", row)
}

type voiceNoteSubmitter struct {
	backend remote.Backend
	blobs   BlobSource
}

// VoiceObjectPath returns the storage path for a voice-note item.
func VoiceObjectPath(it *record.Item) string {
	return fmt.Sprintf("captures/properties/%s/voice/%s.m4a", it.GroupKey, it.ID)
}

func (s *voiceNoteSubmitter) Submit(ctx context.Context, it *record.Item) error {
	var v record.VoiceNote
	if err := decodePayload(it, &v); err != nil {
		return err
	}

	audio, err := s.blobs.GetBlob(ctx, it.ID, record.BlobAudio)
	if err != nil {
		return remote.LocalErr("load audio blob", err)
	}

	ref, err := s.backend.Upload(ctx, VoiceObjectPath(it), audio, "audio/mp4")
	if err != nil {
		return err
	}

	// Transcription is best-effort: a failed transcription leaves the note
	// pending server-side transcription, it never fails the submission.
	transcription := v.Transcription
	status := v.TranscriptionStatus
	if transcription == "" {
		if result, err := s.backend.Invoke(ctx, "transcribe-voice-note", map[string]any{
			"audio_ref": ref,
		}); err == nil {
			var out struct {
				Text string `json:"text"`
			}
			if json.Unmarshal(result, &out) == nil && out.Text != "" {
				transcription = out.Text
				status = record.TranscriptionDone
			}
		}
	}
	if status == "" {
		status = record.TranscriptionPending
	}

	row := map[string]any{
		"client_id":            it.ID,
		"property_id":          v.PropertyID,
		"audio_ref":            ref,
		"duration_sec":         v.DurationSec,
		"transcription":        transcription,
		"transcription_status": status,
		"captured_at":          it.CreatedAt,
	}

	return s.backend.Insert(ctx, "voice_notes", row)
}

// decodePayload unmarshals and validates an item's typed payload. A payload
// that fails local validation is a submission failure and consumes a retry.
func decodePayload(it *record.Item, into interface{ Validate() error }) error {
	if err := json.Unmarshal(it.Payload, into); err != nil {
		return remote.LocalErr("decode payload", err)
	}
	if err := into.Validate(); err != nil {
		return remote.LocalErr("validate payload", err)
	}
	return nil
}
