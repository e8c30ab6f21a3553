package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crestline/fieldsync/internal/record"
)

// captureFile is the on-disk format dropped into the spool by the capture
// front end. Binary attachments travel base64-encoded in the JSON body.
type captureFile struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	Image     []byte `json:"image,omitempty"`
	Thumbnail []byte `json:"thumbnail,omitempty"`
	Audio     []byte `json:"audio,omitempty"`
}

// ingestFile queues one spool file and removes it on success. A failed file
// is moved to a rejected/ subdirectory rather than retried forever.
func (d *Daemon) ingestFile(ctx context.Context, path string) {
	id, err := d.enqueueCapture(ctx, path)
	if err != nil {
		d.logger.Error("failed to ingest capture file", "path", path, "error", err)
		d.rejectFile(path)
		return
	}

	if err := os.Remove(path); err != nil {
		d.logger.Warn("failed to remove ingested spool file", "path", path, "error", err)
	}
	d.logger.Info("capture ingested", "path", filepath.Base(path), "id", id)
}

func (d *Daemon) enqueueCapture(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read capture file: %w", err)
	}

	var cf captureFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return "", fmt.Errorf("malformed capture file: %w", err)
	}

	switch cf.Type {
	case "lead":
		var lead record.Lead
		if err := json.Unmarshal(cf.Payload, &lead); err != nil {
			return "", fmt.Errorf("malformed lead payload: %w", err)
		}
		return d.captures.SaveLead(ctx, &lead)

	case "disposition":
		var disp record.Disposition
		if err := json.Unmarshal(cf.Payload, &disp); err != nil {
			return "", fmt.Errorf("malformed disposition payload: %w", err)
		}
		return d.captures.SaveDisposition(ctx, &disp)

	case "door_knock":
		var knock record.DoorKnock
		if err := json.Unmarshal(cf.Payload, &knock); err != nil {
			return "", fmt.Errorf("malformed door knock payload: %w", err)
		}
		return d.captures.SaveDoorKnock(ctx, &knock)

	case "photo":
		var photo record.Photo
		if err := json.Unmarshal(cf.Payload, &photo); err != nil {
			return "", fmt.Errorf("malformed photo payload: %w", err)
		}
		return d.captures.SavePhoto(ctx, &photo, cf.Image, cf.Thumbnail)

	case "voice_note":
		var note record.VoiceNote
		if err := json.Unmarshal(cf.Payload, &note); err != nil {
			return "", fmt.Errorf("malformed voice note payload: %w", err)
		}
		return d.captures.SaveVoiceNote(ctx, &note, cf.Audio)

	default:
		return "", fmt.Errorf("unknown capture type %q", cf.Type)
	}
}

// rejectFile moves a bad spool file aside so it stops matching the watcher
// but stays available for inspection.
func (d *Daemon) rejectFile(path string) {
	rejectDir := filepath.Join(filepath.Dir(path), "rejected")
	if err := os.MkdirAll(rejectDir, 0o755); err != nil {
		d.logger.Warn("failed to create rejected directory", "error", err)
		return
	}
	dest := filepath.Join(rejectDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		d.logger.Warn("failed to move rejected capture file", "path", path, "error", err)
	}
}
