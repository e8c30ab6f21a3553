package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInsertPostsRow(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
	err := c.Insert(context.Background(), "leads", map[string]string{"first_name": "Jane"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if gotPath != "/rest/v1/leads" {
		t.Errorf("expected /rest/v1/leads, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if !strings.Contains(string(gotBody), "Jane") {
		t.Errorf("expected row in body, got %s", gotBody)
	}
}

func TestInvokeReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/transcribe-voice-note" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hail damage on north slope"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	result, err := c.Invoke(context.Background(), "transcribe-voice-note", map[string]string{"ref": "x"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if decoded["text"] != "hail damage on north slope" {
		t.Errorf("unexpected result: %v", decoded)
	}
}

func TestUploadReturnsPublicRef(t *testing.T) {
	var gotUpsert, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUpsert = r.Header.Get("x-upsert")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	ref, err := c.Upload(context.Background(),
		"captures/properties/prop-1/photos/abc.jpg", []byte{1, 2, 3}, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := srv.URL + "/storage/v1/object/public/captures/properties/prop-1/photos/abc.jpg"
	if ref != want {
		t.Errorf("expected ref %s, got %s", want, ref)
	}
	if gotUpsert != "true" {
		t.Error("expected x-upsert header so retries overwrite instead of erroring")
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg content type, got %q", gotContentType)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"validation failure", http.StatusUnprocessableEntity, KindRejected},
		{"auth failure", http.StatusUnauthorized, KindRejected},
		{"server error", http.StatusInternalServerError, KindNetwork},
		{"gateway timeout", http.StatusGatewayTimeout, KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{BaseURL: srv.URL})
			err := c.Insert(context.Background(), "leads", map[string]string{})
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.want {
				t.Errorf("expected kind %s, got %s", tt.want, KindOf(err))
			}
		})
	}
}

func TestTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	err := c.Insert(context.Background(), "leads", map[string]string{})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("expected network kind, got %s", KindOf(err))
	}
}
