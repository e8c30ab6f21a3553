package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ClientConfig configures the HTTP backend client.
type ClientConfig struct {
	// BaseURL is the backend root, e.g. https://acme.example.com.
	BaseURL string

	// APIKey is sent as both the apikey header and a bearer token.
	APIKey string

	// Timeout bounds each individual request. The scheduler applies its
	// own per-submission timeout on top of this.
	Timeout time.Duration
}

// Client talks to the hosted backend over HTTP: table writes through the
// REST surface, remote functions, and object-storage uploads.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a backend client. A zero Timeout defaults to 30s.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Insert implements Backend.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	op := "insert " + table

	body, err := json.Marshal(row)
	if err != nil {
		return LocalErr(op, fmt.Errorf("failed to encode row: %w", err))
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	resp, err := c.do(ctx, op, url, body, "application/json", map[string]string{
		"Prefer": "return=minimal",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.checkStatus(op, resp)
}

// Invoke implements Backend.
func (c *Client) Invoke(ctx context.Context, fn string, body any) (json.RawMessage, error) {
	op := "invoke " + fn

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, LocalErr(op, fmt.Errorf("failed to encode body: %w", err))
	}

	url := fmt.Sprintf("%s/functions/v1/%s", c.baseURL, fn)
	resp, err := c.do(ctx, op, url, encoded, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return nil, err
	}

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NetworkErr(op, fmt.Errorf("failed to read response: %w", err))
	}
	return json.RawMessage(result), nil
}

// Upload implements Backend. The x-upsert header makes retrying the same
// path overwrite rather than error, so a retried attempt never leaves an
// orphan object.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	op := "upload " + path

	url := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, path)
	resp, err := c.do(ctx, op, url, data, contentType, map[string]string{
		"x-upsert": "true",
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(op, resp); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s", c.baseURL, path), nil
}

func (c *Client) do(ctx context.Context, op, url string, body []byte, contentType string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, LocalErr(op, err)
	}

	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NetworkErr(op, err)
	}
	return resp, nil
}

// checkStatus maps a non-2xx response to a classified error: 4xx is a
// rejection (validation/auth), everything else is treated as a transient
// network-class failure.
func (c *Client) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return RejectedErr(op, err)
	}
	return NetworkErr(op, err)
}
