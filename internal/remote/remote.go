// Package remote defines the boundary to the hosted backend.
//
// The sync engine treats every remote operation as opaque: a structured
// insert into a named table, a callable remote function, or a binary upload
// to object storage. The Backend interface is all the core knows; the HTTP
// client in this package is the production implementation.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Backend is the remote side of the sync engine.
type Backend interface {
	// Insert writes one row into a named table.
	Insert(ctx context.Context, table string, row any) error

	// Invoke calls a named remote function with a JSON body and returns
	// the JSON result.
	Invoke(ctx context.Context, fn string, body any) (json.RawMessage, error)

	// Upload stores binary data at a deterministic path in object storage
	// and returns the public reference. Uploads must tolerate retrying the
	// same path after a partial failure.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Kind classifies a submission failure. The scheduler retries all kinds
// uniformly; the classification exists for the sync log and diagnostics.
type Kind string

const (
	// KindNetwork covers transport failures, timeouts, and 5xx responses.
	KindNetwork Kind = "network"

	// KindRejected covers validation and auth failures (4xx). Retrying is
	// allowed by policy though it will likely fail again.
	KindRejected Kind = "rejected"

	// KindLocal covers malformed payloads caught before or during encoding.
	KindLocal Kind = "local"
)

// Error is a classified submission failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NetworkErr wraps err as a network-class failure.
func NetworkErr(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// RejectedErr wraps err as a remote-rejected failure.
func RejectedErr(op string, err error) *Error {
	return &Error{Kind: KindRejected, Op: op, Err: err}
}

// LocalErr wraps err as a local payload failure.
func LocalErr(op string, err error) *Error {
	return &Error{Kind: KindLocal, Op: op, Err: err}
}

// KindOf returns the classification of err, defaulting to network for
// errors that carry no classification (a bare transport error).
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindNetwork
}
