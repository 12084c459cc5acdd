package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means no model client could be built, typically for a
	// missing API key. Every trigger fails with it without touching the network.
	ErrNotConfigured = errors.New("api client not initialized")
	// ErrNoContext is returned by follow-ups issued before any analysis completed.
	ErrNoContext = errors.New("no previous analysis to follow up on")
	// ErrNoOutput means the model finished without producing any text.
	ErrNoOutput = errors.New("no output received from the model")
	// ErrBusy rejects a trigger while another session is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrCancelled is the cause attached to a session stopped by Cancel.
	ErrCancelled = errors.New("request cancelled")
	// ErrNoImages rejects an analysis with an empty capture batch.
	ErrNoImages = errors.New("no screenshots to process")
)

// TransportError wraps a failure talking to the model.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
