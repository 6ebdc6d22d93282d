package isy

import "errors"

// Domain errors for the ISY bridge package.
var (
	// ErrNotConfigured is returned when a required option or setting is missing.
	ErrNotConfigured = errors.New("isy: not configured")

	// ErrRequestFailed is returned when a REST request cannot be completed.
	ErrRequestFailed = errors.New("isy: request failed")

	// ErrUnexpectedStatus is returned when the controller answers with a
	// non-2xx status code.
	ErrUnexpectedStatus = errors.New("isy: unexpected status")

	// ErrStreamClosed is returned when the event stream connection ends.
	ErrStreamClosed = errors.New("isy: event stream closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("isy: bridge already started")
)
