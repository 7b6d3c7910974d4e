package domain

import "errors"

var (
	// ErrValidation indicates malformed caller input; never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown alert id.
	ErrNotFound = errors.New("alert not found")
	// ErrConflict indicates an illegal lifecycle transition.
	ErrConflict = errors.New("conflict")
	// ErrStore indicates a backing store fault; caller may retry with backoff.
	ErrStore = errors.New("store unavailable")
)
