// Package permanent marks delivery failures that retrying cannot fix, such
// as missing credentials or a rejected payload. The notification dispatcher
// stops its retry loop when it sees the marker.
package permanent

import "errors"

// Error wraps a non-retryable root cause.
type Error struct {
	Err error
}

// Error returns the wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Mark wraps an error with the non-retryable marker.
// Params: source error.
// Returns: wrapped error, or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether the error carries the non-retryable marker.
// Params: candidate error.
// Returns: true when retrying cannot help.
func Is(err error) bool {
	var marked Error
	return errors.As(err, &marked)
}
