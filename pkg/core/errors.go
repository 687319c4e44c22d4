package core

import (
	"errors"
	"fmt"
	"time"
)

// Validation and control errors
var (
	ErrInvalidConfig = errors.New("trackpilot: invalid run config")
	ErrNotReady      = errors.New("trackpilot: unit not ready")
)

// NoRetryError indicates a fatal failure that must not be retried, such as a
// malformed spec or a missing login session.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// IsFatal reports whether err carries a NoRetryError anywhere in its chain.
func IsFatal(err error) bool {
	var noRetry *NoRetryError
	return errors.As(err, &noRetry)
}

// ContentionError indicates the exclusive session could not be acquired
// within the configured wait.
type ContentionError struct {
	Resource string
	Waited   time.Duration
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("trackpilot: %s busy after waiting %v", e.Resource, e.Waited)
}
