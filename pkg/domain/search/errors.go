package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput rejects a request before any pipeline stage runs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable means the index or embedding store could not be
	// reached. It is never returned for a search that simply found nothing.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// CandidateError describes a single candidate that could not be expanded.
// It is logged and counted, never returned to the caller.
type CandidateError struct {
	ID    string
	Layer int
	Err   error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate %s at layer %d: %v", e.ID, e.Layer, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
