// Package faults defines the error taxonomy shared across the pipeline.
// Services wrap these sentinels with context; HTTP handlers map them to
// status codes with errors.Is.
package faults

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document, dashboard, or profile does
	// not exist in the requested patient scope.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is illegal for the
	// entity's current status, e.g. parsing an already-parsed document.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstreamTimeout is returned when the extraction or summarization
	// service exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrUpstreamInvalid is returned when an upstream service produced an
	// unparsable or schema-violating payload.
	ErrUpstreamInvalid = errors.New("upstream invalid response")

	// ErrConflict is returned when a concurrent writer lost a race for an
	// at-most-one guarantee (parse claim, daily generation claim).
	ErrConflict = errors.New("persistence conflict")

	// ErrForbidden is returned when the actor is not authorized for the
	// requested patient scope.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports caller-supplied fields that failed validation.
// It maps to a 400, unlike the sentinel faults above.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}
