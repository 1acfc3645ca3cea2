package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSegmentNotFound indicates the registry has no global default segment.
	// This is a configuration defect surfaced at snapshot build time, never per request.
	ErrSegmentNotFound = errors.New("no risk segment matches and no global default is configured")
	// ErrInsufficientData indicates there is no pricing basis at all for the
	// animal: no behavioural signal and no fitted segment experience.
	ErrInsufficientData = errors.New("insufficient data to price")
	// ErrMalformedTriangle indicates the claims triangle violates the
	// non-decreasing cumulative invariant within an origin row.
	ErrMalformedTriangle = errors.New("malformed claims triangle")
	// ErrQuoteNotFound is returned when a quote cannot be located.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrProfileNotFound is returned when an animal has no registration record.
	ErrProfileNotFound = errors.New("animal profile not found")
)

// FieldError describes one violated field in a raw telemetry record.
type FieldError struct {
	Field  string
	Reason string
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Reason)
}

// ValidationError reports every violated field of a raw record, not just the
// first, so callers can correct and re-submit in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the named field is among the violations.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
