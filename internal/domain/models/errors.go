package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected         = errors.New("fact store not connected")
	ErrMalformedFact        = errors.New("malformed fact")
	ErrQueryWindowInvalid   = errors.New("query window invalid")
	ErrInvalidOrderKey      = errors.New("invalid order key")
	ErrValidation           = errors.New("validation failed")
	ErrStoreUnavailable     = errors.New("store unavailable")
	ErrQueryTimeout         = errors.New("query timeout")
	ErrRankingScopeConflict = errors.New("ranking scope conflict")
)

// ValidationError rejects a request before any I/O.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return "validation: " + e.Message
}

// Unwrap exposes both ErrValidation and the specific cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// FailureKind classifies a per-category failure.
type FailureKind string

const (
	FailureStoreUnavailable FailureKind = "store_unavailable"
	FailureQueryTimeout     FailureKind = "query_timeout"
	FailureRankingConflict  FailureKind = "ranking_scope_conflict"
	FailureCanceled         FailureKind = "canceled"
	FailureInternal         FailureKind = "internal"
)

// ClassifyFailure maps an error to its FailureKind.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrQueryTimeout):
		return FailureQueryTimeout
	case errors.Is(err, ErrRankingScopeConflict):
		return FailureRankingConflict
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrNotConnected):
		return FailureStoreUnavailable
	case errors.Is(err, ErrCanceled):
		return FailureCanceled
	default:
		return FailureInternal
	}
}

// ErrCanceled marks work abandoned because the caller gave up.
var ErrCanceled = errors.New("collection canceled")

// CategoryFailure is one entry of the partial-failure report.
type CategoryFailure struct {
	Category Category    `json:"category"`
	Tier     int         `json:"tier"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
	Err      error       `json:"-"`
}

func (f CategoryFailure) Error() string {
	return fmt.Sprintf("%s (tier %d): %s", f.Category, f.Tier, f.Message)
}

func (f CategoryFailure) Unwrap() error { return f.Err }
