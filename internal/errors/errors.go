// Package errors defines the error taxonomy shared by every prodstats component.
//
// This file provides:
// - Sentinel errors for the four failure classes of the core
// - Typed errors carrying the underlying cause or the list of reasons
// - Category checks and the mapping to HTTP status codes
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// ErrAcquisition means the dataset could not be fetched or read.
	// Recoverable by retrying EnsureReady (optionally after Clear).
	ErrAcquisition = errors.New("dataset acquisition failed")

	// ErrValidation means the acquired data failed minimum-quality checks.
	// Not auto-retried: the same source would fail the same way.
	ErrValidation = errors.New("dataset validation failed")

	// ErrStoreNotLoaded is returned by statistics queries issued before
	// the analytical store holds a generation.
	ErrStoreNotLoaded = errors.New("analytical store not loaded")

	// ErrInvalidParameter is returned for caller-supplied values out of range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrLoadSuperseded is returned to waiters of a load whose result was
	// discarded because the cache was cleared while it was in flight.
	ErrLoadSuperseded = errors.New("load superseded by cache clear")
)

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// ============================================================================
// Typed errors
// ============================================================================

// AcquisitionError reports which source failed and why.
type AcquisitionError struct {
	Source string
	Cause  error
}

// NewAcquisition creates an AcquisitionError.
func NewAcquisition(source string, cause error) *AcquisitionError {
	return &AcquisitionError{Source: source, Cause: cause}
}

func (e *AcquisitionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrAcquisition.Error(), e.Source)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAcquisition.Error(), e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *AcquisitionError) Unwrap() error { return e.Cause }

// Is matches ErrAcquisition.
func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }

// ValidationError collects every reason a dataset was rejected.
type ValidationError struct {
	Reasons []string
}

// NewValidation creates a ValidationError from one or more reasons.
func NewValidation(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// Add appends a reason.
func (e *ValidationError) Add(format string, args ...any) {
	e.Reasons = append(e.Reasons, fmt.Sprintf(format, args...))
}

// HasReasons returns true if any reason was recorded.
func (e *ValidationError) HasReasons() bool {
	return len(e.Reasons) > 0
}

// Err returns nil if no reasons were recorded, otherwise the ValidationError.
func (e *ValidationError) Err() error {
	if len(e.Reasons) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	switch len(e.Reasons) {
	case 0:
		return ErrValidation.Error()
	case 1:
		return ErrValidation.Error() + ": " + e.Reasons[0]
	}
	return fmt.Sprintf("%s with %d problems: %s",
		ErrValidation.Error(), len(e.Reasons), strings.Join(e.Reasons, "; "))
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewInvalidParameter creates an invalid parameter error with context.
func NewInvalidParameter(name string, value any, reason string) error {
	return fmt.Errorf("%s=%v: %s: %w", name, value, reason, ErrInvalidParameter)
}

// ============================================================================
// Helper functions for error checking
// ============================================================================

// IsAcquisition returns true if err is an acquisition failure.
func IsAcquisition(err error) bool {
	return errors.Is(err, ErrAcquisition)
}

// IsValidation returns true if err is a data quality failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotLoaded returns true if err means the store has no generation.
func IsNotLoaded(err error) bool {
	return errors.Is(err, ErrStoreNotLoaded)
}

// IsInvalidParameter returns true if err is a caller parameter error.
func IsInvalidParameter(err error) bool {
	return errors.Is(err, ErrInvalidParameter)
}

// IsRetriable returns true if retrying EnsureReady may succeed.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrAcquisition) ||
		errors.Is(err, ErrLoadSuperseded) ||
		errors.Is(err, ErrStoreNotLoaded)
}

// ============================================================================
// Error to status mapping
// ============================================================================

// HTTPStatus maps an error to the status code the route layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidParameter(err):
		return http.StatusBadRequest
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsAcquisition(err), IsNotLoaded(err), errors.Is(err, ErrLoadSuperseded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable name for the error class.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvalidParameter(err):
		return "InvalidParameter"
	case IsValidation(err):
		return "Validation"
	case IsAcquisition(err):
		return "Acquisition"
	case IsNotLoaded(err):
		return "StoreNotLoaded"
	case errors.Is(err, ErrLoadSuperseded):
		return "LoadSuperseded"
	default:
		return "Internal"
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
