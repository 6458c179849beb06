// Package shared holds the error vocabulary common to every domain package.
// It imports nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Kinds. Callers match them with errors.Is; the HTTP layer maps them to
// status codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidEntity = errors.New("inconsistent entity")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("malformed identifier")
	ErrInvalidInput    = errors.New("bad input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value outside allowed range")
	ErrInvalidFormat   = errors.New("unexpected format")

	ErrInvalidState    = errors.New("wrong state")
	ErrStateTransition = errors.New("transition not allowed")

	ErrExternalService    = errors.New("upstream failure")
	ErrServiceUnavailable = errors.New("upstream unavailable")
	ErrTimeout            = errors.New("deadline exceeded")
	ErrRateLimited        = errors.New("too many requests")
)

// DomainError ties a Kind to the place it happened.
//
//	student.Find: student not found
//	gemini.Request: Gemini API is unavailable: dial tcp: i/o timeout
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error // cause, may be nil
}

func (e *DomainError) Error() string {
	s := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

// Unwrap exposes the cause, falling back to the kind.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

// Is matches either the kind or anything in the cause chain, so a wrapped
// ErrGeminiTimeout is both ErrTimeout and context.DeadlineExceeded.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError builds an error without a cause. Used for the predefined
// errors below.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return WrapError(domain, op, kind, message, nil)
}

// WrapError attaches domain context to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrStudentNotFound = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrInvalidSection  = NewDomainError("student", "Validate", ErrInvalidInput, "section must be A or B")

	ErrMalformedRow = NewDomainError("roster", "Parse", ErrInvalidFormat, "row has fewer fields than the layout requires")
	ErrSchemaDrift  = NewDomainError("roster", "ValidateLayout", ErrInvalidEntity, "column layout is inconsistent")
	ErrEmptyRoster  = NewDomainError("roster", "Load", ErrEmptyValue, "roster contains no students")

	ErrGeminiUnavailable     = NewDomainError("gemini", "Request", ErrServiceUnavailable, "Gemini API is unavailable")
	ErrGeminiRateLimited     = NewDomainError("gemini", "Request", ErrRateLimited, "Gemini API rate limit exceeded")
	ErrGeminiTimeout         = NewDomainError("gemini", "Request", ErrTimeout, "Gemini API request timeout")
	ErrGeminiInvalidResponse = NewDomainError("gemini", "Parse", ErrInvalidFormat, "invalid response from Gemini API")
	ErrGeminiNotConfigured   = NewDomainError("gemini", "Configure", ErrInvalidState, "Gemini API key is not configured")

	ErrVoiceTransition    = NewDomainError("voice", "Transition", ErrStateTransition, "invalid voice session transition")
	ErrVoiceSessionClosed = NewDomainError("voice", "Send", ErrInvalidState, "voice session is closed")

	// ErrFeatureDisabled: флаг выключил операцию для этого ученика.
	ErrFeatureDisabled = NewDomainError("config", "Feature", ErrInvalidState, "feature is disabled")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

var (
	validationKinds = []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange}
	externalKinds   = []error{ErrExternalService, ErrServiceUnavailable, ErrTimeout, ErrRateLimited}
	retryableKinds  = []error{ErrServiceUnavailable, ErrTimeout, ErrRateLimited}
)

func isAny(err error, kinds []error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation is true for errors caused by the caller's input (HTTP 400).
func IsValidation(err error) bool { return isAny(err, validationKinds) }

// IsExternalService is true for failures of Gemini or another upstream.
func IsExternalService(err error) bool { return isAny(err, externalKinds) }

// IsRetryable is the subset of external failures worth another attempt.
func IsRetryable(err error) bool { return isAny(err, retryableKinds) }
