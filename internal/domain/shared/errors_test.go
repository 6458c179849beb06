package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "student.Find: student not found", ErrStudentNotFound.Error())

	wrapped := WrapError("gemini", "Request", ErrTimeout, "slow", errors.New("i/o timeout"))
	assert.Equal(t, "gemini.Request: slow: i/o timeout", wrapped.Error())
}

func TestDomainError_Is(t *testing.T) {
	err := WrapError("gemini", "Request", ErrTimeout, "slow", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNotFound)

	// Через fmt.Errorf("%w") классификация сохраняется.
	outer := fmt.Errorf("analyze: %w", ErrStudentNotFound)
	assert.True(t, IsNotFound(outer))
}

func TestDomainError_Unwrap(t *testing.T) {
	assert.Equal(t, ErrNotFound, errors.Unwrap(ErrStudentNotFound))

	cause := errors.New("boom")
	assert.Equal(t, cause, errors.Unwrap(WrapError("x", "y", ErrInvalidState, "m", cause)))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		err        error
		validation bool
		external   bool
		retryable  bool
	}{
		{ErrInvalidSection, true, false, false},
		{ErrEmptyRoster, true, false, false},
		{ErrGeminiUnavailable, false, true, true},
		{ErrGeminiRateLimited, false, true, true},
		{ErrGeminiInvalidResponse, false, false, false},
		{ErrStudentNotFound, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.external, IsExternalService(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}
