package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

func TestNewSession_StartsWithGreeting(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", "std-3", "DASARI SRAVANI", now)

	require.Len(t, s.Messages, 1)
	assert.Equal(t, RoleModel, s.Messages[0].Role)
	assert.Contains(t, s.Messages[0].Text, "DASARI SRAVANI గారి")
	assert.Empty(t, s.History())
	assert.True(t, s.BelongsTo("std-3"))
	assert.False(t, s.BelongsTo("std-4"))
}

func TestSession_Append(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", "std-3", "X", now)

	s.Append(Message{Role: RoleUser, Text: "hi", CreatedAt: now.Add(time.Minute)})
	s.Append(Message{Role: RoleModel, Text: "hello", CreatedAt: now.Add(2 * time.Minute)})

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, RoleUser, h[0].Role)
	assert.Equal(t, now.Add(2*time.Minute), s.UpdatedAt)
}

func TestValidateUserText(t *testing.T) {
	assert.ErrorIs(t, ValidateUserText("  "), shared.ErrEmptyValue)
	assert.ErrorIs(t, ValidateUserText(strings.Repeat("అ", MaxMessageLength+1)), shared.ErrValueOutOfRange)
	assert.NoError(t, ValidateUserText(QuickQuestions[0]))
}

func TestRole(t *testing.T) {
	assert.True(t, RoleUser.IsValid())
	assert.False(t, Role("system").IsValid())
}
