package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

func TestAnalysisStore(t *testing.T) {
	ctx := context.Background()
	s := NewAnalysisStore()
	now := time.Date(2025, 11, 20, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Get(ctx, "std-0", "fp")
	assert.True(t, shared.IsNotFound(err))

	rec := &analysis.Record{StudentID: "std-0", Fingerprint: "fp", Analysis: analysis.Fallback(), CreatedAt: now}
	require.NoError(t, s.Set(ctx, rec, time.Hour))

	got, err := s.Get(ctx, "std-0", "fp")
	require.NoError(t, err)
	assert.Equal(t, rec.Analysis, got.Analysis)

	// Returned records are copies.
	got.Analysis.Success = "changed"
	again, _ := s.Get(ctx, "std-0", "fp")
	assert.NotEqual(t, "changed", again.Analysis.Success)

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, "std-0", "fp")
	assert.True(t, shared.IsNotFound(err), "expired")

	assert.Error(t, s.Set(ctx, nil, 0))
}

func TestAnalysisStore_History(t *testing.T) {
	ctx := context.Background()
	s := NewAnalysisStore()
	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	for i, fp := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, &analysis.Record{StudentID: "std-1", Fingerprint: fp, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, s.Save(ctx, &analysis.Record{StudentID: "std-2", Fingerprint: "x", CreatedAt: base}))

	hist, err := s.History(ctx, "std-1", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].Fingerprint)
	assert.Equal(t, "b", hist[1].Fingerprint)

	hist, _ = s.History(ctx, "std-9", 10)
	assert.Empty(t, hist)
}

func TestChatStore(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	now := time.Now()

	sess := chat.NewSession("s-1", "std-0", "RAMU", now)
	require.NoError(t, s.Save(ctx, sess))

	loaded, err := s.Load(ctx, "s-1")
	require.NoError(t, err)
	loaded.Append(chat.Message{Role: chat.RoleUser, Text: "hi", CreatedAt: now})

	again, _ := s.Load(ctx, "s-1")
	assert.Len(t, again.Messages, 1, "stored session is not aliased")

	require.NoError(t, s.Delete(ctx, "s-1"))
	_, err = s.Load(ctx, "s-1")
	assert.True(t, shared.IsNotFound(err))
}

func TestChatStore_Transcripts(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore()
	user := chat.Message{Role: chat.RoleUser, Text: "q"}
	model := chat.Message{Role: chat.RoleModel, Text: "a"}

	require.NoError(t, s.AppendExchange(ctx, "s-1", "std-0", user, model))

	msgs, err := s.ListBySession(ctx, "std-0", "s-1")
	require.NoError(t, err)
	assert.Equal(t, []chat.Message{user, model}, msgs)

	_, err = s.ListBySession(ctx, "std-5", "s-1")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}
