package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

type fakeTranscripts struct {
	msgs []chat.Message
	err  error
}

func (f fakeTranscripts) Transcript(_ context.Context, _ *student.Student, _ string) ([]chat.Message, error) {
	return f.msgs, f.err
}

type fakeHistory struct {
	limit int
	recs  []*analysis.Record
}

func (f *fakeHistory) History(_ context.Context, _ string, limit int) ([]*analysis.Record, error) {
	f.limit = limit
	return f.recs, nil
}

func TestGetChatHistoryHandler(t *testing.T) {
	msgs := []chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
		{Role: chat.RoleModel, Text: "hello"},
	}
	h := NewGetChatHistoryHandler(testRoster(t), fakeTranscripts{msgs: msgs})

	res, err := h.Handle(context.Background(), GetChatHistoryQuery{StudentID: "std-3", SessionID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, "std-3", res.StudentID)
	assert.Equal(t, msgs, res.Messages)

	_, err = h.Handle(context.Background(), GetChatHistoryQuery{StudentID: "std-3"})
	assert.True(t, shared.IsValidation(err))

	h = NewGetChatHistoryHandler(testRoster(t), fakeTranscripts{err: chat.ErrSessionNotFound})
	_, err = h.Handle(context.Background(), GetChatHistoryQuery{StudentID: "std-3", SessionID: "gone"})
	assert.True(t, shared.IsNotFound(err))
}

func TestGetAnalysisHistoryHandler(t *testing.T) {
	roster := testRoster(t)
	s, err := roster.Get("std-3")
	require.NoError(t, err)

	hist := &fakeHistory{recs: []*analysis.Record{
		{StudentID: s.ID, Fingerprint: s.Fingerprint(), CreatedAt: time.Now()},
		{StudentID: s.ID, Fingerprint: "old", CreatedAt: time.Now().Add(-time.Hour)},
	}}
	h := NewGetAnalysisHistoryHandler(roster, hist)

	out, err := h.Handle(context.Background(), GetAnalysisHistoryQuery{StudentID: "std-3", Limit: 500})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Current)
	assert.False(t, out[1].Current)
	assert.Equal(t, 50, hist.limit)
}
