package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

func testRoster(t *testing.T) *student.Roster {
	t.Helper()
	r, err := student.NewRoster([]*student.Student{
		{ID: "std-1", Section: student.SectionA, Name: "A. ANITHA"},
		{ID: "std-3", Section: student.SectionB, Name: "K. RAMU"},
	})
	require.NoError(t, err)
	return r
}

type fakeFeatures map[string]bool

func (f fakeFeatures) EnabledFor(feature, _, _ string) bool {
	enabled, ok := f[feature]
	return !ok || enabled
}

type fakeAnalyzer struct {
	calls int
	res   analysis.Result
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ *student.Student) analysis.Result {
	f.calls++
	return f.res
}

type fakeChat struct {
	openErr error
	sent    []string
	chunks  []string
	failed  bool
}

func (f *fakeChat) Open(_ context.Context, s *student.Student, sessionID string) (*chat.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if sessionID == "" {
		sessionID = "new-session"
	}
	return &chat.Session{ID: sessionID, StudentID: s.ID}, nil
}

func (f *fakeChat) Send(_ context.Context, _ *student.Student, sessionID, text string, onChunk func(string) error) (*chat.Reply, error) {
	f.sent = append(f.sent, text)
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	return &chat.Reply{SessionID: sessionID, Message: chat.Message{Role: chat.RoleModel, Text: "ok"}, Failed: f.failed}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE
// ══════════════════════════════════════════════════════════════════════════════

func TestAnalyzeStudentHandler(t *testing.T) {
	an := &fakeAnalyzer{res: analysis.Result{Analysis: analysis.Fallback(), Source: analysis.SourceFallback, Fallback: true}}
	h := NewAnalyzeStudentHandler(testRoster(t), an, nil, nil)

	res, err := h.Handle(context.Background(), AnalyzeStudentCommand{StudentID: " std-3 "})
	require.NoError(t, err)
	assert.Equal(t, "std-3", res.StudentID)
	assert.Equal(t, "K. RAMU", res.StudentName)
	assert.True(t, res.Fallback)
	assert.Equal(t, analysis.SourceFallback, res.Source)
	assert.Equal(t, 1, an.calls)
}

func TestAnalyzeStudentHandler_Errors(t *testing.T) {
	an := &fakeAnalyzer{}
	ctx := context.Background()

	h := NewAnalyzeStudentHandler(testRoster(t), an, nil, nil)
	_, err := h.Handle(ctx, AnalyzeStudentCommand{})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, AnalyzeStudentCommand{StudentID: "std-9"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	h = NewAnalyzeStudentHandler(testRoster(t), an, fakeFeatures{config.FeatureAIAnalysis: false}, nil)
	_, err = h.Handle(ctx, AnalyzeStudentCommand{StudentID: "std-3"})
	assert.ErrorIs(t, err, shared.ErrFeatureDisabled)

	assert.Zero(t, an.calls)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT
// ══════════════════════════════════════════════════════════════════════════════

func TestSendChatMessageHandler(t *testing.T) {
	fc := &fakeChat{chunks: []string{"నమ", "స్కారం"}}
	h := NewSendChatMessageHandler(testRoster(t), fc, nil, nil)

	var got []string
	reply, err := h.Handle(context.Background(), SendChatMessageCommand{StudentID: "std-3", Message: "hello"},
		func(c string) error {
			got = append(got, c)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "new-session", reply.SessionID)
	assert.Equal(t, []string{"నమ", "స్కారం"}, got)
	assert.Equal(t, []string{"hello"}, fc.sent)
}

func TestSendChatMessageHandler_Prepare(t *testing.T) {
	ctx := context.Background()

	t.Run("empty message", func(t *testing.T) {
		h := NewSendChatMessageHandler(testRoster(t), &fakeChat{}, nil, nil)
		_, _, err := h.Prepare(ctx, SendChatMessageCommand{StudentID: "std-3", Message: "  "})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("existing session", func(t *testing.T) {
		h := NewSendChatMessageHandler(testRoster(t), &fakeChat{}, nil, nil)
		s, sess, err := h.Prepare(ctx, SendChatMessageCommand{StudentID: "std-1", SessionID: "abc", Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "std-1", s.ID)
		assert.Equal(t, "abc", sess.ID)
	})

	t.Run("session error", func(t *testing.T) {
		h := NewSendChatMessageHandler(testRoster(t), &fakeChat{openErr: chat.ErrSessionMismatch}, nil, nil)
		_, _, err := h.Prepare(ctx, SendChatMessageCommand{StudentID: "std-1", SessionID: "abc", Message: "hi"})
		assert.ErrorIs(t, err, chat.ErrSessionMismatch)
	})

	t.Run("feature disabled", func(t *testing.T) {
		h := NewSendChatMessageHandler(testRoster(t), &fakeChat{}, fakeFeatures{config.FeatureAIChat: false}, nil)
		_, _, err := h.Prepare(ctx, SendChatMessageCommand{StudentID: "std-1", Message: "hi"})
		assert.ErrorIs(t, err, shared.ErrFeatureDisabled)
	})
}

func TestSendChatMessageHandler_ChunkError(t *testing.T) {
	fc := &fakeChat{chunks: []string{"a"}}
	h := NewSendChatMessageHandler(testRoster(t), fc, nil, nil)
	boom := errors.New("client gone")

	_, err := h.Handle(context.Background(), SendChatMessageCommand{StudentID: "std-3", Message: "hi"},
		func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// ══════════════════════════════════════════════════════════════════════════════
// VOICE
// ══════════════════════════════════════════════════════════════════════════════

func TestStartVoiceSessionHandler(t *testing.T) {
	ctx := context.Background()

	h := NewStartVoiceSessionHandler(testRoster(t), nil, true)
	s, err := h.Handle(ctx, StartVoiceSessionCommand{StudentID: "std-1"})
	require.NoError(t, err)
	assert.Equal(t, "A. ANITHA", s.Name)

	h = NewStartVoiceSessionHandler(testRoster(t), nil, false)
	_, err = h.Handle(ctx, StartVoiceSessionCommand{StudentID: "std-1"})
	assert.ErrorIs(t, err, shared.ErrGeminiNotConfigured)

	h = NewStartVoiceSessionHandler(testRoster(t), fakeFeatures{config.FeatureAIVoice: false}, true)
	_, err = h.Handle(ctx, StartVoiceSessionCommand{StudentID: "std-1"})
	assert.ErrorIs(t, err, shared.ErrFeatureDisabled)
}

type fakeCloser struct{ closed []string }

func (f *fakeCloser) Close(_ context.Context, s *student.Student, sessionID string) error {
	if sessionID == "" {
		return chat.ErrSessionNotFound
	}
	f.closed = append(f.closed, s.ID+"/"+sessionID)
	return nil
}

func TestEndChatSessionHandler(t *testing.T) {
	fc := &fakeCloser{}
	h := NewEndChatSessionHandler(testRoster(t), fc)

	require.NoError(t, h.Handle(context.Background(), EndChatSessionCommand{StudentID: "std-3", SessionID: "s1"}))
	assert.Equal(t, []string{"std-3/s1"}, fc.closed)

	err := h.Handle(context.Background(), EndChatSessionCommand{StudentID: "std-3"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}
