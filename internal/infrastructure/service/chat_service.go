package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/external/gemini"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ChatGateway streams a model reply for a conversation.
type ChatGateway interface {
	StreamReply(ctx context.Context, system string, history []chat.Message, onChunk func(string) error) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GEMINI GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// GeminiChatGateway adapts gemini.Client to ChatGateway.
type GeminiChatGateway struct {
	client *gemini.Client
	model  string
}

// NewGeminiChatGateway creates the gateway.
func NewGeminiChatGateway(client *gemini.Client, model string) *GeminiChatGateway {
	return &GeminiChatGateway{client: client, model: model}
}

// StreamReply implements ChatGateway.
func (g *GeminiChatGateway) StreamReply(ctx context.Context, system string, history []chat.Message, onChunk func(string) error) (string, error) {
	req := gemini.ChatRequest(system, gemini.History(history,
		func(m chat.Message) string { return string(m.Role) },
		func(m chat.Message) string { return m.Text }))
	return g.client.StreamGenerateContent(ctx, g.model, req, onChunk)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// ChatService runs mentor conversations. Sessions are bound to one student;
// selecting another student starts a new session.
type ChatService struct {
	gateway     ChatGateway
	store       chat.HistoryStore
	transcripts chat.TranscriptRepository // optional
	prompts     Prompts
	log         *logger.Logger
	newID       func() string
	now         func() time.Time
}

// NewChatService creates a new ChatService.
func NewChatService(gateway ChatGateway, store chat.HistoryStore, transcripts chat.TranscriptRepository, prompts Prompts, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.Nop()
	}
	return &ChatService{
		gateway:     gateway,
		store:       store,
		transcripts: transcripts,
		prompts:     prompts,
		log:         log.With(logger.Component("chat")),
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Open returns the student's session with the given id, or starts a new one
// when sessionID is empty.
func (s *ChatService) Open(ctx context.Context, st *student.Student, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		sess := chat.NewSession(s.newID(), st.ID, st.Name, s.now().UTC())
		if err := s.store.Save(ctx, sess); err != nil {
			return nil, err
		}
		s.log.Info("chat session started", logger.SessionID(sess.ID), logger.StudentID(st.ID))
		return sess, nil
	}

	sess, err := s.store.Load(ctx, sessionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, chat.ErrSessionNotFound
		}
		return nil, err
	}
	if !sess.BelongsTo(st.ID) {
		return nil, chat.ErrSessionMismatch
	}
	return sess, nil
}

// Send appends the user's message, streams the reply through onChunk and
// stores both. When the model fails, the text streamed so far is kept as its
// own message and the apology follows as a separate one; it is returned in
// the reply, never streamed as a chunk. Only validation and storage errors
// are returned.
func (s *ChatService) Send(ctx context.Context, st *student.Student, sessionID, text string, onChunk func(string) error) (*chat.Reply, error) {
	if err := chat.ValidateUserText(text); err != nil {
		return nil, err
	}
	sess, err := s.Open(ctx, st, sessionID)
	if err != nil {
		return nil, err
	}
	log := s.log.With(logger.SessionID(sess.ID), logger.StudentID(st.ID))

	userMsg := chat.Message{Role: chat.RoleUser, Text: strings.TrimSpace(text), CreatedAt: s.now().UTC()}
	sess.Append(userMsg)

	var (
		streamErr error
		delivered strings.Builder
	)
	wrapped := func(chunk string) error {
		if err := onChunk(chunk); err != nil {
			streamErr = err
			return err
		}
		delivered.WriteString(chunk)
		return nil
	}

	start := time.Now()
	reply, err := s.gateway.StreamReply(ctx, s.prompts.Chat(st), sess.History(), wrapped)
	out := &chat.Reply{SessionID: sess.ID}
	switch {
	case err == nil:
		log.Info("chat reply streamed", logger.Latency(time.Since(start)), logger.Int("chars", len(reply)))
	case streamErr != nil && errors.Is(err, streamErr):
		// Клиент ушёл посреди потока: сохраняем то, что он успел получить.
		log.Warn("chat client disconnected", logger.Err(err))
		reply = delivered.String()
	default:
		log.Error("chat reply failed", logger.Err(err), logger.Int("partial_chars", delivered.Len()))
		out.Failed = true
		if delivered.Len() > 0 {
			partial := chat.Message{Role: chat.RoleModel, Text: delivered.String(), CreatedAt: s.now().UTC()}
			sess.Append(partial)
			out.Partial = &partial
		}
		reply = chat.Apology
	}

	out.Message = chat.Message{Role: chat.RoleModel, Text: reply, CreatedAt: s.now().UTC()}
	sess.Append(out.Message)

	// Use a detached context so a disconnected client does not lose history.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.store.Save(saveCtx, sess); err != nil {
		return nil, err
	}
	if s.transcripts != nil && !out.Failed {
		if err := s.transcripts.AppendExchange(saveCtx, sess.ID, st.ID, userMsg, out.Message); err != nil {
			log.Warn("chat transcript write failed", logger.Err(err))
		}
	}

	return out, nil
}

// Session returns the student's session for display.
func (s *ChatService) Session(ctx context.Context, st *student.Student, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, chat.ErrSessionNotFound
	}
	return s.Open(ctx, st, sessionID)
}

// Transcript returns the durable transcript of a session. Without a
// transcript store it falls back to the live session.
func (s *ChatService) Transcript(ctx context.Context, st *student.Student, sessionID string) ([]chat.Message, error) {
	if s.transcripts == nil {
		sess, err := s.Session(ctx, st, sessionID)
		if err != nil {
			return nil, err
		}
		return sess.History(), nil
	}
	return s.transcripts.ListBySession(ctx, st.ID, sessionID)
}

// Close forgets a session.
func (s *ChatService) Close(ctx context.Context, st *student.Student, sessionID string) error {
	if _, err := s.Session(ctx, st, sessionID); err != nil {
		return err
	}
	return s.store.Delete(ctx, sessionID)
}
