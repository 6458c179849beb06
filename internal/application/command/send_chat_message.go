package command

import (
	"context"
	"strings"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND CHAT MESSAGE COMMAND
// Сообщение родителя цифровому наставнику. Ответ приходит частями через
// onChunk; сессия привязана к ученику.
// ══════════════════════════════════════════════════════════════════════════════

// ChatSender runs mentor conversations.
type ChatSender interface {
	Open(ctx context.Context, s *student.Student, sessionID string) (*chat.Session, error)
	Send(ctx context.Context, s *student.Student, sessionID, text string, onChunk func(string) error) (*chat.Reply, error)
}

// SendChatMessageCommand содержит сообщение.
type SendChatMessageCommand struct {
	StudentID string

	// SessionID - пусто для новой сессии.
	SessionID string

	Message string
}

// Validate проверяет команду.
func (c SendChatMessageCommand) Validate() error {
	return chat.ValidateUserText(c.Message)
}

// SendChatMessageHandler обрабатывает SendChatMessageCommand.
type SendChatMessageHandler struct {
	roster   student.Reader
	chat     ChatSender
	features Features
	log      *logger.Logger
}

// NewSendChatMessageHandler создаёт обработчик.
func NewSendChatMessageHandler(roster student.Reader, sender ChatSender, features Features, log *logger.Logger) *SendChatMessageHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SendChatMessageHandler{
		roster:   roster,
		chat:     sender,
		features: features,
		log:      log.With(logger.Component("send_chat_message")),
	}
}

// Prepare validates the command and opens the session before anything is
// streamed, so callers can still answer with a plain error status.
func (h *SendChatMessageHandler) Prepare(ctx context.Context, cmd SendChatMessageCommand) (*student.Student, *chat.Session, error) {
	if err := cmd.Validate(); err != nil {
		return nil, nil, err
	}
	s, err := resolveStudent(ctx, h.roster, h.features, config.FeatureAIChat, "SendChatMessage",
		strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, nil, err
	}
	sess, err := h.chat.Open(ctx, s, strings.TrimSpace(cmd.SessionID))
	if err != nil {
		return nil, nil, err
	}
	return s, sess, nil
}

// Handle выполняет команду.
func (h *SendChatMessageHandler) Handle(ctx context.Context, cmd SendChatMessageCommand, onChunk func(string) error) (*chat.Reply, error) {
	s, sess, err := h.Prepare(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return h.Send(ctx, s, sess.ID, cmd.Message, onChunk)
}

// Send streams the reply for an already prepared session.
func (h *SendChatMessageHandler) Send(ctx context.Context, s *student.Student, sessionID, text string, onChunk func(string) error) (*chat.Reply, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	reply, err := h.chat.Send(ctx, s, sessionID, text, onChunk)
	if err != nil {
		return nil, err
	}
	if reply.Failed {
		h.log.Warn("chat answered with apology", logger.StudentID(s.ID), logger.SessionID(reply.SessionID))
	}
	return reply, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// END CHAT SESSION COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ChatCloser forgets sessions.
type ChatCloser interface {
	Close(ctx context.Context, s *student.Student, sessionID string) error
}

// EndChatSessionCommand закрывает сессию, например при смене ученика.
type EndChatSessionCommand struct {
	StudentID string
	SessionID string
}

// EndChatSessionHandler обрабатывает EndChatSessionCommand.
type EndChatSessionHandler struct {
	roster student.Reader
	closer ChatCloser
}

// NewEndChatSessionHandler создаёт обработчик.
func NewEndChatSessionHandler(roster student.Reader, closer ChatCloser) *EndChatSessionHandler {
	return &EndChatSessionHandler{roster: roster, closer: closer}
}

// Handle выполняет команду.
func (h *EndChatSessionHandler) Handle(ctx context.Context, cmd EndChatSessionCommand) error {
	s, err := h.roster.GetByID(ctx, strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return err
	}
	return h.closer.Close(ctx, s, strings.TrimSpace(cmd.SessionID))
}
