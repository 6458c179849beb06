// Package chat содержит доменную модель чата с цифровым наставником:
// сообщения, сессии, привязанные к ученику, и контракты хранения истории.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// Role - автор сообщения.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// IsValid проверяет роль.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleModel
}

// Message - одно сообщение диалога.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxMessageLength ограничивает длину пользовательского сообщения в рунах.
const MaxMessageLength = 2000

// ValidateUserText проверяет текст перед отправкой модели.
func ValidateUserText(text string) error {
	t := strings.TrimSpace(text)
	if t == "" {
		return shared.NewDomainError("chat", "Send", shared.ErrEmptyValue, "message is empty")
	}
	if n := len([]rune(t)); n > MaxMessageLength {
		return shared.NewDomainError("chat", "Send", shared.ErrValueOutOfRange,
			fmt.Sprintf("message has %d characters, max %d", n, MaxMessageLength))
	}
	return nil
}

// Greeting - первое сообщение модели в новой сессии.
func Greeting(studentName string) string {
	return "నమస్కారం! నేను " + studentName +
		" గారి విద్యా సహాయకుడిని. మార్కుల విశ్లేషణ లేదా చదువులో మెరుగుదల గురించి మీకు ఏవైనా సందేహాలు ఉంటే ఇక్కడ అడగండి."
}

// Apology - ответ модели, когда шлюз не смог ответить.
const Apology = "క్షమించండి, సర్వర్ సమస్య వల్ల సమాధానం ఇవ్వలేకపోతున్నాను."

// QuickQuestions - готовые вопросы, которые клиент может предложить родителю.
var QuickQuestions = []string{
	"నా మొత్తం మార్కుల రిపోర్ట్ చెప్పండి.",
	"గణితంలో (Maths) నేను ఎలా మెరుగుపడాలి?",
	"నా హాజరు (Attendance) శాతం బాగుందా?",
	"పబ్లిక్ పరీక్షలకు ప్రిపరేషన్ టిప్స్ ఇవ్వండి.",
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - диалог по одному ученику. Смена ученика означает новую сессию.
type Session struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession создаёт сессию с приветствием модели.
func NewSession(id, studentID, studentName string, now time.Time) *Session {
	return &Session{
		ID:        id,
		StudentID: studentID,
		Messages:  []Message{{Role: RoleModel, Text: Greeting(studentName), CreatedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append добавляет сообщение.
func (s *Session) Append(m Message) {
	s.Messages = append(s.Messages, m)
	if m.CreatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = m.CreatedAt
	}
}

// BelongsTo проверяет, что сессия принадлежит ученику.
func (s *Session) BelongsTo(studentID string) bool {
	return s.StudentID == studentID
}

// History возвращает сообщения для отправки модели, без приветствия:
// приветствие локальное, модель его не генерировала.
func (s *Session) History() []Message {
	if len(s.Messages) > 0 && s.Messages[0].Role == RoleModel {
		return s.Messages[1:]
	}
	return s.Messages
}

// Reply - итог одного сообщения пользователя.
type Reply struct {
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`

	// Failed - модель не ответила, Message содержит извинение.
	Failed bool `json:"failed"`

	// Partial - текст, полученный до сбоя потока. Хранится в истории
	// отдельным сообщением перед извинением.
	Partial *Message `json:"partial,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// HistoryStore хранит активные сессии (Redis или память).
type HistoryStore interface {
	// Load возвращает сессию или ошибку shared.ErrNotFound.
	Load(ctx context.Context, sessionID string) (*Session, error)

	// Save сохраняет сессию целиком и продлевает её TTL.
	Save(ctx context.Context, s *Session) error

	// Delete удаляет сессию.
	Delete(ctx context.Context, sessionID string) error
}

// TranscriptRepository сохраняет завершённые обмены репликами надолго (Postgres).
type TranscriptRepository interface {
	// AppendExchange сохраняет вопрос пользователя и ответ модели.
	AppendExchange(ctx context.Context, sessionID, studentID string, user, model Message) error

	// ListBySession возвращает сообщения сессии ученика по порядку.
	ListBySession(ctx context.Context, studentID, sessionID string) ([]Message, error)
}

// ErrSessionNotFound - сессия не найдена или истекла.
var ErrSessionNotFound = shared.NewDomainError("chat", "Load", shared.ErrNotFound, "chat session not found")

// ErrSessionMismatch - сессия принадлежит другому ученику.
var ErrSessionMismatch = shared.NewDomainError("chat", "Load", shared.ErrInvalidInput, "chat session belongs to another student")
