package query

import (
	"context"
	"strings"

	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/chat"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHAT HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// Transcripts reads stored conversations.
type Transcripts interface {
	Transcript(ctx context.Context, s *student.Student, sessionID string) ([]chat.Message, error)
}

// GetChatHistoryQuery содержит параметры запроса.
type GetChatHistoryQuery struct {
	StudentID string
	SessionID string
}

// Validate проверяет запрос.
func (q GetChatHistoryQuery) Validate() error {
	if strings.TrimSpace(q.StudentID) == "" {
		return shared.NewDomainError("query", "GetChatHistory", shared.ErrValidation, "student_id is required")
	}
	if strings.TrimSpace(q.SessionID) == "" {
		return shared.NewDomainError("query", "GetChatHistory", shared.ErrValidation, "session_id is required")
	}
	return nil
}

// ChatHistoryDTO - переписка одной сессии.
type ChatHistoryDTO struct {
	SessionID string         `json:"session_id"`
	StudentID string         `json:"student_id"`
	Messages  []chat.Message `json:"messages"`
}

// GetChatHistoryHandler обрабатывает GetChatHistoryQuery.
type GetChatHistoryHandler struct {
	roster      student.Reader
	transcripts Transcripts
}

// NewGetChatHistoryHandler создаёт обработчик.
func NewGetChatHistoryHandler(roster student.Reader, transcripts Transcripts) *GetChatHistoryHandler {
	return &GetChatHistoryHandler{roster: roster, transcripts: transcripts}
}

// Handle выполняет запрос.
func (h *GetChatHistoryHandler) Handle(ctx context.Context, q GetChatHistoryQuery) (*ChatHistoryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s, err := h.roster.GetByID(ctx, strings.TrimSpace(q.StudentID))
	if err != nil {
		return nil, err
	}
	msgs, err := h.transcripts.Transcript(ctx, s, strings.TrimSpace(q.SessionID))
	if err != nil {
		return nil, err
	}
	return &ChatHistoryDTO{SessionID: q.SessionID, StudentID: s.ID, Messages: msgs}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYSIS HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// AnalysisHistory reads past analyses of a student.
type AnalysisHistory interface {
	History(ctx context.Context, studentID string, limit int) ([]*analysis.Record, error)
}

// GetAnalysisHistoryQuery содержит параметры запроса.
type GetAnalysisHistoryQuery struct {
	StudentID string

	// Limit - по умолчанию 10, не больше 50.
	Limit int
}

// GetAnalysisHistoryHandler обрабатывает GetAnalysisHistoryQuery.
type GetAnalysisHistoryHandler struct {
	roster  student.Reader
	history AnalysisHistory
}

// NewGetAnalysisHistoryHandler создаёт обработчик.
func NewGetAnalysisHistoryHandler(roster student.Reader, history AnalysisHistory) *GetAnalysisHistoryHandler {
	return &GetAnalysisHistoryHandler{roster: roster, history: history}
}

// Handle returns analyses newest first. Records computed from older data
// stay in the list; Current marks the one matching today's data.
func (h *GetAnalysisHistoryHandler) Handle(ctx context.Context, q GetAnalysisHistoryQuery) ([]AnalysisRecordDTO, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 50 {
		q.Limit = 50
	}
	s, err := h.roster.GetByID(ctx, strings.TrimSpace(q.StudentID))
	if err != nil {
		return nil, err
	}
	recs, err := h.history.History(ctx, s.ID, q.Limit)
	if err != nil {
		return nil, err
	}
	fp := s.Fingerprint()
	out := make([]AnalysisRecordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, AnalysisRecordDTO{Record: *r, Current: r.Fingerprint == fp})
	}
	return out, nil
}

// AnalysisRecordDTO - сохранённый анализ.
type AnalysisRecordDTO struct {
	analysis.Record
	Current bool `json:"current"`
}
