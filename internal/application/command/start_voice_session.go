package command

import (
	"context"
	"strings"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// START VOICE SESSION COMMAND
// Проверки перед открытием голосовой сессии. Сам relay запускает транспорт
// после upgrade соединения, поэтому команда только разрешает старт.
// ══════════════════════════════════════════════════════════════════════════════

// StartVoiceSessionCommand содержит ID ученика.
type StartVoiceSessionCommand struct {
	StudentID string
}

// StartVoiceSessionHandler обрабатывает StartVoiceSessionCommand.
type StartVoiceSessionHandler struct {
	roster     student.Reader
	features   Features
	configured bool
}

// NewStartVoiceSessionHandler создаёт обработчик. configured=false means no
// provider key is set and every start is refused.
func NewStartVoiceSessionHandler(roster student.Reader, features Features, configured bool) *StartVoiceSessionHandler {
	return &StartVoiceSessionHandler{roster: roster, features: features, configured: configured}
}

// Handle returns the student the session is about.
func (h *StartVoiceSessionHandler) Handle(ctx context.Context, cmd StartVoiceSessionCommand) (*student.Student, error) {
	s, err := resolveStudent(ctx, h.roster, h.features, config.FeatureAIVoice, "StartVoiceSession",
		strings.TrimSpace(cmd.StudentID))
	if err != nil {
		return nil, err
	}
	if !h.configured {
		return nil, shared.ErrGeminiNotConfigured
	}
	return s, nil
}
