// Package command contains write operations (CQRS - Commands).
//
// Команды табеля обращаются к AI-провайдеру: анализ успеваемости, чат с
// цифровым наставником и голосовой помощник. Каждая команда проверяет
// ученика по ростеру и флаг функции до обращения к сервису.
package command

import (
	"context"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// Features decides per-student feature toggles.
type Features interface {
	EnabledFor(feature, studentID, section string) bool
}

// resolveStudent looks the student up and checks the feature gate.
// nil features means everything is enabled.
func resolveStudent(ctx context.Context, roster student.Reader, features Features, feature, op, studentID string) (*student.Student, error) {
	if studentID == "" {
		return nil, shared.NewDomainError("command", op, shared.ErrValidation, "student_id is required")
	}
	s, err := roster.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if features != nil && !features.EnabledFor(feature, s.ID, string(s.Section)) {
		return nil, shared.WrapError("command", op, shared.ErrFeatureDisabled, feature+" is disabled", shared.ErrFeatureDisabled)
	}
	return s, nil
}
