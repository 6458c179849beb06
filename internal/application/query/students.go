// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"strings"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Список учеников для селектора: фильтр по секции и поиск по имени.
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery содержит параметры выборки.
type ListStudentsQuery struct {
	// Section - "A", "B" или пусто для всех секций.
	Section string

	// Search - подстрока имени без учёта регистра.
	Search string

	// Limit - максимум записей (по умолчанию 100, не больше 500).
	Limit int

	// Offset - смещение.
	Offset int
}

// Validate проверяет и нормализует параметры.
func (q *ListStudentsQuery) Validate() error {
	q.Section = strings.ToUpper(strings.TrimSpace(q.Section))
	if q.Section != "" && !student.Section(q.Section).IsValid() {
		return shared.ErrInvalidSection
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	return nil
}

// StudentSummaryDTO - строка селектора учеников.
type StudentSummaryDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Section           string `json:"section"`
	Gender            string `json:"gender"`
	AttendancePercent int    `json:"attendance_percent"`
}

// ListStudentsResult - результат выборки.
type ListStudentsResult struct {
	Students []StudentSummaryDTO `json:"students"`

	// Total - сколько учеников подошло до пагинации.
	Total int `json:"total"`

	// Sections - сколько учеников в каждой секции всего.
	Sections map[string]int `json:"sections"`
}

// ListStudentsHandler обрабатывает ListStudentsQuery.
type ListStudentsHandler struct {
	roster *student.Roster
}

// NewListStudentsHandler создаёт обработчик.
func NewListStudentsHandler(roster *student.Roster) *ListStudentsHandler {
	return &ListStudentsHandler{roster: roster}
}

// Handle выполняет запрос.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListStudents", shared.ErrValidation, err.Error(), err)
	}

	all := h.roster.Filter(student.Section(q.Section), q.Search)
	page, err := h.roster.List(ctx, student.ListOptions{
		Section: student.Section(q.Section),
		Query:   q.Search,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
	if err != nil {
		return nil, err
	}

	out := &ListStudentsResult{
		Students: make([]StudentSummaryDTO, 0, len(page)),
		Total:    len(all),
		Sections: make(map[string]int, len(student.Sections)),
	}
	for _, s := range page {
		out.Students = append(out.Students, Summary(s))
	}
	for sec, n := range h.roster.CountBySection() {
		out.Sections[string(sec)] = n
	}
	return out, nil
}

// Summary строит строку селектора.
func Summary(s *student.Student) StudentSummaryDTO {
	return StudentSummaryDTO{
		ID:                s.ID,
		Name:              s.Name,
		Section:           string(s.Section),
		Gender:            s.Gender,
		AttendancePercent: s.Attendance.Percentage(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentHandler returns the parsed record of one student, or the first
// student of a section when the selector switches sections.
type GetStudentHandler struct {
	roster *student.Roster
}

// NewGetStudentHandler создаёт обработчик.
func NewGetStudentHandler(roster *student.Roster) *GetStudentHandler {
	return &GetStudentHandler{roster: roster}
}

// ByID returns a student or shared.ErrStudentNotFound.
func (h *GetStudentHandler) ByID(ctx context.Context, id string) (*student.Student, error) {
	return h.roster.GetByID(ctx, strings.TrimSpace(id))
}

// FirstInSection returns the first student of the section in roster order.
func (h *GetStudentHandler) FirstInSection(_ context.Context, section string) (*student.Student, error) {
	return h.roster.FirstInSection(student.Section(strings.ToUpper(strings.TrimSpace(section))))
}

// Default returns the student shown before anything is selected.
func (h *GetStudentHandler) Default(_ context.Context) *student.Student {
	return h.roster.First()
}
