package student

import (
	"context"
	"strings"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// Roster - неизменяемый список учеников в порядке строк исходных данных.
// После NewRoster ничего не мутирует, поэтому методы безопасны для
// конкурентного вызова.
type Roster struct {
	students []*Student
	byID     map[string]*Student
}

// NewRoster builds a roster. IDs must be unique.
func NewRoster(students []*Student) (*Roster, error) {
	if len(students) == 0 {
		return nil, shared.ErrEmptyRoster
	}
	r := &Roster{
		students: make([]*Student, 0, len(students)),
		byID:     make(map[string]*Student, len(students)),
	}
	for _, s := range students {
		if s == nil {
			continue
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, shared.NewDomainError("student", "NewRoster", shared.ErrInvalidEntity,
				"duplicate student id "+s.ID)
		}
		r.byID[s.ID] = s
		r.students = append(r.students, s)
	}
	return r, nil
}

// Len returns the number of students.
func (r *Roster) Len() int {
	return len(r.students)
}

// All returns the students in source order. The slice is a copy.
func (r *Roster) All() []*Student {
	out := make([]*Student, len(r.students))
	copy(out, r.students)
	return out
}

// First returns the first student of the roster.
func (r *Roster) First() *Student {
	return r.students[0]
}

// Get returns a student by ID.
func (r *Roster) Get(id string) (*Student, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

// Filter returns the students of a section whose name contains query,
// case-insensitively. An empty section matches every section.
func (r *Roster) Filter(section Section, query string) []*Student {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*Student
	for _, s := range r.students {
		if section != "" && s.Section != section {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(s.Name), q) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// FirstInSection returns the first student in source order of a section.
func (r *Roster) FirstInSection(section Section) (*Student, error) {
	if !section.IsValid() {
		return nil, shared.ErrInvalidSection
	}
	for _, s := range r.students {
		if s.Section == section {
			return s, nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

// CountBySection returns how many students each section has.
func (r *Roster) CountBySection() map[Section]int {
	out := make(map[Section]int, len(Sections))
	for _, s := range r.students {
		out[s.Section]++
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Reader implementation
// ──────────────────────────────────────────────────────────────────────────────

var _ Reader = (*Roster)(nil)

// GetByID implements Reader.
func (r *Roster) GetByID(_ context.Context, id string) (*Student, error) {
	return r.Get(id)
}

// List implements Reader.
func (r *Roster) List(_ context.Context, opts ListOptions) ([]*Student, error) {
	if opts.Section != "" && !opts.Section.IsValid() {
		return nil, shared.ErrInvalidSection
	}
	found := r.Filter(opts.Section, opts.Query)
	return opts.apply(found), nil
}
