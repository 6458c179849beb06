// Package roster turns the school's delimited roster export into domain
// students. It is the anti-corruption layer between the spreadsheet the
// school maintains and the student domain model.
package roster

import (
	"fmt"
	"sort"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLUMN LAYOUT
// ══════════════════════════════════════════════════════════════════════════════

// Column names a single field of a roster row.
type Column struct {
	Name   string
	Offset int
}

// Layout is the ordered column layout of a roster row. It is plain data and
// is validated once at startup so that a drifting export fails fast.
type Layout struct {
	columns []Column
	index   map[string]int
}

// Column name helpers. Exam columns are "<slot>.<subject>.marks",
// "<slot>.<subject>.grade" and "<slot>.total|grade|result|rank".
const (
	ColSection    = "section"
	ColName       = "name"
	ColGender     = "gender"
	ColFatherName = "father_name"
	ColMotherName = "mother_name"
	ColAttended   = "attendance.total"
)

// MarksCol returns the column name of a subject's marks in an exam slot.
func MarksCol(slot student.ExamSlot, s student.Subject) string {
	return fmt.Sprintf("%s.%s.marks", slot, s)
}

// GradeCol returns the column name of a subject's grade in an exam slot.
func GradeCol(slot student.ExamSlot, s student.Subject) string {
	return fmt.Sprintf("%s.%s.grade", slot, s)
}

// ExamCol returns the column name of an exam aggregate field.
func ExamCol(slot student.ExamSlot, field string) string {
	return fmt.Sprintf("%s.%s", slot, field)
}

// MonthCol returns the column name of a month's attended days.
func MonthCol(m student.Month) string {
	return "attendance." + string(m)
}

// ReportedSlots are the exam slots present in the export. FA3 and SA2 are
// not administered yet and have no columns.
var ReportedSlots = []student.ExamSlot{student.SlotFA1, student.SlotFA2, student.SlotSA1}

// ReportedMonths are the months present in the export.
var ReportedMonths = []student.Month{
	student.June, student.July, student.August,
	student.September, student.October, student.November,
}

// NewLayout builds a layout from explicit columns. Call Validate before use.
func NewLayout(columns []Column) *Layout {
	l := &Layout{
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	copy(l.columns, columns)
	for _, c := range columns {
		l.index[c.Name] = c.Offset
	}
	return l
}

// DefaultLayout returns the 66-column layout of the current export:
// identity 0-4, FA1 5-22, FA2 23-40, SA1 41-58, June-November 59-64 and
// the attended total at 65.
func DefaultLayout() *Layout {
	names := []string{ColSection, ColName, ColGender, ColFatherName, ColMotherName}
	for _, slot := range ReportedSlots {
		for _, s := range student.Subjects {
			names = append(names, MarksCol(slot, s), GradeCol(slot, s))
		}
		names = append(names,
			ExamCol(slot, "total"),
			ExamCol(slot, "grade"),
			ExamCol(slot, "result"),
			ExamCol(slot, "rank"),
		)
	}
	for _, m := range ReportedMonths {
		names = append(names, MonthCol(m))
	}
	names = append(names, ColAttended)

	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Offset: i}
	}
	return NewLayout(cols)
}

// Width returns the number of fields a row must have.
func (l *Layout) Width() int {
	return len(l.columns)
}

// Offset returns the field offset of a column, or -1 if it is unknown.
func (l *Layout) Offset(name string) int {
	off, ok := l.index[name]
	if !ok {
		return -1
	}
	return off
}

// Columns returns a copy of the layout's columns in offset order.
func (l *Layout) Columns() []Column {
	out := make([]Column, len(l.columns))
	copy(out, l.columns)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Validate checks that names are unique, offsets cover 0..Width-1 exactly
// once, and every column the parser reads is present.
func (l *Layout) Validate() error {
	if len(l.columns) == 0 {
		return drift("layout has no columns")
	}

	seenName := make(map[string]struct{}, len(l.columns))
	seenOffset := make(map[int]string, len(l.columns))
	for _, c := range l.columns {
		if _, dup := seenName[c.Name]; dup {
			return drift("duplicate column %q", c.Name)
		}
		seenName[c.Name] = struct{}{}

		if c.Offset < 0 || c.Offset >= len(l.columns) {
			return drift("column %q offset %d outside 0..%d", c.Name, c.Offset, len(l.columns)-1)
		}
		if other, dup := seenOffset[c.Offset]; dup {
			return drift("columns %q and %q share offset %d", other, c.Name, c.Offset)
		}
		seenOffset[c.Offset] = c.Name
	}

	for _, name := range requiredColumns() {
		if _, ok := l.index[name]; !ok {
			return drift("missing column %q", name)
		}
	}
	return nil
}

func requiredColumns() []string {
	return DefaultLayout().names()
}

func (l *Layout) names() []string {
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.Name
	}
	return out
}

func drift(format string, args ...any) error {
	return shared.WrapError("roster", "ValidateLayout", shared.ErrSchemaDrift,
		"column layout is inconsistent", fmt.Errorf(format, args...))
}
