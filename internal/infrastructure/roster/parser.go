package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARSE RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Warnings counts silent normalizations made while parsing. They never fail
// a row and exist for logging only.
type Warnings struct {
	// InvalidGrades counts non-empty grade tokens outside the grade set.
	InvalidGrades int

	// InvalidNumerics counts non-empty attendance values that are not numbers.
	InvalidNumerics int

	// InvalidSections counts section tokens other than A or B. The student
	// is kept; it just matches no section filter.
	InvalidSections int
}

// ParseResult is the outcome of parsing a roster blob.
type ParseResult struct {
	// Students in source order with IDs std-<row index>.
	Students []*student.Student

	// Errors lists every skipped row.
	Errors []*student.MalformedRowError

	Warnings Warnings
}

// Err joins the row errors, or returns nil when every row parsed.
func (r *ParseResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSER
// ══════════════════════════════════════════════════════════════════════════════

// Parser maps delimited rows through a column layout.
type Parser struct {
	layout *Layout
}

// NewParser creates a parser for a validated layout.
func NewParser(layout *Layout) (*Parser, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Parser{layout: layout}, nil
}

var defaultParser = &Parser{layout: DefaultLayout()}

// Parse parses blob with the default layout.
//
// Lines are split on '\n'; blank lines are dropped before indexing, so the
// row index and the std-<index> ID count surviving lines only. Fields are
// split on ',' with no quoting support. Rows shorter than the layout are
// skipped and reported; extra trailing fields are ignored.
func Parse(blob string) *ParseResult {
	return defaultParser.Parse(blob)
}

// Parse parses blob with the parser's layout.
func (p *Parser) Parse(blob string) *ParseResult {
	res := &ParseResult{}
	width := p.layout.Width()

	row := 0
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		index := row
		row++

		fields := strings.Split(line, ",")
		if len(fields) < width {
			res.Errors = append(res.Errors, &student.MalformedRowError{
				Row:    index,
				Fields: len(fields),
				Want:   width,
			})
			continue
		}

		res.Students = append(res.Students, p.student(index, fields, &res.Warnings))
	}
	return res
}

func (p *Parser) student(index int, fields []string, w *Warnings) *student.Student {
	get := func(name string) string {
		return strings.TrimSpace(fields[p.layout.Offset(name)])
	}

	s := &student.Student{
		ID:         fmt.Sprintf("std-%d", index),
		Section:    section(get(ColSection), w),
		Name:       get(ColName),
		Gender:     get(ColGender),
		FatherName: get(ColFatherName),
		MotherName: get(ColMotherName),
		FA3:        student.EmptyExam(),
		SA2:        student.EmptyExam(),
	}

	s.FA1 = p.exam(student.SlotFA1, get, w)
	s.FA2 = p.exam(student.SlotFA2, get, w)
	s.SA1 = p.exam(student.SlotSA1, get, w)

	s.Attendance = student.AttendanceRecord{
		TotalWorkingDaysUntilNov:  student.WorkingDaysUntilNov,
		TotalAttendedDaysUntilNov: numeric(get(ColAttended), w),
	}
	for _, m := range ReportedMonths {
		s.Attendance.Months.Set(m, numeric(get(MonthCol(m)), w))
	}
	return s
}

func (p *Parser) exam(slot student.ExamSlot, get func(string) string, w *Warnings) student.ExamResult {
	var e student.ExamResult
	for _, subj := range student.Subjects {
		e.SetMark(subj, student.SubjectMark{
			Marks: get(MarksCol(slot, subj)),
			Grade: grade(get(GradeCol(slot, subj)), w),
		})
	}
	e.Total = get(ExamCol(slot, "total"))
	e.Grade = grade(get(ExamCol(slot, "grade")), w)
	e.Result = student.ParseResult(get(ExamCol(slot, "result")))
	e.Rank = get(ExamCol(slot, "rank"))
	return e
}

func section(raw string, w *Warnings) student.Section {
	sec := student.Section(strings.ToUpper(raw))
	if !sec.IsValid() {
		w.InvalidSections++
	}
	return sec
}

func grade(raw string, w *Warnings) student.Grade {
	g, ok := student.ParseGrade(raw)
	if !ok {
		w.InvalidGrades++
	}
	return g
}

// numeric keeps the raw value and only counts it when it will read as 0.
func numeric(raw string, w *Warnings) string {
	if raw == "" {
		return raw
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		w.InvalidNumerics++
	}
	return raw
}
