package roster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
)

// row builds a 66-field row; overrides replace fields by offset.
func row(section, name string, overrides map[int]string) string {
	fields := make([]string, 66)
	fields[0], fields[1], fields[2], fields[3], fields[4] = section, name, "M", "FATHER", "MOTHER"
	for i := 59; i < 65; i++ {
		fields[i] = "20"
	}
	fields[65] = "90"
	for off, v := range overrides {
		fields[off] = v
	}
	return strings.Join(fields, ",")
}

func TestDefaultLayout(t *testing.T) {
	l := DefaultLayout()
	require.NoError(t, l.Validate())

	assert.Equal(t, 66, l.Width())
	assert.Equal(t, 0, l.Offset(ColSection))
	assert.Equal(t, 5, l.Offset(MarksCol(student.SlotFA1, student.SubjectTelugu)))
	assert.Equal(t, 22, l.Offset(ExamCol(student.SlotFA1, "rank")))
	assert.Equal(t, 23, l.Offset(MarksCol(student.SlotFA2, student.SubjectTelugu)))
	assert.Equal(t, 41, l.Offset(MarksCol(student.SlotSA1, student.SubjectTelugu)))
	assert.Equal(t, 58, l.Offset(ExamCol(student.SlotSA1, "rank")))
	assert.Equal(t, 59, l.Offset(MonthCol(student.June)))
	assert.Equal(t, 64, l.Offset(MonthCol(student.November)))
	assert.Equal(t, 65, l.Offset(ColAttended))
	assert.Equal(t, -1, l.Offset("fa3.total"))
}

func TestLayout_ValidateDrift(t *testing.T) {
	cols := DefaultLayout().Columns()

	dup := append([]Column(nil), cols...)
	dup[7].Offset = 6
	err := NewLayout(dup).Validate()
	assert.ErrorIs(t, err, shared.ErrSchemaDrift)
	assert.Contains(t, err.Error(), "share offset 6")

	short := append([]Column(nil), cols[:65]...)
	err = NewLayout(short).Validate()
	assert.ErrorIs(t, err, shared.ErrSchemaDrift)

	renamed := append([]Column(nil), cols...)
	renamed[1].Name = "full_name"
	err = NewLayout(renamed).Validate()
	assert.ErrorIs(t, err, shared.ErrSchemaDrift)
	assert.Contains(t, err.Error(), `missing column "name"`)

	assert.Error(t, NewLayout(nil).Validate())

	_, err = NewParser(NewLayout(short))
	assert.ErrorIs(t, err, shared.ErrInvalidEntity)
}

func TestParse_IDsFollowSurvivingLines(t *testing.T) {
	blob := "\n" + row("A", "RAMU", nil) + "\n   \n" + row("B", "SITA", nil) + "\r\n\n" + row("A", "GOPI", nil)

	res := Parse(blob)
	require.NoError(t, res.Err())
	require.Len(t, res.Students, 3)

	for i, s := range res.Students {
		assert.Equal(t, "std-"+strconv.Itoa(i), s.ID)
	}
	assert.Equal(t, "SITA", res.Students[1].Name)
	assert.Equal(t, student.SectionB, res.Students[1].Section)
	assert.Equal(t, "90", res.Students[1].Attendance.TotalAttendedDaysUntilNov)
}

func TestParse_FieldMapping(t *testing.T) {
	res := Parse(row("A", " RAVI ", map[int]string{
		5: " 45 ", 6: "a1",
		19: "300", 20: "a2", 21: "pass", 22: "2",
		25: "40", 26: "zz",
		41: "97", 42: "A1", 57: "fail", 58: "1",
		59: "22", 62: "x", 65: "115",
	}))
	require.Len(t, res.Students, 1)
	s := res.Students[0]

	assert.Equal(t, "RAVI", s.Name)
	assert.Equal(t, student.SubjectMark{Marks: "45", Grade: student.GradeA1}, s.FA1.Telugu)
	assert.Equal(t, "300", s.FA1.Total)
	assert.Equal(t, student.GradeA2, s.FA1.Grade)
	assert.Equal(t, student.ResultPass, s.FA1.Result)
	assert.Equal(t, "2", s.FA1.Rank)

	assert.Equal(t, student.SubjectMark{Marks: "40", Grade: student.GradeNone}, s.FA2.Hindi)
	assert.Equal(t, student.SubjectMark{Marks: "97", Grade: student.GradeA1}, s.SA1.Telugu)
	assert.Equal(t, student.ResultFail, s.SA1.Result)

	assert.Equal(t, "22", s.Attendance.Months.June)
	assert.Equal(t, "x", s.Attendance.Months.September)
	assert.Equal(t, "", s.Attendance.Months.December)
	assert.Equal(t, "", s.Attendance.Months.April)
	assert.Equal(t, student.WorkingDaysUntilNov, s.Attendance.TotalWorkingDaysUntilNov)
	assert.Equal(t, 96, s.Attendance.Percentage())

	assert.Equal(t, 1, res.Warnings.InvalidGrades)
	assert.Equal(t, 1, res.Warnings.InvalidNumerics)
	assert.Zero(t, res.Warnings.InvalidSections)
}

func TestParse_InvalidSectionCounted(t *testing.T) {
	res := Parse(strings.Join([]string{
		row("a", "RAMU", nil),
		row("C", "SITA", nil),
		row("", "GITA", nil),
	}, "\n"))
	require.Len(t, res.Students, 3)

	assert.Equal(t, student.SectionA, res.Students[0].Section)
	assert.Equal(t, student.Section("C"), res.Students[1].Section)
	assert.Equal(t, 2, res.Warnings.InvalidSections)
}

func TestParse_UnadministeredExamsAreEmpty(t *testing.T) {
	res := Parse(row("A", "RAMU", nil) + "\n" + row("B", "SITA", nil))
	for _, s := range res.Students {
		assert.True(t, s.FA3.IsEmpty())
		assert.True(t, s.SA2.IsEmpty())
		assert.Equal(t, student.EmptyExam(), s.FA3)
		assert.Equal(t, student.EmptyExam(), s.SA2)
	}
}

func TestParse_ShortRowReportedAndSkipped(t *testing.T) {
	blob := strings.Join([]string{
		row("A", "RAMU", nil),
		"A,BROKEN,M",
		row("B", "SITA", nil),
	}, "\n")

	res := Parse(blob)
	require.Len(t, res.Students, 2)
	require.Len(t, res.Errors, 1)

	assert.Equal(t, 1, res.Errors[0].Row)
	assert.Equal(t, 3, res.Errors[0].Fields)
	assert.Equal(t, 66, res.Errors[0].Want)

	// The skipped row still consumes its index.
	assert.Equal(t, "std-0", res.Students[0].ID)
	assert.Equal(t, "std-2", res.Students[1].ID)

	err := res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrMalformedRow))
	mr, ok := student.AsMalformedRow(err)
	require.True(t, ok)
	assert.Equal(t, 1, mr.Row)
}

func TestParse_ExtraFieldsIgnored(t *testing.T) {
	res := Parse(row("A", "RAMU", nil) + ",extra,fields")
	require.Len(t, res.Students, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "90", res.Students[0].Attendance.TotalAttendedDaysUntilNov)
}

func TestParse_Empty(t *testing.T) {
	res := Parse("\n \n")
	assert.Empty(t, res.Students)
	assert.NoError(t, res.Err())
}

func TestParse_Idempotent(t *testing.T) {
	a := Parse(Embedded())
	b := Parse(Embedded())
	assert.True(t, reflect.DeepEqual(a, b))
}

func TestParse_RoundTripAttendance(t *testing.T) {
	res := Parse(Embedded())
	require.NotEmpty(t, res.Students)

	for _, s := range res.Students {
		attended, err := strconv.ParseFloat(s.Attendance.TotalAttendedDaysUntilNov, 64)
		require.NoError(t, err)
		pct := s.Attendance.Percentage()
		back := float64(pct) * float64(s.Attendance.TotalWorkingDaysUntilNov) / 100
		assert.InDelta(t, attended, back, 1, s.ID)
	}
}

func TestParse_EmbeddedRoster(t *testing.T) {
	res := Parse(Embedded())
	require.NoError(t, res.Err())
	assert.Len(t, res.Students, 10)
	assert.Zero(t, res.Warnings.InvalidGrades)
	assert.Zero(t, res.Warnings.InvalidNumerics)
	assert.Zero(t, res.Warnings.InvalidSections)

	r, err := student.NewRoster(res.Students)
	require.NoError(t, err)
	counts := r.CountBySection()
	assert.Equal(t, 5, counts[student.SectionA])
	assert.Equal(t, 5, counts[student.SectionB])

	// Экспорт содержит три экзамена с D1 и колонкой FAIL.
	var conflicts []string
	for _, s := range res.Students {
		for _, c := range s.ResultConflicts() {
			assert.Equal(t, student.GradeD1, c.Grade)
			assert.Equal(t, student.ResultFail, c.Explicit)
			assert.Equal(t, student.ResultPass, c.Derived)
			conflicts = append(conflicts, s.ID+" "+string(c.Slot))
		}
	}
	assert.Equal(t, []string{"std-2 fa1", "std-6 fa1", "std-6 sa1"}, conflicts)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	r, report, err := Load(ctx, LoadOptions{CheckConsistency: true}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 10, r.Len())
	assert.Equal(t, "embedded", report.Source)
	assert.Zero(t, report.SkippedRows)
	assert.Equal(t, 3, report.Conflicts)

	_, report, err = Load(ctx, LoadOptions{}, logger.Nop())
	require.NoError(t, err)
	assert.Zero(t, report.Conflicts, "conflicts are only counted when checking consistency")

	dir := t.TempDir()
	path := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(row("B", "SITA", nil)+"\nB,SHORT\n"+row("D", "GITA", nil)), 0o600))

	r, report, err = Load(ctx, LoadOptions{Path: path}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 1, report.SkippedRows)
	assert.Equal(t, 1, report.InvalidSections)
	assert.Equal(t, path, report.Source)

	_, _, err = Load(ctx, LoadOptions{Path: filepath.Join(dir, "missing.csv")}, logger.Nop())
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, os.WriteFile(path, []byte("A,SHORT\n"), 0o600))
	_, _, err = Load(ctx, LoadOptions{Path: path}, logger.Nop())
	assert.ErrorIs(t, err, shared.ErrEmptyRoster)
}
