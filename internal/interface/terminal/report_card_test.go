package terminal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/application/command"
	"github.com/sppzpp/reportcard-hub/internal/application/query"
	"github.com/sppzpp/reportcard-hub/internal/domain/analysis"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

func testCard(t *testing.T, features query.Features) *query.ReportCardDTO {
	t.Helper()

	ramu := &student.Student{
		ID:         "std-3",
		Section:    student.SectionB,
		Name:       "K. RAMU",
		Gender:     "M",
		FatherName: "K. SATYANARAYANA",
		MotherName: "K. LAKSHMI",
		Attendance: student.AttendanceRecord{
			TotalWorkingDaysUntilNov:  student.WorkingDaysUntilNov,
			TotalAttendedDaysUntilNov: "90",
		},
	}
	ramu.FA1 = student.ExamResult{Total: "240", Grade: student.GradeB1, Result: student.ResultPass, Rank: "5"}
	ramu.FA1.SetMark(student.SubjectMaths, student.SubjectMark{Marks: "32", Grade: student.GradeB2})
	ramu.SA1 = student.ExamResult{Total: "410", Grade: student.GradeD2, Result: student.ResultPass, Rank: "7"}
	ramu.Attendance.Months.Set(student.June, "20")

	roster, err := student.NewRoster([]*student.Student{ramu})
	require.NoError(t, err)
	school, err := config.LoadSchoolProfile("")
	require.NoError(t, err)

	h := query.NewGetReportCardHandler(roster, school, features, nil)
	return h.Build(ramu, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
}

type featureSet map[string]bool

func (f featureSet) EnabledFor(feature, _, _ string) bool {
	enabled, ok := f[feature]
	return !ok || enabled
}

func TestReportCardPresenter_Render(t *testing.T) {
	card := testCard(t, nil)

	var buf bytes.Buffer
	out := NewReportCardPresenter(&buf).Render(card)

	assert.Contains(t, out, "K. RAMU")
	assert.Contains(t, out, card.School.Name)
	assert.Contains(t, out, "32/50")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, card.Attendance.Message)
	assert.Contains(t, out, card.Contacts.Teacher.Phone)
	require.NotNil(t, card.Countdown)
	assert.Contains(t, out, card.Countdown.Heading)
	assert.Contains(t, out, "16.03.2026")
	assert.Contains(t, out, "Generated: 01.01.2026 15:30")

	// Итог экзамена берётся из оценки, а не из колонки result.
	assert.Contains(t, out, "D2 FAIL")
	assert.NotContains(t, out, "D2 PASS")
	assert.Contains(t, out, "Data warnings")

	// Вывод в буфер идёт без ANSI-последовательностей.
	assert.NotContains(t, out, "\x1b[")
}

func TestReportCardPresenter_RenderWithoutCountdown(t *testing.T) {
	card := testCard(t, featureSet{config.FeatureReportCountdown: false})
	require.Nil(t, card.Countdown)

	var buf bytes.Buffer
	out := NewReportCardPresenter(&buf).Render(card)

	assert.Contains(t, out, "K. RAMU")
	assert.NotContains(t, out, "16.03.2026")
}

func TestReportCardPresenter_RenderAnalysis(t *testing.T) {
	var buf bytes.Buffer
	p := NewReportCardPresenter(&buf)

	res := &command.AnalyzeStudentResult{
		StudentID: "std-3",
		Result: analysis.Result{
			Analysis: analysis.AIAnalysis{Success: "Good in maths", Decline: "Hindi dropped", WeakSubjects: "Hindi"},
			Source:   analysis.SourceModel,
		},
	}
	out := p.RenderAnalysis(res)
	assert.Contains(t, out, "Good in maths")
	assert.Contains(t, out, "Hindi dropped")
	assert.NotContains(t, out, "(offline)")

	res.Fallback = true
	assert.Contains(t, p.RenderAnalysis(res), "(offline)")
}
