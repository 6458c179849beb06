package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/internal/infrastructure/roster"
	"github.com/sppzpp/reportcard-hub/pkg/logger"
	"github.com/sppzpp/reportcard-hub/pkg/timeutil"
)

func TestGetReportCardHandler_Handle(t *testing.T) {
	h := NewGetReportCardHandler(testRoster(t), testSchool(t), nil, nil)
	now := timeutil.DateTime(2026, time.January, 1, 0, 0, 0)

	card, err := h.Handle(context.Background(), GetReportCardQuery{StudentID: "std-3", Now: now})
	require.NoError(t, err)

	t.Run("profile", func(t *testing.T) {
		assert.Equal(t, "K. RAMU", card.Student.Name)
		assert.Equal(t, "K. SATYANARAYANA & K. LAKSHMI", card.Student.Parents)
		assert.Equal(t, "10వ తరగతి - సెక్షన్ B", card.Student.ClassLabel)
		assert.Equal(t, "28141190803", card.School.UDISE)
	})

	t.Run("formative table", func(t *testing.T) {
		fa := card.Formative
		require.Len(t, fa.Columns, 3)
		require.Len(t, fa.Rows, len(student.Subjects))
		assert.Equal(t, "FA-1", fa.Columns[0].Label)
		assert.True(t, fa.Columns[0].Administered)
		assert.Equal(t, "Total: 240", fa.Columns[0].TotalText)
		assert.Equal(t, "Rank: 5", fa.Columns[0].RankText)
		assert.False(t, fa.Columns[2].Administered)
		assert.Empty(t, fa.Columns[2].TotalText)

		maths := fa.Rows[3]
		assert.Equal(t, "maths", maths.Subject)
		assert.Equal(t, "32/50", maths.Cells[0].Text)
		assert.Equal(t, "PASS", maths.Cells[0].Result)
		assert.Empty(t, maths.Cells[1].Text)
		assert.Empty(t, maths.Cells[1].Result)
	})

	t.Run("summative result derived from grade", func(t *testing.T) {
		maths := card.Summative.Rows[3]
		assert.Equal(t, "28/100", maths.Cells[0].Text)
		assert.Equal(t, "FAIL", maths.Cells[0].Result)
	})

	t.Run("column result derived from grade", func(t *testing.T) {
		sa1 := card.Summative.Columns[0]
		assert.Equal(t, "D2", sa1.Grade)
		assert.Equal(t, "FAIL", sa1.Result)
		assert.Equal(t, "PASS", sa1.ExplicitResult)

		fa1 := card.Formative.Columns[0]
		assert.Equal(t, "PASS", fa1.Result)
		assert.Equal(t, "PASS", fa1.ExplicitResult)

		fa3 := card.Formative.Columns[2]
		assert.Empty(t, fa3.Result)
		assert.Empty(t, fa3.ExplicitResult)
	})

	t.Run("attendance", func(t *testing.T) {
		a := card.Attendance
		assert.Equal(t, 75, a.Percent)
		assert.Equal(t, AttendanceGood, a.Tier)
		assert.Equal(t, 120, a.WorkingDays)
		require.Len(t, a.Months, 11)
		assert.Equal(t, "Jun", a.Months[0].Short)
		assert.Equal(t, "20", a.Months[0].Attended)
		assert.Empty(t, a.Months[1].Attended)
	})

	t.Run("countdown", func(t *testing.T) {
		require.NotNil(t, card.Countdown)
		assert.Equal(t, 75, card.Countdown.DaysLeft)
		assert.Equal(t, time.March, card.Countdown.Target.Month())
		assert.Equal(t, "16.03.2026", card.Countdown.Date)
		assert.Contains(t, card.Countdown.Note, "మార్చి 16")
	})

	t.Run("contacts", func(t *testing.T) {
		assert.Equal(t, "P. Lakshmi Devi", card.Contacts.Teacher.Name)
		assert.Equal(t, "M. Srinivasa Rao", card.Contacts.Headmaster.Name)
	})

	t.Run("consistency warnings", func(t *testing.T) {
		require.Len(t, card.ConsistencyWarnings, 1)
		assert.Contains(t, card.ConsistencyWarnings[0], "SA-1")
	})

	t.Run("generated on", func(t *testing.T) {
		assert.Equal(t, "01.01.2026 00:00", card.GeneratedOn)
		assert.Equal(t, time.UTC, card.GeneratedAt.Location())
	})

	t.Run("action plan", func(t *testing.T) {
		assert.Equal(t, "ఈ నెల 6వ తేదీ (జనవరి)", card.ActionPlan.Date)
		assert.Contains(t, card.ActionPlan.Text, card.ActionPlan.Date)
	})
}

func TestGetReportCardHandler_EmbeddedRosterConflicts(t *testing.T) {
	students, _, err := roster.Load(context.Background(), roster.LoadOptions{}, logger.Nop())
	require.NoError(t, err)
	h := NewGetReportCardHandler(students, testSchool(t), nil, nil)

	tests := []struct {
		id    string
		table func(*ReportCardDTO) ExamTableDTO
	}{
		{"std-2", func(c *ReportCardDTO) ExamTableDTO { return c.Formative }},
		{"std-6", func(c *ReportCardDTO) ExamTableDTO { return c.Formative }},
		{"std-6", func(c *ReportCardDTO) ExamTableDTO { return c.Summative }},
	}
	for _, tt := range tests {
		card, err := h.Handle(context.Background(), GetReportCardQuery{StudentID: tt.id})
		require.NoError(t, err)

		col := tt.table(card).Columns[0]
		assert.Equal(t, "D1", col.Grade, tt.id)
		assert.Equal(t, "PASS", col.Result, tt.id)
		assert.Equal(t, "FAIL", col.ExplicitResult, tt.id)
		assert.NotEmpty(t, card.ConsistencyWarnings, tt.id)
	}
}

func TestGetReportCardHandler_Errors(t *testing.T) {
	h := NewGetReportCardHandler(testRoster(t), testSchool(t), nil, nil)

	_, err := h.Handle(context.Background(), GetReportCardQuery{StudentID: " "})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetReportCardQuery{StudentID: "missing"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestGetReportCardHandler_FeatureGates(t *testing.T) {
	features := fakeFeatures{
		config.FeatureReportCountdown:  false,
		config.FeatureConsistencyCheck: false,
	}
	h := NewGetReportCardHandler(testRoster(t), testSchool(t), features, nil)

	card, err := h.Handle(context.Background(), GetReportCardQuery{StudentID: "std-3"})
	require.NoError(t, err)
	assert.Nil(t, card.Countdown)
	assert.Empty(t, card.ConsistencyWarnings)
}

func TestAttendanceMessage(t *testing.T) {
	assert.Contains(t, AttendanceMessage(75), "అద్భుతమైన హాజరు (75%)")
	assert.Contains(t, AttendanceMessage(74), "తక్కువ హాజరు శాతం (74%)")

	low := Attendance(student.AttendanceRecord{TotalWorkingDaysUntilNov: 120, TotalAttendedDaysUntilNov: "60"})
	assert.Equal(t, AttendanceLow, low.Tier)
	assert.Equal(t, 50, low.Percent)
}

func TestCell_Empty(t *testing.T) {
	c := Cell(student.SubjectMark{}, 50)
	assert.Empty(t, c.Text)
	assert.Empty(t, c.Result)
	assert.Equal(t, 50, c.Max)
}
