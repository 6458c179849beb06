package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sppzpp/reportcard-hub/config"
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

func newStudent(id string, section student.Section, name, attended string) *student.Student {
	return &student.Student{
		ID:         id,
		Section:    section,
		Name:       name,
		Gender:     "F",
		FatherName: "FATHER " + id,
		MotherName: "MOTHER " + id,
		Attendance: student.AttendanceRecord{
			TotalWorkingDaysUntilNov:  student.WorkingDaysUntilNov,
			TotalAttendedDaysUntilNov: attended,
		},
	}
}

func testRoster(t *testing.T) *student.Roster {
	t.Helper()

	ramu := newStudent("std-3", student.SectionB, "K. RAMU", "90")
	ramu.Gender = "M"
	ramu.FatherName = "K. SATYANARAYANA"
	ramu.MotherName = "K. LAKSHMI"
	ramu.FA1 = student.ExamResult{Total: "240", Grade: student.GradeB1, Result: student.ResultPass, Rank: "5"}
	ramu.FA1.SetMark(student.SubjectMaths, student.SubjectMark{Marks: "32", Grade: student.GradeB2})
	ramu.SA1 = student.ExamResult{Total: "410", Grade: student.GradeD2, Result: student.ResultPass, Rank: "7"}
	ramu.SA1.SetMark(student.SubjectMaths, student.SubjectMark{Marks: "28", Grade: student.GradeD2})
	ramu.Attendance.Months.Set(student.June, "20")

	r, err := student.NewRoster([]*student.Student{
		newStudent("std-1", student.SectionA, "A. ANITHA", "110"),
		newStudent("std-2", student.SectionA, "B. BHAVANI", "100"),
		ramu,
		newStudent("std-4", student.SectionB, "D. DEVI", "60"),
	})
	require.NoError(t, err)
	return r
}

func testSchool(t *testing.T) *config.SchoolProfile {
	t.Helper()
	p, err := config.LoadSchoolProfile("")
	require.NoError(t, err)
	return p
}

type fakeFeatures map[string]bool

func (f fakeFeatures) EnabledFor(feature, _, _ string) bool {
	enabled, ok := f[feature]
	return !ok || enabled
}
