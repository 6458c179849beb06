package service

import (
	"github.com/sppzpp/reportcard-hub/internal/domain/student"
)

func testStudent() *student.Student {
	s := &student.Student{
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
	s.FA1 = student.ExamResult{Total: "240", Grade: student.GradeB1, Result: student.ResultPass, Rank: "5"}
	s.FA1.SetMark(student.SubjectMaths, student.SubjectMark{Marks: "32", Grade: student.GradeB2})
	s.FA2 = student.ExamResult{Total: "251", Grade: student.GradeB1, Result: student.ResultPass, Rank: "4"}
	s.SA1 = student.ExamResult{Total: "410", Grade: student.GradeB2, Result: student.ResultPass, Rank: "7"}
	s.SA1.SetMark(student.SubjectMaths, student.SubjectMark{Marks: "48", Grade: student.GradeD2})
	return s
}
