package service

import (
	"fmt"
	"strings"

	"github.com/sppzpp/reportcard-hub/internal/domain/student"
	"github.com/sppzpp/reportcard-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROMPTS
// ══════════════════════════════════════════════════════════════════════════════

// Prompts renders the instructions sent to the model. The wording is part of
// the product: parents read the answers, so changes here are user visible.
type Prompts struct {
	// School is the full name, e.g. "S.P.P.Z.P.P. High School"
	School string
	// Grade is the class the roster belongs to
	Grade int
	// Exam is the public exam the students prepare for
	Exam timeutil.AnnualEvent
	// WorkingDays is the attendance denominator quoted in chat context
	WorkingDays int
}

// DefaultPrompts matches the bundled school profile.
func DefaultPrompts() Prompts {
	return Prompts{
		School:      "S.P.P.Z.P.P. High School",
		Grade:       10,
		Exam:        timeutil.AnnualEvent{Month: 3, Day: 16, Hour: 9},
		WorkingDays: student.WorkingDaysUntilNov,
	}
}

// shortSchool drops the "High School" suffix: "S.P.P.Z.P.P.".
func (p Prompts) shortSchool() string {
	return strings.TrimSpace(strings.TrimSuffix(p.School, "High School"))
}

// examDay renders the exam date as "March 16th".
func (p Prompts) examDay() string {
	return fmt.Sprintf("%s %d%s", p.Exam.Month.String(), p.Exam.Day, ordinal(p.Exam.Day))
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Analysis fields requested from the model, in schema order.
var analysisFields = []string{"success", "decline", "weakSubjects"}

var analysisFieldDescriptions = map[string]string{
	"success":      "Detailed analytical praise in Telugu",
	"decline":      "Constructive trend analysis and warnings in Telugu",
	"weakSubjects": "Comprehensive subject-wise action plan and study tips in Telugu",
}

// Analysis builds the performance analysis prompt.
func (p Prompts) Analysis(s *student.Student) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a Senior Educational Consultant and Pedagogical Expert for %s.\n", p.School)
	fmt.Fprintf(&b, "Analyze the academic performance of Grade %d student: %s.\n\n", p.Grade, s.Name)

	b.WriteString("DETAILED ACADEMIC DATA:\n")
	for _, slot := range []student.ExamSlot{student.SlotFA1, student.SlotFA2, student.SlotSA1} {
		exam := s.Exam(slot)
		fmt.Fprintf(&b, "- %s: %s (Total: %s, Rank: %s)\n",
			slot.Label(), student.SubjectSummary(exam), exam.Total, exam.Rank)
	}
	fmt.Fprintf(&b, "- Attendance: %s attended out of %d working days.\n\n",
		s.Attendance.TotalAttendedDaysUntilNov, s.Attendance.TotalWorkingDaysUntilNov)

	b.WriteString("INSTRUCTIONS FOR ANALYSIS:\n")
	b.WriteString("1. Language: Use formal yet encouraging TELUGU.\n")
	b.WriteString("2. Comparison: Compare FA results with SA-1 results. Identify if the student is handling descriptive papers (SA) as well as objective/short papers (FA).\n")
	b.WriteString("3. Specificity: Do not use generic phrases. If Maths is low, mention logical practice. If Sciences are low, mention diagrams and conceptual understanding.\n")
	fmt.Fprintf(&b, "4. Attendance Impact: If attendance is below %d%%, link it directly to the performance decline in the descriptive analysis.\n",
		student.AnalysisAttendancePercent)
	b.WriteString("5. Action Plan: Provide a daily routine suggestion for weak subjects.\n")
	fmt.Fprintf(&b, "6. Public Exam Warning: %s is the deadline. Use high-stakes but supportive language.\n\n", p.examDay())

	b.WriteString("JSON OUTPUT STRUCTURE:\n")
	b.WriteString(`- "success": An elaborate paragraph (100+ words) detailing specific academic strengths. Highlight subjects where the student consistently scores well and explain the positive impact of this on their future career/SSC results.` + "\n")
	b.WriteString(`- "decline": A critical but constructive analysis (100+ words) of where marks were lost. Compare the trend from FA1 to SA1. If marks dropped, explain that descriptive exams require better presentation skills.` + "\n")
	b.WriteString(`- "weakSubjects": A structured, actionable improvement roadmap (150+ words). Break it down by specific subjects. Provide 3 specific "Pro-Tips" in Telugu for the 100-day plan.` + "\n\n")

	b.WriteString("JSON Schema:\n{\n")
	for i, f := range analysisFields {
		sep := ","
		if i == len(analysisFields)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "  %q: %q%s\n", f, analysisFieldDescriptions[f], sep)
	}
	b.WriteString("}\n")
	return b.String()
}

// Chat builds the mentor system instruction.
func (p Prompts) Chat(s *student.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s School Digital Mentor.\n", p.shortSchool())
	b.WriteString("CONTEXT:\n")
	fmt.Fprintf(&b, "Name: %s\n", s.Name)
	fmt.Fprintf(&b, "Section: %s\n", s.Section)
	fmt.Fprintf(&b, "FA1 Total: %s (Rank: %s)\n", s.FA1.Total, s.FA1.Rank)
	fmt.Fprintf(&b, "FA2 Total: %s (Rank: %s)\n", s.FA2.Total, s.FA2.Rank)
	fmt.Fprintf(&b, "SA1 Total: %s (Rank: %s)\n", s.SA1.Total, s.SA1.Rank)
	fmt.Fprintf(&b, "Attendance: %s/%d days.\n", s.Attendance.TotalAttendedDaysUntilNov, p.workingDays())
	b.WriteString("RULES:\n")
	b.WriteString("1. Speak ONLY in TELUGU.\n")
	b.WriteString("2. Be encouraging, empathetic, and professional.\n")
	b.WriteString("3. Give detailed study plans based on the marks provided.\n")
	b.WriteString("4. If attendance is low, warn the parents gently.\n")
	fmt.Fprintf(&b, "5. Mention the %s Public Exams as a key milestone.\n", p.examDay())
	b.WriteString("6. Keep responses formatted with bullet points for readability.")
	return b.String()
}

// Voice builds the live assistant system instruction.
func (p Prompts) Voice(s *student.Student) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s Interactive Voice Assistant.\n", p.School)
	fmt.Fprintf(&b, "Conduct a TWO-WAY conversation in TELUGU with %s.\n", s.Name)
	fmt.Fprintf(&b, "CONTEXT: Student: %s, Section: %s, FA1: %s, FA2: %s, SA1: %s. Attendance: %s/%d.\n",
		s.Name, s.Section, s.FA1.Total, s.FA2.Total, s.SA1.Total,
		s.Attendance.TotalAttendedDaysUntilNov, p.workingDays())
	b.WriteString("RULES:\n")
	b.WriteString("1. Speak ONLY in TELUGU.\n")
	fmt.Fprintf(&b, "2. Introduce yourself: \"నమస్కారం! నేను మీ లైవ్ వాయిస్ అసిస్టెంట్‌ని. %s మార్కుల గురించి చర్చిద్దాం.\"\n", s.Name)
	b.WriteString("3. Be encouraging and provide clear study tips.\n")
	fmt.Fprintf(&b, "4. Warn about %s public exams.\n", p.examDay())
	b.WriteString("5. Keep responses concise and audible.")
	return b.String()
}

func (p Prompts) workingDays() int {
	if p.WorkingDays > 0 {
		return p.WorkingDays
	}
	return student.WorkingDaysUntilNov
}
