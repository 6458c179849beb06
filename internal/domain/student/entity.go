package student

import (
	"errors"
	"fmt"

	"github.com/sppzpp/reportcard-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Subject identifies one of the seven subjects on the report card.
type Subject string

const (
	SubjectTelugu            Subject = "telugu"
	SubjectHindi             Subject = "hindi"
	SubjectEnglish           Subject = "english"
	SubjectMaths             Subject = "maths"
	SubjectPhysicalScience   Subject = "ps"
	SubjectBiologicalScience Subject = "bs"
	SubjectSocial            Subject = "social"
)

// Subjects is the fixed display and summary order.
var Subjects = [...]Subject{
	SubjectTelugu,
	SubjectHindi,
	SubjectEnglish,
	SubjectMaths,
	SubjectPhysicalScience,
	SubjectBiologicalScience,
	SubjectSocial,
}

// SubjectInfo carries display metadata for a subject.
type SubjectInfo struct {
	Subject   Subject `json:"id"`
	Name      string  `json:"name"`
	LocalName string  `json:"local_name"`
	MaxFA     int     `json:"max_fa"`
	MaxSA     int     `json:"max_sa"`
}

var subjectInfo = map[Subject]SubjectInfo{
	SubjectTelugu:            {SubjectTelugu, "Telugu", "తెలుగు", 50, 100},
	SubjectHindi:             {SubjectHindi, "Hindi", "హిందీ", 50, 100},
	SubjectEnglish:           {SubjectEnglish, "English", "ఇంగ్లీష్", 50, 100},
	SubjectMaths:             {SubjectMaths, "Mathematics", "గణితం", 50, 100},
	SubjectPhysicalScience:   {SubjectPhysicalScience, "Physical Science", "భౌతిక శాస్త్రం", 50, 100},
	SubjectBiologicalScience: {SubjectBiologicalScience, "Biological Science", "జీవ శాస్త్రం", 50, 100},
	SubjectSocial:            {SubjectSocial, "Social Studies", "సాంఘిక శాస్త్రం", 50, 100},
}

// Info returns display metadata for the subject.
func (s Subject) Info() SubjectInfo {
	return subjectInfo[s]
}

// MaxMarks returns the maximum marks for the subject in the given kind of exam.
func (s Subject) MaxMarks(kind ExamKind) int {
	info := subjectInfo[s]
	if kind == ExamSummative {
		return info.MaxSA
	}
	return info.MaxFA
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAMS
// ══════════════════════════════════════════════════════════════════════════════

// SubjectMark is the raw marks string and normalized grade for one subject.
// Marks are kept as text; consumers decide numeric interpretation.
type SubjectMark struct {
	Marks string `json:"marks"`
	Grade Grade  `json:"grade"`
}

// IsEmpty reports whether neither marks nor grade were recorded.
func (m SubjectMark) IsEmpty() bool {
	return m.Marks == "" && m.Grade.IsEmpty()
}

// ExamResult holds one assessment's per-subject marks and aggregates.
type ExamResult struct {
	Telugu  SubjectMark `json:"telugu"`
	Hindi   SubjectMark `json:"hindi"`
	English SubjectMark `json:"english"`
	Maths   SubjectMark `json:"maths"`
	PS      SubjectMark `json:"ps"`
	BS      SubjectMark `json:"bs"`
	Social  SubjectMark `json:"social"`

	Total  string `json:"total"`
	Grade  Grade  `json:"grade"`
	Result Result `json:"result"`
	Rank   string `json:"rank"`
}

// Mark returns the marks for a subject.
func (e ExamResult) Mark(s Subject) SubjectMark {
	switch s {
	case SubjectTelugu:
		return e.Telugu
	case SubjectHindi:
		return e.Hindi
	case SubjectEnglish:
		return e.English
	case SubjectMaths:
		return e.Maths
	case SubjectPhysicalScience:
		return e.PS
	case SubjectBiologicalScience:
		return e.BS
	case SubjectSocial:
		return e.Social
	default:
		return SubjectMark{}
	}
}

// SetMark stores the marks for a subject.
func (e *ExamResult) SetMark(s Subject, m SubjectMark) {
	switch s {
	case SubjectTelugu:
		e.Telugu = m
	case SubjectHindi:
		e.Hindi = m
	case SubjectEnglish:
		e.English = m
	case SubjectMaths:
		e.Maths = m
	case SubjectPhysicalScience:
		e.PS = m
	case SubjectBiologicalScience:
		e.BS = m
	case SubjectSocial:
		e.Social = m
	}
}

// IsEmpty reports whether the exam is a placeholder for an assessment that
// has not been administered yet.
func (e ExamResult) IsEmpty() bool {
	for _, s := range Subjects {
		if !e.Mark(s).IsEmpty() {
			return false
		}
	}
	return e.Total == "" && e.Grade.IsEmpty() && e.Result == ResultNone && e.Rank == ""
}

// EmptyExam returns a fully-populated placeholder with every field empty.
func EmptyExam() ExamResult {
	return ExamResult{}
}

// ExamKind distinguishes formative and summative assessments.
type ExamKind string

const (
	ExamFormative ExamKind = "FA"
	ExamSummative ExamKind = "SA"
)

// ExamSlot names one of the five assessment slots on the report card.
type ExamSlot string

const (
	SlotFA1 ExamSlot = "fa1"
	SlotFA2 ExamSlot = "fa2"
	SlotFA3 ExamSlot = "fa3"
	SlotSA1 ExamSlot = "sa1"
	SlotSA2 ExamSlot = "sa2"
)

// Slots lists the exam slots in term order.
var Slots = [...]ExamSlot{SlotFA1, SlotFA2, SlotFA3, SlotSA1, SlotSA2}

// Kind returns whether the slot is formative or summative.
func (s ExamSlot) Kind() ExamKind {
	if s == SlotSA1 || s == SlotSA2 {
		return ExamSummative
	}
	return ExamFormative
}

// Label returns the printed label, e.g. "FA-1".
func (s ExamSlot) Label() string {
	switch s {
	case SlotFA1:
		return "FA-1"
	case SlotFA2:
		return "FA-2"
	case SlotFA3:
		return "FA-3"
	case SlotSA1:
		return "SA-1"
	case SlotSA2:
		return "SA-2"
	default:
		return string(s)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// WorkingDaysUntilNov is the fixed working-day denominator for attendance.
const WorkingDaysUntilNov = 120

// Month names the academic months June through April.
type Month string

const (
	June      Month = "june"
	July      Month = "july"
	August    Month = "august"
	September Month = "september"
	October   Month = "october"
	November  Month = "november"
	December  Month = "december"
	January   Month = "january"
	February  Month = "february"
	March     Month = "march"
	April     Month = "april"
)

// AcademicMonths lists the eleven months in academic-year order.
var AcademicMonths = [...]Month{
	June, July, August, September, October, November,
	December, January, February, March, April,
}

// AttendanceMonths holds attended-day counts. An empty string means the month
// is not reported yet, which is distinct from "0".
type AttendanceMonths struct {
	June      string `json:"june"`
	July      string `json:"july"`
	August    string `json:"august"`
	September string `json:"september"`
	October   string `json:"october"`
	November  string `json:"november"`
	December  string `json:"december"`
	January   string `json:"january"`
	February  string `json:"february"`
	March     string `json:"march"`
	April     string `json:"april"`
}

// Get returns the attended days for a month.
func (m AttendanceMonths) Get(month Month) string {
	switch month {
	case June:
		return m.June
	case July:
		return m.July
	case August:
		return m.August
	case September:
		return m.September
	case October:
		return m.October
	case November:
		return m.November
	case December:
		return m.December
	case January:
		return m.January
	case February:
		return m.February
	case March:
		return m.March
	case April:
		return m.April
	default:
		return ""
	}
}

// Set stores the attended days for a month.
func (m *AttendanceMonths) Set(month Month, days string) {
	switch month {
	case June:
		m.June = days
	case July:
		m.July = days
	case August:
		m.August = days
	case September:
		m.September = days
	case October:
		m.October = days
	case November:
		m.November = days
	case December:
		m.December = days
	case January:
		m.January = days
	case February:
		m.February = days
	case March:
		m.March = days
	case April:
		m.April = days
	}
}

// AttendanceRecord is the per-month attendance plus the running total.
type AttendanceRecord struct {
	Months                    AttendanceMonths `json:"months"`
	TotalWorkingDaysUntilNov  int              `json:"totalWorkingDaysUntilNov"`
	TotalAttendedDaysUntilNov string           `json:"totalAttendedDaysUntilNov"`
}

// Percentage returns the rounded attendance percentage.
func (a AttendanceRecord) Percentage() int {
	return AttendancePercentage(a.TotalAttendedDaysUntilNov, a.TotalWorkingDaysUntilNov)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Section is the class section a student belongs to.
type Section string

const (
	SectionA Section = "A"
	SectionB Section = "B"
)

// Sections lists the known sections.
var Sections = [...]Section{SectionA, SectionB}

// IsValid reports whether the section is A or B.
func (s Section) IsValid() bool {
	return s == SectionA || s == SectionB
}

// ParseSection validates a section code.
func ParseSection(raw string) (Section, error) {
	s := Section(raw)
	if !s.IsValid() {
		return "", shared.ErrInvalidSection
	}
	return s, nil
}

// Student is one parsed roster row.
type Student struct {
	ID         string  `json:"id"`
	Section    Section `json:"section"`
	Name       string  `json:"name"`
	Gender     string  `json:"gender"`
	FatherName string  `json:"fatherName"`
	MotherName string  `json:"motherName"`

	FA1 ExamResult `json:"fa1"`
	FA2 ExamResult `json:"fa2"`
	FA3 ExamResult `json:"fa3"`
	SA1 ExamResult `json:"sa1"`
	SA2 ExamResult `json:"sa2"`

	Attendance AttendanceRecord `json:"attendance"`
}

// Exam returns the exam result stored in a slot.
func (s *Student) Exam(slot ExamSlot) ExamResult {
	switch slot {
	case SlotFA1:
		return s.FA1
	case SlotFA2:
		return s.FA2
	case SlotFA3:
		return s.FA3
	case SlotSA1:
		return s.SA1
	case SlotSA2:
		return s.SA2
	default:
		return EmptyExam()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// MalformedRowError reports a roster row that is too short for the column layout.
type MalformedRowError struct {
	Row    int // zero-based index among non-blank lines
	Fields int // fields found
	Want   int // fields required
}

// Error implements the error interface.
func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("roster row %d: got %d fields, want %d", e.Row, e.Fields, e.Want)
}

// Unwrap lets errors.Is match shared.ErrMalformedRow.
func (e *MalformedRowError) Unwrap() error {
	return shared.ErrMalformedRow
}

// AsMalformedRow extracts a MalformedRowError from err.
func AsMalformedRow(err error) (*MalformedRowError, bool) {
	var mr *MalformedRowError
	ok := errors.As(err, &mr)
	return mr, ok
}
