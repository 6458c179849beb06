package student

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Attendance tiers used by the report card message.
const (
	// GoodAttendancePercent is the threshold for the "excellent attendance" message.
	GoodAttendancePercent = 75
	// AnalysisAttendancePercent is the level below which the analysis links
	// attendance to performance decline.
	AnalysisAttendancePercent = 85
)

// AttendancePercentage divides attended days by the working-day total and
// rounds to the nearest integer. Non-numeric or empty input yields 0.
func AttendancePercentage(attended string, total int) int {
	if total <= 0 {
		return 0
	}
	att, err := strconv.ParseFloat(strings.TrimSpace(attended), 64)
	if err != nil || math.IsNaN(att) || math.IsInf(att, 0) {
		return 0
	}
	return int(math.Round(att / float64(total) * 100))
}

// SubjectSummary renders "<subject>: <marks> (<grade>)" for every subject in
// the fixed order, joined by ", ". It is used for prompt construction.
func SubjectSummary(exam ExamResult) string {
	parts := make([]string, 0, len(Subjects))
	for _, s := range Subjects {
		m := exam.Mark(s)
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", s, m.Marks, m.Grade))
	}
	return strings.Join(parts, ", ")
}

// ResultConsistent reports whether the explicit result column agrees with
// the result derived from the exam grade.
func (e ExamResult) ResultConsistent() bool {
	return e.Result == DeriveResult(e.Grade)
}

// ResultConflict describes an exam whose explicit result disagrees with its grade.
type ResultConflict struct {
	Slot     ExamSlot `json:"slot"`
	Grade    Grade    `json:"grade"`
	Explicit Result   `json:"explicit_result"`
	Derived  Result   `json:"derived_result"`
}

// String formats the conflict for logs and report warnings.
func (c ResultConflict) String() string {
	return fmt.Sprintf("%s: grade %q implies %q but result column says %q",
		c.Slot.Label(), c.Grade, c.Derived, c.Explicit)
}

// ResultConflicts returns every exam slot whose explicit result disagrees
// with its grade-derived result.
func (s *Student) ResultConflicts() []ResultConflict {
	var out []ResultConflict
	for _, slot := range Slots {
		exam := s.Exam(slot)
		if exam.ResultConsistent() {
			continue
		}
		out = append(out, ResultConflict{
			Slot:     slot,
			Grade:    exam.Grade,
			Explicit: exam.Result,
			Derived:  DeriveResult(exam.Grade),
		})
	}
	return out
}

// Fingerprint returns a stable content hash of the student record. Cached
// AI analyses are keyed by it so they are recomputed only when data changes.
func (s *Student) Fingerprint() string {
	data, err := json.Marshal(s)
	if err != nil {
		// Student contains only strings and ints; Marshal cannot fail.
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16])
}
