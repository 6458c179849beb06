package student

import "strings"

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

// Grade is a letter-number grade code assigned by the school's grading policy.
// The empty grade means "not graded / not yet administered".
type Grade string

const (
	GradeA1   Grade = "A1"
	GradeA2   Grade = "A2"
	GradeB1   Grade = "B1"
	GradeB2   Grade = "B2"
	GradeC1   Grade = "C1"
	GradeC2   Grade = "C2"
	GradeD1   Grade = "D1"
	GradeD2   Grade = "D2"
	GradeFail Grade = "FAIL"
	GradePass Grade = "PASS"
	GradeNone Grade = ""
)

// validGrades is the enumerated grade set. Anything outside it normalizes to GradeNone.
var validGrades = map[Grade]struct{}{
	GradeA1: {}, GradeA2: {},
	GradeB1: {}, GradeB2: {},
	GradeC1: {}, GradeC2: {},
	GradeD1: {}, GradeD2: {},
	GradeFail: {}, GradePass: {},
}

// ParseGrade trims and upper-cases raw and returns it if it belongs to the
// enumerated grade set. The second return value is false when a non-empty
// token had to be dropped.
func ParseGrade(raw string) (Grade, bool) {
	g := Grade(strings.ToUpper(strings.TrimSpace(raw)))
	if g == GradeNone {
		return GradeNone, true
	}
	if _, ok := validGrades[g]; ok {
		return g, true
	}
	return GradeNone, false
}

// IsValid reports whether g is part of the enumerated grade set (empty included).
func (g Grade) IsValid() bool {
	if g == GradeNone {
		return true
	}
	_, ok := validGrades[g]
	return ok
}

// IsEmpty reports whether no grade was recorded.
func (g Grade) IsEmpty() bool {
	return g == GradeNone
}

// String returns the grade code.
func (g Grade) String() string {
	return string(g)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// Result is the pass/fail outcome for a subject or a whole exam.
type Result string

const (
	ResultPass Result = "PASS"
	ResultFail Result = "FAIL"
	ResultNone Result = ""
)

// ParseResult normalizes an explicit result column. Values other than
// PASS or FAIL become ResultNone.
func ParseResult(raw string) Result {
	switch r := Result(strings.ToUpper(strings.TrimSpace(raw))); r {
	case ResultPass, ResultFail:
		return r
	default:
		return ResultNone
	}
}

// DeriveResult computes the result implied by a grade: no grade means no
// result, D2 is the failing grade, every other grade passes.
func DeriveResult(g Grade) Result {
	if g.IsEmpty() {
		return ResultNone
	}
	if g == GradeD2 {
		return ResultFail
	}
	return ResultPass
}
