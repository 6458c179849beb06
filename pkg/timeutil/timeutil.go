// Package timeutil provides timezone utilities for India Standard Time
// (UTC+5:30). The school, its exam calendar and its parents are all in IST,
// so dates shown on the report card are computed in that zone.
package timeutil

import (
	"fmt"
	"math"
	"time"
)

// IST is India Standard Time (UTC+5:30, no DST).
var IST = time.FixedZone("Asia/Kolkata", 5*60*60+30*60)

// Now returns the current time in IST.
func Now() time.Time {
	return time.Now().In(IST)
}

// ToIST converts any time to IST.
func ToIST(t time.Time) time.Time {
	return t.In(IST)
}

// DateTime creates a datetime in IST.
func DateTime(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, IST)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// AnnualEvent is a recurring date and time of day, e.g. the public exams on
// March 16 at 09:00.
type AnnualEvent struct {
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Next returns the next occurrence at or after now, in IST. Once this year's
// occurrence has passed it rolls over to next year.
func (e AnnualEvent) Next(now time.Time) time.Time {
	n := ToIST(now)
	target := DateTime(n.Year(), e.Month, e.Day, e.Hour, e.Minute, 0)
	if n.After(target) {
		target = target.AddDate(1, 0, 0)
	}
	return target
}

// DaysUntil returns the whole days until the next occurrence, rounded up.
// It never returns a negative value.
func (e AnnualEvent) DaysUntil(now time.Time) int {
	return CeilDays(e.Next(now).Sub(now))
}

// String formats the event as "March 16 09:00".
func (e AnnualEvent) String() string {
	return fmt.Sprintf("%s %d %02d:%02d", e.Month, e.Day, e.Hour, e.Minute)
}

// ParseAnnualEvent parses "MM-DD" or "MM-DD HH:MM".
func ParseAnnualEvent(s string) (AnnualEvent, error) {
	var e AnnualEvent
	var month int
	n, err := fmt.Sscanf(s, "%d-%d %d:%d", &month, &e.Day, &e.Hour, &e.Minute)
	if n < 2 {
		return AnnualEvent{}, fmt.Errorf("timeutil: parse annual event %q: %w", s, err)
	}
	if n == 3 {
		return AnnualEvent{}, fmt.Errorf("timeutil: parse annual event %q: missing minutes", s)
	}
	e.Month = time.Month(month)
	if e.Month < time.January || e.Month > time.December || e.Day < 1 || e.Day > 31 ||
		e.Hour < 0 || e.Hour > 23 || e.Minute < 0 || e.Minute > 59 {
		return AnnualEvent{}, fmt.Errorf("timeutil: annual event %q out of range", s)
	}
	return e, nil
}

// CeilDays converts a duration to whole days rounding up; negative becomes 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// Common date formats.
const (
	DateFormat     = "02.01.2006"
	DateTimeFormat = "02.01.2006 15:04"
)

// FormatDateStr formats a date as DD.MM.YYYY in IST.
func FormatDateStr(t time.Time) string {
	return ToIST(t).Format(DateFormat)
}

// FormatDateTimeStr formats a datetime as DD.MM.YYYY HH:MM in IST.
func FormatDateTimeStr(t time.Time) string {
	return ToIST(t).Format(DateTimeFormat)
}

var teluguMonths = [...]string{
	"జనవరి", "ఫిబ్రవరి", "మార్చి", "ఏప్రిల్", "మే", "జూన్",
	"జూలై", "ఆగస్టు", "సెప్టెంబర్", "అక్టోబర్", "నవంబర్", "డిసెంబర్",
}

// MonthNameTe returns the Telugu month name.
func MonthNameTe(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return teluguMonths[m-1]
}

// ActionPlanDate renders the "6th of this month" review date shown next to
// the improvement plan, e.g. "ఈ నెల 6వ తేదీ (జనవరి)".
func ActionPlanDate(now time.Time) string {
	return fmt.Sprintf("ఈ నెల 6వ తేదీ (%s)", MonthNameTe(ToIST(now).Month()))
}
