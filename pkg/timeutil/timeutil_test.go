package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var publicExam = AnnualEvent{Month: time.March, Day: 16, Hour: 9}

func TestAnnualEvent_DaysUntil(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"one day before", DateTime(2026, time.March, 15, 9, 0, 0), 1},
		{"partial day rounds up", DateTime(2026, time.March, 15, 10, 0, 0), 1},
		{"same morning", DateTime(2026, time.March, 16, 8, 0, 0), 1},
		{"exactly at start", DateTime(2026, time.March, 16, 9, 0, 0), 0},
		{"after start rolls over", DateTime(2026, time.March, 16, 9, 0, 1), 365},
		{"new year", DateTime(2026, time.January, 1, 9, 0, 0), 74},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicExam.DaysUntil(tt.now))
		})
	}
}

func TestAnnualEvent_NextUsesIST(t *testing.T) {
	// 2026-03-16 03:00 UTC is 08:30 IST, before the exam starts.
	now := time.Date(2026, time.March, 16, 3, 0, 0, 0, time.UTC)
	next := publicExam.Next(now)
	assert.Equal(t, 2026, next.Year())
	assert.Equal(t, IST, next.Location())
	assert.Equal(t, "March 16 09:00", publicExam.String())
}

func TestParseAnnualEvent(t *testing.T) {
	e, err := ParseAnnualEvent("03-16 09:00")
	require.NoError(t, err)
	assert.Equal(t, publicExam, e)

	e, err = ParseAnnualEvent("04-01")
	require.NoError(t, err)
	assert.Equal(t, AnnualEvent{Month: time.April, Day: 1}, e)

	_, err = ParseAnnualEvent("13-01")
	assert.Error(t, err)
	_, err = ParseAnnualEvent("march")
	assert.Error(t, err)
}

func TestCeilDays(t *testing.T) {
	assert.Equal(t, 0, CeilDays(-time.Hour))
	assert.Equal(t, 1, CeilDays(time.Minute))
	assert.Equal(t, 2, CeilDays(25*time.Hour))
}

func TestFormatting(t *testing.T) {
	d := DateTime(2026, time.January, 5, 14, 30, 0)
	assert.Equal(t, "05.01.2026", FormatDateStr(d))
	assert.Equal(t, "05.01.2026 14:30", FormatDateTimeStr(d))
	assert.Equal(t, "మార్చి", MonthNameTe(time.March))
	assert.Equal(t, "ఈ నెల 6వ తేదీ (జనవరి)", ActionPlanDate(d))
}
