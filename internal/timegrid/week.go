package timegrid

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical week_start representation.
const DateLayout = "2006-01-02"

var weekLayouts = []string{DateLayout, "2006/01/02", "02/01/06", "02/01/2006"}

// WeekStart returns the Sunday (00:00 UTC) of the week containing t.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// ParseWeek accepts YYYY-MM-DD, YYYY/MM/DD, DD/MM/YY or DD/MM/YYYY and normalises
// the result to the Sunday of that week.
func ParseWeek(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range weekLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return WeekStart(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid week %q, expected YYYY-MM-DD", raw)
}

// FormatWeek renders a week start as YYYY-MM-DD.
func FormatWeek(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOf returns the calendar date of day within the week starting at weekStart.
func DateOf(weekStart time.Time, day Day) time.Time {
	return WeekStart(weekStart).AddDate(0, 0, int(day))
}
