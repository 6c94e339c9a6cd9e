// Package timegrid models the planner's weekly day x hour slot space.
package timegrid

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day is a weekday index where 0 is Sunday.
type Day int

const (
	Sunday Day = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// DaysPerWeek is the number of days in a planning week.
const DaysPerWeek = 7

var dayNames = [DaysPerWeek]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Valid reports whether d lies within 0..6.
func (d Day) Valid() bool {
	return d >= Sunday && d <= Saturday
}

func (d Day) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// Hour builds a Clock at the top of hour h.
func Hour(h int) Clock {
	return Clock(h * 60)
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return Clock(h*60 + m), nil
}

// MustClock parses raw and panics on failure. Intended for literals.
func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// HourOf returns the hour component.
func (c Clock) HourOf() int {
	return int(c) / 60
}

// OnHour reports whether c sits on an hour boundary.
func (c Clock) OnHour() bool {
	return int(c)%60 == 0
}

// Add returns c shifted by the given number of hours.
func (c Clock) Add(hours int) Clock {
	return c + Clock(hours*60)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Scan implements sql.Scanner for TIME and text columns. lib/pq decodes TIME as time.Time.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = 0
		return nil
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case []byte:
		return c.Scan(string(v))
	case time.Time:
		*c = Clock(v.Hour()*60 + v.Minute())
		return nil
	default:
		return fmt.Errorf("timegrid: cannot scan %T into Clock", src)
	}
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

// MarshalText renders HH:MM for JSON payloads.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts HH:MM or HH:MM:SS.
func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Overlaps applies the half-open interval test [aStart,aEnd) x [bStart,bEnd).
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && aEnd > bStart
}

// Window is a time range on a single day.
type Window struct {
	Day   Day   `json:"day"`
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Validate checks the day range and start < end.
func (w Window) Validate() error {
	if !w.Day.Valid() {
		return fmt.Errorf("day %d out of range 0-6", int(w.Day))
	}
	if w.Start >= w.End {
		return fmt.Errorf("start %s must be before end %s", w.Start, w.End)
	}
	return nil
}

// Overlaps reports whether both windows share a day and intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Day == o.Day && Overlaps(w.Start, w.End, o.Start, o.End)
}

// Contains reports whether o lies entirely inside w.
func (w Window) Contains(o Window) bool {
	return w.Day == o.Day && o.Start >= w.Start && o.End <= w.End
}

// Hours returns the window length in whole hours.
func (w Window) Hours() int {
	return int(w.End-w.Start) / 60
}

// Label renders "HH:MM-HH:MM".
func (w Window) Label() string {
	return w.Start.String() + "-" + w.End.String()
}

func (w Window) String() string {
	return w.Day.String() + " " + w.Label()
}

// Slot is a one-hour cell of the grid.
type Slot struct {
	Day  Day `json:"day"`
	Hour int `json:"hour"`
}

// Start returns the slot start clock.
func (s Slot) Start() Clock {
	return Hour(s.Hour)
}

// Window returns the one-hour window covered by the slot.
func (s Slot) Window() Window {
	return Window{Day: s.Day, Start: Hour(s.Hour), End: Hour(s.Hour + 1)}
}

func (s Slot) String() string {
	return fmt.Sprintf("%d@%s", int(s.Day), s.Start())
}

// SlotsOf expands a window into the hour slots it touches.
func SlotsOf(w Window) []Slot {
	first := w.Start.HourOf()
	last := (int(w.End) + 59) / 60
	slots := make([]Slot, 0, last-first)
	for h := first; h < last; h++ {
		slots = append(slots, Slot{Day: w.Day, Hour: h})
	}
	return slots
}
