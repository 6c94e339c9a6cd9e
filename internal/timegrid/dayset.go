package timegrid

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DaySet is a set of weekdays. The zero value is empty.
type DaySet uint8

// NewDaySet builds a set from the given days, ignoring invalid values.
func NewDaySet(days ...Day) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// Add returns the set with d included.
func (s DaySet) Add(d Day) DaySet {
	if !d.Valid() {
		return s
	}
	return s | 1<<uint(d)
}

// Has reports membership.
func (s DaySet) Has(d Day) bool {
	return d.Valid() && s&(1<<uint(d)) != 0
}

// Len counts members.
func (s DaySet) Len() int {
	n := 0
	for d := Sunday; d <= Saturday; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Empty reports whether the set has no days.
func (s DaySet) Empty() bool { return s == 0 }

// Intersects reports whether both sets share a day.
func (s DaySet) Intersects(o DaySet) bool { return s&o != 0 }

// Days lists members in ascending order.
func (s DaySet) Days() []Day {
	days := make([]Day, 0, DaysPerWeek)
	for d := Sunday; d <= Saturday; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (s DaySet) ints() []int {
	out := make([]int, 0, DaysPerWeek)
	for _, d := range s.Days() {
		out = append(out, int(d))
	}
	return out
}

// ParseDays builds a set from integer indexes, rejecting values outside 0-6.
func ParseDays(values []int) (DaySet, error) {
	var s DaySet
	for _, v := range values {
		d := Day(v)
		if !d.Valid() {
			return 0, fmt.Errorf("day %d out of range 0-6", v)
		}
		s = s.Add(d)
	}
	return s, nil
}

// MarshalJSON renders the set as an ascending integer array.
func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ints())
}

// UnmarshalJSON accepts an integer array.
func (s *DaySet) UnmarshalJSON(b []byte) error {
	var values []int
	if err := json.Unmarshal(b, &values); err != nil {
		return fmt.Errorf("days must be an array of integers: %w", err)
	}
	parsed, err := ParseDays(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the set as a JSON array, e.g. [1,3].
func (s DaySet) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON array, a Postgres int array literal or a comma separated list.
func (s *DaySet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = 0
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("timegrid: cannot scan %T into DaySet", src)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		return s.UnmarshalJSON([]byte(raw))
	}
	raw = strings.Trim(raw, "{}")
	if raw == "" {
		*s = 0
		return nil
	}
	var values []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("timegrid: invalid day %q", part)
		}
		values = append(values, v)
	}
	parsed, err := ParseDays(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
