package timegrid

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a time cannot be placed on the grid.
var ErrOutOfRange = errors.New("time outside the planning window")

// quantizeTolerance is the maximum distance, in minutes, a time may be snapped.
const quantizeTolerance = 30

// Grid bounds the daily planning window to [StartHour, EndHour).
type Grid struct {
	StartHour int
	EndHour   int
}

// DefaultGrid covers 08:00-21:00.
var DefaultGrid = Grid{StartHour: 8, EndHour: 21}

// Validate checks the configured bounds.
func (g Grid) Validate() error {
	if g.StartHour < 0 || g.EndHour > 24 || g.StartHour >= g.EndHour {
		return fmt.Errorf("invalid grid %d-%d", g.StartHour, g.EndHour)
	}
	return nil
}

// Open returns the first bookable clock of the day.
func (g Grid) Open() Clock { return Hour(g.StartHour) }

// Close returns the end of the bookable day.
func (g Grid) Close() Clock { return Hour(g.EndHour) }

// SlotsPerDay is the number of hour slots in a day.
func (g Grid) SlotsPerDay() int { return g.EndHour - g.StartHour }

// Slots enumerates the slots of one day in ascending order.
func (g Grid) Slots(day Day) []Slot {
	slots := make([]Slot, 0, g.SlotsPerDay())
	for h := g.StartHour; h < g.EndHour; h++ {
		slots = append(slots, Slot{Day: day, Hour: h})
	}
	return slots
}

// AllSlots enumerates every slot of the week, Sunday first.
func (g Grid) AllSlots() []Slot {
	slots := make([]Slot, 0, g.SlotsPerDay()*DaysPerWeek)
	for d := Sunday; d <= Saturday; d++ {
		slots = append(slots, g.Slots(d)...)
	}
	return slots
}

// Contains reports whether s is a slot of the grid.
func (g Grid) Contains(s Slot) bool {
	return s.Day.Valid() && s.Hour >= g.StartHour && s.Hour < g.EndHour
}

// QuantizeStart snaps c to the nearest slot start. Times further than 30 minutes
// from any slot start are rejected with ErrOutOfRange.
func (g Grid) QuantizeStart(c Clock) (Clock, error) {
	best := Clock(-1)
	bestDist := 0
	for h := g.StartHour; h < g.EndHour; h++ {
		dist := abs(int(c) - int(Hour(h)))
		if best < 0 || dist < bestDist {
			best, bestDist = Hour(h), dist
		}
	}
	if best < 0 || bestDist > quantizeTolerance {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, c)
	}
	return best, nil
}

// ParseStart parses and quantizes a start time string.
func (g Grid) ParseStart(raw string) (Clock, error) {
	c, err := ParseClock(raw)
	if err != nil {
		return 0, err
	}
	return g.QuantizeStart(c)
}

// ClipEnd bounds an end time to the close of the day.
func (g Grid) ClipEnd(end Clock) Clock {
	if end > g.Close() {
		return g.Close()
	}
	return end
}

// Span builds a window of the given number of hours starting at start, clipped to the day.
func (g Grid) Span(day Day, start Clock, hours int) Window {
	return Window{Day: day, Start: start, End: g.ClipEnd(start.Add(hours))}
}

// Fits reports whether w lies on hour boundaries inside the grid.
func (g Grid) Fits(w Window) bool {
	return w.Validate() == nil && w.Start.OnHour() && w.End.OnHour() && w.Start >= g.Open() && w.End <= g.Close()
}

// Cover rounds start down and end up to hour boundaries.
func Cover(start, end Clock) (Clock, Clock) {
	s := Hour(start.HourOf())
	e := Hour((int(end) + 59) / 60)
	return s, e
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
