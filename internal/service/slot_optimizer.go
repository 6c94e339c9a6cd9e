package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// OptimizationMode tells the optimizer what kind of sessions it is placing.
type OptimizationMode string

const (
	OptimizeGroup    OptimizationMode = "group"
	OptimizePersonal OptimizationMode = "personal"
)

// CourseQuota is the number of one-hour slots wanted for a course.
type CourseQuota struct {
	CourseNumber string `json:"course_number"`
	CourseName   string `json:"course_name,omitempty"`
	Hours        int    `json:"required_hours"`
}

// OfferedSlot is a free one-hour slot the optimizer may use.
type OfferedSlot struct {
	Day   timegrid.Day   `json:"day"`
	Start timegrid.Clock `json:"start"`
}

// SlotAssignment places one hour of a course into an offered slot.
type SlotAssignment struct {
	CourseNumber string         `json:"course_number"`
	Day          timegrid.Day   `json:"day"`
	Start        timegrid.Clock `json:"start"`
}

// Slot returns the grid slot the assignment occupies.
func (a SlotAssignment) Slot() timegrid.Slot {
	return timegrid.Slot{Day: a.Day, Hour: a.Start.HourOf()}
}

// OptimizationRequest is the input of one placement problem.
type OptimizationRequest struct {
	Mode             OptimizationMode `json:"mode"`
	Quotas           []CourseQuota    `json:"quotas"`
	OfferedSlots     []OfferedSlot    `json:"offered_slots"`
	PreferenceText   string           `json:"preference_text,omitempty"`
	PreferenceStruct json.RawMessage  `json:"preference_struct,omitempty"`
}

// OptimizationResult lists the chosen placements.
type OptimizationResult struct {
	Assignments []SlotAssignment `json:"assignments"`
}

// SlotOptimizer proposes placements. Callers validate any result before using it.
type SlotOptimizer interface {
	Optimize(ctx context.Context, req OptimizationRequest) (*OptimizationResult, error)
}

// ErrInvalidAssignment marks a result that breaks the request's bounds.
var ErrInvalidAssignment = errors.New("invalid slot assignment")

// ValidateAssignments checks that every assignment uses a distinct offered slot on an hour
// boundary, names a requested course and stays within that course's quota.
func ValidateAssignments(req OptimizationRequest, res *OptimizationResult) error {
	if res == nil {
		return fmt.Errorf("%w: empty result", ErrInvalidAssignment)
	}
	offered := make(map[OfferedSlot]struct{}, len(req.OfferedSlots))
	for _, s := range req.OfferedSlots {
		offered[s] = struct{}{}
	}
	quota := make(map[string]int, len(req.Quotas))
	for _, q := range req.Quotas {
		quota[q.CourseNumber] += q.Hours
	}

	used := make(map[OfferedSlot]struct{}, len(res.Assignments))
	counts := make(map[string]int, len(quota))
	for _, a := range res.Assignments {
		slot := OfferedSlot{Day: a.Day, Start: a.Start}
		if !a.Start.OnHour() {
			return fmt.Errorf("%w: %s %s is not on the hour", ErrInvalidAssignment, a.Day, a.Start)
		}
		if _, ok := offered[slot]; !ok {
			return fmt.Errorf("%w: %s %s was not offered", ErrInvalidAssignment, a.Day, a.Start)
		}
		if _, dup := used[slot]; dup {
			return fmt.Errorf("%w: %s %s assigned twice", ErrInvalidAssignment, a.Day, a.Start)
		}
		used[slot] = struct{}{}
		limit, ok := quota[a.CourseNumber]
		if !ok {
			return fmt.Errorf("%w: course %s was not requested", ErrInvalidAssignment, a.CourseNumber)
		}
		counts[a.CourseNumber]++
		if counts[a.CourseNumber] > limit {
			return fmt.Errorf("%w: course %s exceeds its %d hours", ErrInvalidAssignment, a.CourseNumber, limit)
		}
	}
	return nil
}

// offerSlots converts grid slots into optimizer input.
func offerSlots(slots []timegrid.Slot) []OfferedSlot {
	out := make([]OfferedSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, OfferedSlot{Day: s.Day, Start: s.Start()})
	}
	return out
}

// GreedyOptimizer is the deterministic fallback. For each course, largest quota first, it
// places two-hour runs, at most one per day on the first pass, then further runs, then
// single hours, until the quota is met or the free slots run out.
type GreedyOptimizer struct{}

// Optimize never fails.
func (GreedyOptimizer) Optimize(_ context.Context, req OptimizationRequest) (*OptimizationResult, error) {
	pool := newSlotPool(req.OfferedSlots)
	quotas := append([]CourseQuota(nil), req.Quotas...)
	sort.SliceStable(quotas, func(i, j int) bool {
		if quotas[i].Hours != quotas[j].Hours {
			return quotas[i].Hours > quotas[j].Hours
		}
		return quotas[i].CourseNumber < quotas[j].CourseNumber
	})

	res := &OptimizationResult{Assignments: make([]SlotAssignment, 0)}
	for _, q := range quotas {
		remaining := q.Hours
		place := func(hours []int, day timegrid.Day) {
			for _, h := range hours {
				pool.take(day, h)
				res.Assignments = append(res.Assignments, SlotAssignment{CourseNumber: q.CourseNumber, Day: day, Start: timegrid.Hour(h)})
				remaining--
			}
		}
		// one pair per day
		for day := timegrid.Sunday; day <= timegrid.Saturday && remaining >= 2; day++ {
			if pair, ok := pool.firstPair(day); ok {
				place(pair, day)
			}
		}
		// further pairs
		for day := timegrid.Sunday; day <= timegrid.Saturday && remaining >= 2; day++ {
			for remaining >= 2 {
				pair, ok := pool.firstPair(day)
				if !ok {
					break
				}
				place(pair, day)
			}
		}
		// singles
		for day := timegrid.Sunday; day <= timegrid.Saturday && remaining > 0; day++ {
			for remaining > 0 {
				h, ok := pool.first(day)
				if !ok {
					break
				}
				place([]int{h}, day)
			}
		}
	}
	return res, nil
}

// slotPool tracks free hours per day.
type slotPool struct {
	free [timegrid.DaysPerWeek]map[int]bool
}

func newSlotPool(slots []OfferedSlot) *slotPool {
	p := &slotPool{}
	for i := range p.free {
		p.free[i] = make(map[int]bool)
	}
	for _, s := range slots {
		if s.Day.Valid() && s.Start.OnHour() {
			p.free[s.Day][s.Start.HourOf()] = true
		}
	}
	return p
}

func (p *slotPool) hours(day timegrid.Day) []int {
	hours := make([]int, 0, len(p.free[day]))
	for h := range p.free[day] {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func (p *slotPool) firstPair(day timegrid.Day) ([]int, bool) {
	hours := p.hours(day)
	for i := 0; i+1 < len(hours); i++ {
		if hours[i+1] == hours[i]+1 {
			return []int{hours[i], hours[i+1]}, true
		}
	}
	return nil, false
}

func (p *slotPool) first(day timegrid.Day) (int, bool) {
	hours := p.hours(day)
	if len(hours) == 0 {
		return 0, false
	}
	return hours[0], true
}

func (p *slotPool) take(day timegrid.Day, hour int) {
	delete(p.free[day], hour)
}
