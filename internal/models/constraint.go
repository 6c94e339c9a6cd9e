package models

import (
	"fmt"
	"time"

	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// ConstraintScope distinguishes recurring constraints from one-off weekly ones.
type ConstraintScope string

const (
	ConstraintScopePermanent ConstraintScope = "permanent"
	ConstraintScopeWeekly    ConstraintScope = "weekly"
)

// Constraint is a user-declared busy window applying to a set of days.
type Constraint struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description,omitempty"`
	Scope       ConstraintScope `db:"scope" json:"scope"`
	WeekStart   *time.Time      `db:"week_start" json:"week_start,omitempty"`
	Days        timegrid.DaySet `db:"days" json:"days"`
	StartTime   timegrid.Clock  `db:"start_time" json:"start_time"`
	EndTime     timegrid.Clock  `db:"end_time" json:"end_time"`
	IsHard      bool            `db:"is_hard" json:"is_hard"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Permanent reports whether the constraint recurs every week.
func (c Constraint) Permanent() bool {
	return c.Scope == ConstraintScopePermanent
}

// WindowOn returns the constraint window on day and whether the constraint applies to it.
func (c Constraint) WindowOn(day timegrid.Day) (timegrid.Window, bool) {
	if !c.Days.Has(day) {
		return timegrid.Window{}, false
	}
	return timegrid.Window{Day: day, Start: c.StartTime, End: c.EndTime}, true
}

// Label renders "Title (HH:MM-HH:MM)".
func (c Constraint) Label() string {
	return fmt.Sprintf("%s (%s-%s)", c.Title, c.StartTime, c.EndTime)
}

// FixedItemKind labels timetable entries.
type FixedItemKind string

const (
	FixedItemLecture  FixedItemKind = "lecture"
	FixedItemTutorial FixedItemKind = "tutorial"
	FixedItemLab      FixedItemKind = "lab"
)

// FixedScheduleItem is a timetable entry of an enrolled course. Always hard.
type FixedScheduleItem struct {
	ID           string         `db:"id" json:"id"`
	UserID       string         `db:"user_id" json:"user_id"`
	CourseNumber string         `db:"course_number" json:"course_number"`
	Title        string         `db:"title" json:"title"`
	Kind         FixedItemKind  `db:"kind" json:"kind"`
	Day          timegrid.Day   `db:"day_of_week" json:"day_of_week"`
	StartTime    timegrid.Clock `db:"start_time" json:"start_time"`
	EndTime      timegrid.Clock `db:"end_time" json:"end_time"`
	Location     string         `db:"location" json:"location,omitempty"`
}

// Window returns the item's weekly window.
func (f FixedScheduleItem) Window() timegrid.Window {
	return timegrid.Window{Day: f.Day, Start: f.StartTime, End: f.EndTime}
}

// Label renders "Title (HH:MM-HH:MM)".
func (f FixedScheduleItem) Label() string {
	return fmt.Sprintf("%s (%s-%s)", f.Title, f.StartTime, f.EndTime)
}
