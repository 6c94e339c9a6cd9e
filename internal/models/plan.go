package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// WorkType separates solo study from group sessions.
type WorkType string

const (
	WorkTypePersonal WorkType = "personal"
	WorkTypeGroup    WorkType = "group"
)

// Valid reports whether w is a known work type.
func (w WorkType) Valid() bool {
	return w == WorkTypePersonal || w == WorkTypeGroup
}

// BlockSource tags how a block was produced.
type BlockSource string

const (
	BlockSourceManual  BlockSource = "manual"
	BlockSourceAuto    BlockSource = "auto"
	BlockSourceProfile BlockSource = "profile"
)

// WeeklyPlan groups one user's blocks for a week starting on Sunday.
type WeeklyPlan struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	WeekStart time.Time `db:"week_start" json:"week_start"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleBlock is a one-hour (or longer, when merged for display) study block.
type ScheduleBlock struct {
	ID           string         `db:"id" json:"id"`
	PlanID       string         `db:"plan_id" json:"plan_id"`
	UserID       string         `db:"user_id" json:"user_id"`
	CourseNumber string         `db:"course_number" json:"course_number"`
	CourseName   string         `db:"course_name" json:"course_name"`
	WorkType     WorkType       `db:"work_type" json:"work_type"`
	GroupID      *string        `db:"group_id" json:"group_id,omitempty"`
	Day          timegrid.Day   `db:"day_of_week" json:"day_of_week"`
	StartTime    timegrid.Clock `db:"start_time" json:"start_time"`
	EndTime      timegrid.Clock `db:"end_time" json:"end_time"`
	Source       BlockSource    `db:"source" json:"source"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Window returns the block's time window.
func (b ScheduleBlock) Window() timegrid.Window {
	return timegrid.Window{Day: b.Day, Start: b.StartTime, End: b.EndTime}
}

// SameKind reports whether both blocks share course and work type.
func (b ScheduleBlock) SameKind(o ScheduleBlock) bool {
	return b.CourseNumber == o.CourseNumber && b.WorkType == o.WorkType
}

// Label renders "Course (HH:MM-HH:MM)".
func (b ScheduleBlock) Label() string {
	name := b.CourseName
	if name == "" {
		name = b.CourseNumber
	}
	return fmt.Sprintf("%s (%s-%s)", name, b.StartTime, b.EndTime)
}

// GroupPlanBlock is the group's canonical record of a synchronised session.
type GroupPlanBlock struct {
	ID           string         `db:"id" json:"id"`
	GroupID      string         `db:"group_id" json:"group_id"`
	WeekStart    time.Time      `db:"week_start" json:"week_start"`
	CourseNumber string         `db:"course_number" json:"course_number"`
	Day          timegrid.Day   `db:"day_of_week" json:"day_of_week"`
	StartTime    timegrid.Clock `db:"start_time" json:"start_time"`
	EndTime      timegrid.Clock `db:"end_time" json:"end_time"`
	CreatedBy    string         `db:"created_by" json:"created_by"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Window returns the group block window.
func (g GroupPlanBlock) Window() timegrid.Window {
	return timegrid.Window{Day: g.Day, Start: g.StartTime, End: g.EndTime}
}

// WeekCounts summarises stored rows for one week.
type WeekCounts struct {
	Plans       int `db:"plans" json:"plans"`
	Blocks      int `db:"blocks" json:"blocks"`
	GroupBlocks int `db:"group_blocks" json:"group_blocks"`
}

// WeekCleanupResult reports what a week cleanup removed.
type WeekCleanupResult struct {
	Deleted WeekCounts `json:"deleted"`
	// Others holds the totals for every other week, identical before and after cleanup.
	Others WeekCounts `json:"others"`
}

// ErrStaleWrite signals that rows expected by a write were changed by someone else.
var ErrStaleWrite = errors.New("schedule changed concurrently")

// BlockChangeSet is applied atomically: removals first, then inserts.
type BlockChangeSet struct {
	RemoveBlockIDs      []string
	AddBlocks           []ScheduleBlock
	RemoveGroupBlockIDs []string
	AddGroupBlocks      []GroupPlanBlock
}

// Empty reports whether the change set does nothing.
func (c BlockChangeSet) Empty() bool {
	return len(c.RemoveBlockIDs) == 0 && len(c.AddBlocks) == 0 && len(c.RemoveGroupBlockIDs) == 0 && len(c.AddGroupBlocks) == 0
}
