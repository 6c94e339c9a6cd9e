package dto

import (
	"time"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// GenerateWeekRequest triggers weekly generation. An empty week targets the next week.
type GenerateWeekRequest struct {
	WeekStart string `json:"weekStart"`
}

// EntityFailure records a group or user that could not be planned.
type EntityFailure struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Error string `json:"error"`
}

// WeeklyRunReport summarises one weekly generation run.
type WeeklyRunReport struct {
	RunID           string                   `json:"runId"`
	WeekStart       string                   `json:"weekStart"`
	Cleanup         models.WeekCleanupResult `json:"cleanup"`
	GroupsScheduled int                      `json:"groupsScheduled"`
	GroupsSkipped   int                      `json:"groupsSkipped"`
	UsersPlanned    int                      `json:"usersPlanned"`
	BlocksCreated   int                      `json:"blocksCreated"`
	OracleAccepted  int                      `json:"oracleAccepted"`
	OracleFallbacks int                      `json:"oracleFallbacks"`
	Failures        []EntityFailure          `json:"failures,omitempty"`
	StartedAt       time.Time                `json:"startedAt"`
	FinishedAt      time.Time                `json:"finishedAt"`
}

// Session is a merged run of consecutive blocks for display and export.
type Session struct {
	CourseNumber string             `json:"courseNumber"`
	CourseName   string             `json:"courseName"`
	WorkType     models.WorkType    `json:"workType"`
	GroupID      *string            `json:"groupId,omitempty"`
	Day          timegrid.Day       `json:"dayOfWeek"`
	StartTime    timegrid.Clock     `json:"startTime"`
	EndTime      timegrid.Clock     `json:"endTime"`
	Source       models.BlockSource `json:"source"`
	BlockIDs     []string           `json:"blockIds"`
}

// ConstraintOccurrence is a constraint placed on a concrete day of the week.
type ConstraintOccurrence struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Scope     models.ConstraintScope `json:"scope"`
	Hard      bool                   `json:"hard"`
	Day       timegrid.Day           `json:"dayOfWeek"`
	StartTime timegrid.Clock         `json:"startTime"`
	EndTime   timegrid.Clock         `json:"endTime"`
}

// WeekView is a user's merged plan for a week.
type WeekView struct {
	WeekStart   string                     `json:"weekStart"`
	Sessions    []Session                  `json:"sessions"`
	Constraints []ConstraintOccurrence     `json:"constraints"`
	Fixed       []models.FixedScheduleItem `json:"fixed"`
}
