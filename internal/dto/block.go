package dto

import (
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// BlockSelector locates a block either by id or by course, day and start time within a week.
type BlockSelector struct {
	BlockID      string `json:"blockId"`
	CourseNumber string `json:"courseNumber"`
	CourseName   string `json:"courseName"`
	Day          *int   `json:"dayOfWeek" validate:"omitempty,min=0,max=6"`
	StartTime    string `json:"startTime"`
	WeekStart    string `json:"weekStart"`
}

// CreateBlockRequest books a new study block.
type CreateBlockRequest struct {
	CourseNumber  string `json:"courseNumber" validate:"required_without=CourseName"`
	CourseName    string `json:"courseName"`
	GroupID       string `json:"groupId"`
	Day           *int   `json:"dayOfWeek" validate:"required,min=0,max=6"`
	StartTime     string `json:"startTime" validate:"required"`
	DurationHours int    `json:"durationHours" validate:"required,min=1,max=13"`
	WorkType      string `json:"workType" validate:"omitempty,oneof=personal group"`
	WeekStart     string `json:"weekStart"`
	Reason        string `json:"reason" validate:"max=500"`
}

// MoveBlockRequest relocates a consecutive run, or part of it.
type MoveBlockRequest struct {
	BlockSelector
	NewDay        *int   `json:"newDayOfWeek" validate:"required,min=0,max=6"`
	NewStartTime  string `json:"newStartTime" validate:"required"`
	SubRangeStart string `json:"subRangeStart"`
	SubRangeEnd   string `json:"subRangeEnd" validate:"required_with=SubRangeStart"`
	Reason        string `json:"reason" validate:"max=500"`
}

// ResizeBlockRequest changes the length of a consecutive run.
type ResizeBlockRequest struct {
	BlockSelector
	NewDurationHours int    `json:"newDurationHours" validate:"required,min=1,max=13"`
	Reason           string `json:"reason" validate:"max=500"`
}

// MutationStatus tells the caller whether the change was applied or awaits approval.
type MutationStatus string

const (
	MutationApplied         MutationStatus = "applied"
	MutationPendingApproval MutationStatus = "pending_approval"
)

// BlockMutationResponse describes the outcome of create, move or resize.
type BlockMutationResponse struct {
	Status        MutationStatus         `json:"status"`
	WeekStart     string                 `json:"weekStart"`
	Window        timegrid.Window        `json:"window"`
	Blocks        []models.ScheduleBlock `json:"blocks,omitempty"`
	RemovedIDs    []string               `json:"removedBlockIds,omitempty"`
	ChangeRequest *models.ChangeRequest  `json:"changeRequest,omitempty"`
}
