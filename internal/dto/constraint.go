package dto

import "github.com/noah-isme/study-planner-api/internal/models"

// CreateConstraintRequest declares a busy window.
type CreateConstraintRequest struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	Days        []int  `json:"days" validate:"required,min=1,dive,min=0,max=6"`
	StartTime   string `json:"startTime" validate:"required"`
	EndTime     string `json:"endTime" validate:"required"`
	Hard        *bool  `json:"hard"`
	Permanent   bool   `json:"permanent"`
	WeekStart   string `json:"weekStart" validate:"required_unless=Permanent true"`
}

// ConstraintResponse returns the stored constraint and any non-blocking warnings.
type ConstraintResponse struct {
	Constraint models.Constraint `json:"constraint"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// ConstraintListResponse lists permanent and weekly constraints for a week.
type ConstraintListResponse struct {
	WeekStart string              `json:"weekStart"`
	Permanent []models.Constraint `json:"permanent"`
	Weekly    []models.Constraint `json:"weekly"`
}
