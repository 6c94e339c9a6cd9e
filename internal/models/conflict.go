package models

import (
	"strings"

	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// ConflictSource names where an overlapping window came from.
type ConflictSource string

const (
	ConflictPermanentConstraint ConflictSource = "permanent_constraint"
	ConflictWeeklyConstraint    ConflictSource = "weekly_constraint"
	ConflictFixedItem           ConflictSource = "fixed_item"
	ConflictBlock               ConflictSource = "block"
)

var conflictPrefixes = map[ConflictSource]string{
	ConflictPermanentConstraint: "Permanent hard constraint",
	ConflictWeeklyConstraint:    "Weekly hard constraint",
	ConflictFixedItem:           "Fixed schedule",
	ConflictBlock:               "Existing block",
}

// Conflict describes one window overlapping a candidate placement.
type Conflict struct {
	Source      ConflictSource  `json:"source"`
	RefID       string          `json:"ref_id"`
	UserID      string          `json:"user_id,omitempty"`
	Label       string          `json:"label"`
	Window      timegrid.Window `json:"window"`
	Description string          `json:"description"`
}

// NewConflict builds a conflict with its human-readable description.
func NewConflict(source ConflictSource, refID, userID, label string, w timegrid.Window) Conflict {
	return Conflict{
		Source:      source,
		RefID:       refID,
		UserID:      userID,
		Label:       label,
		Window:      w,
		Description: conflictPrefixes[source] + ": " + label,
	}
}

// DescribeConflicts joins descriptions with "; ".
func DescribeConflicts(conflicts []Conflict) string {
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, "; ")
}
