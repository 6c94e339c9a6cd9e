package models

import "time"

// Notification types emitted by the planner.
const (
	NotificationGroupChangeRequest  = "group_change_request"
	NotificationGroupChangeApproved = "group_change_approved"
	NotificationGroupChangeRejected = "group_change_rejected"
	NotificationGroupSessions       = "group_sessions_scheduled"
	NotificationWeeklyPlanReady     = "weekly_plan_ready"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link,omitempty"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
