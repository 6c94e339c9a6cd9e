package models

import (
	"time"

	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

// ChangeRequestType enumerates group block mutations.
type ChangeRequestType string

const (
	ChangeRequestMove   ChangeRequestType = "move"
	ChangeRequestResize ChangeRequestType = "resize"
)

// ChangeRequestStatus captures the consensus workflow state.
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApproved ChangeRequestStatus = "approved"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s ChangeRequestStatus) Terminal() bool {
	return s == ChangeRequestApproved || s == ChangeRequestRejected
}

// ChangeRequest is a proposed mutation of a group-owned block awaiting consensus.
// A nil original window denotes a new group session.
type ChangeRequest struct {
	ID               string              `db:"id" json:"id"`
	GroupID          string              `db:"group_id" json:"group_id"`
	WeekStart        time.Time           `db:"week_start" json:"week_start"`
	Type             ChangeRequestType   `db:"request_type" json:"request_type"`
	OriginalDay      *timegrid.Day       `db:"original_day_of_week" json:"original_day_of_week,omitempty"`
	OriginalStart    *timegrid.Clock     `db:"original_start_time" json:"original_start_time,omitempty"`
	OriginalEnd      *timegrid.Clock     `db:"original_end_time" json:"original_end_time,omitempty"`
	OriginalDuration *int                `db:"original_duration_hours" json:"original_duration_hours,omitempty"`
	ProposedDay      timegrid.Day        `db:"proposed_day_of_week" json:"proposed_day_of_week"`
	ProposedStart    timegrid.Clock      `db:"proposed_start_time" json:"proposed_start_time"`
	ProposedEnd      timegrid.Clock      `db:"proposed_end_time" json:"proposed_end_time"`
	ProposedDuration int                 `db:"proposed_duration_hours" json:"proposed_duration_hours"`
	RequestedBy      string              `db:"requested_by" json:"requested_by"`
	Reason           string              `db:"reason" json:"reason,omitempty"`
	Status           ChangeRequestStatus `db:"status" json:"status"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time          `db:"resolved_at" json:"resolved_at,omitempty"`
	AppliedAt        *time.Time          `db:"applied_at" json:"applied_at,omitempty"`
}

// OriginalWindow returns the window being replaced, if any.
func (r ChangeRequest) OriginalWindow() *timegrid.Window {
	if r.OriginalDay == nil || r.OriginalStart == nil || r.OriginalEnd == nil {
		return nil
	}
	return &timegrid.Window{Day: *r.OriginalDay, Start: *r.OriginalStart, End: *r.OriginalEnd}
}

// SetOriginal records the window being replaced.
func (r *ChangeRequest) SetOriginal(w timegrid.Window) {
	day, start, end, hours := w.Day, w.Start, w.End, w.Hours()
	r.OriginalDay, r.OriginalStart, r.OriginalEnd, r.OriginalDuration = &day, &start, &end, &hours
}

// ProposedWindow returns the target window.
func (r ChangeRequest) ProposedWindow() timegrid.Window {
	return timegrid.Window{Day: r.ProposedDay, Start: r.ProposedStart, End: r.ProposedEnd}
}

// VoteDecision is a member's verdict on a change request.
type VoteDecision string

const (
	VoteApprove VoteDecision = "approved"
	VoteReject  VoteDecision = "rejected"
)

// ChangeRequestVote is one member's recorded decision.
type ChangeRequestVote struct {
	ID        string       `db:"id" json:"id"`
	RequestID string       `db:"request_id" json:"request_id"`
	UserID    string       `db:"user_id" json:"user_id"`
	Decision  VoteDecision `db:"decision" json:"decision"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
