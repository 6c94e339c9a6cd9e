package models

import "time"

// MembershipStatus tracks group join approval.
type MembershipStatus string

const (
	MembershipPending  MembershipStatus = "pending"
	MembershipApproved MembershipStatus = "approved"
)

// StudyGroup is a study group tied to one course.
type StudyGroup struct {
	ID           string    `db:"id" json:"id"`
	CourseNumber string    `db:"course_number" json:"course_number"`
	CourseName   string    `db:"course_name" json:"course_name"`
	Name         string    `db:"group_name" json:"group_name"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// GroupMember links a user to a group.
type GroupMember struct {
	ID       string           `db:"id" json:"id"`
	GroupID  string           `db:"group_id" json:"group_id"`
	UserID   string           `db:"user_id" json:"user_id"`
	Status   MembershipStatus `db:"status" json:"status"`
	JoinedAt time.Time        `db:"joined_at" json:"joined_at"`
}

// Approved reports whether the member may vote and receives group blocks.
func (m GroupMember) Approved() bool {
	return m.Status == MembershipApproved
}
