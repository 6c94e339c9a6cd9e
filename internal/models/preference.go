package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// CoursePreference stores weekly hour quotas per user and course. The personal and
// group quotas are tracked independently.
type CoursePreference struct {
	UserID               string    `db:"user_id" json:"user_id"`
	CourseNumber         string    `db:"course_number" json:"course_number"`
	PersonalHoursPerWeek float64   `db:"personal_hours_per_week" json:"personal_hours_per_week"`
	GroupHoursPerWeek    float64   `db:"group_hours_per_week" json:"group_hours_per_week"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// HoursFor returns the quota matching work type.
func (p CoursePreference) HoursFor(w WorkType) float64 {
	if w == WorkTypeGroup {
		return p.GroupHoursPerWeek
	}
	return p.PersonalHoursPerWeek
}

// StudyPreference holds a user's free-text and structured planning wishes.
type StudyPreference struct {
	UserID    string         `db:"user_id" json:"user_id"`
	Raw       string         `db:"preferences_raw" json:"preferences_raw"`
	Structured types.JSONText `db:"preferences_json" json:"preferences_json"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
