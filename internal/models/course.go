package models

// Course is a catalog entry.
type Course struct {
	CourseNumber string  `db:"course_number" json:"course_number"`
	CourseName   string  `db:"course_name" json:"course_name"`
	CreditPoints float64 `db:"credit_points" json:"credit_points"`
}

// Enrollment is a user's registration in a course for a term.
type Enrollment struct {
	UserID       string  `db:"user_id" json:"user_id"`
	CourseNumber string  `db:"course_number" json:"course_number"`
	CourseName   string  `db:"course_name" json:"course_name"`
	CreditPoints float64 `db:"credit_points" json:"credit_points"`
	Term         string  `db:"term" json:"term"`
	Active       bool    `db:"is_active" json:"is_active"`
}
