package dto

import "github.com/noah-isme/study-planner-api/internal/models"

// EnrollRequest adds a catalog course to the caller's course list. CourseName, when given, must
// match the catalog name of CourseNumber.
type EnrollRequest struct {
	CourseNumber string `json:"courseNumber" validate:"required,max=32"`
	CourseName   string `json:"courseName" validate:"max=200"`
	Term         string `json:"term" validate:"max=32"`
}

// EnrollmentStatus tells whether an enrollment was created or already existed.
type EnrollmentStatus string

const (
	EnrollmentCreated       EnrollmentStatus = "created"
	EnrollmentAlreadyExists EnrollmentStatus = "already_exists"
)

// EnrollResponse returns the enrollment and whether it is new.
type EnrollResponse struct {
	Status     EnrollmentStatus  `json:"status"`
	Enrollment models.Enrollment `json:"enrollment"`
}
