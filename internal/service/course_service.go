package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

type enrollmentStore interface {
	GetCourse(ctx context.Context, courseNumber string) (*models.Course, error)
	AddEnrollment(ctx context.Context, e *models.Enrollment) (bool, error)
	ListActiveEnrollments(ctx context.Context, userID, term string) ([]models.Enrollment, error)
}

// CourseService manages the courses a user is enrolled in.
type CourseService struct {
	repo      enrollmentStore
	seeder    quotaSeeder
	validator *validator.Validate
	logger    *zap.Logger
	term      string
}

// NewCourseService constructs the service. term is used for requests that name none; seeder
// may be nil.
func NewCourseService(repo enrollmentStore, seeder quotaSeeder, validate *validator.Validate, logger *zap.Logger, term string) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, seeder: seeder, validator: validate, logger: logger, term: term}
}

// Enroll adds a catalog course to the user's course list. Name and credit points come from the
// catalog. Enrolling twice reports the existing enrollment.
func (s *CourseService) Enroll(ctx context.Context, userID string, req dto.EnrollRequest) (*dto.EnrollResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	number := strings.TrimSpace(req.CourseNumber)
	course, err := s.repo.GetCourse(ctx, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("course %s not found in catalog", number))
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	if name := strings.TrimSpace(req.CourseName); name != "" && !strings.EqualFold(name, course.CourseName) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("course name %q does not match catalog name %q for %s", name, course.CourseName, number))
	}

	term := strings.TrimSpace(req.Term)
	if term == "" {
		term = s.term
	}
	enrollment := models.Enrollment{
		UserID:       userID,
		CourseNumber: course.CourseNumber,
		CourseName:   course.CourseName,
		CreditPoints: course.CreditPoints,
		Term:         term,
	}
	added, err := s.repo.AddEnrollment(ctx, &enrollment)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to add enrollment")
	}
	if !added {
		return &dto.EnrollResponse{Status: dto.EnrollmentAlreadyExists, Enrollment: enrollment}, nil
	}

	log := applogger.FromContext(ctx, s.logger)
	if s.seeder != nil {
		if _, err := s.seeder.SeedDefaults(ctx, []models.Enrollment{enrollment}); err != nil {
			log.Warn("failed to seed course quota", zap.String("user_id", userID), zap.String("course_number", course.CourseNumber), zap.Error(err))
		}
	}
	log.Info("course enrolled", zap.String("user_id", userID), zap.String("course_number", course.CourseNumber), zap.String("term", term))
	return &dto.EnrollResponse{Status: dto.EnrollmentCreated, Enrollment: enrollment}, nil
}

// List returns the user's active enrollments for the configured term.
func (s *CourseService) List(ctx context.Context, userID string) ([]models.Enrollment, error) {
	items, err := s.repo.ListActiveEnrollments(ctx, userID, s.term)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}
	if items == nil {
		items = []models.Enrollment{}
	}
	return items, nil
}
