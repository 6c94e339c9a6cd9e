package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// CourseRepository reads the course catalog and manages user enrollments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetCourse fetches a catalog course by number.
func (r *CourseRepository) GetCourse(ctx context.Context, courseNumber string) (*models.Course, error) {
	const query = `SELECT course_number, course_name, credit_points FROM course_catalog WHERE course_number = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, courseNumber); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindEnrollmentByName matches the user's active enrollments by case-insensitive name or number.
func (r *CourseRepository) FindEnrollmentByName(ctx context.Context, userID, name string) (*models.Enrollment, error) {
	const query = `SELECT user_id, course_number, course_name, credit_points, term, is_active FROM enrollments
	WHERE user_id = $1 AND is_active AND (course_number = $2 OR course_name ILIKE '%' || $2 || '%')
	ORDER BY (course_number = $2) DESC, length(course_name)
	LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, name); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindCourseByName matches the catalog by case-insensitive name.
func (r *CourseRepository) FindCourseByName(ctx context.Context, name string) (*models.Course, error) {
	const query = `SELECT course_number, course_name, credit_points FROM course_catalog
	WHERE course_name ILIKE '%' || $1::text || '%' ORDER BY length(course_name) LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, name); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListActiveEnrollments returns the user's active enrollments. An empty term matches any term.
func (r *CourseRepository) ListActiveEnrollments(ctx context.Context, userID, term string) ([]models.Enrollment, error) {
	const query = `SELECT user_id, course_number, course_name, credit_points, term, is_active FROM enrollments
	WHERE user_id = $1 AND is_active AND ($2::text = '' OR term = $2) ORDER BY course_number`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID, term); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListActiveUsers returns ids of users with at least one active enrollment.
func (r *CourseRepository) ListActiveUsers(ctx context.Context, term string) ([]string, error) {
	const query = `SELECT DISTINCT user_id FROM enrollments WHERE is_active AND ($1::text = '' OR term = $1) ORDER BY user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, term); err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return ids, nil
}

// AddEnrollment registers the user in a course for a term. An inactive enrollment is
// reactivated. It reports false when the user was already actively enrolled.
func (r *CourseRepository) AddEnrollment(ctx context.Context, e *models.Enrollment) (bool, error) {
	const query = `INSERT INTO enrollments (user_id, course_number, course_name, credit_points, term, is_active)
	VALUES (:user_id, :course_number, :course_name, :credit_points, :term, TRUE)
	ON CONFLICT (user_id, course_number, term) DO UPDATE SET is_active = TRUE WHERE NOT enrollments.is_active`
	res, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return false, fmt.Errorf("add enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add enrollment rows: %w", err)
	}
	e.Active = true
	return affected > 0, nil
}
