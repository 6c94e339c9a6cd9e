package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// PreferenceRepository persists course hour quotas and study preferences.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository constructs the repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the quota for one course.
func (r *PreferenceRepository) Get(ctx context.Context, userID, courseNumber string) (*models.CoursePreference, error) {
	const query = `SELECT user_id, course_number, personal_hours_per_week, group_hours_per_week, updated_at
	FROM course_preferences WHERE user_id = $1 AND course_number = $2`
	var pref models.CoursePreference
	if err := r.db.GetContext(ctx, &pref, query, userID, courseNumber); err != nil {
		return nil, err
	}
	return &pref, nil
}

// ListByUser returns every quota of a user.
func (r *PreferenceRepository) ListByUser(ctx context.Context, userID string) ([]models.CoursePreference, error) {
	const query = `SELECT user_id, course_number, personal_hours_per_week, group_hours_per_week, updated_at
	FROM course_preferences WHERE user_id = $1 ORDER BY course_number`
	var prefs []models.CoursePreference
	if err := r.db.SelectContext(ctx, &prefs, query, userID); err != nil {
		return nil, fmt.Errorf("list course preferences: %w", err)
	}
	return prefs, nil
}

// Upsert inserts or replaces a quota.
func (r *PreferenceRepository) Upsert(ctx context.Context, pref *models.CoursePreference) error {
	pref.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO course_preferences (user_id, course_number, personal_hours_per_week, group_hours_per_week, updated_at)
	VALUES (:user_id, :course_number, :personal_hours_per_week, :group_hours_per_week, :updated_at)
	ON CONFLICT (user_id, course_number) DO UPDATE SET
		personal_hours_per_week = EXCLUDED.personal_hours_per_week,
		group_hours_per_week = EXCLUDED.group_hours_per_week,
		updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, pref); err != nil {
		return fmt.Errorf("upsert course preference: %w", err)
	}
	return nil
}

// InsertMissing stores quotas that do not exist yet and reports how many were added.
func (r *PreferenceRepository) InsertMissing(ctx context.Context, prefs []models.CoursePreference) (int, error) {
	const query = `INSERT INTO course_preferences (user_id, course_number, personal_hours_per_week, group_hours_per_week, updated_at)
	VALUES (:user_id, :course_number, :personal_hours_per_week, :group_hours_per_week, :updated_at)
	ON CONFLICT (user_id, course_number) DO NOTHING`
	inserted := 0
	now := time.Now().UTC()
	for i := range prefs {
		prefs[i].UpdatedAt = now
		res, err := r.db.NamedExecContext(ctx, query, &prefs[i])
		if err != nil {
			return inserted, fmt.Errorf("seed course preference: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// GetStudyPreference returns the user's free-text and structured wishes.
func (r *PreferenceRepository) GetStudyPreference(ctx context.Context, userID string) (*models.StudyPreference, error) {
	const query = `SELECT user_id, preferences_raw, preferences_json, updated_at FROM study_preferences WHERE user_id = $1`
	var pref models.StudyPreference
	if err := r.db.GetContext(ctx, &pref, query, userID); err != nil {
		return nil, err
	}
	return &pref, nil
}
