package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// FixedScheduleRepository reads timetable items of enrolled courses.
type FixedScheduleRepository struct {
	db *sqlx.DB
}

// NewFixedScheduleRepository constructs the repository.
func NewFixedScheduleRepository(db *sqlx.DB) *FixedScheduleRepository {
	return &FixedScheduleRepository{db: db}
}

// ListByUser returns the user's lectures and tutorials.
func (r *FixedScheduleRepository) ListByUser(ctx context.Context, userID string) ([]models.FixedScheduleItem, error) {
	const query = `SELECT id, user_id, course_number, title, kind, day_of_week, start_time, end_time, location
	FROM fixed_schedule_items WHERE user_id = $1 ORDER BY day_of_week, start_time`
	var items []models.FixedScheduleItem
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list fixed schedule: %w", err)
	}
	return items, nil
}
