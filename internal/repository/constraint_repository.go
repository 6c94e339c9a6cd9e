package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

const constraintColumns = `id, user_id, title, description, scope, week_start, days, start_time, end_time, is_hard, created_at, updated_at`

// ConstraintRepository persists permanent and weekly constraints.
type ConstraintRepository struct {
	db *sqlx.DB
}

// NewConstraintRepository constructs the repository.
func NewConstraintRepository(db *sqlx.DB) *ConstraintRepository {
	return &ConstraintRepository{db: db}
}

// Create inserts a constraint.
func (r *ConstraintRepository) Create(ctx context.Context, c *models.Constraint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	const query = `INSERT INTO constraints (` + constraintColumns + `)
	VALUES (:id, :user_id, :title, :description, :scope, :week_start, :days, :start_time, :end_time, :is_hard, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	return nil
}

// GetByID fetches a constraint by id.
func (r *ConstraintRepository) GetByID(ctx context.Context, id string) (*models.Constraint, error) {
	const query = `SELECT ` + constraintColumns + ` FROM constraints WHERE id = $1`
	var c models.Constraint
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListPermanent returns the user's recurring constraints.
func (r *ConstraintRepository) ListPermanent(ctx context.Context, userID string) ([]models.Constraint, error) {
	const query = `SELECT ` + constraintColumns + ` FROM constraints
	WHERE user_id = $1 AND scope = 'permanent' ORDER BY start_time, title`
	var items []models.Constraint
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list permanent constraints: %w", err)
	}
	return items, nil
}

// ListWeekly returns the user's one-off constraints for a single week.
func (r *ConstraintRepository) ListWeekly(ctx context.Context, userID string, weekStart time.Time) ([]models.Constraint, error) {
	const query = `SELECT ` + constraintColumns + ` FROM constraints
	WHERE user_id = $1 AND scope = 'weekly' AND week_start = $2 ORDER BY start_time, title`
	var items []models.Constraint
	if err := r.db.SelectContext(ctx, &items, query, userID, weekStart); err != nil {
		return nil, fmt.Errorf("list weekly constraints: %w", err)
	}
	return items, nil
}

// Delete removes a constraint by id.
func (r *ConstraintRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM constraints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete constraint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete constraint rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
