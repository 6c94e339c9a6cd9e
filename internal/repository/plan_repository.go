package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

const blockColumns = `b.id, b.plan_id, b.user_id, b.course_number, b.course_name, b.work_type, b.group_id,
       b.day_of_week, b.start_time, b.end_time, b.source, b.created_at`

const insertBlockQuery = `INSERT INTO schedule_blocks
	(id, plan_id, user_id, course_number, course_name, work_type, group_id, day_of_week, start_time, end_time, source, created_at)
	VALUES (:id, :plan_id, :user_id, :course_number, :course_name, :work_type, :group_id, :day_of_week, :start_time, :end_time, :source, :created_at)`

const insertGroupBlockQuery = `INSERT INTO group_plan_blocks
	(id, group_id, week_start, course_number, day_of_week, start_time, end_time, created_by, created_at)
	VALUES (:id, :group_id, :week_start, :course_number, :day_of_week, :start_time, :end_time, :created_by, :created_at)`

const countOtherWeeksQuery = `SELECT
	(SELECT COUNT(*) FROM weekly_plans WHERE week_start <> $1) AS plans,
	(SELECT COUNT(*) FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id WHERE p.week_start <> $1) AS blocks,
	(SELECT COUNT(*) FROM group_plan_blocks WHERE week_start <> $1) AS group_blocks`

const countWeekQuery = `SELECT
	(SELECT COUNT(*) FROM weekly_plans WHERE week_start = $1) AS plans,
	(SELECT COUNT(*) FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id WHERE p.week_start = $1) AS blocks,
	(SELECT COUNT(*) FROM group_plan_blocks WHERE week_start = $1) AS group_blocks`

// PlanRepository persists weekly plans, their blocks and group session records.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs the repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetPlan returns the user's plan for a week.
func (r *PlanRepository) GetPlan(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyPlan, error) {
	const query = `SELECT id, user_id, week_start, created_at, updated_at FROM weekly_plans WHERE user_id = $1 AND week_start = $2`
	var plan models.WeeklyPlan
	if err := r.db.GetContext(ctx, &plan, query, userID, weekStart); err != nil {
		return nil, err
	}
	return &plan, nil
}

// EnsurePlan returns the user's plan for a week, creating it on first use.
func (r *PlanRepository) EnsurePlan(ctx context.Context, userID string, weekStart time.Time) (*models.WeeklyPlan, error) {
	const query = `INSERT INTO weekly_plans (id, user_id, week_start, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $4)
	ON CONFLICT (user_id, week_start) DO UPDATE SET updated_at = EXCLUDED.updated_at
	RETURNING id, user_id, week_start, created_at, updated_at`
	var plan models.WeeklyPlan
	if err := r.db.GetContext(ctx, &plan, query, uuid.NewString(), userID, weekStart, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure weekly plan: %w", err)
	}
	return &plan, nil
}

// GetBlock fetches a block by id.
func (r *PlanRepository) GetBlock(ctx context.Context, id string) (*models.ScheduleBlock, error) {
	const query = `SELECT ` + blockColumns + ` FROM schedule_blocks b WHERE b.id = $1`
	var block models.ScheduleBlock
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockWeek returns the week a block belongs to.
func (r *PlanRepository) GetBlockWeek(ctx context.Context, blockID string) (time.Time, error) {
	const query = `SELECT p.week_start FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id WHERE b.id = $1`
	var week time.Time
	if err := r.db.GetContext(ctx, &week, query, blockID); err != nil {
		return time.Time{}, err
	}
	return week, nil
}

// ListBlocks returns every block of the user's plan for a week ordered by day and start.
func (r *PlanRepository) ListBlocks(ctx context.Context, userID string, weekStart time.Time) ([]models.ScheduleBlock, error) {
	const query = `SELECT ` + blockColumns + `
	FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id
	WHERE p.user_id = $1 AND p.week_start = $2
	ORDER BY b.day_of_week, b.start_time`
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, userID, weekStart); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// ListBlocksByDay narrows ListBlocks to one day.
func (r *PlanRepository) ListBlocksByDay(ctx context.Context, userID string, weekStart time.Time, day timegrid.Day) ([]models.ScheduleBlock, error) {
	const query = `SELECT ` + blockColumns + `
	FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id
	WHERE p.user_id = $1 AND p.week_start = $2 AND b.day_of_week = $3
	ORDER BY b.start_time`
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, userID, weekStart, day); err != nil {
		return nil, fmt.Errorf("list blocks by day: %w", err)
	}
	return blocks, nil
}

// ListGroupMemberBlocks returns every member copy of a group's sessions for a week.
func (r *PlanRepository) ListGroupMemberBlocks(ctx context.Context, groupID string, weekStart time.Time) ([]models.ScheduleBlock, error) {
	const query = `SELECT ` + blockColumns + `
	FROM schedule_blocks b JOIN weekly_plans p ON p.id = b.plan_id
	WHERE b.group_id = $1 AND p.week_start = $2
	ORDER BY b.user_id, b.day_of_week, b.start_time`
	var blocks []models.ScheduleBlock
	if err := r.db.SelectContext(ctx, &blocks, query, groupID, weekStart); err != nil {
		return nil, fmt.Errorf("list group member blocks: %w", err)
	}
	return blocks, nil
}

// ListGroupBlocks returns the group's canonical session records for a week.
func (r *PlanRepository) ListGroupBlocks(ctx context.Context, groupID string, weekStart time.Time) ([]models.GroupPlanBlock, error) {
	const query = `SELECT id, group_id, week_start, course_number, day_of_week, start_time, end_time, created_by, created_at
	FROM group_plan_blocks WHERE group_id = $1 AND week_start = $2 ORDER BY day_of_week, start_time`
	var blocks []models.GroupPlanBlock
	if err := r.db.SelectContext(ctx, &blocks, query, groupID, weekStart); err != nil {
		return nil, fmt.Errorf("list group blocks: %w", err)
	}
	return blocks, nil
}

// Apply executes a change set in one transaction. Removals must match existing rows exactly,
// otherwise models.ErrStaleWrite is returned and nothing is written.
func (r *PlanRepository) Apply(ctx context.Context, changes models.BlockChangeSet) error {
	if changes.Empty() {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply block changes: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = deleteExact(ctx, tx, `DELETE FROM schedule_blocks WHERE id = ANY($1)`, changes.RemoveBlockIDs); err != nil {
		return fmt.Errorf("remove blocks: %w", err)
	}
	if err = deleteExact(ctx, tx, `DELETE FROM group_plan_blocks WHERE id = ANY($1)`, changes.RemoveGroupBlockIDs); err != nil {
		return fmt.Errorf("remove group blocks: %w", err)
	}

	now := time.Now().UTC()
	for i := range changes.AddBlocks {
		block := &changes.AddBlocks[i]
		if block.ID == "" {
			block.ID = uuid.NewString()
		}
		if block.CreatedAt.IsZero() {
			block.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, insertBlockQuery, block); err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
	}
	for i := range changes.AddGroupBlocks {
		block := &changes.AddGroupBlocks[i]
		if block.ID == "" {
			block.ID = uuid.NewString()
		}
		if block.CreatedAt.IsZero() {
			block.CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx, insertGroupBlockQuery, block); err != nil {
			return fmt.Errorf("insert group block: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit block changes: %w", err)
	}
	return nil
}

// CountWeek returns stored row counts for one week.
func (r *PlanRepository) CountWeek(ctx context.Context, weekStart time.Time) (models.WeekCounts, error) {
	var counts models.WeekCounts
	if err := r.db.GetContext(ctx, &counts, countWeekQuery, weekStart); err != nil {
		return counts, fmt.Errorf("count week: %w", err)
	}
	return counts, nil
}

// DeleteWeek removes all plans, blocks and group blocks of exactly one week. Row counts of
// every other week are compared before and after; a mismatch rolls the transaction back.
func (r *PlanRepository) DeleteWeek(ctx context.Context, weekStart time.Time) (models.WeekCleanupResult, error) {
	var result models.WeekCleanupResult
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin week cleanup: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var before models.WeekCounts
	if err = tx.GetContext(ctx, &before, countOtherWeeksQuery, weekStart); err != nil {
		return result, fmt.Errorf("count other weeks: %w", err)
	}

	var affected int64
	if affected, err = execCount(ctx, tx, `DELETE FROM group_plan_blocks WHERE week_start = $1`, weekStart); err != nil {
		return result, fmt.Errorf("delete group blocks: %w", err)
	}
	result.Deleted.GroupBlocks = int(affected)

	if affected, err = execCount(ctx, tx, `DELETE FROM schedule_blocks WHERE plan_id IN (SELECT id FROM weekly_plans WHERE week_start = $1)`, weekStart); err != nil {
		return result, fmt.Errorf("delete blocks: %w", err)
	}
	result.Deleted.Blocks = int(affected)

	if affected, err = execCount(ctx, tx, `DELETE FROM weekly_plans WHERE week_start = $1`, weekStart); err != nil {
		return result, fmt.Errorf("delete plans: %w", err)
	}
	result.Deleted.Plans = int(affected)

	var after models.WeekCounts
	if err = tx.GetContext(ctx, &after, countOtherWeeksQuery, weekStart); err != nil {
		return result, fmt.Errorf("recount other weeks: %w", err)
	}
	if before != after {
		err = fmt.Errorf("cleanup of %s touched other weeks: before %+v after %+v", timegrid.FormatWeek(weekStart), before, after)
		return result, err
	}
	result.Others = after

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit week cleanup: %w", err)
	}
	return result, nil
}

func deleteExact(ctx context.Context, tx *sqlx.Tx, query string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	affected, err := execCount(ctx, tx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	if int(affected) != len(ids) {
		return models.ErrStaleWrite
	}
	return nil
}

func execCount(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
