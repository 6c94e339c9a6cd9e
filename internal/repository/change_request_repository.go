package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/study-planner-api/internal/models"
)

const changeRequestColumns = `id, group_id, week_start, request_type,
       original_day_of_week, original_start_time, original_end_time, original_duration_hours,
       proposed_day_of_week, proposed_start_time, proposed_end_time, proposed_duration_hours,
       requested_by, reason, status, created_at, resolved_at, applied_at`

// ChangeRequestRepository persists group change requests and their votes.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a pending change request.
func (r *ChangeRequestRepository) Create(ctx context.Context, req *models.ChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.ChangeRequestPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO group_change_requests (` + changeRequestColumns + `)
	VALUES (:id, :group_id, :week_start, :request_type,
	        :original_day_of_week, :original_start_time, :original_end_time, :original_duration_hours,
	        :proposed_day_of_week, :proposed_start_time, :proposed_end_time, :proposed_duration_hours,
	        :requested_by, :reason, :status, :created_at, :resolved_at, :applied_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	const query = `SELECT ` + changeRequestColumns + ` FROM group_change_requests WHERE id = $1`
	var req models.ChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListPendingByGroups returns pending requests for the given groups, oldest first.
func (r *ChangeRequestRepository) ListPendingByGroups(ctx context.Context, groupIDs []string) ([]models.ChangeRequest, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + changeRequestColumns + ` FROM group_change_requests
	WHERE group_id = ANY($1) AND status = 'pending' ORDER BY created_at`
	var reqs []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &reqs, query, pq.Array(groupIDs)); err != nil {
		return nil, fmt.Errorf("list pending change requests: %w", err)
	}
	return reqs, nil
}

// RecordVote stores a member's decision. It reports false when the member already cast the
// same decision.
func (r *ChangeRequestRepository) RecordVote(ctx context.Context, vote *models.ChangeRequestVote) (bool, error) {
	if vote.ID == "" {
		vote.ID = uuid.NewString()
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO group_change_request_votes (id, request_id, user_id, decision, created_at)
	VALUES (:id, :request_id, :user_id, :decision, :created_at)
	ON CONFLICT (request_id, user_id) DO UPDATE SET decision = EXCLUDED.decision, created_at = EXCLUDED.created_at
	WHERE group_change_request_votes.decision <> EXCLUDED.decision`
	res, err := r.db.NamedExecContext(ctx, query, vote)
	if err != nil {
		return false, fmt.Errorf("record vote: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record vote rows: %w", err)
	}
	return affected > 0, nil
}

// ListVotes returns all votes for a request.
func (r *ChangeRequestRepository) ListVotes(ctx context.Context, requestID string) ([]models.ChangeRequestVote, error) {
	const query = `SELECT id, request_id, user_id, decision, created_at FROM group_change_request_votes
	WHERE request_id = $1 ORDER BY created_at`
	var votes []models.ChangeRequestVote
	if err := r.db.SelectContext(ctx, &votes, query, requestID); err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return votes, nil
}

// Resolve moves a pending request to a terminal status. sql.ErrNoRows is returned when the
// request is no longer pending.
func (r *ChangeRequestRepository) Resolve(ctx context.Context, id string, status models.ChangeRequestStatus, at time.Time) error {
	const query = `UPDATE group_change_requests SET status = $2, resolved_at = $3 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve change request rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkApplied records that an approved request was written to member plans.
func (r *ChangeRequestRepository) MarkApplied(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE group_change_requests SET applied_at = $2 WHERE id = $1 AND status = 'approved'`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark change request applied: %w", err)
	}
	return nil
}
