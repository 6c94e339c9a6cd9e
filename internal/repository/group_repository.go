package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

const groupColumns = `g.id, g.course_number, g.course_name, g.group_name, g.created_by, g.created_at`

// GroupRepository reads study groups and their memberships.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetByID fetches a group.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.StudyGroup, error) {
	const query = `SELECT ` + groupColumns + ` FROM study_groups g WHERE g.id = $1`
	var group models.StudyGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// GetMembership returns a user's membership in a group.
func (r *GroupRepository) GetMembership(ctx context.Context, groupID, userID string) (*models.GroupMember, error) {
	const query = `SELECT id, group_id, user_id, status, joined_at FROM group_members WHERE group_id = $1 AND user_id = $2`
	var member models.GroupMember
	if err := r.db.GetContext(ctx, &member, query, groupID, userID); err != nil {
		return nil, err
	}
	return &member, nil
}

// ListApprovedMembers returns approved members ordered by join time.
func (r *GroupRepository) ListApprovedMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	const query = `SELECT id, group_id, user_id, status, joined_at FROM group_members
	WHERE group_id = $1 AND status = 'approved' ORDER BY joined_at, user_id`
	var members []models.GroupMember
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// ListForUser returns groups where the user is an approved member.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]models.StudyGroup, error) {
	const query = `SELECT ` + groupColumns + ` FROM study_groups g
	JOIN group_members m ON m.group_id = g.id
	WHERE m.user_id = $1 AND m.status = 'approved'
	ORDER BY g.group_name`
	var groups []models.StudyGroup
	if err := r.db.SelectContext(ctx, &groups, query, userID); err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return groups, nil
}

// ListEligible returns groups with at least two approved members actively enrolled in the
// group's course. An empty term matches any active enrollment.
func (r *GroupRepository) ListEligible(ctx context.Context, term string) ([]models.StudyGroup, error) {
	const query = `SELECT ` + groupColumns + ` FROM study_groups g
	JOIN group_members m ON m.group_id = g.id AND m.status = 'approved'
	JOIN enrollments e ON e.user_id = m.user_id AND e.course_number = g.course_number AND e.is_active
	WHERE ($1::text = '' OR e.term = $1)
	GROUP BY g.id, g.course_number, g.course_name, g.group_name, g.created_by, g.created_at
	HAVING COUNT(DISTINCT m.user_id) >= 2
	ORDER BY g.created_at, g.id`
	var groups []models.StudyGroup
	if err := r.db.SelectContext(ctx, &groups, query, term); err != nil {
		return nil, fmt.Errorf("list eligible groups: %w", err)
	}
	return groups, nil
}

// ListEligibleMembers returns approved members of the group enrolled in its course.
func (r *GroupRepository) ListEligibleMembers(ctx context.Context, groupID, term string) ([]string, error) {
	const query = `SELECT DISTINCT m.user_id FROM group_members m
	JOIN study_groups g ON g.id = m.group_id
	JOIN enrollments e ON e.user_id = m.user_id AND e.course_number = g.course_number AND e.is_active
	WHERE m.group_id = $1 AND m.status = 'approved' AND ($2::text = '' OR e.term = $2)
	ORDER BY m.user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID, term); err != nil {
		return nil, fmt.Errorf("list eligible members: %w", err)
	}
	return ids, nil
}
