package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

type constraintStore interface {
	constraintReader
	Create(ctx context.Context, c *models.Constraint) error
	GetByID(ctx context.Context, id string) (*models.Constraint, error)
	Delete(ctx context.Context, id string) error
}

// ConstraintService manages user-declared busy windows.
type ConstraintService struct {
	repo      constraintStore
	blocks    blockReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewConstraintService constructs the service.
func NewConstraintService(repo constraintStore, blocks blockReader, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintService{
		repo:      repo,
		blocks:    blocks,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a constraint. Times are widened to whole hours. Overlap with a constraint of
// the same scope is rejected; overlap with planned blocks is reported as warnings.
func (s *ConstraintService) Create(ctx context.Context, userID string, req dto.CreateConstraintRequest) (*dto.ConstraintResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid constraint payload")
	}
	days, err := timegrid.ParseDays(req.Days)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid days")
	}
	rawStart, err := timegrid.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	rawEnd, err := timegrid.ParseClock(req.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end time")
	}
	if rawStart >= rawEnd {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	start, end := timegrid.Cover(rawStart, rawEnd)

	constraint := &models.Constraint{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Scope:       models.ConstraintScopePermanent,
		Days:        days,
		StartTime:   start,
		EndTime:     end,
		IsHard:      req.Hard == nil || *req.Hard,
	}

	planWeek := timegrid.WeekStart(s.now())
	var existing []models.Constraint
	if req.Permanent {
		existing, err = s.repo.ListPermanent(ctx, userID)
	} else {
		week, parseErr := timegrid.ParseWeek(req.WeekStart)
		if parseErr != nil {
			return nil, appErrors.Wrap(parseErr, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week start")
		}
		constraint.Scope = models.ConstraintScopeWeekly
		constraint.WeekStart = &week
		planWeek = week
		existing, err = s.repo.ListWeekly(ctx, userID, week)
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load constraints")
	}

	if overlapping := overlappingConstraints(*constraint, existing); len(overlapping) > 0 {
		return nil, conflictError(overlapping)
	}

	if err := s.repo.Create(ctx, constraint); err != nil {
		return nil, appErrors.Internal(err, "failed to create constraint")
	}
	applogger.FromContext(ctx, s.logger).Info("constraint created",
		zap.String("constraint_id", constraint.ID),
		zap.String("user_id", userID),
		zap.String("scope", string(constraint.Scope)),
	)

	warnings, err := s.blockWarnings(ctx, userID, planWeek, *constraint)
	if err != nil {
		applogger.FromContext(ctx, s.logger).Warn("constraint block check failed", zap.String("constraint_id", constraint.ID), zap.Error(err))
	}
	return &dto.ConstraintResponse{Constraint: *constraint, Warnings: warnings}, nil
}

// Delete removes one of the user's constraints.
func (s *ConstraintService) Delete(ctx context.Context, userID, id string) error {
	constraint, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return appErrors.Internal(err, "failed to load constraint")
	}
	if constraint.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "constraint belongs to another user")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
		}
		return appErrors.Internal(err, "failed to delete constraint")
	}
	applogger.FromContext(ctx, s.logger).Info("constraint deleted", zap.String("constraint_id", id), zap.String("user_id", userID))
	return nil
}

// List returns the user's permanent constraints and the weekly ones of a week. An empty week
// means the current one.
func (s *ConstraintService) List(ctx context.Context, userID, week string) (*dto.ConstraintListResponse, error) {
	weekStart := timegrid.WeekStart(s.now())
	if week != "" {
		parsed, err := timegrid.ParseWeek(week)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week start")
		}
		weekStart = parsed
	}
	permanent, err := s.repo.ListPermanent(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load permanent constraints")
	}
	weekly, err := s.repo.ListWeekly(ctx, userID, weekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load weekly constraints")
	}
	if permanent == nil {
		permanent = []models.Constraint{}
	}
	if weekly == nil {
		weekly = []models.Constraint{}
	}
	return &dto.ConstraintListResponse{
		WeekStart: timegrid.FormatWeek(weekStart),
		Permanent: permanent,
		Weekly:    weekly,
	}, nil
}

func (s *ConstraintService) blockWarnings(ctx context.Context, userID string, week time.Time, c models.Constraint) ([]string, error) {
	blocks, err := s.blocks.ListBlocks(ctx, userID, week)
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, b := range blocks {
		if w, ok := c.WindowOn(b.Day); ok && w.Overlaps(b.Window()) {
			warnings = append(warnings, fmt.Sprintf("Overlaps planned block %s on %s", b.Label(), b.Day))
		}
	}
	return warnings, nil
}

func overlappingConstraints(candidate models.Constraint, existing []models.Constraint) []models.Conflict {
	source := models.ConflictWeeklyConstraint
	if candidate.Permanent() {
		source = models.ConflictPermanentConstraint
	}
	var conflicts []models.Conflict
	for _, other := range existing {
		for _, day := range candidate.Days.Days() {
			mine, _ := candidate.WindowOn(day)
			theirs, ok := other.WindowOn(day)
			if ok && mine.Overlaps(theirs) {
				conflicts = append(conflicts, models.NewConflict(source, other.ID, candidate.UserID, other.Label(), theirs))
				break
			}
		}
	}
	return conflicts
}
