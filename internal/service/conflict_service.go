package service

import (
	"context"
	"time"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type constraintReader interface {
	ListPermanent(ctx context.Context, userID string) ([]models.Constraint, error)
	ListWeekly(ctx context.Context, userID string, weekStart time.Time) ([]models.Constraint, error)
}

type fixedScheduleReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.FixedScheduleItem, error)
}

type blockReader interface {
	ListBlocks(ctx context.Context, userID string, weekStart time.Time) ([]models.ScheduleBlock, error)
	ListBlocksByDay(ctx context.Context, userID string, weekStart time.Time, day timegrid.Day) ([]models.ScheduleBlock, error)
}

// ConflictQuery describes a candidate placement for one user.
type ConflictQuery struct {
	UserID    string
	WeekStart time.Time
	Window    timegrid.Window
	// CourseNumber and WorkType identify the block being extended when IgnoreSameCourse is set.
	CourseNumber     string
	WorkType         models.WorkType
	IgnoreSameCourse bool
	// Exclusions skips blocks lying entirely inside any of these windows, e.g. the run being moved.
	Exclusions []timegrid.Window
	// ExclusionGroupID narrows Exclusions to blocks of one study group.
	ExclusionGroupID string
}

// ConflictService answers whether a window is free for a user. It never writes.
type ConflictService struct {
	constraints constraintReader
	fixed       fixedScheduleReader
	blocks      blockReader
}

// NewConflictService constructs the checker.
func NewConflictService(constraints constraintReader, fixed fixedScheduleReader, blocks blockReader) *ConflictService {
	return &ConflictService{constraints: constraints, fixed: fixed, blocks: blocks}
}

// Check returns every hard obstacle overlapping the query window, ordered permanent constraints,
// weekly constraints, fixed items, then blocks. An empty result means the window is free.
func (s *ConflictService) Check(ctx context.Context, q ConflictQuery) ([]models.Conflict, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid window")
	}
	day := q.Window.Day
	conflicts := make([]models.Conflict, 0)

	permanent, err := s.constraints.ListPermanent(ctx, q.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load permanent constraints")
	}
	conflicts = appendConstraintConflicts(conflicts, permanent, models.ConflictPermanentConstraint, q.UserID, q.Window, true)

	weekly, err := s.constraints.ListWeekly(ctx, q.UserID, q.WeekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load weekly constraints")
	}
	conflicts = appendConstraintConflicts(conflicts, weekly, models.ConflictWeeklyConstraint, q.UserID, q.Window, true)

	fixed, err := s.fixed.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load fixed schedule")
	}
	for _, item := range fixed {
		if w := item.Window(); w.Overlaps(q.Window) {
			conflicts = append(conflicts, models.NewConflict(models.ConflictFixedItem, item.ID, q.UserID, item.Label(), w))
		}
	}

	blocks, err := s.blocks.ListBlocksByDay(ctx, q.UserID, q.WeekStart, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocks")
	}
	for _, b := range blocks {
		if q.IgnoreSameCourse && b.CourseNumber == q.CourseNumber && (q.WorkType == "" || b.WorkType == q.WorkType) {
			continue
		}
		w := b.Window()
		if q.skips(b) || !w.Overlaps(q.Window) {
			continue
		}
		conflicts = append(conflicts, models.NewConflict(models.ConflictBlock, b.ID, q.UserID, b.Label(), w))
	}
	return conflicts, nil
}

// CheckMembers runs Check for each user and concatenates the results.
func (s *ConflictService) CheckMembers(ctx context.Context, userIDs []string, q ConflictQuery) ([]models.Conflict, error) {
	all := make([]models.Conflict, 0)
	for _, id := range userIDs {
		q.UserID = id
		found, err := s.Check(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// SoftOverlaps lists soft constraints overlapping the window. They never block a placement.
func (s *ConflictService) SoftOverlaps(ctx context.Context, userID string, weekStart time.Time, window timegrid.Window) ([]models.Conflict, error) {
	permanent, err := s.constraints.ListPermanent(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load permanent constraints")
	}
	weekly, err := s.constraints.ListWeekly(ctx, userID, weekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load weekly constraints")
	}
	soft := appendConstraintConflicts(nil, permanent, models.ConflictPermanentConstraint, userID, window, false)
	return appendConstraintConflicts(soft, weekly, models.ConflictWeeklyConstraint, userID, window, false), nil
}

// Occupied returns every grid slot the user cannot be scheduled into for the week.
func (s *ConflictService) Occupied(ctx context.Context, userID string, weekStart time.Time, grid timegrid.Grid) (slotSet, error) {
	busy := make(slotSet)

	permanent, err := s.constraints.ListPermanent(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load permanent constraints")
	}
	weekly, err := s.constraints.ListWeekly(ctx, userID, weekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load weekly constraints")
	}
	for _, c := range append(permanent, weekly...) {
		if !c.IsHard {
			continue
		}
		for _, day := range c.Days.Days() {
			w, _ := c.WindowOn(day)
			busy.addWindow(w, grid)
		}
	}

	fixed, err := s.fixed.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load fixed schedule")
	}
	for _, item := range fixed {
		busy.addWindow(item.Window(), grid)
	}

	blocks, err := s.blocks.ListBlocks(ctx, userID, weekStart)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocks")
	}
	for _, b := range blocks {
		busy.addWindow(b.Window(), grid)
	}
	return busy, nil
}

func appendConstraintConflicts(dst []models.Conflict, constraints []models.Constraint, source models.ConflictSource, userID string, window timegrid.Window, hard bool) []models.Conflict {
	for _, c := range constraints {
		if c.IsHard != hard {
			continue
		}
		if w, ok := c.WindowOn(window.Day); ok && w.Overlaps(window) {
			dst = append(dst, models.NewConflict(source, c.ID, userID, c.Label(), w))
		}
	}
	return dst
}

func (q ConflictQuery) skips(b models.ScheduleBlock) bool {
	if q.ExclusionGroupID != "" && (b.GroupID == nil || *b.GroupID != q.ExclusionGroupID) {
		return false
	}
	w := b.Window()
	for _, ex := range q.Exclusions {
		if ex.Contains(w) {
			return true
		}
	}
	return false
}

func conflictError(conflicts []models.Conflict) error {
	return appErrors.WithDetails(appErrors.ErrConflict, "schedule conflict: "+models.DescribeConflicts(conflicts), conflicts)
}

// slotSet is a set of occupied grid slots.
type slotSet map[timegrid.Slot]struct{}

func (s slotSet) addWindow(w timegrid.Window, grid timegrid.Grid) {
	for _, slot := range timegrid.SlotsOf(w) {
		if grid.Contains(slot) {
			s[slot] = struct{}{}
		}
	}
}

func (s slotSet) has(slot timegrid.Slot) bool {
	_, ok := s[slot]
	return ok
}

// freeSlots lists grid slots not occupied by any of the sets, in week order.
func freeSlots(grid timegrid.Grid, busy ...slotSet) []timegrid.Slot {
	free := make([]timegrid.Slot, 0, grid.SlotsPerDay()*timegrid.DaysPerWeek)
	for _, slot := range grid.AllSlots() {
		taken := false
		for _, set := range busy {
			if set.has(slot) {
				taken = true
				break
			}
		}
		if !taken {
			free = append(free, slot)
		}
	}
	return free
}
