package service

import (
	"context"
	"sort"
	"time"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

// ScheduleViewService assembles a user's week for display.
type ScheduleViewService struct {
	blocks      blockReader
	constraints constraintReader
	fixed       fixedScheduleReader
	now         func() time.Time
}

// NewScheduleViewService constructs the service.
func NewScheduleViewService(blocks blockReader, constraints constraintReader, fixed fixedScheduleReader) *ScheduleViewService {
	return &ScheduleViewService{
		blocks:      blocks,
		constraints: constraints,
		fixed:       fixed,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetWeek returns merged sessions, constraint occurrences and fixed items. An empty week means
// the current one.
func (s *ScheduleViewService) GetWeek(ctx context.Context, userID, rawWeek string) (*dto.WeekView, error) {
	week := timegrid.WeekStart(s.now())
	if rawWeek != "" {
		parsed, err := timegrid.ParseWeek(rawWeek)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week start")
		}
		week = parsed
	}

	blocks, err := s.blocks.ListBlocks(ctx, userID, week)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load blocks")
	}
	permanent, err := s.constraints.ListPermanent(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load permanent constraints")
	}
	weekly, err := s.constraints.ListWeekly(ctx, userID, week)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load weekly constraints")
	}
	fixed, err := s.fixed.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load fixed schedule")
	}
	if fixed == nil {
		fixed = []models.FixedScheduleItem{}
	}

	return &dto.WeekView{
		WeekStart:   timegrid.FormatWeek(week),
		Sessions:    mergeSessions(blocks),
		Constraints: constraintOccurrences(append(permanent, weekly...)),
		Fixed:       fixed,
	}, nil
}

// mergeSessions joins back-to-back blocks of the same course, work type and group.
func mergeSessions(blocks []models.ScheduleBlock) []dto.Session {
	sorted := append([]models.ScheduleBlock(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].StartTime < sorted[j].StartTime
	})

	sessions := make([]dto.Session, 0, len(sorted))
	var prev *models.ScheduleBlock
	for i := range sorted {
		b := &sorted[i]
		if prev != nil && len(sessions) > 0 {
			last := &sessions[len(sessions)-1]
			if b.Day == last.Day && b.StartTime == last.EndTime && b.SameKind(*prev) && sameGroup(*b, *prev) {
				last.EndTime = b.EndTime
				last.BlockIDs = append(last.BlockIDs, b.ID)
				prev = b
				continue
			}
		}
		sessions = append(sessions, dto.Session{
			CourseNumber: b.CourseNumber,
			CourseName:   b.CourseName,
			WorkType:     b.WorkType,
			GroupID:      b.GroupID,
			Day:          b.Day,
			StartTime:    b.StartTime,
			EndTime:      b.EndTime,
			Source:       b.Source,
			BlockIDs:     []string{b.ID},
		})
		prev = b
	}
	return sessions
}

func constraintOccurrences(constraints []models.Constraint) []dto.ConstraintOccurrence {
	out := make([]dto.ConstraintOccurrence, 0, len(constraints))
	for _, c := range constraints {
		for _, day := range c.Days.Days() {
			out = append(out, dto.ConstraintOccurrence{
				ID:        c.ID,
				Title:     c.Title,
				Scope:     c.Scope,
				Hard:      c.IsHard,
				Day:       day,
				StartTime: c.StartTime,
				EndTime:   c.EndTime,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
