package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

func newConstraintService(f *plannerFixture) *ConstraintService {
	svc := NewConstraintService(f.plans, f.plans, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return testWeek.Add(50 * time.Hour) }
	return svc
}

func TestConstraintServiceCreateWidensToHours(t *testing.T) {
	f := newPlannerFixture(t)
	svc := newConstraintService(f)

	resp, err := svc.Create(context.Background(), "u1", dto.CreateConstraintRequest{
		Title:     "Work",
		Days:      []int{1, 3},
		StartTime: "09:15",
		EndTime:   "10:40",
		WeekStart: "2026-05-05",
	})
	require.NoError(t, err)
	c := resp.Constraint
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.ConstraintScopeWeekly, c.Scope)
	require.NotNil(t, c.WeekStart)
	assert.True(t, c.WeekStart.Equal(testWeek))
	assert.Equal(t, timegrid.MustClock("09:00"), c.StartTime)
	assert.Equal(t, timegrid.MustClock("11:00"), c.EndTime)
	assert.True(t, c.IsHard)
	assert.Equal(t, []timegrid.Day{timegrid.Monday, timegrid.Wednesday}, c.Days.Days())
	assert.Empty(t, resp.Warnings)
}

func TestConstraintServiceRejectsSameScopeOverlap(t *testing.T) {
	f := newPlannerFixture(t)
	svc := newConstraintService(f)
	f.plans.addConstraint("u1", "Gym", true, true, testWeek, "10:00", "12:00", timegrid.Wednesday)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", dto.CreateConstraintRequest{
		Title: "Choir", Days: []int{3}, StartTime: "11:00", EndTime: "13:00", Permanent: true,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Contains(t, err.Error(), "Gym (10:00-12:00)")

	_, err = svc.Create(ctx, "u1", dto.CreateConstraintRequest{
		Title: "Trip", Days: []int{3}, StartTime: "11:00", EndTime: "13:00", WeekStart: "2026-05-03",
	})
	require.NoError(t, err)
}

func TestConstraintServiceWarnsAboutPlannedBlocks(t *testing.T) {
	f := newPlannerFixture(t)
	svc := newConstraintService(f)
	f.plans.addRun("u1", testWeek, "db", models.WorkTypePersonal, nil, timegrid.Thursday, "14:00", "16:00")
	soft := false

	resp, err := svc.Create(context.Background(), "u1", dto.CreateConstraintRequest{
		Title: "Call", Days: []int{4}, StartTime: "15:00", EndTime: "16:00", Hard: &soft, Permanent: true,
	})
	require.NoError(t, err)
	assert.False(t, resp.Constraint.IsHard)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "DB (15:00-16:00)")
}

func TestConstraintServiceValidation(t *testing.T) {
	f := newPlannerFixture(t)
	svc := newConstraintService(f)
	cases := []struct {
		name string
		req  dto.CreateConstraintRequest
	}{
		{name: "inverted", req: dto.CreateConstraintRequest{Title: "x", Days: []int{1}, StartTime: "12:00", EndTime: "11:00", Permanent: true}},
		{name: "bad day", req: dto.CreateConstraintRequest{Title: "x", Days: []int{7}, StartTime: "10:00", EndTime: "11:00", Permanent: true}},
		{name: "weekly without week", req: dto.CreateConstraintRequest{Title: "x", Days: []int{1}, StartTime: "10:00", EndTime: "11:00"}},
		{name: "bad clock", req: dto.CreateConstraintRequest{Title: "x", Days: []int{1}, StartTime: "ten", EndTime: "11:00", Permanent: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "u1", tc.req)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
		})
	}
	assert.Empty(t, f.plans.constraints)
}

func TestConstraintServiceDeleteAndList(t *testing.T) {
	f := newPlannerFixture(t)
	svc := newConstraintService(f)
	ctx := context.Background()
	f.plans.addConstraint("u1", "Gym", true, true, testWeek, "10:00", "12:00", timegrid.Wednesday)
	f.plans.addConstraint("u1", "Trip", false, true, testWeek, "08:00", "21:00", timegrid.Friday)
	f.plans.addConstraint("u2", "Work", true, true, testWeek, "08:00", "12:00", timegrid.Monday)

	list, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-03", list.WeekStart)
	assert.Len(t, list.Permanent, 1)
	assert.Len(t, list.Weekly, 1)

	foreign := f.plans.constraints[2].ID
	err = svc.Delete(ctx, "u1", foreign)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	err = svc.Delete(ctx, "u1", "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	require.NoError(t, svc.Delete(ctx, "u1", list.Permanent[0].ID))
	list, err = svc.List(ctx, "u1", "2026-05-03")
	require.NoError(t, err)
	assert.Empty(t, list.Permanent)
}
