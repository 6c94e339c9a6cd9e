package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	"github.com/noah-isme/study-planner-api/pkg/cache"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type stubOptimizer struct {
	calls int
	fn    func(req OptimizationRequest) (*OptimizationResult, error)
}

func (s *stubOptimizer) Optimize(_ context.Context, req OptimizationRequest) (*OptimizationResult, error) {
	s.calls++
	return s.fn(req)
}

type weeklyFixture struct {
	*plannerFixture
	planner *WeeklyPlannerService
}

func newWeeklyFixture(t *testing.T, optimizer SlotOptimizer, locker cache.Locker) *weeklyFixture {
	t.Helper()
	f := newPlannerFixture(t)
	f.courses.addCourse("db", "Databases", 6)
	f.courses.addCourse("os", "Operating Systems", 4)
	f.courses.enroll("alice", "db", "os")
	f.courses.enroll("bob", "db")
	f.groups.add("g1", "db", "alice", "bob")
	f.plans.addConstraint("alice", "Shift", true, true, testWeek, "10:00", "11:00", timegrid.Monday)

	planner := NewWeeklyPlannerService(WeeklyPlannerParams{
		Plans:     f.plans,
		Occupancy: f.conflicts,
		Courses:   f.courses,
		Groups:    f.groups,
		Prefs:     f.prefs,
		Seeder:    f.prefSvc,
		Optimizer: optimizer,
		Locker:    locker,
		Notifier:  f.notifier,
		Logger:    zap.NewNop(),
		Config:    WeeklyPlannerConfig{Grid: timegrid.DefaultGrid, Workers: 2},
	})
	planner.now = func() time.Time { return time.Date(2026, 4, 29, 12, 0, 0, 0, time.UTC) }
	return &weeklyFixture{plannerFixture: f, planner: planner}
}

func assertNoOverlaps(t *testing.T, blocks []models.ScheduleBlock) {
	t.Helper()
	seen := make(map[timegrid.Slot]string, len(blocks))
	for _, b := range blocks {
		for _, slot := range timegrid.SlotsOf(b.Window()) {
			if prev, dup := seen[slot]; dup {
				t.Fatalf("slot %s booked twice (%s and %s)", slot, prev, b.CourseNumber)
			}
			seen[slot] = b.CourseNumber
		}
	}
}

func TestWeeklyPlannerRunSchedulesGroupsThenUsers(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	ctx := context.Background()

	report, err := f.planner.Run(ctx, testWeek)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-03", report.WeekStart)
	assert.Equal(t, 1, report.GroupsScheduled)
	assert.Equal(t, 2, report.UsersPlanned)
	assert.Empty(t, report.Failures)
	// 9 group hours for two members, then 9+6 personal hours for alice and 9 for bob
	assert.Equal(t, 18+15+9, report.BlocksCreated)

	monday10 := timegrid.Slot{Day: timegrid.Monday, Hour: 10}
	groupBlocks, err := f.plans.ListGroupBlocks(ctx, "g1", testWeek)
	require.NoError(t, err)
	assert.Len(t, groupBlocks, 9)
	for _, g := range groupBlocks {
		assert.NotEqual(t, monday10, timegrid.Slot{Day: g.Day, Hour: g.StartTime.HourOf()})
	}

	for _, user := range []string{"alice", "bob"} {
		blocks, err := f.plans.ListBlocks(ctx, user, testWeek)
		require.NoError(t, err)
		assertNoOverlaps(t, blocks)
		group := 0
		for _, b := range blocks {
			if b.WorkType == models.WorkTypeGroup {
				group++
			}
			assert.Equal(t, models.BlockSourceAuto, b.Source)
		}
		assert.Equal(t, 9, group, user)
	}

	alice, err := f.plans.ListBlocks(ctx, "alice", testWeek)
	require.NoError(t, err)
	for _, b := range alice {
		assert.False(t, b.Window().Overlaps(mondayWindow("10:00", "11:00")), "alice booked during her shift")
	}

	sessions := f.notifier.to("bob", models.NotificationGroupSessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "/weekly-plans/2026-05-03", sessions[0].Link)
	assert.Len(t, f.notifier.to("alice", models.NotificationWeeklyPlanReady), 1)

	pref, err := f.prefs.Get(ctx, "alice", "os")
	require.NoError(t, err)
	assert.Equal(t, 6.0, pref.PersonalHoursPerWeek)
}

func TestWeeklyPlannerRerunReplacesWeek(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	ctx := context.Background()

	first, err := f.planner.Run(ctx, testWeek)
	require.NoError(t, err)
	second, err := f.planner.Run(ctx, testWeek)
	require.NoError(t, err)

	assert.Equal(t, first.BlocksCreated, second.BlocksCreated)
	assert.Equal(t, first.BlocksCreated, second.Cleanup.Deleted.Blocks)
	assert.Equal(t, 2, second.Cleanup.Deleted.Plans)
	assert.Equal(t, 9, second.Cleanup.Deleted.GroupBlocks)
}

func TestWeeklyPlannerLeavesOtherWeeksUntouched(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	ctx := context.Background()
	previous := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	kept := f.plans.addRun("alice", previous, "db", models.WorkTypePersonal, nil, timegrid.Monday, "13:00", "15:00")

	report, err := f.planner.Generate(ctx, "2026-02-08")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-08", report.WeekStart)
	assert.Equal(t, models.WeekCounts{Plans: 1, Blocks: 2}, report.Cleanup.Others)

	stored, err := f.plans.ListBlocks(ctx, "alice", previous)
	require.NoError(t, err)
	assert.Equal(t, blockIDs(kept), blockIDs(stored))
}

func TestWeeklyPlannerRejectsWeeksBeforeCutoff(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	f.planner.cfg.MinWeek = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.planner.Generate(context.Background(), "2026-04-26")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.planner.Generate(context.Background(), "2026-05-03")
	require.NoError(t, err)
}

func TestWeeklyPlannerRejectsMalformedWeek(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	_, err := f.planner.Generate(context.Background(), "next week")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestWeeklyPlannerFallsBackOnInvalidOracleResult(t *testing.T) {
	oracle := &stubOptimizer{fn: func(req OptimizationRequest) (*OptimizationResult, error) {
		return &OptimizationResult{Assignments: []SlotAssignment{
			{CourseNumber: req.Quotas[0].CourseNumber, Day: timegrid.Monday, Start: timegrid.Hour(10)},
			{CourseNumber: req.Quotas[0].CourseNumber, Day: timegrid.Monday, Start: timegrid.Hour(10)},
		}}, nil
	}}
	f := newWeeklyFixture(t, oracle, nil)

	report, err := f.planner.Run(context.Background(), testWeek)
	require.NoError(t, err)
	assert.Equal(t, 3, oracle.calls)
	assert.Zero(t, report.OracleAccepted)
	assert.Equal(t, 3, report.OracleFallbacks)
	assert.Equal(t, 42, report.BlocksCreated)
}

func TestWeeklyPlannerFallsBackOnOracleError(t *testing.T) {
	oracle := &stubOptimizer{fn: func(OptimizationRequest) (*OptimizationResult, error) {
		return nil, errors.New("upstream timeout")
	}}
	f := newWeeklyFixture(t, oracle, nil)

	report, err := f.planner.Run(context.Background(), testWeek)
	require.NoError(t, err)
	assert.Equal(t, 3, report.OracleFallbacks)
	assert.Equal(t, 1, report.GroupsScheduled)
}

func TestWeeklyPlannerAcceptsValidOracleResult(t *testing.T) {
	oracle := &stubOptimizer{fn: func(req OptimizationRequest) (*OptimizationResult, error) {
		var picked []SlotAssignment
		for _, q := range req.Quotas {
			for i := 0; i < q.Hours && len(picked) < len(req.OfferedSlots); i++ {
				s := req.OfferedSlots[len(req.OfferedSlots)-1-len(picked)]
				picked = append(picked, SlotAssignment{CourseNumber: q.CourseNumber, Day: s.Day, Start: s.Start})
			}
		}
		return &OptimizationResult{Assignments: picked}, nil
	}}
	f := newWeeklyFixture(t, oracle, nil)
	ctx := context.Background()

	report, err := f.planner.Run(ctx, testWeek)
	require.NoError(t, err)
	assert.Equal(t, 3, report.OracleAccepted)
	assert.Zero(t, report.OracleFallbacks)

	groupBlocks, err := f.plans.ListGroupBlocks(ctx, "g1", testWeek)
	require.NoError(t, err)
	for _, g := range groupBlocks {
		assert.Equal(t, timegrid.Saturday, g.Day)
	}
}

func TestWeeklyPlannerSkipsGroupWithoutQuota(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob"} {
		require.NoError(t, f.prefs.Upsert(ctx, &models.CoursePreference{UserID: user, CourseNumber: "db", PersonalHoursPerWeek: 2}))
	}

	report, err := f.planner.Run(ctx, testWeek)
	require.NoError(t, err)
	assert.Zero(t, report.GroupsScheduled)
	assert.Equal(t, 1, report.GroupsSkipped)
	assert.Empty(t, f.notifier.to("alice", models.NotificationGroupSessions))
	// alice: 2 db + 6 os, bob: 2 db
	assert.Equal(t, 10, report.BlocksCreated)
}

func TestWeeklyPlannerSingleRunAtATime(t *testing.T) {
	locker := cache.NewLocalLocker()
	f := newWeeklyFixture(t, nil, locker)
	ctx := context.Background()

	release, err := locker.TryLock(ctx, weeklyRunLockKey, time.Minute)
	require.NoError(t, err)

	_, err = f.planner.Run(ctx, testWeek)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusy.Code))
	assert.Zero(t, f.plans.applyCalls)

	require.NoError(t, release(ctx))
	_, err = f.planner.Run(ctx, testWeek)
	require.NoError(t, err)
}

func TestWeeklyPlannerNextWeek(t *testing.T) {
	f := newWeeklyFixture(t, nil, nil)
	assert.Equal(t, testWeek, f.planner.NextWeek())
}

func TestDescribeSessionsMergesRuns(t *testing.T) {
	got := describeSessions([]SlotAssignment{
		{CourseNumber: "db", Day: timegrid.Wednesday, Start: timegrid.Hour(9)},
		{CourseNumber: "db", Day: timegrid.Monday, Start: timegrid.Hour(11)},
		{CourseNumber: "db", Day: timegrid.Monday, Start: timegrid.Hour(10)},
	})
	assert.Equal(t, "Monday 10:00-12:00, Wednesday 09:00-10:00", got)
}
