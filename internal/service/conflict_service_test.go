package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

func mondayWindow(start, end string) timegrid.Window {
	return timegrid.Window{Day: timegrid.Monday, Start: timegrid.MustClock(start), End: timegrid.MustClock(end)}
}

func TestConflictServiceCheckOrdersSources(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addRun("u1", testWeek, "db", models.WorkTypePersonal, nil, timegrid.Monday, "11:00", "12:00")
	f.plans.fixed = append(f.plans.fixed, models.FixedScheduleItem{
		ID: "lec-1", UserID: "u1", CourseNumber: "db", Title: "Lecture",
		Day: timegrid.Monday, StartTime: timegrid.MustClock("10:00"), EndTime: timegrid.MustClock("11:00"),
	})
	f.plans.addConstraint("u1", "Work", false, true, testWeek, "09:00", "11:00", timegrid.Monday)
	f.plans.addConstraint("u1", "Gym", true, true, testWeek, "08:00", "09:30", timegrid.Monday)
	f.plans.addConstraint("u1", "Nap", true, false, testWeek, "09:00", "10:00", timegrid.Monday)

	conflicts, err := f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: testWeek, Window: mondayWindow("09:00", "12:00")})
	require.NoError(t, err)
	require.Len(t, conflicts, 4)

	sources := []models.ConflictSource{conflicts[0].Source, conflicts[1].Source, conflicts[2].Source, conflicts[3].Source}
	assert.Equal(t, []models.ConflictSource{
		models.ConflictPermanentConstraint,
		models.ConflictWeeklyConstraint,
		models.ConflictFixedItem,
		models.ConflictBlock,
	}, sources)
	assert.Equal(t, "Permanent hard constraint: Gym (08:00-09:30)", conflicts[0].Description)
	assert.Equal(t, "Weekly hard constraint: Work (09:00-11:00)", conflicts[1].Description)
	assert.Equal(t, "Fixed schedule: Lecture (10:00-11:00)", conflicts[2].Description)
	assert.Equal(t, "Existing block: DB (11:00-12:00)", conflicts[3].Description)
}

func TestConflictServiceHalfOpenBoundaries(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addConstraint("u1", "Work", true, true, testWeek, "09:00", "11:00", timegrid.Monday)

	conflicts, err := f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: testWeek, Window: mondayWindow("11:00", "12:00")})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: testWeek, Window: timegrid.Window{Day: timegrid.Tuesday, Start: timegrid.Hour(9), End: timegrid.Hour(10)}})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictServiceWeeklyConstraintOnlyAppliesToItsWeek(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addConstraint("u1", "Trip", false, true, testWeek, "09:00", "17:00", timegrid.Monday)

	nextWeek := testWeek.AddDate(0, 0, 7)
	conflicts, err := f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: nextWeek, Window: mondayWindow("10:00", "11:00")})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictServiceExclusionsAndSameCourse(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addRun("u1", testWeek, "db", models.WorkTypePersonal, nil, timegrid.Monday, "10:00", "12:00")
	ctx := context.Background()

	conflicts, err := f.conflicts.Check(ctx, ConflictQuery{
		UserID: "u1", WeekStart: testWeek, Window: mondayWindow("11:00", "13:00"),
		Exclusions: []timegrid.Window{mondayWindow("10:00", "12:00")},
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = f.conflicts.Check(ctx, ConflictQuery{
		UserID: "u1", WeekStart: testWeek, Window: mondayWindow("11:00", "13:00"),
		CourseNumber: "db", WorkType: models.WorkTypePersonal, IgnoreSameCourse: true,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = f.conflicts.Check(ctx, ConflictQuery{
		UserID: "u1", WeekStart: testWeek, Window: mondayWindow("11:00", "13:00"),
		CourseNumber: "db", WorkType: models.WorkTypeGroup, IgnoreSameCourse: true,
	})
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestConflictServiceRejectsInvalidWindow(t *testing.T) {
	f := newPlannerFixture(t)
	_, err := f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: testWeek, Window: mondayWindow("12:00", "11:00")})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestConflictServiceSoftOverlapsNeverBlock(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addConstraint("u1", "Coffee", true, false, testWeek, "10:00", "11:00", timegrid.Monday)

	hard, err := f.conflicts.Check(context.Background(), ConflictQuery{UserID: "u1", WeekStart: testWeek, Window: mondayWindow("10:00", "11:00")})
	require.NoError(t, err)
	assert.Empty(t, hard)

	soft, err := f.conflicts.SoftOverlaps(context.Background(), "u1", testWeek, mondayWindow("10:00", "11:00"))
	require.NoError(t, err)
	require.Len(t, soft, 1)
	assert.Equal(t, "Coffee (10:00-11:00)", soft[0].Label)
}

func TestConflictServiceCommonFreeSlots(t *testing.T) {
	f := newPlannerFixture(t)
	f.plans.addConstraint("alice", "Shift", true, true, testWeek, "10:00", "11:00", timegrid.Monday)
	f.plans.addConstraint("alice", "Soft", true, false, testWeek, "12:00", "13:00", timegrid.Monday)
	ctx := context.Background()

	alice, err := f.conflicts.Occupied(ctx, "alice", testWeek, timegrid.DefaultGrid)
	require.NoError(t, err)
	bob, err := f.conflicts.Occupied(ctx, "bob", testWeek, timegrid.DefaultGrid)
	require.NoError(t, err)
	assert.Empty(t, bob)

	free := freeSlots(timegrid.DefaultGrid, alice, bob)
	assert.Len(t, free, timegrid.DefaultGrid.SlotsPerDay()*timegrid.DaysPerWeek-1)
	assert.NotContains(t, free, timegrid.Slot{Day: timegrid.Monday, Hour: 10})
	assert.Contains(t, free, timegrid.Slot{Day: timegrid.Monday, Hour: 12})
}

func TestConflictErrorCarriesDetails(t *testing.T) {
	conflicts := []models.Conflict{
		models.NewConflict(models.ConflictWeeklyConstraint, "c1", "u1", "Work (09:00-11:00)", mondayWindow("09:00", "11:00")),
	}
	err := conflictError(conflicts)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Work (09:00-11:00)")
	assert.Equal(t, conflicts, appErr.Details)
}
