package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/timegrid"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var repoWeek = time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

func TestPlanRepositoryListBlocksScansClocks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	rows := sqlmock.NewRows([]string{"id", "plan_id", "user_id", "course_number", "course_name", "work_type", "group_id", "day_of_week", "start_time", "end_time", "source", "created_at"}).
		AddRow("b1", "p1", "u1", "db", "DB", "personal", nil, 1, "10:00:00", "11:00:00", "auto", time.Now()).
		AddRow("b2", "p1", "u1", "db", "DB", "group", "g1", 2, "14:00:00", "15:00:00", "manual", time.Now())
	mock.ExpectQuery("FROM schedule_blocks b JOIN weekly_plans p").
		WithArgs("u1", repoWeek).
		WillReturnRows(rows)

	blocks, err := repo.ListBlocks(context.Background(), "u1", repoWeek)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, timegrid.Monday, blocks[0].Day)
	assert.Equal(t, timegrid.Hour(10), blocks[0].StartTime)
	assert.Nil(t, blocks[0].GroupID)
	require.NotNil(t, blocks[1].GroupID)
	assert.Equal(t, "g1", *blocks[1].GroupID)
	assert.Equal(t, models.WorkTypeGroup, blocks[1].WorkType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryApplyWritesInOneTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_blocks WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO schedule_blocks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO group_plan_blocks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	changes := models.BlockChangeSet{
		RemoveBlockIDs: []string{"b1", "b2"},
		AddBlocks: []models.ScheduleBlock{{
			PlanID: "p1", UserID: "u1", CourseNumber: "db", WorkType: models.WorkTypePersonal,
			Day: timegrid.Tuesday, StartTime: timegrid.Hour(9), EndTime: timegrid.Hour(10), Source: models.BlockSourceManual,
		}},
		AddGroupBlocks: []models.GroupPlanBlock{{
			GroupID: "g1", WeekStart: repoWeek, CourseNumber: "db", Day: timegrid.Tuesday,
			StartTime: timegrid.Hour(9), EndTime: timegrid.Hour(10), CreatedBy: "u1",
		}},
	}
	require.NoError(t, repo.Apply(context.Background(), changes))
	assert.NotEmpty(t, changes.AddBlocks[0].ID)
	assert.False(t, changes.AddGroupBlocks[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryApplyDetectsStaleRemovals(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_blocks WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), models.BlockChangeSet{RemoveBlockIDs: []string{"b1", "gone"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStaleWrite))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryApplyEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	require.NoError(t, NewPlanRepository(db).Apply(context.Background(), models.BlockChangeSet{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func weekCountRows(plans, blocks, groupBlocks int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"plans", "blocks", "group_blocks"}).AddRow(plans, blocks, groupBlocks)
}

func TestPlanRepositoryDeleteWeekKeepsOtherWeeks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(countOtherWeeksQuery)).WithArgs(repoWeek).WillReturnRows(weekCountRows(3, 40, 6))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM group_plan_blocks WHERE week_start = $1")).
		WithArgs(repoWeek).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schedule_blocks WHERE plan_id IN")).
		WithArgs(repoWeek).WillReturnResult(sqlmock.NewResult(0, 25))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weekly_plans WHERE week_start = $1")).
		WithArgs(repoWeek).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(regexp.QuoteMeta(countOtherWeeksQuery)).WithArgs(repoWeek).WillReturnRows(weekCountRows(3, 40, 6))
	mock.ExpectCommit()

	result, err := repo.DeleteWeek(context.Background(), repoWeek)
	require.NoError(t, err)
	assert.Equal(t, models.WeekCounts{Plans: 2, Blocks: 25, GroupBlocks: 4}, result.Deleted)
	assert.Equal(t, models.WeekCounts{Plans: 3, Blocks: 40, GroupBlocks: 6}, result.Others)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryDeleteWeekRollsBackWhenOthersChange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPlanRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(countOtherWeeksQuery)).WithArgs(repoWeek).WillReturnRows(weekCountRows(3, 40, 6))
	mock.ExpectExec("DELETE FROM group_plan_blocks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schedule_blocks").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("DELETE FROM weekly_plans").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(countOtherWeeksQuery)).WithArgs(repoWeek).WillReturnRows(weekCountRows(3, 38, 6))
	mock.ExpectRollback()

	_, err := repo.DeleteWeek(context.Background(), repoWeek)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "touched other weeks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepositoryCountWeek(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(countWeekQuery)).WithArgs(repoWeek).WillReturnRows(weekCountRows(1, 2, 0))
	counts, err := NewPlanRepository(db).CountWeek(context.Background(), repoWeek)
	require.NoError(t, err)
	assert.Equal(t, models.WeekCounts{Plans: 1, Blocks: 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
