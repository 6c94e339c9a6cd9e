package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
)

var notificationRowColumns = []string{"id", "user_id", "type", "title", "message", "link", "read", "created_at"}

func TestNotificationRepositoryListUnreadNewestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	newer := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(notificationRowColumns).
		AddRow("n2", "u1", models.NotificationGroupChangeRequest, "Group meeting change request", "Move to Tuesday", "/change-requests/r1", false, newer).
		AddRow("n1", "u1", models.NotificationWeeklyPlanReady, "Weekly plan ready", "5 blocks", "/weekly-plans/2026-05-03", false, newer.Add(-time.Hour))
	mock.ExpectQuery("FROM notifications\\s+WHERE user_id = \\$1 AND NOT read ORDER BY created_at DESC").
		WithArgs("u1").
		WillReturnRows(rows)

	items, err := repo.ListUnread(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "n2", items[0].ID)
	assert.Equal(t, "/change-requests/r1", items[0].Link)
	assert.False(t, items[1].Read)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("n1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRead(context.Background(), "n1", "u1"))

	mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE id = \\$1 AND user_id = \\$2").
		WithArgs("n1", "u2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkRead(context.Background(), "n1", "u2")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET read = TRUE WHERE user_id = \\$1 AND NOT read").
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	marked, err := repo.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	mock.ExpectExec("UPDATE notifications").WithArgs("u1").WillReturnError(errors.New("connection reset"))
	_, err = repo.MarkAllRead(context.Background(), "u1")
	assert.ErrorContains(t, err, "mark notifications read")
	assert.NoError(t, mock.ExpectationsWereMet())
}
