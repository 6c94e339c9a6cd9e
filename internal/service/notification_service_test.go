package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

// memNotifications keeps notifications in memory.
type memNotifications struct {
	items   []models.Notification
	listErr error
}

func (m *memNotifications) Create(_ context.Context, n *models.Notification) error {
	m.items = append(m.items, *n)
	return nil
}

func (m *memNotifications) ListUnread(_ context.Context, userID string) ([]models.Notification, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Notification
	for _, n := range m.items {
		if n.UserID == userID && !n.Read {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memNotifications) MarkRead(_ context.Context, id, userID string) error {
	for i, n := range m.items {
		if n.ID == id && n.UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var marked int64
	for i, n := range m.items {
		if n.UserID == userID && !n.Read {
			m.items[i].Read = true
			marked++
		}
	}
	return marked, nil
}

func TestNotificationServiceReadFlow(t *testing.T) {
	store := &memNotifications{}
	svc := NewNotificationService(store, NewMetricsService(), nil)
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	svc.Notify(ctx, models.Notification{ID: "n1", UserID: "u1", Type: models.NotificationWeeklyPlanReady, Title: "Weekly plan ready", CreatedAt: base})
	svc.Notify(ctx, models.Notification{ID: "n2", UserID: "u1", Type: models.NotificationGroupChangeRequest, Title: "Change request", CreatedAt: base.Add(time.Hour)})
	svc.Notify(ctx, models.Notification{ID: "n3", UserID: "u2", Type: models.NotificationGroupChangeRequest, Title: "Change request", CreatedAt: base})

	unread, err := svc.ListUnread(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "n2", unread[0].ID)

	resp, err := svc.MarkRead(ctx, "u1", "n2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Marked)

	_, err = svc.MarkRead(ctx, "u1", "n3")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	resp, err = svc.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Marked)

	unread, err = svc.ListUnread(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, unread)
	assert.Empty(t, unread)

	others, err := svc.ListUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestNotificationServiceListFailureIsInternal(t *testing.T) {
	svc := NewNotificationService(&memNotifications{listErr: errors.New("connection reset")}, nil, nil)

	_, err := svc.ListUnread(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
}
