package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
	applogger "github.com/noah-isme/study-planner-api/pkg/logger"
)

const notificationJobType = "notification"

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListUnread(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService delivers in-app notifications in the background. Delivery failures never
// reach the caller.
type NotificationService struct {
	repo    notificationStore
	queue   notificationQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service. Call AttachQueue to deliver asynchronously;
// without a queue notifications are written inline.
func NewNotificationService(repo notificationStore, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, metrics: metrics, logger: logger}
}

// AttachQueue routes notifications through queue.
func (s *NotificationService) AttachQueue(queue notificationQueue) {
	s.queue = queue
}

// Notify schedules n for delivery.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if s.queue == nil {
		if err := s.Deliver(ctx, jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n}); err != nil {
			s.metrics.RecordNotification("failed")
			s.logger.Warn("notification delivery failed", zap.String("user_id", n.UserID), zap.String("type", n.Type), zap.Error(err))
		}
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: n.ID, Type: notificationJobType, Payload: n}); err != nil {
		s.metrics.RecordNotification("dropped")
		s.logger.Warn("notification dropped", zap.String("user_id", n.UserID), zap.String("type", n.Type), zap.Error(err))
	}
}

// Deliver is the queue handler; it persists one notification.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	if err := s.repo.Create(ctx, &n); err != nil {
		return err
	}
	s.metrics.RecordNotification("delivered")
	return nil
}

// OnDone records the final outcome of a queued delivery.
func (s *NotificationService) OnDone(job jobs.Job, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.metrics.RecordNotification("cancelled")
		return
	}
	s.metrics.RecordNotification("failed")
	s.logger.Error("notification delivery gave up", zap.String("job_id", job.ID), zap.Error(err))
}

// ListUnread returns the user's unread notifications, newest first.
func (s *NotificationService) ListUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	items, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) (*dto.MarkReadResponse, error) {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Internal(err, "failed to update notification")
	}
	return &dto.MarkReadResponse{NotificationID: id, Marked: 1}, nil
}

// MarkAllRead flags every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (*dto.MarkReadResponse, error) {
	marked, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update notifications")
	}
	applogger.FromContext(ctx, s.logger).Info("notifications marked read", zap.String("user_id", userID), zap.Int64("count", marked))
	return &dto.MarkReadResponse{Marked: marked}, nil
}
