package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
	"github.com/uniplan/uniplan-api/pkg/jobs"
	"github.com/uniplan/uniplan-api/pkg/notify"
)

const jobTypePush = "push_notification"

// NotificationConfig tunes the background dispatch queue.
type NotificationConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
}

// NotificationService delivers push notifications through a background
// queue. A delivery failure is retried by the queue and never surfaces into
// the flow that triggered it.
type NotificationService struct {
	sender  notify.Sender
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService constructs the service and its dispatch queue.
func NewNotificationService(sender notify.Sender, cfg NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = notify.NopSender{}
	}

	s := &NotificationService{sender: sender, logger: logger, enabled: cfg.Enabled}
	s.queue = jobs.NewQueue("notifications", s.dispatch, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyGradePublished queues a push message telling the user a new grade
// landed. Users without a registered token are skipped.
func (s *NotificationService) NotifyGradePublished(user *models.User, subjectName, eventTitle string) {
	if !s.enabled || !user.HasNotificationToken() {
		return
	}

	body := fmt.Sprintf("A grade for %s was published", eventTitle)
	if subjectName != "" {
		body = fmt.Sprintf("A grade for %s was published in %s", eventTitle, subjectName)
	}

	msg := notify.Message{
		Token: *user.NotificationToken,
		Title: "New grade published",
		Body:  body,
		Data: map[string]string{
			"type": "grade_published",
		},
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobTypePush, Payload: msg}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("user_id", user.ID), zap.Error(err))
	}
}

// SendTest synchronously delivers a test message to the user's device. Used
// by the verification endpoint, so failures are returned to the caller.
func (s *NotificationService) SendTest(ctx context.Context, user *models.User) error {
	if !user.HasNotificationToken() {
		return appErrors.Clone(appErrors.ErrValidation, "user has no notification token registered")
	}
	if !s.enabled {
		return appErrors.Clone(appErrors.ErrValidation, "notifications are disabled")
	}

	msg := notify.Message{
		Token: *user.NotificationToken,
		Title: "Test notification",
		Body:  "Push notifications are working",
		Data:  map[string]string{"type": "test"},
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deliver test notification")
	}
	return nil
}

func (s *NotificationService) dispatch(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		s.logger.Error("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.sender.Send(ctx, msg)
}
