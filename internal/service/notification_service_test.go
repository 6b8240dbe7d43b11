package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniplan/uniplan-api/internal/models"
	appErrors "github.com/uniplan/uniplan-api/pkg/errors"
	"github.com/uniplan/uniplan-api/pkg/notify"
)

type recordingSender struct {
	messages chan notify.Message
}

func newRecordingSender() *recordingSender {
	return &recordingSender{messages: make(chan notify.Message, 8)}
}

func (r *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	r.messages <- msg
	return nil
}

func TestNotificationServiceSendTest(t *testing.T) {
	sender := newRecordingSender()
	svc := NewNotificationService(sender, NotificationConfig{Enabled: true}, zap.NewNop())

	token := "device-token"
	user := &models.User{ID: "u1", NotificationToken: &token}

	require.NoError(t, svc.SendTest(context.Background(), user))
	msg := <-sender.messages
	assert.Equal(t, "device-token", msg.Token)
	assert.Equal(t, "Test notification", msg.Title)
}

func TestNotificationServiceSendTestWithoutToken(t *testing.T) {
	svc := NewNotificationService(newRecordingSender(), NotificationConfig{Enabled: true}, zap.NewNop())

	err := svc.SendTest(context.Background(), &models.User{ID: "u1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestNotificationServiceGradePublishedDispatch(t *testing.T) {
	sender := newRecordingSender()
	svc := NewNotificationService(sender, NotificationConfig{Enabled: true, Workers: 1}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	token := "device-token"
	user := &models.User{ID: "u1", NotificationToken: &token}
	svc.NotifyGradePublished(user, "Databases", "Midterm")

	select {
	case msg := <-sender.messages:
		assert.Equal(t, "device-token", msg.Token)
		assert.Contains(t, msg.Body, "Midterm")
		assert.Contains(t, msg.Body, "Databases")
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestNotificationServiceSkipsUsersWithoutToken(t *testing.T) {
	sender := newRecordingSender()
	svc := NewNotificationService(sender, NotificationConfig{Enabled: true, Workers: 1}, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	svc.NotifyGradePublished(&models.User{ID: "u1"}, "Databases", "Midterm")

	select {
	case <-sender.messages:
		t.Fatal("unexpected notification for user without token")
	case <-time.After(100 * time.Millisecond):
	}
}
