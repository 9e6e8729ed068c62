package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/notification"
)

func newNotificationEnv(t *testing.T) (*testEnv, *notification.MemoryQueue) {
	t.Helper()
	env := newTestEnv(t, domain.DefaultWorkflow())
	queue := notification.NewMemoryQueue(16)
	svc := NewNotificationService(env.dispatcher, queue, nil, nil, config.NotificationConfig{OpsRecipient: "ops@pqrs.test"})
	svc.RegisterHandlers()
	return env, queue
}

func drain(t *testing.T, q *notification.MemoryQueue) []domain.Notification {
	t.Helper()
	var out []domain.Notification
	for q.Len() > 0 {
		n, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		out = append(out, *n)
	}
	return out
}

func TestNotificationsForCaseLifecycle(t *testing.T) {
	env, queue := newNotificationEnv(t)
	ctx := context.Background()

	c := env.mustCreate(t, CaseInput{Radicado: "N-1", Subject: "Solicito información", RequesterEmail: "ana@example.com"})
	_, _, err := env.engine.ApplyTransition(ctx, c.ID, domain.CaseStateInProgress, "en revisión")
	require.NoError(t, err)

	queued := drain(t, queue)
	require.Len(t, queued, 2)

	assert.Equal(t, domain.NotificationCaseCreated, queued[0].Kind)
	assert.Equal(t, "ana@example.com", queued[0].Recipient)

	changed := queued[1]
	assert.Equal(t, domain.NotificationCaseStateChanged, changed.Kind)
	assert.Equal(t, c.ID, changed.CaseID)
	assert.NotEmpty(t, changed.ID)
	assert.Contains(t, changed.Subject, "N-1")
	assert.Contains(t, changed.Body, "Open a InProgress")
	assert.Contains(t, changed.Body, "en revisión")
}

func TestNotificationsSkipCasesWithoutEmail(t *testing.T) {
	env, queue := newNotificationEnv(t)
	c := env.mustCreate(t, CaseInput{Radicado: "N-2"})
	_, _, err := env.engine.ApplyTransition(context.Background(), c.ID, domain.CaseStateResolved, "")
	require.NoError(t, err)

	assert.Zero(t, queue.Len())
}

func TestDeadlineAlertGoesToOperations(t *testing.T) {
	env, queue := newNotificationEnv(t)
	env.mustCreate(t, CaseInput{Radicado: "N-3", Subject: "plazo", ResponseDeadline: day(2024, 6, 10)})

	report, err := env.monitor(0).ScanAndAlert(context.Background(), time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerted)

	queued := drain(t, queue)
	require.Len(t, queued, 1)
	assert.Equal(t, domain.NotificationDeadlineAlert, queued[0].Kind)
	assert.Equal(t, "ops@pqrs.test", queued[0].Recipient)
	assert.Contains(t, queued[0].Body, "2024-06-10")
}

func TestNotificationEnqueueFailureSurfacesToPublisher(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	queue := notification.NewMemoryQueue(1)
	queue.Close()
	NewNotificationService(dispatcher, queue, nil, nil, config.NotificationConfig{OpsRecipient: "ops@pqrs.test"}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventDeadlineAlert,
		CaseID:  "c1",
		Payload: events.DeadlineAlertPayload{Radicado: "N-4", ResponseDeadline: time.Now()},
	})
	assert.True(t, errors.Is(err, notification.ErrQueueClosed))
}

func TestNotificationRejectsUnexpectedPayload(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, notification.NewMemoryQueue(1), nil, nil, config.NotificationConfig{}).RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventCaseCreated, Payload: "oops"})
	assert.Error(t, err)
}

func TestNotificationEnqueueGivesUpOnFullQueue(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	queue := notification.NewMemoryQueue(1)
	require.NoError(t, queue.Enqueue(context.Background(), domain.Notification{ID: "occupying"}))
	svc := NewNotificationService(dispatcher, queue, nil, nil, config.NotificationConfig{OpsRecipient: "ops@pqrs.test"})
	svc.enqueueTimeout = 50 * time.Millisecond
	svc.RegisterHandlers()

	started := time.Now()
	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventDeadlineAlert,
		CaseID:  "c1",
		Payload: events.DeadlineAlertPayload{Radicado: "N-5", ResponseDeadline: time.Now()},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, queue.Len())
}
