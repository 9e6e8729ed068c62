package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/notification"
	"github.com/spec-kit/pqrs-service/internal/observability"
)

// enqueueTimeout bounds how long a publisher waits for room in the queue.
const enqueueTimeout = 2 * time.Second

// NotificationService turns domain events into queued notifications.
type NotificationService struct {
	dispatcher     events.Dispatcher
	queue          notification.Queue
	metrics        *observability.Metrics
	logger         *zap.Logger
	cfg            config.NotificationConfig
	enqueueTimeout time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, queue notification.Queue, metrics *observability.Metrics, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		queue:      queue,
		metrics:    metrics,
		logger:     logger.Named("notifications"),
		cfg:        cfg,

		enqueueTimeout: enqueueTimeout,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCaseCreated, n.handleCaseCreated)
	n.dispatcher.Subscribe(events.EventCaseStateChanged, n.handleCaseStateChanged)
	n.dispatcher.Subscribe(events.EventDeadlineAlert, n.handleDeadlineAlert)
}

func (n *NotificationService) handleCaseCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if payload.RequesterEmail == "" {
		n.logger.Debug("case created without requester email", zap.String("case_id", event.CaseID))
		return nil
	}
	return n.enqueue(ctx, domain.Notification{
		Kind:      domain.NotificationCaseCreated,
		Recipient: payload.RequesterEmail,
		CaseID:    event.CaseID,
		Subject:   fmt.Sprintf("Radicado %s recibido", payload.Radicado),
		Body: fmt.Sprintf("Su solicitud con radicado %s fue registrada como %s.\nAsunto: %s\nEstado: %s",
			payload.Radicado, payload.Category, payload.Subject, payload.State),
	})
}

func (n *NotificationService) handleCaseStateChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CaseStateChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if payload.RequesterEmail == "" {
		n.logger.Debug("state change without requester email", zap.String("case_id", event.CaseID))
		return nil
	}
	body := fmt.Sprintf("El estado de su solicitud %s cambió de %s a %s.",
		payload.Radicado, payload.PreviousState, payload.NewState)
	if strings.TrimSpace(payload.Comments) != "" {
		body += "\nComentarios: " + payload.Comments
	}
	return n.enqueue(ctx, domain.Notification{
		Kind:      domain.NotificationCaseStateChanged,
		Recipient: payload.RequesterEmail,
		CaseID:    event.CaseID,
		Subject:   fmt.Sprintf("Actualización del radicado %s", payload.Radicado),
		Body:      body,
	})
}

func (n *NotificationService) handleDeadlineAlert(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DeadlineAlertPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return n.enqueue(ctx, domain.Notification{
		Kind:      domain.NotificationDeadlineAlert,
		Recipient: n.cfg.OpsRecipient,
		CaseID:    event.CaseID,
		Subject:   fmt.Sprintf("Radicado %s próximo a vencer", payload.Radicado),
		Body: fmt.Sprintf("Radicado: %s\nAsunto: %s\nFecha límite: %s\nEstado: %s\nDías restantes: %d",
			payload.Radicado, payload.Subject, payload.ResponseDeadline.Format("2006-01-02"),
			payload.State, payload.DaysRemaining),
	})
}

func (n *NotificationService) enqueue(ctx context.Context, msg domain.Notification) error {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(ctx, n.enqueueTimeout)
	defer cancel()
	if err := n.queue.Enqueue(ctx, msg); err != nil {
		n.metrics.RecordNotification(string(msg.Kind), "enqueue_failed")
		return fmt.Errorf("enqueue %s notification: %w", msg.Kind, err)
	}
	n.metrics.RecordNotification(string(msg.Kind), "queued")
	n.logger.Debug("notification queued",
		zap.String("id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("case_id", msg.CaseID))
	return nil
}
