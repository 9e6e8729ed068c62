package worker

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/notification"
	"github.com/spec-kit/pqrs-service/internal/observability"
)

const (
	requeueGrace = 5 * time.Second
	// maxPending bounds the retries held by the worker between attempts.
	maxPending = 1024
)

// NotificationWorker drains the notification queue into a sender. Failed deliveries wait in a
// worker-local retry list instead of going back into the queue, so the worker never blocks on
// the queue it consumes.
type NotificationWorker struct {
	queue       notification.Queue
	sender      notification.Sender
	maxAttempts int
	retryDelay  time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time

	pending []pendingRetry
}

type pendingRetry struct {
	msg domain.Notification
	due time.Time
}

// NotificationWorkerOptions tunes delivery retries.
type NotificationWorkerOptions struct {
	MaxAttempts int
	// RetryDelay is multiplied by the attempt number to schedule the next attempt.
	RetryDelay time.Duration
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewNotificationWorker builds a worker.
func NewNotificationWorker(queue notification.Queue, sender notification.Sender, opts NotificationWorkerOptions) *NotificationWorker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &NotificationWorker{
		queue:       queue,
		sender:      sender,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		metrics:     opts.Metrics,
		logger:      opts.Logger.Named("notification_worker"),
		now:         time.Now,
	}
}

// Run delivers notifications until ctx is cancelled or the queue is closed. Retries still
// pending on exit are handed back to the queue when it has room.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started", zap.Int("max_attempts", w.maxAttempts))
	defer w.logger.Info("notification worker stopped")
	defer w.flushPending(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if msg, ok := w.nextDue(); ok {
			w.deliver(ctx, msg)
			continue
		}
		msg, err := w.dequeue(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, notification.ErrQueueClosed) {
				w.finishPending(ctx)
				return nil
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}
		if msg == nil {
			continue
		}
		w.deliver(ctx, *msg)
	}
}

// dequeue waits for the next message, but no longer than the next pending retry or limit.
// A nil message means the wait elapsed.
func (w *NotificationWorker) dequeue(ctx context.Context, limit time.Duration) (*domain.Notification, error) {
	wait := limit
	if len(w.pending) > 0 {
		untilDue := w.pending[0].due.Sub(w.now())
		if untilDue < time.Millisecond {
			untilDue = time.Millisecond
		}
		if wait <= 0 || untilDue < wait {
			wait = untilDue
		}
	}
	if wait <= 0 {
		return w.queue.Dequeue(ctx)
	}
	dctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	msg, err := w.queue.Dequeue(dctx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, nil
	}
	return msg, err
}

// nextDue pops the earliest retry if it is due.
func (w *NotificationWorker) nextDue() (domain.Notification, bool) {
	if len(w.pending) == 0 || w.pending[0].due.After(w.now()) {
		return domain.Notification{}, false
	}
	next := w.pending[0]
	w.pending = w.pending[1:]
	return next.msg, true
}

func (w *NotificationWorker) schedule(msg domain.Notification) bool {
	if len(w.pending) >= maxPending {
		return false
	}
	due := w.now().Add(time.Duration(msg.Attempts) * w.retryDelay)
	at := len(w.pending)
	for at > 0 && w.pending[at-1].due.After(due) {
		at--
	}
	w.pending = slices.Insert(w.pending, at, pendingRetry{msg: msg, due: due})
	return true
}

// finishPending delivers the remaining retries once the queue is closed.
func (w *NotificationWorker) finishPending(ctx context.Context) {
	for len(w.pending) > 0 {
		if !sleep(ctx, w.pending[0].due.Sub(w.now())) {
			return
		}
		if msg, ok := w.nextDue(); ok {
			w.deliver(ctx, msg)
		}
	}
}

// flushPending hands undelivered retries back to the queue for the next process.
func (w *NotificationWorker) flushPending(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueGrace)
	defer cancel()
	for _, p := range w.pending {
		if err := w.queue.Enqueue(fctx, p.msg); err != nil {
			w.metrics.RecordNotification(string(p.msg.Kind), "dropped")
			w.logger.Error("notification requeue failed",
				zap.String("id", p.msg.ID),
				zap.String("kind", string(p.msg.Kind)),
				zap.Int("attempt", p.msg.Attempts),
				zap.NamedError("requeue_error", err))
		}
	}
	w.pending = nil
}

func (w *NotificationWorker) deliver(ctx context.Context, msg domain.Notification) {
	msg.Attempts++
	err := w.sender.Send(ctx, msg)
	if err == nil {
		w.metrics.RecordNotification(string(msg.Kind), "sent")
		w.logger.Debug("notification sent",
			zap.String("id", msg.ID),
			zap.String("kind", string(msg.Kind)),
			zap.Int("attempt", msg.Attempts))
		return
	}
	var partial *notification.PartialError
	if errors.As(err, &partial) {
		msg.Delivered = partial.Delivered
	}

	fields := []zap.Field{
		zap.String("id", msg.ID),
		zap.String("kind", string(msg.Kind)),
		zap.String("case_id", msg.CaseID),
		zap.Int("attempt", msg.Attempts),
		zap.Strings("delivered", msg.Delivered),
		zap.Error(err),
	}
	if msg.Attempts >= w.maxAttempts {
		w.metrics.RecordNotification(string(msg.Kind), "dropped")
		w.logger.Error("notification dropped after retries", fields...)
		return
	}
	if !w.schedule(msg) {
		w.metrics.RecordNotification(string(msg.Kind), "dropped")
		w.logger.Error("notification dropped, retry list full", fields...)
		return
	}
	w.metrics.RecordNotification(string(msg.Kind), "retried")
	w.logger.Warn("notification delivery failed, retry scheduled", fields...)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Drain delivers queued notifications and due retries until nothing arrives within idle and no
// retry is pending, and returns how many deliveries it made. One-shot commands use it to flush an
// in-process queue before exiting.
func (w *NotificationWorker) Drain(ctx context.Context, idle time.Duration) int {
	defer w.flushPending(ctx)
	handled := 0
	for ctx.Err() == nil {
		if msg, ok := w.nextDue(); ok {
			w.deliver(ctx, msg)
			handled++
			continue
		}
		msg, err := w.dequeue(ctx, idle)
		if err != nil {
			if len(w.pending) == 0 || !sleep(ctx, w.pending[0].due.Sub(w.now())) {
				break
			}
			continue
		}
		if msg == nil {
			if len(w.pending) == 0 {
				break
			}
			continue
		}
		w.deliver(ctx, *msg)
		handled++
	}
	return handled
}
