package notification

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// Sender delivers a single notification.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, n domain.Notification) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, n domain.Notification) error {
	return f(ctx, n)
}

// LogSender writes notifications to the log. Used when no transport is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the notification and never fails.
func (s *LogSender) Send(_ context.Context, n domain.Notification) error {
	s.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("case_id", n.CaseID))
	return nil
}

// Leg is one named transport of a MultiSender.
type Leg struct {
	Name   string
	Sender Sender
}

// PartialError reports a fan-out where some legs failed. Delivered lists every leg that has
// accepted the notification so far, including ones skipped because of an earlier attempt.
type PartialError struct {
	Delivered []string
	Err       error
}

func (e *PartialError) Error() string { return e.Err.Error() }

func (e *PartialError) Unwrap() error { return e.Err }

// MultiSender delivers to every leg and fails if any of them failed. Legs already listed in
// Notification.Delivered are skipped, so a retried notification only reaches the legs that
// failed before.
type MultiSender []Leg

// Send fans out to all legs not yet delivered.
func (m MultiSender) Send(ctx context.Context, n domain.Notification) error {
	delivered := append([]string(nil), n.Delivered...)
	var errs []error
	for _, leg := range m {
		if slices.Contains(n.Delivered, leg.Name) {
			continue
		}
		if err := leg.Sender.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", leg.Name, err))
			continue
		}
		delivered = append(delivered, leg.Name)
	}
	if len(errs) == 0 {
		return nil
	}
	return &PartialError{Delivered: delivered, Err: errors.Join(errs...)}
}
