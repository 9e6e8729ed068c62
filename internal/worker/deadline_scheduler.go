package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/service"
)

// DeadlineScanner is satisfied by service.DeadlineMonitor.
type DeadlineScanner interface {
	ScanAndAlert(ctx context.Context, ref time.Time) (service.ScanReport, error)
}

// DeadlineScheduler runs the deadline scan on a fixed interval.
type DeadlineScheduler struct {
	scanner  DeadlineScanner
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeadlineScheduler builds the scheduler. A non-positive interval disables it.
func NewDeadlineScheduler(scanner DeadlineScanner, interval time.Duration, logger *zap.Logger) *DeadlineScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   logger.Named("deadline_scheduler"),
		now:      time.Now,
	}
}

// Run scans once immediately and then on every tick until ctx is cancelled.
func (s *DeadlineScheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("deadline scheduler disabled")
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *DeadlineScheduler) scan(ctx context.Context) {
	if _, err := s.scanner.ScanAndAlert(ctx, s.now()); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled deadline scan failed", zap.Error(err))
	}
}
