package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

// DeadlineSettings tunes the monitor.
type DeadlineSettings struct {
	ThresholdDays int
	ExcludedState domain.CaseState
	// Cooldown suppresses repeat alerts for the same case; zero alerts on every scan.
	Cooldown time.Duration
}

// ScanReport summarises one scan.
type ScanReport struct {
	Reference  time.Time `json:"reference_date"`
	Matched    int       `json:"matched"`
	Alerted    int       `json:"alerted"`
	Suppressed int       `json:"suppressed"`
	Failed     int       `json:"failed"`
}

// DeadlineMonitor finds cases close to their response deadline and raises alerts.
type DeadlineMonitor struct {
	cases      repository.CaseRepository
	markers    repository.AlertMarkerRepository
	dispatcher events.Dispatcher
	settings   DeadlineSettings
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// DeadlineDependencies bundles collaborators of the monitor.
type DeadlineDependencies struct {
	CaseRepo   repository.CaseRepository
	Markers    repository.AlertMarkerRepository
	Dispatcher events.Dispatcher
	Settings   DeadlineSettings
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewDeadlineMonitor constructs the monitor.
func NewDeadlineMonitor(deps DeadlineDependencies) *DeadlineMonitor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := deps.Settings
	if settings.ExcludedState == "" {
		settings.ExcludedState = domain.CaseStateResolved
	}
	return &DeadlineMonitor{
		cases:      deps.CaseRepo,
		markers:    deps.Markers,
		dispatcher: deps.Dispatcher,
		settings:   settings,
		metrics:    deps.Metrics,
		logger:     logger.Named("deadline"),
	}
}

// ScanAndAlert alerts on every open case whose deadline is at most ThresholdDays after ref,
// overdue ones included. Per-case failures are counted; only the query can fail the scan.
func (m *DeadlineMonitor) ScanAndAlert(ctx context.Context, ref time.Time) (ScanReport, error) {
	report := ScanReport{Reference: domain.TruncateDay(ref)}

	matches, err := m.cases.FindNearDeadline(ctx, ref, m.settings.ThresholdDays, m.settings.ExcludedState)
	if err != nil {
		return report, storageError(err, "cases", nil)
	}
	report.Matched = len(matches)

	for i := range matches {
		c := &matches[i]
		switch m.alert(ctx, c, ref) {
		case alertSent:
			report.Alerted++
		case alertSuppressed:
			report.Suppressed++
		default:
			report.Failed++
		}
	}

	m.logger.Info("deadline scan finished",
		zap.Time("reference", report.Reference),
		zap.Int("matched", report.Matched),
		zap.Int("alerted", report.Alerted),
		zap.Int("suppressed", report.Suppressed),
		zap.Int("failed", report.Failed))
	return report, nil
}

type alertOutcome string

const (
	alertSent       alertOutcome = "alerted"
	alertSuppressed alertOutcome = "suppressed"
	alertFailed     alertOutcome = "failed"
)

func (m *DeadlineMonitor) alert(ctx context.Context, c *domain.Case, ref time.Time) alertOutcome {
	marked := false
	if m.markers != nil && m.settings.Cooldown > 0 {
		fresh, err := m.markers.MarkIfAbsent(ctx, c.ID, m.settings.Cooldown)
		switch {
		case err != nil:
			// without a marker store the case is alerted regardless
			m.logger.Warn("alert marker unavailable", zap.String("case_id", c.ID), zap.Error(err))
		case !fresh:
			m.metrics.RecordAlert(string(alertSuppressed))
			return alertSuppressed
		default:
			marked = true
		}
	}

	days, _ := c.DaysUntilDeadline(ref)
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventDeadlineAlert,
		CaseID:    c.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.DeadlineAlertPayload{
			Radicado:         c.Radicado,
			Subject:          c.Subject,
			ResponseDeadline: *c.ResponseDeadline,
			State:            c.State,
			DaysRemaining:    days,
		},
	}

	var err error
	if m.dispatcher != nil {
		err = m.dispatcher.Publish(ctx, event)
	}
	if err != nil {
		m.logger.Error("deadline alert failed",
			zap.String("case_id", c.ID),
			zap.String("radicado", c.Radicado),
			zap.Error(err))
		if marked {
			if clearErr := m.markers.Clear(ctx, c.ID); clearErr != nil {
				m.logger.Warn("alert marker not cleared", zap.String("case_id", c.ID), zap.Error(clearErr))
			}
		}
		m.metrics.RecordAlert(string(alertFailed))
		return alertFailed
	}

	m.metrics.RecordAlert(string(alertSent))
	return alertSent
}
