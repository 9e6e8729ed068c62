package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

func seedDeadlines(t *testing.T, env *testEnv) map[string]*domain.Case {
	t.Helper()
	seeded := map[string]*domain.Case{
		"overdue":  env.mustCreate(t, CaseInput{Radicado: "D-1", Subject: "vencido", ResponseDeadline: day(2024, 6, 9)}),
		"today":    env.mustCreate(t, CaseInput{Radicado: "D-2", Subject: "hoy", ResponseDeadline: day(2024, 6, 10)}),
		"tomorrow": env.mustCreate(t, CaseInput{Radicado: "D-3", Subject: "mañana", ResponseDeadline: day(2024, 6, 11)}),
		"edge":     env.mustCreate(t, CaseInput{Radicado: "D-4", Subject: "borde", ResponseDeadline: day(2024, 6, 12)}),
		"far":      env.mustCreate(t, CaseInput{Radicado: "D-5", Subject: "lejos", ResponseDeadline: day(2024, 6, 13)}),
		"none":     env.mustCreate(t, CaseInput{Radicado: "D-6", Subject: "sin fecha"}),
		"resolved": env.mustCreate(t, CaseInput{Radicado: "D-7", Subject: "resuelta", ResponseDeadline: day(2024, 6, 11)}),
	}
	_, _, err := env.engine.ApplyTransition(context.Background(), seeded["resolved"].ID, domain.CaseStateResolved, "cerrado")
	require.NoError(t, err)
	return seeded
}

func TestScanAndAlertSelectsNearDeadlines(t *testing.T) {
	env := newTestEnv(t, domain.DefaultWorkflow())
	seeded := seedDeadlines(t, env)
	ref := time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

	report, err := env.monitor(0).ScanAndAlert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Matched)
	assert.Equal(t, 4, report.Alerted)
	assert.Zero(t, report.Suppressed)
	assert.Zero(t, report.Failed)

	alerts := env.recorder.ofType(events.EventDeadlineAlert)
	require.Len(t, alerts, 4)
	alerted := map[string]events.DeadlineAlertPayload{}
	for _, a := range alerts {
		alerted[a.CaseID] = a.Payload.(events.DeadlineAlertPayload)
	}
	for _, key := range []string{"overdue", "today", "tomorrow", "edge"} {
		assert.Contains(t, alerted, seeded[key].ID, key)
	}
	assert.Equal(t, -1, alerted[seeded["overdue"].ID].DaysRemaining)
	assert.Equal(t, 2, alerted[seeded["edge"].ID].DaysRemaining)
	assert.Equal(t, "borde", alerted[seeded["edge"].ID].Subject)
}

func TestScanWithoutCooldownRepeatsAlerts(t *testing.T) {
	env := newTestEnv(t, domain.DefaultWorkflow())
	env.mustCreate(t, CaseInput{Radicado: "D-10", ResponseDeadline: day(2024, 6, 10)})
	monitor := env.monitor(0)
	ref := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		report, err := monitor.ScanAndAlert(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Alerted)
	}
	assert.Len(t, env.recorder.ofType(events.EventDeadlineAlert), 2)
}

func TestScanCooldownSuppressesRepeats(t *testing.T) {
	env := newTestEnv(t, domain.DefaultWorkflow())
	env.mustCreate(t, CaseInput{Radicado: "D-11", ResponseDeadline: day(2024, 6, 11)})
	monitor := env.monitor(24 * time.Hour)
	ref := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	first, err := monitor.ScanAndAlert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Alerted)

	second, err := monitor.ScanAndAlert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matched)
	assert.Equal(t, 0, second.Alerted)
	assert.Equal(t, 1, second.Suppressed)
	assert.Len(t, env.recorder.ofType(events.EventDeadlineAlert), 1)
}

func TestScanCountsFailuresAndRetriesNextTime(t *testing.T) {
	env := newTestEnv(t, domain.DefaultWorkflow())
	env.mustCreate(t, CaseInput{Radicado: "D-12", ResponseDeadline: day(2024, 6, 10)})
	env.mustCreate(t, CaseInput{Radicado: "D-13", ResponseDeadline: day(2024, 6, 11)})
	monitor := env.monitor(24 * time.Hour)
	ref := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	env.recorder.failWith(errors.New("queue unavailable"))
	report, err := monitor.ScanAndAlert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 2, report.Failed)

	env.recorder.failWith(nil)
	report, err = monitor.ScanAndAlert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Alerted)
	assert.Zero(t, report.Suppressed)
}

func TestScanStorageFailure(t *testing.T) {
	monitor := NewDeadlineMonitor(DeadlineDependencies{CaseRepo: brokenCases{}})

	_, err := monitor.ScanAndAlert(context.Background(), time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePersistence))
}

func TestScanEmptyStore(t *testing.T) {
	env := newTestEnv(t, domain.DefaultWorkflow())

	report, err := env.monitor(time.Hour).ScanAndAlert(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, report.Matched)
}
