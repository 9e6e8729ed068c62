package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// LifecycleEngine moves cases between states and keeps the audit trail in step.
type LifecycleEngine struct {
	tx         repository.Transactor
	ledger     *HistoryLedger
	workflow   domain.Workflow
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// LifecycleDependencies bundles collaborators of the engine.
type LifecycleDependencies struct {
	Transactor repository.Transactor
	Ledger     *HistoryLedger
	Workflow   domain.Workflow
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewLifecycleEngine constructs the engine.
func NewLifecycleEngine(deps LifecycleDependencies) *LifecycleEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleEngine{
		tx:         deps.Transactor,
		ledger:     deps.Ledger,
		workflow:   deps.Workflow,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("lifecycle"),
	}
}

// ApplyTransition sets the case state and appends the matching history entry in one unit
// of work. The result reflects persistence only; notification problems are logged.
func (e *LifecycleEngine) ApplyTransition(ctx context.Context, caseID string, newState domain.CaseState, comments string) (*domain.Case, *domain.CaseHistory, error) {
	newState = domain.CaseState(strings.TrimSpace(string(newState)))
	if newState == "" {
		return nil, nil, apperrors.NewValidationError("state is required", map[string]any{"field": "state"})
	}
	if !e.workflow.Knows(newState) {
		return nil, nil, apperrors.NewValidationError("unknown state", map[string]any{
			"state":   newState,
			"allowed": e.workflow.States,
		})
	}

	var (
		updated *domain.Case
		entry   *domain.CaseHistory
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		current, err := repos.Cases.GetByID(ctx, caseID)
		if err != nil {
			return storageError(err, "case", map[string]any{"id": caseID})
		}
		previous := current.State
		if !e.workflow.Allows(previous, newState) {
			return apperrors.NewValidationError("transition not allowed", map[string]any{
				"from": previous,
				"to":   newState,
			})
		}

		updated, err = repos.Cases.UpdateState(ctx, caseID, newState, comments)
		if err != nil {
			return storageError(err, "case", map[string]any{"id": caseID})
		}
		entry, err = e.ledger.bind(repos).Append(ctx, caseID, previous, newState, comments)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	e.metrics.RecordTransition(string(entry.PreviousState), string(entry.NewState))
	e.logger.Info("case state changed",
		zap.String("case_id", caseID),
		zap.String("from", string(entry.PreviousState)),
		zap.String("to", string(entry.NewState)))

	e.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCaseStateChanged,
		CaseID:    caseID,
		Timestamp: entry.ChangedAt,
		Payload: events.CaseStateChangedPayload{
			Radicado:       updated.Radicado,
			PreviousState:  entry.PreviousState,
			NewState:       entry.NewState,
			Comments:       comments,
			RequesterEmail: updated.RequesterEmail,
		},
	})
	return updated, entry, nil
}

func (e *LifecycleEngine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := e.dispatcher.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event", string(event.Type)),
			zap.String("case_id", event.CaseID),
			zap.Error(err))
	}
}
