package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/classifier"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/repository"
	"github.com/spec-kit/pqrs-service/internal/repository/memory"
	"github.com/spec-kit/pqrs-service/internal/rules"
)

type testEnv struct {
	store      *memory.Store
	markers    *memory.AlertMarkers
	dispatcher events.Dispatcher
	recorder   *eventRecorder
	ledger     *HistoryLedger
	engine     *LifecycleEngine
	cases      *CaseService
}

func newTestEnv(t *testing.T, workflow domain.Workflow) *testEnv {
	t.Helper()
	file, err := rules.Load("")
	require.NoError(t, err)

	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	for _, et := range []events.EventType{events.EventCaseCreated, events.EventCaseStateChanged, events.EventDeadlineAlert} {
		dispatcher.Subscribe(et, recorder.handle)
	}

	ledger := NewHistoryLedger(store.Cases(), store.History(), workflow)
	return &testEnv{
		store:      store,
		markers:    memory.NewAlertMarkers(),
		dispatcher: dispatcher,
		recorder:   recorder,
		ledger:     ledger,
		engine: NewLifecycleEngine(LifecycleDependencies{
			Transactor: store,
			Ledger:     ledger,
			Workflow:   workflow,
			Dispatcher: dispatcher,
		}),
		cases: NewCaseService(CaseDependencies{
			CaseRepo:   store.Cases(),
			Ledger:     ledger,
			Classifier: classifier.New(file.RuleSet()),
			Workflow:   workflow,
			Dispatcher: dispatcher,
		}),
	}
}

func (e *testEnv) monitor(cooldown time.Duration) *DeadlineMonitor {
	return NewDeadlineMonitor(DeadlineDependencies{
		CaseRepo:   e.store.Cases(),
		Markers:    e.markers,
		Dispatcher: e.dispatcher,
		Settings: DeadlineSettings{
			ThresholdDays: 2,
			ExcludedState: domain.CaseStateResolved,
			Cooldown:      cooldown,
		},
	})
}

func (e *testEnv) mustCreate(t *testing.T, input CaseInput) *domain.Case {
	t.Helper()
	c, err := e.cases.CreateCase(context.Background(), input)
	require.NoError(t, err)
	return c
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
	fail   error
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.fail
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// failingHistoryTx runs the memory unit of work with a history repository that always fails.
type failingHistoryTx struct {
	store *memory.Store
}

func (f failingHistoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	return f.store.WithinTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
		repos.History = failingHistory{}
		return fn(ctx, repos)
	})
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, *domain.CaseHistory) error {
	return errors.New("disk full")
}

func (failingHistory) ListByCase(context.Context, string) ([]domain.CaseHistory, error) {
	return nil, errors.New("disk full")
}

// brokenCases fails every read, standing in for an unreachable database.
type brokenCases struct {
	repository.CaseRepository
}

func (brokenCases) FindNearDeadline(context.Context, time.Time, int, domain.CaseState) ([]domain.Case, error) {
	return nil, errors.New("connection reset")
}

func (brokenCases) List(context.Context) ([]domain.Case, error) {
	return nil, errors.New("connection reset")
}

// failingCreate rejects inserts of one radicado as a storage failure.
type failingCreate struct {
	repository.CaseRepository
	radicado string
}

func (f failingCreate) Create(ctx context.Context, c *domain.Case) error {
	if c.Radicado == f.radicado {
		return errors.New("write timeout")
	}
	return f.CaseRepository.Create(ctx, c)
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}
