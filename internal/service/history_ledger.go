package service

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

// HistoryLedger appends and reads the audit trail of case transitions.
type HistoryLedger struct {
	cases    repository.CaseRepository
	history  repository.CaseHistoryRepository
	workflow domain.Workflow
	clock    *monotonicClock
}

// NewHistoryLedger builds the ledger over the non-transactional repositories.
func NewHistoryLedger(cases repository.CaseRepository, history repository.CaseHistoryRepository, workflow domain.Workflow) *HistoryLedger {
	return &HistoryLedger{
		cases:    cases,
		history:  history,
		workflow: workflow,
		clock:    newMonotonicClock(time.Now),
	}
}

// bind returns a ledger writing through the repositories of a unit of work. The clock is shared.
func (l *HistoryLedger) bind(repos repository.TxRepositories) *HistoryLedger {
	return &HistoryLedger{
		cases:    repos.Cases,
		history:  repos.History,
		workflow: l.workflow,
		clock:    l.clock,
	}
}

// Append records one transition. The timestamp comes from the ledger clock.
func (l *HistoryLedger) Append(ctx context.Context, caseID string, previous, next domain.CaseState, comments string) (*domain.CaseHistory, error) {
	entry := &domain.CaseHistory{
		CaseID:        caseID,
		PreviousState: previous,
		NewState:      next,
		Comments:      comments,
		ChangedAt:     l.clock.Now(),
	}
	if err := l.history.Append(ctx, entry); err != nil {
		return nil, storageError(err, "case", map[string]any{"id": caseID})
	}
	return entry, nil
}

// ListFor returns the case history newest first.
func (l *HistoryLedger) ListFor(ctx context.Context, caseID string) ([]domain.CaseHistory, error) {
	if _, err := l.cases.GetByID(ctx, caseID); err != nil {
		return nil, storageError(err, "case", map[string]any{"id": caseID})
	}
	entries, err := l.history.ListByCase(ctx, caseID)
	if err != nil {
		return nil, storageError(err, "case history", nil)
	}
	if entries == nil {
		entries = []domain.CaseHistory{}
	}
	return entries, nil
}

// ReconcileIssue describes a case whose state disagrees with its audit trail.
type ReconcileIssue struct {
	CaseID   string           `json:"case_id"`
	Radicado string           `json:"radicado"`
	State    domain.CaseState `json:"state"`
	Expected domain.CaseState `json:"expected"`
	Reason   string           `json:"reason"`
}

// ReconcileReport summarises a full ledger check.
type ReconcileReport struct {
	Checked int              `json:"checked"`
	Issues  []ReconcileIssue `json:"issues"`
}

// Reconcile compares every case state against its history chain.
func (l *HistoryLedger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	cases, err := l.cases.List(ctx)
	if err != nil {
		return ReconcileReport{}, storageError(err, "cases", nil)
	}

	report := ReconcileReport{Issues: []ReconcileIssue{}}
	for i := range cases {
		c := &cases[i]
		entries, err := l.history.ListByCase(ctx, c.ID)
		if err != nil {
			return report, storageError(err, "case history", nil)
		}
		report.Checked++
		if issue := l.check(c, entries); issue != nil {
			report.Issues = append(report.Issues, *issue)
		}
	}
	return report, nil
}

// check expects entries newest first.
func (l *HistoryLedger) check(c *domain.Case, entries []domain.CaseHistory) *ReconcileIssue {
	issue := &ReconcileIssue{CaseID: c.ID, Radicado: c.Radicado, State: c.State}

	if len(entries) == 0 {
		if l.workflow.Initial != "" && c.State != l.workflow.Initial {
			issue.Expected = l.workflow.Initial
			issue.Reason = "state changed without history"
			return issue
		}
		return nil
	}

	if latest := entries[0]; latest.NewState != c.State {
		issue.Expected = latest.NewState
		issue.Reason = "state differs from latest history entry"
		return issue
	}

	for i := len(entries) - 1; i > 0; i-- {
		older, newer := entries[i], entries[i-1]
		if older.NewState != newer.PreviousState {
			issue.Expected = older.NewState
			issue.Reason = "broken history chain at entry " + newer.ChangedAt.Format(time.RFC3339Nano)
			return issue
		}
	}
	return nil
}

// monotonicClock hands out strictly increasing timestamps at microsecond precision,
// the resolution postgres keeps.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
