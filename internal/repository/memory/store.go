// Package memory provides in-process repositories used when no database is configured
// and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

// Store keeps cases and their history in maps guarded by a single lock.
type Store struct {
	mu        sync.RWMutex
	cases     map[string]domain.Case
	radicados map[string]string
	history   map[string][]domain.CaseHistory
	nextID    int64
	now       func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		cases:     make(map[string]domain.Case),
		radicados: make(map[string]string),
		history:   make(map[string][]domain.CaseHistory),
		now:       time.Now,
	}
}

// Cases exposes the store as a CaseRepository.
func (s *Store) Cases() repository.CaseRepository { return &caseView{s: s} }

// History exposes the store as a CaseHistoryRepository.
func (s *Store) History() repository.CaseHistoryRepository { return &historyView{s: s} }

// WithinTx holds the write lock for the whole callback and undoes staged writes when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.TxRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txState{}
	repos := repository.TxRepositories{
		Cases:   &caseView{s: s, tx: tx},
		History: &historyView{s: s, tx: tx},
	}
	if err := fn(ctx, repos); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// txState records undo steps for writes made inside WithinTx.
type txState struct {
	undo []func()
}

func (t *txState) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

type caseView struct {
	s  *Store
	tx *txState
}

func (v *caseView) lock() func() {
	if v.tx != nil {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *caseView) rlock() func() {
	if v.tx != nil {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v *caseView) Create(_ context.Context, c *domain.Case) error {
	defer v.lock()()
	key := strings.TrimSpace(c.Radicado)
	if _, taken := v.s.radicados[key]; taken {
		return repository.ErrConflict
	}
	now := v.s.now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	v.s.cases[c.ID] = *c
	v.s.radicados[key] = c.ID
	if v.tx != nil {
		id := c.ID
		v.tx.undo = append(v.tx.undo, func() {
			delete(v.s.cases, id)
			delete(v.s.radicados, key)
		})
	}
	return nil
}

func (v *caseView) GetByID(_ context.Context, id string) (*domain.Case, error) {
	defer v.rlock()()
	c, ok := v.s.cases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (v *caseView) List(_ context.Context) ([]domain.Case, error) {
	defer v.rlock()()
	result := make([]domain.Case, 0, len(v.s.cases))
	for _, c := range v.s.cases {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (v *caseView) UpdateState(_ context.Context, id string, state domain.CaseState, comments string) (*domain.Case, error) {
	defer v.lock()()
	c, ok := v.s.cases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	before := c
	c.State = state
	c.Comments = comments
	c.UpdatedAt = v.s.now().UTC()
	v.s.cases[id] = c
	if v.tx != nil {
		v.tx.undo = append(v.tx.undo, func() { v.s.cases[id] = before })
	}
	return &c, nil
}

func (v *caseView) FindNearDeadline(_ context.Context, ref time.Time, thresholdDays int, excluded domain.CaseState) ([]domain.Case, error) {
	defer v.rlock()()
	var result []domain.Case
	for _, c := range v.s.cases {
		if c.State == excluded {
			continue
		}
		days, ok := c.DaysUntilDeadline(ref)
		if !ok || days > thresholdDays {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ResponseDeadline.Before(*result[j].ResponseDeadline)
	})
	return result, nil
}

type historyView struct {
	s  *Store
	tx *txState
}

func (v *historyView) Append(_ context.Context, entry *domain.CaseHistory) error {
	if v.tx == nil {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	v.s.nextID++
	entry.ID = v.s.nextID
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = v.s.now().UTC()
	}
	caseID := entry.CaseID
	v.s.history[caseID] = append(v.s.history[caseID], *entry)
	if v.tx != nil {
		v.tx.undo = append(v.tx.undo, func() {
			entries := v.s.history[caseID]
			v.s.history[caseID] = entries[:len(entries)-1]
		})
	}
	return nil
}

func (v *historyView) ListByCase(_ context.Context, caseID string) ([]domain.CaseHistory, error) {
	if v.tx == nil {
		v.s.mu.RLock()
		defer v.s.mu.RUnlock()
	}
	entries := v.s.history[caseID]
	result := make([]domain.CaseHistory, len(entries))
	for i, entry := range entries {
		result[len(entries)-1-i] = entry
	}
	return result, nil
}
