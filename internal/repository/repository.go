package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique business key is already taken.
	ErrConflict = errors.New("conflict")
)

const (
	uniqueViolation     = "23505"
	invalidTextEncoding = "22P02"
)

// CaseRepository persists PQRS cases.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	List(ctx context.Context) ([]domain.Case, error)
	UpdateState(ctx context.Context, id string, state domain.CaseState, comments string) (*domain.Case, error)
	FindNearDeadline(ctx context.Context, ref time.Time, thresholdDays int, excluded domain.CaseState) ([]domain.Case, error)
}

// CaseHistoryRepository stores audit entries. It is append-only.
type CaseHistoryRepository interface {
	Append(ctx context.Context, entry *domain.CaseHistory) error
	ListByCase(ctx context.Context, caseID string) ([]domain.CaseHistory, error)
}

// TxRepositories are bound to a single unit of work.
type TxRepositories struct {
	Cases   CaseRepository
	History CaseHistoryRepository
}

// Transactor runs fn atomically: either every write inside it commits or none does.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrConflict
		case invalidTextEncoding:
			// malformed uuid: no row can carry it
			return ErrNotFound
		}
	}
	return err
}
