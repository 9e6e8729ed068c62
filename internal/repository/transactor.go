package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor backed by pgx transactions.
func NewTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	return pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(ctx, TxRepositories{
			Cases:   &caseRepository{db: tx, lockRows: true},
			History: &caseHistoryRepository{db: tx},
		})
	})
}
