package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

type caseHistoryRepository struct {
	db dbtx
}

// NewCaseHistoryRepository builds repository.
func NewCaseHistoryRepository(pool *pgxpool.Pool) CaseHistoryRepository {
	return &caseHistoryRepository{db: pool}
}

func (r *caseHistoryRepository) Append(ctx context.Context, entry *domain.CaseHistory) error {
	const query = `
        INSERT INTO case_history (case_id, previous_state, new_state, comments, changed_at)
        VALUES ($1::uuid,$2,$3,$4,$5)
        RETURNING id, changed_at`
	return translate(r.db.QueryRow(ctx, query,
		entry.CaseID,
		entry.PreviousState,
		entry.NewState,
		entry.Comments,
		entry.ChangedAt,
	).Scan(&entry.ID, &entry.ChangedAt))
}

func (r *caseHistoryRepository) ListByCase(ctx context.Context, caseID string) ([]domain.CaseHistory, error) {
	const query = `
        SELECT id, case_id::text, previous_state, new_state, comments, changed_at
        FROM case_history WHERE case_id=$1::uuid ORDER BY changed_at DESC, id DESC`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CaseHistory
	for rows.Next() {
		var entry domain.CaseHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.PreviousState,
			&entry.NewState,
			&entry.Comments,
			&entry.ChangedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
