package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

const caseColumns = `id::text, radicado, filing_date, response_deadline, response_date, channel, category,
               subject, requester_name, requester_email, requested_entity, assigned_unit, sector,
               traceability, state, comments, created_at, updated_at`

type caseRepository struct {
	db dbtx
	// lockRows adds FOR UPDATE to single-row reads inside a transaction.
	lockRows bool
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{db: pool}
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (radicado, filing_date, response_deadline, response_date, channel, category, subject,
            requester_name, requester_email, requested_entity, assigned_unit, sector, traceability, state, comments)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        RETURNING id::text, created_at, updated_at`
	err := r.db.QueryRow(ctx, query,
		c.Radicado,
		c.FilingDate,
		c.ResponseDeadline,
		c.ResponseDate,
		c.Channel,
		c.Category,
		c.Subject,
		c.RequesterName,
		c.RequesterEmail,
		c.RequestedEntity,
		c.AssignedUnit,
		c.Sector,
		c.Traceability,
		c.State,
		c.Comments,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return translate(err)
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1::uuid`
	if r.lockRows {
		query += ` FOR UPDATE`
	}
	c, err := scanCase(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) UpdateState(ctx context.Context, id string, state domain.CaseState, comments string) (*domain.Case, error) {
	query := `
        UPDATE cases SET state=$1, comments=$2, updated_at=NOW()
        WHERE id=$3::uuid
        RETURNING ` + caseColumns
	c, err := scanCase(r.db.QueryRow(ctx, query, state, comments, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *caseRepository) FindNearDeadline(ctx context.Context, ref time.Time, thresholdDays int, excluded domain.CaseState) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + `
        FROM cases
        WHERE response_deadline IS NOT NULL
          AND response_deadline - $1::date <= $2
          AND state <> $3
        ORDER BY response_deadline ASC`
	rows, err := r.db.Query(ctx, query, domain.TruncateDay(ref), thresholdDays, excluded)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(
		&c.ID,
		&c.Radicado,
		&c.FilingDate,
		&c.ResponseDeadline,
		&c.ResponseDate,
		&c.Channel,
		&c.Category,
		&c.Subject,
		&c.RequesterName,
		&c.RequesterEmail,
		&c.RequestedEntity,
		&c.AssignedUnit,
		&c.Sector,
		&c.Traceability,
		&c.State,
		&c.Comments,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	var result []domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}
