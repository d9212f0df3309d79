package repository

import (
	"context"
	"errors"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SuppressionRepository struct {
	db dbtx
}

func NewSuppressionRepository(pool *pgxpool.Pool) *SuppressionRepository {
	return &SuppressionRepository{db: pool}
}

func NewSuppressionRepositoryWithTx(tx pgx.Tx) *SuppressionRepository {
	return &SuppressionRepository{db: tx}
}

// Upsert records a suppression. A second suppression for the same address
// keeps the original row so the first reason wins.
func (r *SuppressionRepository) Upsert(ctx context.Context, rec *domain.SuppressionRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO suppressions (email, reason, source, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING`,
		rec.Email, rec.Reason, nullableString(rec.Source), rec.CreatedAt,
	)
	return err
}

func (r *SuppressionRepository) GetByEmail(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	var rec domain.SuppressionRecord
	var source *string
	err := r.db.QueryRow(ctx,
		`SELECT email, reason, source, created_at FROM suppressions WHERE email = $1`,
		domain.NormalizeEmail(email),
	).Scan(&rec.Email, &rec.Reason, &source, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSuppressionNotFound
		}
		return nil, err
	}
	if source != nil {
		rec.Source = *source
	}
	return &rec, nil
}

func (r *SuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE email = $1)`,
		domain.NormalizeEmail(email),
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepository) List(ctx context.Context, limit int) ([]*domain.SuppressionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT email, reason, source, created_at
		 FROM suppressions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.SuppressionRecord
	for rows.Next() {
		var rec domain.SuppressionRecord
		var source *string
		if err := rows.Scan(&rec.Email, &rec.Reason, &source, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if source != nil {
			rec.Source = *source
		}
		results = append(results, &rec)
	}
	return results, rows.Err()
}
