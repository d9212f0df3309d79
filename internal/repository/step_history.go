package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/pagination"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StepHistoryRepository struct {
	db dbtx
}

func NewStepHistoryRepository(pool *pgxpool.Pool) *StepHistoryRepository {
	return &StepHistoryRepository{db: pool}
}

func NewStepHistoryRepositoryWithTx(tx pgx.Tx) *StepHistoryRepository {
	return &StepHistoryRepository{db: tx}
}

func (r *StepHistoryRepository) Create(ctx context.Context, rec *domain.StepRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO step_history (id, state_id, contact_id, step_index, attempt, subject, body, outcome, detail, archive_key, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.StateID, rec.ContactID, rec.StepIndex, rec.Attempt, rec.Subject, rec.Body,
		rec.Outcome, nullableString(rec.Detail), nullableString(rec.ArchiveKey), rec.SentAt,
	)
	return err
}

func (r *StepHistoryRepository) GetByID(ctx context.Context, id string) (*domain.StepRecord, error) {
	var rec domain.StepRecord
	var detail, archiveKey *string
	err := r.db.QueryRow(ctx,
		`SELECT id, state_id, contact_id, step_index, attempt, subject, body, outcome, detail, archive_key, sent_at
		 FROM step_history WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.StateID, &rec.ContactID, &rec.StepIndex, &rec.Attempt, &rec.Subject, &rec.Body,
		&rec.Outcome, &detail, &archiveKey, &rec.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStepRecordNotFound
		}
		return nil, err
	}
	if detail != nil {
		rec.Detail = *detail
	}
	if archiveKey != nil {
		rec.ArchiveKey = *archiveKey
	}
	return &rec, nil
}

func (r *StepHistoryRepository) ListByContactWithCursor(ctx context.Context, contactID string, cursor *pagination.Cursor, limit int) (*service.StepPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, state_id, contact_id, step_index, attempt, subject, body, outcome, detail, archive_key, sent_at
			 FROM step_history
			 WHERE contact_id = $1 AND (sent_at, id) < ($2, $3)
			 ORDER BY sent_at DESC, id DESC
			 LIMIT $4`,
			contactID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, state_id, contact_id, step_index, attempt, subject, body, outcome, detail, archive_key, sent_at
			 FROM step_history
			 WHERE contact_id = $1
			 ORDER BY sent_at DESC, id DESC
			 LIMIT $2`,
			contactID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanStepRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.SentAt)
	}

	return &service.StepPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// CountSentSince counts successful sends at or after the given instant,
// used to seed the local daily counter after a restart.
func (r *StepHistoryRepository) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM step_history WHERE outcome = $1 AND sent_at >= $2`,
		domain.OutcomeSent, since,
	).Scan(&n)
	return n, err
}

func scanStepRows(rows pgx.Rows) ([]*domain.StepRecord, error) {
	var results []*domain.StepRecord
	for rows.Next() {
		var rec domain.StepRecord
		var detail, archiveKey *string
		if err := rows.Scan(&rec.ID, &rec.StateID, &rec.ContactID, &rec.StepIndex, &rec.Attempt, &rec.Subject, &rec.Body,
			&rec.Outcome, &detail, &archiveKey, &rec.SentAt); err != nil {
			return nil, err
		}
		if detail != nil {
			rec.Detail = *detail
		}
		if archiveKey != nil {
			rec.ArchiveKey = *archiveKey
		}
		results = append(results, &rec)
	}
	return results, rows.Err()
}
