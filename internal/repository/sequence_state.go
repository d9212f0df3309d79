package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SequenceStateRepository struct {
	db dbtx
}

func NewSequenceStateRepository(pool *pgxpool.Pool) *SequenceStateRepository {
	return &SequenceStateRepository{db: pool}
}

func NewSequenceStateRepositoryWithTx(tx pgx.Tx) *SequenceStateRepository {
	return &SequenceStateRepository{db: tx}
}

func (r *SequenceStateRepository) Create(ctx context.Context, s *domain.SequenceState) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sequence_states (id, contact_id, status, step_index, attempts, enrolled_at, last_sent_at, next_due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.ContactID, s.Status, s.StepIndex, s.Attempts, s.EnrolledAt, s.LastSentAt, s.NextDueAt, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SequenceStateRepository) GetByID(ctx context.Context, id string) (*domain.SequenceState, error) {
	return r.get(ctx,
		`SELECT id, contact_id, status, step_index, attempts, enrolled_at, last_sent_at, next_due_at, created_at, updated_at
		 FROM sequence_states WHERE id = $1`,
		id,
	)
}

// GetActiveByContact returns the single active progression for a contact.
// A partial unique index guarantees at most one exists.
func (r *SequenceStateRepository) GetActiveByContact(ctx context.Context, contactID string) (*domain.SequenceState, error) {
	return r.get(ctx,
		`SELECT id, contact_id, status, step_index, attempts, enrolled_at, last_sent_at, next_due_at, created_at, updated_at
		 FROM sequence_states WHERE contact_id = $1 AND status = 'active'`,
		contactID,
	)
}

// GetLatestByContact returns the most recent progression regardless of
// status, for status reporting on completed or suppressed contacts.
func (r *SequenceStateRepository) GetLatestByContact(ctx context.Context, contactID string) (*domain.SequenceState, error) {
	return r.get(ctx,
		`SELECT id, contact_id, status, step_index, attempts, enrolled_at, last_sent_at, next_due_at, created_at, updated_at
		 FROM sequence_states WHERE contact_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		contactID,
	)
}

func (r *SequenceStateRepository) get(ctx context.Context, query string, arg any) (*domain.SequenceState, error) {
	var s domain.SequenceState
	err := r.db.QueryRow(ctx, query, arg).
		Scan(&s.ID, &s.ContactID, &s.Status, &s.StepIndex, &s.Attempts, &s.EnrolledAt, &s.LastSentAt, &s.NextDueAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSequenceStateNotFound
		}
		return nil, err
	}
	return &s, nil
}

// claimLease is how long a claimed state stays invisible to other ticks.
// Long enough to compose and send, short enough that a crashed worker's
// rows come back well before any retry backoff elapses.
const claimLease = 5 * time.Minute

// ClaimDue atomically claims active states whose next_due_at has passed,
// ordered by next_due_at then contact_id so tick processing order is
// deterministic. The claim is a single statement (locked select plus a
// lease write), so overlapping ticks from concurrent scheduler instances
// never pick up the same state. Recording the outcome releases the lease;
// if a worker dies first, the lease expires on its own.
func (r *SequenceStateRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.SequenceState, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH due AS (
			 SELECT id
			 FROM sequence_states
			 WHERE status = 'active'
			   AND next_due_at <= $1
			   AND (claimed_until IS NULL OR claimed_until <= $1)
			 ORDER BY next_due_at ASC, contact_id ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 ),
		 claimed AS (
			 UPDATE sequence_states
			 SET claimed_until = $3
			 FROM due
			 WHERE sequence_states.id = due.id
			 RETURNING sequence_states.id, sequence_states.contact_id, sequence_states.status,
			           sequence_states.step_index, sequence_states.attempts, sequence_states.enrolled_at,
			           sequence_states.last_sent_at, sequence_states.next_due_at,
			           sequence_states.created_at, sequence_states.updated_at
		 )
		 SELECT * FROM claimed ORDER BY next_due_at ASC, contact_id ASC`,
		now, limit, now.Add(claimLease),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []*domain.SequenceState
	for rows.Next() {
		var s domain.SequenceState
		if err := rows.Scan(&s.ID, &s.ContactID, &s.Status, &s.StepIndex, &s.Attempts, &s.EnrolledAt, &s.LastSentAt, &s.NextDueAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		states = append(states, &s)
	}
	return states, rows.Err()
}

func (r *SequenceStateRepository) Update(ctx context.Context, s *domain.SequenceState) error {
	s.UpdatedAt = time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE sequence_states
		 SET status = $1, step_index = $2, attempts = $3, last_sent_at = $4, next_due_at = $5, updated_at = $6, claimed_until = NULL
		 WHERE id = $7`,
		s.Status, s.StepIndex, s.Attempts, s.LastSentAt, s.NextDueAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSequenceStateNotFound
	}
	return nil
}

// TransitionActiveByEmail moves every active progression whose contact has
// the given email into the target status. Used when a suppression lands so
// the state flip and the registry insert share one transaction.
func (r *SequenceStateRepository) TransitionActiveByEmail(ctx context.Context, email string, status domain.SequenceStatus) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE sequence_states
		 SET status = $1, updated_at = $2
		 FROM contacts
		 WHERE sequence_states.contact_id = contacts.id
		   AND contacts.email = $3
		   AND sequence_states.status = 'active'`,
		status, time.Now().UTC(), domain.NormalizeEmail(email),
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// CountByStatus returns progression counts per status for reporting.
func (r *SequenceStateRepository) CountByStatus(ctx context.Context) (map[domain.SequenceStatus]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT status, COUNT(*) FROM sequence_states GROUP BY status`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.SequenceStatus]int)
	for rows.Next() {
		var status domain.SequenceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
