package repository

import (
	"context"

	"github.com/cadencehq/cadence/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner provides transactional repositories using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Contacts() service.ContactRepositoryInterface {
	return NewContactRepositoryWithTx(r.tx)
}

func (r *txRepos) States() service.SequenceStateRepositoryInterface {
	return NewSequenceStateRepositoryWithTx(r.tx)
}

func (r *txRepos) Suppressions() service.SuppressionRepositoryInterface {
	return NewSuppressionRepositoryWithTx(r.tx)
}

func (r *txRepos) StepHistory() service.StepHistoryRepositoryInterface {
	return NewStepHistoryRepositoryWithTx(r.tx)
}

func (r *txRepos) Knowledge() service.KnowledgeRepositoryInterface {
	return NewKnowledgeRepositoryWithTx(r.tx)
}

func (r *txRepos) EmbeddingJobs() service.EmbeddingJobRepositoryInterface {
	return NewEmbeddingJobRepositoryWithTx(r.tx)
}
