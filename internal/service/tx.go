package service

import "context"

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Contacts() ContactRepositoryInterface
	States() SequenceStateRepositoryInterface
	Suppressions() SuppressionRepositoryInterface
	StepHistory() StepHistoryRepositoryInterface
	Knowledge() KnowledgeRepositoryInterface
	EmbeddingJobs() EmbeddingJobRepositoryInterface
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}
