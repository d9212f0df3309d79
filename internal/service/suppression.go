package service

import (
	"context"
	"log"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/telemetry"
)

// SuppressionService manages the suppression registry and the state
// transitions a suppression implies.
type SuppressionService struct {
	suppressionRepo SuppressionRepositoryInterface
	txRunner        TxRunner
	clock           Clock
}

func NewSuppressionService(suppressionRepo SuppressionRepositoryInterface, txRunner TxRunner) *SuppressionService {
	return &SuppressionService{
		suppressionRepo: suppressionRepo,
		txRunner:        txRunner,
		clock:           RealClock{},
	}
}

func NewSuppressionServiceWithClock(suppressionRepo SuppressionRepositoryInterface, txRunner TxRunner, clock Clock) *SuppressionService {
	return &SuppressionService{
		suppressionRepo: suppressionRepo,
		txRunner:        txRunner,
		clock:           clock,
	}
}

// SuppressInput represents a manual or webhook-driven suppression request.
type SuppressInput struct {
	Email  string
	Reason domain.SuppressionReason
	Source string
}

// Suppress writes the suppression record and halts any active progression
// for that email in a single transaction.
func (s *SuppressionService) Suppress(ctx context.Context, input SuppressInput) (*domain.SuppressionRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "SuppressionService.Suppress", telemetry.SpanAttributes{
		Operation: "suppress",
	})
	defer span.End()

	record := domain.NewSuppressionRecord(input.Email, input.Reason, input.Source, s.clock.Now())
	if err := domain.ValidateSuppressionRecord(record); err != nil {
		return nil, err
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Suppressions().Upsert(ctx, record); err != nil {
			return err
		}
		halted, err := repos.States().TransitionActiveByEmail(ctx, record.Email, domain.SequenceStatusSuppressed)
		if err != nil {
			return err
		}
		if halted > 0 {
			log.Printf("suppression: email=%s reason=%s halted %d active sequence(s)", record.Email, record.Reason, halted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// IsSuppressed reports whether an email is in the registry.
func (s *SuppressionService) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.suppressionRepo.IsSuppressed(ctx, email)
}

// Get returns the suppression record for an email.
func (s *SuppressionService) Get(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	return s.suppressionRepo.GetByEmail(ctx, email)
}

// List returns recent suppressions.
func (s *SuppressionService) List(ctx context.Context, limit int) ([]*domain.SuppressionRecord, error) {
	return s.suppressionRepo.List(ctx, limit)
}
