package service

import (
	"context"
	"log"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/telemetry"
)

// RetryPolicy is the explicit retry contract for failed step attempts.
type RetryPolicy struct {
	// MaxStepAttempts bounds attempts per step before the contact is
	// paused for manual review.
	MaxStepAttempts int
	// Backoff delays the next attempt after a transient failure.
	Backoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxStepAttempts: 3,
		Backoff:         4 * time.Hour,
	}
}

// SequenceEngine owns per-contact progression: advancing on success,
// retrying on transient failure, suppressing on permanent failure. All
// transitions are keyed on (state, step_index) so replaying an outcome a
// second time is a no-op.
type SequenceEngine struct {
	stateRepo   SequenceStateRepositoryInterface
	historyRepo StepHistoryRepositoryInterface
	txRunner    TxRunner
	template    *domain.SequenceTemplate
	policy      RetryPolicy
	uuidGen     UUIDGenerator
	clock       Clock
}

func NewSequenceEngine(
	stateRepo SequenceStateRepositoryInterface,
	historyRepo StepHistoryRepositoryInterface,
	txRunner TxRunner,
	template *domain.SequenceTemplate,
	policy RetryPolicy,
) *SequenceEngine {
	return &SequenceEngine{
		stateRepo:   stateRepo,
		historyRepo: historyRepo,
		txRunner:    txRunner,
		template:    template,
		policy:      policy,
		uuidGen:     &DefaultUUIDGenerator{},
		clock:       RealClock{},
	}
}

func NewSequenceEngineWithDeps(
	stateRepo SequenceStateRepositoryInterface,
	historyRepo StepHistoryRepositoryInterface,
	txRunner TxRunner,
	template *domain.SequenceTemplate,
	policy RetryPolicy,
	uuidGen UUIDGenerator,
	clock Clock,
) *SequenceEngine {
	return &SequenceEngine{
		stateRepo:   stateRepo,
		historyRepo: historyRepo,
		txRunner:    txRunner,
		template:    template,
		policy:      policy,
		uuidGen:     uuidGen,
		clock:       clock,
	}
}

// Template returns the engine's sequence template.
func (e *SequenceEngine) Template() *domain.SequenceTemplate {
	return e.template
}

// OutcomeInput carries everything needed to apply one delivery outcome.
type OutcomeInput struct {
	StateID    string
	StepIndex  int
	Email      string
	Subject    string
	Body       string
	ArchiveKey string
	Outcome    domain.DeliveryOutcome
}

// RecordOutcome applies a delivery outcome to a progression record.
// Reapplying an outcome for a step the state has already moved past is a
// no-op, which makes outcome processing safe to retry after a crash.
func (e *SequenceEngine) RecordOutcome(ctx context.Context, input OutcomeInput) error {
	ctx, span := telemetry.StartSpan(ctx, "SequenceEngine.RecordOutcome", telemetry.SpanAttributes{
		StateID:   input.StateID,
		StepIndex: input.StepIndex,
		Operation: "record_outcome",
	})
	defer span.End()

	state, err := e.stateRepo.GetByID(ctx, input.StateID)
	if err != nil {
		return err
	}

	if state.StepIndex != input.StepIndex || state.Status != domain.SequenceStatusActive {
		log.Printf("engine: outcome for contact=%s step=%d already applied (state at step=%d status=%s), skipping",
			state.ContactID, input.StepIndex, state.StepIndex, state.Status)
		return nil
	}

	now := e.clock.Now()
	record := &domain.StepRecord{
		ID:         e.uuidGen.NewString(),
		StateID:    state.ID,
		ContactID:  state.ContactID,
		StepIndex:  input.StepIndex,
		Attempt:    state.Attempts + 1,
		Subject:    input.Subject,
		Body:       input.Body,
		Outcome:    input.Outcome.Status,
		Detail:     input.Outcome.Detail,
		ArchiveKey: input.ArchiveKey,
		SentAt:     now,
	}

	log.Printf("engine: contact=%s step=%d outcome=%s detail=%q",
		state.ContactID, input.StepIndex, input.Outcome.Status, input.Outcome.Detail)

	switch {
	case input.Outcome.Status == domain.OutcomeSent:
		return e.applySent(ctx, state, record, now)
	case input.Outcome.IsPermanent():
		return e.applyPermanent(ctx, state, record, input.Email, input.Outcome)
	default:
		return e.applyRetryable(ctx, state, record, now)
	}
}

func (e *SequenceEngine) applySent(ctx context.Context, state *domain.SequenceState, record *domain.StepRecord, now time.Time) error {
	state.StepIndex++
	state.Attempts = 0
	state.LastSentAt = &now

	if state.StepIndex >= e.template.Len() {
		state.Status = domain.SequenceStatusCompleted
	} else {
		// Next due is anchored to enrollment, not to this send, so a
		// late tick never pushes the rest of the cadence later.
		state.NextDueAt = e.template.DueAt(state.EnrolledAt, state.StepIndex)
	}

	return e.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.StepHistory().Create(ctx, record); err != nil {
			return err
		}
		return repos.States().Update(ctx, state)
	})
}

// applyPermanent suppresses the recipient. The suppression row and the
// state transition commit in one transaction: there is no observable state
// with a recorded hard bounce but no suppression, or vice versa.
func (e *SequenceEngine) applyPermanent(ctx context.Context, state *domain.SequenceState, record *domain.StepRecord, email string, outcome domain.DeliveryOutcome) error {
	state.Status = domain.SequenceStatusSuppressed

	suppression := domain.NewSuppressionRecord(email, outcome.SuppressionReasonFor(), "delivery:"+string(outcome.Status), e.clock.Now())

	return e.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.StepHistory().Create(ctx, record); err != nil {
			return err
		}
		if err := repos.Suppressions().Upsert(ctx, suppression); err != nil {
			return err
		}
		return repos.States().Update(ctx, state)
	})
}

func (e *SequenceEngine) applyRetryable(ctx context.Context, state *domain.SequenceState, record *domain.StepRecord, now time.Time) error {
	state.Attempts++
	if state.Attempts >= e.policy.MaxStepAttempts {
		state.Status = domain.SequenceStatusPaused
		log.Printf("engine: contact=%s step=%d paused after %d attempts",
			state.ContactID, state.StepIndex, state.Attempts)
	} else {
		state.NextDueAt = now.Add(e.policy.Backoff)
	}

	return e.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.StepHistory().Create(ctx, record); err != nil {
			return err
		}
		return repos.States().Update(ctx, state)
	})
}

// RecordCompositionFailure counts a failed composition as a step attempt
// without advancing, backing off like a transient delivery failure.
func (e *SequenceEngine) RecordCompositionFailure(ctx context.Context, stateID string, stepIndex int, detail string) error {
	return e.RecordOutcome(ctx, OutcomeInput{
		StateID:   stateID,
		StepIndex: stepIndex,
		Outcome: domain.DeliveryOutcome{
			Status: domain.OutcomeFailedTransient,
			Detail: "composition: " + detail,
		},
	})
}

// Disqualify moves a below-threshold contact to the terminal disqualified
// status. Only called when the disqualify policy flag is on.
func (e *SequenceEngine) Disqualify(ctx context.Context, stateID string, score int) error {
	state, err := e.stateRepo.GetByID(ctx, stateID)
	if err != nil {
		return err
	}
	if state.Status != domain.SequenceStatusActive {
		return nil
	}
	state.Status = domain.SequenceStatusDisqualified
	log.Printf("engine: contact=%s disqualified (score=%d)", state.ContactID, score)
	return e.stateRepo.Update(ctx, state)
}

// Pause applies the administrative pause override.
func (e *SequenceEngine) Pause(ctx context.Context, stateID string) error {
	state, err := e.stateRepo.GetByID(ctx, stateID)
	if err != nil {
		return err
	}
	if state.Status != domain.SequenceStatusActive {
		return domain.ErrSequenceNotActive
	}
	state.Status = domain.SequenceStatusPaused
	return e.stateRepo.Update(ctx, state)
}

// Resume lifts a pause. Attempts are reset so the step gets a fresh retry
// budget after manual review.
func (e *SequenceEngine) Resume(ctx context.Context, stateID string) error {
	state, err := e.stateRepo.GetByID(ctx, stateID)
	if err != nil {
		return err
	}
	if state.Status != domain.SequenceStatusPaused {
		return domain.ErrSequenceNotActive
	}
	state.Status = domain.SequenceStatusActive
	state.Attempts = 0
	state.NextDueAt = e.clock.Now()
	return e.stateRepo.Update(ctx, state)
}
