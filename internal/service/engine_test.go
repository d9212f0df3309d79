package service

import (
	"context"
	"testing"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestEngine(stateRepo *MockStateRepo, historyRepo *MockHistoryRepo, suppressionRepo *MockSuppressionRepo, now time.Time) *SequenceEngine {
	tx := &fakeTxRunner{
		states:       stateRepo,
		history:      historyRepo,
		suppressions: suppressionRepo,
	}
	return NewSequenceEngineWithDeps(
		stateRepo, historyRepo, tx, twoStepTemplate(), DefaultRetryPolicy(),
		&seqUUIDGen{}, fixedClock{now: now},
	)
}

func activeState(stepIndex int, enrolledAt time.Time) *domain.SequenceState {
	return &domain.SequenceState{
		ID:         "s1",
		ContactID:  "c1",
		Status:     domain.SequenceStatusActive,
		StepIndex:  stepIndex,
		EnrolledAt: enrolledAt,
		NextDueAt:  enrolledAt,
	}
}

func TestRecordOutcome_SentAdvancesStep(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	engine := newTestEngine(stateRepo, historyRepo, nil, now)

	state := activeState(0, now)
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	historyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecordOutcome(context.Background(), OutcomeInput{
		StateID:   "s1",
		StepIndex: 0,
		Email:     "jane@example.com",
		Subject:   "Hello",
		Body:      "Hi Jane",
		Outcome:   domain.DeliveryOutcome{Status: domain.OutcomeSent},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, state.StepIndex)
	assert.Equal(t, 0, state.Attempts)
	assert.Equal(t, domain.SequenceStatusActive, state.Status)
	require.NotNil(t, state.LastSentAt)
	assert.Equal(t, now, *state.LastSentAt)
	// next step offset is 3 days from enrollment, not from the send
	assert.Equal(t, now.Add(3*24*time.Hour), state.NextDueAt)

	historyRepo.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(rec *domain.StepRecord) bool {
		return rec.StepIndex == 0 && rec.Outcome == domain.OutcomeSent && rec.Subject == "Hello"
	}))
}

func TestRecordOutcome_FinalStepCompletes(t *testing.T) {
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	engine := newTestEngine(stateRepo, historyRepo, nil, now)

	state := activeState(1, now.Add(-3*24*time.Hour))
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	historyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecordOutcome(context.Background(), OutcomeInput{
		StateID:   "s1",
		StepIndex: 1,
		Email:     "jane@example.com",
		Subject:   "Following up",
		Body:      "Hi again",
		Outcome:   domain.DeliveryOutcome{Status: domain.OutcomeSent},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, state.StepIndex)
	assert.Equal(t, domain.SequenceStatusCompleted, state.Status)
}

func TestRecordOutcome_Idempotent(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	engine := newTestEngine(stateRepo, historyRepo, nil, now)

	// State already advanced past step 0: replay must be a no-op.
	state := activeState(1, now)
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)

	err := engine.RecordOutcome(context.Background(), OutcomeInput{
		StateID:   "s1",
		StepIndex: 0,
		Email:     "jane@example.com",
		Outcome:   domain.DeliveryOutcome{Status: domain.OutcomeSent},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, state.StepIndex)
	historyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	stateRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestRecordOutcome_HardBounceSuppressesAtomically(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	suppressionRepo := new(MockSuppressionRepo)
	engine := newTestEngine(stateRepo, historyRepo, suppressionRepo, now)

	state := activeState(0, now)
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	historyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	suppressionRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecordOutcome(context.Background(), OutcomeInput{
		StateID:   "s1",
		StepIndex: 0,
		Email:     "jane@example.com",
		Outcome:   domain.DeliveryOutcome{Status: domain.OutcomeBouncedHard, Detail: "550 mailbox unavailable"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SequenceStatusSuppressed, state.Status)
	assert.Equal(t, 0, state.StepIndex)

	suppressionRepo.AssertCalled(t, "Upsert", mock.Anything, mock.MatchedBy(func(rec *domain.SuppressionRecord) bool {
		return rec.Email == "jane@example.com" && rec.Reason == domain.SuppressionReasonHardBounce
	}))
}

func TestRecordOutcome_TransientBacksOff(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	engine := newTestEngine(stateRepo, historyRepo, nil, now)

	state := activeState(0, now)
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	historyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecordOutcome(context.Background(), OutcomeInput{
		StateID:   "s1",
		StepIndex: 0,
		Email:     "jane@example.com",
		Outcome:   domain.DeliveryOutcome{Status: domain.OutcomeFailedTransient, Detail: "timeout"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SequenceStatusActive, state.Status)
	assert.Equal(t, 0, state.StepIndex)
	assert.Equal(t, 1, state.Attempts)
	assert.Equal(t, now.Add(DefaultRetryPolicy().Backoff), state.NextDueAt)
}

func TestRecordOutcome_PausesAtMaxAttempts(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	historyRepo := new(MockHistoryRepo)
	engine := newTestEngine(stateRepo, historyRepo, nil, now)

	state := activeState(0, now)
	state.Attempts = DefaultRetryPolicy().MaxStepAttempts - 1
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	historyRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	err := engine.RecordCompositionFailure(context.Background(), "s1", 0, "empty body")

	require.NoError(t, err)
	assert.Equal(t, domain.SequenceStatusPaused, state.Status)
	assert.Equal(t, DefaultRetryPolicy().MaxStepAttempts, state.Attempts)
}

func TestPauseAndResume(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	engine := newTestEngine(stateRepo, new(MockHistoryRepo), nil, now)

	state := activeState(1, now)
	state.Attempts = 2
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, engine.Pause(context.Background(), "s1"))
	assert.Equal(t, domain.SequenceStatusPaused, state.Status)

	require.NoError(t, engine.Resume(context.Background(), "s1"))
	assert.Equal(t, domain.SequenceStatusActive, state.Status)
	assert.Equal(t, 0, state.Attempts)
	assert.Equal(t, now, state.NextDueAt)
}

func TestDisqualify(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	stateRepo := new(MockStateRepo)
	engine := newTestEngine(stateRepo, new(MockHistoryRepo), nil, now)

	state := activeState(0, now)
	stateRepo.On("GetByID", mock.Anything, "s1").Return(state, nil)
	stateRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, engine.Disqualify(context.Background(), "s1", 12))
	assert.Equal(t, domain.SequenceStatusDisqualified, state.Status)
	assert.True(t, state.Status.IsTerminal())
}
