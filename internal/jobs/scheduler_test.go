package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/storage"
	"github.com/cadencehq/cadence/internal/transport"
)

type MockDueStateRepo struct {
	mock.Mock
}

func (m *MockDueStateRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.SequenceState, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SequenceState), args.Error(1)
}

type MockContactSource struct {
	mock.Mock
}

func (m *MockContactSource) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

type MockSuppressionChecker struct {
	mock.Mock
}

func (m *MockSuppressionChecker) IsSuppressed(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type MockSuppressor struct {
	mock.Mock
}

func (m *MockSuppressor) Suppress(ctx context.Context, input service.SuppressInput) (*domain.SuppressionRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SuppressionRecord), args.Error(1)
}

type MockComposer struct {
	mock.Mock
}

func (m *MockComposer) Compose(ctx context.Context, contact *domain.Contact, step domain.Step, stepIndex int) (*service.GeneratedMessage, error) {
	args := m.Called(ctx, contact, step, stepIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.GeneratedMessage), args.Error(1)
}

type MockEngine struct {
	mock.Mock
	template *domain.SequenceTemplate
}

func (m *MockEngine) Template() *domain.SequenceTemplate { return m.template }

func (m *MockEngine) RecordOutcome(ctx context.Context, input service.OutcomeInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func (m *MockEngine) RecordCompositionFailure(ctx context.Context, stateID string, stepIndex int, detail string) error {
	args := m.Called(ctx, stateID, stepIndex, detail)
	return args.Error(0)
}

func (m *MockEngine) Disqualify(ctx context.Context, stateID string, score int) error {
	args := m.Called(ctx, stateID, score)
	return args.Error(0)
}

// stubScorer returns a fixed score per contact ID, defaulting to 80.
type stubScorer struct {
	scores map[string]int
}

func (s *stubScorer) Score(c *domain.Contact) (int, service.ScoreBreakdown) {
	if score, ok := s.scores[c.ID]; ok {
		return score, service.ScoreBreakdown{Total: score}
	}
	return 80, service.ScoreBreakdown{Total: 80}
}

// recordingSender captures sends and replies with a per-address outcome.
type recordingSender struct {
	mu       sync.Mutex
	sent     []transport.Message
	outcomes map[string]domain.DeliveryOutcome
}

func (s *recordingSender) Send(_ context.Context, msg transport.Message) domain.DeliveryOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if outcome, ok := s.outcomes[msg.To]; ok {
		return outcome
	}
	return domain.DeliveryOutcome{Status: domain.OutcomeSent}
}

func (s *recordingSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type stubArchiver struct {
	key string
	err error
}

func (a stubArchiver) Store(context.Context, storage.ArchivedMessage) (string, error) {
	return a.key, a.err
}

type stubWindow struct{ open bool }

func (w stubWindow) Contains(time.Time) bool { return w.open }

// countingCap allows the first n reservations.
type countingCap struct {
	mu        sync.Mutex
	remaining int
}

func (c *countingCap) Allow(_ context.Context, n int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining < n {
		return false, nil
	}
	c.remaining -= n
	return true, nil
}

type tickClock struct{ now time.Time }

func (c tickClock) Now() time.Time { return c.now }

type schedulerFixture struct {
	states       *MockDueStateRepo
	contacts     *MockContactSource
	suppressions *MockSuppressionChecker
	suppressor   *MockSuppressor
	composer     *MockComposer
	engine       *MockEngine
	scorer       *stubScorer
	sender       *recordingSender
	window       stubWindow
	cap          *countingCap
	now          time.Time
}

func newSchedulerFixture() *schedulerFixture {
	return &schedulerFixture{
		states:       new(MockDueStateRepo),
		contacts:     new(MockContactSource),
		suppressions: new(MockSuppressionChecker),
		suppressor:   new(MockSuppressor),
		composer:     new(MockComposer),
		engine: &MockEngine{template: &domain.SequenceTemplate{
			Name: "default",
			Steps: []domain.Step{
				{OffsetDays: 0, Intent: "introduction"},
				{OffsetDays: 3, Intent: "follow_up"},
			},
		}},
		scorer: &stubScorer{scores: map[string]int{}},
		sender: &recordingSender{outcomes: map[string]domain.DeliveryOutcome{}},
		window: stubWindow{open: true},
		cap:    &countingCap{remaining: 1000},
		now:    time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	}
}

func (f *schedulerFixture) build(cfg SchedulerConfig) *Scheduler {
	return NewScheduler(
		f.states, f.contacts, f.suppressions, f.suppressor, f.composer,
		f.engine, f.scorer, f.sender, stubArchiver{key: "archive/key.json"},
		f.window, f.cap, tickClock{now: f.now}, cfg,
	)
}

func serialConfig() SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.Workers = 1
	cfg.MinScore = 40
	return cfg
}

func dueState(id, contactID string, stepIndex int, now time.Time) *domain.SequenceState {
	return &domain.SequenceState{
		ID:         id,
		ContactID:  contactID,
		Status:     domain.SequenceStatusActive,
		StepIndex:  stepIndex,
		EnrolledAt: now.Add(-time.Duration(stepIndex*3) * 24 * time.Hour),
		NextDueAt:  now.Add(-time.Minute),
	}
}

func TestScheduler_SendsDueStep(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	state := dueState("s1", "c1", 0, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example", Name: "Dana"}

	f.states.On("ClaimDue", mock.Anything, f.now, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, "dana@acme.example").Return(false, nil)
	f.composer.On("Compose", mock.Anything, contact, mock.Anything, 0).Return(&service.GeneratedMessage{Subject: "Hi", Body: "Hello Dana"}, nil)
	f.engine.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	err := f.build(serialConfig()).ProcessJobs(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.sentCount())
	f.engine.AssertCalled(t, "RecordOutcome", mock.Anything, mock.MatchedBy(func(input service.OutcomeInput) bool {
		return input.StateID == "s1" &&
			input.StepIndex == 0 &&
			input.Outcome.Status == domain.OutcomeSent &&
			input.ArchiveKey == "archive/key.json"
	}))
}

func TestScheduler_ClosedWindowSkipsTick(t *testing.T) {
	f := newSchedulerFixture()
	f.window = stubWindow{open: false}

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	f.states.AssertNotCalled(t, "ClaimDue", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_SendTimeSuppressionHaltsWithoutSending(t *testing.T) {
	f := newSchedulerFixture()

	state := dueState("s1", "c1", 1, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, "dana@acme.example").Return(true, nil)
	f.suppressor.On("Suppress", mock.Anything, mock.Anything).Return(&domain.SuppressionRecord{Email: "dana@acme.example"}, nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
	f.composer.AssertNotCalled(t, "Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.suppressor.AssertCalled(t, "Suppress", mock.Anything, mock.MatchedBy(func(input service.SuppressInput) bool {
		return input.Email == "dana@acme.example"
	}))
}

func TestScheduler_BelowThresholdSkipsByDefault(t *testing.T) {
	f := newSchedulerFixture()
	f.scorer.scores["c1"] = 10

	state := dueState("s1", "c1", 0, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
	f.engine.AssertNotCalled(t, "Disqualify", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_BelowThresholdDisqualifiesWhenEnabled(t *testing.T) {
	f := newSchedulerFixture()
	f.scorer.scores["c1"] = 10

	state := dueState("s1", "c1", 0, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.engine.On("Disqualify", mock.Anything, "s1", 10).Return(nil)

	cfg := serialConfig()
	cfg.DisqualifyBelowThreshold = true
	err := f.build(cfg).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
	f.engine.AssertCalled(t, "Disqualify", mock.Anything, "s1", 10)
}

func TestScheduler_MidSequenceSkipsScoringByDefault(t *testing.T) {
	f := newSchedulerFixture()
	f.scorer.scores["c1"] = 10

	state := dueState("s1", "c1", 1, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.composer.On("Compose", mock.Anything, contact, mock.Anything, 1).Return(&service.GeneratedMessage{Subject: "S", Body: "B"}, nil)
	f.engine.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.sentCount(), "a low score must not block mid-sequence sends unless rescoring is on")
}

func TestScheduler_MidSequenceRescoreSuppresses(t *testing.T) {
	f := newSchedulerFixture()
	f.scorer.scores["c1"] = 10

	state := dueState("s1", "c1", 1, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.suppressor.On("Suppress", mock.Anything, mock.Anything).Return(&domain.SuppressionRecord{Email: "dana@acme.example"}, nil)

	cfg := serialConfig()
	cfg.RescoreMidSequence = true
	cfg.RescoreAutoSuppress = true
	err := f.build(cfg).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
	f.suppressor.AssertCalled(t, "Suppress", mock.Anything, mock.MatchedBy(func(input service.SuppressInput) bool {
		return input.Source == "mid-sequence rescore"
	}))
}

func TestScheduler_CompositionFailureRecordedWithoutSend(t *testing.T) {
	f := newSchedulerFixture()

	state := dueState("s1", "c1", 0, f.now)
	contact := &domain.Contact{ID: "c1", Email: "dana@acme.example"}

	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{state}, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(contact, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.composer.On("Compose", mock.Anything, contact, mock.Anything, 0).Return(nil, errors.New("model refused"))
	f.engine.On("RecordCompositionFailure", mock.Anything, "s1", 0, "model refused").Return(nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
	f.engine.AssertCalled(t, "RecordCompositionFailure", mock.Anything, "s1", 0, "model refused")
	assert.Equal(t, 1000, f.cap.remaining, "a failed composition must not consume a send slot")
}

func TestScheduler_DailyCapDefersRemainingContacts(t *testing.T) {
	f := newSchedulerFixture()
	f.cap = &countingCap{remaining: 2}

	states := []*domain.SequenceState{
		dueState("s1", "c1", 0, f.now),
		dueState("s2", "c2", 0, f.now),
		dueState("s3", "c3", 0, f.now),
	}
	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return(states, nil)
	for _, id := range []string{"c1", "c2", "c3"} {
		f.contacts.On("GetByID", mock.Anything, id).Return(&domain.Contact{ID: id, Email: id + "@acme.example"}, nil)
	}
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.composer.On("Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&service.GeneratedMessage{Subject: "S", Body: "B"}, nil)
	f.engine.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, f.sender.sentCount(), "only two sends fit under the cap")
	f.engine.AssertNumberOfCalls(t, "RecordOutcome", 2)
}

func TestScheduler_OneBadContactDoesNotStallBatch(t *testing.T) {
	f := newSchedulerFixture()

	states := []*domain.SequenceState{
		dueState("s1", "c1", 0, f.now),
		dueState("s2", "c2", 0, f.now),
	}
	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return(states, nil)
	f.contacts.On("GetByID", mock.Anything, "c1").Return(nil, errors.New("db hiccup"))
	f.contacts.On("GetByID", mock.Anything, "c2").Return(&domain.Contact{ID: "c2", Email: "c2@acme.example"}, nil)
	f.suppressions.On("IsSuppressed", mock.Anything, mock.Anything).Return(false, nil)
	f.composer.On("Compose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&service.GeneratedMessage{Subject: "S", Body: "B"}, nil)
	f.engine.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.sender.sentCount())
}

func TestScheduler_EmptyTickIsQuiet(t *testing.T) {
	f := newSchedulerFixture()
	f.states.On("ClaimDue", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.SequenceState{}, nil)

	err := f.build(serialConfig()).ProcessJobs(context.Background())

	require.NoError(t, err)
	assert.Zero(t, f.sender.sentCount())
}
