package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/pagination"
	"github.com/stretchr/testify/mock"
)

type MockContactRepo struct {
	mock.Mock
}

func (m *MockContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

func (m *MockContactRepo) GetByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

func (m *MockContactRepo) GetByIDs(ctx context.Context, ids []string) ([]*domain.Contact, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Contact), args.Error(1)
}

func (m *MockContactRepo) Update(ctx context.Context, c *domain.Contact) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockStateRepo struct {
	mock.Mock
}

func (m *MockStateRepo) Create(ctx context.Context, s *domain.SequenceState) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStateRepo) GetByID(ctx context.Context, id string) (*domain.SequenceState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceState), args.Error(1)
}

func (m *MockStateRepo) GetActiveByContact(ctx context.Context, contactID string) (*domain.SequenceState, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceState), args.Error(1)
}

func (m *MockStateRepo) GetLatestByContact(ctx context.Context, contactID string) (*domain.SequenceState, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SequenceState), args.Error(1)
}

func (m *MockStateRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.SequenceState, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SequenceState), args.Error(1)
}

func (m *MockStateRepo) Update(ctx context.Context, s *domain.SequenceState) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStateRepo) TransitionActiveByEmail(ctx context.Context, email string, status domain.SequenceStatus) (int64, error) {
	args := m.Called(ctx, email, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStateRepo) CountByStatus(ctx context.Context) (map[domain.SequenceStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.SequenceStatus]int), args.Error(1)
}

type MockSuppressionRepo struct {
	mock.Mock
}

func (m *MockSuppressionRepo) Upsert(ctx context.Context, rec *domain.SuppressionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockSuppressionRepo) GetByEmail(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SuppressionRecord), args.Error(1)
}

func (m *MockSuppressionRepo) IsSuppressed(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockSuppressionRepo) List(ctx context.Context, limit int) ([]*domain.SuppressionRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SuppressionRecord), args.Error(1)
}

type MockHistoryRepo struct {
	mock.Mock
}

func (m *MockHistoryRepo) Create(ctx context.Context, rec *domain.StepRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockHistoryRepo) GetByID(ctx context.Context, id string) (*domain.StepRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StepRecord), args.Error(1)
}

func (m *MockHistoryRepo) ListByContactWithCursor(ctx context.Context, contactID string, cursor *pagination.Cursor, limit int) (*StepPageResult, error) {
	args := m.Called(ctx, contactID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StepPageResult), args.Error(1)
}

func (m *MockHistoryRepo) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	args := m.Called(ctx, since)
	return args.Int(0), args.Error(1)
}

type MockKnowledgeRepo struct {
	mock.Mock
}

func (m *MockKnowledgeRepo) Create(ctx context.Context, k *domain.Knowledge) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepo) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Knowledge), args.Error(1)
}

func (m *MockKnowledgeRepo) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*KnowledgePageResult), args.Error(1)
}

func (m *MockKnowledgeRepo) Update(ctx context.Context, k *domain.Knowledge) error {
	args := m.Called(ctx, k)
	return args.Error(0)
}

func (m *MockKnowledgeRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockEmbeddingJobRepo struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepo) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockChunkRepo struct {
	mock.Mock
}

func (m *MockChunkRepo) ReplaceChunks(ctx context.Context, knowledgeID string, chunks []domain.KnowledgeChunk) error {
	args := m.Called(ctx, knowledgeID, chunks)
	return args.Error(0)
}

func (m *MockChunkRepo) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Snippet, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Snippet), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateMessage(ctx context.Context, prompt string) (*GeneratedMessage, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GeneratedMessage), args.Error(1)
}

// fakeTxRunner runs the transaction function directly over the supplied
// mocks with no transactional semantics.
type fakeTxRunner struct {
	contacts     ContactRepositoryInterface
	states       SequenceStateRepositoryInterface
	suppressions SuppressionRepositoryInterface
	history      StepHistoryRepositoryInterface
	knowledge    KnowledgeRepositoryInterface
	jobs         EmbeddingJobRepositoryInterface
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(f)
}

func (f *fakeTxRunner) Contacts() ContactRepositoryInterface           { return f.contacts }
func (f *fakeTxRunner) States() SequenceStateRepositoryInterface       { return f.states }
func (f *fakeTxRunner) Suppressions() SuppressionRepositoryInterface   { return f.suppressions }
func (f *fakeTxRunner) StepHistory() StepHistoryRepositoryInterface    { return f.history }
func (f *fakeTxRunner) Knowledge() KnowledgeRepositoryInterface        { return f.knowledge }
func (f *fakeTxRunner) EmbeddingJobs() EmbeddingJobRepositoryInterface { return f.jobs }

// fixedClock returns a constant time.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// seqUUIDGen yields uuid-1, uuid-2, ... deterministically.
type seqUUIDGen struct {
	n int
}

func (g *seqUUIDGen) NewString() string {
	g.n++
	return fmt.Sprintf("uuid-%d", g.n)
}

func twoStepTemplate() *domain.SequenceTemplate {
	return &domain.SequenceTemplate{
		Name: "test",
		Steps: []domain.Step{
			{OffsetDays: 0, Intent: "introduction"},
			{OffsetDays: 3, Intent: "follow_up"},
		},
	}
}
