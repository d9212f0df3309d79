package service

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/pagination"
	"github.com/cadencehq/cadence/internal/telemetry"
)

// KnowledgeRepositoryInterface defines the repository interface for knowledge persistence
type KnowledgeRepositoryInterface interface {
	Create(ctx context.Context, k *domain.Knowledge) error
	GetByID(ctx context.Context, id string) (*domain.Knowledge, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*KnowledgePageResult, error)
	Update(ctx context.Context, k *domain.Knowledge) error
	Delete(ctx context.Context, id string) error
}

type KnowledgePageResult struct {
	Items      []*domain.Knowledge
	NextCursor string
	HasMore    bool
}

// EmbeddingJobRepositoryInterface defines the repository interface for embedding job persistence
type EmbeddingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// KnowledgeService handles ingestion of knowledge documents that feed the
// retriever. Every create or update queues an embedding job so the chunk
// index catches up asynchronously.
type KnowledgeService struct {
	knowledgeRepo    KnowledgeRepositoryInterface
	embeddingJobRepo EmbeddingJobRepositoryInterface
	uuidGen          UUIDGenerator
}

func NewKnowledgeService(
	knowledgeRepo KnowledgeRepositoryInterface,
	embeddingJobRepo EmbeddingJobRepositoryInterface,
) *KnowledgeService {
	return &KnowledgeService{
		knowledgeRepo:    knowledgeRepo,
		embeddingJobRepo: embeddingJobRepo,
		uuidGen:          &DefaultUUIDGenerator{},
	}
}

func NewKnowledgeServiceWithUUIDGen(
	knowledgeRepo KnowledgeRepositoryInterface,
	embeddingJobRepo EmbeddingJobRepositoryInterface,
	uuidGen UUIDGenerator,
) *KnowledgeService {
	return &KnowledgeService{
		knowledgeRepo:    knowledgeRepo,
		embeddingJobRepo: embeddingJobRepo,
		uuidGen:          uuidGen,
	}
}

// CreateKnowledgeInput represents the input for creating a knowledge item
type CreateKnowledgeInput struct {
	Title string
	Body  string
}

// UpdateKnowledgeInput represents the input for updating a knowledge item
type UpdateKnowledgeInput struct {
	KnowledgeID string
	Title       string
	Body        string
}

type ListKnowledgeInput struct {
	Cursor string
	Limit  int
}

type ListKnowledgeOutput struct {
	Items   []*domain.Knowledge
	Cursor  string
	HasMore bool
}

// Create creates a knowledge item and queues an embedding job for it.
func (s *KnowledgeService) Create(ctx context.Context, input CreateKnowledgeInput) (*domain.Knowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	now := time.Now().UTC()
	knowledge := &domain.Knowledge{
		ID:        s.uuidGen.NewString(),
		Title:     input.Title,
		Body:      input.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := domain.ValidateKnowledge(knowledge); err != nil {
		return nil, err
	}

	if err := s.knowledgeRepo.Create(ctx, knowledge); err != nil {
		return nil, err
	}

	if err := s.queueEmbeddingJob(ctx, knowledge.ID, now); err != nil {
		return nil, err
	}

	return knowledge, nil
}

// Update replaces a knowledge item's content and queues a re-embedding job.
func (s *KnowledgeService) Update(ctx context.Context, input UpdateKnowledgeInput) (*domain.Knowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Update", telemetry.SpanAttributes{
		KnowledgeID: input.KnowledgeID,
		Operation:   "update",
	})
	defer span.End()

	knowledge, err := s.knowledgeRepo.GetByID(ctx, input.KnowledgeID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	knowledge.Title = input.Title
	knowledge.Body = input.Body
	knowledge.UpdatedAt = now

	if err := domain.ValidateKnowledge(knowledge); err != nil {
		return nil, err
	}

	if err := s.knowledgeRepo.Update(ctx, knowledge); err != nil {
		return nil, err
	}

	if err := s.queueEmbeddingJob(ctx, knowledge.ID, now); err != nil {
		return nil, err
	}

	return knowledge, nil
}

// GetByID retrieves a knowledge item by ID
func (s *KnowledgeService) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	return s.knowledgeRepo.GetByID(ctx, id)
}

// Delete removes a knowledge item; its chunks cascade.
func (s *KnowledgeService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Delete", telemetry.SpanAttributes{
		KnowledgeID: id,
		Operation:   "delete",
	})
	defer span.End()

	return s.knowledgeRepo.Delete(ctx, id)
}

func (s *KnowledgeService) List(ctx context.Context, input ListKnowledgeInput) (*ListKnowledgeOutput, error) {
	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	result, err := s.knowledgeRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListKnowledgeOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

func (s *KnowledgeService) queueEmbeddingJob(ctx context.Context, knowledgeID string, now time.Time) error {
	job := &domain.EmbeddingJob{
		ID:          s.uuidGen.NewString(),
		KnowledgeID: knowledgeID,
		Status:      domain.EmbeddingJobStatusPending,
		Retries:     0,
		Error:       "",
		CreatedAt:   now,
		ProcessedAt: nil,
	}
	return s.embeddingJobRepo.Create(ctx, job)
}
