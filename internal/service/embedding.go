package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
)

// EmbeddingChunkRepository defines the repository interface for chunked knowledge embeddings
type EmbeddingChunkRepository interface {
	ReplaceChunks(ctx context.Context, knowledgeID string, chunks []domain.KnowledgeChunk) error
}

// EmbeddingService chunks a knowledge document and embeds each chunk so
// the retriever can search it. Called by the background embedding worker.
type EmbeddingService struct {
	client    EmbeddingClient
	repo      KnowledgeRepositoryInterface
	chunkRepo EmbeddingChunkRepository
	uuidGen   UUIDGenerator
	chunkCfg  ChunkConfig
}

func NewEmbeddingService(client EmbeddingClient, repo KnowledgeRepositoryInterface, chunkRepo EmbeddingChunkRepository) *EmbeddingService {
	return &EmbeddingService{
		client:    client,
		repo:      repo,
		chunkRepo: chunkRepo,
		uuidGen:   &DefaultUUIDGenerator{},
		chunkCfg:  DefaultChunkConfig(),
	}
}

// EmbedKnowledge regenerates the chunk index for one knowledge document.
func (s *EmbeddingService) EmbedKnowledge(ctx context.Context, knowledgeID string) error {
	knowledge, err := s.repo.GetByID(ctx, knowledgeID)
	if err != nil {
		return err
	}

	source := knowledge.Body
	if strings.TrimSpace(source) == "" {
		source = knowledge.Title
	}

	chunks := chunkText(source, s.chunkCfg)
	entries := make([]domain.KnowledgeChunk, 0, len(chunks))
	createdAt := time.Now().UTC()

	for i, chunk := range chunks {
		embedding, err := s.client.GenerateEmbedding(ctx, buildChunkEmbeddingText(knowledge, chunk))
		if err != nil {
			return fmt.Errorf("failed to generate chunk embedding: %w", err)
		}

		entries = append(entries, domain.KnowledgeChunk{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: knowledge.ID,
			ChunkIndex:  i,
			Content:     chunk,
			Embedding:   embedding,
			CreatedAt:   createdAt,
		})
	}

	if err := s.chunkRepo.ReplaceChunks(ctx, knowledgeID, entries); err != nil {
		return fmt.Errorf("failed to update knowledge chunks: %w", err)
	}

	return nil
}

// buildChunkEmbeddingText prefixes each chunk with the document title so
// short chunks keep their document context in the embedding.
func buildChunkEmbeddingText(k *domain.Knowledge, chunk string) string {
	if k.Title == "" {
		return chunk
	}
	return k.Title + "\n\n" + chunk
}
