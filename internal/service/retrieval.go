package service

import (
	"context"
	"log"

	"github.com/cadencehq/cadence/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearchRepository defines the repository interface for chunk similarity search
type ChunkSearchRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Snippet, error)
}

// RetrievalService turns a query into ranked knowledge snippets. Retrieval
// is best-effort personalization context: any failure degrades to an empty
// result instead of propagating, so composition is never blocked on it.
type RetrievalService struct {
	client    EmbeddingClient
	chunkRepo ChunkSearchRepository
}

func NewRetrievalService(client EmbeddingClient, chunkRepo ChunkSearchRepository) *RetrievalService {
	return &RetrievalService{
		client:    client,
		chunkRepo: chunkRepo,
	}
}

// Retrieve returns up to k snippets relevant to the query, highest score
// first. Returns an empty slice when retrieval is unavailable or fails.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) []domain.Snippet {
	if s.client == nil || s.chunkRepo == nil || query == "" {
		return nil
	}

	embedding, err := s.client.GenerateEmbedding(ctx, query)
	if err != nil {
		log.Printf("retrieval: embedding query failed (continuing without context): %v", err)
		return nil
	}

	snippets, err := s.chunkRepo.SearchByEmbedding(ctx, embedding, k)
	if err != nil {
		log.Printf("retrieval: chunk search failed (continuing without context): %v", err)
		return nil
	}

	return snippets
}
