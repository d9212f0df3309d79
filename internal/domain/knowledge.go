package domain

import (
	"fmt"
	"time"
)

// Knowledge is a document in the outreach knowledge base: product notes,
// case studies, objection handling, anything worth citing in a message.
// Documents are chunked and embedded asynchronously for retrieval.
type Knowledge struct {
	ID        string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KnowledgeChunk is one embedded slice of a knowledge document.
type KnowledgeChunk struct {
	ID          string
	KnowledgeID string
	ChunkIndex  int
	Content     string
	Embedding   []float32
	CreatedAt   time.Time
}

// Snippet is a retrieval result: chunk text plus its similarity score in
// [0,1], highest first. Snippets are ephemeral; the engine never persists
// them beyond a single composition call.
type Snippet struct {
	Text  string
	Score float32
}

// EmbeddingJobStatus represents the status of a chunk-embedding job.
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusPending    EmbeddingJobStatus = "pending"
	EmbeddingJobStatusProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobStatusCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed     EmbeddingJobStatus = "failed"
)

// EmbeddingJob queues a knowledge document for chunking and embedding.
type EmbeddingJob struct {
	ID          string
	KnowledgeID string
	Status      EmbeddingJobStatus
	Retries     int
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// ValidateKnowledge validates a Knowledge instance.
func ValidateKnowledge(k *Knowledge) error {
	if k == nil {
		return fmt.Errorf("knowledge cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge ID is required")
	}

	if k.Title == "" {
		return fmt.Errorf("knowledge Title is required")
	}

	if k.Body == "" {
		return fmt.Errorf("knowledge Body is required")
	}

	return nil
}
