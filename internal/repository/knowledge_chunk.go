package repository

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeChunkRepository handles persistence of chunked knowledge
// embeddings and similarity search over them.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx dbtx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a knowledge item and inserts
// new ones. Re-embedding a document is always a full replacement.
func (r *KnowledgeChunkRepository) ReplaceChunks(ctx context.Context, knowledgeID string, chunks []domain.KnowledgeChunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE knowledge_id = $1`, knowledgeID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO knowledge_chunks (id, knowledge_id, chunk_index, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.KnowledgeID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchByEmbedding returns the chunks nearest the query embedding as
// snippets, highest score first. Score is 1/(1+distance), bounded to (0,1].
func (r *KnowledgeChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Snippet, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := r.db.Query(ctx,
		`SELECT content, 1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM knowledge_chunks
		 ORDER BY embedding <=> $1 ASC
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snippets := make([]domain.Snippet, 0, limit)
	for rows.Next() {
		var s domain.Snippet
		if err := rows.Scan(&s.Text, &s.Score); err != nil {
			return nil, err
		}
		snippets = append(snippets, s)
	}
	return snippets, rows.Err()
}
