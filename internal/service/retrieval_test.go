package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRetrieve_ReturnsSnippets(t *testing.T) {
	client := new(MockEmbeddingClient)
	chunkRepo := new(MockChunkRepo)
	svc := NewRetrievalService(client, chunkRepo)

	client.On("GenerateEmbedding", mock.Anything, "logistics onboarding").Return([]float32{0.1, 0.2}, nil)
	chunkRepo.On("SearchByEmbedding", mock.Anything, []float32{0.1, 0.2}, 3).Return([]domain.Snippet{
		{Text: "Acme cut onboarding time 40%", Score: 0.91},
		{Text: "Freight teams report fewer handoffs", Score: 0.84},
	}, nil)

	snippets := svc.Retrieve(context.Background(), "logistics onboarding", 3)

	assert.Len(t, snippets, 2)
	assert.InDelta(t, 0.91, snippets[0].Score, 1e-6)
}

func TestRetrieve_EmptyQueryReturnsNothing(t *testing.T) {
	client := new(MockEmbeddingClient)
	chunkRepo := new(MockChunkRepo)
	svc := NewRetrievalService(client, chunkRepo)

	snippets := svc.Retrieve(context.Background(), "", 3)

	assert.Nil(t, snippets)
	client.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
}

func TestRetrieve_EmbeddingFailureDegradesToEmpty(t *testing.T) {
	client := new(MockEmbeddingClient)
	chunkRepo := new(MockChunkRepo)
	svc := NewRetrievalService(client, chunkRepo)

	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	snippets := svc.Retrieve(context.Background(), "anything", 3)

	assert.Nil(t, snippets)
	chunkRepo.AssertNotCalled(t, "SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetrieve_SearchFailureDegradesToEmpty(t *testing.T) {
	client := new(MockEmbeddingClient)
	chunkRepo := new(MockChunkRepo)
	svc := NewRetrievalService(client, chunkRepo)

	client.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	chunkRepo.On("SearchByEmbedding", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("index offline"))

	snippets := svc.Retrieve(context.Background(), "anything", 3)

	assert.Nil(t, snippets)
}

func TestRetrieve_NilClientReturnsNothing(t *testing.T) {
	svc := NewRetrievalService(nil, nil)

	snippets := svc.Retrieve(context.Background(), "anything", 3)

	assert.Nil(t, snippets)
}
