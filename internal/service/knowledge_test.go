package service

import (
	"context"
	"testing"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeCreate_QueuesEmbeddingJob(t *testing.T) {
	knowledgeRepo := new(MockKnowledgeRepo)
	jobRepo := new(MockEmbeddingJobRepo)
	svc := NewKnowledgeServiceWithUUIDGen(knowledgeRepo, jobRepo, &seqUUIDGen{})

	knowledgeRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	knowledge, err := svc.Create(context.Background(), CreateKnowledgeInput{
		Title: "Case study: Acme",
		Body:  "Acme cut onboarding time 40%...",
	})

	require.NoError(t, err)
	assert.Equal(t, "uuid-1", knowledge.ID)

	jobRepo.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(job *domain.EmbeddingJob) bool {
		return job.KnowledgeID == "uuid-1" && job.Status == domain.EmbeddingJobStatusPending
	}))
}

func TestKnowledgeCreate_ValidationFailure(t *testing.T) {
	knowledgeRepo := new(MockKnowledgeRepo)
	jobRepo := new(MockEmbeddingJobRepo)
	svc := NewKnowledgeService(knowledgeRepo, jobRepo)

	_, err := svc.Create(context.Background(), CreateKnowledgeInput{Title: "", Body: "body"})

	require.Error(t, err)
	knowledgeRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestKnowledgeUpdate_QueuesReembedding(t *testing.T) {
	knowledgeRepo := new(MockKnowledgeRepo)
	jobRepo := new(MockEmbeddingJobRepo)
	svc := NewKnowledgeServiceWithUUIDGen(knowledgeRepo, jobRepo, &seqUUIDGen{})

	existing := &domain.Knowledge{ID: "k1", Title: "Old", Body: "Old body"}
	knowledgeRepo.On("GetByID", mock.Anything, "k1").Return(existing, nil)
	knowledgeRepo.On("Update", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	updated, err := svc.Update(context.Background(), UpdateKnowledgeInput{
		KnowledgeID: "k1",
		Title:       "New",
		Body:        "New body",
	})

	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	jobRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestKnowledgeList_PassesCursor(t *testing.T) {
	knowledgeRepo := new(MockKnowledgeRepo)
	svc := NewKnowledgeService(knowledgeRepo, new(MockEmbeddingJobRepo))

	page := &KnowledgePageResult{
		Items:      []*domain.Knowledge{{ID: "k1", Title: "T", Body: "B"}},
		NextCursor: "",
		HasMore:    false,
	}
	knowledgeRepo.On("ListWithCursor", mock.Anything, mock.Anything, 20).Return(page, nil)

	out, err := svc.List(context.Background(), ListKnowledgeInput{})

	require.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.False(t, out.HasMore)
}
