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

func TestSuppress_WritesRecordAndHaltsActiveSequence(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	suppressionRepo := new(MockSuppressionRepo)
	stateRepo := new(MockStateRepo)
	tx := &fakeTxRunner{suppressions: suppressionRepo, states: stateRepo}
	svc := NewSuppressionServiceWithClock(suppressionRepo, tx, fixedClock{now: now})

	suppressionRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("TransitionActiveByEmail", mock.Anything, "jane@example.com", domain.SequenceStatusSuppressed).
		Return(int64(1), nil)

	record, err := svc.Suppress(context.Background(), SuppressInput{
		Email:  "Jane@Example.COM",
		Reason: domain.SuppressionReasonUnsubscribe,
		Source: "webhook",
	})

	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", record.Email)
	assert.Equal(t, now, record.CreatedAt)
	suppressionRepo.AssertExpectations(t)
	stateRepo.AssertExpectations(t)
}

func TestSuppress_InvalidReason(t *testing.T) {
	svc := NewSuppressionService(new(MockSuppressionRepo), &fakeTxRunner{})

	_, err := svc.Suppress(context.Background(), SuppressInput{
		Email:  "jane@example.com",
		Reason: domain.SuppressionReason("grudge"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Reason")
}

func TestSuppress_NoActiveSequenceIsFine(t *testing.T) {
	suppressionRepo := new(MockSuppressionRepo)
	stateRepo := new(MockStateRepo)
	tx := &fakeTxRunner{suppressions: suppressionRepo, states: stateRepo}
	svc := NewSuppressionService(suppressionRepo, tx)

	suppressionRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	stateRepo.On("TransitionActiveByEmail", mock.Anything, "gone@example.com", domain.SequenceStatusSuppressed).
		Return(int64(0), nil)

	_, err := svc.Suppress(context.Background(), SuppressInput{
		Email:  "gone@example.com",
		Reason: domain.SuppressionReasonManual,
	})

	require.NoError(t, err)
}

func TestIsSuppressed(t *testing.T) {
	suppressionRepo := new(MockSuppressionRepo)
	svc := NewSuppressionService(suppressionRepo, &fakeTxRunner{})

	suppressionRepo.On("IsSuppressed", mock.Anything, "jane@example.com").Return(true, nil)

	suppressed, err := svc.IsSuppressed(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)
}
