package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuppressionReasonConstants(t *testing.T) {
	tests := []struct {
		name     string
		reason   SuppressionReason
		expected string
	}{
		{"HardBounce", SuppressionReasonHardBounce, "hard_bounce"},
		{"InvalidAddress", SuppressionReasonInvalidAddress, "invalid_address"},
		{"SpamComplaint", SuppressionReasonSpamComplaint, "spam_complaint"},
		{"Unsubscribe", SuppressionReasonUnsubscribe, "unsubscribe"},
		{"Manual", SuppressionReasonManual, "manual"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.reason))
		})
	}
}

func TestNewSuppressionRecord(t *testing.T) {
	now := time.Now()

	record := NewSuppressionRecord("  Jane@Example.COM ", SuppressionReasonUnsubscribe, "webhook", now)

	assert.Equal(t, "jane@example.com", record.Email)
	assert.Equal(t, SuppressionReasonUnsubscribe, record.Reason)
	assert.Equal(t, "webhook", record.Source)
	assert.Equal(t, now, record.CreatedAt)
}

func TestValidateSuppressionRecord(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		record  *SuppressionRecord
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid record",
			record: &SuppressionRecord{
				Email:     "jane@example.com",
				Reason:    SuppressionReasonManual,
				CreatedAt: now,
			},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
			errMsg:  "nil",
		},
		{
			name: "missing email",
			record: &SuppressionRecord{
				Reason: SuppressionReasonManual,
			},
			wantErr: true,
			errMsg:  "Email",
		},
		{
			name: "invalid reason",
			record: &SuppressionRecord{
				Email:  "jane@example.com",
				Reason: SuppressionReason("grudge"),
			},
			wantErr: true,
			errMsg:  "Reason",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSuppressionRecord(tt.record)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
