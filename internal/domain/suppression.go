package domain

import (
	"fmt"
	"time"
)

// SuppressionReason classifies why an address must never be messaged again.
type SuppressionReason string

const (
	SuppressionReasonHardBounce     SuppressionReason = "hard_bounce"
	SuppressionReasonInvalidAddress SuppressionReason = "invalid_address"
	SuppressionReasonSpamComplaint  SuppressionReason = "spam_complaint"
	SuppressionReasonUnsubscribe    SuppressionReason = "unsubscribe"
	SuppressionReasonManual         SuppressionReason = "manual"
)

// SuppressionRecord marks a normalized email address as permanently
// excluded from sends. Once present, the address is rejected at send time,
// not only at enrollment time.
type SuppressionRecord struct {
	Email     string
	Reason    SuppressionReason
	Source    string
	CreatedAt time.Time
}

// NewSuppressionRecord creates a suppression record with a normalized key.
func NewSuppressionRecord(email string, reason SuppressionReason, source string, createdAt time.Time) *SuppressionRecord {
	return &SuppressionRecord{
		Email:     NormalizeEmail(email),
		Reason:    reason,
		Source:    source,
		CreatedAt: createdAt,
	}
}

// ValidateSuppressionRecord validates a SuppressionRecord instance.
func ValidateSuppressionRecord(r *SuppressionRecord) error {
	if r == nil {
		return fmt.Errorf("suppression record cannot be nil")
	}

	if r.Email == "" {
		return fmt.Errorf("suppression record Email is required")
	}

	if !isValidSuppressionReason(r.Reason) {
		return fmt.Errorf("suppression record Reason is invalid: %s", r.Reason)
	}

	return nil
}

func isValidSuppressionReason(r SuppressionReason) bool {
	switch r {
	case SuppressionReasonHardBounce, SuppressionReasonInvalidAddress,
		SuppressionReasonSpamComplaint, SuppressionReasonUnsubscribe,
		SuppressionReasonManual:
		return true
	}
	return false
}
