package domain

import (
	"fmt"
	"time"
)

// SequenceStatus represents the lifecycle state of a sequence progression.
type SequenceStatus string

const (
	SequenceStatusActive     SequenceStatus = "active"
	SequenceStatusPaused     SequenceStatus = "paused"
	SequenceStatusCompleted  SequenceStatus = "completed"
	SequenceStatusSuppressed SequenceStatus = "suppressed"
	// SequenceStatusDisqualified is only entered when the
	// disqualify-below-threshold policy is enabled.
	SequenceStatusDisqualified SequenceStatus = "disqualified"
)

// SequenceState is one progression record for a contact. At most one
// active record exists per contact at any time.
type SequenceState struct {
	ID         string
	ContactID  string
	Status     SequenceStatus
	// StepIndex is the next step to send, 0-based. 0 means nothing sent yet.
	StepIndex  int
	// Attempts counts failed attempts at the current step; reset on advance.
	Attempts   int
	EnrolledAt time.Time
	LastSentAt *time.Time
	NextDueAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StepRecord is one entry in a contact's send history: a single attempt at
// a single step, with the composed content snapshot and its outcome.
type StepRecord struct {
	ID         string
	StateID    string
	ContactID  string
	StepIndex  int
	Attempt    int
	Subject    string
	Body       string
	Outcome    OutcomeStatus
	Detail     string
	// ArchiveKey points at the full rendered message in the archive, if
	// archiving is configured.
	ArchiveKey string
	SentAt     time.Time
}

// IsTerminal reports whether the status admits no further transitions.
func (s SequenceStatus) IsTerminal() bool {
	switch s {
	case SequenceStatusCompleted, SequenceStatusSuppressed, SequenceStatusDisqualified:
		return true
	}
	return false
}

// NewSequenceState creates a progression record at step 0.
func NewSequenceState(id, contactID string, enrolledAt, nextDue time.Time) *SequenceState {
	return &SequenceState{
		ID:         id,
		ContactID:  contactID,
		Status:     SequenceStatusActive,
		StepIndex:  0,
		Attempts:   0,
		EnrolledAt: enrolledAt,
		NextDueAt:  nextDue,
		CreatedAt:  enrolledAt,
		UpdatedAt:  enrolledAt,
	}
}

// ValidateSequenceState validates a SequenceState instance.
func ValidateSequenceState(s *SequenceState) error {
	if s == nil {
		return fmt.Errorf("sequence state cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("sequence state ID is required")
	}

	if s.ContactID == "" {
		return fmt.Errorf("sequence state ContactID is required")
	}

	if s.StepIndex < 0 {
		return fmt.Errorf("sequence state StepIndex must not be negative")
	}

	if !isValidSequenceStatus(s.Status) {
		return fmt.Errorf("sequence state Status is invalid: %s", s.Status)
	}

	return nil
}

func isValidSequenceStatus(s SequenceStatus) bool {
	switch s {
	case SequenceStatusActive, SequenceStatusPaused, SequenceStatusCompleted,
		SequenceStatusSuppressed, SequenceStatusDisqualified:
		return true
	}
	return false
}
