package service

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/pagination"
	"github.com/cadencehq/cadence/internal/telemetry"
)

// StatusService answers progression queries for dashboards and the CLI.
type StatusService struct {
	contactRepo ContactRepositoryInterface
	stateRepo   SequenceStateRepositoryInterface
	historyRepo StepHistoryRepositoryInterface
	scorer      *Scorer
}

func NewStatusService(
	contactRepo ContactRepositoryInterface,
	stateRepo SequenceStateRepositoryInterface,
	historyRepo StepHistoryRepositoryInterface,
	scorer *Scorer,
) *StatusService {
	return &StatusService{
		contactRepo: contactRepo,
		stateRepo:   stateRepo,
		historyRepo: historyRepo,
		scorer:      scorer,
	}
}

// ContactStatus is the per-contact progression snapshot. StateID is empty
// when the contact was never enrolled.
type ContactStatus struct {
	Contact    *domain.Contact
	StateID    string
	Status     domain.SequenceStatus
	StepIndex  int
	Attempts   int
	EnrolledAt time.Time
	LastSentAt *time.Time
	NextDueAt  *time.Time
}

// GetByEmail returns the progression snapshot for a contact.
func (s *StatusService) GetByEmail(ctx context.Context, email string) (*ContactStatus, error) {
	contact, err := s.contactRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.statusFor(ctx, contact)
}

// GetByContactID returns the progression snapshot for a contact.
func (s *StatusService) GetByContactID(ctx context.Context, contactID string) (*ContactStatus, error) {
	contact, err := s.contactRepo.GetByID(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return s.statusFor(ctx, contact)
}

func (s *StatusService) statusFor(ctx context.Context, contact *domain.Contact) (*ContactStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "StatusService.statusFor", telemetry.SpanAttributes{
		ContactID: contact.ID,
		Operation: "status",
	})
	defer span.End()

	state, err := s.stateRepo.GetLatestByContact(ctx, contact.ID)
	if err == domain.ErrSequenceStateNotFound {
		return &ContactStatus{Contact: contact}, nil
	}
	if err != nil {
		return nil, err
	}

	status := &ContactStatus{
		Contact:    contact,
		StateID:    state.ID,
		Status:     state.Status,
		StepIndex:  state.StepIndex,
		Attempts:   state.Attempts,
		EnrolledAt: state.EnrolledAt,
		LastSentAt: state.LastSentAt,
	}
	if state.Status == domain.SequenceStatusActive {
		due := state.NextDueAt
		status.NextDueAt = &due
	}
	return status, nil
}

// ListHistoryInput requests a page of send history for a contact.
type ListHistoryInput struct {
	ContactID string
	Cursor    string
	Limit     int
}

// ListHistoryOutput is one page of send history, newest first.
type ListHistoryOutput struct {
	Items   []*domain.StepRecord
	Cursor  string
	HasMore bool
}

// ListHistory returns a cursor-paginated page of a contact's send history.
func (s *StatusService) ListHistory(ctx context.Context, input ListHistoryInput) (*ListHistoryOutput, error) {
	if _, err := s.contactRepo.GetByID(ctx, input.ContactID); err != nil {
		return nil, err
	}

	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	result, err := s.historyRepo.ListByContactWithCursor(ctx, input.ContactID, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListHistoryOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

// ScoreContact returns the deterministic qualification breakdown.
func (s *StatusService) ScoreContact(ctx context.Context, contactID string) (int, ScoreBreakdown, error) {
	contact, err := s.contactRepo.GetByID(ctx, contactID)
	if err != nil {
		return 0, ScoreBreakdown{}, err
	}
	score, breakdown := s.scorer.Score(contact)
	return score, breakdown, nil
}

// Counts returns progression counts per status.
func (s *StatusService) Counts(ctx context.Context) (map[domain.SequenceStatus]int, error) {
	return s.stateRepo.CountByStatus(ctx)
}
