package service

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/pagination"
	"github.com/cadencehq/cadence/internal/telemetry"
	"github.com/google/uuid"
)

// ContactRepositoryInterface defines the repository interface for contact persistence
type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	GetByEmail(ctx context.Context, email string) (*domain.Contact, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Contact, error)
	Update(ctx context.Context, c *domain.Contact) error
}

// SequenceStateRepositoryInterface defines the repository interface for progression state
type SequenceStateRepositoryInterface interface {
	Create(ctx context.Context, s *domain.SequenceState) error
	GetByID(ctx context.Context, id string) (*domain.SequenceState, error)
	GetActiveByContact(ctx context.Context, contactID string) (*domain.SequenceState, error)
	GetLatestByContact(ctx context.Context, contactID string) (*domain.SequenceState, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.SequenceState, error)
	Update(ctx context.Context, s *domain.SequenceState) error
	TransitionActiveByEmail(ctx context.Context, email string, status domain.SequenceStatus) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.SequenceStatus]int, error)
}

// SuppressionRepositoryInterface defines the repository interface for the suppression registry
type SuppressionRepositoryInterface interface {
	Upsert(ctx context.Context, rec *domain.SuppressionRecord) error
	GetByEmail(ctx context.Context, email string) (*domain.SuppressionRecord, error)
	IsSuppressed(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit int) ([]*domain.SuppressionRecord, error)
}

// StepHistoryRepositoryInterface defines the repository interface for send history
type StepHistoryRepositoryInterface interface {
	Create(ctx context.Context, rec *domain.StepRecord) error
	GetByID(ctx context.Context, id string) (*domain.StepRecord, error)
	ListByContactWithCursor(ctx context.Context, contactID string, cursor *pagination.Cursor, limit int) (*StepPageResult, error)
	CountSentSince(ctx context.Context, since time.Time) (int, error)
}

type StepPageResult struct {
	Items      []*domain.StepRecord
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Clock abstracts time for deterministic scheduler tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// EnrollmentService creates contacts and their step-0 progression records.
type EnrollmentService struct {
	contactRepo     ContactRepositoryInterface
	stateRepo       SequenceStateRepositoryInterface
	suppressionRepo SuppressionRepositoryInterface
	template        *domain.SequenceTemplate
	uuidGen         UUIDGenerator
	clock           Clock
}

func NewEnrollmentService(
	contactRepo ContactRepositoryInterface,
	stateRepo SequenceStateRepositoryInterface,
	suppressionRepo SuppressionRepositoryInterface,
	template *domain.SequenceTemplate,
) *EnrollmentService {
	return &EnrollmentService{
		contactRepo:     contactRepo,
		stateRepo:       stateRepo,
		suppressionRepo: suppressionRepo,
		template:        template,
		uuidGen:         &DefaultUUIDGenerator{},
		clock:           RealClock{},
	}
}

func NewEnrollmentServiceWithDeps(
	contactRepo ContactRepositoryInterface,
	stateRepo SequenceStateRepositoryInterface,
	suppressionRepo SuppressionRepositoryInterface,
	template *domain.SequenceTemplate,
	uuidGen UUIDGenerator,
	clock Clock,
) *EnrollmentService {
	return &EnrollmentService{
		contactRepo:     contactRepo,
		stateRepo:       stateRepo,
		suppressionRepo: suppressionRepo,
		template:        template,
		uuidGen:         uuidGen,
		clock:           clock,
	}
}

// EnrollContactInput represents one contact to enroll.
type EnrollContactInput struct {
	Email        string
	Name         string
	Organization string
	Role         string
	Attributes   domain.Attributes
}

// EnrollResult reports the outcome for one input record.
type EnrollResult struct {
	Email     string
	ContactID string
	StateID   string
	Enrolled  bool
	Err       error
}

// EnrollBatch enrolls a batch of contacts. Each record is handled
// independently: a duplicate or suppressed address fails that record,
// never the batch. Existing contacts that have no active progression are
// re-enrolled under their existing contact row.
func (s *EnrollmentService) EnrollBatch(ctx context.Context, inputs []EnrollContactInput) []EnrollResult {
	ctx, span := telemetry.StartSpan(ctx, "EnrollmentService.EnrollBatch", telemetry.SpanAttributes{
		Operation: "enroll_batch",
	})
	defer span.End()

	results := make([]EnrollResult, 0, len(inputs))
	for _, input := range inputs {
		result := s.enrollOne(ctx, input)
		results = append(results, result)
	}
	return results
}

// Enroll enrolls a single contact.
func (s *EnrollmentService) Enroll(ctx context.Context, input EnrollContactInput) (*domain.SequenceState, error) {
	result := s.enrollOne(ctx, input)
	if result.Err != nil {
		return nil, result.Err
	}
	return s.stateRepo.GetByID(ctx, result.StateID)
}

func (s *EnrollmentService) enrollOne(ctx context.Context, input EnrollContactInput) EnrollResult {
	email := domain.NormalizeEmail(input.Email)
	result := EnrollResult{Email: email}

	suppressed, err := s.suppressionRepo.IsSuppressed(ctx, email)
	if err != nil {
		result.Err = err
		return result
	}
	if suppressed {
		result.Err = domain.ErrContactSuppressed
		return result
	}

	now := s.clock.Now()

	contact, err := s.contactRepo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		// existing contact, re-enrollment path
	case err == domain.ErrContactNotFound:
		contact = domain.NewContact(s.uuidGen.NewString(), email, input.Name, input.Organization, input.Role, input.Attributes, now)
		if err := domain.ValidateContact(contact); err != nil {
			result.Err = err
			return result
		}
		if err := s.contactRepo.Create(ctx, contact); err != nil {
			result.Err = err
			return result
		}
	default:
		result.Err = err
		return result
	}
	result.ContactID = contact.ID

	if _, err := s.stateRepo.GetActiveByContact(ctx, contact.ID); err == nil {
		result.Err = domain.ErrAlreadyEnrolled
		return result
	} else if err != domain.ErrSequenceStateNotFound {
		result.Err = err
		return result
	}

	state := domain.NewSequenceState(s.uuidGen.NewString(), contact.ID, now, s.template.DueAt(now, 0))
	if err := s.stateRepo.Create(ctx, state); err != nil {
		result.Err = err
		return result
	}

	result.StateID = state.ID
	result.Enrolled = true
	return result
}
