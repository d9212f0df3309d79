package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/storage"
	"github.com/cadencehq/cadence/internal/transport"
)

// DueStateRepository lists progression records whose next step is due.
type DueStateRepository interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.SequenceState, error)
}

// ContactRepository loads contacts for due states.
type ContactRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
}

// SuppressionChecker answers the send-time suppression check.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// Suppressor halts a contact's sequence and records the suppression.
type Suppressor interface {
	Suppress(ctx context.Context, input service.SuppressInput) (*domain.SuppressionRecord, error)
}

// Composer produces the message for one step.
type Composer interface {
	Compose(ctx context.Context, contact *domain.Contact, step domain.Step, stepIndex int) (*service.GeneratedMessage, error)
}

// Engine applies delivery outcomes to progression state.
type Engine interface {
	Template() *domain.SequenceTemplate
	RecordOutcome(ctx context.Context, input service.OutcomeInput) error
	RecordCompositionFailure(ctx context.Context, stateID string, stepIndex int, detail string) error
	Disqualify(ctx context.Context, stateID string, score int) error
}

// Scorer computes a contact's qualification score.
type Scorer interface {
	Score(c *domain.Contact) (int, service.ScoreBreakdown)
}

// Sender delivers one composed message.
type Sender interface {
	Send(ctx context.Context, msg transport.Message) domain.DeliveryOutcome
}

// Archiver persists the rendered message before the send. Archival is
// best-effort; a failed write never blocks the send.
type Archiver interface {
	Store(ctx context.Context, msg storage.ArchivedMessage) (string, error)
}

// SendWindow gates ticks to the allowed sending hours.
type SendWindow interface {
	Contains(t time.Time) bool
}

// DailyCap reserves send slots against the daily limit.
type DailyCap interface {
	Allow(ctx context.Context, n int) (bool, error)
}

// SchedulerConfig tunes one scheduler instance.
type SchedulerConfig struct {
	// BatchSize bounds how many due states one tick picks up.
	BatchSize int
	// Workers bounds concurrent contact processing within a tick.
	Workers int
	// MinScore is the qualification threshold checked before the first send.
	MinScore int
	// DisqualifyBelowThreshold terminates under-threshold contacts
	// instead of leaving them due.
	DisqualifyBelowThreshold bool
	// RescoreMidSequence re-runs scoring before every step, not only step 0.
	RescoreMidSequence bool
	// RescoreAutoSuppress suppresses a mid-sequence contact whose score
	// dropped below threshold. Requires RescoreMidSequence.
	RescoreAutoSuppress bool
	// ComposeTimeout bounds one composition call.
	ComposeTimeout time.Duration
	// SendTimeout bounds one transport call.
	SendTimeout time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize:      100,
		Workers:        4,
		MinScore:       40,
		ComposeTimeout: 60 * time.Second,
		SendTimeout:    30 * time.Second,
	}
}

// Scheduler advances due sequences. Each tick claims due states, then for
// each one re-checks suppression, gates on qualification, composes,
// reserves a send slot against the daily cap, sends, and records the
// outcome. Everything after ClaimDue runs per contact, so one bad contact
// never stalls the batch.
type Scheduler struct {
	states       DueStateRepository
	contacts     ContactRepository
	suppressions SuppressionChecker
	suppressor   Suppressor
	composer     Composer
	engine       Engine
	scorer       Scorer
	sender       Sender
	archiver     Archiver
	window       SendWindow
	dailyCap     DailyCap
	clock        service.Clock
	cfg          SchedulerConfig
}

func NewScheduler(
	states DueStateRepository,
	contacts ContactRepository,
	suppressions SuppressionChecker,
	suppressor Suppressor,
	composer Composer,
	engine Engine,
	scorer Scorer,
	sender Sender,
	archiver Archiver,
	window SendWindow,
	dailyCap DailyCap,
	clock service.Clock,
	cfg SchedulerConfig,
) *Scheduler {
	return &Scheduler{
		states:       states,
		contacts:     contacts,
		suppressions: suppressions,
		suppressor:   suppressor,
		composer:     composer,
		engine:       engine,
		scorer:       scorer,
		sender:       sender,
		archiver:     archiver,
		window:       window,
		dailyCap:     dailyCap,
		clock:        clock,
		cfg:          cfg,
	}
}

// ProcessJobs implements the JobProcessor interface. One call is one tick.
func (s *Scheduler) ProcessJobs(ctx context.Context) error {
	now := s.clock.Now()

	if !s.window.Contains(now) {
		return nil
	}

	states, err := s.states.ClaimDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim due states: %w", err)
	}

	if len(states) == 0 {
		return nil
	}

	log.Printf("scheduler: %d due contacts at %s", len(states), now.Format(time.RFC3339))

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	// capExhausted short-circuits the rest of the batch once the daily
	// cap refuses a slot. Remaining states stay due and are retried on a
	// later tick.
	var capExhausted atomic.Bool
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, state := range states {
		if capExhausted.Load() {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(st *domain.SequenceState) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.processState(ctx, st, now, &capExhausted); err != nil {
				log.Printf("scheduler: contact %s step %d failed: %v", st.ContactID, st.StepIndex, err)
			}
		}(state)
	}

	wg.Wait()
	return nil
}

func (s *Scheduler) processState(ctx context.Context, state *domain.SequenceState, now time.Time, capExhausted *atomic.Bool) error {
	template := s.engine.Template()
	if state.StepIndex < 0 || state.StepIndex >= template.Len() {
		return fmt.Errorf("state %s has step index %d outside template", state.ID, state.StepIndex)
	}

	contact, err := s.contacts.GetByID(ctx, state.ContactID)
	if err != nil {
		return err
	}

	// Suppression may have arrived after enrollment; re-check at send time.
	suppressed, err := s.suppressions.IsSuppressed(ctx, contact.Email)
	if err != nil {
		return err
	}
	if suppressed {
		log.Printf("scheduler: contact %s is suppressed, halting sequence", contact.ID)
		_, err := s.suppressor.Suppress(ctx, service.SuppressInput{
			Email:  contact.Email,
			Reason: domain.SuppressionReasonManual,
			Source: "send-time check",
		})
		return err
	}

	if proceed, err := s.checkScore(ctx, state, contact); err != nil || !proceed {
		return err
	}

	step := template.Step(state.StepIndex)

	composeCtx, cancelCompose := context.WithTimeout(ctx, s.cfg.ComposeTimeout)
	msg, err := s.composer.Compose(composeCtx, contact, step, state.StepIndex)
	cancelCompose()
	if err != nil {
		return s.engine.RecordCompositionFailure(ctx, state.ID, state.StepIndex, err.Error())
	}

	allowed, err := s.dailyCap.Allow(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to reserve send slot: %w", err)
	}
	if !allowed {
		if capExhausted.CompareAndSwap(false, true) {
			log.Printf("scheduler: daily send cap reached, deferring remaining contacts")
		}
		return nil
	}

	archiveKey, err := s.archiver.Store(ctx, storage.ArchivedMessage{
		ContactID: contact.ID,
		StateID:   state.ID,
		StepIndex: state.StepIndex,
		Email:     contact.Email,
		Subject:   msg.Subject,
		Body:      msg.Body,
		SentAt:    now,
	})
	if err != nil {
		log.Printf("scheduler: archiving message for contact %s failed: %v", contact.ID, err)
		archiveKey = ""
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, s.cfg.SendTimeout)
	outcome := s.sender.Send(sendCtx, transport.Message{
		To:      contact.Email,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	cancelSend()

	return s.engine.RecordOutcome(ctx, service.OutcomeInput{
		StateID:    state.ID,
		StepIndex:  state.StepIndex,
		Email:      contact.Email,
		Subject:    msg.Subject,
		Body:       msg.Body,
		ArchiveKey: archiveKey,
		Outcome:    outcome,
	})
}

// checkScore applies the qualification gate. It returns false when the
// contact must not be sent to on this tick.
func (s *Scheduler) checkScore(ctx context.Context, state *domain.SequenceState, contact *domain.Contact) (bool, error) {
	firstStep := state.StepIndex == 0
	if !firstStep && !s.cfg.RescoreMidSequence {
		return true, nil
	}

	score, _ := s.scorer.Score(contact)
	if score >= s.cfg.MinScore {
		return true, nil
	}

	if !firstStep && s.cfg.RescoreAutoSuppress {
		log.Printf("scheduler: contact %s rescored to %d, suppressing", contact.ID, score)
		_, err := s.suppressor.Suppress(ctx, service.SuppressInput{
			Email:  contact.Email,
			Reason: domain.SuppressionReasonManual,
			Source: "mid-sequence rescore",
		})
		return false, err
	}

	if s.cfg.DisqualifyBelowThreshold {
		log.Printf("scheduler: contact %s scored %d below %d, disqualifying", contact.ID, score, s.cfg.MinScore)
		return false, s.engine.Disqualify(ctx, state.ID, score)
	}

	log.Printf("scheduler: contact %s scored %d below %d, skipping", contact.ID, score, s.cfg.MinScore)
	return false, nil
}
