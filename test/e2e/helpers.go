//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cadencehq/cadence/internal/api/handlers"
	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/jobs"
	"github.com/cadencehq/cadence/internal/repository"
	"github.com/cadencehq/cadence/internal/schedule"
	"github.com/cadencehq/cadence/internal/server"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/storage"
	"github.com/cadencehq/cadence/internal/testutil"
	"github.com/cadencehq/cadence/internal/transport"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testAPIKey = "e2e-test-key"

// E2ETestEnv holds all resources needed for E2E tests: containers, the
// in-process HTTP server, and the pieces of the send pipeline replaced by
// test doubles (generator and transport).
type E2ETestEnv struct {
	T         *testing.T
	Ctx       context.Context
	PostgresC *testutil.PostgresContainer
	RustFSC   *testutil.RustFSContainer
	Pool      *pgxpool.Pool
	Server    *httptest.Server

	Template       *domain.SequenceTemplate
	ContactRepo    *repository.ContactRepository
	StateRepo      *repository.SequenceStateRepository
	HistoryRepo    *repository.StepHistoryRepository
	SuppressionSvc *service.SuppressionService
	ComposerSvc    *service.ComposerService
	Engine         *service.SequenceEngine
	Scorer         *service.Scorer
	Archive        *storage.MessageArchive
	Sender         *RecordingSender

	HTTPClient *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and an
// in-process server wired to real services.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	archive, err := storage.NewMessageArchive(ctx, storage.ArchiveConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-messages",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create message archive: %v", err)
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	template := &domain.SequenceTemplate{
		Name: "e2e-outreach",
		Steps: []domain.Step{
			{OffsetDays: 0, Intent: "introduce the product"},
			{OffsetDays: 3, Intent: "follow up with a case study"},
		},
	}

	contactRepo := repository.NewContactRepository(pool)
	stateRepo := repository.NewSequenceStateRepository(pool)
	historyRepo := repository.NewStepHistoryRepository(pool)
	suppressionRepo := repository.NewSuppressionRepository(pool)
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	chunkRepo := repository.NewKnowledgeChunkRepository(pool)
	embeddingJobRepo := repository.NewEmbeddingJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	suppressionSvc := service.NewSuppressionService(suppressionRepo, txRunner)
	retrievalSvc := service.NewRetrievalService(nil, chunkRepo)
	composerSvc := service.NewComposerService(&StubGenerator{}, retrievalSvc, service.ComposerConfig{})
	engine := service.NewSequenceEngine(stateRepo, historyRepo, txRunner, template, service.DefaultRetryPolicy())
	enrollmentSvc := service.NewEnrollmentService(contactRepo, stateRepo, suppressionRepo, template)
	scorer := service.NewScorer()
	statusSvc := service.NewStatusService(contactRepo, stateRepo, historyRepo, scorer)
	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, embeddingJobRepo)

	router := server.NewRouter(server.RouterConfig{
		APIKey:             testAPIKey,
		EnrollmentHandler:  handlers.NewEnrollmentHandler(enrollmentSvc),
		ContactHandler:     handlers.NewContactHandler(statusSvc, engine),
		SuppressionHandler: handlers.NewSuppressionHandler(suppressionSvc),
		KnowledgeHandler:   handlers.NewKnowledgeHandler(knowledgeSvc),
	})
	srv := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:              t,
		Ctx:            ctx,
		PostgresC:      pgC,
		RustFSC:        s3C,
		Pool:           pool,
		Server:         srv,
		Template:       template,
		ContactRepo:    contactRepo,
		StateRepo:      stateRepo,
		HistoryRepo:    historyRepo,
		SuppressionSvc: suppressionSvc,
		ComposerSvc:    composerSvc,
		Engine:         engine,
		Scorer:         scorer,
		Archive:        archive,
		Sender:         NewRecordingSender(),
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
	}

	t.Cleanup(env.Cleanup)
	return env
}

// Cleanup releases all resources.
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Reset truncates all tables and clears recorded sends so subtests start
// from a clean slate without restarting containers.
func (e *E2ETestEnv) Reset() {
	if err := testutil.TruncateAll(e.Ctx, e.Pool); err != nil {
		e.T.Fatalf("failed to truncate tables: %v", err)
	}
	e.Sender.Reset()
}

// RunTick runs one scheduler pass with the clock fixed at the given time.
func (e *E2ETestEnv) RunTick(at time.Time, dailyCap jobs.DailyCap, cfg jobs.SchedulerConfig) {
	scheduler := jobs.NewScheduler(
		e.StateRepo,
		e.ContactRepo,
		e.SuppressionSvc,
		e.SuppressionSvc,
		e.ComposerSvc,
		e.Engine,
		e.Scorer,
		e.Sender,
		e.Archive,
		schedule.AlwaysOpen{},
		dailyCap,
		fixedClock{at},
		cfg,
	)
	if err := scheduler.ProcessJobs(e.Ctx); err != nil {
		e.T.Fatalf("scheduler tick failed: %v", err)
	}
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

// StubGenerator produces a deterministic message so composition succeeds
// without a real generation backend.
type StubGenerator struct{}

func (g *StubGenerator) GenerateMessage(ctx context.Context, prompt string) (*service.GeneratedMessage, error) {
	return &service.GeneratedMessage{
		Subject: "Quick question",
		Body:    "Hi, wanted to reach out about how we could help your team.",
	}, nil
}

// RecordingSender captures sent messages and returns a configurable
// outcome per recipient, defaulting to a successful send.
type RecordingSender struct {
	mu       sync.Mutex
	sent     []transport.Message
	outcomes map[string]domain.DeliveryOutcome
}

func NewRecordingSender() *RecordingSender {
	return &RecordingSender{outcomes: make(map[string]domain.DeliveryOutcome)}
}

func (s *RecordingSender) Send(ctx context.Context, msg transport.Message) domain.DeliveryOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if outcome, ok := s.outcomes[msg.To]; ok {
		return outcome
	}
	return domain.DeliveryOutcome{Status: domain.OutcomeSent, Detail: "accepted"}
}

// SetOutcome makes every send to the given address return the outcome.
func (s *RecordingSender) SetOutcome(email string, outcome domain.DeliveryOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[email] = outcome
}

// Sent returns a copy of all captured messages.
func (s *RecordingSender) Sent() []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Message, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.outcomes = make(map[string]domain.DeliveryOutcome)
}

// APIResponse represents a standard API response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs an authenticated GET request.
func (e *E2ETestEnv) Get(path string) (int, *APIResponse) {
	return e.doRequest("GET", path, nil)
}

// Post performs an authenticated POST request.
func (e *E2ETestEnv) Post(path string, body interface{}) (int, *APIResponse) {
	return e.doRequest("POST", path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (int, *APIResponse) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.Server.URL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response body: %v", err)
	}

	var apiResp APIResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &apiResp); err != nil {
			e.T.Fatalf("failed to parse response %q: %v", raw, err)
		}
	}
	return resp.StatusCode, &apiResp
}

// EnrollOne enrolls one qualified contact and returns its contact id.
func (e *E2ETestEnv) EnrollOne(email, name, role string) string {
	status, resp := e.Post("/enroll", map[string]interface{}{
		"contacts": []map[string]interface{}{
			{
				"email": email,
				"name":  name,
				"role":  role,
				"attributes": map[string]string{
					"industry": "logistics",
					"website":  "https://example.com",
				},
			},
		},
	})
	if status != http.StatusOK {
		e.T.Fatalf("enroll returned %d: %s", status, resp.Error)
	}

	var result struct {
		Enrolled int `json:"enrolled"`
		Results  []struct {
			ContactID string `json:"contact_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		e.T.Fatalf("failed to parse enroll response: %v", err)
	}
	if result.Enrolled != 1 {
		e.T.Fatalf("expected 1 enrolled, got %d (%+v)", result.Enrolled, result.Results)
	}
	return result.Results[0].ContactID
}

// ContactStatus fetches the progression snapshot for an id or email.
func (e *E2ETestEnv) ContactStatus(idOrEmail string) map[string]interface{} {
	status, resp := e.Get("/contacts/" + idOrEmail)
	if status != http.StatusOK {
		e.T.Fatalf("status lookup returned %d: %s", status, resp.Error)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		e.T.Fatalf("failed to parse status response: %v", err)
	}
	return data
}

func jsonString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func jsonInt(m map[string]interface{}, key string) int {
	v, _ := m[key].(float64)
	return int(v)
}
