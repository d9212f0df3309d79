package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadencehq/cadence/internal/api/handlers"
	"github.com/cadencehq/cadence/internal/config"
	"github.com/cadencehq/cadence/internal/domain"
	"github.com/cadencehq/cadence/internal/jobs"
	"github.com/cadencehq/cadence/internal/openai"
	"github.com/cadencehq/cadence/internal/repository"
	"github.com/cadencehq/cadence/internal/schedule"
	"github.com/cadencehq/cadence/internal/sendcap"
	"github.com/cadencehq/cadence/internal/server"
	"github.com/cadencehq/cadence/internal/service"
	"github.com/cadencehq/cadence/internal/storage"
	"github.com/cadencehq/cadence/internal/telemetry"
	"github.com/cadencehq/cadence/internal/transport"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and scheduler",
		Long:  "Start the cadence API server and the sequence scheduler on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-scheduler", false, "Serve the API without running the send scheduler")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	template, err := domain.LoadTemplateFile(cfg.TemplatePath)
	if err != nil {
		return fmt.Errorf("failed to load sequence template: %w", err)
	}
	log.Printf("loaded sequence '%s' (%d steps)", template.Name, len(template.Steps))

	holidays, err := cfg.HolidayDates()
	if err != nil {
		return fmt.Errorf("failed to parse holidays: %w", err)
	}
	window, err := schedule.NewWindow(cfg.WindowStartHour, cfg.WindowEndHour, cfg.WindowTimezone, cfg.SendOnWeekends, holidays)
	if err != nil {
		return fmt.Errorf("failed to build send window: %w", err)
	}

	contactRepo := repository.NewContactRepository(pool)
	stateRepo := repository.NewSequenceStateRepository(pool)
	historyRepo := repository.NewStepHistoryRepository(pool)
	suppressionRepo := repository.NewSuppressionRepository(pool)
	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	chunkRepo := repository.NewKnowledgeChunkRepository(pool)
	embeddingJobRepo := repository.NewEmbeddingJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	dailyCap, err := buildDailyCap(ctx, cfg, historyRepo)
	if err != nil {
		return err
	}

	var sender jobs.Sender
	if cfg.HasSES() {
		sesTransport, err := transport.NewSESTransport(ctx, transport.SESConfig{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKey,
			SecretAccessKey: cfg.SESSecretKey,
			FromAddress:     cfg.FromAddress,
			FromName:        cfg.FromName,
		})
		if err != nil {
			return fmt.Errorf("failed to create SES transport: %w", err)
		}
		sender = sesTransport
		log.Printf("SES transport ready (from: %s)", cfg.FromAddress)
	} else {
		sender = &transport.LogTransport{}
		log.Println("SES not configured, using dry-run log transport")
	}

	var archiver jobs.Archiver = storage.NoopArchive{}
	if cfg.HasS3() {
		archive, err := storage.NewMessageArchive(ctx, storage.ArchiveConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create message archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure archive bucket: %w", err)
		}
		log.Printf("archive bucket '%s' ready", cfg.S3Bucket)
		archiver = archive
	}

	var generator service.Generator = &unconfiguredGenerator{}
	var embeddingClient service.EmbeddingClient
	var embeddingWorker *jobs.Worker
	if cfg.HasOpenAI() {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		generator = client
		embeddingClient = client

		embeddingSvc := service.NewEmbeddingService(client, knowledgeRepo, chunkRepo)
		embeddingProcessor := jobs.NewEmbeddingWorker(embeddingJobRepo, embeddingSvc)
		embeddingWorker = jobs.NewWorker("embeddings", embeddingProcessor, 10*time.Second)
		go embeddingWorker.Start(ctx)
		log.Println("embedding worker started")
	} else {
		log.Println("OpenAI not configured, composition and retrieval disabled")
	}

	retrievalSvc := service.NewRetrievalService(embeddingClient, chunkRepo)
	composerSvc := service.NewComposerService(generator, retrievalSvc, service.ComposerConfig{
		RetrievalK:      cfg.RetrievalK,
		MaxContextChars: cfg.MaxContextChars,
	})

	engine := service.NewSequenceEngine(stateRepo, historyRepo, txRunner, template, service.RetryPolicy{
		MaxStepAttempts: cfg.MaxStepAttempts,
		Backoff:         cfg.RetryBackoff,
	})
	enrollmentSvc := service.NewEnrollmentService(contactRepo, stateRepo, suppressionRepo, template)
	suppressionSvc := service.NewSuppressionService(suppressionRepo, txRunner)
	scorer := service.NewScorer()
	statusSvc := service.NewStatusService(contactRepo, stateRepo, historyRepo, scorer)
	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, embeddingJobRepo)

	var schedulerWorker *jobs.Worker
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	if !noScheduler {
		schedulerCfg := jobs.DefaultSchedulerConfig()
		schedulerCfg.Workers = cfg.WorkerPoolSize
		schedulerCfg.MinScore = cfg.MinScore
		schedulerCfg.DisqualifyBelowThreshold = cfg.DisqualifyBelowThreshold
		schedulerCfg.RescoreMidSequence = cfg.RescoreMidSequence
		schedulerCfg.RescoreAutoSuppress = cfg.RescoreAutoSuppress

		scheduler := jobs.NewScheduler(
			stateRepo,
			contactRepo,
			suppressionSvc,
			suppressionSvc,
			composerSvc,
			engine,
			scorer,
			sender,
			archiver,
			window,
			dailyCap,
			service.RealClock{},
			schedulerCfg,
		)
		schedulerWorker = jobs.NewWorker("scheduler", scheduler, cfg.TickInterval)
		go schedulerWorker.Start(ctx)
		log.Printf("scheduler started (tick: %s, window: %02d:00-%02d:00 %s)",
			cfg.TickInterval, cfg.WindowStartHour, cfg.WindowEndHour, cfg.WindowTimezone)
	}

	routerCfg := server.RouterConfig{
		APIKey:             cfg.APIKey,
		EnrollmentHandler:  handlers.NewEnrollmentHandler(enrollmentSvc),
		ContactHandler:     handlers.NewContactHandler(statusSvc, engine),
		SuppressionHandler: handlers.NewSuppressionHandler(suppressionSvc),
		KnowledgeHandler:   handlers.NewKnowledgeHandler(knowledgeSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if schedulerWorker != nil {
		schedulerWorker.Stop()
	}
	if embeddingWorker != nil {
		embeddingWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildDailyCap picks the cap backend. Redis when configured so the limit
// holds across instances, otherwise an in-process counter seeded from
// today's history so a restart cannot reset the budget.
func buildDailyCap(ctx context.Context, cfg *config.Config, historyRepo *repository.StepHistoryRepository) (jobs.DailyCap, error) {
	if cfg.DailySendCap <= 0 {
		log.Println("daily send cap disabled")
		return sendcap.Unlimited{}, nil
	}

	if cfg.HasRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		log.Printf("daily send cap: %d (redis)", cfg.DailySendCap)
		return sendcap.NewRedisCap(client, cfg.DailySendCap), nil
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	sentToday, err := historyRepo.CountSentSince(ctx, midnight)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's sends: %w", err)
	}
	log.Printf("daily send cap: %d (local, %d already sent today)", cfg.DailySendCap, sentToday)
	return sendcap.NewLocalCap(cfg.DailySendCap, sentToday, time.Now), nil
}

// unconfiguredGenerator stands in when no generation backend is configured.
// Composition failures it causes are recorded as transient, so contacts
// retry once a key is provided instead of being lost.
type unconfiguredGenerator struct{}

func (g *unconfiguredGenerator) GenerateMessage(ctx context.Context, prompt string) (*service.GeneratedMessage, error) {
	return nil, fmt.Errorf("generation not configured: OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
