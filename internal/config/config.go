package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	RedisURL string `envconfig:"REDIS_URL"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// SES transport. Unset credentials fall back to the default AWS
	// credential chain; an unset region disables the transport entirely.
	SESRegion    string `envconfig:"SES_REGION"`
	SESAccessKey string `envconfig:"SES_ACCESS_KEY_ID"`
	SESSecretKey string `envconfig:"SES_SECRET_ACCESS_KEY"`
	FromAddress  string `envconfig:"FROM_ADDRESS"`
	FromName     string `envconfig:"FROM_NAME" default:"Cadence Outreach"`

	// S3 archive for rendered messages
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"cadence-messages"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	APIKey string `envconfig:"API_KEY"`

	TemplatePath string `envconfig:"TEMPLATE_PATH" default:"sequence.yaml"`

	// Scheduler
	TickInterval   time.Duration `envconfig:"TICK_INTERVAL" default:"1m"`
	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"4"`
	DailySendCap   int           `envconfig:"DAILY_SEND_CAP" default:"200"`

	// Send window, hours in the window timezone. End is exclusive.
	WindowStartHour int    `envconfig:"WINDOW_START_HOUR" default:"9"`
	WindowEndHour   int    `envconfig:"WINDOW_END_HOUR" default:"17"`
	WindowTimezone  string `envconfig:"WINDOW_TIMEZONE" default:"UTC"`
	SendOnWeekends  bool   `envconfig:"SEND_ON_WEEKENDS" default:"false"`
	// Holidays is a comma-separated list of YYYY-MM-DD dates.
	Holidays string `envconfig:"HOLIDAYS"`

	// Qualification
	MinScore                 int  `envconfig:"MIN_SCORE" default:"40"`
	DisqualifyBelowThreshold bool `envconfig:"DISQUALIFY_BELOW_THRESHOLD" default:"false"`
	RescoreMidSequence       bool `envconfig:"RESCORE_MID_SEQUENCE" default:"false"`
	RescoreAutoSuppress      bool `envconfig:"RESCORE_AUTO_SUPPRESS" default:"false"`

	// Retry policy for transient failures
	MaxStepAttempts int           `envconfig:"MAX_STEP_ATTEMPTS" default:"3"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" default:"4h"`

	// Composition
	RetrievalK      int `envconfig:"RETRIEVAL_K" default:"4"`
	MaxContextChars int `envconfig:"MAX_CONTEXT_CHARS" default:"6000"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CADENCE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.WindowStartHour < 0 || cfg.WindowEndHour > 24 || cfg.WindowStartHour >= cfg.WindowEndHour {
		return nil, fmt.Errorf("invalid send window: start=%d end=%d", cfg.WindowStartHour, cfg.WindowEndHour)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSES() bool {
	return c.SESRegion != "" && c.FromAddress != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// HolidayDates parses the HOLIDAYS list into dates. Malformed entries are
// rejected rather than skipped so a typo cannot silently enable sends.
func (c *Config) HolidayDates() ([]time.Time, error) {
	if c.Holidays == "" {
		return nil, nil
	}

	var out []time.Time
	for _, raw := range strings.Split(c.Holidays, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}
