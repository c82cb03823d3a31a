package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/V4T54L/audit-ticketer/internal/pkg/logger"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string         `env:"LOG_LEVEL" envDefault:"info"`
	Log      LogConfig      `envPrefix:"LOG_"`
	Graph    GraphConfig    `envPrefix:"GRAPH_"`
	Jira     JiraConfig     `envPrefix:"JIRA_"`
	Oracle   OracleConfig   `envPrefix:"OPENAI_"`
	EventLog EventLogConfig `envPrefix:"EVENT_LOG_"`
	Schedule ScheduleConfig
	Dedup    DedupConfig   `envPrefix:"DEDUP_"`
	Journal  JournalConfig `envPrefix:"JOURNAL_"`
	Admin    AdminConfig   `envPrefix:"ADMIN_"`
}

// LogConfig adds an optional rotating log file next to stdout.
type LogConfig struct {
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100" validate:"min=1"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"7" validate:"min=0"`
}

// GraphConfig configures the identity-provider audit source.
type GraphConfig struct {
	TenantID     string        `env:"TENANT" validate:"required"`
	ClientID     string        `env:"CLIENT_ID" validate:"required"`
	ClientSecret string        `env:"CLIENT_SECRET" validate:"required"`
	AuthorityURL string        `env:"AUTHORITY_URL" envDefault:"https://login.microsoftonline.com" validate:"required,url"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://graph.microsoft.com/v1.0" validate:"required,url"`
	Category     string        `env:"CATEGORY" envDefault:"UserManagement" validate:"required"`
	Top          int           `env:"TOP" envDefault:"10" validate:"min=1"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type JiraConfig struct {
	URL        string        `env:"URL" validate:"required,url"`
	Email      string        `env:"EMAIL" validate:"required"`
	APIToken   string        `env:"API_TOKEN" validate:"required"`
	ProjectKey string        `env:"PROJECT_KEY" validate:"required"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type OracleConfig struct {
	APIKey  string        `env:"API_KEY" validate:"required"`
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.openai.com/v1" validate:"required,url"`
	Model   string        `env:"MODEL" envDefault:"gpt-4" validate:"required"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

type EventLogConfig struct {
	Path string `env:"PATH" envDefault:"logs/entra_user_logs.csv" validate:"required"`
}

// ScheduleConfig controls the daemon's two loops.
type ScheduleConfig struct {
	IngestInterval   time.Duration `env:"INGEST_INTERVAL" envDefault:"60s" validate:"min=1s"`
	DispatchInterval time.Duration `env:"DISPATCH_INTERVAL" envDefault:"10s" validate:"min=1s"`
	TicketDelay      time.Duration `env:"TICKET_DELAY" envDefault:"5s" validate:"min=0"`
	CommitMode       string        `env:"COMMIT_MODE" envDefault:"snapshot" validate:"oneof=snapshot per_row"`
}

// DedupConfig enables the natural-key index. Without a Redis URL the index is built in memory
// from the event log at startup.
type DedupConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"false"`
	RedisURL string        `env:"REDIS_URL" validate:"omitempty,url"`
	TTL      time.Duration `env:"TTL" envDefault:"168h" validate:"min=0"`
}

type JournalConfig struct {
	PostgresURL string `env:"POSTGRES_URL"`
}

type AdminConfig struct {
	ListenAddr      string        `env:"LISTEN_ADDR" envDefault:":9091" validate:"required"`
	APIKeys         []string      `env:"API_KEYS" envSeparator:","`
	APIKeyCacheTTL  time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`
	RedactionFields []string      `env:"REDACTION_FIELDS" envSeparator:"," envDefault:"password,secret,credential"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576" validate:"min=1"` // 1MB
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateIngest checks the settings needed by a one-shot ingestion run.
func (c *Config) ValidateIngest() error {
	return c.validate(&c.Log, &c.Graph, &c.EventLog, &c.Dedup)
}

// ValidateDaemon checks the settings needed by the full ticketing daemon.
func (c *Config) ValidateDaemon() error {
	return c.validate(&c.Log, &c.Graph, &c.Jira, &c.Oracle, &c.EventLog, &c.Schedule, &c.Dedup, &c.Admin)
}

// LoggerOptions returns the logger settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.LogLevel,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// CreateGuardEnabled reports whether ticket creation must be made idempotent per natural key.
func (c *Config) CreateGuardEnabled() bool {
	return c.Schedule.CommitMode == "per_row"
}

func (c *Config) validate(sections ...any) error {
	v := validator.New()
	if err := v.Var(c.LogLevel, "oneof=debug info warn error"); err != nil {
		return fmt.Errorf("invalid configuration: LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	for _, s := range sections {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}
