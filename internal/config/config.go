// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds all runtime settings. Every field has a local-development
// default so the service starts with an empty environment.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Store string `env:"STORE" envDefault:"postgres"`

	Database   Database `envPrefix:"DB_"`
	SQLitePath string   `env:"SQLITE_PATH" envDefault:"eventreg.db"`

	// RedisURL enables the availability cache and idempotency keys when set.
	RedisURL         string        `env:"REDIS_URL"`
	AvailabilityTTL  time.Duration `env:"AVAILABILITY_TTL" envDefault:"5s"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyLease time.Duration `env:"IDEMPOTENCY_LEASE" envDefault:"30s"`

	// PubNub publishing is enabled when both keys are set.
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubUserID       string `env:"PUBNUB_USER_ID" envDefault:"event-reg-engine"`
	NotifyQueueSize    int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	PaymentDueAfter     time.Duration `env:"PAYMENT_DUE_AFTER" envDefault:"168h"`
	CompensationTimeout time.Duration `env:"COMPENSATION_TIMEOUT" envDefault:"5s"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileGrace      time.Duration `env:"RECONCILE_GRACE" envDefault:"10m"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"eventbooking"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"20"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("can't load .env", "error", err)
	}
	return Parse()
}

// Parse parses the process environment into a Config and validates it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, c.Store)
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.ReconcileGrace <= 0 || c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL and RECONCILE_GRACE must be positive")
	}
	return nil
}

// PubNubEnabled reports whether notifications should be published to PubNub.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}
