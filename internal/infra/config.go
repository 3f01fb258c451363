package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const insecureJWTSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"trafficwise"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"trafficwise"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"trafficwise"`

	// Pool sizing. Submissions hold a connection only for the short persist
	// transaction, never while the processing backend runs.
	PGMaxConns        int32         `env:"PG_MAX_CONNS" envDefault:"20"`
	PGMinConns        int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	PGMaxConnLifetime time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`
	PGAppName         string        `env:"PG_APPLICATION_NAME" envDefault:"trafficwise"`

	// Redis. Empty disables it; guards and the denylist fall back to process memory.
	RedisURL string `env:"REDIS_URL"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"trafficwise"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Server
	APIPort        int   `env:"API_PORT" envDefault:"3100"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"524288000"`

	// Processing backend
	ProcessingURL       string        `env:"PROCESSING_URL" envDefault:"http://localhost:5000"`
	ProcessingTimeout   time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"5m"`
	BreakerFailures     int           `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"30s"`

	// Submission guards
	SubmitRateLimit  int           `env:"SUBMIT_RATE_LIMIT" envDefault:"10"`
	SubmitRateWindow time.Duration `env:"SUBMIT_RATE_WINDOW" envDefault:"1h"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Out-of-band admin provisioning
	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`

	// Kafka
	KafkaBrokers     string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string        `env:"KAFKA_TOPIC_PREFIX" envDefault:"trafficwise"`
	OutboxInterval   time.Duration `env:"OUTBOX_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize  int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return fmt.Errorf("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive")
	}
	if c.PGMaxConns < 1 || c.PGMinConns < 0 || c.PGMinConns > c.PGMaxConns {
		return fmt.Errorf("PG_MIN_CONNS (%d) and PG_MAX_CONNS (%d) must satisfy 0 <= min <= max, max >= 1", c.PGMinConns, c.PGMaxConns)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
