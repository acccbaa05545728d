package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every key, e.g. AET_DATABASE_URL. The bare key is accepted
// as a fallback.
const EnvPrefix = "AET"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DBDriver         string `envconfig:"DB_DRIVER" default:"postgres"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"aet"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"aet_pass"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"aet"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	DatabaseSSLMode  string `envconfig:"DATABASE_SSLMODE" default:"disable"`
	AutoMigrate      bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	ServerAddr string `envconfig:"SERVER_ADDR" default:"0.0.0.0:8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"json"`

	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionCookieName   string        `envconfig:"SESSION_COOKIE_NAME" default:"aet_session"`
	SessionCookieSecure bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	BootstrapToken      string        `envconfig:"BOOTSTRAP_TOKEN"`
	HistorySigningKey   string        `envconfig:"HISTORY_SIGNING_KEY"`

	RedisURL string `envconfig:"REDIS_URL"`

	S3Bucket           string `envconfig:"S3_BUCKET"`
	S3Region           string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint         string `envconfig:"S3_ENDPOINT"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	UploadDir          string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	PublicBaseURL      string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	RenewalWindowDays    int           `envconfig:"RENEWAL_WINDOW_DAYS" default:"60"`
	ConflictBlockRule    string        `envconfig:"CONFLICT_BLOCK_RULE" default:"daysRemaining > renewalWindowDays"`
	NumberOptionalStates []string      `envconfig:"NUMBER_OPTIONAL_STATES"`
	ReconcileInterval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"15m"`
}

// Load reads configuration from the environment, after loading a .env file when one
// exists in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
			Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
			Path:     "/" + c.PostgresDB,
			RawQuery: "sslmode=" + url.QueryEscape(c.DatabaseSSLMode),
		}
		c.DatabaseURL = u.String()
	}
	if c.RenewalWindowDays < 0 {
		return fmt.Errorf("renewal window must not be negative")
	}
	if _, err := c.SigningKey(); err != nil {
		return err
	}
	states := make([]string, 0, len(c.NumberOptionalStates))
	for _, s := range c.NumberOptionalStates {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			states = append(states, s)
		}
	}
	c.NumberOptionalStates = states
	return nil
}

// SigningKey decodes the hex history signing key. An empty key disables signing.
func (c *Config) SigningKey() ([]byte, error) {
	if c.HistorySigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.HistorySigningKey)
	if err != nil {
		return nil, fmt.Errorf("history signing key must be hex: %w", err)
	}
	return key, nil
}
