package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`

	// Handshake tokens are HS256 with JWTSecret, or EdDSA when
	// JWTPublicKey (base64 Ed25519) is set.
	JWTSecret    string `env:"JWT_SECRET"`
	JWTPublicKey string `env:"JWT_PUBLIC_KEY"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	TrustProxy     bool     `env:"TRUST_PROXY" envDefault:"false"`

	HistorySize     int `env:"HISTORY_SIZE" envDefault:"50"`
	RoomHistorySize int `env:"ROOM_HISTORY_SIZE" envDefault:"6"`

	// Rate limiting
	MessageRateLimit   int           `env:"MESSAGE_RATE_LIMIT" envDefault:"10"`
	MessageRateWindow  time.Duration `env:"MESSAGE_RATE_WINDOW" envDefault:"60s"`
	EventRate          float64       `env:"EVENT_RATE" envDefault:"20"`
	EventBurst         int           `env:"EVENT_BURST" envDefault:"40"`
	RateLimitWhitelist []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool          `env:"AUTO_BLOCK_ENABLED" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.HistorySize < 0 || c.RoomHistorySize < 0 {
		errs = append(errs, errors.New("HISTORY_SIZE and ROOM_HISTORY_SIZE must not be negative"))
	}
	if c.MessageRateLimit <= 0 || c.MessageRateWindow <= 0 {
		errs = append(errs, errors.New("MESSAGE_RATE_LIMIT and MESSAGE_RATE_WINDOW must be positive"))
	}
	if c.EventRate <= 0 || c.EventBurst <= 0 {
		errs = append(errs, errors.New("EVENT_RATE and EVENT_BURST must be positive"))
	}

	if c.Env == "production" {
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if c.JWTSecret == "" && c.JWTPublicKey == "" {
			errs = append(errs, errors.New("JWT_SECRET or JWT_PUBLIC_KEY is required in production"))
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
