// Package config loads identityd runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config contains all runtime configuration.
type Config struct {
	Addr       string
	Workers    int
	QueueDepth int
	MaxPayload uint64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RatePerSecond of 0 disables per-client rate limiting.
	RatePerSecond float64
	RateBurst     int

	// AdminAddr of "" disables the admin HTTP listener.
	AdminAddr string

	SeedFile string
	PGDSN    string

	LogLevel string
}

// Load reads Config from IDENTITY_* environment variables with defaults.
func Load() Config {
	return Config{
		Addr:       EnvString("IDENTITY_ADDR", "0.0.0.0:6708"),
		Workers:    EnvInt("IDENTITY_WORKERS", 4),
		QueueDepth: EnvInt("IDENTITY_QUEUE_DEPTH", 64),
		MaxPayload: EnvUint64("IDENTITY_MAX_PAYLOAD", 4096),

		ReadTimeout:  EnvDuration("IDENTITY_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: EnvDuration("IDENTITY_WRITE_TIMEOUT", 10*time.Second),

		RatePerSecond: EnvFloat("IDENTITY_RATE_PER_SECOND", 0),
		RateBurst:     EnvInt("IDENTITY_RATE_BURST", 10),

		AdminAddr: EnvOptional("IDENTITY_ADMIN_ADDR", "127.0.0.1:6709"),

		SeedFile: EnvString("IDENTITY_SEED_FILE", ""),
		PGDSN:    EnvString("IDENTITY_PG_DSN", ""),

		LogLevel: EnvString("IDENTITY_LOG_LEVEL", "info"),
	}
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxPayload == 0 {
		errs = append(errs, errors.New("max payload must be positive"))
	}
	if c.RatePerSecond > 0 && c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("rate burst must be at least 1 when rate limiting, got %d", c.RateBurst))
	}
	return errors.Join(errs...)
}
