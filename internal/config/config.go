// Package config loads the ledger command configuration from LEDGER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// SourceHistory selects the catalog compiled into the binary. Any other
// source value is a directory of migration documents.
const SourceHistory = "history"

var (
	ErrUnknownDriver = errors.New("unknown driver")
	ErrMissingDSN    = errors.New("data source name is required")
)

type Config struct {
	Driver          string        `env:"LEDGER_DRIVER"             envDefault:"sqlite"`
	DSN             string        `env:"LEDGER_DSN"`
	Database        string        `env:"LEDGER_DATABASE"`
	Table           string        `env:"LEDGER_TABLE"`
	Source          string        `env:"LEDGER_SOURCE"             envDefault:"history"`
	LockTimeout     time.Duration `env:"LEDGER_LOCK_TIMEOUT"       envDefault:"1m"`
	LockLease       time.Duration `env:"LEDGER_LOCK_LEASE"         envDefault:"1h"`
	LogLevel        string        `env:"LEDGER_LOG_LEVEL"          envDefault:"info"`
	AllowOutOfOrder bool          `env:"LEDGER_ALLOW_OUT_OF_ORDER"`
	OTelEndpoint    string        `env:"LEDGER_OTEL_ENDPOINT"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the driver settings. It runs after command line flags
// have been applied.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverSQLite:
		if c.DSN == "" {
			return fmt.Errorf("%w for driver %s", ErrMissingDSN, c.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}

	if c.LockTimeout < 0 {
		return fmt.Errorf("lock timeout must not be negative: %s", c.LockTimeout)
	}
	if c.LockLease < 0 {
		return fmt.Errorf("lock lease must not be negative: %s", c.LockLease)
	}
	return nil
}
