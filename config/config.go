// Package config loads span-store configuration from the environment,
// the way OmniTrace's internal/config package does for its server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Backend names which store.Store implementation to use. This package
// only carries the value; it constructs no store itself.
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendRelational Backend = "relational"
)

// Config holds every knob the span store needs at startup.
type Config struct {
	Backend    Backend
	Memory     MemoryStoreConfig
	Relational RelationalConfig
}

// MemoryStoreConfig configures the in-memory store. It carries no
// fields today: spec.md's Non-goals explicitly exclude retention/TTL
// enforcement, so there is no limit for this store to enforce yet.
// The type exists as store/memory.New's construction surface so a
// future limit (e.g. max traces held) has somewhere to land without
// changing that function's signature again.
type MemoryStoreConfig struct{}

// RelationalConfig configures the sqlx/lib-pq backed store.
type RelationalConfig struct {
	DSN              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
}

// DefaultConfig returns the configuration used when no environment
// overrides are present: an in-memory store.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendMemory,
		Memory:  MemoryStoreConfig{},
		Relational: RelationalConfig{
			DSN:              "postgres://localhost:5432/tracestore?sslmode=disable",
			MaxOpenConns:     20,
			MaxIdleConns:     5,
			ConnMaxLifetime:  30 * time.Minute,
			StatementTimeout: 5 * time.Second,
		},
	}
}

// LoadFromEnv overlays environment variables onto DefaultConfig.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if backend := os.Getenv("TRACESTORE_BACKEND"); backend != "" {
		cfg.Backend = Backend(backend)
	}
	if dsn := os.Getenv("TRACESTORE_RELATIONAL_DSN"); dsn != "" {
		cfg.Relational.DSN = dsn
	}
	if n := os.Getenv("TRACESTORE_RELATIONAL_MAX_OPEN_CONNS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Relational.MaxOpenConns = v
		}
	}
	if n := os.Getenv("TRACESTORE_RELATIONAL_MAX_IDLE_CONNS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			cfg.Relational.MaxIdleConns = v
		}
	}
	if d := os.Getenv("TRACESTORE_RELATIONAL_CONN_MAX_LIFETIME"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.Relational.ConnMaxLifetime = v
		}
	}
	if d := os.Getenv("TRACESTORE_RELATIONAL_STATEMENT_TIMEOUT"); d != "" {
		if v, err := time.ParseDuration(d); err == nil {
			cfg.Relational.StatementTimeout = v
		}
	}

	return cfg
}
