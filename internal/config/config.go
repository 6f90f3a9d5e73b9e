// Package config loads graft's layered configuration.
//
// Precedence (highest to lowest): explicitly set flags, GRAFT_ environment
// variables, the graft.yaml file, built-in defaults.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/roach88/graft/internal/merge"
	"github.com/roach88/graft/internal/remap"
)

// Defaults.
const (
	DefaultDatabase    = "graft.db"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultMaxPasses   = 0 // one pass per upstream-added node
	DefaultParallelism = 4
	DefaultIdentity    = "v7"
)

// Config holds all graft configuration.
type Config struct {
	Database string         `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Sync     SyncConfig     `koanf:"sync"`
	Identity IdentityConfig `koanf:"identity"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SyncConfig holds sync session defaults.
type SyncConfig struct {
	Policy      string `koanf:"policy"`
	MaxPasses   int    `koanf:"max_passes"`
	PruneStale  bool   `koanf:"prune_stale"`
	Parallelism int    `koanf:"parallelism"`
}

// IdentityConfig selects the UUID version for fresh identities.
type IdentityConfig struct {
	Version string `koanf:"version"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Database, validation.Required),
	); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	return nil
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Format, validation.Required, validation.In("text", "json")),
	)
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	policies := make([]any, 0, len(merge.Policies()))
	for _, p := range merge.Policies() {
		policies = append(policies, string(p))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Policy, validation.Required, validation.In(policies...)),
		validation.Field(&c.MaxPasses, validation.Min(0)),
		validation.Field(&c.Parallelism, validation.Required, validation.Min(1), validation.Max(256)),
	)
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Version, validation.Required, validation.In("v7", "v4")),
	)
}

// Policy returns the configured default merge policy.
func (c *Config) Policy() merge.Policy {
	return merge.Policy(c.Sync.Policy)
}

// Generator returns the identity generator for the configured UUID version.
func (c *Config) Generator() (remap.Generator, error) {
	return remap.NewGenerator(c.Identity.Version)
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
