// Package config provides configuration types, defaults, and persistence for
// flowstate.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration options for a flowstate store.
type Config struct {
	// BaseDir is the directory holding the store file, lock file, backups
	// and change log. Default: ./.flowstate
	BaseDir string `mapstructure:"base_dir"`

	// BackupRetention is the number of timestamped backups kept before the
	// store file is overwritten. Zero disables backups.
	BackupRetention int `mapstructure:"backup_retention"`

	// LockTimeout bounds inter-process lock acquisition. On expiry the
	// operation fails with a busy error instead of waiting forever.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// CacheEnabled toggles the snapshot cache in front of the entity maps.
	CacheEnabled bool `mapstructure:"cache_enabled"`

	// WatchEnabled starts a file watcher that reloads the registry when
	// another process rewrites the store file.
	WatchEnabled bool `mapstructure:"watch_enabled"`

	Changelog ChangelogConfig `mapstructure:"changelog"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// ChangelogConfig controls the append-only mutation log.
type ChangelogConfig struct {
	// Enabled turns the JSONL file sink on.
	Enabled bool `mapstructure:"enabled"`

	// SQLiteEnabled additionally mirrors changes into changelog.db for
	// ad hoc querying.
	SQLiteEnabled bool `mapstructure:"sqlite_enabled"`
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// When false, a no-op tracer is used.
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the export backend.
	// Options: "none", "file", "stdout", "otlp"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the OTLP collector endpoint for the "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls the fraction of traces to sample.
	// 1.0 = all traces, 0.1 = 10% of traces.
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name"`
}

// LogConfig controls the structured debug log.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Level   string `mapstructure:"level"` // debug, info, warn, error
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		BaseDir:         ".flowstate",
		BackupRetention: 3,
		LockTimeout:     5 * time.Second,
		CacheEnabled:    true,
		WatchEnabled:    false,
		Changelog: ChangelogConfig{
			Enabled:       true,
			SQLiteEnabled: false,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "flowstate",
		},
		Log: LogConfig{
			Enabled: false,
			Path:    "flowstate.log",
			Level:   "info",
		},
	}
}

// Validate rejects configurations the store cannot run with.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	if c.BackupRetention < 0 {
		return fmt.Errorf("backup_retention must be >= 0, got %d", c.BackupRetention)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive, got %s", c.LockTimeout)
	}
	switch c.Tracing.Exporter {
	case "", "none", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}
