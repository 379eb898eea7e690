package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultYAML mirrors Defaults(); kept as an explicit document so the
// generated file carries comments.
type yamlConfig struct {
	BaseDir         string `yaml:"base_dir"`
	BackupRetention int    `yaml:"backup_retention"`
	LockTimeout     string `yaml:"lock_timeout"`
	CacheEnabled    bool   `yaml:"cache_enabled"`
	WatchEnabled    bool   `yaml:"watch_enabled"`
	Changelog       struct {
		Enabled       bool `yaml:"enabled"`
		SQLiteEnabled bool `yaml:"sqlite_enabled"`
	} `yaml:"changelog"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		Exporter    string  `yaml:"exporter"`
		SampleRate  float64 `yaml:"sample_rate"`
		ServiceName string  `yaml:"service_name"`
	} `yaml:"tracing"`
	Log struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
		Level   string `yaml:"level"`
	} `yaml:"log"`
}

// WriteDefaultConfig writes a starter config file with defaults to the given
// path, creating parent directories as needed. Used on first run when no
// config file exists anywhere in the lookup chain.
func WriteDefaultConfig(path string) error {
	defaults := Defaults()

	var doc yamlConfig
	doc.BaseDir = defaults.BaseDir
	doc.BackupRetention = defaults.BackupRetention
	doc.LockTimeout = defaults.LockTimeout.String()
	doc.CacheEnabled = defaults.CacheEnabled
	doc.WatchEnabled = defaults.WatchEnabled
	doc.Changelog.Enabled = defaults.Changelog.Enabled
	doc.Changelog.SQLiteEnabled = defaults.Changelog.SQLiteEnabled
	doc.Tracing.Enabled = defaults.Tracing.Enabled
	doc.Tracing.Exporter = defaults.Tracing.Exporter
	doc.Tracing.SampleRate = defaults.Tracing.SampleRate
	doc.Tracing.ServiceName = defaults.Tracing.ServiceName
	doc.Log.Enabled = defaults.Log.Enabled
	doc.Log.Path = defaults.Log.Path
	doc.Log.Level = defaults.Log.Level

	var buf bytes.Buffer
	buf.WriteString("# flowstate configuration\n")
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil { //nolint:gosec // G306: config file is not sensitive
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
