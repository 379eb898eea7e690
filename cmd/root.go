package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/flowstate/internal/config"
	"github.com/zjrosen/flowstate/internal/log"
	"github.com/zjrosen/flowstate/internal/paths"
	"github.com/zjrosen/flowstate/internal/registry"
)

var (
	version   = "dev"
	cfgFile   string
	statePath string
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "flowstate",
	Short:   "Track flows, plans and tasks in a single durable JSON store",
	Long:    `flowstate keeps an agent's tracked work (flows, their plans, and each plan's tasks) in one atomically-written JSON file, safe to share between processes.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .flowstate/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&statePath, "path", "p", "",
		"state directory or store file (default: ./.flowstate)")

	_ = viper.BindPFlag("base_dir", rootCmd.PersistentFlags().Lookup("path"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("base_dir", defaults.BaseDir)
	viper.SetDefault("backup_retention", defaults.BackupRetention)
	viper.SetDefault("lock_timeout", defaults.LockTimeout)
	viper.SetDefault("cache_enabled", defaults.CacheEnabled)
	viper.SetDefault("watch_enabled", defaults.WatchEnabled)
	viper.SetDefault("changelog.enabled", defaults.Changelog.Enabled)
	viper.SetDefault("changelog.sqlite_enabled", defaults.Changelog.SQLiteEnabled)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	viper.SetDefault("log.enabled", defaults.Log.Enabled)
	viper.SetDefault("log.path", defaults.Log.Path)
	viper.SetDefault("log.level", defaults.Log.Level)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .flowstate/config.yaml (current directory)
		// 2. ~/.config/flowstate/config.yaml (user config)
		if _, err := os.Stat(".flowstate/config.yaml"); err == nil {
			viper.SetConfigFile(".flowstate/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "flowstate"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .flowstate/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".flowstate/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// openRegistry resolves the state directory, initializes logging, and opens
// the store. The returned closer flushes and releases everything.
func openRegistry() (*registry.Registry, func(), error) {
	cfg.BaseDir = paths.ResolveStateDir(cfg.BaseDir)

	logCleanup := func() {}
	if cfg.Log.Enabled {
		cleanup, err := log.Init(filepath.Join(cfg.BaseDir, cfg.Log.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("initializing log: %w", err)
		}
		logCleanup = cleanup
		switch cfg.Log.Level {
		case "debug":
			log.SetMinLevel(log.LevelDebug)
		case "warn":
			log.SetMinLevel(log.LevelWarn)
		case "error":
			log.SetMinLevel(log.LevelError)
		default:
			log.SetMinLevel(log.LevelInfo)
		}
	}

	reg, report, err := registry.Open(cfg)
	if err != nil {
		logCleanup()
		return nil, nil, err
	}
	if report.Corrupt != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", report.Corrupt)
	}
	if report.Migrated {
		fmt.Fprintln(os.Stderr, "store migrated to the current schema")
	}

	closer := func() {
		if err := reg.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
		logCleanup()
	}
	return reg, closer, nil
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
