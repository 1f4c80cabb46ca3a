// Package config loads and validates cohortd configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	// DataDir is scanned (and watched) for invoice CSV files.
	DataDir string `yaml:"data_dir"`
	// ReportDir receives the rendered artifacts.
	ReportDir string `yaml:"report_dir"`
	// DBPath locates the SQLite database file.
	DBPath string `yaml:"db_path"`
	// CacheDir locates the analysis cache. Empty disables caching.
	CacheDir string `yaml:"cache_dir"`

	Listen string `yaml:"listen"`
	// APIToken enables bearer auth on mutating routes when set.
	APIToken string `yaml:"api_token"`

	LogLevel string `yaml:"log_level"`

	CSV     CSVConfig     `yaml:"csv"`
	Limits  LimitsConfig  `yaml:"limits"`
	Refresh RefreshConfig `yaml:"refresh"`
}

// CSVConfig controls invoice CSV parsing.
type CSVConfig struct {
	Latin1      bool     `yaml:"latin1"`
	DateLayouts []string `yaml:"date_layouts"`
}

// LimitsConfig controls the API rate limiter.
type LimitsConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// RefreshConfig controls the refresh pipeline.
type RefreshConfig struct {
	// MinInterval caps how often data-dir events may trigger a refresh.
	MinInterval time.Duration `yaml:"min_interval"`
	// SnapshotsKept bounds the analyses table.
	SnapshotsKept int `yaml:"snapshots_kept"`
	// CacheTTL bounds how long cached analyses are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the baseline configuration before file and env layers.
func Default() Config {
	return Config{
		DataDir:   "data",
		ReportDir: "reports",
		DBPath:    "cohortd.db",
		CacheDir:  "",
		Listen:    ":8080",
		LogLevel:  "info",
		Limits: LimitsConfig{
			RequestsPerMinute: 120,
		},
		Refresh: RefreshConfig{
			MinInterval:   30 * time.Second,
			SnapshotsKept: 10,
			CacheTTL:      24 * time.Hour,
		},
	}
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if cfg.ReportDir == "" {
		return fmt.Errorf("config: report_dir must not be empty")
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if cfg.Listen == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	if cfg.Limits.RequestsPerMinute < 0 {
		return fmt.Errorf("config: requests_per_minute must not be negative")
	}
	if cfg.Refresh.MinInterval < 0 {
		return fmt.Errorf("config: refresh min_interval must not be negative")
	}
	if cfg.Refresh.SnapshotsKept < 1 {
		return fmt.Errorf("config: snapshots_kept must be at least 1")
	}
	return nil
}
