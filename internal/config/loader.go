package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "COHORTD_"

// Loader layers configuration: defaults, then an optional YAML file, then
// COHORTD_* environment variables.
type Loader struct {
	path string
}

// NewLoader builds a loader for an optional config file path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load produces a validated configuration.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := mergeFile(&cfg, l.path); err != nil {
			return Config{}, err
		}
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// mergeEnv applies COHORTD_* overrides on top of the current values.
func mergeEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	setString("DATA_DIR", &cfg.DataDir)
	setString("REPORT_DIR", &cfg.ReportDir)
	setString("DB_PATH", &cfg.DBPath)
	setString("CACHE_DIR", &cfg.CacheDir)
	setString("LISTEN", &cfg.Listen)
	setString("API_TOKEN", &cfg.APIToken)
	setString("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := os.LookupEnv(envPrefix + "CSV_LATIN1"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sCSV_LATIN1: %w", envPrefix, err)
		}
		cfg.CSV.Latin1 = b
	}
	if v, ok := os.LookupEnv(envPrefix + "RATE_LIMIT_RPM"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sRATE_LIMIT_RPM: %w", envPrefix, err)
		}
		cfg.Limits.RequestsPerMinute = n
	}
	if v, ok := os.LookupEnv(envPrefix + "REFRESH_MIN_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sREFRESH_MIN_INTERVAL: %w", envPrefix, err)
		}
		cfg.Refresh.MinInterval = d
	}

	return nil
}
