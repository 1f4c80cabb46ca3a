package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortlab/cohortd/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, config.Validate(config.Default()))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cohortd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/invoices
listen: ":9090"
csv:
  latin1: true
refresh:
  min_interval: 1m
`), 0o644))

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/invoices", cfg.DataDir)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.True(t, cfg.CSV.Latin1)
	assert.Equal(t, time.Minute, cfg.Refresh.MinInterval)
	// Untouched fields keep their defaults.
	assert.Equal(t, "reports", cfg.ReportDir)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cohortd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: true\n"), 0o644))

	_, err := config.NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.NewLoader("/nonexistent/cohortd.yaml").Load()
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cohortd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644))

	t.Setenv("COHORTD_LISTEN", ":7070")
	t.Setenv("COHORTD_CSV_LATIN1", "true")
	t.Setenv("COHORTD_RATE_LIMIT_RPM", "5")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.True(t, cfg.CSV.Latin1)
	assert.Equal(t, 5, cfg.Limits.RequestsPerMinute)
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("COHORTD_RATE_LIMIT_RPM", "many")
	_, err := config.NewLoader("").Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty data dir", func(c *config.Config) { c.DataDir = "" }},
		{"empty report dir", func(c *config.Config) { c.ReportDir = "" }},
		{"empty db path", func(c *config.Config) { c.DBPath = "" }},
		{"empty listen", func(c *config.Config) { c.Listen = "" }},
		{"negative rate limit", func(c *config.Config) { c.Limits.RequestsPerMinute = -1 }},
		{"zero snapshots kept", func(c *config.Config) { c.Refresh.SnapshotsKept = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.Error(t, config.Validate(cfg))
		})
	}
}
