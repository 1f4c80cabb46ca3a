// cohortd is the long-running cohort analysis daemon. It ingests invoice
// CSVs from a data directory, keeps the analysis current as files change,
// and serves results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cohortlab/cohortd/internal/api"
	"github.com/cohortlab/cohortd/internal/cache"
	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/config"
	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/jobs"
	"github.com/cohortlab/cohortd/internal/log"
	"github.com/cohortlab/cohortd/internal/report"
	"github.com/cohortlab/cohortd/internal/store"
	"github.com/cohortlab/cohortd/internal/watch"
)

var (
	version   = "0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cohortd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "cohortd"})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("version", version).
		Str(log.FieldDataset, cfg.DataDir).
		Str(log.FieldReportDir, cfg.ReportDir).
		Msg("starting cohortd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder := config.NewHolder(cfg, loader, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer holder.Stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DBPath, store.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	var c *cache.Cache
	if cfg.CacheDir != "" {
		c, err = cache.Open(cfg.CacheDir, cfg.Refresh.CacheTTL)
		if err != nil {
			// The cache is an optimization; run without it.
			logger.Warn().Err(err).Str(log.FieldPath, cfg.CacheDir).Msg("cache disabled")
		} else {
			defer func() { _ = c.Close() }()
		}
	}

	runner := &jobs.Runner{
		Store:         st,
		Cache:         c,
		Reports:       &report.Writer{Dir: cfg.ReportDir},
		DataDir:       cfg.DataDir,
		CSVOpts:       invoice.ReaderOptions{Latin1: cfg.CSV.Latin1, DateLayouts: cfg.CSV.DateLayouts},
		SnapshotsKept: cfg.Refresh.SnapshotsKept,
	}

	// Serve the last persisted snapshot until the first refresh lands.
	if err := runner.Restore(ctx); err != nil && !errors.Is(err, store.ErrNoSnapshot) {
		logger.Warn().Err(err).Msg("snapshot restore failed")
	}

	// Initial refresh on startup. An empty data directory is expected on
	// first boot and not fatal.
	if _, err := runner.Refresh(ctx); err != nil && !errors.Is(err, cohort.ErrNoInvoices) {
		logger.Error().Err(err).Msg("initial refresh failed")
	}

	watcher := watch.New(cfg.DataDir, cfg.Refresh.MinInterval, func(ctx context.Context) {
		if _, err := runner.Refresh(ctx); err != nil && !errors.Is(err, jobs.ErrRefreshInProgress) {
			logger.Error().Err(err).Msg("refresh failed")
		}
	})
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start data watcher: %w", err)
	}

	srv := api.NewServer(holder, runner)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info().Msg("cohortd stopped")
	return nil
}
