// Package jobs orchestrates the refresh pipeline: ingest invoice CSVs,
// recompute the cohort analysis, and publish artifacts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cohortlab/cohortd/internal/cache"
	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/insights"
	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/log"
	"github.com/cohortlab/cohortd/internal/metrics"
	"github.com/cohortlab/cohortd/internal/report"
	"github.com/cohortlab/cohortd/internal/store"
)

// ErrRefreshInProgress is returned when a refresh is already running.
var ErrRefreshInProgress = errors.New("jobs: refresh already in progress")

// Status describes the outcome of the most recent refresh.
type Status struct {
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	DurationMS  int64     `json:"durationMs"`
	Files       int       `json:"files"`
	NewRows     int       `json:"newRows"`
	SkippedRows int       `json:"skippedRows"`
	TotalRows   int       `json:"totalRows"`
	Customers   int       `json:"customers"`
	Cohorts     int       `json:"cohorts"`
	Fingerprint string    `json:"fingerprint"`
	Cached      bool      `json:"cached"`
	Error       string    `json:"error,omitempty"`
}

// Runner executes refreshes one at a time and retains the latest results.
type Runner struct {
	Store   *store.Store
	Cache   *cache.Cache // optional
	Reports *report.Writer
	DataDir string
	CSVOpts invoice.ReaderOptions

	// SnapshotsKept bounds the analyses table after each refresh.
	SnapshotsKept int

	refreshing atomic.Bool

	mu           sync.RWMutex
	lastStatus   *Status
	lastAnalysis *cohort.Analysis
	lastInsights *insights.Report
}

// Refresh runs the full pipeline synchronously. Concurrent calls beyond the
// first return ErrRefreshInProgress.
func (r *Runner) Refresh(ctx context.Context) (*Status, error) {
	if !r.refreshing.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	return r.execute(ctx, uuid.NewString())
}

// Launch claims the refresh slot and runs the pipeline in the background.
// The returned job ID identifies the run in logs and in Last(). The claim
// happens before return, so two callers can never share one accepted job.
func (r *Runner) Launch(ctx context.Context) (string, error) {
	if !r.refreshing.CompareAndSwap(false, true) {
		return "", ErrRefreshInProgress
	}
	jobID := uuid.NewString()
	go func() {
		_, _ = r.execute(ctx, jobID)
	}()
	return jobID, nil
}

// execute owns the refresh slot; callers must have claimed it.
func (r *Runner) execute(ctx context.Context, jobID string) (*Status, error) {
	defer r.refreshing.Store(false)

	ctx = log.ContextWithJobID(ctx, jobID)
	logger := log.WithComponentFromContext(ctx, "jobs")

	status := &Status{JobID: jobID, StartedAt: time.Now().UTC()}
	err := r.run(ctx, status)
	status.FinishedAt = time.Now().UTC()
	status.DurationMS = status.FinishedAt.Sub(status.StartedAt).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		logger.Error().Err(err).Msg("refresh failed")
	} else {
		logger.Info().
			Int("files", status.Files).
			Int("new_rows", status.NewRows).
			Int(log.FieldCohorts, status.Cohorts).
			Bool("cached", status.Cached).
			Int64("duration_ms", status.DurationMS).
			Msg("refresh complete")
	}

	r.mu.Lock()
	r.lastStatus = status
	r.mu.Unlock()

	if err != nil {
		return status, err
	}
	return status, nil
}

func (r *Runner) run(ctx context.Context, status *Status) error {
	// 1. Ingest any CSV files present in the data directory.
	if err := r.ingest(ctx, status); err != nil {
		return err
	}

	// 2. Load the full invoice set from the store.
	invoices, err := r.Store.Invoices(ctx)
	if err != nil {
		metrics.IncRefreshFailure("load")
		return err
	}
	status.TotalRows = len(invoices)
	metrics.SetInvoicesStored(len(invoices))
	if len(invoices) == 0 {
		return cohort.ErrNoInvoices
	}

	fingerprint := cache.Fingerprint(invoices)
	status.Fingerprint = fingerprint

	// 3. Reuse a cached analysis when the dataset is unchanged.
	var analysis *cohort.Analysis
	if r.Cache != nil {
		if cached, err := r.Cache.Get(fingerprint); err == nil {
			analysis = cached
			status.Cached = true
			metrics.IncCacheEvent("hit")
			metrics.IncAnalysis("cached")
		} else if !errors.Is(err, cache.ErrMiss) {
			logger := log.WithComponentFromContext(ctx, "jobs")
			logger.Warn().Err(err).Msg("cache lookup failed")
		} else {
			metrics.IncCacheEvent("miss")
		}
	}

	if analysis == nil {
		started := time.Now()
		analysis, err = cohort.Analyze(invoices)
		if err != nil {
			metrics.IncRefreshFailure("analyze")
			metrics.IncAnalysis("failure")
			return err
		}
		metrics.ObserveAnalysisDuration(time.Since(started).Seconds())
		metrics.IncAnalysis("success")
	}
	metrics.SetCohorts(len(analysis.CohortSizes))
	status.Customers = analysis.Customers
	status.Cohorts = len(analysis.CohortSizes)

	insightReport := insights.Build(invoices, analysis)

	// 4. Publish: reports, snapshot, and cache entry are independent.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.Reports.WriteAll(gctx, analysis, insightReport); err != nil {
			metrics.IncRefreshFailure("report")
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := r.Store.SaveSnapshot(gctx, fingerprint, analysis); err != nil {
			metrics.IncRefreshFailure("snapshot")
			return err
		}
		if r.SnapshotsKept > 0 {
			if _, err := r.Store.PruneSnapshots(gctx, r.SnapshotsKept); err != nil {
				return err
			}
		}
		return nil
	})
	if r.Cache != nil && !status.Cached {
		g.Go(func() error {
			// A stale cache entry is harmless; log and continue.
			if err := r.Cache.Put(fingerprint, analysis); err != nil {
				logger := log.WithComponentFromContext(gctx, "jobs")
				logger.Warn().Err(err).Msg("cache store failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastAnalysis = analysis
	r.lastInsights = insightReport
	r.mu.Unlock()

	return nil
}

// ingest reads every *.csv under DataDir into the store.
func (r *Runner) ingest(ctx context.Context, status *Status) error {
	logger := log.WithComponentFromContext(ctx, "jobs")

	files, err := filepath.Glob(filepath.Join(r.DataDir, "*.csv"))
	if err != nil {
		metrics.IncRefreshFailure("scan")
		return fmt.Errorf("jobs: scan %s: %w", r.DataDir, err)
	}
	sort.Strings(files)
	status.Files = len(files)

	for _, path := range files {
		invoices, stats, err := invoice.ReadFile(path, r.CSVOpts)
		if err != nil {
			// One bad file must not block the rest of the dataset.
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("skipping unreadable csv")
			continue
		}

		inserted, err := r.Store.InsertInvoices(ctx, invoices)
		if err != nil {
			metrics.IncRefreshFailure("ingest")
			return err
		}

		status.NewRows += inserted
		status.SkippedRows += stats.SkippedRows + stats.NoCustomer
		metrics.AddRowsIngested(inserted)
		metrics.AddRowsSkipped("malformed", stats.SkippedRows)
		metrics.AddRowsSkipped("no_customer", stats.NoCustomer)

		logger.Debug().
			Str(log.FieldPath, path).
			Int(log.FieldRows, stats.Rows).
			Int("inserted", inserted).
			Msg("csv ingested")
	}

	return nil
}

// Running reports whether a refresh is currently executing.
func (r *Runner) Running() bool {
	return r.refreshing.Load()
}

// Last returns the most recent refresh status.
func (r *Runner) Last() (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastStatus == nil {
		return Status{}, false
	}
	return *r.lastStatus, true
}

// Analysis returns the most recent in-memory analysis.
func (r *Runner) Analysis() (*cohort.Analysis, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastAnalysis, r.lastAnalysis != nil
}

// Insights returns the most recent insight report.
func (r *Runner) Insights() (*insights.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastInsights, r.lastInsights != nil
}

// Restore seeds the runner with a persisted snapshot so the API can serve
// results before the first refresh completes.
func (r *Runner) Restore(ctx context.Context) error {
	_, analysis, err := r.Store.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	invoices, err := r.Store.Invoices(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.lastAnalysis = analysis
	r.lastInsights = insights.Build(invoices, analysis)
	r.mu.Unlock()
	return nil
}
