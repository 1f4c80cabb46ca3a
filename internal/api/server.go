// Package api exposes the cohort analysis over HTTP: health probes,
// Prometheus metrics, read endpoints for the latest analysis and insights,
// and an operator endpoint to trigger a refresh.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/config"
	"github.com/cohortlab/cohortd/internal/insights"
	"github.com/cohortlab/cohortd/internal/jobs"
	"github.com/cohortlab/cohortd/internal/log"
)

// Refresher is the slice of the job runner the API needs.
type Refresher interface {
	Launch(ctx context.Context) (string, error)
	Running() bool
	Last() (jobs.Status, bool)
	Analysis() (*cohort.Analysis, bool)
	Insights() (*insights.Report, bool)
}

// Server wires handlers to the runner and configuration.
type Server struct {
	cfg       *config.Holder
	refresher Refresher
	startedAt time.Time
}

// NewServer builds a server around the given config holder and refresher.
func NewServer(cfg *config.Holder, refresher Refresher) *Server {
	return &Server{
		cfg:       cfg,
		refresher: refresher,
		startedAt: time.Now().UTC(),
	}
}

// Routes assembles the router with the full middleware stack.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	// Order matters: recovery outermost, then correlation, then telemetry.
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(observe)
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(func() int { return s.cfg.Get().Limits.RequestsPerMinute }))

		r.Get("/analysis", s.handleAnalysis)
		r.Get("/analysis/retention", s.handleMatrix(matrixRetention))
		r.Get("/analysis/counts", s.handleMatrix(matrixCounts))
		r.Get("/analysis/monetary", s.handleMatrix(matrixMonetary))
		r.Get("/insights", s.handleInsights)
		r.Get("/status", s.handleStatus)

		r.With(requireToken(func() string { return s.cfg.Get().APIToken })).
			Post("/refresh", s.handleRefresh)
	})

	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	logger := log.WithComponent("api")

	srv := &http.Server{
		Addr:              s.cfg.Get().Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
