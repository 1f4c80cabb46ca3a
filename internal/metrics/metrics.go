// Package metrics exposes Prometheus collectors for cohortd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	rowsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cohortd_rows_ingested_total",
		Help: "Total number of invoice rows accepted during ingest",
	})
	rowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortd_rows_skipped_total",
		Help: "Invoice rows dropped during ingest by reason",
	}, []string{"reason"}) // reason=malformed|no_customer

	invoicesStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cohortd_invoices_stored",
		Help: "Invoice rows currently persisted in the store",
	})

	// Analysis metrics
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortd_analyses_total",
		Help: "Cohort analysis runs by outcome",
	}, []string{"outcome"}) // outcome=success|failure|cached

	analysisDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cohortd_analysis_duration_seconds",
		Help:    "Time spent computing a full cohort analysis",
		Buckets: prometheus.DefBuckets,
	})

	cohortsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cohortd_cohorts",
		Help: "Cohort rows in the latest analysis",
	})

	// Cache metrics
	cacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortd_cache_events_total",
		Help: "Analysis cache lookups by result",
	}, []string{"result"}) // result=hit|miss

	// Refresh metrics
	refreshFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortd_refresh_failures_total",
		Help: "Refresh failures by stage",
	}, []string{"stage"}) // stage=scan|ingest|load|analyze|report|snapshot

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortd_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	httpDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cohortd_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

func AddRowsIngested(n int) { rowsIngested.Add(float64(n)) }
func AddRowsSkipped(reason string, n int) {
	rowsSkipped.WithLabelValues(reason).Add(float64(n))
}
func SetInvoicesStored(n int) { invoicesStored.Set(float64(n)) }

func IncAnalysis(outcome string)          { analysesTotal.WithLabelValues(outcome).Inc() }
func ObserveAnalysisDuration(sec float64) { analysisDurationSeconds.Observe(sec) }
func SetCohorts(n int)                    { cohortsActive.Set(float64(n)) }
func IncCacheEvent(result string)         { cacheEvents.WithLabelValues(result).Inc() }
func IncRefreshFailure(stage string)      { refreshFailuresTotal.WithLabelValues(stage).Inc() }

func ObserveHTTPRequest(route, code string, sec float64) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpDurationSeconds.WithLabelValues(route).Observe(sec)
}
