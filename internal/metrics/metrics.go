// Package metrics exposes Prometheus collectors for the sync engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal           *prometheus.CounterVec
	blockedRecoveriesTotal prometheus.Counter
	runsTotal              *prometheus.CounterVec
	itemsTotal             *prometheus.CounterVec
	runDurationSeconds     prometheus.Histogram
	activeFetches          prometheus.Gauge
	httpRequestSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors on the default registry. Safe to call more
// than once; accessors call it lazily.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listwatch_fetches_total",
				Help: "Total listing page fetches, labeled by result (ok, error, blocked).",
			},
			[]string{"result"},
		)

		blockedRecoveriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "listwatch_blocked_recoveries_total",
				Help: "Times the scheduler rebuilt its browser session after a verification page.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listwatch_runs_total",
				Help: "Total sync runs, labeled by outcome (complete, incomplete, failed).",
			},
			[]string{"outcome"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listwatch_items_total",
				Help: "Reconciled items per run, labeled by lifecycle status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listwatch_run_duration_seconds",
				Help:    "End-to-end duration of one sync run.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		)

		activeFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "listwatch_active_fetches",
				Help: "Listing fetches currently in flight.",
			},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listwatch_http_request_duration_seconds",
				Help:    "API request latency, labeled by method, route and status code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		)
	})
}

// Fetches returns the fetch result counter.
func Fetches() *prometheus.CounterVec {
	Init()
	return fetchesTotal
}

// BlockedRecoveries returns the session rebuild counter.
func BlockedRecoveries() prometheus.Counter {
	Init()
	return blockedRecoveriesTotal
}

// Runs returns the run outcome counter.
func Runs() *prometheus.CounterVec {
	Init()
	return runsTotal
}

// Items returns the per-status item counter.
func Items() *prometheus.CounterVec {
	Init()
	return itemsTotal
}

// RunDuration returns the run duration histogram.
func RunDuration() prometheus.Histogram {
	Init()
	return runDurationSeconds
}

// ActiveFetches returns the in-flight fetch gauge.
func ActiveFetches() prometheus.Gauge {
	Init()
	return activeFetches
}

// HTTPRequests returns the API request latency histogram.
func HTTPRequests() *prometheus.HistogramVec {
	Init()
	return httpRequestSeconds
}
