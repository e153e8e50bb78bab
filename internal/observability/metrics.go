// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shadow-index-lab/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "shadow_index"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Replay metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	EventsReplayed  prometheus.Counter
	EntriesSkipped  *prometheus.CounterVec
	ForcedExits     *prometheus.CounterVec
	QuoteLookups    prometheus.Counter
	PortfolioValue  *prometheus.GaugeVec
	TotalReturnPct  *prometheus.GaugeVec
	OpenPositions   *prometheus.GaugeVec
	QuoteCacheHits  prometheus.Gauge
	QuoteCacheMiss  prometheus.Gauge
	QuoteCacheItems prometheus.Gauge
	FeedUpdates     prometheus.Counter

	// Ingestion metrics
	ActivityRowsFetched prometheus.Counter
	EventsIngested      prometheus.Counter
	EventsDropped       *prometheus.CounterVec
	FetchErrors         *prometheus.CounterVec

	// Poll metrics
	PollPassesTotal    *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	LastSuccessfulPoll prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "runs_total",
			Help:      "Total number of strategy runs by status",
		}, []string{"strategy", "timeframe", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "run_duration_seconds",
			Help:      "Strategy run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"strategy"}),
		EventsReplayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "events_total",
			Help:      "Total number of entries admitted or scaled in across runs",
		}),
		EntriesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "entries_skipped_total",
			Help:      "Total number of skipped entries by reason",
		}, []string{"reason"}),
		ForcedExits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "forced_exits_total",
			Help:      "Total number of rule-driven exits by reason",
		}, []string{"reason"}),
		QuoteLookups: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "quote_lookups_total",
			Help:      "Total number of quote lookups performed by runs",
		}),
		PortfolioValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "value",
			Help:      "Final portfolio value of the latest run",
		}, []string{"strategy", "timeframe"}),
		TotalReturnPct: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "total_return_pct",
			Help:      "Total return percent of the latest run",
		}, []string{"strategy", "timeframe"}),
		OpenPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "open_positions",
			Help:      "Open shadow positions of the latest run",
		}, []string{"strategy", "timeframe"}),
		QuoteCacheHits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "cache_hits",
			Help:      "Quote cache hits since start",
		}),
		QuoteCacheMiss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "cache_misses",
			Help:      "Quote cache misses since start",
		}),
		QuoteCacheItems: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "cache_items",
			Help:      "Entries held by the quote cache",
		}),
		FeedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quotes",
			Name:      "feed_updates_total",
			Help:      "Live price updates received from the market feed",
		}),

		ActivityRowsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "activity_rows_fetched_total",
			Help:      "Total number of raw activity rows fetched",
		}),
		EventsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_stored_total",
			Help:      "Total number of new position events stored",
		}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_dropped_total",
			Help:      "Total number of activity rows dropped by the normalizer by reason",
		}, []string{"reason"}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed fetches by source",
		}, []string{"source"}),

		PollPassesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "passes_total",
			Help:      "Total number of poll passes by status",
		}, []string{"status"}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Poll pass duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		LastSuccessfulPoll: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of last successful poll pass",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler for a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordRun records the outcome of one strategy x timeframe run.
func (m *Metrics) RecordRun(res domain.RunResult, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(res.StrategyID, res.Timeframe, status).Inc()
	m.RunDuration.WithLabelValues(res.StrategyID).Observe(d.Seconds())
	if res.Err != nil {
		return
	}

	s := res.Stats
	m.EventsReplayed.Add(float64(s.Entered + s.ScaledIn))
	for reason, n := range s.Skipped {
		m.EntriesSkipped.WithLabelValues(reason).Add(float64(n))
	}
	for reason, n := range s.ForcedExits {
		m.ForcedExits.WithLabelValues(reason).Add(float64(n))
	}
	m.QuoteLookups.Add(float64(s.QuoteLookups))
	m.PortfolioValue.WithLabelValues(res.StrategyID, res.Timeframe).Set(s.FinalValue)
	m.TotalReturnPct.WithLabelValues(res.StrategyID, res.Timeframe).Set(s.TotalReturnPct)
	m.OpenPositions.WithLabelValues(res.StrategyID, res.Timeframe).Set(float64(s.OpenPositions))
}

// RecordQuoteCache publishes quote cache counters.
func (m *Metrics) RecordQuoteCache(hits, misses uint64, items int) {
	if m == nil {
		return
	}
	m.QuoteCacheHits.Set(float64(hits))
	m.QuoteCacheMiss.Set(float64(misses))
	m.QuoteCacheItems.Set(float64(items))
}

// RecordFeedUpdate counts one live price update.
func (m *Metrics) RecordFeedUpdate() {
	if m == nil {
		return
	}
	m.FeedUpdates.Inc()
}

// RecordIngest records one wallet's fetch and normalization.
func (m *Metrics) RecordIngest(fetched, stored int, dropped map[string]int) {
	if m == nil {
		return
	}
	m.ActivityRowsFetched.Add(float64(fetched))
	m.EventsIngested.Add(float64(stored))
	for reason, n := range dropped {
		if n > 0 {
			m.EventsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
}

// RecordFetchError counts a failed fetch from source.
func (m *Metrics) RecordFetchError(source string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(source).Inc()
}

// RecordPollPass records a poll pass.
func (m *Metrics) RecordPollPass(err error, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PollPassesTotal.WithLabelValues(status).Inc()
	m.PollDuration.Observe(d.Seconds())
	if err == nil {
		m.LastSuccessfulPoll.Set(float64(finished.Unix()))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
