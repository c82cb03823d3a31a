package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "audit_ticketer"

// Metrics holds all Prometheus metrics for the ticketer.
type Metrics struct {
	EventsFetched     prometheus.Counter
	EventsAppended    prometheus.Counter
	EventsDuplicate   prometheus.Counter
	TicketActions     *prometheus.CounterVec
	RowsProcessed     prometheus.Counter
	CycleFailures     *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	UnprocessedRows   prometheus.Gauge
	APIKeyCacheHits   prometheus.Counter
	APIKeyCacheMisses prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_fetched_total",
			Help:      "Total number of raw audit events fetched from the identity provider.",
		}),
		EventsAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_appended_total",
			Help:      "Total number of rows appended to the event log.",
		}),
		EventsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_duplicate_total",
			Help:      "Total number of rows dropped by the natural-key filter.",
		}),
		TicketActions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "ticket_actions_total",
			Help:      "Total number of ticket actions by action and status.",
		}, []string{"action", "status"}),
		RowsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "rows_processed_total",
			Help:      "Total number of rows marked processed.",
		}),
		CycleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Total number of aborted cycles by task and error kind.",
		}, []string{"task", "kind"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingest and dispatch cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"task"}),
		UnprocessedRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "unprocessed_rows",
			Help:      "Unprocessed rows seen at the start of the last dispatch cycle.",
		}),
		APIKeyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_hits_total",
			Help:      "Total number of API key cache hits.",
		}),
		APIKeyCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "api_key_cache_misses_total",
			Help:      "Total number of API key cache misses.",
		}),
	}
}
