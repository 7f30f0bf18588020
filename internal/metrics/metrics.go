// Package metrics holds the Prometheus instruments for a digest run. A run is
// a short-lived batch job, so the registry is pushed to a Pushgateway at the
// end rather than scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Search outcome labels. The collector's query statuses use the same values.
const (
	SearchOK     = "ok"
	SearchEmpty  = "empty"
	SearchFailed = "failed"
)

// Delivery outcome labels.
const (
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
	DeliverySkipped  = "skipped"
	DeliveryExported = "exported"
)

// Metrics is a set of instruments bound to a private registry. All methods
// are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	reg *prometheus.Registry

	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	results        prometheus.Counter
	recordsKept    *prometheus.CounterVec
	duplicates     prometheus.Counter
	deliveries     *prometheus.CounterVec
	runDuration    prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		searches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobdigest_search_requests_total",
				Help: "Total number of search queries executed, by outcome",
			},
			[]string{"status"},
		),
		searchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobdigest_search_duration_seconds",
				Help:    "Duration of search requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		results: f.NewCounter(
			prometheus.CounterOpts{
				Name: "jobdigest_search_results_total",
				Help: "Total raw results returned by the search provider",
			},
		),
		recordsKept: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobdigest_records_total",
				Help: "Distinct job records kept, by official site flag",
			},
			[]string{"official_site"},
		),
		duplicates: f.NewCounter(
			prometheus.CounterOpts{
				Name: "jobdigest_duplicates_dropped_total",
				Help: "Results dropped because their link was already seen",
			},
		),
		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobdigest_deliveries_total",
				Help: "Digest deliveries, by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobdigest_run_duration_seconds",
				Help: "Wall time of the last run",
			},
		),
		lastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "jobdigest_last_success_timestamp_seconds",
				Help: "Unix time of the last run that completed without a delivery failure",
			},
		),
	}
}

// RecordSearch counts one query by outcome and observes its duration.
func (m *Metrics) RecordSearch(status string, results int, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.Observe(d.Seconds())
	m.results.Add(float64(results))
}

// RecordKept counts one newly kept record.
func (m *Metrics) RecordKept(official bool) {
	if m == nil {
		return
	}
	label := "false"
	if official {
		label = "true"
	}
	m.recordsKept.WithLabelValues(label).Inc()
}

// RecordDuplicate counts one result dropped as a duplicate.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// RecordDelivery counts the final delivery outcome.
func (m *Metrics) RecordDelivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// RecordRun sets the run duration and, on success, the last success time.
func (m *Metrics) RecordRun(d time.Duration, success bool, end time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
	if success {
		m.lastSuccess.Set(float64(end.Unix()))
	}
}

// Push replaces the metrics of job on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
