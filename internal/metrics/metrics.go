package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects per-run counters for the ingestor. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Records         *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
	StoreOpErrors   *prometheus.CounterVec
	LastRun         prometheus.Gauge
}

// New registers the ingestor metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfingest_records_total",
				Help: "URLs processed, by outcome.",
			},
			[]string{"outcome"}, // added, exists, failed
		),
		StoreOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pdfingest_store_op_duration_seconds",
				Help:    "Duration of document store calls.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"}, // lookup, insert
		),
		StoreOpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdfingest_store_op_errors_total",
				Help: "Failed document store calls.",
			},
			[]string{"op"},
		),
		LastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pdfingest_last_run_timestamp_seconds",
				Help: "Unix time the last run finished.",
			},
		),
	}
}

// ObserveOutcome counts one processed URL.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(outcome).Inc()
}

// ObserveStoreOp records the latency of a store call and whether it failed.
func (m *Metrics) ObserveStoreOp(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOpDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.StoreOpErrors.WithLabelValues(op).Inc()
	}
}

// MarkCompleted stamps the run completion time.
func (m *Metrics) MarkCompleted(t time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics in the text exposition format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
