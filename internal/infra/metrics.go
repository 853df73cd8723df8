package infra

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics keeps cheap atomic counters for in-process snapshots and mirrors
// them into Prometheus collectors on a private registry.
type Metrics struct {
	// Counters
	evaluations   atomic.Uint64
	signals       atomic.Uint64
	skipped       atomic.Uint64
	tradesIngest  atomic.Uint64
	errorsTotal   atomic.Uint64
	droppedEvents atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32

	registry       *prometheus.Registry
	evalTotal      *prometheus.CounterVec
	signalTotal    *prometheus.CounterVec
	tradesTotal    *prometheus.CounterVec
	evalSeconds    prometheus.Histogram
	feedConnected  prometheus.Gauge
	openPositions  prometheus.Gauge
	errorsByOrigin *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "amt_evaluations_total", Help: "Strategy evaluations by outcome status"},
			[]string{"symbol", "status"},
		),
		signalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "amt_signals_total", Help: "Signals emitted"},
			[]string{"symbol", "type"},
		),
		tradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "amt_trades_ingested_total", Help: "Trades appended to the store"},
			[]string{"symbol"},
		),
		evalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amt_evaluation_seconds",
			Help:    "Wall time of one per-symbol evaluation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		feedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amt_feed_connections", Help: "Open market data connections",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amt_open_positions", Help: "Open paper positions",
		}),
		errorsByOrigin: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "amt_errors_total", Help: "Errors by origin"},
			[]string{"origin"},
		),
	}
	m.registry.MustRegister(
		m.evalTotal, m.signalTotal, m.tradesTotal, m.evalSeconds,
		m.feedConnected, m.openPositions, m.errorsByOrigin,
	)
	return m
}

// Registry exposes the private registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvaluation records one evaluation with its status and latency.
func (m *Metrics) RecordEvaluation(symbol, status string, latency time.Duration) {
	m.evaluations.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
	m.evalTotal.WithLabelValues(symbol, status).Inc()
	m.evalSeconds.Observe(latency.Seconds())
}

// RecordSignal records an emitted signal.
func (m *Metrics) RecordSignal(symbol, typ string) {
	m.signals.Add(1)
	m.signalTotal.WithLabelValues(symbol, typ).Inc()
}

// RecordSkip records a tick skipped because no new candle closed.
func (m *Metrics) RecordSkip() {
	m.skipped.Add(1)
}

// RecordTrade records an ingested trade.
func (m *Metrics) RecordTrade(symbol string) {
	m.tradesIngest.Add(1)
	m.tradesTotal.WithLabelValues(symbol).Inc()
}

// RecordDropped records an event discarded by the sequencer.
func (m *Metrics) RecordDropped() {
	m.droppedEvents.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(origin string) {
	m.errorsTotal.Add(1)
	m.errorsByOrigin.WithLabelValues(origin).Inc()
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.feedConnected.Set(float64(m.activeConnections.Add(1)))
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.feedConnected.Set(float64(m.activeConnections.Add(-1)))
}

// SetOpenPositions sets the open paper position gauge.
func (m *Metrics) SetOpenPositions(n int) {
	m.openPositions.Set(float64(n))
}

// MetricsSnapshot is a point-in-time view of the counters.
type MetricsSnapshot struct {
	Evaluations       uint64    `json:"evaluations"`
	Signals           uint64    `json:"signals"`
	Skipped           uint64    `json:"skipped"`
	TradesIngested    uint64    `json:"trades_ingested"`
	DroppedEvents     uint64    `json:"dropped_events"`
	ErrorsTotal       uint64    `json:"errors_total"`
	AvgLatencyNs      int64     `json:"avg_latency_ns"`
	ActiveConnections int32     `json:"active_connections"`
	Timestamp         time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		Evaluations:       m.evaluations.Load(),
		Signals:           m.signals.Load(),
		Skipped:           m.skipped.Load(),
		TradesIngested:    m.tradesIngest.Load(),
		DroppedEvents:     m.droppedEvents.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}
