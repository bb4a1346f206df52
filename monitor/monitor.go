// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Viewers         prometheus.Gauge
	Refreshes       *prometheus.CounterVec
	PartialRefresh  *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	QueryFailures   *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	Actions         *prometheus.CounterVec
	ActionLatency   *prometheus.HistogramVec
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "viewers",
			Help:      "Number of connected view sessions",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Total number of refreshes by trigger reason",
		}, []string{"reason"}),
		PartialRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_with_failures_total",
			Help:      "Refreshes where at least one ledger read failed, by trigger reason",
		}, []string{"reason"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time for all four ledger reads of a refresh to settle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		QueryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_failures_total",
			Help:      "Failed ledger reads by slot",
		}, []string{"slot"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Ledger reads whose arrays could not be decoded, by slot",
		}, []string{"slot"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Submitted actions by kind and outcome",
		}, []string{"action", "outcome"}),
		ActionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_latency_seconds",
			Help:      "Time from submission to finalization or rejection",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.Viewers,
		m.Refreshes,
		m.PartialRefresh,
		m.RefreshDuration,
		m.QueryFailures,
		m.DecodeErrors,
		m.Actions,
		m.ActionLatency,
	)

	return m
}

// Monitor implements refresh.Observer and services.ActionRecorder.
type Monitor struct {
	metrics   *Metrics
	gatherer  prometheus.Gatherer
	startTime time.Time
}

// NewMonitor registers metrics on reg and serves reg from Handler.
func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace, reg),
		gatherer:  reg,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves the registry in the Prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Monitor) StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	// 添加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))
	mux.Handle("/debug/vars", expvar.Handler())

	go http.ListenAndServe(addr, mux)
}

func (m *Monitor) IncViewers() {
	m.metrics.Viewers.Inc()
}

func (m *Monitor) DecViewers() {
	m.metrics.Viewers.Dec()
}

func (m *Monitor) ObserveRefresh(reason string, duration time.Duration, failures int) {
	m.metrics.Refreshes.WithLabelValues(reason).Inc()
	if failures > 0 {
		m.metrics.PartialRefresh.WithLabelValues(reason).Inc()
	}
	m.metrics.RefreshDuration.Observe(duration.Seconds())
}

func (m *Monitor) IncQueryFailure(slot string, decodeFailure bool) {
	if decodeFailure {
		m.metrics.DecodeErrors.WithLabelValues(slot).Inc()
		return
	}
	m.metrics.QueryFailures.WithLabelValues(slot).Inc()
}

func (m *Monitor) ObserveAction(action, outcome string, duration time.Duration) {
	m.metrics.Actions.WithLabelValues(action, outcome).Inc()
	m.metrics.ActionLatency.WithLabelValues(action).Observe(duration.Seconds())
}
