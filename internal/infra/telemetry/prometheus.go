package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpod/internal/domain"
)

type PrometheusMetrics struct {
	cacheLookups     *prometheus.CounterVec
	connectDuration  *prometheus.HistogramVec
	reconnects       *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	registeredTools  *prometheus.GaugeVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpod_cache_lookups_total",
				Help: "Total number of cache lookups by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		),
		connectDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpod_connect_duration_seconds",
				Help:    "Duration of connection creation attempts in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"server", "status"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpod_reconnects_total",
				Help: "Total number of reconnect cycles by outcome",
			},
			[]string{"server", "status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpod_tool_call_duration_seconds",
				Help:    "Duration of proxied tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"server", "status"},
		),
		registeredTools: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpod_registered_tools",
				Help: "Current number of tools registered per server",
			},
			[]string{"server"},
		),
	}
}

func (m *PrometheusMetrics) ObserveCacheLookup(namespace string, hit bool) {
	m.cacheLookups.WithLabelValues(namespace, hitOutcome(hit)).Inc()
}

func (m *PrometheusMetrics) ObserveConnect(server string, duration time.Duration, err error) {
	m.connectDuration.WithLabelValues(server, statusLabel(err)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObserveReconnect(server string, _ int, err error) {
	m.reconnects.WithLabelValues(server, statusLabel(err)).Inc()
}

func (m *PrometheusMetrics) ObserveToolCall(server, _ string, duration time.Duration, err error) {
	m.toolCallDuration.WithLabelValues(server, statusLabel(err)).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SetRegisteredTools(server string, count int) {
	m.registeredTools.WithLabelValues(server).Set(float64(count))
}

func hitOutcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
