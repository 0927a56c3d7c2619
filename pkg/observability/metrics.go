// Package observability exposes Prometheus metrics and health probes for a
// protocol node: envelope traffic by operation, consensus-service submit
// latency, and directory gauges.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Envelope metrics
	envelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aetherflow_envelopes_total",
			Help: "Total number of protocol envelopes submitted, by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Topic log metrics
	topicSubmitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aetherflow_topic_submits_total",
			Help: "Total number of topic submit calls, by outcome",
		},
		[]string{"outcome"},
	)

	topicSubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aetherflow_topic_submit_duration_seconds",
			Help:    "Topic submit call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// Directory metrics
	registeredAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherflow_registered_agents",
			Help: "Number of agent records known to the directory",
		},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aetherflow_active_connections",
			Help: "Number of established agent connections",
		},
	)

	connectionHandshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aetherflow_connection_handshakes_total",
			Help: "Total number of connection handshakes, by outcome",
		},
		[]string{"outcome"},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus metrics. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			envelopesTotal,
			topicSubmitsTotal,
			topicSubmitDuration,
			registeredAgents,
			activeConnections,
			connectionHandshakes,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordEnvelope counts one submitted envelope.
func RecordEnvelope(op, outcome string) {
	envelopesTotal.WithLabelValues(op, outcome).Inc()
}

// RecordTopicSubmit records one submit call and its duration.
func RecordTopicSubmit(outcome string, duration time.Duration) {
	topicSubmitsTotal.WithLabelValues(outcome).Inc()
	topicSubmitDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordHandshake counts one connection handshake attempt.
func RecordHandshake(outcome string) {
	connectionHandshakes.WithLabelValues(outcome).Inc()
}

// SetRegisteredAgents sets the directory size gauge.
func SetRegisteredAgents(count int) {
	registeredAgents.Set(float64(count))
}

// AddActiveConnections moves the established-connections gauge.
func AddActiveConnections(delta int) {
	activeConnections.Add(float64(delta))
}
