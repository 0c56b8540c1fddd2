// Package metrics provides the Prometheus implementation of connection
// lifecycle metrics reporting.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/authly/authly-go/internal/core/services"
)

var (
	handshakeAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authly_handshake_attempts_total",
		Help: "Total number of handshake attempts",
	})

	handshakeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authly_handshake_failures_total",
		Help: "Total number of failed handshake attempts",
	}, []string{"kind"})

	handshakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "authly_handshake_duration_seconds",
		Help:    "Duration of successful handshakes",
		Buckets: prometheus.DefBuckets,
	})

	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authly_open_sessions",
		Help: "Number of currently open sessions",
	})

	credentialExpiry = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "authly_credential_expiry_timestamp_seconds",
		Help: "Unix timestamp when the loaded identity credential expires",
	}, []string{"common_name"})
)

// PrometheusMetrics implements services.MetricsReporter using Prometheus.
type PrometheusMetrics struct{}

// NewPrometheusMetrics creates a Prometheus-backed metrics reporter.
func NewPrometheusMetrics() services.MetricsReporter {
	return &PrometheusMetrics{}
}

// RecordAttempt counts a handshake attempt.
func (m *PrometheusMetrics) RecordAttempt() {
	handshakeAttempts.Inc()
}

// RecordFailure counts a failed attempt by failure kind.
func (m *PrometheusMetrics) RecordFailure(kind string) {
	handshakeFailures.WithLabelValues(kind).Inc()
}

// RecordEstablished observes a successful handshake and tracks the session.
func (m *PrometheusMetrics) RecordEstablished(duration time.Duration) {
	handshakeDuration.Observe(duration.Seconds())
	openSessions.Inc()
}

// RecordSessionClosed untracks a released session.
func (m *PrometheusMetrics) RecordSessionClosed() {
	openSessions.Dec()
}

// RecordCredentialExpiry exports the credential not-after timestamp.
func (m *PrometheusMetrics) RecordCredentialExpiry(commonName string, notAfter time.Time) {
	credentialExpiry.WithLabelValues(commonName).Set(float64(notAfter.Unix()))
}
