// Package services orchestrates connection establishment and lifecycle on
// top of the domain and transport layers.
package services

import "time"

// MetricsReporter receives connection lifecycle observations. The concrete
// Prometheus implementation lives in internal/adapters/metrics so this
// package stays free of metrics dependencies.
type MetricsReporter interface {
	// RecordAttempt is called once per handshake attempt.
	RecordAttempt()
	// RecordFailure is called with the failure kind of a finished attempt.
	RecordFailure(kind string)
	// RecordEstablished is called with the duration of a successful handshake.
	RecordEstablished(duration time.Duration)
	// RecordSessionClosed is called when an owned session is released.
	RecordSessionClosed()
	// RecordCredentialExpiry reports the not-after instant of the loaded
	// credential, keyed by its subject common name.
	RecordCredentialExpiry(commonName string, notAfter time.Time)
}

// noopMetrics is the default reporter.
type noopMetrics struct{}

func (noopMetrics) RecordAttempt()                           {}
func (noopMetrics) RecordFailure(string)                     {}
func (noopMetrics) RecordEstablished(time.Duration)          {}
func (noopMetrics) RecordSessionClosed()                     {}
func (noopMetrics) RecordCredentialExpiry(string, time.Time) {}

// NoopMetrics returns a reporter that discards all observations.
func NoopMetrics() MetricsReporter {
	return noopMetrics{}
}
