// Package metrics defines the prometheus collectors for the intake service.
// Collectors are registered on an explicit Registerer rather than the
// process-wide default so that each server (and each test) owns its own set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	// IntakeRequests counts finished intake requests by strategy and
	// terminal state.
	IntakeRequests *prometheus.CounterVec

	// IntakeBytes observes the size of proxied payloads that were committed.
	IntakeBytes prometheus.Histogram

	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IntakeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgup_intake_requests_total",
				Help: "Total number of intake requests by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		IntakeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "imgup_intake_bytes",
				Help:    "Size of committed proxied uploads in bytes",
				Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
			},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgup_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
}
