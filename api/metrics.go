package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the client's prometheus collectors.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Refreshes      *prometheus.CounterVec
	Replays        prometheus.Counter
	SessionExpired prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API calls by final outcome.",
		}, []string{"method", "outcome"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "api",
			Name:      "token_refreshes_total",
			Help:      "Calls to the refresh endpoint by result.",
		}, []string{"result"}),
		Replays: f.NewCounter(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "api",
			Name:      "replays_total",
			Help:      "Requests re-issued after an unauthorized response.",
		}),
		SessionExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "api",
			Name:      "session_expired_total",
			Help:      "Unrecoverable unauthorized responses.",
		}),
	}
}
