package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are labelled by channel path so one set serves every client.
type Metrics struct {
	Reconnects *prometheus.CounterVec
	Discarded  *prometheus.CounterVec
	State      *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Reconnects scheduled after a close.",
		}, []string{"channel"}),
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "izikwen",
			Subsystem: "realtime",
			Name:      "discarded_frames_total",
			Help:      "Inbound frames dropped because they were not JSON.",
		}, []string{"channel"}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "izikwen",
			Subsystem: "realtime",
			Name:      "state",
			Help:      "Connection state: 0 idle, 1 connecting, 2 open, 3 closed.",
		}, []string{"channel"}),
	}
}
