// Package metrics holds the Prometheus instruments for the registration
// subsystem. A nil *Metrics is valid and records nothing, so tests can run
// services without touching the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	registrations      *prometheus.CounterVec
	availabilityChecks prometheus.Counter
	uiaStages          *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry. Call once
// per process.
func New() *Metrics {
	return &Metrics{
		registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_registrations_total",
			Help: "Completed registrations by account kind",
		}, []string{"kind"}),
		availabilityChecks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hearth_username_availability_checks_total",
			Help: "Username availability probes served",
		}),
		uiaStages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_uia_stage_results_total",
			Help: "Interactive-auth stage submissions by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncRegistrations(kind string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncAvailabilityChecks() {
	if m == nil {
		return
	}
	m.availabilityChecks.Inc()
}

func (m *Metrics) IncUIAStage(result string) {
	if m == nil {
		return
	}
	m.uiaStages.WithLabelValues(result).Inc()
}
