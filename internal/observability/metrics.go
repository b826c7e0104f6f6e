package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the harness counters. One instance is created per process and
// handed to the server and poller by reference.
type Metrics struct {
	registry *prometheus.Registry

	ProofCyclesTotal   prometheus.Counter
	ProofCycleFailures prometheus.Counter
	JobsStarted        prometheus.Counter
	AttestationReports *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ProofCyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proverd_proof_cycles_total",
			Help: "Proving cycles attempted by the block interval poller.",
		}),
		ProofCycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "proverd_proof_cycle_failures_total",
			Help: "Proving cycles that ended in an error.",
		}),
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "proverd_jobs_started_total",
			Help: "Proof jobs started via the control service.",
		}),
		AttestationReports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proverd_attestation_reports_total",
			Help: "Reports submitted to the attestation API by phase.",
		}, []string{"phase", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
