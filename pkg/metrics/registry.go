package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry          *prometheus.Registry
	submissionsTotal  *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	observationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	observedTransfers prometheus.Gauge
}

func NewRegistry() *Registry {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xtransfer_submissions_total",
		Help: "Transaction submissions by action and outcome",
	}, []string{"action", "result"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xtransfer_retry_attempts_total",
		Help: "Automatic resubmissions of a failed phase",
	}, []string{"phase", "result"})

	observations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xtransfer_observations_total",
		Help: "Transaction states reported by the status reconciler",
	}, []string{"state"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xtransfer_status_transitions_total",
		Help: "Transfer status changes by target status",
	}, []string{"status"})

	observed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xtransfer_observed_transfers",
		Help: "Non-terminal transfers polled in the last reconcile round",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, retries, observations, transitions, observed)

	return &Registry{
		registry:          r,
		submissionsTotal:  submissions,
		retriesTotal:      retries,
		observationsTotal: observations,
		transitionsTotal:  transitions,
		observedTransfers: observed,
	}
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// The increment helpers accept a nil receiver so components can run without metrics.

func (m *Registry) IncSubmission(action string, result string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(action, result).Inc()
}

func (m *Registry) IncRetry(phase string, result string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(phase, result).Inc()
}

func (m *Registry) IncObservation(state string) {
	if m == nil {
		return
	}
	m.observationsTotal.WithLabelValues(state).Inc()
}

func (m *Registry) IncTransition(status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status).Inc()
}

func (m *Registry) SetObservedTransfers(n int) {
	if m == nil {
		return
	}
	m.observedTransfers.Set(float64(n))
}
