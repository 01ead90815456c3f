// Package metrics exposes Prometheus instrumentation for ticket runs.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ticket-agent collectors.
type Metrics struct {
	Runs             *prometheus.CounterVec
	Attempts         prometheus.Histogram
	StageDegraded    *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RecorderFailures prometheus.Counter
	InFlight         prometheus.Gauge
}

// New creates the collectors and registers them with reg. Collectors already
// registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_agent_runs_total",
			Help: "Ticket runs by terminal outcome.",
		}, []string{"outcome"}),
		Attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ticket_agent_review_attempts",
			Help:    "Completed review passes per run.",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		}),
		StageDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_agent_stage_degraded_total",
			Help: "Stage invocations that fell back to their safe default.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ticket_agent_stage_duration_seconds",
			Help:    "Stage latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		RecorderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ticket_agent_escalation_record_failures_total",
			Help: "Escalation records that could not be appended.",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ticket_agent_runs_in_flight",
			Help: "Ticket runs currently executing.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	if m.Runs, err = register(reg, m.Runs); err != nil {
		return nil, err
	}
	if m.Attempts, err = register(reg, m.Attempts); err != nil {
		return nil, err
	}
	if m.StageDegraded, err = register(reg, m.StageDegraded); err != nil {
		return nil, err
	}
	if m.StageDuration, err = register(reg, m.StageDuration); err != nil {
		return nil, err
	}
	if m.RecorderFailures, err = register(reg, m.RecorderFailures); err != nil {
		return nil, err
	}
	if m.InFlight, err = register(reg, m.InFlight); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// RunFinished records a run's outcome and review pass count.
func (m *Metrics) RunFinished(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Runs.WithLabelValues(outcome).Inc()
	m.Attempts.Observe(float64(attempts))
}

// ObserveStage records one stage invocation.
func (m *Metrics) ObserveStage(stage string, d time.Duration, degraded bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if degraded {
		m.StageDegraded.WithLabelValues(stage).Inc()
	}
}

// RecorderFailed counts a failed escalation append.
func (m *Metrics) RecorderFailed() {
	if m == nil {
		return
	}
	m.RecorderFailures.Inc()
}
