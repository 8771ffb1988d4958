// Package metrics provides Prometheus metrics for SLA monitoring.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slawatch"

// Metrics holds the Prometheus collectors for the monitoring pipeline.
// All record methods are safe to call on a nil *Metrics.
type Metrics struct {
	CycleCounter     *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	ViolationCounter *prometheus.CounterVec
	DetectorErrors   prometheus.Counter
	EscalationCount  prometheus.Counter
	ActionCounter    *prometheus.CounterVec
	ActionDuration   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CycleCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Monitoring cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "monitor_cycle_duration_seconds",
			Help:      "Duration of monitoring cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ViolationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_detected_total",
			Help:      "SLA violations recorded by type.",
		}, []string{"violation_type"}),
		DetectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_policy_errors_total",
			Help:      "Policies that failed during violation detection.",
		}),
		EscalationCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation level advances.",
		}),
		ActionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_actions_total",
			Help:      "Escalation action attempts by type and outcome.",
		}, []string{"action_type", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_action_duration_seconds",
			Help:      "Duration of escalation action attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type"}),
	}

	collectors := []prometheus.Collector{
		m.CycleCounter,
		m.CycleDuration,
		m.ViolationCounter,
		m.DetectorErrors,
		m.EscalationCount,
		m.ActionCounter,
		m.ActionDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// RecordCycle records a finished monitoring cycle.
func (m *Metrics) RecordCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CycleCounter.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// RecordViolation counts a newly recorded violation.
func (m *Metrics) RecordViolation(violationType string) {
	if m == nil {
		return
	}
	m.ViolationCounter.WithLabelValues(violationType).Inc()
}

// RecordDetectorError counts a policy that failed detection.
func (m *Metrics) RecordDetectorError() {
	if m == nil {
		return
	}
	m.DetectorErrors.Inc()
}

// RecordEscalation counts a violation advancing one level.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.EscalationCount.Inc()
}

// RecordAction counts an action attempt and its duration.
func (m *Metrics) RecordAction(actionType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionCounter.WithLabelValues(actionType, outcome).Inc()
	m.ActionDuration.WithLabelValues(actionType).Observe(d.Seconds())
}
