package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssignmentMetrics exposes counters/histograms for the round-robin assignment flow.
type AssignmentMetrics struct {
	assignmentsTotal *prometheus.CounterVec
	orphanedTotal    *prometheus.CounterVec
	counterLatency   *prometheus.HistogramVec
	triggersTotal    *prometheus.CounterVec
}

func NewAssignmentMetrics(reg prometheus.Registerer) *AssignmentMetrics {
	m := &AssignmentMetrics{
		assignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "assignment",
			Name:      "total",
			Help:      "Assignment attempts by resource and outcome",
		}, []string{"resource", "outcome"}),
		orphanedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "assignment",
			Name:      "orphaned_total",
			Help:      "Counter increments that did not produce an assignment",
		}, []string{"resource", "stage"}),
		counterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicops",
			Subsystem: "counter",
			Name:      "increment_latency_seconds",
			Help:      "Latency of counter ledger increments",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource"}),
		triggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicops",
			Subsystem: "triggers",
			Name:      "events_total",
			Help:      "Trigger events handled by the worker",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.assignmentsTotal, m.orphanedTotal, m.counterLatency, m.triggersTotal)
	return m
}

func (m *AssignmentMetrics) ObserveAssignment(resource, outcome string) {
	if m == nil {
		return
	}
	m.assignmentsTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveOrphaned records an increment whose assignment failed at stage.
func (m *AssignmentMetrics) ObserveOrphaned(resource, stage string) {
	if m == nil {
		return
	}
	m.orphanedTotal.WithLabelValues(resource, stage).Inc()
}

func (m *AssignmentMetrics) ObserveCounterLatency(resource string, seconds float64) {
	if m == nil {
		return
	}
	m.counterLatency.WithLabelValues(resource).Observe(seconds)
}

func (m *AssignmentMetrics) ObserveTrigger(kind, status string) {
	if m == nil {
		return
	}
	m.triggersTotal.WithLabelValues(kind, status).Inc()
}
