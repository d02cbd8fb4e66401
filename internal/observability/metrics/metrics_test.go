package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAssignmentMetricsObserve(t *testing.T) {
	m := NewAssignmentMetrics(prometheus.NewRegistry())
	m.ObserveAssignment("citas", "assigned")
	m.ObserveOrphaned("chats", "roster")
	m.ObserveCounterLatency("citas", 0.02)
	m.ObserveTrigger("document.created", "handled")
}

func TestAssignmentMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAssignmentMetrics(reg)
	m.ObserveOrphaned("citas", "write")
	m.ObserveOrphaned("citas", "write")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "clinicops_assignment_orphaned_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatalf("orphaned metric not registered")
	}
	if got := found.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 orphaned increments, got %v", got)
	}
}

func TestAssignmentMetricsNilSafe(t *testing.T) {
	var m *AssignmentMetrics
	m.ObserveAssignment("citas", "assigned")
	m.ObserveOrphaned("citas", "write")
	m.ObserveCounterLatency("citas", 0.1)
	m.ObserveTrigger("document.created", "failed")
}
