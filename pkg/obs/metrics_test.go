package obs

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersInstrumentsAndRecordsDispatch(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	m.RecordDispatch(ctx)
	m.RecordDispatch(ctx)
	m.RecordTaskCompletion(ctx, "implementation", true, 1.5)
	m.RecordFallback(ctx)
	m.RecordCheckpoint(ctx)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !hasMetricNamed(families, "coordinator_tasks_dispatched_total") {
		t.Fatalf("expected a dispatched-tasks metric family, got: %+v", familyNames(families))
	}
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordDispatch(ctx)
	m.RecordTaskCompletion(ctx, "testing", false, 0.2)
	m.RecordFallback(ctx)
	m.RecordCheckpoint(ctx)
}

func hasMetricNamed(families []*dto.MetricFamily, name string) bool {
	for _, f := range families {
		if f.GetName() == name {
			return true
		}
	}
	return false
}

func familyNames(families []*dto.MetricFamily) []string {
	out := make([]string, 0, len(families))
	for _, f := range families {
		out = append(out, f.GetName())
	}
	return out
}

var _ = prometheus.NewRegistry
