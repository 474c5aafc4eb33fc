package session

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/coordinator/llmrouter"
	"github.com/agentmesh/coordinator/memory"
	"github.com/agentmesh/coordinator/pkg/store"
	"github.com/agentmesh/coordinator/topology"
)

func newTestManagerSession(t *testing.T, mgr *Manager, projectID string, topoKind topology.Kind) *Session {
	t.Helper()
	mem := memory.New(memory.Config{MaintenanceEvery: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })
	router := llmrouter.New(llmrouter.Config{})
	s, err := mgr.CreateSession(projectID, "name", topoKind, topology.Config{}, mem, router, Config{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

// ListSessions with a zero-value filter returns every live session.
func TestListSessionsWithNoFilterReturnsAll(t *testing.T) {
	mgr := NewManager(store.NewMemory())
	a := newTestManagerSession(t, mgr, "proj-a", topology.Hierarchical)
	b := newTestManagerSession(t, mgr, "proj-b", topology.Mesh)

	ids := mgr.ListSessions(SessionFilter{})
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[a.ID()] || !seen[b.ID()] {
		t.Fatalf("expected both sessions listed, got %v", ids)
	}
}

// ListSessions filters conjunctively: every set field must match.
func TestListSessionsFiltersConjunctively(t *testing.T) {
	mgr := NewManager(store.NewMemory())
	match := newTestManagerSession(t, mgr, "proj-a", topology.Hierarchical)
	_ = newTestManagerSession(t, mgr, "proj-a", topology.Mesh)
	_ = newTestManagerSession(t, mgr, "proj-b", topology.Hierarchical)

	ids := mgr.ListSessions(SessionFilter{ProjectID: "proj-a", TopologyKind: topology.Hierarchical})
	if len(ids) != 1 || ids[0] != match.ID() {
		t.Fatalf("expected only %s to match, got %v", match.ID(), ids)
	}
}

// ListSessions filtered by Status only returns sessions in that state.
func TestListSessionsFiltersByStatus(t *testing.T) {
	mgr := NewManager(store.NewMemory())
	active := newTestManagerSession(t, mgr, "proj-a", topology.Hierarchical)
	paused := newTestManagerSession(t, mgr, "proj-a", topology.Hierarchical)
	if err := paused.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	ids := mgr.ListSessions(SessionFilter{Status: StatusPaused})
	if len(ids) != 1 || ids[0] != paused.ID() {
		t.Fatalf("expected only %s to match, got %v", paused.ID(), ids)
	}

	ids = mgr.ListSessions(SessionFilter{Status: StatusActive})
	if len(ids) != 1 || ids[0] != active.ID() {
		t.Fatalf("expected only %s to match, got %v", active.ID(), ids)
	}
}
