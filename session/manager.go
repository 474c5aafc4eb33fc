package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/llmrouter"
	"github.com/agentmesh/coordinator/memory"
	"github.com/agentmesh/coordinator/pkg/obs"
	"github.com/agentmesh/coordinator/pkg/store"
	"github.com/agentmesh/coordinator/topology"
)

// Manager owns every live Session in a process, keyed by ID, and the
// backing object store used for their checkpoint artifacts.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	backingStore store.Store
	metrics      *obs.Metrics
}

// NewManager constructs a Manager. backingStore may be nil, in which
// case sessions created without an explicit store fall back to an
// in-memory one and PersistToDisk has no effect.
func NewManager(backingStore store.Store) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		backingStore: backingStore,
	}
}

// SetMetrics attaches a metrics sink applied to every session created
// from this point on.
func (m *Manager) SetMetrics(metrics *obs.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// CreateSession constructs a topology graph of the given kind, a fresh
// session around it, and registers the session under a new ID.
func (m *Manager) CreateSession(projectID, name string, topoKind topology.Kind, topoCfg topology.Config, mem *memory.Store, llm *llmrouter.Router, cfg Config) (*Session, error) {
	graph, err := topology.New(topoKind, topoCfg)
	if err != nil {
		return nil, err
	}

	backing := m.backingStore
	if backing == nil {
		backing = store.NewMemory()
	}

	s := New(uuid.NewString(), projectID, name, graph, mem, llm, backing, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	s.SetMetrics(m.metrics)
	m.sessions[s.ID()] = s
	return s, nil
}

// GetSession looks up a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionFilter narrows ListSessions to sessions matching every
// non-zero field; a zero-value field is ignored. All set fields are
// ANDed together.
type SessionFilter struct {
	ProjectID    string
	Status       Status
	TopologyKind topology.Kind
}

func (f SessionFilter) matches(s *Session) bool {
	if f.ProjectID != "" && s.ProjectID() != f.ProjectID {
		return false
	}
	if f.Status != "" && s.Status() != f.Status {
		return false
	}
	if f.TopologyKind != "" && s.TopologyKind() != f.TopologyKind {
		return false
	}
	return true
}

// ListSessions returns the ID of every live session matching filter.
// A zero-value filter matches every session.
func (m *Manager) ListSessions(filter SessionFilter) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if filter.matches(s) {
			out = append(out, id)
		}
	}
	return out
}

// TerminateSession terminates and forgets a session.
func (m *Manager) TerminateSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return coordinator.NewError("session", "TerminateSession", coordinator.ErrNotFound, "session not found", nil)
	}
	s.Terminate()
	delete(m.sessions, id)
	return nil
}

// LoadCheckpointArtifact reads and decodes a session's persisted
// checkpoint artifact from the manager's backing store, for recovery
// after a process restart when the in-memory Session no longer exists.
func (m *Manager) LoadCheckpointArtifact(ctx context.Context, sessionID string) (Artifact, bool, error) {
	if m.backingStore == nil {
		return Artifact{}, false, nil
	}
	doc, ok, err := m.backingStore.Get(ctx, sessionID)
	if err != nil || !ok {
		return Artifact{}, ok, err
	}
	a, err := unmarshalArtifact(doc)
	if err != nil {
		return Artifact{}, false, err
	}
	return a, true, nil
}
