package topology

import (
	"time"

	coordinator "github.com/agentmesh/coordinator"
)

// meshTopology is a complete graph: every agent is connected to every
// other agent. Routes are always one hop.
type meshTopology struct {
	cfg   Config
	order []string
	nodes map[string]AgentView

	// tasksDistributed tracks per-agent task counts for RouteTask
	// tie-breaking, separate from the live agent load the caller passes in.
	tasksDistributed map[string]int
}

func newMesh(cfg Config) *meshTopology {
	return &meshTopology{
		cfg:              cfg,
		nodes:            make(map[string]AgentView),
		tasksDistributed: make(map[string]int),
	}
}

func (t *meshTopology) Kind() Kind { return Mesh }

func (t *meshTopology) AddAgent(a AgentView) error {
	if _, exists := t.nodes[a.ID]; exists {
		t.nodes[a.ID] = a
		return nil
	}
	if len(t.nodes) >= t.cfg.MaxAgents {
		return coordinator.NewError("topology", "AddAgent", coordinator.ErrCapacityExceeded,
			"mesh topology at capacity", nil)
	}
	t.nodes[a.ID] = a
	t.order = append(t.order, a.ID)
	return nil
}

func (t *meshTopology) RemoveAgent(id string) error {
	if _, exists := t.nodes[id]; !exists {
		return nil
	}
	delete(t.nodes, id)
	delete(t.tasksDistributed, id)
	t.order = removeFromSlice(t.order, id)
	return nil
}

func (t *meshTopology) Neighbors(id string) []string {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	var out []string
	for _, other := range t.order {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

func (t *meshTopology) RouteMessage(m *coordinator.Message) (*Path, error) {
	if m.IsBroadcast() {
		var hops []string
		hops = append(hops, m.From)
		for _, id := range t.order {
			if id != m.From {
				hops = append(hops, id)
			}
		}
		return &Path{From: m.From, To: "broadcast", Hops: hops, HopCount: 1, Latency: 10 * time.Millisecond}, nil
	}
	if _, ok := t.nodes[m.From]; !ok {
		return nil, coordinator.NewError("topology", "RouteMessage", coordinator.ErrNotFound, "unknown sender", nil)
	}
	if _, ok := t.nodes[m.To]; !ok {
		return nil, coordinator.NewError("topology", "RouteMessage", coordinator.ErrNotFound, "unknown recipient", nil)
	}
	return &Path{From: m.From, To: m.To, Hops: []string{m.From, m.To}, HopCount: 1, Latency: 10 * time.Millisecond}, nil
}

func (t *meshTopology) RouteTask(tk *coordinator.Task, agents map[string]AgentView) (string, error) {
	id, err := routeTaskGeneric(t.order, tk, agents)
	if err != nil {
		return "", err
	}
	t.tasksDistributed[id]++
	return id, nil
}

func (t *meshTopology) resetTaskDistribution() {
	t.tasksDistributed = make(map[string]int)
}

// ResetTaskDistribution zeroes the mesh's per-agent task-distribution
// counters used to tie-break RouteTask.
func (t *meshTopology) ResetTaskDistribution() { t.resetTaskDistribution() }

func (t *meshTopology) CalculateMetrics() Metrics {
	var bottlenecks []string
	if len(t.nodes) > 0 {
		mean := 0.0
		for _, c := range t.tasksDistributed {
			mean += float64(c)
		}
		mean /= float64(len(t.order))
		for id, c := range t.tasksDistributed {
			if float64(c) > mean*2 && c > 0 {
				bottlenecks = append(bottlenecks, id)
			}
		}
	}
	connectivity := 0.0
	if len(t.nodes) > 0 {
		connectivity = 1
	}
	return Metrics{
		Efficiency:     1,
		MessageLatency: 10 * time.Millisecond,
		LoadBalance:    1,
		Connectivity:   connectivity,
		Bottlenecks:    bottlenecks,
	}
}

func (t *meshTopology) Validate() bool {
	return true
}

// Reorganize only resets the task-distribution counters for mesh.
func (t *meshTopology) Reorganize() {
	t.resetTaskDistribution()
}
