package topology

import (
	"time"

	coordinator "github.com/agentmesh/coordinator"
)

// starTopology connects every spoke to a single coordinator. Spoke-to-spoke
// routes always traverse the coordinator.
type starTopology struct {
	cfg         Config
	order       []string // insertion order, including the coordinator
	nodes       map[string]AgentView
	coordinator string
}

func newStar(cfg Config) *starTopology {
	return &starTopology{
		cfg:         cfg,
		nodes:       make(map[string]AgentView),
		coordinator: cfg.CoordinatorID,
	}
}

func (t *starTopology) Kind() Kind { return Star }

func (t *starTopology) CoordinatorID() string { return t.coordinator }

func (t *starTopology) AddAgent(a AgentView) error {
	if _, exists := t.nodes[a.ID]; exists {
		t.nodes[a.ID] = a
		return nil
	}
	if len(t.nodes) >= t.cfg.MaxAgents {
		return coordinator.NewError("topology", "AddAgent", coordinator.ErrCapacityExceeded,
			"star topology at capacity", nil)
	}
	t.nodes[a.ID] = a
	t.order = append(t.order, a.ID)
	return nil
}

func (t *starTopology) RemoveAgent(id string) error {
	if _, exists := t.nodes[id]; !exists {
		return nil
	}
	delete(t.nodes, id)
	t.order = removeFromSlice(t.order, id)

	if id == t.coordinator {
		t.coordinator = ""
		for _, candidate := range t.order {
			t.coordinator = candidate
			break
		}
	}
	return nil
}

func (t *starTopology) spokes() []string {
	var out []string
	for _, id := range t.order {
		if id != t.coordinator {
			out = append(out, id)
		}
	}
	return out
}

func (t *starTopology) Neighbors(id string) []string {
	if _, ok := t.nodes[id]; !ok {
		return nil
	}
	if id == t.coordinator {
		return t.spokes()
	}
	if t.coordinator == "" {
		return nil
	}
	return []string{t.coordinator}
}

func (t *starTopology) RouteMessage(m *coordinator.Message) (*Path, error) {
	if _, ok := t.nodes[m.From]; !ok {
		return nil, coordinator.NewError("topology", "RouteMessage", coordinator.ErrNotFound, "unknown sender", nil)
	}

	if m.IsBroadcast() {
		if m.From == t.coordinator {
			hops := append([]string{t.coordinator}, t.spokes()...)
			return &Path{From: m.From, To: "broadcast", Hops: hops, HopCount: 1, Latency: 10 * time.Millisecond}, nil
		}
		// Spoke broadcast: spoke -> coordinator -> other spokes, two hops.
		hops := []string{m.From, t.coordinator}
		for _, s := range t.spokes() {
			if s != m.From {
				hops = append(hops, s)
			}
		}
		return &Path{From: m.From, To: "broadcast", Hops: hops, HopCount: 2, Latency: 20 * time.Millisecond}, nil
	}

	if _, ok := t.nodes[m.To]; !ok {
		return nil, coordinator.NewError("topology", "RouteMessage", coordinator.ErrNotFound, "unknown recipient", nil)
	}

	if m.From == t.coordinator || m.To == t.coordinator {
		return &Path{From: m.From, To: m.To, Hops: []string{m.From, m.To}, HopCount: 1, Latency: 10 * time.Millisecond}, nil
	}

	// Spoke to spoke: always via the coordinator.
	return &Path{From: m.From, To: m.To, Hops: []string{m.From, t.coordinator, m.To}, HopCount: 2, Latency: 20 * time.Millisecond}, nil
}

func (t *starTopology) RouteTask(tk *coordinator.Task, agents map[string]AgentView) (string, error) {
	var idleSpokes []AgentView
	for _, id := range t.spokes() {
		a, ok := agents[id]
		if !ok {
			continue
		}
		if a.Status == coordinator.AgentIdle {
			idleSpokes = append(idleSpokes, a)
		}
	}
	if len(idleSpokes) > 0 {
		id, err := routeTaskGeneric(t.spokes(), tk, agents)
		if err == nil {
			return id, nil
		}
	}
	if t.coordinator != "" {
		if _, ok := agents[t.coordinator]; ok {
			return t.coordinator, nil
		}
	}
	return "", coordinator.NewError("topology", "RouteTask", coordinator.ErrNoWorkersAvailable,
		"no candidate agent available", nil)
}

func (t *starTopology) CalculateMetrics() Metrics {
	spokes := t.spokes()
	connectivity := 0.0
	if t.coordinator != "" {
		connectivity = 1
	}
	efficiency := 0.0
	if len(spokes) > 0 {
		// spoke-coordinator is 1 hop, spoke-spoke is 2 hops; average over pairs.
		efficiency = 1 / 1.5
	} else if t.coordinator != "" {
		efficiency = 1
	}

	var bottlenecks []string
	if t.coordinator != "" {
		bottlenecks = append(bottlenecks, t.coordinator)
	}

	return Metrics{
		Efficiency:     efficiency,
		MessageLatency: 15 * time.Millisecond,
		LoadBalance:    t.loadBalance(),
		Connectivity:   connectivity,
		Bottlenecks:    bottlenecks,
	}
}

func (t *starTopology) loadBalance() float64 {
	spokes := t.spokes()
	if len(spokes) == 0 {
		return 1
	}
	return 1 // spoke load isn't visible to the topology directly; callers read pool stats for finer detail.
}

func (t *starTopology) Validate() bool {
	if t.coordinator == "" {
		return false
	}
	if _, ok := t.nodes[t.coordinator]; !ok {
		return false
	}
	return true
}

// Reorganize does nothing for star: load-based coordinator re-election
// needs live load figures, which the topology itself doesn't track (the
// pool does), so it happens only in ReorganizeWithLoads.
func (t *starTopology) Reorganize() {}

// ReorganizeWithLoads is the star-specific extension of Reorganize that
// takes current per-agent load so it can decide whether the coordinator
// is overloaded relative to its spokes.
func (t *starTopology) ReorganizeWithLoads(load map[string]int) {
	if t.coordinator == "" {
		return
	}
	spokes := t.spokes()
	if len(spokes) == 0 {
		return
	}
	spokeTotal := 0
	for _, s := range spokes {
		spokeTotal += load[s]
	}
	spokeAvg := float64(spokeTotal) / float64(len(spokes))
	coordLoad := float64(load[t.coordinator])
	if spokeAvg == 0 || coordLoad < spokeAvg*t.cfg.RebalanceLoadFactor {
		return
	}

	best := ""
	bestLoad := coordLoad
	for _, s := range spokes {
		if float64(load[s]) < bestLoad {
			best = s
			bestLoad = float64(load[s])
		}
	}
	if best != "" {
		t.coordinator = best
	}
}
