package topology

import (
	"math"
	"sort"
	"time"

	coordinator "github.com/agentmesh/coordinator"
)

// hierarchicalTopology partitions agents into ordered layers (conventionally
// architects -> reviewers -> implementers), with intra-layer peer edges and
// bidirectional edges to immediately adjacent layers.
type hierarchicalTopology struct {
	cfg Config

	order []string            // insertion order of agent IDs, for RouteTask tie-breaks
	nodes map[string]AgentView
	layer map[string]int // agent id -> layer index
	layers [][]string   // layers[i] = ordered agent ids in that layer, insertion order preserved
}

func newHierarchical(cfg Config) *hierarchicalTopology {
	return &hierarchicalTopology{
		cfg:    cfg,
		nodes:  make(map[string]AgentView),
		layer:  make(map[string]int),
		layers: make([][]string, cfg.Layers),
	}
}

func (t *hierarchicalTopology) Kind() Kind { return Hierarchical }

// layerFor assigns a layer index by agent type. Architects go to layer 0
// (top), testers/implementers/debuggers to the bottom layer, everything
// else (review, research, documentation) to the middle layer(s).
func (t *hierarchicalTopology) layerFor(typ coordinator.AgentType) int {
	n := len(t.layers)
	if n == 1 {
		return 0
	}
	switch typ {
	case coordinator.AgentArchitect:
		return 0
	case coordinator.AgentImplementation, coordinator.AgentTesting, coordinator.AgentDebugger:
		return n - 1
	default:
		if n <= 2 {
			return n - 1
		}
		return n / 2
	}
}

func (t *hierarchicalTopology) AddAgent(a AgentView) error {
	if len(t.nodes) >= t.cfg.MaxAgents {
		return coordinator.NewError("topology", "AddAgent", coordinator.ErrCapacityExceeded,
			"hierarchical topology at capacity", nil)
	}
	if _, exists := t.nodes[a.ID]; exists {
		t.nodes[a.ID] = a
		return nil
	}
	l := t.layerFor(a.Type)
	t.nodes[a.ID] = a
	t.layer[a.ID] = l
	t.layers[l] = append(t.layers[l], a.ID)
	t.order = append(t.order, a.ID)
	return nil
}

func (t *hierarchicalTopology) RemoveAgent(id string) error {
	if _, exists := t.nodes[id]; !exists {
		return nil
	}
	l := t.layer[id]
	t.layers[l] = removeFromSlice(t.layers[l], id)
	delete(t.nodes, id)
	delete(t.layer, id)
	t.order = removeFromSlice(t.order, id)
	return nil
}

func removeFromSlice(s []string, id string) []string {
	out := s[:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// coordinatorID is the first agent of the top non-empty layer.
func (t *hierarchicalTopology) coordinatorID() string {
	for _, l := range t.layers {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}

func (t *hierarchicalTopology) Neighbors(id string) []string {
	l, ok := t.layer[id]
	if !ok {
		return nil
	}
	var out []string
	for _, peer := range t.layers[l] {
		if peer != id {
			out = append(out, peer)
		}
	}
	if l > 0 {
		out = append(out, t.layers[l-1]...)
	}
	if l < len(t.layers)-1 {
		out = append(out, t.layers[l+1]...)
	}
	return out
}

func (t *hierarchicalTopology) RouteMessage(m *coordinator.Message) (*Path, error) {
	if m.IsBroadcast() {
		var hops []string
		hops = append(hops, m.From)
		for _, l := range t.layers {
			for _, id := range l {
				if id != m.From {
					hops = append(hops, id)
				}
			}
		}
		return &Path{From: m.From, To: "broadcast", Hops: hops, HopCount: len(hops) - 1, Latency: time.Duration(len(hops)-1) * 10 * time.Millisecond}, nil
	}

	fromL, fromOK := t.layer[m.From]
	toL, toOK := t.layer[m.To]
	if !fromOK || !toOK {
		return nil, coordinator.NewError("topology", "RouteMessage", coordinator.ErrNotFound,
			"unknown agent in route", nil)
	}

	if fromL == toL {
		return &Path{From: m.From, To: m.To, Hops: []string{m.From, m.To}, HopCount: 1, Latency: 10 * time.Millisecond}, nil
	}

	// Adjacent layers: one hop.
	if absInt(fromL-toL) == 1 {
		return &Path{From: m.From, To: m.To, Hops: []string{m.From, m.To}, HopCount: 1, Latency: 10 * time.Millisecond}, nil
	}

	// Non-adjacent: traverse intervening layers via the coordinator chain.
	hops := []string{m.From}
	step := 1
	if toL < fromL {
		step = -1
	}
	for l := fromL + step; ; l += step {
		if l == toL {
			break
		}
		if len(t.layers[l]) > 0 {
			hops = append(hops, t.layers[l][0])
		}
	}
	hops = append(hops, m.To)
	return &Path{From: m.From, To: m.To, Hops: hops, HopCount: len(hops) - 1, Latency: time.Duration(len(hops)-1) * 10 * time.Millisecond}, nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (t *hierarchicalTopology) RouteTask(tk *coordinator.Task, agents map[string]AgentView) (string, error) {
	return routeTaskGeneric(t.order, tk, agents)
}

// routeTaskGeneric implements the common-contract tie-break rule shared by
// every variant: matching-type agent first, then any idle agent, ties
// broken by load ascending then insertion order.
func routeTaskGeneric(order []string, tk *coordinator.Task, agents map[string]AgentView) (string, error) {
	var typed, idle []AgentView
	for _, id := range order {
		a, ok := agents[id]
		if !ok {
			continue
		}
		if string(a.Type) == string(tk.Type) {
			typed = append(typed, a)
		}
		if a.Status == coordinator.AgentIdle {
			idle = append(idle, a)
		}
	}
	pick := func(cands []AgentView) string {
		if len(cands) == 0 {
			return ""
		}
		sort.SliceStable(cands, func(i, j int) bool {
			if cands[i].Load != cands[j].Load {
				return cands[i].Load < cands[j].Load
			}
			return indexOf(order, cands[i].ID) < indexOf(order, cands[j].ID)
		})
		return cands[0].ID
	}
	if id := pick(typed); id != "" {
		return id, nil
	}
	if id := pick(idle); id != "" {
		return id, nil
	}
	return "", coordinator.NewError("topology", "RouteTask", coordinator.ErrNoWorkersAvailable,
		"no candidate agent available", nil)
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return len(order)
}

func (t *hierarchicalTopology) CalculateMetrics() Metrics {
	var loads []float64
	var ids []string
	for id, a := range t.nodes {
		loads = append(loads, float64(a.Load))
		ids = append(ids, id)
	}
	avgPath := t.avgPathLength()
	efficiency := 0.0
	if avgPath > 0 {
		efficiency = 1 / avgPath
	}
	latency := time.Duration(avgPath*10) * time.Millisecond

	mean, variance := meanVariance(loads)
	maxVariance := mean*mean + 1 // avoid div by zero while scaling with load magnitude
	loadBalance := 1 - variance/maxVariance
	if loadBalance < 0 {
		loadBalance = 0
	}

	std := math.Sqrt(variance)
	var bottlenecks []string
	for i, l := range loads {
		if l > mean+std {
			bottlenecks = append(bottlenecks, ids[i])
		}
	}

	return Metrics{
		Efficiency:     efficiency,
		MessageLatency: latency,
		LoadBalance:    loadBalance,
		Connectivity:   t.connectivityScore(),
		Bottlenecks:    bottlenecks,
	}
}

// avgPathLength approximates the average hop count as the number of
// populated layers minus 0.5, or 1 when at most one layer is populated.
func (t *hierarchicalTopology) avgPathLength() float64 {
	populated := 0
	for _, l := range t.layers {
		if len(l) > 0 {
			populated++
		}
	}
	if populated <= 1 {
		return 1
	}
	return float64(populated) - 0.5
}

func meanVariance(xs []float64) (mean, variance float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	variance = sq / float64(len(xs))
	return
}

func (t *hierarchicalTopology) connectivityScore() float64 {
	if !t.Validate() {
		return 0
	}
	return 1
}

// Validate requires a non-empty top layer. An empty layer between two
// populated ones does not fail validation: RouteMessage passes over it,
// hopping through the first agent of each populated layer in between.
func (t *hierarchicalTopology) Validate() bool {
	return len(t.layers) > 0 && len(t.layers[0]) > 0
}

func (t *hierarchicalTopology) Reorganize() {
	// Re-elect the coordinator implicitly: layers are already ordered by
	// insertion, and coordinatorID() always reads layers[0][0], so removal
	// of the prior coordinator (see RemoveAgent) naturally promotes the
	// next agent. Nothing else to rebalance for this variant.
}
