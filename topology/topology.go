// Package topology implements the communication graph over agent nodes:
// hierarchical, mesh, and star variants sharing one contract.
//
// Nodes are referenced by agent ID only — the topology owns edges, the
// session owns agent records — so switching an agent between topology
// instances never touches its identity or state.
package topology

import (
	"time"

	coordinator "github.com/agentmesh/coordinator"
)

// Kind is the closed set of topology variants.
type Kind string

const (
	Hierarchical Kind = "hierarchical"
	Mesh         Kind = "mesh"
	Star         Kind = "star"
)

// Path describes a route computed by RouteMessage.
type Path struct {
	From    string
	To      string // "broadcast" for broadcast routes
	Hops    []string
	HopCount int
	Latency time.Duration
}

// Metrics summarizes the current shape of the graph.
type Metrics struct {
	Efficiency     float64
	MessageLatency time.Duration
	LoadBalance    float64
	Connectivity   float64
	Bottlenecks    []string
}

// AgentView is the minimal agent information the topology needs to make
// routing decisions; it never holds the authoritative Agent record,
// only a read-only projection supplied by the caller (the session).
type AgentView struct {
	ID     string
	Type   coordinator.AgentType
	Status coordinator.AgentStatus
	Load   int // len(CurrentTasks)
}

// Graph is the contract every topology variant implements.
type Graph interface {
	Kind() Kind
	AddAgent(a AgentView) error
	RemoveAgent(id string) error
	Neighbors(id string) []string
	RouteMessage(m *coordinator.Message) (*Path, error)
	RouteTask(t *coordinator.Task, agents map[string]AgentView) (string, error)
	CalculateMetrics() Metrics
	Validate() bool
	Reorganize()
}

// Config bundles the construction-time parameters for every variant.
// Only the fields relevant to the chosen Kind are consulted.
type Config struct {
	MaxAgents           int
	CoordinatorID       string // required for Star
	Layers              int    // hierarchical layer count, default 3
	RebalanceLoadFactor float64 // star re-election threshold multiplier, default 5
}

func (c *Config) setDefaults() {
	if c.MaxAgents <= 0 {
		c.MaxAgents = 100
	}
	if c.Layers <= 0 {
		c.Layers = 3
	}
	if c.RebalanceLoadFactor <= 0 {
		c.RebalanceLoadFactor = 5
	}
}

// New constructs a Graph for the given kind, dispatching on a closed
// switch the same way llms.LLMRegistry.CreateLLMFromConfig picks a
// provider constructor from a config.Type string.
func New(kind Kind, cfg Config) (Graph, error) {
	cfg.setDefaults()
	switch kind {
	case Hierarchical:
		return newHierarchical(cfg), nil
	case Mesh:
		return newMesh(cfg), nil
	case Star:
		if cfg.CoordinatorID == "" {
			return nil, coordinator.NewError("topology", "New", coordinator.ErrInvalidConfig,
				"star topology requires a coordinator id", nil)
		}
		return newStar(cfg), nil
	default:
		return nil, coordinator.NewError("topology", "New", coordinator.ErrInvalidConfig,
			"unknown topology kind: "+string(kind), nil)
	}
}
