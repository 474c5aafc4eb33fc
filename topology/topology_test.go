package topology

import (
	"testing"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func view(id string, typ coordinator.AgentType, status coordinator.AgentStatus, load int) AgentView {
	return AgentView{ID: id, Type: typ, Status: status, Load: load}
}

func TestHierarchicalRoutingAndValidate(t *testing.T) {
	g, err := New(Hierarchical, Config{MaxAgents: 10})
	require.NoError(t, err)

	require.NoError(t, g.AddAgent(view("A", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("R", coordinator.AgentReview, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("I", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))

	assert.True(t, g.Validate())

	task := coordinator.NewTask(coordinator.TaskImplementation, "build it", 1)
	agentID, err := g.RouteTask(task, map[string]AgentView{
		"A": view("A", coordinator.AgentArchitect, coordinator.AgentIdle, 0),
		"R": view("R", coordinator.AgentReview, coordinator.AgentIdle, 0),
		"I": view("I", coordinator.AgentImplementation, coordinator.AgentIdle, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "I", agentID)

	require.NoError(t, g.RemoveAgent("A"))
	require.NoError(t, g.RemoveAgent("R"))
	require.NoError(t, g.RemoveAgent("I"))
	assert.False(t, g.Validate(), "empty top layer must fail validation")
}

func TestHierarchicalConnectivityAfterRandomOps(t *testing.T) {
	g, err := New(Hierarchical, Config{MaxAgents: 10})
	require.NoError(t, err)
	require.NoError(t, g.AddAgent(view("A1", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("A2", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("I1", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))
	require.NoError(t, g.RemoveAgent("A1"))
	assert.True(t, g.Validate())
	require.NoError(t, g.AddAgent(view("T1", coordinator.AgentTesting, coordinator.AgentIdle, 0)))
	assert.True(t, g.Validate())
}

func TestMeshRouteMessageAlwaysOneHop(t *testing.T) {
	g, err := New(Mesh, Config{MaxAgents: 10})
	require.NoError(t, err)
	require.NoError(t, g.AddAgent(view("a", coordinator.AgentResearch, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("b", coordinator.AgentResearch, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("c", coordinator.AgentResearch, coordinator.AgentIdle, 0)))

	for _, pair := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "c"}} {
		msg := coordinator.NewMessage(pair[0], pair[1], coordinator.MessageCoordination, "hi", 1)
		path, err := g.RouteMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, 1, path.HopCount)
	}
}

func TestStarBottleneckAlwaysFlagsCoordinator(t *testing.T) {
	g, err := New(Star, Config{MaxAgents: 10, CoordinatorID: "C"})
	require.NoError(t, err)
	require.NoError(t, g.AddAgent(view("C", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S1", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S2", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))

	metrics := g.CalculateMetrics()
	assert.Contains(t, metrics.Bottlenecks, "C")
}

func TestStarSpokeToSpokeViaCoordinator(t *testing.T) {
	g, err := New(Star, Config{MaxAgents: 10, CoordinatorID: "C"})
	require.NoError(t, err)
	require.NoError(t, g.AddAgent(view("C", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S1", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S2", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))

	msg := coordinator.NewMessage("S1", "S2", coordinator.MessageCoordination, "hi", 1)
	path, err := g.RouteMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, 2, path.HopCount)
	assert.Equal(t, []string{"S1", "C", "S2"}, path.Hops)
}

func TestStarCoordinatorReelectionOnRemoval(t *testing.T) {
	g, err := New(Star, Config{MaxAgents: 10, CoordinatorID: "C"})
	require.NoError(t, err)
	require.NoError(t, g.AddAgent(view("C", coordinator.AgentArchitect, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S1", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))
	require.NoError(t, g.AddAgent(view("S2", coordinator.AgentImplementation, coordinator.AgentIdle, 0)))

	require.NoError(t, g.RemoveAgent("C"))

	star := g.(*starTopology)
	assert.Equal(t, "S1", star.CoordinatorID(), "first remaining agent by insertion order becomes coordinator")

	metrics := g.CalculateMetrics()
	assert.Contains(t, metrics.Bottlenecks, "S1")
}

func TestStarConstructionRequiresCoordinator(t *testing.T) {
	_, err := New(Star, Config{MaxAgents: 10})
	require.Error(t, err)
	code, ok := coordinator.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coordinator.ErrInvalidConfig, code)
}
