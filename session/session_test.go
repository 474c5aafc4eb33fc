package session

import (
	"context"
	"testing"
	"time"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/llmrouter"
	"github.com/agentmesh/coordinator/memory"
	"github.com/agentmesh/coordinator/pkg/store"
	"github.com/agentmesh/coordinator/pool"
	"github.com/agentmesh/coordinator/topology"
)

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	graph, err := topology.New(topology.Hierarchical, topology.Config{})
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	mem := memory.New(memory.Config{MaintenanceEvery: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })
	router := llmrouter.New(llmrouter.Config{})
	s := New("sess-1", "proj-1", "test session", graph, mem, router, store.NewMemory(), cfg)
	t.Cleanup(s.Terminate)
	return s
}

// A single implementation agent registered in a hierarchical session
// receives a task of its own type via the pool's dispatch strategy.
func TestSessionDispatchRoutesToPoolWorker(t *testing.T) {
	s := newTestSession(t, Config{})

	agent, err := s.AddAgent(coordinator.AgentImplementation, 3, pool.Config{})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	task := coordinator.NewTask(coordinator.TaskImplementation, "write the thing", 1)
	assignment, err := s.Dispatch(task)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if assignment.WorkerID != agent.ID {
		t.Fatalf("expected task assigned to %s, got %s", agent.ID, assignment.WorkerID)
	}
}

func TestDispatchWithNoPoolForTypeFails(t *testing.T) {
	s := newTestSession(t, Config{})
	task := coordinator.NewTask(coordinator.TaskResearch, "look into it", 1)
	if _, err := s.Dispatch(task); err == nil {
		t.Fatal("expected error dispatching to a type with no registered pool")
	}
}

func TestDispatchWhilePausedFails(t *testing.T) {
	s := newTestSession(t, Config{})
	if _, err := s.AddAgent(coordinator.AgentImplementation, 3, pool.Config{}); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	task := coordinator.NewTask(coordinator.TaskImplementation, "write the thing", 1)
	if _, err := s.Dispatch(task); err == nil {
		t.Fatal("expected dispatch to fail while paused")
	}
}

// Pause requires the session to currently be active; pausing twice in a
// row fails with ErrInvalidState rather than silently succeeding.
func TestPauseRequiresActiveStatus(t *testing.T) {
	s := newTestSession(t, Config{})
	ctx := context.Background()

	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	err := s.Pause(ctx)
	if err == nil {
		t.Fatal("expected pausing an already-paused session to fail")
	}
	if code, _ := coordinator.CodeOf(err); code != coordinator.ErrInvalidState {
		t.Fatalf("expected ErrInvalidState, got %v", code)
	}
}

// Pause takes a "pause" checkpoint before transitioning status, so the
// state at the moment of pausing is always recoverable.
func TestPauseCreatesPauseCheckpoint(t *testing.T) {
	s := newTestSession(t, Config{})
	ctx := context.Background()

	if err := s.Pause(ctx); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	checkpoints := s.Checkpoints()
	if len(checkpoints) != 1 || checkpoints[0].Reason != "pause" {
		t.Fatalf("expected one pause checkpoint, got %+v", checkpoints)
	}
}

// Resuming from a retained checkpoint restores tasks and agent status
// alongside shared context, not just shared context.
func TestResumeFromCheckpointRestoresFullState(t *testing.T) {
	s := newTestSession(t, Config{})
	ctx := context.Background()

	agent, err := s.AddAgent(coordinator.AgentImplementation, 2, pool.Config{})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	task := coordinator.NewTask(coordinator.TaskImplementation, "write the thing", 1)
	if _, err := s.Dispatch(task); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	s.SetSharedContext("objective", "ship the feature")

	cp, err := s.CreateCheckpoint(ctx, "manual", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	// Mutate state after the checkpoint: complete the task and overwrite shared context.
	s.CompleteTask(task.ID, true, time.Second, 1.0)
	s.SetSharedContext("objective", "something else")

	if err := s.Resume(ctx, cp.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if _, ok := s.activeTasks[task.ID]; !ok {
		t.Fatal("expected active task to be restored from the checkpoint")
	}
	if len(s.completedTasks) != 0 {
		t.Fatalf("expected completed tasks to be rolled back, got %d", len(s.completedTasks))
	}
	if s.sharedCtx["objective"] != "ship the feature" {
		t.Fatalf("expected shared context to be restored, got %v", s.sharedCtx)
	}
	if s.agents[agent.ID].Status != coordinator.AgentBusy {
		t.Fatalf("expected agent status to be restored to busy, got %s", s.agents[agent.ID].Status)
	}
}

// Resume with an unknown checkpoint ID fails rather than silently
// reactivating the session from whatever state it happens to be in.
func TestResumeWithUnknownCheckpointFails(t *testing.T) {
	s := newTestSession(t, Config{})
	err := s.Resume(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected an error resuming from an unknown checkpoint")
	}
	if code, _ := coordinator.CodeOf(err); code != coordinator.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", code)
	}
}

// With auto-checkpointing on and a short interval, the cooperative timer
// fires at least one reason="auto" checkpoint over a few intervals, and
// none while paused.
func TestAutoCheckpointFiresWhileActiveAndSkipsWhilePaused(t *testing.T) {
	s := newTestSession(t, Config{AutoCheckpoint: true, CheckpointInterval: 40 * time.Millisecond})

	time.Sleep(120 * time.Millisecond)
	checkpoints := s.Checkpoints()
	if len(checkpoints) == 0 {
		t.Fatal("expected at least one auto checkpoint to have fired")
	}
	for _, c := range checkpoints {
		if c.Reason != "auto" {
			t.Fatalf("expected reason 'auto', got %q", c.Reason)
		}
	}

	if err := s.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	countAtPause := len(s.Checkpoints())
	time.Sleep(100 * time.Millisecond)
	if got := len(s.Checkpoints()); got != countAtPause {
		t.Fatalf("expected no new checkpoints while paused, had %d now have %d", countAtPause, got)
	}
}

// CreateCheckpoint enforces retention: once MaxCheckpoints is exceeded
// the oldest record is dropped.
func TestCheckpointRetentionDropsOldest(t *testing.T) {
	s := newTestSession(t, Config{MaxCheckpoints: 2})
	ctx := context.Background()

	first, err := s.CreateCheckpoint(ctx, "manual", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if _, err := s.CreateCheckpoint(ctx, "manual", nil); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	third, err := s.CreateCheckpoint(ctx, "manual", nil)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	checkpoints := s.Checkpoints()
	if len(checkpoints) != 2 {
		t.Fatalf("expected retention to cap at 2 checkpoints, got %d", len(checkpoints))
	}
	for _, c := range checkpoints {
		if c.ID == first.ID {
			t.Fatal("expected the oldest checkpoint to have been dropped")
		}
	}
	if checkpoints[len(checkpoints)-1].ID != third.ID {
		t.Fatal("expected the most recent checkpoint to be retained last")
	}
}

// A checkpoint artifact persisted via CreateCheckpoint round-trips
// through the backing store unchanged.
func TestCheckpointArtifactRoundTripsThroughBackingStore(t *testing.T) {
	backing := store.NewMemory()
	graph, err := topology.New(topology.Mesh, topology.Config{})
	if err != nil {
		t.Fatalf("topology.New: %v", err)
	}
	mem := memory.New(memory.Config{MaintenanceEvery: time.Hour})
	t.Cleanup(func() { _ = mem.Close() })
	router := llmrouter.New(llmrouter.Config{})
	s := New("sess-roundtrip", "proj-1", "roundtrip session", graph, mem, router, backing, Config{PersistToDisk: true})
	t.Cleanup(s.Terminate)

	if _, err := s.AddAgent(coordinator.AgentResearch, 2, pool.Config{}); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	s.SetSharedContext("objective", "ship the feature")

	ctx := context.Background()
	if _, err := s.CreateCheckpoint(ctx, "manual", map[string]any{"note": "pre-deploy"}); err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}

	doc, ok, err := backing.Get(ctx, s.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted artifact")
	}

	artifact, err := unmarshalArtifact(doc)
	if err != nil {
		t.Fatalf("unmarshalArtifact: %v", err)
	}
	if artifact.ID != s.ID() {
		t.Fatalf("expected artifact id %s, got %s", s.ID(), artifact.ID)
	}
	if len(artifact.Agents) != 1 {
		t.Fatalf("expected 1 agent in artifact, got %d", len(artifact.Agents))
	}
	if artifact.CurrentState.SharedContext["objective"] != "ship the feature" {
		t.Fatalf("expected shared context to round-trip, got %v", artifact.CurrentState.SharedContext)
	}
	if len(artifact.Checkpoints) != 1 || artifact.Checkpoints[0].Reason != "manual" {
		t.Fatalf("expected one manual checkpoint record, got %+v", artifact.Checkpoints)
	}
}

// CompleteTask moves a dispatched task out of the active set and into
// completed or failed, and returns the worker to idle.
func TestCompleteTaskMovesTaskAndFreesWorker(t *testing.T) {
	s := newTestSession(t, Config{})
	agent, err := s.AddAgent(coordinator.AgentTesting, 1, pool.Config{})
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	task := coordinator.NewTask(coordinator.TaskTesting, "run the suite", 1)
	if _, err := s.Dispatch(task); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	s.CompleteTask(task.ID, true, 5*time.Second, 0.9)

	if len(s.completedTasks) != 1 {
		t.Fatalf("expected 1 completed task, got %d", len(s.completedTasks))
	}
	if _, stillActive := s.activeTasks[task.ID]; stillActive {
		t.Fatal("expected task to be removed from the active set")
	}

	workers := s.pools[coordinator.AgentTesting].Workers()
	if workers[agent.ID].Status != coordinator.AgentIdle {
		t.Fatalf("expected worker to return to idle, got %s", workers[agent.ID].Status)
	}
}
