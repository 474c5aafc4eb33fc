// Package session implements the top-level orchestration unit: one
// Session binds a topology graph, a set of per-type worker pools, a
// tiered memory store and an LLM router around a fixed set of
// session-owned agent records, and exposes task dispatch, checkpoint and
// recovery.
//
// Session owns every agent record exclusively; topology and pool only
// ever see projections (topology.AgentView) or borrowed pointers handed
// to them at construction. Every operation that touches more than one
// subsystem acquires them in a fixed order — session, then pool, then
// topology, then memory, then router — so two goroutines dispatching
// concurrently can never deadlock against each other.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/llmrouter"
	"github.com/agentmesh/coordinator/memory"
	"github.com/agentmesh/coordinator/pkg/logger"
	"github.com/agentmesh/coordinator/pkg/obs"
	"github.com/agentmesh/coordinator/pkg/store"
	"github.com/agentmesh/coordinator/pool"
	"github.com/agentmesh/coordinator/topology"
)

var log = logger.With("session")

// Status is the session's lifecycle state.
type Status string

const (
	StatusActive      Status = "active"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusTerminated  Status = "terminated"
)

// Session is one running swarm: a topology, a set of type-keyed pools, a
// tiered memory store, an LLM router, and the agent records they all
// operate on.
type Session struct {
	mu sync.Mutex

	id        string
	projectID string
	name      string

	cfg Config

	graph topology.Graph
	pools map[coordinator.AgentType]*pool.Pool
	mem   *memory.Store
	llm   *llmrouter.Router

	agents map[string]*coordinator.Agent

	taskQueue      []*coordinator.Task
	activeTasks    map[string]*coordinator.Task
	completedTasks []*coordinator.Task
	failedTasks    []*coordinator.Task

	checkpoints []CheckpointRecord
	sharedCtx   map[string]any

	status    Status
	startedAt time.Time
	lastActive time.Time
	completedAt *time.Time

	backingStore store.Store
	metrics      *obs.Metrics

	stopCh     chan struct{}
	stopped    bool
}

// SetMetrics attaches a metrics sink; nil is safe and simply disables
// recording. Not part of New's signature since metrics are optional and
// process-wide, constructed once by the manager and shared across
// sessions.
func (s *Session) SetMetrics(m *obs.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// New constructs a Session around an already-built topology graph (pools
// are created per agent type as AddAgent is called), and starts the cooperative auto-checkpoint timer if cfg.AutoCheckpoint is
// set.
func New(id, projectID, name string, graph topology.Graph, mem *memory.Store, llm *llmrouter.Router, backingStore store.Store, cfg Config) *Session {
	cfg.setDefaults()
	s := &Session{
		id:           id,
		projectID:    projectID,
		name:         name,
		cfg:          cfg,
		graph:        graph,
		pools:        make(map[coordinator.AgentType]*pool.Pool),
		mem:          mem,
		llm:          llm,
		agents:       make(map[string]*coordinator.Agent),
		activeTasks:  make(map[string]*coordinator.Task),
		sharedCtx:    make(map[string]any),
		status:       StatusActive,
		startedAt:    time.Now(),
		lastActive:   time.Now(),
		backingStore: backingStore,
		stopCh:       make(chan struct{}),
	}
	if cfg.AutoCheckpoint {
		go s.autoCheckpointLoop()
	}
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// ProjectID returns the project this session belongs to.
func (s *Session) ProjectID() string { return s.projectID }

// TopologyKind returns the kind of topology graph this session runs.
func (s *Session) TopologyKind() topology.Kind { return s.graph.Kind() }

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AddAgent registers a new agent of the given type: the session creates
// the authoritative Agent record, the pool for that type (created on
// first use) adopts it as a worker, and the topology graph learns its
// routing projection. Acquired in the mandated order: session state,
// then the pool, then topology.
func (s *Session) AddAgent(agentType coordinator.AgentType, maxConcurrentTasks int, poolCfg pool.Config) (*coordinator.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.agents) >= s.cfg.MaxAgents {
		return nil, coordinator.NewError("session", "AddAgent", coordinator.ErrCapacityExceeded,
			"session has reached its maximum agent count", nil)
	}

	a := coordinator.NewAgent(agentType, maxConcurrentTasks)
	a.Status = coordinator.AgentIdle
	s.agents[a.ID] = a

	p, ok := s.pools[agentType]
	if !ok {
		poolCfg.AgentType = agentType
		p = pool.NewWithWorkers(string(agentType)+"-pool", poolCfg, nil)
		s.pools[agentType] = p
	}
	p.AddWorker(a)

	if err := s.graph.AddAgent(topology.AgentView{
		ID:     a.ID,
		Type:   a.Type,
		Status: a.Status,
		Load:   0,
	}); err != nil {
		delete(s.agents, a.ID)
		return nil, err
	}

	s.touchLocked()
	return a, nil
}

// AgentViews returns a point-in-time topology projection of every
// session-owned agent, for callers that need to feed topology.RouteTask
// or topology.CalculateMetrics.
func (s *Session) AgentViews() map[string]topology.AgentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentViewsLocked()
}

func (s *Session) agentViewsLocked() map[string]topology.AgentView {
	out := make(map[string]topology.AgentView, len(s.agents))
	for id, a := range s.agents {
		out[id] = topology.AgentView{ID: id, Type: a.Type, Status: a.Status, Load: len(a.CurrentTasks)}
	}
	return out
}

// Dispatch queues a task for its type's pool. The pool's own
// load-balancing strategy picks the worker; topology is not consulted,
// per the session's ownership of agent state and topology's role as a
// routing projection, not a dispatch gate.
func (s *Session) Dispatch(task *coordinator.Task) (*pool.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, coordinator.NewError("session", "Dispatch", coordinator.ErrPoolInactive,
			"session is not active", nil)
	}

	p, ok := s.pools[coordinator.AgentType(task.Type)]
	if !ok {
		return nil, coordinator.NewError("session", "Dispatch", coordinator.ErrNoWorkersAvailable,
			"no pool registered for task type", nil)
	}

	assignment, err := p.Distribute(task)
	if err != nil {
		s.taskQueue = append(s.taskQueue, task)
		s.touchLocked()
		return nil, err
	}

	s.activeTasks[task.ID] = task
	task.Status = coordinator.TaskRunning
	now := time.Now()
	task.StartedAt = &now
	s.touchLocked()
	s.metrics.RecordDispatch(context.Background())
	return assignment, nil
}

// CompleteTask records a task outcome against the owning pool and moves
// the task record between the active/completed/failed lists.
func (s *Session) CompleteTask(taskID string, success bool, executionTime time.Duration, quality float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.activeTasks[taskID]
	if !ok {
		return
	}
	delete(s.activeTasks, taskID)

	if p, ok := s.pools[coordinator.AgentType(task.Type)]; ok {
		p.Complete(taskID, task.Type, success, executionTime, quality)
	}

	now := time.Now()
	task.CompletedAt = &now
	task.ExecutionTime = executionTime
	task.QualityScore = quality
	if success {
		task.Status = coordinator.TaskCompleted
		s.completedTasks = append(s.completedTasks, task)
	} else {
		task.Status = coordinator.TaskFailed
		s.failedTasks = append(s.failedTasks, task)
	}
	s.touchLocked()
	s.metrics.RecordTaskCompletion(context.Background(), string(task.Type), success, executionTime.Seconds())
}

// SetSharedContext writes a key into the session's shared context blob,
// visible to every agent and carried across checkpoints.
func (s *Session) SetSharedContext(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharedCtx[key] = value
	s.touchLocked()
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now()
}

// Pause stops new dispatch from succeeding and halts the auto-checkpoint
// timer's effect (the loop keeps running but skips while paused).
// Requires the session to currently be active; a reason="pause"
// checkpoint is taken before the transition so the state at the moment
// of pausing is recoverable via Resume.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusActive {
		status := s.status
		s.mu.Unlock()
		return coordinator.NewError("session", "Pause", coordinator.ErrInvalidState,
			"session must be active to pause, current status is "+string(status), nil)
	}
	s.mu.Unlock()

	if _, err := s.CreateCheckpoint(ctx, "pause", nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return coordinator.NewError("session", "Pause", coordinator.ErrInvalidState,
			"session status changed while the pause checkpoint was being taken", nil)
	}
	s.status = StatusPaused
	s.touchLocked()
	log.Info("session paused", "session_id", s.id)
	return nil
}

// Resume reactivates a paused session for new dispatch. When
// checkpointID is non-empty it must name one of the session's retained
// checkpoints; Resume restores that checkpoint's full state (agents,
// tasks, working memory, shared context) before reactivating.
func (s *Session) Resume(ctx context.Context, checkpointID string) error {
	if checkpointID != "" {
		s.mu.Lock()
		var rec CheckpointRecord
		found := false
		for _, c := range s.checkpoints {
			if c.ID == checkpointID {
				rec = c
				found = true
				break
			}
		}
		s.mu.Unlock()
		if !found {
			return coordinator.NewError("session", "Resume", coordinator.ErrNotFound,
				"no retained checkpoint with id "+checkpointID, nil)
		}
		s.RestoreFromCheckpoint(rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPaused {
		s.status = StatusActive
	}
	s.touchLocked()
	log.Info("session resumed", "session_id", s.id, "checkpoint_id", checkpointID)
	return nil
}

// Terminate tears down every pool, stops the auto-checkpoint loop, and
// marks the session terminated; the memory store is left open for its
// owner to Close. Terminate is
// final: a terminated session cannot be resumed.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusTerminated {
		return
	}
	for _, p := range s.pools {
		p.Terminate()
	}
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.status = StatusTerminated
	now := time.Now()
	s.completedAt = &now
}

// CreateCheckpoint snapshots the session's current state into a new
// CheckpointRecord, enforcing the configured retention by dropping the
// oldest checkpoint once MaxCheckpoints is exceeded, and persists the
// full artifact to the backing store if one was supplied and
// PersistToDisk is set.
func (s *Session) CreateCheckpoint(ctx context.Context, reason string, metadata map[string]any) (CheckpointRecord, error) {
	s.mu.Lock()
	rec := CheckpointRecord{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Timestamp: time.Now(),
		Reason:    reason,
		Snapshot:  s.snapshotLocked(),
		Metadata:  metadata,
	}
	s.checkpoints = append(s.checkpoints, rec)
	if len(s.checkpoints) > s.cfg.MaxCheckpoints {
		s.checkpoints = s.checkpoints[len(s.checkpoints)-s.cfg.MaxCheckpoints:]
	}
	artifact := s.artifactLocked()
	metrics := s.metrics
	s.mu.Unlock()

	metrics.RecordCheckpoint(ctx)
	if s.backingStore != nil && s.cfg.PersistToDisk {
		if err := s.persist(ctx, artifact); err != nil {
			return rec, coordinator.NewError("session", "CreateCheckpoint", coordinator.ErrCheckpointFailed,
				"failed to persist checkpoint artifact", err)
		}
	}
	return rec, nil
}

func (s *Session) snapshotLocked() CurrentState {
	active := make(map[string]string, len(s.agents))
	for id, a := range s.agents {
		active[id] = string(a.Status)
	}
	st := CurrentState{
		ActiveAgents:   active,
		ActiveTasks:    taskIDs(mapValues(s.activeTasks)),
		TaskQueue:      taskIDs(s.taskQueue),
		CompletedTasks: taskIDs(s.completedTasks),
		FailedTasks:    taskIDs(s.failedTasks),
		WorkingMemory:  s.workingMemorySnapshot(),
		SharedContext:  cloneAnyMap(s.sharedCtx),
		TopologyConfig: make(map[string]any),
		NextActions:    nil,
	}
	return cloneCurrentState(st)
}

// workingMemorySnapshot reads every entry currently in the memory
// store's working tier, keyed by its memory key, for inclusion in a
// checkpoint artifact.
func (s *Session) workingMemorySnapshot() map[string]any {
	out := make(map[string]any)
	if s.mem == nil {
		return out
	}
	working := memory.Working
	for _, e := range s.mem.Search(memory.SearchFilter{Tier: &working}) {
		out[e.Key] = e.Value
	}
	return out
}

func mapValues(m map[string]*coordinator.Task) []*coordinator.Task {
	out := make([]*coordinator.Task, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}

func taskIDs(tasks []*coordinator.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func (s *Session) artifactLocked() Artifact {
	agents := make([]AgentSnapshot, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, AgentSnapshot{
			ID:           a.ID,
			Type:         a.Type,
			Status:       a.Status,
			CurrentTasks: append([]string(nil), a.CurrentTasks...),
		})
	}
	return Artifact{
		ID:             s.id,
		ProjectID:      s.projectID,
		Name:           s.name,
		Topology:       string(s.graph.Kind()),
		Status:         string(s.status),
		Agents:         agents,
		CurrentState:   s.snapshotLocked(),
		Checkpoints:    append([]CheckpointRecord(nil), s.checkpoints...),
		TasksCompleted: len(s.completedTasks),
		TasksTotal:     len(s.completedTasks) + len(s.failedTasks) + len(s.activeTasks) + len(s.taskQueue),
		StartedAt:      s.startedAt,
		LastActiveAt:   s.lastActive,
		CompletedAt:    s.completedAt,
		Config:         s.cfg,
		Metadata:       map[string]any{},
	}
}

func (s *Session) persist(ctx context.Context, artifact Artifact) error {
	doc, err := marshalArtifact(artifact)
	if err != nil {
		return err
	}
	return s.backingStore.Put(ctx, s.id, doc)
}

// Checkpoints returns a point-in-time copy of the session's retained
// checkpoint history.
func (s *Session) Checkpoints() []CheckpointRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CheckpointRecord(nil), s.checkpoints...)
}

// RestoreFromCheckpoint replaces the session's task bookkeeping, agent
// status, working memory and shared context with the state captured in
// rec. Task IDs the session still holds a live record for keep that
// record (so in-flight Task fields like Description survive); any ID
// the snapshot names that the session no longer recognizes — the
// common case after a process restart — is rebuilt as a minimal
// stand-in carrying only its ID and the status implied by the bucket it
// was snapshotted into. Pool and agent membership are not replayed:
// live worker records stay as they are, recovery is scoped to
// task/context/memory state, not agent identity.
func (s *Session) RestoreFromCheckpoint(rec CheckpointRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := cloneCurrentState(rec.Snapshot)

	known := make(map[string]*coordinator.Task, len(s.activeTasks)+len(s.taskQueue)+len(s.completedTasks)+len(s.failedTasks))
	for _, t := range s.activeTasks {
		known[t.ID] = t
	}
	for _, t := range s.taskQueue {
		known[t.ID] = t
	}
	for _, t := range s.completedTasks {
		known[t.ID] = t
	}
	for _, t := range s.failedTasks {
		known[t.ID] = t
	}
	lookupTask := func(id string, status coordinator.TaskStatus) *coordinator.Task {
		if t, ok := known[id]; ok {
			return t
		}
		return &coordinator.Task{ID: id, Status: status}
	}

	activeTasks := make(map[string]*coordinator.Task, len(snap.ActiveTasks))
	for _, id := range snap.ActiveTasks {
		activeTasks[id] = lookupTask(id, coordinator.TaskRunning)
	}
	taskQueue := make([]*coordinator.Task, 0, len(snap.TaskQueue))
	for _, id := range snap.TaskQueue {
		taskQueue = append(taskQueue, lookupTask(id, coordinator.TaskPending))
	}
	completedTasks := make([]*coordinator.Task, 0, len(snap.CompletedTasks))
	for _, id := range snap.CompletedTasks {
		completedTasks = append(completedTasks, lookupTask(id, coordinator.TaskCompleted))
	}
	failedTasks := make([]*coordinator.Task, 0, len(snap.FailedTasks))
	for _, id := range snap.FailedTasks {
		failedTasks = append(failedTasks, lookupTask(id, coordinator.TaskFailed))
	}

	s.activeTasks = activeTasks
	s.taskQueue = taskQueue
	s.completedTasks = completedTasks
	s.failedTasks = failedTasks

	for id, status := range snap.ActiveAgents {
		if a, ok := s.agents[id]; ok {
			a.Status = coordinator.AgentStatus(status)
		}
	}

	if s.mem != nil {
		for key, value := range snap.WorkingMemory {
			_, _ = s.mem.Store(memory.StoreRequest{
				Key:      key,
				Value:    value,
				Tier:     memory.Working,
				Category: memory.CategoryContext,
			})
		}
	}

	s.sharedCtx = snap.SharedContext
	s.touchLocked()
	log.Info("session restored from checkpoint", "session_id", s.id, "checkpoint_id", rec.ID, "reason", rec.Reason)
}

// autoCheckpointLoop fires a reason="auto" checkpoint every
// cfg.CheckpointInterval, cooperatively: a checkpoint in progress when
// the timer fires is never queued twice, and the loop skips entirely
// while the session is paused or terminated.
func (s *Session) autoCheckpointLoop() {
	timer := time.NewTimer(s.cfg.CheckpointInterval)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.mu.Lock()
			status := s.status
			s.mu.Unlock()
			if status == StatusActive {
				_, _ = s.CreateCheckpoint(context.Background(), "auto", nil)
			}
			timer.Reset(s.cfg.CheckpointInterval)
		}
	}
}
