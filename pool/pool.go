// Package pool implements worker lifecycle and load-balanced task
// distribution: a Pool owns a set of agents of one type, a FIFO overflow
// queue, and a dispatch strategy.
//
// Grounded on the shared-state pattern in the teacher's team package
// (RWMutex-guarded running counters copied out to callers rather than
// exposed live) and on its service-oriented split of concerns.
package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/pkg/logger"
)

var log = logger.With("pool")

// Status is the pool's lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusTerminated Status = "terminated"
)

// Config configures a Pool at construction.
type Config struct {
	Name        string
	AgentType   coordinator.AgentType
	MinWorkers  int
	MaxWorkers  int
	Strategy    Strategy
}

func (c *Config) setDefaults() {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.Strategy == "" {
		c.Strategy = LeastLoaded
	}
}

// Assignment is the record returned by Distribute when a task is handed
// to a worker immediately.
type Assignment struct {
	WorkerID                string
	TaskID                  string
	AssignedAt              time.Time
	EstimatedCompletionTime time.Duration
}

// Stats is the pool's running-statistics snapshot.
type Stats struct {
	TotalTasksProcessed int
	TotalTasksFailed    int
	AverageTaskTime      time.Duration
	QueueDepth          int
	WorkerCount         int
}

// Pool owns a set of agents of one type and dispatches tasks to them.
type Pool struct {
	mu sync.RWMutex

	id     string
	cfg    Config
	status Status

	order   []string // worker insertion order
	workers map[string]*coordinator.Agent

	queue []*coordinator.Task

	rrCursor int
	stats    Stats
}

// New creates a pool and immediately spawns MinWorkers agents of the
// configured type with default capabilities and resource limits.
func New(id string, cfg Config) *Pool {
	cfg.setDefaults()
	p := &Pool{
		id:      id,
		cfg:     cfg,
		status:  StatusActive,
		workers: make(map[string]*coordinator.Agent),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnWorkerLocked()
	}
	return p
}

// NewWithWorkers creates a pool seeded with caller-supplied agents
// instead of spawning defaults; used by the session manager, which owns
// the concrete agent records and hands them to the pool that will
// dispatch their work.
func NewWithWorkers(id string, cfg Config, workers []*coordinator.Agent) *Pool {
	cfg.setDefaults()
	p := &Pool{
		id:      id,
		cfg:     cfg,
		status:  StatusActive,
		workers: make(map[string]*coordinator.Agent),
	}
	for _, a := range workers {
		p.workers[a.ID] = a
		p.order = append(p.order, a.ID)
	}
	return p
}

// AddWorker registers an existing agent as a pool worker.
func (p *Pool) AddWorker(a *coordinator.Agent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[a.ID] = a
	p.order = append(p.order, a.ID)
}

func (p *Pool) ID() string     { return p.id }
func (p *Pool) Status() Status { p.mu.RLock(); defer p.mu.RUnlock(); return p.status }

func (p *Pool) spawnWorkerLocked() *coordinator.Agent {
	a := coordinator.NewAgent(p.cfg.AgentType, maxConcurrentTasksDefault)
	a.Status = coordinator.AgentIdle
	p.workers[a.ID] = a
	p.order = append(p.order, a.ID)
	return a
}

// maxConcurrentTasksDefault bounds how many tasks one worker agent may run
// concurrently; the spec leaves this to the implementer.
const maxConcurrentTasksDefault = 3

// Workers returns a point-in-time copy of every worker agent, keyed by ID.
func (p *Pool) Workers() map[string]*coordinator.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]*coordinator.Agent, len(p.workers))
	for id, a := range p.workers {
		cp := *a
		out[id] = &cp
	}
	return out
}

// Distribute assigns a task to a worker per the pool's strategy. If every
// worker is at capacity, the task is queued and NO_WORKERS_AVAILABLE is
// returned; the queue drains opportunistically on every Complete.
func (p *Pool) Distribute(task *coordinator.Task) (*Assignment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusActive {
		return nil, coordinator.NewError("pool", "Distribute", coordinator.ErrPoolInactive,
			"pool is not active", nil)
	}

	workerID, nextCursor := pick(p.cfg.Strategy, p.order, p.workers, task, p.rrCursor)
	if p.cfg.Strategy == RoundRobin {
		p.rrCursor = nextCursor
	}

	if workerID == "" {
		p.queue = append(p.queue, task)
		p.stats.QueueDepth = len(p.queue)
		return nil, coordinator.NewError("pool", "Distribute", coordinator.ErrNoWorkersAvailable,
			"no worker has capacity; task queued", nil)
	}

	return p.assignLocked(workerID, task), nil
}

// DistributeAll submits every task concurrently, returning one
// Assignment (or nil on a per-task error) per input task in the same
// order. A per-task Distribute failure does not cancel the others.
func (p *Pool) DistributeAll(ctx context.Context, tasks []*coordinator.Task) ([]*Assignment, error) {
	assignments := make([]*Assignment, len(tasks))

	g, ctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a, err := p.Distribute(task)
			if err != nil {
				return nil // per-task failure; caller inspects the nil slot
			}
			assignments[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return assignments, err
	}
	return assignments, nil
}

func (p *Pool) assignLocked(workerID string, task *coordinator.Task) *Assignment {
	worker := p.workers[workerID]
	worker.AssignTask(task.ID)

	estimate := 60 * time.Second
	if m, ok := worker.Performance[task.Type]; ok && m.SampleCount > 0 {
		estimate = m.AverageExecutionTime
	}

	return &Assignment{
		WorkerID:                workerID,
		TaskID:                  task.ID,
		AssignedAt:              time.Now(),
		EstimatedCompletionTime: estimate,
	}
}

// Complete records a task's outcome, returns its worker to idle when it
// has no other in-flight tasks, updates running statistics, and drains
// the head of the queue if capacity is now available.
func (p *Pool) Complete(taskID string, taskType coordinator.TaskType, success bool, executionTime time.Duration, quality float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var worker *coordinator.Agent
	for _, a := range p.workers {
		for _, t := range a.CurrentTasks {
			if t == taskID {
				worker = a
				break
			}
		}
		if worker != nil {
			break
		}
	}
	if worker == nil {
		return
	}

	worker.CompleteTask(taskID)
	worker.RecordOutcome(taskType, success, executionTime, quality)

	n := p.stats.TotalTasksProcessed + p.stats.TotalTasksFailed
	p.stats.AverageTaskTime = time.Duration((float64(p.stats.AverageTaskTime)*float64(n) + float64(executionTime)) / float64(n+1))
	if success {
		p.stats.TotalTasksProcessed++
	} else {
		p.stats.TotalTasksFailed++
	}

	p.drainQueueLocked()
}

func (p *Pool) drainQueueLocked() {
	for len(p.queue) > 0 {
		next := p.queue[0]
		workerID, nextCursor := pick(p.cfg.Strategy, p.order, p.workers, next, p.rrCursor)
		if workerID == "" {
			break
		}
		if p.cfg.Strategy == RoundRobin {
			p.rrCursor = nextCursor
		}
		p.assignLocked(workerID, next)
		p.queue = p.queue[1:]
	}
	p.stats.QueueDepth = len(p.queue)
}

// AutoScale spawns or removes a worker based on current utilization:
// above 0.8 spawns (if under MaxWorkers), below 0.2 removes an idle
// worker (if over MinWorkers). Busy workers are never removed.
func (p *Pool) AutoScale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, a := range p.workers {
		total += len(a.CurrentTasks)
	}
	capacity := len(p.workers) * maxConcurrentTasksDefault
	if capacity == 0 {
		return
	}
	utilization := float64(total) / float64(capacity)

	if utilization > 0.8 && len(p.workers) < p.cfg.MaxWorkers {
		a := p.spawnWorkerLocked()
		log.Info("pool scaled up", "pool_id", p.id, "agent_type", p.cfg.AgentType, "worker_id", a.ID, "utilization", utilization)
		return
	}
	if utilization < 0.2 && len(p.workers) > p.cfg.MinWorkers {
		for _, id := range sortedByLastActive(p.order, p.workers) {
			if a := p.workers[id]; len(a.CurrentTasks) == 0 {
				p.removeWorkerLocked(id) //nolint:errcheck // idle worker guaranteed above
				log.Info("pool scaled down", "pool_id", p.id, "agent_type", p.cfg.AgentType, "worker_id", id, "utilization", utilization)
				return
			}
		}
	}
}

// RemoveWorker removes a specific worker; fails with WORKER_BUSY if it
// has in-flight tasks.
func (p *Pool) RemoveWorker(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeWorkerLocked(id)
}

func (p *Pool) removeWorkerLocked(id string) error {
	a, ok := p.workers[id]
	if !ok {
		return coordinator.NewError("pool", "RemoveWorker", coordinator.ErrNotFound, "worker not found", nil)
	}
	if len(a.CurrentTasks) > 0 {
		return coordinator.NewError("pool", "RemoveWorker", coordinator.ErrWorkerBusy, "worker has in-flight tasks", nil)
	}
	delete(p.workers, id)
	p.order = removeFromSlice(p.order, id)
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

// Terminate marks the pool terminated and clears its workers. Terminal
// pools refuse distribution.
func (p *Pool) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = StatusTerminated
	p.workers = make(map[string]*coordinator.Agent)
	p.order = nil
	p.queue = nil
}

// Stats returns a point-in-time copy of the pool's running statistics.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.stats
	s.WorkerCount = len(p.workers)
	s.QueueDepth = len(p.queue)
	return s
}
