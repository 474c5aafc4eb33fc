package pool

import (
	"math/rand"
	"sort"

	coordinator "github.com/agentmesh/coordinator"
)

// Strategy is the closed set of load-balancing strategies a Pool can use
// to pick a worker for a task. Kept as a small explicit switch rather than
// an open plugin registry, since dispatch is a hot path.
type Strategy string

const (
	RoundRobin  Strategy = "round-robin"
	LeastLoaded Strategy = "least-loaded"
	Random      Strategy = "random"
	Weighted    Strategy = "weighted"
	Priority    Strategy = "priority"
)

const weightEpsilon = 1e-6

// candidateWorker is the minimal view a strategy needs to pick among
// workers; order reflects insertion order (round-robin cursor position).
type candidateWorker struct {
	agent *coordinator.Agent
}

// pick selects a worker id for the task under the pool's strategy. rrCursor
// is read and, for round-robin, advanced by the caller afterward.
func pick(strategy Strategy, order []string, workers map[string]*coordinator.Agent, task *coordinator.Task, rrCursor int) (string, int) {
	switch strategy {
	case RoundRobin:
		return pickRoundRobin(order, workers, rrCursor)
	case LeastLoaded:
		return pickLeastLoaded(order, workers), rrCursor
	case Random:
		return pickRandom(order, workers), rrCursor
	case Weighted:
		return pickWeighted(order, workers, task), rrCursor
	case Priority:
		return pickPriority(order, workers), rrCursor
	default:
		return pickLeastLoaded(order, workers), rrCursor
	}
}

func pickRoundRobin(order []string, workers map[string]*coordinator.Agent, rrCursor int) (string, int) {
	n := len(order)
	if n == 0 {
		return "", rrCursor
	}
	for i := 0; i < n; i++ {
		idx := (rrCursor + i) % n
		id := order[idx]
		a, ok := workers[id]
		if ok && a.HasCapacity() {
			return id, idx + 1
		}
	}
	// All at capacity: fall through to least-loaded.
	return pickLeastLoaded(order, workers), rrCursor
}

func pickLeastLoaded(order []string, workers map[string]*coordinator.Agent) string {
	best := ""
	bestLoad := -1
	for _, id := range order {
		a, ok := workers[id]
		if !ok || !a.HasCapacity() {
			continue
		}
		load := len(a.CurrentTasks)
		if best == "" || load < bestLoad {
			best = id
			bestLoad = load
		}
	}
	return best
}

func pickRandom(order []string, workers map[string]*coordinator.Agent) string {
	var avail []string
	for _, id := range order {
		if a, ok := workers[id]; ok && a.HasCapacity() {
			avail = append(avail, id)
		}
	}
	if len(avail) == 0 {
		return ""
	}
	return avail[rand.Intn(len(avail))]
}

func pickWeighted(order []string, workers map[string]*coordinator.Agent, task *coordinator.Task) string {
	best := ""
	var bestWeight float64
	for _, id := range order {
		a, ok := workers[id]
		if !ok || !a.HasCapacity() {
			continue
		}
		w := weightFor(a, task.Type)
		if best == "" || w > bestWeight {
			best = id
			bestWeight = w
		}
	}
	return best
}

// weightFor computes successRate * qualityScore / (avgExecutionTime + eps)
// for the given task type, defaulting to a mid-tier weight when the agent
// has no history for that type.
func weightFor(a *coordinator.Agent, taskType coordinator.TaskType) float64 {
	m, ok := a.Performance[taskType]
	if !ok || m.SampleCount == 0 {
		return 0.5
	}
	seconds := m.AverageExecutionTime.Seconds()
	return m.SuccessRate * m.QualityScore / (seconds + weightEpsilon)
}

func pickPriority(order []string, workers map[string]*coordinator.Agent) string {
	var idleCandidates []string
	for _, id := range order {
		if a, ok := workers[id]; ok && a.Status == coordinator.AgentIdle && a.HasCapacity() {
			idleCandidates = append(idleCandidates, id)
		}
	}
	if len(idleCandidates) > 0 {
		return idleCandidates[0]
	}
	return pickLeastLoaded(order, workers)
}

// sortedByLastActive returns worker ids ordered oldest-LastActive-first,
// used by AutoScale to pick a removal candidate.
func sortedByLastActive(order []string, workers map[string]*coordinator.Agent) []string {
	out := append([]string{}, order...)
	sort.SliceStable(out, func(i, j int) bool {
		return workers[out[i]].LastActive.Before(workers[out[j]].LastActive)
	})
	return out
}
