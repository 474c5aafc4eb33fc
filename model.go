package coordinator

import (
	"time"

	"github.com/google/uuid"
)

// AgentType is a symbolic agent role drawn from a closed set.
type AgentType string

const (
	AgentArchitect      AgentType = "architect"
	AgentReview         AgentType = "review"
	AgentImplementation AgentType = "implementation"
	AgentTesting        AgentType = "testing"
	AgentResearch       AgentType = "research"
	AgentDocumentation  AgentType = "documentation"
	AgentDebugger       AgentType = "debugger"
)

// DefaultCapabilities returns the fixed default capability set for an
// agent type, per the capability table in the external interfaces.
func DefaultCapabilities(t AgentType) []string {
	switch t {
	case AgentResearch:
		return []string{"web-search", "data-analysis", "summarization"}
	case AgentArchitect:
		return []string{"system-design", "pattern-recognition", "requirements-analysis"}
	case AgentImplementation:
		return []string{"coding", "refactoring", "api-design"}
	case AgentTesting:
		return []string{"unit-testing", "integration-testing", "regression-testing"}
	case AgentReview:
		return []string{"code-review", "quality-analysis", "standards-enforcement"}
	case AgentDocumentation:
		return []string{"api-docs", "user-guides", "changelogs"}
	case AgentDebugger:
		return []string{"error-analysis", "stack-tracing", "root-cause"}
	default:
		return nil
	}
}

// AgentStatus is the agent's current lifecycle state.
type AgentStatus string

const (
	AgentInitializing AgentStatus = "initializing"
	AgentIdle         AgentStatus = "idle"
	AgentBusy         AgentStatus = "busy"
	AgentError        AgentStatus = "error"
	AgentTerminated   AgentStatus = "terminated"
)

// ResourceLimits bounds what a single agent may consume.
type ResourceLimits struct {
	MemoryMB          int64         `json:"memory_mb"`
	CPUTime           time.Duration `json:"cpu_time"`
	DiskMB            int64         `json:"disk_mb"`
	MaxNetworkCalls   int           `json:"max_network_calls"`
	MaxFileHandles    int           `json:"max_file_handles"`
	ExecutionTimeout  time.Duration `json:"execution_timeout"`
}

// DefaultResourceLimits returns sane defaults, scaled slightly by agent
// type (research/architect agents get a longer execution timeout since
// they tend to chain more LLM calls).
func DefaultResourceLimits(t AgentType) ResourceLimits {
	timeout := 2 * time.Minute
	switch t {
	case AgentArchitect, AgentResearch:
		timeout = 5 * time.Minute
	}
	return ResourceLimits{
		MemoryMB:         512,
		CPUTime:          30 * time.Second,
		DiskMB:           256,
		MaxNetworkCalls:  100,
		MaxFileHandles:   32,
		ExecutionTimeout: timeout,
	}
}

// PerformanceMetric is one task-type entry in an agent's performance
// history.
type PerformanceMetric struct {
	TaskType            TaskType      `json:"task_type"`
	SuccessRate         float64       `json:"success_rate"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	QualityScore        float64       `json:"quality_score"`
	SampleCount         int           `json:"sample_count"`
}

// Agent is a long-lived actor with a fixed type and capability set,
// executing tasks for at most one session.
type Agent struct {
	ID                 string                         `json:"id"`
	Type               AgentType                      `json:"type"`
	Status             AgentStatus                    `json:"status"`
	Capabilities       map[string]struct{}             `json:"-"`
	MaxConcurrentTasks int                            `json:"max_concurrent_tasks"`
	Limits             ResourceLimits                 `json:"limits"`
	Performance        map[TaskType]*PerformanceMetric `json:"performance"`
	CurrentTasks       []string                       `json:"current_tasks"`
	CreatedAt          time.Time                      `json:"created_at"`
	LastActive         time.Time                      `json:"last_active"`
	LearningData       map[string]any                 `json:"learning_data,omitempty"`
}

// NewAgent creates an agent of the given type with default capabilities
// and resource limits, following the teacher's convention of deriving
// agent defaults purely from its symbolic type.
func NewAgent(t AgentType, maxConcurrentTasks int) *Agent {
	caps := make(map[string]struct{})
	for _, c := range DefaultCapabilities(t) {
		caps[c] = struct{}{}
	}
	now := time.Now()
	return &Agent{
		ID:                 uuid.NewString(),
		Type:               t,
		Status:             AgentInitializing,
		Capabilities:       caps,
		MaxConcurrentTasks: maxConcurrentTasks,
		Limits:             DefaultResourceLimits(t),
		Performance:        make(map[TaskType]*PerformanceMetric),
		CurrentTasks:       nil,
		CreatedAt:          now,
		LastActive:         now,
	}
}

// HasCapacity reports whether the agent can accept another task.
func (a *Agent) HasCapacity() bool {
	return len(a.CurrentTasks) < a.MaxConcurrentTasks
}

// Touch refreshes LastActive, enforcing monotonic non-decrease.
func (a *Agent) Touch() {
	now := time.Now()
	if now.After(a.LastActive) {
		a.LastActive = now
	}
}

// AssignTask records a task as in-flight on this agent and flips status
// to busy.
func (a *Agent) AssignTask(taskID string) {
	a.CurrentTasks = append(a.CurrentTasks, taskID)
	a.Status = AgentBusy
	a.Touch()
}

// CompleteTask removes a task from the in-flight list, returning the
// agent to idle when it has none left (unless it's in a terminal state).
func (a *Agent) CompleteTask(taskID string) {
	out := a.CurrentTasks[:0]
	for _, id := range a.CurrentTasks {
		if id != taskID {
			out = append(out, id)
		}
	}
	a.CurrentTasks = out
	if len(a.CurrentTasks) == 0 && a.Status != AgentError && a.Status != AgentTerminated {
		a.Status = AgentIdle
	}
	a.Touch()
}

// RecordOutcome folds one task execution into the agent's performance
// history for its type, maintaining a running mean.
func (a *Agent) RecordOutcome(taskType TaskType, success bool, execTime time.Duration, quality float64) {
	m, ok := a.Performance[taskType]
	if !ok {
		m = &PerformanceMetric{TaskType: taskType}
		a.Performance[taskType] = m
	}
	n := float64(m.SampleCount)
	successVal := 0.0
	if success {
		successVal = 1.0
	}
	m.SuccessRate = (m.SuccessRate*n + successVal) / (n + 1)
	m.AverageExecutionTime = time.Duration((float64(m.AverageExecutionTime)*n + float64(execTime)) / (n + 1))
	m.QualityScore = (m.QualityScore*n + quality) / (n + 1)
	m.SampleCount++
}

// TaskType mirrors AgentType for routing purposes: a task of a given
// type is preferentially routed to an agent of the matching type.
type TaskType string

const (
	TaskArchitect      TaskType = TaskType(AgentArchitect)
	TaskReview         TaskType = TaskType(AgentReview)
	TaskImplementation TaskType = TaskType(AgentImplementation)
	TaskTesting        TaskType = TaskType(AgentTesting)
	TaskResearch       TaskType = TaskType(AgentResearch)
	TaskDocumentation  TaskType = TaskType(AgentDocumentation)
	TaskDebugger       TaskType = TaskType(AgentDebugger)
)

// TaskStatus is the task's lifecycle state.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is a unit of work routed to exactly one agent while running.
type Task struct {
	ID           string        `json:"id"`
	Type         TaskType      `json:"type"`
	Description  string        `json:"description"`
	Priority     int           `json:"priority"`
	Status       TaskStatus    `json:"status"`
	Dependencies []string      `json:"dependencies,omitempty"`
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
	Error        string        `json:"error,omitempty"`
	QualityScore float64       `json:"quality_score,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// NewTask creates a pending task with a fresh ID.
func NewTask(taskType TaskType, description string, priority int) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Description: description,
		Priority:    priority,
		Status:      TaskPending,
		CreatedAt:   time.Now(),
	}
}

// MessageType is the purpose of an inter-agent message.
type MessageType string

const (
	MessageTaskDelegation MessageType = "task_delegation"
	MessageCoordination   MessageType = "coordination"
	MessageStatusUpdate   MessageType = "status_update"
	MessageKnowledgeShare MessageType = "knowledge_share"
	MessageError          MessageType = "error"
)

// MaxMessageRetries bounds how many times a message may be retried.
const MaxMessageRetries = 3

// Message is one unit of inter-agent communication. Recipient being
// empty means broadcast.
type Message struct {
	ID              string        `json:"id"`
	From            string        `json:"from"`
	To              string        `json:"to,omitempty"`
	Type            MessageType   `json:"type"`
	Priority        int           `json:"priority"` // 0-4
	Timestamp       time.Time     `json:"timestamp"`
	CorrelationID   string        `json:"correlation_id"`
	Content         any           `json:"content"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	RetryCount      int           `json:"retry_count"`
	RequiresResponse bool         `json:"requires_response"`
}

// NewMessage creates a message with a fresh ID and correlation ID,
// stamping the current time.
func NewMessage(from, to string, msgType MessageType, content any, priority int) *Message {
	return &Message{
		ID:            uuid.NewString(),
		From:          from,
		To:            to,
		Type:          msgType,
		Priority:      priority,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
		Content:       content,
	}
}

// IsBroadcast reports whether the message has no specific recipient.
func (m *Message) IsBroadcast() bool {
	return m.To == ""
}
