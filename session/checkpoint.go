package session

import (
	"encoding/json"
	"sort"
	"time"

	coordinator "github.com/agentmesh/coordinator"
)

// marshalArtifact encodes a checkpoint Artifact to its JSON wire form.
func marshalArtifact(a Artifact) ([]byte, error) {
	return json.Marshal(a.toWire())
}

// unmarshalArtifact decodes a checkpoint Artifact from its JSON wire form.
func unmarshalArtifact(doc []byte) (Artifact, error) {
	var w artifactWire
	if err := json.Unmarshal(doc, &w); err != nil {
		return Artifact{}, err
	}
	return w.toArtifact()
}

// timeFormat is a normalized, lexicographically-ordered timestamp
// encoding (RFC3339 with a fixed nine-digit fraction, always UTC) used
// everywhere a checkpoint artifact carries a time.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func decodeTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// KV is one ordered key/value pair, the wire representation for map
// fields the checkpoint format can't serialize natively.
type KV struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// CurrentState is the session's live mutable state, snapshotted into a
// checkpoint and restored on Resume.
type CurrentState struct {
	ActiveAgents    map[string]string // agentID -> status, at snapshot time
	ActiveTasks     []string
	TaskQueue       []string
	CompletedTasks  []string
	FailedTasks     []string
	WorkingMemory   map[string]any
	SharedContext   map[string]any
	TopologyConfig  map[string]any
	NextActions     []string
}

func cloneCurrentState(s CurrentState) CurrentState {
	cp := CurrentState{
		ActiveTasks:    append([]string(nil), s.ActiveTasks...),
		TaskQueue:      append([]string(nil), s.TaskQueue...),
		CompletedTasks: append([]string(nil), s.CompletedTasks...),
		FailedTasks:    append([]string(nil), s.FailedTasks...),
		NextActions:    append([]string(nil), s.NextActions...),
	}
	cp.ActiveAgents = make(map[string]string, len(s.ActiveAgents))
	for k, v := range s.ActiveAgents {
		cp.ActiveAgents[k] = v
	}
	cp.WorkingMemory = cloneAnyMap(s.WorkingMemory)
	cp.SharedContext = cloneAnyMap(s.SharedContext)
	cp.TopologyConfig = cloneAnyMap(s.TopologyConfig)
	return cp
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// currentStateArtifact is CurrentState's wire shape: map fields become
// ordered KV arrays per the checkpoint artifact format.
type currentStateArtifact struct {
	ActiveAgents   []KV     `json:"activeAgents"`
	ActiveTasks    []string `json:"activeTasks"`
	TaskQueue      []string `json:"taskQueue"`
	CompletedTasks []string `json:"completedTasks"`
	FailedTasks    []string `json:"failedTasks"`
	WorkingMemory  []KV     `json:"workingMemory"`
	SharedContext  map[string]any `json:"sharedContext"`
	TopologyConfig map[string]any `json:"topologyConfig"`
	NextActions    []string `json:"nextActions"`
}

func (s CurrentState) toArtifact() currentStateArtifact {
	return currentStateArtifact{
		ActiveAgents:   mapToKVs(stringMapToAny(s.ActiveAgents)),
		ActiveTasks:    s.ActiveTasks,
		TaskQueue:      s.TaskQueue,
		CompletedTasks: s.CompletedTasks,
		FailedTasks:    s.FailedTasks,
		WorkingMemory:  mapToKVs(s.WorkingMemory),
		SharedContext:  s.SharedContext,
		TopologyConfig: s.TopologyConfig,
		NextActions:    s.NextActions,
	}
}

func (a currentStateArtifact) toState() CurrentState {
	return CurrentState{
		ActiveAgents:   anyMapToString(kvsToMap(a.ActiveAgents)),
		ActiveTasks:    a.ActiveTasks,
		TaskQueue:      a.TaskQueue,
		CompletedTasks: a.CompletedTasks,
		FailedTasks:    a.FailedTasks,
		WorkingMemory:  kvsToMap(a.WorkingMemory),
		SharedContext:  a.SharedContext,
		TopologyConfig: a.TopologyConfig,
		NextActions:    a.NextActions,
	}
}

func mapToKVs(m map[string]any) []KV {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KV, 0, len(m))
	for _, k := range keys {
		out = append(out, KV{Key: k, Value: m[k]})
	}
	return out
}

func kvsToMap(kvs []KV) map[string]any {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func anyMapToString(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// CheckpointRecord is one entry in a session's checkpoint history.
type CheckpointRecord struct {
	ID        string
	SessionID string
	Timestamp time.Time
	Reason    string
	Snapshot  CurrentState
	Metadata  map[string]any
}

type checkpointRecordArtifact struct {
	ID        string               `json:"id"`
	SessionID string               `json:"sessionId"`
	Timestamp string               `json:"timestamp"`
	Reason    string               `json:"reason"`
	Snapshot  currentStateArtifact `json:"snapshot"`
	Metadata  map[string]any       `json:"metadata"`
}

// Artifact is the full checkpoint document persisted under the
// session's key in the object store.
type Artifact struct {
	ID             string
	ProjectID      string
	Name           string
	Topology       string
	Status         string
	Agents         []AgentSnapshot
	CurrentState   CurrentState
	Checkpoints    []CheckpointRecord
	TasksCompleted int
	TasksTotal     int
	StartedAt      time.Time
	LastActiveAt   time.Time
	CompletedAt    *time.Time
	Config         Config
	Metadata       map[string]any
}

// AgentSnapshot is the checkpoint-time projection of one agent record.
type AgentSnapshot struct {
	ID           string
	Type         coordinator.AgentType
	Status       coordinator.AgentStatus
	CurrentTasks []string
}

type artifactWire struct {
	ID             string                     `json:"id"`
	ProjectID      string                     `json:"projectId"`
	Name           string                     `json:"name"`
	Topology       string                     `json:"topology"`
	Status         string                     `json:"status"`
	Agents         []AgentSnapshot            `json:"agents"`
	CurrentState   currentStateArtifact       `json:"currentState"`
	Checkpoints    []checkpointRecordArtifact `json:"checkpoints"`
	TasksCompleted int                        `json:"tasksCompleted"`
	TasksTotal     int                        `json:"tasksTotal"`
	StartedAt      string                     `json:"startedAt"`
	LastActiveAt   string                     `json:"lastActiveAt"`
	CompletedAt    *string                    `json:"completedAt,omitempty"`
	Config         wireConfig                 `json:"config"`
	Metadata       map[string]any             `json:"metadata"`
}

type wireConfig struct {
	MaxAgents          int    `json:"maxAgents"`
	MaxConcurrentTasks int    `json:"maxConcurrentTasks"`
	CheckpointInterval string `json:"checkpointInterval"`
	AutoCheckpoint     bool   `json:"autoCheckpoint"`
	PersistToDisk      bool   `json:"persistToDisk"`
	MaxCheckpoints     int    `json:"maxCheckpoints"`
}

// toWire converts Artifact to its JSON-native wire shape.
func (a Artifact) toWire() artifactWire {
	w := artifactWire{
		ID:             a.ID,
		ProjectID:      a.ProjectID,
		Name:           a.Name,
		Topology:       a.Topology,
		Status:         a.Status,
		Agents:         a.Agents,
		CurrentState:   a.CurrentState.toArtifact(),
		TasksCompleted: a.TasksCompleted,
		TasksTotal:     a.TasksTotal,
		StartedAt:      encodeTime(a.StartedAt),
		LastActiveAt:   encodeTime(a.LastActiveAt),
		Config: wireConfig{
			MaxAgents:          a.Config.MaxAgents,
			MaxConcurrentTasks: a.Config.MaxConcurrentTasks,
			CheckpointInterval: a.Config.CheckpointInterval.String(),
			AutoCheckpoint:     a.Config.AutoCheckpoint,
			PersistToDisk:      a.Config.PersistToDisk,
			MaxCheckpoints:     a.Config.MaxCheckpoints,
		},
		Metadata: a.Metadata,
	}
	if a.CompletedAt != nil {
		s := encodeTime(*a.CompletedAt)
		w.CompletedAt = &s
	}
	for _, c := range a.Checkpoints {
		w.Checkpoints = append(w.Checkpoints, checkpointRecordArtifact{
			ID:        c.ID,
			SessionID: c.SessionID,
			Timestamp: encodeTime(c.Timestamp),
			Reason:    c.Reason,
			Snapshot:  c.Snapshot.toArtifact(),
			Metadata:  c.Metadata,
		})
	}
	return w
}

func (w artifactWire) toArtifact() (Artifact, error) {
	started, err := decodeTime(w.StartedAt)
	if err != nil {
		return Artifact{}, err
	}
	lastActive, err := decodeTime(w.LastActiveAt)
	if err != nil {
		return Artifact{}, err
	}
	a := Artifact{
		ID:             w.ID,
		ProjectID:      w.ProjectID,
		Name:           w.Name,
		Topology:       w.Topology,
		Status:         w.Status,
		Agents:         w.Agents,
		CurrentState:   w.CurrentState.toState(),
		TasksCompleted: w.TasksCompleted,
		TasksTotal:     w.TasksTotal,
		StartedAt:      started,
		LastActiveAt:   lastActive,
		Config: Config{
			MaxAgents:          w.Config.MaxAgents,
			MaxConcurrentTasks: w.Config.MaxConcurrentTasks,
			AutoCheckpoint:     w.Config.AutoCheckpoint,
			PersistToDisk:      w.Config.PersistToDisk,
			MaxCheckpoints:     w.Config.MaxCheckpoints,
		},
		Metadata: w.Metadata,
	}
	if interval, err := time.ParseDuration(w.Config.CheckpointInterval); err == nil {
		a.Config.CheckpointInterval = interval
	}
	if w.CompletedAt != nil {
		t, err := decodeTime(*w.CompletedAt)
		if err != nil {
			return Artifact{}, err
		}
		a.CompletedAt = &t
	}
	for _, c := range w.Checkpoints {
		ts, err := decodeTime(c.Timestamp)
		if err != nil {
			return Artifact{}, err
		}
		a.Checkpoints = append(a.Checkpoints, CheckpointRecord{
			ID:        c.ID,
			SessionID: c.SessionID,
			Timestamp: ts,
			Reason:    c.Reason,
			Snapshot:  c.Snapshot.toState(),
			Metadata:  c.Metadata,
		})
	}
	return a, nil
}
