package state

import (
	"sync"
	"time"

	"github.com/theoneeye/oneeye/engine/events"
)

// Status is the workflow-level execution status
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// NodeRun records one node invocation
type NodeRun struct {
	NodeID      string        `json:"node_id"`
	NodeType    string        `json:"node_type"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Failed      bool          `json:"failed,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Snapshot is a consistent view of one workflow's execution
type Snapshot struct {
	WorkflowID  string             `json:"workflow_id"`
	Status      Status             `json:"status"`
	Executing   map[string]NodeRun `json:"executing"`
	Completed   []NodeRun          `json:"completed"`
	StartedAt   time.Time          `json:"started_at,omitempty"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Tracker maintains the execution snapshot for one workflow. It
// subscribes to the event bus; all mutations happen under a single
// coarse mutex and readers receive deep copies.
type Tracker struct {
	mu         sync.Mutex
	workflowID string
	status     Status
	executing  map[string]NodeRun
	completed  []NodeRun
	startedAt  time.Time
	finishedAt time.Time
	lastError  string
}

// NewTracker creates a tracker and subscribes it to the bus
func NewTracker(workflowID string, bus *events.Bus) *Tracker {
	t := &Tracker{
		workflowID: workflowID,
		status:     StatusIdle,
		executing:  make(map[string]NodeRun),
	}
	if bus != nil {
		bus.Subscribe(t.handle)
	}
	return t
}

func (t *Tracker) handle(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case events.WorkflowStarted:
		t.status = StatusRunning
		t.startedAt = ev.At

	case events.WorkflowCompleted:
		t.status = StatusCompleted
		t.finishedAt = ev.At

	case events.WorkflowFailed:
		t.status = StatusFailed
		t.finishedAt = ev.At
		t.lastError = ev.Error

	case events.NodeStarted:
		t.executing[ev.NodeID] = NodeRun{
			NodeID:    ev.NodeID,
			NodeType:  ev.NodeType,
			StartedAt: ev.At,
		}

	case events.NodeCompleted:
		run, ok := t.executing[ev.NodeID]
		if !ok {
			run = NodeRun{NodeID: ev.NodeID, NodeType: ev.NodeType, StartedAt: ev.At}
		}
		delete(t.executing, ev.NodeID)
		run.CompletedAt = ev.At
		run.Duration = ev.At.Sub(run.StartedAt)
		t.completed = append(t.completed, run)

	case events.NodeFailed:
		run, ok := t.executing[ev.NodeID]
		if !ok {
			run = NodeRun{NodeID: ev.NodeID, NodeType: ev.NodeType, StartedAt: ev.At}
		}
		// Failed entries stay visible in executing
		run.Failed = true
		run.Error = ev.Error
		run.CompletedAt = ev.At
		run.Duration = ev.At.Sub(run.StartedAt)
		t.executing[ev.NodeID] = run
		t.lastError = ev.Error
	}
}

// Snapshot returns a deep-copied view safe for concurrent readers
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	executing := make(map[string]NodeRun, len(t.executing))
	for id, run := range t.executing {
		executing[id] = run
	}
	completed := make([]NodeRun, len(t.completed))
	copy(completed, t.completed)

	return Snapshot{
		WorkflowID:  t.workflowID,
		Status:      t.status,
		Executing:   executing,
		Completed:   completed,
		StartedAt:   t.startedAt,
		CompletedAt: t.finishedAt,
		Error:       t.lastError,
	}
}
