package node

import (
	"context"
	"fmt"
)

// Variant classifies a node for the scheduler
type Variant string

const (
	// VariantProducer drives one loop; has no inputs
	VariantProducer Variant = "producer"

	// VariantBlocking executes and lets the scheduler descend further
	VariantBlocking Variant = "blocking"

	// VariantNonBlocking executes but the scheduler must not descend
	// from it within the same iteration
	VariantNonBlocking Variant = "non_blocking"

	// VariantConditional selects one branch key for the scheduler
	VariantConditional Variant = "conditional"
)

// Pool identifies an execution backend of the pool executor
type Pool string

const (
	PoolCooperative   Pool = "cooperative"
	PoolWorkerThread  Pool = "worker_thread"
	PoolWorkerProcess Pool = "worker_process"
)

// Priority orders pools for per-iteration escalation:
// worker_process > worker_thread > cooperative
func (p Pool) Priority() int {
	switch p {
	case PoolWorkerProcess:
		return 2
	case PoolWorkerThread:
		return 1
	default:
		return 0
	}
}

// Max returns the higher-priority of two pools
func (p Pool) Max(other Pool) Pool {
	if other.Priority() > p.Priority() {
		return other
	}
	return p
}

// Branch keys in canonical form
const (
	BranchDefault = "default"
	BranchYes     = "yes"
	BranchNo      = "no"
)

// FieldErrors maps a form field to its validation messages
type FieldErrors map[string][]string

// Config is the declarative descriptor of one node
type Config struct {
	ID   string     `json:"id"`
	Type string     `json:"type"`
	Data ConfigData `json:"data"`
}

// ConfigData splits per-node configuration from wiring hints
type ConfigData struct {
	// Form holds user configuration; values may contain template expressions
	Form map[string]any `json:"form"`
	// Config holds wiring hints written by pre-processors (queue names etc.)
	Config map[string]any `json:"config"`
}

// Normalize fills nil sub-maps so pre-processors can write into them
func (c *Config) Normalize() {
	if c.Data.Form == nil {
		c.Data.Form = make(map[string]any)
	}
	if c.Data.Config == nil {
		c.Data.Config = make(map[string]any)
	}
}

// Node is the polymorphic contract the scheduler depends on.
// The scheduler never inspects concrete node types; routing and
// continuation decisions are answered by the instance itself.
type Node interface {
	// Identifier returns the stable kebab-case registry tag
	Identifier() string

	// Variant returns the scheduler class of this node
	Variant() Variant

	// PreferredPool returns the execution backend this node wants
	PreferredPool() Pool

	// Config returns the declarative descriptor this instance was built from
	Config() *Config

	// IsReady performs the structural config check. Fields holding
	// template expressions only need to be present and non-empty here;
	// strict validation runs after rendering.
	IsReady() (bool, FieldErrors)

	// Initialize is called once before the first iteration
	Initialize(ctx context.Context) error

	// Setup acquires the node's resources
	Setup(ctx context.Context) error

	// Cleanup releases resources. Receives the CompletionSentinel when
	// draining so the node can emit a sentinel of its own.
	Cleanup(ctx context.Context, input *Output) error

	// PopulateForm renders {{ ... }} templates in the form against the
	// incoming output and re-validates the rendered result
	PopulateForm(input *Output) (map[string]any, error)

	// Execute performs the node's work
	Execute(ctx context.Context, input *Output) (*Output, error)

	// BranchesToFollow returns the branch keys the scheduler should
	// descend into, given this node's output and the available keys
	BranchesToFollow(input *Output, available []string) []string

	// ContinueAfterExecution reports whether the scheduler may recurse
	// into downstream nodes from here in the same iteration
	ContinueAfterExecution() bool

	// ExecutionCount returns how many times this instance has run
	ExecutionCount() int

	// RecordExecution increments the execution counter
	RecordExecution()
}

// QueueWriter is implemented by nodes that forward payloads onto a
// durable queue. The queue namer pre-processor keys off this capability.
type QueueWriter interface {
	WritesQueue() bool
}

// QueueReader is implemented by producer nodes that pop payloads from a
// durable queue.
type QueueReader interface {
	ReadsQueue() bool
}

// Responder is implemented by terminal nodes that end an API
// (request/response) walk.
type Responder interface {
	Responds() bool
}

// Run is the composite entry point used by the pool executor. On a
// sentinel input it invokes Cleanup and returns the sentinel unchanged;
// otherwise it renders the form, executes, and bumps the execution count.
func Run(ctx context.Context, n Node, input *Output) (*Output, error) {
	if input != nil && input.Completed() {
		if err := n.Cleanup(ctx, input); err != nil {
			return nil, fmt.Errorf("node %s cleanup: %w", n.Config().ID, err)
		}
		return input, nil
	}

	if _, err := n.PopulateForm(input); err != nil {
		return nil, fmt.Errorf("node %s form: %w", n.Config().ID, err)
	}

	out, err := n.Execute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("node %s execute: %w", n.Config().ID, err)
	}

	n.RecordExecution()
	return out, nil
}
