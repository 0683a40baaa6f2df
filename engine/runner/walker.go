package runner

import (
	"context"

	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Walker descends a subgraph from one node's output, applying branch
// selection. The production loop runner and the api strategy share it
// so both follow identical routing semantics.
type Walker struct {
	Pool       *pool.Executor
	PoolClass  node.Pool
	Bus        *events.Bus
	WorkflowID string
	Log        Logger
}

// Descend routes current's output to its downstream nodes, depth-first
// within branch-key order x insertion order. It returns the last output
// produced, or the terminal output when a response node is reached
// (responded = true). A node error aborts the walk (fail-fast for the
// iteration).
func (wk *Walker) Descend(ctx context.Context, current *graph.Wrapper, input *node.Output, iteration int) (*node.Output, bool, error) {
	keys := current.Node.BranchesToFollow(input, current.BranchKeys())

	last := input
	for _, key := range keys {
		for _, next := range current.Next(key) {
			// An edge into a producer is a queue-wiring hint, not a call
			// site: the payload reaches the other loop through the queue.
			if next.Node.Variant() == node.VariantProducer {
				continue
			}
			out, err := wk.RunNode(ctx, next, input, iteration)
			if err != nil {
				return nil, false, err
			}
			last = out

			if out.ResponseReady() {
				return out, true, nil
			}

			// Non-blocking variants stop the descent here but the walk
			// continues with the next sibling.
			if !next.Node.ContinueAfterExecution() {
				continue
			}

			deeper, responded, err := wk.Descend(ctx, next, out, iteration)
			if err != nil {
				return nil, false, err
			}
			last = deeper
			if responded {
				return deeper, true, nil
			}
		}
	}
	return last, false, nil
}

// RunNode executes one node on the iteration's pool, emitting
// node_started / node_completed / node_failed around the call. The route
// on the completed event is the node's own branch decision (default for
// non-conditional nodes).
func (wk *Walker) RunNode(ctx context.Context, w *graph.Wrapper, input *node.Output, iteration int) (*node.Output, error) {
	wk.Bus.Publish(events.Event{
		Kind:       events.NodeStarted,
		WorkflowID: wk.WorkflowID,
		NodeID:     w.ID,
		NodeType:   w.Node.Identifier(),
		Iteration:  iteration,
	})

	out, err := wk.Pool.Run(ctx, wk.PoolClass, w.Node, input)
	if err != nil {
		wk.Bus.Publish(events.Event{
			Kind:       events.NodeFailed,
			WorkflowID: wk.WorkflowID,
			NodeID:     w.ID,
			NodeType:   w.Node.Identifier(),
			Iteration:  iteration,
			Error:      err.Error(),
		})
		return nil, err
	}

	wk.Bus.Publish(events.Event{
		Kind:       events.NodeCompleted,
		WorkflowID: wk.WorkflowID,
		NodeID:     w.ID,
		NodeType:   w.Node.Identifier(),
		Route:      out.Route(),
		Iteration:  iteration,
	})
	return out, nil
}
