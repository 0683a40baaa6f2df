package strategy

import (
	"context"
	"fmt"

	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
	"github.com/theoneeye/oneeye/engine/runner"
)

// SingleNodeOpts contains options for the single-node strategy
type SingleNodeOpts struct {
	WorkflowID string
	Pool       *pool.Executor
	Bus        *events.Bus
	Logger     Logger
}

// SingleNode invokes the workflow's one node and returns its output
type SingleNode struct {
	workflowID string
	pool       *pool.Executor
	bus        *events.Bus
	log        Logger

	target *graph.Wrapper
	walker *runner.Walker
}

// NewSingleNode creates the single-node strategy
func NewSingleNode(opts *SingleNodeOpts) *SingleNode {
	return &SingleNode{
		workflowID: opts.WorkflowID,
		pool:       opts.Pool,
		bus:        opts.Bus,
		log:        opts.Logger,
	}
}

// Prepare picks the single node and initializes it
func (s *SingleNode) Prepare(ctx context.Context, g *graph.Graph) error {
	all := g.All()
	if len(all) != 1 {
		return fmt.Errorf("single-node workflow requires exactly one node, got %d", len(all))
	}
	s.target = all[0]

	if err := s.target.Node.Initialize(ctx); err != nil {
		return err
	}
	if err := s.target.Node.Setup(ctx); err != nil {
		return err
	}

	s.walker = &runner.Walker{
		Pool:       s.pool,
		PoolClass:  s.target.Node.PreferredPool(),
		Bus:        s.bus,
		WorkflowID: s.workflowID,
		Log:        s.log,
	}
	return nil
}

// Execute invokes the node once
func (s *SingleNode) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	s.bus.Publish(events.Event{
		Kind:       events.WorkflowStarted,
		WorkflowID: s.workflowID,
	})

	out, err := s.walker.RunNode(ctx, s.target, input, 1)
	if err != nil {
		s.bus.Publish(events.Event{
			Kind:       events.WorkflowFailed,
			WorkflowID: s.workflowID,
			Error:      err.Error(),
		})
		return nil, err
	}

	s.bus.Publish(events.Event{
		Kind:       events.WorkflowCompleted,
		WorkflowID: s.workflowID,
	})
	return out, nil
}

// Shutdown is a no-op: single-node runs are one-shot
func (s *SingleNode) Shutdown(force bool) {}
