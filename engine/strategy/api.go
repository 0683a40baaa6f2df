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

// APIOpts contains options for the api strategy
type APIOpts struct {
	WorkflowID string
	Pool       *pool.Executor
	Bus        *events.Bus
	Logger     Logger
}

// API executes a one-shot request/response walk: the unique entry node
// receives the caller's input and the walk descends with the same
// branch selection as the loop runner, stopping at a response node, at
// a non-blocking node, or when no next nodes remain.
type API struct {
	workflowID string
	pool       *pool.Executor
	bus        *events.Bus
	log        Logger

	graph  *graph.Graph
	entry  *graph.Wrapper
	walker *runner.Walker
}

// NewAPI creates the api strategy
func NewAPI(opts *APIOpts) *API {
	return &API{
		workflowID: opts.WorkflowID,
		pool:       opts.Pool,
		bus:        opts.Bus,
		log:        opts.Logger,
	}
}

// Prepare selects the unique entry node and initializes the subgraph
func (s *API) Prepare(ctx context.Context, g *graph.Graph) error {
	analyzer := graph.NewAnalyzer(g)
	entries := analyzer.EntryIDs()
	if len(entries) != 1 {
		return fmt.Errorf("api workflow requires exactly one entry node, got %d", len(entries))
	}

	entry, _ := g.Lookup(entries[0])
	s.graph = g
	s.entry = entry

	iterPool := node.PoolCooperative
	for _, w := range analyzer.Chain(entry.ID) {
		if err := w.Node.Initialize(ctx); err != nil {
			return err
		}
		if err := w.Node.Setup(ctx); err != nil {
			return err
		}
		iterPool = iterPool.Max(w.Node.PreferredPool())
	}

	s.walker = &runner.Walker{
		Pool:       s.pool,
		PoolClass:  iterPool,
		Bus:        s.bus,
		WorkflowID: s.workflowID,
		Log:        s.log,
	}
	return nil
}

// Execute invokes the entry node with the provided input and walks
// downstream. Returns the terminal output when a response node fired,
// otherwise the last output.
func (s *API) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	s.bus.Publish(events.Event{
		Kind:       events.WorkflowStarted,
		WorkflowID: s.workflowID,
	})

	out, err := s.walker.RunNode(ctx, s.entry, input, 1)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	result := out
	if !out.ResponseReady() && s.entry.Node.ContinueAfterExecution() {
		last, _, err := s.walker.Descend(ctx, s.entry, out, 1)
		if err != nil {
			s.fail(err)
			return nil, err
		}
		result = last
	}

	s.bus.Publish(events.Event{
		Kind:       events.WorkflowCompleted,
		WorkflowID: s.workflowID,
	})
	return result, nil
}

func (s *API) fail(err error) {
	s.bus.Publish(events.Event{
		Kind:       events.WorkflowFailed,
		WorkflowID: s.workflowID,
		Error:      err.Error(),
	})
}

// Shutdown is a no-op: api walks are one-shot and bounded
func (s *API) Shutdown(force bool) {}
