package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
	"github.com/theoneeye/oneeye/engine/runner"
)

// ProductionOpts contains options for the production strategy
type ProductionOpts struct {
	WorkflowID string
	Pool       *pool.Executor
	Bus        *events.Bus
	Logger     Logger
	Backoff    time.Duration
}

// Production runs one loop runner per producer, all concurrently, and
// waits for every loop to terminate. Failures in one loop never
// contaminate another.
type Production struct {
	workflowID string
	pool       *pool.Executor
	bus        *events.Bus
	log        Logger
	backoff    time.Duration

	runners []*runner.LoopRunner
}

// NewProduction creates the production strategy
func NewProduction(opts *ProductionOpts) *Production {
	return &Production{
		workflowID: opts.WorkflowID,
		pool:       opts.Pool,
		bus:        opts.Bus,
		log:        opts.Logger,
		backoff:    opts.Backoff,
	}
}

// Prepare creates and initializes one loop runner per producer
func (s *Production) Prepare(ctx context.Context, g *graph.Graph) error {
	analyzer := graph.NewAnalyzer(g)
	producers := analyzer.Producers()
	if len(producers) == 0 {
		return fmt.Errorf("production workflow has no producers")
	}

	for _, producer := range producers {
		lr := runner.NewLoopRunner(&runner.Opts{
			WorkflowID: s.workflowID,
			Producer:   producer,
			Graph:      g,
			Pool:       s.pool,
			Bus:        s.bus,
			Logger:     s.log,
			Backoff:    s.backoff,
		})
		if err := lr.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize loop for producer %s: %w", producer.ID, err)
		}
		s.runners = append(s.runners, lr)
	}
	return nil
}

// Execute spawns every loop runner and blocks until all terminate
func (s *Production) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	s.bus.Publish(events.Event{
		Kind:       events.WorkflowStarted,
		WorkflowID: s.workflowID,
	})

	var wg sync.WaitGroup
	errs := make([]error, len(s.runners))
	for i, lr := range s.runners {
		wg.Add(1)
		go func(i int, lr *runner.LoopRunner) {
			defer wg.Done()
			errs[i] = lr.Run(ctx)
		}(i, lr)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.bus.Publish(events.Event{
				Kind:       events.WorkflowFailed,
				WorkflowID: s.workflowID,
				Error:      err.Error(),
			})
			return nil, err
		}
	}

	s.bus.Publish(events.Event{
		Kind:       events.WorkflowCompleted,
		WorkflowID: s.workflowID,
	})
	return nil, nil
}

// Shutdown stops every loop runner
func (s *Production) Shutdown(force bool) {
	for _, lr := range s.runners {
		lr.Shutdown(force)
	}
}
