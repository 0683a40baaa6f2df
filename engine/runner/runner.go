package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
)

// Opts contains options for creating a loop runner
type Opts struct {
	WorkflowID string
	Producer   *graph.Wrapper
	Graph      *graph.Graph
	Pool       *pool.Executor
	Bus        *events.Bus
	Logger     Logger

	// Backoff after a failed iteration (default 1s)
	Backoff time.Duration
}

// LoopRunner owns exactly one producer and the subgraph induced by it.
// It drives the step loop: call the producer, route its output through
// the downstream nodes, repeat. Iterations of one producer never
// interleave.
type LoopRunner struct {
	workflowID string
	producer   *graph.Wrapper
	graph      *graph.Graph
	pool       *pool.Executor
	bus        *events.Bus
	log        Logger
	backoff    time.Duration

	walker    *Walker
	iterPool  node.Pool
	chain     []*graph.Wrapper
	iteration int

	running atomic.Bool
	cancel  context.CancelFunc
	mu      sync.Mutex
	done    chan struct{}
}

// NewLoopRunner creates a loop runner for one producer
func NewLoopRunner(opts *Opts) *LoopRunner {
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	lr := &LoopRunner{
		workflowID: opts.WorkflowID,
		producer:   opts.Producer,
		graph:      opts.Graph,
		pool:       opts.Pool,
		bus:        opts.Bus,
		log:        opts.Logger,
		backoff:    backoff,
		done:       make(chan struct{}),
	}
	// Running from construction, so a Shutdown issued before Run starts
	// is not overwritten when Run begins.
	lr.running.Store(true)
	return lr
}

// Initialize walks the producer's subgraph once, calling each node's
// Initialize and Setup, deduped across diamonds, and computes the
// iteration pool: the max-priority preference of every node the
// iteration may touch.
func (r *LoopRunner) Initialize(ctx context.Context) error {
	analyzer := graph.NewAnalyzer(r.graph)
	r.chain = analyzer.Chain(r.producer.ID)

	iterPool := node.PoolCooperative
	for _, w := range r.chain {
		if err := w.Node.Initialize(ctx); err != nil {
			return err
		}
		if err := w.Node.Setup(ctx); err != nil {
			return err
		}
		iterPool = iterPool.Max(w.Node.PreferredPool())
	}
	r.iterPool = iterPool

	r.walker = &Walker{
		Pool:       r.pool,
		PoolClass:  iterPool,
		Bus:        r.bus,
		WorkflowID: r.workflowID,
		Log:        r.log,
	}

	r.log.Debug("loop runner initialized",
		"workflow_id", r.workflowID,
		"producer", r.producer.ID,
		"chain_size", len(r.chain),
		"iteration_pool", string(iterPool))
	return nil
}

// IterationPool returns the pool every iteration runs on
func (r *LoopRunner) IterationPool() node.Pool {
	return r.iterPool
}

// Run drives the step loop until a CompletionSentinel arrives or
// shutdown is requested. A failed iteration is logged, backed off, and
// abandoned; the loop then continues with the next iteration.
func (r *LoopRunner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer close(r.done)
	defer cancel()

	for r.running.Load() && ctx.Err() == nil {
		r.iteration++

		out, err := r.walker.RunNode(ctx, r.producer, nil, r.iteration)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("producer iteration failed",
				"workflow_id", r.workflowID,
				"producer", r.producer.ID,
				"iteration", r.iteration,
				"error", err)
			r.sleep(ctx)
			continue
		}

		if out.Completed() {
			// Drain: broadcast the sentinel through the subgraph, then
			// stop. The cascade runs exactly once per sentinel.
			r.cascade(ctx, out)
			r.running.Store(false)
			return nil
		}

		if _, _, err := r.walker.Descend(ctx, r.producer, out, r.iteration); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Error("iteration failed",
				"workflow_id", r.workflowID,
				"producer", r.producer.ID,
				"iteration", r.iteration,
				"error", err)
			r.sleep(ctx)
			continue
		}
	}

	// Soft shutdown: give every node one last chance to release
	// resources and emit its own sentinel (queue writers push theirs
	// downstream here).
	if ctx.Err() == nil {
		r.cascade(ctx, node.NewSentinel(r.producer.ID))
	}
	return nil
}

// cascade broadcasts a CompletionSentinel through the subgraph. Every
// reachable node is visited exactly once (diamonds included) and has
// its cleanup invoked exactly once; the producer's own cleanup runs
// first.
func (r *LoopRunner) cascade(ctx context.Context, sentinel *node.Output) {
	if err := r.producer.Node.Cleanup(ctx, sentinel); err != nil {
		r.log.Error("producer cleanup failed",
			"workflow_id", r.workflowID,
			"producer", r.producer.ID,
			"error", err)
	}

	visited := map[string]bool{r.producer.ID: true}
	r.cascadeFrom(ctx, r.producer, sentinel, visited)
}

func (r *LoopRunner) cascadeFrom(ctx context.Context, current *graph.Wrapper, sentinel *node.Output, visited map[string]bool) {
	keys := current.Node.BranchesToFollow(sentinel, current.BranchKeys())
	for _, key := range keys {
		for _, next := range current.Next(key) {
			if visited[next.ID] {
				continue
			}
			// Another loop's producer drains through its queue, not here
			if next.Node.Variant() == node.VariantProducer {
				continue
			}
			visited[next.ID] = true

			// Run with the sentinel input: the node's composite entry
			// invokes cleanup and passes the sentinel through.
			if _, err := r.pool.Run(ctx, r.iterPool, next.Node, sentinel); err != nil {
				r.log.Error("sentinel cleanup failed",
					"workflow_id", r.workflowID,
					"node_id", next.ID,
					"error", err)
			}
			r.cascadeFrom(ctx, next, sentinel, visited)
		}
	}
}

func (r *LoopRunner) sleep(ctx context.Context) {
	select {
	case <-time.After(r.backoff):
	case <-ctx.Done():
	}
}

// Shutdown stops the loop. Soft shutdown lets the current iteration
// finish and then drains via a sentinel cascade; force shutdown cancels
// the producer task and best-effort cancels in-flight work.
func (r *LoopRunner) Shutdown(force bool) {
	r.running.Store(false)
	if force {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel()
		}
		r.mu.Unlock()
	}
}

// Done is closed when the loop has fully exited
func (r *LoopRunner) Done() <-chan struct{} {
	return r.done
}
