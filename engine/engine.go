// Package engine loads declarative workflow descriptions, validates and
// prepares them, and executes them as production loops, one-shot api
// walks, or single-node invocations.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/theoneeye/oneeye/common/cache"
	"github.com/theoneeye/oneeye/common/pubsub"
	"github.com/theoneeye/oneeye/common/queue"
	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/mode"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
	"github.com/theoneeye/oneeye/engine/prep"
	"github.com/theoneeye/oneeye/engine/state"
	"github.com/theoneeye/oneeye/engine/strategy"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// StrategyDeps is handed to strategy factories
type StrategyDeps struct {
	WorkflowID string
	Pool       *pool.Executor
	Bus        *events.Bus
	Logger     Logger
	Backoff    time.Duration
}

// StrategyFactory builds the execution driver for one mode
type StrategyFactory func(deps StrategyDeps) strategy.Strategy

// Opts contains options for creating an engine
type Opts struct {
	Registry      *node.Registry
	Queues        queue.Store
	Cache         cache.Store
	PubSub        pubsub.Store
	Validators    *prep.ValidatorRegistry
	Preprocessors *prep.PreprocessorRegistry
	Pool          *pool.Executor
	Logger        Logger

	// Backoff after a failed loop iteration (default 1s)
	Backoff time.Duration
}

// Engine is the top-level orchestrator: load, validate, preprocess,
// execute. It owns every active run of this instance.
type Engine struct {
	registry      *node.Registry
	queues        queue.Store
	cache         cache.Store
	pubsub        pubsub.Store
	validators    *prep.ValidatorRegistry
	preprocessors *prep.PreprocessorRegistry
	pool          *pool.Executor
	log           Logger
	backoff       time.Duration

	strategyMu sync.RWMutex
	strategies map[mode.Mode]StrategyFactory

	mu   sync.Mutex
	runs map[string]*Run
}

// Run is one loaded workflow with its execution machinery
type Run struct {
	WorkflowID string
	Mode       mode.Mode
	Graph      *graph.Graph
	Strategy   strategy.Strategy
	Bus        *events.Bus
	Tracker    *state.Tracker

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Err returns the terminal error of a finished run, if any
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when a production run has fully terminated
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// New creates an engine. Validators, preprocessors, and the pool
// executor default to the built-in set when not provided.
func New(opts *Opts) *Engine {
	validators, preprocessors := opts.Validators, opts.Preprocessors
	if validators == nil || preprocessors == nil {
		defaultValidators, defaultPreprocessors := prep.Defaults()
		if validators == nil {
			validators = defaultValidators
		}
		if preprocessors == nil {
			preprocessors = defaultPreprocessors
		}
	}

	executor := opts.Pool
	if executor == nil {
		executor = pool.NewExecutor(&pool.Opts{
			Registry: opts.Registry,
			Logger:   opts.Logger,
		})
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	e := &Engine{
		registry:      opts.Registry,
		queues:        opts.Queues,
		cache:         opts.Cache,
		pubsub:        opts.PubSub,
		validators:    validators,
		preprocessors: preprocessors,
		pool:          executor,
		log:           opts.Logger,
		backoff:       backoff,
		strategies:    make(map[mode.Mode]StrategyFactory),
		runs:          make(map[string]*Run),
	}

	e.RegisterStrategy(mode.Production, func(deps StrategyDeps) strategy.Strategy {
		return strategy.NewProduction(&strategy.ProductionOpts{
			WorkflowID: deps.WorkflowID,
			Pool:       deps.Pool,
			Bus:        deps.Bus,
			Logger:     deps.Logger,
			Backoff:    deps.Backoff,
		})
	})
	e.RegisterStrategy(mode.API, func(deps StrategyDeps) strategy.Strategy {
		return strategy.NewAPI(&strategy.APIOpts{
			WorkflowID: deps.WorkflowID,
			Pool:       deps.Pool,
			Bus:        deps.Bus,
			Logger:     deps.Logger,
		})
	})
	e.RegisterStrategy(mode.SingleNode, func(deps StrategyDeps) strategy.Strategy {
		return strategy.NewSingleNode(&strategy.SingleNodeOpts{
			WorkflowID: deps.WorkflowID,
			Pool:       deps.Pool,
			Bus:        deps.Bus,
			Logger:     deps.Logger,
		})
	})

	return e
}

// RegisterStrategy binds an execution driver factory to a mode
func (e *Engine) RegisterStrategy(m mode.Mode, factory StrategyFactory) {
	e.strategyMu.Lock()
	defer e.strategyMu.Unlock()
	e.strategies[m] = factory
}

// Load builds, classifies, validates, and preprocesses a workflow, and
// prepares its execution strategy. Build and validation errors reject
// the workflow.
func (e *Engine) Load(ctx context.Context, workflowID string, desc *graph.Description) (*Run, error) {
	builder := graph.NewBuilder(e.registry)
	g, err := builder.Build(desc)
	if err != nil {
		return nil, err
	}

	m, err := mode.Detect(desc.WorkflowType, g)
	if err != nil {
		return nil, err
	}

	if err := e.validators.Run(g, m); err != nil {
		return nil, err
	}
	if err := e.preprocessors.Run(g, m); err != nil {
		return nil, err
	}

	e.strategyMu.RLock()
	factory, ok := e.strategies[m]
	e.strategyMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no execution strategy registered for mode %s", m)
	}

	bus := events.NewBus(busLogger{e.log})
	tracker := state.NewTracker(workflowID, bus)

	strat := factory(StrategyDeps{
		WorkflowID: workflowID,
		Pool:       e.pool,
		Bus:        bus,
		Logger:     e.log,
		Backoff:    e.backoff,
	})
	if err := strat.Prepare(ctx, g); err != nil {
		return nil, err
	}

	return &Run{
		WorkflowID: workflowID,
		Mode:       m,
		Graph:      g,
		Strategy:   strat,
		Bus:        bus,
		Tracker:    tracker,
		done:       make(chan struct{}),
	}, nil
}

// Start loads a workflow and begins executing it in the background.
// Meant for production workflows; the run terminates when every loop
// has drained or Stop is called.
func (e *Engine) Start(ctx context.Context, workflowID string, desc *graph.Description) (*Run, error) {
	e.mu.Lock()
	if _, exists := e.runs[workflowID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %s is already running", workflowID)
	}
	e.mu.Unlock()

	run, err := e.Load(ctx, workflowID, desc)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run.cancel = cancel

	e.mu.Lock()
	e.runs[workflowID] = run
	e.mu.Unlock()

	go func() {
		defer close(run.done)
		_, err := run.Strategy.Execute(runCtx, nil)
		run.mu.Lock()
		run.err = err
		run.mu.Unlock()

		e.mu.Lock()
		delete(e.runs, workflowID)
		e.mu.Unlock()

		if err != nil {
			e.log.Error("workflow execution failed", "workflow_id", workflowID, "error", err)
		} else {
			e.log.Info("workflow execution finished", "workflow_id", workflowID)
		}
	}()

	return run, nil
}

// Execute loads and synchronously runs a one-shot workflow (api or
// single-node) and returns the resulting output.
func (e *Engine) Execute(ctx context.Context, workflowID string, desc *graph.Description, input *node.Output) (*node.Output, error) {
	run, err := e.Load(ctx, workflowID, desc)
	if err != nil {
		return nil, err
	}
	if run.Mode == mode.Production {
		return nil, fmt.Errorf("workflow %s is a production workflow; use Start", workflowID)
	}
	return run.Strategy.Execute(ctx, input)
}

// Stop requests a graceful stop: loops finish their current iteration
// and drain through sentinel cascades.
func (e *Engine) Stop(workflowID string) error {
	run, err := e.lookup(workflowID)
	if err != nil {
		return err
	}
	run.Strategy.Shutdown(false)
	return nil
}

// ForceStop cancels the run and best-effort cancels in-flight work
func (e *Engine) ForceStop(workflowID string) error {
	run, err := e.lookup(workflowID)
	if err != nil {
		return err
	}
	run.Strategy.Shutdown(true)
	if run.cancel != nil {
		run.cancel()
	}
	return nil
}

// Status returns a consistent snapshot of a running workflow
func (e *Engine) Status(workflowID string) (state.Snapshot, error) {
	run, err := e.lookup(workflowID)
	if err != nil {
		return state.Snapshot{}, err
	}
	return run.Tracker.Snapshot(), nil
}

// Runs returns the ids of currently active workflows
func (e *Engine) Runs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	return ids
}

// Lookup returns an active run
func (e *Engine) Lookup(workflowID string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[workflowID]
	return run, ok
}

func (e *Engine) lookup(workflowID string) (*Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s is not running", workflowID)
	}
	return run, nil
}

// ExecuteNode runs one node of a workflow in development mode. When
// input is nil the immediate upstream outputs are resolved from the
// cache (<node_id>_output keys); the node's own output is written back
// under the same convention.
func (e *Engine) ExecuteNode(ctx context.Context, desc *graph.Description, nodeID string, input *node.Output) (*node.Output, error) {
	builder := graph.NewBuilder(e.registry)
	g, err := builder.Build(desc)
	if err != nil {
		return nil, err
	}

	target, ok := g.Lookup(nodeID)
	if !ok {
		return nil, fmt.Errorf("node %s not found in workflow", nodeID)
	}
	if ok, errs := target.Node.IsReady(); !ok {
		return nil, fmt.Errorf("node %s is not ready: %v", nodeID, errs)
	}

	if input == nil {
		input, err = e.resolveUpstream(ctx, g, nodeID)
		if err != nil {
			return nil, err
		}
	}

	if err := target.Node.Initialize(ctx); err != nil {
		return nil, err
	}
	if err := target.Node.Setup(ctx); err != nil {
		return nil, err
	}

	out, err := e.pool.Run(ctx, target.Node.PreferredPool(), target.Node, input)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, nodeID+"_output", out.Data, 0); err != nil {
			e.log.Warn("failed to cache node output", "node_id", nodeID, "error", err)
		}
	}
	return out, nil
}

// resolveUpstream materializes the node's input from the cached outputs
// of its immediate predecessors, merged in graph insertion order.
func (e *Engine) resolveUpstream(ctx context.Context, g *graph.Graph, nodeID string) (*node.Output, error) {
	input := node.NewOutput(nodeID)
	if e.cache == nil {
		return input, nil
	}

	for _, upstream := range g.UpstreamOf(nodeID) {
		raw, found, err := e.cache.Get(ctx, upstream.ID+"_output")
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("cached output of %s is malformed: %w", upstream.ID, err)
		}
		for k, v := range data {
			input.Data[k] = v
		}
	}
	return input, nil
}

// Shutdown stops every active run and tears down the pools
func (e *Engine) Shutdown(force bool) {
	e.mu.Lock()
	runs := make([]*Run, 0, len(e.runs))
	for _, run := range e.runs {
		runs = append(runs, run)
	}
	e.mu.Unlock()

	for _, run := range runs {
		run.Strategy.Shutdown(force)
		if force && run.cancel != nil {
			run.cancel()
		}
	}
	for _, run := range runs {
		if !force {
			<-run.done
		}
	}
	e.pool.Shutdown(force)
}

// busLogger adapts the engine logger to the event bus
type busLogger struct {
	log Logger
}

func (b busLogger) Error(msg string, keysAndValues ...interface{}) {
	if b.log != nil {
		b.log.Error(msg, keysAndValues...)
	}
}
