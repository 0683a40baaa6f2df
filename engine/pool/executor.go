package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/theoneeye/oneeye/engine/node"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Opts contains options for creating an executor
type Opts struct {
	// Registry rebuilds node instances on the isolated boundary
	Registry *node.Registry
	Logger   Logger

	// WorkerPoolSize bounds the worker_thread backend (default 8)
	WorkerPoolSize int

	// IsolatedPoolSize bounds the worker_process backend (default 4)
	IsolatedPoolSize int
}

// Executor dispatches one node invocation to its execution backend.
// Pools are created lazily on first use and torn down on Shutdown.
type Executor struct {
	registry     *node.Registry
	log          Logger
	workerSize   int
	isolatedSize int

	mu       sync.Mutex
	worker   *workerPool
	isolated *workerPool
	closed   bool
}

// NewExecutor creates a pool executor
func NewExecutor(opts *Opts) *Executor {
	workerSize := opts.WorkerPoolSize
	if workerSize < 1 {
		workerSize = 8
	}
	isolatedSize := opts.IsolatedPoolSize
	if isolatedSize < 1 {
		isolatedSize = 4
	}
	return &Executor{
		registry:     opts.Registry,
		log:          opts.Logger,
		workerSize:   workerSize,
		isolatedSize: isolatedSize,
	}
}

// Run executes one node invocation on the requested backend
func (e *Executor) Run(ctx context.Context, p node.Pool, n node.Node, input *node.Output) (*node.Output, error) {
	switch p {
	case node.PoolWorkerThread:
		pool, err := e.pool(&e.worker, e.workerSize)
		if err != nil {
			return nil, err
		}
		return pool.submit(ctx, func(ctx context.Context) (*node.Output, error) {
			return node.Run(ctx, n, input)
		})

	case node.PoolWorkerProcess:
		pool, err := e.pool(&e.isolated, e.isolatedSize)
		if err != nil {
			return nil, err
		}
		return pool.submit(ctx, func(ctx context.Context) (*node.Output, error) {
			return e.runIsolated(ctx, n, input)
		})

	default:
		// cooperative: await the node on the current task
		return node.Run(ctx, n, input)
	}
}

func (e *Executor) pool(slot **workerPool, size int) (*workerPool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("pool executor is shut down")
	}
	if *slot == nil {
		*slot = newWorkerPool(size)
	}
	return *slot, nil
}

// isolatedEnvelope crosses the worker_process serialization boundary
type isolatedEnvelope struct {
	Config *node.Config `json:"config"`
	Input  *node.Output `json:"input"`
}

// runIsolated serializes the instance and input, rebuilds both on the
// far side of the boundary, re-acquires resources via Setup, runs, and
// deserializes the result. Instance state does not travel back.
func (e *Executor) runIsolated(ctx context.Context, n node.Node, input *node.Output) (*node.Output, error) {
	payload, err := json.Marshal(isolatedEnvelope{Config: n.Config(), Input: input})
	if err != nil {
		return nil, fmt.Errorf("serialize for isolated run: %w", err)
	}

	var envelope isolatedEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("deserialize isolated envelope: %w", err)
	}

	rebuilt, err := e.registry.Create(envelope.Config)
	if err != nil {
		return nil, fmt.Errorf("rebuild node for isolated run: %w", err)
	}
	if err := rebuilt.Setup(ctx); err != nil {
		return nil, fmt.Errorf("isolated setup: %w", err)
	}

	out, err := node.Run(ctx, rebuilt, envelope.Input)
	if err != nil {
		return nil, err
	}

	raw, err := out.Encode()
	if err != nil {
		return nil, fmt.Errorf("serialize isolated result: %w", err)
	}
	return node.Decode(raw)
}

// Shutdown tears down the pools. Waits for in-flight jobs unless force
// is set.
func (e *Executor) Shutdown(force bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	worker, isolated := e.worker, e.isolated
	e.worker, e.isolated = nil, nil
	e.mu.Unlock()

	if worker != nil {
		worker.shutdown(force)
	}
	if isolated != nil {
		isolated.shutdown(force)
	}
	if e.log != nil {
		e.log.Debug("pool executor shut down", "force", force)
	}
}

type jobFunc func(ctx context.Context) (*node.Output, error)

type jobResult struct {
	out *node.Output
	err error
}

type job struct {
	ctx    context.Context
	fn     jobFunc
	result chan jobResult
}

// workerPool is a bounded set of workers draining a job channel
type workerPool struct {
	jobs chan *job
	wg   sync.WaitGroup
	once sync.Once
}

func newWorkerPool(size int) *workerPool {
	p := &workerPool{
		jobs: make(chan *job),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

func (p *workerPool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		if j.ctx.Err() != nil {
			j.result <- jobResult{err: j.ctx.Err()}
			continue
		}
		out, err := j.fn(j.ctx)
		j.result <- jobResult{out: out, err: err}
	}
}

func (p *workerPool) submit(ctx context.Context, fn jobFunc) (*node.Output, error) {
	j := &job{
		ctx:    ctx,
		fn:     fn,
		result: make(chan jobResult, 1),
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.result:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdown stops accepting jobs. When force is false it waits for
// in-flight jobs to finish; in-flight cancellation rides on the job
// contexts, which callers cancel on hard shutdown.
func (p *workerPool) shutdown(force bool) {
	p.once.Do(func() {
		close(p.jobs)
	})
	if !force {
		p.wg.Wait()
	}
}
