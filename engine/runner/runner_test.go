package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoneeye/oneeye/engine/events"
	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
	"github.com/theoneeye/oneeye/engine/pool"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Error(msg string, keysAndValues ...interface{}) { l.t.Logf("[ERROR] %s %v", msg, keysAndValues) }
func (l *testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {}

// recorder collects node activity across the fakes
type recorder struct {
	mu       sync.Mutex
	executed []string
	cleaned  []string
}

func (r *recorder) exec(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, id)
}

func (r *recorder) clean(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleaned = append(r.cleaned, id)
}

func (r *recorder) executedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.executed))
	copy(out, r.executed)
	return out
}

func (r *recorder) cleanedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cleaned))
	copy(out, r.cleaned)
	return out
}

// scriptProducer emits its scripted payloads in order, then a sentinel
type scriptProducer struct {
	node.Base
	rec     *recorder
	scripts []map[string]any
	errAt   int // 1-based iteration that fails once; 0 = never

	mu      sync.Mutex
	calls   int
	emitted int
}

func newScriptProducer(id string, rec *recorder, scripts []map[string]any) *scriptProducer {
	return &scriptProducer{
		Base:    node.NewBase(&node.Config{ID: id, Type: "script-producer"}, "script-producer", node.VariantProducer, node.PoolCooperative),
		rec:     rec,
		scripts: scripts,
	}
}

func (n *scriptProducer) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++

	if n.errAt != 0 && n.calls == n.errAt {
		return nil, fmt.Errorf("scripted failure")
	}

	n.rec.exec(n.Config().ID)

	if n.emitted >= len(n.scripts) {
		return node.NewSentinel(n.Config().ID), nil
	}

	out := node.NewOutput(n.Config().ID)
	for k, v := range n.scripts[n.emitted] {
		out.Data[k] = v
	}
	n.emitted++
	return out, nil
}

func (n *scriptProducer) Cleanup(ctx context.Context, input *node.Output) error {
	n.rec.clean(n.Config().ID)
	return nil
}

// task is a plain blocking node
type task struct {
	node.Base
	rec *recorder
}

func newTask(id string, rec *recorder, p node.Pool) *task {
	return &task{
		Base: node.NewBase(&node.Config{ID: id, Type: "task"}, "task", node.VariantBlocking, p),
		rec:  rec,
	}
}

func (n *task) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	n.rec.exec(n.Config().ID)
	return input.Derive(n.Config().ID, "task"), nil
}

func (n *task) Cleanup(ctx context.Context, input *node.Output) error {
	n.rec.clean(n.Config().ID)
	return nil
}

// terminator is non-blocking: the walk must not descend from it
type terminator struct {
	node.Base
	rec *recorder
}

func newTerminator(id string, rec *recorder) *terminator {
	return &terminator{
		Base: node.NewBase(&node.Config{ID: id, Type: "terminator"}, "terminator", node.VariantNonBlocking, node.PoolCooperative),
		rec:  rec,
	}
}

func (n *terminator) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	n.rec.exec(n.Config().ID)
	return input.Derive(n.Config().ID, "terminator"), nil
}

func (n *terminator) Cleanup(ctx context.Context, input *node.Output) error {
	n.rec.clean(n.Config().ID)
	return nil
}

// threshold is a conditional selecting yes when data.x > 3
type threshold struct {
	node.Base
	rec *recorder

	mu       sync.Mutex
	selected string
}

func newThreshold(id string, rec *recorder) *threshold {
	return &threshold{
		Base: node.NewBase(&node.Config{ID: id, Type: "threshold"}, "threshold", node.VariantConditional, node.PoolCooperative),
		rec:  rec,
	}
}

func (n *threshold) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	n.rec.exec(n.Config().ID)

	branch := node.BranchNo
	if x, ok := input.Data["x"].(int); ok && x > 3 {
		branch = node.BranchYes
	}

	n.mu.Lock()
	n.selected = branch
	n.mu.Unlock()

	out := input.Derive(n.Config().ID, "threshold")
	out.Meta[node.MetaRoute] = branch
	return out, nil
}

func (n *threshold) BranchesToFollow(input *node.Output, available []string) []string {
	if input.Completed() {
		return available
	}
	n.mu.Lock()
	selected := n.selected
	n.mu.Unlock()
	if selected == "" {
		return nil
	}
	for _, key := range available {
		if key == selected {
			return []string{selected}
		}
	}
	return nil
}

func (n *threshold) Cleanup(ctx context.Context, input *node.Output) error {
	n.rec.clean(n.Config().ID)
	return nil
}

type eventRecord struct {
	kind  events.Kind
	node  string
	route string
	iter  int
}

func collectEvents(bus *events.Bus) *[]eventRecord {
	var mu sync.Mutex
	records := &[]eventRecord{}
	bus.Subscribe(func(ev events.Event) {
		mu.Lock()
		defer mu.Unlock()
		*records = append(*records, eventRecord{kind: ev.Kind, node: ev.NodeID, route: ev.Route, iter: ev.Iteration})
	})
	return records
}

func testHarness(t *testing.T) (*pool.Executor, *events.Bus, *[]eventRecord) {
	t.Helper()
	executor := pool.NewExecutor(&pool.Opts{
		Registry: node.NewRegistry(),
		Logger:   &testLogger{t: t},
	})
	t.Cleanup(func() { executor.Shutdown(true) })
	bus := events.NewBus(&testLogger{t: t})
	return executor, bus, collectEvents(bus)
}

func connect(t *testing.T, g *graph.Graph, from, to, key string) {
	t.Helper()
	require.NoError(t, g.Connect(from, to, key))
}

func add(t *testing.T, g *graph.Graph, id string, n node.Node) {
	t.Helper()
	_, err := g.Add(id, n)
	require.NoError(t, err)
}

func TestConditionalRouting(t *testing.T) {
	executor, bus, records := testHarness(t)
	rec := &recorder{}

	g := graph.New()
	producer := newScriptProducer("P", rec, []map[string]any{{"x": 5}, {"x": 1}})
	add(t, g, "P", producer)
	add(t, g, "C", newThreshold("C", rec))
	add(t, g, "A", newTask("A", rec, node.PoolCooperative))
	add(t, g, "B", newTask("B", rec, node.PoolCooperative))
	add(t, g, "Z", newTask("Z", rec, node.PoolCooperative))
	connect(t, g, "P", "C", "default")
	connect(t, g, "C", "A", "yes")
	connect(t, g, "C", "B", "no")
	connect(t, g, "A", "Z", "default")
	connect(t, g, "B", "Z", "default")

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
		Backoff:    10 * time.Millisecond,
	})
	require.NoError(t, lr.Initialize(context.Background()))
	require.NoError(t, lr.Run(context.Background()))

	// Iteration 1: x=5 routes yes; B is not invoked.
	// Iteration 2: x=1 routes no; A is not invoked.
	// Iteration 3: P is executed once more and emits the sentinel.
	assert.Equal(t, []string{"P", "C", "A", "Z", "P", "C", "B", "Z", "P"}, rec.executedIDs())

	expected := []eventRecord{
		{events.NodeStarted, "P", "", 1},
		{events.NodeCompleted, "P", "default", 1},
		{events.NodeStarted, "C", "", 1},
		{events.NodeCompleted, "C", "yes", 1},
		{events.NodeStarted, "A", "", 1},
		{events.NodeCompleted, "A", "default", 1},
		{events.NodeStarted, "Z", "", 1},
		{events.NodeCompleted, "Z", "default", 1},
		{events.NodeStarted, "P", "", 2},
		{events.NodeCompleted, "P", "default", 2},
		{events.NodeStarted, "C", "", 2},
		{events.NodeCompleted, "C", "no", 2},
		{events.NodeStarted, "B", "", 2},
		{events.NodeCompleted, "B", "default", 2},
		{events.NodeStarted, "Z", "", 2},
		{events.NodeCompleted, "Z", "default", 2},
		// iteration 3 pops the sentinel and drains
		{events.NodeStarted, "P", "", 3},
		{events.NodeCompleted, "P", "default", 3},
	}
	assert.Equal(t, expected, *records)

	// Sentinel cascade: every reachable node cleaned exactly once
	assert.ElementsMatch(t, []string{"P", "C", "A", "B", "Z"}, rec.cleanedIDs())
}

func TestIntraLoopEventMonotonicity(t *testing.T) {
	executor, bus, records := testHarness(t)
	rec := &recorder{}

	g := graph.New()
	add(t, g, "P", newScriptProducer("P", rec, []map[string]any{{"x": 1}, {"x": 2}, {"x": 3}}))
	add(t, g, "A", newTask("A", rec, node.PoolCooperative))
	connect(t, g, "P", "A", "default")

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
	})
	require.NoError(t, lr.Initialize(context.Background()))
	require.NoError(t, lr.Run(context.Background()))

	lastIteration := 0
	for _, ev := range *records {
		assert.GreaterOrEqual(t, ev.iter, lastIteration, "events of a later iteration must not precede an earlier one")
		lastIteration = ev.iter
	}
}

func TestNonBlockingStopsDescent(t *testing.T) {
	executor, bus, _ := testHarness(t)
	rec := &recorder{}

	g := graph.New()
	add(t, g, "P", newScriptProducer("P", rec, []map[string]any{{"x": 1}}))
	add(t, g, "T", newTerminator("T", rec))
	add(t, g, "X", newTask("X", rec, node.PoolCooperative))
	connect(t, g, "P", "T", "default")
	connect(t, g, "T", "X", "default")

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
	})
	require.NoError(t, lr.Initialize(context.Background()))
	require.NoError(t, lr.Run(context.Background()))

	// The second P is the call that emits the sentinel
	assert.Equal(t, []string{"P", "T", "P"}, rec.executedIDs())

	// The sentinel cascade still reaches X for cleanup
	assert.ElementsMatch(t, []string{"P", "T", "X"}, rec.cleanedIDs())
}

func TestFailedIterationBacksOffAndContinues(t *testing.T) {
	executor, bus, records := testHarness(t)
	rec := &recorder{}

	producer := newScriptProducer("P", rec, []map[string]any{{"x": 1}})
	producer.errAt = 1

	g := graph.New()
	add(t, g, "P", producer)
	add(t, g, "A", newTask("A", rec, node.PoolCooperative))
	connect(t, g, "P", "A", "default")

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
		Backoff:    5 * time.Millisecond,
	})
	require.NoError(t, lr.Initialize(context.Background()))

	start := time.Now()
	require.NoError(t, lr.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	var kinds []events.Kind
	for _, ev := range *records {
		kinds = append(kinds, ev.kind)
	}
	assert.Contains(t, kinds, events.NodeFailed)

	// the payload after the failed iteration still flowed through A
	assert.Contains(t, rec.executedIDs(), "A")
}

func TestIterationPoolEscalation(t *testing.T) {
	executor, bus, _ := testHarness(t)
	rec := &recorder{}

	build := func(pools []node.Pool) *LoopRunner {
		g := graph.New()
		add(t, g, "P", newScriptProducer("P", rec, nil))
		prev := "P"
		for i, p := range pools {
			id := fmt.Sprintf("n%d", i)
			add(t, g, id, newTask(id, rec, p))
			connect(t, g, prev, id, "default")
			prev = id
		}
		producerWrapper, _ := g.Lookup("P")
		return NewLoopRunner(&Opts{
			WorkflowID: "wf",
			Producer:   producerWrapper,
			Graph:      g,
			Pool:       executor,
			Bus:        bus,
			Logger:     &testLogger{t: t},
		})
	}

	lr := build([]node.Pool{node.PoolCooperative, node.PoolWorkerThread, node.PoolCooperative})
	require.NoError(t, lr.Initialize(context.Background()))
	assert.Equal(t, node.PoolWorkerThread, lr.IterationPool())

	lr = build([]node.Pool{node.PoolCooperative, node.PoolWorkerProcess, node.PoolWorkerThread})
	require.NoError(t, lr.Initialize(context.Background()))
	assert.Equal(t, node.PoolWorkerProcess, lr.IterationPool())
}

// slowProducer emits forever with a small delay
type slowProducer struct {
	node.Base
	rec *recorder
}

func (n *slowProducer) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	n.rec.exec(n.Config().ID)
	out := node.NewOutput(n.Config().ID)
	out.Data["tick"] = true
	return out, nil
}

func (n *slowProducer) Cleanup(ctx context.Context, input *node.Output) error {
	n.rec.clean(n.Config().ID)
	return nil
}

func TestSoftShutdownDrainsViaSentinel(t *testing.T) {
	executor, bus, _ := testHarness(t)
	rec := &recorder{}

	g := graph.New()
	producer := &slowProducer{
		Base: node.NewBase(&node.Config{ID: "P", Type: "slow"}, "slow", node.VariantProducer, node.PoolCooperative),
		rec:  rec,
	}
	add(t, g, "P", producer)
	add(t, g, "A", newTask("A", rec, node.PoolCooperative))
	connect(t, g, "P", "A", "default")

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
	})
	require.NoError(t, lr.Initialize(context.Background()))

	go lr.Run(context.Background())

	// let a few iterations happen, then stop gracefully
	time.Sleep(30 * time.Millisecond)
	lr.Shutdown(false)

	select {
	case <-lr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not drain after soft shutdown")
	}

	assert.Equal(t, []string{"P", "A"}, rec.cleanedIDs())
	assert.NotEmpty(t, rec.executedIDs())
}

func TestForceShutdownCancels(t *testing.T) {
	executor, bus, _ := testHarness(t)
	rec := &recorder{}

	g := graph.New()
	producer := &slowProducer{
		Base: node.NewBase(&node.Config{ID: "P", Type: "slow"}, "slow", node.VariantProducer, node.PoolCooperative),
		rec:  rec,
	}
	add(t, g, "P", producer)

	producerWrapper, _ := g.Lookup("P")
	lr := NewLoopRunner(&Opts{
		WorkflowID: "wf",
		Producer:   producerWrapper,
		Graph:      g,
		Pool:       executor,
		Bus:        bus,
		Logger:     &testLogger{t: t},
	})
	require.NoError(t, lr.Initialize(context.Background()))

	go lr.Run(context.Background())
	time.Sleep(10 * time.Millisecond)
	lr.Shutdown(true)

	select {
	case <-lr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after force shutdown")
	}

	// a cancelled loop does not drain
	assert.Empty(t, rec.cleanedIDs())
}
