package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/theoneeye/oneeye/engine/node"
)

// IntervalIdentifier is the registry tag of the interval producer
const IntervalIdentifier = "interval-trigger"

// Interval is a producer that emits one payload per tick
type Interval struct {
	node.Base
}

// NewInterval creates an interval producer
func NewInterval(cfg *node.Config) *Interval {
	return &Interval{
		Base: node.NewBase(cfg, IntervalIdentifier, node.VariantProducer, node.PoolCooperative, "interval"),
	}
}

// Execute sleeps for the configured interval and emits an iteration
// payload
func (n *Interval) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	interval, err := time.ParseDuration(n.FormString("interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid interval: %w", err)
	}

	select {
	case <-time.After(interval):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out := input.Derive(n.Config().ID, "interval")
	out.Data["interval"] = map[string]any{
		"iteration":  n.ExecutionCount() + 1,
		"emitted_at": time.Now().UTC().Format(time.RFC3339),
	}
	out.Meta[node.MetaIteration] = n.ExecutionCount() + 1
	return out, nil
}
