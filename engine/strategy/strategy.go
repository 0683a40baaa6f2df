package strategy

import (
	"context"

	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Strategy is the mode-specific execution driver contract
type Strategy interface {
	// Prepare inspects the graph and sets the strategy up
	Prepare(ctx context.Context, g *graph.Graph) error

	// Execute runs the workflow. Production blocks until every loop has
	// terminated; api and single-node return the resulting output.
	Execute(ctx context.Context, input *node.Output) (*node.Output, error)

	// Shutdown stops execution. Soft shutdown drains; force cancels.
	Shutdown(force bool)
}
