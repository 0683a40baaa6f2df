package builtin

import (
	"context"

	"github.com/theoneeye/oneeye/engine/node"
)

// Registry tags of the terminal nodes
const (
	LogOutputIdentifier = "log-output"
	RespondIdentifier   = "respond"
)

// LogOutput is a non-blocking terminator: it logs the payload and the
// scheduler does not descend from it within the iteration.
type LogOutput struct {
	node.Base
	deps *Deps
}

// NewLogOutput creates a log terminator
func NewLogOutput(cfg *node.Config, deps *Deps) *LogOutput {
	return &LogOutput{
		Base: node.NewBase(cfg, LogOutputIdentifier, node.VariantNonBlocking, node.PoolCooperative),
		deps: deps,
	}
}

// Execute logs the accreted payload
func (n *LogOutput) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	out := input.Derive(n.Config().ID, "log_output")
	if n.deps.Logger != nil {
		n.deps.Logger.Info("workflow output",
			"node_id", n.Config().ID,
			"data", out.Data)
	}
	return out, nil
}

// Respond is the terminal node of an api walk: it marks its output as
// the response and the walk stops there.
type Respond struct {
	node.Base
}

// NewRespond creates a response node
func NewRespond(cfg *node.Config) *Respond {
	return &Respond{
		Base: node.NewBase(cfg, RespondIdentifier, node.VariantBlocking, node.PoolCooperative),
	}
}

// Responds marks this node as an api terminal
func (n *Respond) Responds() bool { return true }

// Execute flags the payload as the walk's response
func (n *Respond) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	out := input.Derive(n.Config().ID, "respond")
	out.Meta[node.MetaResponse] = true
	return out, nil
}
