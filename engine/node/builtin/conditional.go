package builtin

import (
	"context"
	"sync"

	"github.com/theoneeye/oneeye/engine/node"
)

// ConditionIdentifier is the registry tag of the conditional node
const ConditionIdentifier = "condition"

// Condition evaluates a CEL predicate against the incoming payload and
// selects the yes or no branch for the scheduler.
type Condition struct {
	node.Base
	deps *Deps

	mu         sync.Mutex
	selected   string
	lastResult bool
}

// NewCondition creates a conditional node
func NewCondition(cfg *node.Config, deps *Deps) *Condition {
	return &Condition{
		Base: node.NewBase(cfg, ConditionIdentifier, node.VariantConditional, node.PoolCooperative, "condition"),
		deps: deps,
	}
}

// Execute evaluates the predicate and records the branch decision, both
// on the instance and in the output metadata so the decision survives
// the isolated-pool serialization boundary.
func (n *Condition) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	expr := n.FormString("condition")

	var data, meta map[string]any
	if input != nil {
		data, meta = input.Data, input.Meta
	}
	result, err := n.deps.Evaluator.Evaluate(expr, data, meta)
	if err != nil {
		return nil, err
	}

	branch := node.BranchNo
	if result {
		branch = node.BranchYes
	}

	n.mu.Lock()
	n.selected = branch
	n.lastResult = result
	n.mu.Unlock()

	out := input.Derive(n.Config().ID, "condition")
	out.Meta[node.MetaRoute] = branch
	return out, nil
}

// SelectedBranch returns the branch chosen by the last evaluation
func (n *Condition) SelectedBranch() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.selected
}

// LastResult returns the boolean outcome of the last evaluation
func (n *Condition) LastResult() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastResult
}

// BranchesToFollow returns exactly the selected branch; empty when no
// evaluation has happened yet. A cascading sentinel broadcasts.
func (n *Condition) BranchesToFollow(input *node.Output, available []string) []string {
	if input.Completed() {
		return available
	}

	selected := input.Route()
	if selected == node.BranchDefault {
		n.mu.Lock()
		selected = n.selected
		n.mu.Unlock()
	}
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
