package builtin

import (
	"context"

	"github.com/theoneeye/oneeye/engine/node"
)

// SetDataIdentifier is the registry tag of the data setter
const SetDataIdentifier = "set-data"

// SetData merges the rendered "values" form map into the payload under
// a collision-free key.
type SetData struct {
	node.Base
}

// NewSetData creates a data setter
func NewSetData(cfg *node.Config) *SetData {
	return &SetData{
		Base: node.NewBase(cfg, SetDataIdentifier, node.VariantBlocking, node.PoolCooperative, "values"),
	}
}

// Execute writes the rendered values into the accreting payload
func (n *SetData) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	values := n.Form()["values"]

	out := input.Derive(n.Config().ID, "set_data")
	key := node.UniqueOutputKey(input, "set_data")
	out.Data[key] = values
	return out, nil
}
