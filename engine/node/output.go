package node

import (
	"encoding/json"
	"fmt"
)

// CompletedKey is the metadata flag carried by a CompletionSentinel.
// It survives JSON serialization through the queue substrate.
const CompletedKey = "__execution_completed__"

// Metadata keys written by node executions
const (
	MetaSourceNode = "source_node"
	MetaOperation  = "operation"
	MetaIteration  = "iteration"
	MetaRoute      = "route"
	MetaResponse   = "response_ready"
)

// Output is the payload a node produces: a data map accreting across the
// chain plus provenance metadata.
type Output struct {
	NodeID string         `json:"node_id"`
	Data   map[string]any `json:"data"`
	Meta   map[string]any `json:"metadata"`
}

// NewOutput creates an output with initialized maps
func NewOutput(nodeID string) *Output {
	return &Output{
		NodeID: nodeID,
		Data:   make(map[string]any),
		Meta:   make(map[string]any),
	}
}

// NewSentinel creates a CompletionSentinel originating from nodeID
func NewSentinel(nodeID string) *Output {
	o := NewOutput(nodeID)
	o.Meta[CompletedKey] = true
	return o
}

// Completed reports whether this output is a CompletionSentinel
func (o *Output) Completed() bool {
	if o == nil || o.Meta == nil {
		return false
	}
	v, ok := o.Meta[CompletedKey].(bool)
	return ok && v
}

// Route returns the branch decision recorded by the producing node,
// falling back to the default branch.
func (o *Output) Route() string {
	if o != nil && o.Meta != nil {
		if r, ok := o.Meta[MetaRoute].(string); ok && r != "" {
			return r
		}
	}
	return BranchDefault
}

// ResponseReady reports whether a terminal/response node produced this
func (o *Output) ResponseReady() bool {
	if o == nil || o.Meta == nil {
		return false
	}
	v, ok := o.Meta[MetaResponse].(bool)
	return ok && v
}

// Derive creates a successor output: data is carried forward (shallow
// copy, payloads accrete across the chain), metadata starts fresh with
// provenance fields.
func (o *Output) Derive(nodeID, operation string) *Output {
	next := NewOutput(nodeID)
	if o != nil {
		for k, v := range o.Data {
			next.Data[k] = v
		}
	}
	next.Meta[MetaSourceNode] = nodeID
	next.Meta[MetaOperation] = operation
	return next
}

// Encode serializes the output for the queue substrate
func (o *Output) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// Decode deserializes a queue message back into an output. The sentinel
// flag is preserved through serialization.
func Decode(payload []byte) (*Output, error) {
	var o Output
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, err
	}
	if o.Data == nil {
		o.Data = make(map[string]any)
	}
	if o.Meta == nil {
		o.Meta = make(map[string]any)
	}
	return &o, nil
}

// UniqueOutputKey returns base, base_2, base_3, ... so multiple
// instances of one node type can merge outputs into a single data map
// without collision. Deterministic for a given input.
func UniqueOutputKey(input *Output, base string) string {
	if input == nil || input.Data == nil {
		return base
	}
	if _, taken := input.Data[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		key := fmt.Sprintf("%s_%d", base, i)
		if _, taken := input.Data[key]; !taken {
			return key
		}
	}
}
