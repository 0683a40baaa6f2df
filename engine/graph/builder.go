package graph

import (
	"encoding/json"
	"fmt"

	"github.com/theoneeye/oneeye/engine/node"
)

// Description is the declarative workflow format handed to the engine
type Description struct {
	WorkflowType string         `json:"workflow_type,omitempty"`
	Nodes        []*node.Config `json:"nodes"`
	Edges        []EdgeSpec     `json:"edges"`
}

// EdgeSpec describes one directed edge of the description
type EdgeSpec struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"sourceHandle"`
}

// ParseDescription decodes a JSON workflow description
func ParseDescription(payload []byte) (*Description, error) {
	var desc Description
	if err := json.Unmarshal(payload, &desc); err != nil {
		return nil, fmt.Errorf("malformed workflow description: %w", err)
	}
	return &desc, nil
}

// Builder materializes a graph from a declarative description,
// resolving each node's type through the registry.
type Builder struct {
	registry *node.Registry
}

// NewBuilder creates a graph builder over the given registry
func NewBuilder(registry *node.Registry) *Builder {
	return &Builder{registry: registry}
}

// Build instantiates every node and wires every edge. Unknown node
// types and dangling edges fail fast, naming the offender.
func (b *Builder) Build(desc *Description) (*Graph, error) {
	g := New()

	for _, cfg := range desc.Nodes {
		if cfg.ID == "" {
			return nil, fmt.Errorf("node with empty id in description")
		}
		instance, err := b.registry.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
		if _, err := g.Add(cfg.ID, instance); err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
	}

	for _, edge := range desc.Edges {
		key := NormalizeBranchKey(edge.SourceHandle)
		if err := g.Connect(edge.Source, edge.Target, key); err != nil {
			return nil, fmt.Errorf("build graph: %w", err)
		}
	}

	return g, nil
}
