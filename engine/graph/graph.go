package graph

import (
	"fmt"

	"github.com/theoneeye/oneeye/engine/node"
)

// Wrapper pairs a stable id with a node instance and its outbound
// adjacency. The graph exclusively owns wrappers; lookups through the
// graph's node map are authoritative.
type Wrapper struct {
	ID   string
	Node node.Node

	next      map[string][]*Wrapper
	nextOrder []string
}

// Next returns the downstream wrappers under one branch key, in
// insertion order (which is evaluation order).
func (w *Wrapper) Next(key string) []*Wrapper {
	return w.next[key]
}

// BranchKeys returns the outbound branch keys in first-connected order
func (w *Wrapper) BranchKeys() []string {
	return w.nextOrder
}

// HasNext reports whether any outbound edge exists
func (w *Wrapper) HasNext() bool {
	return len(w.nextOrder) > 0
}

// Graph is the keyed mapping from node id to wrapper. It is mutated
// only during build and pre-processing and frozen for the duration of
// a run.
type Graph struct {
	nodes map[string]*Wrapper
	order []string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Wrapper),
	}
}

// Add inserts a wrapper for the given node instance
func (g *Graph) Add(id string, n node.Node) (*Wrapper, error) {
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("duplicate node id %q", id)
	}
	w := &Wrapper{
		ID:   id,
		Node: n,
		next: make(map[string][]*Wrapper),
	}
	g.nodes[id] = w
	g.order = append(g.order, id)
	return w, nil
}

// Connect adds a directed edge under the given branch key. Both
// endpoints must already exist. Connecting twice under the same key
// appends, preserving insertion order.
func (g *Graph) Connect(fromID, toID, branchKey string) error {
	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("edge source %q not found", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("edge target %q not found", toID)
	}

	if _, seen := from.next[branchKey]; !seen {
		from.nextOrder = append(from.nextOrder, branchKey)
	}
	from.next[branchKey] = append(from.next[branchKey], to)
	return nil
}

// Lookup returns the wrapper for id
func (g *Graph) Lookup(id string) (*Wrapper, bool) {
	w, ok := g.nodes[id]
	return w, ok
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// All returns every wrapper in insertion order
func (g *Graph) All() []*Wrapper {
	out := make([]*Wrapper, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NextOf returns the full adjacency of a node
func (g *Graph) NextOf(id string) (map[string][]*Wrapper, error) {
	w, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %q not found", id)
	}
	return w.next, nil
}

// UpstreamOf returns the wrappers with an edge into id, in insertion
// order of the graph (computed by reverse scan).
func (g *Graph) UpstreamOf(id string) []*Wrapper {
	var upstream []*Wrapper
	for _, fromID := range g.order {
		from := g.nodes[fromID]
		for _, key := range from.nextOrder {
			for _, to := range from.next[key] {
				if to.ID == id {
					upstream = append(upstream, from)
				}
			}
		}
	}
	return upstream
}
