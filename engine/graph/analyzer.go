package graph

import (
	"github.com/theoneeye/oneeye/engine/node"
)

// Analyzer provides pure queries over a frozen graph. It never mutates.
type Analyzer struct {
	g *Graph
}

// NewAnalyzer creates an analyzer over g
func NewAnalyzer(g *Graph) *Analyzer {
	return &Analyzer{g: g}
}

// Producers returns every producer-variant wrapper in insertion order
func (a *Analyzer) Producers() []*Wrapper {
	var producers []*Wrapper
	for _, w := range a.g.All() {
		if w.Node.Variant() == node.VariantProducer {
			producers = append(producers, w)
		}
	}
	return producers
}

// EntryIDs returns the ids of nodes with no incoming edges
func (a *Analyzer) EntryIDs() []string {
	incoming := make(map[string]bool)
	for _, w := range a.g.All() {
		for _, key := range w.BranchKeys() {
			for _, to := range w.Next(key) {
				incoming[to.ID] = true
			}
		}
	}

	var entries []string
	for _, w := range a.g.All() {
		if !incoming[w.ID] {
			entries = append(entries, w.ID)
		}
	}
	return entries
}

// Terminators returns every non-blocking-variant wrapper
func (a *Analyzer) Terminators() []*Wrapper {
	var terminators []*Wrapper
	for _, w := range a.g.All() {
		if w.Node.Variant() == node.VariantNonBlocking {
			terminators = append(terminators, w)
		}
	}
	return terminators
}

// Chain collects the subgraph reachable from start via any branch,
// breadth-first, start included. Diamonds are visited once.
func (a *Analyzer) Chain(startID string) []*Wrapper {
	start, ok := a.g.Lookup(startID)
	if !ok {
		return nil
	}

	visited := map[string]bool{start.ID: true}
	chain := []*Wrapper{start}
	frontier := []*Wrapper{start}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, key := range current.BranchKeys() {
			for _, next := range current.Next(key) {
				if visited[next.ID] {
					continue
				}
				// Edges into producers wire queues; the induced subgraph
				// of one loop stops at the next loop's producer.
				if next.Node.Variant() == node.VariantProducer {
					continue
				}
				visited[next.ID] = true
				chain = append(chain, next)
				frontier = append(frontier, next)
			}
		}
	}
	return chain
}
