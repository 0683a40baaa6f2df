package prep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/mode"
	"github.com/theoneeye/oneeye/engine/node"
)

// NonEmptyValidator rejects graphs with no nodes
type NonEmptyValidator struct{}

func (NonEmptyValidator) Name() string { return "non-empty" }

func (NonEmptyValidator) Validate(g *graph.Graph, m mode.Mode) error {
	if g.Len() == 0 {
		return fmt.Errorf("workflow validation failed: no nodes")
	}
	return nil
}

// ReadinessValidator calls IsReady on every node and aggregates all
// failures into a single error listing every offender.
type ReadinessValidator struct{}

func (ReadinessValidator) Name() string { return "node-readiness" }

func (ReadinessValidator) Validate(g *graph.Graph, m mode.Mode) error {
	var failures []string
	for _, w := range g.All() {
		ok, errs := w.Node.IsReady()
		if ok {
			continue
		}
		fields := make([]string, 0, len(errs))
		for field := range errs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			for _, msg := range errs[field] {
				failures = append(failures, fmt.Sprintf("%s: %s: %s", w.ID, field, msg))
			}
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("workflow validation failed:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}

// ProductionShapeValidator requires at least one producer and forbids
// terminal/response nodes in production workflows.
type ProductionShapeValidator struct{}

func (ProductionShapeValidator) Name() string { return "production-shape" }

func (ProductionShapeValidator) Validate(g *graph.Graph, m mode.Mode) error {
	analyzer := graph.NewAnalyzer(g)
	if len(analyzer.Producers()) == 0 {
		return fmt.Errorf("production workflow requires at least one producer")
	}
	for _, w := range g.All() {
		if r, ok := w.Node.(node.Responder); ok && r.Responds() {
			return fmt.Errorf("production workflow must not contain response node %s", w.ID)
		}
	}
	return nil
}

// APIShapeValidator forbids producers and requires at least one entry
// node; uniqueness of the entry is checked by the api strategy's Prepare.
type APIShapeValidator struct{}

func (APIShapeValidator) Name() string { return "api-shape" }

func (APIShapeValidator) Validate(g *graph.Graph, m mode.Mode) error {
	analyzer := graph.NewAnalyzer(g)
	if producers := analyzer.Producers(); len(producers) > 0 {
		return fmt.Errorf("api workflow must not contain producer %s", producers[0].ID)
	}
	entries := analyzer.EntryIDs()
	if len(entries) == 0 {
		return fmt.Errorf("api workflow requires an entry node")
	}
	return nil
}

// SingleNodeShapeValidator requires exactly one node
type SingleNodeShapeValidator struct{}

func (SingleNodeShapeValidator) Name() string { return "single-node-shape" }

func (SingleNodeShapeValidator) Validate(g *graph.Graph, m mode.Mode) error {
	if g.Len() != 1 {
		return fmt.Errorf("single-node workflow requires exactly one node, got %d", g.Len())
	}
	return nil
}
