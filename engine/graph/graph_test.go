package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoneeye/oneeye/engine/node"
)

// stubNode is a minimal node implementation for graph tests
type stubNode struct {
	node.Base
}

func (n *stubNode) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	return input.Derive(n.Config().ID, "stub"), nil
}

func testRegistry() *node.Registry {
	reg := node.NewRegistry()
	for identifier, variant := range map[string]node.Variant{
		"producer": node.VariantProducer,
		"task":     node.VariantBlocking,
		"terminal": node.VariantNonBlocking,
	} {
		identifier, variant := identifier, variant
		reg.Register(identifier, func(cfg *node.Config) (node.Node, error) {
			return &stubNode{Base: node.NewBase(cfg, identifier, variant, node.PoolCooperative)}, nil
		})
	}
	return reg
}

func strPtr(s string) *string { return &s }

func TestBuildAdjacency(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "p", Type: "producer"},
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
		},
		Edges: []EdgeSpec{
			{Source: "p", Target: "a"},
			{Source: "p", Target: "b", SourceHandle: strPtr("Yes")},
			{Source: "a", Target: "b"},
		},
	}

	g, err := NewBuilder(testRegistry()).Build(desc)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	// every (src, dst, key) edge of the description is present
	p, ok := g.Lookup("p")
	require.True(t, ok)
	require.Len(t, p.Next("default"), 1)
	assert.Equal(t, "a", p.Next("default")[0].ID)
	require.Len(t, p.Next("yes"), 1)
	assert.Equal(t, "b", p.Next("yes")[0].ID)

	a, _ := g.Lookup("a")
	require.Len(t, a.Next("default"), 1)
	assert.Equal(t, "b", a.Next("default")[0].ID)
}

func TestBuildUnknownTypeNamesNode(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{{ID: "x", Type: "nope"}},
	}

	_, err := NewBuilder(testRegistry()).Build(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x")
	assert.Contains(t, err.Error(), "nope")
}

func TestBuildDanglingEdge(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{{ID: "a", Type: "task"}},
		Edges: []EdgeSpec{{Source: "a", Target: "ghost"}},
	}

	_, err := NewBuilder(testRegistry()).Build(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildDuplicateNodeID(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "a", Type: "task"},
			{ID: "a", Type: "task"},
		},
	}

	_, err := NewBuilder(testRegistry()).Build(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestFanOutPreservesInsertionOrder(t *testing.T) {
	g := New()
	reg := testRegistry()
	for _, id := range []string{"p", "x", "y", "z"} {
		n, err := reg.Create(&node.Config{ID: id, Type: "task"})
		require.NoError(t, err)
		_, err = g.Add(id, n)
		require.NoError(t, err)
	}

	require.NoError(t, g.Connect("p", "x", "default"))
	require.NoError(t, g.Connect("p", "y", "default"))
	require.NoError(t, g.Connect("p", "z", "default"))

	p, _ := g.Lookup("p")
	ids := make([]string, 0, 3)
	for _, w := range p.Next("default") {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"x", "y", "z"}, ids)
}

func TestDescriptionRoundTripKeepsAdjacency(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "p", Type: "producer"},
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
		},
		Edges: []EdgeSpec{
			{Source: "p", Target: "a"},
			{Source: "p", Target: "b", SourceHandle: strPtr("yes")},
			{Source: "a", Target: "b"},
		},
	}

	raw, err := json.Marshal(desc)
	require.NoError(t, err)
	reparsed, err := ParseDescription(raw)
	require.NoError(t, err)

	builder := NewBuilder(testRegistry())
	first, err := builder.Build(desc)
	require.NoError(t, err)
	second, err := builder.Build(reparsed)
	require.NoError(t, err)

	require.Equal(t, first.Len(), second.Len())
	for _, w := range first.All() {
		other, ok := second.Lookup(w.ID)
		require.True(t, ok)
		require.Equal(t, w.BranchKeys(), other.BranchKeys())
		for _, key := range w.BranchKeys() {
			assert.Equal(t, graphIDs(w.Next(key)), graphIDs(other.Next(key)))
		}
	}
}

func TestNormalizeBranchKey(t *testing.T) {
	tests := []struct {
		name   string
		handle *string
		want   string
	}{
		{"nil handle", nil, "default"},
		{"empty handle", strPtr(""), "default"},
		{"whitespace", strPtr("  "), "default"},
		{"yes case-insensitive", strPtr("Yes"), "yes"},
		{"no case-insensitive", strPtr("NO"), "no"},
		{"custom lowercased", strPtr("Timeout"), "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeBranchKey(tt.handle))
		})
	}
}

func TestNormalizeBranchKeyIdempotent(t *testing.T) {
	for _, input := range []string{"Yes", "no", "CUSTOM", "", "default"} {
		once := NormalizeBranchKey(strPtr(input))
		twice := NormalizeBranchKey(strPtr(once))
		assert.Equal(t, once, twice)
	}
}

func TestAnalyzerQueries(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "p", Type: "producer"},
			{ID: "a", Type: "task"},
			{ID: "t", Type: "terminal"},
			{ID: "orphan", Type: "task"},
		},
		Edges: []EdgeSpec{
			{Source: "p", Target: "a"},
			{Source: "a", Target: "t"},
		},
	}

	g, err := NewBuilder(testRegistry()).Build(desc)
	require.NoError(t, err)
	analyzer := NewAnalyzer(g)

	producers := analyzer.Producers()
	require.Len(t, producers, 1)
	assert.Equal(t, "p", producers[0].ID)

	assert.ElementsMatch(t, []string{"p", "orphan"}, analyzer.EntryIDs())

	terminators := analyzer.Terminators()
	require.Len(t, terminators, 1)
	assert.Equal(t, "t", terminators[0].ID)
}

func TestChainVisitsDiamondOnce(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "p", Type: "producer"},
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
			{ID: "z", Type: "task"},
		},
		Edges: []EdgeSpec{
			{Source: "p", Target: "a", SourceHandle: strPtr("yes")},
			{Source: "p", Target: "b", SourceHandle: strPtr("no")},
			{Source: "a", Target: "z"},
			{Source: "b", Target: "z"},
		},
	}

	g, err := NewBuilder(testRegistry()).Build(desc)
	require.NoError(t, err)

	chain := graphIDs(NewAnalyzer(g).Chain("p"))
	assert.Equal(t, []string{"p", "a", "b", "z"}, chain)
}

func TestChainStopsAtOtherProducers(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "p1", Type: "producer"},
			{ID: "w", Type: "task"},
			{ID: "p2", Type: "producer"},
			{ID: "f", Type: "terminal"},
		},
		Edges: []EdgeSpec{
			{Source: "p1", Target: "w"},
			{Source: "w", Target: "p2"},
			{Source: "p2", Target: "f"},
		},
	}

	g, err := NewBuilder(testRegistry()).Build(desc)
	require.NoError(t, err)
	analyzer := NewAnalyzer(g)

	assert.Equal(t, []string{"p1", "w"}, graphIDs(analyzer.Chain("p1")))
	assert.Equal(t, []string{"p2", "f"}, graphIDs(analyzer.Chain("p2")))
}

func TestUpstreamOf(t *testing.T) {
	desc := &Description{
		Nodes: []*node.Config{
			{ID: "a", Type: "task"},
			{ID: "b", Type: "task"},
			{ID: "c", Type: "task"},
		},
		Edges: []EdgeSpec{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
		},
	}

	g, err := NewBuilder(testRegistry()).Build(desc)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, graphIDs(g.UpstreamOf("c")))
	assert.Empty(t, g.UpstreamOf("a"))
}

func graphIDs(wrappers []*Wrapper) []string {
	ids := make([]string, 0, len(wrappers))
	for _, w := range wrappers {
		ids = append(ids, w.ID)
	}
	return ids
}
