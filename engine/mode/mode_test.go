package mode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/node"
)

type stubNode struct {
	node.Base
}

func (n *stubNode) Execute(ctx context.Context, input *node.Output) (*node.Output, error) {
	return input.Derive(n.Config().ID, "stub"), nil
}

func buildGraph(t *testing.T, variants map[string]node.Variant) *graph.Graph {
	t.Helper()
	g := graph.New()
	for id, variant := range variants {
		n := &stubNode{Base: node.NewBase(&node.Config{ID: id, Type: "stub"}, "stub", variant, node.PoolCooperative)}
		_, err := g.Add(id, n)
		require.NoError(t, err)
	}
	return g
}

func TestDetectExplicitField(t *testing.T) {
	g := buildGraph(t, map[string]node.Variant{"a": node.VariantBlocking})

	m, err := Detect("single_node", g)
	require.NoError(t, err)
	assert.Equal(t, SingleNode, m)
}

func TestDetectRejectsUnknownExplicitField(t *testing.T) {
	g := buildGraph(t, map[string]node.Variant{"a": node.VariantBlocking})

	_, err := Detect("batch", g)
	require.Error(t, err)
}

func TestDetectProducerMeansProduction(t *testing.T) {
	g := buildGraph(t, map[string]node.Variant{
		"p": node.VariantProducer,
		"a": node.VariantBlocking,
	})

	m, err := Detect("", g)
	require.NoError(t, err)
	assert.Equal(t, Production, m)
}

func TestDetectSingleNodeByCount(t *testing.T) {
	g := buildGraph(t, map[string]node.Variant{"a": node.VariantBlocking})

	m, err := Detect("", g)
	require.NoError(t, err)
	assert.Equal(t, SingleNode, m)
}

func TestDetectFallbackAPI(t *testing.T) {
	g := buildGraph(t, map[string]node.Variant{
		"a": node.VariantBlocking,
		"b": node.VariantBlocking,
	})

	m, err := Detect("", g)
	require.NoError(t, err)
	assert.Equal(t, API, m)
}

func TestDetectEmptyGraphIsAPI(t *testing.T) {
	g := graph.New()

	m, err := Detect("", g)
	require.NoError(t, err)
	assert.Equal(t, API, m)
}
