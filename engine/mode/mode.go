package mode

import (
	"fmt"

	"github.com/theoneeye/oneeye/engine/graph"
)

// Mode classifies how a workflow executes
type Mode string

const (
	// Production runs long-lived loops, one per producer
	Production Mode = "production"

	// API is a one-shot request/response walk from the entry node
	API Mode = "api"

	// SingleNode invokes exactly one node
	SingleNode Mode = "single_node"
)

// IsValid checks if the Mode is valid
func (m Mode) IsValid() bool {
	switch m {
	case Production, API, SingleNode:
		return true
	default:
		return false
	}
}

// String returns string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// Detect classifies a built workflow. Detection order: the explicit
// workflow_type field, presence of a producer, node count, fallback to
// api.
func Detect(declared string, g *graph.Graph) (Mode, error) {
	if declared != "" {
		m := Mode(declared)
		if !m.IsValid() {
			return "", fmt.Errorf("unknown workflow_type %q", declared)
		}
		return m, nil
	}

	analyzer := graph.NewAnalyzer(g)
	if len(analyzer.Producers()) > 0 {
		return Production, nil
	}
	if g.Len() == 1 {
		return SingleNode, nil
	}
	return API, nil
}
