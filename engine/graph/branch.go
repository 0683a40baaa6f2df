package graph

import (
	"strings"

	"github.com/theoneeye/oneeye/engine/node"
)

// NormalizeBranchKey canonicalizes an edge's source handle into a branch
// key: nil/empty maps to "default", "yes"/"no" are matched
// case-insensitively, anything else is lowercased. Idempotent.
func NormalizeBranchKey(handle *string) string {
	if handle == nil {
		return node.BranchDefault
	}
	key := strings.ToLower(strings.TrimSpace(*handle))
	if key == "" {
		return node.BranchDefault
	}
	return key
}
