package prep

import (
	"fmt"

	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/mode"
	"github.com/theoneeye/oneeye/engine/node"
)

// QueueKey is the wiring hint written into node config maps by the
// queue namer.
const QueueKey = "queue"

// QueueNamer walks the graph and assigns a canonical queue name
// queue_<from>_<to> to every queue-writer -> queue-reader edge, writing
// it into both endpoints' config maps unless already set. Users can
// build graphs without naming queues; channels stay unambiguous per
// pair.
type QueueNamer struct{}

func (QueueNamer) Name() string { return "queue-namer" }

func (QueueNamer) Apply(g *graph.Graph, m mode.Mode) error {
	for _, from := range g.All() {
		writer, ok := from.Node.(node.QueueWriter)
		if !ok || !writer.WritesQueue() {
			continue
		}
		for _, key := range from.BranchKeys() {
			for _, to := range from.Next(key) {
				reader, ok := to.Node.(node.QueueReader)
				if !ok || !reader.ReadsQueue() {
					continue
				}
				name := fmt.Sprintf("queue_%s_%s", from.ID, to.ID)
				setIfAbsent(from.Node.Config(), QueueKey, name)
				setIfAbsent(to.Node.Config(), QueueKey, name)
			}
		}
	}
	return nil
}

func setIfAbsent(cfg *node.Config, key, value string) {
	cfg.Normalize()
	if _, exists := cfg.Data.Config[key]; !exists {
		cfg.Data.Config[key] = value
	}
}

// Defaults returns the validator and preprocessor registries with the
// built-in entries registered.
func Defaults() (*ValidatorRegistry, *PreprocessorRegistry) {
	validators := NewValidatorRegistry()
	validators.RegisterUniversal(NonEmptyValidator{}, 0)
	validators.RegisterUniversal(ReadinessValidator{}, 10)
	validators.RegisterForMode(mode.Production, ProductionShapeValidator{}, 0)
	validators.RegisterForMode(mode.API, APIShapeValidator{}, 0)
	validators.RegisterForMode(mode.SingleNode, SingleNodeShapeValidator{}, 0)

	preprocessors := NewPreprocessorRegistry()
	preprocessors.RegisterUniversal(QueueNamer{}, 0)

	return validators, preprocessors
}
