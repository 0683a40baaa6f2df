package prep

import (
	"sort"

	"github.com/theoneeye/oneeye/engine/graph"
	"github.com/theoneeye/oneeye/engine/mode"
)

// Validator checks a built graph before execution
type Validator interface {
	Name() string
	Validate(g *graph.Graph, m mode.Mode) error
}

// Preprocessor mutates a built graph before execution (queue naming etc.)
type Preprocessor interface {
	Name() string
	Apply(g *graph.Graph, m mode.Mode) error
}

type validatorEntry struct {
	validator Validator
	priority  int
	seq       int
}

type preprocessorEntry struct {
	preprocessor Preprocessor
	priority     int
	seq          int
}

// ValidatorRegistry holds universal and mode-specific validators,
// priority ordered. Universal entries run first.
type ValidatorRegistry struct {
	universal []validatorEntry
	modal     map[mode.Mode][]validatorEntry
	seq       int
}

// NewValidatorRegistry creates an empty validator registry
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{
		modal: make(map[mode.Mode][]validatorEntry),
	}
}

// RegisterUniversal adds a validator applied to every mode
func (r *ValidatorRegistry) RegisterUniversal(v Validator, priority int) {
	r.seq++
	r.universal = append(r.universal, validatorEntry{v, priority, r.seq})
}

// RegisterForMode adds a validator applied only to one mode
func (r *ValidatorRegistry) RegisterForMode(m mode.Mode, v Validator, priority int) {
	r.seq++
	r.modal[m] = append(r.modal[m], validatorEntry{v, priority, r.seq})
}

// Run applies universal validators first, then mode-specific ones, each
// group in priority order (ties keep registration order).
func (r *ValidatorRegistry) Run(g *graph.Graph, m mode.Mode) error {
	for _, entry := range sortedValidators(r.universal) {
		if err := entry.validator.Validate(g, m); err != nil {
			return err
		}
	}
	for _, entry := range sortedValidators(r.modal[m]) {
		if err := entry.validator.Validate(g, m); err != nil {
			return err
		}
	}
	return nil
}

// PreprocessorRegistry holds universal and mode-specific graph
// mutations, priority ordered. Universal entries run first.
type PreprocessorRegistry struct {
	universal []preprocessorEntry
	modal     map[mode.Mode][]preprocessorEntry
	seq       int
}

// NewPreprocessorRegistry creates an empty preprocessor registry
func NewPreprocessorRegistry() *PreprocessorRegistry {
	return &PreprocessorRegistry{
		modal: make(map[mode.Mode][]preprocessorEntry),
	}
}

// RegisterUniversal adds a preprocessor applied to every mode
func (r *PreprocessorRegistry) RegisterUniversal(p Preprocessor, priority int) {
	r.seq++
	r.universal = append(r.universal, preprocessorEntry{p, priority, r.seq})
}

// RegisterForMode adds a preprocessor applied only to one mode
func (r *PreprocessorRegistry) RegisterForMode(m mode.Mode, p Preprocessor, priority int) {
	r.seq++
	r.modal[m] = append(r.modal[m], preprocessorEntry{p, priority, r.seq})
}

// Run applies universal preprocessors first, then mode-specific ones
func (r *PreprocessorRegistry) Run(g *graph.Graph, m mode.Mode) error {
	for _, entry := range sortedPreprocessors(r.universal) {
		if err := entry.preprocessor.Apply(g, m); err != nil {
			return err
		}
	}
	for _, entry := range sortedPreprocessors(r.modal[m]) {
		if err := entry.preprocessor.Apply(g, m); err != nil {
			return err
		}
	}
	return nil
}

func sortedValidators(entries []validatorEntry) []validatorEntry {
	out := make([]validatorEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func sortedPreprocessors(entries []preprocessorEntry) []preprocessorEntry {
	out := make([]preprocessorEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}
