package node

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Base carries the state and behavior shared by every node
// implementation. Concrete nodes embed it and override the capability
// methods their variant changes.
type Base struct {
	cfg      *Config
	id       string
	variant  Variant
	pool     Pool
	required []string

	// mutable per-run state lives behind a pointer so embedding values
	// stay copyable
	state *baseState
}

type baseState struct {
	mu        sync.Mutex
	rendered  map[string]any
	execCount int
}

// NewBase creates the embedded base for a node implementation.
// identifier is the registry tag, required lists form fields checked by
// IsReady and re-checked after rendering.
func NewBase(cfg *Config, identifier string, variant Variant, pool Pool, required ...string) Base {
	cfg.Normalize()
	return Base{
		cfg:      cfg,
		id:       identifier,
		variant:  variant,
		pool:     pool,
		required: required,
		state:    &baseState{},
	}
}

// Identifier returns the registry tag
func (b *Base) Identifier() string { return b.id }

// Variant returns the scheduler class
func (b *Base) Variant() Variant { return b.variant }

// PreferredPool returns the execution backend preference
func (b *Base) PreferredPool() Pool { return b.pool }

// Config returns the declarative descriptor
func (b *Base) Config() *Config { return b.cfg }

// IsReady checks that every required form field is present and
// non-empty. Template expressions pass this check unrendered; strict
// validation happens in PopulateForm.
func (b *Base) IsReady() (bool, FieldErrors) {
	errs := make(FieldErrors)
	for _, field := range b.required {
		v, ok := b.cfg.Data.Form[field]
		if !ok || v == nil {
			errs[field] = append(errs[field], "field is required")
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			errs[field] = append(errs[field], "field must not be empty")
		}
	}
	return len(errs) == 0, errs
}

// Initialize validates readiness; it does not call Setup, which callers
// invoke separately to acquire resources.
func (b *Base) Initialize(ctx context.Context) error {
	if ok, errs := b.IsReady(); !ok {
		return fmt.Errorf("node %s is not ready: %v", b.cfg.ID, errs)
	}
	return nil
}

// Setup acquires resources; the default has none
func (b *Base) Setup(ctx context.Context) error { return nil }

// Cleanup releases resources; the default has none
func (b *Base) Cleanup(ctx context.Context, input *Output) error { return nil }

// PopulateForm renders every template expression in the form against the
// incoming output and re-validates the required fields on the result.
func (b *Base) PopulateForm(input *Output) (map[string]any, error) {
	rendered, err := RenderForm(b.cfg.Data.Form, input)
	if err != nil {
		return nil, err
	}

	for _, field := range b.required {
		v, ok := rendered[field]
		if !ok || v == nil {
			return nil, fmt.Errorf("field %s missing after rendering", field)
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("field %s empty after rendering", field)
		}
	}

	b.state.mu.Lock()
	b.state.rendered = rendered
	b.state.mu.Unlock()
	return rendered, nil
}

// Form returns the most recently rendered form
func (b *Base) Form() map[string]any {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return b.state.rendered
}

// FormString returns a rendered form field as a string
func (b *Base) FormString(field string) string {
	form := b.Form()
	if form == nil {
		// fall back to the raw form while nothing has been rendered yet
		form = b.cfg.Data.Form
	}
	if v, ok := form[field]; ok {
		if s, isStr := v.(string); isStr {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// ConfigString returns a wiring hint written by pre-processors
func (b *Base) ConfigString(key string) string {
	if v, ok := b.cfg.Data.Config[key]; ok {
		if s, isStr := v.(string); isStr {
			return s
		}
	}
	return ""
}

// BranchesToFollow returns the default branch, or every available key
// when a CompletionSentinel is cascading through (broadcast).
func (b *Base) BranchesToFollow(input *Output, available []string) []string {
	if input.Completed() {
		return available
	}
	for _, key := range available {
		if key == BranchDefault {
			return []string{BranchDefault}
		}
	}
	return nil
}

// ContinueAfterExecution reports whether the scheduler descends further
func (b *Base) ContinueAfterExecution() bool {
	return b.variant != VariantNonBlocking
}

// ExecutionCount returns how many times this instance has run
func (b *Base) ExecutionCount() int {
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	return b.state.execCount
}

// RecordExecution increments the execution counter
func (b *Base) RecordExecution() {
	b.state.mu.Lock()
	b.state.execCount++
	b.state.mu.Unlock()
}
