package toolpipe

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Registry is the provider-agnostic catalog of declared tools. Names are
// unique; listing follows insertion order. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]registryEntry
	logger  Logger
	rules   map[string]ProviderRules
}

type registryEntry struct {
	def      ToolDefinition
	resolved *jsonschema.Resolved
}

// NewRegistry creates an empty Registry with the built-in provider rule sets.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := registryOptions{
		logger: discardLogger(),
		rules:  DefaultProviderRules(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		entries: make(map[string]registryEntry),
		logger:  o.logger,
		rules:   o.rules,
	}
}

// RegisterTool inserts def if its name is not taken yet. A duplicate name is
// not an error: the call is a no-op that returns false and logs a warning.
// A definition without a name or with a schema that does not compile is a
// wiring bug and is rejected with an error wrapping ErrInvalidDefinition.
func (r *Registry) RegisterTool(def ToolDefinition) (bool, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return false, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	params, err := cloneSchema(def.Parameters)
	if err != nil {
		return false, fmt.Errorf("%w: tool %q: copy schema: %w", ErrInvalidDefinition, name, err)
	}
	resolved, err := compileRawSchema(params)
	if err != nil {
		return false, fmt.Errorf("%w: tool %q: compile schema: %w", ErrInvalidDefinition, name, err)
	}
	stored := ToolDefinition{
		Name:        name,
		Description: def.Description,
		Parameters:  params,
		Tags:        slices.Clone(def.Tags),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		r.logger.Warn("tool already registered", "tool", name, "code", CodeRegistrationConflict)
		return false, nil
	}
	r.entries[name] = registryEntry{def: stored, resolved: resolved}
	r.order = append(r.order, name)
	r.logger.Debug("tool registered", "tool", name)
	return true, nil
}

// RegisterTools registers each definition and returns how many were inserted.
// Invalid definitions are reported together; they never block the others.
func (r *Registry) RegisterTools(defs ...ToolDefinition) (int, error) {
	var (
		count int
		errs  []error
	)
	for _, def := range defs {
		ok, err := r.RegisterTool(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			count++
		}
	}
	return count, errors.Join(errs...)
}

// GetTool returns a copy of the definition registered under name.
func (r *Registry) GetTool(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return copyDefinition(e.def), true
}

// GetAllTools returns every definition in insertion order.
func (r *Registry) GetAllTools() []ToolDefinition {
	return r.GetTools(nil)
}

// GetTools returns the definitions accepted by pred, in insertion order.
// A nil pred accepts everything.
func (r *Registry) GetTools(pred func(ToolDefinition) bool) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		def := copyDefinition(r.entries[name].def)
		if pred == nil || pred(def) {
			out = append(out, def)
		}
	}
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ValidateArguments checks already-parsed arguments against the schema of the
// named tool. Unknown names are not an error here: declaration is optional for
// executable tools.
func (r *Registry) ValidateArguments(name string, args any) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || e.resolved == nil {
		return nil
	}
	return validateAgainstSchema(e.resolved, args)
}

// ValidateToolsForProvider reports every registered definition that breaks the
// structural rules of providerID. It never mutates the registry; acting on the
// report (refuse, or strip invalid tools) is the caller's policy.
func (r *Registry) ValidateToolsForProvider(providerID string) ValidationReport {
	defs := r.GetAllTools()
	r.mu.RLock()
	rules, ok := r.rules[normalizeProviderID(providerID)]
	r.mu.RUnlock()
	if !ok {
		return ValidationReport{
			Provider: providerID,
			Messages: []string{fmt.Sprintf("unknown provider %q", providerID)},
		}
	}
	return ValidateDefinitions(providerID, rules, defs)
}

// HasTag returns a GetTools predicate matching definitions carrying tag.
func HasTag(tag string) func(ToolDefinition) bool {
	return func(def ToolDefinition) bool {
		return slices.Contains(def.Tags, tag)
	}
}

func copyDefinition(def ToolDefinition) ToolDefinition {
	params, err := cloneSchema(def.Parameters)
	if err != nil {
		// Stored schemas round-tripped through JSON at registration.
		params = def.Parameters
	}
	def.Parameters = params
	def.Tags = slices.Clone(def.Tags)
	return def
}
