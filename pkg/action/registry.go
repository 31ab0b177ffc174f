package action

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wicaksono/opsagent/pkg/tool"
)

// Registry wraps a tool registry with risk metadata. It is the single
// source of truth the agent loop consults before deciding whether a
// requested tool call may execute immediately or must go through the
// confirmation workflow.
type Registry struct {
	mu    sync.RWMutex
	tools *tool.Registry
	meta  map[string]*Definition
}

// NewRegistry creates an action registry backed by the given tool registry
func NewRegistry(tools *tool.Registry) *Registry {
	return &Registry{
		tools: tools,
		meta:  make(map[string]*Definition),
	}
}

// Register adds an action. The underlying tool is registered as an
// ordinary tool, so name uniqueness is enforced by the tool registry.
func (r *Registry) Register(def Definition) error {
	if def.Risk == "" {
		def.Risk = RiskRead
	}
	if !IsValidRiskClass(string(def.Risk)) {
		return fmt.Errorf("invalid risk class: %s", def.Risk)
	}
	if def.Category == "" {
		def.Category = CategorySystem
	}
	if !IsValidCategory(string(def.Category)) {
		return fmt.Errorf("invalid category: %s", def.Category)
	}

	if err := r.tools.Register(def.Definition); err != nil {
		return err
	}

	r.mu.Lock()
	r.meta[def.Name] = &def
	r.mu.Unlock()

	log.Info().
		Str("action", def.Name).
		Str("risk", string(def.Risk)).
		Str("category", string(def.Category)).
		Msg("Action registered")

	return nil
}

// Get returns the action definition by name
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.meta[name]
	if !ok {
		return nil, &tool.UnknownToolError{Name: name}
	}
	return def, nil
}

// RiskOf returns the risk class of an action. Plain tools without risk
// metadata are treated as Read.
func (r *Registry) RiskOf(name string) RiskClass {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.meta[name]; ok {
		return def.Risk
	}
	return RiskRead
}

// RequiresConfirmation reports whether an action must be routed through
// the confirmation workflow instead of executing immediately.
func (r *Registry) RequiresConfirmation(name string) bool {
	return r.RiskOf(name) != RiskRead
}

// Tools returns the backing tool registry
func (r *Registry) Tools() *tool.Registry {
	return r.tools
}

// FilterByCategory returns actions in a specific category
func (r *Registry) FilterByCategory(category Category) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := []*Definition{}
	for _, def := range r.meta {
		if def.Category == category {
			filtered = append(filtered, def)
		}
	}
	return filtered
}
