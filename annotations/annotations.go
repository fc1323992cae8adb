// Package annotations resolves per-tool behavior hints (read-only /
// destructive) from a four-level precedence chain: tool-specific override,
// category override, kind override, then the global default.
package annotations

import (
	"sync"

	"github.com/sciforge/toolbridge/protocol"
)

// Override is one level of the precedence chain. Nil fields defer to the next
// level, so ReadOnly and Destructive may each be inherited from different levels.
type Override struct {
	ReadOnly    *bool `json:"readOnly,omitempty" yaml:"read_only,omitempty"`
	Destructive *bool `json:"destructive,omitempty" yaml:"destructive,omitempty"`
}

// Tables holds the override tables loaded from configuration.
type Tables struct {
	Tools      map[string]Override `json:"tools,omitempty" yaml:"tools,omitempty"`
	Categories map[string]Override `json:"categories,omitempty" yaml:"categories,omitempty"`
	Kinds      map[string]Override `json:"kinds,omitempty" yaml:"kinds,omitempty"`
}

// DefaultAnnotation is the global fallback: tools are presumed read-only and
// non-destructive unless an override says otherwise.
var DefaultAnnotation = protocol.Annotation{ReadOnly: true, Destructive: false}

// Resolver computes and caches annotations per tool name. The cache is
// invalidated on re-registration of a tool or on override-table reload.
type Resolver struct {
	mu     sync.RWMutex
	tables Tables
	cache  map[string]protocol.Annotation
}

// NewResolver creates a resolver over the given override tables.
func NewResolver(tables Tables) *Resolver {
	return &Resolver{
		tables: tables,
		cache:  make(map[string]protocol.Annotation),
	}
}

// Resolve returns the annotation for the descriptor, computing it once and
// caching by tool name.
func (r *Resolver) Resolve(d protocol.ToolDescriptor) protocol.Annotation {
	r.mu.RLock()
	if a, ok := r.cache[d.Name]; ok {
		r.mu.RUnlock()
		return a
	}
	r.mu.RUnlock()

	a := r.compute(d)

	r.mu.Lock()
	r.cache[d.Name] = a
	r.mu.Unlock()
	return a
}

// compute walks the precedence chain field by field.
func (r *Resolver) compute(d protocol.ToolDescriptor) protocol.Annotation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]Override, 0, 3)
	if o, ok := r.tables.Tools[d.Name]; ok {
		chain = append(chain, o)
	}
	if o, ok := r.tables.Categories[d.Category]; ok {
		chain = append(chain, o)
	}
	if o, ok := r.tables.Kinds[d.Kind]; ok {
		chain = append(chain, o)
	}

	a := DefaultAnnotation
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].ReadOnly != nil {
			a.ReadOnly = *chain[i].ReadOnly
		}
		if chain[i].Destructive != nil {
			a.Destructive = *chain[i].Destructive
		}
	}
	return a
}

// Invalidate drops the cached annotation for one tool. Wire this to the
// store's change callbacks so re-registration recomputes.
func (r *Resolver) Invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

// Reload replaces the override tables and clears the whole cache.
func (r *Resolver) Reload(tables Tables) {
	r.mu.Lock()
	r.tables = tables
	r.cache = make(map[string]protocol.Annotation)
	r.mu.Unlock()
}
