// Package registry implements the in-memory tool descriptor store. The store
// is the only long-lived mutable shared resource in the bridge; every other
// component holds read-only caches keyed by tool name and invalidates them
// through the store's change callbacks.
package registry

import (
	"sort"
	"sync"

	"github.com/sciforge/toolbridge/logx"
	"github.com/sciforge/toolbridge/protocol"
	"github.com/sciforge/toolbridge/types"
)

// Store holds the registered tool descriptors.
type Store struct {
	mu     sync.RWMutex
	tools  map[string]protocol.ToolDescriptor
	logger types.Logger

	changedCallbacks []func(name string)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger provides an option to set a custom logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		tools:  make(map[string]protocol.ToolDescriptor),
		logger: logx.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a callback invoked (outside the store lock) with the
// name of every descriptor that is registered, replaced, or unregistered.
// Derived caches hook in here so they invalidate together.
func (s *Store) OnChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changedCallbacks = append(s.changedCallbacks, fn)
}

func (s *Store) notifyChanged(name string) {
	s.mu.RLock()
	callbacks := make([]func(string), len(s.changedCallbacks))
	copy(callbacks, s.changedCallbacks)
	s.mu.RUnlock()
	for _, fn := range callbacks {
		fn(name)
	}
}

// Register adds a descriptor to the store. It fails with a duplicate_name
// error if the name is already taken; use Replace to overwrite.
func (s *Store) Register(d protocol.ToolDescriptor) error {
	if d.Name == "" {
		return protocol.NewError(protocol.KindValidation, "tool name cannot be empty")
	}

	s.mu.Lock()
	if _, exists := s.tools[d.Name]; exists {
		s.mu.Unlock()
		return protocol.NewError(protocol.KindDuplicateName, "tool already registered: %s", d.Name)
	}
	s.tools[d.Name] = d
	s.mu.Unlock()

	s.logger.Debug("registered tool", "name", d.Name)
	s.notifyChanged(d.Name)
	return nil
}

// Replace registers a descriptor, overwriting any existing entry with the
// same name (last-writer-wins). Change callbacks fire either way.
func (s *Store) Replace(d protocol.ToolDescriptor) error {
	if d.Name == "" {
		return protocol.NewError(protocol.KindValidation, "tool name cannot be empty")
	}

	s.mu.Lock()
	_, existed := s.tools[d.Name]
	s.tools[d.Name] = d
	s.mu.Unlock()

	if existed {
		s.logger.Warn("tool already registered, overwriting", "name", d.Name)
	} else {
		s.logger.Debug("registered tool", "name", d.Name)
	}
	s.notifyChanged(d.Name)
	return nil
}

// Get retrieves a descriptor by name.
func (s *Store) Get(name string) (protocol.ToolDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.tools[name]
	return d, ok
}

// Unregister removes a descriptor by name, reporting whether it existed.
func (s *Store) Unregister(name string) bool {
	s.mu.Lock()
	_, existed := s.tools[name]
	delete(s.tools, name)
	s.mu.Unlock()

	if existed {
		s.logger.Debug("unregistered tool", "name", name)
		s.notifyChanged(name)
	}
	return existed
}

// Len reports how many descriptors are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}

// List returns the descriptors passing the filter, sorted by name.
// A nil filter returns everything.
func (s *Store) List(f *protocol.ListFilter) []protocol.ToolDescriptor {
	s.mu.RLock()
	out := make([]protocol.ToolDescriptor, 0, len(s.tools))
	for _, d := range s.tools {
		if Matches(f, d) {
			out = append(out, d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Matches reports whether a descriptor passes the filter, applying the
// include-then-exclude conjunction. Empty include lists mean "all";
// exclusions always win.
func Matches(f *protocol.ListFilter, d protocol.ToolDescriptor) bool {
	if f == nil {
		return true
	}
	if !included(f.Names, d.Name) || !included(f.Categories, d.Category) || !included(f.Kinds, d.Kind) {
		return false
	}
	if contains(f.ExcludeNames, d.Name) || contains(f.ExcludeCategories, d.Category) || contains(f.ExcludeKinds, d.Kind) {
		return false
	}
	return true
}

func included(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	return contains(list, v)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
