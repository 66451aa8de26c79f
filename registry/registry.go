// Package registry implements the lazy command-registration core: a
// descriptor table populated at import time by tool packages, lazy command
// and command-group wrappers that defer tool construction until dispatch,
// and a registrar that scans external manifest directories and attaches the
// resulting palette to a root cobra command.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/okit-dev/okit/tool"
)

// ErrDuplicateTool is returned when a tool name is already registered.
// Collision policy: the first registration wins; later ones are rejected.
var ErrDuplicateTool = errors.New("registry: duplicate tool name")

// Registry is an append-only table of tool descriptors. It is populated
// during the scan phase and read thereafter. Access is guarded so a
// long-lived embedding stays safe under concurrent first access.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]tool.Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]tool.Descriptor)}
}

// Register adds a descriptor. Invalid descriptors and duplicate names are
// rejected with an error; the registry is left unchanged.
func (r *Registry) Register(d tool.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.descriptors[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
	}
	r.descriptors[d.Name] = d
	return nil
}

// MustRegister is Register for import-time use by bundled tool packages,
// where a rejected descriptor is a programming error.
func (r *Registry) MustRegister(d tool.Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (tool.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// Names returns all registered tool names, sorted for reproducible listings.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns all descriptors in name order.
func (r *Registry) Descriptors() []tool.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tool.Descriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.descriptors[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry that bundled tool packages
// register into from their init functions. The composition root passes it
// (or a purpose-built registry) explicitly to NewRegistrar; nothing else
// should reach for this table.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// Register registers d into the default registry.
func Register(d tool.Descriptor) error {
	return Default().Register(d)
}

// MustRegister registers d into the default registry and panics on failure.
// Bundled tool packages call this from init.
func MustRegister(d tool.Descriptor) {
	Default().MustRegister(d)
}
