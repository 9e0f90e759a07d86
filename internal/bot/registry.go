package bot

import (
	"slices"
	"sync"
)

// Registry collects modules before the host starts. Registration happens
// from package init() functions, so the registry must tolerate concurrent
// writes even though in practice init order serializes them.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make([]Module, 0),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Modules returns a snapshot of the registered modules, in registration
// order. The snapshot is a copy; later registrations do not show up in it.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.modules)
}

// The global registry backs module self-registration via init().
var globalRegistry = NewRegistry()

// Register adds a module to the global registry. Modules call this from
// their package init(), and cmd/bot pulls them in with blank imports.
func Register(m Module) {
	globalRegistry.Register(m)
}

// Modules returns all modules from the global registry.
func Modules() []Module {
	return globalRegistry.Modules()
}

// ResetGlobalRegistry discards all registrations. Tests only.
func ResetGlobalRegistry() {
	globalRegistry = NewRegistry()
}
