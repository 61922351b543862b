package capability

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry holds all registered capabilities. Registration happens during
// startup wiring; after that the registry is only read, so the lock exists
// for safety rather than contention.
type Registry struct {
	mu     sync.RWMutex
	caps   map[string]*Declaration
	logger *zap.Logger
}

// NewRegistry creates an empty capability registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		caps:   make(map[string]*Declaration),
		logger: logger,
	}
}

// Register adds a capability. The declaration schema is validated here, at
// startup, so dispatch never sees a half-declared parameter.
func (r *Registry) Register(d *Declaration) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid capability: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, d.Name)
	}
	r.caps[d.Name] = d

	r.logger.Debug("registered capability",
		zap.String("name", d.Name),
		zap.Int("params", len(d.Params)))
	return nil
}

// MustRegister registers a capability and panics on error.
// Use for static registration at startup.
func (r *Registry) MustRegister(d *Declaration) {
	if err := r.Register(d); err != nil {
		panic(fmt.Sprintf("failed to register capability %s: %v", d.Name, err))
	}
}

// Get returns a capability by name, or nil if not registered.
func (r *Registry) Get(name string) *Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Has reports whether a capability with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.caps[name]
	return ok
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered declarations in name order. Used to build the
// function declarations advertised to the reasoning backend.
func (r *Registry) All() []*Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Declaration, 0, len(r.caps))
	for _, d := range r.caps {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}
