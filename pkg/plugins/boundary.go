package plugins

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// HostOwner is the owner recorded on types registered in a HostNamespace
const HostOwner = "host"

// Namespace resolves type names to handles
type Namespace interface {
	Resolve(name string) (*TypeHandle, error)
}

// InstanceSpec is what a host factory receives when a plugin entry type is instantiated
type InstanceSpec struct {
	PluginID   string
	TypeName   string
	Properties map[string]any
}

// Factory builds the entry point for a host-provided type
type Factory func(spec InstanceSpec) (Entrypoint, error)

// TypeHandle is a defined type. Handles are immutable once defined.
type TypeHandle struct {
	Name       string         `json:"name"`
	Owner      string         `json:"owner"`
	Extends    string         `json:"extends,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`

	factory Factory
}

// IsHost reports whether the handle carries a host implementation
func (h *TypeHandle) IsHost() bool {
	return h.factory != nil
}

// HostNamespace holds the capability implementations compiled into the host
type HostNamespace struct {
	mu    sync.RWMutex
	types map[string]*TypeHandle
}

// NewHostNamespace creates an empty host namespace
func NewHostNamespace() *HostNamespace {
	return &HostNamespace{
		types: make(map[string]*TypeHandle),
	}
}

// Register adds a host type. Each name can be registered once.
func (h *HostNamespace) Register(name string, factory Factory, defaults map[string]any) error {
	if name == "" {
		return fmt.Errorf("host type name is required")
	}
	if factory == nil {
		return fmt.Errorf("host type %s has no factory", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.types[name]; exists {
		return &DefinitionError{Name: name, Kind: ErrDuplicateDefinition}
	}

	h.types[name] = &TypeHandle{
		Name:       name,
		Owner:      HostOwner,
		Properties: maps.Clone(defaults),
		factory:    factory,
	}
	return nil
}

// MustRegister is like Register but panics on error
func (h *HostNamespace) MustRegister(name string, factory Factory, defaults map[string]any) {
	if err := h.Register(name, factory, defaults); err != nil {
		panic(err)
	}
}

// Resolve looks up a host type
func (h *HostNamespace) Resolve(name string) (*TypeHandle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	handle, ok := h.types[name]
	if !ok {
		return nil, &DefinitionError{Name: name, Kind: ErrUnresolvedName}
	}
	return handle, nil
}

// Names returns the registered host type names, sorted
func (h *HostNamespace) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Sorted(maps.Keys(h.types))
}

// Boundary is a private type namespace for one plugin unit.
// Names it cannot resolve are delegated to the parent namespace, which it never modifies.
type Boundary struct {
	id     string
	parent Namespace

	mu    sync.RWMutex
	types map[string]*TypeHandle
}

// NewBoundary creates an empty boundary delegating to parent (which may be nil)
func NewBoundary(parent Namespace) *Boundary {
	return &Boundary{
		id:     uuid.NewString(),
		parent: parent,
		types:  make(map[string]*TypeHandle),
	}
}

// ID returns the unique identifier of this boundary
func (b *Boundary) ID() string {
	return b.id
}

// Load defines a type from raw definition bytes in this boundary's private namespace
func (b *Boundary) Load(name string, raw []byte) (*TypeHandle, error) {
	if name == "" {
		return nil, &DefinitionError{Name: name, Kind: ErrMalformedUnit, Err: errors.New("type name is required")}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.types[name]; exists {
		return nil, &DefinitionError{Name: name, Kind: ErrDuplicateDefinition}
	}

	def, err := parseTypeDefinition(raw)
	if err != nil {
		return nil, &DefinitionError{Name: name, Kind: ErrMalformedUnit, Err: err}
	}
	if def.Name != "" && def.Name != name {
		return nil, &DefinitionError{
			Name: name,
			Kind: ErrMalformedUnit,
			Err:  fmt.Errorf("definition declares name %s", def.Name),
		}
	}
	if def.Extends == name {
		return nil, &DefinitionError{Name: name, Kind: ErrMalformedUnit, Err: errors.New("type extends itself")}
	}

	handle := &TypeHandle{
		Name:       name,
		Owner:      b.id,
		Extends:    def.Extends,
		Properties: def.Properties,
	}
	b.types[name] = handle
	return handle, nil
}

// Resolve looks up name in the private namespace first, then in the parent
func (b *Boundary) Resolve(name string) (*TypeHandle, error) {
	b.mu.RLock()
	handle, ok := b.types[name]
	b.mu.RUnlock()
	if ok {
		return handle, nil
	}

	if b.parent != nil {
		handle, err := b.parent.Resolve(name)
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, ErrUnresolvedName) {
			return nil, err
		}
	}
	return nil, &DefinitionError{Name: name, Kind: ErrUnresolvedName}
}

// Defined returns the names defined privately in this boundary, sorted
func (b *Boundary) Defined() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Sorted(maps.Keys(b.types))
}

// Instantiate follows the extends chain of name until it reaches a host type and
// builds the entry point with the merged properties (child overrides parent).
func (b *Boundary) Instantiate(pluginID, name string) (Entrypoint, error) {
	var chain []*TypeHandle
	seen := make(map[string]bool)

	current := name
	for {
		if seen[current] {
			return nil, &DefinitionError{Name: name, Kind: ErrMalformedUnit, Err: fmt.Errorf("extends cycle at %s", current)}
		}
		seen[current] = true

		handle, err := b.Resolve(current)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEntryPointMissing, name, err)
		}
		chain = append(chain, handle)

		if handle.IsHost() {
			break
		}
		if handle.Extends == "" {
			return nil, fmt.Errorf("%w: %s does not implement the plugin lifecycle", ErrEntryPointMissing, name)
		}
		current = handle.Extends
	}

	props := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		maps.Copy(props, chain[i].Properties)
	}

	host := chain[len(chain)-1]
	entry, err := host.factory(InstanceSpec{
		PluginID:   pluginID,
		TypeName:   name,
		Properties: props,
	})
	if err != nil {
		return nil, &DefinitionError{Name: name, Kind: ErrMalformedUnit, Err: err}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrEntryPointMissing, host.Name)
	}
	return entry, nil
}
