package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry holds the metadata of every entity-name, per representation mode.
//
// A Registry is populated once and then frozen. Before Freeze, reads and writes
// are serialized by a mutex; after Freeze the maps are never written again and
// reads take no lock.
type Registry struct {
	mu          sync.RWMutex
	frozen      atomic.Bool
	entities    map[RepresentationMode]map[string]*EntityMetadata
	order       []*EntityMetadata
	defaultMode RepresentationMode
	validator   *Validator
}

// NewRegistry creates an empty registry whose Lookup prefers the given mode
func NewRegistry(defaultMode RepresentationMode) *Registry {
	return &Registry{
		entities: map[RepresentationMode]map[string]*EntityMetadata{
			TypedObject: {},
			DynamicMap:  {},
		},
		defaultMode: defaultMode,
		validator:   NewValidator(),
	}
}

// Register adds metadata under its entity-name and mode. The registry keeps its
// own copy; later changes to meta are not observed.
func (r *Registry) Register(meta *EntityMetadata) error {
	if meta == nil {
		return fmt.Errorf("%w: nil metadata", ErrInvalidMetadata)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("register %s: %w", meta.Name, ErrRegistryFrozen)
	}

	byName, ok := r.entities[meta.Mode]
	if !ok {
		return fmt.Errorf("%w: entity %s has unknown mode %d", ErrInvalidMetadata, meta.Name, meta.Mode)
	}
	if _, exists := byName[meta.Name]; exists {
		return &DuplicateEntityError{Entity: meta.Name, Mode: meta.Mode}
	}

	if err := r.validator.ValidateStructural(meta); err != nil {
		return err
	}

	stored := meta.clone()
	byName[stored.Name] = stored
	r.order = append(r.order, stored)
	return nil
}

// MustRegister registers metadata and panics on error
func (r *Registry) MustRegister(meta *EntityMetadata) {
	if err := r.Register(meta); err != nil {
		panic(err)
	}
}

// Lookup returns the metadata for an entity-name, preferring the registry's default mode
func (r *Registry) Lookup(name string) (*EntityMetadata, error) {
	if meta, err := r.LookupMode(name, r.defaultMode); err == nil {
		return meta, nil
	}
	for _, mode := range []RepresentationMode{TypedObject, DynamicMap} {
		if mode == r.defaultMode {
			continue
		}
		if meta, err := r.LookupMode(name, mode); err == nil {
			return meta, nil
		}
	}
	return nil, &UnknownEntityError{Entity: name}
}

// LookupMode returns the metadata for an entity-name in one representation mode
func (r *Registry) LookupMode(name string, mode RepresentationMode) (*EntityMetadata, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	meta, ok := r.entities[mode][name]
	if !ok {
		return nil, &UnknownEntityError{Entity: name}
	}
	return meta, nil
}

// Exists checks if an entity-name is registered in any mode
func (r *Registry) Exists(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// All returns the registered metadata in registration order
func (r *Registry) All() []*EntityMetadata {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	out := make([]*EntityMetadata, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns the sorted, de-duplicated entity-names across all modes
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, meta := range r.All() {
		if !seen[meta.Name] {
			seen[meta.Name] = true
			names = append(names, meta.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registrations across all modes
func (r *Registry) Count() int {
	return len(r.All())
}

// DefaultMode returns the mode Lookup prefers
func (r *Registry) DefaultMode() RepresentationMode {
	return r.defaultMode
}

// Verify performs cross-entity checks: every association target must be registered
func (r *Registry) Verify() error {
	var problems []string
	for _, meta := range r.All() {
		for _, attr := range meta.Attributes {
			if !attr.IsAssociation() {
				continue
			}
			if _, err := r.LookupMode(attr.Target, meta.Mode); err != nil {
				problems = append(problems,
					fmt.Sprintf("%s.%s targets unregistered entity %s (%s mode)", meta.Name, attr.Name, attr.Target, meta.Mode))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(problems, "; "))
	}
	return nil
}

// Freeze verifies the registry and makes it read-only. Freezing twice is a no-op.
func (r *Registry) Freeze() error {
	if r.frozen.Load() {
		return nil
	}
	if err := r.Verify(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
	return nil
}

// Frozen returns true once Freeze has succeeded
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Stats summarizes the registry contents
type RegistryStats struct {
	TotalEntities     int
	TypedEntities     int
	DynamicEntities   int
	TotalAttributes   int
	TotalAssociations int
	WithoutIdentifier int
}

// GetStats returns statistics about the registry
func (r *Registry) GetStats() *RegistryStats {
	stats := &RegistryStats{}
	for _, meta := range r.All() {
		stats.TotalEntities++
		if meta.Mode == TypedObject {
			stats.TypedEntities++
		} else {
			stats.DynamicEntities++
		}
		stats.TotalAttributes += len(meta.Attributes)
		stats.TotalAssociations += len(meta.Associations())
		if !meta.HasIdentifier() {
			stats.WithoutIdentifier++
		}
	}
	return stats
}
