package hooks

import (
	"fmt"
	"sort"
	"sync"
)

// binding holds the hooks of one entity in registration order
type binding struct {
	veto     map[Point][]VetoFunc
	postLoad []Func
	validate []Func
}

func newBinding() *binding {
	return &binding{veto: make(map[Point][]VetoFunc)}
}

func (b *binding) count(p Point) int {
	switch p {
	case PostLoad:
		return len(b.postLoad)
	case Validate:
		return len(b.validate)
	default:
		return len(b.veto[p])
	}
}

// Table maps entity-names to their lifecycle hooks
type Table struct {
	mu      sync.RWMutex
	entries map[string]*binding
}

// NewTable creates an empty hook table
func NewTable() *Table {
	return &Table{entries: make(map[string]*binding)}
}

// Register binds hooks to an entity. Each hook is a Funcs value or implements
// at least one of PreSaver, PreUpdater, PreDeleter, PostLoader or Validator.
// Hooks at the same point run in registration order.
func (t *Table) Register(entity string, hooks ...interface{}) error {
	if entity == "" {
		return fmt.Errorf("hooks need an entity name")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.entries[entity]
	if !ok {
		b = newBinding()
	}

	for _, h := range hooks {
		if err := b.add(h); err != nil {
			return fmt.Errorf("register hooks for %s: %w", entity, err)
		}
	}
	t.entries[entity] = b
	return nil
}

func (b *binding) add(h interface{}) error {
	switch f := h.(type) {
	case Funcs:
		return b.addFuncs(f)
	case *Funcs:
		if f == nil {
			return fmt.Errorf("nil hook")
		}
		return b.addFuncs(*f)
	}

	added := false
	if v, ok := h.(PreSaver); ok {
		b.veto[PreSave] = append(b.veto[PreSave], v.PreSave)
		added = true
	}
	if v, ok := h.(PreUpdater); ok {
		b.veto[PreUpdate] = append(b.veto[PreUpdate], v.PreUpdate)
		added = true
	}
	if v, ok := h.(PreDeleter); ok {
		b.veto[PreDelete] = append(b.veto[PreDelete], v.PreDelete)
		added = true
	}
	if v, ok := h.(PostLoader); ok {
		b.postLoad = append(b.postLoad, v.PostLoad)
		added = true
	}
	if v, ok := h.(Validator); ok {
		b.validate = append(b.validate, v.Validate)
		added = true
	}
	if !added {
		return fmt.Errorf("%T implements no hook capability", h)
	}
	return nil
}

func (b *binding) addFuncs(f Funcs) error {
	if f.PreSave == nil && f.PreUpdate == nil && f.PreDelete == nil && f.PostLoad == nil && f.Validate == nil {
		return fmt.Errorf("empty hook set")
	}
	if f.PreSave != nil {
		b.veto[PreSave] = append(b.veto[PreSave], f.PreSave)
	}
	if f.PreUpdate != nil {
		b.veto[PreUpdate] = append(b.veto[PreUpdate], f.PreUpdate)
	}
	if f.PreDelete != nil {
		b.veto[PreDelete] = append(b.veto[PreDelete], f.PreDelete)
	}
	if f.PostLoad != nil {
		b.postLoad = append(b.postLoad, f.PostLoad)
	}
	if f.Validate != nil {
		b.validate = append(b.validate, f.Validate)
	}
	return nil
}

// Has reports whether an entity has any hook at a point
func (t *Table) Has(entity string, p Point) bool {
	return t.Count(entity, p) > 0
}

// Count returns the number of hooks bound to an entity at a point
func (t *Table) Count(entity string, p Point) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.entries[entity]
	if !ok {
		return 0
	}
	return b.count(p)
}

// Entities returns the sorted names of entities with hooks
func (t *Table) Entities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) vetoHooks(entity string, p Point) []VetoFunc {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.entries[entity]; ok {
		return b.veto[p]
	}
	return nil
}

func (t *Table) funcHooks(entity string, p Point) []Func {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.entries[entity]
	if !ok {
		return nil
	}
	if p == PostLoad {
		return b.postLoad
	}
	return b.validate
}
