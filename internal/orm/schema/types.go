// Package schema defines entity metadata for the persistence core: the attribute
// schema, identifier attribute, representation mode and storage hints of every
// entity-name the engine knows about.
package schema

import (
	"fmt"
)

// RepresentationMode selects how runtime instances of an entity are represented.
type RepresentationMode int

const (
	// TypedObject instances are values of a concrete, application-supplied Go type
	TypedObject RepresentationMode = iota
	// DynamicMap instances are generic, ordered attribute containers
	DynamicMap
)

// String returns the string representation of the representation mode
func (m RepresentationMode) String() string {
	switch m {
	case TypedObject:
		return "typed-object"
	case DynamicMap:
		return "dynamic-map"
	default:
		return "unknown"
	}
}

// ParseRepresentationMode converts a string to a RepresentationMode
func ParseRepresentationMode(s string) (RepresentationMode, error) {
	switch s {
	case "typed-object", "typed", "pojo":
		return TypedObject, nil
	case "dynamic-map", "dynamic", "map":
		return DynamicMap, nil
	default:
		return 0, fmt.Errorf("unknown representation mode: %s", s)
	}
}

// CascadePolicy controls which operations on an owner propagate to an association target
type CascadePolicy int

const (
	CascadeNone CascadePolicy = iota
	CascadeSaveUpdate
	CascadeDelete
	CascadeAll
)

// String returns the string representation of the cascade policy
func (c CascadePolicy) String() string {
	switch c {
	case CascadeNone:
		return "none"
	case CascadeSaveUpdate:
		return "save-update"
	case CascadeDelete:
		return "delete"
	case CascadeAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseCascadePolicy converts a string to a CascadePolicy
func ParseCascadePolicy(s string) (CascadePolicy, error) {
	switch s {
	case "", "none":
		return CascadeNone, nil
	case "save-update":
		return CascadeSaveUpdate, nil
	case "delete":
		return CascadeDelete, nil
	case "all":
		return CascadeAll, nil
	default:
		return 0, fmt.Errorf("unknown cascade policy: %s", s)
	}
}

// CascadesSave reports whether save and update operations propagate to the target
func (c CascadePolicy) CascadesSave() bool {
	return c == CascadeSaveUpdate || c == CascadeAll
}

// CascadesDelete reports whether delete operations propagate to the target
func (c CascadePolicy) CascadesDelete() bool {
	return c == CascadeDelete || c == CascadeAll
}

// FetchMode controls whether an association target is loaded with its owner
type FetchMode int

const (
	FetchLazy FetchMode = iota
	FetchEager
)

// String returns the string representation of the fetch mode
func (f FetchMode) String() string {
	if f == FetchEager {
		return "eager"
	}
	return "lazy"
}

// ParseFetchMode converts a string to a FetchMode
func ParseFetchMode(s string) (FetchMode, error) {
	switch s {
	case "", "lazy":
		return FetchLazy, nil
	case "eager":
		return FetchEager, nil
	default:
		return 0, fmt.Errorf("unknown fetch mode: %s", s)
	}
}

// IdentifierStrategy describes who assigns identifier values and when
type IdentifierStrategy int

const (
	// Assigned identifiers are set by the application before save
	Assigned IdentifierStrategy = iota
	StrategyUUID
	StrategyULID
	// Sequence identifiers come from an in-process per-entity counter
	Sequence
	// StoreAssigned identifiers are produced by the storage backend on insert
	StoreAssigned
)

// String returns the string representation of the identifier strategy
func (s IdentifierStrategy) String() string {
	switch s {
	case Assigned:
		return "assigned"
	case StrategyUUID:
		return "uuid"
	case StrategyULID:
		return "ulid"
	case Sequence:
		return "sequence"
	case StoreAssigned:
		return "store"
	default:
		return "unknown"
	}
}

// ParseIdentifierStrategy converts a string to an IdentifierStrategy
func ParseIdentifierStrategy(s string) (IdentifierStrategy, error) {
	switch s {
	case "", "assigned":
		return Assigned, nil
	case "uuid":
		return StrategyUUID, nil
	case "ulid":
		return StrategyULID, nil
	case "sequence":
		return Sequence, nil
	case "store", "identity":
		return StoreAssigned, nil
	default:
		return 0, fmt.Errorf("unknown identifier strategy: %s", s)
	}
}

// AttributeDescriptor describes one attribute of an entity
type AttributeDescriptor struct {
	Name     string
	Type     ValueType
	Nullable bool

	// Column is the storage column; defaults to snake_case(Name)
	Column string

	// Default is returned for attributes that were never set
	Default interface{}

	// Association configuration, only meaningful when Type is TypeAssociation
	Target  string
	Cascade CascadePolicy
	Fetch   FetchMode
}

// IsAssociation returns true if the attribute references another entity
func (a *AttributeDescriptor) IsAssociation() bool {
	return a.Type == TypeAssociation
}

// ColumnName returns the storage column for the attribute
func (a *AttributeDescriptor) ColumnName() string {
	if a.Column != "" {
		return a.Column
	}
	return toSnakeCase(a.Name)
}

// DefaultValue returns the declared default or, for non-nullable attributes,
// the zero value of the declared type. Nullable attributes default to nil.
func (a *AttributeDescriptor) DefaultValue() interface{} {
	if a.Default != nil {
		return a.Default
	}
	if a.Nullable {
		return nil
	}
	return a.Type.Zero()
}

// EntityMetadata is the immutable description of one entity-name in one representation mode
type EntityMetadata struct {
	Name       string
	Mode       RepresentationMode
	Attributes []*AttributeDescriptor
	Identifier *AttributeDescriptor
	Strategy   IdentifierStrategy

	// Tuplizer names a registered tuplizer factory overriding the mode default
	Tuplizer string

	// Table is the storage table or keyspace; defaults to snake_case(Name)
	Table string

	ordinals map[string]int
}

// NewEntityMetadata creates metadata for an entity with the given attributes
func NewEntityMetadata(name string, mode RepresentationMode, attrs ...*AttributeDescriptor) *EntityMetadata {
	m := &EntityMetadata{
		Name:       name,
		Mode:       mode,
		Attributes: attrs,
	}
	m.index()
	return m
}

func (m *EntityMetadata) index() {
	m.ordinals = make(map[string]int, len(m.Attributes))
	for i, a := range m.Attributes {
		m.ordinals[a.Name] = i
	}
}

// WithIdentifier sets the identifier attribute and strategy and returns the metadata
func (m *EntityMetadata) WithIdentifier(id *AttributeDescriptor, strategy IdentifierStrategy) *EntityMetadata {
	m.Identifier = id
	m.Strategy = strategy
	return m
}

// Ordinal returns the declared position of the named attribute
func (m *EntityMetadata) Ordinal(name string) (int, bool) {
	if m.ordinals == nil {
		m.index()
	}
	i, ok := m.ordinals[name]
	return i, ok
}

// Attribute returns the descriptor at the given ordinal
func (m *EntityMetadata) Attribute(ordinal int) (*AttributeDescriptor, bool) {
	if ordinal < 0 || ordinal >= len(m.Attributes) {
		return nil, false
	}
	return m.Attributes[ordinal], true
}

// AttributeNames returns the attribute names in declaration order
func (m *EntityMetadata) AttributeNames() []string {
	names := make([]string, len(m.Attributes))
	for i, a := range m.Attributes {
		names[i] = a.Name
	}
	return names
}

// HasIdentifier returns true if the entity declares an identifier attribute
func (m *EntityMetadata) HasIdentifier() bool {
	return m.Identifier != nil
}

// Associations returns the ordinals of association attributes
func (m *EntityMetadata) Associations() []int {
	var out []int
	for i, a := range m.Attributes {
		if a.IsAssociation() {
			out = append(out, i)
		}
	}
	return out
}

// TableName returns the storage table for the entity
func (m *EntityMetadata) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return toSnakeCase(m.Name)
}

// clone returns a deep copy so registered metadata cannot be mutated through the caller's pointer
func (m *EntityMetadata) clone() *EntityMetadata {
	c := *m
	c.Attributes = make([]*AttributeDescriptor, len(m.Attributes))
	for i, a := range m.Attributes {
		ac := *a
		c.Attributes[i] = &ac
	}
	if m.Identifier != nil {
		id := *m.Identifier
		c.Identifier = &id
	}
	c.index()
	return &c
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' && prev != '_' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
