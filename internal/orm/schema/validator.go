package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a metadata validation error with context
type ValidationError struct {
	Entity    string
	Attribute string
	Message   string
	Hint      string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Entity != "" {
		b.WriteString(e.Entity)
		if e.Attribute != "" {
			b.WriteString(".")
			b.WriteString(e.Attribute)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// Validator checks entity metadata before it enters a registry
type Validator struct {
	errors []*ValidationError
}

// NewValidator creates a new metadata validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateStructural validates one entity without cross-entity checks.
// Association targets may reference entities registered later.
func (v *Validator) ValidateStructural(meta *EntityMetadata) error {
	v.errors = v.errors[:0]

	if strings.TrimSpace(meta.Name) == "" {
		v.add("", "", "entity name is empty", "")
	}

	v.validateAttributes(meta)
	v.validateIdentifier(meta)

	if len(v.errors) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(v.errors))
	for _, e := range v.errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(msgs, "; "))
}

func (v *Validator) validateAttributes(meta *EntityMetadata) {
	seen := make(map[string]bool, len(meta.Attributes))

	for i, attr := range meta.Attributes {
		if attr == nil {
			v.add(meta.Name, fmt.Sprintf("#%d", i), "attribute descriptor is nil", "")
			continue
		}
		if attr.Name == "" {
			v.add(meta.Name, fmt.Sprintf("#%d", i), "attribute name is empty", "")
			continue
		}
		if seen[attr.Name] {
			v.add(meta.Name, attr.Name, "attribute declared more than once",
				"attribute names must be unique within an entity")
		}
		seen[attr.Name] = true

		if attr.IsAssociation() && attr.Target == "" {
			v.add(meta.Name, attr.Name, "association has no target entity", "set target to an entity-name")
		}
		if !attr.IsAssociation() {
			if attr.Target != "" {
				v.add(meta.Name, attr.Name, "target set on a non-association attribute", "use type association")
			}
			if attr.Cascade != CascadeNone {
				v.add(meta.Name, attr.Name, "cascade set on a non-association attribute", "")
			}
		}
		if attr.Default != nil {
			if _, err := attr.Type.Coerce(attr.Default); err != nil {
				v.add(meta.Name, attr.Name, fmt.Sprintf("default does not match type: %v", err), "")
			}
		}
	}

	if meta.Identifier != nil && seen[meta.Identifier.Name] {
		v.add(meta.Name, meta.Identifier.Name, "identifier is also declared as an ordinary attribute", "")
	}
}

func (v *Validator) validateIdentifier(meta *EntityMetadata) {
	id := meta.Identifier
	if id == nil {
		if meta.Strategy != Assigned {
			v.add(meta.Name, "", fmt.Sprintf("identifier strategy %s without identifier attribute", meta.Strategy), "")
		}
		return
	}
	if id.Name == "" {
		v.add(meta.Name, "", "identifier attribute has no name", "")
	}
	if id.IsAssociation() {
		v.add(meta.Name, id.Name, "identifier cannot be an association", "")
	}

	switch meta.Strategy {
	case StrategyUUID:
		if id.Type != TypeUUID && id.Type != TypeString {
			v.add(meta.Name, id.Name, "uuid strategy requires a uuid or string identifier", "")
		}
	case StrategyULID:
		if id.Type != TypeString {
			v.add(meta.Name, id.Name, "ulid strategy requires a string identifier", "")
		}
	case Sequence, StoreAssigned:
		if id.Type != TypeInt {
			v.add(meta.Name, id.Name, fmt.Sprintf("%s strategy requires an int identifier", meta.Strategy), "")
		}
	}
}

func (v *Validator) add(entity, attr, msg, hint string) {
	v.errors = append(v.errors, &ValidationError{
		Entity:    entity,
		Attribute: attr,
		Message:   msg,
		Hint:      hint,
	})
}
