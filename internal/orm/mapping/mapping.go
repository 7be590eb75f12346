// Package mapping loads entity metadata from YAML mapping documents.
//
// A document lists entities:
//
//	entities:
//	  - name: Customer
//	    mode: dynamic-map
//	    identifier: {name: id, type: int, strategy: sequence}
//	    attributes:
//	      - {name: name, type: string}
//	      - {name: organization, type: association, target: Organization, nullable: true, cascade: save-update}
//
// An entity may list several modes; it is then registered once per mode and
// the tuplizer map selects a factory for each.
package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Document is one mapping file
type Document struct {
	Entities []Entity `yaml:"entities"`
}

// Entity is the mapping of one entity-name
type Entity struct {
	Name       string            `yaml:"name"`
	Mode       string            `yaml:"mode"`
	Modes      []string          `yaml:"modes"`
	Table      string            `yaml:"table"`
	Identifier *Identifier       `yaml:"identifier"`
	Attributes []Attribute       `yaml:"attributes"`
	Tuplizer   map[string]string `yaml:"tuplizer"`
}

// Identifier is the mapping of an identifier attribute
type Identifier struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Column   string `yaml:"column"`
	Strategy string `yaml:"strategy"`
}

// Attribute is the mapping of one attribute
type Attribute struct {
	Name     string      `yaml:"name"`
	Type     string      `yaml:"type"`
	Nullable bool        `yaml:"nullable"`
	Column   string      `yaml:"column"`
	Default  interface{} `yaml:"default"`
	Target   string      `yaml:"target"`
	Cascade  string      `yaml:"cascade"`
	Fetch    string      `yaml:"fetch"`
}

// MappingError reports a mapping that cannot be turned into metadata
type MappingError struct {
	Source string
	Entity string
	Err    error
}

func (e *MappingError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("%s: entity %s: %v", e.Source, e.Entity, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// ErrNoMappings is returned when the given paths contain no mapping files
var ErrNoMappings = errors.New("no mapping files found")

// Load reads mapping files and directories and returns the metadata they
// describe. Directories contribute their *.yaml and *.yml files in name order.
func Load(paths ...string) ([]*schema.EntityMetadata, error) {
	files, err := collect(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoMappings
	}

	var metas []*schema.EntityMetadata
	for _, file := range files {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open mapping: %w", err)
		}
		loaded, err := Decode(file, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		metas = append(metas, loaded...)
	}
	return metas, nil
}

// Parse decodes metadata from an in-memory document
func Parse(source string, data []byte) ([]*schema.EntityMetadata, error) {
	return Decode(source, bytes.NewReader(data))
}

// Decode reads every YAML document in r. source names r in errors.
func Decode(source string, r io.Reader) ([]*schema.EntityMetadata, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var metas []*schema.EntityMetadata
	for {
		var doc Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MappingError{Source: source, Err: err}
		}
		for _, e := range doc.Entities {
			built, err := e.Metadata()
			if err != nil {
				return nil, &MappingError{Source: source, Entity: e.Name, Err: err}
			}
			metas = append(metas, built...)
		}
	}
	return metas, nil
}

// Apply registers metadata into reg and verifies association targets
func Apply(reg *schema.Registry, metas []*schema.EntityMetadata) error {
	for _, meta := range metas {
		if err := reg.Register(meta); err != nil {
			return err
		}
	}
	return reg.Verify()
}

// Metadata converts the mapping into one EntityMetadata per mode
func (e Entity) Metadata() ([]*schema.EntityMetadata, error) {
	modes := e.Modes
	if len(modes) == 0 {
		mode := e.Mode
		if mode == "" {
			mode = schema.DynamicMap.String()
		}
		modes = []string{mode}
	}

	attrs := make([]*schema.AttributeDescriptor, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		attr, err := a.descriptor()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}

	var metas []*schema.EntityMetadata
	for _, name := range modes {
		mode, err := schema.ParseRepresentationMode(name)
		if err != nil {
			return nil, err
		}

		// descriptors are shared between modes; the registry copies them
		meta := schema.NewEntityMetadata(e.Name, mode, attrs...)
		meta.Table = e.Table
		meta.Tuplizer = e.factoryFor(mode)

		if e.Identifier != nil {
			id, strategy, err := e.Identifier.descriptor()
			if err != nil {
				return nil, err
			}
			meta.WithIdentifier(id, strategy)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (e Entity) factoryFor(mode schema.RepresentationMode) string {
	for name, factory := range e.Tuplizer {
		if m, err := schema.ParseRepresentationMode(name); err == nil && m == mode {
			return factory
		}
	}
	return ""
}

func (i Identifier) descriptor() (*schema.AttributeDescriptor, schema.IdentifierStrategy, error) {
	typeName := i.Type
	if typeName == "" {
		typeName = "int"
	}
	typ, err := schema.ParseValueType(typeName)
	if err != nil {
		return nil, 0, fmt.Errorf("identifier %s: %w", i.Name, err)
	}
	strategy, err := schema.ParseIdentifierStrategy(i.Strategy)
	if err != nil {
		return nil, 0, fmt.Errorf("identifier %s: %w", i.Name, err)
	}
	return &schema.AttributeDescriptor{Name: i.Name, Type: typ, Column: i.Column}, strategy, nil
}

func (a Attribute) descriptor() (*schema.AttributeDescriptor, error) {
	typ, err := schema.ParseValueType(a.Type)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	cascade, err := schema.ParseCascadePolicy(a.Cascade)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	fetch, err := schema.ParseFetchMode(a.Fetch)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
	}

	attr := &schema.AttributeDescriptor{
		Name:     a.Name,
		Type:     typ,
		Nullable: a.Nullable,
		Column:   a.Column,
		Target:   a.Target,
		Cascade:  cascade,
		Fetch:    fetch,
	}
	if a.Default != nil {
		if attr.Default, err = typ.Coerce(a.Default); err != nil {
			return nil, fmt.Errorf("attribute %s default: %w", a.Name, err)
		}
	}
	return attr, nil
}

func collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			found = append(found, matches...)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
