package identity

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Generator issues identifiers before an instance reaches storage
type Generator interface {
	Generate(ctx context.Context, meta *schema.EntityMetadata) (interface{}, error)
}

// UUIDGenerator issues random UUIDs, as strings when the identifier is declared as a string
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(_ context.Context, meta *schema.EntityMetadata) (interface{}, error) {
	id := uuid.New()
	if meta.Identifier != nil && meta.Identifier.Type == schema.TypeString {
		return id.String(), nil
	}
	return id, nil
}

// ULIDGenerator issues lexically sortable ULID strings. IDs generated within
// the same millisecond are strictly increasing.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULIDGenerator creates a generator with monotonic entropy
func NewULIDGenerator() *ULIDGenerator {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ULIDGenerator{entropy: ulid.Monotonic(src, 0)}
}

func (g *ULIDGenerator) Generate(_ context.Context, _ *schema.EntityMetadata) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// SequenceGenerator issues per-entity increasing integers starting at 1
type SequenceGenerator struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewSequenceGenerator creates a generator with all counters at zero
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{next: make(map[string]int64)}
}

func (g *SequenceGenerator) Generate(_ context.Context, meta *schema.EntityMetadata) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.next[meta.Name]++
	return g.next[meta.Name], nil
}

// Seed moves the counter for an entity so the next identifier is last+1
func (g *SequenceGenerator) Seed(entity string, last int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last > g.next[entity] {
		g.next[entity] = last
	}
}

// Generators selects a generator per identifier strategy
type Generators struct {
	UUID     Generator
	ULID     Generator
	Sequence Generator
}

// DefaultGenerators returns in-process generators for every generated strategy
func DefaultGenerators() Generators {
	return Generators{
		UUID:     UUIDGenerator{},
		ULID:     NewULIDGenerator(),
		Sequence: NewSequenceGenerator(),
	}
}

// For returns the generator for a strategy. Assigned and StoreAssigned
// identifiers are never generated in process.
func (g Generators) For(strategy schema.IdentifierStrategy) (Generator, error) {
	var gen Generator
	switch strategy {
	case schema.StrategyUUID:
		gen = g.UUID
	case schema.StrategyULID:
		gen = g.ULID
	case schema.Sequence:
		gen = g.Sequence
	}
	if gen == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy)
	}
	return gen, nil
}
