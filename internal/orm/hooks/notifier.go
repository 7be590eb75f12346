package hooks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Operation names the storage operation an Event reports
type Operation string

const (
	Persisted Operation = "persisted"
	Updated   Operation = "updated"
	Deleted   Operation = "deleted"
)

// Event describes a completed storage operation. Values is a private copy of
// the instance's attributes taken when the operation completed.
type Event struct {
	Entity    string
	Operation Operation
	ID        interface{}
	Values    map[string]interface{}
}

// Listener receives events after the operation has completed
type Listener func(ctx context.Context, ev Event) error

// AllEntities subscribes a listener to every entity
const AllEntities = "*"

// Notifier delivers events to listeners on a worker pool. Listeners never
// influence the operation they are told about.
type Notifier struct {
	pool   *pool
	logger *zap.Logger

	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewNotifier creates a notifier with its own worker pool
func NewNotifier(workers int, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		pool:      newPool(workers, logger),
		logger:    logger,
		listeners: make(map[string][]Listener),
	}
}

// Subscribe registers a listener for an entity-name, or AllEntities
func (n *Notifier) Subscribe(entity string, l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[entity] = append(n.listeners[entity], l)
}

// Start starts delivery
func (n *Notifier) Start() {
	n.pool.start()
}

// Shutdown delivers queued events and stops the workers
func (n *Notifier) Shutdown() {
	n.pool.drain()
}

// Stop cancels listeners in progress and drops queued events
func (n *Notifier) Stop() {
	n.pool.stop()
}

// Notify queues ev for every interested listener
func (n *Notifier) Notify(ev Event) {
	n.mu.RLock()
	targets := append([]Listener(nil), n.listeners[ev.Entity]...)
	targets = append(targets, n.listeners[AllEntities]...)
	n.mu.RUnlock()

	for _, l := range targets {
		l := l
		copied := Event{
			Entity:    ev.Entity,
			Operation: ev.Operation,
			ID:        ev.ID,
			Values:    deepCopyRecord(ev.Values),
		}
		if err := n.pool.submit(delivery{listener: l, event: copied}); err != nil {
			n.logger.Warn("failed to enqueue notification",
				zap.String("entity", ev.Entity),
				zap.String("operation", string(ev.Operation)),
				zap.Error(err),
			)
		}
	}
}

// deepCopyRecord copies a value map so listeners cannot observe later mutation
func deepCopyRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		out[k] = tuplizer.CopyValue(v)
	}
	return out
}
