package session

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/orm/identity"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Option configures a Session
type Option func(*Session)

// WithMode sets the representation mode the session works in. The default
// is the registry's default mode.
func WithMode(mode schema.RepresentationMode) Option {
	return func(s *Session) {
		s.mode = mode
	}
}

// WithDispatcher routes lifecycle events through d
func WithDispatcher(d *hooks.Dispatcher) Option {
	return func(s *Session) {
		s.hooks = d
	}
}

// WithNotifier publishes completed operations to n
func WithNotifier(n *hooks.Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithGenerators sets the identifier generators
func WithGenerators(g identity.Generators) Option {
	return func(s *Session) {
		s.generators = g
	}
}

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}
