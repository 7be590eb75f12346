// Package server exposes a read-only HTTP view of the entity registry and of
// stored instances
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/session"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// Server is the metadata inspector
type Server struct {
	catalog *tuplizer.Catalog
	store   storage.Store
	hooks   *hooks.Dispatcher
	mode    schema.RepresentationMode
	logger  *zap.Logger
	router  chi.Router
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMode sets the representation mode instances are loaded in
func WithMode(mode schema.RepresentationMode) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithDispatcher runs PostLoad hooks on served instances
func WithDispatcher(d *hooks.Dispatcher) Option {
	return func(s *Server) {
		s.hooks = d
	}
}

// New creates an inspector over a catalog and a store
func New(catalog *tuplizer.Catalog, store storage.Store, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		store:   store,
		mode:    catalog.Registry().DefaultMode(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the inspector
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", s.handleListEntities)
		r.Get("/{entity}", s.handleGetEntity)
		r.Get("/{entity}/instances", s.handleListInstances)
		r.Get("/{entity}/instances/{id}", s.handleGetInstance)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) session() *session.Session {
	opts := []session.Option{session.WithMode(s.mode), session.WithLogger(s.logger)}
	if s.hooks != nil {
		opts = append(opts, session.WithDispatcher(s.hooks))
	}
	return session.New(s.catalog, s.store, opts...)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("inspector listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down inspector: %w", err)
	}
	return nil
}
