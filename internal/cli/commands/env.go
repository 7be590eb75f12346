package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/tuplizer/internal/config"
	"github.com/conduit-lang/tuplizer/internal/logging"
	"github.com/conduit-lang/tuplizer/internal/orm/hooks"
	"github.com/conduit-lang/tuplizer/internal/orm/mapping"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/session"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
	"github.com/conduit-lang/tuplizer/internal/orm/storage/redisstore"
	"github.com/conduit-lang/tuplizer/internal/orm/storage/sqlstore"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// env holds the flags of the root command and the state built from them
type env struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger
}

// load reads the configuration and builds the logger
func (e *env) load() error {
	if e.cfg != nil {
		return nil
	}

	path := e.configPath
	if path == "" {
		if found, err := config.FindConfig(); err == nil {
			path = found
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logger
	return nil
}

// registry loads the mapping documents into a frozen registry. The returned
// metadata is in document order.
func (e *env) registry() (*schema.Registry, []*schema.EntityMetadata, error) {
	if err := e.load(); err != nil {
		return nil, nil, err
	}

	metas, err := mapping.Load(e.cfg.Mapping.Paths...)
	if err != nil {
		return nil, nil, err
	}

	reg := schema.NewRegistry(e.cfg.RepresentationMode())
	if err := mapping.Apply(reg, metas); err != nil {
		return nil, nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, nil, err
	}

	e.logger.Debug("mappings loaded",
		zap.Strings("paths", e.cfg.Mapping.Paths),
		zap.Int("entities", reg.Count()),
	)
	return reg, metas, nil
}

// closer releases a store
type closer func() error

// openStore connects the configured storage backend. SQL stores get a table
// for every keyed entity in the session mode.
func (e *env) openStore(ctx context.Context, reg *schema.Registry) (storage.Store, closer, error) {
	st := e.cfg.Storage
	switch st.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), func() error { return nil }, nil

	case config.DriverPostgres, config.DriverPgx, config.DriverSQLite:
		store, err := sqlstore.Open(ctx, st.Driver, st.DSN, sqlstore.WithLogger(e.logger))
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureTables(ctx, e.keyed(reg)...); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.DriverRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Prefix:   st.Redis.Prefix,
		}, e.logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver: %s", st.Driver)
}

// keyed returns the entities of the session mode that have an identifier
func (e *env) keyed(reg *schema.Registry) []*schema.EntityMetadata {
	var out []*schema.EntityMetadata
	for _, meta := range reg.All() {
		if meta.Mode == e.cfg.RepresentationMode() && meta.HasIdentifier() {
			out = append(out, meta)
		}
	}
	return out
}

// workspace is everything a command needs to run sessions
type workspace struct {
	registry *schema.Registry
	catalog  *tuplizer.Catalog
	store    storage.Store
	notifier *hooks.Notifier
	close    closer
}

// open builds a workspace over the configured store. The notifier logs every
// completed operation.
func (e *env) open(ctx context.Context) (*workspace, error) {
	reg, _, err := e.registry()
	if err != nil {
		return nil, err
	}

	store, closeStore, err := e.openStore(ctx, reg)
	if err != nil {
		return nil, err
	}

	logger := e.logger
	notifier := hooks.NewNotifier(e.cfg.Notify.Workers, logger)
	notifier.Subscribe(hooks.AllEntities, func(ctx context.Context, ev hooks.Event) error {
		logger.Info("instance stored",
			zap.String("entity", ev.Entity),
			zap.String("operation", string(ev.Operation)),
			zap.Any("id", ev.ID),
		)
		return nil
	})
	notifier.Start()

	return &workspace{
		registry: reg,
		catalog:  tuplizer.NewCatalog(reg),
		store:    store,
		notifier: notifier,
		close: func() error {
			notifier.Shutdown()
			logger.Sync()
			return closeStore()
		},
	}, nil
}

func (w *workspace) session(e *env) *session.Session {
	return session.New(w.catalog, w.store,
		session.WithMode(e.cfg.RepresentationMode()),
		session.WithNotifier(w.notifier),
		session.WithLogger(e.logger),
		session.WithDispatcher(hooks.NewDispatcher(hooks.NewTable(), hooks.WithLogger(e.logger))),
	)
}
