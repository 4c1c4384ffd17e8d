// Package app assembles the pennywise services from configuration and
// environment secrets.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pennywise-dev/pennywise/internal/accounts"
	"github.com/pennywise-dev/pennywise/internal/budgets"
	"github.com/pennywise-dev/pennywise/internal/config"
	"github.com/pennywise-dev/pennywise/internal/fieldcrypt"
	"github.com/pennywise-dev/pennywise/internal/importer"
	"github.com/pennywise-dev/pennywise/internal/ingest"
	"github.com/pennywise-dev/pennywise/internal/records"
	"github.com/pennywise-dev/pennywise/internal/store"
	"github.com/pennywise-dev/pennywise/internal/store/memory"
	"github.com/pennywise-dev/pennywise/internal/store/mongostore"
	"github.com/pennywise-dev/pennywise/internal/store/pgstore"
)

// ErrMissingDSN is returned when the configured driver has no connection string.
var ErrMissingDSN = errors.New("store connection string not set")

// Options configures New.
type Options struct {
	Config  *config.Config
	Secrets config.Secrets
	Log     zerolog.Logger
	// Store overrides the configured driver. The caller keeps ownership.
	Store store.Store
}

// App holds the long-lived services. Build it once per process.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    store.Store
	Sealer   *records.Sealer
	Accounts *accounts.Service
	Budgets  *budgets.Service
	Ingestor *ingest.Ingestor
	Parsers  *importer.Registry

	closers []func(context.Context) error
}

// New parses the encryption key, opens the store and wires the services.
// A missing or malformed key yields a *fieldcrypt.ConfigurationError.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	key, err := fieldcrypt.ParseKey(opts.Secrets.EncryptionKey)
	if err != nil {
		return nil, err
	}
	cipher, err := fieldcrypt.New(key)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Log:     opts.Log,
		Sealer:  records.NewSealer(cipher),
		Parsers: importer.DefaultRegistry(cfg.Import.DefaultCategory),
	}

	if opts.Store != nil {
		a.Store = opts.Store
	} else {
		st, closer, err := OpenStore(ctx, cfg.Store, opts.Secrets)
		if err != nil {
			return nil, err
		}
		a.Store = st
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	a.Accounts = accounts.NewService(a.Store, a.Sealer)
	a.Budgets = budgets.NewService(a.Store, a.Sealer)
	a.Ingestor = ingest.New(a.Store, a.Sealer, a.Log)

	_, transactional := a.Store.(store.Transactor)
	a.Log.Debug().Str("driver", cfg.Store.Driver).Bool("transactional", transactional).Msg("app ready")
	return a, nil
}

// OpenStore connects the configured backend. The returned closer may be nil.
func OpenStore(ctx context.Context, cfg config.StoreConfig, secrets config.Secrets) (store.Store, func(context.Context) error, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return memory.New(), nil, nil
	case config.DriverPostgres:
		if secrets.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres: %w (%s)", ErrMissingDSN, config.EnvDatabaseURL)
		}
		st, err := pgstore.Open(ctx, secrets.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func(context.Context) error { return st.Close() }, nil
	case config.DriverMongo:
		if secrets.MongoURI == "" {
			return nil, nil, fmt.Errorf("mongo: %w (%s)", ErrMissingDSN, config.EnvMongoURI)
		}
		st, err := mongostore.Connect(ctx, secrets.MongoURI, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases everything New opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
