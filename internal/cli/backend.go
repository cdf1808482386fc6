package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"sitebuilder/internal/config"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/service"
	"sitebuilder/internal/storage"
)

// backend is an opened gateway plus whatever must be closed with it.
type backend struct {
	domain.Gateway
	closers []func() error
}

func (b *backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openBackend connects the configured storage driver and, when a Redis
// address is configured, fronts it with the version cache.
func openBackend(ctx context.Context, cfg *config.Config, l *log.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Storage.Driver {
	case storage.DriverSQLite, storage.DriverPostgres, storage.DriverMySQL:
		db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Storage.Driver, err)
		}
		b.Gateway = storage.NewSQLGateway(db)
		b.closers = append(b.closers, db.Close)
	case "mongo":
		gw, err := storage.NewMongoGateway(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Transactions)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		if !cfg.Mongo.Transactions {
			l.Warn("mongo transactions disabled; version rollback will fail")
		}
		b.Gateway = gw
		b.closers = append(b.closers, func() error {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return gw.Close(cctx)
		})
	case "http":
		b.Gateway = storage.NewHTTPGateway(cfg.Storage.DSN, nil)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	l.Debug("storage opened", "driver", cfg.Storage.Driver)

	if cfg.Redis.Addr != "" {
		rc := storage.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rc.Ping(pctx)
		cancel()
		if err != nil {
			// the cache degrades to pass-through, so an unreachable server is not fatal
			l.Warn("redis unreachable, continuing", "addr", cfg.Redis.Addr, "err", err)
		}
		b.Gateway = storage.NewCachedGateway(b.Gateway, rc, cfg.Redis.TTL.Duration, l)
		b.closers = append(b.closers, rc.Close)
	}
	return b, nil
}

func editorOptions(cfg *config.Config) service.Options {
	return service.Options{
		Debounce:      cfg.Autosave.Debounce.Duration,
		RetryInterval: cfg.Autosave.RetryInterval.Duration,
		SaveTimeout:   cfg.Autosave.SaveTimeout.Duration,
		AutoSnapshot:  cfg.Versions.AutoSnapshot,
	}
}
