package daemon

import (
	"context"
	"net/http"

	"github.com/parlohq/syncd/internal/api"
	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/bus"
	"github.com/parlohq/syncd/internal/cache"
	"github.com/parlohq/syncd/internal/config"
	"github.com/parlohq/syncd/internal/lock"
	"github.com/parlohq/syncd/internal/logging"
	"github.com/parlohq/syncd/internal/ratelimit"
	"github.com/parlohq/syncd/internal/store"
	intsync "github.com/parlohq/syncd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks. Dependencies are explicit: the engine, cache, and store
// are constructed here and injected, never reached through globals.
func Module(cfg config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideDB,
			provideCache,
			provideStore,
			provideVerifier,
			provideLimiter,
			provideEngine,
			provideHandlers,
			provideMux,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("data_dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideDB(cfg config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath()))
	return db, nil
}

func provideCache(cfg config.Config) *cache.Cache {
	return cache.New(cache.Config{
		ShortTTL:   cfg.ShortTTL(),
		MediumTTL:  cfg.MediumTTL(),
		LongTTL:    cfg.LongTTL(),
		MaxEntries: cfg.CacheMaxEntries,
	})
}

// provideStore fronts the sqlite store with the cache decorator; everything
// downstream sees only the store.Store interface.
func provideStore(db *store.DB, c *cache.Cache, logger *zap.Logger) store.Store {
	return cache.NewStore(db, c, logger)
}

func provideVerifier(db *store.DB) auth.Verifier {
	return auth.NewVerifier(db)
}

func provideLimiter(cfg config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

func provideEngine(st store.Store, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, b, logger)
}

func provideHandlers(st store.Store, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) api.Handlers {
	return api.Handlers{
		Sync:     api.NewSyncHandler(engine, logger),
		Chats:    api.NewChatHandler(st, b, logger),
		Messages: api.NewMessageHandler(st, b, logger),
		Account:  api.NewAccountHandler(st, logger),
		Events:   api.NewEventHandler(b, logger),
	}
}

func provideMux(h api.Handlers, verifier auth.Verifier, limiter *ratelimit.Limiter, logger *zap.Logger) *http.ServeMux {
	return api.NewMux(h, verifier, limiter, logger)
}

func provideServer(cfg config.Config, mux *http.ServeMux, logger *zap.Logger) *Server {
	return NewServer(cfg.ListenAddr, mux, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
