// Package daemon composes the walinkd process: configuration, store,
// gateway client, pollers, synchronizer, scheduler and the HTTP API,
// wired with fx and torn down in reverse on shutdown.
package daemon

import (
	"context"

	"github.com/ticlin/walink/internal/api"
	"github.com/ticlin/walink/internal/bus"
	"github.com/ticlin/walink/internal/config"
	"github.com/ticlin/walink/internal/connect"
	"github.com/ticlin/walink/internal/gateway"
	"github.com/ticlin/walink/internal/lock"
	"github.com/ticlin/walink/internal/logging"
	"github.com/ticlin/walink/internal/manager"
	"github.com/ticlin/walink/internal/poll"
	"github.com/ticlin/walink/internal/store"
	intsync "github.com/ticlin/walink/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideGateway,
			provideRegistry,
			provideSynchronizer,
			provideQRPoller,
			provideWaiter,
			provideChecker,
			provideDrivers,
			provideManager,
			provideScheduler,
			provideAPI,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return logging.New(cfg.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("daemon lock acquired", zap.String("data_dir", cfg.DataDir))
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
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

func provideGateway(cfg *config.Config, logger *zap.Logger) *gateway.Client {
	return gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout(), logger)
}

func provideRegistry() *connect.Registry {
	return connect.NewRegistry()
}

func provideSynchronizer(db *store.DB, gw *gateway.Client, b *bus.Bus, cfg *config.Config, logger *zap.Logger) (*intsync.Synchronizer, error) {
	return intsync.NewSynchronizer(db, gw, b, cfg.Sync.Workers, logger)
}

func provideQRPoller(cfg *config.Config, reg *connect.Registry, syncer *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *connect.QRPoller {
	pollCfg := poll.Config{
		MaxAttempts: cfg.Poll.MaxAttempts,
		Interval:    cfg.Poll.Interval(),
		Timeout:     cfg.Poll.Timeout(),
	}
	return connect.NewQRPoller(pollCfg, reg, syncer, b, logger)
}

func provideWaiter(cfg *config.Config, reg *connect.Registry, syncer *intsync.Synchronizer, logger *zap.Logger) *connect.Waiter {
	return connect.NewWaiter(cfg.Wait.Interval(), cfg.Wait.Timeout(), reg, syncer, logger)
}

func provideChecker(cfg *config.Config, reg *connect.Registry, syncer *intsync.Synchronizer, logger *zap.Logger) *connect.AutoChecker {
	return connect.NewAutoChecker(cfg.Checker.Interval(), reg, syncer, logger)
}

func provideDrivers(qr *connect.QRPoller, w *connect.Waiter, c *connect.AutoChecker, b *bus.Bus, logger *zap.Logger) *connect.Drivers {
	return connect.NewDrivers(qr, w, c, b, logger)
}

func provideManager(db *store.DB, gw *gateway.Client, drivers *connect.Drivers, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *manager.Manager {
	return manager.New(db, gw, drivers, b, cfg.Sync.StaleAfter(), logger)
}

func provideScheduler(syncer *intsync.Synchronizer, mgr *manager.Manager, cfg *config.Config, logger *zap.Logger) *intsync.Scheduler {
	return intsync.NewScheduler(syncer, mgr, cfg.Sync, logger)
}

func provideAPI(db *store.DB, mgr *manager.Manager, syncer *intsync.Synchronizer, drivers *connect.Drivers, b *bus.Bus, logger *zap.Logger) *api.API {
	return api.New(db, mgr, syncer, drivers, b, logger)
}

func provideServer(cfg *config.Config, a *api.API, logger *zap.Logger) *api.Server {
	return api.NewServer(cfg.Listen, a, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *api.Server, lk *lock.Lock, drivers *connect.Drivers, syncer *intsync.Synchronizer, sched *intsync.Scheduler, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			drivers.Start()

			if err := sched.Start(); err != nil {
				return err
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			// Reconcile everything once at boot so records left over from
			// the previous run converge before any user action, then put
			// the still-unconnected instances under background checking.
			go func() {
				if _, err := syncer.SyncAll(context.Background(), ""); err != nil {
					logger.Warn("initial sync all failed", zap.Error(err))
				}
				instances, err := db.ListInstances("")
				if err != nil {
					logger.Warn("listing instances for auto check failed", zap.Error(err))
					return
				}
				for _, inst := range instances {
					if inst.ConnectionState.PreOpen() {
						drivers.Checker.Start(inst.ID)
					}
				}
			}()

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			drivers.Close()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown error", zap.Error(err))
			}
			syncer.Close()
			if err := db.Close(); err != nil {
				logger.Warn("store close error", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
