package daemon

import (
	"context"

	"github.com/matheus3301/wpparchive/internal/api"
	"github.com/matheus3301/wpparchive/internal/backend"
	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/channel"
	"github.com/matheus3301/wpparchive/internal/config"
	"github.com/matheus3301/wpparchive/internal/jobs"
	"github.com/matheus3301/wpparchive/internal/lock"
	"github.com/matheus3301/wpparchive/internal/logging"
	"github.com/matheus3301/wpparchive/internal/notify"
	"github.com/matheus3301/wpparchive/internal/recovery"
	"github.com/matheus3301/wpparchive/internal/session"
	"github.com/matheus3301/wpparchive/internal/state"
	"github.com/matheus3301/wpparchive/internal/status"
	"github.com/matheus3301/wpparchive/internal/store"
	intsync "github.com/matheus3301/wpparchive/internal/sync"
	"github.com/matheus3301/wpparchive/internal/view"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	// Config overrides the file and environment lookup when set.
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideState,
			provideStore,
			provideBackend,
			provideChannel,
			provideAlerts,
			provideTracker,
			provideDispatcher,
			provideJobs,
			provideRecovery,
			provideSyncEngine,
			provideView,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return config.Resolve(session.ConfigPath(), session.EnvPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, logging.Options{Level: lvl})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideState takes the lock first so two daemons never share state.db.
func provideState(p Params, _ *lock.Lock, logger *zap.Logger) (*state.State, error) {
	st, err := state.LoadAt(session.StatePath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("state loaded", zap.Bool("has_credential", st.Token() != ""))
	return st, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ArchiveDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("archive schema migrated", zap.Uint("from", result.From), zap.Uint("to", result.Version))
	}
	logger.Info("archive mirror ready", zap.String("path", db.Path()), zap.Uint("schema", result.Version))
	return db, nil
}

func provideBackend(cfg *config.Config, st *state.State, logger *zap.Logger) *backend.Client {
	return backend.New(backend.Options{
		BaseURL: cfg.ServerURL,
		Tokens:  st,
		Logger:  logger,
		OnUnauthorized: func() {
			logger.Warn("server rejected the credential, signing out")
			if err := st.Invalidate(); err != nil {
				logger.Error("invalidating credential failed", zap.Error(err))
			}
		},
	})
}

func provideChannel(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *channel.Client {
	return channel.New(channel.Options{
		URL:          cfg.SocketURL,
		Bus:          b,
		Logger:       logger,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	})
}

func provideAlerts(cfg *config.Config, b *bus.Bus) *notify.Center {
	return notify.NewCenter(b, cfg.AlertDuration)
}

func provideTracker(b *bus.Bus, alerts *notify.Center, logger *zap.Logger) *status.Tracker {
	return status.NewTracker(b, alerts, logger)
}

func provideDispatcher(cfg *config.Config, alerts *notify.Center, b *bus.Bus, st *state.State, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(notify.Options{
		Center:   alerts,
		Desktop:  notify.BusDesktop{Bus: b},
		Prefs:    st,
		Duration: cfg.SystemAlertDuration,
		Logger:   logger,
	})
}

func provideJobs() *jobs.Tracker {
	return jobs.NewTracker()
}

func provideRecovery(cfg *config.Config, be *backend.Client, tracker *status.Tracker, logger *zap.Logger) *recovery.Protocol {
	return recovery.New(recovery.Options{
		Backend:       be,
		SettleDelay:   cfg.SettleDelay,
		ProbeTimeout:  cfg.ProbeTimeout,
		LinkConnected: func() bool { return tracker.Snapshot().Link.Connected },
		Logger:        logger,
	})
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

type viewDeps struct {
	fx.In

	Bus      *bus.Bus
	Channel  *channel.Client
	Backend  *backend.Client
	Engine   *intsync.Engine
	Recovery *recovery.Protocol
	Tracker  *status.Tracker
	Jobs     *jobs.Tracker
	Alerts   *notify.Center
	Notifier *notify.Dispatcher
	State    *state.State
	Logger   *zap.Logger
}

func provideView(d viewDeps) *view.Controller {
	return view.New(view.Options{
		Bus:      d.Bus,
		Channel:  d.Channel,
		Backend:  d.Backend,
		Mirror:   d.Engine,
		Recovery: d.Recovery,
		Tracker:  d.Tracker,
		Jobs:     d.Jobs,
		Alerts:   d.Alerts,
		Notifier: d.Notifier,
		OnUnauthorized: func() {
			if err := d.State.Invalidate(); err != nil {
				d.Logger.Error("invalidating credential failed", zap.Error(err))
			}
		},
		Logger: d.Logger,
	})
}

func provideControlService(v *view.Controller, st *state.State, engine *intsync.Engine, be *backend.Client, b *bus.Bus, logger *zap.Logger) *api.ControlService {
	return api.NewControlService(v, st, engine, be, b, logger)
}

type lifecycleDeps struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	State   *state.State
	DB      *store.DB
	Channel *channel.Client
	Engine  *intsync.Engine
	View    *view.Controller
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Mirror and view subscribe before the channel can publish.
			d.Engine.Start(context.Background())
			d.View.Start(context.Background())

			d.State.OnTokenChange(d.Channel.SetCredential)

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if token := d.State.Token(); token != "" {
				d.Channel.SetCredential(token)
			} else {
				d.Logger.Info("no credential stored, waiting for login")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Server.Stop(ctx)
			d.Channel.Close()
			d.View.Stop()
			d.Engine.Stop()
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.State.Close(); err != nil {
				d.Logger.Warn("error closing state", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
