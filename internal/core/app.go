package core

import (
	"context"
	"fmt"
	"time"

	whatsapp "wagate/internal/adapters/whatsapp"
	"wagate/internal/gateway"
	"wagate/internal/services/contacts"
	"wagate/internal/services/dispatch"
	"wagate/internal/services/session"
	"wagate/internal/services/uploads"
	"wagate/internal/storage"
	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

// App owns the full wiring: config, logging, the WhatsApp adapter, the
// session controller, the dispatch engine and the HTTP gateway.
type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	creds   *storage.CredentialStore
	adapter *whatsapp.Adapter
	cache   *contacts.Cache
	session *session.Service
	engine  *dispatch.Engine
	uploads *uploads.Service
	gateway *gateway.Server
	pprof   *pprofServer

	events chan transport.Event
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogxConfig(cfg))
	applog := log.With(logx.String("comp", "app"))

	creds, err := storage.NewCredentialStore(cfg.Whatsapp.StoreDir)
	if err != nil {
		return nil, err
	}
	if err := creds.Ensure(); err != nil {
		return nil, fmt.Errorf("credential dir: %w", err)
	}

	ad, err := whatsapp.New(whatsapp.Config{
		StoreDir:   creds.Dir(),
		DeviceName: cfg.Whatsapp.DeviceName,
	}, log.With(logx.String("comp", "whatsapp")))
	if err != nil {
		return nil, err
	}

	cache := contacts.New(ad, log.With(logx.String("comp", "contacts")))

	settle, err := cfg.Whatsapp.reinitDelay()
	if err != nil {
		return nil, err
	}
	sess := session.New(session.Config{SettleDelay: settle},
		ad, creds, cache, log.With(logx.String("comp", "session")))

	engine := dispatch.New(ad, sess, log.With(logx.String("comp", "dispatch")))

	upCfg, err := mapUploadsConfig(cfg)
	if err != nil {
		return nil, err
	}
	ups := uploads.New(upCfg, log.With(logx.String("comp", "uploads")))

	srv := gateway.New(gateway.Config{
		Address:     cfg.Server.Address,
		AllowOrigin: cfg.Server.AllowOrigin,
	}, sess, engine, cache, ups, log.With(logx.String("comp", "http")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     applog,
		logs:    logSvc,
		creds:   creds,
		adapter: ad,
		cache:   cache,
		session: sess,
		engine:  engine,
		uploads: ups,
		gateway: srv,
		pprof:   newPprofServer(log),
		events:  make(chan transport.Event, 16),
	}, nil
}

// Done is closed when the app run context ends (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	runCtx := a.sup.Context()

	cfg := a.cfgm.Get()
	a.pprof.Apply(runCtx, cfg.Pprof)

	if err := a.adapter.Start(runCtx, a.events); err != nil {
		return err
	}
	a.sup.Go("session.run", func(c context.Context) error {
		return a.session.Run(c, a.events)
	})

	if err := a.uploads.Start(); err != nil {
		return err
	}
	if err := a.gateway.Start(runCtx); err != nil {
		return err
	}

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// First connect. Pairing may take a while; a QR scan is driven by
	// the user through /qr-status, so this only opens the store and
	// starts the socket.
	a.sup.Go0("session.connect", func(c context.Context) {
		initCtx, cancel := context.WithTimeout(c, time.Minute)
		defer cancel()
		if err := a.adapter.Initialize(initCtx); err != nil {
			a.log.Error("initial connect failed", logx.Err(err))
		}
	})

	a.log.Info("started",
		logx.String("http", a.gateway.Addr()),
		logx.String("store", a.creds.Dir()))
	return nil
}

// applyReload applies the hot-reloadable sections of a new config.
// Server and whatsapp sections need a restart and only produce a warning.
func (a *App) applyReload(ctx context.Context, old, newCfg *Config) {
	if newCfg == nil {
		return
	}

	a.logs.Apply(mapLogxConfig(newCfg))

	if upCfg, err := mapUploadsConfig(newCfg); err != nil {
		a.log.Warn("invalid uploads config; keeping previous", logx.Err(err))
	} else {
		a.uploads.Apply(upCfg)
	}

	a.pprof.Apply(ctx, newCfg.Pprof)

	if old != nil {
		if newCfg.Server != old.Server {
			a.log.Warn("server config changed; restart required")
		}
		if newCfg.Whatsapp != old.Whatsapp {
			a.log.Warn("whatsapp config changed; restart required")
		}
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("http", 3*time.Second, func(c context.Context) error { a.gateway.Stop(c); return nil })
	step("session", time.Second, func(context.Context) error { a.session.Close(); return nil })
	step("whatsapp", 3*time.Second, func(c context.Context) error { return a.adapter.Destroy(c) })
	step("uploads", time.Second, func(context.Context) error { a.uploads.Stop(); return nil })
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapLogxConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Console: true}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			URL:        cfg.Logging.Alert.URL,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	}
}

func mapUploadsConfig(cfg *Config) (uploads.Config, error) {
	if cfg == nil {
		return uploads.Config{}, nil
	}
	maxAge, err := cfg.Uploads.maxAge()
	if err != nil {
		return uploads.Config{}, err
	}
	return uploads.Config{
		Dir:           cfg.Uploads.Dir,
		SweepSchedule: cfg.Uploads.SweepSchedule,
		MaxAge:        maxAge,
	}, nil
}
