package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pushrelay/internal/audit"
	"pushrelay/internal/config"
	"pushrelay/internal/dispatch"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/health"
	"pushrelay/internal/queue"
	rtsup "pushrelay/internal/runtime/supervisor"
	logx "pushrelay/pkg/logx"
)

// StopReason tags why the relay is shutting down; it only feeds logs.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// App wires the relay: config, logging, store, transport, engine,
// audit trail and the liveness server.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    queue.Store
	engine   *dispatch.Engine
	auditLog audit.Store
	recorder *audit.Recorder
	health   *health.Service

	started time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogxConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, db, err := openStore(cfg, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	dir, err := openDirectory(db)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	client, err := buildTransport(cfg, log)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	engine := dispatch.New(engCfg, store, dir, client,
		log.With(logx.String("comp", "engine")), bus)

	auditLog, err := audit.Open(mapAuditConfig(cfg), db, log.With(logx.String("comp", "audit")))
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	var recorder *audit.Recorder
	if auditLog != nil {
		recorder = audit.NewRecorder(auditLog, bus, log.With(logx.String("comp", "audit")))
		log.Info("audit trail enabled", logx.String("driver", cfg.Audit.Driver))
	}

	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		engine:   engine,
		auditLog: auditLog,
		recorder: recorder,
	}
	a.health = health.New(mapHealthConfig(cfg), a.snapshot, log.With(logx.String("comp", "health")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	if err := a.engine.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.recorder != nil {
		a.sup.Go("audit.record", func(c context.Context) error {
			return a.recorder.Run(c)
		})
	}

	a.health.Start(a.sup.Context())

	// Hot reload: logging level and console/file sinks apply live; the
	// store, queue and transport sections need a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Event debug tail, same channel the audit trail reads.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	notifyReady(a.log)
	a.log.Info("relay started")
	return nil
}

func (a *App) applyReload(prev, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	a.logs.Apply(mapLogxConfig(newCfg))

	if prev != nil {
		if prev.Store != newCfg.Store {
			a.log.Warn("store config changed; restart required for changes to take effect")
		}
		if prev.Transport != newCfg.Transport {
			a.log.Warn("transport config changed; restart required for changes to take effect")
		}
		if prev.Queue != newCfg.Queue || prev.Engine != newCfg.Engine {
			a.log.Warn("queue/engine config changed; restart required for changes to take effect")
		}
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Engine first so in-flight records finish their retire step.
	step("engine", 5*time.Second, func(c context.Context) error { return a.engine.Stop(c) })
	step("health", 2*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("audit", 1*time.Second, func(c context.Context) error {
		if a.auditLog != nil {
			return a.auditLog.Close()
		}
		return nil
	})
	step("store", 2*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func (a *App) snapshot() health.Snapshot {
	var counters rtsup.Counters
	if a.sup != nil {
		counters = a.sup.Counters()
	}
	if esup := a.engine.Supervisor(); esup != nil {
		ec := esup.Counters()
		counters.Active += ec.Active
		counters.Panics += ec.Panics
	}
	return health.Snapshot{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Branches:      a.engine.Branches(),
		WorkersActive: counters.Active,
		WorkerPanics:  int64(counters.Panics),
	}
}

func notifyReady(log logx.Logger) {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}
}

func notifyStopping(log logx.Logger) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
