// Package dispatch is the claim-and-dispatch engine: it subscribes to the
// queue hierarchy, claims each pending record once, fans the message out to
// the recipient's addresses, prunes permanently invalid addresses, and
// retires the record.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"pushrelay/internal/directory"
	"pushrelay/internal/eventbus"
	"pushrelay/internal/queue"
	rtsup "pushrelay/internal/runtime/supervisor"
	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

type Config struct {
	Topology queue.Topology
	Root     string // defaults to the topology's root

	FanoutParallel int           // concurrent sends per record; default 4
	SendTimeout    time.Duration // per-send bound; default 10s
	RatePerSec     int           // global outbound limit; default 25
	BranchBuffer   int           // per-branch feed buffer; default 64

	// EnumerateSpec is a cron expression for the periodic re-enumeration
	// sweep. Empty disables the sweep (the live feed still discovers
	// branches).
	EnumerateSpec string

	// DefaultTitle is used when a record payload carries none.
	DefaultTitle string
}

func (c Config) withDefaults() Config {
	if c.Root == "" {
		c.Root = c.Topology.DefaultRoot()
	}
	c.Root = queue.CleanPath(c.Root)
	if c.FanoutParallel <= 0 {
		c.FanoutParallel = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	if c.BranchBuffer <= 0 {
		c.BranchBuffer = 64
	}
	return c
}

// Engine owns no durable state. The known-branches set below is the only
// engine-owned mutable shared state; everything durable lives in the queue
// store and the address directory.
type Engine struct {
	cfg    Config
	store  queue.Store
	dir    directory.Directory
	client transport.Client
	log    logx.Logger
	bus    eventbus.Bus

	limiter *rate.Limiter

	mu      sync.Mutex
	known   map[string]bool // branch paths with an active subscription
	started bool
	closed  bool

	sup  *rtsup.Supervisor
	cron *cron.Cron
}

func New(cfg Config, store queue.Store, dir directory.Directory, client transport.Client, log logx.Logger, bus eventbus.Bus) *Engine {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		dir:     dir,
		client:  client,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		known:   map[string]bool{},
	}
}

// Start subscribes to the queue root, runs a one-shot enumeration of
// existing branches, and starts the optional re-enumeration sweep. The
// enumeration and the live feed may announce the same branch; the dedup in
// discover makes the loser a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.sup = rtsup.New(ctx, rtsup.WithLogger(e.log))
	e.mu.Unlock()

	e.discover(e.cfg.Root)

	if err := e.Enumerate(ctx); err != nil {
		e.log.Warn("startup enumeration failed", logx.Err(err))
	}

	if spec := e.cfg.EnumerateSpec; spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { _ = e.Enumerate(e.sup.Context()) }); err != nil {
			return errors.New("engine.enumerate_spec: " + err.Error())
		}
		c.Start()
		e.mu.Lock()
		e.cron = c
		e.mu.Unlock()
	}

	e.log.Info("dispatch engine started",
		logx.String("root", e.cfg.Root),
		logx.String("topology", string(e.cfg.Topology)),
		logx.Int("fanout_parallel", e.cfg.FanoutParallel),
		logx.Duration("send_timeout", e.cfg.SendTimeout),
	)
	return nil
}

// Stop refuses new discoveries and cancels the branch pumps. A pump that is
// mid-record finishes its state-machine run (the retire delete is detached
// from the canceled context) before exiting.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	c := e.cron
	e.cron = nil
	sup := e.sup
	e.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	e.log.Info("dispatch engine stopped")
	return err
}

// Supervisor exposes goroutine counters for the health surface.
func (e *Engine) Supervisor() *rtsup.Supervisor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sup
}

// Branches reports the number of active branch subscriptions.
func (e *Engine) Branches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.known)
}

// Enumerate announces the root's current children to discovery. Safe to run
// concurrently with the live feed: already-known branches are no-ops.
func (e *Engine) Enumerate(ctx context.Context) error {
	kids, err := e.store.Children(ctx, e.cfg.Root)
	if err != nil {
		return err
	}
	for _, k := range kids {
		e.discover(e.cfg.Root + "/" + k)
	}
	return nil
}

// discover attaches a record subscription to path exactly once. The
// check-and-insert is atomic under the engine mutex: two near-simultaneous
// discoveries of the same branch result in exactly one subscription.
func (e *Engine) discover(path string) {
	path = queue.CleanPath(path)

	e.mu.Lock()
	if e.closed || e.known[path] {
		e.mu.Unlock()
		return
	}
	e.known[path] = true
	sup := e.sup
	e.mu.Unlock()

	ch, cancel, err := e.store.SubscribeChildAdded(sup.Context(), path)
	if err != nil {
		e.mu.Lock()
		delete(e.known, path)
		e.mu.Unlock()
		e.log.Warn("branch subscribe failed", logx.String("branch", path), logx.Err(err))
		return
	}

	e.publish(eventbus.EventBranchSubscribed, BranchSubscribed{Branch: path})
	e.log.Debug("branch subscribed", logx.String("branch", path))

	// One pump per branch: records are processed serially in feed order,
	// branches run fully concurrent with each other.
	sup.Go("pump:"+path, func(ctx context.Context) error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				if ev.Record == nil {
					// An intermediate branch: subscribe it too.
					e.discover(ev.Path())
					continue
				}
				e.runRecord(ctx, ev)
			}
		}
	})
}

func (e *Engine) publish(typ string, data any) {
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
