package audit

import (
	"context"
	"time"

	"pushrelay/internal/dispatch"
	"pushrelay/internal/eventbus"
	logx "pushrelay/pkg/logx"
)

// Recorder tails the bus and persists engine outcomes.
type Recorder struct {
	store Store
	bus   eventbus.Bus
	log   logx.Logger
}

func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{store: store, bus: bus, log: log}
}

// Run consumes bus events until ctx is done. Append failures are logged
// and dropped; the audit trail never blocks dispatch.
func (r *Recorder) Run(ctx context.Context) error {
	if r.store == nil {
		<-ctx.Done()
		return nil
	}
	events, unsubscribe := r.bus.Subscribe(256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e, keep := entryFor(ev)
			if !keep {
				continue
			}
			if err := r.store.Append(ctx, e); err != nil && ctx.Err() == nil {
				r.log.Warn("audit append failed",
					logx.String("event", ev.Type),
					logx.Err(err))
			}
		}
	}
}

func entryFor(ev eventbus.Event) (Entry, bool) {
	e := Entry{At: time.Now(), Event: ev.Type}
	switch data := ev.Data.(type) {
	case dispatch.DispatchResult:
		e.Path = data.Path
		e.Recipient = data.Recipient
		e.Total = data.Total
		e.Success = data.Success
		e.Invalid = data.Invalid
		e.Transient = data.Transient
		e.Other = data.Other
		e.TookMS = data.Took.Milliseconds()
	case dispatch.RecordQuarantined:
		e.Path = data.Path
		e.Error = data.Reason
	case dispatch.AddressPruned:
		e.Recipient = data.Recipient
		e.Address = data.Address
	default:
		// Claims and branch subscriptions are log noise, not audit.
		return Entry{}, false
	}
	return e, true
}
