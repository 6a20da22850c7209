package dispatch

import (
	"context"
	"time"

	"pushrelay/internal/eventbus"
	"pushrelay/internal/queue"
	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

// runRecord drives one child-added event through the state machine:
// admission guard, claim, resolve, fan-out, retire.
//
// The claim is advisory: the status write is a plain field update, not a
// compare-and-swap, so two engine instances racing on one record can both
// pass the guard. This matches the single-instance deployment assumption;
// multi-instance needs external mutual exclusion.
func (e *Engine) runRecord(ctx context.Context, ev queue.ChildEvent) {
	path := queue.CleanPath(ev.Path())
	log := e.log.With(logx.String("record", path))

	// Admission guard: re-read the record. The feed may redeliver events;
	// a record that is gone, already claimed, or pre-marked sent needs no
	// work.
	rec, err := e.store.Get(ctx, path)
	if err != nil {
		log.Warn("admission read failed", logx.Err(err))
		return
	}
	if rec == nil {
		log.Debug("record gone before claim")
		return
	}
	if !rec.Payload.Pending() {
		log.Debug("record not pending, ignoring", logx.String("status", string(rec.Payload.Status)))
		return
	}

	// Malformed payloads are quarantined: retired without a dispatch
	// attempt rather than propagated.
	if err := rec.Payload.Validate(); err != nil {
		log.Warn("quarantining malformed record", logx.Err(err))
		e.publish(eventbus.EventRecordQuarantine, RecordQuarantined{Path: path, Reason: err.Error()})
		if err := e.store.Delete(ctx, path); err != nil {
			log.Warn("quarantine delete failed", logx.Err(err))
		}
		return
	}

	// Claim. A failed claim aborts this event: the record stays where it
	// is for a later replay or external repair, and retire must not run
	// (we never marked it ours).
	if err := e.store.UpdateFields(ctx, path, map[string]any{"status": queue.StatusProcessing}); err != nil {
		log.Warn("claim failed", logx.Err(err))
		return
	}

	// From here the record is ours: retire unconditionally, even when
	// resolve or dispatch fails. The delete is detached from ctx so a
	// shutdown mid-record still drains it instead of orphaning a
	// processing-marked record.
	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.store.Delete(dctx, path); err != nil {
			log.Error("retire failed, record may be stuck processing", logx.Err(err))
		}
	}()

	recipient, err := e.cfg.Topology.Recipient(ev.Parent, &rec.Payload)
	if err != nil {
		log.Warn("recipient unresolvable, retiring", logx.Err(err))
		e.publish(eventbus.EventRecordQuarantine, RecordQuarantined{Path: path, Reason: err.Error()})
		return
	}
	log = log.With(logx.String("recipient", recipient))
	e.publish(eventbus.EventRecordClaimed, RecordClaimed{Path: path, Recipient: recipient})

	addrs, err := e.dir.Addresses(ctx, recipient)
	if err != nil {
		log.Warn("address lookup failed, retiring undelivered", logx.Err(err))
		return
	}
	if len(addrs) == 0 {
		log.Debug("no addresses registered, retiring")
		return
	}

	started := time.Now()
	res := e.fanout(ctx, addrs, e.buildMessage(rec.Payload))
	res.Path = path
	res.Recipient = recipient
	res.Took = time.Since(started)
	e.publish(eventbus.EventRecordDispatched, res)
	log.Info("record dispatched",
		logx.Int("addresses", res.Total),
		logx.Int("success", res.Success),
		logx.Int("invalid", res.Invalid),
		logx.Int("transient", res.Transient),
		logx.Duration("took", res.Took),
	)

	// Reconcile: purge permanently invalid addresses. Best effort, awaited
	// here so it cannot outlive the record's processing, but never a
	// reason to skip retire.
	for _, tok := range res.invalidAddrs {
		if err := e.dir.RemoveAddress(ctx, recipient, tok); err != nil {
			log.Warn("address prune failed", logx.String("address", tok), logx.Err(err))
			continue
		}
		e.publish(eventbus.EventAddressPruned, AddressPruned{Recipient: recipient, Address: tok})
		log.Debug("address pruned", logx.String("address", tok))
	}
}

func (e *Engine) buildMessage(p queue.Payload) transport.Message {
	title := p.Title
	if title == "" {
		title = e.cfg.DefaultTitle
	}
	return transport.Message{Title: title, Body: p.Message, Link: p.Link}
}
