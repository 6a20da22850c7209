package dispatch

import (
	"context"
	"sync"

	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

// fanout sends msg to every address with bounded parallelism. It always
// covers the full set: individual failures are classified and counted, never
// a reason to stop. The shared rate limiter spaces sends across all
// branches.
func (e *Engine) fanout(ctx context.Context, addrs []string, msg transport.Message) DispatchResult {
	res := DispatchResult{Total: len(addrs)}
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		invalid []string
	)

	sem := make(chan struct{}, e.cfg.FanoutParallel)
	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.limiter.Wait(ctx); err != nil {
				// Canceled mid-fanout: count as transient, the record is
				// drained either way.
				mu.Lock()
				res.Transient++
				mu.Unlock()
				return
			}

			sctx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
			err := e.client.Send(sctx, addr, msg)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				res.Success++
				return
			}
			switch transport.Classify(err) {
			case transport.ClassPermanentInvalid:
				res.Invalid++
				invalid = append(invalid, addr)
			case transport.ClassTransient:
				res.Transient++
				e.log.Debug("send failed (transient)", logx.String("address", addr), logx.Err(err))
			default:
				res.Other++
				e.log.Warn("send failed", logx.String("address", addr), logx.Err(err))
			}
		}()
	}
	wg.Wait()

	res.invalidAddrs = invalid
	return res
}
