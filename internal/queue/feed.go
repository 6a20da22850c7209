package queue

import "sync"

// feed decouples event production from consumption: producers append under
// the store lock without blocking, a pump goroutine drains to the consumer
// channel in order.
type feed struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []ChildEvent
	closed  bool

	out  chan ChildEvent
	done chan struct{}
}

func newFeed(buffer int) *feed {
	if buffer <= 0 {
		buffer = 16
	}
	f := &feed{
		out:  make(chan ChildEvent, buffer),
		done: make(chan struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	go f.pump()
	return f
}

func (f *feed) emit(ev ChildEvent) {
	f.mu.Lock()
	if !f.closed {
		f.pending = append(f.pending, ev)
		f.cond.Signal()
	}
	f.mu.Unlock()
}

func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.cond.Signal()
	f.mu.Unlock()
	close(f.done)
}

func (f *feed) pump() {
	defer close(f.out)
	for {
		f.mu.Lock()
		for len(f.pending) == 0 && !f.closed {
			f.cond.Wait()
		}
		if f.closed {
			f.mu.Unlock()
			return
		}
		ev := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()

		select {
		case f.out <- ev:
		case <-f.done:
			return
		}
	}
}
