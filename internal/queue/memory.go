package queue

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is the in-process store driver. Durability-free, insertion
// ordered, used by tests and local runs.
type MemStore struct {
	mu     sync.Mutex
	recs   map[string]*Record
	order  []string // record paths in insertion order
	subs   map[uint64]*memSub
	nextID uint64
	closed bool
}

type memSub struct {
	parent    string
	announced map[string]bool
	feed      *feed
}

func NewMemStore() *MemStore {
	return &MemStore{
		recs: map[string]*Record{},
		subs: map[uint64]*memSub{},
	}
}

func (s *MemStore) Get(_ context.Context, path string) (*Record, error) {
	path = CleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	r, ok := s.recs[path]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) Put(_ context.Context, path string, p Payload) error {
	path = CleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, existed := s.recs[path]
	s.recs[path] = &Record{Path: path, Payload: p}
	if !existed {
		s.order = append(s.order, path)
	}
	s.notifyLocked(path)
	return nil
}

func (s *MemStore) UpdateFields(_ context.Context, path string, fields map[string]any) error {
	path = CleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	r, ok := s.recs[path]
	if !ok {
		return fmt.Errorf("update %s: no such record", path)
	}
	for k, v := range fields {
		switch k {
		case "status":
			switch t := v.(type) {
			case Status:
				r.Payload.Status = t
			case string:
				r.Payload.Status = Status(t)
			default:
				return fmt.Errorf("update %s: status must be a string", path)
			}
		case "message":
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %s: message must be a string", path)
			}
			r.Payload.Message = str
		case "title":
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %s: title must be a string", path)
			}
			r.Payload.Title = str
		case "link":
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("update %s: link must be a string", path)
			}
			r.Payload.Link = str
		default:
			return fmt.Errorf("update %s: unknown field %q", path, k)
		}
	}
	return nil
}

func (s *MemStore) Delete(_ context.Context, path string) error {
	path = CleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.recs[path]; !ok {
		return nil
	}
	delete(s.recs, path)
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemStore) Children(_ context.Context, path string) ([]string, error) {
	path = CleanPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	seen := map[string]bool{}
	var keys []string
	for _, p := range s.order {
		key, _, ok := ChildKey(path, p)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *MemStore) SubscribeChildAdded(ctx context.Context, path string) (<-chan ChildEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path = CleanPath(path)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrClosed
	}
	sub := &memSub{
		parent:    path,
		announced: map[string]bool{},
		feed:      newFeed(0),
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub

	// Replay children already present, in insertion order, before any
	// live event can race ahead (we still hold the store lock).
	for _, p := range s.order {
		s.emitLocked(sub, p)
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.feed.close()
	}
	return sub.feed.out, cancel, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = map[uint64]*memSub{}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.feed.close()
	}
	return nil
}

func (s *MemStore) notifyLocked(path string) {
	for _, sub := range s.subs {
		s.emitLocked(sub, path)
	}
}

// emitLocked announces the record at path to sub if it sits under the
// subscribed parent. Intermediate branch keys are announced once per
// subscription; record leaves ride through every time (a re-inserted record
// is a new event by contract).
func (s *MemStore) emitLocked(sub *memSub, path string) {
	key, leaf, ok := ChildKey(sub.parent, path)
	if !ok {
		return
	}
	if leaf {
		r := s.recs[path]
		if r == nil {
			return
		}
		cp := *r
		sub.feed.emit(ChildEvent{Parent: sub.parent, Key: key, Record: &cp})
		return
	}
	if sub.announced[key] {
		return
	}
	sub.announced[key] = true
	sub.feed.emit(ChildEvent{Parent: sub.parent, Key: key})
}
