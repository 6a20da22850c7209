// Package directory resolves recipients to their registered delivery
// addresses. Registration itself happens elsewhere; the relay only reads
// address sets and prunes tokens the transport reports as permanently
// invalid.
package directory

import (
	"context"
	"sync"
)

// Directory is the address lookup consumed by the dispatch engine.
//
// Contract:
//   - Addresses returns the recipient's tokens in registration order; an
//     unknown recipient yields an empty set, not an error.
//   - RemoveAddress of an unknown token is a no-op.
type Directory interface {
	Addresses(ctx context.Context, recipient string) ([]string, error)
	RemoveAddress(ctx context.Context, recipient, token string) error
}

// Registrar is the producer-side surface, used by tests and tooling.
type Registrar interface {
	AddAddress(ctx context.Context, recipient, token string) error
}

// MemDirectory is the in-process driver.
type MemDirectory struct {
	mu    sync.Mutex
	byRec map[string][]string
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{byRec: map[string][]string{}}
}

func (d *MemDirectory) Addresses(_ context.Context, recipient string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.byRec[recipient]...), nil
}

func (d *MemDirectory) AddAddress(_ context.Context, recipient, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.byRec[recipient] {
		if t == token {
			return nil
		}
	}
	d.byRec[recipient] = append(d.byRec[recipient], token)
	return nil
}

func (d *MemDirectory) RemoveAddress(_ context.Context, recipient, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	toks := d.byRec[recipient]
	for i, t := range toks {
		if t == token {
			d.byRec[recipient] = append(toks[:i], toks[i+1:]...)
			if len(d.byRec[recipient]) == 0 {
				delete(d.byRec, recipient)
			}
			return nil
		}
	}
	return nil
}
