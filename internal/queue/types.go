package queue

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("queue store closed")

// Status is the record lifecycle marker.
//
// An empty status is treated as pending: producers are not required to set
// the field. The processing mark is advisory, not a distributed lock; see
// the dispatch engine for the admission guard that makes it effective.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
)

// Payload is the record body written by producers.
//
// Only Message is required. UID names the target recipient when the branch
// itself is an organizational grouping (tenant topologies) rather than the
// recipient directly.
type Payload struct {
	Message string `json:"message"`
	UID     string `json:"uid,omitempty"`
	Title   string `json:"title,omitempty"`
	Link    string `json:"link,omitempty"`
	Status  Status `json:"status,omitempty"`
}

// Validate reports whether the payload is well formed enough to dispatch.
// Malformed records are quarantined by the engine, not propagated.
func (p *Payload) Validate() error {
	if p == nil {
		return errors.New("payload is nil")
	}
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("payload message is empty")
	}
	switch p.Status {
	case "", StatusPending, StatusProcessing, StatusSent:
	default:
		return errors.New("payload status is not one of pending/processing/sent")
	}
	return nil
}

// Pending reports whether the record is eligible for a claim.
func (p *Payload) Pending() bool {
	return p != nil && (p.Status == "" || p.Status == StatusPending)
}

// Record is one queued notification.
type Record struct {
	Path    string
	Payload Payload
}

// ChildEvent announces one child under a subscribed path.
//
// Record is set when the child is a record leaf; it is nil when the child is
// an intermediate branch (whose own children must be subscribed separately).
type ChildEvent struct {
	Parent string
	Key    string
	Record *Record
}

func (e ChildEvent) Path() string { return e.Parent + "/" + e.Key }

// Store is the hierarchical queue the engine consumes.
//
// Contract:
//   - Get returns (nil, nil) for an absent path.
//   - UpdateFields applies a partial update; unknown paths are an error.
//   - Delete of an absent path is a no-op.
//   - SubscribeChildAdded delivers every child present at subscribe time and
//     every child added afterward, in insertion order. The same child key may
//     be re-announced after an external re-insert; consumers must tolerate
//     duplicates.
type Store interface {
	Get(ctx context.Context, path string) (*Record, error)
	Put(ctx context.Context, path string, p Payload) error
	UpdateFields(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error

	// Children lists the immediate child keys under path in insertion order.
	// Used by the enumeration sweep; an unknown path yields an empty list.
	Children(ctx context.Context, path string) ([]string, error)

	// SubscribeChildAdded attaches a child feed to path. The returned cancel
	// func detaches the feed and closes the channel.
	SubscribeChildAdded(ctx context.Context, path string) (<-chan ChildEvent, func(), error)

	Close() error
}

// Push appends a new record under branch with a generated record ID and
// returns its full path. This is the producer-side helper used by tests and
// tooling; the engine itself never creates records.
func Push(ctx context.Context, s Store, branch string, p Payload) (string, error) {
	path := branch + "/" + uuid.NewString()
	if err := s.Put(ctx, path, p); err != nil {
		return "", err
	}
	return path, nil
}
