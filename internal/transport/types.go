// Package transport defines the push client the dispatch engine fans out
// through. Adapters translate one delivery attempt into their platform's
// send call and classify failures so the engine can tell "purge this
// address" from "leave it alone".
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Message is one logical notification, rendered per address by the adapter.
type Message struct {
	Title string
	Body  string
	Link  string // optional click-through target
}

// Classification buckets a send failure.
type Classification int

const (
	// ClassOther is the zero value: a failure we cannot place.
	ClassOther Classification = iota

	// ClassPermanentInvalid means the address will never succeed again and
	// should be purged from the directory.
	ClassPermanentInvalid

	// ClassTransient means the send may succeed later (throttling, network,
	// timeout). The address stays registered.
	ClassTransient
)

func (c Classification) String() string {
	switch c {
	case ClassPermanentInvalid:
		return "permanent-invalid"
	case ClassTransient:
		return "transient"
	default:
		return "other"
	}
}

// SendError is a classified delivery failure.
type SendError struct {
	Class Classification
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send (%s): %v", e.Class, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func PermanentInvalid(err error) error {
	return &SendError{Class: ClassPermanentInvalid, Err: err}
}

func Transient(err error) error {
	return &SendError{Class: ClassTransient, Err: err}
}

// Classify extracts the classification from err. Unclassified errors
// (including context timeouts, which the engine maps before calling) come
// back as ClassOther.
func Classify(err error) Classification {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	return ClassOther
}

// Client sends one message to one address token.
//
// A nil return means delivered. Failures should be wrapped with
// PermanentInvalid or Transient where the platform's response allows it;
// anything else is treated as ClassOther (logged, address untouched).
type Client interface {
	Send(ctx context.Context, address string, msg Message) error
}

// Func adapts a function to Client. Used by tests and small adapters.
type Func func(ctx context.Context, address string, msg Message) error

func (f Func) Send(ctx context.Context, address string, msg Message) error {
	return f(ctx, address, msg)
}
