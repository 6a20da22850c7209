package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pushrelay/internal/dispatch"
	"pushrelay/internal/eventbus"
	logx "pushrelay/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, nil, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) = %v, want nil", driver, st)
		}
	}
}

func TestFileAppend(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "relay.audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	entries := []Entry{
		{Event: "record.dispatched", Path: "/notifications/u1/r1", Recipient: "u1", Total: 2, Success: 2},
		{Event: "record.quarantined", Path: "/notifications/u1/r2", Error: "empty message"},
	}
	for _, e := range entries {
		if err := st.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trail: %v", err)
	}
	defer f.Close()

	var got []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != len(entries) {
		t.Fatalf("lines = %d, want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Event != entries[i].Event || got[i].Path != entries[i].Path {
			t.Fatalf("line %d = %+v, want %+v", i, got[i], entries[i])
		}
		if got[i].At.IsZero() {
			t.Fatalf("line %d missing timestamp", i)
		}
	}
}

func TestEntryFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ev   eventbus.Event
		keep bool
		path string
	}{
		{
			name: "dispatch result",
			ev: eventbus.Event{Type: eventbus.EventRecordDispatched, Data: dispatch.DispatchResult{
				Path: "/notifications/u1/r1", Recipient: "u1", Total: 3, Success: 2, Invalid: 1, Took: 120 * time.Millisecond,
			}},
			keep: true,
			path: "/notifications/u1/r1",
		},
		{
			name: "quarantine",
			ev:   eventbus.Event{Type: eventbus.EventRecordQuarantine, Data: dispatch.RecordQuarantined{Path: "/x", Reason: "bad"}},
			keep: true,
			path: "/x",
		},
		{
			name: "prune",
			ev:   eventbus.Event{Type: eventbus.EventAddressPruned, Data: dispatch.AddressPruned{Recipient: "u1", Address: "a2"}},
			keep: true,
		},
		{
			name: "claim is not audited",
			ev:   eventbus.Event{Type: eventbus.EventRecordClaimed, Data: dispatch.RecordClaimed{Path: "/x"}},
			keep: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, keep := entryFor(tc.ev)
			if keep != tc.keep {
				t.Fatalf("keep = %v, want %v", keep, tc.keep)
			}
			if keep && e.Path != tc.path {
				t.Fatalf("path = %q, want %q", e.Path, tc.path)
			}
		})
	}
}

func TestRecorderPersistsDispatches(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "relay.audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	bus := eventbus.New()
	rec := NewRecorder(st, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	// The bus drops events published before the recorder subscribes, so
	// keep republishing until one lands.
	deadline := time.Now().Add(3 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: eventbus.EventRecordDispatched, Data: dispatch.DispatchResult{
			Path: "/notifications/u1/r1", Recipient: "u1", Total: 1, Success: 1,
		}})
		b, _ := os.ReadFile(path)
		if len(b) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("entry never written")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
