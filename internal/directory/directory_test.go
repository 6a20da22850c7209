package directory

import (
	"context"
	"path/filepath"
	"testing"

	"pushrelay/internal/queue"
	logx "pushrelay/pkg/logx"
)

type testDir interface {
	Directory
	Registrar
}

func openDirs(t *testing.T) map[string]func(t *testing.T) testDir {
	t.Helper()
	return map[string]func(t *testing.T) testDir{
		"memory": func(t *testing.T) testDir { return NewMemDirectory() },
		"sqlite": func(t *testing.T) testDir {
			qs, err := queue.OpenSQLite(queue.Config{Path: filepath.Join(t.TempDir(), "relay.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { _ = qs.Close() })
			d, err := NewSQLite(qs.DB())
			if err != nil {
				t.Fatalf("NewSQLite: %v", err)
			}
			return d
		},
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	t.Parallel()
	for name, open := range openDirs(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			d := open(t)

			if toks, err := d.Addresses(ctx, "u1"); err != nil || len(toks) != 0 {
				t.Fatalf("unknown recipient = (%v, %v), want empty", toks, err)
			}

			for _, tok := range []string{"a1", "a2"} {
				if err := d.AddAddress(ctx, "u1", tok); err != nil {
					t.Fatalf("AddAddress: %v", err)
				}
			}
			// Re-registering an existing token is a no-op.
			if err := d.AddAddress(ctx, "u1", "a1"); err != nil {
				t.Fatalf("AddAddress dup: %v", err)
			}

			toks, err := d.Addresses(ctx, "u1")
			if err != nil {
				t.Fatalf("Addresses: %v", err)
			}
			if len(toks) != 2 || toks[0] != "a1" || toks[1] != "a2" {
				t.Fatalf("Addresses = %v", toks)
			}

			if err := d.RemoveAddress(ctx, "u1", "a1"); err != nil {
				t.Fatalf("RemoveAddress: %v", err)
			}
			// Removing an unknown token is a no-op.
			if err := d.RemoveAddress(ctx, "u1", "a1"); err != nil {
				t.Fatalf("RemoveAddress absent: %v", err)
			}

			toks, _ = d.Addresses(ctx, "u1")
			if len(toks) != 1 || toks[0] != "a2" {
				t.Fatalf("Addresses after prune = %v", toks)
			}
		})
	}
}
