package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "relay.json", `{
		"logging": {"level": "debug", "console": true},
		"store": {"driver": "sqlite", "path": "./relay.db"},
		"queue": {"topology": "tenant"},
		"engine": {"fanout_parallel": 8, "send_timeout": "5s"},
		"transport": {"driver": "webhook"},
		"health": {"enabled": true}
	}`)

	m := NewManager(p)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Queue.Topology != "tenant" {
		t.Fatalf("topology = %q, want tenant", cfg.Queue.Topology)
	}
	if cfg.Engine.FanoutParallel != 8 {
		t.Fatalf("fanout_parallel = %d, want 8", cfg.Engine.FanoutParallel)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "relay.yaml", `
logging:
  console: true
store:
  driver: memory
queue:
  topology: flat
  root: /notifications
transport:
  driver: webhook
health:
  enabled: false
`)

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("store.driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Queue.Root != "/notifications" {
		t.Fatalf("queue.root = %q", cfg.Queue.Root)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown field", body: `{"store": {"driver": "memory"}, "transsport": {}}`},
		{name: "sqlite without path", body: `{"store": {"driver": "sqlite"}}`},
		{name: "bad topology", body: `{"store": {"driver": "memory"}, "queue": {"topology": "ring"}}`},
		{name: "telegram without token", body: `{"store": {"driver": "memory"}, "transport": {"driver": "telegram"}}`},
		{name: "bad duration", body: `{"store": {"driver": "memory"}, "engine": {"send_timeout": "soon"}}`},
		{name: "trailing data", body: `{"store": {"driver": "memory"}} {}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), "relay.json", tt.body)
			if _, err := NewManager(p).Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("engine.send_timeout", "", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 10*time.Second {
		t.Fatalf("default not applied: %v", d)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}
