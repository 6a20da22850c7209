package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	logx "pushrelay/pkg/logx"
)

func TestServeLivenessAndSnapshot(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, func() Snapshot {
		return Snapshot{Status: "ok", Branches: 3, WorkersActive: 2}
	}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer scancel()
		svc.Stop(sctx)
	})

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for addr == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never bound")
		}
		addr = svc.Addr()
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Fatal("GET / returned empty body")
	}

	resp, err = http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != "ok" || snap.Branches != 3 || snap.WorkersActive != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	resp, err = http.Get("http://" + addr + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /nope status = %d", resp.StatusCode)
	}
}

func TestStartDisabledNoop(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false}, nil, logx.Nop())
	svc.Start(context.Background())
	if svc.Addr() != "" {
		t.Fatalf("disabled service bound %q", svc.Addr())
	}
	svc.Stop(context.Background())
}
