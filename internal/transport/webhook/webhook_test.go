package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pushrelay/internal/transport"
	logx "pushrelay/pkg/logx"
)

func TestSendClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		class  transport.Classification
		ok     bool
	}{
		{name: "delivered", status: http.StatusOK, ok: true},
		{name: "accepted", status: http.StatusAccepted, ok: true},
		{name: "gone is permanent", status: http.StatusGone, class: transport.ClassPermanentInvalid},
		{name: "not found is permanent", status: http.StatusNotFound, class: transport.ClassPermanentInvalid},
		{name: "throttled is transient", status: http.StatusTooManyRequests, class: transport.ClassTransient},
		{name: "server error is transient", status: http.StatusBadGateway, class: transport.ClassTransient},
		{name: "forbidden is other", status: http.StatusForbidden, class: transport.ClassOther},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New(Config{}, logx.Nop())
			err := c.Send(context.Background(), srv.URL, transport.Message{Title: "t", Body: "b"})
			if tt.ok {
				if err != nil {
					t.Fatalf("Send: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if got := transport.Classify(err); got != tt.class {
				t.Fatalf("classification = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestSendBody(t *testing.T) {
	t.Parallel()
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c := New(Config{}, logx.Nop())
	msg := transport.Message{Title: "Library", Body: "Book due", Link: "https://example.org/loans"}
	if err := c.Send(context.Background(), srv.URL, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Title != msg.Title || got.Body != msg.Body || got.Link != msg.Link {
		t.Fatalf("payload = %+v", got)
	}
}

func TestSendBadAddress(t *testing.T) {
	t.Parallel()
	c := New(Config{}, logx.Nop())
	err := c.Send(context.Background(), "not-a-url", transport.Message{Body: "x"})
	if transport.Classify(err) != transport.ClassPermanentInvalid {
		t.Fatalf("bad address should be permanent-invalid, got %v", err)
	}
}
