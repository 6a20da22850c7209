package queue

import "testing"

func TestCleanPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"notifications", "/notifications"},
		{"/notifications/u1/", "/notifications/u1"},
		{"//tenants//t1//", "/tenants/t1"},
		{"  /a/b ", "/a/b"},
	}
	for _, tt := range tests {
		if got := CleanPath(tt.in); got != tt.want {
			t.Fatalf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChildKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		parent, full string
		key          string
		leaf, ok     bool
	}{
		{name: "leaf", parent: "/notifications/u1", full: "/notifications/u1/r1", key: "r1", leaf: true, ok: true},
		{name: "branch", parent: "/notifications", full: "/notifications/u1/r1", key: "u1", leaf: false, ok: true},
		{name: "not descendant", parent: "/notifications/u1", full: "/notifications/u2/r1", ok: false},
		{name: "self", parent: "/notifications", full: "/notifications", ok: false},
		{name: "prefix not segment", parent: "/notif", full: "/notifications/u1", ok: false},
		{name: "root parent", parent: "/", full: "/notifications/u1", key: "notifications", leaf: false, ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			key, leaf, ok := ChildKey(tt.parent, tt.full)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if key != tt.key || leaf != tt.leaf {
				t.Fatalf("got (%q, %v), want (%q, %v)", key, leaf, tt.key, tt.leaf)
			}
		})
	}
}

func TestTopologyRecipient(t *testing.T) {
	t.Parallel()

	t.Run("flat uses branch key", func(t *testing.T) {
		t.Parallel()
		got, err := TopologyFlat.Recipient("/notifications/u1", &Payload{Message: "x"})
		if err != nil {
			t.Fatalf("Recipient: %v", err)
		}
		if got != "u1" {
			t.Fatalf("recipient = %q, want u1", got)
		}
	})

	t.Run("uid wins over branch key", func(t *testing.T) {
		t.Parallel()
		got, err := TopologyTenant.Recipient("/tenants/tenantA/notifications", &Payload{Message: "Hi", UID: "s1"})
		if err != nil {
			t.Fatalf("Recipient: %v", err)
		}
		if got != "s1" {
			t.Fatalf("recipient = %q, want s1", got)
		}
	})

	t.Run("tenant without uid fails", func(t *testing.T) {
		t.Parallel()
		if _, err := TopologyTenant.Recipient("/tenants/tenantA/notifications", &Payload{Message: "Hi"}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestPayloadValidate(t *testing.T) {
	t.Parallel()
	if err := (&Payload{Message: "Book due"}).Validate(); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := (&Payload{}).Validate(); err == nil {
		t.Fatal("empty message accepted")
	}
	if err := (&Payload{Message: "x", Status: "done"}).Validate(); err == nil {
		t.Fatal("bogus status accepted")
	}
	if !(&Payload{Message: "x"}).Pending() {
		t.Fatal("absent status should be pending")
	}
	if (&Payload{Message: "x", Status: StatusProcessing}).Pending() {
		t.Fatal("processing should not be pending")
	}
}
