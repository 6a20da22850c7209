package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{name: "permanent", err: PermanentInvalid(base), want: ClassPermanentInvalid},
		{name: "transient", err: Transient(base), want: ClassTransient},
		{name: "wrapped permanent", err: fmt.Errorf("outer: %w", PermanentInvalid(base)), want: ClassPermanentInvalid},
		{name: "deadline", err: context.DeadlineExceeded, want: ClassTransient},
		{name: "plain", err: base, want: ClassOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("%s: Classify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSendErrorUnwrap(t *testing.T) {
	t.Parallel()
	base := errors.New("blocked")
	err := PermanentInvalid(base)
	if !errors.Is(err, base) {
		t.Fatal("SendError should unwrap to the cause")
	}
}
