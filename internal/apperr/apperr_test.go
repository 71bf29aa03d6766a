package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(WindowNotFound, "gone")); got != WindowNotFound {
		t.Fatalf("got %s", got)
	}
	wrapped := fmt.Errorf("outer: %w", New(RegistryBusy, "locked"))
	if got := CodeOf(wrapped); got != RegistryBusy {
		t.Fatalf("wrapped code lost: %s", got)
	}
	if got := CodeOf(errors.New("plain")); got != Internal {
		t.Fatalf("uncoded error should be internal, got %s", got)
	}
	if got := CodeOf(context.DeadlineExceeded); got != OperationTimedOut {
		t.Fatalf("deadline should map to timeout, got %s", got)
	}
	if got := CodeOf(fmt.Errorf("eval: %w", context.DeadlineExceeded)); got != OperationTimedOut {
		t.Fatalf("wrapped deadline should map to timeout, got %s", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk io")
	err := Wrap(RegistryCorrupt, cause, "loading store")
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if !Is(err, RegistryCorrupt) {
		t.Fatalf("code lost: %v", err)
	}
	if Is(err, RegistryBusy) {
		t.Fatal("wrong code matched")
	}
}

func TestIsNil(t *testing.T) {
	if Is(nil, Internal) {
		t.Fatal("nil must not match any code")
	}
}
