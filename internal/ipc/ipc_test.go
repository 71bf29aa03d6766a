package ipc

import (
	"context"
	"strings"
	"testing"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/registry"
)

// fakeEval returns canned values keyed by script content.
type fakeEval struct {
	probe  any
	reply  any
	err    error
	script string // last non-probe script
}

func (f *fakeEval) Eval(_ context.Context, _ registry.Record, code string) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(code, "Object.keys") {
		return f.probe, nil
	}
	f.script = code
	return f.reply, nil
}

func rec() registry.Record {
	return registry.Record{Handle: "h1", PID: 1, Status: registry.StatusRunning}
}

func TestListHandlersFallsBackWhenProbeEmpty(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{probe: []any{}}}
	got, err := b.ListHandlers(context.Background(), rec())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(builtinHandlers) {
		t.Fatalf("expected built-in surface, got %v", got)
	}
	for _, want := range []string{"invoke", "event", "tauri", "app_ready"} {
		if !contains(got, want) {
			t.Fatalf("missing %q in %v", want, got)
		}
	}
}

func TestListHandlersMergesProbeResults(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{probe: []any{"greet", "invoke"}}}
	got, err := b.ListHandlers(context.Background(), rec())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !contains(got, "greet") || !contains(got, "window_created") {
		t.Fatalf("expected probe results merged with built-ins, got %v", got)
	}
}

func TestListHandlersDegradesOnProbeFailure(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{err: apperr.New(apperr.DevtoolsUnavailable, "down")}}
	got, err := b.ListHandlers(context.Background(), rec())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != len(builtinHandlers) {
		t.Fatalf("expected built-in fallback, got %v", got)
	}
}

func TestListHandlersPropagatesTimeout(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{err: apperr.New(apperr.OperationTimedOut, "deadline")}}
	if _, err := b.ListHandlers(context.Background(), rec()); !apperr.Is(err, apperr.OperationTimedOut) {
		t.Fatalf("expected timeout to propagate, got %v", err)
	}
}

func TestCallInvokeRequiresCmd(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{probe: []any{}}}
	_, err := b.Call(context.Background(), rec(), "invoke", map[string]any{"arg": 1})
	if !apperr.Is(err, apperr.InvalidArguments) {
		t.Fatalf("expected invalid_arguments, got %v", err)
	}
}

func TestCallUnknownHandler(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{probe: []any{}}}
	_, err := b.Call(context.Background(), rec(), "does_not_exist", nil)
	if !apperr.Is(err, apperr.IpcCommandNotFound) {
		t.Fatalf("expected ipc_command_not_found, got %v", err)
	}
}

func TestCallInvokeReturnsValue(t *testing.T) {
	fake := &fakeEval{
		probe: []any{},
		reply: map[string]any{"ok": true, "value": map[string]any{"greeting": "hi"}},
	}
	b := &Bridge{Eval: fake}
	val, err := b.Call(context.Background(), rec(), "invoke", map[string]any{"cmd": "greet", "name": "x"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["greeting"] != "hi" {
		t.Fatalf("unexpected value: %v", val)
	}
	if !strings.Contains(fake.script, `"greet"`) {
		t.Fatalf("command name not in script: %s", fake.script)
	}
	if strings.Contains(fake.script, `"cmd"`) {
		t.Fatalf("cmd must not leak into the payload: %s", fake.script)
	}
}

func TestCallInvokeUnknownBackendCommand(t *testing.T) {
	fake := &fakeEval{
		probe: []any{},
		reply: map[string]any{"ok": false, "error": "command greet not found"},
	}
	b := &Bridge{Eval: fake}
	_, err := b.Call(context.Background(), rec(), "invoke", map[string]any{"cmd": "greet"})
	if !apperr.Is(err, apperr.IpcCommandNotFound) {
		t.Fatalf("expected ipc_command_not_found, got %v", err)
	}
}

func TestCallEventEmit(t *testing.T) {
	fake := &fakeEval{
		probe: []any{},
		reply: map[string]any{"ok": true, "value": nil},
	}
	b := &Bridge{Eval: fake}
	val, err := b.Call(context.Background(), rec(), "event", map[string]any{"payload": "data"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if val != nil {
		t.Fatalf("expected nil ack, got %v", val)
	}
	if !strings.Contains(fake.script, "event.emit") {
		t.Fatalf("expected emit script, got %s", fake.script)
	}
}

func TestCallEmptyName(t *testing.T) {
	b := &Bridge{Eval: &fakeEval{probe: []any{}}}
	if _, err := b.Call(context.Background(), rec(), "", nil); !apperr.Is(err, apperr.InvalidArguments) {
		t.Fatalf("expected invalid_arguments, got %v", err)
	}
}
