// Package ipc exposes the managed app's runtime message surface over the
// debugging channel: listing registered handlers and delivering messages to
// them.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/registry"
)

// Evaluator runs JavaScript in the app's page context.
type Evaluator interface {
	Eval(ctx context.Context, rec registry.Record, code string) (any, error)
}

// Bridge rides the devtools channel to reach the app runtime's IPC layer.
type Bridge struct {
	Eval Evaluator
	Log  *slog.Logger
}

// builtinHandlers is the message surface every managed runtime carries,
// reported when the live probe cannot enumerate anything richer.
var builtinHandlers = []string{
	"tauri",
	"app_ready",
	"window_created",
	"window_destroyed",
	"webview_created",
	"webview_destroyed",
	"event",
	"invoke",
}

// handlersProbe enumerates the runtime bridge's callable surface in-page.
const handlersProbe = `(() => {
	const t = window.__TAURI_INTERNALS__ || window.__TAURI__;
	if (!t) return [];
	const names = [];
	for (const k of Object.keys(t)) {
		if (typeof t[k] === 'function') names.push(k);
	}
	return names;
})()`

// ListHandlers reports the handler names the app responds to. A probe failure
// degrades to the built-in surface; only a timeout is fatal.
func (b *Bridge) ListHandlers(ctx context.Context, rec registry.Record) ([]string, error) {
	val, err := b.Eval.Eval(ctx, rec, handlersProbe)
	if err != nil {
		if apperr.Is(err, apperr.OperationTimedOut) {
			return nil, err
		}
		if b.Log != nil {
			b.Log.Debug("handler probe failed, using built-in surface", "handle", rec.Handle, "error", err)
		}
		return builtinHandlers, nil
	}
	names := toStrings(val)
	if len(names) == 0 {
		return builtinHandlers, nil
	}
	return append(names, builtinHandlers...), nil
}

// Call delivers a message to a named handler and returns its reply. The
// "invoke" handler dispatches to a backend command and requires a "cmd"
// argument; every other handler receives the arguments as an event payload.
func (b *Bridge) Call(ctx context.Context, rec registry.Record, name string, args map[string]any) (any, error) {
	if name == "" {
		return nil, apperr.New(apperr.InvalidArguments, "message name must not be empty")
	}
	known, err := b.ListHandlers(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !contains(known, name) {
		return nil, apperr.New(apperr.IpcCommandNotFound, "no handler registered for %q", name)
	}

	var script string
	if name == "invoke" {
		cmd, ok := args["cmd"].(string)
		if !ok || cmd == "" {
			return nil, apperr.New(apperr.InvalidArguments, "invoke requires a 'cmd' argument")
		}
		payload := make(map[string]any, len(args))
		for k, v := range args {
			if k != "cmd" {
				payload[k] = v
			}
		}
		script = invokeScript(cmd, payload)
	} else {
		script = emitScript(name, args)
	}

	val, err := b.Eval.Eval(ctx, rec, script)
	if err != nil {
		return nil, err
	}
	return unwrapReply(name, val)
}

func invokeScript(cmd string, payload map[string]any) string {
	return fmt.Sprintf(`(() => {
	const t = window.__TAURI_INTERNALS__ || window.__TAURI__;
	if (!t || typeof t.invoke !== 'function') {
		return {ok: false, error: 'runtime bridge not injected'};
	}
	return Promise.resolve(t.invoke(%s, %s))
		.then(v => ({ok: true, value: v}), e => ({ok: false, error: String(e)}));
})()`, jsString(cmd), jsValue(payload))
}

func emitScript(name string, args map[string]any) string {
	return fmt.Sprintf(`(() => {
	const t = window.__TAURI__;
	if (!t || !t.event || typeof t.event.emit !== 'function') {
		return {ok: false, error: 'runtime bridge not injected'};
	}
	return Promise.resolve(t.event.emit(%s, %s))
		.then(() => ({ok: true, value: null}), e => ({ok: false, error: String(e)}));
})()`, jsString(name), jsValue(args))
}

// unwrapReply interprets the in-page {ok, value|error} envelope.
func unwrapReply(name string, val any) (any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return val, nil
	}
	if okVal, has := m["ok"].(bool); has {
		if okVal {
			return m["value"], nil
		}
		msg, _ := m["error"].(string)
		if isUnknownCommand(msg) {
			return nil, apperr.New(apperr.IpcCommandNotFound, "handler %q rejected: %s", name, msg)
		}
		return nil, apperr.New(apperr.Internal, "handler %q rejected: %s", name, msg)
	}
	return val, nil
}

func isUnknownCommand(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "unknown command") ||
		strings.Contains(lower, "not injected")
}

func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func jsValue(v any) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func toStrings(val any) []string {
	items, ok := val.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}
