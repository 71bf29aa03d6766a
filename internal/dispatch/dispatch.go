// Package dispatch validates and executes engine operations, rendering every
// outcome as exactly one structured JSON document.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/capture"
	"github.com/loykin/appctl/internal/config"
	"github.com/loykin/appctl/internal/devtools"
	"github.com/loykin/appctl/internal/ipc"
	"github.com/loykin/appctl/internal/launcher"
	"github.com/loykin/appctl/internal/registry"
	"github.com/loykin/appctl/internal/window"
)

// Engine binds the operation catalog to the component stack. Every field is
// reconstructed per invocation; nothing here outlives a single call.
type Engine struct {
	Cfg      config.Config
	Store    *registry.Store
	Launcher *launcher.Launcher
	Windows  *window.Manager
	Devtools *devtools.Bridge
	IPC      *ipc.Bridge
	Log      *slog.Logger
}

// Response is the single JSON document every operation emits.
type Response struct {
	OK     bool      `json:"ok"`
	Result any       `json:"result,omitempty"`
	Error  *ErrorObj `json:"error,omitempty"`
}

// ErrorObj carries a stable machine-readable code plus a human message.
type ErrorObj struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON renders the response; rendering itself must not fail, so a marshal
// error degrades to a minimal internal-error document.
func (r Response) JSON() []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"ok":false,"error":{"code":"internal","message":"response marshal failed"}}`)
	}
	return raw
}

type handlerFunc func(ctx context.Context, e *Engine, args map[string]any) (any, error)

type operation struct {
	required []string
	optional []string
	handler  handlerFunc
}

var catalog = map[string]operation{
	"launch_app":          {required: []string{"app_path"}, optional: []string{"args"}, handler: opLaunch},
	"stop_app":            {required: []string{"handle"}, handler: opStop},
	"get_app_logs":        {required: []string{"handle"}, optional: []string{"lines"}, handler: opLogs},
	"take_screenshot":     {required: []string{"handle"}, optional: []string{"output_path"}, handler: opScreenshot},
	"get_window_info":     {required: []string{"handle"}, handler: opWindowInfo},
	"send_keyboard_input": {required: []string{"handle", "keys"}, handler: opKeys},
	"send_mouse_click":    {required: []string{"handle", "x", "y"}, optional: []string{"button"}, handler: opClick},
	"execute_js":          {required: []string{"handle", "code"}, handler: opExecuteJS},
	"get_devtools_info":   {required: []string{"handle"}, handler: opDevtoolsInfo},
	"monitor_resources":   {required: []string{"handle"}, handler: opMonitor},
	"list_ipc_handlers":   {required: []string{"handle"}, handler: opListIPC},
	"call_ipc_command":    {required: []string{"handle", "command"}, optional: []string{"args"}, handler: opCallIPC},
	"find_running_apps":   {handler: opFindRunning},
	"attach_to_app":       {required: []string{"native_process_id"}, handler: opAttach},
}

// OpInfo describes one catalog entry for discovery output.
type OpInfo struct {
	Name     string   `json:"name"`
	Required []string `json:"required_args,omitempty"`
	Optional []string `json:"optional_args,omitempty"`
}

// Catalog lists every operation in stable order.
func Catalog() []OpInfo {
	out := make([]OpInfo, 0, len(catalog))
	for name, op := range catalog {
		out = append(out, OpInfo{Name: name, Required: op.required, Optional: op.optional})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs one named operation under the configured timeout. It never
// panics through and never returns more or less than one Response.
func (e *Engine) Dispatch(ctx context.Context, name string, args map[string]any) Response {
	op, ok := catalog[name]
	if !ok {
		return fail(apperr.New(apperr.InvalidArguments, "unknown operation: %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	for _, key := range op.required {
		if _, present := args[key]; !present {
			return fail(apperr.New(apperr.InvalidArguments, "%s: missing required argument %q", name, key))
		}
	}

	timeout := e.Cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op.handler(ctx, e, args)
	if err != nil {
		if e.Log != nil {
			e.Log.Debug("operation failed", "operation", name, "code", apperr.CodeOf(err), "error", err)
		}
		return fail(err)
	}
	return Response{OK: true, Result: result}
}

func fail(err error) Response {
	return Response{OK: false, Error: &ErrorObj{
		Code:    string(apperr.CodeOf(err)),
		Message: err.Error(),
	}}
}

// liveRecord loads the handle's record and rejects terminal ones: an
// operation against a stopped or lost app reports unreachable, it does not
// probe a pid that may belong to someone else by now.
func (e *Engine) liveRecord(ctx context.Context, args map[string]any) (registry.Record, error) {
	handle, err := argString(args, "handle")
	if err != nil {
		return registry.Record{}, err
	}
	rec, err := e.Store.Get(ctx, handle)
	if errors.Is(err, registry.ErrNotFound) {
		return registry.Record{}, apperr.New(apperr.InvalidArguments, "unknown handle: %s", handle)
	}
	if err != nil {
		return registry.Record{}, err
	}
	if rec.Status.Terminal() {
		return registry.Record{}, apperr.New(apperr.ProcessUnreachable,
			"app %s is %s", handle, rec.Status)
	}
	return rec, nil
}

func opLaunch(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	path, err := argString(args, "app_path")
	if err != nil {
		return nil, err
	}
	extra, err := argStrings(args, "args")
	if err != nil {
		return nil, err
	}
	handle, err := e.Launcher.Launch(ctx, path, extra)
	if err != nil {
		return nil, err
	}
	return map[string]any{"handle": handle}, nil
}

func opStop(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	handle, err := argString(args, "handle")
	if err != nil {
		return nil, err
	}
	if err := e.Launcher.Stop(ctx, handle); err != nil {
		return nil, err
	}
	return map[string]any{"stopped": true}, nil
}

func opLogs(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	handle, err := argString(args, "handle")
	if err != nil {
		return nil, err
	}
	if _, err := e.Store.Get(ctx, handle); errors.Is(err, registry.ErrNotFound) {
		return nil, apperr.New(apperr.InvalidArguments, "unknown handle: %s", handle)
	} else if err != nil {
		return nil, err
	}
	lines, err := argIntDefault(args, "lines", 0)
	if err != nil {
		return nil, err
	}
	entries, err := e.Store.Logs(ctx, handle, lines)
	if err != nil {
		return nil, err
	}
	rendered := make([]string, len(entries))
	for i, entry := range entries {
		rendered[i] = fmt.Sprintf("[%s] %s", entry.Stream, entry.Line)
	}
	return map[string]any{"lines": rendered}, nil
}

func opScreenshot(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	outputPath, err := argStringDefault(args, "output_path", "")
	if err != nil {
		return nil, err
	}
	return e.Windows.Screenshot(ctx, rec, outputPath)
}

func opWindowInfo(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	return e.Windows.InfoFor(ctx, rec)
}

func opKeys(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	keys, err := argString(args, "keys")
	if err != nil {
		return nil, err
	}
	if err := e.Windows.SendKeys(ctx, rec, keys); err != nil {
		return nil, err
	}
	return map[string]any{"sent": true}, nil
}

func opClick(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	x, err := argInt(args, "x")
	if err != nil {
		return nil, err
	}
	y, err := argInt(args, "y")
	if err != nil {
		return nil, err
	}
	buttonArg, err := argStringDefault(args, "button", "")
	if err != nil {
		return nil, err
	}
	button, err := window.ParseButton(buttonArg)
	if err != nil {
		return nil, err
	}
	if err := e.Windows.SendClick(ctx, rec, x, y, button); err != nil {
		return nil, err
	}
	return map[string]any{"clicked": true}, nil
}

func opExecuteJS(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	code, err := argString(args, "code")
	if err != nil {
		return nil, err
	}
	value, err := e.Devtools.Eval(ctx, rec, code)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value}, nil
}

func opDevtoolsInfo(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	return e.Devtools.Discover(ctx, rec)
}

func opMonitor(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	freshness := e.Cfg.SampleFreshness
	if freshness <= 0 {
		freshness = 10 * time.Second
	}
	if !rec.Sample.Zero() && time.Since(rec.Sample.Timestamp) <= freshness {
		return rec.Sample, nil
	}
	sample, err := capture.SampleProcess(ctx, rec.PID)
	if err != nil {
		if apperr.Is(err, apperr.ProcessUnreachable) {
			_, _ = e.Store.SetStatus(ctx, rec.Handle, registry.StatusUnreachable)
		}
		return nil, err
	}
	if err := e.Store.UpdateSample(ctx, rec.Handle, sample); err != nil {
		return nil, err
	}
	return sample, nil
}

func opListIPC(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	names, err := e.IPC.ListHandlers(ctx, rec)
	if err != nil {
		return nil, err
	}
	return map[string]any{"handlers": names}, nil
}

func opCallIPC(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	rec, err := e.liveRecord(ctx, args)
	if err != nil {
		return nil, err
	}
	command, err := argString(args, "command")
	if err != nil {
		return nil, err
	}
	callArgs, err := argMap(args, "args")
	if err != nil {
		return nil, err
	}
	value, err := e.IPC.Call(ctx, rec, command, callArgs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": value}, nil
}

// runningApp is one find_running_apps result row.
type runningApp struct {
	Handle    string    `json:"handle"`
	PID       int       `json:"pid"`
	AppPath   string    `json:"app_path"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

func opFindRunning(ctx context.Context, e *Engine, _ map[string]any) (any, error) {
	recs, err := e.Store.ListByStatus(ctx, registry.StatusRunning)
	if err != nil {
		return nil, err
	}
	apps := make([]runningApp, 0, len(recs))
	for _, rec := range recs {
		if !capture.Alive(rec.PID) {
			// externally killed apps surface as unreachable, never as running
			_, _ = e.Store.SetStatus(ctx, rec.Handle, registry.StatusUnreachable)
			continue
		}
		apps = append(apps, runningApp{
			Handle:    rec.Handle,
			PID:       rec.PID,
			AppPath:   rec.LaunchPath,
			Status:    string(rec.Status),
			StartedAt: rec.StartedAt,
		})
	}
	return map[string]any{"apps": apps}, nil
}

func opAttach(ctx context.Context, e *Engine, args map[string]any) (any, error) {
	pid, err := argInt(args, "native_process_id")
	if err != nil {
		return nil, err
	}
	handle, err := e.Launcher.Attach(ctx, pid)
	if err != nil {
		return nil, err
	}
	return map[string]any{"handle": handle}, nil
}
