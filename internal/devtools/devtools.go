// Package devtools locates a managed application's WebKit/Chromium remote
// debugging endpoint and evaluates JavaScript over it.
package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/registry"
)

const probeTimeout = 500 * time.Millisecond

// Bridge discovers and talks to an app's remote debugging port. Discovery is
// per invocation: the registry caches the last known port but it is verified
// before use, since the app may have restarted on a different one.
type Bridge struct {
	Store   *registry.Store
	Host    string // debug endpoint host, 127.0.0.1 unless overridden
	PortMin int
	PortMax int
	Log     *slog.Logger
}

// Info describes a reachable debugging endpoint.
type Info struct {
	DebugPort       int    `json:"debug_port"`
	DevtoolsURL     string `json:"devtools_url"`
	Browser         string `json:"browser,omitempty"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	WebSocketURL    string `json:"websocket_url,omitempty"`
}

type versionReply struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
	WebSocketURL    string `json:"webSocketDebuggerUrl"`
}

func (b *Bridge) host() string {
	if b.Host != "" {
		return b.Host
	}
	return "127.0.0.1"
}

// probe asks a single port for its /json/version document.
func (b *Bridge) probe(ctx context.Context, port int) (Info, bool) {
	url := fmt.Sprintf("http://%s:%d/json/version", b.host(), port)
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Info{}, false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Info{}, false
	}
	var v versionReply
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Info{}, false
	}
	return Info{
		DebugPort:       port,
		DevtoolsURL:     fmt.Sprintf("http://%s:%d", b.host(), port),
		Browser:         v.Browser,
		ProtocolVersion: v.ProtocolVersion,
		WebSocketURL:    v.WebSocketURL,
	}, true
}

// Discover finds the record's debugging endpoint: the cached port is tried
// first, then the configured range is scanned. The winning port is cached.
func (b *Bridge) Discover(ctx context.Context, rec registry.Record) (Info, error) {
	if rec.DevtoolsPort > 0 {
		if info, ok := b.probe(ctx, rec.DevtoolsPort); ok {
			return info, nil
		}
		if b.Log != nil {
			b.Log.Debug("cached devtools port went stale", "handle", rec.Handle, "port", rec.DevtoolsPort)
		}
	}
	for port := b.PortMin; port <= b.PortMax; port++ {
		if err := ctx.Err(); err != nil {
			return Info{}, apperr.Wrap(apperr.OperationTimedOut, err, "devtools scan")
		}
		info, ok := b.probe(ctx, port)
		if !ok {
			continue
		}
		if err := b.Store.SetDevtoolsPort(ctx, rec.Handle, port); err != nil {
			return Info{}, err
		}
		return info, nil
	}
	return Info{}, apperr.New(apperr.DevtoolsUnavailable,
		"no debugging endpoint answered on ports %d-%d", b.PortMin, b.PortMax)
}

// Eval runs code in the app's first page and returns its JSON value. The code
// is evaluated as a script in page context, so both expressions and statement
// blocks work.
func (b *Bridge) Eval(ctx context.Context, rec registry.Record, code string) (any, error) {
	info, err := b.Discover(ctx, rec)
	if err != nil {
		return nil, err
	}
	page, browser, err := b.firstPage(ctx, info)
	if err != nil {
		return nil, err
	}
	defer func() { _ = browser.Close() }()

	// ByPromise awaits thenable results and is a no-op for plain values.
	res, err := page.Context(ctx).Evaluate(rod.Eval(`code => eval(code)`, code).ByPromise())
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.OperationTimedOut, err, "script evaluation")
		}
		return nil, apperr.Wrap(apperr.DevtoolsUnavailable, err, "script evaluation")
	}
	return res.Value.Val(), nil
}

// firstPage connects to the endpoint and returns its first page, mirroring
// how a single-window desktop app exposes exactly one top-level target.
func (b *Bridge) firstPage(ctx context.Context, info Info) (*rod.Page, *rod.Browser, error) {
	controlURL := info.WebSocketURL
	if controlURL == "" {
		u, err := launcher.ResolveURL(fmt.Sprintf("%s:%d", b.host(), info.DebugPort))
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.DevtoolsUnavailable, err, "resolving control url")
		}
		controlURL = u
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, apperr.Wrap(apperr.DevtoolsUnavailable, err, "connecting to %s", controlURL)
	}
	pages, err := browser.Pages()
	if err != nil {
		_ = browser.Close()
		return nil, nil, apperr.Wrap(apperr.DevtoolsUnavailable, err, "listing pages")
	}
	if len(pages) == 0 {
		_ = browser.Close()
		return nil, nil, apperr.New(apperr.DevtoolsUnavailable, "endpoint has no pages")
	}
	return pages[0], browser, nil
}
