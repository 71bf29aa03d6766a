// Package window resolves native windows for managed applications and drives
// screenshots and input injection through per-platform capability backends.
// The OS windowing toolchain is a called capability here, not something this
// engine reimplements; callers above never branch on platform.
package window

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/capture"
	"github.com/loykin/appctl/internal/registry"
)

// Info describes a resolved window's geometry and state.
type Info struct {
	Ref     string `json:"window_ref"`
	Title   string `json:"title"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	State   string `json:"state"` // normal, minimized, maximized, unknown
	Focused bool   `json:"is_focused"`
}

// Button is a mouse button name.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonMiddle Button = "middle"
	ButtonRight  Button = "right"
)

// ParseButton validates a button argument, defaulting to left.
func ParseButton(s string) (Button, error) {
	switch Button(s) {
	case "", ButtonLeft:
		return ButtonLeft, nil
	case ButtonMiddle, ButtonRight:
		return Button(s), nil
	default:
		return "", apperr.New(apperr.InvalidArguments, "invalid mouse button: %s", s)
	}
}

// Adapter is the per-platform capability surface. A ref is an opaque native
// window reference owned by the backend (an X11 window id, for instance).
type Adapter interface {
	// ResolveWindow finds the primary top-level window owned by pid. A
	// process may own zero, one, or several; the most recently mapped one
	// wins, best-effort.
	ResolveWindow(ctx context.Context, pid int) (string, error)
	// Geometry queries the window; failure means the ref went stale.
	Geometry(ctx context.Context, ref string) (Info, error)
	// Capture returns the window's visible bitmap as PNG bytes.
	Capture(ctx context.Context, ref string) ([]byte, error)
	Focus(ctx context.Context, ref string) error
	SendKeys(ctx context.Context, ref string, in KeyInput) error
	SendClick(ctx context.Context, ref string, x, y int, button Button) error
}

// Manager layers the registry's window cache over a platform Adapter: cached
// refs are tried first and re-resolved when stale, never trusted blindly.
type Manager struct {
	Store   *registry.Store
	Adapter Adapter
	Log     *slog.Logger
}

var errStale = errors.New("window: stale reference")

// resolve returns a live window ref for the record, refreshing the cache when
// the stored one no longer answers.
func (m *Manager) resolve(ctx context.Context, rec registry.Record) (string, error) {
	if rec.WindowRef != "" {
		if _, err := m.Adapter.Geometry(ctx, rec.WindowRef); err == nil {
			return rec.WindowRef, nil
		}
		// stale cache is repaired silently
	}
	if !capture.Alive(rec.PID) {
		_, _ = m.Store.SetStatus(ctx, rec.Handle, registry.StatusUnreachable)
		return "", apperr.New(apperr.ProcessUnreachable, "pid %d is gone", rec.PID)
	}
	ref, err := m.Adapter.ResolveWindow(ctx, rec.PID)
	if err != nil {
		return "", err
	}
	if err := m.Store.SetWindowRef(ctx, rec.Handle, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// InfoFor resolves the record's window and returns its geometry and state.
func (m *Manager) InfoFor(ctx context.Context, rec registry.Record) (Info, error) {
	ref, err := m.resolve(ctx, rec)
	if err != nil {
		return Info{}, err
	}
	return m.Adapter.Geometry(ctx, ref)
}

// ScreenshotResult is either inline image data or a file reference.
type ScreenshotResult struct {
	Path    string `json:"path,omitempty"`
	DataURI string `json:"data,omitempty"`
}

// Screenshot captures the record's window. With outputPath the PNG is written
// to disk and the path returned; otherwise the bytes come back inline as a
// base64 data URI.
func (m *Manager) Screenshot(ctx context.Context, rec registry.Record, outputPath string) (ScreenshotResult, error) {
	ref, err := m.resolve(ctx, rec)
	if err != nil {
		return ScreenshotResult{}, err
	}
	png, err := m.Adapter.Capture(ctx, ref)
	if err != nil {
		return ScreenshotResult{}, err
	}
	if len(png) == 0 {
		return ScreenshotResult{}, apperr.New(apperr.CaptureDenied, "capture produced no image data")
	}
	if outputPath != "" {
		if err := os.WriteFile(outputPath, png, 0o600); err != nil {
			return ScreenshotResult{}, apperr.Wrap(apperr.CaptureDenied, err, "writing %s", outputPath)
		}
		return ScreenshotResult{Path: outputPath}, nil
	}
	uri := fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(png))
	return ScreenshotResult{DataURI: uri}, nil
}

// SendKeys resolves the window, brings it to focus, and injects keys. Input
// lands at OS level: global focus on the host is affected.
func (m *Manager) SendKeys(ctx context.Context, rec registry.Record, keys string) error {
	in, err := ParseKeys(keys)
	if err != nil {
		return err
	}
	ref, err := m.resolve(ctx, rec)
	if err != nil {
		return err
	}
	if err := m.Adapter.Focus(ctx, ref); err != nil {
		m.logger().Debug("focus before keys failed", "ref", ref, "error", err)
	}
	return m.Adapter.SendKeys(ctx, ref, in)
}

// SendClick resolves the window, focuses it, and clicks at (x, y) in screen
// coordinates.
func (m *Manager) SendClick(ctx context.Context, rec registry.Record, x, y int, button Button) error {
	ref, err := m.resolve(ctx, rec)
	if err != nil {
		return err
	}
	if err := m.Adapter.Focus(ctx, ref); err != nil {
		m.logger().Debug("focus before click failed", "ref", ref, "error", err)
	}
	return m.Adapter.SendClick(ctx, ref, x, y, button)
}

func (m *Manager) logger() *slog.Logger {
	if m.Log != nil {
		return m.Log
	}
	return slog.Default()
}
