//go:build linux

package window

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/appctl/internal/apperr"
)

// x11Adapter drives the X11 tool chain: xdotool for window lookup and input,
// xprop for window state, ImageMagick's import for capture.
type x11Adapter struct{}

// New returns the platform adapter.
func New() Adapter { return &x11Adapter{} }

func (a *x11Adapter) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

func (a *x11Adapter) ResolveWindow(ctx context.Context, pid int) (string, error) {
	// Visible windows first; fall back to any window the pid owns.
	out, err := a.run(ctx, "xdotool", "search", "--onlyvisible", "--pid", strconv.Itoa(pid))
	if err != nil || strings.TrimSpace(out) == "" {
		out, err = a.run(ctx, "xdotool", "search", "--pid", strconv.Itoa(pid))
	}
	if err != nil {
		return "", apperr.Wrap(apperr.WindowNotFound, err, "no window for pid %d", pid)
	}
	ref := pickWindow(out)
	if ref == "" {
		return "", apperr.New(apperr.WindowNotFound, "pid %d owns no windows", pid)
	}
	return ref, nil
}

func (a *x11Adapter) Geometry(ctx context.Context, ref string) (Info, error) {
	out, err := a.run(ctx, "xdotool", "getwindowgeometry", "--shell", ref)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.WindowNotFound, err, "window %s", ref)
	}
	info, err := parseGeometryShell(out)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.WindowNotFound, err, "window %s", ref)
	}
	info.Ref = ref
	if title, err := a.run(ctx, "xdotool", "getwindowname", ref); err == nil {
		info.Title = strings.TrimSpace(title)
	}
	info.State = a.state(ctx, ref)
	if active, err := a.run(ctx, "xdotool", "getactivewindow"); err == nil {
		info.Focused = strings.TrimSpace(active) == ref
	}
	return info, nil
}

func (a *x11Adapter) state(ctx context.Context, ref string) string {
	out, err := a.run(ctx, "xprop", "-id", ref, "_NET_WM_STATE")
	if err != nil {
		return "unknown"
	}
	return parseNetWMState(out)
}

func (a *x11Adapter) Capture(ctx context.Context, ref string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "import", "-window", ref, "png:-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "unable to open X server") ||
			strings.Contains(strings.ToLower(msg), "permission") {
			return nil, apperr.Wrap(apperr.CaptureDenied, err, "display not accessible")
		}
		return nil, apperr.Wrap(apperr.WindowNotFound, err, "capture of %s", ref)
	}
	return out.Bytes(), nil
}

func (a *x11Adapter) Focus(ctx context.Context, ref string) error {
	_, err := a.run(ctx, "xdotool", "windowactivate", "--sync", ref)
	return err
}

func (a *x11Adapter) SendKeys(ctx context.Context, ref string, in KeyInput) error {
	var err error
	if in.Chord != "" {
		_, err = a.run(ctx, "xdotool", "key", "--window", ref, in.Chord)
	} else {
		_, err = a.run(ctx, "xdotool", "type", "--window", ref, "--delay", "10", in.Text)
	}
	if err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "keyboard input")
	}
	return nil
}

func (a *x11Adapter) SendClick(ctx context.Context, ref string, x, y int, button Button) error {
	num := "1"
	switch button {
	case ButtonMiddle:
		num = "2"
	case ButtonRight:
		num = "3"
	}
	_, err := a.run(ctx, "xdotool",
		"mousemove", "--sync", strconv.Itoa(x), strconv.Itoa(y),
		"click", num)
	if err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "mouse click")
	}
	return nil
}

// pickWindow chooses from xdotool search output. Later ids were mapped more
// recently, which is the best available proxy for the primary window.
func pickWindow(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// parseGeometryShell reads `xdotool getwindowgeometry --shell` output
// (X=.. Y=.. WIDTH=.. HEIGHT=.. lines).
func parseGeometryShell(out string) (Info, error) {
	var info Info
	seen := 0
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		switch k {
		case "X":
			info.X = n
			seen++
		case "Y":
			info.Y = n
			seen++
		case "WIDTH":
			info.Width = n
			seen++
		case "HEIGHT":
			info.Height = n
			seen++
		}
	}
	if seen < 4 {
		return Info{}, fmt.Errorf("geometry output missing fields: %q", out)
	}
	return info, nil
}

// parseNetWMState reduces an xprop _NET_WM_STATE line to our state vocabulary.
func parseNetWMState(out string) string {
	switch {
	case strings.Contains(out, "_NET_WM_STATE_HIDDEN"):
		return "minimized"
	case strings.Contains(out, "_NET_WM_STATE_MAXIMIZED_VERT") &&
		strings.Contains(out, "_NET_WM_STATE_MAXIMIZED_HORZ"):
		return "maximized"
	case strings.Contains(out, "not found"):
		return "unknown"
	default:
		return "normal"
	}
}
