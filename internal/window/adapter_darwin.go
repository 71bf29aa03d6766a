//go:build darwin

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

// macAdapter drives System Events via osascript plus screencapture. Refs are
// "pid:<n>": AppleScript addresses windows through the owning process.
type macAdapter struct{}

// New returns the platform adapter.
func New() Adapter { return &macAdapter{} }

func (a *macAdapter) osascript(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func refPid(ref string) string { return strings.TrimPrefix(ref, "pid:") }

func (a *macAdapter) ResolveWindow(ctx context.Context, pid int) (string, error) {
	script := fmt.Sprintf(`tell application "System Events" to count windows of (first process whose unix id is %d)`, pid)
	out, err := a.osascript(ctx, script)
	if err != nil {
		return "", apperr.Wrap(apperr.WindowNotFound, err, "no process window for pid %d", pid)
	}
	if n, _ := strconv.Atoi(out); n < 1 {
		return "", apperr.New(apperr.WindowNotFound, "pid %d owns no windows", pid)
	}
	return "pid:" + strconv.Itoa(pid), nil
}

func (a *macAdapter) Geometry(ctx context.Context, ref string) (Info, error) {
	script := fmt.Sprintf(`tell application "System Events"
	set p to first process whose unix id is %s
	set w to front window of p
	set {x, y} to position of w
	set {wd, ht} to size of w
	return (x as text) & " " & y & " " & wd & " " & ht & " " & (name of w)
end tell`, refPid(ref))
	out, err := a.osascript(ctx, script)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.WindowNotFound, err, "window %s", ref)
	}
	fields := strings.SplitN(out, " ", 5)
	if len(fields) < 4 {
		return Info{}, apperr.New(apperr.WindowNotFound, "unexpected geometry reply: %q", out)
	}
	var info Info
	info.Ref = ref
	info.X, _ = strconv.Atoi(fields[0])
	info.Y, _ = strconv.Atoi(fields[1])
	info.Width, _ = strconv.Atoi(fields[2])
	info.Height, _ = strconv.Atoi(fields[3])
	if len(fields) == 5 {
		info.Title = fields[4]
	}
	info.State = "normal"
	return info, nil
}

func (a *macAdapter) Capture(ctx context.Context, ref string) ([]byte, error) {
	info, err := a.Geometry(ctx, ref)
	if err != nil {
		return nil, err
	}
	region := fmt.Sprintf("%d,%d,%d,%d", info.X, info.Y, info.Width, info.Height)
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-R", region, "-t", "png", "/dev/stdout")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Screen-recording permission not granted surfaces here.
		return nil, apperr.Wrap(apperr.CaptureDenied, err, "%s", strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

func (a *macAdapter) Focus(ctx context.Context, ref string) error {
	script := fmt.Sprintf(`tell application "System Events" to set frontmost of (first process whose unix id is %s) to true`, refPid(ref))
	_, err := a.osascript(ctx, script)
	return err
}

func (a *macAdapter) SendKeys(ctx context.Context, ref string, in KeyInput) error {
	var script string
	if in.Chord != "" {
		script = chordToAppleScript(in.Chord)
	} else {
		script = fmt.Sprintf(`tell application "System Events" to keystroke %q`, in.Text)
	}
	if _, err := a.osascript(ctx, script); err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "keyboard input")
	}
	return nil
}

func (a *macAdapter) SendClick(ctx context.Context, ref string, x, y int, button Button) error {
	// cliclick speaks left clicks only via `c:`; right click is `rc:`.
	arg := fmt.Sprintf("c:%d,%d", x, y)
	if button == ButtonRight {
		arg = fmt.Sprintf("rc:%d,%d", x, y)
	}
	cmd := exec.CommandContext(ctx, "cliclick", arg)
	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "mouse click")
	}
	return nil
}

// chordToAppleScript renders a normalized chord ("ctrl+shift+Return") as a
// System Events keystroke with modifier list.
func chordToAppleScript(chord string) string {
	parts := strings.Split(chord, "+")
	key := parts[len(parts)-1]
	var mods []string
	for _, m := range parts[:len(parts)-1] {
		switch m {
		case "super":
			mods = append(mods, "command down")
		case "ctrl":
			mods = append(mods, "control down")
		case "alt":
			mods = append(mods, "option down")
		case "shift":
			mods = append(mods, "shift down")
		}
	}
	if code, ok := macKeyCodes[key]; ok {
		if len(mods) == 0 {
			return fmt.Sprintf(`tell application "System Events" to key code %d`, code)
		}
		return fmt.Sprintf(`tell application "System Events" to key code %d using {%s}`, code, strings.Join(mods, ", "))
	}
	if len(mods) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke %q`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke %q using {%s}`, key, strings.Join(mods, ", "))
}

// macKeyCodes maps keysym names that keystroke cannot express to key codes.
var macKeyCodes = map[string]int{
	"Return": 36, "Tab": 48, "space": 49, "BackSpace": 51, "Escape": 53,
	"Delete": 117, "Home": 115, "End": 119, "Page_Up": 116, "Page_Down": 121,
	"Left": 123, "Right": 124, "Down": 125, "Up": 126,
	"F1": 122, "F2": 120, "F3": 99, "F4": 118, "F5": 96, "F6": 97,
	"F7": 98, "F8": 100, "F9": 101, "F10": 109, "F11": 103, "F12": 111,
}
