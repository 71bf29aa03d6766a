//go:build windows

package window

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/loykin/appctl/internal/apperr"
)

// winAdapter shells out to PowerShell for window lookup, capture, and input.
// Refs are window handles (HWND) in decimal.
type winAdapter struct{}

// New returns the platform adapter.
func New() Adapter { return &winAdapter{} }

func (a *winAdapter) powershell(ctx context.Context, script string) (string, error) {
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("powershell: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func (a *winAdapter) ResolveWindow(ctx context.Context, pid int) (string, error) {
	script := fmt.Sprintf(
		`(Get-Process -Id %d -ErrorAction Stop).MainWindowHandle`, pid)
	out, err := a.powershell(ctx, script)
	if err != nil {
		return "", apperr.Wrap(apperr.WindowNotFound, err, "no window for pid %d", pid)
	}
	if out == "" || out == "0" {
		return "", apperr.New(apperr.WindowNotFound, "pid %d owns no windows", pid)
	}
	return out, nil
}

func (a *winAdapter) Geometry(ctx context.Context, ref string) (Info, error) {
	script := fmt.Sprintf(`
Add-Type @"
using System;
using System.Runtime.InteropServices;
public class Win32Rect {
  [DllImport("user32.dll")] public static extern bool GetWindowRect(IntPtr hWnd, out RECT rect);
  public struct RECT { public int Left; public int Top; public int Right; public int Bottom; }
}
"@
$r = New-Object Win32Rect+RECT
[Win32Rect]::GetWindowRect([IntPtr]%s, [ref]$r) | Out-Null
"$($r.Left) $($r.Top) $($r.Right - $r.Left) $($r.Bottom - $r.Top)"`, ref)
	out, err := a.powershell(ctx, script)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.WindowNotFound, err, "window %s", ref)
	}
	fields := strings.Fields(out)
	if len(fields) != 4 {
		return Info{}, apperr.New(apperr.WindowNotFound, "unexpected geometry reply: %q", out)
	}
	var info Info
	info.Ref = ref
	info.X, _ = strconv.Atoi(fields[0])
	info.Y, _ = strconv.Atoi(fields[1])
	info.Width, _ = strconv.Atoi(fields[2])
	info.Height, _ = strconv.Atoi(fields[3])
	info.State = "normal"
	return info, nil
}

func (a *winAdapter) Capture(ctx context.Context, ref string) ([]byte, error) {
	info, err := a.Geometry(ctx, ref)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "appctl-shot-*.png")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Drawing
$bmp = New-Object System.Drawing.Bitmap(%d, %d)
$g = [System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen(%d, %d, 0, 0, $bmp.Size)
$bmp.Save('%s', [System.Drawing.Imaging.ImageFormat]::Png)`,
		info.Width, info.Height, info.X, info.Y, tmpPath)
	if _, err := a.powershell(ctx, script); err != nil {
		return nil, apperr.Wrap(apperr.CaptureDenied, err, "screen capture")
	}
	return os.ReadFile(tmpPath)
}

func (a *winAdapter) Focus(ctx context.Context, ref string) error {
	script := fmt.Sprintf(`
Add-Type @"
using System;
using System.Runtime.InteropServices;
public class Win32Focus {
  [DllImport("user32.dll")] public static extern bool SetForegroundWindow(IntPtr hWnd);
}
"@
[Win32Focus]::SetForegroundWindow([IntPtr]%s) | Out-Null`, ref)
	_, err := a.powershell(ctx, script)
	return err
}

func (a *winAdapter) SendKeys(ctx context.Context, ref string, in KeyInput) error {
	keys := in.Text
	if in.Chord != "" {
		keys = chordToSendKeys(in.Chord)
	}
	script := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait(%q)`, keys)
	if _, err := a.powershell(ctx, script); err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "keyboard input")
	}
	return nil
}

func (a *winAdapter) SendClick(ctx context.Context, ref string, x, y int, button Button) error {
	event := "0x02, 0x04" // left down, up
	if button == ButtonRight {
		event = "0x08, 0x10"
	}
	script := fmt.Sprintf(`
Add-Type @"
using System;
using System.Runtime.InteropServices;
public class Win32Mouse {
  [DllImport("user32.dll")] public static extern bool SetCursorPos(int x, int y);
  [DllImport("user32.dll")] public static extern void mouse_event(uint flags, uint dx, uint dy, uint data, UIntPtr extra);
}
"@
[Win32Mouse]::SetCursorPos(%d, %d) | Out-Null
foreach ($f in @(%s)) { [Win32Mouse]::mouse_event($f, 0, 0, 0, [UIntPtr]::Zero) }`,
		x, y, event)
	if _, err := a.powershell(ctx, script); err != nil {
		return apperr.Wrap(apperr.InputInjectionDenied, err, "mouse click")
	}
	return nil
}

// chordToSendKeys renders a normalized chord in SendKeys syntax.
func chordToSendKeys(chord string) string {
	parts := strings.Split(chord, "+")
	key := parts[len(parts)-1]
	var b strings.Builder
	for _, m := range parts[:len(parts)-1] {
		switch m {
		case "ctrl", "super":
			b.WriteByte('^')
		case "alt":
			b.WriteByte('%')
		case "shift":
			b.WriteByte('+')
		}
	}
	if mapped, ok := sendKeysNames[key]; ok {
		b.WriteString(mapped)
	} else {
		b.WriteString(key)
	}
	return b.String()
}

var sendKeysNames = map[string]string{
	"Return": "{ENTER}", "Tab": "{TAB}", "space": " ", "BackSpace": "{BACKSPACE}",
	"Escape": "{ESC}", "Delete": "{DELETE}", "Home": "{HOME}", "End": "{END}",
	"Page_Up": "{PGUP}", "Page_Down": "{PGDN}",
	"Left": "{LEFT}", "Right": "{RIGHT}", "Up": "{UP}", "Down": "{DOWN}",
	"F1": "{F1}", "F2": "{F2}", "F3": "{F3}", "F4": "{F4}", "F5": "{F5}",
	"F6": "{F6}", "F7": "{F7}", "F8": "{F8}", "F9": "{F9}", "F10": "{F10}",
	"F11": "{F11}", "F12": "{F12}",
}
