//go:build linux

package window

import "testing"

func TestPickWindowTakesMostRecent(t *testing.T) {
	if got := pickWindow("12345\n67890\n"); got != "67890" {
		t.Fatalf("got %q", got)
	}
	if got := pickWindow("12345"); got != "12345" {
		t.Fatalf("got %q", got)
	}
	if got := pickWindow("  \n"); got != "" {
		t.Fatalf("expected empty for no windows, got %q", got)
	}
}

func TestParseGeometryShell(t *testing.T) {
	out := "WINDOW=62914566\nX=128\nY=64\nWIDTH=800\nHEIGHT=600\nSCREEN=0\n"
	info, err := parseGeometryShell(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.X != 128 || info.Y != 64 || info.Width != 800 || info.Height != 600 {
		t.Fatalf("unexpected geometry: %+v", info)
	}
}

func TestParseGeometryShellMissingFields(t *testing.T) {
	if _, err := parseGeometryShell("X=1\nY=2\n"); err == nil {
		t.Fatal("expected error for partial output")
	}
	if _, err := parseGeometryShell("garbage"); err == nil {
		t.Fatal("expected error for garbage output")
	}
}

func TestParseNetWMState(t *testing.T) {
	cases := []struct {
		out  string
		want string
	}{
		{"_NET_WM_STATE(ATOM) = _NET_WM_STATE_HIDDEN", "minimized"},
		{"_NET_WM_STATE(ATOM) = _NET_WM_STATE_MAXIMIZED_VERT, _NET_WM_STATE_MAXIMIZED_HORZ", "maximized"},
		{"_NET_WM_STATE(ATOM) = _NET_WM_STATE_MAXIMIZED_VERT", "normal"},
		{"_NET_WM_STATE(ATOM) =", "normal"},
		{"_NET_WM_STATE:  not found.", "unknown"},
	}
	for _, tc := range cases {
		if got := parseNetWMState(tc.out); got != tc.want {
			t.Fatalf("state for %q: got %q, want %q", tc.out, got, tc.want)
		}
	}
}
