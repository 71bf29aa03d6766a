package window

import (
	"testing"

	"github.com/loykin/appctl/internal/apperr"
)

func TestParseKeysLiteralText(t *testing.T) {
	in, err := ParseKeys("hello world")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if in.Text != "hello world" || in.Chord != "" {
		t.Fatalf("expected literal text, got %+v", in)
	}
}

func TestParseKeysChords(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ctrl+c", "ctrl+c"},
		{"cmd+a", "super+a"},
		{"meta+q", "super+q"},
		{"alt+f4", "alt+F4"},
		{"option+left", "alt+Left"},
		{"ctrl+shift+enter", "ctrl+shift+Return"},
		{"shift+tab", "shift+Tab"},
		{"ctrl+pageup", "ctrl+Page_Up"},
		{"Ctrl+C", "ctrl+c"},
	}
	for _, tc := range cases {
		in, err := ParseKeys(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if in.Chord != tc.want {
			t.Fatalf("parse %q: got chord %q, want %q", tc.in, in.Chord, tc.want)
		}
	}
}

func TestParseKeysNamedKeysAreLiteralWithoutModifier(t *testing.T) {
	in, err := ParseKeys("enter")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if in.Text != "enter" {
		t.Fatalf("bare named key should be typed literally, got %+v", in)
	}
}

func TestParseKeysRejectsBadInput(t *testing.T) {
	for _, s := range []string{"", "ctrl+", "ctrl+++", "ctrl+banana", "ctrl+alt+"} {
		if _, err := ParseKeys(s); !apperr.Is(err, apperr.InvalidArguments) {
			t.Fatalf("parse %q: expected invalid_arguments, got %v", s, err)
		}
	}
}

func TestParseKeysNonModifierPlusIsLiteral(t *testing.T) {
	// "2+2" and "a+b" have no modifier prefix and type through verbatim.
	for _, s := range []string{"2+2", "a+b=c"} {
		in, err := ParseKeys(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if in.Text != s {
			t.Fatalf("parse %q: expected literal, got %+v", s, in)
		}
	}
}

func TestParseButton(t *testing.T) {
	if b, err := ParseButton(""); err != nil || b != ButtonLeft {
		t.Fatalf("empty button should default to left, got %v %v", b, err)
	}
	for _, s := range []string{"left", "middle", "right"} {
		if b, err := ParseButton(s); err != nil || string(b) != s {
			t.Fatalf("button %q: got %v %v", s, b, err)
		}
	}
	if _, err := ParseButton("wheel"); !apperr.Is(err, apperr.InvalidArguments) {
		t.Fatalf("expected invalid_arguments for unknown button, got %v", err)
	}
}
