package window

import (
	"strings"

	"github.com/loykin/appctl/internal/apperr"
)

// KeyInput is a parsed keyboard request: either literal text to type or a
// modifier chord expressed with canonical keysym names.
type KeyInput struct {
	Text  string
	Chord string // e.g. "ctrl+shift+Return"; empty when Text is set
}

// namedKeys maps the accepted key vocabulary to X11 keysym names. The same
// canonical names are translated per platform by the backends.
var namedKeys = map[string]string{
	"enter": "Return", "return": "Return",
	"tab":       "Tab",
	"space":     "space",
	"backspace": "BackSpace",
	"escape":    "Escape", "esc": "Escape",
	"delete": "Delete", "del": "Delete",
	"home":     "Home",
	"end":      "End",
	"pageup":   "Page_Up",
	"pagedown": "Page_Down",
	"left":     "Left",
	"right":    "Right",
	"up":       "Up",
	"down":     "Down",
	"f1":       "F1", "f2": "F2", "f3": "F3", "f4": "F4",
	"f5": "F5", "f6": "F6", "f7": "F7", "f8": "F8",
	"f9": "F9", "f10": "F10", "f11": "F11", "f12": "F12",
}

var modifiers = map[string]string{
	"cmd": "super", "meta": "super",
	"ctrl": "ctrl", "control": "ctrl",
	"alt": "alt", "option": "alt",
	"shift": "shift",
}

func hasModifierPrefix(s string) bool {
	i := strings.IndexByte(s, '+')
	if i <= 0 {
		return false
	}
	_, ok := modifiers[strings.ToLower(s[:i])]
	return ok
}

// ParseKeys interprets a keys argument. A string starting with a modifier
// prefix ("ctrl+", "cmd+", ...) is a chord; anything else is typed literally.
func ParseKeys(s string) (KeyInput, error) {
	if s == "" {
		return KeyInput{}, apperr.New(apperr.InvalidArguments, "keys must not be empty")
	}
	if !hasModifierPrefix(s) {
		return KeyInput{Text: s}, nil
	}

	parts := strings.Split(s, "+")
	if len(parts) < 2 {
		return KeyInput{}, apperr.New(apperr.InvalidArguments, "invalid key combination: %s", s)
	}
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		key := strings.ToLower(strings.TrimSpace(part))
		if i < len(parts)-1 {
			mod, ok := modifiers[key]
			if !ok {
				return KeyInput{}, apperr.New(apperr.InvalidArguments, "unknown modifier key: %s", key)
			}
			out = append(out, mod)
			continue
		}
		sym, err := keysym(key)
		if err != nil {
			return KeyInput{}, err
		}
		out = append(out, sym)
	}
	return KeyInput{Chord: strings.Join(out, "+")}, nil
}

func keysym(key string) (string, error) {
	if sym, ok := namedKeys[key]; ok {
		return sym, nil
	}
	if len(key) == 1 && key[0] >= 'a' && key[0] <= 'z' {
		return key, nil
	}
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		return key, nil
	}
	return "", apperr.New(apperr.InvalidArguments, "unknown key: %s", key)
}
