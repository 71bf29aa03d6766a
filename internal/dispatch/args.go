package dispatch

import (
	"math"
	"strconv"

	"github.com/loykin/appctl/internal/apperr"
)

// Argument maps come from JSON, so numbers arrive as float64 and the CLI may
// pass everything as strings. The accessors accept both.

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", apperr.New(apperr.InvalidArguments, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", apperr.New(apperr.InvalidArguments, "argument %q must be a non-empty string", key)
	}
	return s, nil
}

func argStringDefault(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.InvalidArguments, "argument %q must be a string", key)
	}
	return s, nil
}

func argInt(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, apperr.New(apperr.InvalidArguments, "missing required argument %q", key)
	}
	return coerceInt(key, v)
}

func argIntDefault(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	return coerceInt(key, v)
}

func coerceInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, apperr.New(apperr.InvalidArguments, "argument %q must be an integer", key)
		}
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, apperr.New(apperr.InvalidArguments, "argument %q must be an integer", key)
		}
		return parsed, nil
	default:
		return 0, apperr.New(apperr.InvalidArguments, "argument %q must be an integer", key)
	}
}

func argStrings(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, it := range list {
			s, ok := it.(string)
			if !ok {
				return nil, apperr.New(apperr.InvalidArguments, "argument %q must be a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, apperr.New(apperr.InvalidArguments, "argument %q must be a list of strings", key)
	}
}

func argMap(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperr.New(apperr.InvalidArguments, "argument %q must be an object", key)
	}
	return m, nil
}
