package gmail_tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/teemow/gmail-mcp/internal/tools/batch"
)

func requiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}
	return s, nil
}

// optionalInt reads an integer argument in [lo, hi]. JSON numbers arrive
// as float64 and must be integral.
func optionalInt(args map[string]any, key string, def, lo, hi int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, f)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Errorf("%s must be between %d and %d, got %v", key, lo, hi, f)
	}
	return int(f), nil
}

func optionalEnum(args map[string]any, key, def string, allowed ...string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), s)
}

func requiredStringList(args map[string]any, key string, maxItems int) ([]string, error) {
	return batch.ParseStringList(args[key], key, maxItems)
}
