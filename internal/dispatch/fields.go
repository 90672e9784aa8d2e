package dispatch

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
)

func require(msg protocol.Message, key string) (any, error) {
	v, ok := msg.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", kephaslobby.ErrMissingField, key)
	}
	return v, nil
}

func requireString(msg protocol.Message, key string) (string, error) {
	v, err := require(msg, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", kephaslobby.ErrUnsupportedValue, key)
	}
	return s, nil
}

// optionalString treats a missing key and null alike as "". Numbers are
// accepted in their decimal form.
func optionalString(msg protocol.Message, key string) (string, error) {
	v, ok := msg.Lookup(key)
	if !ok || v == nil {
		return "", nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	default:
		return "", fmt.Errorf("%w: %q must be a string", kephaslobby.ErrUnsupportedValue, key)
	}
}

func stringList(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %q must hold strings", kephaslobby.ErrUnsupportedValue, key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a list", kephaslobby.ErrUnsupportedValue, key)
	}
}

func intList(key string, v any) ([]int, error) {
	switch list := v.(type) {
	case []int:
		return list, nil
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil, fmt.Errorf("%w: %q must hold integers", kephaslobby.ErrUnsupportedValue, key)
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q must be a list", kephaslobby.ErrUnsupportedValue, key)
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < math.MinInt32 || i > math.MaxInt32 {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
