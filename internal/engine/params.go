package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// maxExactFloat is the largest integer a float64 represents exactly.
const maxExactFloat = 1 << 53

// BindArgs converts a boundary parameter value into database/sql arguments:
// nil binds nothing, a list binds positionally, an object binds by name and
// anything else binds as a single positional value.
func BindArgs(params any) ([]any, error) {
	switch v := params.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, 0, len(v))
		for i, item := range v {
			value, err := bindValue(item)
			if err != nil {
				return nil, fmt.Errorf("parameter %d: %w", i+1, err)
			}
			out = append(out, value)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(v))
		for _, key := range keys {
			name := strings.TrimLeft(key, ":@$")
			if name == "" {
				return nil, fmt.Errorf("parameter name %q is empty", key)
			}
			value, err := bindValue(v[key])
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", name, err)
			}
			out = append(out, sql.Named(name, value))
		}
		return out, nil
	default:
		value, err := bindValue(v)
		if err != nil {
			return nil, err
		}
		return []any{value}, nil
	}
}

func bindValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, []byte, int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return f, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) <= maxExactFloat {
			return int64(v), nil
		}
		return v, nil
	case float32:
		return bindValue(float64(v))
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode nested value: %w", err)
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", value)
	}
}
