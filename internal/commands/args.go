package commands

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
	"github.com/codex-k8s/sqlite-bridge/internal/registry"
)

// args decodes positional arguments for one command.
type args struct {
	command string
	params  []registry.Param
	values  []any
}

func (a args) raw(i int) any {
	if i < len(a.values) {
		return a.values[i]
	}
	return nil
}

func (a args) name(i int) string {
	if i < len(a.params) {
		return a.params[i].Name
	}
	return strconv.Itoa(i)
}

func (a args) shapef(i int, format string, v ...any) error {
	return &envelope.ArgumentShapeError{
		Command: a.command,
		Reason:  a.name(i) + " " + fmt.Sprintf(format, v...),
	}
}

func (a args) text(i int) (string, error) {
	switch v := a.raw(i).(type) {
	case string:
		return v, nil
	case nil:
		return "", a.shapef(i, "is required")
	default:
		return "", a.shapef(i, "must be a string, got %T", v)
	}
}

func (a args) optionalText(i int) (string, error) {
	if a.raw(i) == nil {
		return "", nil
	}
	return a.text(i)
}

func (a args) flag(i int, def bool) (bool, error) {
	switch v := a.raw(i).(type) {
	case nil:
		return def, nil
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, a.shapef(i, "must be a boolean, got %q", v)
		}
		return parsed, nil
	default:
		return false, a.shapef(i, "must be a boolean, got %T", v)
	}
}

// number accepts integral numbers and numeric strings.
func (a args) number(i int) (int, error) {
	raw := a.raw(i)
	var f float64
	switch v := raw.(type) {
	case nil:
		return 0, a.shapef(i, "is required")
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, a.shapef(i, "must be a number, got %q", v.String())
		}
		f = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, a.shapef(i, "must be a number, got %q", v)
		}
		f = parsed
	default:
		return 0, a.shapef(i, "must be a number, got %T", v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, a.shapef(i, "must be an integer, got %v", f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, a.shapef(i, "is out of range")
	}
	return int(f), nil
}

func (a args) list(i int) ([]any, error) {
	switch v := a.raw(i).(type) {
	case []any:
		return v, nil
	case nil:
		return nil, a.shapef(i, "is required")
	default:
		return nil, a.shapef(i, "must be a list of parameter sets, got %T", v)
	}
}

// named maps positional values to parameter names for policy checks.
func (a args) named() map[string]any {
	out := make(map[string]any, len(a.values))
	for i, value := range a.values {
		out[a.name(i)] = value
	}
	return out
}

func describe(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
