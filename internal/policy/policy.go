package policy

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrDenied marks calls rejected by quotas or rate limits.
var ErrDenied = errors.New("call denied")

// FieldPolicy describes validation rules for a single named parameter.
type FieldPolicy struct {
	// Regex validates string value format.
	Regex string
	// Min sets numeric minimum.
	Min *float64
	// Max sets numeric maximum.
	Max *float64
	// MinLength sets string minimum length.
	MinLength *int
	// MaxLength sets string maximum length.
	MaxLength *int
}

// Rules configures one command's policy.
type Rules struct {
	// MaxTotal limits total calls for the process lifetime.
	MaxTotal int
	// RatePerMinute limits calls per minute. Excess calls are rejected, never queued.
	RatePerMinute int
	// Fields validates named parameters.
	Fields map[string]FieldPolicy
}

// Empty reports whether the rules enforce nothing.
func (r Rules) Empty() bool {
	return r.MaxTotal <= 0 && r.RatePerMinute <= 0 && len(r.Fields) == 0
}

// Guard enforces Rules for one command. It is safe for concurrent use.
type Guard struct {
	command  string
	rules    Rules
	compiled map[string]*regexp.Regexp

	mu      sync.Mutex
	count   int
	limiter *rate.Limiter
}

// NewGuard compiles field regexes and prepares counters. Rules that enforce
// nothing yield a nil Guard, which admits every call.
func NewGuard(command string, rules Rules) (*Guard, error) {
	if rules.Empty() {
		return nil, nil
	}
	compiled := make(map[string]*regexp.Regexp, len(rules.Fields))
	for field, fp := range rules.Fields {
		if fp.Regex == "" {
			continue
		}
		re, err := regexp.Compile(fp.Regex)
		if err != nil {
			return nil, fmt.Errorf("invalid regex for field %s: %w", field, err)
		}
		compiled[field] = re
	}
	g := &Guard{command: command, rules: rules, compiled: compiled}
	if rules.RatePerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rules.RatePerMinute)), rules.RatePerMinute)
	}
	return g, nil
}

// CheckFields validates named arguments. It returns a *Violation.
func (g *Guard) CheckFields(args map[string]any) error {
	if g == nil {
		return nil
	}
	for field, fp := range g.rules.Fields {
		value, ok := args[field]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if fp.MinLength != nil && len(v) < *fp.MinLength {
				return &Violation{Field: field, Reason: fmt.Sprintf("is shorter than %d characters", *fp.MinLength)}
			}
			if fp.MaxLength != nil && len(v) > *fp.MaxLength {
				return &Violation{Field: field, Reason: fmt.Sprintf("is longer than %d characters", *fp.MaxLength)}
			}
			if re := g.compiled[field]; re != nil && !re.MatchString(v) {
				return &Violation{Field: field, Reason: "does not match the allowed format"}
			}
		default:
			number, isNumber := toFloat(v)
			if !isNumber {
				continue
			}
			if fp.Min != nil && number < *fp.Min {
				return &Violation{Field: field, Reason: fmt.Sprintf("is below %g", *fp.Min)}
			}
			if fp.Max != nil && number > *fp.Max {
				return &Violation{Field: field, Reason: fmt.Sprintf("is above %g", *fp.Max)}
			}
		}
	}
	return nil
}

// Admit counts the call against quota and rate limits.
func (g *Guard) Admit() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rules.MaxTotal > 0 && g.count >= g.rules.MaxTotal {
		return fmt.Errorf("%w: %s: maximum number of calls exceeded", ErrDenied, g.command)
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return fmt.Errorf("%w: %s: rate limit exceeded", ErrDenied, g.command)
	}
	g.count++
	return nil
}

// Violation reports a field that breaks its policy.
type Violation struct {
	Field  string
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s %s", v.Field, v.Reason)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
