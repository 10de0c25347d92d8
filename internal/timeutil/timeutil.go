package timeutil

import (
	"errors"
	"strings"
	"time"
)

// ErrNegative is returned for durations below zero.
var ErrNegative = errors.New("must not be negative")

// Parse reads a non-negative Go duration such as "250ms". Empty means zero.
func Parse(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, ErrNegative
	}
	return d, nil
}

// ParseDurationOrDefault returns def for empty, invalid or negative values.
func ParseDurationOrDefault(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := Parse(value)
	if err != nil {
		return def
	}
	return d
}

// Millis converts a millisecond count from a command argument. Negative
// counts are zero.
func Millis(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
