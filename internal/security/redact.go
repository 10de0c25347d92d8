package security

import (
	"strings"
)

var sensitiveSubstrings = []string{
	"token",
	"password",
	"passwd",
	"pwd",
	"passphrase",
	"secret",
	"key",
	"auth",
	"credential",
	"cipher",
	"hexkey",
	"session",
}

var allowList = map[string]struct{}{
	"cache":     {},
	"mode":      {},
	"immutable": {},
	"nolock":    {},
	"vfs":       {},
	"psow":      {},
}

// Mask replaces sensitive values.
const Mask = "***"

// RedactURI masks sensitive query parameters of a SQLite URI filename such
// as "file:app.db?mode=rwc&key=secret". Parameter order is preserved.
func RedactURI(raw string) string {
	base, query, found := strings.Cut(raw, "?")
	if !found || query == "" {
		return raw
	}
	fragment := ""
	if idx := strings.IndexByte(query, '#'); idx >= 0 {
		query, fragment = query[:idx], query[idx:]
	}

	parts := strings.Split(query, "&")
	for i, part := range parts {
		name, _, hasValue := strings.Cut(part, "=")
		if hasValue && IsSensitiveKey(name) {
			parts[i] = name + "=" + Mask
		}
	}
	return base + "?" + strings.Join(parts, "&") + fragment
}

// IsSensitiveKey reports whether a parameter name likely carries a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if _, ok := allowList[lower]; ok {
		return false
	}
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
