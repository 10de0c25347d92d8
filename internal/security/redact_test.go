package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/var/lib/app/data.db", "/var/lib/app/data.db"},
		{"file:data.db", "file:data.db"},
		{"file:data.db?", "file:data.db?"},
		{"file:data.db?mode=ro&cache=shared", "file:data.db?mode=ro&cache=shared"},
		{"file:data.db?mode=rwc&key=hunter2", "file:data.db?mode=rwc&key=***"},
		{"file:data.db?_auth_pass=x&_auth_user=admin", "file:data.db?_auth_pass=***&_auth_user=***"},
		{"file:data.db?hexkey=abcd#frag", "file:data.db?hexkey=***#frag"},
		{"file:data.db?password", "file:data.db?password"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactURI(tt.in))
		})
	}
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("Key"))
	assert.True(t, IsSensitiveKey("cipher_compatibility"))
	assert.False(t, IsSensitiveKey("mode"))
	assert.False(t, IsSensitiveKey("cache"))
}
