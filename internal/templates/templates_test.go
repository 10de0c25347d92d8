package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditData struct {
	Command string
	Subject string
	Error   string
}

func TestLoadFallsBackToEnglish(t *testing.T) {
	bundle, err := Load("fr")
	require.NoError(t, err)
	assert.Equal(t, "en", bundle.Lang())
}

func TestRenderAuditMessages(t *testing.T) {
	tests := []struct {
		lang string
		key  string
		data auditData
		want string
	}{
		{"en", KeyAuditSuccess, auditData{Command: "fetch-one-row", Subject: "SELECT 1"}, "fetch-one-row succeeded: SELECT 1"},
		{"en", KeyAuditSuccess, auditData{Command: "fetch-one-row"}, "fetch-one-row succeeded"},
		{"en", KeyAuditFailure, auditData{Command: "perform-backup", Subject: "/tmp/b.db", Error: "disk full"}, "perform-backup failed (/tmp/b.db): disk full"},
		{"en", KeyAuditFailure, auditData{Command: "drop-table", Error: "Unknown command: drop-table"}, "drop-table failed: Unknown command: drop-table"},
		{"DE", KeyAuditSuccess, auditData{Command: "fetch-all-rows", Subject: "SELECT *"}, "fetch-all-rows erfolgreich: SELECT *"},
		{"de", KeyAuditFailure, auditData{Command: "perform-backup", Error: "disk full"}, "Fehler bei perform-backup: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.key, func(t *testing.T) {
			bundle, err := Load(tt.lang)
			require.NoError(t, err)
			got, err := bundle.Render(tt.key, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderUnknownKey(t *testing.T) {
	bundle, err := Load("en")
	require.NoError(t, err)
	_, err = bundle.Render("missing", nil)
	assert.ErrorContains(t, err, "template not found")

	var nilBundle *Bundle
	_, err = nilBundle.Render(KeyAuditSuccess, nil)
	assert.Error(t, err)
}
