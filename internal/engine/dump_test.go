package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/sqlite-bridge/internal/constants"
)

const dumpFixture = `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score REAL, avatar BLOB);
INSERT INTO users VALUES (1, 'ada', 9.5, X'CAFE');
INSERT INTO users VALUES (2, 'o''brien', NULL, NULL);
CREATE INDEX users_name ON users(name);
CREATE VIEW top_users AS SELECT name FROM users WHERE score > 5;
CREATE TABLE logs (msg TEXT);
`

func TestDumpGolden(t *testing.T) {
	tests := []struct {
		name   string
		filter string
	}{
		{name: "dump_full"},
		{name: "dump_filtered", filter: "users%"},
	}
	for _, driver := range drivers {
		for _, tt := range tests {
			t.Run(driver+"/"+tt.name, func(t *testing.T) {
				eng, _ := openEngine(t, driver, true)
				script := filepath.Join(t.TempDir(), "fixture.sql")
				require.NoError(t, os.WriteFile(script, []byte(dumpFixture), 0o600))
				_, err := eng.ExecuteScript(context.Background(), script)
				require.NoError(t, err)

				out := filepath.Join(t.TempDir(), "dump.sql")
				status, err := eng.Dump(context.Background(), out, tt.filter)
				require.NoError(t, err)
				assert.Equal(t, out, status.Path)

				data, err := os.ReadFile(out)
				require.NoError(t, err)

				g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
				g.Assert(t, tt.name, data)
			})
		}
	}
}

func TestDumpRequiresPath(t *testing.T) {
	eng, _ := openEngine(t, constants.DriverModernc, true)
	_, err := eng.Dump(context.Background(), " ", "")
	assert.Error(t, err)
}
