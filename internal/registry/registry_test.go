package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
)

func noop(context.Context, []any) (any, error) { return nil, nil }

func TestRegisterRejectsDuplicates(t *testing.T) {
	var b Builder
	require.NoError(t, b.Register(Command{Name: "fetch-one-row", Exec: noop}))

	err := b.Register(Command{Name: "fetch-one-row", Exec: noop})
	require.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Contains(t, err.Error(), "fetch-one-row")
}

func TestRegisterValidates(t *testing.T) {
	var b Builder
	assert.Error(t, b.Register(Command{Name: "", Exec: noop}))
	assert.Error(t, b.Register(Command{Name: " padded ", Exec: noop}))
	assert.Error(t, b.Register(Command{Name: "no-exec"}))
}

func TestResolveUnknown(t *testing.T) {
	reg, err := New(Command{Name: "fetch-one-row", Exec: noop})
	require.NoError(t, err)

	_, err = reg.Resolve("drop-table")
	require.ErrorIs(t, err, envelope.ErrUnknownCommand)
	assert.Equal(t, "Unknown command: drop-table", err.Error())

	cmd, err := reg.Resolve("fetch-one-row")
	require.NoError(t, err)
	assert.Equal(t, "fetch-one-row", cmd.Name)
}

func TestNilRegistryResolvesNothing(t *testing.T) {
	var reg *Registry
	_, err := reg.Resolve("anything")
	assert.ErrorIs(t, err, envelope.ErrUnknownCommand)
	assert.False(t, reg.Has("anything"))
	assert.Empty(t, reg.Names())
}

func TestBuildIsDetachedFromBuilder(t *testing.T) {
	var b Builder
	require.NoError(t, b.Register(Command{Name: "a", Exec: noop}))
	reg := b.Build()
	require.NoError(t, b.Register(Command{Name: "b", Exec: noop}))

	assert.Equal(t, []string{"a"}, reg.Names())
	assert.False(t, reg.Has("b"))
}

func TestNamesKeepRegistrationOrder(t *testing.T) {
	reg, err := New(
		Command{Name: "c", Exec: noop},
		Command{Name: "a", Exec: noop},
		Command{Name: "b", Exec: noop},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, reg.Names())

	names := reg.Names()
	names[0] = "mutated"
	assert.Equal(t, "c", reg.Names()[0])
}

func TestCheckArity(t *testing.T) {
	cmd := Command{
		Name: "fetch-many-rows",
		Params: []Param{
			{Name: "statement"},
			{Name: "size"},
			{Name: "parameters", Optional: true},
		},
	}
	minArgs, maxArgs := cmd.Arity()
	assert.Equal(t, 2, minArgs)
	assert.Equal(t, 3, maxArgs)

	assert.NoError(t, cmd.CheckArity([]any{"SELECT 1", 1}))
	assert.NoError(t, cmd.CheckArity([]any{"SELECT 1", 1, nil}))

	err := cmd.CheckArity([]any{"SELECT 1"})
	require.ErrorIs(t, err, envelope.ErrArgumentShape)
	assert.Equal(t, "fetch-many-rows: expected 2 to 3 arguments, got 1", err.Error())

	fixed := Command{Name: "execute-script-from-path", Params: []Param{{Name: "path"}}}
	err = fixed.CheckArity(nil)
	assert.Equal(t, "execute-script-from-path: expected 1 arguments, got 0", err.Error())
}
