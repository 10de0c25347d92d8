package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codex-k8s/sqlite-bridge/internal/engine"
	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
	"github.com/codex-k8s/sqlite-bridge/internal/policy"
	"github.com/codex-k8s/sqlite-bridge/internal/registry"
	"github.com/codex-k8s/sqlite-bridge/internal/security"
	"github.com/codex-k8s/sqlite-bridge/internal/timeutil"
)

// Command names exposed across the boundary.
const (
	EstablishDatabaseTarget = "establish-database-target"
	ExecuteSingleStatement  = "execute-single-statement"
	ExecuteMany             = "execute-statement-for-each-of-many-parameter-sets"
	ExecuteScript           = "execute-script-from-path"
	FetchOneRow             = "fetch-one-row"
	FetchManyRows           = "fetch-many-rows"
	FetchAllRows            = "fetch-all-rows"
	LoadNativeExtension     = "load-native-extension"
	PerformBackup           = "perform-backup"
	DumpSchemaAndData       = "stream-schema-and-data-dump"
)

// Names lists every command in catalog order.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s.name)
	}
	return out
}

// Known reports whether name is part of the catalog.
func Known(name string) bool {
	_, ok := lookup(name)
	return ok
}

// Settings tunes one command.
type Settings struct {
	// Timeout bounds the engine call. Zero means no timeout.
	Timeout time.Duration
	// Rules are optional argument and quota policies.
	Rules policy.Rules
}

// Options selects and tunes the commands to register.
type Options struct {
	// Enabled is the allow-list in registration order. Empty enables the whole catalog.
	Enabled []string
	// Settings are keyed by command name.
	Settings map[string]Settings
}

// NewRegistry binds the selected commands to eng and freezes the registry.
// Listing a command twice fails with registry.ErrDuplicateCommand.
func NewRegistry(eng engine.Engine, opts Options) (*registry.Registry, error) {
	if eng == nil {
		return nil, errors.New("engine is nil")
	}
	names := opts.Enabled
	if len(names) == 0 {
		names = Names()
	}

	var b registry.Builder
	for _, name := range names {
		s, ok := lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown command in allow-list: %s", name)
		}
		settings := opts.Settings[name]
		guard, err := policy.NewGuard(name, settings.Rules)
		if err != nil {
			return nil, fmt.Errorf("command %s: %w", name, err)
		}
		if err := b.Register(s.command(eng, guard, settings.Timeout)); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

type definition struct {
	name        string
	description string
	params      []registry.Param
	readOnly    bool
	destructive bool
	subject     func(a args) string
	run         func(ctx context.Context, eng engine.Engine, a args) (any, error)
}

func (s definition) command(eng engine.Engine, guard *policy.Guard, timeout time.Duration) registry.Command {
	decode := func(values []any) args {
		return args{command: s.name, params: s.params, values: values}
	}
	return registry.Command{
		Name:        s.name,
		Description: s.description,
		Params:      s.params,
		ReadOnly:    s.readOnly,
		Destructive: s.destructive,
		Subject: func(values []any) string {
			return s.subject(decode(values))
		},
		Exec: func(ctx context.Context, values []any) (any, error) {
			a := decode(values)
			if err := guard.CheckFields(a.named()); err != nil {
				return nil, &envelope.ArgumentShapeError{Command: s.name, Reason: "policy violation", Err: err}
			}
			if err := guard.Admit(); err != nil {
				return nil, err
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return s.run(ctx, eng, a)
		},
	}
}

func lookup(name string) (definition, bool) {
	for _, s := range catalog {
		if s.name == name {
			return s, true
		}
	}
	return definition{}, false
}

func statementSubject(a args) string {
	return describe(a.raw(0))
}

var catalog = []definition{
	{
		name:        EstablishDatabaseTarget,
		description: "Open a database file or file: URI and make it the current target.",
		params:      []registry.Param{{Name: "path"}, {Name: "is_uri", Optional: true}, {Name: "autocommit", Optional: true}},
		destructive: false,
		subject: func(a args) string {
			return security.RedactURI(describe(a.raw(0)))
		},
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			path, err := a.text(0)
			if err != nil {
				return nil, err
			}
			isURI, err := a.flag(1, false)
			if err != nil {
				return nil, err
			}
			autocommit, err := a.flag(2, true)
			if err != nil {
				return nil, err
			}
			return eng.Connect(ctx, path, isURI, autocommit)
		},
	},
	{
		name:        ExecuteSingleStatement,
		description: "Execute one SQL statement with an optional parameter value, list, or object.",
		params:      []registry.Param{{Name: "statement"}, {Name: "parameters", Optional: true}},
		destructive: true,
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			statement, err := a.text(0)
			if err != nil {
				return nil, err
			}
			return eng.Execute(ctx, statement, a.raw(1))
		},
	},
	{
		name:        ExecuteMany,
		description: "Execute one SQL statement once for each parameter set.",
		params:      []registry.Param{{Name: "statement"}, {Name: "parameter_sets"}},
		destructive: true,
		subject: func(a args) string {
			sets, _ := a.raw(1).([]any)
			return fmt.Sprintf("%s [%d parameter sets]", describe(a.raw(0)), len(sets))
		},
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			statement, err := a.text(0)
			if err != nil {
				return nil, err
			}
			sets, err := a.list(1)
			if err != nil {
				return nil, err
			}
			return eng.ExecuteMany(ctx, statement, sets)
		},
	},
	{
		name:        ExecuteScript,
		description: "Execute every statement of a SQL script file.",
		params:      []registry.Param{{Name: "path"}},
		destructive: true,
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			path, err := a.text(0)
			if err != nil {
				return nil, err
			}
			return eng.ExecuteScript(ctx, path)
		},
	},
	{
		name:        FetchOneRow,
		description: "Run a query and return its first row as an object, or null.",
		params:      []registry.Param{{Name: "statement"}, {Name: "parameters", Optional: true}},
		readOnly:    true,
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			statement, err := a.text(0)
			if err != nil {
				return nil, err
			}
			row, err := eng.FetchOne(ctx, statement, a.raw(1))
			if err != nil || row == nil {
				return nil, err
			}
			return row, nil
		},
	},
	{
		name:        FetchManyRows,
		description: "Run a query and return at most size rows.",
		params:      []registry.Param{{Name: "statement"}, {Name: "size"}, {Name: "parameters", Optional: true}},
		readOnly:    true,
		subject: func(a args) string {
			return fmt.Sprintf("%s (size %s)", describe(a.raw(0)), describe(a.raw(1)))
		},
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			statement, err := a.text(0)
			if err != nil {
				return nil, err
			}
			size, err := a.number(1)
			if err != nil {
				return nil, err
			}
			return eng.FetchMany(ctx, statement, size, a.raw(2))
		},
	},
	{
		name:        FetchAllRows,
		description: "Run a query and return every row.",
		params:      []registry.Param{{Name: "statement"}, {Name: "parameters", Optional: true}},
		readOnly:    true,
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			statement, err := a.text(0)
			if err != nil {
				return nil, err
			}
			return eng.FetchAll(ctx, statement, a.raw(1))
		},
	},
	{
		name:        LoadNativeExtension,
		description: "Load a native SQLite extension into the current connection.",
		params:      []registry.Param{{Name: "path"}, {Name: "entry_point", Optional: true}},
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			path, err := a.text(0)
			if err != nil {
				return nil, err
			}
			entry, err := a.optionalText(1)
			if err != nil {
				return nil, err
			}
			return eng.LoadExtension(ctx, path, entry)
		},
	},
	{
		name:        PerformBackup,
		description: "Copy a schema of the current database to a target file in page batches.",
		params:      []registry.Param{{Name: "target"}, {Name: "pages"}, {Name: "name"}, {Name: "sleep_ms"}},
		destructive: true,
		subject:     statementSubject,
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			target, err := a.text(0)
			if err != nil {
				return nil, err
			}
			pages, err := a.number(1)
			if err != nil {
				return nil, err
			}
			name, err := a.optionalText(2)
			if err != nil {
				return nil, err
			}
			sleepMs, err := a.number(3)
			if err != nil {
				return nil, err
			}
			return eng.Backup(ctx, target, pages, name, timeutil.Millis(sleepMs))
		},
	},
	{
		name:        DumpSchemaAndData,
		description: "Write a SQL text dump of schema and data to a file, optionally filtered by a LIKE pattern.",
		params:      []registry.Param{{Name: "path"}, {Name: "filter", Optional: true}},
		destructive: true,
		readOnly:    false,
		subject: func(a args) string {
			if filter := describe(a.raw(1)); filter != "" {
				return fmt.Sprintf("%s (filter %s)", describe(a.raw(0)), filter)
			}
			return describe(a.raw(0))
		},
		run: func(ctx context.Context, eng engine.Engine, a args) (any, error) {
			path, err := a.text(0)
			if err != nil {
				return nil, err
			}
			filter, err := a.optionalText(1)
			if err != nil {
				return nil, err
			}
			return eng.Dump(ctx, path, filter)
		},
	},
}
