package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/sqlite-bridge/internal/commands"
	"github.com/codex-k8s/sqlite-bridge/internal/stub"
)

type call func(ctx context.Context, s *stub.Stub) stub.Outcome

// run connects, performs one call and prints its outcome.
func run(cmd *cobra.Command, opts *RootOptions, fn call) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s, err := opts.Open(ctx, opts)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "connect", Err: err}
	}
	defer s.Close()

	out := fn(ctx, s)
	if out.Failed() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", out.Display())
		return &ExitError{Code: ExitFailure, Message: out.Display()}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", out.Display())
	return nil
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func newEstablishCommand(opts *RootOptions) *cobra.Command {
	var isURI, autocommit bool
	cmd := &cobra.Command{
		Use:     "establish PATH",
		Aliases: []string{commands.EstablishDatabaseTarget},
		Short:   "Open a database file or URI as the current target",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.EstablishDatabaseTarget(ctx, args[0], isURI, autocommit)
			})
		},
	}
	cmd.Flags().BoolVar(&isURI, "uri", false, "Treat PATH as a file: URI")
	cmd.Flags().BoolVar(&autocommit, "autocommit", true, "Commit after every statement")
	return cmd
}

func newExecuteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "execute STATEMENT [PARAMS]",
		Aliases: []string{commands.ExecuteSingleStatement},
		Short:   "Run one statement",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.ExecuteSingleStatement(ctx, args[0], optional(args, 1))
			})
		},
	}
}

func newExecuteManyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "execute-many STATEMENT PARAM_SETS",
		Aliases: []string{commands.ExecuteMany},
		Short:   "Run one statement for each parameter set",
		Example: `  sqlite-bridge-cli execute-many "INSERT INTO t VALUES (?, ?)" '[[1, "a"], [2, "b"]]'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.ExecuteMany(ctx, args[0], args[1])
			})
		},
	}
}

func newScriptCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "script PATH",
		Aliases: []string{commands.ExecuteScript},
		Short:   "Run a SQL script file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.ExecuteScript(ctx, args[0])
			})
		},
	}
}

func newFetchOneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "fetch-one STATEMENT [PARAMS]",
		Aliases: []string{commands.FetchOneRow},
		Short:   "Print the first row of a query",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.FetchOne(ctx, args[0], optional(args, 1))
			})
		},
	}
}

func newFetchManyCommand(opts *RootOptions) *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:     "fetch-many STATEMENT [PARAMS]",
		Aliases: []string{commands.FetchManyRows},
		Short:   "Print at most --size rows of a query",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.FetchMany(ctx, args[0], size, optional(args, 1))
			})
		},
	}
	cmd.Flags().IntVarP(&size, "size", "n", 1, "Maximum number of rows")
	return cmd
}

func newFetchAllCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "fetch-all STATEMENT [PARAMS]",
		Aliases: []string{commands.FetchAllRows},
		Short:   "Print every row of a query",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.FetchAll(ctx, args[0], optional(args, 1))
			})
		},
	}
}

func newLoadExtensionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "load-extension PATH [ENTRY_POINT]",
		Aliases: []string{commands.LoadNativeExtension},
		Short:   "Load a native SQLite extension",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.LoadExtension(ctx, args[0], optional(args, 1))
			})
		},
	}
}

func newBackupCommand(opts *RootOptions) *cobra.Command {
	var (
		pages   int
		name    string
		sleepMs int
	)
	cmd := &cobra.Command{
		Use:     "backup TARGET",
		Aliases: []string{commands.PerformBackup},
		Short:   "Copy the current database to TARGET",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.Backup(ctx, args[0], pages, name, sleepMs)
			})
		},
	}
	cmd.Flags().IntVar(&pages, "pages", -1, "Pages per step, -1 copies everything at once")
	cmd.Flags().StringVar(&name, "name", "main", "Schema to copy")
	cmd.Flags().IntVar(&sleepMs, "sleep-ms", 250, "Pause between steps in milliseconds")
	return cmd
}

func newDumpCommand(opts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:     "dump PATH",
		Aliases: []string{commands.DumpSchemaAndData},
		Short:   "Write a SQL dump of the current database to PATH",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, s *stub.Stub) stub.Outcome {
				return s.Dump(ctx, args[0], filter)
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "LIKE pattern for table names")
	return cmd
}
