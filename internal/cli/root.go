package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/sqlite-bridge/internal/constants"
	"github.com/codex-k8s/sqlite-bridge/internal/stub"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran and returned an error envelope
	ExitCommandError = 2 // bad flags or no connection
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from err. Plain errors map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Opener connects a stub according to the root options.
type Opener func(ctx context.Context, opts *RootOptions) (*stub.Stub, error)

// RootOptions holds the connection flags shared by all commands.
type RootOptions struct {
	Transport string
	Endpoint  string
	ServerCmd string
	Timeout   time.Duration
	Version   string

	// Open defaults to Dial.
	Open Opener
}

// NewRootCommand builds the sqlite-bridge-cli command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version, Open: Dial}
	return newRootCommand(opts)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sqlite-bridge-cli",
		Short: "Call sqlite-bridge commands",
		Long: `sqlite-bridge-cli is the untrusted side of the SQLite bridge.

Each subcommand calls exactly one registered bridge command and prints
its result. Parameters are given as JSON literals, for example
'[1, "ada"]' or '{"id": 1}'.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Transport, "transport", "t", constants.ConnectHTTP, "Connection: http, mcp-http or stdio")
	flags.StringVarP(&opts.Endpoint, "endpoint", "e", "http://127.0.0.1:8080", "Server base URL for http and mcp-http")
	flags.StringVar(&opts.ServerCmd, "server-cmd", "sqlite-bridge", "Server command line for stdio")
	flags.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Per-call timeout")

	cmd.AddCommand(
		newEstablishCommand(opts),
		newExecuteCommand(opts),
		newExecuteManyCommand(opts),
		newScriptCommand(opts),
		newFetchOneCommand(opts),
		newFetchManyCommand(opts),
		newFetchAllCommand(opts),
		newLoadExtensionCommand(opts),
		newBackupCommand(opts),
		newDumpCommand(opts),
	)
	return cmd
}

func (o *RootOptions) validate() error {
	switch o.Transport {
	case constants.ConnectHTTP, constants.ConnectMCPHTTP:
		if strings.TrimSpace(o.Endpoint) == "" {
			return &ExitError{Code: ExitCommandError, Message: "--endpoint is required for " + o.Transport}
		}
	case constants.ConnectStdio:
		if len(strings.Fields(o.ServerCmd)) == 0 {
			return &ExitError{Code: ExitCommandError, Message: "--server-cmd is required for stdio"}
		}
	default:
		return &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("unsupported transport %q", o.Transport)}
	}
	if o.Timeout < 0 {
		return &ExitError{Code: ExitCommandError, Message: "--timeout must not be negative"}
	}
	return nil
}

// Dial connects to the server selected by opts.
func Dial(ctx context.Context, opts *RootOptions) (*stub.Stub, error) {
	base := strings.TrimRight(opts.Endpoint, "/")
	switch opts.Transport {
	case constants.ConnectHTTP:
		return stub.NewHTTP(base+"/commands/", &http.Client{Timeout: opts.Timeout}), nil
	case constants.ConnectMCPHTTP:
		return stub.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: base + "/mcp"}, opts.Version)
	case constants.ConnectStdio:
		fields := strings.Fields(opts.ServerCmd)
		return stub.Connect(ctx, &mcp.CommandTransport{Command: exec.Command(fields[0], fields[1:]...)}, opts.Version)
	default:
		return nil, fmt.Errorf("unsupported transport %q", opts.Transport)
	}
}
