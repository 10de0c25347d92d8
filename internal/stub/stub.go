package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/sqlite-bridge/internal/bridge"
	"github.com/codex-k8s/sqlite-bridge/internal/commands"
	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
)

// ClientName identifies the stub to MCP servers.
const ClientName = "sqlite-bridge-cli"

// Outcome is what the caller sees: a value or an envelope.
type Outcome struct {
	// Value is the decoded result. Numbers are json.Number.
	Value any
	// Err is set on failure.
	Err *envelope.Envelope
}

// Failed reports whether the call failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Display renders the outcome for humans: the error message, a string value
// as is, anything else as JSON.
func (o Outcome) Display() string {
	if o.Err != nil {
		return o.Err.Message
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	data, err := json.Marshal(o.Value)
	if err != nil {
		return fmt.Sprint(o.Value)
	}
	return string(data)
}

// Stub exposes one typed method per command. It has no generic call.
type Stub struct {
	inv invoker
}

// Connect opens an MCP session over transport.
func Connect(ctx context.Context, transport mcp.Transport, version string) (*Stub, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Stub{inv: mcpInvoker{session: session}}, nil
}

// NewHTTP calls the JSON command endpoint rooted at endpoint
// (for example "http://127.0.0.1:8080/commands/").
func NewHTTP(endpoint string, client *http.Client) *Stub {
	if client == nil {
		client = http.DefaultClient
	}
	return &Stub{inv: httpInvoker{endpoint: endpoint, client: client}}
}

// NewLocal calls an in-process dispatcher.
func NewLocal(dispatcher *bridge.Dispatcher) *Stub {
	return &Stub{inv: localInvoker{dispatcher: dispatcher}}
}

// Close releases the connection.
func (s *Stub) Close() error {
	return s.inv.close()
}

// EstablishDatabaseTarget opens path (or a file: URI) as the current database.
func (s *Stub) EstablishDatabaseTarget(ctx context.Context, path string, isURI, autocommit bool) Outcome {
	return s.call(ctx, commands.EstablishDatabaseTarget, path, isURI, autocommit)
}

// ExecuteSingleStatement runs statement with the parameters in literal.
func (s *Stub) ExecuteSingleStatement(ctx context.Context, statement, literal string) Outcome {
	return s.callWithLiteral(ctx, commands.ExecuteSingleStatement, literal, statement)
}

// ExecuteMany runs statement once per parameter set in literal.
func (s *Stub) ExecuteMany(ctx context.Context, statement, literal string) Outcome {
	return s.callWithLiteral(ctx, commands.ExecuteMany, literal, statement)
}

// ExecuteScript runs the SQL script at path.
func (s *Stub) ExecuteScript(ctx context.Context, path string) Outcome {
	return s.call(ctx, commands.ExecuteScript, path)
}

// FetchOne returns the first row of statement.
func (s *Stub) FetchOne(ctx context.Context, statement, literal string) Outcome {
	return s.callWithLiteral(ctx, commands.FetchOneRow, literal, statement)
}

// FetchMany returns at most size rows of statement.
func (s *Stub) FetchMany(ctx context.Context, statement string, size int, literal string) Outcome {
	return s.callWithLiteral(ctx, commands.FetchManyRows, literal, statement, size)
}

// FetchAll returns every row of statement.
func (s *Stub) FetchAll(ctx context.Context, statement, literal string) Outcome {
	return s.callWithLiteral(ctx, commands.FetchAllRows, literal, statement)
}

// LoadExtension loads a native extension. An empty entry point is derived
// from the file name.
func (s *Stub) LoadExtension(ctx context.Context, path, entryPoint string) Outcome {
	if entryPoint == "" {
		return s.call(ctx, commands.LoadNativeExtension, path)
	}
	return s.call(ctx, commands.LoadNativeExtension, path, entryPoint)
}

// Backup copies schema name to target, pages at a time.
func (s *Stub) Backup(ctx context.Context, target string, pages int, name string, sleepMs int) Outcome {
	return s.call(ctx, commands.PerformBackup, target, pages, name, sleepMs)
}

// Dump writes a SQL dump of objects matching filter to path.
func (s *Stub) Dump(ctx context.Context, path, filter string) Outcome {
	if filter == "" {
		return s.call(ctx, commands.DumpSchemaAndData, path)
	}
	return s.call(ctx, commands.DumpSchemaAndData, path, filter)
}

func (s *Stub) callWithLiteral(ctx context.Context, name, literal string, args ...any) Outcome {
	params, err := ParseLiteral(name, literal)
	if err != nil {
		return failure(err)
	}
	if params != nil {
		args = append(args, params)
	}
	return s.call(ctx, name, args...)
}

func (s *Stub) call(ctx context.Context, name string, args ...any) Outcome {
	reply, err := s.inv.invoke(ctx, name, args)
	if err != nil {
		return failure(err)
	}
	if reply.Failed() {
		return Outcome{Err: &envelope.Envelope{Message: reply.Error}}
	}
	return Outcome{Value: reply.Result}
}

func failure(err error) Outcome {
	env := envelope.From(err)
	return Outcome{Err: &env}
}

// ParseLiteral reads a parameter literal as typed by a user: a JSON value
// such as 42, "x", [1, "a"] or {"id": 1}. The literal is read as the first
// element of "[" + literal + "]". An empty literal means no parameters.
func ParseLiteral(command, literal string) (any, error) {
	if strings.TrimSpace(literal) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte("[" + literal + "]")))
	dec.UseNumber()
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, &envelope.ArgumentShapeError{Command: command, Reason: "invalid parameters literal", Err: err}
	}
	if dec.More() {
		return nil, &envelope.ArgumentShapeError{Command: command, Reason: "invalid parameters literal: trailing data"}
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}
