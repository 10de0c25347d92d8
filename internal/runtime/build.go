package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/sqlite-bridge/internal/bridge"
	"github.com/codex-k8s/sqlite-bridge/internal/dsl"
	"github.com/codex-k8s/sqlite-bridge/internal/protocol"
	"github.com/codex-k8s/sqlite-bridge/internal/registry"
)

// Builder constructs an MCP server exposing every registered command.
type Builder struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Dispatcher routes tool calls.
	Dispatcher *bridge.Dispatcher
}

// Build creates an MCP server with one tool per registered command.
func (b Builder) Build(cfg dsl.ServerConfig) (*mcp.Server, error) {
	if b.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is nil")
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	for _, cmd := range b.Dispatcher.Registry().Commands() {
		b.addTool(server, cmd)
	}
	return server, nil
}

func (b Builder) addTool(server *mcp.Server, cmd registry.Command) {
	name := cmd.Name
	server.AddTool(&mcp.Tool{
		Name:        name,
		Description: toolDescription(cmd),
		InputSchema: inputSchema(cmd),
		Annotations: buildAnnotations(cmd),
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		var result bridge.Result
		args, err := protocol.DecodeArguments(raw)
		if err != nil {
			result = b.Dispatcher.Refuse(ctx, name, err)
		} else {
			result = b.Dispatcher.Dispatch(ctx, name, args.Args)
		}
		return toolResult(result.Reply())
	})
	if b.Logger != nil {
		b.Logger.Debug("tool registered", "tool", name)
	}
}

func toolResult(reply protocol.Reply) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(reply)
	if err != nil {
		// Values that cannot be encoded become envelopes too.
		reply = protocol.Reply{Error: fmt.Sprintf("encode result: %v", err)}
		data, _ = json.Marshal(reply)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: reply.Failed(),
	}, nil
}

func toolDescription(cmd registry.Command) string {
	names := make([]string, 0, len(cmd.Params))
	for _, p := range cmd.Params {
		if p.Optional {
			names = append(names, p.Name+"?")
			continue
		}
		names = append(names, p.Name)
	}
	desc := strings.TrimSpace(cmd.Description)
	return fmt.Sprintf("%s Positional args: [%s].", desc, strings.Join(names, ", "))
}

func inputSchema(cmd registry.Command) map[string]any {
	minArgs, maxArgs := cmd.Arity()
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"args": map[string]any{
				"type":        "array",
				"description": "Positional arguments.",
				"minItems":    minArgs,
				"maxItems":    maxArgs,
			},
		},
	}
}

func buildAnnotations(cmd registry.Command) *mcp.ToolAnnotations {
	destructive := cmd.Destructive
	openWorld := false
	return &mcp.ToolAnnotations{
		ReadOnlyHint:    cmd.ReadOnly,
		DestructiveHint: &destructive,
		OpenWorldHint:   &openWorld,
		Title:           cmd.Name,
	}
}
