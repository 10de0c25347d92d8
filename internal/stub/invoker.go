package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/sqlite-bridge/internal/bridge"
	"github.com/codex-k8s/sqlite-bridge/internal/protocol"
)

// invoker carries one named invocation across the boundary. Errors are
// transport failures; command failures arrive inside the reply.
type invoker interface {
	invoke(ctx context.Context, name string, args []any) (protocol.Reply, error)
	close() error
}

type mcpInvoker struct {
	session *mcp.ClientSession
}

func (m mcpInvoker) invoke(ctx context.Context, name string, args []any) (protocol.Reply, error) {
	res, err := m.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: protocol.Arguments{Args: args},
	})
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("call %s: %w", name, err)
	}
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			return protocol.DecodeReply([]byte(text.Text))
		}
	}
	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return protocol.Reply{}, fmt.Errorf("call %s: %w", name, err)
		}
		return protocol.DecodeReply(data)
	}
	return protocol.Reply{}, fmt.Errorf("call %s: empty tool result", name)
}

func (m mcpInvoker) close() error {
	return m.session.Close()
}

type httpInvoker struct {
	endpoint string
	client   *http.Client
}

func (h httpInvoker) invoke(ctx context.Context, name string, args []any) (protocol.Reply, error) {
	body, err := json.Marshal(protocol.Arguments{Args: args})
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("encode arguments: %w", err)
	}
	target := strings.TrimSuffix(h.endpoint, "/") + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return protocol.Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("call %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return protocol.Reply{}, fmt.Errorf("call %s: unexpected status %s", name, resp.Status)
	}
	return protocol.DecodeReply(data)
}

func (h httpInvoker) close() error {
	h.client.CloseIdleConnections()
	return nil
}

// localInvoker serializes replies like a remote boundary would.
type localInvoker struct {
	dispatcher *bridge.Dispatcher
}

func (l localInvoker) invoke(ctx context.Context, name string, args []any) (protocol.Reply, error) {
	if l.dispatcher == nil {
		return protocol.Reply{}, errors.New("dispatcher is nil")
	}
	data, err := json.Marshal(l.dispatcher.Dispatch(ctx, name, args).Reply())
	if err != nil {
		return protocol.Reply{}, fmt.Errorf("encode reply: %w", err)
	}
	return protocol.DecodeReply(data)
}

func (l localInvoker) close() error {
	return nil
}
