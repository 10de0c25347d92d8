package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/codex-k8s/sqlite-bridge/internal/bridge"
	"github.com/codex-k8s/sqlite-bridge/internal/protocol"
)

// MaxBodyBytes limits the size of one invocation body.
const MaxBodyBytes = 8 << 20

// Dispatcher is the subset of bridge.Dispatcher used by the handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args []any) bridge.Result
	Refuse(ctx context.Context, name string, cause error) bridge.Result
}

// Handler serves POST <prefix>{name} with a protocol.Arguments body and
// answers every dispatched request with 200 and a protocol.Reply.
type Handler struct {
	prefix     string
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New returns a handler mounted at prefix (for example "/commands/").
func New(prefix string, dispatcher Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{prefix: prefix, dispatcher: dispatcher, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, h.prefix)
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}

	var result bridge.Result
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		result = h.dispatcher.Refuse(r.Context(), name, err)
	} else if args, err := protocol.DecodeArguments(body); err != nil {
		result = h.dispatcher.Refuse(r.Context(), name, err)
	} else {
		result = h.dispatcher.Dispatch(r.Context(), name, args.Args)
	}
	h.write(w, name, result.Reply())
}

func (h *Handler) write(w http.ResponseWriter, name string, reply protocol.Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		data, _ = json.Marshal(protocol.Reply{Error: "encode result: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil && h.logger != nil {
		h.logger.Warn("write reply failed", "command", name, "error", err)
	}
}
