package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Reply is the fixed JSON response returned to callers. Exactly one of
// Result and Error is meaningful: a non-empty Error marks a failure.
type Reply struct {
	// Result is the command's value. It may be null.
	Result any `json:"result"`
	// Error is the failure message.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the reply carries an error.
func (r Reply) Failed() bool {
	return r.Error != ""
}

// MarshalJSON omits result on failures so the two shapes never mix.
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	return json.Marshal(struct {
		Result any `json:"result"`
	}{Result: r.Result})
}

// Arguments is the request body of one command invocation.
type Arguments struct {
	// Args are the positional arguments.
	Args []any `json:"args"`
}

// DecodeReply parses a reply keeping numbers as json.Number.
func DecodeReply(data []byte) (Reply, error) {
	var raw map[string]json.RawMessage
	if err := decode(data, &raw); err != nil {
		return Reply{}, err
	}
	if msg, ok := raw["error"]; ok {
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			return Reply{}, fmt.Errorf("decode reply error: %w", err)
		}
		if text == "" {
			text = "unknown error"
		}
		return Reply{Error: text}, nil
	}
	result, ok := raw["result"]
	if !ok {
		return Reply{}, fmt.Errorf("reply has neither result nor error")
	}
	var value any
	if err := decode(result, &value); err != nil {
		return Reply{}, err
	}
	return Reply{Result: value}, nil
}

// DecodeArguments parses an invocation body keeping numbers as json.Number.
// An empty body means no arguments.
func DecodeArguments(data []byte) (Arguments, error) {
	var args Arguments
	if len(bytes.TrimSpace(data)) == 0 {
		return args, nil
	}
	if err := decode(data, &args); err != nil {
		return Arguments{}, err
	}
	return args, nil
}

func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode json: trailing data")
	}
	return nil
}
