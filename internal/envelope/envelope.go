package envelope

import (
	"errors"
	"fmt"
)

// Envelope is the only failure shape that crosses the boundary.
type Envelope struct {
	// Message is the normalized failure description.
	Message string `json:"error"`
}

// Error implements the error interface.
func (e Envelope) Error() string {
	return e.Message
}

// Normalize converts any fault into an Envelope.
func Normalize(fault any) Envelope {
	return Envelope{Message: Message(fault)}
}

// Message extracts a human-readable message from fault, falling back to a
// string conversion when it carries none.
func Message(fault any) string {
	switch v := fault.(type) {
	case nil:
		return "unknown error"
	case Envelope:
		return v.Message
	case *Envelope:
		if v == nil {
			return "unknown error"
		}
		return v.Message
	case error:
		if msg := v.Error(); msg != "" {
			return msg
		}
		return fmt.Sprintf("%T", v)
	case fmt.Stringer:
		return v.String()
	case string:
		if v == "" {
			return "unknown error"
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// From returns the envelope carried by err, or a normalized one.
func From(err error) Envelope {
	var env Envelope
	if errors.As(err, &env) {
		return env
	}
	return Normalize(err)
}
