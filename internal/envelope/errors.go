package envelope

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across the taxonomy.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrArgumentShape  = errors.New("invalid arguments")
	ErrExecutor       = errors.New("executor fault")
)

// UnknownCommandError reports a name that is not in the registry.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("Unknown command: %s", e.Name)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// ArgumentShapeError reports input that cannot be shaped into the
// arguments a command expects.
type ArgumentShapeError struct {
	// Command is the command the arguments were meant for.
	Command string
	// Reason describes what is wrong.
	Reason string
	// Err is the underlying parse failure, if any.
	Err error
}

func (e *ArgumentShapeError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Command, e.Reason)
	}
}

func (e *ArgumentShapeError) Unwrap() error { return e.Err }

func (e *ArgumentShapeError) Is(target error) bool {
	return target == ErrArgumentShape
}

// ExecutorFault wraps a failure raised by the database engine. Its message
// is the collaborator's message, unchanged.
type ExecutorFault struct {
	Command string
	Err     error
}

func (e *ExecutorFault) Error() string {
	if e.Err == nil {
		return "executor fault"
	}
	return e.Err.Error()
}

func (e *ExecutorFault) Unwrap() error { return e.Err }

func (e *ExecutorFault) Is(target error) bool {
	return target == ErrExecutor
}

// Shapef builds an ArgumentShapeError with a formatted reason.
func Shapef(command, format string, args ...any) error {
	return &ArgumentShapeError{Command: command, Reason: fmt.Sprintf(format, args...)}
}
