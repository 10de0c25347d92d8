package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
)

// ErrDuplicateCommand is returned when a name is registered twice.
var ErrDuplicateCommand = errors.New("command already registered")

// Executor performs one command with positional arguments.
type Executor func(ctx context.Context, args []any) (any, error)

// Param describes one positional parameter of a command.
type Param struct {
	// Name is used in policies, tool descriptions, and logs.
	Name string
	// Optional parameters may be omitted from the tail of the argument list.
	Optional bool
}

// Command is one entry of the catalog.
type Command struct {
	// Name is the wire name of the command.
	Name string
	// Description explains the command to callers.
	Description string
	// Params is the ordered parameter list.
	Params []Param
	// ReadOnly marks commands that never modify the database.
	ReadOnly bool
	// Destructive marks commands that may overwrite data or files.
	Destructive bool
	// Subject describes the salient argument of a call for the audit trail.
	Subject func(args []any) string
	// Exec performs the command.
	Exec Executor
}

// Arity returns the minimum and maximum number of arguments.
func (c Command) Arity() (int, int) {
	minArgs := 0
	for i, p := range c.Params {
		if !p.Optional {
			minArgs = i + 1
		}
	}
	return minArgs, len(c.Params)
}

// CheckArity validates the argument count against Params.
func (c Command) CheckArity(args []any) error {
	minArgs, maxArgs := c.Arity()
	if len(args) >= minArgs && len(args) <= maxArgs {
		return nil
	}
	if minArgs == maxArgs {
		return envelope.Shapef(c.Name, "expected %d arguments, got %d", maxArgs, len(args))
	}
	return envelope.Shapef(c.Name, "expected %d to %d arguments, got %d", minArgs, maxArgs, len(args))
}

// Builder collects commands before the registry is frozen.
type Builder struct {
	order    []string
	commands map[string]Command
}

// Register binds cmd.Name to cmd. Registering a name twice fails.
func (b *Builder) Register(cmd Command) error {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if name != cmd.Name {
		return fmt.Errorf("command name %q has surrounding whitespace", cmd.Name)
	}
	if cmd.Exec == nil {
		return fmt.Errorf("command %s: executor is nil", name)
	}
	if b.commands == nil {
		b.commands = make(map[string]Command)
	}
	if _, exists := b.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, name)
	}
	b.commands[name] = cmd
	b.order = append(b.order, name)
	return nil
}

// Build freezes the collected commands. The builder must not be reused.
func (b *Builder) Build() *Registry {
	commands := make(map[string]Command, len(b.commands))
	for name, cmd := range b.commands {
		commands[name] = cmd
	}
	order := make([]string, len(b.order))
	copy(order, b.order)
	return &Registry{order: order, commands: commands}
}

// Registry is the immutable name to executor table. It is safe for
// concurrent reads.
type Registry struct {
	order    []string
	commands map[string]Command
}

// New registers all commands and freezes the result.
func New(commands ...Command) (*Registry, error) {
	var b Builder
	for _, cmd := range commands {
		if err := b.Register(cmd); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// Resolve returns the command bound to name.
func (r *Registry) Resolve(name string) (Command, error) {
	if r != nil {
		if cmd, ok := r.commands[name]; ok {
			return cmd, nil
		}
	}
	return Command{}, &envelope.UnknownCommandError{Name: name}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.commands[name]
	return ok
}

// Names returns command names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Commands returns all commands in registration order.
func (r *Registry) Commands() []Command {
	if r == nil {
		return nil
	}
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}
