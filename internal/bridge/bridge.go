package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codex-k8s/sqlite-bridge/internal/audit"
	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
	"github.com/codex-k8s/sqlite-bridge/internal/protocol"
	"github.com/codex-k8s/sqlite-bridge/internal/registry"
)

// DefaultMaxSubjectLength bounds subjects written to the audit trail.
const DefaultMaxSubjectLength = 200

const (
	tracerName = "github.com/codex-k8s/sqlite-bridge/internal/bridge"
	spanName   = "bridge.dispatch"
	ellipsis   = "…"
)

// Result is the outcome of one dispatch: either Value or Err.
type Result struct {
	// Value is the executor's value, unchanged. It may be nil.
	Value any
	// Err is set on failure.
	Err *envelope.Envelope
}

// Failed reports whether the dispatch failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Reply converts the result to its wire form.
func (r Result) Reply() protocol.Reply {
	if r.Err != nil {
		return protocol.Reply{Error: r.Err.Message}
	}
	return protocol.Reply{Result: r.Value}
}

// Options configures a Dispatcher.
type Options struct {
	// Registry is the command table. Required.
	Registry *registry.Registry
	// Audit receives one record per dispatch. Required.
	Audit audit.Logger
	// Logger reports audit sink failures and dispatch events.
	Logger *slog.Logger
	// Tracer starts one span per dispatch. Defaults to the global provider.
	Tracer trace.Tracer
	// MaxSubjectLength bounds subjects in runes. Defaults to DefaultMaxSubjectLength.
	MaxSubjectLength int
	// Now returns the current time.
	Now func() time.Time
	// NewID returns a record identifier.
	NewID func() string
}

// Dispatcher routes named invocations to registered executors.
type Dispatcher struct {
	registry   *registry.Registry
	audit      audit.Logger
	logger     *slog.Logger
	tracer     trace.Tracer
	maxSubject int
	now        func() time.Time
	newID      func() string
}

// New validates options and returns a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, errors.New("registry is nil")
	}
	if opts.Audit == nil {
		return nil, errors.New("audit logger is nil")
	}
	d := &Dispatcher{
		registry:   opts.Registry,
		audit:      opts.Audit,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
		maxSubject: opts.MaxSubjectLength,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.maxSubject <= 0 {
		d.maxSubject = DefaultMaxSubjectLength
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d, nil
}

// Registry returns the command table.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// Dispatch invokes the command bound to name with args and records exactly
// one audit entry. The caller's cancellation does not reach the executor.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args []any) Result {
	ctx = context.WithoutCancel(ctx)
	start := d.now()
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("command.name", name)))
	defer span.End()

	value, subject, err := d.invoke(ctx, name, args)
	return d.finish(ctx, span, start, name, subject, value, err)
}

// Refuse records and returns a failure for a request whose arguments could
// not be decoded by the transport. An unregistered name is reported as an
// unknown command whatever the cause.
func (d *Dispatcher) Refuse(ctx context.Context, name string, cause error) Result {
	ctx = context.WithoutCancel(ctx)
	start := d.now()
	ctx, span := d.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("command.name", name)))
	defer span.End()

	var err error
	switch {
	case !d.registry.Has(name):
		err = &envelope.UnknownCommandError{Name: name}
	case errors.Is(cause, envelope.ErrArgumentShape), errors.Is(cause, envelope.ErrUnknownCommand):
		err = cause
	default:
		err = &envelope.ArgumentShapeError{Command: name, Err: cause}
	}
	return d.finish(ctx, span, start, name, "", nil, err)
}

func (d *Dispatcher) invoke(ctx context.Context, name string, args []any) (value any, subject string, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &envelope.ExecutorFault{Command: name, Err: panicError(r)}
		}
	}()

	cmd, err := d.registry.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	if cmd.Subject != nil {
		subject = cmd.Subject(args)
	}
	if err := cmd.CheckArity(args); err != nil {
		return nil, subject, err
	}
	value, err = cmd.Exec(ctx, args)
	if err != nil {
		return nil, subject, classify(name, err)
	}
	// Transports reply in JSON: a value that cannot be encoded is a failure.
	if _, err := json.Marshal(value); err != nil {
		return nil, subject, &envelope.ExecutorFault{Command: name, Err: fmt.Errorf("encode result: %w", err)}
	}
	return value, subject, nil
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, start time.Time, name, subject string, value any, err error) Result {
	end := d.now()
	rec := audit.Record{
		ID:       d.newID(),
		Time:     end.UTC(),
		Command:  name,
		Subject:  d.clip(subject),
		Outcome:  audit.OutcomeSuccess,
		Duration: end.Sub(start),
	}
	var result Result
	if err != nil {
		env := envelope.From(err)
		rec.Outcome = audit.OutcomeFailure
		rec.Error = env.Message
		result.Err = &env
		span.RecordError(err)
		span.SetStatus(codes.Error, env.Message)
		d.logger.Warn("command failed", "command", name, "id", rec.ID, "kind", kind(err), "error", env.Message)
	} else {
		result.Value = value
		span.SetStatus(codes.Ok, "")
		d.logger.Debug("command succeeded", "command", name, "id", rec.ID, "duration", rec.Duration)
	}
	span.SetAttributes(attribute.String("command.outcome", string(rec.Outcome)))

	if auditErr := d.audit.Record(ctx, rec); auditErr != nil {
		d.logger.Error("audit record failed", "command", name, "id", rec.ID, "error", auditErr)
	}
	return result
}

// clip collapses whitespace and truncates to the configured rune count.
func (d *Dispatcher) clip(subject string) string {
	subject = strings.Join(strings.Fields(subject), " ")
	if utf8.RuneCountInString(subject) <= d.maxSubject {
		return subject
	}
	runes := []rune(subject)
	return string(runes[:d.maxSubject]) + ellipsis
}

func classify(name string, err error) error {
	switch {
	case errors.Is(err, envelope.ErrArgumentShape),
		errors.Is(err, envelope.ErrUnknownCommand),
		errors.Is(err, envelope.ErrExecutor):
		return err
	default:
		return &envelope.ExecutorFault{Command: name, Err: err}
	}
}

func kind(err error) string {
	switch {
	case errors.Is(err, envelope.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, envelope.ErrArgumentShape):
		return "argument_shape"
	default:
		return "executor"
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.New(envelope.Message(r))
}
