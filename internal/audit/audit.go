package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codex-k8s/sqlite-bridge/internal/templates"
)

// Outcome tags an invocation result.
type Outcome string

// Invocation outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Level returns the log level tag written for the outcome.
func (o Outcome) Level() string {
	if o == OutcomeFailure {
		return "ERROR"
	}
	return "INFO"
}

// TimeLayout is the ISO-8601 UTC layout with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Record is one invocation entry. It is appended once and never changed.
type Record struct {
	// ID identifies the invocation.
	ID string
	// Time is when the outcome was known.
	Time time.Time
	// Command is the requested command name.
	Command string
	// Subject is a short description of the attempted action.
	Subject string
	// Outcome is success or failure.
	Outcome Outcome
	// Error is the normalized failure message.
	Error string
	// Duration is how long the dispatch took.
	Duration time.Duration
}

// Logger records invocation outcomes.
type Logger interface {
	// Record appends one entry.
	Record(ctx context.Context, rec Record) error
}

// Options configures a FileLogger.
type Options struct {
	// Path is the durable sink. Parent directories are created.
	Path string
	// Console receives a copy of every line. Nil disables it.
	Console io.Writer
	// Messages renders the localized message part of a line.
	Messages templates.Renderer
	// Events receives structured debug events for every record.
	Events *slog.Logger
}

// FileLogger appends formatted lines to a file and a console stream.
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	console  io.Writer
	messages templates.Renderer
	events   *slog.Logger
}

// New opens (or creates) the sink file for appending.
func New(opts Options) (*FileLogger, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	file, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileLogger{
		file:     file,
		console:  opts.Console,
		messages: opts.Messages,
		events:   opts.Events,
	}, nil
}

// Record formats rec and appends it to both sinks. Each line is written with
// a single call while holding the lock, so concurrent records never mix.
func (l *FileLogger) Record(ctx context.Context, rec Record) error {
	if l == nil {
		return errors.New("audit logger is nil")
	}
	line := Format(rec, l.messages) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.console != nil {
		if _, err := io.WriteString(l.console, line); err != nil {
			errs = append(errs, fmt.Errorf("write console: %w", err))
		}
	}
	if l.file == nil {
		errs = append(errs, errors.New("audit log is closed"))
	} else if _, err := l.file.WriteString(line); err != nil {
		errs = append(errs, fmt.Errorf("write audit log: %w", err))
	}

	if l.events != nil {
		l.events.DebugContext(ctx, "invocation",
			"id", rec.ID,
			"command", rec.Command,
			"outcome", string(rec.Outcome),
			"duration_ms", rec.Duration.Milliseconds(),
		)
	}
	return errors.Join(errs...)
}

// Close releases the sink file.
func (l *FileLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Format renders rec as "[timestamp] [LEVEL] message".
func Format(rec Record, messages templates.Renderer) string {
	return fmt.Sprintf("[%s] [%s] %s", rec.Time.UTC().Format(TimeLayout), rec.Outcome.Level(), singleLine(Message(rec, messages)))
}

// Message renders the human-readable part of a record.
func Message(rec Record, messages templates.Renderer) string {
	key := templates.KeyAuditSuccess
	if rec.Outcome == OutcomeFailure {
		key = templates.KeyAuditFailure
	}
	data := struct {
		Command string
		Subject string
		Error   string
	}{Command: rec.Command, Subject: rec.Subject, Error: rec.Error}

	if messages != nil {
		if rendered, err := messages.Render(key, data); err == nil {
			return rendered
		}
	}
	return fallbackMessage(rec)
}

func fallbackMessage(rec Record) string {
	var b strings.Builder
	b.WriteString(rec.Command)
	if rec.Outcome == OutcomeFailure {
		b.WriteString(" failed")
	} else {
		b.WriteString(" succeeded")
	}
	if rec.Subject != "" {
		b.WriteString(": ")
		b.WriteString(rec.Subject)
	}
	if rec.Outcome == OutcomeFailure {
		b.WriteString(": ")
		b.WriteString(rec.Error)
	}
	return b.String()
}

func singleLine(value string) string {
	if !strings.ContainsAny(value, "\r\n") {
		return value
	}
	return strings.Join(strings.Fields(value), " ")
}
