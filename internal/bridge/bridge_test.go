package bridge

import (
	"bufio"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/codex-k8s/sqlite-bridge/internal/audit"
	"github.com/codex-k8s/sqlite-bridge/internal/envelope"
	"github.com/codex-k8s/sqlite-bridge/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memLogger struct {
	mu      sync.Mutex
	records []audit.Record
	err     error
}

func (l *memLogger) Record(_ context.Context, rec audit.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

func (l *memLogger) all() []audit.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]audit.Record, len(l.records))
	copy(out, l.records)
	return out
}

func statementSubject(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

func newDispatcher(t *testing.T, sink audit.Logger, commands ...registry.Command) *Dispatcher {
	t.Helper()
	reg, err := registry.New(commands...)
	require.NoError(t, err)
	d, err := New(Options{Registry: reg, Audit: sink})
	require.NoError(t, err)
	return d
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Audit: &memLogger{}})
	assert.Error(t, err)
	reg, err := registry.New()
	require.NoError(t, err)
	_, err = New(Options{Registry: reg})
	assert.Error(t, err)
}

// Scenario A.
func TestDispatchSuccess(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink, registry.Command{
		Name:    "fetch-one-row",
		Params:  []registry.Param{{Name: "statement"}, {Name: "parameters", Optional: true}},
		Subject: statementSubject,
		Exec: func(context.Context, []any) (any, error) {
			return map[string]any{"a": 1}, nil
		},
	})

	res := d.Dispatch(context.Background(), "fetch-one-row", []any{"SELECT 1", nil})
	require.False(t, res.Failed())
	assert.Equal(t, map[string]any{"a": 1}, res.Value)
	assert.Equal(t, map[string]any{"a": 1}, res.Reply().Result)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, "fetch-one-row", records[0].Command)
	assert.Equal(t, "SELECT 1", records[0].Subject)
	assert.Equal(t, audit.OutcomeSuccess, records[0].Outcome)
	assert.NotEmpty(t, records[0].ID)
	assert.Contains(t, audit.Format(records[0], nil), "fetch-one-row")
}

// Scenario B.
func TestDispatchUnknownCommandNeverInvokes(t *testing.T) {
	sink := &memLogger{}
	var calls atomic.Int32
	d := newDispatcher(t, sink, registry.Command{
		Name: "fetch-one-row",
		Exec: func(context.Context, []any) (any, error) {
			calls.Add(1)
			return nil, nil
		},
	})

	res := d.Dispatch(context.Background(), "drop-table", []any{"users"})
	require.True(t, res.Failed())
	assert.Equal(t, "Unknown command: drop-table", res.Err.Message)
	assert.Equal(t, "Unknown command: drop-table", res.Reply().Error)
	assert.Zero(t, calls.Load())

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeFailure, records[0].Outcome)
	assert.Equal(t, "drop-table", records[0].Command)
}

// Scenario C.
func TestDispatchExecutorFault(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink, registry.Command{
		Name:   "perform-backup",
		Params: []registry.Param{{Name: "target"}, {Name: "pages"}, {Name: "name"}, {Name: "sleep_ms"}},
		Exec: func(context.Context, []any) (any, error) {
			return nil, errors.New("disk full")
		},
	})

	res := d.Dispatch(context.Background(), "perform-backup", []any{"/tmp/b.db", -1, "main", 0})
	require.True(t, res.Failed())
	assert.Equal(t, envelope.Envelope{Message: "disk full"}, *res.Err)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeFailure, records[0].Outcome)
	assert.Contains(t, audit.Format(records[0], nil), "disk full")
}

// Scenario D.
func TestDispatchConcurrentCommandsWriteWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_access.log")
	sink, err := audit.New(audit.Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	slow := func(value any) registry.Executor {
		return func(context.Context, []any) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return value, nil
		}
	}
	d := newDispatcher(t, sink,
		registry.Command{Name: "fetch-all-rows", Exec: slow([]any{})},
		registry.Command{Name: "execute-single-statement", Exec: slow(map[string]any{"ok": true})},
	)

	var g errgroup.Group
	for _, name := range []string{"fetch-all-rows", "execute-single-statement"} {
		g.Go(func() error {
			if res := d.Dispatch(context.Background(), name, nil); res.Failed() {
				return res.Err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	seen := map[string]bool{}
	line := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\] \[INFO\] ([a-z-]+) succeeded$`)
	for _, l := range lines {
		m := line.FindStringSubmatch(l)
		require.NotNil(t, m, l)
		seen[m[1]] = true
	}
	assert.Equal(t, map[string]bool{"fetch-all-rows": true, "execute-single-statement": true}, seen)
}

func TestRecordCountMatchesCallsUnderConcurrency(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink,
		registry.Command{Name: "ok", Exec: func(context.Context, []any) (any, error) { return 1, nil }},
		registry.Command{Name: "fail", Exec: func(context.Context, []any) (any, error) { return nil, errors.New("boom") }},
		registry.Command{Name: "panic", Exec: func(context.Context, []any) (any, error) { panic("kaboom") }},
	)

	const perName = 50
	names := []string{"ok", "fail", "panic", "missing"}
	var g errgroup.Group
	g.SetLimit(16)
	for i := 0; i < perName; i++ {
		for _, name := range names {
			g.Go(func() error {
				d.Dispatch(context.Background(), name, nil)
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	counts := map[string]int{}
	for _, rec := range sink.all() {
		counts[rec.Command]++
	}
	assert.Equal(t, map[string]int{"ok": perName, "fail": perName, "panic": perName, "missing": perName}, counts)
}

func TestEnvelopeShapeIsUniform(t *testing.T) {
	d := newDispatcher(t, &memLogger{},
		registry.Command{
			Name:   "fetch-all-rows",
			Params: []registry.Param{{Name: "statement"}},
			Exec:   func(context.Context, []any) (any, error) { return nil, errors.New("no such table: ghosts") },
		},
	)

	faults := []Result{
		d.Dispatch(context.Background(), "nope", nil),
		d.Dispatch(context.Background(), "fetch-all-rows", nil),
		d.Dispatch(context.Background(), "fetch-all-rows", []any{"SELECT * FROM ghosts"}),
		d.Refuse(context.Background(), "fetch-all-rows", errors.New("decode json: unexpected EOF")),
	}
	want := []string{
		"Unknown command: nope",
		"fetch-all-rows: expected 1 arguments, got 0",
		"no such table: ghosts",
		"fetch-all-rows: decode json: unexpected EOF",
	}
	for i, res := range faults {
		require.True(t, res.Failed(), i)
		assert.IsType(t, &envelope.Envelope{}, res.Err)
		assert.Equal(t, want[i], res.Err.Message)
		assert.Nil(t, res.Value)
	}
}

func TestPanicsBecomeEnvelopes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "kaboom", "kaboom"},
		{"error", errors.New("nil pointer"), "nil pointer"},
		{"number", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &memLogger{}
			d := newDispatcher(t, sink, registry.Command{
				Name: "load-native-extension",
				Exec: func(context.Context, []any) (any, error) { panic(tt.value) },
			})
			res := d.Dispatch(context.Background(), "load-native-extension", nil)
			require.True(t, res.Failed())
			assert.Equal(t, tt.want, res.Err.Message)
			require.Len(t, sink.all(), 1)
		})
	}
}

func TestRuntimePanicBecomesEnvelope(t *testing.T) {
	d := newDispatcher(t, &memLogger{}, registry.Command{
		Name: "fetch-many-rows",
		Exec: func(context.Context, []any) (any, error) {
			var m map[string]int
			m["x"] = 1
			return nil, nil
		},
	})
	res := d.Dispatch(context.Background(), "fetch-many-rows", nil)
	require.True(t, res.Failed())
	assert.Equal(t, "assignment to entry in nil map", res.Err.Message)
}

func TestSubjectPanicIsContained(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink, registry.Command{
		Name:    "fetch-one-row",
		Subject: func([]any) string { panic("bad subject") },
		Exec:    func(context.Context, []any) (any, error) { return nil, nil },
	})
	res := d.Dispatch(context.Background(), "fetch-one-row", nil)
	require.True(t, res.Failed())
	assert.Equal(t, "bad subject", res.Err.Message)
	assert.Len(t, sink.all(), 1)
}

func TestUnencodableValueIsRecordedAsFailure(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink, registry.Command{
		Name:    "fetch-all-rows",
		Params:  []registry.Param{{Name: "statement"}},
		Subject: statementSubject,
		Exec: func(context.Context, []any) (any, error) {
			return []map[string]any{{"x": math.Inf(1)}}, nil
		},
	})

	res := d.Dispatch(context.Background(), "fetch-all-rows", []any{"SELECT 1e999 AS x"})
	require.True(t, res.Failed())
	assert.Nil(t, res.Value)
	assert.Equal(t, "encode result: json: unsupported value: +Inf", res.Err.Message)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeFailure, records[0].Outcome)
	assert.Equal(t, res.Err.Message, records[0].Error)
	assert.Equal(t, "SELECT 1e999 AS x", records[0].Subject)
}

func TestRefuseUnregisteredNameIsUnknownCommand(t *testing.T) {
	sink := &memLogger{}
	d := newDispatcher(t, sink, registry.Command{
		Name: "fetch-all-rows",
		Exec: func(context.Context, []any) (any, error) { return nil, nil },
	})

	res := d.Refuse(context.Background(), "drop-table", errors.New("decode json: unexpected EOF"))
	require.True(t, res.Failed())
	assert.Equal(t, "Unknown command: drop-table", res.Err.Message)

	records := sink.all()
	require.Len(t, records, 1)
	assert.Equal(t, audit.OutcomeFailure, records[0].Outcome)
}

func TestDispatchDetachesCancellation(t *testing.T) {
	d := newDispatcher(t, &memLogger{}, registry.Command{
		Name: "execute-single-statement",
		Exec: func(ctx context.Context, _ []any) (any, error) {
			return nil, ctx.Err()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Dispatch(ctx, "execute-single-statement", nil)
	assert.False(t, res.Failed())
}

func TestAuditFailureDoesNotChangeResult(t *testing.T) {
	sink := &memLogger{err: errors.New("disk full")}
	d := newDispatcher(t, sink, registry.Command{
		Name: "fetch-all-rows",
		Exec: func(context.Context, []any) (any, error) { return []any{}, nil },
	})
	res := d.Dispatch(context.Background(), "fetch-all-rows", nil)
	assert.False(t, res.Failed())
	assert.Equal(t, []any{}, res.Value)
}

func TestSubjectClipping(t *testing.T) {
	reg, err := registry.New()
	require.NoError(t, err)
	d, err := New(Options{Registry: reg, Audit: &memLogger{}, MaxSubjectLength: 10})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * F…", d.clip("SELECT *\n\tFROM   t"))
	assert.Equal(t, "short", d.clip("  short  "))
	assert.Equal(t, "ääääääääää…", d.clip(strings.Repeat("ä", 11)))
}

func TestDispatchRecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	reg, err := registry.New(
		registry.Command{Name: "fetch-all-rows", Exec: func(context.Context, []any) (any, error) { return []any{}, nil }},
	)
	require.NoError(t, err)
	d, err := New(Options{Registry: reg, Audit: &memLogger{}, Tracer: provider.Tracer("test")})
	require.NoError(t, err)

	d.Dispatch(context.Background(), "fetch-all-rows", nil)
	d.Dispatch(context.Background(), "drop-table", nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "bridge.dispatch", span.Name())
	}
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("command.outcome", "success"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "Unknown command: drop-table", spans[1].Status().Description)
	assert.Contains(t, spans[1].Attributes(), attribute.String("command.name", "drop-table"))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}
