package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/codex-k8s/sqlite-bridge/internal/constants"
)

// ErrNotConnected is returned by every operation before a target is established.
var ErrNotConnected = errors.New("database is not connected")

// Row is one result row keyed by column name.
type Row map[string]any

// Status reports the outcome of an operation that returns no rows.
type Status struct {
	OK           bool   `json:"ok"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	LastInsertID int64  `json:"last_insert_id,omitempty"`
	Path         string `json:"path,omitempty"`
	Statements   int    `json:"statements,omitempty"`
	Pages        int    `json:"pages,omitempty"`
}

// Engine is the set of database capabilities exposed across the boundary.
type Engine interface {
	// Connect opens target and makes it the current database.
	Connect(ctx context.Context, target string, isURI, autocommit bool) (Status, error)
	// Execute runs one statement.
	Execute(ctx context.Context, statement string, params any) (Status, error)
	// ExecuteMany runs statement once per parameter set.
	ExecuteMany(ctx context.Context, statement string, sets []any) (Status, error)
	// ExecuteScript runs every statement of the script file at path.
	ExecuteScript(ctx context.Context, path string) (Status, error)
	// FetchOne returns the first row or nil.
	FetchOne(ctx context.Context, statement string, params any) (Row, error)
	// FetchMany returns at most size rows.
	FetchMany(ctx context.Context, statement string, size int, params any) ([]Row, error)
	// FetchAll returns every row.
	FetchAll(ctx context.Context, statement string, params any) ([]Row, error)
	// LoadExtension loads a native extension into the connection.
	LoadExtension(ctx context.Context, path, entryPoint string) (Status, error)
	// Backup copies schema name to target in steps of pages, sleeping between steps.
	Backup(ctx context.Context, target string, pages int, name string, sleep time.Duration) (Status, error)
	// Dump writes a SQL text dump to path, optionally filtered by a LIKE pattern.
	Dump(ctx context.Context, path, filter string) (Status, error)
	// Close releases the current database.
	Close() error
}

// Options configures the SQLite engine.
type Options struct {
	// Driver is constants.DriverMattn or constants.DriverModernc.
	Driver string
	// BusyTimeout is applied with PRAGMA busy_timeout on every connect.
	BusyTimeout time.Duration
}

// SQLite implements Engine with database/sql. A single connection is kept
// open so that extensions and pragmas stay attached to the session.
type SQLite struct {
	driver      string
	busyTimeout time.Duration

	mu         sync.RWMutex
	db         *sql.DB
	target     string
	autocommit bool
}

// New validates options and returns a disconnected engine.
func New(opts Options) (*SQLite, error) {
	driver := strings.TrimSpace(opts.Driver)
	if driver == "" {
		driver = constants.DriverMattn
	}
	switch driver {
	case constants.DriverMattn, constants.DriverModernc:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver: %s", driver)
	}
	return &SQLite{driver: driver, busyTimeout: opts.BusyTimeout, autocommit: true}, nil
}

// Driver returns the database/sql driver name in use.
func (s *SQLite) Driver() string {
	return s.driver
}

// Connect opens target and swaps it in. In-flight operations on the
// previous database finish first.
func (s *SQLite) Connect(ctx context.Context, target string, isURI, autocommit bool) (Status, error) {
	if strings.TrimSpace(target) == "" {
		return Status{}, errors.New("database path is empty")
	}
	dsn, err := dataSource(target, isURI)
	if err != nil {
		return Status{}, err
	}

	db, err := s.open(ctx, dsn)
	if err != nil {
		return Status{}, err
	}

	s.mu.Lock()
	previous := s.db
	s.db = db
	s.target = target
	s.autocommit = autocommit
	s.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return Status{OK: true, Path: target}, nil
}

func (s *SQLite) open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(s.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if s.busyTimeout > 0 {
		pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds())
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Ping reports whether a database is connected and reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.with(func(db *sql.DB, _ bool) error {
		return db.PingContext(ctx)
	})
}

// Close releases the current database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.target = ""
	return err
}

// with runs fn against the current database while holding the read lock.
func (s *SQLite) with(fn func(db *sql.DB, autocommit bool) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotConnected
	}
	return fn(s.db, s.autocommit)
}

// dataSource builds a file: URI. Plain paths are escaped so that '?' and '#'
// stay part of the file name.
func dataSource(target string, isURI bool) (string, error) {
	if isURI {
		if !strings.HasPrefix(target, "file:") {
			return "", fmt.Errorf("uri target must start with file: (got %q)", target)
		}
		return target, nil
	}
	if target == ":memory:" {
		return target, nil
	}
	return "file:" + escapePath(target), nil
}

func escapePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '%':
			b.WriteString("%25")
		case '?':
			b.WriteString("%3f")
		case '#':
			b.WriteString("%23")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
