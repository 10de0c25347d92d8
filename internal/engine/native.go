package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/codex-k8s/sqlite-bridge/internal/constants"
)

// LoadExtension loads a native extension into the current connection. The
// entry point defaults to the name SQLite derives from the file name.
func (s *SQLite) LoadExtension(ctx context.Context, path, entryPoint string) (Status, error) {
	if strings.TrimSpace(path) == "" {
		return Status{}, errors.New("extension path is empty")
	}
	if s.driver != constants.DriverMattn {
		return Status{}, fmt.Errorf("loading extensions is not supported by the %s driver", s.driver)
	}
	err := s.with(func(db *sql.DB, _ bool) error {
		conn, err := db.Conn(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Raw(func(raw any) error {
			native, ok := raw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", raw)
			}
			if entryPoint != "" {
				return native.LoadExtension(path, entryPoint)
			}
			derived := DefaultEntryPoint(path)
			if err := native.LoadExtension(path, derived); err != nil {
				if fallbackErr := native.LoadExtension(path, "sqlite3_extension_init"); fallbackErr != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return Status{}, err
	}
	return Status{OK: true, Path: path}, nil
}

// DefaultEntryPoint mirrors SQLite's rule: "sqlite3_" + the lower-cased
// letters of the file name after an optional "lib" prefix, up to the first
// dot, + "_init".
func DefaultEntryPoint(path string) string {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "lib")
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	var b strings.Builder
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r | 0x20)
		}
	}
	return "sqlite3_" + b.String() + "_init"
}

// Backup copies schema name of the current database into target. The native
// driver uses the online backup API, copying pages per step (all at once when
// pages <= 0) and sleeping between steps. The pure-Go driver falls back to
// VACUUM INTO.
func (s *SQLite) Backup(ctx context.Context, target string, pages int, name string, sleep time.Duration) (Status, error) {
	if strings.TrimSpace(target) == "" {
		return Status{}, errors.New("backup target is empty")
	}
	if strings.TrimSpace(name) == "" {
		name = "main"
	}
	if pages <= 0 {
		pages = -1
	}
	if sleep < 0 {
		sleep = 0
	}

	var copied int
	err := s.with(func(db *sql.DB, _ bool) error {
		var err error
		if s.driver == constants.DriverMattn {
			copied, err = backupNative(ctx, db, target, pages, name, sleep)
		} else {
			err = backupVacuum(ctx, db, target, name)
		}
		return err
	})
	if err != nil {
		return Status{}, err
	}
	return Status{OK: true, Path: target, Pages: copied}, nil
}

func backupNative(ctx context.Context, src *sql.DB, target string, pages int, name string, sleep time.Duration) (int, error) {
	dsn, err := dataSource(target, false)
	if err != nil {
		return 0, err
	}
	dest, err := sql.Open(constants.DriverMattn, dsn)
	if err != nil {
		return 0, fmt.Errorf("open backup target: %w", err)
	}
	defer dest.Close()

	destConn, err := dest.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("open backup target: %w", err)
	}
	defer destConn.Close()

	srcConn, err := src.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer srcConn.Close()

	var total int
	err = destConn.Raw(func(destRaw any) error {
		destNative, ok := destRaw.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", destRaw)
		}
		return srcConn.Raw(func(srcRaw any) error {
			srcNative, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", srcRaw)
			}
			bk, err := destNative.Backup("main", srcNative, name)
			if err != nil {
				return fmt.Errorf("start backup: %w", err)
			}
			for {
				done, err := bk.Step(pages)
				if err != nil {
					_ = bk.Finish()
					return fmt.Errorf("backup step: %w", err)
				}
				if done {
					break
				}
				if sleep > 0 {
					select {
					case <-ctx.Done():
						_ = bk.Finish()
						return ctx.Err()
					case <-time.After(sleep):
					}
				}
			}
			total = bk.PageCount()
			return bk.Finish()
		})
	})
	return total, err
}

func backupVacuum(ctx context.Context, db *sql.DB, target, name string) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace backup target: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM "+quoteIdent(name)+" INTO ?", target); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	return nil
}
