package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Execute runs one statement. With autocommit off the statement runs in its
// own transaction that commits on success.
func (s *SQLite) Execute(ctx context.Context, statement string, params any) (Status, error) {
	args, err := BindArgs(params)
	if err != nil {
		return Status{}, err
	}
	var status Status
	err = s.write(ctx, func(ex execer) error {
		res, err := ex.ExecContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		status = resultStatus(res)
		return nil
	})
	return status, err
}

// ExecuteMany runs statement for each parameter set. With autocommit off all
// sets share one transaction.
func (s *SQLite) ExecuteMany(ctx context.Context, statement string, sets []any) (Status, error) {
	bound := make([][]any, 0, len(sets))
	for i, set := range sets {
		args, err := BindArgs(set)
		if err != nil {
			return Status{}, fmt.Errorf("parameter set %d: %w", i+1, err)
		}
		bound = append(bound, args)
	}

	status := Status{OK: true}
	err := s.write(ctx, func(ex execer) error {
		for i, args := range bound {
			res, err := ex.ExecContext(ctx, statement, args...)
			if err != nil {
				return fmt.Errorf("parameter set %d: %w", i+1, err)
			}
			if affected, err := res.RowsAffected(); err == nil {
				status.RowsAffected += affected
			}
			if id, err := res.LastInsertId(); err == nil {
				status.LastInsertID = id
			}
		}
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	status.Statements = len(bound)
	return status, nil
}

// ExecuteScript reads path and executes every statement it contains.
func (s *SQLite) ExecuteScript(ctx context.Context, path string) (Status, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return Status{}, fmt.Errorf("read script: %w", err)
	}
	var status Status
	err = s.write(ctx, func(ex execer) error {
		res, err := ex.ExecContext(ctx, string(script))
		if err != nil {
			return err
		}
		status = resultStatus(res)
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	status.Path = path
	return status, nil
}

// FetchOne returns the first row, or nil when the statement yields none.
func (s *SQLite) FetchOne(ctx context.Context, statement string, params any) (Row, error) {
	rows, err := s.query(ctx, statement, params, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FetchMany returns at most size rows.
func (s *SQLite) FetchMany(ctx context.Context, statement string, size int, params any) ([]Row, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be positive, got %d", size)
	}
	return s.query(ctx, statement, params, size)
}

// FetchAll returns every row.
func (s *SQLite) FetchAll(ctx context.Context, statement string, params any) ([]Row, error) {
	return s.query(ctx, statement, params, 0)
}

func (s *SQLite) query(ctx context.Context, statement string, params any, limit int) ([]Row, error) {
	args, err := BindArgs(params)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = s.with(func(db *sql.DB, _ bool) error {
		rows, err := db.QueryContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRows(rows, limit)
		return err
	})
	return out, err
}

func (s *SQLite) write(ctx context.Context, fn func(ex execer) error) error {
	return s.with(func(db *sql.DB, autocommit bool) error {
		if autocommit {
			return fn(db)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0)
	for (limit <= 0 || len(out) < limit) && rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func resultStatus(res sql.Result) Status {
	status := Status{OK: true}
	if affected, err := res.RowsAffected(); err == nil {
		status.RowsAffected = affected
	}
	if id, err := res.LastInsertId(); err == nil {
		status.LastInsertID = id
	}
	return status
}
