package engine

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
)

type schemaObject struct {
	name string
	kind string
	sql  string
}

// Dump writes a SQL text dump of the current database to path. A non-empty
// filter restricts the dumped objects to names matching it with LIKE.
func (s *SQLite) Dump(ctx context.Context, path, filter string) (Status, error) {
	if strings.TrimSpace(path) == "" {
		return Status{}, fmt.Errorf("dump path is empty")
	}
	var statements []string
	err := s.with(func(db *sql.DB, _ bool) error {
		var err error
		statements, err = dumpStatements(ctx, db, filter)
		return err
	})
	if err != nil {
		return Status{}, err
	}

	if err := writeLines(path, statements); err != nil {
		return Status{}, err
	}
	return Status{OK: true, Path: path, Statements: len(statements)}, nil
}

func dumpStatements(ctx context.Context, db *sql.DB, filter string) ([]string, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	out := []string{"BEGIN TRANSACTION;"}

	tables, err := schemaObjects(ctx, conn, "type = 'table'", filter)
	if err != nil {
		return nil, err
	}
	writableSchema := false
	for _, table := range tables {
		switch {
		case table.name == "sqlite_sequence":
			out = append(out, `DELETE FROM "sqlite_sequence";`)
		case table.name == "sqlite_stat1":
			out = append(out, `ANALYZE "sqlite_master";`)
		case strings.HasPrefix(table.name, "sqlite_"):
			continue
		case strings.HasPrefix(strings.ToUpper(table.sql), "CREATE VIRTUAL TABLE"):
			if !writableSchema {
				out = append(out, "PRAGMA writable_schema=ON;")
				writableSchema = true
			}
			name := strings.ReplaceAll(table.name, "'", "''")
			out = append(out, fmt.Sprintf(
				"INSERT INTO sqlite_master(type,name,tbl_name,rootpage,sql)VALUES('table','%s','%s',0,'%s');",
				name, name, strings.ReplaceAll(table.sql, "'", "''"),
			))
			continue
		default:
			out = append(out, table.sql+";")
		}

		inserts, err := tableInserts(ctx, conn, table.name)
		if err != nil {
			return nil, err
		}
		out = append(out, inserts...)
	}

	others, err := schemaObjects(ctx, conn, "type IN ('index', 'trigger', 'view')", filter)
	if err != nil {
		return nil, err
	}
	for _, obj := range others {
		out = append(out, obj.sql+";")
	}

	if writableSchema {
		out = append(out, "PRAGMA writable_schema=OFF;")
	}
	out = append(out, "COMMIT;")
	return out, nil
}

func schemaObjects(ctx context.Context, conn *sql.Conn, where, filter string) ([]schemaObject, error) {
	query := "SELECT name, type, sql FROM sqlite_master WHERE sql NOT NULL AND " + where
	var args []any
	if filter != "" {
		query += " AND name LIKE ?"
		args = append(args, filter)
	}
	if strings.Contains(where, "'table'") {
		query += " ORDER BY name"
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var out []schemaObject
	for rows.Next() {
		var obj schemaObject
		if err := rows.Scan(&obj.name, &obj.kind, &obj.sql); err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

func tableInserts(ctx context.Context, conn *sql.Conn, table string) ([]string, error) {
	ident := quoteIdent(table)
	columns, err := tableColumns(ctx, conn, ident)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = "'||quote(" + quoteIdent(column) + ")||'"
	}
	literal := strings.ReplaceAll(ident, "'", "''")
	query := fmt.Sprintf("SELECT 'INSERT INTO %s VALUES(%s)' FROM %s", literal, strings.Join(parts, ","), ident)

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dump table %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, err
		}
		out = append(out, stmt+";")
	}
	return out, rows.Err()
}

func tableColumns(ctx context.Context, conn *sql.Conn, ident string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "PRAGMA table_info("+ident+")")
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", ident, err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []string
	for rows.Next() {
		values := make([]any, len(columnNames))
		targets := make([]any, len(columnNames))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		for i, col := range columnNames {
			if col == "name" {
				out = append(out, asString(values[i]))
			}
		}
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func writeLines(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			_ = file.Close()
			return fmt.Errorf("write dump: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write dump: %w", err)
	}
	return file.Close()
}
