package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

// SQLiteLog stores sheet rows as JSON arrays in a local SQLite file.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite opens and migrates the database at path. ":memory:" is allowed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) AppendRow(ctx context.Context, cells []string) error {
	if cells == nil {
		cells = []string{}
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("encode cells: %w", err)
	}
	query, args, err := sq.Insert(rowsTable).Columns("cells").Values(string(data)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (l *SQLiteLog) ReadAllRows(ctx context.Context) ([][]string, error) {
	query, args, err := sq.Select("cells").From(rowsTable).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode cells: %w", err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (l *SQLiteLog) DeleteRowAt(ctx context.Context, index int) error {
	if index < 1 {
		return ErrRowNotFound
	}
	query, args, err := sq.Delete(rowsTable).
		Where("id = (SELECT id FROM "+rowsTable+" ORDER BY id LIMIT 1 OFFSET ?)", index-1).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete row %d: %w", index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRowNotFound
	}
	return nil
}
