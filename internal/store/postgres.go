package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier is the subset of pgxpool.Pool used by PostgresLog.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLog stores sheet rows as text arrays ordered by a serial id.
type PostgresLog struct {
	db   Querier
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates the database at databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, db, goose.DialectPostgres, "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresLog{db: pool, pool: pool}, nil
}

// NewPostgresLog wraps an already migrated connection.
func NewPostgresLog(db Querier) *PostgresLog {
	return &PostgresLog{db: db}
}

func (p *PostgresLog) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresLog) AppendRow(ctx context.Context, cells []string) error {
	query, args, err := psql.Insert(rowsTable).Columns("cells").Values(cells).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert row: %w", err)
	}
	return nil
}

func (p *PostgresLog) ReadAllRows(ctx context.Context) ([][]string, error) {
	query, args, err := psql.Select("cells").From(rowsTable).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (p *PostgresLog) DeleteRowAt(ctx context.Context, index int) error {
	if index < 1 {
		return ErrRowNotFound
	}
	query, args, err := psql.Delete(rowsTable).
		Where("id = (SELECT id FROM "+rowsTable+" ORDER BY id LIMIT 1 OFFSET ?)", index-1).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete row %d: %w", index, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}
