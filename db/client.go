package db

import (
	"context"
	"database/sql"

	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

// QueryParam represents a parameter for database queries
type QueryParam interface{}

func (d *DB) logQuery(kind string, sql string, params []QueryParam) {
	if !d.logQueries {
		return
	}
	log.Debug().
		Str("kind", kind).
		Str("sql", sql).
		Interface("params", params).
		Msg("db query")
}

func toArgs(params []QueryParam) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		args[i] = p
	}
	return args
}

// Select runs a SELECT query returning multiple rows
// The scanner function is called for each row to map results
func Select[T any](ctx context.Context, d *DB, query string, params []QueryParam, scanner func(*sql.Rows) (T, error)) ([]T, error) {
	d.logQuery("select", query, params)

	rows, err := d.conn.QueryContext(ctx, query, toArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scanner(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// SelectOne runs a SELECT query returning a single row (or nil if not found)
func SelectOne[T any](ctx context.Context, d *DB, query string, params []QueryParam, scanner func(*sql.Row) (T, error)) (*T, error) {
	d.logQuery("get", query, params)

	row := d.conn.QueryRowContext(ctx, query, toArgs(params)...)
	result, err := scanner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Run executes an INSERT/UPDATE/DELETE query
func (d *DB) Run(ctx context.Context, query string, params ...QueryParam) (sql.Result, error) {
	d.logQuery("run", query, params)
	return d.conn.ExecContext(ctx, query, toArgs(params)...)
}
