// Package pgxutil runs native pgx calls on connections borrowed from a database/sql pool
// opened with the pgx stdlib driver.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

var ErrNilDB = errors.New("pgxutil: nil *sql.DB")

// Do borrows a connection, unwraps it to *pgx.Conn and calls fn. The connection goes back to
// the pool when fn returns.
func Do(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	if db == nil {
		return ErrNilDB
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("borrow connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // returning to the pool

	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("pgxutil: driver connection is %T, not *stdlib.Conn", driverConn)
		}
		return fn(sc.Conn())
	})
}

// Query is Do for callbacks that produce a value.
func Query[T any](ctx context.Context, db *sql.DB, fn func(*pgx.Conn) (T, error)) (T, error) {
	var out T
	err := Do(ctx, db, func(conn *pgx.Conn) error {
		var ferr error
		out, ferr = fn(conn)
		return ferr
	})
	return out, err
}

// Exec runs a statement and returns the rows it affected.
func Exec(ctx context.Context, db *sql.DB, stmt string, args ...any) (int64, error) {
	return Query(ctx, db, func(conn *pgx.Conn) (int64, error) {
		tag, err := conn.Exec(ctx, stmt, args...)
		return tag.RowsAffected(), err
	})
}

// CollectPtrs scans every row of query into a *T, matching columns to db struct tags.
func CollectPtrs[T any](ctx context.Context, conn *pgx.Conn, query string, args ...any) ([]*T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
}

// CollectOne is CollectPtrs for exactly one row. No rows yields pgx.ErrNoRows.
func CollectOne[T any](ctx context.Context, conn *pgx.Conn, query string, args ...any) (*T, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
}
