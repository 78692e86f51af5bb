// Package postgres adapts a pgx/v5 pool to constraint validation and
// registers extension types on new connections.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/quern-db/quern/constraint"
	"github.com/quern-db/quern/dialect"
)

// Dialect is the dialect served by this backend.
var Dialect = dialect.PostgreSQL

// NewPool connects to dsn with every named extension type registered
// on each new connection. alias identifies the database in the shared
// type registry; types lists pg_type names (citext, hstore, ...) the
// application needs codecs for.
func NewPool(ctx context.Context, dsn, alias string, reg *TypeRegistry, types ...string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for _, name := range types {
			if err := reg.Register(ctx, alias, conn, name); err != nil {
				return err
			}
		}
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return pool, nil
}

// OpenDB returns a database/sql handle over the pgx driver, for
// callers that read rows through database/sql instead of the pool.
func OpenDB(dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	return stdlib.OpenDB(*cfg), nil
}

// Conn adapts a pool to constraint.Conn, normalizing pgx.ErrNoRows to
// the database/sql sentinel the constraint package tests against.
type Conn struct {
	pool *pgxpool.Pool
}

func NewConn(pool *pgxpool.Pool) *Conn {
	return &Conn{pool: pool}
}

func (c *Conn) Dialect() *dialect.Dialect { return Dialect }

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) constraint.Row {
	return row{c.pool.QueryRow(ctx, query, args...)}
}

type row struct {
	r pgx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.r.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	return err
}
