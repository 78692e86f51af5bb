// Package stdsql adapts database/sql handles to the validation
// interfaces, shared by the sqlite and mysql backends.
package stdsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/quern-db/quern/constraint"
	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/schema"
)

// Conn adapts *sql.DB to constraint.Conn. database/sql already
// reports a missing row as sql.ErrNoRows, so no translation happens.
type Conn struct {
	db *sql.DB
	d  *dialect.Dialect
}

func NewConn(db *sql.DB, d *dialect.Dialect) *Conn {
	return &Conn{db: db, d: d}
}

func (c *Conn) Dialect() *dialect.Dialect { return c.d }

func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) constraint.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// QueryRows loads every row of the table as field-keyed values, for
// offline validation runs.
func QueryRows(ctx context.Context, db *sql.DB, d *dialect.Dialect, t *schema.Table) ([]schema.Row, error) {
	cols := make([]string, len(t.Fields))
	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		cols[i] = d.QuoteName(t.Fields[i].Column)
		names[i] = t.Fields[i].Name
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + d.QuoteName(t.DBTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stdsql: load %s: %w", t.DBTable, err)
	}
	defer rows.Close()

	var out []schema.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("stdsql: scan %s: %w", t.DBTable, err)
		}
		row := make(schema.Row, len(names))
		for i, name := range names {
			row[name] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stdsql: rows %s: %w", t.DBTable, err)
	}
	return out, nil
}

// normalize widens driver byte slices to string so text values
// compare naturally in validation conditions.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
