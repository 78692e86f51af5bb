// Package constraint implements table constraints: CHECK conditions
// and uniqueness over fields or expressions. Each constraint renders
// its DDL through a SchemaEditor and validates live data through a
// Conn, enforcing the same logical condition at table creation and at
// save time.
package constraint

import (
	"context"
	"errors"

	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/schema"
)

// Deferrable controls when the database enforces a unique constraint
// within a transaction.
type Deferrable int

const (
	NotDeferrable Deferrable = iota
	DeferrableDeferred
	DeferrableImmediate
)

// SchemaEditor renders constraint DDL for one dialect. The ddl
// package provides the standard implementation; tests may substitute
// their own.
type SchemaEditor interface {
	Dialect() *dialect.Dialect

	// CheckSQL renders the inline "CONSTRAINT name CHECK (...)"
	// table clause; CreateCheckSQL and DeleteCheckSQL the ALTER
	// TABLE statements. The predicate arrives fully inlined.
	CheckSQL(name, predicate string) string
	CreateCheckSQL(t *schema.Table, name, predicate string) string
	DeleteCheckSQL(t *schema.Table, name string) string

	// UniqueSQL renders the inline table clause for a unique
	// constraint; constraints that need a separate CREATE UNIQUE
	// INDEX on the dialect return "" and are emitted by
	// CreateUniqueSQL alone.
	UniqueSQL(t *schema.Table, u *Unique) (string, error)
	CreateUniqueSQL(t *schema.Table, u *Unique) (string, error)
	DeleteUniqueSQL(t *schema.Table, u *Unique) (string, error)
}

// Row is the single-row result of a validation query.
type Row interface {
	Scan(dest ...any) error
}

// Conn runs validation queries. Backend adapters satisfy it for
// database/sql and pgx pools, normalizing their no-rows sentinel to
// database/sql.ErrNoRows.
type Conn interface {
	Dialect() *dialect.Dialect
	QueryRow(ctx context.Context, query string, args ...any) Row
}

// Validator is the live-data side of a constraint.
type Validator interface {
	schema.Constraint
	Validate(ctx context.Context, conn Conn, t *schema.Table, values schema.Row, opts ...ValidateOption) error
}

type validateConfig struct {
	exclude   map[string]bool
	persisted bool
}

// ValidateOption adjusts a single validation call.
type ValidateOption func(*validateConfig)

// Exclude skips constraints referencing any of the named fields, for
// partial-instance validation.
func Exclude(fields ...string) ValidateOption {
	return func(c *validateConfig) {
		for _, f := range fields {
			c.exclude[f] = true
		}
	}
}

// Persisted marks the values as an already-stored row, so uniqueness
// checks exclude the row itself by primary key.
func Persisted() ValidateOption {
	return func(c *validateConfig) { c.persisted = true }
}

func newValidateConfig(opts []ValidateOption) *validateConfig {
	c := &validateConfig{exclude: make(map[string]bool)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *validateConfig) excludeList() []string {
	out := make([]string, 0, len(c.exclude))
	for f := range c.exclude {
		out = append(out, f)
	}
	return out
}

// ValidateAll runs every validating constraint of the table against
// the given values, collecting violations into one error bag.
// Non-violation errors (driver failures, bad definitions) abort the
// run and propagate unmodified.
func ValidateAll(ctx context.Context, conn Conn, t *schema.Table, values schema.Row, opts ...ValidateOption) error {
	bag := newValidationError()
	for _, c := range t.Constraints {
		v, ok := c.(Validator)
		if !ok {
			continue
		}
		err := v.Validate(ctx, conn, t, values, opts...)
		if err == nil {
			continue
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			bag.merge(ve)
			continue
		}
		return err
	}
	if len(bag.Errors) > 0 {
		return bag
	}
	return nil
}
