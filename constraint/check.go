package constraint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

// Check is a named CHECK constraint over one boolean condition.
type Check struct {
	name      string
	condition *expr.Q
	message   string
}

// CheckOption configures a check constraint at construction.
type CheckOption func(*Check)

// CheckMessage overrides the violation message reported by Validate.
func CheckMessage(msg string) CheckOption {
	return func(c *Check) { c.message = msg }
}

// NewCheck builds a CHECK constraint. A missing name or condition is
// a programming error and panics.
func NewCheck(name string, condition *expr.Q, opts ...CheckOption) *Check {
	if name == "" {
		panic("constraint: a check constraint must be named")
	}
	if condition == nil {
		panic("constraint: a check constraint requires a condition")
	}
	c := &Check{name: name, condition: condition}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ConstraintName implements schema.Constraint.
func (c *Check) ConstraintName() string { return c.name }

func (c *Check) violationMessage() string {
	if c.message != "" {
		return c.message
	}
	return fmt.Sprintf("Constraint %q is violated.", c.name)
}

// predicate compiles the condition against the table and inlines the
// parameters, since constraint DDL cannot carry bound values.
func (c *Check) predicate(d *dialect.Dialect, t *schema.Table) (string, error) {
	resolved, err := expr.Resolve(c.condition, &expr.ResolveContext{Table: t})
	if err != nil {
		return "", err
	}
	condSQL, params, ok, err := expr.NewCompiler(d).CompileCondition(resolved.(*expr.Q))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("constraint %q: condition is empty", c.name)
	}
	return d.Inline(condSQL, params)
}

// ConstraintSQL renders the inline table clause.
func (c *Check) ConstraintSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	pred, err := c.predicate(ed.Dialect(), t)
	if err != nil {
		return "", err
	}
	return ed.CheckSQL(c.name, pred), nil
}

// CreateSQL renders the ALTER TABLE statement adding the constraint.
func (c *Check) CreateSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	pred, err := c.predicate(ed.Dialect(), t)
	if err != nil {
		return "", err
	}
	return ed.CreateCheckSQL(t, c.name, pred), nil
}

// RemoveSQL renders the ALTER TABLE statement dropping the constraint.
func (c *Check) RemoveSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	return ed.DeleteCheckSQL(t, c.name), nil
}

// Validate evaluates the condition against in-memory field values
// with a single-row SELECT, no stored row involved. Constraints
// referencing an excluded or absent field are skipped.
func (c *Check) Validate(ctx context.Context, conn Conn, t *schema.Table, values schema.Row, opts ...ValidateOption) error {
	cfg := newValidateConfig(opts)
	resolved, err := expr.ResolveValues(c.condition, t, values, cfg.excludeList()...)
	if err != nil {
		if errors.Is(err, expr.ErrFieldOmitted) {
			return nil
		}
		return err
	}
	d := conn.Dialect()
	condSQL, params, ok, err := expr.NewCompiler(d).CompileCondition(resolved.(*expr.Q))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	query, err := d.Rebind("SELECT 1" + d.DualFrom() + " WHERE " + condSQL)
	if err != nil {
		return err
	}
	var one int
	switch err := conn.QueryRow(ctx, query, params...).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return violation(NonFieldErrors, c.violationMessage())
	case err != nil:
		return err
	}
	return nil
}
