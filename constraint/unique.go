package constraint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

// Unique enforces uniqueness over a field list or an expression
// list, with an optional partial condition, deferred enforcement,
// covering columns, and per-column operator classes.
type Unique struct {
	name        string
	fields      []string
	expressions []expr.Expr
	condition   *expr.Q
	deferrable  Deferrable
	include     []string
	opclasses   []string
	message     string
}

// UniqueOption configures a unique constraint at construction.
type UniqueOption func(*Unique)

// Fields constrains the named fields to be unique together.
func Fields(names ...string) UniqueOption {
	return func(u *Unique) { u.fields = names }
}

// Expressions constrains the expression values to be unique together.
func Expressions(exprs ...expr.Expr) UniqueOption {
	return func(u *Unique) { u.expressions = exprs }
}

// Condition limits the constraint to rows matching cond (a partial
// unique index).
func Condition(cond *expr.Q) UniqueOption {
	return func(u *Unique) { u.condition = cond }
}

// WithDeferrable defers enforcement to transaction commit.
func WithDeferrable(d Deferrable) UniqueOption {
	return func(u *Unique) { u.deferrable = d }
}

// Include adds non-key columns to the backing index.
func Include(fields ...string) UniqueOption {
	return func(u *Unique) { u.include = fields }
}

// Opclasses sets one index operator class per constrained field.
func Opclasses(classes ...string) UniqueOption {
	return func(u *Unique) { u.opclasses = classes }
}

// UniqueMessage overrides the violation message reported by Validate.
func UniqueMessage(msg string) UniqueOption {
	return func(u *Unique) { u.message = msg }
}

// NewUnique builds a unique constraint. Invalid combinations are
// programming errors and panic at construction, never at SQL
// emission.
func NewUnique(name string, opts ...UniqueOption) *Unique {
	if name == "" {
		panic("constraint: a unique constraint must be named")
	}
	u := &Unique{name: name}
	for _, o := range opts {
		o(u)
	}
	if len(u.fields) == 0 && len(u.expressions) == 0 {
		panic("constraint: at least one field or expression is required to define a unique constraint")
	}
	if len(u.fields) > 0 && len(u.expressions) > 0 {
		panic("constraint: fields and expressions are mutually exclusive")
	}
	if u.deferrable != NotDeferrable {
		switch {
		case u.condition != nil:
			panic("constraint: a unique constraint with a condition cannot be deferred")
		case len(u.include) > 0:
			panic("constraint: a unique constraint with included columns cannot be deferred")
		case len(u.opclasses) > 0:
			panic("constraint: a unique constraint with operator classes cannot be deferred")
		case len(u.expressions) > 0:
			panic("constraint: a unique constraint over expressions cannot be deferred")
		}
	}
	if len(u.opclasses) > 0 && len(u.expressions) > 0 {
		panic("constraint: operator classes cannot be combined with expressions")
	}
	if len(u.opclasses) > 0 && len(u.opclasses) != len(u.fields) {
		panic("constraint: fields and operator classes must have the same number of elements")
	}
	return u
}

// ConstraintName implements schema.Constraint.
func (u *Unique) ConstraintName() string { return u.name }

// Fields returns the constrained field names.
func (u *Unique) Fields() []string { return u.fields }

// Expressions returns the constrained expressions.
func (u *Unique) Expressions() []expr.Expr { return u.expressions }

// Condition returns the partial-index condition, or nil.
func (u *Unique) Condition() *expr.Q { return u.condition }

// Deferrable returns the enforcement mode.
func (u *Unique) Deferrable() Deferrable { return u.deferrable }

// Include returns the covering column field names.
func (u *Unique) Include() []string { return u.include }

// Opclasses returns the operator classes, one per field.
func (u *Unique) Opclasses() []string { return u.opclasses }

// ConstraintSQL renders the inline table clause, or "" when the
// constraint needs its own CREATE UNIQUE INDEX statement.
func (u *Unique) ConstraintSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	return ed.UniqueSQL(t, u)
}

// CreateSQL renders the statement adding the constraint to an
// existing table.
func (u *Unique) CreateSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	return ed.CreateUniqueSQL(t, u)
}

// RemoveSQL renders the statement dropping the constraint.
func (u *Unique) RemoveSQL(ed SchemaEditor, t *schema.Table) (string, error) {
	return ed.DeleteUniqueSQL(t, u)
}

// Validate checks the values against stored rows with a filtered
// existence query. NULL-valued unique fields never violate (NULL !=
// NULL in SQL), excluded fields skip the whole constraint, and a
// persisted row is excluded from the check by primary key. Partial
// constraints are enforced by the database index alone and skipped
// here; the pre-check would have to replicate the predicate the DDL
// already encodes.
func (u *Unique) Validate(ctx context.Context, conn Conn, t *schema.Table, values schema.Row, opts ...ValidateOption) error {
	if u.condition != nil {
		return nil
	}
	cfg := newValidateConfig(opts)
	d := conn.Dialect()
	comp := expr.NewCompiler(d)

	var conds []sq.Sqlizer
	if len(u.fields) > 0 {
		for _, name := range u.fields {
			if cfg.exclude[name] {
				return nil
			}
			f := t.Field(name)
			if f == nil {
				return fmt.Errorf("constraint %q: table %q has no field %q", u.name, t.Name, name)
			}
			v, ok := values[name]
			if !ok || v == nil {
				return nil
			}
			if s, ok := v.(string); ok && s == "" && d.Features.InterpretsEmptyStringsAsNulls {
				return nil
			}
			conds = append(conds, sq.Eq{d.QuoteName(f.Column): v})
		}
	} else {
		for _, e := range u.expressions {
			colSide, err := expr.Resolve(e, &expr.ResolveContext{Table: t})
			if err != nil {
				return err
			}
			valSide, err := expr.ResolveValues(e, t, values, cfg.excludeList()...)
			if err != nil {
				if errors.Is(err, expr.ErrFieldOmitted) {
					return nil
				}
				return err
			}
			colSQL, colParams, err := comp.Compile(colSide)
			if err != nil {
				return err
			}
			valSQL, valParams, err := comp.Compile(valSide)
			if err != nil {
				return err
			}
			conds = append(conds, sq.Expr(colSQL+" = "+valSQL, append(colParams, valParams...)...))
		}
	}

	if cfg.persisted {
		pk := t.PrimaryKey()
		if pkv, ok := values[pk.Name]; ok && pkv != nil {
			conds = append(conds, sq.Expr(d.QuoteName(pk.Column)+" <> ?", pkv))
		}
	}

	query, params, err := sq.Select("1").
		From(d.QuoteName(t.DBTable)).
		Where(sq.And(conds)).
		Suffix(d.LimitOne()).
		ToSql()
	if err != nil {
		return err
	}
	query, err = d.Rebind(query)
	if err != nil {
		return err
	}
	var one int
	switch err := conn.QueryRow(ctx, query, params...).Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	}
	return u.violation(t)
}

func (u *Unique) violation(t *schema.Table) *ValidationError {
	if u.message != "" {
		return violation(NonFieldErrors, u.message)
	}
	if len(u.expressions) > 0 {
		return violation(NonFieldErrors, fmt.Sprintf("Constraint %q is violated.", u.name))
	}
	msg := fmt.Sprintf("%s with this %s already exists.", t.Name, strings.Join(u.fields, " and "))
	if len(u.fields) == 1 {
		return violation(u.fields[0], msg)
	}
	return violation(NonFieldErrors, msg)
}
