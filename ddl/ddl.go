// Package ddl renders schema DDL: CREATE TABLE scripts and the
// constraint clauses defined by the constraint package. Rendering is
// pure text generation from table metadata; no statement touches live
// data. Literal values are inlined with dialect quoting because DDL
// cannot carry bound parameters.
package ddl

import (
	"fmt"
	"strings"

	"github.com/quern-db/quern/constraint"
	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

// Editor renders DDL for one dialect. It implements
// constraint.SchemaEditor.
type Editor struct {
	d *dialect.Dialect
}

func NewEditor(d *dialect.Dialect) *Editor {
	return &Editor{d: d}
}

func (e *Editor) Dialect() *dialect.Dialect { return e.d }

// CheckSQL renders the inline CHECK table clause.
func (e *Editor) CheckSQL(name, predicate string) string {
	return "CONSTRAINT " + e.d.QuoteName(name) + " CHECK (" + predicate + ")"
}

// CreateCheckSQL renders the ALTER TABLE statement adding a CHECK
// constraint.
func (e *Editor) CreateCheckSQL(t *schema.Table, name, predicate string) string {
	return "ALTER TABLE " + e.d.QuoteName(t.DBTable) + " ADD " + e.CheckSQL(name, predicate)
}

// DeleteCheckSQL renders the statement dropping a CHECK constraint.
func (e *Editor) DeleteCheckSQL(t *schema.Table, name string) string {
	drop := " DROP CONSTRAINT "
	if e.d.Name == "mysql" {
		drop = " DROP CHECK "
	}
	return "ALTER TABLE " + e.d.QuoteName(t.DBTable) + drop + e.d.QuoteName(name)
}

// UniqueSQL renders the inline UNIQUE table clause. Constraints that
// need a separate CREATE UNIQUE INDEX statement return "".
func (e *Editor) UniqueSQL(t *schema.Table, u *constraint.Unique) (string, error) {
	if err := e.supports(u); err != nil {
		return "", err
	}
	if uniqueNeedsIndex(u) {
		return "", nil
	}
	cols, err := e.fieldColumns(t, u.Fields())
	if err != nil {
		return "", err
	}
	return "CONSTRAINT " + e.d.QuoteName(u.ConstraintName()) +
		" UNIQUE (" + strings.Join(cols, ", ") + ")" + deferrableSQL(u.Deferrable()), nil
}

// CreateUniqueSQL renders the statement adding the constraint to an
// existing table. Conditions, covering columns, operator classes, and
// expressions are realized as a unique index; sqlite always gets an
// index since it cannot ALTER TABLE ADD CONSTRAINT.
func (e *Editor) CreateUniqueSQL(t *schema.Table, u *constraint.Unique) (string, error) {
	if err := e.supports(u); err != nil {
		return "", err
	}
	table := e.d.QuoteName(t.DBTable)
	name := e.d.QuoteName(u.ConstraintName())

	if !uniqueNeedsIndex(u) && e.d.Name != "sqlite" {
		cols, err := e.fieldColumns(t, u.Fields())
		if err != nil {
			return "", err
		}
		return "ALTER TABLE " + table + " ADD CONSTRAINT " + name +
			" UNIQUE (" + strings.Join(cols, ", ") + ")" + deferrableSQL(u.Deferrable()), nil
	}

	var cols []string
	if exprs := u.Expressions(); len(exprs) > 0 {
		for _, ex := range exprs {
			sql, err := e.expressionSQL(t, ex)
			if err != nil {
				return "", err
			}
			cols = append(cols, sql)
		}
	} else {
		var err error
		cols, err = e.fieldColumns(t, u.Fields())
		if err != nil {
			return "", err
		}
		for i, oc := range u.Opclasses() {
			if oc != "" {
				cols[i] += " " + oc
			}
		}
	}

	stmt := "CREATE UNIQUE INDEX " + name + " ON " + table + " (" + strings.Join(cols, ", ") + ")"
	if include := u.Include(); len(include) > 0 {
		incCols, err := e.fieldColumns(t, include)
		if err != nil {
			return "", err
		}
		stmt += " INCLUDE (" + strings.Join(incCols, ", ") + ")"
	}
	if cond := u.Condition(); cond != nil {
		condSQL, err := e.conditionSQL(t, cond)
		if err != nil {
			return "", err
		}
		stmt += " WHERE " + condSQL
	}
	return stmt, nil
}

// DeleteUniqueSQL renders the statement dropping the constraint or
// its backing index.
func (e *Editor) DeleteUniqueSQL(t *schema.Table, u *constraint.Unique) (string, error) {
	table := e.d.QuoteName(t.DBTable)
	name := e.d.QuoteName(u.ConstraintName())
	if uniqueNeedsIndex(u) || e.d.Name == "sqlite" {
		if e.d.Name == "mysql" {
			return "DROP INDEX " + name + " ON " + table, nil
		}
		return "DROP INDEX " + name, nil
	}
	if e.d.Name == "mysql" {
		return "ALTER TABLE " + table + " DROP INDEX " + name, nil
	}
	return "ALTER TABLE " + table + " DROP CONSTRAINT " + name, nil
}

// CreateTableSQL renders the CREATE TABLE statement followed by any
// unique-index statements that cannot live inline.
func (e *Editor) CreateTableSQL(t *schema.Table) ([]string, error) {
	var defs []string
	for i := range t.Fields {
		col, err := e.columnSQL(&t.Fields[i])
		if err != nil {
			return nil, err
		}
		defs = append(defs, col)
	}
	var extra []string
	for _, c := range t.Constraints {
		switch c := c.(type) {
		case *constraint.Check:
			clause, err := c.ConstraintSQL(e, t)
			if err != nil {
				return nil, err
			}
			defs = append(defs, clause)
		case *constraint.Unique:
			clause, err := e.UniqueSQL(t, c)
			if err != nil {
				return nil, err
			}
			if clause != "" {
				defs = append(defs, clause)
				continue
			}
			stmt, err := e.CreateUniqueSQL(t, c)
			if err != nil {
				return nil, err
			}
			extra = append(extra, stmt)
		default:
			return nil, fmt.Errorf("ddl: table %q: unsupported constraint type %T", t.Name, c)
		}
	}
	stmt := "CREATE TABLE " + e.d.QuoteName(t.DBTable) +
		" (\n    " + strings.Join(defs, ",\n    ") + "\n)"
	return append([]string{stmt}, extra...), nil
}

func (e *Editor) columnSQL(f *schema.Field) (string, error) {
	typ, err := e.d.ColumnType(f.Type, f.MaxLength)
	if err != nil {
		return "", err
	}
	quoted := e.d.QuoteName(f.Column)
	parts := []string{quoted, typ}
	if f.Default != nil {
		lit, err := e.d.QuoteValue(f.Default)
		if err != nil {
			return "", fmt.Errorf("ddl: column %q default: %w", f.Column, err)
		}
		parts = append(parts, "DEFAULT "+lit)
	}
	if f.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	} else if !f.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if check := e.d.ColumnCheck(f.Type, quoted); check != "" {
		parts = append(parts, "CHECK ("+check+")")
	}
	return strings.Join(parts, " "), nil
}

// supports rejects constraint shapes the dialect cannot express,
// instead of silently dropping them from the schema.
func (e *Editor) supports(u *constraint.Unique) error {
	f := e.d.Features
	switch {
	case u.Deferrable() != constraint.NotDeferrable && !f.SupportsDeferrableUniqueConstraints:
		return fmt.Errorf("ddl: dialect %s does not support deferrable unique constraints", e.d.Name)
	case u.Condition() != nil && !f.SupportsPartialIndexes:
		return fmt.Errorf("ddl: dialect %s does not support partial unique constraints", e.d.Name)
	case len(u.Include()) > 0 && !f.SupportsCoveringIndexes:
		return fmt.Errorf("ddl: dialect %s does not support covering unique constraints", e.d.Name)
	case len(u.Expressions()) > 0 && !f.SupportsExpressionIndexes:
		return fmt.Errorf("ddl: dialect %s does not support unique constraints over expressions", e.d.Name)
	}
	return nil
}

func uniqueNeedsIndex(u *constraint.Unique) bool {
	return u.Condition() != nil || len(u.Include()) > 0 ||
		len(u.Opclasses()) > 0 || len(u.Expressions()) > 0
}

func deferrableSQL(d constraint.Deferrable) string {
	switch d {
	case constraint.DeferrableDeferred:
		return " DEFERRABLE INITIALLY DEFERRED"
	case constraint.DeferrableImmediate:
		return " DEFERRABLE INITIALLY IMMEDIATE"
	}
	return ""
}

func (e *Editor) fieldColumns(t *schema.Table, names []string) ([]string, error) {
	cols := make([]string, len(names))
	for i, n := range names {
		f := t.Field(n)
		if f == nil {
			return nil, fmt.Errorf("ddl: table %q has no field %q", t.Name, n)
		}
		cols[i] = e.d.QuoteName(f.Column)
	}
	return cols, nil
}

func (e *Editor) expressionSQL(t *schema.Table, ex expr.Expr) (string, error) {
	resolved, err := expr.Resolve(ex, &expr.ResolveContext{Table: t})
	if err != nil {
		return "", err
	}
	sql, params, err := expr.NewCompiler(e.d).Compile(resolved)
	if err != nil {
		return "", err
	}
	sql, err = e.d.Inline(sql, params)
	if err != nil {
		return "", err
	}
	return "(" + sql + ")", nil
}

func (e *Editor) conditionSQL(t *schema.Table, cond *expr.Q) (string, error) {
	resolved, err := expr.Resolve(cond, &expr.ResolveContext{Table: t})
	if err != nil {
		return "", err
	}
	sql, params, ok, err := expr.NewCompiler(e.d).CompileCondition(resolved.(*expr.Q))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("ddl: partial-index condition is empty")
	}
	return e.d.Inline(sql, params)
}
