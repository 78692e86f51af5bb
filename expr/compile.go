package expr

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/schema"
)

// Compiler turns resolved expression trees into SQL text with ?
// placeholders and a positional parameter list. The placeholder count
// always equals the parameter count, in textual order. Statement
// assemblers convert ? to the dialect's format with Dialect.Rebind.
type Compiler struct {
	Dialect *dialect.Dialect
}

func NewCompiler(d *dialect.Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile renders one expression node.
func (c *Compiler) Compile(e Expr) (string, []any, error) {
	switch n := e.(type) {
	case *Value:
		return "?", []any{n.V}, nil
	case *Column:
		return c.Dialect.QuoteName(n.Field.Column), nil, nil
	case *Ref:
		return c.Dialect.QuoteName(n.Name), nil, nil
	case *Star:
		return "*", nil, nil
	case *FieldRef:
		return "", nil, fmt.Errorf("expr: unresolved field reference %q, resolve the expression first", n.Name)
	case *Func:
		return c.fn(n)
	case *Ordering:
		sub, params, err := c.Compile(n.Expr)
		if err != nil {
			return "", nil, err
		}
		if n.Desc {
			return sub + " DESC", params, nil
		}
		return sub + " ASC", params, nil
	case *Case:
		return c.caseExpr(n)
	case *Q:
		sql, params, ok, err := c.CompileCondition(n)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, fmt.Errorf("expr: condition matches all rows and compiles to no SQL")
		}
		return sql, params, nil
	case *Aggregate:
		return c.aggregate(n)
	}
	return "", nil, fmt.Errorf("expr: cannot compile %T", e)
}

// CompileCondition renders a condition. ok is false when the
// condition matches every row and therefore contributes no SQL;
// callers drop the clause instead.
func (c *Compiler) CompileCondition(q *Q) (sql string, params []any, ok bool, err error) {
	s, err := c.condition(q)
	if err != nil || s == nil {
		return "", nil, false, err
	}
	sql, params, err = s.ToSql()
	if err != nil {
		return "", nil, false, err
	}
	return sql, params, true, nil
}

func (c *Compiler) condition(q *Q) (sq.Sqlizer, error) {
	if q == nil {
		return nil, nil
	}
	var conds []sq.Sqlizer
	for _, ch := range q.children {
		if ch.q != nil {
			sub, err := c.condition(ch.q)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				conds = append(conds, sub)
			}
			continue
		}
		leaf, err := c.lookupSqlizer(ch.lookup)
		if err != nil {
			return nil, err
		}
		conds = append(conds, leaf)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	var root sq.Sqlizer
	switch {
	case len(conds) == 1:
		root = conds[0]
	case q.connector == connOr:
		root = sq.Or(conds)
	default:
		root = sq.And(conds)
	}
	if q.negated {
		sql, params, err := root.ToSql()
		if err != nil {
			return nil, err
		}
		root = sq.Expr("NOT ("+sql+")", params...)
	}
	return root, nil
}

func (c *Compiler) lookupSqlizer(lk *lookup) (sq.Sqlizer, error) {
	if lk.lhs == nil {
		return nil, fmt.Errorf("expr: unresolved condition, resolve it first")
	}
	lhsSQL, lhsParams, err := c.Compile(lk.lhs)
	if err != nil {
		return nil, err
	}

	switch lk.op {
	case "isnull":
		want, ok := lk.rhs.(bool)
		if !ok {
			return nil, fmt.Errorf("expr: isnull lookup takes a bool, got %T", lk.rhs)
		}
		if want {
			return sq.Expr(lhsSQL+" IS NULL", lhsParams...), nil
		}
		return sq.Expr(lhsSQL+" IS NOT NULL", lhsParams...), nil

	case "in":
		vals, ok := anySlice(lk.rhs)
		if !ok {
			return nil, fmt.Errorf("expr: in lookup takes a slice, got %T", lk.rhs)
		}
		if len(vals) == 0 {
			return sq.Expr("(1 = 0)"), nil
		}
		ph := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		return sq.Expr(lhsSQL+" IN ("+ph+")", append(lhsParams, vals...)...), nil

	case "range":
		vals, ok := anySlice(lk.rhs)
		if !ok || len(vals) != 2 {
			return nil, fmt.Errorf("expr: range lookup takes a two-element slice")
		}
		return sq.Expr(lhsSQL+" BETWEEN ? AND ?", append(lhsParams, vals...)...), nil
	}

	if lk.op == "exact" && lk.rhs == nil {
		return sq.Expr(lhsSQL+" IS NULL", lhsParams...), nil
	}

	opSpec, ok := c.Dialect.Operator(lk.op)
	if !ok {
		return nil, fmt.Errorf("expr: dialect %s does not support the %s lookup", c.Dialect.Name, lk.op)
	}
	lhs := lhsSQL
	if opSpec.UpperLHS {
		lhs = "UPPER(" + lhsSQL + ")"
	}

	if rhsExpr, ok := lk.rhs.(Expr); ok {
		rhsSQL, rhsParams, err := c.Compile(rhsExpr)
		if err != nil {
			return nil, err
		}
		frag := lhs + " " + strings.Replace(opSpec.Template, "?", rhsSQL, 1)
		return sq.Expr(frag, append(lhsParams, rhsParams...)...), nil
	}

	rhs := lk.rhs
	if pat, ok := likePattern(lk.op, rhs); ok {
		rhs = pat
	}
	return sq.Expr(lhs+" "+opSpec.Template, append(lhsParams, rhs)...), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps a pattern-lookup value in % wildcards, escaping
// wildcard characters already present in the value.
func likePattern(op string, v any) (string, bool) {
	var prefix, suffix string
	switch op {
	case "contains", "icontains":
		prefix, suffix = "%", "%"
	case "startswith", "istartswith":
		suffix = "%"
	case "endswith", "iendswith":
		prefix = "%"
	default:
		return "", false
	}
	return prefix + likeEscaper.Replace(fmt.Sprint(v)) + suffix, true
}

func anySlice(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return vs, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func (c *Compiler) fn(n *Func) (string, []any, error) {
	var b strings.Builder
	var params []any
	b.WriteString(n.Name)
	b.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		sql, p, err := c.Compile(a)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(sql)
		params = append(params, p...)
	}
	b.WriteByte(')')
	return b.String(), params, nil
}

func (c *Compiler) caseExpr(n *Case) (string, []any, error) {
	if len(n.Whens) == 0 {
		return "", nil, fmt.Errorf("expr: CASE requires at least one WHEN")
	}
	var b strings.Builder
	var params []any
	b.WriteString("CASE")
	for _, w := range n.Whens {
		condSQL, condParams, ok, err := c.CompileCondition(w.Cond)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, fmt.Errorf("expr: CASE WHEN requires a non-empty condition")
		}
		thenSQL, thenParams, err := c.Compile(w.Then)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHEN ")
		b.WriteString(condSQL)
		b.WriteString(" THEN ")
		b.WriteString(thenSQL)
		params = append(params, condParams...)
		params = append(params, thenParams...)
	}
	if n.Else != nil {
		elseSQL, elseParams, err := c.Compile(n.Else)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ELSE ")
		b.WriteString(elseSQL)
		params = append(params, elseParams...)
	}
	b.WriteString(" END")
	return b.String(), params, nil
}

// aggregate emits FUNC(DISTINCT? args ORDER BY?) FILTER (WHERE ...)?.
// Parameters follow textual placeholder order: argument params, then
// ORDER BY params, then FILTER params.
func (c *Compiler) aggregate(n *Aggregate) (string, []any, error) {
	if n.filter != nil {
		cond, err := c.condition(n.filter)
		if err != nil {
			return "", nil, err
		}
		// A match-all filter contributes nothing; emit the plain
		// aggregate.
		if cond != nil {
			if c.Dialect.Features.SupportsAggregateFilterClause {
				body, params, err := c.aggregateBody(n)
				if err != nil {
					return "", nil, err
				}
				filterSQL, filterParams, err := cond.ToSql()
				if err != nil {
					return "", nil, err
				}
				return body + " FILTER (WHERE " + filterSQL + ")", append(params, filterParams...), nil
			}
			// No FILTER clause on this dialect: rewrite the first
			// source expression as CASE WHEN filter THEN expr END.
			// The rewrite happens on a private copy; the shared tree
			// stays untouched.
			cp := n.shallowCopy()
			cp.filter = nil
			args := make([]Expr, len(n.args))
			copy(args, n.args)
			args[0] = &Case{
				Whens:  []*When{{Cond: n.filter, Then: n.args[0]}},
				Output: OutputType(n.args[0]),
			}
			cp.args = args
			return c.aggregateBody(cp)
		}
	}
	return c.aggregateBody(n)
}

func (c *Compiler) aggregateBody(n *Aggregate) (string, []any, error) {
	if len(n.args) == 0 {
		return "", nil, fmt.Errorf("expr: %s has no arguments", n.spec.Label)
	}
	if c.Dialect.Features.DurationAggregateInterval && n.output == schema.TypeDuration {
		return c.durationInterval(n)
	}

	var b strings.Builder
	var params []any
	b.WriteString(n.fn)
	b.WriteByte('(')
	if n.distinct {
		b.WriteString("DISTINCT ")
	}
	for i, arg := range n.args {
		if i > 0 {
			b.WriteString(", ")
		}
		sql, p, err := c.Compile(arg)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(sql)
		params = append(params, p...)
	}
	for i, ob := range n.orderBy {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		sql, p, err := c.Compile(ob)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(sql)
		params = append(params, p...)
	}
	b.WriteByte(')')

	sql := b.String()
	if c.Dialect.Features.DurationAggregateCast && n.output == schema.TypeDuration {
		sql = "CAST(" + sql + " AS SIGNED)"
	}
	return sql, params, nil
}

// durationInterval renders a duration aggregate on dialects whose
// interval type cannot be aggregated directly: the argument converts
// to seconds, aggregates, and converts back. The argument SQL repeats
// once per EXTRACT, so its parameters repeat with it to keep
// placeholder order aligned.
func (c *Compiler) durationInterval(n *Aggregate) (string, []any, error) {
	argSQL, argParams, err := c.Compile(n.args[0])
	if err != nil {
		return "", nil, err
	}
	seconds := fmt.Sprintf(
		"EXTRACT(DAY FROM %[1]s) * 86400 + EXTRACT(HOUR FROM %[1]s) * 3600 + "+
			"EXTRACT(MINUTE FROM %[1]s) * 60 + EXTRACT(SECOND FROM %[1]s)",
		argSQL)
	var params []any
	for i := 0; i < 4; i++ {
		params = append(params, argParams...)
	}
	distinct := ""
	if n.distinct {
		distinct = "DISTINCT "
	}
	return "NUMTODSINTERVAL(" + n.fn + "(" + distinct + seconds + "), 'SECOND')", params, nil
}
