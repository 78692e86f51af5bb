package expr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quern-db/quern/schema"
)

// FieldError reports a reference the resolver cannot satisfy: an
// unknown field name, or an aggregate nested inside another aggregate.
type FieldError struct {
	msg string
}

func (e *FieldError) Error() string { return e.msg }

func fieldErrorf(format string, args ...any) *FieldError {
	return &FieldError{msg: fmt.Sprintf(format, args...)}
}

// ErrFieldOmitted marks a field reference that cannot be replaced by
// an instance value because the value is absent or excluded. Callers
// validing partial instances test for it with errors.Is and skip.
var ErrFieldOmitted = errors.New("field value not available")

// ResolveContext carries what an expression is resolved against: the
// table supplying fields, named annotations, and whether the
// expression sits in the summarize (outer GROUP BY) position.
type ResolveContext struct {
	Table       *schema.Table
	Annotations map[string]Expr
	Summarize   bool
}

// Resolve returns a fully-typed copy of the tree with every field
// reference bound. The input tree is never mutated; the same
// expression value can be resolved against many contexts
// concurrently.
func Resolve(e Expr, rc *ResolveContext) (Expr, error) {
	r := &resolver{rc: rc}
	return r.resolve(e)
}

// ResolveValues returns a copy of the tree with every field reference
// replaced by the corresponding value from row, for queries that
// evaluate a condition against an in-memory instance. References to
// fields absent from row or listed in exclude fail with an error
// wrapping ErrFieldOmitted.
func ResolveValues(e Expr, t *schema.Table, row schema.Row, exclude ...string) (Expr, error) {
	r := &resolver{
		rc:         &ResolveContext{Table: t},
		valuesMode: true,
		values:     row,
		exclude:    make(map[string]bool, len(exclude)),
	}
	for _, name := range exclude {
		r.exclude[name] = true
	}
	return r.resolve(e)
}

type resolver struct {
	rc         *ResolveContext
	valuesMode bool
	values     schema.Row
	exclude    map[string]bool
}

func (r *resolver) resolve(e Expr) (Expr, error) {
	switch n := e.(type) {
	case *Value:
		cp := *n
		if cp.Output == "" {
			cp.Output = inferType(cp.V)
		}
		return &cp, nil

	case *FieldRef:
		return r.resolveField(n.Name)

	case *Column:
		cp := *n
		return &cp, nil

	case *Ref:
		cp := *n
		return &cp, nil

	case *Star:
		return &Star{}, nil

	case *Func:
		cp := *n
		cp.Args = make([]Expr, len(n.Args))
		for i, a := range n.Args {
			ra, err := r.resolve(a)
			if err != nil {
				return nil, err
			}
			cp.Args[i] = ra
		}
		if cp.Output == "" {
			for _, a := range cp.Args {
				if t := OutputType(a); t != "" {
					cp.Output = t
					break
				}
			}
		}
		return &cp, nil

	case *Ordering:
		sub, err := r.resolve(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Ordering{Expr: sub, Desc: n.Desc}, nil

	case *Case:
		cp := &Case{Output: n.Output}
		cp.Whens = make([]*When, len(n.Whens))
		for i, w := range n.Whens {
			cond, err := r.resolveQ(w.Cond)
			if err != nil {
				return nil, err
			}
			then, err := r.resolve(w.Then)
			if err != nil {
				return nil, err
			}
			cp.Whens[i] = &When{Cond: cond, Then: then}
		}
		if n.Else != nil {
			els, err := r.resolve(n.Else)
			if err != nil {
				return nil, err
			}
			cp.Else = els
		}
		if cp.Output == "" {
			for _, w := range cp.Whens {
				if t := OutputType(w.Then); t != "" {
					cp.Output = t
					break
				}
			}
		}
		return cp, nil

	case *Q:
		return r.resolveQ(n)

	case *Aggregate:
		return r.resolveAggregate(n)
	}
	return nil, fmt.Errorf("expr: cannot resolve %T", e)
}

func (r *resolver) resolveField(name string) (Expr, error) {
	if r.valuesMode {
		if r.exclude[name] {
			return nil, fmt.Errorf("field %q: %w", name, ErrFieldOmitted)
		}
		f := r.rc.Table.Field(name)
		if f == nil {
			return nil, fmt.Errorf("field %q: %w", name, ErrFieldOmitted)
		}
		v, ok := r.values[name]
		if !ok {
			return nil, fmt.Errorf("field %q: %w", name, ErrFieldOmitted)
		}
		return &Value{V: v, Output: f.Type}, nil
	}

	if a, ok := r.rc.Annotations[name]; ok {
		return &Ref{Name: name, Source: a}, nil
	}
	if r.rc.Table != nil {
		if f := r.rc.Table.Field(name); f != nil {
			return &Column{Field: f}, nil
		}
	}
	return nil, fieldErrorf("Cannot resolve keyword '%s' into field. Choices are: %s",
		name, strings.Join(r.choices(), ", "))
}

func (r *resolver) choices() []string {
	var names []string
	if r.rc.Table != nil {
		for _, f := range r.rc.Table.Fields {
			names = append(names, f.Name)
		}
	}
	for name := range r.rc.Annotations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *resolver) resolveQ(q *Q) (*Q, error) {
	cp := &Q{connector: q.connector, negated: q.negated}
	cp.children = make([]qChild, len(q.children))
	for i, ch := range q.children {
		if ch.q != nil {
			sub, err := r.resolveQ(ch.q)
			if err != nil {
				return nil, err
			}
			cp.children[i] = qChild{q: sub}
			continue
		}
		lk, err := r.resolveLookup(ch.lookup)
		if err != nil {
			return nil, err
		}
		cp.children[i] = qChild{lookup: lk}
	}
	return cp, nil
}

func (r *resolver) resolveLookup(lk *lookup) (*lookup, error) {
	field, op := splitLookup(lk.path)
	lhs, err := r.resolveField(field)
	if err != nil {
		return nil, err
	}
	rhs := lk.rhs
	if re, ok := rhs.(Expr); ok {
		rhs, err = r.resolve(re)
		if err != nil {
			return nil, err
		}
	}
	return &lookup{path: lk.path, op: op, lhs: lhs, rhs: rhs}, nil
}

func (r *resolver) resolveAggregate(a *Aggregate) (Expr, error) {
	c := a.shallowCopy()
	c.args = make([]Expr, len(a.args))
	for i, arg := range a.args {
		ra, err := r.resolve(arg)
		if err != nil {
			return nil, err
		}
		c.args[i] = ra
	}
	if a.filter != nil {
		rf, err := r.resolveQ(a.filter)
		if err != nil {
			return nil, err
		}
		c.filter = rf
	}
	if len(a.orderBy) > 0 {
		c.orderBy = make([]*Ordering, len(a.orderBy))
		for i, ob := range a.orderBy {
			sub, err := r.resolve(ob)
			if err != nil {
				return nil, err
			}
			c.orderBy[i] = sub.(*Ordering)
		}
	}
	c.resolved = true
	c.isSummary = r.rc.Summarize
	c.output = a.outputType(c.args)

	if r.rc.Summarize {
		// The expression sits in the outer SELECT of a grouped query:
		// referencing another summarized annotation would aggregate an
		// aggregate.
		for _, ref := range collectRefs(c.args) {
			if src, ok := r.rc.Annotations[ref]; ok && IsSummary(src) {
				return nil, fieldErrorf("Cannot compute %s('%s'): '%s' is an aggregate",
					a.spec.Label, ref, ref)
			}
		}
	} else if !a.isSummary {
		// Nested aggregation is just as illegal below the summarize
		// level. Filter and ordering are deliberately not walked; only
		// the source arguments count.
		for i, arg := range c.args {
			if ContainsAggregate(arg) {
				name := exprName(a.args[i])
				return nil, fieldErrorf("Cannot compute %s('%s'): '%s' is an aggregate",
					a.spec.Label, name, name)
			}
		}
	}

	if a.def == nil {
		return c, nil
	}
	c.def = nil
	wrap := &Func{
		Name:    "COALESCE",
		Args:    []Expr{c, &Value{V: a.def, Output: c.output}},
		Output:  c.output,
		summary: c.isSummary,
	}
	return wrap, nil
}

// outputType derives the aggregate's resolved type from its spec and
// resolved arguments.
func (a *Aggregate) outputType(resolvedArgs []Expr) schema.FieldType {
	argType := schema.FieldType("")
	if len(resolvedArgs) > 0 {
		argType = OutputType(resolvedArgs[0])
	}
	if a.spec.DurationAware && argType == schema.TypeDuration {
		return schema.TypeDuration
	}
	if a.spec.OutputType != "" {
		return a.spec.OutputType
	}
	return argType
}

// collectRefs gathers annotation references anywhere under the given
// expressions.
func collectRefs(exprs []Expr) []string {
	var refs []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Ref:
			refs = append(refs, n.Name)
		case *Func:
			for _, a := range n.Args {
				walk(a)
			}
		case *Aggregate:
			for _, a := range n.args {
				walk(a)
			}
		case *Ordering:
			walk(n.Expr)
		case *Case:
			for _, w := range n.Whens {
				walk(w.Cond)
				walk(w.Then)
			}
			if n.Else != nil {
				walk(n.Else)
			}
		case *Q:
			for _, ch := range n.children {
				if ch.q != nil {
					walk(ch.q)
				}
				if ch.lookup != nil {
					if rhs, ok := ch.lookup.rhs.(Expr); ok {
						walk(rhs)
					}
					if ch.lookup.lhs != nil {
						walk(ch.lookup.lhs)
					}
				}
			}
		}
	}
	for _, e := range exprs {
		walk(e)
	}
	return refs
}
