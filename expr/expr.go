// Package expr builds SQL expression trees: values, field references,
// function calls, aggregates, conditions, and CASE expressions. Trees
// are resolved against a table (producing a typed copy, never mutating
// the original) and compiled into SQL text plus a positional parameter
// list.
package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quern-db/quern/schema"
)

// Expr is the interface all expression nodes implement.
type Expr interface {
	expr() // marker method
}

// Value is a bound parameter.
type Value struct {
	V      any
	Output schema.FieldType // inferred from V on resolve when empty
}

// V wraps a Go value as a bound parameter node.
func V(v any) *Value {
	return &Value{V: v}
}

// FieldRef is an unresolved reference to a field by name. Resolving
// it yields a Column, or a Ref when the name matches an annotation.
type FieldRef struct {
	Name string
}

// F references a field by name.
func F(name string) *FieldRef {
	return &FieldRef{Name: name}
}

// Column is a resolved reference to a table field.
type Column struct {
	Field *schema.Field
}

// Ref is a resolved reference to a named annotation (a SELECT alias).
type Ref struct {
	Name   string
	Source Expr
}

// Star is the * marker accepted by Count.
type Star struct{}

// Func is a generic function call: Name(arg, arg, ...).
type Func struct {
	Name   string
	Args   []Expr
	Output schema.FieldType

	summary bool
}

// NewFunc builds a function call. String arguments become field
// references, other non-expression arguments become bound values.
func NewFunc(name string, args ...any) *Func {
	exprs := make([]Expr, len(args))
	for i, a := range args {
		exprs[i] = toExpr(a)
	}
	return &Func{Name: name, Args: exprs}
}

// Coalesce builds COALESCE(arg, arg, ...).
func Coalesce(args ...any) *Func {
	return NewFunc("COALESCE", args...)
}

// Ordering is one ORDER BY element.
type Ordering struct {
	Expr Expr
	Desc bool
}

// Asc orders by an expression ascending.
func Asc(e any) *Ordering {
	return &Ordering{Expr: toExpr(e)}
}

// Desc orders by an expression descending.
func Desc(e any) *Ordering {
	return &Ordering{Expr: toExpr(e), Desc: true}
}

// When is one branch of a Case expression.
type When struct {
	Cond *Q
	Then Expr
}

func NewWhen(cond *Q, then any) *When {
	return &When{Cond: cond, Then: toExpr(then)}
}

// Case is a searched CASE expression: CASE WHEN ... THEN ... END.
type Case struct {
	Whens  []*When
	Else   Expr
	Output schema.FieldType
}

func NewCase(whens ...*When) *Case {
	return &Case{Whens: whens}
}

func (*Value) expr()     {}
func (*FieldRef) expr()  {}
func (*Column) expr()    {}
func (*Ref) expr()       {}
func (*Star) expr()      {}
func (*Func) expr()      {}
func (*Ordering) expr()  {}
func (*Case) expr()      {}
func (*Q) expr()         {}
func (*Aggregate) expr() {}

// toExpr coerces constructor arguments: expressions pass through,
// strings become field references, anything else a bound value.
func toExpr(v any) Expr {
	switch v := v.(type) {
	case Expr:
		return v
	case string:
		return F(v)
	default:
		return V(v)
	}
}

// ContainsAggregate reports whether an aggregate node occurs anywhere
// in the tree.
func ContainsAggregate(e Expr) bool {
	switch n := e.(type) {
	case *Aggregate:
		return true
	case *Func:
		for _, a := range n.Args {
			if ContainsAggregate(a) {
				return true
			}
		}
	case *Ref:
		return ContainsAggregate(n.Source)
	case *Ordering:
		return ContainsAggregate(n.Expr)
	case *Case:
		for _, w := range n.Whens {
			if ContainsAggregate(w.Cond) || ContainsAggregate(w.Then) {
				return true
			}
		}
		if n.Else != nil {
			return ContainsAggregate(n.Else)
		}
	case *Q:
		for _, ch := range n.children {
			if ch.q != nil && ContainsAggregate(ch.q) {
				return true
			}
			if ch.lookup != nil {
				if rhs, ok := ch.lookup.rhs.(Expr); ok && ContainsAggregate(rhs) {
					return true
				}
			}
		}
	}
	return false
}

// IsSummary reports whether the node was resolved in a summarize
// context, i.e. it computes over the grouped result of a query.
func IsSummary(e Expr) bool {
	switch n := e.(type) {
	case *Aggregate:
		return n.isSummary
	case *Func:
		return n.summary
	case *Ref:
		return IsSummary(n.Source)
	}
	return false
}

// OutputType returns the resolved output type of a node, or "" when
// the node has not been resolved or carries no type.
func OutputType(e Expr) schema.FieldType {
	switch n := e.(type) {
	case *Value:
		return n.Output
	case *Column:
		return n.Field.Type
	case *Ref:
		return OutputType(n.Source)
	case *Func:
		return n.Output
	case *Aggregate:
		return n.output
	case *Case:
		return n.Output
	case *Ordering:
		return OutputType(n.Expr)
	}
	return ""
}

// inferType maps a bound Go value to a field type.
func inferType(v any) schema.FieldType {
	switch v.(type) {
	case bool:
		return schema.TypeBool
	case int, int8, int16, int32, uint, uint8, uint16, uint32:
		return schema.TypeInt
	case int64, uint64:
		return schema.TypeBigInt
	case float32, float64:
		return schema.TypeFloat
	case string:
		return schema.TypeText
	case time.Time:
		return schema.TypeTimestamp
	case time.Duration:
		return schema.TypeDuration
	case uuid.UUID:
		return schema.TypeUUID
	}
	return ""
}

// exprName renders a node for error messages the way a caller wrote
// it: field references by name, aggregates as Label(args).
func exprName(e Expr) string {
	switch n := e.(type) {
	case *FieldRef:
		return n.Name
	case *Ref:
		return n.Name
	case *Column:
		return n.Field.Name
	case *Star:
		return "*"
	case *Value:
		return fmt.Sprintf("%v", n.V)
	case *Func:
		return n.Name + "(" + joinNames(n.Args) + ")"
	case *Aggregate:
		return n.spec.Label + "(" + joinNames(n.args) + ")"
	}
	return fmt.Sprintf("%T", e)
}

func joinNames(exprs []Expr) string {
	names := make([]string, len(exprs))
	for i, e := range exprs {
		names[i] = exprName(e)
	}
	return strings.Join(names, ", ")
}
