package expr

import (
	"github.com/quern-db/quern/schema"
)

// AggregateSpec declares the shape of one aggregate function: its
// label for error messages, SQL function name, which construction
// options it accepts, and how its output type derives.
type AggregateSpec struct {
	Label          string
	Function       string
	SampleFunction string // variant selected by the Sample option
	AllowDistinct  bool
	AllowOrderBy   bool

	// OutputType fixes the aggregate's type; empty means it follows
	// the first argument.
	OutputType schema.FieldType

	// DurationAware marks aggregates whose output stays a duration
	// when fed one, which triggers per-dialect cast handling.
	DurationAware bool

	// EmptyResultValue is what the aggregate yields over zero rows
	// when the database reports NULL (e.g. 0 for COUNT). Aggregates
	// carrying one reject the Default option.
	EmptyResultValue any
}

// Aggregate computes one value over many rows. Instances are built by
// the package constructors (Sum, Avg, Count, ...) or, for dialect
// extensions, NewAggregate. Once resolved they are immutable.
type Aggregate struct {
	spec     AggregateSpec
	fn       string
	args     []Expr
	distinct bool
	filter   *Q
	orderBy  []*Ordering
	def      any

	output    schema.FieldType
	resolved  bool
	isSummary bool
}

type aggConfig struct {
	distinct bool
	filter   *Q
	def      any
	orderBy  []*Ordering
	sample   bool
}

// AggOption configures an aggregate at construction.
type AggOption func(*aggConfig)

// Distinct aggregates only distinct argument values.
func Distinct() AggOption {
	return func(c *aggConfig) { c.distinct = true }
}

// Filter restricts the aggregated rows to those matching cond.
func Filter(cond *Q) AggOption {
	return func(c *aggConfig) { c.filter = cond }
}

// Default wraps the aggregate in COALESCE(agg, value) on resolve.
func Default(v any) AggOption {
	return func(c *aggConfig) { c.def = v }
}

// OrderBy sets the aggregate-internal ordering (ARRAY_AGG and
// friends).
func OrderBy(orderings ...*Ordering) AggOption {
	return func(c *aggConfig) { c.orderBy = orderings }
}

// Sample switches variance-style aggregates from the population to
// the sample variant.
func Sample() AggOption {
	return func(c *aggConfig) { c.sample = true }
}

// NewAggregate builds an aggregate node from an AggregateSpec. Option
// misuse is a programming error and panics at construction, before any
// SQL is generated: distinct, order_by, sample, and default are only
// accepted when the AggregateSpec allows them, and * cannot combine
// with a filter.
func NewAggregate(spec AggregateSpec, args []any, opts ...AggOption) *Aggregate {
	var cfg aggConfig
	for _, o := range opts {
		o(&cfg)
	}
	if len(args) == 0 {
		panic("expr: " + spec.Label + " requires at least one argument")
	}
	if cfg.distinct && !spec.AllowDistinct {
		panic("expr: " + spec.Label + " does not allow distinct")
	}
	if len(cfg.orderBy) > 0 && !spec.AllowOrderBy {
		panic("expr: " + spec.Label + " does not allow order_by")
	}
	if cfg.sample && spec.SampleFunction == "" {
		panic("expr: " + spec.Label + " does not allow sample")
	}
	if cfg.def != nil && spec.EmptyResultValue != nil {
		panic("expr: " + spec.Label + " does not allow default")
	}

	exprs := make([]Expr, len(args))
	for i, a := range args {
		exprs[i] = toExpr(a)
	}
	if cfg.filter != nil {
		for _, e := range exprs {
			if _, ok := e.(*Star); ok {
				panic("expr: " + spec.Label + " cannot combine * with a filter; specify a field")
			}
		}
	}

	fn := spec.Function
	if cfg.sample {
		fn = spec.SampleFunction
	}
	return &Aggregate{
		spec:     spec,
		fn:       fn,
		args:     exprs,
		distinct: cfg.distinct,
		filter:   cfg.filter,
		orderBy:  cfg.orderBy,
		def:      cfg.def,
	}
}

func (a *Aggregate) shallowCopy() *Aggregate {
	cp := *a
	return &cp
}

var (
	avgSpec = AggregateSpec{
		Label: "Avg", Function: "AVG",
		AllowDistinct: true,
		OutputType:    schema.TypeFloat,
		DurationAware: true,
	}
	countSpec = AggregateSpec{
		Label: "Count", Function: "COUNT",
		AllowDistinct:    true,
		OutputType:       schema.TypeInt,
		EmptyResultValue: 0,
	}
	maxSpec = AggregateSpec{Label: "Max", Function: "MAX"}
	minSpec = AggregateSpec{Label: "Min", Function: "MIN"}
	sumSpec = AggregateSpec{
		Label: "Sum", Function: "SUM",
		AllowDistinct: true,
		DurationAware: true,
	}
	stdDevSpec = AggregateSpec{
		Label: "StdDev", Function: "STDDEV_POP", SampleFunction: "STDDEV_SAMP",
		OutputType: schema.TypeFloat,
	}
	varianceSpec = AggregateSpec{
		Label: "Variance", Function: "VAR_POP", SampleFunction: "VAR_SAMP",
		OutputType: schema.TypeFloat,
	}
)

// Avg averages the argument over the aggregated rows.
func Avg(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(avgSpec, []any{arg}, opts...)
}

// Count counts rows; pass "*" to count every row regardless of NULLs.
func Count(arg any, opts ...AggOption) *Aggregate {
	if s, ok := arg.(string); ok && s == "*" {
		arg = &Star{}
	}
	return NewAggregate(countSpec, []any{arg}, opts...)
}

// Max takes the greatest argument value over the aggregated rows.
func Max(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(maxSpec, []any{arg}, opts...)
}

// Min takes the least argument value over the aggregated rows.
func Min(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(minSpec, []any{arg}, opts...)
}

// StdDev computes the population standard deviation, or the sample
// one with the Sample option.
func StdDev(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(stdDevSpec, []any{arg}, opts...)
}

// Sum totals the argument over the aggregated rows.
func Sum(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(sumSpec, []any{arg}, opts...)
}

// Variance computes the population variance, or the sample one with
// the Sample option.
func Variance(arg any, opts ...AggOption) *Aggregate {
	return NewAggregate(varianceSpec, []any{arg}, opts...)
}
