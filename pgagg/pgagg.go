// Package pgagg provides PostgreSQL-specific aggregate functions on
// top of the expr aggregate framework: array, boolean, bitwise, JSON,
// and string aggregation.
package pgagg

import (
	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

var (
	arrayAggSpec = expr.AggregateSpec{
		Label: "ArrayAgg", Function: "ARRAY_AGG",
		AllowDistinct: true, AllowOrderBy: true,
		OutputType: schema.TypeArray,
	}
	bitAndSpec = expr.AggregateSpec{Label: "BitAnd", Function: "BIT_AND"}
	bitOrSpec  = expr.AggregateSpec{Label: "BitOr", Function: "BIT_OR"}
	bitXorSpec = expr.AggregateSpec{Label: "BitXor", Function: "BIT_XOR"}

	boolAndSpec = expr.AggregateSpec{
		Label: "BoolAnd", Function: "BOOL_AND",
		OutputType: schema.TypeBool,
	}
	boolOrSpec = expr.AggregateSpec{
		Label: "BoolOr", Function: "BOOL_OR",
		OutputType: schema.TypeBool,
	}

	jsonbAggSpec = expr.AggregateSpec{
		Label: "JSONBAgg", Function: "JSONB_AGG",
		AllowDistinct: true, AllowOrderBy: true,
		OutputType: schema.TypeJSON,
	}
	stringAggSpec = expr.AggregateSpec{
		Label: "StringAgg", Function: "STRING_AGG",
		AllowDistinct: true, AllowOrderBy: true,
		OutputType: schema.TypeText,
	}
)

// ArrayAgg collects values into an array, optionally ordered.
func ArrayAgg(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(arrayAggSpec, []any{arg}, opts...)
}

// BitAnd computes the bitwise AND of all non-null values.
func BitAnd(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(bitAndSpec, []any{arg}, opts...)
}

// BitOr computes the bitwise OR of all non-null values.
func BitOr(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(bitOrSpec, []any{arg}, opts...)
}

// BitXor computes the bitwise XOR of all non-null values.
func BitXor(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(bitXorSpec, []any{arg}, opts...)
}

// BoolAnd reports whether every non-null value is true.
func BoolAnd(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(boolAndSpec, []any{arg}, opts...)
}

// BoolOr reports whether any non-null value is true.
func BoolOr(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(boolOrSpec, []any{arg}, opts...)
}

// JSONBAgg collects values into a JSONB array, optionally ordered.
func JSONBAgg(arg any, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(jsonbAggSpec, []any{arg}, opts...)
}

// StringAgg concatenates non-null values separated by the delimiter.
func StringAgg(arg any, delimiter string, opts ...expr.AggOption) *expr.Aggregate {
	return expr.NewAggregate(stringAggSpec, []any{arg, expr.V(delimiter)}, opts...)
}
