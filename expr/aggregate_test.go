package expr

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/schema"
)

// --- Helper constructors ---

func testOrdersTable(t *testing.T) *schema.Table {
	t.Helper()
	return schema.Must("order",
		schema.Field{Name: "id", Type: schema.TypeInt, PrimaryKey: true},
		schema.Field{Name: "amount", Type: schema.TypeDecimal},
		schema.Field{Name: "quantity", Type: schema.TypeInt},
		schema.Field{Name: "status", Type: schema.TypeText},
		schema.Field{Name: "active", Type: schema.TypeBool},
		schema.Field{Name: "lead_time", Type: schema.TypeDuration},
		schema.Field{Name: "placed_at", Type: schema.TypeTimestamp, Nullable: true},
	)
}

func mustResolve(t *testing.T, e Expr) Expr {
	t.Helper()
	re, err := Resolve(e, &ResolveContext{Table: testOrdersTable(t)})
	if err != nil {
		t.Fatal(err)
	}
	return re
}

func mustCompile(t *testing.T, d *dialect.Dialect, e Expr) (string, []any) {
	t.Helper()
	sql, params, err := NewCompiler(d).Compile(mustResolve(t, e))
	if err != nil {
		t.Fatal(err)
	}
	return sql, params
}

func wantPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q, got none", want)
		}
		msg := fmt.Sprint(r)
		if !strings.Contains(msg, want) {
			t.Fatalf("expected panic containing %q, got %q", want, msg)
		}
	}()
	fn()
}

// --- Construction checks ---

func TestCountStar(t *testing.T) {
	sql, params := mustCompile(t, dialect.PostgreSQL, Count("*"))
	if sql != "COUNT(*)" {
		t.Fatalf("expected COUNT(*), got %q", sql)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestCountStarWithFilterPanics(t *testing.T) {
	wantPanic(t, "cannot combine * with a filter", func() {
		Count("*", Filter(NewQ("active", true)))
	})
}

func TestDistinctRejected(t *testing.T) {
	wantPanic(t, "Max does not allow distinct", func() {
		Max("amount", Distinct())
	})
	wantPanic(t, "Min does not allow distinct", func() {
		Min("amount", Distinct())
	})
}

func TestOrderByRejected(t *testing.T) {
	wantPanic(t, "Sum does not allow order_by", func() {
		Sum("amount", OrderBy(Asc("id")))
	})
}

func TestSampleRejected(t *testing.T) {
	wantPanic(t, "Sum does not allow sample", func() {
		Sum("amount", Sample())
	})
}

func TestDefaultRejectedWithEmptyResultValue(t *testing.T) {
	wantPanic(t, "Count does not allow default", func() {
		Count("id", Default(0))
	})
}

func TestNoArgumentsRejected(t *testing.T) {
	wantPanic(t, "requires at least one argument", func() {
		NewAggregate(AggregateSpec{Label: "Sum", Function: "SUM"}, nil)
	})
}

// --- Emission ---

func TestDistinctEmission(t *testing.T) {
	sql, params := mustCompile(t, dialect.PostgreSQL, Count("status", Distinct()))
	if sql != `COUNT(DISTINCT "status")` {
		t.Fatalf("expected COUNT(DISTINCT ...), got %q", sql)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestSampleVariant(t *testing.T) {
	sql, _ := mustCompile(t, dialect.PostgreSQL, StdDev("amount"))
	if sql != `STDDEV_POP("amount")` {
		t.Fatalf("expected STDDEV_POP, got %q", sql)
	}
	sql, _ = mustCompile(t, dialect.PostgreSQL, StdDev("amount", Sample()))
	if sql != `STDDEV_SAMP("amount")` {
		t.Fatalf("expected STDDEV_SAMP, got %q", sql)
	}
	sql, _ = mustCompile(t, dialect.PostgreSQL, Variance("amount", Sample()))
	if sql != `VAR_SAMP("amount")` {
		t.Fatalf("expected VAR_SAMP, got %q", sql)
	}
}

func TestFilterEmission(t *testing.T) {
	agg := Avg("amount", Filter(NewQ("active", true)))
	sql, params := mustCompile(t, dialect.PostgreSQL, agg)
	want := `AVG("amount") FILTER (WHERE "active" = ?)`
	if sql != want {
		t.Fatalf("expected %q, got %q", want, sql)
	}
	if len(params) != 1 || params[0] != true {
		t.Fatalf("expected params [true], got %v", params)
	}
}

func TestFilterFallbackCase(t *testing.T) {
	agg := Avg("amount", Filter(NewQ("active", true)))

	sql, params := mustCompile(t, dialect.MySQL, agg)
	if strings.Contains(sql, "FILTER") {
		t.Fatalf("expected no FILTER clause on mysql, got %q", sql)
	}
	want := "AVG(CASE WHEN `active` = ? THEN `amount` END)"
	if sql != want {
		t.Fatalf("expected %q, got %q", want, sql)
	}
	if len(params) != 1 || params[0] != true {
		t.Fatalf("expected params [true], got %v", params)
	}

	// The fallback must not leak into the shared tree: the same
	// aggregate still compiles with FILTER on postgres.
	pgSQL, pgParams := mustCompile(t, dialect.PostgreSQL, agg)
	if !strings.Contains(pgSQL, "FILTER (WHERE") {
		t.Fatalf("expected FILTER on postgres after mysql compile, got %q", pgSQL)
	}
	if len(pgParams) != len(params) {
		t.Fatalf("expected same param count on both dialects, got %d and %d", len(pgParams), len(params))
	}
}

func TestEmptyFilterDropped(t *testing.T) {
	sql, params := mustCompile(t, dialect.PostgreSQL, Avg("amount", Filter(NewQ())))
	if sql != `AVG("amount")` {
		t.Fatalf("expected plain AVG, got %q", sql)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestDefaultCoalesce(t *testing.T) {
	sql, params := mustCompile(t, dialect.PostgreSQL, Sum("amount", Default(0)))
	want := `COALESCE(SUM("amount"), ?)`
	if sql != want {
		t.Fatalf("expected %q, got %q", want, sql)
	}
	if len(params) != 1 || params[0] != 0 {
		t.Fatalf("expected params [0], got %v", params)
	}
}

func TestAggregateOrderBy(t *testing.T) {
	spec := AggregateSpec{
		Label: "ArrayAgg", Function: "ARRAY_AGG",
		AllowDistinct: true, AllowOrderBy: true,
		OutputType: schema.TypeArray,
	}
	agg := NewAggregate(spec, []any{"status"}, OrderBy(Desc("placed_at"), Asc("id")))
	sql, params := mustCompile(t, dialect.PostgreSQL, agg)
	want := `ARRAY_AGG("status" ORDER BY "placed_at" DESC, "id" ASC)`
	if sql != want {
		t.Fatalf("expected %q, got %q", want, sql)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestParamOrder(t *testing.T) {
	// Argument params come first, then ORDER BY params, then FILTER
	// params, matching placeholder order in the emitted text.
	spec := AggregateSpec{
		Label: "StringAgg", Function: "STRING_AGG",
		AllowDistinct: true, AllowOrderBy: true,
		OutputType: schema.TypeText,
	}
	agg := NewAggregate(spec,
		[]any{"status", V(", ")},
		OrderBy(Asc(Coalesce("status", V("zzz")))),
		Filter(NewQ("quantity__gt", 10)),
	)
	sql, params := mustCompile(t, dialect.PostgreSQL, agg)
	want := `STRING_AGG("status", ? ORDER BY COALESCE("status", ?) ASC) FILTER (WHERE "quantity" > ?)`
	if sql != want {
		t.Fatalf("expected %q, got %q", want, sql)
	}
	if len(params) != 3 || params[0] != ", " || params[1] != "zzz" || params[2] != 10 {
		t.Fatalf("expected params [\", \" zzz 10], got %v", params)
	}
	if got := strings.Count(sql, "?"); got != len(params) {
		t.Fatalf("placeholder count %d does not match param count %d", got, len(params))
	}
}

// --- Duration handling ---

func TestDurationNativePostgres(t *testing.T) {
	sql, _ := mustCompile(t, dialect.PostgreSQL, Sum("lead_time"))
	if sql != `SUM("lead_time")` {
		t.Fatalf("expected plain SUM, got %q", sql)
	}
}

func TestDurationCastMySQL(t *testing.T) {
	sql, _ := mustCompile(t, dialect.MySQL, Sum("lead_time"))
	if sql != "CAST(SUM(`lead_time`) AS SIGNED)" {
		t.Fatalf("expected CAST ... AS SIGNED, got %q", sql)
	}
	// Non-duration aggregates stay uncast.
	sql, _ = mustCompile(t, dialect.MySQL, Sum("amount"))
	if sql != "SUM(`amount`)" {
		t.Fatalf("expected plain SUM for non-duration, got %q", sql)
	}
}

func TestDurationIntervalOracle(t *testing.T) {
	sql, params := mustCompile(t, dialect.Oracle, Avg("lead_time"))
	if !strings.HasPrefix(sql, "NUMTODSINTERVAL(AVG(") {
		t.Fatalf("expected NUMTODSINTERVAL wrap, got %q", sql)
	}
	if got := strings.Count(sql, "EXTRACT("); got != 4 {
		t.Fatalf("expected 4 EXTRACT terms, got %d in %q", got, sql)
	}
	if len(params) != 0 {
		t.Fatalf("expected no params, got %v", params)
	}
}

func TestDurationIntervalParamsRepeat(t *testing.T) {
	// The argument repeats once per EXTRACT; its parameters must
	// repeat with it so placeholders and params stay aligned.
	agg := Sum(Coalesce("lead_time", V(time.Duration(0))))
	sql, params, err := NewCompiler(dialect.Oracle).Compile(mustResolve(t, agg))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(sql, "?"); got != 4 {
		t.Fatalf("expected 4 placeholders, got %d in %q", got, sql)
	}
	if len(params) != 4 {
		t.Fatalf("expected 4 params, got %v", params)
	}
}

// --- Output types ---

func TestOutputTypes(t *testing.T) {
	tests := []struct {
		name string
		agg  *Aggregate
		want schema.FieldType
	}{
		{"count", Count("*"), schema.TypeInt},
		{"avg", Avg("quantity"), schema.TypeFloat},
		{"avg duration", Avg("lead_time"), schema.TypeDuration},
		{"sum follows arg", Sum("amount"), schema.TypeDecimal},
		{"sum duration", Sum("lead_time"), schema.TypeDuration},
		{"stddev", StdDev("quantity"), schema.TypeFloat},
		{"max follows arg", Max("placed_at"), schema.TypeTimestamp},
	}
	for _, tt := range tests {
		re := mustResolve(t, tt.agg)
		if got := OutputType(re); got != tt.want {
			t.Errorf("%s: expected output type %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestEmptyResultValue(t *testing.T) {
	if countSpec.EmptyResultValue != 0 {
		t.Fatalf("expected Count empty result 0, got %v", countSpec.EmptyResultValue)
	}
	if sumSpec.EmptyResultValue != nil {
		t.Fatalf("expected Sum empty result nil, got %v", sumSpec.EmptyResultValue)
	}
}
