package constraint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/quern-db/quern/dialect"
	"github.com/quern-db/quern/expr"
	"github.com/quern-db/quern/schema"
)

// --- Helper constructors ---

func ordersTable(t *testing.T) *schema.Table {
	t.Helper()
	return schema.Must("order",
		schema.Field{Name: "id", Type: schema.TypeInt, PrimaryKey: true},
		schema.Field{Name: "amount", Type: schema.TypeDecimal},
		schema.Field{Name: "quantity", Type: schema.TypeInt},
		schema.Field{Name: "status", Type: schema.TypeText},
		schema.Field{Name: "reference", Type: schema.TypeText, Nullable: true},
	)
}

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) > 0 {
		if p, ok := dest[0].(*int); ok {
			*p = 1
		}
	}
	return nil
}

// fakeConn records queries and replays one scripted Scan error per
// call; an exhausted script means the row was found.
type fakeConn struct {
	d       *dialect.Dialect
	results []error
	queries []string
	args    [][]any
}

func (c *fakeConn) Dialect() *dialect.Dialect { return c.d }

func (c *fakeConn) QueryRow(_ context.Context, query string, args ...any) Row {
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	var err error
	if len(c.results) > 0 {
		err = c.results[0]
		c.results = c.results[1:]
	}
	return fakeRow{err: err}
}

func noRows() []error { return []error{sql.ErrNoRows} }

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

// stubEditor renders just enough DDL to observe what the constraint
// hands over.
type stubEditor struct {
	d *dialect.Dialect
}

func (e stubEditor) Dialect() *dialect.Dialect { return e.d }

func (e stubEditor) CheckSQL(name, predicate string) string {
	return "CONSTRAINT " + e.d.QuoteName(name) + " CHECK (" + predicate + ")"
}

func (e stubEditor) CreateCheckSQL(t *schema.Table, name, predicate string) string {
	return "ALTER TABLE " + e.d.QuoteName(t.DBTable) + " ADD " + e.CheckSQL(name, predicate)
}

func (e stubEditor) DeleteCheckSQL(t *schema.Table, name string) string {
	return "ALTER TABLE " + e.d.QuoteName(t.DBTable) + " DROP CONSTRAINT " + e.d.QuoteName(name)
}

func (e stubEditor) UniqueSQL(*schema.Table, *Unique) (string, error)       { return "", nil }
func (e stubEditor) CreateUniqueSQL(*schema.Table, *Unique) (string, error) { return "", nil }
func (e stubEditor) DeleteUniqueSQL(*schema.Table, *Unique) (string, error) { return "", nil }

// --- Construction ---

func TestNewCheckPanics(t *testing.T) {
	wantPanic(t, "must be named", func() {
		NewCheck("", expr.NewQ("amount__gte", 0))
	})
	wantPanic(t, "requires a condition", func() {
		NewCheck("amount_gte_0", nil)
	})
}

// --- DDL ---

func TestCheckConstraintSQLInlinesValues(t *testing.T) {
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))
	got, err := c.ConstraintSQL(stubEditor{d: dialect.PostgreSQL}, ordersTable(t))
	if err != nil {
		t.Fatal(err)
	}
	want := `CONSTRAINT "amount_gte_0" CHECK ("amount" >= 0)`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCheckCreateAndRemoveSQL(t *testing.T) {
	tbl := ordersTable(t)
	c := NewCheck("status_known", expr.NewQ("status__in", []string{"open", "closed"}))
	ed := stubEditor{d: dialect.PostgreSQL}

	created, err := c.CreateSQL(ed, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(created, `ADD CONSTRAINT "status_known" CHECK ("status" IN ('open', 'closed'))`) {
		t.Fatalf("unexpected create SQL %q", created)
	}

	removed, err := c.RemoveSQL(ed, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if removed != `ALTER TABLE "orders" DROP CONSTRAINT "status_known"` {
		t.Fatalf("unexpected remove SQL %q", removed)
	}
}

// --- Validation ---

func TestCheckValidatePasses(t *testing.T) {
	conn := &fakeConn{d: dialect.PostgreSQL}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"amount": 10.0})
	if err != nil {
		t.Fatal(err)
	}
	if len(conn.queries) != 1 {
		t.Fatalf("expected one query, got %v", conn.queries)
	}
	if conn.queries[0] != "SELECT 1 WHERE $1 >= $2" {
		t.Fatalf("unexpected query %q", conn.queries[0])
	}
	if len(conn.args[0]) != 2 || conn.args[0][0] != 10.0 || conn.args[0][1] != 0 {
		t.Fatalf("unexpected args %v", conn.args[0])
	}
}

func TestCheckValidateViolation(t *testing.T) {
	conn := &fakeConn{d: dialect.PostgreSQL, results: noRows()}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"amount": -1.0})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msgs := ve.Errors[NonFieldErrors]
	if len(msgs) != 1 || msgs[0] != `Constraint "amount_gte_0" is violated.` {
		t.Fatalf("unexpected messages %v", ve.Errors)
	}
}

func TestCheckValidateCustomMessage(t *testing.T) {
	conn := &fakeConn{d: dialect.PostgreSQL, results: noRows()}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0),
		CheckMessage("amount cannot be negative"))

	err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"amount": -1.0})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Errors[NonFieldErrors][0] != "amount cannot be negative" {
		t.Fatalf("unexpected message %v", ve.Errors)
	}
}

func TestCheckValidateSkipsExcludedField(t *testing.T) {
	conn := &fakeConn{d: dialect.PostgreSQL}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	err := c.Validate(context.Background(), conn, ordersTable(t),
		schema.Row{"amount": -1.0}, Exclude("amount"))
	if err != nil {
		t.Fatal(err)
	}
	if len(conn.queries) != 0 {
		t.Fatalf("expected no query, got %v", conn.queries)
	}
}

func TestCheckValidateSkipsAbsentField(t *testing.T) {
	conn := &fakeConn{d: dialect.PostgreSQL}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"status": "open"})
	if err != nil {
		t.Fatal(err)
	}
	if len(conn.queries) != 0 {
		t.Fatalf("expected no query, got %v", conn.queries)
	}
}

func TestCheckValidateDual(t *testing.T) {
	conn := &fakeConn{d: dialect.Oracle}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	if err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"amount": 1.0}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(conn.queries[0], "SELECT 1 FROM DUAL WHERE") {
		t.Fatalf("expected DUAL in query, got %q", conn.queries[0])
	}
}

func TestCheckValidateDriverError(t *testing.T) {
	boom := errors.New("connection refused")
	conn := &fakeConn{d: dialect.PostgreSQL, results: []error{boom}}
	c := NewCheck("amount_gte_0", expr.NewQ("amount__gte", 0))

	err := c.Validate(context.Background(), conn, ordersTable(t), schema.Row{"amount": 1.0})
	if !errors.Is(err, boom) {
		t.Fatalf("expected driver error unmodified, got %v", err)
	}
}
