// Package dialect describes SQL dialects: capability flags, identifier
// and literal quoting, placeholder formats, and the per-dialect lookup
// operator and column type tables consumed by the expression compiler
// and the DDL editor.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/quern-db/quern/schema"
)

// Features are capability flags, fixed per dialect and read-only.
// Emission code consults them on every compile; nothing caches them.
type Features struct {
	SupportsAggregateFilterClause       bool
	SupportsPartialIndexes              bool
	SupportsDeferrableUniqueConstraints bool
	SupportsCoveringIndexes             bool
	SupportsExpressionIndexes           bool
	InterpretsEmptyStringsAsNulls       bool
	RequiresDualForSelect               bool
	HasNativeDuration                   bool

	// DurationAggregateCast wraps aggregates over duration values in
	// CAST(... AS SIGNED); DurationAggregateInterval rebuilds them via
	// an interval-to-seconds round trip. At most one is set.
	DurationAggregateCast     bool
	DurationAggregateInterval bool
}

// OpSpec is one entry of a dialect's lookup operator table. Template
// holds the operator with a ? placeholder for the bound value;
// UpperLHS asks the compiler to wrap the column side in UPPER().
type OpSpec struct {
	Template string
	UpperLHS bool
}

type Dialect struct {
	Name        string
	Features    Features
	Placeholder sq.PlaceholderFormat

	operators    map[string]OpSpec
	columnTypes  map[schema.FieldType]string
	columnChecks map[schema.FieldType]string
	backtick     bool
	limitOne     string
	booleanWords bool
	durationLit  func(time.Duration) string
}

// QuoteName quotes an identifier, escaping embedded quote characters.
func (d *Dialect) QuoteName(name string) string {
	if d.backtick {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteValue renders a Go value as a SQL literal. It exists for
// embedding parameters into DDL text only; parameterized statements
// never go through it.
func (d *Dialect) QuoteValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if d.booleanWords {
			if v {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		if v {
			return "1", nil
		}
		return "0", nil
	case string:
		return quoteString(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case time.Time:
		return quoteString(v.UTC().Format("2006-01-02 15:04:05.999999")), nil
	case time.Duration:
		return d.durationLit(v), nil
	case uuid.UUID:
		return quoteString(v.String()), nil
	}
	return "", fmt.Errorf("dialect %s: cannot render %T as a SQL literal", d.Name, v)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ColumnType returns the column type clause for a field type.
// maxLength is required for TypeChar.
func (d *Dialect) ColumnType(t schema.FieldType, maxLength int) (string, error) {
	tmpl, ok := d.columnTypes[t]
	if !ok {
		return "", fmt.Errorf("dialect %s: no column type for %s", d.Name, t)
	}
	if strings.Contains(tmpl, "%d") {
		if maxLength <= 0 {
			return "", fmt.Errorf("dialect %s: %s column requires a max length", d.Name, t)
		}
		return fmt.Sprintf(tmpl, maxLength), nil
	}
	return tmpl, nil
}

// ColumnCheck returns an inline CHECK predicate the column type
// implies (e.g. non-negativity), or "" when the type needs none.
func (d *Dialect) ColumnCheck(t schema.FieldType, quotedColumn string) string {
	tmpl, ok := d.columnChecks[t]
	if !ok {
		return ""
	}
	return fmt.Sprintf(tmpl, quotedColumn)
}

// Operator returns the lookup operator table entry for a lookup name.
func (d *Dialect) Operator(lookup string) (OpSpec, bool) {
	op, ok := d.operators[lookup]
	return op, ok
}

// Rebind converts internal ? placeholders to the dialect's format.
func (d *Dialect) Rebind(sql string) (string, error) {
	return d.Placeholder.ReplacePlaceholders(sql)
}

// Inline substitutes ? placeholders with quoted literals, for DDL
// statements that cannot carry bound parameters. Placeholders inside
// quoted strings or names are left alone.
func (d *Dialect) Inline(sql string, params []any) (string, error) {
	var b strings.Builder
	var inString, inName bool
	idx := 0
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'' && !inName:
			inString = !inString
		case (ch == '"' || ch == '`') && !inString:
			inName = !inName
		case ch == '?' && !inString && !inName:
			if idx >= len(params) {
				return "", fmt.Errorf("placeholder %d has no parameter", idx+1)
			}
			lit, err := d.QuoteValue(params[idx])
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			idx++
			continue
		}
		b.WriteByte(ch)
	}
	if idx != len(params) {
		return "", fmt.Errorf("%d parameters for %d placeholders", len(params), idx)
	}
	return b.String(), nil
}

// LimitOne returns the clause restricting a result set to one row.
func (d *Dialect) LimitOne() string {
	return d.limitOne
}

// DualFrom returns the FROM clause required for a SELECT with no
// table, or "" where bare SELECTs are legal.
func (d *Dialect) DualFrom() string {
	if d.Features.RequiresDualForSelect {
		return " FROM DUAL"
	}
	return ""
}

// ByName resolves a dialect from its configuration name.
func ByName(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "oracle":
		return Oracle, nil
	}
	return nil, fmt.Errorf("unknown dialect %q", name)
}

func microseconds(v time.Duration) string {
	return strconv.FormatInt(v.Microseconds(), 10)
}

var PostgreSQL = &Dialect{
	Name: "postgres",
	Features: Features{
		SupportsAggregateFilterClause:       true,
		SupportsPartialIndexes:              true,
		SupportsDeferrableUniqueConstraints: true,
		SupportsCoveringIndexes:             true,
		SupportsExpressionIndexes:           true,
		HasNativeDuration:                   true,
	},
	Placeholder: sq.Dollar,
	operators: map[string]OpSpec{
		"exact":       {Template: "= ?"},
		"iexact":      {Template: "= UPPER(?)", UpperLHS: true},
		"gt":          {Template: "> ?"},
		"gte":         {Template: ">= ?"},
		"lt":          {Template: "< ?"},
		"lte":         {Template: "<= ?"},
		"contains":    {Template: "LIKE ?"},
		"icontains":   {Template: "LIKE UPPER(?)", UpperLHS: true},
		"startswith":  {Template: "LIKE ?"},
		"istartswith": {Template: "LIKE UPPER(?)", UpperLHS: true},
		"endswith":    {Template: "LIKE ?"},
		"iendswith":   {Template: "LIKE UPPER(?)", UpperLHS: true},
	},
	columnTypes: map[schema.FieldType]string{
		schema.TypeInt:         "integer",
		schema.TypeBigInt:      "bigint",
		schema.TypePositiveInt: "integer",
		schema.TypeFloat:       "double precision",
		schema.TypeDecimal:     "numeric",
		schema.TypeBool:        "boolean",
		schema.TypeText:        "text",
		schema.TypeChar:        "varchar(%d)",
		schema.TypeDate:        "date",
		schema.TypeTimestamp:   "timestamptz",
		schema.TypeDuration:    "interval",
		schema.TypeUUID:        "uuid",
		schema.TypeJSON:        "jsonb",
		schema.TypeArray:       "text[]",
	},
	columnChecks: map[schema.FieldType]string{
		schema.TypePositiveInt: "%s >= 0",
	},
	limitOne:     "LIMIT 1",
	booleanWords: true,
	durationLit: func(v time.Duration) string {
		return fmt.Sprintf("INTERVAL '%d microseconds'", v.Microseconds())
	},
}

var SQLite = &Dialect{
	Name: "sqlite",
	Features: Features{
		SupportsAggregateFilterClause: true,
		SupportsPartialIndexes:        true,
		SupportsExpressionIndexes:     true,
	},
	Placeholder: sq.Question,
	operators: map[string]OpSpec{
		"exact":       {Template: "= ?"},
		"iexact":      {Template: `LIKE ? ESCAPE '\'`},
		"gt":          {Template: "> ?"},
		"gte":         {Template: ">= ?"},
		"lt":          {Template: "< ?"},
		"lte":         {Template: "<= ?"},
		"contains":    {Template: `LIKE ? ESCAPE '\'`},
		"icontains":   {Template: `LIKE ? ESCAPE '\'`},
		"startswith":  {Template: `LIKE ? ESCAPE '\'`},
		"istartswith": {Template: `LIKE ? ESCAPE '\'`},
		"endswith":    {Template: `LIKE ? ESCAPE '\'`},
		"iendswith":   {Template: `LIKE ? ESCAPE '\'`},
	},
	columnTypes: map[schema.FieldType]string{
		schema.TypeInt:         "integer",
		schema.TypeBigInt:      "bigint",
		schema.TypePositiveInt: "integer unsigned",
		schema.TypeFloat:       "real",
		schema.TypeDecimal:     "decimal",
		schema.TypeBool:        "bool",
		schema.TypeText:        "text",
		schema.TypeChar:        "varchar(%d)",
		schema.TypeDate:        "date",
		schema.TypeTimestamp:   "datetime",
		schema.TypeDuration:    "bigint",
		schema.TypeUUID:        "char(32)",
		schema.TypeJSON:        "text",
	},
	columnChecks: map[schema.FieldType]string{
		schema.TypePositiveInt: "%s >= 0",
	},
	limitOne:     "LIMIT 1",
	booleanWords: false,
	durationLit:  microseconds,
}

var MySQL = &Dialect{
	Name: "mysql",
	Features: Features{
		RequiresDualForSelect: true,
		DurationAggregateCast: true,
	},
	Placeholder: sq.Question,
	operators: map[string]OpSpec{
		"exact":       {Template: "= ?"},
		"iexact":      {Template: "LIKE ?"},
		"gt":          {Template: "> ?"},
		"gte":         {Template: ">= ?"},
		"lt":          {Template: "< ?"},
		"lte":         {Template: "<= ?"},
		"contains":    {Template: "LIKE BINARY ?"},
		"icontains":   {Template: "LIKE ?"},
		"startswith":  {Template: "LIKE BINARY ?"},
		"istartswith": {Template: "LIKE ?"},
		"endswith":    {Template: "LIKE BINARY ?"},
		"iendswith":   {Template: "LIKE ?"},
	},
	columnTypes: map[schema.FieldType]string{
		schema.TypeInt:         "integer",
		schema.TypeBigInt:      "bigint",
		schema.TypePositiveInt: "integer unsigned",
		schema.TypeFloat:       "double precision",
		schema.TypeDecimal:     "numeric",
		schema.TypeBool:        "bool",
		schema.TypeText:        "longtext",
		schema.TypeChar:        "varchar(%d)",
		schema.TypeDate:        "date",
		schema.TypeTimestamp:   "datetime(6)",
		schema.TypeDuration:    "bigint",
		schema.TypeUUID:        "char(32)",
		schema.TypeJSON:        "json",
	},
	columnChecks: map[schema.FieldType]string{},
	backtick:     true,
	limitOne:     "LIMIT 1",
	booleanWords: true,
	durationLit:  microseconds,
}

var Oracle = &Dialect{
	Name: "oracle",
	Features: Features{
		SupportsDeferrableUniqueConstraints: true,
		SupportsExpressionIndexes:           true,
		InterpretsEmptyStringsAsNulls:       true,
		RequiresDualForSelect:               true,
		HasNativeDuration:                   true,
		DurationAggregateInterval:           true,
	},
	Placeholder: sq.Question,
	operators: map[string]OpSpec{
		"exact":       {Template: "= ?"},
		"iexact":      {Template: "= UPPER(?)", UpperLHS: true},
		"gt":          {Template: "> ?"},
		"gte":         {Template: ">= ?"},
		"lt":          {Template: "< ?"},
		"lte":         {Template: "<= ?"},
		"contains":    {Template: `LIKE ? ESCAPE '\'`},
		"icontains":   {Template: `LIKE UPPER(?) ESCAPE '\'`, UpperLHS: true},
		"startswith":  {Template: `LIKE ? ESCAPE '\'`},
		"istartswith": {Template: `LIKE UPPER(?) ESCAPE '\'`, UpperLHS: true},
		"endswith":    {Template: `LIKE ? ESCAPE '\'`},
		"iendswith":   {Template: `LIKE UPPER(?) ESCAPE '\'`, UpperLHS: true},
	},
	columnTypes: map[schema.FieldType]string{
		schema.TypeInt:         "number(11)",
		schema.TypeBigInt:      "number(19)",
		schema.TypePositiveInt: "number(11)",
		schema.TypeFloat:       "double precision",
		schema.TypeDecimal:     "number",
		schema.TypeBool:        "number(1)",
		schema.TypeText:        "nclob",
		schema.TypeChar:        "nvarchar2(%d)",
		schema.TypeDate:        "date",
		schema.TypeTimestamp:   "timestamp",
		schema.TypeDuration:    "interval day(9) to second(6)",
		schema.TypeUUID:        "varchar2(32)",
		schema.TypeJSON:        "nclob",
	},
	columnChecks: map[schema.FieldType]string{
		schema.TypePositiveInt: "%s >= 0",
		schema.TypeBool:        "%s IN (0,1)",
	},
	limitOne:     "FETCH FIRST 1 ROWS ONLY",
	booleanWords: false,
	durationLit: func(v time.Duration) string {
		return fmt.Sprintf("NUMTODSINTERVAL(%s, 'SECOND')", strconv.FormatFloat(v.Seconds(), 'f', 6, 64))
	},
}
