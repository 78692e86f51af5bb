// Package schema describes tables and fields for SQL generation and
// constraint validation. Tables are declared in code, finalized once,
// and shared read-only afterwards.
package schema

import (
	"fmt"

	"github.com/jinzhu/inflection"
)

type FieldType string

const (
	TypeInt         FieldType = "INT"
	TypeBigInt      FieldType = "BIGINT"
	TypePositiveInt FieldType = "POSITIVE_INT"
	TypeFloat       FieldType = "FLOAT"
	TypeDecimal     FieldType = "DECIMAL"
	TypeBool        FieldType = "BOOL"
	TypeText        FieldType = "TEXT"
	TypeChar        FieldType = "CHAR"
	TypeDate        FieldType = "DATE"
	TypeTimestamp   FieldType = "TIMESTAMP"
	TypeDuration    FieldType = "DURATION"
	TypeUUID        FieldType = "UUID"
	TypeJSON        FieldType = "JSON"
	TypeArray       FieldType = "ARRAY"
)

// Numeric reports whether values of this type participate in numeric
// aggregation without a cast.
func (t FieldType) Numeric() bool {
	switch t {
	case TypeInt, TypeBigInt, TypePositiveInt, TypeFloat, TypeDecimal:
		return true
	}
	return false
}

type Field struct {
	Name       string
	Column     string // storage column, defaults to Name
	Type       FieldType
	Nullable   bool
	MaxLength  int // for TypeChar
	PrimaryKey bool
	Default    any // literal DEFAULT rendered into DDL, nil means none
}

// Constraint is implemented by table-level constraints. Concrete
// implementations live in the constraint package.
type Constraint interface {
	ConstraintName() string
}

// Row holds in-memory field values for a single table row, keyed by
// field name. A nil value means SQL NULL; an absent key means the
// caller does not know the value.
type Row map[string]any

type Table struct {
	Name        string
	DBTable     string // storage table, defaults to the pluralized Name
	Fields      []Field
	Constraints []Constraint

	byName map[string]*Field
	pk     *Field
}

// New builds and finalizes a table definition.
func New(name string, fields ...Field) (*Table, error) {
	t := &Table{Name: name, Fields: fields}
	if err := t.Finalize(); err != nil {
		return nil, err
	}
	return t, nil
}

// Must is New that panics on error, for statically declared tables.
func Must(name string, fields ...Field) *Table {
	t, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return t
}

// Finalize fills defaults, builds the field index, and checks the
// definition. It is idempotent; Registry.Register calls it again so
// tables edited after New stay consistent.
func (t *Table) Finalize() error {
	if t.Name == "" {
		return fmt.Errorf("schema: table name is required")
	}
	if t.DBTable == "" {
		t.DBTable = inflection.Plural(t.Name)
	}
	byName := make(map[string]*Field, len(t.Fields))
	var pk *Field
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema: table %q: field %d has no name", t.Name, i)
		}
		if _, dup := byName[f.Name]; dup {
			return fmt.Errorf("schema: table %q: duplicate field %q", t.Name, f.Name)
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		byName[f.Name] = f
		if f.PrimaryKey {
			if pk != nil {
				return fmt.Errorf("schema: table %q: multiple primary key fields", t.Name)
			}
			pk = f
		}
	}
	if pk == nil {
		return fmt.Errorf("schema: table %q: no primary key field", t.Name)
	}
	t.byName = byName
	t.pk = pk
	return nil
}

// Field returns the named field, or nil if the table has none.
func (t *Table) Field(name string) *Field {
	return t.byName[name]
}

// PrimaryKey returns the table's primary key field.
func (t *Table) PrimaryKey() *Field {
	return t.pk
}
