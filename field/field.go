// Package field defines the column metadata consumed by the pgbulk
// statement compiler.
//
// A Spec describes a single column: its declared type class, nullability,
// default value and automatic-timestamp behavior. A Table groups the specs
// of one relation and acts as the read-only metadata provider for all
// compilation entry points. Specs are plain values; pgbulk never mutates
// them after construction.
package field

import (
	"fmt"
	"time"
)

// A Class is the declared type class of a column. Set functions and clause
// operators dispatch on the class, not on the Go type of the supplied value.
type Class int

// Type classes supported by the compiler.
const (
	Invalid Class = iota
	Int
	Float
	Bool
	Text
	Time
	UUID
	Bytes
	Array
	JSON
	HStore
	Range
)

var classNames = [...]string{
	Invalid: "invalid",
	Int:     "int",
	Float:   "float",
	Bool:    "bool",
	Text:    "text",
	Time:    "time",
	UUID:    "uuid",
	Bytes:   "bytes",
	Array:   "array",
	JSON:    "json",
	HStore:  "hstore",
	Range:   "range",
}

// String returns the class name.
func (c Class) String() string {
	if c < Invalid || int(c) >= len(classNames) {
		return classNames[Invalid]
	}
	return classNames[c]
}

// Numeric reports whether the class supports arithmetic.
func (c Class) Numeric() bool { return c == Int || c == Float }

// Comparable reports whether values of the class have a total order
// usable with <, <=, > and >=.
func (c Class) Comparable() bool {
	switch c {
	case Int, Float, Text, Time, UUID, Bytes:
		return true
	}
	return false
}

// dbTypes maps a class to the database type used in cast expressions.
var dbTypes = [...]string{
	Int:    "bigint",
	Float:  "double precision",
	Bool:   "boolean",
	Text:   "text",
	Time:   "timestamptz",
	UUID:   "uuid",
	Bytes:  "bytea",
	JSON:   "jsonb",
	HStore: "hstore",
	Range:  "int8range",
}

// Spec describes one column of a table.
type Spec struct {
	// Name is the column name.
	Name string
	// Type is the declared type class.
	Type Class
	// Elem is the element class for Array columns.
	Elem Class
	// Nullable reports whether the column accepts NULL.
	Nullable bool
	// DBType overrides the database type derived from Type in cast
	// expressions (e.g. "integer" instead of "bigint").
	DBType string
	// Default is a constant default value inserted by bulk create when the
	// column is absent from the row set.
	Default any
	// DefaultFunc generates a default value per inserted row. It takes
	// precedence over Default.
	DefaultFunc func() any
	// AutoNow assigns the current time on every update when no set
	// function was supplied for the column.
	AutoNow bool
	// AutoNowAdd assigns the current time on insert, and on update only
	// when the stored value is NULL.
	AutoNowAdd bool
}

// CastType returns the database type used when casting values of this column.
func (s *Spec) CastType() string {
	if s.DBType != "" {
		return s.DBType
	}
	if s.Type == Array {
		return dbTypes[s.Elem] + "[]"
	}
	if s.Type == Invalid || int(s.Type) >= len(dbTypes) {
		return "text"
	}
	return dbTypes[s.Type]
}

// ElemSpec returns a synthetic spec describing a single element of an Array
// column. It is used by set functions that operate element-wise.
func (s *Spec) ElemSpec() *Spec {
	return &Spec{Name: s.Name, Type: s.Elem, Nullable: true, DBType: dbTypes[s.Elem]}
}

// HasDefault reports whether the column declares any default value.
func (s *Spec) HasDefault() bool {
	return s.Default != nil || s.DefaultFunc != nil
}

// DefaultValue returns the column default, evaluating DefaultFunc if set.
func (s *Spec) DefaultValue() any {
	if s.DefaultFunc != nil {
		return s.DefaultFunc()
	}
	return s.Default
}

// epoch is the zero point used for time null-defaults.
var epoch = time.Unix(0, 0).UTC()

// NullDefault returns the value substituted for NULL when a set function
// reads the previous column value (e.g. incr, concat, union). The second
// return value reports whether the class has a defined null-default.
func (s *Spec) NullDefault() (any, bool) {
	switch s.Type {
	case Int, Float:
		return 0, true
	case Bool:
		// There is no obviously correct boolean default. The value is kept
		// for compatibility with the update semantics of eq_not_null.
		return true, true
	case Text, UUID:
		return "", true
	case Bytes:
		return []byte{}, true
	case Time:
		return epoch, true
	case Array:
		return "{}", true
	case JSON:
		return "{}", true
	case HStore:
		return "", true
	case Range:
		return "[0,0]", true
	}
	return nil, false
}

// Table is the metadata provider for one relation: its name and the specs
// of its columns. Callers construct it once and share it across calls.
type Table struct {
	name    string
	columns []*Spec
	index   map[string]*Spec
}

// NewTable returns a Table for the named relation with the given columns.
func NewTable(name string, columns ...*Spec) *Table {
	t := &Table{
		name:    name,
		columns: columns,
		index:   make(map[string]*Spec, len(columns)),
	}
	for _, c := range columns {
		t.index[c.Name] = c
	}
	return t
}

// Name returns the relation name.
func (t *Table) Name() string { return t.name }

// Columns returns the column specs in declaration order.
func (t *Table) Columns() []*Spec { return t.columns }

// Field returns the spec of the named column.
func (t *Table) Field(name string) (*Spec, error) {
	s, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("field: table %q has no column %q", t.name, name)
	}
	return s, nil
}

// Has reports whether the table declares the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}
