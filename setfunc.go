package pgbulk

import (
	"fmt"

	"github.com/syssam/pgbulk/field"
)

// SetFunc compiles the assignment of one column. UpdateExpr produces the
// right-hand side of a SET item, with prev referencing the stored value and
// ref the incoming one; InsertExpr produces the VALUES item for a freshly
// created row, where no stored value exists.
type SetFunc interface {
	// Aliases returns the names the function answers to. The first alias
	// is canonical and appears in error messages.
	Aliases() []string
	// Supports reports whether the function can target a column of the
	// given class.
	Supports(c field.Class) bool
	// NeedsValue reports whether the function consumes a row value.
	// Value-free functions may be attached to columns absent from the
	// input rows.
	NeedsValue() bool
	// FormatValue renders the incoming row value; the result becomes ref.
	FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error)
	// UpdateExpr renders the new column value for an existing row.
	UpdateExpr(b *Builder, spec *field.Spec, ref, prev string) (string, error)
	// InsertExpr renders the column value for a created row.
	InsertExpr(b *Builder, spec *field.Spec, ref string) (string, error)
}

// scalarFunc supplies the common scalar behavior: one value per row,
// formatted by the column's own rules.
type scalarFunc struct{}

func (scalarFunc) NeedsValue() bool { return true }

func (scalarFunc) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	return b.FormatValue(spec, v, cast)
}

// nullDefault binds the class null-substitute as a cast parameter. Functions
// built on COALESCE use it to keep NULL stored values from poisoning the
// arithmetic.
func nullDefault(b *Builder, spec *field.Spec, name string) (string, error) {
	def, ok := spec.NullDefault()
	if !ok {
		return "", &UnsupportedFieldTypeError{Name: name, Field: spec.Name, Class: spec.Type}
	}
	return b.FormatValue(spec, def, true)
}

type eqFunc struct{ scalarFunc }

func (eqFunc) Aliases() []string { return []string{"eq", "="} }

func (eqFunc) Supports(field.Class) bool { return true }

func (eqFunc) UpdateExpr(_ *Builder, _ *field.Spec, ref, _ string) (string, error) {
	return ref, nil
}

func (eqFunc) InsertExpr(_ *Builder, _ *field.Spec, ref string) (string, error) {
	return ref, nil
}

// eqNotNullFunc writes the incoming value only when it is not NULL,
// otherwise the stored value survives.
type eqNotNullFunc struct{ scalarFunc }

func (eqNotNullFunc) Aliases() []string { return []string{"eq_not_null"} }

func (eqNotNullFunc) Supports(field.Class) bool { return true }

func (eqNotNullFunc) UpdateExpr(_ *Builder, _ *field.Spec, ref, prev string) (string, error) {
	return fmt.Sprintf("COALESCE(%s, %s)", ref, prev), nil
}

func (eqNotNullFunc) InsertExpr(b *Builder, spec *field.Spec, ref string) (string, error) {
	if !spec.HasDefault() {
		return ref, nil
	}
	def, err := b.FormatValue(spec, spec.DefaultValue(), true)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COALESCE(%s, %s)", ref, def), nil
}

type incrFunc struct{ scalarFunc }

func (incrFunc) Aliases() []string { return []string{"incr", "+"} }

func (incrFunc) Supports(c field.Class) bool { return c.Numeric() }

func (incrFunc) UpdateExpr(b *Builder, spec *field.Spec, ref, prev string) (string, error) {
	def, err := nullDefault(b, spec, "incr")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COALESCE(%s, %s) + %s", prev, def, ref), nil
}

func (incrFunc) InsertExpr(_ *Builder, _ *field.Spec, ref string) (string, error) {
	return ref, nil
}

// concatFunc appends with the backend || operator, which covers text,
// arrays, jsonb and hstore alike.
type concatFunc struct{ scalarFunc }

func (concatFunc) Aliases() []string { return []string{"concat", "||"} }

func (concatFunc) Supports(c field.Class) bool {
	switch c {
	case field.Text, field.Array, field.JSON, field.HStore:
		return true
	}
	return false
}

func (concatFunc) UpdateExpr(b *Builder, spec *field.Spec, ref, prev string) (string, error) {
	def, err := nullDefault(b, spec, "concat")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COALESCE(%s, %s) || %s", prev, def, ref), nil
}

func (concatFunc) InsertExpr(_ *Builder, _ *field.Spec, ref string) (string, error) {
	return ref, nil
}

// unionFunc merges two arrays and deduplicates the result. Element order of
// the stored value is not preserved.
type unionFunc struct{ scalarFunc }

func (unionFunc) Aliases() []string { return []string{"union"} }

func (unionFunc) Supports(c field.Class) bool { return c == field.Array }

func (unionFunc) UpdateExpr(b *Builder, spec *field.Spec, ref, prev string) (string, error) {
	def, err := nullDefault(b, spec, "union")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ARRAY(SELECT DISTINCT UNNEST(COALESCE(%s, %s) || %s))", prev, def, ref), nil
}

func (unionFunc) InsertExpr(_ *Builder, _ *field.Spec, ref string) (string, error) {
	return ref, nil
}

// arrayRemoveFunc deletes every occurrence of a single element; the row
// value is typed as the array's element, not as an array.
type arrayRemoveFunc struct{}

func (arrayRemoveFunc) Aliases() []string { return []string{"array_remove"} }

func (arrayRemoveFunc) Supports(c field.Class) bool { return c == field.Array }

func (arrayRemoveFunc) NeedsValue() bool { return true }

func (arrayRemoveFunc) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	return b.FormatValue(spec.ElemSpec(), v, cast)
}

func (arrayRemoveFunc) UpdateExpr(b *Builder, spec *field.Spec, ref, prev string) (string, error) {
	def, err := nullDefault(b, spec, "array_remove")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("array_remove(COALESCE(%s, %s), %s)", prev, def, ref), nil
}

func (arrayRemoveFunc) InsertExpr(b *Builder, spec *field.Spec, _ string) (string, error) {
	if spec.HasDefault() {
		return b.FormatValue(spec, spec.DefaultValue(), true)
	}
	return b.FormatValue(spec, "{}", true)
}

// nowFunc stamps the statement clock. With ifAbsent set it only fills a
// missing value, which backs creation timestamps.
type nowFunc struct {
	ifAbsent bool
}

func (f nowFunc) Aliases() []string {
	if f.ifAbsent {
		return []string{"now_if_null"}
	}
	return []string{"now"}
}

func (nowFunc) Supports(c field.Class) bool { return c == field.Time }

func (nowFunc) NeedsValue() bool { return false }

func (nowFunc) FormatValue(_ *Builder, _ *field.Spec, _ any, _ bool) (string, error) {
	return "", nil
}

func (f nowFunc) UpdateExpr(_ *Builder, _ *field.Spec, _, prev string) (string, error) {
	if f.ifAbsent {
		return fmt.Sprintf("COALESCE(%s, NOW())", prev), nil
	}
	return "NOW()", nil
}

func (nowFunc) InsertExpr(_ *Builder, _ *field.Spec, _ string) (string, error) {
	return "NOW()", nil
}
