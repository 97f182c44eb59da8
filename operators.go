package pgbulk

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/syssam/pgbulk/field"
)

// Operator compiles one comparison between a table column and a per-row
// value reference. Implementations are stateless; a single instance serves
// every statement that names one of its aliases.
type Operator interface {
	// Aliases returns the names the operator answers to. The first alias
	// is canonical and appears in error messages.
	Aliases() []string
	// Predicate renders the comparison of column against ref, where ref
	// is either a placeholder expression or a source-relation column.
	Predicate(column, ref string) string
	// FormatValue renders the row value the operator compares against.
	// Operators that consume a collection or encode the value inline
	// override the default scalar formatting.
	FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error)
}

// emptyCollectionOperator is implemented by operators whose predicate
// degenerates to a constant when the row value is an empty collection.
type emptyCollectionOperator interface {
	emptyPredicate() string
}

type eqOperator struct{}

func (eqOperator) Aliases() []string { return []string{"eq", "=", "=="} }

func (eqOperator) Predicate(column, ref string) string {
	return fmt.Sprintf("%s = %s", column, ref)
}

func (eqOperator) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	return b.FormatValue(spec, v, cast)
}

type neOperator struct{}

func (neOperator) Aliases() []string { return []string{"ne", "!eq", "!=", "<>"} }

func (neOperator) Predicate(column, ref string) string {
	return fmt.Sprintf("%s <> %s", column, ref)
}

func (neOperator) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	return b.FormatValue(spec, v, cast)
}

// cmpOperator covers the four ordering comparisons. They reject field
// classes without a defined ordering.
type cmpOperator struct {
	aliases []string
	op      string
}

func (o cmpOperator) Aliases() []string { return o.aliases }

func (o cmpOperator) Predicate(column, ref string) string {
	return fmt.Sprintf("%s %s %s", column, o.op, ref)
}

func (o cmpOperator) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	if !spec.Type.Comparable() {
		return "", &UnsupportedFieldTypeError{Name: o.aliases[0], Field: spec.Name, Class: spec.Type}
	}
	return b.FormatValue(spec, v, cast)
}

// inOperator binds the whole candidate collection as a single array
// parameter and compares with = ANY, so one VALUES column carries an
// arbitrary-size membership test.
type inOperator struct {
	negate bool
}

func (o inOperator) Aliases() []string {
	if o.negate {
		return []string{"not_in", "!in"}
	}
	return []string{"in"}
}

func (o inOperator) Predicate(column, ref string) string {
	if o.negate {
		return fmt.Sprintf("NOT (%s = ANY(%s))", column, ref)
	}
	return fmt.Sprintf("%s = ANY(%s)", column, ref)
}

func (o inOperator) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	if _, ok := collectionValues(v); !ok {
		return "", fmt.Errorf("pgbulk: operator %q: value for field %q must be a slice, got %T", o.Aliases()[0], spec.Name, v)
	}
	s := b.Arg(pq.Array(v))
	if cast {
		s = castAs(s, spec.CastType()+"[]")
	}
	return s, nil
}

func (o inOperator) emptyPredicate() string {
	if o.negate {
		return "TRUE"
	}
	return "FALSE"
}

// betweenOperator expects a two-element collection and encodes it as one
// array value, so the bounds travel in a single VALUES column.
type betweenOperator struct{}

func (betweenOperator) Aliases() []string { return []string{"between"} }

func (betweenOperator) Predicate(column, ref string) string {
	return fmt.Sprintf("%s BETWEEN (%s)[1] AND (%s)[2]", column, ref, ref)
}

func (o betweenOperator) FormatValue(b *Builder, spec *field.Spec, v any, cast bool) (string, error) {
	if !spec.Type.Comparable() {
		return "", &UnsupportedFieldTypeError{Name: "between", Field: spec.Name, Class: spec.Type}
	}
	n, ok := collectionValues(v)
	if !ok {
		return "", fmt.Errorf("pgbulk: operator \"between\": value for field %q must be a two-element slice, got %T", spec.Name, v)
	}
	if n != 2 {
		return "", &ArityError{Op: "between", Want: "a [low, high] pair", Got: v}
	}
	s := b.Arg(pq.Array(v))
	if cast {
		s = castAs(s, spec.CastType()+"[]")
	}
	return s, nil
}

// isNullOperator takes a boolean row value and inlines it as a literal, so
// the same shape works both as a direct predicate and per row inside a
// VALUES relation.
type isNullOperator struct{}

func (isNullOperator) Aliases() []string { return []string{"is_null", "isnull"} }

func (isNullOperator) Predicate(column, ref string) string {
	return fmt.Sprintf("(%s IS NULL) = %s", column, ref)
}

func (isNullOperator) FormatValue(_ *Builder, spec *field.Spec, v any, _ bool) (string, error) {
	want, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("pgbulk: operator \"is_null\": value for field %q must be a bool, got %T", spec.Name, v)
	}
	if want {
		return "TRUE", nil
	}
	return "FALSE", nil
}
