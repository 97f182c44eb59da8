package pgbulk

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/syssam/pgbulk/field"
)

// Builder accumulates the ordered parameter list of one statement and hands
// out numbered placeholders. One Builder serves exactly one compiled
// statement; it is never shared between batches.
type Builder struct {
	args []any
}

// Arg registers v as the next statement parameter and returns its
// placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Args returns the parameters registered so far, in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// FormatValue renders v as SQL for the given column: a placeholder bound to
// the converted value, or an inline NULL. With cast set, the result is
// wrapped in an explicit cast to the column's database type, pinning the
// column type of a VALUES relation.
func (b *Builder) FormatValue(spec *field.Spec, v any, cast bool) (string, error) {
	s, err := b.formatValue(spec, v)
	if err != nil {
		return "", err
	}
	if cast {
		s = castAs(s, spec.CastType())
	}
	return s, nil
}

func (b *Builder) formatValue(spec *field.Spec, v any) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch spec.Type {
	case field.Array:
		switch v := v.(type) {
		case string:
			// Already an array literal, e.g. "{}".
			return b.Arg(v), nil
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
				return "", fmt.Errorf("pgbulk: field %q: array value must be a slice, got %T", spec.Name, v)
			}
			return b.Arg(pq.Array(v)), nil
		}
	case field.JSON:
		switch v := v.(type) {
		case string:
			return b.Arg(v), nil
		case []byte:
			return b.Arg(v), nil
		case json.RawMessage:
			return b.Arg([]byte(v)), nil
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return "", fmt.Errorf("pgbulk: field %q: %w", spec.Name, err)
			}
			return b.Arg(string(data)), nil
		}
	case field.HStore:
		switch v := v.(type) {
		case string:
			return b.Arg(v), nil
		case map[string]string:
			return b.Arg(hstoreLiteral(v)), nil
		default:
			return "", fmt.Errorf("pgbulk: field %q: hstore value must be map[string]string or string, got %T", spec.Name, v)
		}
	case field.UUID:
		switch v := v.(type) {
		case uuid.UUID:
			return b.Arg(v), nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return "", fmt.Errorf("pgbulk: field %q: %w", spec.Name, err)
			}
			return b.Arg(id), nil
		default:
			return "", fmt.Errorf("pgbulk: field %q: uuid value must be uuid.UUID or string, got %T", spec.Name, v)
		}
	default:
		return b.Arg(v), nil
	}
}

// castAs wraps s in an explicit cast expression.
func castAs(s, typ string) string {
	return fmt.Sprintf("CAST(%s AS %s)", s, typ)
}

// quote returns the double-quoted form of an identifier.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// hstoreLiteral serializes m into the hstore input format with
// deterministic key order.
func hstoreLiteral(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=>%s", hstoreQuote(k), hstoreQuote(m[k]))
	}
	return sb.String()
}

func hstoreQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// collectionValues reports whether v is a collection (slice or array, but
// not a string or byte slice) and returns its length.
func collectionValues(v any) (int, bool) {
	switch v.(type) {
	case nil, string, []byte:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return 0, false
	}
	return rv.Len(), true
}
