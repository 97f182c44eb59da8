package pgbulk

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbulk/field"
)

func TestBuilderArgs(t *testing.T) {
	t.Parallel()
	b := &Builder{}
	assert.Equal(t, "$1", b.Arg(1))
	assert.Equal(t, "$2", b.Arg("x"))
	assert.Equal(t, []any{1, "x"}, b.Args())
}

func TestBuilderFormatValue(t *testing.T) {
	t.Parallel()

	t.Run("nil is inline NULL", func(t *testing.T) {
		b := &Builder{}
		s, err := b.FormatValue(&field.Spec{Name: "n", Type: field.Int, Nullable: true}, nil, false)
		require.NoError(t, err)
		assert.Equal(t, "NULL", s)
		assert.Empty(t, b.Args())

		s, err = b.FormatValue(&field.Spec{Name: "n", Type: field.Int, Nullable: true}, nil, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST(NULL AS bigint)", s)
	})
	t.Run("scalar", func(t *testing.T) {
		b := &Builder{}
		s, err := b.FormatValue(&field.Spec{Name: "n", Type: field.Int}, 7, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST($1 AS bigint)", s)
		assert.Equal(t, []any{7}, b.Args())
	})
	t.Run("array", func(t *testing.T) {
		b := &Builder{}
		spec := &field.Spec{Name: "tags", Type: field.Array, Elem: field.Text}
		s, err := b.FormatValue(spec, []string{"a", "b"}, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST($1 AS text[])", s)
		assert.Equal(t, []any{pq.Array([]string{"a", "b"})}, b.Args())

		// A literal string passes through as one parameter.
		s, err = b.FormatValue(spec, "{}", false)
		require.NoError(t, err)
		assert.Equal(t, "$2", s)

		_, err = b.FormatValue(spec, 42, false)
		assert.Error(t, err)
	})
	t.Run("json", func(t *testing.T) {
		b := &Builder{}
		spec := &field.Spec{Name: "meta", Type: field.JSON}
		s, err := b.FormatValue(spec, map[string]any{"a": 1}, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST($1 AS jsonb)", s)
		assert.Equal(t, []any{`{"a":1}`}, b.Args())

		_, err = b.FormatValue(spec, `{"b":2}`, false)
		require.NoError(t, err)
		assert.Equal(t, `{"b":2}`, b.Args()[1])
	})
	t.Run("hstore", func(t *testing.T) {
		b := &Builder{}
		spec := &field.Spec{Name: "attrs", Type: field.HStore}
		s, err := b.FormatValue(spec, map[string]string{"b": "2", "a": "1"}, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST($1 AS hstore)", s)
		// Keys serialize in sorted order.
		assert.Equal(t, []any{`"a"=>"1", "b"=>"2"`}, b.Args())

		_, err = b.FormatValue(spec, 42, false)
		assert.Error(t, err)
	})
	t.Run("uuid", func(t *testing.T) {
		b := &Builder{}
		spec := &field.Spec{Name: "uid", Type: field.UUID}
		id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		s, err := b.FormatValue(spec, id, true)
		require.NoError(t, err)
		assert.Equal(t, "CAST($1 AS uuid)", s)

		_, err = b.FormatValue(spec, id.String(), false)
		require.NoError(t, err)
		assert.Equal(t, id, b.Args()[1])

		_, err = b.FormatValue(spec, "not-a-uuid", false)
		assert.Error(t, err)
	})
}

func TestQuote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"name"`, quote("name"))
	assert.Equal(t, `"we""ird"`, quote(`we"ird`))
}

func TestHStoreQuoting(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"k\"ey"=>"v\\al"`, hstoreLiteral(map[string]string{`k"ey`: `v\al`}))
}

func TestCollectionValues(t *testing.T) {
	t.Parallel()
	n, ok := collectionValues([]int{1, 2, 3})
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = collectionValues("abc")
	assert.False(t, ok)
	_, ok = collectionValues([]byte("abc"))
	assert.False(t, ok)
	_, ok = collectionValues(nil)
	assert.False(t, ok)
	_, ok = collectionValues(42)
	assert.False(t, ok)

	n, ok = collectionValues([]string{})
	assert.True(t, ok)
	assert.Equal(t, 0, n)
}
