package pgbulk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbulk/field"
)

func TestSetFuncAliases(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for alias, canonical := range map[string]string{
		"eq": "eq", "=": "eq",
		"eq_not_null": "eq_not_null",
		"incr":        "incr", "+": "incr",
		"concat": "concat", "||": "concat",
		"union":        "union",
		"array_remove": "array_remove",
		"now":          "now",
		"now_if_null":  "now_if_null",
	} {
		fn, err := reg.SetFunc(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, canonical, fn.Aliases()[0], alias)
	}
	_, err := reg.SetFunc("scramble")
	assert.True(t, IsUnknownSetFunction(err))
}

func TestEqFuncExprs(t *testing.T) {
	t.Parallel()
	spec := &field.Spec{Name: "name", Type: field.Text}
	fn := eqFunc{}
	upd, err := fn.UpdateExpr(&Builder{}, spec, `src."upd_name"`, `t."name"`)
	require.NoError(t, err)
	assert.Equal(t, `src."upd_name"`, upd)
	ins, err := fn.InsertExpr(&Builder{}, spec, "$1")
	require.NoError(t, err)
	assert.Equal(t, "$1", ins)
}

func TestEqNotNullFuncExprs(t *testing.T) {
	t.Parallel()
	fn := eqNotNullFunc{}
	spec := &field.Spec{Name: "name", Type: field.Text}
	upd, err := fn.UpdateExpr(&Builder{}, spec, "$1", `t."name"`)
	require.NoError(t, err)
	assert.Equal(t, `COALESCE($1, t."name")`, upd)

	// Insert without a declared default keeps the incoming value as is.
	ins, err := fn.InsertExpr(&Builder{}, spec, "$1")
	require.NoError(t, err)
	assert.Equal(t, "$1", ins)

	// With a declared default, NULL falls back to it.
	b := &Builder{}
	withDefault := &field.Spec{Name: "name", Type: field.Text, Default: "anon"}
	ins, err = fn.InsertExpr(b, withDefault, "$1")
	require.NoError(t, err)
	assert.Equal(t, "COALESCE($1, CAST($2 AS text))", ins)
	assert.Equal(t, []any{"anon"}, b.Args())
}

func TestIncrFuncExprs(t *testing.T) {
	t.Parallel()
	fn := incrFunc{}
	assert.True(t, fn.Supports(field.Int))
	assert.True(t, fn.Supports(field.Float))
	assert.False(t, fn.Supports(field.Text))

	b := &Builder{}
	spec := &field.Spec{Name: "n", Type: field.Int, Nullable: true}
	upd, err := fn.UpdateExpr(b, spec, `src."upd_n"`, `t."n"`)
	require.NoError(t, err)
	assert.Equal(t, `COALESCE(t."n", CAST($1 AS bigint)) + src."upd_n"`, upd)
	assert.Equal(t, []any{0}, b.Args())
}

func TestConcatFuncExprs(t *testing.T) {
	t.Parallel()
	fn := concatFunc{}
	assert.True(t, fn.Supports(field.Text))
	assert.True(t, fn.Supports(field.Array))
	assert.True(t, fn.Supports(field.JSON))
	assert.True(t, fn.Supports(field.HStore))
	assert.False(t, fn.Supports(field.Int))

	b := &Builder{}
	spec := &field.Spec{Name: "name", Type: field.Text}
	upd, err := fn.UpdateExpr(b, spec, `src."upd_name"`, `t."name"`)
	require.NoError(t, err)
	assert.Equal(t, `COALESCE(t."name", CAST($1 AS text)) || src."upd_name"`, upd)
	assert.Equal(t, []any{""}, b.Args())
}

func TestUnionFuncExprs(t *testing.T) {
	t.Parallel()
	fn := unionFunc{}
	assert.True(t, fn.Supports(field.Array))
	assert.False(t, fn.Supports(field.Text))

	b := &Builder{}
	spec := &field.Spec{Name: "tags", Type: field.Array, Elem: field.Int, Nullable: true}
	upd, err := fn.UpdateExpr(b, spec, `src."upd_tags"`, `t."tags"`)
	require.NoError(t, err)
	assert.Equal(t,
		`ARRAY(SELECT DISTINCT UNNEST(COALESCE(t."tags", CAST($1 AS bigint[])) || src."upd_tags"))`,
		upd,
	)
	assert.Equal(t, []any{"{}"}, b.Args())
}

func TestArrayRemoveFuncExprs(t *testing.T) {
	t.Parallel()
	fn := arrayRemoveFunc{}
	spec := &field.Spec{Name: "tags", Type: field.Array, Elem: field.Int, Nullable: true}

	// The row value is a single element, not an array.
	b := &Builder{}
	ref, err := fn.FormatValue(b, spec, 7, true)
	require.NoError(t, err)
	assert.Equal(t, "CAST($1 AS bigint)", ref)
	assert.Equal(t, []any{7}, b.Args())

	upd, err := fn.UpdateExpr(b, spec, ref, `t."tags"`)
	require.NoError(t, err)
	assert.Equal(t, `array_remove(COALESCE(t."tags", CAST($2 AS bigint[])), CAST($1 AS bigint))`, upd)
}

func TestNowFuncExprs(t *testing.T) {
	t.Parallel()
	spec := &field.Spec{Name: "updated_at", Type: field.Time}

	fn := nowFunc{}
	assert.False(t, fn.NeedsValue())
	assert.True(t, fn.Supports(field.Time))
	assert.False(t, fn.Supports(field.Int))
	upd, err := fn.UpdateExpr(&Builder{}, spec, "", `t."updated_at"`)
	require.NoError(t, err)
	assert.Equal(t, "NOW()", upd)

	ifAbsent := nowFunc{ifAbsent: true}
	upd, err = ifAbsent.UpdateExpr(&Builder{}, spec, "", `t."updated_at"`)
	require.NoError(t, err)
	assert.Equal(t, `COALESCE(t."updated_at", NOW())`, upd)
	ins, err := ifAbsent.InsertExpr(&Builder{}, spec, "")
	require.NoError(t, err)
	assert.Equal(t, "NOW()", ins)
}
