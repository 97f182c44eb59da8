package pgbulk

import (
	"fmt"
	"strings"

	"github.com/syssam/pgbulk/field"
)

// Stmt is one compiled statement: SQL text with numbered placeholders and
// the parameters bound to them, in placeholder order.
type Stmt struct {
	SQL  string
	Args []any
}

// keyColumn is one resolved key field of a plan.
type keyColumn struct {
	spec *field.Spec
	op   Operator
}

// srcAlias names the key's column in the VALUES source relation. The
// positional prefix keeps aliases unique when a field serves as both key
// and update target.
func (k keyColumn) srcAlias(i int) string {
	return fmt.Sprintf("key_%d_%s", i, k.spec.Name)
}

// setColumn is one resolved update target of a plan.
type setColumn struct {
	spec     *field.Spec
	fn       SetFunc
	hasValue bool // the input rows carry a value for this column
	defValue bool // the value comes from the column default instead
	keyIndex int  // >= 0 when inserting a key column; index into KeyedRow.Key
}

func (s setColumn) srcAlias() string {
	return "upd_" + s.spec.Name
}

// plan is a validated compilation input: the table, the resolved key and
// update columns, and the call modifiers. A plan compiles any batch of rows
// sharing its shape.
type plan struct {
	table     *field.Table
	keys      []keyColumn
	sets      []setColumn
	defaults  []setColumn
	where     Expr
	returning []*field.Spec
	reg       *Registry
	update    bool
}

// compileUpdate renders one batch as a single UPDATE driven by an inline
// VALUES relation. Only the first VALUES row carries explicit casts; the
// remaining rows inherit the column types.
func compileUpdate(p *plan, rows []KeyedRow) (*Stmt, error) {
	b := &Builder{}
	setSQL, err := updateSetClause(b, p.sets, func(sc setColumn) string {
		return "src." + quote(sc.srcAlias())
	}, func(sc setColumn) string {
		return "t." + quote(sc.spec.Name)
	})
	if err != nil {
		return nil, err
	}
	valuesSQL, srcSQL, err := valuesRelation(b, p, rows)
	if err != nil {
		return nil, err
	}
	conds := make([]string, len(p.keys))
	for i, k := range p.keys {
		conds[i] = k.op.Predicate("t."+quote(k.spec.Name), "src."+quote(k.srcAlias(i)))
	}
	whereSQL := strings.Join(conds, " AND ")
	if p.where != nil {
		ws, err := p.where.compile(&exprContext{b: b, table: p.table, alias: "t", reg: p.reg})
		if err != nil {
			return nil, err
		}
		whereSQL = "(" + whereSQL + ") AND (" + ws + ")"
	}
	sql := fmt.Sprintf("UPDATE %s AS t SET %s FROM (VALUES %s) AS src(%s) WHERE %s",
		quote(p.table.Name()), setSQL, valuesSQL, srcSQL, whereSQL)
	sql += returningClause(p.returning)
	return &Stmt{SQL: sql, Args: b.Args()}, nil
}

// compileInsert renders one batch as a multi-row INSERT. Key columns, row
// columns and default columns all become insert targets.
func compileInsert(p *plan, rows []KeyedRow) (*Stmt, error) {
	b := &Builder{}
	cols := insertColumns(p)
	rowsSQL, err := insertRows(b, cols, rows)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quote(p.table.Name()), insertNames(cols), rowsSQL)
	sql += returningClause(p.returning)
	return &Stmt{SQL: sql, Args: b.Args()}, nil
}

// compileUpsert renders one batch as INSERT ... ON CONFLICT over the key
// columns. Without update mode, or without update targets, conflicts are
// skipped instead of updated.
func compileUpsert(p *plan, rows []KeyedRow) (*Stmt, error) {
	b := &Builder{}
	cols := insertColumns(p)
	rowsSQL, err := insertRows(b, cols, rows)
	if err != nil {
		return nil, err
	}
	keyNames := make([]string, len(p.keys))
	for i, k := range p.keys {
		keyNames[i] = quote(k.spec.Name)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s)",
		quote(p.table.Name()), insertNames(cols), rowsSQL, strings.Join(keyNames, ", "))
	if !p.update || len(p.sets) == 0 {
		sql += " DO NOTHING"
	} else {
		setSQL, err := updateSetClause(b, p.sets, func(sc setColumn) string {
			return "EXCLUDED." + quote(sc.spec.Name)
		}, func(sc setColumn) string {
			return quote(p.table.Name()) + "." + quote(sc.spec.Name)
		})
		if err != nil {
			return nil, err
		}
		sql += " DO UPDATE SET " + setSQL
	}
	sql += returningClause(p.returning)
	return &Stmt{SQL: sql, Args: b.Args()}, nil
}

// compileSelectKeys renders the locking SELECT that partitions a batch into
// existing and absent rows inside the transactional upsert.
func compileSelectKeys(p *plan, rows []KeyedRow) (*Stmt, error) {
	b := &Builder{}
	disj := make([]Expr, len(rows))
	for ri, r := range rows {
		conj := make([]Expr, len(p.keys))
		for i, k := range p.keys {
			conj[i] = Pred(k.spec.Name, nil, r.Key[i])
		}
		disj[ri] = And(conj...)
	}
	where, err := Or(disj...).compile(&exprContext{b: b, table: p.table, reg: p.reg})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(p.keys))
	for i, k := range p.keys {
		names[i] = quote(k.spec.Name)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s FOR UPDATE",
		strings.Join(names, ", "), quote(p.table.Name()), where)
	return &Stmt{SQL: sql, Args: b.Args()}, nil
}

// updateSetClause renders the SET items of an UPDATE or a DO UPDATE, with
// ref and prev supplying the incoming- and stored-value references per
// column.
func updateSetClause(b *Builder, sets []setColumn, ref, prev func(setColumn) string) (string, error) {
	parts := make([]string, len(sets))
	for i, sc := range sets {
		var r string
		if sc.hasValue {
			r = ref(sc)
		}
		expr, err := sc.fn.UpdateExpr(b, sc.spec, r, prev(sc))
		if err != nil {
			return "", err
		}
		parts[i] = quote(sc.spec.Name) + " = " + expr
	}
	return strings.Join(parts, ", "), nil
}

// valuesRelation renders the (VALUES ...) rows and the src column list for
// an UPDATE. Key columns come first, in key order, then the update columns
// that carry row values.
func valuesRelation(b *Builder, p *plan, rows []KeyedRow) (values, src string, err error) {
	var srcCols []string
	for i, k := range p.keys {
		srcCols = append(srcCols, quote(k.srcAlias(i)))
	}
	for _, sc := range p.sets {
		if sc.hasValue {
			srcCols = append(srcCols, quote(sc.srcAlias()))
		}
	}
	rowParts := make([]string, len(rows))
	for ri, r := range rows {
		cast := ri == 0
		var items []string
		for i, k := range p.keys {
			s, err := k.op.FormatValue(b, k.spec, r.Key[i], cast)
			if err != nil {
				return "", "", err
			}
			items = append(items, s)
		}
		for _, sc := range p.sets {
			if !sc.hasValue {
				continue
			}
			s, err := sc.fn.FormatValue(b, sc.spec, r.Set[sc.spec.Name], cast)
			if err != nil {
				return "", "", err
			}
			items = append(items, s)
		}
		rowParts[ri] = "(" + strings.Join(items, ", ") + ")"
	}
	return strings.Join(rowParts, ", "), strings.Join(srcCols, ", "), nil
}

// insertColumns lists the insert targets of a plan: keys, then update
// columns, then injected defaults.
func insertColumns(p *plan) []setColumn {
	cols := make([]setColumn, 0, len(p.keys)+len(p.sets)+len(p.defaults))
	for i, k := range p.keys {
		cols = append(cols, setColumn{spec: k.spec, fn: eqFunc{}, hasValue: true, keyIndex: i})
	}
	for _, sc := range p.sets {
		sc.keyIndex = -1
		cols = append(cols, sc)
	}
	for _, sc := range p.defaults {
		sc.keyIndex = -1
		cols = append(cols, sc)
	}
	return cols
}

func insertNames(cols []setColumn) string {
	names := make([]string, len(cols))
	for i, sc := range cols {
		names[i] = quote(sc.spec.Name)
	}
	return strings.Join(names, ", ")
}

func insertRows(b *Builder, cols []setColumn, rows []KeyedRow) (string, error) {
	rowParts := make([]string, len(rows))
	for ri, r := range rows {
		cast := ri == 0
		items := make([]string, len(cols))
		for i, sc := range cols {
			var ref string
			var err error
			switch {
			case sc.keyIndex >= 0:
				ref, err = sc.fn.FormatValue(b, sc.spec, r.Key[sc.keyIndex], cast)
			case sc.defValue:
				ref, err = b.FormatValue(sc.spec, sc.spec.DefaultValue(), cast)
			case sc.hasValue:
				ref, err = sc.fn.FormatValue(b, sc.spec, r.Set[sc.spec.Name], cast)
			}
			if err != nil {
				return "", err
			}
			expr, err := sc.fn.InsertExpr(b, sc.spec, ref)
			if err != nil {
				return "", err
			}
			items[i] = expr
		}
		rowParts[ri] = "(" + strings.Join(items, ", ") + ")"
	}
	return strings.Join(rowParts, ", "), nil
}

func returningClause(specs []*field.Spec) string {
	if len(specs) == 0 {
		return ""
	}
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = quote(s.Name)
	}
	return " RETURNING " + strings.Join(names, ", ")
}
