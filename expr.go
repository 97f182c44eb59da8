package pgbulk

import (
	"fmt"
	"strings"

	"github.com/syssam/pgbulk/field"
)

// Expr is a compiled-on-demand boolean expression over a table's columns.
// Expressions are pure: compiling the same tree twice against fresh
// builders yields identical SQL and parameter sequences.
type Expr interface {
	compile(c *exprContext) (string, error)
}

type exprContext struct {
	b     *Builder
	table *field.Table
	alias string
	reg   *Registry
}

func (c *exprContext) column(name string) string {
	if c.alias == "" {
		return quote(name)
	}
	return c.alias + "." + quote(name)
}

type andExpr struct{ children []Expr }

type orExpr struct{ children []Expr }

type notExpr struct{ child Expr }

type predExpr struct {
	field string
	op    any
	value any
}

type rawExpr struct {
	sql  string
	args []any
}

type literalExpr bool

// And conjoins the given expressions. A single operand collapses to itself
// and no operands compile to TRUE.
func And(xs ...Expr) Expr {
	if len(xs) == 1 {
		return xs[0]
	}
	return andExpr{children: xs}
}

// Or disjoins the given expressions. A single operand collapses to itself
// and no operands compile to FALSE.
func Or(xs ...Expr) Expr {
	if len(xs) == 1 {
		return xs[0]
	}
	return orExpr{children: xs}
}

// Not negates x.
func Not(x Expr) Expr {
	return notExpr{child: x}
}

// True is the always-true expression.
func True() Expr { return literalExpr(true) }

// False is the always-false expression.
func False() Expr { return literalExpr(false) }

// Pred applies an operator to a column and a value. op is a registry alias
// or an Operator value; a nil op means equality.
func Pred(name string, op, value any) Expr {
	if op == nil {
		op = "eq"
	}
	return predExpr{field: name, op: op, value: value}
}

// Raw embeds a hand-written condition. Each "?" in sql is replaced by a
// numbered placeholder bound to the matching argument.
func Raw(sql string, args ...any) Expr {
	return rawExpr{sql: sql, args: args}
}

func (e andExpr) compile(c *exprContext) (string, error) {
	if len(e.children) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, len(e.children))
	for i, child := range e.children {
		s, err := child.compile(c)
		if err != nil {
			return "", err
		}
		if _, ok := child.(orExpr); ok {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " AND "), nil
}

func (e orExpr) compile(c *exprContext) (string, error) {
	if len(e.children) == 0 {
		return "FALSE", nil
	}
	parts := make([]string, len(e.children))
	for i, child := range e.children {
		s, err := child.compile(c)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, " OR "), nil
}

func (e notExpr) compile(c *exprContext) (string, error) {
	s, err := e.child.compile(c)
	if err != nil {
		return "", err
	}
	return "NOT (" + s + ")", nil
}

func (e literalExpr) compile(*exprContext) (string, error) {
	if e {
		return "TRUE", nil
	}
	return "FALSE", nil
}

func (e predExpr) compile(c *exprContext) (string, error) {
	spec, err := fieldSpec(c.table, e.field)
	if err != nil {
		return "", err
	}
	op, err := c.reg.Operator(e.op)
	if err != nil {
		return "", err
	}
	// A membership test over nothing is decided without touching the
	// database.
	if eo, ok := op.(emptyCollectionOperator); ok {
		if n, isColl := collectionValues(e.value); isColl && n == 0 {
			return eo.emptyPredicate(), nil
		}
	}
	ref, err := op.FormatValue(c.b, spec, e.value, true)
	if err != nil {
		return "", err
	}
	return op.Predicate(c.column(e.field), ref), nil
}

func (e rawExpr) compile(c *exprContext) (string, error) {
	if n := strings.Count(e.sql, "?"); n != len(e.args) {
		return "", fmt.Errorf("pgbulk: raw expression %q has %d placeholders for %d arguments", e.sql, n, len(e.args))
	}
	sql := e.sql
	for _, arg := range e.args {
		sql = strings.Replace(sql, "?", c.b.Arg(arg), 1)
	}
	return sql, nil
}

// PDNFClause builds the disjunction that matches any of the given rows on
// the key fields: one conjunction per row, one operator application per key
// field. ops maps key fields to non-default operators. A single row with a
// single key collapses to the bare predicate, and no rows compile to FALSE.
func PDNFClause(keyFields []string, rows []Row, ops map[string]any) (Expr, error) {
	if len(keyFields) == 0 {
		return nil, &EmptyUpdateError{Reason: "no key fields"}
	}
	for name := range ops {
		if !containsString(keyFields, name) {
			return nil, fmt.Errorf("pgbulk: operator given for %q, which is not a key field", name)
		}
	}
	if len(rows) == 0 {
		return False(), nil
	}
	disj := make([]Expr, len(rows))
	for i, row := range rows {
		conj := make([]Expr, len(keyFields))
		for j, name := range keyFields {
			v, ok := row[name]
			if !ok {
				return nil, &InconsistentRowShapeError{Row: i, Missing: []string{name}}
			}
			conj[j] = Pred(name, ops[name], v)
		}
		disj[i] = And(conj...)
	}
	return Or(disj...), nil
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
