package pgbulk

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/syssam/pgbulk/dialect"
	"github.com/syssam/pgbulk/field"
)

// Row holds the column values of one input or returned row.
type Row map[string]any

// KeyedRow is the explicit input form: the key tuple, aligned with the
// call's key fields, and the update values. Unlike the plain Row form it
// allows a field to serve as both match key and update target.
type KeyedRow struct {
	Key []any
	Set Row
}

// Result reports one bulk call: the total affected-row count and, when
// returning columns were requested, the rows produced by the database.
type Result struct {
	Affected int64
	Rows     []Row
}

// Client compiles and executes bulk mutations against one driver.
type Client struct {
	drv dialect.Driver
	log *slog.Logger
	reg *Registry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for statement and batch diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithRegistry replaces the operator and set-function registry.
func WithRegistry(r *Registry) ClientOption {
	return func(c *Client) { c.reg = r }
}

// NewClient returns a Client over drv with the built-in registry.
func NewClient(drv dialect.Driver, opts ...ClientOption) *Client {
	c := &Client{drv: drv, log: slog.Default(), reg: NewRegistry()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// callConfig collects the per-call modifiers.
type callConfig struct {
	keyFields   []string
	keyOps      map[string]any
	setFuncs    map[string]any
	where       Expr
	batchSize   int
	batchDelay  time.Duration
	returning   []string
	update      bool
	keyIsUnique bool
	strategy    Strategy
}

func newCallConfig(opts []Option) *callConfig {
	cfg := &callConfig{
		keyFields:   []string{"id"},
		update:      true,
		keyIsUnique: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures one bulk call.
type Option func(*callConfig)

// WithKeyFields names the columns rows are matched on. The default is the
// single column "id".
func WithKeyFields(names ...string) Option {
	return func(cfg *callConfig) { cfg.keyFields = names }
}

// WithKeyFieldOps assigns non-default clause operators to key fields, by
// registry alias or Operator value.
func WithKeyFieldOps(ops map[string]any) Option {
	return func(cfg *callConfig) { cfg.keyOps = ops }
}

// WithSetFunctions assigns non-default set functions to update fields, by
// registry alias or SetFunc value. A value-free function (such as "now")
// may target a column absent from the input rows.
func WithSetFunctions(fns map[string]any) Option {
	return func(cfg *callConfig) { cfg.setFuncs = fns }
}

// WithWhere adds a pre-filter conjoined with the key-match condition of
// every update batch.
func WithWhere(e Expr) Option {
	return func(cfg *callConfig) { cfg.where = e }
}

// WithBatchSize splits the input into batches of at most n rows, each
// executed in its own statement and transaction. Zero or negative means a
// single batch.
func WithBatchSize(n int) Option {
	return func(cfg *callConfig) { cfg.batchSize = n }
}

// WithBatchDelay sleeps between consecutive batches, after the previous
// transaction committed.
func WithBatchDelay(d time.Duration) Option {
	return func(cfg *callConfig) { cfg.batchDelay = d }
}

// WithReturning requests the named columns of the touched rows back from
// the database. The single name "*" selects every table column. Not
// supported by BulkUpdateOrCreate.
func WithReturning(cols ...string) Option {
	return func(cfg *callConfig) { cfg.returning = cols }
}

// WithUpdate controls whether BulkUpdateOrCreate touches existing rows.
// With false, conflicting rows are left as they are and only absent rows
// are created. The default is true.
func WithUpdate(v bool) Option {
	return func(cfg *callConfig) { cfg.update = v }
}

// WithKeyIsUnique declares whether the key fields carry a unique
// constraint. The declaration is trusted, not verified; it steers the
// upsert strategy selection. The default is true.
func WithKeyIsUnique(v bool) Option {
	return func(cfg *callConfig) { cfg.keyIsUnique = v }
}

// WithStrategy forces an upsert strategy instead of the automatic choice.
func WithStrategy(s Strategy) Option {
	return func(cfg *callConfig) { cfg.strategy = s }
}

// BulkUpdate updates the rows matching each input row's key tuple. Every
// input row must carry a value for every key field; the remaining columns
// become update targets. An empty row set is a no-op.
func (c *Client) BulkUpdate(ctx context.Context, tbl *field.Table, rows []Row, opts ...Option) (*Result, error) {
	cfg := newCallConfig(opts)
	krs, err := keyRows(rows, cfg.keyFields)
	if err != nil {
		return nil, err
	}
	return c.bulkUpdate(ctx, tbl, krs, cfg)
}

// BulkUpdateKeyed is BulkUpdate with explicit key tuples, so a field can
// appear both as a match key and as an update target.
func (c *Client) BulkUpdateKeyed(ctx context.Context, tbl *field.Table, rows []KeyedRow, opts ...Option) (*Result, error) {
	return c.bulkUpdate(ctx, tbl, rows, newCallConfig(opts))
}

func (c *Client) bulkUpdate(ctx context.Context, tbl *field.Table, rows []KeyedRow, cfg *callConfig) (*Result, error) {
	if len(rows) == 0 {
		return &Result{}, nil
	}
	p, err := c.buildPlan(tbl, rows, cfg, planUpdate)
	if err != nil {
		return nil, err
	}
	return c.runBatches(ctx, rows, cfg.batchSize, cfg.batchDelay, func(ctx context.Context, tx dialect.Tx, batch []KeyedRow, _ int) (int64, []Row, error) {
		stmt, err := compileUpdate(p, batch)
		if err != nil {
			return 0, nil, err
		}
		c.logStmt(stmt)
		if len(p.returning) > 0 {
			ret, err := queryRows(ctx, tx, stmt)
			if err != nil {
				return 0, nil, err
			}
			return int64(len(ret)), ret, nil
		}
		n, err := execAffected(ctx, tx, stmt)
		return n, nil, err
	})
}

// BulkCreate inserts the given rows. Columns with declared defaults or
// creation timestamps that are absent from the rows are filled in. An
// empty row set is an error.
func (c *Client) BulkCreate(ctx context.Context, tbl *field.Table, rows []Row, opts ...Option) (*Result, error) {
	cfg := newCallConfig(opts)
	if len(rows) == 0 {
		return nil, &EmptyUpdateError{Reason: "no rows to create"}
	}
	krs := make([]KeyedRow, len(rows))
	for i, row := range rows {
		krs[i] = KeyedRow{Set: row}
	}
	p, err := c.buildPlan(tbl, krs, cfg, planCreate)
	if err != nil {
		return nil, err
	}
	return c.runBatches(ctx, krs, cfg.batchSize, cfg.batchDelay, func(ctx context.Context, tx dialect.Tx, batch []KeyedRow, _ int) (int64, []Row, error) {
		stmt, err := compileInsert(p, batch)
		if err != nil {
			return 0, nil, err
		}
		c.logStmt(stmt)
		if len(p.returning) > 0 {
			ret, err := queryRows(ctx, tx, stmt)
			if err != nil {
				return 0, nil, err
			}
			return int64(len(ret)), ret, nil
		}
		n, err := execAffected(ctx, tx, stmt)
		return n, nil, err
	})
}

// BulkUpdateOrCreate updates the rows whose key tuple exists and creates
// the rest, returning the total number of rows touched. Key fields take
// only equality matching and the call supports no returning columns.
func (c *Client) BulkUpdateOrCreate(ctx context.Context, tbl *field.Table, rows []Row, opts ...Option) (int64, error) {
	cfg := newCallConfig(opts)
	if len(rows) == 0 {
		return 0, nil
	}
	krs, err := keyRows(rows, cfg.keyFields)
	if err != nil {
		return 0, err
	}
	p, err := c.buildPlan(tbl, krs, cfg, planUpsert)
	if err != nil {
		return 0, err
	}
	caps := dialect.Caps(c.drv.Dialect())
	strategy, err := c.selectStrategy(caps, cfg)
	if err != nil {
		return 0, err
	}
	if strategy == StrategyTransactional && p.update && len(p.sets) > 0 && !caps.UpdateFrom {
		return 0, &BackendCapabilityError{Dialect: c.drv.Dialect(), Capability: "update from values"}
	}
	var fn batchFunc
	switch strategy {
	case StrategyAtomic:
		fn = func(ctx context.Context, tx dialect.Tx, batch []KeyedRow, _ int) (int64, []Row, error) {
			n, err := c.upsertAtomic(ctx, tx, p, batch)
			return n, nil, err
		}
	default:
		fn = func(ctx context.Context, tx dialect.Tx, batch []KeyedRow, _ int) (int64, []Row, error) {
			n, err := c.upsertTransactional(ctx, tx, p, batch)
			return n, nil, err
		}
	}
	res, err := c.runBatches(ctx, krs, cfg.batchSize, cfg.batchDelay, fn)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// keyRows splits plain rows into key tuples and update values.
func keyRows(rows []Row, keyFields []string) ([]KeyedRow, error) {
	out := make([]KeyedRow, len(rows))
	for i, row := range rows {
		key := make([]any, len(keyFields))
		var missing []string
		for j, name := range keyFields {
			v, ok := row[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			key[j] = v
		}
		if len(missing) > 0 {
			return nil, &InconsistentRowShapeError{Row: i, Missing: missing}
		}
		set := make(Row, len(row)-len(keyFields))
		for k, v := range row {
			if !containsString(keyFields, k) {
				set[k] = v
			}
		}
		out[i] = KeyedRow{Key: key, Set: set}
	}
	return out, nil
}

type planMode int

const (
	planUpdate planMode = iota
	planCreate
	planUpsert
)

// buildPlan validates one call against the table metadata and resolves
// every key field and update target ahead of compilation, so per-batch
// compilation cannot fail on shape or value errors after the first
// transaction opened.
func (c *Client) buildPlan(tbl *field.Table, rows []KeyedRow, cfg *callConfig, mode planMode) (*plan, error) {
	p := &plan{table: tbl, reg: c.reg, where: cfg.where, update: cfg.update}
	caps := dialect.Caps(c.drv.Dialect())
	if mode == planUpdate && !caps.UpdateFrom {
		return nil, &BackendCapabilityError{Dialect: c.drv.Dialect(), Capability: "update from values"}
	}
	if mode != planCreate {
		if len(cfg.keyFields) == 0 {
			return nil, &EmptyUpdateError{Reason: "no key fields"}
		}
		if mode == planUpsert && len(cfg.keyOps) > 0 {
			return nil, fmt.Errorf("pgbulk: key field operators cannot be combined with update-or-create")
		}
		if mode == planUpsert && cfg.where != nil {
			return nil, fmt.Errorf("pgbulk: a where pre-filter cannot be combined with update-or-create")
		}
		for name := range cfg.keyOps {
			if !containsString(cfg.keyFields, name) {
				return nil, fmt.Errorf("pgbulk: operator given for %q, which is not a key field", name)
			}
		}
		for _, name := range cfg.keyFields {
			spec, err := fieldSpec(tbl, name)
			if err != nil {
				return nil, err
			}
			opRef, ok := cfg.keyOps[name]
			if !ok {
				opRef = "eq"
			}
			op, err := c.reg.Operator(opRef)
			if err != nil {
				return nil, err
			}
			p.keys = append(p.keys, keyColumn{spec: spec, op: op})
		}
	}
	base := sortedNames(rows[0].Set)
	for i, r := range rows {
		if len(r.Key) != len(p.keys) {
			return nil, fmt.Errorf("pgbulk: row %d: key tuple has %d values, want %d", i, len(r.Key), len(p.keys))
		}
		missing, extra := diffNames(base, r.Set)
		if len(missing) > 0 || len(extra) > 0 {
			return nil, &InconsistentRowShapeError{Row: i, Missing: missing, Extra: extra}
		}
	}
	for _, name := range base {
		spec, err := fieldSpec(tbl, name)
		if err != nil {
			return nil, err
		}
		fn, err := c.resolveSetFunc(spec, cfg.setFuncs[name])
		if err != nil {
			return nil, err
		}
		p.sets = append(p.sets, setColumn{spec: spec, fn: fn, hasValue: fn.NeedsValue(), keyIndex: -1})
	}
	// Value-free set functions may target columns the rows do not carry.
	for _, name := range sortedNames(cfg.setFuncs) {
		if containsString(base, name) {
			continue
		}
		if mode != planCreate && containsString(cfg.keyFields, name) {
			return nil, fmt.Errorf("pgbulk: set function given for key field %q without a row value", name)
		}
		spec, err := fieldSpec(tbl, name)
		if err != nil {
			return nil, err
		}
		fn, err := c.reg.SetFunc(cfg.setFuncs[name])
		if err != nil {
			return nil, err
		}
		if fn.NeedsValue() {
			return nil, fmt.Errorf("pgbulk: set function %q for field %q needs a row value", fn.Aliases()[0], name)
		}
		if !fn.Supports(spec.Type) {
			return nil, &UnsupportedFieldTypeError{Name: fn.Aliases()[0], Field: name, Class: spec.Type}
		}
		p.sets = append(p.sets, setColumn{spec: spec, fn: fn, keyIndex: -1})
	}
	// Update timestamps fire even when the rows do not mention them.
	for _, spec := range tbl.Columns() {
		if !spec.AutoNow || p.targets(spec.Name) || keyColumnNamed(p.keys, spec.Name) {
			continue
		}
		p.sets = append(p.sets, setColumn{spec: spec, fn: nowFunc{}, keyIndex: -1})
	}
	if mode == planUpdate && len(p.sets) == 0 {
		return nil, &EmptyUpdateError{Reason: "no update fields"}
	}
	if mode != planUpdate {
		for _, spec := range tbl.Columns() {
			if p.targets(spec.Name) || keyColumnNamed(p.keys, spec.Name) {
				continue
			}
			switch {
			case spec.AutoNowAdd:
				p.defaults = append(p.defaults, setColumn{spec: spec, fn: nowFunc{ifAbsent: true}, keyIndex: -1})
			case spec.HasDefault():
				p.defaults = append(p.defaults, setColumn{spec: spec, fn: eqFunc{}, defValue: true, keyIndex: -1})
			}
		}
	}
	if len(cfg.returning) > 0 {
		if mode == planUpsert {
			return nil, fmt.Errorf("pgbulk: returning columns are not supported for update-or-create")
		}
		if !caps.Returning {
			return nil, &BackendCapabilityError{Dialect: c.drv.Dialect(), Capability: "returning"}
		}
		if len(cfg.returning) == 1 && cfg.returning[0] == "*" {
			p.returning = tbl.Columns()
		} else {
			for _, name := range cfg.returning {
				spec, err := fieldSpec(tbl, name)
				if err != nil {
					return nil, err
				}
				p.returning = append(p.returning, spec)
			}
		}
	}
	if err := p.validateValues(rows); err != nil {
		return nil, err
	}
	return p, nil
}

// validateValues formats every row's values against a throwaway builder, so
// malformed values surface before the first transaction opens. Without this
// pass a bad value in a later batch would fail only after the earlier
// batches committed.
func (p *plan) validateValues(rows []KeyedRow) error {
	b := &Builder{}
	for _, r := range rows {
		for i, k := range p.keys {
			if _, err := k.op.FormatValue(b, k.spec, r.Key[i], false); err != nil {
				return err
			}
		}
		for _, sc := range p.sets {
			if !sc.hasValue {
				continue
			}
			if _, err := sc.fn.FormatValue(b, sc.spec, r.Set[sc.spec.Name], false); err != nil {
				return err
			}
		}
	}
	for _, sc := range p.defaults {
		if !sc.defValue {
			continue
		}
		if _, err := b.FormatValue(sc.spec, sc.spec.DefaultValue(), false); err != nil {
			return err
		}
	}
	if p.where != nil {
		if _, err := p.where.compile(&exprContext{b: b, table: p.table, alias: "t", reg: p.reg}); err != nil {
			return err
		}
	}
	return nil
}

// resolveSetFunc picks the set function of one row-carried column: the
// explicit assignment when given, the timestamp function for auto-now
// columns, plain assignment otherwise.
func (c *Client) resolveSetFunc(spec *field.Spec, ref any) (SetFunc, error) {
	var fn SetFunc
	switch {
	case ref != nil:
		var err error
		fn, err = c.reg.SetFunc(ref)
		if err != nil {
			return nil, err
		}
	case spec.AutoNow:
		fn = nowFunc{}
	case spec.AutoNowAdd:
		fn = nowFunc{ifAbsent: true}
	default:
		fn = eqFunc{}
	}
	if !fn.Supports(spec.Type) {
		return nil, &UnsupportedFieldTypeError{Name: fn.Aliases()[0], Field: spec.Name, Class: spec.Type}
	}
	return fn, nil
}

func (p *plan) targets(name string) bool {
	for _, sc := range p.sets {
		if sc.spec.Name == name {
			return true
		}
	}
	for _, sc := range p.defaults {
		if sc.spec.Name == name {
			return true
		}
	}
	return false
}

func keyColumnNamed(keys []keyColumn, name string) bool {
	for _, k := range keys {
		if k.spec.Name == name {
			return true
		}
	}
	return false
}

// fieldSpec resolves a column by name, mapping the miss to the package
// error type.
func fieldSpec(t *field.Table, name string) (*field.Spec, error) {
	s, err := t.Field(name)
	if err != nil {
		return nil, &UnknownFieldError{Table: t.Name(), Field: name}
	}
	return s, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// diffNames compares a row's column names against the baseline of the
// first row.
func diffNames(base []string, row Row) (missing, extra []string) {
	for _, name := range base {
		if _, ok := row[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range row {
		if !containsString(base, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return missing, extra
}
