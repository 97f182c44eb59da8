package pgbulk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/pgbulk/dialect"
	"github.com/syssam/pgbulk/dialect/sql"
)

// Strategy selects how BulkUpdateOrCreate resolves key conflicts.
type Strategy string

const (
	// StrategyAuto picks atomic when the backend supports conflict
	// updates and the key is declared unique, transactional otherwise.
	StrategyAuto Strategy = ""
	// StrategyAtomic compiles a single INSERT ... ON CONFLICT per batch.
	StrategyAtomic Strategy = "atomic"
	// StrategyTransactional locks the existing keys with SELECT ... FOR
	// UPDATE, then inserts the absent rows and updates the present ones.
	// Rows created by concurrent writers between the lock and the insert
	// still surface as unique-constraint violations.
	StrategyTransactional Strategy = "transactional"
)

// selectStrategy resolves the effective upsert strategy for one call. The
// key-uniqueness declaration is trusted as given; forcing the atomic path
// on a non-unique key only downgrades to a warning, since the conflict
// target is then the caller's responsibility.
func (c *Client) selectStrategy(caps dialect.Capabilities, cfg *callConfig) (Strategy, error) {
	switch cfg.strategy {
	case StrategyAtomic:
		if !caps.ConflictUpdate {
			return "", &BackendCapabilityError{Dialect: c.drv.Dialect(), Capability: "conflict update"}
		}
		if !cfg.keyIsUnique {
			c.log.Warn("atomic upsert forced without a unique key constraint",
				"dialect", c.drv.Dialect())
		}
		return StrategyAtomic, nil
	case StrategyTransactional:
		return StrategyTransactional, nil
	}
	if caps.ConflictUpdate && cfg.keyIsUnique {
		return StrategyAtomic, nil
	}
	return StrategyTransactional, nil
}

func (c *Client) upsertAtomic(ctx context.Context, tx dialect.ExecQuerier, p *plan, batch []KeyedRow) (int64, error) {
	stmt, err := compileUpsert(p, batch)
	if err != nil {
		return 0, err
	}
	c.logStmt(stmt)
	return execAffected(ctx, tx, stmt)
}

// upsertTransactional partitions the batch by locking the matching keys,
// inserts the absent rows and updates the present ones, all inside the
// batch transaction.
func (c *Client) upsertTransactional(ctx context.Context, tx dialect.ExecQuerier, p *plan, batch []KeyedRow) (int64, error) {
	sel, err := compileSelectKeys(p, batch)
	if err != nil {
		return 0, err
	}
	c.logStmt(sel)
	locked, err := queryRows(ctx, tx, sel)
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool, len(locked))
	for _, row := range locked {
		key := make([]any, len(p.keys))
		for i, k := range p.keys {
			key[i] = row[k.spec.Name]
		}
		present[keyFingerprint(key)] = true
	}
	var toInsert, toUpdate []KeyedRow
	for _, r := range batch {
		if present[keyFingerprint(r.Key)] {
			toUpdate = append(toUpdate, r)
		} else {
			toInsert = append(toInsert, r)
		}
	}
	var total int64
	if len(toInsert) > 0 {
		ins, err := compileInsert(p, toInsert)
		if err != nil {
			return 0, err
		}
		c.logStmt(ins)
		n, err := execAffected(ctx, tx, ins)
		if err != nil {
			if sql.IsUniqueConstraintError(err) {
				c.log.Warn("concurrent writer created a conflicting row",
					"table", p.table.Name())
			}
			return 0, err
		}
		total += n
	}
	if p.update && len(p.sets) > 0 && len(toUpdate) > 0 {
		upd, err := compileUpdate(p, toUpdate)
		if err != nil {
			return 0, err
		}
		c.logStmt(upd)
		n, err := execAffected(ctx, tx, upd)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// keyFingerprint folds a key tuple into a comparison key. Values read back
// from the database arrive in widened driver types, so the user-supplied
// tuple is normalized to match them.
func keyFingerprint(key []any) string {
	var sb strings.Builder
	for i, v := range key {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		sb.WriteString(normalizeKeyValue(v))
	}
	return sb.String()
}

func normalizeKeyValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "\x00"
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
