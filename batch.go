package pgbulk

import (
	"context"
	"fmt"
	"time"

	stdsql "database/sql"

	"github.com/syssam/pgbulk/dialect"
	"github.com/syssam/pgbulk/dialect/sql"
)

// batchFunc executes one batch inside its transaction and reports the
// affected-row count plus any returned rows.
type batchFunc func(ctx context.Context, tx dialect.Tx, batch []KeyedRow, idx int) (int64, []Row, error)

// runBatches splits rows into consecutive batches and executes them
// strictly in order, each in its own transaction. The inter-batch delay
// runs after the previous transaction committed, so earlier batches stay
// durable when a later one fails or the context is canceled.
func (c *Client) runBatches(ctx context.Context, rows []KeyedRow, size int, delay time.Duration, fn batchFunc) (*Result, error) {
	if size <= 0 {
		size = len(rows)
	}
	res := &Result{}
	for idx, off := 0, 0; off < len(rows); idx, off = idx+1, off+size {
		end := off + size
		if end > len(rows) {
			end = len(rows)
		}
		if idx > 0 && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("pgbulk: canceled before batch %d: %w", idx, ctx.Err())
			}
		}
		batch := rows[off:end]
		c.log.Debug("executing batch", "batch", idx, "rows", len(batch))
		tx, err := c.drv.Tx(ctx)
		if err != nil {
			return nil, &ExecutionError{Batch: idx, Err: err}
		}
		n, ret, err := fn(ctx, tx, batch, idx)
		if err != nil {
			_ = tx.Rollback()
			return nil, &ExecutionError{Batch: idx, Err: err}
		}
		if err := tx.Commit(); err != nil {
			return nil, &ExecutionError{Batch: idx, Err: err}
		}
		res.Affected += n
		res.Rows = append(res.Rows, ret...)
	}
	return res, nil
}

func (c *Client) logStmt(stmt *Stmt) {
	c.log.Debug("compiled statement", "sql", stmt.SQL, "args", len(stmt.Args))
}

func execAffected(ctx context.Context, tx dialect.ExecQuerier, stmt *Stmt) (int64, error) {
	var res stdsql.Result
	if err := tx.Exec(ctx, stmt.SQL, stmt.Args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryRows(ctx context.Context, tx dialect.ExecQuerier, stmt *Stmt) ([]Row, error) {
	var rows sql.Rows
	if err := tx.Query(ctx, stmt.SQL, stmt.Args, &rows); err != nil {
		return nil, err
	}
	maps, err := sql.ScanMaps(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}
