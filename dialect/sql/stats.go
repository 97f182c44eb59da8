package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/pgbulk/dialect"
)

// StatementStats holds execution statistics for bulk statements.
type StatementStats struct {
	// TotalQueries is the total number of row-returning statements executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of non-returning statements executed.
	TotalExecs atomic.Int64
	// RowsAffected is the total row count reported by non-returning
	// statements, summed across batches.
	RowsAffected atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowStatements is the count of statements exceeding the slow threshold.
	SlowStatements atomic.Int64
	// Errors is the count of statement errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *StatementStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:   s.TotalQueries.Load(),
		TotalExecs:     s.TotalExecs.Load(),
		RowsAffected:   s.RowsAffected.Load(),
		TotalDuration:  time.Duration(s.TotalDuration.Load()),
		SlowStatements: s.SlowStatements.Load(),
		Errors:         s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *StatementStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.RowsAffected.Store(0)
	s.TotalDuration.Store(0)
	s.SlowStatements.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of statement statistics.
type StatsSnapshot struct {
	TotalQueries   int64
	TotalExecs     int64
	RowsAffected   int64
	TotalDuration  time.Duration
	SlowStatements int64
	Errors         int64
}

// AvgRowsPerExec returns the average affected-row count per non-returning
// statement, the effective batch yield.
func (s StatsSnapshot) AvgRowsPerExec() float64 {
	if s.TotalExecs == 0 {
		return 0
	}
	return float64(s.RowsAffected) / float64(s.TotalExecs)
}

// AvgDuration returns the average statement duration.
func (s StatsSnapshot) AvgDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d rows=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.RowsAffected, s.TotalDuration,
		s.AvgDuration(), s.SlowStatements, s.Errors,
	)
}

// SlowStatementHook is a function called when a slow statement is detected.
type SlowStatementHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a Driver with statement statistics collection. Bulk
// statements carry many parameters and can run long; the slow threshold
// makes pathological batch sizes visible.
type StatsDriver struct {
	dialect.Driver
	stats         *StatementStats
	slowThreshold time.Duration
	slowHook      SlowStatementHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowStatementHook sets a callback function for slow statements.
func WithSlowStatementHook(hook SlowStatementHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowStatementLog logs slow statements to the default logger.
// This is a convenience wrapper around WithSlowStatementHook.
func WithSlowStatementLog() StatsOption {
	return WithSlowStatementHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		slog.Warn("slow bulk statement", "duration", duration, "query", query, "params", len(args))
	})
}

// NewStatsDriver wraps a driver with statistics collection.
//
// Example:
//
//	drv, _ := sql.Open("postgres", dsn)
//	stats := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowStatementLog(),
//	)
//	client := pgbulk.NewClient(stats)
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &StatementStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StatementStats returns the underlying statistics for reading.
func (d *StatsDriver) StatementStats() *StatementStats {
	return d.stats
}

// SlowThreshold returns the current slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.slowThreshold
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slowThreshold = threshold
}

// Query executes a statement and records statistics.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, start, err, true)
	return err
}

// Exec executes a statement and records statistics.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, start, err, false)
	d.recordRows(err, v)
	return err
}

// recordRows folds the affected-row count of a finished exec into the
// statistics when the caller asked for a result destination.
func (d *StatsDriver) recordRows(err error, v any) {
	if err != nil {
		return
	}
	res, ok := v.(*sql.Result)
	if !ok || *res == nil {
		return
	}
	if n, err := (*res).RowsAffected(); err == nil {
		d.stats.RowsAffected.Add(n)
	}
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		d.stats.TotalQueries.Add(1)
	} else {
		d.stats.TotalExecs.Add(1)
	}
	d.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		d.stats.Errors.Add(1)
	}

	d.mu.RLock()
	threshold := d.slowThreshold
	hook := d.slowHook
	d.mu.RUnlock()

	if duration > threshold {
		d.stats.SlowStatements.Add(1)
		if hook != nil {
			argsSlice, _ := args.([]any)
			hook(ctx, query, argsSlice, duration)
		}
	}
}

// Tx starts a transaction that also records statistics.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx wraps a transaction with statistics collection.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a statement within the transaction and records statistics.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, true)
	return err
}

// Exec executes a statement within the transaction and records statistics.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, false)
	tx.driver.recordRows(err, v)
	return err
}

// OpenWithStats opens a database connection with statistics collection enabled.
func OpenWithStats(driverName, source string, opts ...StatsOption) (*StatsDriver, *StatementStats, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, nil, err
	}
	drv := NewDriver(driverName, Conn{db})
	statsDriver := NewStatsDriver(drv, opts...)
	return statsDriver, statsDriver.StatementStats(), nil
}

// Ensure interfaces are implemented.
var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)
