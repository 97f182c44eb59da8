// Package sql provides the database/sql-backed driver used by pgbulk.
//
// The driver adapts a *sql.DB to the dialect.Driver interface, so the
// compiler's statements run through one uniform Exec/Query surface whether
// they are inside a transaction or not.
//
// # Opening a Driver
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//
// An existing pool can be wrapped instead:
//
//	drv := sql.OpenDB(dialect.Postgres, db)
//
// # Statement Statistics
//
// StatsDriver decorates any dialect.Driver with execution counters and
// slow-statement detection. Bulk statements carry many parameters and can
// run long, so pathological batch sizes show up in the stats:
//
//	drv = sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(250*time.Millisecond),
//	    sql.WithSlowStatementLog(),
//	)
//
// # Constraint Errors
//
// The Is*ConstraintError helpers classify driver errors without importing
// any concrete driver, by probing the SQLSTATE, code and number interfaces
// the common drivers implement:
//
//	if sql.IsUniqueConstraintError(err) {
//	    // a concurrent writer got there first
//	}
package sql
