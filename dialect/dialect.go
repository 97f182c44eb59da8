// Package dialect defines the executor contract between pgbulk and the
// underlying database, together with backend capability flags used by the
// upsert strategy selector.
//
// The compiler itself produces PostgreSQL-flavored SQL; the interfaces here
// exist so callers can plug in any executor (database/sql, pgx adapters,
// instrumented wrappers) without pgbulk depending on a concrete driver.
package dialect

import "context"

// Supported dialect names.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
	MySQL    = "mysql"
)

// ExecQuerier wraps the Exec and Query executor methods.
//
// For Exec, v is either nil or a *sql.Result destination. For Query, v is a
// rows destination understood by the executor implementation (for the
// database/sql implementation in dialect/sql, a *sql.Rows).
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the connection-level executor. A driver is borrowed for exactly
// one batch at a time; pgbulk never holds a transaction across the
// inter-batch delay.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transaction-scoped executor.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Capabilities describes what a backend can do. The upsert strategy
// selector consults these flags; it never introspects the live schema.
type Capabilities struct {
	// ConflictUpdate reports native INSERT ... ON CONFLICT DO UPDATE
	// support against a unique constraint.
	ConflictUpdate bool
	// Returning reports RETURNING clause support on INSERT and UPDATE.
	Returning bool
	// UpdateFrom reports UPDATE ... FROM (VALUES ...) support.
	UpdateFrom bool
}

// Caps returns the capabilities of the named dialect. Unknown dialects
// report no capabilities, forcing the conservative strategy.
func Caps(name string) Capabilities {
	switch name {
	case Postgres:
		return Capabilities{ConflictUpdate: true, Returning: true, UpdateFrom: true}
	case SQLite:
		// UPDATE ... FROM is available since SQLite 3.33.
		return Capabilities{ConflictUpdate: true, Returning: true, UpdateFrom: true}
	default:
		return Capabilities{}
	}
}
