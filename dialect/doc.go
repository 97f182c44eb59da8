// Package dialect provides database dialect abstraction for pgbulk.
//
// This package defines the interfaces and types used for database-specific
// operations, allowing pgbulk to execute its statements against multiple
// database backends including PostgreSQL, MySQL, and SQLite.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
// The package defines the Driver interface for database operations:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Transaction Interface
//
// The Tx interface extends ExecQuerier with transaction methods:
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # Capabilities
//
// Statement compilation varies with what the backend supports. Caps reports
// the feature set of a dialect:
//
//	caps := dialect.Caps(dialect.Postgres)
//	if caps.ConflictUpdate {
//	    // INSERT ... ON CONFLICT DO UPDATE is available.
//	}
//
// # Usage
//
// Opening a database connection:
//
//	import (
//	    "github.com/syssam/pgbulk/dialect"
//	    "github.com/syssam/pgbulk/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	client := pgbulk.NewClient(drv)
package dialect
