// Package pgbulk compiles per-row bulk mutations into single batched SQL
// statements and executes them.
//
// A bulk update carries the incoming rows as an inline VALUES relation
// joined against the target table, so one round trip updates any number of
// rows with per-row values. The match condition of each key field is a
// pluggable clause operator (equality, ordering, membership, between,
// null-checks), and the new value of each column is produced by a pluggable
// set function (assignment, increment, concatenation, array union and
// removal, clock stamping). Both sets are open for registration.
//
// BulkUpdateOrCreate inserts the missing rows and updates the rest, either
// atomically with INSERT ... ON CONFLICT or, when the backend or the key
// does not allow it, with a lock-partition-write transaction.
//
// Large inputs can be split into sequential batches with an optional delay
// between them, each batch running in its own transaction.
package pgbulk
