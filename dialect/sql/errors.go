package sql

import (
	"errors"
	"strings"
)

// The transactional upsert strategy has a documented race window between its
// SELECT and INSERT statements: a concurrent writer can insert the same key
// first, surfacing as a unique-constraint violation. The helpers below let
// callers recognize that case without pgbulk importing any concrete driver.

// errorCoder is an interface for database errors that provide error codes.
// Implemented by: pq.Error, pgx, mysql.MySQLError, modernc.org/sqlite, etc.
type errorCoder interface {
	Code() string
}

// errorNumberer is an interface for database errors that provide numeric
// error codes. Implemented by: mysql.MySQLError (Number field via method).
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by: pq.Error, pgx, and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
)

// IsConstraintError reports if the error resulted from a database
// constraint violation of any kind.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness
// constraint violation, e.g. a duplicate value in a unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == pgUniqueViolation {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == pgUniqueViolation {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok && e.Number() == mysqlDuplicateEntry {
		return true
	}
	// Fallback to string matching for drivers that don't implement interfaces
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database
// foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[errorNumberer](err); ok {
		num := e.Number()
		if num == mysqlForeignKeyParent || num == mysqlForeignKeyChild {
			return true
		}
	}
	return containsAny(err.Error(),
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
	)
}

// IsCheckConstraintError reports if the error resulted from a database check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == pgCheckViolation {
		return true
	}
	if e, ok := asError[errorCoder](err); ok && e.Code() == pgCheckViolation {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",
		"violates check constraint",
		"CHECK constraint failed",
	)
}

// asError attempts to extract an error implementing interface T from the
// error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
