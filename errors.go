package pgbulk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/pgbulk/field"
)

// All validation errors are raised before any executor round trip; once a
// statement reaches the database, failures surface as *ExecutionError.

// UnknownOperatorError is returned when a clause operator alias cannot be
// resolved against the registry.
type UnknownOperatorError struct {
	Alias string
}

// Error returns the error string.
func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("pgbulk: unknown clause operator %q", e.Alias)
}

// IsUnknownOperator returns true if the error is an UnknownOperatorError.
func IsUnknownOperator(err error) bool {
	var e *UnknownOperatorError
	return errors.As(err, &e)
}

// UnknownSetFunctionError is returned when a set function alias cannot be
// resolved against the registry.
type UnknownSetFunctionError struct {
	Alias string
}

// Error returns the error string.
func (e *UnknownSetFunctionError) Error() string {
	return fmt.Sprintf("pgbulk: unknown set function %q", e.Alias)
}

// IsUnknownSetFunction returns true if the error is an UnknownSetFunctionError.
func IsUnknownSetFunction(err error) bool {
	var e *UnknownSetFunctionError
	return errors.As(err, &e)
}

// UnknownFieldError is returned when a row, key list or returning list names
// a column absent from the table metadata.
type UnknownFieldError struct {
	Table string
	Field string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("pgbulk: table %q has no field %q", e.Table, e.Field)
}

// IsUnknownField returns true if the error is an UnknownFieldError.
func IsUnknownField(err error) bool {
	var e *UnknownFieldError
	return errors.As(err, &e)
}

// ArityError is returned when an operator value has the wrong shape, e.g. a
// between value that is not exactly a [low, high] pair.
type ArityError struct {
	Op   string
	Want string
	Got  any
}

// Error returns the error string.
func (e *ArityError) Error() string {
	return fmt.Sprintf("pgbulk: operator %q wants %s, got %T", e.Op, e.Want, e.Got)
}

// IsArity returns true if the error is an ArityError.
func IsArity(err error) bool {
	var e *ArityError
	return errors.As(err, &e)
}

// UnsupportedFieldTypeError is returned when a set function or clause
// operator is applied to a field class it does not support.
type UnsupportedFieldTypeError struct {
	Name  string // operator or set function alias
	Field string
	Class field.Class
}

// Error returns the error string.
func (e *UnsupportedFieldTypeError) Error() string {
	return fmt.Sprintf("pgbulk: %q does not support field %q of class %s", e.Name, e.Field, e.Class)
}

// IsUnsupportedFieldType returns true if the error is an UnsupportedFieldTypeError.
func IsUnsupportedFieldType(err error) bool {
	var e *UnsupportedFieldTypeError
	return errors.As(err, &e)
}

// InconsistentRowShapeError is returned when the rows of one call do not all
// carry the identical field set, or a row misses a key field.
type InconsistentRowShapeError struct {
	Row     int // index of the offending row
	Missing []string
	Extra   []string
}

// Error returns the error string.
func (e *InconsistentRowShapeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pgbulk: row %d has inconsistent shape", e.Row)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, ": missing %v", e.Missing)
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&sb, ": unexpected %v", e.Extra)
	}
	return sb.String()
}

// IsInconsistentRowShape returns true if the error is an InconsistentRowShapeError.
func IsInconsistentRowShape(err error) bool {
	var e *InconsistentRowShapeError
	return errors.As(err, &e)
}

// EmptyUpdateError is returned when a call carries nothing to do: zero
// update fields for an update, or an empty row set for a create.
type EmptyUpdateError struct {
	Reason string
}

// Error returns the error string.
func (e *EmptyUpdateError) Error() string {
	return fmt.Sprintf("pgbulk: %s", e.Reason)
}

// IsEmptyUpdate returns true if the error is an EmptyUpdateError.
func IsEmptyUpdate(err error) bool {
	var e *EmptyUpdateError
	return errors.As(err, &e)
}

// BackendCapabilityError is returned when a call needs a statement form the
// backend does not support: conflict updates for the forced atomic upsert
// strategy, RETURNING clauses, or VALUES-driven updates.
type BackendCapabilityError struct {
	Dialect    string
	Capability string
}

// Error returns the error string.
func (e *BackendCapabilityError) Error() string {
	return fmt.Sprintf("pgbulk: dialect %q does not support %s", e.Dialect, e.Capability)
}

// IsBackendCapability returns true if the error is a BackendCapabilityError.
func IsBackendCapability(err error) bool {
	var e *BackendCapabilityError
	return errors.As(err, &e)
}

// ExecutionError wraps an error returned by the executor while running one
// batch. The underlying error is preserved verbatim via Unwrap; prior
// committed batches stay committed.
type ExecutionError struct {
	Batch int // zero-based batch index
	Err   error
}

// Error returns the error string.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("pgbulk: batch %d: %v", e.Batch, e.Err)
}

// Unwrap returns the underlying executor error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecution returns true if the error is an ExecutionError.
func IsExecution(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}
