package datadist

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrValue indicates a value failed a cast or a validation predicate
	ErrValue = errors.New("invalid value")

	// ErrType indicates a value did not match its declared type
	ErrType = errors.New("type mismatch")

	// ErrNotFound indicates a referenced filesystem path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrConfig indicates the caller misused the API (bad name pattern,
	// unknown column, wrong input type); never retried
	ErrConfig = errors.New("invalid configuration")

	// ErrSerialization indicates a metadata value cannot be encoded as a
	// simple JSON primitive; always fatal regardless of drop-on-error mode
	ErrSerialization = errors.New("metadata not JSON-serializable")
)

// RowError describes a single cell that failed validation. It carries enough
// context (column, row index, observed value) to locate the offending cell.
type RowError struct {
	Column string
	Row    int
	Value  any
	Kind   error // one of ErrValue, ErrType, ErrNotFound
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("column %q row %d (%T %v): %s", e.Column, e.Row, e.Value, e.Value, e.Reason)
}

func (e *RowError) Unwrap() error {
	return e.Kind
}

// ColumnError wraps the first row failure of a column in fail-fast mode.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("validation of column %q failed: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}
