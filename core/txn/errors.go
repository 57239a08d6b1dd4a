package txn

import (
	"errors"
	"fmt"
)

// ErrScopeViolation matches every *ScopeViolation.
var ErrScopeViolation = errors.New("scope violation")

// Scope violation reasons.
var (
	// ErrBorrowed: the transaction is exclusively borrowed by an operation
	// or query callback already in flight.
	ErrBorrowed = errors.New("transaction is borrowed by an in-flight query")

	// ErrTransactionClosed: the transaction was closed.
	ErrTransactionClosed = errors.New("transaction is closed")

	// ErrStaleRow: a row, or a value taken from one, was used after the
	// callback that received it returned.
	ErrStaleRow = errors.New("row scope has ended")

	// ErrForeignTransaction: a scoped value was handed to a transaction
	// other than the one that issued it.
	ErrForeignTransaction = errors.New("value belongs to another transaction")

	// ErrEscaped: a query callback returned a scoped value.
	ErrEscaped = errors.New("scoped value escapes its query")
)

// Other transaction errors.
var (
	ErrExecution    = errors.New("execution failed")
	ErrHandleClosed = errors.New("database handle is closed")
	ErrReadOnly     = errors.New("transaction is read-only")
	ErrNoSchema     = errors.New("no validated schema")
	ErrDecode       = errors.New("stored value does not match declared type")
	ErrNoColumn     = errors.New("column not selected")
	ErrColumnType   = errors.New("column has a different type")
)

// ScopeViolation reports use of scoped data, or of a transaction, outside
// its valid extent. It matches ErrScopeViolation and Reason under errors.Is.
type ScopeViolation struct {
	TxID   string
	Op     string
	Reason error
}

func (e *ScopeViolation) Error() string {
	return fmt.Sprintf("scope violation in %s (tx %s): %v", e.Op, e.TxID, e.Reason)
}

func (e *ScopeViolation) Unwrap() []error { return []error{ErrScopeViolation, e.Reason} }

// ExecutionError wraps a failure reported by the execution adapter. It
// matches ErrExecution and the adapter's error under errors.Is.
type ExecutionError struct {
	Op    string
	Table string
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrBorrowed):
		return "borrowed"
	case errors.Is(reason, ErrTransactionClosed):
		return "closed"
	case errors.Is(reason, ErrStaleRow):
		return "stale_row"
	case errors.Is(reason, ErrForeignTransaction):
		return "foreign_transaction"
	case errors.Is(reason, ErrEscaped):
		return "escaped"
	default:
		return "other"
	}
}
