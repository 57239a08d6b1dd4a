// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/scopedb/core/plan"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Metrics records transaction activity.
type Metrics interface {
	RecordQuery(op string, start time.Time, err error)
	TransactionOpened()
	TransactionClosed(mode, outcome string)
	ObserveHandleWait(d time.Duration)
	ScopeViolation(reason string)
}

// -----------------------------------------------------------------------------
// Execution Ports
// -----------------------------------------------------------------------------

// Error classes an adapter reports. Adapters wrap their native error so
// errors.Is matches both the class and the cause.
var (
	// ErrHandleLost means the underlying connection is no longer usable.
	ErrHandleLost = errors.New("database handle lost")

	// ErrConstraint means storage rejected a write (unique, foreign key).
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound means a write addressed a row that does not exist.
	ErrNotFound = errors.New("row not found")
)

// Conn is one physical database connection. It is never used by two
// sessions at once.
type Conn interface {
	// Begin starts a storage transaction.
	Begin(ctx context.Context, writable bool) (Session, error)

	// Close releases the connection.
	Close() error
}

// RawRow is one result row as storage returned it. Values are in the order
// of the resolved select's columns. The adapter must not retain the row.
type RawRow struct {
	ID     int64
	Values []any
}

// Session executes checked plans inside one storage transaction. Effects
// of earlier calls are visible to later calls on the same session.
type Session interface {
	// Select returns matching rows.
	Select(ctx context.Context, q *plan.ResolvedSelect) ([]RawRow, error)

	// Count returns the number of matching rows, ignoring limit and offset.
	Count(ctx context.Context, q *plan.ResolvedSelect) (int64, error)

	// Aggregate folds the matching rows into one value of q.Type(). NULL
	// inputs are skipped; with no inputs left every function but a count
	// returns nil.
	Aggregate(ctx context.Context, q *plan.ResolvedAggregate) (any, error)

	// Insert adds a row and returns its id.
	Insert(ctx context.Context, w *plan.ResolvedWrite) (int64, error)

	// Update changes a row. Returns ErrNotFound if the row does not exist.
	Update(ctx context.Context, w *plan.ResolvedWrite) error

	// Delete removes a row. Returns ErrNotFound if the row does not exist.
	Delete(ctx context.Context, w *plan.ResolvedWrite) error

	// Commit makes the session's writes durable.
	Commit() error

	// Rollback discards the session's writes.
	Rollback() error
}
