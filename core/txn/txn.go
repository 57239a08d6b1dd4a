// Package txn is the transaction scope core. A Transaction owns its Handle
// for its whole life and hands out row data only for the dynamic extent of
// a query callback.
//
// State machine:
//
//	Open -> {Querying -> Open}* -> Closed
//
// Querying means the transaction is exclusively borrowed by an operation
// in flight, including a query callback. Every operation started while
// Querying fails with a *ScopeViolation (ErrBorrowed). After Close every
// operation fails with a *ScopeViolation (ErrTransactionClosed).
//
// Rows, and the Value and Ref handles taken from them, carry a scope token
// that dies when the callback returns (or, for Rows, on the next Next).
// Using a dead token, or handing a token to another transaction, fails with
// a *ScopeViolation. Query rejects results that contain scoped values.
// QueryOne returns a materialized Record, which is never scoped.
package txn

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/ports"
)

// State is a transaction's lifecycle state.
type State int

const (
	StateOpen State = iota
	StateQuerying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateQuerying:
		return "querying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a transaction.
type Options struct {
	// Writable allows Insert, Update and Delete.
	Writable bool
	Logger   zerolog.Logger
	Metrics  ports.Metrics
	IDs      ports.IDGenerator
}

// Transaction is exclusive, scoped ownership of a database handle.
type Transaction struct {
	id       string
	handle   *Handle
	schema   *schema.Validated
	sess     ports.Session
	writable bool
	logger   zerolog.Logger
	metrics  ports.Metrics
	openedAt time.Time

	mu       sync.Mutex
	state    State
	scopes   []*scope
	finished bool
}

// Open acquires exclusive ownership of h and starts a storage transaction.
// It waits while another transaction owns h, until ctx is done.
func Open(ctx context.Context, h *Handle, s *schema.Validated, opts Options) (*Transaction, error) {
	if s == nil {
		return nil, ErrNoSchema
	}
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = counterIDs{}
	}

	start := time.Now()
	if err := h.acquire(ctx); err != nil {
		return nil, err
	}
	m.ObserveHandleWait(time.Since(start))

	sess, err := h.conn.Begin(ctx, opts.Writable)
	if err != nil {
		h.release(nil)
		return nil, &ExecutionError{Op: "begin", Err: err}
	}

	id := ids.New()
	tx := &Transaction{
		id:       id,
		handle:   h,
		schema:   s,
		sess:     sess,
		writable: opts.Writable,
		logger:   opts.Logger.With().Str("tx_id", id).Logger(),
		metrics:  m,
		openedAt: time.Now(),
	}
	if err := h.attach(tx); err != nil {
		sess.Rollback()
		h.release(nil)
		return nil, err
	}

	m.TransactionOpened()
	tx.logger.Debug().Bool("writable", opts.Writable).Msg("transaction opened")
	return tx, nil
}

// ID returns the transaction id.
func (tx *Transaction) ID() string { return tx.id }

// Writable reports whether the transaction accepts writes.
func (tx *Transaction) Writable() bool { return tx.writable }

// Schema returns the schema the transaction checks plans against.
func (tx *Transaction) Schema() *schema.Validated { return tx.schema }

// State returns the current state.
func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Commit makes the transaction's writes durable and closes it. The
// transaction is closed even when the commit fails.
func (tx *Transaction) Commit() error {
	if err := tx.enter("commit"); err != nil {
		return err
	}

	start := time.Now()
	err := tx.sess.Commit()
	tx.metrics.RecordQuery("commit", start, err)
	if err != nil {
		tx.sess.Rollback()
		tx.finish("commit_failed")
		tx.logger.Error().Err(err).Msg("commit failed")
		return &ExecutionError{Op: "commit", Err: err}
	}

	tx.finish("commit")
	tx.logger.Debug().Dur("age", time.Since(tx.openedAt)).Msg("transaction committed")
	return nil
}

// Close discards uncommitted writes and releases the handle. Closing a
// closed transaction is a no-op. Closing from inside a query callback
// fails with a *ScopeViolation.
func (tx *Transaction) Close() error {
	tx.mu.Lock()
	switch tx.state {
	case StateClosed:
		tx.mu.Unlock()
		return nil
	case StateQuerying:
		tx.mu.Unlock()
		return tx.violation("close", ErrBorrowed)
	}
	tx.state = StateQuerying
	tx.mu.Unlock()

	err := tx.sess.Rollback()
	tx.finish("rollback")
	tx.logger.Debug().Dur("age", time.Since(tx.openedAt)).Msg("transaction closed")
	if err != nil {
		return &ExecutionError{Op: "rollback", Err: err}
	}
	return nil
}

// enter moves Open to Querying for the duration of one operation.
func (tx *Transaction) enter(op string) error {
	tx.mu.Lock()
	state := tx.state
	if state == StateOpen {
		tx.state = StateQuerying
	}
	tx.mu.Unlock()

	switch state {
	case StateClosed:
		return tx.violation(op, ErrTransactionClosed)
	case StateQuerying:
		return tx.violation(op, ErrBorrowed)
	}
	return nil
}

// leave ends the current operation. Scopes issued during it die.
func (tx *Transaction) leave() {
	tx.mu.Lock()
	scopes := tx.scopes
	tx.scopes = nil
	if tx.state == StateQuerying {
		tx.state = StateOpen
	}
	tx.mu.Unlock()

	for _, sc := range scopes {
		sc.end()
	}
}

// finish moves to Closed and releases the handle.
func (tx *Transaction) finish(outcome string) {
	tx.mu.Lock()
	if tx.finished {
		tx.mu.Unlock()
		return
	}
	tx.finished = true
	scopes := tx.scopes
	tx.scopes = nil
	tx.state = StateClosed
	tx.mu.Unlock()

	for _, sc := range scopes {
		sc.end()
	}

	mode := "read"
	if tx.writable {
		mode = "write"
	}
	tx.metrics.TransactionClosed(mode, outcome)
	tx.handle.release(tx)
}

// forceClose closes the transaction from outside, e.g. when its handle is
// closed or lost. Scoped values become unusable immediately.
func (tx *Transaction) forceClose(outcome string) {
	tx.mu.Lock()
	if tx.state == StateClosed {
		tx.mu.Unlock()
		return
	}
	tx.state = StateClosed
	tx.mu.Unlock()

	tx.sess.Rollback()
	tx.finish(outcome)
	tx.logger.Warn().Str("outcome", outcome).Msg("transaction force-closed")
}

// exec runs one adapter call and classifies its failure. Handle loss forces
// the transaction closed.
func (tx *Transaction) exec(op, table string, fn func() error) error {
	start := time.Now()
	err := fn()
	tx.metrics.RecordQuery(op, start, err)
	if err == nil {
		return nil
	}

	if errors.Is(err, ports.ErrHandleLost) {
		tx.logger.Error().Err(err).Str("op", op).Msg("database handle lost")
		tx.forceClose("handle_lost")
	} else {
		tx.logger.Debug().Err(err).Str("op", op).Str("table", table).Msg("execution failed")
	}
	return &ExecutionError{Op: op, Table: table, Err: err}
}

func (tx *Transaction) violation(op string, reason error) error {
	tx.metrics.ScopeViolation(reasonLabel(reason))
	tx.logger.Warn().Str("op", op).Err(reason).Msg("scope violation")
	return &ScopeViolation{TxID: tx.id, Op: op, Reason: reason}
}

func (tx *Transaction) closed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state == StateClosed
}

type nopMetrics struct{}

func (nopMetrics) RecordQuery(string, time.Time, error) {}
func (nopMetrics) TransactionOpened() {}
func (nopMetrics) TransactionClosed(string, string) {}
func (nopMetrics) ObserveHandleWait(time.Duration) {}
func (nopMetrics) ScopeViolation(string) {}

var txSeq atomic.Uint64

// counterIDs numbers transactions when no IDGenerator is configured.
type counterIDs struct{}

func (counterIDs) New() string { return "tx-" + strconv.FormatUint(txSeq.Add(1), 10) }
