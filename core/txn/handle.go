package txn

import (
	"context"
	"sync"

	"github.com/artpar/scopedb/ports"
)

// Handle grants exclusive use of one database connection. At most one
// Transaction is live on a Handle; Open waits for the previous one to close.
type Handle struct {
	conn ports.Conn

	// slot holds a token while a transaction owns the handle.
	slot chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
	active *Transaction
}

// NewHandle wraps conn. The Handle owns conn from now on.
func NewHandle(conn ports.Conn) *Handle {
	return &Handle{
		conn: conn,
		slot: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Active returns the live transaction, or nil.
func (h *Handle) Active() *Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Close force-closes any live transaction and closes the connection.
// Opening a transaction on a closed Handle fails with ErrHandleClosed.
// Close must not run concurrently with an operation in flight on the live
// transaction: adapter sessions are not safe for concurrent use.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	active := h.active
	h.mu.Unlock()

	if active != nil {
		active.forceClose("handle_closed")
	}
	return h.conn.Close()
}

// acquire waits for exclusive use of the handle.
func (h *Handle) acquire(ctx context.Context) error {
	select {
	case <-h.done:
		return ErrHandleClosed
	default:
	}

	select {
	case h.slot <- struct{}{}:
	case <-h.done:
		return ErrHandleClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		<-h.slot
		return ErrHandleClosed
	}
	return nil
}

// attach records tx as the owner of an acquired handle.
func (h *Handle) attach(tx *Transaction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	h.active = tx
	return nil
}

// release gives up an acquired handle. With a non-nil tx it only releases
// if tx still owns the handle, so a transaction releases at most once.
func (h *Handle) release(tx *Transaction) {
	h.mu.Lock()
	if tx != nil {
		if h.active != tx {
			h.mu.Unlock()
			return
		}
		h.active = nil
	}
	h.mu.Unlock()
	<-h.slot
}
