package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
)

// TxState is the lifecycle position of a transaction.
type TxState int

const (
	TxIdle TxState = iota
	TxActive
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled back"
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Tx is a transaction on one Conn. A Conn has at most one active Tx.
// Statements run through the Tx are part of it.
type Tx struct {
	conn   *Conn
	mu     sync.Mutex
	state  TxState
	ending bool
}

// NewTx creates an idle transaction on c.
func NewTx(c *Conn) *Tx {
	return &Tx{conn: c}
}

// Begin starts a transaction on c.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	tx := NewTx(c)
	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}
	return tx, nil
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back when fn fails or panics.
func (c *Conn) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if tx.State() == TxActive {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				return fmt.Errorf("transaction error: %w, rollback error: %w", err, rbErr)
			}
		}
		return err
	}

	switch tx.State() {
	case TxCommitted:
		return nil
	case TxRolledBack:
		return ErrTransactionClosed
	}
	return tx.Commit(ctx)
}

// State returns the current state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin moves an idle transaction to active.
func (t *Tx) Begin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case TxActive:
		return ErrTransactionAlreadyActive
	case TxCommitted, TxRolledBack:
		return ErrTransactionClosed
	}

	c := t.conn
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.tx != nil:
		c.mu.Unlock()
		return ErrTransactionAlreadyActive
	}
	c.tx = t
	c.mu.Unlock()

	if err := t.control(ctx, EventBegin, "BEGIN TRANSACTION"); err != nil {
		t.detach()
		return err
	}
	t.state = TxActive
	return nil
}

// Commit commits an active transaction. A result stream still open on the
// connection is closed first. A failed commit leaves the transaction rolled
// back.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.begin(); err != nil {
		return err
	}
	t.conn.closeStream(ErrTransactionClosed)

	err := t.control(ctx, EventCommit, "COMMIT")
	if err == nil {
		t.finish(TxCommitted)
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		err = &TxAbortedError{Err: err}
	} else if !errors.Is(err, ErrClosed) {
		// sqlite keeps the transaction open after a failed commit; DuckDB
		// has already rolled back and rejects this.
		_ = t.control(context.WithoutCancel(ctx), EventRollback, "ROLLBACK")
	}
	t.finish(TxRolledBack)
	return err
}

// Rollback rolls back an active transaction. A result stream still open on
// the connection is closed first.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.begin(); err != nil {
		return err
	}
	t.conn.closeStream(ErrTransactionClosed)

	err := t.control(ctx, EventRollback, "ROLLBACK")
	t.finish(TxRolledBack)
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return &TxAbortedError{Err: err}
	}
	return err
}

// begin claims the transaction for Commit or Rollback. t.mu is not held
// while the control statement waits for the connection.
func (t *Tx) begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(); err != nil {
		return err
	}
	t.ending = true
	return nil
}

// finish records the final state and frees the connection for a new
// transaction.
func (t *Tx) finish(state TxState) {
	t.mu.Lock()
	t.state = state
	t.ending = false
	t.mu.Unlock()
	t.detach()
}

// Query runs a compiled query inside the transaction.
func (t *Tx) Query(ctx context.Context, q *compiler.Query) (*RowStream, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	rows, err := t.conn.Query(ctx, q)
	return rows, t.check(err)
}

// Exec runs a compiled statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, q *compiler.Query) (Result, error) {
	if err := t.guard(); err != nil {
		return Result{}, err
	}
	res, err := t.conn.Exec(ctx, q)
	return res, t.check(err)
}

// Run compiles and runs stmt inside the transaction.
func (t *Tx) Run(ctx context.Context, stmt ast.Statement) (*RowStream, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	rows, err := t.conn.Run(ctx, stmt)
	return rows, t.check(err)
}

func (t *Tx) guard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkActive()
}

// checkActive reports why the transaction cannot run statements. A broken
// connection aborts an active transaction. t.mu is held.
func (t *Tx) checkActive() error {
	switch t.state {
	case TxIdle:
		return ErrTransactionNotActive
	case TxCommitted, TxRolledBack:
		return ErrTransactionClosed
	}
	if t.ending {
		return ErrTransactionClosed
	}
	var ce *ConnectionError
	if err := t.conn.Err(); errors.As(err, &ce) {
		t.state = TxRolledBack
		t.detach()
		return &TxAbortedError{Err: err}
	}
	return nil
}

// check aborts the transaction when err is a connection failure.
func (t *Tx) check(err error) error {
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TxActive {
		t.state = TxRolledBack
		t.detach()
	}
	return &TxAbortedError{Err: err}
}

// control runs a transaction control statement with its own event kind.
func (t *Tx) control(ctx context.Context, kind EventKind, sql string) error {
	c := t.conn
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()
	start := time.Now()
	err := c.control(ctx, sql)
	c.emit(Event{Kind: kind, SQL: sql, Err: err}, start)
	return err
}

// detach clears the connection's active transaction if it is t.
func (t *Tx) detach() {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == t {
		c.tx = nil
	}
}

// abandon marks the transaction rolled back without touching the engine.
func (t *Tx) abandon() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TxActive {
		t.state = TxRolledBack
	}
}
