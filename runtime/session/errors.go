package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/satishbabariya/duckql/runtime/engine"
)

var (
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("connection failure")
	// ErrQuery is matched by every *QueryError.
	ErrQuery = errors.New("query failed")
	// ErrBusy is matched by every *BusyError.
	ErrBusy = errors.New("engine busy")

	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("connection is closed")
	// ErrStmtClosed is returned when executing a closed or foreign statement.
	ErrStmtClosed = errors.New("statement is closed")

	// ErrTransactionAlreadyActive is returned by Begin when the connection
	// already has an active transaction.
	ErrTransactionAlreadyActive = errors.New("transaction already active")
	// ErrTransactionClosed is returned by every operation on a committed or
	// rolled back transaction.
	ErrTransactionClosed = errors.New("transaction is closed")
	// ErrTransactionNotActive is returned when using a transaction that was
	// never begun.
	ErrTransactionNotActive = errors.New("transaction not active")
)

const maxSQLInError = 120

// truncateSQL shortens statement text carried by errors.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLInError {
		return sql
	}
	return sql[:maxSQLInError] + "..."
}

// ConnectionError reports an engine failure after which the connection is
// unusable.
type ConnectionError struct {
	SQL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("connection error: %v", e.Err)
	}
	return fmt.Sprintf("connection error in %q: %v", e.SQL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// QueryError reports a statement-local failure. The connection stays usable.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q: %v", e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// BusyError reports a transient lock or write conflict. Retrying may succeed.
type BusyError struct {
	SQL string
	Err error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("engine busy in %q: %v", e.SQL, e.Err)
}

func (e *BusyError) Unwrap() error { return e.Err }

func (e *BusyError) Is(target error) bool { return target == ErrBusy }

// TxAbortedError reports that a transaction was rolled back because its
// connection failed.
type TxAbortedError struct {
	Err error
}

func (e *TxAbortedError) Error() string {
	return fmt.Sprintf("transaction aborted: %v", e.Err)
}

func (e *TxAbortedError) Unwrap() error { return e.Err }

// classify maps an engine error onto the session taxonomy.
func classify(err error, sql string) error {
	if err == nil {
		return nil
	}
	var (
		ce *ConnectionError
		qe *QueryError
		be *BusyError
	)
	if errors.As(err, &ce) || errors.As(err, &qe) || errors.As(err, &be) {
		return err
	}
	sql = truncateSQL(sql)
	switch {
	case errors.Is(err, engine.ErrConnectionLost):
		return &ConnectionError{SQL: sql, Err: err}
	case errors.Is(err, engine.ErrBusy):
		return &BusyError{SQL: sql, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &QueryError{SQL: sql, Err: err}
}
