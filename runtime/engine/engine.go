// Package engine defines the native execution boundary the session layer
// drives. Adapters implement these interfaces over a concrete engine.
package engine

import (
	"context"
	"errors"
)

// Adapters wrap these sentinels so the session layer can classify failures.
var (
	// ErrConnectionLost marks a failure after which the connection is unusable.
	ErrConnectionLost = errors.New("engine connection lost")
	// ErrBusy marks a transient lock or write conflict.
	ErrBusy = errors.New("engine busy")
)

// Database is a shared, externally owned engine instance.
type Database interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one native connection. It is never used by two goroutines at once.
type Conn interface {
	Prepare(ctx context.Context, query string) (Stmt, error)
	Close() error
}

// Stmt is a prepared statement bound to one Conn.
type Stmt interface {
	// NumInput returns the number of placeholders, or -1 if unknown.
	NumInput() int
	Query(ctx context.Context, args []any) (Rows, error)
	Exec(ctx context.Context, args []any) (Result, error)
	Close() error
}

// Rows is an open native cursor.
type Rows interface {
	Columns() []Column
	// Next fills dest with the next row and returns io.EOF after the last one.
	Next(dest []any) error
	Close() error
}

// Column is result metadata for one column.
type Column struct {
	Name         string
	DatabaseType string
}

// Result reports the outcome of a statement that returns no rows.
type Result struct {
	RowsAffected int64
}

// MapEntry is one pair of a native MAP value.
type MapEntry struct {
	Key   any
	Value any
}

// Union is a native UNION value.
type Union struct {
	Tag   string
	Value any
}

// Interval is a native INTERVAL value.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}
