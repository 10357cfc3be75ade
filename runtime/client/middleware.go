package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/session"
	"github.com/satishbabariya/duckql/runtime/types"
)

// QueryEvent describes one statement passing through the middleware chain.
type QueryEvent struct {
	Statement ast.Statement
	Query     *compiler.Query
	Duration  time.Duration
	Error     error
	Start     time.Time
	End       time.Time
}

// Middleware intercepts statements run through a Client. It must call next
// exactly once to run the statement, or return without calling it to skip.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// Result is a fully read result set.
type Result struct {
	Columns      []session.Column
	Rows         [][]types.Value
	RowsAffected int64
}

// Run compiles stmt and runs it on conn through the middleware chain.
func (c *Client) Run(ctx context.Context, conn *session.Conn, stmt ast.Statement) (*session.RowStream, error) {
	q, err := c.compiler.Compile(stmt)
	if err != nil {
		return nil, err
	}
	var rows *session.RowStream
	err = c.intercept(ctx, &QueryEvent{Statement: stmt, Query: q}, func() error {
		var err error
		rows, err = conn.RunQuery(ctx, q)
		return err
	})
	return rows, err
}

// Collect runs stmt on a fresh session and reads every row.
func (c *Client) Collect(ctx context.Context, stmt ast.Statement) (*Result, error) {
	var out *Result
	err := c.WithConn(ctx, func(conn *session.Conn) error {
		rows, err := c.Run(ctx, conn, stmt)
		if err != nil {
			return err
		}
		all, err := rows.Collect(ctx)
		if err != nil {
			return err
		}
		out = &Result{Columns: rows.Columns(), Rows: all, RowsAffected: rows.RowsAffected()}
		return nil
	})
	return out, err
}

// intercept runs exec inside the middleware chain.
func (c *Client) intercept(ctx context.Context, event *QueryEvent, exec func() error) error {
	c.mu.Lock()
	chain := append([]Middleware(nil), c.middlewares...)
	c.mu.Unlock()

	event.Start = time.Now()
	var next func() error
	index := 0
	next = func() error {
		if index >= len(chain) {
			err := exec()
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		mw := chain[index]
		index++
		return mw(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every statement and its outcome.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		logger.DebugContext(ctx, "executing statement", "kind", event.Query.Kind, "sql", event.Query.SQL, "params", len(event.Query.Params))
		err := next()
		if err != nil {
			logger.ErrorContext(ctx, "statement failed", "sql", event.Query.SQL, "error", err)
		} else {
			logger.DebugContext(ctx, "statement completed", "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports the duration of every statement.
func TimingMiddleware(onTiming func(sql string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query.SQL, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed statements.
func ErrorMiddleware(onError func(sql string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query.SQL, err)
		}
		return err
	}
}
