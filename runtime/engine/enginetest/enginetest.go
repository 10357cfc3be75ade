// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/satishbabariya/duckql/runtime/engine"
)

// Result is what a handler returns for one statement.
type Result struct {
	Columns      []engine.Column
	Rows         [][]any
	RowsAffected int64
	// Err is returned by the cursor after the last row.
	Err error
}

// Handler answers a statement. It runs on the caller's goroutine.
type Handler func(ctx context.Context, query string, args []any) (*Result, error)

// Call records one statement execution.
type Call struct {
	Conn  int
	SQL   string
	Args  []any
	Query bool
}

// Database is a scripted engine.Database. Handlers are matched by the
// longest case-insensitive prefix of the trimmed statement text.
type Database struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	conns    int
	closed   int

	openCursors atomic.Int64

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error
}

// New creates a Database that accepts transaction control statements.
func New() *Database {
	d := &Database{handlers: make(map[string]Handler)}
	ok := func(context.Context, string, []any) (*Result, error) { return &Result{}, nil }
	for _, kw := range []string{"BEGIN", "COMMIT", "ROLLBACK"} {
		d.handlers[kw] = ok
	}
	return d
}

// Handle registers fn for statements starting with prefix.
func (d *Database) Handle(prefix string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[strings.ToUpper(strings.TrimSpace(prefix))] = fn
}

// Rows registers a fixed result set for statements starting with prefix.
func (d *Database) Rows(prefix string, cols []engine.Column, rows ...[]any) {
	d.Handle(prefix, func(context.Context, string, []any) (*Result, error) {
		return &Result{Columns: cols, Rows: rows}, nil
	})
}

// Fail registers an error for statements starting with prefix.
func (d *Database) Fail(prefix string, err error) {
	d.Handle(prefix, func(context.Context, string, []any) (*Result, error) {
		return nil, err
	})
}

// Calls returns the statements executed so far.
func (d *Database) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// SQL returns the text of every executed statement.
func (d *Database) SQL() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.SQL
	}
	return out
}

// Reset forgets recorded calls.
func (d *Database) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// OpenCursors reports cursors that have not been closed.
func (d *Database) OpenCursors() int { return int(d.openCursors.Load()) }

// Conns reports connections opened and closed.
func (d *Database) Conns() (opened, closed int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns, d.closed
}

// Connect opens a scripted connection.
func (d *Database) Connect(ctx context.Context) (engine.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns++
	return &conn{db: d, id: d.conns}, nil
}

func (d *Database) lookup(query string) (Handler, error) {
	head := strings.ToUpper(strings.TrimSpace(query))
	d.mu.Lock()
	defer d.mu.Unlock()
	prefixes := make([]string, 0, len(d.handlers))
	for p := range d.handlers {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for _, p := range prefixes {
		if strings.HasPrefix(head, p) {
			return d.handlers[p], nil
		}
	}
	return nil, fmt.Errorf("enginetest: no handler for %q", query)
}

func (d *Database) record(c Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
}

type conn struct {
	db     *Database
	id     int
	closed atomic.Bool
}

func (c *conn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	if c.closed.Load() {
		return nil, engine.ErrConnectionLost
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := c.db.lookup(query)
	if err != nil {
		return nil, err
	}
	return &stmt{conn: c, query: query, handler: h}, nil
}

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.db.mu.Lock()
	c.db.closed++
	c.db.mu.Unlock()
	return nil
}

type stmt struct {
	conn    *conn
	query   string
	handler Handler
}

// NumInput is unknown; the fake accepts any argument count.
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) run(ctx context.Context, args []any, query bool) (*Result, error) {
	if s.conn.closed.Load() {
		return nil, engine.ErrConnectionLost
	}
	s.conn.db.record(Call{Conn: s.conn.id, SQL: s.query, Args: append([]any(nil), args...), Query: query})
	res, err := s.handler(ctx, s.query, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	return res, nil
}

func (s *stmt) Query(ctx context.Context, args []any) (engine.Rows, error) {
	res, err := s.run(ctx, args, true)
	if err != nil {
		return nil, err
	}
	s.conn.db.openCursors.Add(1)
	return &rows{db: s.conn.db, res: res}, nil
}

func (s *stmt) Exec(ctx context.Context, args []any) (engine.Result, error) {
	res, err := s.run(ctx, args, false)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{RowsAffected: res.RowsAffected}, nil
}

func (s *stmt) Close() error { return nil }

type rows struct {
	db     *Database
	res    *Result
	pos    int
	closed bool
}

func (r *rows) Columns() []engine.Column { return r.res.Columns }

func (r *rows) Next(dest []any) error {
	if r.closed {
		return errors.New("enginetest: cursor closed")
	}
	if r.pos >= len(r.res.Rows) {
		if r.res.Err != nil {
			return r.res.Err
		}
		return io.EOF
	}
	row := r.res.Rows[r.pos]
	r.pos++
	if len(row) != len(dest) {
		return fmt.Errorf("enginetest: row has %d cells for %d columns", len(row), len(dest))
	}
	copy(dest, row)
	return nil
}

func (r *rows) Close() error {
	if !r.closed {
		r.closed = true
		r.db.openCursors.Add(-1)
	}
	return nil
}

var _ engine.Database = (*Database)(nil)
