// Package session manages engine connections: statement preparation,
// serialised execution, lazy result streams and transactions.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/cache"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/marshal"
	"github.com/satishbabariya/duckql/runtime/types"
)

var (
	connIDs         atomic.Uint64
	defaultCompiler = compiler.MustNew()
)

// Option configures a Conn.
type Option func(*Conn)

// WithMonitor sets the monitor that receives connection events.
func WithMonitor(m *Monitor) Option {
	return func(c *Conn) { c.monitor = m }
}

// WithCompiler sets the compiler used by Run.
func WithCompiler(comp *compiler.Compiler) Option {
	return func(c *Conn) { c.compiler = comp }
}

// WithMarshaller sets the marshaller used for parameters and cells.
func WithMarshaller(m *marshal.Marshaller) Option {
	return func(c *Conn) { c.marshal = m }
}

// WithStatementCache keeps up to size prepared statements per connection,
// keyed by SQL text, for Run, Query and Exec. Evicted statements are closed.
func WithStatementCache(size int) Option {
	return func(c *Conn) { c.cacheSize = size }
}

// Result reports the outcome of a statement that returns no rows.
type Result struct {
	RowsAffected int64
}

// Conn is one logical engine connection. It runs one statement at a time;
// concurrent callers wait in arrival order. An open RowStream holds the
// connection until it is closed.
type Conn struct {
	id       uint64
	native   engine.Conn
	sem      *semaphore.Weighted
	compiler *compiler.Compiler
	marshal  *marshal.Marshaller
	monitor  *Monitor

	// Statements cached by SQL text. Guarded by sem, except in Close.
	cacheSize int
	cache     *cache.LRU[string, engine.Stmt]

	mu     sync.Mutex
	closed bool
	broken *ConnectionError
	tx     *Tx
	stream *RowStream
	stmts  map[*Stmt]struct{}
}

// Open connects to db.
func Open(ctx context.Context, db engine.Database, opts ...Option) (*Conn, error) {
	c := &Conn{
		id:       connIDs.Add(1),
		sem:      semaphore.NewWeighted(1),
		compiler: defaultCompiler,
		marshal:  marshal.Default,
		stmts:    make(map[*Stmt]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	start := time.Now()
	native, err := db.Connect(ctx)
	if err != nil && ctx.Err() == nil {
		err = &ConnectionError{Err: err}
	}
	c.emit(Event{Kind: EventConnect, Err: err}, start)
	if err != nil {
		return nil, err
	}
	c.native = native
	if c.cacheSize > 0 {
		c.cache = cache.New(c.cacheSize, func(_ string, s engine.Stmt) { s.Close() })
	}
	return c, nil
}

// ID identifies the connection in events.
func (c *Conn) ID() uint64 { return c.id }

// Compiler returns the compiler used by Run.
func (c *Conn) Compiler() *compiler.Compiler { return c.compiler }

// Marshaller returns the marshaller used for parameters and cells.
func (c *Conn) Marshaller() *marshal.Marshaller { return c.marshal }

// Err reports why the connection is unusable, or nil.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClosed
	case c.broken != nil:
		return c.broken
	}
	return nil
}

// acquire waits for the connection's turn.
func (c *Conn) acquire(ctx context.Context) error {
	if err := c.Err(); err != nil {
		return err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		c.sem.Release(1)
		return err
	}
	return nil
}

func (c *Conn) release() { c.sem.Release(1) }

// fail classifies err and marks the connection broken on a connection loss.
func (c *Conn) fail(err error, sql string) error {
	err = classify(err, sql)
	var ce *ConnectionError
	if errors.As(err, &ce) {
		c.mu.Lock()
		if c.broken == nil {
			c.broken = ce
		}
		c.mu.Unlock()
	}
	return err
}

func (c *Conn) emit(e Event, start time.Time) {
	e.Conn = c.id
	e.DurationMicros = time.Since(start).Microseconds()
	c.monitor.Emit(e)
}

// Prepare prepares sql on the connection.
func (c *Conn) Prepare(ctx context.Context, sql string) (*Stmt, error) {
	n, err := compiler.CountPlaceholders(sql)
	if err != nil {
		return nil, &QueryError{SQL: truncateSQL(sql), Err: err}
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	start := time.Now()
	native, err := c.native.Prepare(ctx, sql)
	if err != nil {
		err = c.fail(err, sql)
	}
	c.emit(Event{Kind: EventPrepare, SQL: sql, Err: err}, start)
	if err != nil {
		return nil, err
	}
	if k := native.NumInput(); k >= 0 {
		n = k
	}

	s := &Stmt{conn: c, sql: sql, n: n, native: native}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		native.Close()
		return nil, ErrClosed
	}
	c.stmts[s] = struct{}{}
	return s, nil
}

// Execute runs a prepared statement and streams its rows.
func (c *Conn) Execute(ctx context.Context, s *Stmt, params []compiler.Param) (*RowStream, error) {
	if err := c.owns(s); err != nil {
		return nil, err
	}
	args, err := c.bind(s.sql, s.n, params)
	if err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.query(ctx, s.native, false, s.sql, params, args, nil)
}

// ExecStmt runs a prepared statement that returns no rows.
func (c *Conn) ExecStmt(ctx context.Context, s *Stmt, params []compiler.Param) (Result, error) {
	if err := c.owns(s); err != nil {
		return Result{}, err
	}
	args, err := c.bind(s.sql, s.n, params)
	if err != nil {
		return Result{}, err
	}
	if err := c.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer c.release()
	return c.exec(ctx, s.native, s.sql, params, args)
}

// Query runs a compiled query and streams its rows.
func (c *Conn) Query(ctx context.Context, q *compiler.Query) (*RowStream, error) {
	args, err := c.bind(q.SQL, len(q.Params), q.Params)
	if err != nil {
		return nil, err
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	native, owned, err := c.prepareLocked(ctx, q.SQL)
	if err != nil {
		c.release()
		return nil, err
	}
	return c.query(ctx, native, owned, q.SQL, q.Params, args, q.Columns)
}

// Exec runs a compiled statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, q *compiler.Query) (Result, error) {
	args, err := c.bind(q.SQL, len(q.Params), q.Params)
	if err != nil {
		return Result{}, err
	}
	if err := c.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer c.release()
	native, owned, err := c.prepareLocked(ctx, q.SQL)
	if err != nil {
		return Result{}, err
	}
	if owned {
		defer native.Close()
	}
	return c.exec(ctx, native, q.SQL, q.Params, args)
}

// Run compiles and runs stmt. Writes without RETURNING yield a stream with
// no rows that reports RowsAffected.
func (c *Conn) Run(ctx context.Context, stmt ast.Statement) (*RowStream, error) {
	q, err := c.compiler.Compile(stmt)
	if err != nil {
		return nil, err
	}
	return c.RunQuery(ctx, q)
}

// RunQuery runs a compiled statement, streaming rows when it returns any.
func (c *Conn) RunQuery(ctx context.Context, q *compiler.Query) (*RowStream, error) {
	if q.ReturnsRows() {
		return c.Query(ctx, q)
	}
	res, err := c.Exec(ctx, q)
	if err != nil {
		return nil, err
	}
	return &RowStream{conn: c, sql: q.SQL, closed: true, affected: res.RowsAffected}, nil
}

// Close releases the connection. An open result stream is closed, an
// active transaction is rolled back and prepared statements are
// invalidated.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tx, stmts, broken := c.tx, c.stmts, c.broken
	c.tx, c.stmts = nil, nil
	c.mu.Unlock()

	start := time.Now()
	c.closeStream(ErrClosed)
	var errs []error
	if tx != nil {
		tx.abandon()
		if broken == nil && c.sem.TryAcquire(1) {
			if err := c.control(context.Background(), "ROLLBACK"); err != nil {
				errs = append(errs, err)
			}
			c.release()
		}
	}
	for s := range stmts {
		s.native.Close()
	}
	if c.cache != nil {
		c.cache.Purge()
	}
	if err := c.native.Close(); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	c.emit(Event{Kind: EventClose, Err: err}, start)
	return err
}

func (c *Conn) owns(s *Stmt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if s == nil || s.conn != c {
		return ErrStmtClosed
	}
	if _, ok := c.stmts[s]; !ok {
		return ErrStmtClosed
	}
	return nil
}

// bind checks arity and encodes params with their declared types.
func (c *Conn) bind(sql string, want int, params []compiler.Param) ([]any, error) {
	if want >= 0 && len(params) != want {
		return nil, &QueryError{
			SQL: truncateSQL(sql),
			Err: fmt.Errorf("statement takes %d parameters, got %d", want, len(params)),
		}
	}
	args := make([]any, len(params))
	for i, p := range params {
		v, err := c.marshal.Encode(p.Value, p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		args[i] = v
	}
	return args, nil
}

// prepareLocked prepares sql for one call. With a statement cache the
// statement is shared and owned is false; otherwise the caller closes it.
// The caller holds the connection.
func (c *Conn) prepareLocked(ctx context.Context, sql string) (native engine.Stmt, owned bool, err error) {
	if c.cache != nil {
		if s, ok := c.cache.Get(sql); ok {
			return s, false, nil
		}
	}
	start := time.Now()
	native, err = c.native.Prepare(ctx, sql)
	if err != nil {
		err = c.fail(err, sql)
	}
	c.emit(Event{Kind: EventPrepare, SQL: sql, Err: err}, start)
	if err != nil {
		return nil, false, err
	}
	if c.cache != nil {
		c.cache.Add(sql, native)
		return native, false, nil
	}
	return native, true, nil
}

// closeStream closes the result stream holding the connection, if any.
// Its reader sees err.
func (c *Conn) closeStream(err error) {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s != nil {
		s.closeWith(err)
	}
}

// CacheStats reports statement cache activity. It is zero without a cache.
func (c *Conn) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// query starts a cursor. The caller holds the connection; the returned
// stream releases it on close. declared overrides engine column types.
func (c *Conn) query(ctx context.Context, native engine.Stmt, owned bool, sql string, params []compiler.Param, args []any, declared map[string]types.DataType) (*RowStream, error) {
	start := time.Now()
	rows, err := native.Query(ctx, args)
	if err != nil {
		err = c.fail(err, sql)
	}
	c.emit(Event{Kind: EventExecute, SQL: sql, Params: paramValues(params), Err: err}, start)
	if err != nil {
		if owned {
			native.Close()
		}
		c.release()
		return nil, err
	}

	s := &RowStream{conn: c, rows: rows, sql: sql, start: start, release: c.release}
	if owned {
		s.stmt = native
	}
	s.cols = columns(rows.Columns(), declared)
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
	return s, nil
}

// exec runs a statement without a cursor. The caller holds the connection.
func (c *Conn) exec(ctx context.Context, native engine.Stmt, sql string, params []compiler.Param, args []any) (Result, error) {
	start := time.Now()
	res, err := native.Exec(ctx, args)
	if err != nil {
		err = c.fail(err, sql)
	}
	c.emit(Event{Kind: EventExecute, SQL: sql, Params: paramValues(params), Rows: res.RowsAffected, Err: err}, start)
	if err != nil {
		return Result{}, err
	}
	return Result{RowsAffected: res.RowsAffected}, nil
}

// control runs a transaction control statement. The caller holds the
// connection.
func (c *Conn) control(ctx context.Context, sql string) error {
	native, err := c.native.Prepare(ctx, sql)
	if err != nil {
		return c.fail(err, sql)
	}
	defer native.Close()
	if _, err := native.Exec(ctx, nil); err != nil {
		return c.fail(err, sql)
	}
	return nil
}

func paramValues(params []compiler.Param) []types.Value {
	if len(params) == 0 {
		return nil
	}
	vals := make([]types.Value, len(params))
	for i, p := range params {
		vals[i] = p.Value
	}
	return vals
}

// columns resolves engine type names. A declared type wins; unparseable
// names leave Type nil so cells are decoded by their runtime shape.
func columns(cols []engine.Column, declared map[string]types.DataType) []Column {
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{Name: col.Name, DatabaseType: col.DatabaseType}
		if t, ok := declared[col.Name]; ok {
			out[i].Type = t
		} else if t, err := types.ParseDataType(col.DatabaseType); err == nil {
			out[i].Type = t
		}
	}
	return out
}
