// Package client is the entry point for applications: it owns the engine
// handle and hands out sessions.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/engine/sqlengine"
	"github.com/satishbabariya/duckql/runtime/marshal"
	"github.com/satishbabariya/duckql/runtime/session"
)

// Client compiles statements and runs them on sessions over one engine.
type Client struct {
	db       engine.Database
	closer   io.Closer
	compiler *compiler.Compiler
	marshal  *marshal.Marshaller
	monitor  *session.Monitor
	cfg      *config.Config
	stmts    int

	mu          sync.Mutex
	middlewares []Middleware
	closed      bool
}

// Option configures a Client.
type Option func(*Client)

// WithCompiler sets the compiler.
func WithCompiler(c *compiler.Compiler) Option {
	return func(cl *Client) { cl.compiler = c }
}

// WithMarshaller sets the marshaller.
func WithMarshaller(m *marshal.Marshaller) Option {
	return func(cl *Client) { cl.marshal = m }
}

// WithMonitor sets the monitor passed to every session.
func WithMonitor(m *session.Monitor) Option {
	return func(cl *Client) { cl.monitor = m }
}

// WithLogger creates a monitor that logs events to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.monitor = session.NewMonitor(logger) }
}

// WithMiddleware adds middleware around Run.
func WithMiddleware(mw ...Middleware) Option {
	return func(cl *Client) { cl.middlewares = append(cl.middlewares, mw...) }
}

// WithStatementCache gives every session a prepared statement cache of
// size entries.
func WithStatementCache(size int) Option {
	return func(cl *Client) { cl.stmts = size }
}

// New creates a client over an existing engine.
func New(db engine.Database, opts ...Option) (*Client, error) {
	c := &Client{db: db}
	for _, opt := range opts {
		opt(c)
	}
	if c.compiler == nil {
		comp, err := compiler.New()
		if err != nil {
			return nil, err
		}
		c.compiler = comp
	}
	if c.marshal == nil {
		c.marshal = marshal.Default
	}
	return c, nil
}

// Open opens the engine described by cfg. The client owns the engine and
// closes it on Close.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	compOpts, err := cfg.CompilerOptions()
	if err != nil {
		return nil, err
	}
	comp, err := compiler.New(compOpts...)
	if err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == ":memory:" && cfg.Driver == config.DriverDuckDB {
		path = ""
	}
	db, err := sqlengine.Open(cfg.Driver, sqlengine.DSN(path, cfg.EngineOptions()))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	base := []Option{WithCompiler(comp), WithMarshaller(cfg.Marshaller()), WithStatementCache(cfg.StatementCache)}
	c, err := New(db, append(base, opts...)...)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.closer = db
	c.cfg = cfg
	return c, nil
}

// Config returns the configuration the client was opened with, or nil.
func (c *Client) Config() *config.Config { return c.cfg }

// Compiler returns the client's compiler.
func (c *Client) Compiler() *compiler.Compiler { return c.compiler }

// Compile compiles stmt without running it.
func (c *Client) Compile(stmt ast.Statement) (*compiler.Query, error) {
	return c.compiler.Compile(stmt)
}

// Use appends middleware around Run.
func (c *Client) Use(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, mw)
}

// Acquire opens a session. The caller must close it.
func (c *Client) Acquire(ctx context.Context) (*session.Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, session.ErrClosed
	}
	return session.Open(ctx, c.db,
		session.WithCompiler(c.compiler),
		session.WithMarshaller(c.marshal),
		session.WithMonitor(c.monitor),
		session.WithStatementCache(c.stmts),
	)
}

// WithConn runs fn on a fresh session and always closes it, also when fn
// panics.
func (c *Client) WithConn(ctx context.Context, fn func(conn *session.Conn) error) (err error) {
	conn, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(conn)
}

// Close closes the engine if the client opened it and stops the monitor.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var err error
	if c.closer != nil {
		err = c.closer.Close()
	}
	if merr := c.monitor.Close(); err == nil {
		err = merr
	}
	return err
}
