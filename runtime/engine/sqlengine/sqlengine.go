// Package sqlengine adapts database/sql drivers to the engine interfaces.
package sqlengine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/satishbabariya/duckql/runtime/engine"
)

// Driver names registered with database/sql.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite3"
)

// ArgConverter rewrites an encoded argument into a form the driver binds.
type ArgConverter func(arg any) (any, error)

// Database wraps a *sql.DB. The pool is shared; each Connect reserves one
// physical connection.
type Database struct {
	db      *sql.DB
	driver  string
	convert ArgConverter
}

// Open opens a database with the named driver. The DuckDB driver gets its
// native argument conversion.
func Open(driverName, dsn string) (*Database, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d := Wrap(db, driverName)
	if driverName == DriverSQLite {
		// Writers serialise on sqlite; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return d, nil
}

// Wrap adapts an existing pool.
func Wrap(db *sql.DB, driverName string) *Database {
	d := &Database{db: db, driver: driverName}
	switch driverName {
	case DriverDuckDB:
		d.convert = duckdbArg
	case DriverSQLite:
		d.convert = sqliteArg
	default:
		d.convert = func(arg any) (any, error) { return arg, nil }
	}
	return d
}

// DB returns the underlying pool.
func (d *Database) DB() *sql.DB { return d.db }

// Driver returns the driver name.
func (d *Database) Driver() string { return d.driver }

// Ping checks that the engine is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return Classify(d.db.PingContext(ctx))
}

// Close closes the pool.
func (d *Database) Close() error { return d.db.Close() }

// Connect reserves one connection from the pool.
func (d *Database) Connect(ctx context.Context) (engine.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return &conn{c: c, convert: d.convert, duckdb: d.driver == DriverDuckDB}, nil
}

// DSN builds a data source name from a path and options. Options are
// encoded as a sorted query string.
func DSN(path string, opts map[string]string) string {
	if len(opts) == 0 {
		return path
	}
	q := url.Values{}
	for k, v := range opts {
		q.Set(k, v)
	}
	return path + "?" + q.Encode()
}

type conn struct {
	c       *sql.Conn
	convert ArgConverter
	duckdb  bool
}

func (c *conn) Prepare(ctx context.Context, query string) (engine.Stmt, error) {
	s, err := c.c.PrepareContext(ctx, query)
	if err != nil {
		return nil, Classify(err)
	}
	return &stmt{s: s, conn: c.c, query: query, convert: c.convert, duckdb: c.duckdb}, nil
}

func (c *conn) Close() error { return c.c.Close() }

type stmt struct {
	s       *sql.Stmt
	conn    *sql.Conn
	query   string
	convert ArgConverter
	duckdb  bool
}

// NumInput is not exposed by database/sql.
func (s *stmt) NumInput() int { return -1 }

func (s *stmt) args(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := s.convert(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *stmt) Query(ctx context.Context, args []any) (engine.Rows, error) {
	vals, err := s.args(args)
	if err != nil {
		return nil, err
	}
	r, err := s.s.QueryContext(ctx, vals...)
	if err != nil {
		return nil, Classify(err)
	}
	types, err := r.ColumnTypes()
	if err != nil {
		r.Close()
		return nil, Classify(err)
	}
	cols := make([]engine.Column, len(types))
	unscannable := false
	for i, t := range types {
		cols[i] = engine.Column{Name: t.Name(), DatabaseType: t.DatabaseTypeName()}
		unscannable = unscannable || columnShape(cols[i]) != shapePlain
	}
	if unscannable && s.duckdb && isRead(s.query) {
		return s.reshape(ctx, r, cols, vals)
	}
	return &rows{r: r, cols: cols}, nil
}

func (s *stmt) Exec(ctx context.Context, args []any) (engine.Result, error) {
	vals, err := s.args(args)
	if err != nil {
		return engine.Result{}, err
	}
	res, err := s.s.ExecContext(ctx, vals...)
	if err != nil {
		return engine.Result{}, Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}
	return engine.Result{RowsAffected: n}, nil
}

func (s *stmt) Close() error { return s.s.Close() }

type rows struct {
	r      *sql.Rows
	cols   []engine.Column
	shapes []shape
	ptrs   []any
}

func (r *rows) Columns() []engine.Column { return r.cols }

func (r *rows) Next(dest []any) error {
	if !r.r.Next() {
		if err := r.r.Err(); err != nil {
			return Classify(err)
		}
		return io.EOF
	}
	if len(r.ptrs) != len(dest) {
		r.ptrs = make([]any, len(dest))
	}
	for i := range dest {
		r.ptrs[i] = &dest[i]
	}
	if err := r.r.Scan(r.ptrs...); err != nil {
		return Classify(err)
	}
	for i, v := range dest {
		// database/sql reuses byte buffers between rows.
		if b, ok := v.([]byte); ok {
			dest[i] = append([]byte(nil), b...)
		}
	}
	for i, sh := range r.shapes {
		v, err := unshape(dest[i], sh)
		if err != nil {
			return fmt.Errorf("column %s: %w", r.cols[i].Name, err)
		}
		dest[i] = v
	}
	return nil
}

func (r *rows) Close() error { return r.r.Close() }

// Classify wraps driver errors with engine.ErrConnectionLost or
// engine.ErrBusy when they match a known failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrConnectionLost) || errors.Is(err, engine.ErrBusy) {
		return err
	}
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", engine.ErrConnectionLost, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", engine.ErrBusy, err)
		case sqlite3.ErrIoErr, sqlite3.ErrCorrupt, sqlite3.ErrNotADB, sqlite3.ErrCantOpen:
			return fmt.Errorf("%w: %w", engine.ErrConnectionLost, err)
		}
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Connection Error"),
		strings.Contains(msg, "FATAL Error"),
		strings.Contains(msg, "database has been invalidated"):
		return fmt.Errorf("%w: %w", engine.ErrConnectionLost, err)
	case strings.Contains(msg, "Conflict"):
		return fmt.Errorf("%w: %w", engine.ErrBusy, err)
	}
	return err
}

var _ engine.Database = (*Database)(nil)
