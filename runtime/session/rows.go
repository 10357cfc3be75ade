package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/types"
)

// Column describes one result column. Type is nil when the engine type name
// could not be parsed.
type Column struct {
	Name         string
	DatabaseType string
	Type         types.DataType
}

// RowStream is a lazy, forward-only cursor over a result set. It holds its
// connection until closed; reaching the end, an error or cancellation
// closes it. Ending the transaction or closing the connection also closes
// it.
type RowStream struct {
	mu       sync.Mutex
	conn     *Conn
	rows     engine.Rows
	stmt     engine.Stmt
	release  func()
	cols     []Column
	sql      string
	start    time.Time
	dest     []any
	row      []types.Value
	count    int64
	affected int64
	err      error
	closed   bool
}

// Columns returns the result columns.
func (s *RowStream) Columns() []Column { return s.cols }

// RowsAffected reports the rows written by a statement without RETURNING.
func (s *RowStream) RowsAffected() int64 { return s.affected }

// Next advances to the next row. It returns false at the end of the
// result, on error or when ctx is done; check Err afterwards.
func (s *RowStream) Next(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		s.close()
		return false
	}
	if s.dest == nil {
		s.dest = make([]any, len(s.cols))
	} else {
		clear(s.dest)
	}
	if err := s.rows.Next(s.dest); err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = s.conn.fail(err, s.sql)
		}
		s.close()
		return false
	}

	row := make([]types.Value, len(s.cols))
	for i, cell := range s.dest {
		v, err := s.conn.marshal.Decode(cell, s.cols[i].Type)
		if err != nil {
			s.err = fmt.Errorf("column %s: %w", s.cols[i].Name, err)
			s.close()
			return false
		}
		row[i] = v
	}
	s.row = row
	s.count++
	return true
}

// Row returns the current row.
func (s *RowStream) Row() []types.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row
}

// Err returns the error that ended iteration, if any.
func (s *RowStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the cursor and releases the connection. It is safe to call
// more than once.
func (s *RowStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

// closeWith closes the stream from outside its reader, which then sees err.
func (s *RowStream) closeWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.err == nil {
		s.err = err
	}
	s.close()
}

// close is Close with s.mu held.
func (s *RowStream) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.mu.Lock()
	if s.conn.stream == s {
		s.conn.stream = nil
	}
	s.conn.mu.Unlock()

	var errs []error
	if s.rows != nil {
		if err := s.rows.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.stmt != nil {
		if err := s.stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.release != nil {
		s.release()
	}
	err := errors.Join(errs...)
	if err != nil {
		err = s.conn.fail(err, s.sql)
	}
	ev := Event{Kind: EventClose, SQL: s.sql, Rows: s.count, Err: s.err}
	if ev.Err == nil {
		ev.Err = err
	}
	s.conn.emit(ev, s.start)
	return err
}

// All iterates the remaining rows. Stopping early closes the stream; an
// iteration error is yielded once as the last pair.
func (s *RowStream) All(ctx context.Context) iter.Seq2[[]types.Value, error] {
	return func(yield func([]types.Value, error) bool) {
		defer s.Close()
		for s.Next(ctx) {
			if !yield(s.Row(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Collect reads every remaining row and closes the stream.
func (s *RowStream) Collect(ctx context.Context) ([][]types.Value, error) {
	var out [][]types.Value
	for row, err := range s.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}
