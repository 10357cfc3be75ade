package session

import (
	"time"

	"github.com/satishbabariya/duckql/runtime/engine"
)

// Stmt is a statement prepared on one Conn. It becomes invalid when closed
// or when its Conn closes.
type Stmt struct {
	conn   *Conn
	sql    string
	n      int
	native engine.Stmt
}

// SQL returns the statement text.
func (s *Stmt) SQL() string { return s.sql }

// NumParams returns the number of parameters the statement takes.
func (s *Stmt) NumParams() int { return s.n }

// Close releases the native statement. Closing twice is a no-op.
func (s *Stmt) Close() error {
	c := s.conn
	c.mu.Lock()
	_, ok := c.stmts[s]
	delete(c.stmts, s)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	start := time.Now()
	err := s.native.Close()
	c.emit(Event{Kind: EventClose, SQL: s.sql, Err: err}, start)
	return err
}
