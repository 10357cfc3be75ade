package client

import (
	"context"

	"github.com/satishbabariya/duckql/runtime/session"
)

// TransactionFunc is a function that runs within a transaction.
type TransactionFunc func(tx *session.Tx) error

// Transaction runs fn inside a transaction on a fresh session. If fn
// returns an error or panics the transaction is rolled back; otherwise it
// is committed. The session is always released.
func (c *Client) Transaction(ctx context.Context, fn TransactionFunc) error {
	return c.WithConn(ctx, func(conn *session.Conn) error {
		return conn.WithTx(ctx, fn)
	})
}
