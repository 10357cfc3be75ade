package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/engine/enginetest"
	"github.com/satishbabariya/duckql/runtime/engine/sqlengine"
	"github.com/satishbabariya/duckql/runtime/types"
)

func scripted(t *testing.T) (*enginetest.Database, *Conn) {
	t.Helper()
	db := enginetest.New()
	db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	return db, open(t, db)
}

func TestTxLifecycle(t *testing.T) {
	db, c := scripted(t)
	ctx := context.Background()

	tx := NewTx(c)
	assert.Equal(t, TxIdle, tx.State())
	_, err := tx.Run(ctx, insertRow(1))
	assert.ErrorIs(t, err, ErrTransactionNotActive)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTransactionNotActive)

	require.NoError(t, tx.Begin(ctx))
	assert.Equal(t, TxActive, tx.State())
	assert.ErrorIs(t, tx.Begin(ctx), ErrTransactionAlreadyActive)

	_, err = c.Begin(ctx)
	assert.ErrorIs(t, err, ErrTransactionAlreadyActive)

	_, err = tx.Run(ctx, insertRow(1))
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, TxCommitted, tx.State())

	assert.Equal(t, []string{"BEGIN TRANSACTION", `INSERT INTO "t" ("id") VALUES ($1)`, "COMMIT"}, db.SQL())

	for name, op := range map[string]func() error{
		"begin":    func() error { return tx.Begin(ctx) },
		"commit":   func() error { return tx.Commit(ctx) },
		"rollback": func() error { return tx.Rollback(ctx) },
		"run":      func() error { _, err := tx.Run(ctx, insertRow(2)); return err },
	} {
		assert.ErrorIs(t, op(), ErrTransactionClosed, name)
	}

	// The connection accepts a new transaction once the old one ends.
	next, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, next.Rollback(ctx))
	assert.Equal(t, TxRolledBack, next.State())
}

func TestTxConnectionLoss(t *testing.T) {
	db, c := scripted(t)
	db.Fail("UPDATE", fmt.Errorf("%w: engine crashed", engine.ErrConnectionLost))
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Run(ctx, &ast.Update{Table: ast.T("t"), Set: []ast.Assignment{{Column: "a", Value: ast.Lit(types.Int(1))}}, All: true})

	var aborted *TxAbortedError
	require.ErrorAs(t, err, &aborted)
	var ce *ConnectionError
	assert.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, engine.ErrConnectionLost)
	assert.Equal(t, TxRolledBack, tx.State())
	assert.ErrorIs(t, tx.Commit(ctx), ErrTransactionClosed)
}

func TestTxAbortedByOtherStatement(t *testing.T) {
	db, c := scripted(t)
	db.Fail("SELECT", fmt.Errorf("%w: socket closed", engine.ErrConnectionLost))
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = c.Run(ctx, &ast.Raw{SQL: "SELECT 1"})
	require.ErrorIs(t, err, ErrConnection)

	_, err = tx.Run(ctx, insertRow(1))
	var aborted *TxAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, TxRolledBack, tx.State())
}

func TestTxFailedCommit(t *testing.T) {
	db, c := scripted(t)
	db.Fail("COMMIT", errors.New("TransactionContext Error: constraint violated"))
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Equal(t, []string{"BEGIN TRANSACTION", "COMMIT", "ROLLBACK"}, db.SQL())

	_, err = c.Begin(ctx)
	assert.NoError(t, err)
}

func TestWithTx(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		db, c := scripted(t)
		err := c.WithTx(context.Background(), func(tx *Tx) error {
			_, err := tx.Run(context.Background(), insertRow(1))
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, "COMMIT", db.SQL()[len(db.SQL())-1])
	})

	t.Run("error rolls back", func(t *testing.T) {
		db, c := scripted(t)
		boom := errors.New("boom")
		err := c.WithTx(context.Background(), func(tx *Tx) error {
			if _, err := tx.Run(context.Background(), insertRow(1)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "ROLLBACK", db.SQL()[len(db.SQL())-1])
	})

	t.Run("panic rolls back", func(t *testing.T) {
		db, c := scripted(t)
		assert.PanicsWithValue(t, "boom", func() {
			_ = c.WithTx(context.Background(), func(tx *Tx) error {
				panic("boom")
			})
		})
		assert.Equal(t, []string{"BEGIN TRANSACTION", "ROLLBACK"}, db.SQL())

		tx, err := c.Begin(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Rollback(context.Background()))
	})
}

func TestCloseRollsBackActiveTx(t *testing.T) {
	db, c := scripted(t)
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Equal(t, []string{"BEGIN TRANSACTION", "ROLLBACK"}, db.SQL())
	opened, closed := db.Conns()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

// sqliteConn opens a session over an in-memory sqlite database.
func sqliteConn(t *testing.T) *Conn {
	t.Helper()
	db, err := sqlengine.Open(sqlengine.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := Open(context.Background(), db, WithCompiler(compiler.MustNew(compiler.WithPlaceholder(compiler.Question))))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Run(context.Background(), &ast.CreateTable{
		Table: ast.T("items"),
		Columns: []ast.ColumnDef{
			{Name: "id", Type: types.BigIntType, PrimaryKey: true},
			{Name: "name", Type: types.Varchar, NotNull: true},
		},
	})
	require.NoError(t, err)
	return c
}

func insertItem(id int64, name string) ast.Statement {
	return &ast.Insert{
		Table:   ast.T("items"),
		Columns: []string{"id", "name"},
		Rows:    [][]ast.Expr{{ast.Lit(types.Int(id)), ast.Lit(types.Text(name))}},
	}
}

func names(t *testing.T, c *Conn) []string {
	t.Helper()
	ctx := context.Background()
	rows, err := c.Run(ctx, &ast.Select{
		Columns: []ast.SelectItem{{Expr: ast.Col("name")}},
		From:    ast.T("items"),
		OrderBy: []ast.OrderBy{{Expr: ast.Col("id")}},
	})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	out := make([]string, len(all))
	for i, row := range all {
		out[i] = row[0].AsText()
	}
	return out
}

func TestTxAtomicitySQLite(t *testing.T) {
	c := sqliteConn(t)
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Run(ctx, insertItem(2, "B"))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
	assert.Empty(t, names(t, c))

	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Run(ctx, insertItem(1, "A"))
		return err
	}))
	assert.Equal(t, []string{"A"}, names(t, c))

	err = c.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Run(ctx, insertItem(3, "C")); err != nil {
			return err
		}
		_, err := tx.Run(ctx, insertItem(1, "duplicate"))
		return err
	})
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, []string{"A"}, names(t, c))
}

func TestPreparedStatementSQLite(t *testing.T) {
	c := sqliteConn(t)
	ctx := context.Background()

	ins, err := c.Prepare(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`)
	require.NoError(t, err)
	defer ins.Close()
	for i, name := range []string{"x", "y", "z"} {
		res, err := c.ExecStmt(ctx, ins, []compiler.Param{
			{Value: types.Int(int64(i)), Type: types.BigIntType},
			{Value: types.Text(name), Type: types.Varchar},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.RowsAffected)
	}

	sel, err := c.Prepare(ctx, `SELECT id, name FROM items WHERE id >= ? ORDER BY id`)
	require.NoError(t, err)
	defer sel.Close()
	rows, err := c.Execute(ctx, sel, []compiler.Param{{Value: types.Int(1)}})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0][0].Equal(types.Int(1)))
	assert.Equal(t, "z", all[1][1].AsText())
}

// within fails the test when fn does not return in time.
func within(t *testing.T, d time.Duration, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		t.Fatalf("still blocked after %s", d)
		return nil
	}
}

func TestTxEndClosesOpenStream(t *testing.T) {
	cols := []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}
	ctx := context.Background()

	for _, end := range []string{"COMMIT", "ROLLBACK"} {
		t.Run(end, func(t *testing.T) {
			db := enginetest.New()
			db.Rows("SELECT", cols, []any{int64(1)}, []any{int64(2)})
			c := open(t, db)

			var rows *RowStream
			err := within(t, 2*time.Second, func() error {
				return c.WithTx(ctx, func(tx *Tx) error {
					var err error
					rows, err = tx.Run(ctx, &ast.Select{From: ast.T("t")})
					if err != nil {
						return err
					}
					if !rows.Next(ctx) {
						return errors.New("no rows")
					}
					if end == "ROLLBACK" {
						return errors.New("stop")
					}
					return nil
				})
			})
			if end == "ROLLBACK" {
				assert.EqualError(t, err, "stop")
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, end, db.SQL()[len(db.SQL())-1])
			assert.Zero(t, db.OpenCursors())
			assert.False(t, rows.Next(ctx))
			assert.ErrorIs(t, rows.Err(), ErrTransactionClosed)
			assert.NoError(t, rows.Close())

			next, err := c.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, next.Rollback(ctx))
		})
	}
}

func TestCloseWithOpenStream(t *testing.T) {
	cols := []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}
	db := enginetest.New()
	db.Rows("SELECT", cols, []any{int64(1)})
	c, err := Open(context.Background(), db)
	require.NoError(t, err)
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	require.NoError(t, err)
	rows, err := tx.Run(ctx, &ast.Select{From: ast.T("t")})
	require.NoError(t, err)

	require.NoError(t, within(t, 2*time.Second, c.Close))
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Equal(t, "ROLLBACK", db.SQL()[len(db.SQL())-1])
	assert.Zero(t, db.OpenCursors())
	assert.False(t, rows.Next(ctx))
	assert.ErrorIs(t, rows.Err(), ErrClosed)
	assert.ErrorIs(t, tx.Commit(ctx), ErrTransactionClosed)
}
