package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/engine/enginetest"
	"github.com/satishbabariya/duckql/runtime/marshal"
	"github.com/satishbabariya/duckql/runtime/types"
)

func open(t *testing.T, db *enginetest.Database, opts ...Option) *Conn {
	t.Helper()
	c, err := Open(context.Background(), db, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func insertRow(id int64) ast.Statement {
	return &ast.Insert{
		Table:   ast.T("t"),
		Columns: []string{"id"},
		Rows:    [][]ast.Expr{{ast.Lit(types.Int(id))}},
	}
}

func TestSerializedExecution(t *testing.T) {
	db := enginetest.New()
	var inflight, peak atomic.Int64
	db.Handle("INSERT", func(ctx context.Context, query string, args []any) (*enginetest.Result, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	c := open(t, db)

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)
	for i := range 16 {
		g.Go(func() error {
			rows, err := c.Run(ctx, insertRow(int64(i)))
			if err != nil {
				return err
			}
			if rows.RowsAffected() != 1 {
				return fmt.Errorf("row %d: affected %d", i, rows.RowsAffected())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(1), peak.Load())
	assert.Len(t, db.Calls(), 16)
}

func TestWaitHonoursContext(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(1)})
	db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	c := open(t, db)

	rows, err := c.Run(context.Background(), &ast.Select{From: ast.T("t")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Run(ctx, insertRow(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, rows.Close())
	_, err = c.Run(context.Background(), insertRow(1))
	assert.NoError(t, err)
}

func TestWaitersRunInArrivalOrder(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(1)})
	var mu sync.Mutex
	var order []int64
	db.Handle("INSERT", func(_ context.Context, _ string, args []any) (*enginetest.Result, error) {
		mu.Lock()
		order = append(order, args[0].(int64))
		mu.Unlock()
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	c := open(t, db)

	hold, err := c.Run(context.Background(), &ast.Select{From: ast.T("t")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Run(context.Background(), insertRow(int64(i)))
		}()
		// Let each caller queue before the next arrives.
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, hold.Close())
	wg.Wait()
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, order)
}

func TestRowStream(t *testing.T) {
	cols := []engine.Column{{Name: "id", DatabaseType: "INTEGER"}, {Name: "name", DatabaseType: "VARCHAR"}}
	db := enginetest.New()
	db.Rows("SELECT", cols,
		[]any{int32(1), "a"},
		[]any{int32(2), "b"},
		[]any{int32(3), nil},
	)
	c := open(t, db)
	ctx := context.Background()

	t.Run("collect", func(t *testing.T) {
		rows, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
		require.NoError(t, err)
		require.Len(t, rows.Columns(), 2)
		assert.Equal(t, "INTEGER", rows.Columns()[0].Type.String())

		all, err := rows.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0][0].Equal(types.Int(1)))
		assert.Equal(t, "b", all[1][1].AsText())
		assert.True(t, all[2][1].IsNull())
		assert.False(t, rows.Next(ctx))
		assert.Equal(t, 0, db.OpenCursors())
	})

	t.Run("early exit closes the cursor", func(t *testing.T) {
		rows, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
		require.NoError(t, err)
		for row, err := range rows.All(ctx) {
			require.NoError(t, err)
			assert.True(t, row[0].Equal(types.Int(1)))
			break
		}
		assert.Equal(t, 0, db.OpenCursors())

		// The connection is free again.
		again, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
		require.NoError(t, err)
		require.NoError(t, again.Close())
		assert.Equal(t, 0, db.OpenCursors())
	})
}

func TestRowStreamCancellation(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(1)}, []any{int64(2)})
	c := open(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	rows, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
	require.NoError(t, err)
	require.True(t, rows.Next(ctx))
	cancel()
	assert.False(t, rows.Next(ctx))
	assert.ErrorIs(t, rows.Err(), context.Canceled)
	assert.Equal(t, 0, db.OpenCursors())

	_, err = c.Run(context.Background(), &ast.Select{From: ast.T("t")})
	assert.NoError(t, err)
}

func TestHugeIntRoundTrip(t *testing.T) {
	n, ok := new(big.Int).SetString("12345678901234567890", 10)
	require.True(t, ok)

	db := enginetest.New()
	var stored any
	db.Handle("INSERT", func(_ context.Context, _ string, args []any) (*enginetest.Result, error) {
		stored = args[0]
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	db.Handle("SELECT", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{
			Columns: []engine.Column{{Name: "v", DatabaseType: "HUGEINT"}},
			Rows:    [][]any{{stored}},
		}, nil
	})
	c := open(t, db)
	ctx := context.Background()

	res, err := c.Run(ctx, &ast.Insert{
		Table:   ast.T("big"),
		Columns: []string{"v"},
		Rows:    [][]ast.Expr{{ast.TypedLit(types.BigInt(n), types.HugeInt)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected())
	assert.Equal(t, `INSERT INTO "big" ("v") VALUES (CAST($1 AS HUGEINT))`, db.Calls()[0].SQL)

	arg, ok := stored.(*big.Int)
	require.True(t, ok, "expected *big.Int, got %T", stored)
	assert.Equal(t, 0, n.Cmp(arg))

	rows, err := c.Run(ctx, &ast.Select{From: ast.T("big")})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, types.TagBigInt, all[0][0].Tag())
	assert.Equal(t, "12345678901234567890", all[0][0].AsBigInt().String())
}

func TestColumnTypesDriveDecoding(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{
		{Name: "s", DatabaseType: `STRUCT(a INTEGER, b VARCHAR)`},
		{Name: "l", DatabaseType: "BIGINT[]"},
		{Name: "x", DatabaseType: "SOMETHING ELSE"},
	}, []any{
		map[string]any{"b": "x", "a": int32(1)},
		[]any{int64(1), nil},
		"free",
	})
	c := open(t, db)
	ctx := context.Background()

	rows, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
	require.NoError(t, err)
	assert.Nil(t, rows.Columns()[2].Type)

	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	want := types.StructOf(
		types.FieldValue{Name: "a", Value: types.Int(1)},
		types.FieldValue{Name: "b", Value: types.Text("x")},
	)
	assert.True(t, want.Equal(all[0][0]), "got %s", all[0][0])
	assert.True(t, types.List(types.Int(1), types.Null()).Equal(all[0][1]))
	assert.Equal(t, "free", all[0][2].AsText())
}

func TestDecodeFailureEndsStream(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "n", DatabaseType: "TINYINT"}}, []any{int64(1000)})
	c := open(t, db)
	ctx := context.Background()

	rows, err := c.Run(ctx, &ast.Select{From: ast.T("t")})
	require.NoError(t, err)
	assert.False(t, rows.Next(ctx))
	assert.ErrorIs(t, rows.Err(), marshal.ErrMarshal)
	assert.Equal(t, 0, db.OpenCursors())
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()

	t.Run("busy", func(t *testing.T) {
		db := enginetest.New()
		db.Fail("UPDATE", fmt.Errorf("%w: write conflict", engine.ErrBusy))
		db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
			return &enginetest.Result{}, nil
		})
		c := open(t, db)
		_, err := c.Run(ctx, &ast.Update{Table: ast.T("t"), Set: []ast.Assignment{{Column: "a", Value: ast.Lit(types.Int(1))}}, All: true})
		var be *BusyError
		require.ErrorAs(t, err, &be)
		assert.ErrorIs(t, err, ErrBusy)
		assert.ErrorIs(t, err, engine.ErrBusy)
		assert.NoError(t, c.Err())

		_, err = c.Run(ctx, insertRow(1))
		assert.NoError(t, err)
	})

	t.Run("query", func(t *testing.T) {
		db := enginetest.New()
		db.Fail("SELECT", errors.New("Binder Error: column not found"))
		c := open(t, db)
		_, err := c.Run(ctx, &ast.Raw{SQL: "SELECT nope FROM t"})
		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "SELECT nope FROM t", qe.SQL)
		assert.NoError(t, c.Err())
	})

	t.Run("connection lost", func(t *testing.T) {
		db := enginetest.New()
		db.Fail("SELECT", fmt.Errorf("%w: socket closed", engine.ErrConnectionLost))
		c := open(t, db)
		long := "SELECT " + strings.Repeat("x", 200)
		_, err := c.Run(ctx, &ast.Raw{SQL: long})
		var ce *ConnectionError
		require.ErrorAs(t, err, &ce)
		assert.Len(t, ce.SQL, maxSQLInError+3)
		assert.ErrorIs(t, c.Err(), ErrConnection)

		calls := len(db.Calls())
		_, err = c.Run(ctx, &ast.Raw{SQL: "SELECT 1"})
		assert.ErrorIs(t, err, ErrConnection)
		assert.Len(t, db.Calls(), calls)
	})

	t.Run("connect", func(t *testing.T) {
		db := enginetest.New()
		db.ConnectErr = errors.New("cannot open file")
		_, err := Open(ctx, db)
		assert.ErrorIs(t, err, ErrConnection)
	})
}

func TestPreparedStatements(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(7)})
	db.Handle("DELETE", func(_ context.Context, _ string, args []any) (*enginetest.Result, error) {
		return &enginetest.Result{RowsAffected: 2}, nil
	})
	c := open(t, db)
	ctx := context.Background()

	s, err := c.Prepare(ctx, "SELECT id FROM t WHERE id = $1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumParams())

	_, err = c.Execute(ctx, s, nil)
	assert.ErrorIs(t, err, ErrQuery)

	rows, err := c.Execute(ctx, s, []compiler.Param{{Value: types.Int(7), Type: types.BigIntType}})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	assert.True(t, all[0][0].Equal(types.Int(7)))
	assert.Equal(t, []any{int64(7)}, db.Calls()[0].Args)

	del, err := c.Prepare(ctx, "DELETE FROM t WHERE a = ? OR b = ?")
	require.NoError(t, err)
	res, err := c.ExecStmt(ctx, del, []compiler.Param{{Value: types.Int(1)}, {Value: types.Text("x")}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)

	_, err = c.Execute(ctx, s, []compiler.Param{{Value: types.Text("seven"), Type: types.BigIntType}})
	assert.ErrorIs(t, err, marshal.ErrMarshal)

	require.NoError(t, s.Close())
	_, err = c.Execute(ctx, s, []compiler.Param{{Value: types.Int(7)}})
	assert.ErrorIs(t, err, ErrStmtClosed)

	other := open(t, db)
	_, err = other.Execute(ctx, del, []compiler.Param{{Value: types.Int(1)}, {Value: types.Int(2)}})
	assert.ErrorIs(t, err, ErrStmtClosed)

	require.NoError(t, c.Close())
	_, err = c.ExecStmt(ctx, del, []compiler.Param{{Value: types.Int(1)}, {Value: types.Int(2)}})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Prepare(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMonitorEvents(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	mon := NewMonitor(nil, ObserverFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))

	db := enginetest.New()
	db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{RowsAffected: 1}, nil
	})
	c := open(t, db, WithMonitor(mon))
	ctx := context.Background()

	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Run(ctx, insertRow(5))
		return err
	}))
	require.NoError(t, c.Close())
	require.NoError(t, mon.Close())

	kinds := make([]EventKind, 0, len(events))
	for _, e := range events {
		assert.Equal(t, c.ID(), e.Conn)
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventConnect, EventBegin, EventPrepare, EventExecute, EventCommit, EventClose}, kinds)

	exec := events[3]
	assert.Equal(t, `INSERT INTO "t" ("id") VALUES ($1)`, exec.SQL)
	require.Len(t, exec.Params, 1)
	assert.True(t, exec.Params[0].Equal(types.Int(5)))
	assert.Equal(t, int64(1), exec.Rows)

	// Closed monitors drop events.
	mon.Emit(Event{Kind: EventExecute})
	assert.Len(t, events, 6)
}

func TestStatementCache(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(1)})
	db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{RowsAffected: 1}, nil
	})

	var mu sync.Mutex
	var prepared []string
	mon := NewMonitor(nil, ObserverFunc(func(e Event) {
		if e.Kind == EventPrepare {
			mu.Lock()
			prepared = append(prepared, e.SQL)
			mu.Unlock()
		}
	}))
	c := open(t, db, WithMonitor(mon), WithStatementCache(1))
	ctx := context.Background()

	sel := &ast.Select{From: ast.T("t"), Where: ast.Eq(ast.Col("id"), ast.Lit(types.Int(1)))}
	for range 2 {
		rows, err := c.Run(ctx, sel)
		require.NoError(t, err)
		_, err = rows.Collect(ctx)
		require.NoError(t, err)
	}
	_, err := c.Run(ctx, insertRow(1))
	require.NoError(t, err)
	rows, err := c.Run(ctx, sel)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	mu.Lock()
	assert.Len(t, prepared, 3)
	mu.Unlock()
	stats := c.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(2), stats.Evictions)
	assert.Len(t, db.Calls(), 4)
	assert.Zero(t, db.OpenCursors())
}
