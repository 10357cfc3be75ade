package client

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/engine/enginetest"
	"github.com/satishbabariya/duckql/runtime/session"
	"github.com/satishbabariya/duckql/runtime/types"
)

func newClient(t *testing.T, db *enginetest.Database, opts ...Option) *Client {
	t.Helper()
	c, err := New(db, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func selectUsers() ast.Statement {
	return &ast.Select{From: ast.T("users"), Where: ast.Eq(ast.Col("id"), ast.Lit(types.Int(1)))}
}

func TestMiddlewareOrder(t *testing.T) {
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "id", DatabaseType: "BIGINT"}}, []any{int64(1)})

	var order []string
	trace := func(name string) Middleware {
		return func(ctx context.Context, event *QueryEvent, next func() error) error {
			order = append(order, name+":before")
			err := next()
			order = append(order, name+":after")
			return err
		}
	}
	c := newClient(t, db, WithMiddleware(trace("first")))
	c.Use(trace("second"))

	var timed string
	c.Use(TimingMiddleware(func(sql string, d time.Duration) { timed = sql }))

	res, err := c.Collect(context.Background(), selectUsers())
	require.NoError(t, err)
	assert.Equal(t, []string{"first:before", "second:before", "second:after", "first:after"}, order)
	assert.Equal(t, `SELECT * FROM "users" WHERE "id" = $1`, timed)
	require.Len(t, res.Rows, 1)
	assert.True(t, res.Rows[0][0].Equal(types.Int(1)))
}

func TestMiddlewareSeesErrors(t *testing.T) {
	db := enginetest.New()
	db.Fail("SELECT", errors.New("Binder Error: no such table"))

	var seen error
	c := newClient(t, db, WithMiddleware(ErrorMiddleware(func(sql string, err error) { seen = err })))

	_, err := c.Collect(context.Background(), selectUsers())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrQuery)
	assert.ErrorIs(t, seen, session.ErrQuery)
}

func TestCompileErrorSkipsMiddleware(t *testing.T) {
	db := enginetest.New()
	called := false
	c := newClient(t, db, WithMiddleware(func(ctx context.Context, event *QueryEvent, next func() error) error {
		called = true
		return next()
	}))

	_, err := c.Collect(context.Background(), &ast.Select{From: &ast.Table{}})
	require.Error(t, err)
	assert.False(t, called)
	assert.Empty(t, db.Calls())
}

func TestWithConnClosesOnPanic(t *testing.T) {
	db := enginetest.New()
	c := newClient(t, db)

	assert.Panics(t, func() {
		_ = c.WithConn(context.Background(), func(conn *session.Conn) error {
			panic("boom")
		})
	})
	opened, closed := db.Conns()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestAcquireAfterClose(t *testing.T) {
	c := newClient(t, enginetest.New())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Acquire(context.Background())
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestTransaction(t *testing.T) {
	insert := &ast.Insert{Table: ast.T("t"), Columns: []string{"id"}, Rows: [][]ast.Expr{{ast.Lit(types.Int(1))}}}

	t.Run("commit", func(t *testing.T) {
		db := enginetest.New()
		db.Handle("INSERT", func(context.Context, string, []any) (*enginetest.Result, error) {
			return &enginetest.Result{RowsAffected: 1}, nil
		})
		c := newClient(t, db)

		err := c.Transaction(context.Background(), func(tx *session.Tx) error {
			_, err := tx.Run(context.Background(), insert)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"BEGIN TRANSACTION", `INSERT INTO "t" ("id") VALUES ($1)`, "COMMIT"}, db.SQL())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db := enginetest.New()
		c := newClient(t, db)
		boom := errors.New("boom")

		err := c.Transaction(context.Background(), func(tx *session.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"BEGIN TRANSACTION", "ROLLBACK"}, db.SQL())
		opened, closed := db.Conns()
		assert.Equal(t, opened, closed)
	})
}

func TestApplyTableMappings(t *testing.T) {
	db := enginetest.New()
	db.Handle("CREATE", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{}, nil
	})
	db.Handle("DROP", func(context.Context, string, []any) (*enginetest.Result, error) {
		return &enginetest.Result{}, nil
	})
	cfg := &config.Config{TableMappings: map[string]config.TableMapping{
		"users":  {Source: "data/users.json"},
		"events": {Source: "logs/events.csv", Options: map[string]any{"header": true, "delim": ";"}},
	}}
	c := newClient(t, db)
	c.cfg = cfg

	err := c.WithConn(context.Background(), func(conn *session.Conn) error {
		plans, err := c.ApplyTableMappings(context.Background(), conn, nil)
		if err != nil {
			return err
		}
		require.Len(t, plans, 2)
		assert.Equal(t, "events", plans[0].Name)
		assert.Equal(t, "read_csv_auto", plans[0].Reader)
		assert.Equal(t, "read_json_auto", plans[1].Reader)
		return c.DropViews(context.Background(), conn, "users")
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		`CREATE OR REPLACE VIEW "events" AS SELECT * FROM read_csv_auto('logs/events.csv', delim := ';', header := true)`,
		`CREATE OR REPLACE VIEW "users" AS SELECT * FROM read_json_auto('data/users.json')`,
		`DROP VIEW IF EXISTS "users"`,
	}, db.SQL())
}

func TestPlanViewsFallbackReader(t *testing.T) {
	c := newClient(t, enginetest.New())
	plans, err := c.PlanViews(map[string]config.TableMapping{"x": {Source: "x.unknown"}})
	require.NoError(t, err)
	assert.Equal(t, "read_csv_auto", plans[0].Reader)
}

type user struct {
	ID      int64
	Name    string `db:"full_name"`
	Score   *float64
	Tags    []string
	Big     *big.Int
	Token   uuid.UUID
	Ignored string `db:"-"`
}

func TestScan(t *testing.T) {
	id := uuid.New()
	db := enginetest.New()
	db.Rows("SELECT",
		[]engine.Column{
			{Name: "id", DatabaseType: "BIGINT"},
			{Name: "full_name", DatabaseType: "VARCHAR"},
			{Name: "score", DatabaseType: "DOUBLE"},
			{Name: "tags", DatabaseType: "VARCHAR[]"},
			{Name: "big", DatabaseType: "HUGEINT"},
			{Name: "token", DatabaseType: "UUID"},
			{Name: "extra", DatabaseType: "INTEGER"},
		},
		[]any{int64(1), "Ada", 9.5, []any{"a", "b"}, "170141183460469231731687303715884105727", id.String(), int32(7)},
		[]any{int64(2), "Bob", nil, []any{}, int64(3), id.String(), nil},
	)
	c := newClient(t, db)

	var got []user
	err := c.WithConn(context.Background(), func(conn *session.Conn) error {
		rows, err := c.Run(context.Background(), conn, selectUsers())
		if err != nil {
			return err
		}
		got, err = Scan[user](context.Background(), rows)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	huge, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "Ada", got[0].Name)
	require.NotNil(t, got[0].Score)
	assert.InDelta(t, 9.5, *got[0].Score, 1e-9)
	assert.Equal(t, []string{"a", "b"}, got[0].Tags)
	assert.Equal(t, 0, huge.Cmp(got[0].Big))
	assert.Equal(t, id, got[0].Token)

	assert.Nil(t, got[1].Score)
	assert.Empty(t, got[1].Tags)
	assert.Equal(t, int64(3), got[1].Big.Int64())
	assert.Equal(t, 0, db.OpenCursors())
}

func TestScanRejectsOverflow(t *testing.T) {
	type small struct{ N int8 }
	db := enginetest.New()
	db.Rows("SELECT", []engine.Column{{Name: "n", DatabaseType: "BIGINT"}}, []any{int64(300)})
	c := newClient(t, db)

	err := c.WithConn(context.Background(), func(conn *session.Conn) error {
		rows, err := c.Run(context.Background(), conn, selectUsers())
		if err != nil {
			return err
		}
		_, err = Scan[small](context.Background(), rows)
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows int8")
	assert.Equal(t, 0, db.OpenCursors())
}
