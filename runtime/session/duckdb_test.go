package session

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/engine/sqlengine"
	"github.com/satishbabariya/duckql/runtime/types"
)

// duckdbConn opens a session over an in-memory DuckDB database.
func duckdbConn(t *testing.T) *Conn {
	t.Helper()
	db, err := sqlengine.Open(sqlengine.DriverDuckDB, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := Open(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func mustBigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return n
}

// storeAndLoad writes v into a fresh single-column table of type typ and
// reads it back.
func storeAndLoad(t *testing.T, c *Conn, table string, v types.Value, typ types.DataType) types.Value {
	t.Helper()
	ctx := context.Background()
	_, err := c.Run(ctx, &ast.CreateTable{
		Table:   ast.T(table),
		Columns: []ast.ColumnDef{{Name: "v", Type: typ}},
	})
	require.NoError(t, err)
	_, err = c.Run(ctx, &ast.Insert{
		Table:   ast.T(table),
		Columns: []string{"v"},
		Rows:    [][]ast.Expr{{ast.TypedLit(v, typ)}},
	})
	require.NoError(t, err)

	rows, err := c.Run(ctx, &ast.Select{From: ast.T(table)})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, all[0], 1)
	return all[0][0]
}

func TestDuckDBRoundTrip(t *testing.T) {
	c := duckdbConn(t)
	plus2, minus5 := 2*time.Hour, -5*time.Hour
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	pair := types.StructType(types.F("a", types.Integer), types.F("b", types.Varchar))
	choice := types.Union{Members: []types.Field{types.F("num", types.Integer), types.F("str", types.Varchar)}}

	tests := []struct {
		name string
		v    types.Value
		t    types.DataType
	}{
		{"boolean", types.Bool(true), types.Boolean},
		{"tinyint", types.Int(-128), types.Scalar{Name: "TINYINT"}},
		{"bigint", types.Int(-9007199254740993), types.BigIntType},
		{"ubigint max", types.BigInt(mustBigInt(t, "18446744073709551615")), types.Scalar{Name: "UBIGINT"}},
		{"hugeint", types.BigInt(mustBigInt(t, "12345678901234567890")), types.HugeInt},
		{"hugeint negative", types.BigInt(mustBigInt(t, "-170141183460469231731687303715884105728")), types.HugeInt},
		{"double", types.Float(3.25), types.Double},
		{"decimal", types.Text("12.50"), types.Scalar{Name: "DECIMAL", Params: []int{10, 2}}},
		{"varchar", types.Text("it's \"fine\"; --"), types.Varchar},
		{"blob", types.Bytes([]byte{0x00, 0xff, 'a'}), types.Blob},
		{"date", types.DateOf(2024, time.February, 29), types.Date},
		{"time", types.TimeOf(12*time.Hour+30*time.Minute+time.Microsecond, nil), types.Time},
		{"timetz", types.TimeOf(3*time.Hour, &plus2), types.TimeTZ},
		{"timetz negative", types.TimeOf(22*time.Hour, &minus5), types.TimeTZ},
		{"timestamp", types.TimestampOf(time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC), false), types.Timestamp},
		{"timestamptz", types.TimestampOf(time.Date(2024, 3, 1, 12, 30, 45, 500000000, time.FixedZone("", 7200)), true), types.TimestampTZ},
		{"interval", types.IntervalOf(14, -3, 1_500_000), types.IntervalType},
		{"uuid", types.UUID(id), types.UUIDType},
		{"null", types.Null(), types.Integer},
		{"list with null", types.List(types.Int(1), types.Null(), types.Int(3)), types.ListType(types.Integer)},
		{"struct with null field", types.StructOf(
			types.FieldValue{Name: "a", Value: types.Int(1)},
			types.FieldValue{Name: "b", Value: types.Null()},
		), pair},
		{"map keeps pair order", types.MapOf(
			types.Entry{Key: types.Text("b"), Value: types.Int(1)},
			types.Entry{Key: types.Text("a"), Value: types.Int(2)},
		), types.Map{Key: types.Varchar, Value: types.Integer}},
		{"union text member", types.UnionOf(1, types.Text("hi")), choice},
		{"union int member", types.UnionOf(0, types.Int(7)), choice},
		{"list of structs", types.List(
			types.StructOf(types.FieldValue{Name: "a", Value: types.Int(1)}, types.FieldValue{Name: "b", Value: types.Text("x")}),
			types.StructOf(types.FieldValue{Name: "a", Value: types.Int(2)}, types.FieldValue{Name: "b", Value: types.Null()}),
		), types.ListType(pair)},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storeAndLoad(t, c, fmt.Sprintf("rt_%d", i), tt.v, tt.t)
			assert.True(t, got.Equal(tt.v), "got %s, want %s", got, tt.v)
		})
	}
}

func TestDuckDBNullUnionAndEmptyResult(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	choice := types.Union{Members: []types.Field{types.F("num", types.Integer), types.F("str", types.Varchar)}}

	_, err := c.Run(ctx, &ast.CreateTable{
		Table:   ast.T("u"),
		Columns: []ast.ColumnDef{{Name: "id", Type: types.Integer}, {Name: "v", Type: choice}},
	})
	require.NoError(t, err)

	rows, err := c.Run(ctx, &ast.Select{From: ast.T("u")})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = c.Run(ctx, &ast.Insert{
		Table:   ast.T("u"),
		Columns: []string{"id", "v"},
		Rows: [][]ast.Expr{
			{ast.Lit(types.Int(1)), ast.TypedLit(types.Null(), choice)},
			{ast.Lit(types.Int(2)), ast.TypedLit(types.UnionOf(0, types.Int(5)), choice)},
		},
	})
	require.NoError(t, err)

	rows, err = c.Run(ctx, &ast.Select{From: ast.T("u"), OrderBy: []ast.OrderBy{{Expr: ast.Col("id")}}})
	require.NoError(t, err)
	require.NotNil(t, rows.Columns()[1].Type)
	assert.Equal(t, `UNION("num" INTEGER, "str" VARCHAR)`, rows.Columns()[1].Type.String())
	all, err = rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0][1].IsNull())
	assert.True(t, all[1][1].Equal(types.UnionOf(0, types.Int(5))))
}

func TestDuckDBDeclaredJSONColumn(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	doc := types.StructOf(
		types.FieldValue{Name: "z", Value: types.Int(1)},
		types.FieldValue{Name: "a", Value: types.List(types.Text("q"))},
	)

	_, err := c.Run(ctx, &ast.CreateTable{
		Table:   ast.T("docs"),
		Columns: []ast.ColumnDef{{Name: "doc", Type: types.JSON}},
	})
	require.NoError(t, err)
	_, err = c.Run(ctx, &ast.Insert{
		Table:   ast.T("docs"),
		Columns: []string{"doc"},
		Rows:    [][]ast.Expr{{ast.TypedLit(doc, types.JSON)}},
	})
	require.NoError(t, err)

	t.Run("cast alias", func(t *testing.T) {
		rows, err := c.Run(ctx, &ast.Select{
			Columns: []ast.SelectItem{{Expr: &ast.Cast{Expr: ast.Col("doc"), To: types.JSON}, Alias: "doc"}},
			From:    ast.T("docs"),
		})
		require.NoError(t, err)
		all, err := rows.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0][0].Equal(doc), "got %s", all[0][0])
	})

	t.Run("raw columns", func(t *testing.T) {
		rows, err := c.Run(ctx, &ast.Raw{SQL: `SELECT doc FROM docs`, Columns: map[string]types.DataType{"doc": types.JSON}})
		require.NoError(t, err)
		all, err := rows.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0][0].Equal(doc), "got %s", all[0][0])
	})

	t.Run("undeclared reads text", func(t *testing.T) {
		rows, err := c.Run(ctx, &ast.Raw{SQL: `SELECT doc FROM docs`})
		require.NoError(t, err)
		all, err := rows.Collect(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, types.TagText, all[0][0].Tag())
	})
}

func TestDuckDBCompositeLiteral(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	row := types.StructType(types.F("a", types.Integer), types.F("b", types.Varchar))
	v := types.List(
		types.StructOf(types.FieldValue{Name: "a", Value: types.Int(1)}, types.FieldValue{Name: "b", Value: types.Text("it's")}),
		types.StructOf(types.FieldValue{Name: "a", Value: types.Null()}, types.FieldValue{Name: "b", Value: types.Text("x")}),
	)

	rows, err := c.Run(ctx, &ast.Select{
		Columns: []ast.SelectItem{{Expr: ast.TypedLit(v, types.ListType(row)), Alias: "v"}},
	})
	require.NoError(t, err)
	require.NotNil(t, rows.Columns()[0].Type)
	assert.Equal(t, types.ListType(row).String(), rows.Columns()[0].Type.String())
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0][0].Equal(v), "got %s", all[0][0])
}

func TestDuckDBHugeIntInsertSelect(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	n := mustBigInt(t, "12345678901234567890")

	_, err := c.Run(ctx, &ast.CreateTable{
		Table:   ast.T("big"),
		Columns: []ast.ColumnDef{{Name: "v", Type: types.HugeInt}},
	})
	require.NoError(t, err)
	_, err = c.Run(ctx, &ast.Insert{
		Table:   ast.T("big"),
		Columns: []string{"v"},
		Rows:    [][]ast.Expr{{ast.TypedLit(types.BigInt(n), types.HugeInt)}},
	})
	require.NoError(t, err)

	rows, err := c.Run(ctx, &ast.Select{
		From:  ast.T("big"),
		Where: ast.Eq(ast.Col("v"), ast.TypedLit(types.BigInt(n), types.HugeInt)),
	})
	require.NoError(t, err)
	all, err := rows.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "12345678901234567890", all[0][0].AsBigInt().String())
}

func TestDuckDBTxAtomicity(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	_, err := c.Run(ctx, &ast.CreateTable{
		Table: ast.T("items"),
		Columns: []ast.ColumnDef{
			{Name: "id", Type: types.BigIntType, PrimaryKey: true},
			{Name: "name", Type: types.Varchar, NotNull: true},
		},
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Run(ctx, insertItem(2, "B")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, names(t, c))

	require.NoError(t, c.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Run(ctx, insertItem(1, "A"))
		return err
	}))
	assert.Equal(t, []string{"A"}, names(t, c))
}

func TestDuckDBOpenReturningStreamAtCommit(t *testing.T) {
	c := duckdbConn(t)
	ctx := context.Background()
	_, err := c.Run(ctx, &ast.CreateTable{
		Table:   ast.T("items"),
		Columns: []ast.ColumnDef{{Name: "id", Type: types.BigIntType}, {Name: "name", Type: types.Varchar}},
	})
	require.NoError(t, err)

	err = within(t, 5*time.Second, func() error {
		return c.WithTx(ctx, func(tx *Tx) error {
			ins := insertItem(1, "A").(*ast.Insert)
			ins.Returning = []ast.SelectItem{{Expr: ast.Col("id")}}
			_, err := tx.Run(ctx, ins)
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(t, c))
}
