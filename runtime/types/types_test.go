package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataTypeString(t *testing.T) {
	tests := []struct {
		name string
		t    DataType
		want string
	}{
		{"list of struct", ListType(StructType(F("a", Integer), F("b", Varchar))), `STRUCT("a" INTEGER, "b" VARCHAR)[]`},
		{"alias resolves", Scalar{Name: "text"}, "VARCHAR"},
		{"decimal params", Scalar{Name: "numeric", Params: []int{18, 3}}, "DECIMAL(18,3)"},
		{"fixed array", Array{Item: Double, Size: 4}, "DOUBLE[4]"},
		{"map", Map{Key: Varchar, Value: ListType(BigIntType)}, "MAP(VARCHAR, BIGINT[])"},
		{"union", Union{Members: []Field{F("num", Integer), F("str", Varchar)}}, `UNION("num" INTEGER, "str" VARCHAR)`},
		{"quoted field", StructType(F(`we"ird`, Integer)), `STRUCT("we""ird" INTEGER)`},
		{"vector", Vector{Dimensions: 3}, "FLOAT[3]"},
		{"geometry", Geometry{}, "GEOMETRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.String())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		t       DataType
		wantErr string
	}{
		{"valid nested", ListType(Map{Key: Varchar, Value: StructType(F("x", Double))}), ""},
		{"nil", nil, "missing type"},
		{"unknown scalar", Scalar{Name: "WIDGET"}, "unknown type"},
		{"too many params", Scalar{Name: "INTEGER", Params: []int{1}}, "at most 0 parameters"},
		{"empty struct", Struct{}, "struct has no fields"},
		{"empty union", Union{}, "union has no alternatives"},
		{"duplicate field", StructType(F("a", Integer), F("A", Varchar)), "duplicate member"},
		{"nested bad item", ListType(StructType(F("a", Scalar{Name: "NOPE"}))), "$[].a"},
		{"negative size", Array{Item: Integer, Size: -1}, "negative array size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.t)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDataType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INTEGER", "INTEGER"},
		{"varchar", "VARCHAR"},
		{"VARCHAR(255)", "VARCHAR(255)"},
		{"DECIMAL(18,3)", "DECIMAL(18,3)"},
		{"TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ"},
		{"INTEGER[]", "INTEGER[]"},
		{"FLOAT[3]", "FLOAT[3]"},
		{"INTEGER[][]", "INTEGER[][]"},
		{"STRUCT(a INTEGER, b VARCHAR)[]", `STRUCT("a" INTEGER, "b" VARCHAR)[]`},
		{`STRUCT("my field" INTEGER, "map" MAP(VARCHAR, DOUBLE))`, `STRUCT("my field" INTEGER, "map" MAP(VARCHAR, DOUBLE))`},
		{"MAP(VARCHAR, INTEGER[])", "MAP(VARCHAR, INTEGER[])"},
		{"UNION(num INTEGER, str VARCHAR)", `UNION("num" INTEGER, "str" VARCHAR)`},
		{"GEOMETRY", "GEOMETRY"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDataType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDataTypeErrors(t *testing.T) {
	for _, in := range []string{"", "STRUCT()", "MAP(VARCHAR)", "ENUM('a', 'b')", "WIDGET", "INTEGER[", "UNION()"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDataType(in)
			assert.Error(t, err)
		})
	}
}

func TestValueEqual(t *testing.T) {
	huge, _ := new(big.Int).SetString("12345678901234567890", 10)
	utc := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	berlin := utc.In(time.FixedZone("CET", 3600))

	assert.True(t, Int(42).Equal(BigInt(big.NewInt(42))))
	assert.False(t, Int(42).Equal(Float(42)))
	assert.True(t, BigInt(huge).Equal(BigInt(new(big.Int).Set(huge))))
	assert.True(t, TimestampOf(utc, true).Equal(TimestampOf(berlin, true)))
	assert.False(t, TimestampOf(utc, true).Equal(TimestampOf(utc, false)))
	assert.True(t, Null().Equal(Value{}))

	plus2, zero, minus5 := 2*time.Hour, time.Duration(0), -5*time.Hour
	assert.True(t, TimeOf(3*time.Hour, &plus2).Equal(TimeOf(time.Hour, &zero)))
	assert.True(t, TimeOf(time.Hour, &plus2).Equal(TimeOf(23*time.Hour, &zero)))
	assert.True(t, TimeOf(22*time.Hour, &minus5).Equal(TimeOf(3*time.Hour, &zero)))
	assert.False(t, TimeOf(3*time.Hour, &plus2).Equal(TimeOf(3*time.Hour, &zero)))
	assert.False(t, TimeOf(time.Hour, &zero).Equal(TimeOf(time.Hour, nil)))
	assert.True(t, TimeOf(time.Hour, nil).Equal(TimeOf(time.Hour, nil)))
	assert.False(t, List(Int(1)).Equal(List(Int(1), Null())))
	assert.False(t, UnionOf(0, Int(1)).Equal(UnionOf(1, Int(1))))
}

func TestTimestampOfNaiveKeepsWallClock(t *testing.T) {
	local := time.Date(2024, 6, 1, 8, 30, 0, 0, time.FixedZone("X", -7*3600))
	v := TimestampOf(local, false)
	assert.False(t, v.HasOffset())
	assert.Equal(t, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC), v.AsTime())
}

func TestFromGo(t *testing.T) {
	id := uuid.New()
	var nilPtr *int
	ten := 10

	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null()},
		{"typed nil", nilPtr, Null()},
		{"pointer", &ten, Int(10)},
		{"uint64 overflow", uint64(1 << 63), BigInt(new(big.Int).Lsh(big.NewInt(1), 63))},
		{"bytes", []byte("ab"), Bytes([]byte("ab"))},
		{"uuid", id, UUID(id)},
		{"duration", 1500 * time.Millisecond, IntervalOf(0, 0, 1_500_000)},
		{"slice", []int{1, 2}, List(Int(1), Int(2))},
		{"object", map[string]any{"b": "x", "a": 1}, StructOf(FieldValue{"a", Int(1)}, FieldValue{"b", Text("x")})},
		{"int map", map[int]string{2: "b", 1: "a"}, MapOf(Entry{Int(1), Text("a")}, Entry{Int(2), Text("b")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	_, err := FromGo(struct{ X int }{1})
	assert.Error(t, err)
}

func TestInferType(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"int", Int(1), "BIGINT"},
		{"big", BigInt(big.NewInt(1)), "HUGEINT"},
		{"list with null", List(Null(), Text("a")), "VARCHAR[]"},
		{"struct", StructOf(FieldValue{"a", Int(1)}, FieldValue{"b", List(Float(1))}), `STRUCT("a" BIGINT, "b" DOUBLE[])`},
		{"map", MapOf(Entry{Text("k"), Bool(true)}), "MAP(VARCHAR, BOOLEAN)"},
		{"naive time", TimeOf(time.Hour, nil), "TIME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferType(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	for _, v := range []Value{Null(), List(), List(Int(1), Text("x")), UnionOf(0, Int(1))} {
		_, err := InferType(v)
		assert.Error(t, err, v.String())
	}
}

func TestScalarInfo(t *testing.T) {
	info, ok := LookupScalar("int8")
	require.True(t, ok)
	assert.Equal(t, "BIGINT", info.Name)
	assert.False(t, info.InRange(new(big.Int).Lsh(big.NewInt(1), 63)))

	hi, ok := LookupScalar("HUGEINT")
	require.True(t, ok)
	n, _ := new(big.Int).SetString("12345678901234567890", 10)
	assert.True(t, hi.InRange(n))

	assert.True(t, ExactFloat(1<<53))
	assert.False(t, ExactFloat(1<<53+1))
}
