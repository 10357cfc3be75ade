package types

import (
	"math"
	"math/big"
	"strings"
)

// Class groups scalar types that share an encoding.
type Class int

const (
	ClassBool Class = iota
	ClassInt
	ClassHugeInt
	ClassFloat
	ClassDecimal
	ClassText
	ClassBlob
	ClassDate
	ClassTime
	ClassTimeTZ
	ClassTimestamp
	ClassTimestampTZ
	ClassInterval
	ClassUUID
	ClassJSON
)

// ScalarInfo describes one allow-listed engine scalar.
type ScalarInfo struct {
	Name      string
	Class     Class
	MaxParams int
	// Min and Max bound the integer classes.
	Min, Max *big.Int
}

var scalars = map[string]ScalarInfo{}

var aliases = map[string]string{
	"BOOL":                        "BOOLEAN",
	"LOGICAL":                     "BOOLEAN",
	"INT1":                        "TINYINT",
	"INT2":                        "SMALLINT",
	"SHORT":                       "SMALLINT",
	"INT":                         "INTEGER",
	"INT4":                        "INTEGER",
	"SIGNED":                      "INTEGER",
	"INT8":                        "BIGINT",
	"LONG":                        "BIGINT",
	"INT128":                      "HUGEINT",
	"UINT128":                     "UHUGEINT",
	"FLOAT4":                      "FLOAT",
	"REAL":                        "FLOAT",
	"FLOAT8":                      "DOUBLE",
	"NUMERIC":                     "DECIMAL",
	"TEXT":                        "VARCHAR",
	"STRING":                      "VARCHAR",
	"CHAR":                        "VARCHAR",
	"BPCHAR":                      "VARCHAR",
	"BYTEA":                       "BLOB",
	"BINARY":                      "BLOB",
	"VARBINARY":                   "BLOB",
	"DATETIME":                    "TIMESTAMP",
	"TIMESTAMP_US":                "TIMESTAMP",
	"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
	"TIMESTAMP WITH TIME ZONE":    "TIMESTAMPTZ",
	"TIME WITH TIME ZONE":         "TIMETZ",
	"TIME WITHOUT TIME ZONE":      "TIME",
}

func init() {
	ints := []struct {
		name string
		bits uint
		sign bool
	}{
		{"TINYINT", 8, true}, {"SMALLINT", 16, true}, {"INTEGER", 32, true}, {"BIGINT", 64, true},
		{"UTINYINT", 8, false}, {"USMALLINT", 16, false}, {"UINTEGER", 32, false}, {"UBIGINT", 64, false},
	}
	for _, it := range ints {
		lo, hi := intRange(it.bits, it.sign)
		scalars[it.name] = ScalarInfo{Name: it.name, Class: ClassInt, Min: lo, Max: hi}
	}
	lo, hi := intRange(128, true)
	scalars["HUGEINT"] = ScalarInfo{Name: "HUGEINT", Class: ClassHugeInt, Min: lo, Max: hi}
	lo, hi = intRange(128, false)
	scalars["UHUGEINT"] = ScalarInfo{Name: "UHUGEINT", Class: ClassHugeInt, Min: lo, Max: hi}

	for _, s := range []ScalarInfo{
		{Name: "BOOLEAN", Class: ClassBool},
		{Name: "FLOAT", Class: ClassFloat},
		{Name: "DOUBLE", Class: ClassFloat},
		{Name: "DECIMAL", Class: ClassDecimal, MaxParams: 2},
		{Name: "VARCHAR", Class: ClassText, MaxParams: 1},
		{Name: "BLOB", Class: ClassBlob},
		{Name: "DATE", Class: ClassDate},
		{Name: "TIME", Class: ClassTime},
		{Name: "TIMETZ", Class: ClassTimeTZ},
		{Name: "TIMESTAMP", Class: ClassTimestamp},
		{Name: "TIMESTAMP_S", Class: ClassTimestamp},
		{Name: "TIMESTAMP_MS", Class: ClassTimestamp},
		{Name: "TIMESTAMP_NS", Class: ClassTimestamp},
		{Name: "TIMESTAMPTZ", Class: ClassTimestampTZ},
		{Name: "INTERVAL", Class: ClassInterval},
		{Name: "UUID", Class: ClassUUID},
		{Name: "JSON", Class: ClassJSON},
	} {
		scalars[s.Name] = s
	}
}

func intRange(bits uint, signed bool) (*big.Int, *big.Int) {
	one := big.NewInt(1)
	if !signed {
		hi := new(big.Int).Lsh(one, bits)
		return big.NewInt(0), hi.Sub(hi, one)
	}
	hi := new(big.Int).Lsh(one, bits-1)
	lo := new(big.Int).Neg(hi)
	return lo, hi.Sub(hi, one)
}

// CanonicalName upper-cases name and resolves engine aliases such as TEXT or
// INT8. Unknown names are returned upper-cased.
func CanonicalName(name string) string {
	n := strings.ToUpper(strings.Join(strings.Fields(name), " "))
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// LookupScalar resolves name against the allow-list.
func LookupScalar(name string) (ScalarInfo, bool) {
	info, ok := scalars[CanonicalName(name)]
	return info, ok
}

// ScalarClass returns the class of a scalar type and false for anything else.
func ScalarClass(t DataType) (Class, bool) {
	s, ok := t.(Scalar)
	if !ok {
		return 0, false
	}
	info, ok := LookupScalar(s.Name)
	if !ok {
		return 0, false
	}
	return info.Class, true
}

// InRange reports whether n fits the bounds of an integer scalar.
func (info ScalarInfo) InRange(n *big.Int) bool {
	if info.Min == nil || info.Max == nil {
		return true
	}
	return n.Cmp(info.Min) >= 0 && n.Cmp(info.Max) <= 0
}

// maxExactFloat is the largest integer magnitude a float64 holds exactly.
const maxExactFloat = 1 << 53

// ExactFloat reports whether i converts to float64 without rounding.
func ExactFloat(i int64) bool {
	return i >= -maxExactFloat && i <= maxExactFloat
}

// IsIntegral reports whether f has no fractional part and fits an int64.
func IsIntegral(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64
}
