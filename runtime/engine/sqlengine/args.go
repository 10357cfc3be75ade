package sqlengine

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/marcboeker/go-duckdb"

	"github.com/satishbabariya/duckql/runtime/engine"
)

// duckdbArg maps the engine's native shapes onto go-duckdb's bind types.
func duckdbArg(arg any) (any, error) {
	switch a := arg.(type) {
	case engine.Interval:
		return duckdb.Interval{Months: a.Months, Days: a.Days, Micros: a.Micros}, nil
	case []engine.MapEntry:
		m := make(duckdb.Map, len(a))
		for _, e := range a {
			k, err := duckdbArg(e.Key)
			if err != nil {
				return nil, err
			}
			if k != nil && !reflect.TypeOf(k).Comparable() {
				return nil, fmt.Errorf("map key of type %T cannot be bound", k)
			}
			v, err := duckdbArg(e.Value)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case engine.Union:
		return nil, fmt.Errorf("union member %q cannot be bound directly", a.Tag)
	case []any:
		out := make([]any, len(a))
		for i, item := range a {
			v, err := duckdbArg(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(a))
		for k, item := range a {
			v, err := duckdbArg(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return arg, nil
}

// sqliteArg narrows wide integers and rejects composites, which sqlite has
// no bind form for.
func sqliteArg(arg any) (any, error) {
	switch a := arg.(type) {
	case *big.Int:
		if a.IsInt64() {
			return a.Int64(), nil
		}
		return a.String(), nil
	case uint64:
		if a > math.MaxInt64 {
			return fmt.Sprint(a), nil
		}
		return int64(a), nil
	case []any, map[string]any, []engine.MapEntry, engine.Union, engine.Interval, []float32:
		return nil, fmt.Errorf("sqlite cannot bind %T", arg)
	}
	return arg, nil
}
