package types

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FromGo converts an application value into a Value. Nil and typed nil
// pointers both become null; maps with string keys become structs with
// sorted field names; other maps become map values with keys sorted by their
// rendering.
func FromGo(x any) (Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint64:
		return fromUint(x), nil
	case *big.Int:
		return BigInt(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return TimestampOf(x, true), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return TimestampOf(*x, true), nil
	case time.Duration:
		return IntervalOf(0, 0, x.Microseconds()), nil
	case Interval:
		return IntervalOf(x.Months, x.Days, x.Micros), nil
	case uuid.UUID:
		return UUID(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromGo(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		names := make([]string, 0, len(x))
		for k := range x {
			names = append(names, k)
		}
		sort.Strings(names)
		fields := make([]FieldValue, len(names))
		for i, name := range names {
			v, err := FromGo(x[name])
			if err != nil {
				return Value{}, fmt.Errorf(".%s: %w", name, err)
			}
			fields[i] = FieldValue{Name: name, Value: v}
		}
		return StructOf(fields...), nil
	}
	return fromReflect(reflect.ValueOf(x))
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return BigInt(new(big.Int).SetUint64(u))
	}
	return Int(int64(u))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		fallthrough
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return Bytes(b), nil
		}
		items := make([]Value, rv.Len())
		for i := range items {
			v, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		entries := make([]Entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := FromGo(iter.Key().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("key: %w", err)
			}
			v, err := FromGo(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%s]: %w", k, err)
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		SortEntries(entries)
		return MapOf(entries...), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	}
	return Value{}, fmt.Errorf("unsupported application value of type %s", rv.Type())
}

// SortEntries orders map entries by the rendering of their keys so that
// values built from Go maps are deterministic.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
}

// InferType derives an engine type from the runtime shape of v. Null values,
// empty lists and maps, and unions cannot be inferred.
func InferType(v Value) (DataType, error) {
	switch v.tag {
	case TagBool:
		return Boolean, nil
	case TagInt:
		return BigIntType, nil
	case TagBigInt:
		return HugeInt, nil
	case TagDouble:
		return Double, nil
	case TagText:
		return Varchar, nil
	case TagBytes:
		return Blob, nil
	case TagDate:
		return Date, nil
	case TagTime:
		if v.offset {
			return TimeTZ, nil
		}
		return Time, nil
	case TagTimestamp:
		if v.offset {
			return TimestampTZ, nil
		}
		return Timestamp, nil
	case TagInterval:
		return IntervalType, nil
	case TagUUID:
		return UUIDType, nil
	case TagList:
		item, err := inferCommon(v.list)
		if err != nil {
			return nil, err
		}
		return Array{Item: item}, nil
	case TagMap:
		keys := make([]Value, len(v.pairs))
		vals := make([]Value, len(v.pairs))
		for i, p := range v.pairs {
			keys[i], vals[i] = p.Key, p.Value
		}
		k, err := inferCommon(keys)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		val, err := inferCommon(vals)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		return Map{Key: k, Value: val}, nil
	case TagStruct:
		if len(v.fields) == 0 {
			return nil, fmt.Errorf("cannot infer type of empty struct")
		}
		fields := make([]Field, len(v.fields))
		for i, f := range v.fields {
			t, err := InferType(f.Value)
			if err != nil {
				return nil, fmt.Errorf(".%s: %w", f.Name, err)
			}
			fields[i] = Field{Name: f.Name, Type: t}
		}
		return Struct{Fields: fields}, nil
	}
	return nil, fmt.Errorf("cannot infer type of %s value", v.tag)
}

// inferCommon infers the type shared by all non-null values.
func inferCommon(values []Value) (DataType, error) {
	var common DataType
	for i, v := range values {
		if v.IsNull() {
			continue
		}
		t, err := InferType(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if common == nil {
			common = t
			continue
		}
		if !SameType(common, t) {
			return nil, fmt.Errorf("[%d]: mixed element types %s and %s", i, common, t)
		}
	}
	if common == nil {
		return nil, fmt.Errorf("cannot infer element type without a non-null element")
	}
	return common, nil
}

// SameType reports whether two type trees are identical after alias
// resolution.
func SameType(a, b DataType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}
