package client

import (
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/duckql/runtime/session"
	"github.com/satishbabariya/duckql/runtime/types"
)

var (
	valueType  = reflect.TypeOf(types.Value{})
	timeType   = reflect.TypeOf(time.Time{})
	uuidType   = reflect.TypeOf(uuid.UUID{})
	bigIntType = reflect.TypeOf(big.Int{})
)

// Scan reads every row of rows into a slice of structs. Columns are matched
// to fields by db tag, then by name ignoring case. Unmatched columns are
// skipped. The stream is closed on return.
func Scan[T any](ctx context.Context, rows *session.RowStream) ([]T, error) {
	defer rows.Close()

	var zero T
	typ := reflect.TypeOf(zero)
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("scan target must be a struct, got %s", typ)
	}

	cols := rows.Columns()
	index := make([][]int, len(cols))
	for i, col := range cols {
		if field, ok := findFieldByName(typ, col.Name); ok {
			index[i] = field.Index
		}
	}

	var results []T
	for rows.Next(ctx) {
		var result T
		val := reflect.ValueOf(&result).Elem()
		for i, cell := range rows.Row() {
			if index[i] == nil {
				continue
			}
			if err := assign(val.FieldByIndex(index[i]), cell); err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[i].Name, err)
			}
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// findFieldByName finds a struct field by column name (db tag or field name).
func findFieldByName(typ reflect.Type, colName string) (reflect.StructField, bool) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag, _, _ := strings.Cut(field.Tag.Get("db"), ","); tag != "" {
			if tag == "-" {
				continue
			}
			if tag == colName {
				return field, true
			}
			continue
		}
		if strings.EqualFold(field.Name, colName) {
			return field, true
		}
	}
	return reflect.StructField{}, false
}

// assign stores v into dst, converting between the value variants and Go
// field kinds.
func assign(dst reflect.Value, v types.Value) error {
	if dst.Type() == valueType {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if v.IsNull() {
		dst.SetZero()
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		elem := reflect.New(dst.Type().Elem())
		if dst.Type().Elem() == bigIntType {
			if !isInteger(v) {
				return mismatch(dst, v)
			}
			dst.Set(reflect.ValueOf(v.AsBigInt()))
			return nil
		}
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Interface:
		dst.Set(reflect.ValueOf(native(v)))
		return nil
	}

	switch dst.Type() {
	case timeType:
		switch v.Tag() {
		case types.TagDate, types.TagTimestamp:
			dst.Set(reflect.ValueOf(v.AsTime()))
			return nil
		}
		return mismatch(dst, v)
	case uuidType:
		switch v.Tag() {
		case types.TagUUID:
			dst.Set(reflect.ValueOf(v.AsUUID()))
			return nil
		case types.TagText:
			id, err := uuid.Parse(v.AsText())
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(id))
			return nil
		}
		return mismatch(dst, v)
	case bigIntType:
		if !isInteger(v) {
			return mismatch(dst, v)
		}
		dst.Set(reflect.ValueOf(*v.AsBigInt()))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		if v.Tag() != types.TagBool {
			return mismatch(dst, v)
		}
		dst.SetBool(v.AsBool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !isInteger(v) {
			return mismatch(dst, v)
		}
		n := v.AsBigInt()
		if !n.IsInt64() || dst.OverflowInt(n.Int64()) {
			return fmt.Errorf("value %s overflows %s", n, dst.Type())
		}
		dst.SetInt(n.Int64())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !isInteger(v) {
			return mismatch(dst, v)
		}
		n := v.AsBigInt()
		if !n.IsUint64() || dst.OverflowUint(n.Uint64()) {
			return fmt.Errorf("value %s overflows %s", n, dst.Type())
		}
		dst.SetUint(n.Uint64())
	case reflect.Float32, reflect.Float64:
		switch {
		case v.Tag() == types.TagDouble:
			dst.SetFloat(v.AsFloat())
		case isInteger(v):
			f, _ := new(big.Float).SetInt(v.AsBigInt()).Float64()
			dst.SetFloat(f)
		default:
			return mismatch(dst, v)
		}
	case reflect.String:
		switch v.Tag() {
		case types.TagText:
			dst.SetString(v.AsText())
		case types.TagUUID:
			dst.SetString(v.AsUUID().String())
		default:
			dst.SetString(v.String())
		}
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 && v.Tag() == types.TagBytes {
			dst.SetBytes(v.AsBytes())
			return nil
		}
		if v.Tag() != types.TagList {
			return mismatch(dst, v)
		}
		items := v.Items()
		out := reflect.MakeSlice(dst.Type(), len(items), len(items))
		for i, item := range items {
			if err := assign(out.Index(i), item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		dst.Set(out)
	case reflect.Map:
		out := reflect.MakeMap(dst.Type())
		switch v.Tag() {
		case types.TagMap:
			for _, e := range v.Entries() {
				k := reflect.New(dst.Type().Key()).Elem()
				if err := assign(k, e.Key); err != nil {
					return err
				}
				el := reflect.New(dst.Type().Elem()).Elem()
				if err := assign(el, e.Value); err != nil {
					return err
				}
				out.SetMapIndex(k, el)
			}
		case types.TagStruct:
			if dst.Type().Key().Kind() != reflect.String {
				return mismatch(dst, v)
			}
			for _, f := range v.Fields() {
				el := reflect.New(dst.Type().Elem()).Elem()
				if err := assign(el, f.Value); err != nil {
					return fmt.Errorf(".%s: %w", f.Name, err)
				}
				out.SetMapIndex(reflect.ValueOf(f.Name).Convert(dst.Type().Key()), el)
			}
		default:
			return mismatch(dst, v)
		}
		dst.Set(out)
	case reflect.Struct:
		if v.Tag() != types.TagStruct {
			return mismatch(dst, v)
		}
		for _, f := range v.Fields() {
			field, ok := findFieldByName(dst.Type(), f.Name)
			if !ok {
				continue
			}
			if err := assign(dst.FieldByIndex(field.Index), f.Value); err != nil {
				return fmt.Errorf(".%s: %w", f.Name, err)
			}
		}
	default:
		return mismatch(dst, v)
	}
	return nil
}

func isInteger(v types.Value) bool {
	return v.Tag() == types.TagInt || v.Tag() == types.TagBigInt
}

func mismatch(dst reflect.Value, v types.Value) error {
	return fmt.Errorf("cannot assign %s value to %s", v.Tag(), dst.Type())
}

// native converts v to a plain Go value for interface fields.
func native(v types.Value) any {
	switch v.Tag() {
	case types.TagNull:
		return nil
	case types.TagBool:
		return v.AsBool()
	case types.TagInt:
		return v.AsInt()
	case types.TagBigInt:
		return v.AsBigInt()
	case types.TagDouble:
		return v.AsFloat()
	case types.TagText:
		return v.AsText()
	case types.TagBytes:
		return v.AsBytes()
	case types.TagDate, types.TagTimestamp:
		return v.AsTime()
	case types.TagUUID:
		return v.AsUUID()
	case types.TagList:
		items := v.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = native(item)
		}
		return out
	case types.TagStruct:
		out := make(map[string]any, len(v.Fields()))
		for _, f := range v.Fields() {
			out[f.Name] = native(f.Value)
		}
		return out
	case types.TagUnion:
		_, inner := v.Union()
		return native(inner)
	}
	return v
}
