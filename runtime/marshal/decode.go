package marshal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"

	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/types"
)

// Decode converts a native result cell into a Value for a column declared as
// t. A nil t decodes by the Go shape of cell. Nil cells and typed nil
// pointers decode to null.
func (m *Marshaller) Decode(cell any, t types.DataType) (types.Value, error) {
	return m.decode(cell, t, "$")
}

func (m *Marshaller) decode(cell any, t types.DataType, path string) (types.Value, error) {
	if isNil(cell) {
		return types.Null(), nil
	}
	switch t := t.(type) {
	case nil:
		return m.decodeInferred(cell, path)
	case types.Scalar:
		return m.decodeScalar(cell, t, path)
	case types.Array:
		items, ok := listItems(cell)
		if !ok {
			return types.Value{}, decodeErr(path, t, cell, "expected a list")
		}
		if t.Size > 0 && len(items) != t.Size {
			return types.Value{}, decodeErr(path, t, cell, fmt.Sprintf("array length %d does not match size %d", len(items), t.Size))
		}
		out := make([]types.Value, len(items))
		for i, item := range items {
			v, err := m.decode(item, t.Item, indexPath(path, i))
			if err != nil {
				return types.Value{}, err
			}
			out[i] = v
		}
		return types.List(out...), nil
	case types.Vector:
		items, ok := listItems(cell)
		if !ok {
			return types.Value{}, decodeErr(path, t, cell, "expected a list of floats")
		}
		if t.Dimensions > 0 && len(items) != t.Dimensions {
			return types.Value{}, decodeErr(path, t, cell, fmt.Sprintf("vector has %d dimensions, want %d", len(items), t.Dimensions))
		}
		out := make([]types.Value, len(items))
		for i, item := range items {
			v, err := m.decodeScalar(item, types.Double, indexPath(path, i))
			if err != nil {
				return types.Value{}, err
			}
			out[i] = v
		}
		return types.List(out...), nil
	case types.Struct:
		return m.decodeStruct(cell, t, path)
	case types.Map:
		return m.decodeMap(cell, t, path)
	case types.Union:
		tag, payload, ok := unionParts(cell)
		if !ok {
			return types.Value{}, decodeErr(path, t, cell, "expected a union")
		}
		idx := t.MemberIndex(tag)
		if idx < 0 {
			return types.Value{}, decodeErr(path, t, cell, fmt.Sprintf("unknown union member %q", tag))
		}
		v, err := m.decode(payload, t.Members[idx].Type, fieldPath(path, t.Members[idx].Name))
		if err != nil {
			return types.Value{}, err
		}
		return types.UnionOf(idx, v), nil
	case types.Geometry:
		switch c := cell.(type) {
		case []byte:
			return types.Bytes(c), nil
		case string:
			return types.Text(c), nil
		}
		return types.Value{}, decodeErr(path, t, cell, "expected WKB bytes or WKT text")
	}
	return types.Value{}, decodeErr(path, t, cell, "unsupported type")
}

func (m *Marshaller) decodeStruct(cell any, t types.Struct, path string) (types.Value, error) {
	obj, ok := objectFields(cell)
	if !ok {
		return types.Value{}, decodeErr(path, t, cell, "expected a struct")
	}
	used := make(map[string]bool, len(obj))
	fields := make([]types.FieldValue, len(t.Fields))
	for i, f := range t.Fields {
		raw, key, found := lookupKey(obj, f.Name)
		if found {
			used[key] = true
		}
		v, err := m.decode(raw, f.Type, fieldPath(path, f.Name))
		if err != nil {
			return types.Value{}, err
		}
		fields[i] = types.FieldValue{Name: f.Name, Value: v}
	}
	for key := range obj {
		if !used[key] {
			return types.Value{}, decodeErr(fieldPath(path, key), t, cell, "unknown struct field")
		}
	}
	return types.StructOf(fields...), nil
}

func lookupKey(obj map[string]any, name string) (any, string, bool) {
	if v, ok := obj[name]; ok {
		return v, name, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, name) {
			return v, k, true
		}
	}
	return nil, "", false
}

func (m *Marshaller) decodeMap(cell any, t types.Map, path string) (types.Value, error) {
	var entries []engine.MapEntry
	sorted := false
	switch c := cell.(type) {
	case []engine.MapEntry:
		entries = c
	default:
		rv := reflect.ValueOf(cell)
		if rv.Kind() != reflect.Map {
			return types.Value{}, decodeErr(path, t, cell, "expected a map")
		}
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, engine.MapEntry{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
		}
		sorted = true
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		k, err := m.decode(e.Key, t.Key, keyPath(path, fmt.Sprint(e.Key)))
		if err != nil {
			return types.Value{}, err
		}
		v, err := m.decode(e.Value, t.Value, keyPath(path, k.String()))
		if err != nil {
			return types.Value{}, err
		}
		out[i] = types.Entry{Key: k, Value: v}
	}
	if sorted {
		types.SortEntries(out)
	}
	return types.MapOf(out...), nil
}

func (m *Marshaller) decodeInferred(cell any, path string) (types.Value, error) {
	switch c := cell.(type) {
	case engine.Interval:
		return types.IntervalOf(c.Months, c.Days, c.Micros), nil
	case engine.Union:
		return types.Value{}, decodeErr(path, nil, cell, "union cells need a declared type")
	case []engine.MapEntry:
		out := make([]types.Entry, len(c))
		for i, e := range c {
			k, err := m.decodeInferred(e.Key, keyPath(path, fmt.Sprint(e.Key)))
			if err != nil {
				return types.Value{}, err
			}
			v, err := m.decode(e.Value, nil, keyPath(path, k.String()))
			if err != nil {
				return types.Value{}, err
			}
			out[i] = types.Entry{Key: k, Value: v}
		}
		return types.MapOf(out...), nil
	case big.Int:
		return types.BigInt(&c), nil
	case []byte, string, *big.Int, uuid.UUID, time.Time:
		return types.FromGo(c)
	}
	if iv, ok := intervalParts(cell); ok {
		return types.IntervalOf(iv.Months, iv.Days, iv.Micros), nil
	}
	if s, ok := decimalStruct(cell); ok {
		return types.Text(s), nil
	}
	rv := reflect.ValueOf(cell)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return types.FromGo(cell)
		}
		items, _ := listItems(cell)
		out := make([]types.Value, len(items))
		for i, item := range items {
			v, err := m.decode(item, nil, indexPath(path, i))
			if err != nil {
				return types.Value{}, err
			}
			out[i] = v
		}
		return types.List(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			obj, _ := objectFields(cell)
			names := make([]string, 0, len(obj))
			for k := range obj {
				names = append(names, k)
			}
			sort.Strings(names)
			fields := make([]types.FieldValue, len(names))
			for i, name := range names {
				v, err := m.decode(obj[name], nil, fieldPath(path, name))
				if err != nil {
					return types.Value{}, err
				}
				fields[i] = types.FieldValue{Name: name, Value: v}
			}
			return types.StructOf(fields...), nil
		}
		entries := make([]types.Entry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := m.decode(iter.Key().Interface(), nil, keyPath(path, fmt.Sprint(iter.Key().Interface())))
			if err != nil {
				return types.Value{}, err
			}
			v, err := m.decode(iter.Value().Interface(), nil, keyPath(path, k.String()))
			if err != nil {
				return types.Value{}, err
			}
			entries = append(entries, types.Entry{Key: k, Value: v})
		}
		types.SortEntries(entries)
		return types.MapOf(entries...), nil
	}
	v, err := types.FromGo(cell)
	if err != nil {
		if s, ok := cell.(fmt.Stringer); ok {
			return types.Text(s.String()), nil
		}
		return types.Value{}, decodeErr(path, nil, cell, err.Error())
	}
	return v, nil
}

func (m *Marshaller) decodeScalar(cell any, t types.Scalar, path string) (types.Value, error) {
	info, ok := types.LookupScalar(t.Name)
	if !ok {
		return types.Value{}, decodeErr(path, t, cell, "unknown scalar type")
	}
	fail := func(reason string) (types.Value, error) {
		return types.Value{}, decodeErr(path, t, cell, reason)
	}

	switch info.Class {
	case types.ClassBool:
		switch c := cell.(type) {
		case bool:
			return types.Bool(c), nil
		case int64:
			if c == 0 || c == 1 {
				return types.Bool(c == 1), nil
			}
		case string:
			if b, err := strconv.ParseBool(c); err == nil {
				return types.Bool(b), nil
			}
		}
		return fail("expected a boolean")

	case types.ClassInt, types.ClassHugeInt:
		n, ok := toBigInt(cell)
		if !ok {
			return fail("expected an integer")
		}
		if !info.InRange(n) {
			return fail("integer " + n.String() + " out of range")
		}
		if info.Class == types.ClassInt && n.IsInt64() {
			return types.Int(n.Int64()), nil
		}
		return types.BigInt(n), nil

	case types.ClassFloat:
		switch c := cell.(type) {
		case float64:
			return types.Float(c), nil
		case float32:
			return types.Float(float64(c)), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(c), 64); err == nil {
				return types.Float(f), nil
			}
			return fail("invalid number text")
		}
		if n, ok := toBigInt(cell); ok && n.IsInt64() && types.ExactFloat(n.Int64()) {
			return types.Float(float64(n.Int64())), nil
		}
		return fail("expected a number")

	case types.ClassDecimal:
		s, ok := decimalParts(cell)
		if !ok {
			return fail("expected a decimal")
		}
		if _, ok := new(big.Rat).SetString(s); !ok {
			return fail("invalid decimal text")
		}
		return types.Text(s), nil

	case types.ClassText:
		switch c := cell.(type) {
		case string:
			return types.Text(c), nil
		case []byte:
			return types.Text(string(c)), nil
		case fmt.Stringer:
			return types.Text(c.String()), nil
		}
		return fail("expected text")

	case types.ClassBlob:
		switch c := cell.(type) {
		case []byte:
			return types.Bytes(c), nil
		case string:
			if m.opts.TextFraming {
				b, err := unescapeBlob(c)
				if err != nil {
					return fail(err.Error())
				}
				return types.Bytes(b), nil
			}
			return types.Bytes([]byte(c)), nil
		}
		return fail("expected bytes")

	case types.ClassDate:
		switch c := cell.(type) {
		case time.Time:
			return types.DateOf(c.Date()), nil
		case string:
			d, err := time.Parse(dateLayout, strings.TrimSpace(c))
			if err != nil {
				if d, err = dateparse.ParseIn(c, time.UTC); err != nil {
					return fail("invalid date text")
				}
			}
			return types.DateOf(d.Date()), nil
		}
		return fail("expected a date")

	case types.ClassTime, types.ClassTimeTZ:
		zoned := info.Class == types.ClassTimeTZ
		switch c := cell.(type) {
		case time.Time:
			d := time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute +
				time.Duration(c.Second())*time.Second + time.Duration(c.Nanosecond())
			if !zoned {
				return types.TimeOf(d, nil), nil
			}
			_, secs := c.Zone()
			off := time.Duration(secs) * time.Second
			return types.TimeOf(d, &off), nil
		case string:
			d, off, err := parseTimeOfDay(c)
			if err != nil {
				return fail(err.Error())
			}
			if !zoned {
				if off != nil {
					d = (d - *off + 24*time.Hour) % (24 * time.Hour)
				}
				return types.TimeOf(d, nil), nil
			}
			if off == nil {
				zero := time.Duration(0)
				off = &zero
			}
			return types.TimeOf(d, off), nil
		}
		return fail("expected a time of day")

	case types.ClassTimestamp:
		switch c := cell.(type) {
		case time.Time:
			return types.TimestampOf(c, false), nil
		case string:
			ts, zoned, err := parseTimestamp(c, time.UTC)
			if err != nil {
				return fail("invalid timestamp text")
			}
			if zoned {
				ts = ts.UTC()
			}
			return types.TimestampOf(ts, false), nil
		}
		return fail("expected a timestamp")

	case types.ClassTimestampTZ:
		switch c := cell.(type) {
		case time.Time:
			return types.TimestampOf(c, true), nil
		case string:
			ts, _, err := parseTimestamp(c, m.opts.Location)
			if err != nil {
				return fail("invalid timestamp text")
			}
			return types.TimestampOf(ts, true), nil
		}
		return fail("expected a timestamp")

	case types.ClassInterval:
		switch c := cell.(type) {
		case time.Duration:
			return types.IntervalOf(0, 0, c.Microseconds()), nil
		case string:
			iv, err := parseInterval(c)
			if err != nil {
				return fail(err.Error())
			}
			return types.IntervalOf(iv.Months, iv.Days, iv.Micros), nil
		}
		if iv, ok := intervalParts(cell); ok {
			return types.IntervalOf(iv.Months, iv.Days, iv.Micros), nil
		}
		return fail("expected an interval")

	case types.ClassUUID:
		id, err := toUUID(cell)
		if err != nil {
			return fail(err.Error())
		}
		if m.opts.UUIDAsString {
			return types.Text(id.String()), nil
		}
		return types.UUID(id), nil

	case types.ClassJSON:
		var text string
		switch c := cell.(type) {
		case string:
			text = c
		case []byte:
			text = string(c)
		default:
			return m.decodeInferred(cell, path)
		}
		v, err := decodeJSON(text)
		if err != nil {
			return fail("invalid JSON: " + err.Error())
		}
		return v, nil
	}
	return fail("unsupported scalar class")
}

func isNil(cell any) bool {
	if cell == nil {
		return true
	}
	rv := reflect.ValueOf(cell)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func listItems(cell any) ([]any, bool) {
	if items, ok := cell.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(cell)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func objectFields(cell any) (map[string]any, bool) {
	if obj, ok := cell.(map[string]any); ok {
		return obj, true
	}
	rv := reflect.ValueOf(cell)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	obj := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		obj[iter.Key().String()] = iter.Value().Interface()
	}
	return obj, true
}

// unionParts accepts engine.Union and driver structs with Tag and Value
// fields.
func unionParts(cell any) (string, any, bool) {
	if u, ok := cell.(engine.Union); ok {
		return u.Tag, u.Value, true
	}
	rv := reflect.Indirect(reflect.ValueOf(cell))
	if rv.Kind() != reflect.Struct {
		return "", nil, false
	}
	tag := rv.FieldByName("Tag")
	val := rv.FieldByName("Value")
	if !tag.IsValid() || tag.Kind() != reflect.String || !val.IsValid() || !val.CanInterface() {
		return "", nil, false
	}
	return tag.String(), val.Interface(), true
}

// intervalParts accepts engine.Interval and driver structs with Months, Days
// and Micros integer fields.
func intervalParts(cell any) (engine.Interval, bool) {
	if iv, ok := cell.(engine.Interval); ok {
		return iv, true
	}
	rv := reflect.Indirect(reflect.ValueOf(cell))
	if rv.Kind() != reflect.Struct {
		return engine.Interval{}, false
	}
	months, days, micros := rv.FieldByName("Months"), rv.FieldByName("Days"), rv.FieldByName("Micros")
	for _, f := range []reflect.Value{months, days, micros} {
		if !f.IsValid() || !f.CanInt() {
			return engine.Interval{}, false
		}
	}
	return engine.Interval{Months: int32(months.Int()), Days: int32(days.Int()), Micros: micros.Int()}, true
}

// decimalParts renders a decimal cell as exact text.
func decimalParts(cell any) (string, bool) {
	switch c := cell.(type) {
	case string:
		return strings.TrimSpace(c), true
	case []byte:
		return strings.TrimSpace(string(c)), true
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return "", false
		}
		return strconv.FormatFloat(c, 'f', -1, 64), true
	}
	if n, ok := toBigInt(cell); ok {
		return n.String(), true
	}
	return decimalStruct(cell)
}

// decimalStruct renders driver decimals: structs with a Scale and an unscaled
// *big.Int Value.
func decimalStruct(cell any) (string, bool) {
	rv := reflect.Indirect(reflect.ValueOf(cell))
	if rv.Kind() != reflect.Struct {
		return "", false
	}
	scale, val := rv.FieldByName("Scale"), rv.FieldByName("Value")
	if !scale.IsValid() || !val.IsValid() || !val.CanInterface() {
		return "", false
	}
	n, ok := val.Interface().(*big.Int)
	if !ok || n == nil {
		return "", false
	}
	var s int
	switch {
	case scale.CanUint():
		s = int(scale.Uint())
	case scale.CanInt():
		s = int(scale.Int())
	default:
		return "", false
	}
	r := new(big.Rat).SetFrac(n, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s)), nil))
	return r.FloatString(s), true
}

func toBigInt(cell any) (*big.Int, bool) {
	switch c := cell.(type) {
	case int:
		return big.NewInt(int64(c)), true
	case int8:
		return big.NewInt(int64(c)), true
	case int16:
		return big.NewInt(int64(c)), true
	case int32:
		return big.NewInt(int64(c)), true
	case int64:
		return big.NewInt(c), true
	case uint8:
		return big.NewInt(int64(c)), true
	case uint16:
		return big.NewInt(int64(c)), true
	case uint32:
		return big.NewInt(int64(c)), true
	case uint:
		return new(big.Int).SetUint64(uint64(c)), true
	case uint64:
		return new(big.Int).SetUint64(c), true
	case *big.Int:
		return new(big.Int).Set(c), true
	case big.Int:
		return new(big.Int).Set(&c), true
	case float64:
		if types.IsIntegral(c) {
			return big.NewInt(int64(c)), true
		}
	case string:
		return new(big.Int).SetString(strings.TrimSpace(c), 10)
	case []byte:
		return new(big.Int).SetString(strings.TrimSpace(string(c)), 10)
	}
	return nil, false
}

func toUUID(cell any) (uuid.UUID, error) {
	switch c := cell.(type) {
	case uuid.UUID:
		return c, nil
	case [16]byte:
		return uuid.UUID(c), nil
	case *uuid.UUID:
		return *c, nil
	case []byte:
		if len(c) == 16 {
			return uuid.FromBytes(c)
		}
		return uuid.ParseBytes(c)
	case string:
		return uuid.Parse(c)
	case fmt.Stringer:
		return uuid.Parse(c.String())
	}
	return uuid.UUID{}, errors.New("expected a uuid")
}

// unescapeBlob reverses the engine's blob text form, where non-printable
// bytes appear as \xNN and the rest verbatim.
func unescapeBlob(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == 'x' {
			if i+4 > len(s) {
				return nil, errors.New("truncated blob escape")
			}
			b, err := hex.DecodeString(s[i+2 : i+4])
			if err != nil {
				return nil, fmt.Errorf("invalid blob escape %q", s[i:i+4])
			}
			out = append(out, b[0])
			i += 3
			continue
		}
		out = append(out, s[i])
	}
	return out, nil
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	dateLayout,
}

var zonedLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-0700",
	time.RFC3339Nano,
}

// parseTimestamp parses engine timestamp text. Text without an offset is read
// in loc. zoned reports whether the text carried an offset.
func parseTimestamp(s string, loc *time.Location) (ts time.Time, zoned bool, err error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true, nil
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, false, nil
		}
	}
	ts, err = dateparse.ParseIn(s, loc)
	return ts, false, err
}

// parseTimeOfDay parses hh:mm:ss[.ffffff][±hh[:mm]].
func parseTimeOfDay(s string) (time.Duration, *time.Duration, error) {
	s = strings.TrimSpace(s)
	var off *time.Duration
	if i := strings.LastIndexAny(s, "+-"); i >= 5 {
		o, err := parseOffset(s[i:])
		if err != nil {
			return 0, nil, err
		}
		off = &o
		s = s[:i]
	}
	clock, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid time text %q", s)
	}
	d := time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute +
		time.Duration(clock.Second())*time.Second + time.Duration(clock.Nanosecond())
	return d, off, nil
}

func parseOffset(s string) (time.Duration, error) {
	sign := time.Duration(1)
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	h, err := strconv.Atoi(body[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	mins := 0
	if len(body) == 4 {
		if mins, err = strconv.Atoi(body[2:]); err != nil {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	return sign * (time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute), nil
}

// parseInterval reads both the unit form ("1 month 2 days 3 microseconds")
// and the engine's rendering with a trailing clock ("1 month 2 days
// 00:00:01.5").
func parseInterval(s string) (types.Interval, error) {
	var iv types.Interval
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if strings.Contains(tok, ":") {
			micros, err := parseClockMicros(tok)
			if err != nil {
				return iv, err
			}
			iv.Micros += micros
			continue
		}
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil || i+1 >= len(fields) {
			return iv, fmt.Errorf("invalid interval text %q", s)
		}
		i++
		switch unit := strings.TrimSuffix(strings.ToLower(fields[i]), "s"); unit {
		case "year":
			iv.Months += int32(n * 12)
		case "month", "mon":
			iv.Months += int32(n)
		case "week":
			iv.Days += int32(n * 7)
		case "day":
			iv.Days += int32(n)
		case "hour":
			iv.Micros += n * int64(time.Hour/time.Microsecond)
		case "minute", "min":
			iv.Micros += n * int64(time.Minute/time.Microsecond)
		case "second", "sec":
			iv.Micros += n * int64(time.Second/time.Microsecond)
		case "millisecond", "msec":
			iv.Micros += n * 1000
		case "microsecond", "usec", "u":
			iv.Micros += n
		default:
			return iv, fmt.Errorf("unknown interval unit %q", fields[i])
		}
	}
	return iv, nil
}

func parseClockMicros(tok string) (int64, error) {
	sign := int64(1)
	if strings.HasPrefix(tok, "-") {
		sign = -1
		tok = tok[1:]
	}
	parts := strings.Split(tok, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid interval clock %q", tok)
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	mins, err2 := strconv.ParseInt(parts[1], 10, 64)
	secPart, frac, _ := strings.Cut(parts[2], ".")
	sec, err3 := strconv.ParseInt(secPart, 10, 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		return 0, fmt.Errorf("invalid interval clock %q", tok)
	}
	var micros int64
	if frac != "" {
		frac = (frac + "000000")[:6]
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval clock %q", tok)
		}
		micros = f
	}
	total := ((h*60+mins)*60+sec)*1_000_000 + micros
	return sign * total, nil
}
