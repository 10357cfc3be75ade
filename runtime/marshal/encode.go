package marshal

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/types"
)

// Encode converts v into the native parameter shape for a column declared as
// t. A nil t infers the type from v. Null encodes to nil for every type.
func (m *Marshaller) Encode(v types.Value, t types.DataType) (any, error) {
	if t == nil {
		if v.IsNull() {
			return nil, nil
		}
		inferred, err := types.InferType(v)
		if err != nil {
			return nil, encodeErr("$", nil, v, err.Error())
		}
		t = inferred
	}
	return m.encode(v, t, "$")
}

// Validate reports whether v can be encoded for t without producing the
// native value.
func (m *Marshaller) Validate(v types.Value, t types.DataType) error {
	_, err := m.Encode(v, t)
	return err
}

// Validate checks v against t using the default options.
func Validate(v types.Value, t types.DataType) error {
	return Default.Validate(v, t)
}

func (m *Marshaller) encode(v types.Value, t types.DataType, path string) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch t := t.(type) {
	case types.Scalar:
		return m.encodeScalar(v, t, path)
	case types.Array:
		if v.Tag() != types.TagList {
			return nil, encodeErr(path, t, v, "expected a list")
		}
		items := v.Items()
		if t.Size > 0 && len(items) != t.Size {
			return nil, encodeErr(path, t, v, "array length "+strconv.Itoa(len(items))+" does not match size "+strconv.Itoa(t.Size))
		}
		out := make([]any, len(items))
		for i, item := range items {
			enc, err := m.encode(item, t.Item, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case types.Vector:
		return encodeVector(v, t, path)
	case types.Struct:
		if v.Tag() != types.TagStruct {
			return nil, encodeErr(path, t, v, "expected a struct")
		}
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			out[f.Name] = nil
		}
		for _, fv := range v.Fields() {
			f, ok := lookupField(t.Fields, fv.Name)
			if !ok {
				return nil, encodeErr(fieldPath(path, fv.Name), t, v, "unknown struct field")
			}
			enc, err := m.encode(fv.Value, f.Type, fieldPath(path, fv.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = enc
		}
		return out, nil
	case types.Map:
		if v.Tag() != types.TagMap {
			return nil, encodeErr(path, t, v, "expected a map")
		}
		out := make([]engine.MapEntry, 0, len(v.Entries()))
		for _, e := range v.Entries() {
			p := keyPath(path, e.Key.String())
			if e.Key.IsNull() {
				return nil, encodeErr(p, t, v, "map keys cannot be null")
			}
			k, err := m.encode(e.Key, t.Key, p)
			if err != nil {
				return nil, err
			}
			val, err := m.encode(e.Value, t.Value, p)
			if err != nil {
				return nil, err
			}
			out = append(out, engine.MapEntry{Key: k, Value: val})
		}
		return out, nil
	case types.Union:
		if v.Tag() != types.TagUnion {
			return nil, encodeErr(path, t, v, "expected a union")
		}
		idx, payload := v.Union()
		if idx < 0 || idx >= len(t.Members) {
			return nil, encodeErr(path, t, v, "union member index "+strconv.Itoa(idx)+" out of range")
		}
		member := t.Members[idx]
		enc, err := m.encode(payload, member.Type, fieldPath(path, member.Name))
		if err != nil {
			return nil, err
		}
		return engine.Union{Tag: member.Name, Value: enc}, nil
	case types.Geometry:
		switch v.Tag() {
		case types.TagText:
			return v.AsText(), nil
		case types.TagBytes:
			return v.AsBytes(), nil
		}
		return nil, encodeErr(path, t, v, "geometry must be WKT text or WKB bytes")
	case nil:
		return nil, encodeErr(path, nil, v, "missing type")
	}
	return nil, encodeErr(path, t, v, "unsupported type")
}

func lookupField(fields []types.Field, name string) (types.Field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return types.Field{}, false
}

func encodeVector(v types.Value, t types.Vector, path string) (any, error) {
	if v.Tag() != types.TagList {
		return nil, encodeErr(path, t, v, "expected a list of floats")
	}
	items := v.Items()
	if t.Dimensions > 0 && len(items) != t.Dimensions {
		return nil, encodeErr(path, t, v, "vector has "+strconv.Itoa(len(items))+" dimensions, want "+strconv.Itoa(t.Dimensions))
	}
	out := make([]float32, len(items))
	for i, item := range items {
		switch item.Tag() {
		case types.TagDouble:
			out[i] = float32(item.AsFloat())
		case types.TagInt:
			if !types.ExactFloat(item.AsInt()) {
				return nil, encodeErr(indexPath(path, i), t, item, "integer not exactly representable as float")
			}
			out[i] = float32(item.AsInt())
		default:
			return nil, encodeErr(indexPath(path, i), t, item, "vector elements must be numbers")
		}
	}
	return out, nil
}

func (m *Marshaller) encodeScalar(v types.Value, t types.Scalar, path string) (any, error) {
	info, ok := types.LookupScalar(t.Name)
	if !ok {
		return nil, encodeErr(path, t, v, "unknown scalar type")
	}
	switch info.Class {
	case types.ClassBool:
		if v.Tag() != types.TagBool {
			return nil, encodeErr(path, t, v, "expected a boolean")
		}
		return v.AsBool(), nil

	case types.ClassInt, types.ClassHugeInt:
		n := v.AsBigInt()
		if n == nil {
			return nil, encodeErr(path, t, v, "expected an integer")
		}
		if !info.InRange(n) {
			return nil, encodeErr(path, t, v, "integer "+n.String()+" out of range")
		}
		if info.Class == types.ClassHugeInt {
			if m.opts.TextFraming {
				return n.String(), nil
			}
			return n, nil
		}
		if n.IsInt64() {
			return n.Int64(), nil
		}
		return n.Uint64(), nil

	case types.ClassFloat:
		switch v.Tag() {
		case types.TagDouble:
			return v.AsFloat(), nil
		case types.TagInt:
			if !types.ExactFloat(v.AsInt()) {
				return nil, encodeErr(path, t, v, "integer not exactly representable as float")
			}
			return float64(v.AsInt()), nil
		}
		return nil, encodeErr(path, t, v, "expected a number")

	case types.ClassDecimal:
		// Decimals are text on both sides so the exact digits survive.
		if v.Tag() != types.TagText {
			return nil, encodeErr(path, t, v, "decimals are bound from decimal text")
		}
		if _, ok := new(big.Rat).SetString(v.AsText()); !ok {
			return nil, encodeErr(path, t, v, "invalid decimal text")
		}
		return v.AsText(), nil

	case types.ClassText:
		if v.Tag() != types.TagText {
			return nil, encodeErr(path, t, v, "expected text")
		}
		return v.AsText(), nil

	case types.ClassBlob:
		if v.Tag() != types.TagBytes {
			return nil, encodeErr(path, t, v, "expected bytes")
		}
		if m.opts.TextFraming {
			return escapeBlob(v.AsBytes()), nil
		}
		return v.AsBytes(), nil

	case types.ClassDate:
		if v.Tag() != types.TagDate {
			return nil, encodeErr(path, t, v, "expected a date")
		}
		return v.AsTime().Format(dateLayout), nil

	case types.ClassTime, types.ClassTimeTZ:
		if v.Tag() != types.TagTime {
			return nil, encodeErr(path, t, v, "expected a time of day")
		}
		return m.encodeTime(v, info.Class == types.ClassTimeTZ), nil

	case types.ClassTimestamp:
		if v.Tag() != types.TagTimestamp {
			return nil, encodeErr(path, t, v, "expected a timestamp")
		}
		ts := v.AsTime()
		if v.HasOffset() {
			ts = ts.UTC()
		}
		if info.Name == "TIMESTAMP_NS" {
			return ts.Format(timestampNSLayout), nil
		}
		return ts.Format(timestampLayout), nil

	case types.ClassTimestampTZ:
		if v.Tag() != types.TagTimestamp {
			return nil, encodeErr(path, t, v, "expected a timestamp")
		}
		ts := v.AsTime()
		if !v.HasOffset() {
			ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), m.opts.Location)
		}
		return ts.Format(timestampLayout + offsetLayout), nil

	case types.ClassInterval:
		if v.Tag() != types.TagInterval {
			return nil, encodeErr(path, t, v, "expected an interval")
		}
		return formatInterval(v.AsInterval()), nil

	case types.ClassUUID:
		switch v.Tag() {
		case types.TagUUID:
			return v.AsUUID().String(), nil
		case types.TagText:
			id, err := uuid.Parse(v.AsText())
			if err != nil {
				return nil, encodeErr(path, t, v, "invalid uuid text")
			}
			return id.String(), nil
		}
		return nil, encodeErr(path, t, v, "expected a uuid")

	case types.ClassJSON:
		s, err := encodeJSON(v, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, encodeErr(path, t, v, "unsupported scalar class")
}

// encodeTime renders a time of day. Naive values bound to TIMETZ take the
// offset of the configured location on 2000-01-01.
func (m *Marshaller) encodeTime(v types.Value, zoned bool) string {
	d, off := v.TimeOfDay()
	if !zoned {
		if off != nil {
			d = (d - *off) % (24 * time.Hour)
			if d < 0 {
				d += 24 * time.Hour
			}
		}
		return formatTimeOfDay(d)
	}
	secs := 0
	if off != nil {
		secs = int(off.Seconds())
	} else {
		_, secs = time.Date(2000, 1, 1, 0, 0, 0, 0, m.opts.Location).Zone()
	}
	return formatTimeOfDay(d) + formatOffset(secs)
}

// formatInterval renders an interval in a form the engine casts from text.
func formatInterval(iv types.Interval) string {
	return strconv.Itoa(int(iv.Months)) + " months " +
		strconv.Itoa(int(iv.Days)) + " days " +
		strconv.FormatInt(iv.Micros, 10) + " microseconds"
}
