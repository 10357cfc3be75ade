package types

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tag identifies which variant a Value holds.
type Tag int

const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagBigInt
	TagDouble
	TagText
	TagBytes
	TagDate
	TagTime
	TagTimestamp
	TagInterval
	TagUUID
	TagList
	TagMap
	TagStruct
	TagUnion
)

var tagNames = [...]string{
	TagNull:      "null",
	TagBool:      "bool",
	TagInt:       "int",
	TagBigInt:    "bigint",
	TagDouble:    "double",
	TagText:      "text",
	TagBytes:     "bytes",
	TagDate:      "date",
	TagTime:      "time",
	TagTimestamp: "timestamp",
	TagInterval:  "interval",
	TagUUID:      "uuid",
	TagList:      "list",
	TagMap:       "map",
	TagStruct:    "struct",
	TagUnion:     "union",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// Interval is a calendar interval as the engine stores it.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

// Entry is one key/value pair of a map value.
type Entry struct {
	Key   Value
	Value Value
}

// FieldValue is one named field of a struct value.
type FieldValue struct {
	Name  string
	Value Value
}

// Value is an immutable tagged variant crossing the engine boundary. The zero
// Value is null.
type Value struct {
	tag    Tag
	b      bool
	i      int64
	big    *big.Int
	f      float64
	s      string
	raw    []byte
	t      time.Time
	offset bool
	zone   int32
	iv     Interval
	id     uuid.UUID
	list   []Value
	pairs  []Entry
	fields []FieldValue
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{tag: TagBool, b: b} }

// Int wraps a fixed-width integer.
func Int(i int64) Value { return Value{tag: TagInt, i: i} }

// BigInt wraps an arbitrary-precision integer. A nil pointer yields null.
func BigInt(n *big.Int) Value {
	if n == nil {
		return Null()
	}
	return Value{tag: TagBigInt, big: new(big.Int).Set(n)}
}

// ParseBigInt parses a base-10 integer of any size.
func ParseBigInt(s string) (Value, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Value{}, fmt.Errorf("invalid integer %q", s)
	}
	return Value{tag: TagBigInt, big: n}, nil
}

// Float wraps a double.
func Float(f float64) Value { return Value{tag: TagDouble, f: f} }

// Text wraps a string.
func Text(s string) Value { return Value{tag: TagText, s: s} }

// Bytes wraps a byte sequence. The slice is copied; nil yields null.
func Bytes(b []byte) Value {
	if b == nil {
		return Null()
	}
	return Value{tag: TagBytes, raw: bytes.Clone(b)}
}

// DateOf builds a calendar date.
func DateOf(year int, month time.Month, day int) Value {
	return Value{tag: TagDate, t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// TimeOf builds a time of day from a duration since midnight. A non-nil
// offset marks the value as zone-aware (TIMETZ).
func TimeOf(sinceMidnight time.Duration, offset *time.Duration) Value {
	v := Value{tag: TagTime, i: sinceMidnight.Microseconds()}
	if offset != nil {
		v.offset = true
		v.zone = int32(offset.Seconds())
	}
	return v
}

// TimestampOf wraps an instant. When withOffset is false only the wall clock
// of t is kept and the value is naive.
func TimestampOf(t time.Time, withOffset bool) Value {
	if !withOffset {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}
	return Value{tag: TagTimestamp, t: t, offset: withOffset}
}

// IntervalOf builds an interval.
func IntervalOf(months, days int32, micros int64) Value {
	return Value{tag: TagInterval, iv: Interval{Months: months, Days: days, Micros: micros}}
}

// UUID wraps a native UUID.
func UUID(id uuid.UUID) Value { return Value{tag: TagUUID, id: id} }

// List builds a list value.
func List(items ...Value) Value {
	return Value{tag: TagList, list: append([]Value{}, items...)}
}

// MapOf builds a map value preserving pair order.
func MapOf(entries ...Entry) Value {
	return Value{tag: TagMap, pairs: append([]Entry{}, entries...)}
}

// StructOf builds a struct value preserving field order.
func StructOf(fields ...FieldValue) Value {
	return Value{tag: TagStruct, fields: append([]FieldValue{}, fields...)}
}

// UnionOf selects the member at index with payload v.
func UnionOf(index int, v Value) Value {
	return Value{tag: TagUnion, i: int64(index), list: []Value{v}}
}

// Tag reports the variant held by v.
func (v Value) Tag() Tag { return v.tag }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.tag == TagNull }

// Scalar accessors return the zero value when v holds another variant.

func (v Value) AsBool() bool         { return v.b }
func (v Value) AsInt() int64         { return v.i }
func (v Value) AsFloat() float64     { return v.f }
func (v Value) AsText() string       { return v.s }
func (v Value) AsUUID() uuid.UUID    { return v.id }
func (v Value) AsInterval() Interval { return v.iv }

// AsBigInt returns the integer as a big.Int for both integer variants.
func (v Value) AsBigInt() *big.Int {
	switch v.tag {
	case TagBigInt:
		return new(big.Int).Set(v.big)
	case TagInt:
		return big.NewInt(v.i)
	}
	return nil
}

// AsBytes returns a copy of the byte payload.
func (v Value) AsBytes() []byte { return bytes.Clone(v.raw) }

// AsTime returns the date or timestamp instant. Naive timestamps carry their
// wall clock in UTC.
func (v Value) AsTime() time.Time { return v.t }

// HasOffset reports whether a time or timestamp value is zone-aware.
func (v Value) HasOffset() bool { return v.offset }

// TimeOfDay returns the time-of-day payload and, for TIMETZ values, its UTC
// offset.
func (v Value) TimeOfDay() (time.Duration, *time.Duration) {
	d := time.Duration(v.i) * time.Microsecond
	if !v.offset {
		return d, nil
	}
	off := time.Duration(v.zone) * time.Second
	return d, &off
}

const microsPerDay = int64(24 * time.Hour / time.Microsecond)

// utcMicros normalises a TIMETZ payload to microseconds since UTC midnight.
func (v Value) utcMicros() int64 {
	m := (v.i - int64(v.zone)*int64(time.Second/time.Microsecond)) % microsPerDay
	if m < 0 {
		m += microsPerDay
	}
	return m
}

// Items returns the list elements.
func (v Value) Items() []Value { return v.list[:len(v.list):len(v.list)] }

// Entries returns the map pairs in order.
func (v Value) Entries() []Entry { return v.pairs[:len(v.pairs):len(v.pairs)] }

// Fields returns the struct fields in order.
func (v Value) Fields() []FieldValue { return v.fields[:len(v.fields):len(v.fields)] }

// Field looks up a struct field by name.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Union returns the active member index and payload.
func (v Value) Union() (int, Value) {
	if v.tag != TagUnion {
		return -1, Value{}
	}
	return int(v.i), v.list[0]
}

// Equal compares two values structurally. Integers compare by magnitude
// regardless of width. Zone-aware timestamps compare by instant and
// zone-aware times by their UTC time of day.
func (v Value) Equal(o Value) bool {
	if isInteger(v.tag) && isInteger(o.tag) {
		return v.AsBigInt().Cmp(o.AsBigInt()) == 0
	}
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case TagNull:
		return true
	case TagBool:
		return v.b == o.b
	case TagDouble:
		return v.f == o.f
	case TagText:
		return v.s == o.s
	case TagBytes:
		return bytes.Equal(v.raw, o.raw)
	case TagDate:
		return v.t.Equal(o.t)
	case TagTime:
		if v.offset != o.offset {
			return false
		}
		if !v.offset {
			return v.i == o.i
		}
		return v.utcMicros() == o.utcMicros()
	case TagTimestamp:
		return v.offset == o.offset && v.t.Equal(o.t)
	case TagInterval:
		return v.iv == o.iv
	case TagUUID:
		return v.id == o.id
	case TagList:
		return equalValues(v.list, o.list)
	case TagUnion:
		return v.i == o.i && equalValues(v.list, o.list)
	case TagMap:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for i := range v.pairs {
			if !v.pairs[i].Key.Equal(o.pairs[i].Key) || !v.pairs[i].Value.Equal(o.pairs[i].Value) {
				return false
			}
		}
		return true
	case TagStruct:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Name != o.fields[i].Name || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

func isInteger(t Tag) bool { return t == TagInt || t == TagBigInt }

func equalValues(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String renders v for diagnostics. It is not SQL.
func (v Value) String() string {
	switch v.tag {
	case TagNull:
		return "NULL"
	case TagBool:
		return fmt.Sprint(v.b)
	case TagInt:
		return fmt.Sprint(v.i)
	case TagBigInt:
		return v.big.String()
	case TagDouble:
		return fmt.Sprint(v.f)
	case TagText:
		return fmt.Sprintf("%q", v.s)
	case TagBytes:
		return fmt.Sprintf("x'%x'", v.raw)
	case TagDate:
		return v.t.Format(time.DateOnly)
	case TagTime:
		d, off := v.TimeOfDay()
		s := time.Time{}.Add(d).Format("15:04:05.999999")
		if off != nil {
			s += time.Time{}.In(time.FixedZone("", int(off.Seconds()))).Format("-07:00")
		}
		return s
	case TagTimestamp:
		if v.offset {
			return v.t.Format("2006-01-02 15:04:05.999999-07:00")
		}
		return v.t.Format("2006-01-02 15:04:05.999999")
	case TagInterval:
		return fmt.Sprintf("%d months %d days %d microseconds", v.iv.Months, v.iv.Days, v.iv.Micros)
	case TagUUID:
		return v.id.String()
	case TagList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TagMap:
		parts := make([]string, len(v.pairs))
		for i, p := range v.pairs {
			parts[i] = p.Key.String() + "=" + p.Value.String()
		}
		return "MAP{" + strings.Join(parts, ", ") + "}"
	case TagStruct:
		parts := make([]string, len(v.fields))
		for i, f := range v.fields {
			parts[i] = f.Name + ": " + f.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TagUnion:
		return fmt.Sprintf("union#%d(%s)", v.i, v.list[0].String())
	}
	return "?"
}
