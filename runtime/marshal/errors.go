package marshal

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/satishbabariya/duckql/runtime/types"
)

// ErrMarshal is matched by every *Error.
var ErrMarshal = errors.New("marshal error")

// Error reports a value whose shape cannot be reconciled with its declared
// type. Path locates the offending field, e.g. $.items[2].price.
type Error struct {
	Op     string // "encode" or "decode"
	Path   string
	Type   string
	Got    string
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Reason)
	if e.Type != "" {
		msg += " (type " + e.Type
		if e.Got != "" {
			msg += ", got " + e.Got
		}
		msg += ")"
	}
	return msg
}

// Is checks if the error matches the target.
func (e *Error) Is(target error) bool {
	return target == ErrMarshal
}

func encodeErr(path string, t types.DataType, v types.Value, reason string) *Error {
	return &Error{Op: "encode", Path: path, Type: typeName(t), Got: v.Tag().String(), Reason: reason}
}

func decodeErr(path string, t types.DataType, cell any, reason string) *Error {
	got := "<nil>"
	if cell != nil {
		got = reflect.TypeOf(cell).String()
	}
	return &Error{Op: "decode", Path: path, Type: typeName(t), Got: got, Reason: reason}
}

func typeName(t types.DataType) string {
	if t == nil {
		return "inferred"
	}
	return t.String()
}
