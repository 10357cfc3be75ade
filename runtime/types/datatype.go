// Package types provides the value model and data-type tree shared by the
// compiler, the marshaller and the session layer.
package types

import (
	"fmt"
	"strings"
)

// TypeKind identifies the variant of a DataType.
type TypeKind int

const (
	KindScalar TypeKind = iota
	KindArray
	KindStruct
	KindMap
	KindUnion
	KindGeometry
	KindVector
)

func (k TypeKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindMap:
		return "map"
	case KindUnion:
		return "union"
	case KindGeometry:
		return "geometry"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DataType is a node of the engine type tree. The set of implementations is
// closed: Scalar, Array, Struct, Map, Union, Geometry and Vector.
type DataType interface {
	Kind() TypeKind
	String() string
	dataType()
}

// Scalar is a leaf engine type such as INTEGER or DECIMAL(18,3).
type Scalar struct {
	Name   string
	Params []int
}

// Array is a LIST when Size is zero and a fixed-size ARRAY otherwise.
type Array struct {
	Item DataType
	Size int
}

// Field is a named member of a struct or union type.
type Field struct {
	Name string
	Type DataType
}

// Struct is a STRUCT with ordered named fields.
type Struct struct {
	Fields []Field
}

// Map is a MAP(key, value) type.
type Map struct {
	Key   DataType
	Value DataType
}

// Union is a tagged UNION with ordered named members.
type Union struct {
	Members []Field
}

// Geometry is the spatial extension GEOMETRY type.
type Geometry struct{}

// Vector is a FLOAT[n] embedding. Dimensions of zero accepts any length.
type Vector struct {
	Dimensions int
}

func (Scalar) Kind() TypeKind   { return KindScalar }
func (Array) Kind() TypeKind    { return KindArray }
func (Struct) Kind() TypeKind   { return KindStruct }
func (Map) Kind() TypeKind      { return KindMap }
func (Union) Kind() TypeKind    { return KindUnion }
func (Geometry) Kind() TypeKind { return KindGeometry }
func (Vector) Kind() TypeKind   { return KindVector }

func (Scalar) dataType()   {}
func (Array) dataType()    {}
func (Struct) dataType()   {}
func (Map) dataType()      {}
func (Union) dataType()    {}
func (Geometry) dataType() {}
func (Vector) dataType()   {}

// String renders the scalar using its canonical name.
func (s Scalar) String() string {
	name := CanonicalName(s.Name)
	if len(s.Params) == 0 {
		return name
	}
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(params, ","))
}

func (a Array) String() string {
	if a.Size > 0 {
		return fmt.Sprintf("%s[%d]", typeString(a.Item), a.Size)
	}
	return typeString(a.Item) + "[]"
}

func (s Struct) String() string {
	return "STRUCT(" + fieldsString(s.Fields) + ")"
}

func (m Map) String() string {
	return fmt.Sprintf("MAP(%s, %s)", typeString(m.Key), typeString(m.Value))
}

func (u Union) String() string {
	return "UNION(" + fieldsString(u.Members) + ")"
}

func (Geometry) String() string { return "GEOMETRY" }

func (v Vector) String() string {
	if v.Dimensions > 0 {
		return fmt.Sprintf("FLOAT[%d]", v.Dimensions)
	}
	return "FLOAT[]"
}

func typeString(t DataType) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func fieldsString(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = quoteName(f.Name) + " " + typeString(f.Type)
	}
	return strings.Join(parts, ", ")
}

func quoteName(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Validate checks that the type tree is well formed: known scalar names,
// non-empty structs and unions, unique member names and positive sizes.
func Validate(t DataType) error {
	return validate(t, "$")
}

func validate(t DataType, path string) error {
	switch t := t.(type) {
	case nil:
		return fmt.Errorf("%s: missing type", path)
	case Scalar:
		info, ok := LookupScalar(t.Name)
		if !ok {
			return fmt.Errorf("%s: unknown type %q", path, t.Name)
		}
		if len(t.Params) > info.MaxParams {
			return fmt.Errorf("%s: type %s takes at most %d parameters", path, info.Name, info.MaxParams)
		}
		for _, p := range t.Params {
			if p < 0 {
				return fmt.Errorf("%s: negative parameter for %s", path, info.Name)
			}
		}
		return nil
	case Array:
		if t.Size < 0 {
			return fmt.Errorf("%s: negative array size", path)
		}
		return validate(t.Item, path+"[]")
	case Struct:
		if len(t.Fields) == 0 {
			return fmt.Errorf("%s: struct has no fields", path)
		}
		return validateFields(t.Fields, path)
	case Map:
		if err := validate(t.Key, path+".key"); err != nil {
			return err
		}
		return validate(t.Value, path+".value")
	case Union:
		if len(t.Members) == 0 {
			return fmt.Errorf("%s: union has no alternatives", path)
		}
		return validateFields(t.Members, path)
	case Geometry:
		return nil
	case Vector:
		if t.Dimensions < 0 {
			return fmt.Errorf("%s: negative vector dimensions", path)
		}
		return nil
	default:
		return fmt.Errorf("%s: unsupported type node %T", path, t)
	}
}

func validateFields(fields []Field, path string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("%s: empty member name", path)
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return fmt.Errorf("%s: duplicate member %q", path, f.Name)
		}
		seen[key] = true
		if err := validate(f.Type, path+"."+f.Name); err != nil {
			return err
		}
	}
	return nil
}

// IsComposite reports whether t is a nested type whose values are lists,
// structs, maps or unions.
func IsComposite(t DataType) bool {
	switch t.(type) {
	case Array, Struct, Map, Union, Vector:
		return true
	}
	return false
}

// IsJSON reports whether t is the JSON scalar.
func IsJSON(t DataType) bool {
	s, ok := t.(Scalar)
	return ok && CanonicalName(s.Name) == "JSON"
}

// MemberIndex returns the position of the named union member.
func (u Union) MemberIndex(name string) int {
	for i, m := range u.Members {
		if strings.EqualFold(m.Name, name) {
			return i
		}
	}
	return -1
}

// Convenience constructors for common scalars.
var (
	Boolean      = Scalar{Name: "BOOLEAN"}
	Integer      = Scalar{Name: "INTEGER"}
	BigIntType   = Scalar{Name: "BIGINT"}
	HugeInt      = Scalar{Name: "HUGEINT"}
	Double       = Scalar{Name: "DOUBLE"}
	Varchar      = Scalar{Name: "VARCHAR"}
	Blob         = Scalar{Name: "BLOB"}
	Date         = Scalar{Name: "DATE"}
	Time         = Scalar{Name: "TIME"}
	TimeTZ       = Scalar{Name: "TIMETZ"}
	Timestamp    = Scalar{Name: "TIMESTAMP"}
	TimestampTZ  = Scalar{Name: "TIMESTAMPTZ"}
	IntervalType = Scalar{Name: "INTERVAL"}
	UUIDType     = Scalar{Name: "UUID"}
	JSON         = Scalar{Name: "JSON"}
)

// ListType returns a variable-length list of item.
func ListType(item DataType) Array { return Array{Item: item} }

// StructType builds a struct from fields.
func StructType(fields ...Field) Struct { return Struct{Fields: fields} }

// F is shorthand for a Field.
func F(name string, t DataType) Field { return Field{Name: name, Type: t} }
