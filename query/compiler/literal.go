package compiler

import (
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/marshal"
	"github.com/satishbabariya/duckql/runtime/types"
)

// TypeSQL renders a data type in engine syntax after validating it.
func TypeSQL(t types.DataType) (string, error) {
	if err := types.Validate(t); err != nil {
		return "", &Error{Node: ast.NodeTypeCast, Reason: err.Error(), Cause: ErrInvalidQuery}
	}
	return t.String(), nil
}

// literalSQL binds a literal. Scalars become one placeholder; composite
// values expand into engine literal syntax whose leaves are typed
// placeholders, with the whole expression cast to the declared type.
func (b *builder) literalSQL(l *ast.Literal) (string, error) {
	t := l.DataType
	if t != nil {
		if _, err := TypeSQL(t); err != nil {
			return "", err
		}
	}
	if err := marshal.Validate(l.Value, t); err != nil {
		return "", err
	}
	if t == nil {
		if l.Value.IsNull() || !isCompositeValue(l.Value) {
			return b.bind(l.Value, nil), nil
		}
		inferred, err := types.InferType(l.Value)
		if err != nil {
			return "", invalid(ast.NodeTypeLiteral, "%v", err)
		}
		t = inferred
	}
	return b.valueSQL(l.Value, t, true), nil
}

func isCompositeValue(v types.Value) bool {
	switch v.Tag() {
	case types.TagList, types.TagMap, types.TagStruct, types.TagUnion:
		return true
	}
	return false
}

// valueSQL expands a validated value. top marks the outermost level, which
// carries the cast to the full declared type.
func (b *builder) valueSQL(v types.Value, t types.DataType, top bool) string {
	if v.IsNull() {
		return "CAST(" + b.bind(v, t) + " AS " + t.String() + ")"
	}
	if types.IsJSON(t) {
		return "CAST(" + b.bind(v, t) + " AS JSON)"
	}

	var expr string
	switch t := t.(type) {
	case types.Scalar:
		return "CAST(" + b.bind(v, t) + " AS " + t.String() + ")"
	case types.Geometry:
		if v.Tag() == types.TagBytes {
			return "ST_GeomFromWKB(" + b.bind(v, t) + ")"
		}
		return "ST_GeomFromText(" + b.bind(v, t) + ")"
	case types.Array:
		expr = b.listSQL(v.Items(), t.Item)
		if len(v.Items()) == 0 {
			top = true
		}
	case types.Vector:
		expr = b.listSQL(v.Items(), types.Scalar{Name: "FLOAT"})
		if len(v.Items()) == 0 {
			top = true
		}
	case types.Struct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fv, ok := fieldValue(v, f.Name)
			if !ok {
				fv = types.Null()
			}
			parts[i] = pq.QuoteLiteral(f.Name) + ": " + b.valueSQL(fv, f.Type, false)
		}
		expr = "{" + strings.Join(parts, ", ") + "}"
	case types.Map:
		parts := make([]string, len(v.Entries()))
		for i, e := range v.Entries() {
			parts[i] = b.valueSQL(e.Key, t.Key, false) + ": " + b.valueSQL(e.Value, t.Value, false)
		}
		expr = "MAP {" + strings.Join(parts, ", ") + "}"
		if len(parts) == 0 {
			top = true
		}
	case types.Union:
		idx, payload := v.Union()
		member := t.Members[idx]
		expr = "union_value(" + quoteIdent(member.Name) + " := " + b.valueSQL(payload, member.Type, false) + ")"
		top = true
	}
	if top {
		return "CAST(" + expr + " AS " + t.String() + ")"
	}
	return expr
}

func (b *builder) listSQL(items []types.Value, item types.DataType) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = b.valueSQL(v, item, false)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func fieldValue(v types.Value, name string) (types.Value, bool) {
	for _, f := range v.Fields() {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return types.Value{}, false
}
