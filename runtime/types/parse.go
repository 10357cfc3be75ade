package types

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// typeExpr is the grammar for engine column-type names as reported in result
// metadata, e.g. STRUCT(a INTEGER, b VARCHAR)[] or MAP(VARCHAR, INTEGER).
type typeExpr struct {
	Struct *memberList `parser:"(  ( \"STRUCT\" | \"ROW\" ) \"(\" @@ \")\""`
	Union  *memberList `parser:" | \"UNION\" \"(\" @@ \")\""`
	Map    *mapArgs    `parser:" | \"MAP\" \"(\" @@ \")\""`
	Geo    bool        `parser:" | @\"GEOMETRY\""`
	Scalar *scalarName `parser:" | @@ )"`
	Dims   []*dim      `parser:"@@*"`
}

type memberList struct {
	Members []*member `parser:"@@ ( \",\" @@ )*"`
}

type member struct {
	Name string    `parser:"@(Ident | QuotedIdent)"`
	Type *typeExpr `parser:"@@"`
}

type mapArgs struct {
	Key   *typeExpr `parser:"@@ \",\""`
	Value *typeExpr `parser:"@@"`
}

type scalarName struct {
	Words  []string `parser:"@Ident+"`
	Params []int    `parser:"( \"(\" @Int ( \",\" @Int )* \")\" )?"`
}

type dim struct {
	Open string `parser:"@\"[\""`
	Size int    `parser:"@Int? \"]\""`
}

var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[(),\[\]]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var typeParser = participle.MustBuild[typeExpr](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// ParseDataType parses an engine type name into a DataType and validates it.
func ParseDataType(name string) (DataType, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("empty type name")
	}
	expr, err := typeParser.ParseString("", name)
	if err != nil {
		return nil, fmt.Errorf("parse type %q: %w", name, err)
	}
	t, err := expr.toDataType()
	if err != nil {
		return nil, fmt.Errorf("parse type %q: %w", name, err)
	}
	if err := Validate(t); err != nil {
		return nil, fmt.Errorf("parse type %q: %w", name, err)
	}
	return t, nil
}

// MustParseDataType is like ParseDataType but panics on error. Intended for
// package-level declarations and tests.
func MustParseDataType(name string) DataType {
	t, err := ParseDataType(name)
	if err != nil {
		panic(err)
	}
	return t
}

func (e *typeExpr) toDataType() (DataType, error) {
	var base DataType
	switch {
	case e.Struct != nil:
		fields, err := e.Struct.toFields()
		if err != nil {
			return nil, err
		}
		base = Struct{Fields: fields}
	case e.Union != nil:
		members, err := e.Union.toFields()
		if err != nil {
			return nil, err
		}
		base = Union{Members: members}
	case e.Map != nil:
		k, err := e.Map.Key.toDataType()
		if err != nil {
			return nil, err
		}
		v, err := e.Map.Value.toDataType()
		if err != nil {
			return nil, err
		}
		base = Map{Key: k, Value: v}
	case e.Geo:
		base = Geometry{}
	case e.Scalar != nil:
		base = Scalar{
			Name:   CanonicalName(strings.Join(e.Scalar.Words, " ")),
			Params: e.Scalar.Params,
		}
	default:
		return nil, fmt.Errorf("empty type expression")
	}
	for _, d := range e.Dims {
		base = Array{Item: base, Size: d.Size}
	}
	return base, nil
}

func (l *memberList) toFields() ([]Field, error) {
	fields := make([]Field, len(l.Members))
	for i, m := range l.Members {
		t, err := m.Type.toDataType()
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m.Name, err)
		}
		fields[i] = Field{Name: unquoteIdent(m.Name), Type: t}
	}
	return fields, nil
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
