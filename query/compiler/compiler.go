// Package compiler compiles query AST into DuckDB SQL with an ordered
// parameter list. Compilation is a pure function of the tree.
package compiler

import (
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/types"
)

// PlaceholderStyle selects how bound parameters are written.
type PlaceholderStyle int

const (
	// Dollar writes $1, $2, ...
	Dollar PlaceholderStyle = iota
	// Question writes ? for every parameter.
	Question
)

func (s PlaceholderStyle) String() string {
	if s == Question {
		return "question"
	}
	return "dollar"
}

// ParsePlaceholderStyle accepts "dollar", "$", "question" or "?".
func ParsePlaceholderStyle(s string) (PlaceholderStyle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dollar", "$":
		return Dollar, nil
	case "question", "?":
		return Question, nil
	}
	return Dollar, fmt.Errorf("unknown placeholder style %q", s)
}

// Param is one bound parameter. Type is the declared type used to encode
// Value; nil means the type is inferred from the value.
type Param struct {
	Value types.Value
	Type  types.DataType
}

// Query is a compiled statement.
type Query struct {
	SQL    string
	Params []Param
	// Returning reports whether SQL projects rows from a write.
	Returning bool
	Kind      ast.NodeType
	// Columns holds declared result types by column name. They take
	// precedence over the type the engine reports.
	Columns map[string]types.DataType
}

// Values returns the parameter values in placeholder order.
func (q *Query) Values() []types.Value {
	vals := make([]types.Value, len(q.Params))
	for i, p := range q.Params {
		vals[i] = p.Value
	}
	return vals
}

// ReturnsRows reports whether executing q yields a result set.
func (q *Query) ReturnsRows() bool {
	switch q.Kind {
	case ast.NodeTypeSelect:
		return true
	case ast.NodeTypeRaw:
		head := strings.ToUpper(strings.TrimSpace(q.SQL))
		for _, kw := range []string{"SELECT", "WITH", "FROM", "VALUES", "SHOW", "DESCRIBE", "PRAGMA", "EXPLAIN", "SUMMARIZE", "TABLE"} {
			if strings.HasPrefix(head, kw) {
				return true
			}
		}
		return strings.Contains(head, " RETURNING ")
	}
	return q.Returning
}

// Compiler compiles statements. It holds no mutable state after
// construction and is safe for concurrent use.
type Compiler struct {
	placeholder PlaceholderStyle
	returning   bool
	fallback    string
	strict      bool
	readers     map[string]string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPlaceholder sets the placeholder style.
func WithPlaceholder(style PlaceholderStyle) Option {
	return func(c *Compiler) { c.placeholder = style }
}

// WithoutReturning omits RETURNING clauses for engines that lack them.
func WithoutReturning() Option {
	return func(c *Compiler) { c.returning = false }
}

// WithFallbackReader sets the table function used for unrecognised source
// extensions.
func WithFallbackReader(fn string) Option {
	return func(c *Compiler) { c.fallback = fn }
}

// WithStrictSources rejects sources whose extension has no reader.
func WithStrictSources() Option {
	return func(c *Compiler) { c.strict = true }
}

// WithReader maps a file extension (without dot) to a table function.
func WithReader(ext, fn string) Option {
	return func(c *Compiler) { c.readers[strings.ToLower(strings.TrimPrefix(ext, "."))] = fn }
}

// New creates a Compiler. Reader function names are validated here so
// compilation never emits an unchecked identifier.
func New(opts ...Option) (*Compiler, error) {
	c := &Compiler{
		returning: true,
		fallback:  defaultFallbackReader,
		readers:   make(map[string]string, len(defaultReaders)),
	}
	for ext, fn := range defaultReaders {
		c.readers[ext] = fn
	}
	for _, opt := range opts {
		opt(c)
	}
	if !funcName.MatchString(c.fallback) {
		return nil, fmt.Errorf("invalid fallback reader %q", c.fallback)
	}
	for ext, fn := range c.readers {
		if !funcName.MatchString(fn) {
			return nil, fmt.Errorf("invalid reader %q for .%s", fn, ext)
		}
	}
	return c, nil
}

// MustNew is like New but panics on an invalid option.
func MustNew(opts ...Option) *Compiler {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Placeholder returns the configured placeholder style.
func (c *Compiler) Placeholder() PlaceholderStyle { return c.placeholder }

// Compile compiles a statement into SQL and parameters.
func (c *Compiler) Compile(stmt ast.Statement) (*Query, error) {
	if stmt == nil {
		return nil, &Error{Node: "", Reason: "nil statement", Cause: ErrInvalidQuery}
	}
	b := &builder{c: c}
	var (
		sql       string
		returning bool
		err       error
	)
	switch s := stmt.(type) {
	case *ast.Select:
		sql, err = b.selectSQL(s)
	case *ast.Insert:
		sql, returning, err = b.insertSQL(s)
	case *ast.Update:
		sql, returning, err = b.updateSQL(s)
	case *ast.Delete:
		sql, returning, err = b.deleteSQL(s)
	case *ast.CreateTable:
		sql, err = b.createTableSQL(s)
	case *ast.CreateView:
		sql, err = b.createViewSQL(s)
	case *ast.DropView:
		sql, err = b.dropViewSQL(s)
	case *ast.Raw:
		sql, err = b.rawSQL(s.SQL, s.Args, ast.NodeTypeRaw)
	default:
		return nil, unsupported(stmt)
	}
	if err != nil {
		return nil, err
	}
	q := &Query{SQL: sql, Params: b.params, Returning: returning, Kind: stmt.Type()}
	switch s := stmt.(type) {
	case *ast.Select:
		q.Columns = declaredColumns(s.Columns)
	case *ast.Insert:
		if returning {
			q.Columns = declaredColumns(s.Returning)
		}
	case *ast.Update:
		if returning {
			q.Columns = declaredColumns(s.Returning)
		}
	case *ast.Delete:
		if returning {
			q.Columns = declaredColumns(s.Returning)
		}
	case *ast.Raw:
		if len(s.Columns) > 0 {
			q.Columns = maps.Clone(s.Columns)
		}
	}
	return q, nil
}

// declaredColumns collects the result types of aliased casts and typed
// literals in a projection.
func declaredColumns(items []ast.SelectItem) map[string]types.DataType {
	var out map[string]types.DataType
	for _, item := range items {
		if item.Alias == "" {
			continue
		}
		var t types.DataType
		switch e := item.Expr.(type) {
		case *ast.Cast:
			t = e.To
		case *ast.Literal:
			t = e.DataType
		}
		if t == nil {
			continue
		}
		if out == nil {
			out = make(map[string]types.DataType)
		}
		out[item.Alias] = t
	}
	return out
}

// builder accumulates parameters for one compilation.
type builder struct {
	c      *Compiler
	params []Param
}

func (b *builder) bind(v types.Value, t types.DataType) string {
	b.params = append(b.params, Param{Value: v, Type: t})
	if b.c.placeholder == Question {
		return "?"
	}
	return "$" + strconv.Itoa(len(b.params))
}

var (
	funcName  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	optionKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)
