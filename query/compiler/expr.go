package compiler

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/duckql/query/ast"
)

var binaryOps = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"+": true, "-": true, "*": true, "/": true, "//": true, "%": true, "||": true,
	"LIKE": true, "NOT LIKE": true, "ILIKE": true, "NOT ILIKE": true, "GLOB": true,
	"SIMILAR TO": true, "NOT SIMILAR TO": true,
	"IS DISTINCT FROM": true, "IS NOT DISTINCT FROM": true,
	"->": true, "->>": true, "@>": true, "<@": true, "&&": true,
}

func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// tableName quotes a possibly schema-qualified table.
func tableName(t *ast.Table) (string, error) {
	if t == nil || t.Name == "" {
		return "", invalid(ast.NodeTypeTable, "missing table name")
	}
	name := quoteIdent(t.Name)
	if t.Schema != "" {
		name = quoteIdent(t.Schema) + "." + name
	}
	return name, nil
}

func (b *builder) exprSQL(e ast.Expr) (string, error) {
	switch e := e.(type) {
	case nil:
		return "", invalid("", "missing expression")
	case *ast.Column:
		if e.Name == "" {
			return "", invalid(ast.NodeTypeColumn, "empty column name")
		}
		if e.Table != "" {
			return quoteIdent(e.Table) + "." + quoteIdent(e.Name), nil
		}
		return quoteIdent(e.Name), nil

	case *ast.Literal:
		return b.literalSQL(e)

	case *ast.Binary:
		op := strings.ToUpper(strings.Join(strings.Fields(e.Op), " "))
		if !binaryOps[op] {
			return "", invalid(ast.NodeTypeBinary, "operator %q is not allowed", e.Op)
		}
		left, err := b.operandSQL(e.Left)
		if err != nil {
			return "", err
		}
		right, err := b.operandSQL(e.Right)
		if err != nil {
			return "", err
		}
		return left + " " + op + " " + right, nil

	case *ast.Logical:
		if e.Op != ast.OpAND && e.Op != ast.OpOR {
			return "", invalid(ast.NodeTypeLogical, "logical operator %q is not allowed", e.Op)
		}
		if len(e.Terms) == 0 {
			return "", invalid(ast.NodeTypeLogical, "%s without terms", e.Op)
		}
		parts := make([]string, len(e.Terms))
		for i, term := range e.Terms {
			s, err := b.operandSQL(term)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, " "+string(e.Op)+" "), nil

	case *ast.Not:
		inner, err := b.exprSQL(e.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case *ast.IsNull:
		inner, err := b.operandSQL(e.Expr)
		if err != nil {
			return "", err
		}
		if e.Negate {
			return inner + " IS NOT NULL", nil
		}
		return inner + " IS NULL", nil

	case *ast.In:
		return b.inSQL(e)

	case *ast.Between:
		parts := make([]string, 3)
		for i, x := range []ast.Expr{e.Expr, e.Low, e.High} {
			s, err := b.operandSQL(x)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		kw := " BETWEEN "
		if e.Negate {
			kw = " NOT BETWEEN "
		}
		return parts[0] + kw + parts[1] + " AND " + parts[2], nil

	case *ast.Func:
		if !funcName.MatchString(e.Name) {
			return "", invalid(ast.NodeTypeFunc, "invalid function name %q", e.Name)
		}
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			s, err := b.exprSQL(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		prefix := ""
		if e.Distinct {
			prefix = "DISTINCT "
		}
		return e.Name + "(" + prefix + strings.Join(args, ", ") + ")", nil

	case *ast.Cast:
		to, err := TypeSQL(e.To)
		if err != nil {
			return "", err
		}
		inner, err := b.exprSQL(e.Expr)
		if err != nil {
			return "", err
		}
		return "CAST(" + inner + " AS " + to + ")", nil

	case *ast.Star:
		if e.Table != "" {
			return quoteIdent(e.Table) + ".*", nil
		}
		return "*", nil

	case *ast.Exists:
		if e.Query == nil {
			return "", invalid(ast.NodeTypeExists, "missing subquery")
		}
		sub, err := b.selectSQL(e.Query)
		if err != nil {
			return "", err
		}
		if e.Negate {
			return "NOT EXISTS (" + sub + ")", nil
		}
		return "EXISTS (" + sub + ")", nil

	case *ast.RawExpr:
		return b.rawSQL(e.SQL, e.Args, ast.NodeTypeRawExpr)
	}
	return "", unsupported(e)
}

// operandSQL parenthesises compound operands so precedence is explicit.
func (b *builder) operandSQL(e ast.Expr) (string, error) {
	s, err := b.exprSQL(e)
	if err != nil {
		return "", err
	}
	switch e.(type) {
	case *ast.Binary, *ast.Logical, *ast.Between, *ast.In, *ast.IsNull, *ast.RawExpr:
		return "(" + s + ")", nil
	}
	return s, nil
}

func (b *builder) inSQL(e *ast.In) (string, error) {
	if e.Subquery != nil && len(e.List) > 0 {
		return "", invalid(ast.NodeTypeIn, "IN takes either a list or a subquery")
	}
	// An empty list matches nothing.
	if e.Subquery == nil && len(e.List) == 0 {
		if e.Negate {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	left, err := b.operandSQL(e.Expr)
	if err != nil {
		return "", err
	}
	kw := " IN "
	if e.Negate {
		kw = " NOT IN "
	}
	if e.Subquery != nil {
		sub, err := b.selectSQL(e.Subquery)
		if err != nil {
			return "", err
		}
		return left + kw + "(" + sub + ")", nil
	}
	items := make([]string, len(e.List))
	for i, x := range e.List {
		s, err := b.exprSQL(x)
		if err != nil {
			return "", err
		}
		items[i] = s
	}
	return left + kw + "(" + strings.Join(items, ", ") + ")", nil
}

func (b *builder) selectItemsSQL(items []ast.SelectItem) (string, error) {
	if len(items) == 0 {
		return "*", nil
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := b.exprSQL(item.Expr)
		if err != nil {
			return "", err
		}
		if item.Alias != "" {
			s += " AS " + quoteIdent(item.Alias)
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (b *builder) tableRefSQL(ref ast.TableRef) (string, error) {
	switch r := ref.(type) {
	case *ast.Table:
		name, err := tableName(r)
		if err != nil {
			return "", err
		}
		if r.Alias != "" {
			name += " AS " + quoteIdent(r.Alias)
		}
		return name, nil
	case *ast.External:
		return b.sourceSQL(r)
	case *ast.Subquery:
		if r.Query == nil {
			return "", invalid(ast.NodeTypeSubquery, "missing subquery")
		}
		sub, err := b.selectSQL(r.Query)
		if err != nil {
			return "", err
		}
		s := "(" + sub + ")"
		if r.Alias != "" {
			s += " AS " + quoteIdent(r.Alias)
		}
		return s, nil
	case nil:
		return "", invalid("", "missing table reference")
	}
	return "", unsupported(ref)
}

func (b *builder) orderBySQL(items []ast.OrderBy) (string, error) {
	parts := make([]string, len(items))
	for i, ob := range items {
		s, err := b.exprSQL(ob.Expr)
		if err != nil {
			return "", err
		}
		switch strings.ToUpper(string(ob.Direction)) {
		case "", "ASC":
			s += " ASC"
		case "DESC":
			s += " DESC"
		default:
			return "", invalid(ast.NodeTypeSelect, "invalid sort direction %q", ob.Direction)
		}
		if ob.NullsFirst != nil {
			if *ob.NullsFirst {
				s += " NULLS FIRST"
			} else {
				s += " NULLS LAST"
			}
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

func (b *builder) joinSQL(j ast.Join) (string, error) {
	kind := ast.JoinKind(strings.ToUpper(string(j.Kind)))
	if kind == "" {
		kind = ast.JoinInner
	}
	switch kind {
	case ast.JoinInner, ast.JoinLeft, ast.JoinRight, ast.JoinFull, ast.JoinCross:
	default:
		return "", invalid(ast.NodeTypeSelect, "invalid join kind %q", j.Kind)
	}
	table, err := b.tableRefSQL(j.Table)
	if err != nil {
		return "", err
	}
	if kind == ast.JoinCross {
		if j.On != nil {
			return "", invalid(ast.NodeTypeSelect, "CROSS JOIN cannot have a condition")
		}
		return "CROSS JOIN " + table, nil
	}
	if j.On == nil {
		return "", invalid(ast.NodeTypeSelect, "%s JOIN requires a condition", kind)
	}
	on, err := b.exprSQL(j.On)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s JOIN %s ON %s", kind, table, on), nil
}
