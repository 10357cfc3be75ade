package compiler

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/marshal"
	"github.com/satishbabariya/duckql/runtime/types"
)

func (b *builder) selectSQL(s *ast.Select) (string, error) {
	var parts []string

	cols, err := b.selectItemsSQL(s.Columns)
	if err != nil {
		return "", err
	}
	if s.Distinct {
		parts = append(parts, "SELECT DISTINCT "+cols)
	} else {
		parts = append(parts, "SELECT "+cols)
	}

	if s.From != nil {
		from, err := b.tableRefSQL(s.From)
		if err != nil {
			return "", err
		}
		parts = append(parts, "FROM "+from)
	} else if len(s.Joins) > 0 {
		return "", invalid(ast.NodeTypeSelect, "joins require a FROM clause")
	}

	for _, j := range s.Joins {
		js, err := b.joinSQL(j)
		if err != nil {
			return "", err
		}
		parts = append(parts, js)
	}

	if s.Where != nil {
		where, err := b.exprSQL(s.Where)
		if err != nil {
			return "", err
		}
		parts = append(parts, "WHERE "+where)
	}

	if len(s.GroupBy) > 0 {
		groups := make([]string, len(s.GroupBy))
		for i, g := range s.GroupBy {
			gs, err := b.exprSQL(g)
			if err != nil {
				return "", err
			}
			groups[i] = gs
		}
		parts = append(parts, "GROUP BY "+strings.Join(groups, ", "))
	}

	if s.Having != nil {
		if len(s.GroupBy) == 0 {
			return "", invalid(ast.NodeTypeSelect, "HAVING requires GROUP BY")
		}
		having, err := b.exprSQL(s.Having)
		if err != nil {
			return "", err
		}
		parts = append(parts, "HAVING "+having)
	}

	if len(s.OrderBy) > 0 {
		order, err := b.orderBySQL(s.OrderBy)
		if err != nil {
			return "", err
		}
		parts = append(parts, "ORDER BY "+order)
	}

	// LIMIT
	if s.Limit != nil {
		if *s.Limit < 0 {
			return "", invalid(ast.NodeTypeSelect, "negative LIMIT")
		}
		parts = append(parts, "LIMIT "+b.bind(types.Int(*s.Limit), types.BigIntType))
	}

	// OFFSET
	if s.Offset != nil {
		if *s.Offset < 0 {
			return "", invalid(ast.NodeTypeSelect, "negative OFFSET")
		}
		parts = append(parts, "OFFSET "+b.bind(types.Int(*s.Offset), types.BigIntType))
	}

	return strings.Join(parts, " "), nil
}

func (b *builder) insertSQL(s *ast.Insert) (string, bool, error) {
	var parts []string

	table, err := tableName(s.Table)
	if err != nil {
		return "", false, err
	}
	switch s.Conflict {
	case ast.ConflictNone:
		parts = append(parts, "INSERT INTO "+table)
	case ast.ConflictIgnore, ast.ConflictReplace:
		parts = append(parts, "INSERT OR "+string(s.Conflict)+" INTO "+table)
	default:
		return "", false, invalid(ast.NodeTypeInsert, "invalid conflict action %q", s.Conflict)
	}

	// Columns
	if len(s.Columns) > 0 {
		quoted := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			if col == "" {
				return "", false, invalid(ast.NodeTypeInsert, "empty column name")
			}
			quoted[i] = quoteIdent(col)
		}
		parts = append(parts, "("+strings.Join(quoted, ", ")+")")
	}

	switch {
	case s.Select != nil && len(s.Rows) > 0:
		return "", false, invalid(ast.NodeTypeInsert, "INSERT takes either rows or a select")
	case s.Select != nil:
		sel, err := b.selectSQL(s.Select)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, sel)
	case len(s.Rows) == 0:
		if len(s.Columns) > 0 {
			return "", false, invalid(ast.NodeTypeInsert, "columns given without rows")
		}
		parts = append(parts, "DEFAULT VALUES")
	default:
		rows := make([]string, len(s.Rows))
		for i, row := range s.Rows {
			if len(s.Columns) > 0 && len(row) != len(s.Columns) {
				return "", false, invalid(ast.NodeTypeInsert, "row %d has %d values for %d columns", i, len(row), len(s.Columns))
			}
			if len(row) == 0 {
				return "", false, invalid(ast.NodeTypeInsert, "row %d is empty", i)
			}
			vals := make([]string, len(row))
			for j, e := range row {
				v, err := b.exprSQL(e)
				if err != nil {
					return "", false, err
				}
				vals[j] = v
			}
			rows[i] = "(" + strings.Join(vals, ", ") + ")"
		}
		parts = append(parts, "VALUES "+strings.Join(rows, ", "))
	}

	returning, err := b.returningSQL(s.Returning)
	if err != nil {
		return "", false, err
	}
	if returning != "" {
		parts = append(parts, returning)
	}
	return strings.Join(parts, " "), returning != "", nil
}

func (b *builder) updateSQL(s *ast.Update) (string, bool, error) {
	var parts []string

	table, err := tableName(s.Table)
	if err != nil {
		return "", false, err
	}
	parts = append(parts, "UPDATE "+table)

	if len(s.Set) == 0 {
		return "", false, invalid(ast.NodeTypeUpdate, "no columns to set")
	}
	sets := make([]string, len(s.Set))
	for i, a := range s.Set {
		if a.Column == "" {
			return "", false, invalid(ast.NodeTypeUpdate, "empty column name")
		}
		v, err := b.exprSQL(a.Value)
		if err != nil {
			return "", false, err
		}
		sets[i] = quoteIdent(a.Column) + " = " + v
	}
	parts = append(parts, "SET "+strings.Join(sets, ", "))

	// Updating every row must be requested explicitly.
	if s.Where == nil && !s.All {
		return "", false, invalid(ast.NodeTypeUpdate, "UPDATE without WHERE requires All")
	}
	if s.Where != nil {
		where, err := b.exprSQL(s.Where)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, "WHERE "+where)
	}

	returning, err := b.returningSQL(s.Returning)
	if err != nil {
		return "", false, err
	}
	if returning != "" {
		parts = append(parts, returning)
	}
	return strings.Join(parts, " "), returning != "", nil
}

func (b *builder) deleteSQL(s *ast.Delete) (string, bool, error) {
	var parts []string

	table, err := tableName(s.Table)
	if err != nil {
		return "", false, err
	}
	parts = append(parts, "DELETE FROM "+table)

	// Deleting every row must be requested explicitly.
	if s.Where == nil && !s.All {
		return "", false, invalid(ast.NodeTypeDelete, "DELETE without WHERE requires All")
	}
	if s.Where != nil {
		where, err := b.exprSQL(s.Where)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, "WHERE "+where)
	}

	returning, err := b.returningSQL(s.Returning)
	if err != nil {
		return "", false, err
	}
	if returning != "" {
		parts = append(parts, returning)
	}
	return strings.Join(parts, " "), returning != "", nil
}

// returningSQL renders RETURNING, or nothing when disabled.
func (b *builder) returningSQL(items []ast.SelectItem) (string, error) {
	if len(items) == 0 || !b.c.returning {
		return "", nil
	}
	cols, err := b.selectItemsSQL(items)
	if err != nil {
		return "", err
	}
	return "RETURNING " + cols, nil
}

func (b *builder) createTableSQL(s *ast.CreateTable) (string, error) {
	table, err := tableName(s.Table)
	if err != nil {
		return "", err
	}
	if s.OrReplace && s.IfNotExists {
		return "", invalid(ast.NodeTypeCreateTable, "OR REPLACE and IF NOT EXISTS are exclusive")
	}
	if len(s.Columns) == 0 {
		return "", invalid(ast.NodeTypeCreateTable, "table %s has no columns", s.Table.Name)
	}

	head := "CREATE "
	if s.OrReplace {
		head += "OR REPLACE "
	}
	head += "TABLE "
	if s.IfNotExists {
		head += "IF NOT EXISTS "
	}

	var keys []string
	for _, col := range s.Columns {
		if col.PrimaryKey {
			keys = append(keys, quoteIdent(col.Name))
		}
	}

	seen := make(map[string]bool, len(s.Columns))
	defs := make([]string, 0, len(s.Columns)+1)
	for _, col := range s.Columns {
		if col.Name == "" {
			return "", invalid(ast.NodeTypeCreateTable, "empty column name")
		}
		if seen[strings.ToLower(col.Name)] {
			return "", invalid(ast.NodeTypeCreateTable, "duplicate column %q", col.Name)
		}
		seen[strings.ToLower(col.Name)] = true

		if err := types.Validate(col.Type); err != nil {
			return "", invalid(ast.NodeTypeCreateTable, "column %s: %v", col.Name, err)
		}
		def := quoteIdent(col.Name) + " " + col.Type.String()
		if col.NotNull {
			def += " NOT NULL"
		}
		if col.PrimaryKey && len(keys) == 1 {
			def += " PRIMARY KEY"
		}
		if col.Default != nil {
			lit, err := defaultSQL(*col.Default, col.Type)
			if err != nil {
				return "", err
			}
			def += " DEFAULT " + lit
		}
		defs = append(defs, def)
	}
	if len(keys) > 1 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	return head + table + " (" + strings.Join(defs, ", ") + ")", nil
}

// defaultSQL renders a column default as a quoted constant. DDL cannot carry
// bound parameters, so the value is checked against the column type first.
func defaultSQL(v types.Value, t types.DataType) (string, error) {
	if types.IsComposite(t) {
		return "", invalid(ast.NodeTypeCreateTable, "defaults are only supported for scalar columns")
	}
	native, err := defaultMarshaller.Encode(v, t)
	if err != nil {
		return "", err
	}
	switch n := native.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return strconv.FormatBool(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case uint64:
		return strconv.FormatUint(n, 10), nil
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	case *big.Int:
		return n.String(), nil
	case string:
		return "CAST(" + pq.QuoteLiteral(n) + " AS " + t.String() + ")", nil
	}
	return "", invalid(ast.NodeTypeCreateTable, "default of type %s cannot be rendered", t)
}

// defaultMarshaller renders blobs and 128-bit integers as text.
var defaultMarshaller = marshal.New(marshal.Options{TextFraming: true})

func (b *builder) createViewSQL(s *ast.CreateView) (string, error) {
	name, err := tableName(s.Name)
	if err != nil {
		return "", err
	}
	if s.Query == nil {
		return "", invalid(ast.NodeTypeCreateView, "view %s has no query", s.Name.Name)
	}
	sel, err := b.selectSQL(s.Query)
	if err != nil {
		return "", err
	}
	if len(b.params) > 0 {
		return "", invalid(ast.NodeTypeCreateView, "view %s cannot contain bound parameters", s.Name.Name)
	}
	head := "CREATE VIEW "
	if s.OrReplace {
		head = "CREATE OR REPLACE VIEW "
	}
	return head + name + " AS " + sel, nil
}

func (b *builder) dropViewSQL(s *ast.DropView) (string, error) {
	name, err := tableName(s.Name)
	if err != nil {
		return "", err
	}
	if s.IfExists {
		return "DROP VIEW IF EXISTS " + name, nil
	}
	return "DROP VIEW " + name, nil
}
