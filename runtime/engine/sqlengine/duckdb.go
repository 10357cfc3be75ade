package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/duckql/runtime/engine"
	"github.com/satishbabariya/duckql/runtime/types"
)

// shape says how a reshaped DuckDB column is read back.
type shape int

const (
	shapePlain shape = iota
	// MAP projected through map_entries: a list of key/value structs.
	shapeMap
	// UNION projected as {'tag': union_tag(c), 'members': {...}}.
	shapeUnion
)

// readKeywords start statements that can be wrapped in a subquery and run
// again without side effects.
var readKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"FROM":   true,
	"VALUES": true,
	"TABLE":  true,
}

// isRead reports whether sql is a plain read.
func isRead(sql string) bool {
	s := strings.TrimLeft(sql, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(s)
	}
	return readKeywords[strings.ToUpper(s[:end])]
}

// columnShape picks the projection for a top-level column. go-duckdb v1.8
// scans MAP into a Go map, losing pair order, and cannot scan UNION at all.
func columnShape(col engine.Column) shape {
	switch {
	case strings.HasPrefix(col.DatabaseType, "MAP("):
		return shapeMap
	case col.DatabaseType == "UNION":
		return shapeUnion
	}
	return shapePlain
}

// reshape replaces a DuckDB read whose top-level MAP or UNION columns the
// driver cannot scan faithfully. The query is run again inside a projection
// that turns maps into ordered entry lists and unions into tagged structs.
// Member names come from typeof on the first row; with no rows there is
// nothing to scan and the plain result is returned. r is closed.
func (s *stmt) reshape(ctx context.Context, r *sql.Rows, cols []engine.Column, args []any) (engine.Rows, error) {
	shapes := make([]shape, len(cols))
	seen := make(map[string]bool, len(cols))
	var unions []int
	for i, col := range cols {
		if col.Name == "" || seen[col.Name] {
			// Columns are addressed by name in the projection.
			return &rows{r: r, cols: cols}, nil
		}
		seen[col.Name] = true
		shapes[i] = columnShape(col)
		if shapes[i] == shapeUnion {
			unions = append(unions, i)
		}
	}
	r.Close()

	body := strings.TrimRight(strings.TrimSpace(s.query), "; \t\r\n")
	cols = append([]engine.Column(nil), cols...)
	members := make(map[int]types.Union, len(unions))
	if len(unions) > 0 {
		names, err := s.typeNames(ctx, body, cols, unions, args)
		if err != nil {
			return nil, err
		}
		if names == nil {
			return s.plain(ctx, args, cols)
		}
		for j, i := range unions {
			t, err := types.ParseDataType(names[j])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", cols[i].Name, err)
			}
			u, ok := t.(types.Union)
			if !ok {
				return nil, fmt.Errorf("column %s: expected a union, got %s", cols[i].Name, names[j])
			}
			members[i] = u
			cols[i].DatabaseType = names[j]
		}
	}

	items := make([]string, len(cols))
	for i, col := range cols {
		name := pq.QuoteIdentifier(col.Name)
		switch shapes[i] {
		case shapeMap:
			items[i] = "map_entries(" + name + ") AS " + name
		case shapeUnion:
			parts := make([]string, len(members[i].Members))
			for k, m := range members[i].Members {
				parts[k] = quoteString(m.Name) + ": union_extract(" + name + ", " + quoteString(m.Name) + ")"
			}
			items[i] = "CASE WHEN " + name + " IS NULL THEN NULL ELSE {'tag': union_tag(" + name + "), 'members': {" +
				strings.Join(parts, ", ") + "}} END AS " + name
		default:
			items[i] = name
		}
	}
	query := "SELECT " + strings.Join(items, ", ") + " FROM (" + body + ") AS " + pq.QuoteIdentifier("duckql_q")
	wrapped, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &rows{r: wrapped, cols: cols, shapes: shapes}, nil
}

// typeNames reads typeof for the given columns from the first row. It
// returns nil when the result is empty.
func (s *stmt) typeNames(ctx context.Context, body string, cols []engine.Column, idx []int, args []any) ([]string, error) {
	items := make([]string, len(idx))
	for j, i := range idx {
		items[j] = "typeof(" + pq.QuoteIdentifier(cols[i].Name) + ")"
	}
	query := "SELECT " + strings.Join(items, ", ") + " FROM (" + body + ") AS " + pq.QuoteIdentifier("duckql_q") + " LIMIT 1"
	r, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	defer r.Close()
	if !r.Next() {
		return nil, Classify(r.Err())
	}
	names := make([]string, len(idx))
	ptrs := make([]any, len(idx))
	for j := range names {
		ptrs[j] = &names[j]
	}
	if err := r.Scan(ptrs...); err != nil {
		return nil, Classify(err)
	}
	return names, nil
}

// plain runs the statement again without a projection.
func (s *stmt) plain(ctx context.Context, args []any, cols []engine.Column) (engine.Rows, error) {
	r, err := s.s.QueryContext(ctx, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &rows{r: r, cols: cols}, nil
}

// unshape turns a reshaped cell back into the engine's native form.
func unshape(cell any, sh shape) (any, error) {
	if cell == nil {
		return nil, nil
	}
	switch sh {
	case shapeMap:
		items, ok := cell.([]any)
		if !ok {
			return nil, fmt.Errorf("map entries: unexpected %T", cell)
		}
		entries := make([]engine.MapEntry, len(items))
		for i, item := range items {
			kv, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("map entry: unexpected %T", item)
			}
			entries[i] = engine.MapEntry{Key: kv["key"], Value: kv["value"]}
		}
		return entries, nil
	case shapeUnion:
		obj, ok := cell.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("union: unexpected %T", cell)
		}
		tag, ok := obj["tag"].(string)
		if !ok {
			return nil, fmt.Errorf("union tag: unexpected %T", obj["tag"])
		}
		payload, _ := obj["members"].(map[string]any)
		return engine.Union{Tag: tag, Value: payload[tag]}, nil
	}
	return cell, nil
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
