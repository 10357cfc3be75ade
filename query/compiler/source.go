package compiler

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/types"
)

const defaultFallbackReader = "read_csv_auto"

var defaultReaders = map[string]string{
	"json":    "read_json_auto",
	"jsonl":   "read_json_auto",
	"ndjson":  "read_json_auto",
	"csv":     "read_csv_auto",
	"tsv":     "read_csv_auto",
	"txt":     "read_csv_auto",
	"parquet": "read_parquet",
	"xlsx":    "read_xlsx",
}

var compressionSuffixes = []string{".gz", ".zst", ".zstd"}

// ReaderFor returns the table function that reads source, applying the
// fallback for unknown extensions unless strict mode is on.
func (c *Compiler) ReaderFor(source string) (string, error) {
	name := strings.ToLower(path.Base(strings.ReplaceAll(source, `\`, "/")))
	for _, suffix := range compressionSuffixes {
		name = strings.TrimSuffix(name, suffix)
	}
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if fn, ok := c.readers[ext]; ok {
		return fn, nil
	}
	if c.strict {
		return "", invalid(ast.NodeTypeExternal, "no reader for source %q (extension %q)", source, ext)
	}
	return c.fallback, nil
}

// sourceSQL renders an external source as a table function call. The path
// and options are SQL-level literals, never bound parameters.
func (b *builder) sourceSQL(src *ast.External) (string, error) {
	if strings.TrimSpace(src.Source) == "" {
		return "", invalid(ast.NodeTypeExternal, "empty source path")
	}
	fn, err := b.c.ReaderFor(src.Source)
	if err != nil {
		return "", err
	}
	args := []string{pq.QuoteLiteral(src.Source)}

	opts := append([]ast.SourceOption(nil), src.Options...)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
	seen := make(map[string]bool, len(opts))
	for _, opt := range opts {
		if !optionKey.MatchString(opt.Name) {
			return "", invalid(ast.NodeTypeExternal, "invalid reader option name %q", opt.Name)
		}
		key := strings.ToLower(opt.Name)
		if seen[key] {
			return "", invalid(ast.NodeTypeExternal, "duplicate reader option %q", opt.Name)
		}
		seen[key] = true
		lit, err := constantSQL(opt.Value)
		if err != nil {
			return "", invalid(ast.NodeTypeExternal, "option %s: %v", opt.Name, err)
		}
		args = append(args, opt.Name+" := "+lit)
	}

	sql := fn + "(" + strings.Join(args, ", ") + ")"
	if src.Alias != "" {
		sql += " AS " + quoteIdent(src.Alias)
	}
	return sql, nil
}

// constantSQL renders a value as an inline SQL constant for positions where
// the engine does not accept parameters. Text is quoted with the literal
// quoting rule.
func constantSQL(v types.Value) (string, error) {
	switch v.Tag() {
	case types.TagNull:
		return "NULL", nil
	case types.TagBool:
		return strconv.FormatBool(v.AsBool()), nil
	case types.TagInt, types.TagBigInt:
		return v.AsBigInt().String(), nil
	case types.TagDouble:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64), nil
	case types.TagText:
		return pq.QuoteLiteral(v.AsText()), nil
	case types.TagList:
		parts := make([]string, len(v.Items()))
		for i, item := range v.Items() {
			s, err := constantSQL(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case types.TagStruct:
		parts := make([]string, len(v.Fields()))
		for i, f := range v.Fields() {
			s, err := constantSQL(f.Value)
			if err != nil {
				return "", err
			}
			parts[i] = pq.QuoteLiteral(f.Name) + ": " + s
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	}
	return "", &Error{Node: ast.NodeTypeLiteral, Reason: "value of kind " + v.Tag().String() + " cannot be an inline constant", Cause: ErrInvalidQuery}
}
