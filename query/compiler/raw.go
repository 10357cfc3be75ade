package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/types"
)

// rawSQL copies caller SQL, replacing each ? outside quotes and comments with
// a placeholder in the active style bound to the next argument.
func (b *builder) rawSQL(sql string, args []types.Value, node ast.NodeType) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", invalid(node, "empty SQL")
	}
	var out strings.Builder
	out.Grow(len(sql) + len(args)*2)
	n := 0
	err := scanSQL(sql, func(i int) error {
		if sql[i] != '?' {
			out.WriteByte(sql[i])
			return nil
		}
		if n >= len(args) {
			return fmt.Errorf("more placeholders than the %d arguments given", len(args))
		}
		out.WriteString(b.bind(args[n], nil))
		n++
		return nil
	}, func(span string) {
		out.WriteString(span)
	})
	if err != nil {
		return "", invalid(node, "%v", err)
	}
	if n != len(args) {
		return "", invalid(node, "%d arguments given for %d placeholders", len(args), n)
	}
	return out.String(), nil
}

// CountPlaceholders reports how many parameters sql expects: the number of
// ? markers, or the highest $n. Quoted text and comments are skipped.
func CountPlaceholders(sql string) (int, error) {
	questions, highest := 0, 0
	err := scanSQL(sql, func(i int) error {
		switch sql[i] {
		case '?':
			questions++
		case '$':
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j > i+1 {
				n, err := strconv.Atoi(sql[i+1 : j])
				if err != nil {
					return err
				}
				highest = max(highest, n)
			}
		}
		return nil
	}, func(string) {})
	if err != nil {
		return 0, err
	}
	if questions > 0 && highest > 0 {
		return 0, errors.New("mixed ? and $n placeholders")
	}
	return max(questions, highest), nil
}

// scanSQL calls code for each byte outside quoted text and comments and
// quoted for each quoted or commented span.
func scanSQL(sql string, code func(i int) error, quoted func(span string)) error {
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"':
			end := closingQuote(sql, i)
			if end < 0 {
				return fmt.Errorf("unterminated quote at offset %d", i)
			}
			quoted(sql[i : end+1])
			i = end
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql)
			} else {
				end += i
			}
			quoted(sql[i:end])
			i = end - 1
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return fmt.Errorf("unterminated comment at offset %d", i)
			}
			end += i + 4
			quoted(sql[i:end])
			i = end - 1
		default:
			if err := code(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// closingQuote returns the index of the quote closing the one at start.
// Doubled quotes are escapes.
func closingQuote(sql string, start int) int {
	q := sql[start]
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i
	}
	return -1
}
