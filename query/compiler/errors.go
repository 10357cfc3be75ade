package compiler

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/duckql/query/ast"
)

var (
	// ErrCompile is matched by every compilation failure.
	ErrCompile = errors.New("query compilation failed")

	// ErrUnsupportedQuery is returned for node kinds the compiler does not handle.
	ErrUnsupportedQuery = errors.New("unsupported query node")

	// ErrInvalidQuery is returned for malformed or inconsistent trees.
	ErrInvalidQuery = errors.New("invalid query")
)

// Error describes why a node could not be compiled.
type Error struct {
	Node   ast.NodeType
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("compile %s: %s", e.Node, e.Reason)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *Error) Is(target error) bool {
	return target == ErrCompile
}

func invalid(node ast.NodeType, format string, args ...any) *Error {
	return &Error{Node: node, Reason: fmt.Sprintf(format, args...), Cause: ErrInvalidQuery}
}

func unsupported(node ast.Node) *Error {
	var kind ast.NodeType
	if node != nil {
		kind = node.Type()
	}
	return &Error{Node: kind, Reason: fmt.Sprintf("unsupported node %T", node), Cause: ErrUnsupportedQuery}
}
