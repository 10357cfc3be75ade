// Package ast defines the query AST (Abstract Syntax Tree).
package ast

import "github.com/satishbabariya/duckql/runtime/types"

// Node is any element of a query tree
type Node interface {
	Type() NodeType
}

// Statement is a root node that compiles to one SQL statement
type Statement interface {
	Node
	statement()
}

// Expr is a scalar expression node
type Expr interface {
	Node
	expr()
}

// TableRef is a relation in a FROM clause
type TableRef interface {
	Node
	tableRef()
}

// NodeType represents the type of query node
type NodeType string

const (
	NodeTypeSelect      NodeType = "Select"
	NodeTypeInsert      NodeType = "Insert"
	NodeTypeUpdate      NodeType = "Update"
	NodeTypeDelete      NodeType = "Delete"
	NodeTypeCreateTable NodeType = "CreateTable"
	NodeTypeCreateView  NodeType = "CreateView"
	NodeTypeDropView    NodeType = "DropView"
	NodeTypeRaw         NodeType = "Raw"

	NodeTypeColumn   NodeType = "Column"
	NodeTypeLiteral  NodeType = "Literal"
	NodeTypeBinary   NodeType = "Binary"
	NodeTypeLogical  NodeType = "Logical"
	NodeTypeNot      NodeType = "Not"
	NodeTypeIsNull   NodeType = "IsNull"
	NodeTypeIn       NodeType = "In"
	NodeTypeBetween  NodeType = "Between"
	NodeTypeFunc     NodeType = "Func"
	NodeTypeCast     NodeType = "Cast"
	NodeTypeStar     NodeType = "Star"
	NodeTypeExists   NodeType = "Exists"
	NodeTypeRawExpr  NodeType = "RawExpr"
	NodeTypeTable    NodeType = "Table"
	NodeTypeExternal NodeType = "External"
	NodeTypeSubquery NodeType = "Subquery"
)

// Select represents a SELECT statement
type Select struct {
	Distinct bool
	Columns  []SelectItem // empty means *
	From     TableRef
	Joins    []Join
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderBy
	Limit    *int64
	Offset   *int64
}

// SelectItem is one projected expression
type SelectItem struct {
	Expr  Expr
	Alias string
}

// JoinKind represents a join type
type JoinKind string

const (
	JoinInner JoinKind = "INNER"
	JoinLeft  JoinKind = "LEFT"
	JoinRight JoinKind = "RIGHT"
	JoinFull  JoinKind = "FULL"
	JoinCross JoinKind = "CROSS"
)

// Join represents a JOIN clause
type Join struct {
	Kind  JoinKind
	Table TableRef
	On    Expr // must be nil for CROSS joins
}

// SortDirection represents sort direction
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// OrderBy represents ordering
type OrderBy struct {
	Expr       Expr
	Direction  SortDirection
	NullsFirst *bool
}

// ConflictAction is the INSERT conflict policy
type ConflictAction string

const (
	ConflictNone    ConflictAction = ""
	ConflictIgnore  ConflictAction = "IGNORE"
	ConflictReplace ConflictAction = "REPLACE"
)

// Insert represents an INSERT statement. Exactly one of Rows or Select is set.
type Insert struct {
	Table     *Table
	Columns   []string
	Rows      [][]Expr
	Select    *Select
	Conflict  ConflictAction
	Returning []SelectItem
}

// Assignment is one SET entry of an UPDATE
type Assignment struct {
	Column string
	Value  Expr
}

// Update represents an UPDATE statement. All must be set to update without a
// WHERE clause.
type Update struct {
	Table     *Table
	Set       []Assignment
	Where     Expr
	All       bool
	Returning []SelectItem
}

// Delete represents a DELETE statement. All must be set to delete without a
// WHERE clause.
type Delete struct {
	Table     *Table
	Where     Expr
	All       bool
	Returning []SelectItem
}

// ColumnDef is a column in CREATE TABLE
type ColumnDef struct {
	Name       string
	Type       types.DataType
	NotNull    bool
	PrimaryKey bool
	Default    *types.Value
}

// CreateTable represents CREATE TABLE
type CreateTable struct {
	Table       *Table
	Columns     []ColumnDef
	OrReplace   bool
	IfNotExists bool
}

// CreateView represents CREATE VIEW over a select
type CreateView struct {
	Name      *Table
	Query     *Select
	OrReplace bool
}

// DropView represents DROP VIEW
type DropView struct {
	Name     *Table
	IfExists bool
}

// Raw is caller-supplied SQL text with ? markers for Args. Columns
// declares result column types by name, for columns whose engine type
// does not carry them (JSON reads back as VARCHAR).
type Raw struct {
	SQL     string
	Args    []types.Value
	Columns map[string]types.DataType
}

func (*Select) Type() NodeType      { return NodeTypeSelect }
func (*Insert) Type() NodeType      { return NodeTypeInsert }
func (*Update) Type() NodeType      { return NodeTypeUpdate }
func (*Delete) Type() NodeType      { return NodeTypeDelete }
func (*CreateTable) Type() NodeType { return NodeTypeCreateTable }
func (*CreateView) Type() NodeType  { return NodeTypeCreateView }
func (*DropView) Type() NodeType    { return NodeTypeDropView }
func (*Raw) Type() NodeType         { return NodeTypeRaw }

func (*Select) statement()      {}
func (*Insert) statement()      {}
func (*Update) statement()      {}
func (*Delete) statement()      {}
func (*CreateTable) statement() {}
func (*CreateView) statement()  {}
func (*DropView) statement()    {}
func (*Raw) statement()         {}

// Column references a column, optionally qualified by table or alias
type Column struct {
	Table string
	Name  string
}

// Literal is a value that is always bound as a parameter. DataType is the
// declared type; when nil the type is inferred from the value.
type Literal struct {
	Value    types.Value
	DataType types.DataType
}

// Binary is a comparison or arithmetic operation
type Binary struct {
	Left  Expr
	Op    string
	Right Expr
}

// LogicalOperator represents logical operators
type LogicalOperator string

const (
	OpAND LogicalOperator = "AND"
	OpOR  LogicalOperator = "OR"
)

// Logical joins two or more conditions
type Logical struct {
	Op    LogicalOperator
	Terms []Expr
}

// Not negates a condition
type Not struct {
	Expr Expr
}

// IsNull tests for NULL
type IsNull struct {
	Expr   Expr
	Negate bool
}

// In tests membership in a list or subquery
type In struct {
	Expr     Expr
	List     []Expr
	Subquery *Select
	Negate   bool
}

// Between tests a closed range
type Between struct {
	Expr   Expr
	Low    Expr
	High   Expr
	Negate bool
}

// Func is a function call
type Func struct {
	Name     string
	Args     []Expr
	Distinct bool
}

// Cast converts an expression to a type
type Cast struct {
	Expr Expr
	To   types.DataType
}

// Star is * or table.*
type Star struct {
	Table string
}

// Exists tests whether a subquery yields rows
type Exists struct {
	Query  *Select
	Negate bool
}

// RawExpr is a caller-supplied SQL fragment with ? markers for Args
type RawExpr struct {
	SQL  string
	Args []types.Value
}

func (*Column) Type() NodeType  { return NodeTypeColumn }
func (*Literal) Type() NodeType { return NodeTypeLiteral }
func (*Binary) Type() NodeType  { return NodeTypeBinary }
func (*Logical) Type() NodeType { return NodeTypeLogical }
func (*Not) Type() NodeType     { return NodeTypeNot }
func (*IsNull) Type() NodeType  { return NodeTypeIsNull }
func (*In) Type() NodeType      { return NodeTypeIn }
func (*Between) Type() NodeType { return NodeTypeBetween }
func (*Func) Type() NodeType    { return NodeTypeFunc }
func (*Cast) Type() NodeType    { return NodeTypeCast }
func (*Star) Type() NodeType    { return NodeTypeStar }
func (*Exists) Type() NodeType  { return NodeTypeExists }
func (*RawExpr) Type() NodeType { return NodeTypeRawExpr }

func (*Column) expr()  {}
func (*Literal) expr() {}
func (*Binary) expr()  {}
func (*Logical) expr() {}
func (*Not) expr()     {}
func (*IsNull) expr()  {}
func (*In) expr()      {}
func (*Between) expr() {}
func (*Func) expr()    {}
func (*Cast) expr()    {}
func (*Star) expr()    {}
func (*Exists) expr()  {}
func (*RawExpr) expr() {}

// Table names a table or view
type Table struct {
	Schema string
	Name   string
	Alias  string
}

// SourceOption is a named reader argument for an external source
type SourceOption struct {
	Name  string
	Value types.Value
}

// External is a file-backed virtual table read through a table function
type External struct {
	Source  string
	Options []SourceOption
	Alias   string
}

// Subquery is a derived table
type Subquery struct {
	Query *Select
	Alias string
}

func (*Table) Type() NodeType    { return NodeTypeTable }
func (*External) Type() NodeType { return NodeTypeExternal }
func (*Subquery) Type() NodeType { return NodeTypeSubquery }

func (*Table) tableRef()    {}
func (*External) tableRef() {}
func (*Subquery) tableRef() {}

// Helpers for building trees by hand.

// Col references a column by name.
func Col(name string) *Column { return &Column{Name: name} }

// Lit wraps a value with an inferred type.
func Lit(v types.Value) *Literal { return &Literal{Value: v} }

// TypedLit wraps a value with a declared type.
func TypedLit(v types.Value, t types.DataType) *Literal { return &Literal{Value: v, DataType: t} }

// Eq builds left = right.
func Eq(left, right Expr) *Binary { return &Binary{Left: left, Op: "=", Right: right} }

// And joins conditions with AND.
func And(terms ...Expr) *Logical { return &Logical{Op: OpAND, Terms: terms} }

// Or joins conditions with OR.
func Or(terms ...Expr) *Logical { return &Logical{Op: OpOR, Terms: terms} }

// T names a table.
func T(name string) *Table { return &Table{Name: name} }

// Int64 returns a pointer to n, for Limit and Offset.
func Int64(n int64) *int64 { return &n }
