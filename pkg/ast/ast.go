// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/xplshn/gasc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	Bool
	Null
	String
	Ident
	This
	Assign
	BinaryOp
	UnaryOp
	PostfixOp
	FuncCall
	ConstructCall
	MemberAccess
	Subscript
	Ternary
	Cast
	InitList

	// Statements
	Block
	ExprStmt
	VarDecl
	MultiVarDecl
	If
	For
	While
	DoWhile
	Switch
	Case
	Break
	Continue
	Return

	// Declarations
	FuncDecl
	ClassDecl
	EnumDecl
	Script
)

var nodeNames = [...]string{
	Number: "Number", Bool: "Bool", Null: "Null", String: "String", Ident: "Ident", This: "This",
	Assign: "Assign", BinaryOp: "BinaryOp", UnaryOp: "UnaryOp", PostfixOp: "PostfixOp",
	FuncCall: "FuncCall", ConstructCall: "ConstructCall", MemberAccess: "MemberAccess",
	Subscript: "Subscript", Ternary: "Ternary", Cast: "Cast", InitList: "InitList",
	Block: "Block", ExprStmt: "ExprStmt", VarDecl: "VarDecl", MultiVarDecl: "MultiVarDecl",
	If: "If", For: "For", While: "While", DoWhile: "DoWhile", Switch: "Switch", Case: "Case",
	Break: "Break", Continue: "Continue", Return: "Return", FuncDecl: "FuncDecl",
	ClassDecl: "ClassDecl", EnumDecl: "EnumDecl", Script: "Script",
}

func (t NodeType) String() string {
	if int(t) < len(nodeNames) {
		return nodeNames[t]
	}
	return "<unknown>"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// TypeSpec is a type as written in source, before the builder resolves it
type TypeSpec struct {
	Tok         token.Token
	IsConst     bool
	Scope       string
	Name        string
	SubType     *TypeSpec
	IsHandle    bool
	ConstHandle bool
}

// Param is one declared function parameter
type Param struct {
	Tok   token.Token
	Type  *TypeSpec
	IsRef bool
	Mode  token.Type // In, Out, InOut or EOF when unspecified
	Name  string
}

// --- Node Data Structs ---
type NumberNode struct{ Kind token.Type; Text string }
type BoolNode struct{ Value bool }
type StringNode struct{ Value string }
type IdentNode struct{ Scope string; Name string }
type AssignNode struct{ Op token.Type; Lhs, Rhs *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type PostfixOpNode struct{ Op token.Type; Expr *Node }
type FuncCallNode struct{ Scope string; Name string; Args []*Node }
type ConstructCallNode struct{ Type *TypeSpec; Args []*Node }
type MemberAccessNode struct{ Expr *Node; Name string; Call *Node }
type SubscriptNode struct{ Array, Index *Node }
type TernaryNode struct{ Cond, ThenExpr, ElseExpr *Node }
type CastNode struct{ Type *TypeSpec; Expr *Node }
type InitListNode struct{ Elems []*Node }

type BlockNode struct{ Stmts []*Node }
type ExprStmtNode struct{ Expr *Node }
type VarDeclNode struct {
	Type    *TypeSpec
	Name    string
	Init    *Node
	Args    []*Node
	HasArgs bool
}
type MultiVarDeclNode struct{ Decls []*Node }
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type ForNode struct{ Init, Cond *Node; Next []*Node; Body *Node }
type WhileNode struct{ Cond, Body *Node }
type DoWhileNode struct{ Body, Cond *Node }
type SwitchNode struct{ Expr *Node; Cases []*Node }
type CaseNode struct{ Value *Node; Body []*Node }
type BreakNode struct{}
type ContinueNode struct{}
type ReturnNode struct{ Expr *Node }

type FuncDeclNode struct {
	ReturnType   *TypeSpec
	ReturnRef    bool
	Name         string
	Params       []*Param
	Body         *Node
	IsConst      bool
	IsDestructor bool
	// Class is the owning class name for methods
	Class string
}
type ClassDeclNode struct {
	Name    string
	Bases   []string
	Members []*Node
}
type EnumValueDecl struct {
	Tok   token.Token
	Name  string
	Value *Node
}
type EnumDeclNode struct {
	Name   string
	Values []EnumValueDecl
}
type ScriptNode struct{ Decls []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func adopt(parent *Node, children []*Node) *Node {
	for _, c := range children {
		if c != nil {
			c.Parent = parent
		}
	}
	return parent
}

func NewNumber(tok token.Token, kind token.Type, text string) *Node {
	return newNode(tok, Number, NumberNode{Kind: kind, Text: text})
}
func NewBool(tok token.Token, value bool) *Node { return newNode(tok, Bool, BoolNode{Value: value}) }
func NewNull(tok token.Token) *Node             { return newNode(tok, Null, nil) }
func NewThis(tok token.Token) *Node             { return newNode(tok, This, nil) }
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewIdent(tok token.Token, scope, name string) *Node {
	return newNode(tok, Ident, IdentNode{Scope: scope, Name: name})
}
func NewAssign(tok token.Token, op token.Type, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewPostfixOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, PostfixOp, PostfixOpNode{Op: op, Expr: expr}, expr)
}
func NewFuncCall(tok token.Token, scope, name string, args []*Node) *Node {
	return adopt(newNode(tok, FuncCall, FuncCallNode{Scope: scope, Name: name, Args: args}), args)
}
func NewConstructCall(tok token.Token, typ *TypeSpec, args []*Node) *Node {
	return adopt(newNode(tok, ConstructCall, ConstructCallNode{Type: typ, Args: args}), args)
}

// NewMemberAccess builds obj.name, or obj.name(args) when call is a FuncCall node.
func NewMemberAccess(tok token.Token, expr *Node, name string, call *Node) *Node {
	return newNode(tok, MemberAccess, MemberAccessNode{Expr: expr, Name: name, Call: call}, expr, call)
}
func NewSubscript(tok token.Token, array, index *Node) *Node {
	return newNode(tok, Subscript, SubscriptNode{Array: array, Index: index}, array, index)
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, ThenExpr: thenExpr, ElseExpr: elseExpr}, cond, thenExpr, elseExpr)
}
func NewCast(tok token.Token, typ *TypeSpec, expr *Node) *Node {
	return newNode(tok, Cast, CastNode{Type: typ, Expr: expr}, expr)
}
func NewInitList(tok token.Token, elems []*Node) *Node {
	return adopt(newNode(tok, InitList, InitListNode{Elems: elems}), elems)
}

func NewBlock(tok token.Token, stmts []*Node) *Node {
	return adopt(newNode(tok, Block, BlockNode{Stmts: stmts}), stmts)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewVarDecl(tok token.Token, typ *TypeSpec, name string, init *Node, args []*Node, hasArgs bool) *Node {
	node := newNode(tok, VarDecl, VarDeclNode{Type: typ, Name: name, Init: init, Args: args, HasArgs: hasArgs}, init)
	return adopt(node, args)
}
func NewMultiVarDecl(tok token.Token, decls []*Node) *Node {
	return adopt(newNode(tok, MultiVarDecl, MultiVarDeclNode{Decls: decls}), decls)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewFor(tok token.Token, init, cond *Node, next []*Node, body *Node) *Node {
	node := newNode(tok, For, ForNode{Init: init, Cond: cond, Next: next, Body: body}, init, cond, body)
	return adopt(node, next)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewDoWhile(tok token.Token, body, cond *Node) *Node {
	return newNode(tok, DoWhile, DoWhileNode{Body: body, Cond: cond}, body, cond)
}
func NewSwitch(tok token.Token, expr *Node, cases []*Node) *Node {
	return adopt(newNode(tok, Switch, SwitchNode{Expr: expr, Cases: cases}, expr), cases)
}

// NewCase builds a case clause; a nil value marks the default clause.
func NewCase(tok token.Token, value *Node, body []*Node) *Node {
	return adopt(newNode(tok, Case, CaseNode{Value: value, Body: body}, value), body)
}
func NewBreak(tok token.Token) *Node    { return newNode(tok, Break, BreakNode{}) }
func NewContinue(tok token.Token) *Node { return newNode(tok, Continue, ContinueNode{}) }
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}

func NewFuncDecl(tok token.Token, decl FuncDeclNode) *Node {
	return newNode(tok, FuncDecl, decl, decl.Body)
}
func NewClassDecl(tok token.Token, name string, bases []string, members []*Node) *Node {
	return adopt(newNode(tok, ClassDecl, ClassDeclNode{Name: name, Bases: bases, Members: members}), members)
}
func NewEnumDecl(tok token.Token, name string, values []EnumValueDecl) *Node {
	node := newNode(tok, EnumDecl, EnumDeclNode{Name: name, Values: values})
	for _, v := range values {
		if v.Value != nil {
			v.Value.Parent = node
		}
	}
	return node
}
func NewScript(tok token.Token, decls []*Node) *Node {
	return adopt(newNode(tok, Script, ScriptNode{Decls: decls}), decls)
}

// IsStatementTerminator reports whether control never continues past the node.
func IsStatementTerminator(node *Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case Break, Continue, Return:
		return true
	}
	return false
}
