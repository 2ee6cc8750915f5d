package compiler

import (
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/types"
)

// exprType describes where the result of an expression lives and what it is.
//
// Primitives are either a constant, a value in a variable (isVariable), or a pointer on the
// stack (dataType.Ref without isVariable). Objects always leave a pointer on the stack: with
// dataType.Ref it points at the cell holding the object, without it is the object itself.
type exprType struct {
	dataType         types.DataType
	isTemporary      bool
	isVariable       bool
	isConstant       bool
	isExplicitHandle bool
	stackOffset      int
	constant         types.Constant
}

func (t *exprType) set(dt types.DataType) {
	*t = exprType{dataType: dt}
}

func (t *exprType) setVariable(dt types.DataType, offset int, temp bool) {
	*t = exprType{dataType: dt, isVariable: true, isTemporary: temp, stackOffset: offset}
}

func (t *exprType) setConstant(dt types.DataType, c types.Constant) {
	*t = exprType{dataType: dt, isConstant: true, constant: c}
}

func (t *exprType) setNullConstant() {
	t.setConstant(types.NullType(), types.NullConst{})
}

// isNullConstant also holds after null has been converted to a handle type.
func (t *exprType) isNullConstant() bool {
	return t.isConstant && t.dataType.IsObjectHandle()
}

// setDummy turns t into the placeholder used after an error: a constant int zero.
func (t *exprType) setDummy() {
	t.setConstant(types.Primitive(types.Int, true), types.IntConst(0))
}

// deferredParam is an argument whose temporary must be copied back or released once the
// call that used it has returned.
type deferredParam struct {
	argNode  *ast.Node
	argType  exprType
	mode     types.ParamMode
	origExpr *exprContext
}

type exprContext struct {
	bc       bytecode.Fragment
	typ      exprType
	deferred []deferredParam
	// origExpr holds the unevaluated lvalue of an &out argument.
	origExpr *exprContext
	exprNode *ast.Node
	// property is the name of the member a property access resolved, for error messages.
	property string
}

func newExprContext() *exprContext { return &exprContext{} }

// merge appends after's code and deferred parameters to ctx.
func (ctx *exprContext) merge(after *exprContext) {
	ctx.bc.AddCode(&after.bc)
	ctx.deferred = append(ctx.deferred, after.deferred...)
	after.deferred = nil
}

// isLValue reports whether t may appear on the left of an assignment.
func isLValue(t *exprType) bool {
	if t.dataType.IsReadOnly() {
		return false
	}
	if !t.dataType.IsObject() && !t.isVariable && !t.dataType.Ref {
		return false
	}
	return !t.isTemporary
}
