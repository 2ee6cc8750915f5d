package compiler

import (
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

const (
	txtNotLValue     = "Not a valid lvalue"
	txtRefIsReadOnly = "Reference is read-only"
	txtRefIsTemp     = "A temporary reference can't be assigned to"
)

// compileAssignment compiles any expression, including assignments. The right hand side of
// an assignment is compiled before the left.
func (c *Compiler) compileAssignment(node *ast.Node, ctx *exprContext) bool {
	if node.Type != ast.Assign {
		ok := c.compileExpr(node, ctx)
		ctx.exprNode = node
		return ok
	}
	d := node.Data.(ast.AssignNode)
	rctx, lctx := newExprContext(), newExprContext()
	rok := c.compileAssignment(d.Rhs, rctx)
	lok := c.compileExpr(d.Lhs, lctx)
	if !rok || !lok {
		ctx.typ.setDummy()
		return false
	}
	ok := c.doAssignment(ctx, lctx, rctx, d.Lhs, d.Rhs, d.Op, node)
	ctx.exprNode = node
	return ok
}

// isVariableInitialized warns once per variable when a local primitive is read before it
// has been given a value.
func (c *Compiler) isVariableInitialized(t *exprType, node *ast.Node) bool {
	if t.isTemporary || !t.isVariable {
		return true
	}
	v := c.scopes.lookupByOffset(t.stackOffset)
	if v == nil || v.initialized || v.dt.IsObject() {
		return true
	}
	v.initialized = true
	c.warn(config.WarnUninitialized, nodeTok(node), "'%s' is not initialized.", v.name)
	return false
}

func (c *Compiler) markInitialized(t *exprType) {
	if !t.isVariable {
		return
	}
	if v := c.scopes.lookupByOffset(t.stackOffset); v != nil {
		v.initialized = true
	}
}

// prepareOperand turns a primitive operand into a value: constant or variable.
func (c *Compiler) prepareOperand(ctx *exprContext, node *ast.Node) {
	c.isVariableInitialized(&ctx.typ, node)
	to := ctx.typ.dataType.WithRef(false)
	c.implicitConversion(ctx, to, node, convImplicit, true, nil, true)
	c.processDeferredParams(ctx)
}

// doAssignment assigns rctx to lctx, applying op first for compound assignments.
func (c *Compiler) doAssignment(ctx, lctx, rctx *exprContext, lexpr, rexpr *ast.Node, op token.Type, opNode *ast.Node) bool {
	switch {
	case lctx.typ.dataType.IsPrimitive():
		if !isLValue(&lctx.typ) {
			c.error(nodeTok(lexpr), txtNotLValue)
			ctx.typ.setDummy()
			return false
		}
		if op != token.Eq {
			lvalue := lctx.typ
			if lctx.typ.isTemporary && !lctx.typ.isVariable {
				lctx.typ.isTemporary = false
			}
			// The right operand is evaluated first so calls in it can't clobber the
			// register holding the lvalue's address
			c.prepareOperand(rctx, rexpr)
			if !rctx.typ.isConstant && !rctx.typ.isVariable {
				c.convertToVariable(rctx)
			}
			ctx.merge(rctx)

			o := newExprContext()
			right := newExprContext()
			right.typ = rctx.typ
			if !c.compileOperator(opNode, baseOp(op), lctx, right, o) {
				ctx.typ.setDummy()
				return false
			}
			r := newExprContext()
			r.merge(o)
			r.typ = o.typ
			c.prepareForAssignment(lvalue.dataType, r, rexpr, nil)
			ctx.merge(r)
			rctx.typ = r.typ
			lctx.typ = lvalue
		} else {
			c.prepareForAssignment(lctx.typ.dataType, rctx, rexpr, lctx)
			ctx.merge(rctx)
			ctx.merge(lctx)
		}
		c.releaseTemporary(&rctx.typ, &ctx.bc)
		c.performAssignment(&lctx.typ, &rctx.typ, &ctx.bc, opNode)
		ctx.typ = lctx.typ
		return true

	case lctx.typ.isExplicitHandle:
		if lctx.typ.isTemporary {
			c.error(nodeTok(lexpr), txtRefIsTemp)
			ctx.typ.setDummy()
			return false
		}
		if op != token.Eq {
			c.error(nodeTok(lexpr), "Illegal operation on '%s'", lctx.typ.dataType.Format())
			ctx.typ.setDummy()
			return false
		}
		dt := lctx.typ.dataType.WithRef(false)
		c.prepareArgument(dt, rctx, rexpr, true, types.ModeIn, lctx.bc.VarsUsed())
		if !dt.IsEqualExceptRefAndConst(rctx.typ.dataType) {
			c.error(nodeTok(rexpr), txtCantImplicitlyConvert, rctx.typ.dataType.Format(), dt.Format())
		}
		ctx.merge(rctx)
		ctx.merge(lctx)
		ctx.bc.InstrDW(bytecode.GETOBJREF, c.ptr)
		c.performAssignment(&lctx.typ, &rctx.typ, &ctx.bc, opNode)
		c.releaseTemporary(&rctx.typ, &ctx.bc)
		ctx.typ = lctx.typ
		return true
	}

	if lctx.typ.dataType.IsReadOnly() {
		c.error(nodeTok(lexpr), txtRefIsReadOnly)
		ctx.typ.setDummy()
		return false
	}
	if lctx.typ.dataType.IsObjectHandle() {
		// Assigning through a handle assigns to the object it refers to
		lctx.bc.Instr(bytecode.ChkRefS)
		lctx.typ.dataType, _ = lctx.typ.dataType.WithHandle(false)
		lctx.typ.dataType = lctx.typ.dataType.WithRef(true)
	}

	if ok, found := c.compileOverloadedAssignment(op, lctx, rctx, ctx, opNode); found {
		return ok
	}

	if op != token.Eq {
		c.error(nodeTok(lexpr), "Illegal operation on '%s'", lctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}

	dt := lctx.typ.dataType.WithRef(true).WithReadOnly(true)
	c.prepareArgument(dt, rctx, rexpr, true, types.ModeIn, lctx.bc.VarsUsed())
	if !dt.IsEqualExceptRefAndConst(rctx.typ.dataType) {
		c.error(nodeTok(rexpr), txtCantImplicitlyConvert, rctx.typ.dataType.Format(), lctx.typ.dataType.WithRef(false).Format())
	}
	ctx.merge(rctx)
	ctx.merge(lctx)
	ctx.bc.InstrDW(bytecode.GETOBJREF, c.ptr)
	c.performAssignment(&lctx.typ, &rctx.typ, &ctx.bc, opNode)
	c.releaseTemporary(&rctx.typ, &ctx.bc)
	ctx.typ = lctx.typ
	return true
}

// compileOverloadedAssignment calls the lvalue's opAssign family method for op. found is
// false when the type has no matching behaviour.
func (c *Compiler) compileOverloadedAssignment(op token.Type, lctx, rctx, ctx *exprContext, node *ast.Node) (ok, found bool) {
	ot := lctx.typ.dataType.Object
	if ot == nil {
		return false, false
	}
	beh := types.BehAssign + types.Behaviour(op-token.Eq)
	funcs := c.matchArgument(ot.Beh.OperatorFuncs(beh), &rctx.typ, 0, true)
	if len(funcs) == 0 {
		return false, false
	}
	if len(funcs) > 1 {
		c.error(nodeTok(node), "Found more than one matching operator")
		ctx.typ.setDummy()
		return false, true
	}

	f := c.funcDesc(funcs[0])
	args := []*exprContext{rctx}
	c.prepareArgument2(ctx, rctx, f.Params[0], true, paramMode(f, 0), lctx.bc.VarsUsed())
	c.dereference(lctx, true)
	ctx.merge(lctx)
	c.moveArgsToStack(f.ID, &ctx.bc, args, true)
	c.performFunctionCall(f.ID, ctx, args)
	return true, true
}

// prepareForAssignment converts rctx to the lvalue's type. Primitives end up in a variable
// and objects as an object pointer on the stack.
func (c *Compiler) prepareForAssignment(lvalue types.DataType, rctx *exprContext, node *ast.Node, lvalueExpr *exprContext) {
	var reserved []int
	if lvalueExpr != nil {
		reserved = lvalueExpr.bc.VarsUsed()
	}

	if lvalue.IsPrimitive() {
		if rctx.typ.dataType.IsPrimitive() && rctx.typ.dataType.Ref {
			c.convertToVariableNotIn(rctx, reserved)
		}
		c.implicitConversion(rctx, lvalue.WithRef(false), node, convImplicit, true, reserved, true)
		if !lvalue.IsEqualExceptRefAndConst(rctx.typ.dataType) {
			c.error(nodeTok(node), txtCantImplicitlyConvert, rctx.typ.dataType.Format(), lvalue.WithRef(false).Format())
			rctx.typ.setDummy()
		}
		if !rctx.typ.isVariable {
			c.convertToVariableNotIn(rctx, reserved)
		}
		return
	}

	to := lvalue.WithRef(false)
	c.implicitConversion(rctx, to, node, convImplicit, true, reserved, false)
	if !lvalue.IsEqualExceptRefAndConst(rctx.typ.dataType) {
		c.error(nodeTok(node), txtCantImplicitlyConvert, rctx.typ.dataType.Format(), to.Format())
	}
}

// performAssignment emits the store. The rvalue is a variable for primitives; for objects
// the rvalue pointer lies below the lvalue pointer on the stack.
func (c *Compiler) performAssignment(lvalue, rvalue *exprType, bc *bytecode.Fragment, node *ast.Node) {
	if lvalue.dataType.IsReadOnly() {
		c.error(nodeTok(node), txtRefIsReadOnly)
	}

	switch {
	case lvalue.dataType.IsPrimitive():
		switch {
		case lvalue.isVariable:
			if lvalue.dataType.SizeInMemoryDWords(c.ptr) == 1 {
				bc.InstrVarVar(bytecode.CpyVtoV4, lvalue.stackOffset, rvalue.stackOffset)
			} else {
				bc.InstrVarVar(bytecode.CpyVtoV8, lvalue.stackOffset, rvalue.stackOffset)
			}
			c.markInitialized(lvalue)
		case lvalue.dataType.Ref:
			switch lvalue.dataType.SizeInMemoryBytes(c.ptr) {
			case 1:
				bc.InstrVar(bytecode.WRTV1, rvalue.stackOffset)
			case 2:
				bc.InstrVar(bytecode.WRTV2, rvalue.stackOffset)
			case 4:
				bc.InstrVar(bytecode.WRTV4, rvalue.stackOffset)
			default:
				bc.InstrVar(bytecode.WRTV8, rvalue.stackOffset)
			}
		default:
			c.error(nodeTok(node), "Not a valid reference")
		}

	case !lvalue.isExplicitHandle:
		ctx := newExprContext()
		ctx.typ = *lvalue
		c.dereference(ctx, true)
		*lvalue = ctx.typ
		bc.AddCode(&ctx.bc)

		ot := lvalue.dataType.Object
		if ot.Beh.Copy != 0 {
			f := c.funcDesc(ot.Beh.Copy)
			bc.Call(c.callOp(f), f.ID, 2*c.ptr)
			bc.Instr(bytecode.PshRPtr)
			return
		}
		if !ot.IsPOD() || !c.feature(config.FeatPODCopy) {
			c.error(nodeTok(node), "There is no copy operator for the type '%s' available.", ot.Name)
		} else {
			c.warn(config.WarnRawCopy, nodeTok(node), "Raw copy of '%s'", ot.Name)
		}
		bc.InstrType(bytecode.COPY, ot)

	default:
		if !lvalue.dataType.Ref {
			c.error(nodeTok(node), "Not a valid reference")
			return
		}
		bc.InstrType(bytecode.REFCPY, lvalue.dataType.Object)
		c.markInitialized(lvalue)
	}
}

// prepareTemporaryObject copies the object ctx refers to into a new temporary, leaving the
// temporary's address on the stack.
func (c *Compiler) prepareTemporaryObject(node *ast.Node, ctx *exprContext, reserved []int) {
	if ctx.typ.isTemporary && ctx.typ.isVariable {
		return
	}

	dt := ctx.typ.dataType.WithRef(false).WithReadOnly(false)
	off := c.allocateVariableNotIn(dt, true, append(reserved, ctx.bc.VarsUsed()...))
	c.callDefaultConstructor(dt, off, &ctx.bc, node)

	var lvalue exprType
	lvalue.set(dt.WithRef(true))
	lvalue.isExplicitHandle = ctx.typ.isExplicitHandle

	c.prepareForAssignment(lvalue.dataType, ctx, node, nil)
	ctx.bc.InstrVar(bytecode.PSF, off)
	c.performAssignment(&lvalue, &ctx.typ, &ctx.bc, node)
	ctx.bc.Pop(c.ptr)
	c.releaseTemporary(&ctx.typ, &ctx.bc)

	ctx.bc.InstrVar(bytecode.PSF, off)
	explicit := ctx.typ.isExplicitHandle || dt.IsObjectHandle()
	ctx.typ.setVariable(dt.WithRef(true), off, true)
	ctx.typ.isExplicitHandle = explicit
}
