package compiler

import (
	"errors"
	"fmt"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
	"github.com/xplshn/gasc/pkg/util"
)

// ErrUncompiledGlobal means the initializer read a global whose own initializer has not
// been compiled yet. The code returned with it is valid, but may run too early.
var ErrUncompiledGlobal = errors.New("initializer uses a global that is not initialized yet")

// CompileGlobalVariable compiles the initializer of a script global declared by node. Const
// primitives initialized with a constant become pure constants as a side effect.
func CompileGlobalVariable(b Builder, rep *util.Reporter, prop *types.GlobalProperty, node *ast.Node) (*bytecode.Function, error) {
	c := newCompiler(b, rep)
	c.compilingGlobal = true
	c.fn = &types.Function{Name: "init:" + prop.Name, Return: c.voidType()}
	c.scopes.push(false, false)

	prop.IsPureConstant = false
	prop.Constant = nil

	d := node.Data.(ast.VarDeclNode)
	dt := prop.Type
	var out bytecode.Fragment
	c.lineInstr(&out, node)

	switch {
	case dt.IsPrimitive():
		switch {
		case d.HasArgs:
			ctx := newExprContext()
			var expr *ast.Node
			if len(d.Args) == 1 {
				expr = d.Args[0]
			}
			if c.compileConversion(node, dt.WithReadOnly(false), expr, convExplicitValue, ctx) {
				c.assignToGlobal(prop, ctx, node, &out)
			}
		case d.Init != nil && d.Init.Type == ast.InitList:
			c.error(d.Init.Tok, "Initialization lists cannot be used with '%s'", dt.Format())
		case d.Init != nil:
			rctx := newExprContext()
			if c.compileAssignment(d.Init, rctx) {
				c.assignToGlobal(prop, rctx, d.Init, &out)
			}
		}

	case dt.IsObjectHandle() && d.Init != nil && d.Init.Type != ast.InitList && !d.HasArgs:
		rctx := newExprContext()
		if c.compileAssignment(d.Init, rctx) {
			c.assignToGlobal(prop, rctx, d.Init, &out)
		}

	default:
		// The object is built in a local and then moved into the global
		off := c.allocateVariable(dt, true)
		v := &variable{name: prop.Name, dt: dt, offset: off}
		switch {
		case d.HasArgs:
			c.compileConstructorInit(v, node, d.Args, &out)
		case d.Init != nil && d.Init.Type == ast.InitList:
			c.compileInitList(v, d.Init, &out)
		default:
			c.callDefaultConstructor(dt, off, &out, node)
		}
		c.moveToGlobal(off, dt, prop, &out)
		c.deallocateVariable(off)

		if d.Init != nil && d.Init.Type != ast.InitList && !d.HasArgs {
			rctx := newExprContext()
			if c.compileAssignment(d.Init, rctx) {
				c.assignToGlobal(prop, rctx, d.Init, &out)
			}
		}
	}

	out.Label(exitLabel)
	out.Ret(0)
	fn, err := c.finish(&out, c.fn, node)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", prop.Name, err)
	}
	if c.usedUncompiledGlobal {
		return fn, fmt.Errorf("%s: %w", prop.Name, ErrUncompiledGlobal)
	}
	return fn, nil
}

// moveToGlobal transfers the object held by the local at off into the global's cell.
func (c *Compiler) moveToGlobal(off int, dt types.DataType, prop *types.GlobalProperty, bc *bytecode.Fragment) {
	if dt.Object == nil {
		return
	}
	bc.InstrVar(bytecode.PshVPtr, off)
	bc.InstrDW(bytecode.PGA, prop.Index)
	bc.InstrType(bytecode.REFCPY, dt.Object)
	bc.Pop(c.ptr)
	if dt.IsObjectHandle() || dt.Object.Beh.Release != 0 {
		bc.InstrVarType(bytecode.FREE, off, dt.Object)
	} else {
		bc.InstrVarArg(bytecode.SetV4, off, 0)
	}
}

func (c *Compiler) assignToGlobal(prop *types.GlobalProperty, rctx *exprContext, node *ast.Node, bc *bytecode.Fragment) {
	dt := prop.Type
	var pure types.Constant
	if dt.IsPrimitive() {
		if rctx.typ.dataType.Ref {
			c.convertToVariable(rctx)
		}
		to := dt.WithRef(false)
		c.implicitConversion(rctx, to, node, convImplicit, true, nil, true)
		if dt.Const && rctx.typ.isConstant && rctx.typ.dataType.IsEqualExceptRefAndConst(to) {
			pure = rctx.typ.constant
		}
	}

	lctx, ctx := newExprContext(), newExprContext()
	c.accessGlobal(prop, true, lctx)
	lctx.typ.dataType = lctx.typ.dataType.WithReadOnly(false)
	lctx.typ.isExplicitHandle = dt.IsObjectHandle()

	c.doAssignment(ctx, lctx, rctx, node, node, token.Eq, node)
	if !ctx.typ.dataType.IsPrimitive() {
		ctx.bc.Pop(c.ptr)
	}
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)

	if pure != nil && !c.hasErrors {
		prop.IsPureConstant = true
		prop.Constant = pure
	}
}

// EvalConstant compiles expr and returns its value converted to dt. ok is false when the
// expression is not a compile time constant.
func EvalConstant(b Builder, rep *util.Reporter, expr *ast.Node, dt types.DataType) (types.Constant, bool) {
	c := newCompiler(b, rep)
	c.fn = &types.Function{Name: "const", Return: c.voidType()}
	c.scopes.push(false, false)
	ctx := newExprContext()
	if !c.compileAssignment(expr, ctx) {
		return nil, false
	}
	if !ctx.typ.isConstant {
		c.error(expr.Tok, "Expression must be constant")
		return nil, false
	}
	c.implicitConversion(ctx, dt, expr, convImplicit, true, nil, true)
	if !ctx.typ.isConstant || !ctx.typ.dataType.IsEqualExceptRefAndConst(dt) {
		c.error(expr.Tok, txtCantImplicitlyConvert, ctx.typ.dataType.Format(), dt.Format())
		return nil, false
	}
	return ctx.typ.constant, !c.hasErrors
}
