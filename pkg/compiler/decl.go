package compiler

import (
	"strconv"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

// compileDeclaration declares one or more locals and compiles their initialization.
func (c *Compiler) compileDeclaration(node *ast.Node, bc *bytecode.Fragment) {
	if node.Type == ast.MultiVarDecl {
		for _, decl := range node.Data.(ast.MultiVarDeclNode).Decls {
			c.compileDeclaration(decl, bc)
		}
		return
	}

	d := node.Data.(ast.VarDeclNode)
	dt, err := c.b.DataType(d.Type)
	if err != nil {
		c.error(node.Tok, "%s", err.Error())
		dt = types.Primitive(types.Int, false)
	}
	if !dt.CanBeInstanced() {
		c.error(node.Tok, "Data type can't be '%s'", dt.Format())
		dt = types.Primitive(types.Int, false)
	}

	offset := c.allocateVariable(dt, false)
	v, err := c.scopes.declare(d.Name, dt, offset)
	if err != nil {
		c.error(node.Tok, "%s", err.Error())
		c.deallocateVariable(offset)
		return
	}
	c.compileInitialization(v, node, d, bc)
}

// compileInitialization gives a new variable its first value: constructor arguments, an
// initialization list, an assigned expression or the default constructor.
func (c *Compiler) compileInitialization(v *variable, node *ast.Node, d ast.VarDeclNode, bc *bytecode.Fragment) {
	switch {
	case d.HasArgs:
		c.compileConstructorInit(v, node, d.Args, bc)
	case d.Init != nil && d.Init.Type == ast.InitList:
		c.compileInitList(v, d.Init, bc)
	case d.Init != nil:
		c.callDefaultConstructor(v.dt, v.offset, bc, node)
		c.compileAssignInit(v, d.Init, bc)
	default:
		c.callDefaultConstructor(v.dt, v.offset, bc, node)
	}
}

// lvalueOf describes the variable as a writable destination, whatever its constness.
func (c *Compiler) lvalueOf(v *variable, ctx *exprContext) {
	dt := v.dt.WithReadOnly(false)
	if dt.IsPrimitive() {
		ctx.typ.setVariable(dt, v.offset, false)
		return
	}
	ctx.bc.InstrVar(bytecode.PSF, v.offset)
	ctx.typ.setVariable(dt.WithRef(true), v.offset, false)
	ctx.typ.isExplicitHandle = dt.IsObjectHandle()
}

func (c *Compiler) compileAssignInit(v *variable, init *ast.Node, bc *bytecode.Fragment) {
	rctx := newExprContext()
	if !c.compileAssignment(init, rctx) {
		v.initialized = true
		return
	}
	c.assignToVariable(v, rctx, init, bc)
}

// assignToVariable stores an already compiled value in v. Constant values given to const
// primitives make v a pure constant.
func (c *Compiler) assignToVariable(v *variable, rctx *exprContext, init *ast.Node, bc *bytecode.Fragment) {
	var pure types.Constant
	if v.dt.IsPrimitive() {
		if rctx.typ.dataType.Ref {
			c.convertToVariable(rctx)
		}
		to := v.dt.WithRef(false)
		c.implicitConversion(rctx, to, init, convImplicit, true, nil, true)
		if v.dt.Const && rctx.typ.isConstant && rctx.typ.dataType.IsEqualExceptRefAndConst(to) {
			pure = rctx.typ.constant
		}
	}

	lctx, ctx := newExprContext(), newExprContext()
	c.lvalueOf(v, lctx)
	c.doAssignment(ctx, lctx, rctx, init, init, token.Eq, init)
	if !ctx.typ.dataType.IsPrimitive() {
		ctx.bc.Pop(c.ptr)
	}
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)
	v.initialized = true

	if pure != nil {
		v.pureConstant = true
		v.constant = pure
	}
}

func (c *Compiler) compileConstructorInit(v *variable, node *ast.Node, argNodes []*ast.Node, bc *bytecode.Fragment) {
	dt := v.dt
	if dt.IsPrimitive() {
		ctx := newExprContext()
		var expr *ast.Node
		if len(argNodes) == 1 {
			expr = argNodes[0]
		}
		if !c.compileConversion(node, dt.WithReadOnly(false), expr, convExplicitValue, ctx) {
			v.initialized = true
			return
		}
		c.assignToVariable(v, ctx, node, bc)
		return
	}
	if dt.IsObjectHandle() {
		c.error(node.Tok, "Handles can't be initialized with a constructor")
		return
	}

	args, ok := c.compileArgumentList(argNodes)
	if !ok {
		return
	}
	ctx := newExprContext()
	if len(args) == 1 && args[0].typ.dataType == c.voidType() {
		ctx.merge(args[0])
		args = nil
	}
	if len(args) == 0 {
		bc.AddCode(&ctx.bc)
		c.callDefaultConstructor(dt, v.offset, bc, node)
		return
	}

	ot := dt.Object
	funcs := ot.Beh.Constructors
	if ot.IsRef() {
		funcs = ot.Beh.Factories
	}
	funcs = c.matchFunctions(funcs, args, node, ot.Name, nil, false, false, true)
	if len(funcs) != 1 {
		return
	}
	f := c.funcDesc(funcs[0])

	if ot.IsRef() {
		c.prepareFunctionCall(f.ID, &ctx.bc, args)
		c.moveArgsToStack(f.ID, &ctx.bc, args, false)
		c.performFunctionCallInto(f.ID, ctx, args, v.offset)
		ctx.bc.Pop(c.ptr)
	} else {
		ctx.bc.InstrVar(bytecode.VAR, v.offset)
		c.prepareFunctionCall(f.ID, &ctx.bc, args)
		c.moveArgsToStack(f.ID, &ctx.bc, args, false)
		ctx.bc.InstrDW(bytecode.GETREF, f.SpaceNeededForArguments(c.ptr))
		c.performConstructorCall(f.ID, ctx, args, ot)
	}
	bc.AddCode(&ctx.bc)
}

// compileInitList creates the container with the size-taking factory and assigns each
// element through opIndex.
func (c *Compiler) compileInitList(v *variable, list *ast.Node, bc *bytecode.Fragment) {
	if !c.feature(config.FeatInitLists) {
		c.error(list.Tok, "Initialization lists are disabled")
		return
	}
	elems := list.Data.(ast.InitListNode).Elems
	ot := v.dt.Object
	if v.dt.IsObjectHandle() || ot == nil || !ot.IsRef() || len(ot.Beh.OperatorFuncs(types.BehIndex)) == 0 {
		c.error(list.Tok, "Initialization lists cannot be used with '%s'", v.dt.Format())
		return
	}

	size := newExprContext()
	size.typ.setConstant(types.Primitive(types.Uint, true), types.UintConst(uint64(len(elems))))
	var factory int
	for _, id := range ot.Beh.Factories {
		f := c.funcDesc(id)
		if len(f.Params) == 1 && f.Params[0].IsEqualExceptRefAndConst(types.Primitive(types.Uint, false)) {
			factory = id
		}
	}
	if factory == 0 {
		c.error(list.Tok, "The type '%s' has no factory that takes the length of the list", v.dt.Format())
		return
	}

	ctx := newExprContext()
	args := []*exprContext{size}
	c.prepareFunctionCall(factory, &ctx.bc, args)
	c.moveArgsToStack(factory, &ctx.bc, args, false)
	c.performFunctionCallInto(factory, ctx, args, v.offset)
	ctx.bc.Pop(c.ptr)
	bc.AddCode(&ctx.bc)

	var setters []int
	for _, id := range ot.Beh.OperatorFuncs(types.BehIndex) {
		if !c.funcDesc(id).IsConst {
			setters = append(setters, id)
		}
	}

	for i, elem := range elems {
		if elem == nil {
			continue
		}
		if elem.Type == ast.InitList {
			c.error(elem.Tok, "Nested initialization lists are not supported")
			continue
		}
		rctx := newExprContext()
		if !c.compileAssignment(elem, rctx) {
			continue
		}

		index := &ast.Node{
			Type:   ast.Number,
			Tok:    elem.Tok,
			Parent: list,
			Data:   ast.NumberNode{Kind: token.Number, Text: strconv.Itoa(i)},
		}
		lctx := newExprContext()
		lctx.bc.InstrVar(bytecode.PSF, v.offset)
		lctx.typ.setVariable(v.dt.WithReadOnly(false).WithRef(true), v.offset, false)
		c.compileMethodCall(elem, "opIndex", setters, []*ast.Node{index}, lctx)

		ectx := newExprContext()
		c.doAssignment(ectx, lctx, rctx, elem, elem, token.Eq, elem)
		if !ectx.typ.dataType.IsPrimitive() {
			ectx.bc.Pop(c.ptr)
		}
		c.releaseTemporary(&ectx.typ, &ectx.bc)
		c.processDeferredParams(ectx)
		bc.AddCode(&ectx.bc)
	}
	v.initialized = true
}

// callDefaultConstructor initializes the variable at offset: handles become null, value
// types run their default constructor and reference types their default factory.
func (c *Compiler) callDefaultConstructor(dt types.DataType, offset int, bc *bytecode.Fragment, node *ast.Node) {
	switch {
	case dt.IsObjectHandle():
		bc.InstrVarArg(bytecode.SetV4, offset, 0)

	case !dt.IsObject():
		return

	case dt.Object.IsRef():
		ot := dt.Object
		if ot.Beh.Factory == 0 {
			c.error(nodeTok(node), "No default constructor for object of type '%s'.", ot.Name)
			return
		}
		ctx := newExprContext()
		c.performFunctionCallInto(ot.Beh.Factory, ctx, nil, offset)
		ctx.bc.Pop(c.ptr)
		bc.AddCode(&ctx.bc)

	default:
		ot := dt.Object
		if ot.Beh.Construct == 0 && !ot.IsPOD() {
			c.error(nodeTok(node), "No default constructor for object of type '%s'.", ot.Name)
			return
		}
		bc.InstrVar(bytecode.PSF, offset)
		bc.Alloc(ot, ot.Beh.Construct, c.ptr)
	}
}

// callDestructor releases the object or handle held by the variable at offset.
func (c *Compiler) callDestructor(dt types.DataType, offset int, bc *bytecode.Fragment) {
	if !dt.IsObject() || dt.Object == nil {
		return
	}
	bc.InstrVarType(bytecode.FREE, offset, dt.Object)
}
