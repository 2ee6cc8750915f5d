package compiler

import (
	"strings"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

// paramMode is the effective mode of parameter n; bare references are &inout.
func paramMode(f *types.Function, n int) types.ParamMode {
	if n < len(f.Modes) && f.Modes[n] != types.ModeNone {
		return f.Modes[n]
	}
	if f.Params[n].Ref {
		return types.ModeInOut
	}
	return types.ModeNone
}

// compileArgumentList compiles the arguments right to left, the order they are pushed in.
func (c *Compiler) compileArgumentList(nodes []*ast.Node) ([]*exprContext, bool) {
	args := make([]*exprContext, len(nodes))
	ok := true
	for n := len(nodes) - 1; n >= 0; n-- {
		expr := newExprContext()
		if !c.compileAssignment(nodes[n], expr) {
			ok = false
		}
		arg := newExprContext()
		arg.merge(expr)
		arg.typ = expr.typ
		arg.exprNode = nodes[n]
		args[n] = arg
	}
	return args, ok
}

// matchFunctions narrows funcs to the candidates that best accept args. Unless silent, it
// reports when there is no single best candidate.
func (c *Compiler) matchFunctions(funcs []int, args []*exprContext, node *ast.Node, name string, objType *types.ObjectType, isConstMethod, silent, allowObjectConstruct bool) []int {
	var arity []int
	for _, id := range funcs {
		if len(c.funcDesc(id).Params) == len(args) {
			arity = append(arity, id)
		}
	}

	matching := arity
	for n, arg := range args {
		found := c.matchArgument(arity, &arg.typ, n, allowObjectConstruct)
		var kept []int
		for _, id := range matching {
			if contains(found, id) {
				kept = append(kept, id)
			}
		}
		matching = kept
	}

	if !isConstMethod {
		matching = c.filterConst(matching)
	}

	if len(matching) != 1 && !silent {
		var sb strings.Builder
		if objType != nil {
			sb.WriteString(objType.Name)
			sb.WriteString("::")
		}
		sb.WriteString(name)
		sb.WriteString("(")
		for n, arg := range args {
			if n > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(arg.typ.dataType.Format())
		}
		sb.WriteString(")")
		if isConstMethod {
			sb.WriteString(" const")
		}
		if len(matching) == 0 {
			c.error(nodeTok(node), "No matching signatures to '%s'", sb.String())
		} else {
			c.error(nodeTok(node), "Multiple matching signatures to '%s'", sb.String())
		}
	}
	return matching
}

// matchArgument returns the candidates that accept argType as parameter paramNum, keeping
// only those in the best conversion rank found.
func (c *Compiler) matchArgument(funcs []int, argType *exprType, paramNum int, allowObjectConstruct bool) []int {
	const (
		rankNone = iota
		rankVarType
		rankConversion
		rankExceptSign
		rankBaseType
		rankExceptConst
		rankExact
	)
	best := rankNone
	var matches []int
	for _, id := range funcs {
		f := c.funcDesc(id)
		if len(f.Params) <= paramNum {
			continue
		}
		param := f.Params[paramNum]

		ti := newExprContext()
		ti.typ = *argType
		if argType.dataType.IsPrimitive() {
			ti.typ.dataType = ti.typ.dataType.WithRef(false)
		}
		c.implicitConversion(ti, param, nil, convImplicit, false, nil, allowObjectConstruct)
		if !param.IsEqualExceptRef(ti.typ.dataType) {
			continue
		}

		arg, conv := argType.dataType, ti.typ.dataType
		rank := rankVarType
		switch {
		case arg.IsEqualExceptRef(conv):
			rank = rankExact
		case arg.IsEqualExceptRefAndConst(conv):
			rank = rankExceptConst
		case arg.IsSamePrimitiveBaseType(conv):
			rank = rankBaseType
		case (arg.IsIntegerType() && conv.IsUnsignedType()) || (arg.IsUnsignedType() && conv.IsIntegerType()):
			rank = rankExceptSign
		case !param.IsVarType():
			rank = rankConversion
		}

		switch {
		case rank > best:
			best = rank
			matches = []int{id}
		case rank == best:
			matches = append(matches, id)
		}
	}
	return matches
}

// filterConst prefers non-const methods when both const and non-const overloads match.
func (c *Compiler) filterConst(funcs []int) []int {
	if len(funcs) == 0 || c.funcDesc(funcs[0]).Object == nil {
		return funcs
	}
	nonConst := false
	for _, id := range funcs {
		if !c.funcDesc(id).IsConst {
			nonConst = true
			break
		}
	}
	if !nonConst {
		return funcs
	}
	var kept []int
	for _, id := range funcs {
		if !c.funcDesc(id).IsConst {
			kept = append(kept, id)
		}
	}
	return kept
}

// pushVariableOnStack pushes the variable's address, or its value for primitives by value.
func (c *Compiler) pushVariableOnStack(ctx *exprContext, asReference bool) {
	if asReference {
		ctx.bc.InstrVar(bytecode.PSF, ctx.typ.stackOffset)
		ctx.typ.dataType = ctx.typ.dataType.WithRef(true)
		return
	}
	if ctx.typ.dataType.SizeInMemoryDWords(c.ptr) == 1 {
		ctx.bc.InstrVar(bytecode.PshV4, ctx.typ.stackOffset)
	} else {
		ctx.bc.InstrVar(bytecode.PshV8, ctx.typ.stackOffset)
	}
}

// prepareArgument emits the code that puts an argument where the callee expects it.
// Pointer arguments are left as VAR placeholders that moveArgsToStack resolves once every
// argument has been evaluated.
func (c *Compiler) prepareArgument(paramType types.DataType, ctx *exprContext, node *ast.Node, isFunction bool, mode types.ParamMode, reserved []int) {
	param := paramType
	if paramType.IsVarType() {
		param = ctx.typ.dataType
		param, _ = param.WithHandle(ctx.typ.isExplicitHandle)
		param = param.WithRef(paramType.Ref).WithReadOnly(paramType.IsReadOnly())
	}
	dt := param

	switch {
	case isFunction && dt.Ref:
		if paramType.IsVarType() {
			var pre bytecode.Fragment
			pre.InstrArg(bytecode.TYPEID, uint64(c.b.TypeID(param)))
			pre.AddCode(&ctx.bc)
			ctx.bc.AddCode(&pre)
		}
		dt = dt.WithRef(false).WithReadOnly(false)

		switch mode {
		case types.ModeIn:
			c.prepareInArgument(param, paramType, dt, ctx, node, reserved)
		case types.ModeOut:
			vars := append(ctx.bc.VarsUsed(), reserved...)
			off := c.allocateVariableNotIn(dt, true, vars)
			if dt.IsPrimitive() {
				ctx.typ.setVariable(dt, off, true)
				c.pushVariableOnStack(ctx, true)
				break
			}
			var pre bytecode.Fragment
			c.callDefaultConstructor(dt, off, &pre, node)
			pre.AddCode(&ctx.bc)
			ctx.bc.AddCode(&pre)

			ref := dt.WithRef(!dt.IsObject() || dt.IsObjectHandle())
			ctx.typ = exprType{dataType: ref, isTemporary: true, stackOffset: off}
			ctx.bc.InstrVar(bytecode.PSF, off)
			if dt.IsObject() && !dt.IsObjectHandle() {
				ctx.bc.Instr(bytecode.RDSPtr)
			}
		default:
			c.prepareInOutArgument(ctx, reserved)
		}

	case dt.IsPrimitive():
		c.isVariableInitialized(&ctx.typ, node)
		if ctx.typ.dataType.Ref {
			c.convertToVariable(ctx)
		}
		c.implicitConversion(ctx, dt, node, convImplicit, true, reserved, true)
		if ctx.typ.isConstant {
			c.convertToVariable(ctx)
		}
		if ctx.typ.isVariable {
			c.pushVariableOnStack(ctx, dt.Ref)
		}

	default:
		c.isVariableInitialized(&ctx.typ, node)
		c.implicitConversion(ctx, dt, node, convImplicit, true, reserved, true)
		if !ctx.typ.dataType.IsEqualExceptRef(dt) {
			c.error(nodeTok(node), txtCantImplicitlyConvert, ctx.typ.dataType.Format(), dt.Format())
			ctx.typ.set(dt)
		}
		if dt.IsObjectHandle() {
			ctx.typ.isExplicitHandle = true
		}
		if dt.IsObject() && !dt.Ref && !ctx.typ.isTemporary {
			c.prepareTemporaryObject(node, ctx, reserved)
		}
	}

	if param.Ref || param.IsObject() {
		if !(isFunction && param.Ref && mode == types.ModeInOut) {
			ctx.bc.Pop(c.ptr)
			ctx.bc.InstrVar(bytecode.VAR, ctx.typ.stackOffset)
		}
		c.processDeferredParams(ctx)
	}
}

func (c *Compiler) prepareInArgument(param, paramType, dt types.DataType, ctx *exprContext, node *ast.Node, reserved []int) {
	if dt.IsNullHandle() {
		// The handle variable's address is already on the stack
		c.convertToVariable(ctx)
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(param.IsReadOnly())
		return
	}
	if dt.IsPrimitive() {
		c.isVariableInitialized(&ctx.typ, node)
		if ctx.typ.dataType.Ref {
			c.convertToVariable(ctx)
		}
		c.implicitConversion(ctx, dt, node, convImplicit, true, reserved, true)
		if !(param.IsReadOnly() && ctx.typ.isVariable) {
			c.convertToTempVariable(ctx)
		}
		c.pushVariableOnStack(ctx, true)
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(param.IsReadOnly())
		return
	}

	c.isVariableInitialized(&ctx.typ, node)
	c.implicitConversion(ctx, param, node, convImplicit, true, reserved, true)
	if !ctx.typ.dataType.IsEqualExceptRef(param) {
		c.error(nodeTok(node), txtCantImplicitlyConvert, ctx.typ.dataType.Format(), param.Format())
		ctx.typ.set(param)
	}
	if ctx.typ.isTemporary || (param.IsReadOnly() && ctx.typ.isVariable) {
		return
	}

	vars := append(ctx.bc.VarsUsed(), reserved...)
	off := c.allocateVariableNotIn(dt, true, vars)
	var pre bytecode.Fragment
	c.callDefaultConstructor(dt, off, &pre, node)
	pre.AddCode(&ctx.bc)
	ctx.bc.AddCode(&pre)

	c.prepareForAssignment(dt, ctx, node, nil)

	tmp := exprType{dataType: dt.WithRef(true), isTemporary: true, stackOffset: off}
	if dt.IsObjectHandle() {
		tmp.isExplicitHandle = true
	}
	ctx.bc.InstrVar(bytecode.PSF, off)
	c.performAssignment(&tmp, &ctx.typ, &ctx.bc, node)
	ctx.bc.Pop(ctx.typ.dataType.SizeOnStackDWords(c.ptr))
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	ctx.typ = tmp

	ctx.bc.InstrVar(bytecode.PSF, off)
	if dt.IsObject() && !dt.IsObjectHandle() {
		ctx.bc.Instr(bytecode.RDSPtr)
	}
	if paramType.IsReadOnly() {
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
	}
}

// prepareInOutArgument passes a genuine reference. Objects that are not held by a local
// are kept alive by a temporary handle for the duration of the call.
func (c *Compiler) prepareInOutArgument(ctx *exprContext, reserved []int) {
	dt := ctx.typ.dataType
	if !c.feature(config.FeatUnsafeRefs) && !ctx.typ.isVariable && dt.IsObject() && !dt.IsObjectHandle() &&
		dt.Object.Beh.AddRef != 0 && dt.Object.Beh.Release != 0 {
		h, _ := dt.WithHandle(true)
		h = h.WithRef(false)
		vars := append(ctx.bc.VarsUsed(), reserved...)
		off := c.allocateVariableNotIn(h, true, vars)
		if dt.Ref {
			ctx.bc.Instr(bytecode.RDSPtr)
		}
		ctx.bc.InstrVar(bytecode.PSF, off)
		ctx.bc.InstrType(bytecode.REFCPY, dt.Object)
		ctx.bc.Pop(c.ptr)
		ctx.bc.InstrVar(bytecode.PSF, off)
		if ctx.typ.isTemporary {
			c.releaseTemporaryOffset(ctx.typ.stackOffset, &ctx.bc)
		}
		ctx.typ.setVariable(dt.WithRef(true), off, true)
	}

	if ctx.typ.dataType.IsPrimitive() && !ctx.typ.isVariable && !ctx.typ.dataType.Ref {
		c.convertToTempVariable(ctx)
	}

	switch {
	case ctx.typ.dataType.IsObject() && ctx.typ.dataType.Ref:
		c.dereference(ctx, true)
	case ctx.typ.isVariable:
		ctx.bc.InstrVar(bytecode.PSF, ctx.typ.stackOffset)
	case ctx.typ.dataType.IsPrimitive():
		ctx.bc.Instr(bytecode.PshRPtr)
	}
}

// prepareArgument2 prepares arg for a parameter and appends its code to ctx. The expression
// of an &out argument is only evaluated after the call, when the result is written back.
func (c *Compiler) prepareArgument2(ctx, arg *exprContext, paramType types.DataType, isFunction bool, mode types.ParamMode, reserved []int) {
	e := newExprContext()
	if !paramType.Ref || mode != types.ModeOut {
		e.merge(arg)
	} else {
		orig := newExprContext()
		orig.merge(arg)
		orig.exprNode = arg.exprNode
		orig.typ = arg.typ
		arg.origExpr = orig
	}
	e.typ = arg.typ
	c.prepareArgument(paramType, e, arg.exprNode, isFunction, mode, reserved)
	arg.typ = e.typ
	ctx.bc.AddCode(&e.bc)
	ctx.deferred = append(ctx.deferred, e.deferred...)
}

// prepareFunctionCall emits the arguments, last one first.
func (c *Compiler) prepareFunctionCall(funcID int, bc *bytecode.Fragment, args []*exprContext) {
	f := c.funcDesc(funcID)
	c.protectArgumentResults(args)
	e := newExprContext()
	for n := len(args) - 1; n >= 0; n-- {
		var reserved []int
		for m := n - 1; m >= 0; m-- {
			reserved = append(reserved, args[m].bc.VarsUsed()...)
		}
		c.prepareArgument2(e, args[n], f.Params[n], true, paramMode(f, n), reserved)
	}
	bc.AddCode(&e.bc)
}

// protectArgumentResults moves the scratch variables of earlier arguments off the slots that
// hold the results of later ones. Arguments run last to first.
func (c *Compiler) protectArgumentResults(args []*exprContext) {
	for n := len(args) - 1; n > 0; n-- {
		if !args[n].typ.isTemporary {
			continue
		}
		live := args[n].typ.stackOffset
		dt, ok := c.alloc.allocatedType(live)
		if !ok {
			continue
		}
		for m := n - 1; m >= 0; m-- {
			if !args[m].bc.IsVarUsed(live) {
				continue
			}
			var used []int
			for _, a := range args {
				used = append(used, a.bc.VarsUsed()...)
				if a.typ.isTemporary {
					used = append(used, a.typ.stackOffset)
				}
			}
			off := c.allocateVariableNotIn(dt, true, used)
			args[m].bc.ExchangeVar(live, off)
			c.releaseTemporaryOffset(off, nil)
		}
	}
}

// moveArgsToStack replaces the VAR placeholders left by prepareArgument with the real
// pointers, right before the call.
func (c *Compiler) moveArgsToStack(funcID int, bc *bytecode.Fragment, args []*exprContext, addOneToOffset bool) {
	f := c.funcDesc(funcID)
	offset := 0
	if addOneToOffset {
		offset += c.ptr
	}
	for n, p := range f.Params {
		if n >= len(args) {
			break
		}
		mode := paramMode(f, n)
		switch {
		case p.Ref && p.IsObject() && !p.IsObjectHandle():
			if mode != types.ModeInOut {
				bc.InstrDW(bytecode.GETOBJREF, offset)
			}
			if args[n].typ.dataType.IsObjectHandle() {
				bc.InstrDW(bytecode.ChkNullS, offset)
			}
		case p.Ref:
			if mode != types.ModeInOut {
				bc.InstrDW(bytecode.GETREF, offset)
			}
		case p.IsObject():
			bc.InstrDW(bytecode.GETOBJ, offset)
			// The callee owns the object now
			c.deallocateVariable(args[n].typ.stackOffset)
			args[n].typ.isTemporary = false
		}
		offset += p.SizeOnStackDWords(c.ptr)
	}
}

// afterFunctionCall releases argument temporaries, or defers them when their value is still
// needed: output parameters and anything a returned reference may point into.
func (c *Compiler) afterFunctionCall(funcID int, args []*exprContext, ctx *exprContext, deferAll bool) {
	f := c.funcDesc(funcID)
	// Parameters past args were pushed by the caller itself, like the id of a string literal
	for n := min(len(f.Params), len(args)) - 1; n >= 0; n-- {
		p := f.Params[n]
		mode := paramMode(f, n)
		if (p.Ref && (mode == types.ModeOut || mode == types.ModeInOut)) || (p.IsObject() && deferAll) {
			if c.feature(config.FeatUnsafeRefs) || mode != types.ModeInOut || args[n].typ.isTemporary {
				ctx.deferred = append(ctx.deferred, deferredParam{
					argNode:  args[n].exprNode,
					argType:  args[n].typ,
					mode:     mode,
					origExpr: args[n].origExpr,
				})
			}
			continue
		}
		c.releaseTemporary(&args[n].typ, &ctx.bc)
	}
}

// processDeferredParams writes &out results back to their lvalues and releases the
// temporaries that outlived the call.
func (c *Compiler) processDeferredParams(ctx *exprContext) {
	if c.isProcessingDeferredParams {
		return
	}
	c.isProcessingDeferredParams = true
	defer func() { c.isProcessingDeferredParams = false }()

	for _, out := range ctx.deferred {
		switch out.mode {
		case types.ModeNone, types.ModeIn:
			c.releaseTemporary(&out.argType, &ctx.bc)

		case types.ModeOut:
			expr := out.origExpr
			if expr == nil {
				c.releaseTemporary(&out.argType, &ctx.bc)
				continue
			}
			if out.argType.dataType.IsObjectHandle() && expr.typ.dataType.IsObjectHandle() {
				expr.typ.isExplicitHandle = true
			}
			if isLValue(&expr.typ) {
				rctx := newExprContext()
				rctx.typ = out.argType
				if rctx.typ.dataType.IsPrimitive() {
					rctx.typ.dataType = rctx.typ.dataType.WithRef(false)
				} else {
					rctx.bc.InstrVar(bytecode.PSF, out.argType.stackOffset)
					rctx.typ.dataType = rctx.typ.dataType.WithRef(true)
					if expr.typ.isExplicitHandle {
						rctx.typ.isExplicitHandle = true
					}
				}
				o := newExprContext()
				c.doAssignment(o, expr, rctx, out.argNode, out.argNode, token.Eq, out.argNode)
				if !o.typ.dataType.IsPrimitive() {
					o.bc.Pop(c.ptr)
				}
				ctx.merge(o)
			} else {
				ctx.merge(expr)
				if !expr.typ.isConstant && !expr.typ.dataType.IsPrimitive() && !expr.typ.dataType.IsVoid() {
					ctx.bc.Pop(c.ptr)
				}
				c.warn(config.WarnArgNotLValue, nodeTok(out.argNode), "Argument cannot be assigned. Output will be discarded.")
				c.releaseTemporary(&out.argType, &ctx.bc)
			}
			c.releaseTemporary(&expr.typ, &ctx.bc)

		case types.ModeInOut:
			if out.argType.isTemporary {
				c.releaseTemporary(&out.argType, &ctx.bc)
			}
		}
	}
	ctx.deferred = nil
}

func (c *Compiler) callOp(f *types.Function) bytecode.Op {
	switch f.Kind {
	case types.SystemFunc:
		return bytecode.CALLSYS
	case types.InterfaceFunc:
		return bytecode.CALLINTF
	}
	if f.Object != nil && f.Object.IsScript() && !f.IsConstructor() {
		return bytecode.CALLINTF
	}
	return bytecode.CALL
}

func (c *Compiler) performFunctionCall(funcID int, ctx *exprContext, args []*exprContext) {
	c.performCall(funcID, ctx, args, false, 0)
}

// performFunctionCallInto stores a returned object directly in the variable at offset.
func (c *Compiler) performFunctionCallInto(funcID int, ctx *exprContext, args []*exprContext, offset int) {
	c.performCall(funcID, ctx, args, true, offset)
}

// performConstructorCall allocates an object of type ot with constructor funcID. The
// destination pointer must already be below the arguments on the stack.
func (c *Compiler) performConstructorCall(funcID int, ctx *exprContext, args []*exprContext, ot *types.ObjectType) {
	f := c.funcDesc(funcID)
	ctx.bc.Alloc(ot, funcID, f.SpaceNeededForArguments(c.ptr)+c.ptr)
	ctx.typ.set(c.voidType())
	c.afterFunctionCall(funcID, args, ctx, false)
	c.processDeferredParams(ctx)
}

func (c *Compiler) performCall(funcID int, ctx *exprContext, args []*exprContext, useVariable bool, varOffset int) {
	f := c.funcDesc(funcID)
	ctx.typ.set(f.Return)
	ctx.bc.Call(c.callOp(f), funcID, f.SpaceNeededForCall(c.ptr))

	ret := f.Return
	switch {
	case ret.IsObject() && !ret.Ref:
		off := varOffset
		if useVariable {
			ctx.typ.setVariable(ret, off, false)
		} else {
			off = c.allocateVariable(ret, true)
			ctx.typ.setVariable(ret, off, true)
		}
		ctx.typ.dataType = ctx.typ.dataType.WithRef(true)
		ctx.bc.InstrVar(bytecode.STOREOBJ, off)
		c.afterFunctionCall(funcID, args, ctx, false)
		c.processDeferredParams(ctx)
		ctx.bc.InstrVar(bytecode.PSF, off)

	case ret.Ref:
		// Arguments stay alive: the reference may point into one of them
		c.afterFunctionCall(funcID, args, ctx, true)
		if !ret.IsPrimitive() {
			ctx.bc.Instr(bytecode.PshRPtr)
			if ret.IsObject() && !ret.IsObjectHandle() {
				ctx.typ.dataType = ctx.typ.dataType.WithRef(false)
			}
		}

	default:
		if ret.SizeInMemoryBytes(c.ptr) > 0 {
			off := c.allocateVariable(ret, true)
			ctx.typ.setVariable(ret, off, true)
			if ret.SizeOnStackDWords(c.ptr) == 1 {
				ctx.bc.InstrVar(bytecode.CpyRtoV4, off)
			} else {
				ctx.bc.InstrVar(bytecode.CpyRtoV8, off)
			}
		}
		c.afterFunctionCall(funcID, args, ctx, false)
		c.processDeferredParams(ctx)
	}
}

// compileFunctionCall resolves name among the global functions, or among objType's methods
// when the object pointer has already been emitted into ctx.
func (c *Compiler) compileFunctionCall(node *ast.Node, name string, argNodes []*ast.Node, ctx *exprContext, objType *types.ObjectType, objIsConst, isSuper bool) {
	var funcs []int
	switch {
	case objType != nil && isSuper:
		if objType.Base != nil {
			funcs = objType.Base.Beh.Constructors
		}
	case objType != nil:
		for _, id := range c.b.ObjectMethods(objType, name) {
			if !objIsConst || c.funcDesc(id).IsConst {
				funcs = append(funcs, id)
			}
		}
	default:
		funcs = c.b.GlobalFunctions(name)
	}

	args, ok := c.compileArgumentList(argNodes)
	if !ok {
		ctx.typ.setDummy()
		return
	}
	c.compileCallWithArgs(node, name, funcs, args, ctx, objType, objIsConst, isSuper)
}

// compileCallWithArgs picks the best of funcs for the compiled args and calls it. With an
// objType the object pointer must already be in ctx.
func (c *Compiler) compileCallWithArgs(node *ast.Node, name string, funcs []int, args []*exprContext, ctx *exprContext, objType *types.ObjectType, objIsConst, isSuper bool) {
	if len(args) == 1 && args[0].typ.dataType == c.voidType() {
		ctx.merge(args[0])
		args = nil
	}

	matchObj := objType
	if isSuper {
		matchObj = nil
	}
	funcs = c.matchFunctions(funcs, args, node, name, matchObj, objIsConst, false, true)
	if len(funcs) != 1 {
		ctx.typ.setDummy()
		return
	}

	var objBC bytecode.Fragment
	objBC.AddCode(&ctx.bc)
	c.prepareFunctionCall(funcs[0], &ctx.bc, args)

	// Argument temporaries must not clash with variables the object expression uses
	for _, arg := range args {
		if !arg.typ.isTemporary || !objBC.IsVarUsed(arg.typ.stackOffset) {
			continue
		}
		c.releaseTemporaryOffset(arg.typ.stackOffset, nil)
		used := append(objBC.VarsUsed(), ctx.bc.VarsUsed()...)
		off := c.allocateVariableNotIn(arg.typ.dataType.WithRef(false), true, used)
		ctx.bc.ExchangeVar(arg.typ.stackOffset, off)
		arg.typ.stackOffset = off
		arg.typ.isTemporary = true
		arg.typ.isVariable = true
	}

	ctx.bc.AddCode(&objBC)
	c.moveArgsToStack(funcs[0], &ctx.bc, args, objType != nil)
	c.performFunctionCall(funcs[0], ctx, args)
}

// compileConstructCall compiles T(args): a value cast, a constructor of a value type, or a
// factory of a reference type.
func (c *Compiler) compileConstructCall(node *ast.Node, ctx *exprContext) {
	d := node.Data.(ast.ConstructCallNode)
	dt, err := c.b.DataType(d.Type)
	if err != nil {
		c.error(node.Tok, "%s", err.Error())
		ctx.typ.setDummy()
		return
	}
	if dt.IsPrimitive() {
		var expr *ast.Node
		if len(d.Args) == 1 {
			expr = d.Args[0]
		}
		c.compileConversion(node, dt, expr, convExplicitValue, ctx)
		return
	}

	args, ok := c.compileArgumentList(d.Args)
	if !ok {
		ctx.typ.setDummy()
		return
	}

	if len(args) == 1 && args[0].typ.dataType.Object != nil {
		conv := newExprContext()
		conv.typ = args[0].typ
		c.implicitConversion(conv, dt, node, convExplicitValue, false, nil, true)
		if conv.typ.dataType.IsEqualExceptRef(dt) {
			c.implicitConversion(args[0], dt, node, convExplicitValue, true, nil, true)
			ctx.bc.AddCode(&args[0].bc)
			ctx.typ = args[0].typ
			return
		}
	}

	var funcs []int
	var tmp exprType
	isValue := dt.Object == nil || !dt.Object.IsRef()
	if dt.Object != nil {
		if isValue {
			funcs = dt.Object.Beh.Constructors
		} else {
			funcs = dt.Object.Beh.Factories
		}
	}
	if len(args) == 1 && args[0].typ.dataType == c.voidType() {
		ctx.merge(args[0])
		args = nil
	}

	if isValue {
		tmp = exprType{dataType: dt.WithRef(true), isTemporary: true, isVariable: true}
		tmp.stackOffset = c.allocateVariable(dt, true)
		ctx.bc.InstrVar(bytecode.VAR, tmp.stackOffset)
	}

	if len(args) == 0 && isValue {
		// Drop the VAR placeholder; the default constructor writes the variable itself
		ctx.bc.Code = ctx.bc.Code[:len(ctx.bc.Code)-1]
		c.callDefaultConstructor(dt, tmp.stackOffset, &ctx.bc, node)
		ctx.typ = tmp
		ctx.bc.InstrVar(bytecode.PSF, tmp.stackOffset)
		return
	}

	funcs = c.matchFunctions(funcs, args, node, dt.Format(), nil, false, false, true)
	if len(funcs) != 1 {
		ctx.typ.setDummy()
		return
	}

	c.prepareFunctionCall(funcs[0], &ctx.bc, args)
	c.moveArgsToStack(funcs[0], &ctx.bc, args, false)
	if !isValue {
		c.performFunctionCall(funcs[0], ctx, args)
		return
	}

	f := c.funcDesc(funcs[0])
	ctx.bc.InstrDW(bytecode.GETREF, f.SpaceNeededForArguments(c.ptr))
	c.performConstructorCall(funcs[0], ctx, args, dt.Object)
	ctx.typ = tmp
	ctx.bc.InstrVar(bytecode.PSF, tmp.stackOffset)
}
