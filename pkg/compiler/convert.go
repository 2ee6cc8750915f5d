package compiler

import (
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

type convKind int

const (
	convImplicit convKind = iota
	// convExplicitRef is cast<T>(expr)
	convExplicitRef
	// convExplicitValue is T(expr)
	convExplicitValue
)

const txtCantImplicitlyConvert = "Can't implicitly convert from '%s' to '%s'."

// implicitConversion converts ctx to the type to as far as the conversion rules allow. It
// never reports a mismatch itself for implicit conversions: callers compare the resulting
// type with what they wanted. With gen false only the resulting type is computed.
func (c *Compiler) implicitConversion(ctx *exprContext, to types.DataType, node *ast.Node, kind convKind, gen bool, reserved []int, allowObjectConstruct bool) {
	from := ctx.typ.dataType
	switch {
	case from.IsVoid():
		return
	case to.IsVarType():
		ctx.typ.dataType = to
	case to.IsPrimitive():
		if !from.IsPrimitive() {
			c.objectToPrimitive(ctx, to, node, kind, gen, reserved)
		} else {
			c.primitiveToPrimitive(ctx, to, node, kind, gen, reserved)
		}
	default:
		if from.IsPrimitive() {
			c.primitiveToObject(ctx, to, node, kind)
		} else {
			c.objectToObject(ctx, to, node, kind, gen, reserved, allowObjectConstruct)
		}
	}
}

// relabel changes the primitive kind of ctx's type without touching its modifiers.
func relabel(t *exprType, to types.DataType) {
	t.dataType.Kind = to.Kind
	t.dataType.Object = to.Object
}

// convertInPlace runs an in place conversion instruction on a temporary copy of ctx.
func (c *Compiler) convertInPlace(ctx *exprContext, op bytecode.Op, to types.DataType, reserved []int) {
	c.convertToTempVariableNotIn(ctx, reserved)
	ctx.bc.InstrVar(op, ctx.typ.stackOffset)
	relabel(&ctx.typ, to)
}

// convertToNew runs a size changing conversion into a fresh temporary of type to.
func (c *Compiler) convertToNew(ctx *exprContext, op bytecode.Op, to types.DataType, reserved []int) {
	c.convertToTempVariableNotIn(ctx, reserved)
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	to = to.WithRef(false)
	off := c.allocateVariableNotIn(to, true, reserved)
	ctx.bc.InstrVarVar(op, off, ctx.typ.stackOffset)
	ctx.typ.setVariable(to, off, true)
}

func (c *Compiler) primitiveToPrimitive(ctx *exprContext, to types.DataType, node *ast.Node, kind convKind, gen bool, reserved []int) {
	if ctx.typ.isConstant {
		c.implicitConversionConstant(&ctx.typ, to, node, kind)
		if !ctx.typ.dataType.IsSameBaseType(to) {
			return
		}
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(to.IsReadOnly())
		return
	}
	if gen && ctx.typ.dataType.Ref && !to.Ref {
		c.convertToVariableNotIn(ctx, reserved)
	}
	if ctx.typ.dataType == to {
		return
	}

	from := ctx.typ.dataType
	numeric := from.IsNumber()
	toEnum := to.IsEnumType() && kind == convExplicitValue
	if !gen {
		if numeric && (to.IsIntegerType() || to.IsUnsignedType() || to.IsFloatType() || to.IsDoubleType() || toEnum) {
			relabel(&ctx.typ, to)
		}
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(to.IsReadOnly())
		if !to.Ref {
			ctx.typ.dataType = ctx.typ.dataType.WithRef(false)
		}
		return
	}

	// Sub-word integers become words first
	if s := from.SizeInMemoryBytes(c.ptr); s < 4 && numeric {
		c.convertToTempVariableNotIn(ctx, reserved)
		off := ctx.typ.stackOffset
		if from.IsIntegerType() {
			if s == 1 {
				ctx.bc.InstrVar(bytecode.SBTOI, off)
			} else {
				ctx.bc.InstrVar(bytecode.SWTOI, off)
			}
			relabel(&ctx.typ, types.Primitive(types.Int, false))
		} else if from.IsUnsignedType() {
			if s == 1 {
				ctx.bc.InstrVar(bytecode.UBTOI, off)
			} else {
				ctx.bc.InstrVar(bytecode.UWTOI, off)
			}
			relabel(&ctx.typ, types.Primitive(types.Uint, false))
		}
	}

	dt := ctx.typ.dataType
	words := dt.SizeInMemoryDWords(c.ptr)
	intLike := dt.IsIntegerType() || dt.IsUnsignedType() || dt.IsEnumType()
	toWords := to.SizeInMemoryDWords(c.ptr)

	switch {
	case (to.IsIntegerType() || to.IsUnsignedType()) && toWords == 1, toEnum:
		signed := to.IsIntegerType() || to.IsEnumType()
		switch {
		case intLike && words == 1:
			relabel(&ctx.typ, to)
		case intLike:
			c.convertToNew(ctx, bytecode.I64TOI, to, reserved)
		case dt.IsFloatType() && signed:
			c.convertInPlace(ctx, bytecode.FTOI, to, reserved)
		case dt.IsFloatType():
			c.convertInPlace(ctx, bytecode.FTOU, to, reserved)
		case dt.IsDoubleType() && signed:
			c.convertToNew(ctx, bytecode.DTOI, to, reserved)
		case dt.IsDoubleType():
			c.convertToNew(ctx, bytecode.DTOU, to, reserved)
		}
		if s := to.SizeInMemoryBytes(c.ptr); s < 4 && ctx.typ.dataType.IsSameBaseType(to.Base()) {
			c.convertToTempVariableNotIn(ctx, reserved)
			if s == 1 {
				ctx.bc.InstrVar(bytecode.ITOB, ctx.typ.stackOffset)
			} else {
				ctx.bc.InstrVar(bytecode.ITOW, ctx.typ.stackOffset)
			}
		}

	case (to.IsIntegerType() || to.IsUnsignedType()) && toWords == 2:
		switch {
		case intLike && words == 2:
			relabel(&ctx.typ, to)
		case dt.IsUnsignedType():
			c.convertToNew(ctx, bytecode.UTOI64, to, reserved)
		case intLike:
			c.convertToNew(ctx, bytecode.ITOI64, to, reserved)
		case dt.IsFloatType() && to.IsIntegerType():
			c.convertToNew(ctx, bytecode.FTOI64, to, reserved)
		case dt.IsFloatType():
			c.convertToNew(ctx, bytecode.FTOU64, to, reserved)
		case dt.IsDoubleType() && to.IsIntegerType():
			c.convertInPlace(ctx, bytecode.DTOI64, to, reserved)
		case dt.IsDoubleType():
			c.convertInPlace(ctx, bytecode.DTOU64, to, reserved)
		}

	case to.IsFloatType():
		switch {
		case (dt.IsIntegerType() || dt.IsEnumType()) && words == 1:
			c.convertInPlace(ctx, bytecode.ITOF, to, reserved)
		case dt.IsIntegerType():
			c.convertToNew(ctx, bytecode.I64TOF, to, reserved)
		case dt.IsUnsignedType() && words == 1:
			c.convertInPlace(ctx, bytecode.UTOF, to, reserved)
		case dt.IsUnsignedType():
			c.convertToNew(ctx, bytecode.U64TOF, to, reserved)
		case dt.IsDoubleType():
			c.convertToNew(ctx, bytecode.DTOF, to, reserved)
		}

	case to.IsDoubleType():
		switch {
		case (dt.IsIntegerType() || dt.IsEnumType()) && words == 1:
			c.convertToNew(ctx, bytecode.ITOD, to, reserved)
		case dt.IsIntegerType():
			c.convertInPlace(ctx, bytecode.I64TOD, to, reserved)
		case dt.IsUnsignedType() && words == 1:
			c.convertToNew(ctx, bytecode.UTOD, to, reserved)
		case dt.IsUnsignedType():
			c.convertInPlace(ctx, bytecode.U64TOD, to, reserved)
		case dt.IsFloatType():
			c.convertToNew(ctx, bytecode.FTOD, to, reserved)
		}
	}

	ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(to.IsReadOnly())
}

// castPriority lists, per target kind, which primitive results of a value cast are tried
// first.
var castPriority = map[types.Kind][]types.Kind{
	types.Double: {types.Double, types.Float, types.Int64, types.Uint64, types.Int, types.Uint, types.Int16, types.Uint16, types.Int8, types.Uint8},
	types.Float:  {types.Float, types.Double, types.Int64, types.Uint64, types.Int, types.Uint, types.Int16, types.Uint16, types.Int8, types.Uint8},
	types.Int64:  {types.Int64, types.Uint64, types.Int, types.Uint, types.Int16, types.Uint16, types.Int8, types.Uint8, types.Double, types.Float},
	types.Uint64: {types.Uint64, types.Int64, types.Uint, types.Int, types.Uint16, types.Int16, types.Uint8, types.Int8, types.Double, types.Float},
	types.Int:    {types.Int, types.Uint, types.Int64, types.Uint64, types.Int16, types.Uint16, types.Int8, types.Uint8, types.Double, types.Float},
	types.Uint:   {types.Uint, types.Int, types.Uint64, types.Int64, types.Uint16, types.Int16, types.Uint8, types.Int8, types.Double, types.Float},
	types.Int16:  {types.Int16, types.Uint16, types.Int, types.Uint, types.Int64, types.Uint64, types.Int8, types.Uint8, types.Double, types.Float},
	types.Uint16: {types.Uint16, types.Int16, types.Uint, types.Int, types.Uint64, types.Int64, types.Uint8, types.Int8, types.Double, types.Float},
	types.Int8:   {types.Int8, types.Uint8, types.Int16, types.Uint16, types.Int, types.Uint, types.Int64, types.Uint64, types.Double, types.Float},
	types.Uint8:  {types.Uint8, types.Int8, types.Uint16, types.Int16, types.Uint, types.Int, types.Uint64, types.Int64, types.Double, types.Float},
}

// valueCasts returns the value cast behaviours of ot accepted by kind whose result satisfies want.
func (c *Compiler) valueCasts(ot *types.ObjectType, kind convKind, want func(*types.Function) bool) []int {
	if ot == nil {
		return nil
	}
	var funcs []int
	for _, op := range ot.Beh.Operators {
		if op.Beh != types.BehImplicitValueCast && (op.Beh != types.BehValueCast || kind != convExplicitValue) {
			continue
		}
		if f := c.funcDesc(op.Func); f != nil && want(f) {
			funcs = append(funcs, op.Func)
		}
	}
	return funcs
}

func (c *Compiler) objectToPrimitive(ctx *exprContext, to types.DataType, node *ast.Node, kind convKind, gen bool, reserved []int) {
	if ctx.typ.isExplicitHandle {
		if kind != convImplicit && node != nil {
			c.error(node.Tok, txtCantImplicitlyConvert, ctx.typ.dataType.Format(), to.Format())
		}
		return
	}

	funcs := c.valueCasts(ctx.typ.dataType.Object, kind, func(f *types.Function) bool {
		return f.Return.IsPrimitive()
	})

	funcID := 0
	for _, k := range castPriority[to.Kind] {
		for _, id := range funcs {
			if c.funcDesc(id).Return.Kind == k {
				funcID = id
				break
			}
		}
		if funcID != 0 {
			break
		}
	}

	if funcID == 0 {
		if kind != convImplicit && node != nil {
			c.error(node.Tok, txtCantImplicitlyConvert, ctx.typ.dataType.Format(), to.Format())
		}
		return
	}

	if gen {
		obj := ctx.typ
		c.dereference(ctx, true)
		c.performFunctionCall(funcID, ctx, nil)
		c.releaseTemporary(&obj, &ctx.bc)
	} else {
		ctx.typ.set(c.funcDesc(funcID).Return)
	}
	c.implicitConversion(ctx, to, node, kind, gen, reserved, false)
}

// primitiveToObject is never possible: the caller reports the mismatch.
func (c *Compiler) primitiveToObject(ctx *exprContext, to types.DataType, node *ast.Node, kind convKind) {
	if kind != convImplicit && node != nil && !ctx.typ.isNullConstant() {
		c.error(node.Tok, txtCantImplicitlyConvert, ctx.typ.dataType.Format(), to.Format())
		ctx.typ.setDummy()
	}
}

func (c *Compiler) objectToObject(ctx *exprContext, to types.DataType, node *ast.Node, kind convKind, gen bool, reserved []int, allowObjectConstruct bool) {
	if ctx.typ.isNullConstant() {
		if to.IsObjectHandle() {
			ctx.typ.dataType = to
		}
		return
	}

	if to.Object != ctx.typ.dataType.Object {
		from := ctx.typ.dataType.Object
		if from.Implements(to.Object) || from.DerivesFrom(to.Object) {
			ctx.typ.dataType.Object = to.Object
		}
		if ctx.typ.dataType.Object != to.Object {
			dt := ctx.typ.dataType
			isConst := (dt.IsObjectHandle() && dt.IsHandleToConst()) || (!dt.IsObjectHandle() && dt.IsReadOnly())
			c.compileRefCast(ctx, to, kind == convExplicitRef, gen)
			ctx.typ.dataType = ctx.typ.dataType.WithHandleToConst(isConst)
		}
	}

	if to.Object != ctx.typ.dataType.Object && allowObjectConstruct {
		funcs := c.valueCasts(ctx.typ.dataType.Object, kind, func(f *types.Function) bool {
			return f.Return.Object == to.Object
		})
		if len(funcs) > 0 {
			if gen {
				obj := ctx.typ
				c.dereference(ctx, true)
				c.performFunctionCall(funcs[0], ctx, nil)
				c.releaseTemporary(&obj, &ctx.bc)
			} else {
				ctx.typ.set(c.funcDesc(funcs[0]).Return)
			}
		}
	}

	if to.Object != ctx.typ.dataType.Object {
		return
	}

	if to.IsObjectHandle() {
		if ctx.typ.dataType.Object.SupportsHandles() {
			ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(true)
		}
		if ctx.typ.dataType.IsObjectHandle() {
			ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(to.IsReadOnly())
		}
		if to.IsHandleToConst() && ctx.typ.dataType.IsObjectHandle() {
			ctx.typ.dataType = ctx.typ.dataType.WithHandleToConst(true)
		}
	}

	if !to.Ref {
		if ctx.typ.dataType.Ref {
			c.dereference(ctx, gen)
		}
		if to.IsObjectHandle() {
			if ctx.typ.dataType.IsHandleToConst() && !to.IsHandleToConst() && kind != convImplicit && node != nil {
				c.error(node.Tok, txtCantImplicitlyConvert, ctx.typ.dataType.Format(), to.Format())
			}
			return
		}
		if ctx.typ.dataType.IsObjectHandle() && !ctx.typ.isExplicitHandle {
			if gen {
				ctx.bc.Instr(bytecode.CHKREF)
			}
			ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(false)
		}
		if ctx.typ.dataType.IsReadOnly() && !to.IsReadOnly() && allowObjectConstruct && ctx.typ.dataType.CanBeCopied() {
			if gen {
				c.prepareTemporaryObject(node, ctx, reserved)
			} else {
				ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(false)
			}
		}
		if !ctx.typ.dataType.IsReadOnly() && to.IsReadOnly() {
			ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
		}
		return
	}

	if ctx.typ.dataType.Ref {
		if !to.IsObjectHandle() && ctx.typ.dataType.IsObjectHandle() && !ctx.typ.isExplicitHandle {
			ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(false)
			if gen {
				ctx.bc.Instr(bytecode.ChkRefS)
			}
		}
		if to.IsReadOnly() {
			ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
			return
		}
		if !ctx.typ.dataType.IsReadOnly() {
			return
		}
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(false)
		if !gen {
			return
		}

		// A reference to a const object becomes a reference to a writable copy
		dt := ctx.typ.dataType.WithRef(false)
		off := c.allocateVariableNotIn(dt, true, reserved)
		lctx := newExprContext()
		lctx.typ = ctx.typ
		lctx.typ.isTemporary = true
		lctx.typ.stackOffset = off
		c.callDefaultConstructor(dt, off, &lctx.bc, node)

		rctx := newExprContext()
		rctx.typ = ctx.typ
		rctx.bc.AddCode(&lctx.bc)
		rctx.bc.AddCode(&ctx.bc)
		rctx.deferred, ctx.deferred = ctx.deferred, nil

		lctx.bc.InstrVar(bytecode.PSF, off)
		lctx.typ.isTemporary = false
		c.doAssignment(ctx, lctx, rctx, node, node, token.Eq, node)
		c.processDeferredParams(ctx)

		ctx.typ = lctx.typ
		ctx.typ.isTemporary = true
		return
	}

	if gen {
		var tmp exprType
		tmp.set(ctx.typ.dataType)
		off := c.allocateVariableNotIn(tmp.dataType, true, reserved)
		tmp.isTemporary = true
		tmp.stackOffset = off
		if tmp.dataType.IsObjectHandle() {
			tmp.isExplicitHandle = true
		}
		c.callDefaultConstructor(tmp.dataType, off, &ctx.bc, node)
		tmp.dataType = tmp.dataType.WithRef(true)

		c.prepareForAssignment(tmp.dataType, ctx, node, nil)
		ctx.bc.InstrVar(bytecode.PSF, off)

		readOnly := tmp.dataType.IsReadOnly()
		tmp.dataType = tmp.dataType.WithReadOnly(false)
		c.performAssignment(&tmp, &ctx.typ, &ctx.bc, node)
		tmp.dataType = tmp.dataType.WithReadOnly(readOnly)

		ctx.bc.Pop(ctx.typ.dataType.SizeOnStackDWords(c.ptr))
		c.releaseTemporary(&ctx.typ, &ctx.bc)
		ctx.bc.InstrVar(bytecode.PSF, off)
		ctx.typ = tmp
	}
	ctx.typ.dataType = ctx.typ.dataType.WithRef(true).WithReadOnly(to.IsReadOnly())
}

// compileRefCast converts between handle types through the class hierarchy or a
// registered ref cast behaviour.
func (c *Compiler) compileRefCast(ctx *exprContext, to types.DataType, explicit, gen bool) bool {
	from := ctx.typ.dataType.Object
	if from.IsScript() {
		if !ctx.typ.dataType.Ref {
			kind := convImplicit
			if explicit {
				kind = convExplicitRef
			}
			c.implicitConversion(ctx, ctx.typ.dataType.WithRef(true), nil, kind, gen, nil, true)
		}
		if explicit {
			if gen {
				ctx.bc.InstrType(bytecode.Cast, to.Object)
				off := c.allocateVariable(to, true)
				ctx.bc.InstrVar(bytecode.STOREOBJ, off)
				ctx.bc.InstrVar(bytecode.PSF, off)
				c.releaseTemporary(&ctx.typ, &ctx.bc)
				ctx.typ.setVariable(to, off, true)
			} else {
				ctx.typ.dataType = to
			}
			ctx.typ.dataType = ctx.typ.dataType.WithRef(true)
			return true
		}
		if from.DerivesFrom(to.Object) {
			ctx.typ.dataType.Object = to.Object
			return true
		}
		return false
	}

	var ops []int
	for _, op := range c.b.GlobalBehaviours() {
		if op.Beh != types.BehImplicitRefCast && (op.Beh != types.BehRefCast || !explicit) {
			continue
		}
		f := c.funcDesc(op.Func)
		if f == nil || len(f.Params) != 1 {
			continue
		}
		if f.Params[0].Object != from || f.Return.Object != to.Object {
			continue
		}
		ops = append(ops, op.Func)
	}

	matches := c.matchArgument(ops, &ctx.typ, 0, true)
	if len(matches) != 1 {
		return false
	}
	f := c.funcDesc(matches[0])
	if !gen {
		ctx.typ.set(f.Return)
		return true
	}

	arg := newExprContext()
	arg.merge(ctx)
	arg.typ = ctx.typ
	c.prepareArgument2(ctx, arg, f.Params[0], true, f.Modes[0], nil)
	args := []*exprContext{arg}
	c.moveArgsToStack(f.ID, &ctx.bc, args, false)
	c.performFunctionCall(f.ID, ctx, args)
	return true
}

// dereference turns a reference to an object variable into the object itself.
func (c *Compiler) dereference(ctx *exprContext, gen bool) {
	if !ctx.typ.dataType.Ref || !ctx.typ.dataType.IsObject() {
		return
	}
	ctx.typ.dataType = ctx.typ.dataType.WithRef(false)
	if gen {
		ctx.bc.Instr(bytecode.CHKREF)
		ctx.bc.Instr(bytecode.RDSPtr)
	}
}

func (c *Compiler) convertToVariable(ctx *exprContext) { c.convertToVariableNotIn(ctx, nil) }

// convertToVariableNotIn stores a constant, a primitive reference or a handle in a
// temporary so that it can be used as an instruction operand.
func (c *Compiler) convertToVariableNotIn(ctx *exprContext, reserved []int) {
	if ctx.typ.isVariable {
		return
	}
	dt := ctx.typ.dataType
	switch {
	case dt.IsObjectHandle():
		dt = dt.WithRef(false)
		off := c.allocateVariableNotIn(dt, true, reserved)
		if ctx.typ.isNullConstant() {
			if op, ok := ctx.bc.LastOp(); ok && op == bytecode.PshNull {
				ctx.bc.Pop(c.ptr)
			}
			ctx.bc.InstrVarArg(bytecode.SetV4, off, 0)
		} else {
			c.dereference(ctx, true)
			ctx.bc.InstrVar(bytecode.PSF, off)
			ctx.bc.InstrType(bytecode.REFCPY, dt.Object)
			ctx.bc.Pop(c.ptr)
		}
		// Objects keep their pointer on the stack
		ctx.bc.InstrVar(bytecode.PSF, off)
		c.releaseTemporary(&ctx.typ, &ctx.bc)
		ctx.typ.setVariable(dt.WithRef(true), off, true)
		ctx.typ.isExplicitHandle = true

	case dt.IsPrimitive() && ctx.typ.isConstant:
		off := c.allocateVariableNotIn(dt, true, reserved)
		bits := types.Bits(ctx.typ.constant)
		switch dt.SizeInMemoryBytes(c.ptr) {
		case 1:
			ctx.bc.InstrVarArg(bytecode.SetV1, off, bits&0xFF)
		case 2:
			ctx.bc.InstrVarArg(bytecode.SetV2, off, bits&0xFFFF)
		case 4:
			ctx.bc.InstrVarArg(bytecode.SetV4, off, bits&0xFFFFFFFF)
		default:
			ctx.bc.InstrVarArg(bytecode.SetV8, off, bits)
		}
		ctx.typ.setVariable(dt, off, true)

	case dt.IsPrimitive():
		dt = dt.WithRef(false)
		off := c.allocateVariableNotIn(dt, true, reserved)
		switch dt.SizeInMemoryBytes(c.ptr) {
		case 1:
			ctx.bc.InstrVar(bytecode.RDR1, off)
		case 2:
			ctx.bc.InstrVar(bytecode.RDR2, off)
		case 4:
			ctx.bc.InstrVar(bytecode.RDR4, off)
		default:
			ctx.bc.InstrVar(bytecode.RDR8, off)
		}
		c.releaseTemporary(&ctx.typ, &ctx.bc)
		ctx.typ.setVariable(dt, off, true)
	}
}

func (c *Compiler) convertToTempVariable(ctx *exprContext) { c.convertToTempVariableNotIn(ctx, nil) }

// convertToTempVariableNotIn is convertToVariableNotIn, but also copies named variables
// into a temporary so the result may be modified.
func (c *Compiler) convertToTempVariableNotIn(ctx *exprContext, reserved []int) {
	c.convertToVariableNotIn(ctx, reserved)
	if ctx.typ.isTemporary {
		return
	}
	dt := ctx.typ.dataType
	if dt.IsPrimitive() {
		dt = dt.WithRef(false)
		off := c.allocateVariableNotIn(dt, true, reserved)
		if dt.SizeInMemoryDWords(c.ptr) == 1 {
			ctx.bc.InstrVarVar(bytecode.CpyVtoV4, off, ctx.typ.stackOffset)
		} else {
			ctx.bc.InstrVarVar(bytecode.CpyVtoV8, off, ctx.typ.stackOffset)
		}
		ctx.typ.setVariable(dt, off, true)
		return
	}
	if dt.IsObjectHandle() {
		return
	}

	off := c.allocateVariableNotIn(dt.WithRef(false), true, ctx.bc.VarsUsed())
	var pre bytecode.Fragment
	c.callDefaultConstructor(dt.WithRef(false), off, &pre, nil)
	pre.AddCode(&ctx.bc)
	ctx.bc.AddCode(&pre)

	c.prepareForAssignment(dt, ctx, nil, nil)
	var tmp exprType
	tmp.setVariable(dt, off, true)
	ctx.bc.InstrVar(bytecode.PSF, off)
	c.performAssignment(&tmp, &ctx.typ, &ctx.bc, nil)
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	ctx.typ = tmp
}
