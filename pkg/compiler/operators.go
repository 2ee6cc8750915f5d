package compiler

import (
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

const (
	txtIllegalOperation = "Illegal operation on this datatype"
	txtNoConversion     = "No conversion from '%s' to '%s' available."
	txtNoMathConversion = "No conversion from '%s' to math type available."
	txtDivideByZero     = "Divide by zero"
)

// dualBehaviour maps binary operator tokens to the global behaviour that overloads them.
var dualBehaviour = map[token.Type]types.Behaviour{
	token.Plus: types.BehAdd, token.Minus: types.BehSub, token.Star: types.BehMul,
	token.Slash: types.BehDiv, token.Rem: types.BehMod,
	token.EqEq: types.BehEqual, token.Neq: types.BehNotEqual,
	token.Lt: types.BehLess, token.Gt: types.BehGreater,
	token.Lte: types.BehLessEqual, token.Gte: types.BehGreaterEqual,
	token.OrOr: types.BehLogicOr, token.AndAnd: types.BehLogicAnd,
	token.Or: types.BehBitOr, token.Amp: types.BehBitAnd, token.Xor: types.BehBitXor,
	token.Shl: types.BehBitSll, token.Shr: types.BehBitSrl, token.Sra: types.BehBitSra,
}

// isSigned treats enums as the int they are stored as.
func isSigned(dt types.DataType) bool { return dt.IsIntegerType() || dt.IsEnumType() }

// compileOperator applies the binary operator op to two compiled operands and leaves the
// result in ctx.
func (c *Compiler) compileOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	c.isVariableInitialized(&lctx.typ, node)
	c.isVariableInitialized(&rctx.typ, node)

	if lctx.typ.isExplicitHandle || rctx.typ.isExplicitHandle ||
		lctx.typ.isNullConstant() || rctx.typ.isNullConstant() ||
		op == token.Is || op == token.NotIs {
		return c.compileOperatorOnHandles(node, op, lctx, rctx, ctx)
	}

	if ok, found := c.compileOverloadedDualOperator(node, op, lctx, rctx, ctx); found {
		return ok
	}

	if lctx.typ.dataType.IsObject() && rctx.typ.dataType.IsObject() {
		c.error(nodeTok(node), "No matching operator that takes the types '%s' and '%s' found",
			lctx.typ.dataType.Format(), rctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}

	if lctx.typ.dataType.Ref {
		c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	}
	if rctx.typ.dataType.Ref {
		c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	}

	// The left operand's value must survive the evaluation of the right one
	if lctx.typ.isTemporary && rctx.bc.IsVarUsed(lctx.typ.stackOffset) {
		off := c.allocateVariableNotIn(lctx.typ.dataType, true, rctx.bc.VarsUsed())
		rctx.bc.ExchangeVar(lctx.typ.stackOffset, off)
		c.releaseTemporaryOffset(off, nil)
	}

	switch op {
	case token.Plus, token.Minus, token.Star, token.Slash, token.Rem:
		return c.compileMathOperator(node, op, lctx, rctx, ctx)
	case token.Amp, token.Or, token.Xor, token.Shl, token.Shr, token.Sra:
		return c.compileBitwiseOperator(node, op, lctx, rctx, ctx)
	case token.EqEq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		return c.compileComparisonOperator(node, op, lctx, rctx, ctx)
	case token.AndAnd, token.OrOr, token.XorXor:
		return c.compileBooleanOperator(node, op, lctx, rctx, ctx)
	}
	c.error(nodeTok(node), txtIllegalOperation)
	ctx.typ.setDummy()
	return false
}

// compileOverloadedDualOperator calls a registered global operator for the operand types.
// found is false when no behaviour accepts them.
func (c *Compiler) compileOverloadedDualOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) (ok, found bool) {
	if !lctx.typ.dataType.IsObject() && !rctx.typ.dataType.IsObject() {
		return false, false
	}
	beh, exists := dualBehaviour[op]
	if !exists {
		return false, false
	}

	var ops []int
	for _, b := range c.b.GlobalBehaviours() {
		if b.Beh == beh {
			ops = append(ops, b.Func)
		}
	}
	ops = c.matchArgument(ops, &lctx.typ, 0, true)
	ops = c.matchArgument(ops, &rctx.typ, 1, true)

	switch len(ops) {
	case 0:
		return false, false
	case 1:
	default:
		c.error(nodeTok(node), "Found more than one matching operator")
		ctx.typ.setDummy()
		return false, true
	}

	args := []*exprContext{lctx, rctx}
	c.prepareFunctionCall(ops[0], &ctx.bc, args)
	c.moveArgsToStack(ops[0], &ctx.bc, args, false)
	c.performFunctionCall(ops[0], ctx, args)
	return true, true
}

// numericType is the common type two operands are promoted to. ok is false when neither
// operand is numeric.
func (c *Compiler) numericType(l, r *exprType, allowBool bool) (types.DataType, bool) {
	ld, rd := l.dataType, r.dataType
	var k types.Kind
	found := true
	switch {
	case ld.IsDoubleType() || rd.IsDoubleType():
		k = types.Double
	case ld.IsFloatType() || rd.IsFloatType():
		k = types.Float
	case ld.SizeInMemoryDWords(c.ptr) == 2 || rd.SizeInMemoryDWords(c.ptr) == 2:
		switch {
		case isSigned(ld) || isSigned(rd):
			k = types.Int64
		case ld.IsUnsignedType() || rd.IsUnsignedType():
			k = types.Uint64
		default:
			found = false
		}
	default:
		switch {
		case isSigned(ld) || isSigned(rd):
			k = types.Int
		case ld.IsUnsignedType() || rd.IsUnsignedType():
			k = types.Uint
		case allowBool && (ld.IsBooleanType() || rd.IsBooleanType()):
			k = types.Bool
		default:
			found = false
		}
	}

	// A double constant meeting a float variable becomes a float
	if (l.isConstant && ld.IsDoubleType() && !r.isConstant && rd.IsFloatType()) ||
		(r.isConstant && rd.IsDoubleType() && !l.isConstant && ld.IsFloatType()) {
		k = types.Float
	}
	if !found {
		return c.voidType(), false
	}
	return types.Primitive(k, false), true
}

// mergeOperands releases the operands' temporaries and appends their code to ctx.
func (c *Compiler) mergeOperands(lctx, rctx, ctx *exprContext) {
	c.releaseTemporary(&lctx.typ, &lctx.bc)
	c.releaseTemporary(&rctx.typ, &rctx.bc)
	ctx.merge(lctx)
	ctx.merge(rctx)
	c.processDeferredParams(ctx)
}

func (c *Compiler) compileMathOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	to, _ := c.numericType(&lctx.typ, &rctx.typ, false)

	c.implicitConversion(lctx, to, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	c.implicitConversion(rctx, to, node, convImplicit, true, nil, true)

	for _, t := range []*exprType{&lctx.typ, &rctx.typ} {
		if !t.dataType.IsIntegerType() && !t.dataType.IsUnsignedType() &&
			!t.dataType.IsFloatType() && !t.dataType.IsDoubleType() {
			c.error(nodeTok(node), txtNoMathConversion, t.dataType.Format())
			ctx.typ.setDummy()
			return false
		}
	}

	if rctx.typ.isConstant && isZeroConstant(rctx.typ.constant) && (op == token.Slash || op == token.Rem) {
		c.error(nodeTok(node), txtDivideByZero)
	}

	if lctx.typ.isConstant && rctx.typ.isConstant {
		v, dt := foldMath(op, lctx.typ.constant, rctx.typ.constant, lctx.typ.dataType)
		ctx.typ.setConstant(types.Primitive(dt.Kind, true), v)
		return true
	}

	c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
	dt := lctx.typ.dataType.WithReadOnly(false)
	c.mergeOperands(lctx, rctx, ctx)

	instr := mathInstr(op, dt.Kind)
	off := c.allocateVariable(dt, true)
	ctx.typ.setVariable(dt, off, true)
	ctx.bc.InstrVarVarVar(instr, off, l, r)
	return true
}

func mathInstr(op token.Type, k types.Kind) bytecode.Op {
	table := map[types.Kind][5]bytecode.Op{
		types.Int:    {bytecode.ADDi, bytecode.SUBi, bytecode.MULi, bytecode.DIVi, bytecode.MODi},
		types.Uint:   {bytecode.ADDi, bytecode.SUBi, bytecode.MULi, bytecode.DIVu, bytecode.MODu},
		types.Int64:  {bytecode.ADDi64, bytecode.SUBi64, bytecode.MULi64, bytecode.DIVi64, bytecode.MODi64},
		types.Uint64: {bytecode.ADDi64, bytecode.SUBi64, bytecode.MULi64, bytecode.DIVu64, bytecode.MODu64},
		types.Float:  {bytecode.ADDf, bytecode.SUBf, bytecode.MULf, bytecode.DIVf, bytecode.MODf},
		types.Double: {bytecode.ADDd, bytecode.SUBd, bytecode.MULd, bytecode.DIVd, bytecode.MODd},
	}[k]
	switch op {
	case token.Minus:
		return table[1]
	case token.Star:
		return table[2]
	case token.Slash:
		return table[3]
	case token.Rem:
		return table[4]
	}
	return table[0]
}

func (c *Compiler) compileBitwiseOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	if op == token.Shl || op == token.Shr || op == token.Sra {
		return c.compileShiftOperator(node, op, lctx, rctx, ctx)
	}

	to := types.Primitive(types.Uint, false)
	if lctx.typ.dataType.SizeInMemoryDWords(c.ptr) == 2 || rctx.typ.dataType.SizeInMemoryDWords(c.ptr) == 2 {
		to = types.Primitive(types.Uint64, false)
	}

	c.implicitConversion(lctx, to, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	if !lctx.typ.dataType.IsUnsignedType() {
		c.error(nodeTok(node), txtNoConversion, lctx.typ.dataType.Format(), to.Format())
		ctx.typ.setDummy()
		return false
	}
	c.implicitConversion(rctx, lctx.typ.dataType.WithReadOnly(false), node, convImplicit, true, nil, true)
	if !rctx.typ.dataType.IsEqualExceptRefAndConst(lctx.typ.dataType) {
		c.error(nodeTok(node), txtNoConversion, rctx.typ.dataType.Format(), lctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}

	dt := lctx.typ.dataType.WithReadOnly(false)
	if lctx.typ.isConstant && rctx.typ.isConstant {
		ctx.typ.setConstant(dt.WithReadOnly(true), foldBitwise(op, lctx.typ.constant, rctx.typ.constant, dt))
		return true
	}

	c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
	c.mergeOperands(lctx, rctx, ctx)

	wide := dt.SizeInMemoryDWords(c.ptr) == 2
	var instr bytecode.Op
	switch op {
	case token.Amp:
		instr = pick(wide, bytecode.BAND64, bytecode.BAND)
	case token.Or:
		instr = pick(wide, bytecode.BOR64, bytecode.BOR)
	default:
		instr = pick(wide, bytecode.BXOR64, bytecode.BXOR)
	}
	off := c.allocateVariable(dt, true)
	ctx.typ.setVariable(dt, off, true)
	ctx.bc.InstrVarVarVar(instr, off, l, r)
	return true
}

func pick(cond bool, a, b bytecode.Op) bytecode.Op {
	if cond {
		return a
	}
	return b
}

// compileShiftOperator keeps the left operand's signedness. The shift count is always a uint.
func (c *Compiler) compileShiftOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	uintType := types.Primitive(types.Uint, false)
	c.implicitConversion(rctx, uintType, node, convImplicit, true, nil, true)
	if !rctx.typ.dataType.IsUnsignedType() {
		c.error(nodeTok(node), txtNoConversion, rctx.typ.dataType.Format(), uintType.Format())
		ctx.typ.setDummy()
		return false
	}

	ld := lctx.typ.dataType
	to := ld.WithReadOnly(false)
	switch {
	case ld.IsUnsignedType() && ld.SizeInMemoryBytes(c.ptr) < 4:
		to = uintType
	case !ld.IsUnsignedType() && ld.SizeInMemoryDWords(c.ptr) == 2:
		to = types.Primitive(types.Int64, false)
	case !ld.IsUnsignedType():
		to = types.Primitive(types.Int, false)
	}
	c.implicitConversion(lctx, to, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	if !lctx.typ.dataType.IsIntegerType() && !lctx.typ.dataType.IsUnsignedType() {
		c.error(nodeTok(node), txtNoConversion, lctx.typ.dataType.Format(), "int")
		ctx.typ.setDummy()
		return false
	}

	dt := lctx.typ.dataType.WithReadOnly(false)
	if lctx.typ.isConstant && rctx.typ.isConstant {
		ctx.typ.setConstant(dt.WithReadOnly(true), foldBitwise(op, lctx.typ.constant, rctx.typ.constant, dt))
		return true
	}

	c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
	c.mergeOperands(lctx, rctx, ctx)

	wide := dt.SizeInMemoryDWords(c.ptr) == 2
	var instr bytecode.Op
	switch op {
	case token.Shl:
		instr = pick(wide, bytecode.BSLL64, bytecode.BSLL)
	case token.Shr:
		instr = pick(wide, bytecode.BSRL64, bytecode.BSRL)
	default:
		instr = pick(wide, bytecode.BSRA64, bytecode.BSRA)
	}
	off := c.allocateVariable(dt, true)
	ctx.typ.setVariable(dt, off, true)
	ctx.bc.InstrVarVarVar(instr, off, l, r)
	return true
}

// signMismatch reports a uint operand that may not fit in the signed type it is compared with.
func signMismatch(t *exprType) bool {
	switch t.dataType.Kind {
	case types.Uint64:
		return !t.isConstant || types.Bits(t.constant)&(1<<63) != 0
	case types.Uint:
		return !t.isConstant || types.Bits(t.constant)&(1<<31) != 0
	}
	return false
}

func (c *Compiler) compileComparisonOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	boolType := types.Primitive(types.Bool, true)
	to, _ := c.numericType(&lctx.typ, &rctx.typ, true)

	if !lctx.typ.dataType.IsUnsignedType() || !rctx.typ.dataType.IsUnsignedType() {
		if signMismatch(&lctx.typ) || signMismatch(&rctx.typ) {
			c.warn(config.WarnSignMismatch, nodeTok(node), "Signed/Unsigned mismatch")
		}
	}

	c.implicitConversion(lctx, to, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	c.implicitConversion(rctx, to, node, convImplicit, true, nil, true)

	ok := true
	for _, t := range []*exprType{&lctx.typ, &rctx.typ} {
		if !t.dataType.IsEqualExceptRefAndConst(to) {
			c.error(nodeTok(node), txtNoConversion, t.dataType.Format(), to.Format())
			ok = false
		}
	}
	if !ok {
		// Keep going with a boolean so the surrounding expression still type checks
		ctx.typ.setConstant(boolType, types.BoolConst(true))
		return false
	}

	if to.IsBooleanType() && op != token.EqEq && op != token.Neq {
		c.error(nodeTok(node), txtIllegalOperation)
		ctx.typ.setConstant(boolType, types.BoolConst(true))
		return false
	}

	if lctx.typ.isConstant && rctx.typ.isConstant {
		ctx.typ.setConstant(boolType, foldComparison(op, lctx.typ.constant, rctx.typ.constant))
		return true
	}

	c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
	c.mergeOperands(lctx, rctx, ctx)

	var cmp bytecode.Op
	switch to.Kind {
	case types.Uint:
		cmp = bytecode.CMPu
	case types.Int64:
		cmp = bytecode.CMPi64
	case types.Uint64:
		cmp = bytecode.CMPu64
	case types.Float:
		cmp = bytecode.CMPf
	case types.Double:
		cmp = bytecode.CMPd
	default:
		cmp = bytecode.CMPi
	}

	off := c.allocateVariable(boolType, true)
	ctx.bc.InstrVarVar(cmp, l, r)
	ctx.bc.Instr(testInstr(op))
	ctx.bc.InstrVar(bytecode.CpyRtoV4, off)
	ctx.typ.setVariable(boolType, off, true)
	return true
}

// testInstr turns the comparison result in the register into a boolean.
func testInstr(op token.Type) bytecode.Op {
	switch op {
	case token.Neq:
		return bytecode.TNZ
	case token.Lt:
		return bytecode.TS
	case token.Lte:
		return bytecode.TNP
	case token.Gt:
		return bytecode.TP
	case token.Gte:
		return bytecode.TNS
	}
	return bytecode.TZ
}

func (c *Compiler) compileBooleanOperator(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	boolType := types.Primitive(types.Bool, true)
	c.implicitConversion(lctx, boolType, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	c.implicitConversion(rctx, boolType, node, convImplicit, true, nil, true)
	for _, t := range []*exprType{&lctx.typ, &rctx.typ} {
		if !t.dataType.IsBooleanType() {
			c.error(nodeTok(node), txtNoConversion, t.dataType.Format(), "bool")
			ctx.typ.setConstant(boolType, types.BoolConst(true))
			return false
		}
	}

	if lctx.typ.isConstant && rctx.typ.isConstant {
		ctx.typ.setConstant(boolType, foldBoolean(op, lctx.typ.constant, rctx.typ.constant))
		return true
	}

	if op == token.XorXor {
		c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
		c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
		l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
		c.mergeOperands(lctx, rctx, ctx)
		off := c.allocateVariable(boolType, true)
		ctx.bc.InstrVarVarVar(bytecode.BXOR, off, l, r)
		ctx.typ.setVariable(boolType, off, true)
		return true
	}

	// The right operand only runs when the left one does not decide the result
	c.convertToVariable(lctx)
	c.releaseTemporary(&lctx.typ, &lctx.bc)
	l := lctx.typ.stackOffset
	ctx.merge(lctx)

	off := c.allocateVariableNotIn(boolType, true, rctx.bc.VarsUsed())
	evalRight, done := c.newLabel(), c.newLabel()
	ctx.bc.InstrVar(bytecode.CpyVtoR4, l)
	ctx.bc.Instr(bytecode.ClrHi)
	if op == token.AndAnd {
		ctx.bc.Jump(bytecode.JNZ, evalRight)
		ctx.bc.InstrVarArg(bytecode.SetV4, off, 0)
	} else {
		ctx.bc.Jump(bytecode.JZ, evalRight)
		ctx.bc.InstrVarArg(bytecode.SetV4, off, 1)
	}
	ctx.bc.Jump(bytecode.JMP, done)

	ctx.bc.Label(evalRight)
	c.convertToVariable(rctx)
	c.releaseTemporary(&rctx.typ, &rctx.bc)
	rctx.bc.InstrVarVar(bytecode.CpyVtoV4, off, rctx.typ.stackOffset)
	ctx.merge(rctx)
	ctx.bc.Label(done)
	c.processDeferredParams(ctx)

	ctx.typ.setVariable(types.Primitive(types.Bool, false), off, true)
	return true
}

// compileOperatorOnHandles compares two handles by identity.
func (c *Compiler) compileOperatorOnHandles(node *ast.Node, op token.Type, lctx, rctx, ctx *exprContext) bool {
	boolType := types.Primitive(types.Bool, true)
	if op != token.EqEq && op != token.Neq && op != token.Is && op != token.NotIs {
		c.error(nodeTok(node), txtIllegalOperation)
		ctx.typ.setDummy()
		return false
	}
	equal := op == token.EqEq || op == token.Is

	if lctx.typ.isNullConstant() && rctx.typ.isNullConstant() {
		ctx.merge(lctx)
		ctx.merge(rctx)
		ctx.bc.Pop(2 * c.ptr)
		ctx.typ.setConstant(boolType, types.BoolConst(equal))
		return true
	}

	if (op == token.EqEq || op == token.Neq) &&
		((!lctx.typ.isExplicitHandle && !lctx.typ.isNullConstant()) ||
			(!rctx.typ.isExplicitHandle && !rctx.typ.isNullConstant())) {
		c.warn(config.WarnHandleCompare, nodeTok(node), "The operand is implicitly converted to handle in order to compare them")
	}

	var to types.DataType
	switch {
	case lctx.typ.isNullConstant():
		to = rctx.typ.dataType
	case rctx.typ.isNullConstant():
		to = lctx.typ.dataType
	default:
		to = lctx.typ.dataType
		lo, ro := lctx.typ.dataType.Object, rctx.typ.dataType.Object
		if lo != nil && ro != nil && (lo.DerivesFrom(ro) || lo.Implements(ro)) {
			to = rctx.typ.dataType
		}
	}
	if to.Object == nil || !to.Object.SupportsHandles() {
		c.error(nodeTok(node), txtIllegalOperation)
		ctx.typ.setDummy()
		return false
	}
	to, _ = to.WithHandle(true)
	to = to.WithRef(false)

	c.implicitConversion(lctx, to, node, convImplicit, true, rctx.bc.VarsUsed(), true)
	c.implicitConversion(rctx, to, node, convImplicit, true, nil, true)
	for _, t := range []*exprType{&lctx.typ, &rctx.typ} {
		if !t.dataType.IsObjectHandle() || t.dataType.Object != to.Object {
			c.error(nodeTok(node), txtNoConversion, t.dataType.Format(), to.Format())
			ctx.typ.setConstant(boolType, types.BoolConst(true))
			return false
		}
	}

	// Both handles end up in variables; their stack pointers are not needed
	c.convertToVariableNotIn(lctx, rctx.bc.VarsUsed())
	lctx.bc.Pop(c.ptr)
	c.convertToVariableNotIn(rctx, lctx.bc.VarsUsed())
	rctx.bc.Pop(c.ptr)
	l, r := lctx.typ.stackOffset, rctx.typ.stackOffset
	ctx.merge(lctx)
	ctx.merge(rctx)

	off := c.allocateVariable(boolType, true)
	ctx.bc.InstrVarVar(bytecode.CMPp, l, r)
	ctx.bc.Instr(pick(equal, bytecode.TZ, bytecode.TNZ))
	ctx.bc.InstrVar(bytecode.CpyRtoV4, off)
	ctx.typ.setVariable(boolType, off, true)

	c.releaseTemporary(&lctx.typ, &ctx.bc)
	c.releaseTemporary(&rctx.typ, &ctx.bc)
	c.processDeferredParams(ctx)
	return true
}
