package compiler

import (
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

const (
	txtNotDeclared      = "'%s' is not declared"
	txtNotMemberOf      = "'%s' is not a member of '%s'"
	txtHandleNotAllowed = "Object handle is not supported for this type"
	txtNotValidRef      = "Not a valid reference"
	txtBothSameType     = "Both expressions must have the same type"
	txtExprMustBeBool   = "Expression must be of boolean type"
)

// compileExpr compiles an expression that is not itself an assignment at the top level.
func (c *Compiler) compileExpr(node *ast.Node, ctx *exprContext) bool {
	switch node.Type {
	case ast.Assign:
		return c.compileAssignment(node, ctx)

	case ast.Number:
		return c.compileNumber(node, ctx)

	case ast.Bool:
		ctx.typ.setConstant(types.Primitive(types.Bool, true), types.BoolConst(node.Data.(ast.BoolNode).Value))
		return true

	case ast.String:
		return c.compileStringConstant(node, ctx)

	case ast.Null:
		ctx.bc.Instr(bytecode.PshNull)
		ctx.typ.setNullConstant()
		return true

	case ast.This:
		if c.fn == nil || c.fn.Object == nil {
			c.error(node.Tok, "'this' can only be used inside a method")
			ctx.typ.setDummy()
			return false
		}
		ctx.bc.InstrVar(bytecode.PSF, 0)
		ctx.typ.setVariable(types.ObjectOf(c.fn.Object, c.fn.IsConst).WithRef(true), 0, false)
		return true

	case ast.Ident:
		d := node.Data.(ast.IdentNode)
		return c.compileVariableAccess(d.Scope, d.Name, node, ctx)

	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		lctx, rctx := newExprContext(), newExprContext()
		lok := c.compileAssignment(d.Left, lctx)
		rok := c.compileAssignment(d.Right, rctx)
		if !lok || !rok {
			ctx.typ.setDummy()
			return false
		}
		return c.compileOperator(node, d.Op, lctx, rctx, ctx)

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		if !c.compileAssignment(d.Expr, ctx) {
			return false
		}
		return c.compilePreOp(node, d.Op, ctx)

	case ast.PostfixOp:
		d := node.Data.(ast.PostfixOpNode)
		if !c.compileAssignment(d.Expr, ctx) {
			return false
		}
		return c.compilePostOp(node, d.Op, ctx)

	case ast.FuncCall:
		return c.compileCall(node, ctx)

	case ast.ConstructCall:
		c.compileConstructCall(node, ctx)
		return true

	case ast.MemberAccess:
		return c.compileMemberAccess(node, ctx)

	case ast.Subscript:
		return c.compileSubscript(node, ctx)

	case ast.Ternary:
		return c.compileCondition(node, ctx)

	case ast.Cast:
		d := node.Data.(ast.CastNode)
		dt, err := c.b.DataType(d.Type)
		if err != nil {
			c.error(node.Tok, "%s", err.Error())
			ctx.typ.setDummy()
			return false
		}
		return c.compileConversion(node, dt, d.Expr, convExplicitRef, ctx)

	case ast.InitList:
		c.error(node.Tok, "Initialization lists cannot be used as expressions")
		ctx.typ.setDummy()
		return false
	}

	c.error(node.Tok, "Unexpected %s in expression", node.Type)
	ctx.typ.setDummy()
	return false
}

// compileNumber types integer literals as the smallest of int, uint, int64 and uint64
// that holds them.
func (c *Compiler) compileNumber(node *ast.Node, ctx *exprContext) bool {
	d := node.Data.(ast.NumberNode)
	switch d.Kind {
	case token.FloatNumber:
		v, err := strconv.ParseFloat(strings.TrimRight(d.Text, "fF"), 32)
		if err != nil {
			c.warn(config.WarnValueTooLarge, node.Tok, txtValueTooLarge)
		}
		ctx.typ.setConstant(types.Primitive(types.Float, true), types.FloatConst(float32(v)))
		return true

	case token.DoubleNumber:
		v, err := strconv.ParseFloat(d.Text, 64)
		if err != nil {
			c.warn(config.WarnValueTooLarge, node.Tok, txtValueTooLarge)
		}
		ctx.typ.setConstant(types.Primitive(types.Double, true), types.DoubleConst(v))
		return true
	}

	text, base := d.Text, 10
	if d.Kind == token.HexNumber {
		text, base = text[2:], 16
	}
	v, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		c.error(node.Tok, txtValueTooLarge)
		ctx.typ.setDummy()
		return true
	}
	switch {
	case v <= math.MaxInt32:
		ctx.typ.setConstant(types.Primitive(types.Int, true), types.IntConst(v))
	case v <= math.MaxUint32:
		ctx.typ.setConstant(types.Primitive(types.Uint, true), types.UintConst(v))
	case v <= math.MaxInt64:
		ctx.typ.setConstant(types.Primitive(types.Int64, true), types.IntConst(v))
	default:
		ctx.typ.setConstant(types.Primitive(types.Uint64, true), types.UintConst(v))
	}
	return true
}

// compileStringConstant stores the literal in the module's string table and builds the
// string object with the registered factory.
func (c *Compiler) compileStringConstant(node *ast.Node, ctx *exprContext) bool {
	sf := c.b.StringFactory()
	if sf == 0 {
		c.error(node.Tok, "Strings are not recognized by the application")
		ctx.typ.setDummy()
		return false
	}
	id := c.b.AddString(node.Data.(ast.StringNode).Value)
	ctx.bc.InstrDW(bytecode.STR, id)
	c.performFunctionCall(sf, ctx, nil)

	// Literals are constant objects, not handles
	ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(false)
	ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
	return true
}

// compileVariableAccess resolves a name: locals, then members of this, then globals, then
// enum values.
func (c *Compiler) compileVariableAccess(scope, name string, node *ast.Node, ctx *exprContext) bool {
	if scope == "" {
		if v := c.scopes.lookup(name); v != nil {
			c.accessLocal(v, ctx)
			return true
		}
		if c.fn != nil && c.fn.Object != nil {
			if prop := c.fn.Object.Property(name); prop != nil {
				ctx.bc.InstrVar(bytecode.PshVPtr, 0)
				ctx.typ.set(types.ObjectOf(c.fn.Object, c.fn.IsConst))
				c.accessProperty(prop, ctx)
				return true
			}
		}
	}

	if scope == "" || scope == "::" {
		if prop, compiled := c.b.GlobalProperty(name); prop != nil {
			c.accessGlobal(prop, compiled, ctx)
			return true
		}
	}

	if dt, value, found := c.lookupEnumValue(scope, name, node); found != 0 {
		ctx.typ.setConstant(dt, types.IntConst(value))
		return true
	}

	c.error(node.Tok, txtNotDeclared, name)
	// Declare it so the error is only reported once
	if c.scopes.depth() > 0 {
		if v, err := c.scopes.declare(name, types.Primitive(types.Int, false), dummyOffset); err == nil {
			v.initialized = true
		}
	}
	ctx.typ.setDummy()
	return true
}

func (c *Compiler) accessLocal(v *variable, ctx *exprContext) {
	switch {
	case v.pureConstant:
		ctx.typ.setConstant(v.dt, v.constant)

	case v.offset == dummyOffset:
		ctx.typ.setDummy()

	case v.dt.IsPrimitive() && v.dt.Ref:
		// Parameters by reference hold the caller's address
		ctx.bc.InstrVar(bytecode.PshVPtr, v.offset)
		ctx.bc.Instr(bytecode.PopRPtr)
		ctx.typ.set(v.dt)

	case v.dt.IsPrimitive():
		ctx.typ.setVariable(v.dt, v.offset, false)

	case v.dt.IsObjectHandle() && v.dt.Ref:
		ctx.bc.InstrVar(bytecode.PshVPtr, v.offset)
		ctx.typ.set(v.dt)

	default:
		ctx.bc.InstrVar(bytecode.PSF, v.offset)
		ctx.typ.setVariable(v.dt.WithRef(true), v.offset, false)
	}
}

func (c *Compiler) accessGlobal(prop *types.GlobalProperty, compiled bool, ctx *exprContext) {
	if c.compilingGlobal && !compiled {
		c.usedUncompiledGlobal = true
	}
	if prop.IsPureConstant {
		ctx.typ.setConstant(prop.Type.WithRef(false), prop.Constant)
		return
	}
	if prop.Type.IsPrimitive() {
		ctx.bc.InstrDW(bytecode.LDG, prop.Index)
	} else {
		ctx.bc.InstrDW(bytecode.PGA, prop.Index)
	}
	ctx.typ.set(prop.Type.WithRef(true))
}

// lookupEnumValue searches the named enum, or every enum when unscoped and the
// require-enum-scope feature is off.
func (c *Compiler) lookupEnumValue(scope, name string, node *ast.Node) (types.DataType, int64, int) {
	var enum *types.ObjectType
	if scope != "" && scope != "::" {
		enum = c.b.ObjectType(scope)
		if enum == nil || !types.ObjectOf(enum, false).IsEnumType() {
			return types.DataType{}, 0, 0
		}
	} else if c.feature(config.FeatRequireEnumScope) {
		return types.DataType{}, 0, 0
	}
	dt, value, found := c.b.EnumValue(name, enum)
	if found > 1 {
		c.error(node.Tok, "Found multiple matching enum values for '%s'", name)
	}
	return dt, value, found
}

// accessProperty turns the object pointer on top of the stack into a reference to one of
// its properties. A temporary owner stays recorded in ctx so it is released later.
func (c *Compiler) accessProperty(prop *types.Property, ctx *exprContext) {
	isConst := ctx.typ.dataType.IsReadOnly()
	ctx.bc.InstrDW(bytecode.ADDSi, prop.Index)
	if prop.Type.IsPrimitive() {
		ctx.bc.Instr(bytecode.PopRPtr)
	}
	ctx.typ.dataType = prop.Type.WithRef(true)
	ctx.typ.isVariable = false
	ctx.typ.isExplicitHandle = false
	if isConst {
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
	}
}

// prepareObjectPointer leaves the object itself on the stack, checking handles for null.
func (c *Compiler) prepareObjectPointer(ctx *exprContext) {
	c.dereference(ctx, true)
	if ctx.typ.dataType.IsObjectHandle() {
		ctx.bc.Instr(bytecode.CHKREF)
		isConst := ctx.typ.dataType.IsHandleToConst()
		ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(false)
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(isConst)
		ctx.typ.isExplicitHandle = false
	}
}

func (c *Compiler) compileMemberAccess(node *ast.Node, ctx *exprContext) bool {
	d := node.Data.(ast.MemberAccessNode)
	if !c.compileAssignment(d.Expr, ctx) {
		return false
	}
	c.isVariableInitialized(&ctx.typ, node)

	if d.Call != nil {
		call := d.Call.Data.(ast.FuncCallNode)
		if ctx.typ.dataType.Object == nil || !(ctx.typ.dataType.IsObject()) {
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		c.compileMethodCall(d.Call, call.Name, nil, call.Args, ctx)
		return true
	}

	if !ctx.typ.dataType.IsObject() {
		c.error(node.Tok, txtNotMemberOf, d.Name, ctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}
	c.prepareObjectPointer(ctx)
	prop := ctx.typ.dataType.Object.Property(d.Name)
	if prop == nil {
		c.error(node.Tok, txtNotMemberOf, d.Name, ctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}
	c.accessProperty(prop, ctx)
	ctx.property = d.Name
	return true
}

// compileMethodCall calls a method on the object ctx evaluates to. With funcs nil the
// methods named name are the candidates.
func (c *Compiler) compileMethodCall(node *ast.Node, name string, funcs []int, argNodes []*ast.Node, ctx *exprContext) {
	obj := ctx.typ
	isConst := obj.dataType.IsReadOnly()
	if obj.dataType.IsObjectHandle() {
		isConst = obj.dataType.IsHandleToConst()
	}
	c.prepareObjectPointer(ctx)
	ot := ctx.typ.dataType.Object

	if funcs == nil {
		c.compileFunctionCall(node, name, argNodes, ctx, ot, isConst, false)
	} else {
		var usable []int
		for _, id := range funcs {
			if !isConst || c.funcDesc(id).IsConst {
				usable = append(usable, id)
			}
		}
		args, ok := c.compileArgumentList(argNodes)
		if !ok {
			ctx.typ.setDummy()
			return
		}
		c.compileCallWithArgs(node, name, usable, args, ctx, ot, isConst, false)
	}

	// A returned reference may point into the object, so it has to outlive the expression
	if ctx.typ.dataType.Ref && obj.isTemporary {
		ctx.deferred = append(ctx.deferred, deferredParam{argType: obj, mode: types.ModeNone})
		return
	}
	c.releaseTemporary(&obj, &ctx.bc)
}

func (c *Compiler) compileSubscript(node *ast.Node, ctx *exprContext) bool {
	d := node.Data.(ast.SubscriptNode)
	if !c.compileAssignment(d.Array, ctx) {
		return false
	}
	ot := ctx.typ.dataType.Object
	if !ctx.typ.dataType.IsObject() || ot == nil {
		c.error(node.Tok, "Type '%s' doesn't support the indexing operator", ctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}
	funcs := ot.Beh.OperatorFuncs(types.BehIndex)
	if len(funcs) == 0 {
		c.error(node.Tok, "Type '%s' doesn't support the indexing operator", ctx.typ.dataType.Format())
		ctx.typ.setDummy()
		return false
	}
	c.compileMethodCall(node, "opIndex", funcs, []*ast.Node{d.Index}, ctx)
	return true
}

// compileCall compiles name(args): a constructor when name is a type, a method of this
// inside a class, otherwise a global function.
func (c *Compiler) compileCall(node *ast.Node, ctx *exprContext) bool {
	d := node.Data.(ast.FuncCallNode)
	if d.Name == "super" && d.Scope == "" {
		return c.compileSuperCall(node, d.Args, ctx)
	}

	if d.Scope == "" && c.scopes.lookup(d.Name) == nil && len(c.b.GlobalFunctions(d.Name)) == 0 {
		if ot := c.b.ObjectType(d.Name); ot != nil {
			construct := &ast.Node{
				Type:   ast.ConstructCall,
				Tok:    node.Tok,
				Parent: node.Parent,
				Data:   ast.ConstructCallNode{Type: &ast.TypeSpec{Tok: node.Tok, Name: d.Name}, Args: d.Args},
			}
			c.compileConstructCall(construct, ctx)
			return true
		}
	}

	if d.Scope == "" && c.fn != nil && c.fn.Object != nil {
		if len(c.b.ObjectMethods(c.fn.Object, d.Name)) > 0 {
			ctx.bc.InstrVar(bytecode.PshVPtr, 0)
			ctx.typ.set(types.ObjectOf(c.fn.Object, c.fn.IsConst))
			c.compileFunctionCall(node, d.Name, d.Args, ctx, c.fn.Object, c.fn.IsConst, false)
			return true
		}
	}

	c.compileFunctionCall(node, d.Name, d.Args, ctx, nil, false, false)
	return true
}

// compileSuperCall calls the base class constructor on this.
func (c *Compiler) compileSuperCall(node *ast.Node, argNodes []*ast.Node, ctx *exprContext) bool {
	if !c.isConstructor || c.fn.Object.Base == nil {
		c.error(node.Tok, "Base class constructor can only be called from a constructor of a derived class")
		ctx.typ.setDummy()
		return false
	}
	if c.isConstructorCalled {
		c.error(node.Tok, "Can't call a constructor multiple times")
	}
	if c.scopes.depth() > 1 {
		c.error(node.Tok, "Can't call a constructor in loops")
	}
	ctx.bc.InstrVar(bytecode.PshVPtr, 0)
	c.compileFunctionCall(node, "super", argNodes, ctx, c.fn.Object, false, true)
	c.isConstructorCalled = true
	return true
}

// compilePreOp applies a prefix operator to the compiled operand in ctx.
func (c *Compiler) compilePreOp(node *ast.Node, op token.Type, ctx *exprContext) bool {
	c.isVariableInitialized(&ctx.typ, node)
	dt := ctx.typ.dataType

	switch {
	case op == token.Handle:
		ot := dt.Object
		if ctx.typ.isExplicitHandle || !dt.IsObject() || ot == nil || !ot.SupportsHandles() {
			c.error(node.Tok, txtHandleNotAllowed)
			ctx.typ.setDummy()
			return false
		}
		if !dt.Ref && !(dt.IsObject() && !ctx.typ.isVariable) {
			c.error(node.Tok, txtNotValidRef)
			ctx.typ.setDummy()
			return false
		}
		// The handle of a plain object may not be reassigned
		makeConst := !dt.IsObjectHandle()
		ctx.typ.dataType, _ = dt.WithHandle(true)
		ctx.typ.isExplicitHandle = true
		if makeConst {
			ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
		}
		return true

	case op == token.Minus && dt.IsObject():
		ot := dt.Object
		funcs := ot.Beh.OperatorFuncs(types.BehNegate)
		if len(funcs) == 0 {
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		c.compileMethodCall(node, "opNeg", funcs, nil, ctx)
		return true

	case op == token.Minus:
		if dt.Ref {
			c.convertToVariable(ctx)
		}
		dt = ctx.typ.dataType
		switch {
		case dt.IsUnsignedType() && dt.SizeInMemoryDWords(c.ptr) == 2:
			c.implicitConversion(ctx, types.Primitive(types.Int64, false), node, convImplicit, true, nil, true)
		case dt.IsUnsignedType(), (dt.IsIntegerType() || dt.IsEnumType()) && dt.SizeInMemoryBytes(c.ptr) < 4, dt.IsEnumType():
			c.implicitConversion(ctx, types.Primitive(types.Int, false), node, convImplicit, true, nil, true)
		}
		dt = ctx.typ.dataType

		if ctx.typ.isConstant {
			switch v := ctx.typ.constant.(type) {
			case types.IntConst:
				ctx.typ.constant = types.ConstantFor(dt.Kind, uint64(-int64(v)))
			case types.FloatConst:
				ctx.typ.constant = -v
			case types.DoubleConst:
				ctx.typ.constant = -v
			default:
				c.error(node.Tok, txtIllegalOperation)
				ctx.typ.setDummy()
				return false
			}
			return true
		}

		var instr bytecode.Op
		switch {
		case dt.IsIntegerType() && dt.SizeInMemoryDWords(c.ptr) == 2:
			instr = bytecode.NEGi64
		case dt.IsIntegerType():
			instr = bytecode.NEGi
		case dt.IsFloatType():
			instr = bytecode.NEGf
		case dt.IsDoubleType():
			instr = bytecode.NEGd
		default:
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		c.convertToTempVariable(ctx)
		ctx.bc.InstrVar(instr, ctx.typ.stackOffset)
		return true

	case op == token.Plus:
		if dt.Ref {
			c.convertToVariable(ctx)
		}
		if !ctx.typ.dataType.IsNumber() {
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		return true

	case op == token.Not:
		if !dt.IsBooleanType() {
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		if ctx.typ.isConstant {
			ctx.typ.constant = types.BoolConst(!types.ConstBool(ctx.typ.constant))
			return true
		}
		c.convertToTempVariable(ctx)
		ctx.bc.InstrVar(bytecode.NOT, ctx.typ.stackOffset)
		return true

	case op == token.Complement:
		if dt.Ref {
			c.convertToVariable(ctx)
		}
		dt = ctx.typ.dataType
		if !dt.IsIntegerType() && !dt.IsUnsignedType() && !dt.IsEnumType() {
			c.error(node.Tok, txtIllegalOperation)
			ctx.typ.setDummy()
			return false
		}
		to := types.Primitive(types.Uint, false)
		if dt.SizeInMemoryDWords(c.ptr) == 2 {
			to = types.Primitive(types.Uint64, false)
		}
		c.implicitConversion(ctx, to, node, convExplicitValue, true, nil, true)
		if ctx.typ.isConstant {
			ctx.typ.constant = types.ConstantFor(to.Kind, ^types.Bits(ctx.typ.constant))
			return true
		}
		c.convertToTempVariable(ctx)
		ctx.bc.InstrVar(pick(to.Kind == types.Uint64, bytecode.BNOT64, bytecode.BNOT), ctx.typ.stackOffset)
		return true

	case op == token.Inc || op == token.Dec:
		instr, ok := c.prepareIncDec(node, op, ctx)
		if !ok {
			return false
		}
		ctx.bc.Instr(instr)
		return true
	}

	c.error(node.Tok, txtIllegalOperation)
	ctx.typ.setDummy()
	return false
}

// prepareIncDec checks the operand of ++ or -- and loads its address into the register.
func (c *Compiler) prepareIncDec(node *ast.Node, op token.Type, ctx *exprContext) (bytecode.Op, bool) {
	switch {
	case ctx.typ.isTemporary:
		c.error(node.Tok, txtRefIsTemp)
	case ctx.typ.dataType.IsReadOnly():
		c.error(node.Tok, txtRefIsReadOnly)
	case ctx.typ.isVariable && ctx.typ.dataType.IsPrimitive():
		ctx.bc.InstrVar(bytecode.LDV, ctx.typ.stackOffset)
		c.markInitialized(&ctx.typ)
		ctx.typ.set(ctx.typ.dataType.WithRef(true))
	case !ctx.typ.dataType.Ref || !ctx.typ.dataType.IsPrimitive():
		c.error(node.Tok, txtNotValidRef)
	}
	if c.hasErrors && !ctx.typ.dataType.Ref {
		ctx.typ.setDummy()
		return 0, false
	}

	inc := op == token.Inc
	switch ctx.typ.dataType.Kind {
	case types.Int64, types.Uint64:
		return pick(inc, bytecode.INCi64, bytecode.DECi64), true
	case types.Int, types.Uint:
		return pick(inc, bytecode.INCi, bytecode.DECi), true
	case types.Int16, types.Uint16:
		return pick(inc, bytecode.INCi16, bytecode.DECi16), true
	case types.Int8, types.Uint8:
		return pick(inc, bytecode.INCi8, bytecode.DECi8), true
	case types.Float:
		return pick(inc, bytecode.INCf, bytecode.DECf), true
	case types.Double:
		return pick(inc, bytecode.INCd, bytecode.DECd), true
	}
	c.error(node.Tok, txtIllegalOperation)
	ctx.typ.setDummy()
	return 0, false
}

// compilePostOp copies the old value into a temporary before updating it in place.
func (c *Compiler) compilePostOp(node *ast.Node, op token.Type, ctx *exprContext) bool {
	c.isVariableInitialized(&ctx.typ, node)
	instr, ok := c.prepareIncDec(node, op, ctx)
	if !ok {
		return false
	}
	c.convertToTempVariable(ctx)
	ctx.bc.Instr(instr)
	return true
}

// compileCondition compiles cond ? a : b. Unless the branches are void both store their
// result in one shared temporary.
func (c *Compiler) compileCondition(node *ast.Node, ctx *exprContext) bool {
	d := node.Data.(ast.TernaryNode)
	boolType := types.Primitive(types.Bool, true)

	e := newExprContext()
	if !c.compileAssignment(d.Cond, e) {
		e.typ.setConstant(boolType, types.BoolConst(true))
	}
	if !e.typ.dataType.IsEqualExceptRefAndConst(boolType) {
		c.error(nodeTok(d.Cond), txtExprMustBeBool)
		e.typ.setConstant(boolType, types.BoolConst(true))
	}
	c.convertToVariable(e)
	c.processDeferredParams(e)

	le, re := newExprContext(), newExprContext()
	lok := c.compileAssignment(d.ThenExpr, le)
	rok := c.compileAssignment(d.ElseExpr, re)
	if !lok || !rok {
		ctx.typ.setDummy()
		return false
	}
	isExplicitHandle := le.typ.isExplicitHandle || re.typ.isExplicitHandle

	// A literal 0 or null in the first branch takes the type of the second
	if (le.typ.isConstant && le.typ.dataType.IsIntegerType() && types.Bits(le.typ.constant) == 0) || le.typ.isNullConstant() {
		to := re.typ.dataType.WithRef(false).WithReadOnly(true)
		c.implicitConversion(le, to, d.ThenExpr, convImplicit, true, nil, true)
	}

	afterLabel, elseLabel := c.newLabel(), c.newLabel()
	cond := e.typ.stackOffset

	if !le.typ.dataType.CanBeInstanced() {
		c.releaseTemporary(&e.typ, &e.bc)
		ctx.bc.AddCode(&e.bc)
		ctx.bc.InstrVar(bytecode.CpyVtoR4, cond)
		ctx.bc.Instr(bytecode.ClrHi)
		ctx.bc.Jump(bytecode.JZ, elseLabel)
		ctx.merge(le)
		ctx.bc.Jump(bytecode.JMP, afterLabel)
		ctx.bc.Label(elseLabel)
		ctx.merge(re)
		ctx.bc.Label(afterLabel)
		if le.typ.dataType != re.typ.dataType {
			c.error(node.Tok, txtBothSameType)
		}
		ctx.typ = le.typ
		return true
	}

	dt := le.typ.dataType.WithRef(false).WithReadOnly(false)
	if dt.IsNullHandle() {
		dt = re.typ.dataType.WithRef(false).WithReadOnly(false)
	}
	used := append(append(e.bc.VarsUsed(), le.bc.VarsUsed()...), re.bc.VarsUsed()...)
	off := c.allocateVariableNotIn(dt, true, used)
	c.callDefaultConstructor(dt, off, &ctx.bc, node)

	c.releaseTemporary(&e.typ, &e.bc)
	ctx.bc.AddCode(&e.bc)
	ctx.bc.InstrVar(bytecode.CpyVtoR4, cond)
	ctx.bc.Instr(bytecode.ClrHi)
	ctx.bc.Jump(bytecode.JZ, elseLabel)

	var rtemp exprType
	rtemp.setVariable(dt, off, true)
	rtemp.isExplicitHandle = dt.IsObjectHandle()

	assign := func(branch *exprContext, branchNode *ast.Node) {
		c.prepareForAssignment(rtemp.dataType, branch, branchNode, nil)
		ctx.merge(branch)
		result := rtemp
		if !dt.IsPrimitive() {
			ctx.bc.InstrVar(bytecode.PSF, off)
			result.dataType = result.dataType.WithRef(true)
		}
		c.performAssignment(&result, &branch.typ, &ctx.bc, branchNode)
		if !dt.IsPrimitive() {
			ctx.bc.Pop(c.ptr)
		}
		c.releaseTemporary(&branch.typ, &ctx.bc)
	}

	assign(le, d.ThenExpr)
	ctx.bc.Jump(bytecode.JMP, afterLabel)
	ctx.bc.Label(elseLabel)
	assign(re, d.ElseExpr)
	ctx.bc.Label(afterLabel)

	if !le.typ.dataType.IsEqualExceptRefAndConst(re.typ.dataType) {
		c.error(node.Tok, txtBothSameType)
	}

	ctx.typ = rtemp
	ctx.typ.isExplicitHandle = isExplicitHandle
	if !dt.IsPrimitive() {
		ctx.bc.InstrVar(bytecode.PSF, off)
		ctx.typ.dataType = ctx.typ.dataType.WithRef(true)
	}
	return true
}

// compileConversion compiles T(expr) for primitive T and cast<T>(expr).
func (c *Compiler) compileConversion(node *ast.Node, to types.DataType, exprNode *ast.Node, kind convKind, ctx *exprContext) bool {
	expr := newExprContext()
	if exprNode == nil {
		c.error(node.Tok, "A cast operator has one argument")
		ctx.typ.setConstant(to, types.ConstantFor(to.Kind, 0))
		return false
	}
	if !c.compileAssignment(exprNode, expr) {
		ctx.typ.setConstant(to, types.ConstantFor(to.Kind, 0))
		return false
	}

	if kind == convExplicitValue {
		to = to.WithReadOnly(true)
	} else {
		if to.Object == nil || !to.Object.SupportsHandles() {
			c.error(node.Tok, "Illegal target type for reference cast")
			ctx.typ.setDummy()
			return false
		}
		to, _ = to.WithHandle(true)
	}

	if expr.typ.dataType.Ref {
		if expr.typ.dataType.IsObject() {
			c.dereference(expr, true)
		} else {
			c.convertToVariable(expr)
		}
	}

	c.implicitConversion(expr, to, node, kind, true, nil, true)
	c.isVariableInitialized(&expr.typ, node)

	got := expr.typ.dataType
	ok := got.IsEqualExceptRefAndConst(to)
	if !ok && to.IsObjectHandle() && got.IsObjectHandle() && got.Object == to.Object {
		ok = to.IsHandleToConst() || !got.IsHandleToConst()
	}
	if !ok {
		c.error(node.Tok, txtNoConversion, got.Format(), to.Format())
		ctx.typ.setDummy()
		return false
	}

	ctx.merge(expr)
	ctx.typ = expr.typ
	if to.IsPrimitive() {
		ctx.typ.dataType = ctx.typ.dataType.WithReadOnly(true)
	}
	return true
}
