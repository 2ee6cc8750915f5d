package compiler

import (
	"sort"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/types"
)

// switchTableGap is the largest distance between sorted case values that still lets them
// share one jump table, and switchTableMin the smallest run worth a table.
const (
	switchTableGap = 5
	switchTableMin = 5
)

// compileStatements compiles a list of statements in the current scope. isFinished reports
// that control never reaches the end because of a break or continue.
func (c *Compiler) compileStatements(stmts []*ast.Node, bc *bytecode.Fragment) (hasReturn, isFinished bool) {
	hasWarned := false
	for _, stmt := range stmts {
		if !hasWarned && (hasReturn || isFinished) {
			c.warn(config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
			hasWarned = true
		}

		var sbc bytecode.Fragment
		c.lineInstr(&sbc, stmt)
		switch stmt.Type {
		case ast.Break, ast.Continue:
			c.compileStatement(stmt, &sbc)
			isFinished = true
		default:
			if c.compileStatement(stmt, &sbc) {
				hasReturn = true
			}
		}
		bc.AddCode(&sbc)

		if c.afterStatement != nil {
			c.afterStatement(c)
		}
	}
	return hasReturn, isFinished
}

// compileBlock compiles a block in a scope of its own, destroying its locals on the way out.
func (c *Compiler) compileBlock(node *ast.Node, bc *bytecode.Fragment) bool {
	c.scopes.push(false, false)
	hasReturn, isFinished := c.compileStatements(node.Data.(ast.BlockNode).Stmts, bc)
	if !hasReturn && !isFinished {
		c.destroyScopeVariables(c.scopes.current(), bc)
	}
	c.popScope()
	return hasReturn
}

// compileSubStatement compiles the body of an if or loop. A lone declaration still gets a
// scope of its own.
func (c *Compiler) compileSubStatement(node *ast.Node, bc *bytecode.Fragment) bool {
	if node.Type == ast.Block {
		return c.compileBlock(node, bc)
	}
	c.scopes.push(false, false)
	var sbc bytecode.Fragment
	c.lineInstr(&sbc, node)
	hasReturn := c.compileStatement(node, &sbc)
	bc.AddCode(&sbc)
	if !hasReturn && node.Type != ast.Break && node.Type != ast.Continue {
		c.destroyScopeVariables(c.scopes.current(), bc)
	}
	c.popScope()
	return hasReturn
}

// compileStatement reports whether the statement returns on every path.
func (c *Compiler) compileStatement(node *ast.Node, bc *bytecode.Fragment) bool {
	switch node.Type {
	case ast.Block:
		return c.compileBlock(node, bc)
	case ast.VarDecl, ast.MultiVarDecl:
		c.compileDeclaration(node, bc)
	case ast.ExprStmt:
		c.compileExpressionStatement(node, bc)
	case ast.If:
		return c.compileIf(node, bc)
	case ast.For:
		c.compileFor(node, bc)
	case ast.While:
		c.compileWhile(node, bc)
	case ast.DoWhile:
		return c.compileDoWhile(node, bc)
	case ast.Switch:
		return c.compileSwitch(node, bc)
	case ast.Break:
		c.compileBreak(node, bc)
	case ast.Continue:
		c.compileContinue(node, bc)
	case ast.Return:
		c.compileReturn(node, bc)
		return true
	case ast.FuncDecl, ast.ClassDecl, ast.EnumDecl:
		c.error(node.Tok, "Unexpected %s inside a function body", node.Type)
	default:
		c.error(node.Tok, "Unexpected %s", node.Type)
	}
	return false
}

// popScope frees the slots of the innermost scope's locals and removes it.
func (c *Compiler) popScope() {
	if cur := c.scopes.current(); cur != nil {
		for _, v := range cur.vars {
			if v.offset > 0 && v.offset != dummyOffset {
				c.deallocateVariable(v.offset)
			}
		}
	}
	c.scopes.pop()
}

// destroyScopeVariables calls the destructors of a scope's object locals, last declared first.
func (c *Compiler) destroyScopeVariables(rec *scopeRecord, bc *bytecode.Fragment) {
	if rec == nil {
		return
	}
	for i := len(rec.vars) - 1; i >= 0; i-- {
		v := rec.vars[i]
		if v.offset > 0 && v.offset != dummyOffset && v.dt.IsObject() {
			c.callDestructor(v.dt, v.offset, bc)
		}
	}
}

// destroyVariablesUntil destroys the locals of every scope from the innermost outwards,
// stopping before the first scope stop accepts. It reports whether such a scope was found.
func (c *Compiler) destroyVariablesUntil(stop func(*scopeRecord) bool, bc *bytecode.Fragment) bool {
	recs := c.scopes.records
	for i := len(recs) - 1; i >= 0; i = recs[i].parent {
		if stop != nil && stop(&recs[i]) {
			return true
		}
		c.destroyScopeVariables(&recs[i], bc)
	}
	return false
}

func (c *Compiler) compileExpressionStatement(node *ast.Node, bc *bytecode.Fragment) {
	d := node.Data.(ast.ExprStmtNode)
	if d.Expr == nil {
		return
	}
	ctx := newExprContext()
	c.compileAssignment(d.Expr, ctx)
	if !ctx.typ.dataType.IsPrimitive() && !ctx.typ.dataType.IsVoid() {
		ctx.bc.Pop(c.ptr)
	}
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)
}

// compileConditionJump evaluates a boolean condition and jumps to falseLabel when it does
// not hold. The results report a condition known at compile time.
func (c *Compiler) compileConditionJump(node *ast.Node, falseLabel int, bc *bytecode.Fragment) (alwaysTrue, alwaysFalse bool) {
	ctx := newExprContext()
	if !c.compileAssignment(node, ctx) {
		return false, false
	}
	if !ctx.typ.dataType.IsEqualExceptRefAndConst(types.Primitive(types.Bool, false)) {
		c.error(node.Tok, txtExprMustBeBool)
		return false, false
	}
	if ctx.typ.isConstant {
		if types.ConstBool(ctx.typ.constant) {
			return true, false
		}
		bc.AddCode(&ctx.bc)
		bc.Jump(bytecode.JMP, falseLabel)
		return false, true
	}

	c.isVariableInitialized(&ctx.typ, node)
	c.convertToVariable(ctx)
	c.releaseTemporary(&ctx.typ, &ctx.bc)
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)
	bc.InstrVar(bytecode.CpyVtoR4, ctx.typ.stackOffset)
	bc.Instr(bytecode.ClrHi)
	bc.Jump(bytecode.JZ, falseLabel)
	return false, false
}

func (c *Compiler) compileIf(node *ast.Node, bc *bytecode.Fragment) bool {
	d := node.Data.(ast.IfNode)
	elseLabel := c.newLabel()
	c.compileConditionJump(d.Cond, elseLabel, bc)

	ctorCalled := c.isConstructorCalled
	thenReturns := c.compileSubStatement(d.ThenBody, bc)
	thenCalled := c.isConstructorCalled
	c.isConstructorCalled = ctorCalled

	if d.ElseBody == nil {
		bc.Label(elseLabel)
		if thenCalled != ctorCalled {
			c.error(node.Tok, "Both conditions must call constructor")
		}
		return false
	}

	afterLabel := c.newLabel()
	if !thenReturns {
		bc.Jump(bytecode.JMP, afterLabel)
	}
	bc.Label(elseLabel)
	elseReturns := c.compileSubStatement(d.ElseBody, bc)
	if c.isConstructorCalled != thenCalled {
		c.error(node.Tok, "Both conditions must call constructor")
	}
	bc.Label(afterLabel)
	return thenReturns && elseReturns
}

// pushLoop opens the scope of a loop or switch and registers its jump targets.
func (c *Compiler) pushLoop(breakLabel, continueLabel int, isContinue bool) {
	c.scopes.push(true, isContinue)
	c.breakLabels = append(c.breakLabels, breakLabel)
	if isContinue {
		c.continueLabels = append(c.continueLabels, continueLabel)
	}
}

func (c *Compiler) popLoop(isContinue bool, bc *bytecode.Fragment) {
	c.destroyScopeVariables(c.scopes.current(), bc)
	c.popScope()
	c.breakLabels = c.breakLabels[:len(c.breakLabels)-1]
	if isContinue {
		c.continueLabels = c.continueLabels[:len(c.continueLabels)-1]
	}
}

func (c *Compiler) compileFor(node *ast.Node, bc *bytecode.Fragment) {
	d := node.Data.(ast.ForNode)
	condLabel, continueLabel, afterLabel := c.newLabel(), c.newLabel(), c.newLabel()
	c.pushLoop(afterLabel, continueLabel, true)

	if d.Init != nil {
		c.compileStatement(d.Init, bc)
	}

	bc.Label(condLabel)
	bc.Instr(bytecode.SUSPEND)
	if d.Cond != nil {
		c.compileConditionJump(d.Cond, afterLabel, bc)
	}

	c.compileSubStatement(d.Body, bc)

	bc.Label(continueLabel)
	for _, next := range d.Next {
		var nbc bytecode.Fragment
		c.compileExpressionStatement(&ast.Node{Type: ast.ExprStmt, Tok: next.Tok, Parent: node, Data: ast.ExprStmtNode{Expr: next}}, &nbc)
		bc.AddCode(&nbc)
	}
	bc.Jump(bytecode.JMP, condLabel)
	bc.Label(afterLabel)
	c.popLoop(true, bc)
}

func (c *Compiler) compileWhile(node *ast.Node, bc *bytecode.Fragment) {
	d := node.Data.(ast.WhileNode)
	continueLabel, afterLabel := c.newLabel(), c.newLabel()
	c.pushLoop(afterLabel, continueLabel, true)

	bc.Label(continueLabel)
	bc.Instr(bytecode.SUSPEND)
	c.compileConditionJump(d.Cond, afterLabel, bc)
	c.compileSubStatement(d.Body, bc)
	bc.Jump(bytecode.JMP, continueLabel)
	bc.Label(afterLabel)
	c.popLoop(true, bc)
}

func (c *Compiler) compileDoWhile(node *ast.Node, bc *bytecode.Fragment) bool {
	d := node.Data.(ast.DoWhileNode)
	beforeLabel, continueLabel, afterLabel := c.newLabel(), c.newLabel(), c.newLabel()
	c.pushLoop(afterLabel, continueLabel, true)

	bc.Label(beforeLabel)
	bc.Instr(bytecode.SUSPEND)
	hasReturn := c.compileSubStatement(d.Body, bc)

	bc.Label(continueLabel)
	if _, alwaysFalse := c.compileConditionJump(d.Cond, afterLabel, bc); !alwaysFalse {
		bc.Jump(bytecode.JMP, beforeLabel)
	}
	bc.Label(afterLabel)
	c.popLoop(true, bc)
	return hasReturn
}

type switchCase struct {
	value int64
	label int
}

// compileSwitch dispatches on a 32-bit discriminant. Dense runs of case values jump through
// a JMPP table, the rest are compared one by one.
func (c *Compiler) compileSwitch(node *ast.Node, bc *bytecode.Fragment) bool {
	d := node.Data.(ast.SwitchNode)
	afterLabel := c.newLabel()

	ctx := newExprContext()
	c.compileAssignment(d.Expr, ctx)
	dt := ctx.typ.dataType
	if !dt.IsIntegerType() && !dt.IsUnsignedType() && !dt.IsEnumType() {
		c.error(d.Expr.Tok, "Switch expressions must be of integral type")
		ctx.typ.setDummy()
		dt = ctx.typ.dataType
	}
	to := types.Primitive(types.Int, false)
	if dt.IsUnsignedType() {
		to = types.Primitive(types.Uint, false)
	}
	c.implicitConversion(ctx, to, d.Expr, convExplicitValue, true, nil, true)
	c.isVariableInitialized(&ctx.typ, d.Expr)
	c.convertToVariable(ctx)
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)
	discr := ctx.typ.stackOffset

	if len(d.Cases) == 0 {
		c.error(node.Tok, "Empty switch statement")
	}

	c.pushLoop(afterLabel, 0, false)

	var cases []switchCase
	caseLabels := make([]int, len(d.Cases))
	defaultLabel := afterLabel
	for i, cn := range d.Cases {
		caseLabels[i] = c.newLabel()
		cd := cn.Data.(ast.CaseNode)
		if cd.Value == nil {
			if i != len(d.Cases)-1 {
				c.error(cn.Tok, "The default case must be the last one")
			}
			defaultLabel = caseLabels[i]
			continue
		}
		vctx := newExprContext()
		c.compileAssignment(cd.Value, vctx)
		c.implicitConversion(vctx, to, cd.Value, convImplicit, true, nil, true)
		if !vctx.typ.isConstant || !vctx.typ.dataType.IsEqualExceptRefAndConst(to) {
			c.error(cd.Value.Tok, "Case expressions must be constants")
			continue
		}
		v := int64(int32(types.Bits(vctx.typ.constant)))
		if to.Kind == types.Uint {
			v = int64(uint32(types.Bits(vctx.typ.constant)))
		}
		dup := false
		for _, sc := range cases {
			if sc.value == v {
				c.error(cd.Value.Tok, "Duplicate switch case")
				dup = true
				break
			}
		}
		if !dup {
			cases = append(cases, switchCase{value: v, label: caseLabels[i]})
		}
	}

	c.emitSwitchJumps(cases, discr, to, defaultLabel, bc)
	c.releaseTemporary(&ctx.typ, bc)

	returns := make([]bool, len(d.Cases))
	empty := make([]bool, len(d.Cases))
	for i, cn := range d.Cases {
		bc.Label(caseLabels[i])
		body := cn.Data.(ast.CaseNode).Body
		empty[i] = len(body) == 0
		c.scopes.push(false, false)
		hasReturn, isFinished := c.compileStatements(body, bc)
		if !hasReturn && !isFinished {
			c.destroyScopeVariables(c.scopes.current(), bc)
		}
		c.popScope()
		returns[i] = hasReturn
	}
	bc.Label(afterLabel)
	c.popLoop(false, bc)

	// Control only leaves through the end when there is no default or some case does not return
	if defaultLabel == afterLabel || len(d.Cases) == 0 {
		return false
	}
	for i := len(d.Cases) - 1; i >= 0; i-- {
		if empty[i] && i+1 < len(d.Cases) {
			returns[i] = returns[i+1]
		}
		if !returns[i] {
			return false
		}
	}
	return true
}

func (c *Compiler) emitSwitchJumps(cases []switchCase, discr int, dt types.DataType, defaultLabel int, bc *bytecode.Fragment) {
	if len(cases) == 0 {
		bc.Jump(bytecode.JMP, defaultLabel)
		return
	}
	sorted := append([]switchCase(nil), cases...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].value < sorted[j].value })

	cmp := bytecode.CMPi
	if dt.Kind == types.Uint {
		cmp = bytecode.CMPu
	}
	tmp := c.allocateVariable(types.Primitive(types.Int, false), true)
	setTmp := func(v int64) { bc.InstrVarArg(bytecode.SetV4, tmp, uint64(uint32(v))) }

	for n := 0; n < len(sorted); {
		run := 1
		for n+run < len(sorted) && sorted[n+run].value-sorted[n+run-1].value <= switchTableGap {
			run++
		}

		if run < switchTableMin {
			for _, sc := range sorted[n : n+run] {
				setTmp(sc.value)
				bc.InstrVarVar(cmp, discr, tmp)
				bc.Jump(bytecode.JZ, sc.label)
			}
			n += run
			continue
		}

		first, last := sorted[n].value, sorted[n+run-1].value
		nextLabel := c.newLabel()
		setTmp(first)
		bc.InstrVarVar(cmp, discr, tmp)
		bc.Jump(bytecode.JS, defaultLabel)
		setTmp(last)
		bc.InstrVarVar(cmp, discr, tmp)
		bc.Jump(bytecode.JP, nextLabel)

		setTmp(-first)
		bc.InstrVarVarVar(bytecode.ADDi, tmp, discr, tmp)
		bc.InstrVar(bytecode.JMPP, tmp)
		entry := n
		for v := first; v <= last; v++ {
			if sorted[entry].value == v {
				bc.Jump(bytecode.JMP, sorted[entry].label)
				entry++
			} else {
				bc.Jump(bytecode.JMP, defaultLabel)
			}
		}
		bc.Label(nextLabel)
		n += run
	}
	bc.Jump(bytecode.JMP, defaultLabel)
	c.releaseTemporaryOffset(tmp, nil)
}

func (c *Compiler) compileBreak(node *ast.Node, bc *bytecode.Fragment) {
	if len(c.breakLabels) == 0 {
		c.error(node.Tok, "No appropriate loop or switch for 'break'")
		return
	}
	c.destroyVariablesUntil(func(r *scopeRecord) bool { return r.isBreakScope }, bc)
	bc.Jump(bytecode.JMP, c.breakLabels[len(c.breakLabels)-1])
}

func (c *Compiler) compileContinue(node *ast.Node, bc *bytecode.Fragment) {
	if len(c.continueLabels) == 0 {
		c.error(node.Tok, "No appropriate loop for 'continue'")
		return
	}
	c.destroyVariablesUntil(func(r *scopeRecord) bool { return r.isContinueScope }, bc)
	bc.Jump(bytecode.JMP, c.continueLabels[len(c.continueLabels)-1])
}

// compileReturn leaves primitives in the value register and objects in the object register
// before jumping to the function's exit.
func (c *Compiler) compileReturn(node *ast.Node, bc *bytecode.Fragment) {
	d := node.Data.(ast.ReturnNode)
	ret := c.voidType()
	if c.fn != nil {
		ret = c.fn.Return
	}

	switch {
	case ret.IsVoid() && d.Expr != nil:
		c.error(node.Tok, "Can't return a value from a void function")
	case !ret.IsVoid() && d.Expr == nil:
		c.error(node.Tok, "Must return a value")
	case d.Expr != nil:
		c.compileReturnValue(d.Expr, ret.WithRef(false), bc)
	}

	c.destroyVariablesUntil(nil, bc)
	bc.Jump(bytecode.JMP, exitLabel)
}

func (c *Compiler) compileReturnValue(expr *ast.Node, ret types.DataType, bc *bytecode.Fragment) {
	ctx := newExprContext()
	if !c.compileAssignment(expr, ctx) {
		return
	}
	c.isVariableInitialized(&ctx.typ, expr)

	if ret.IsPrimitive() {
		if ctx.typ.dataType.Ref {
			c.convertToVariable(ctx)
		}
		c.implicitConversion(ctx, ret, expr, convImplicit, true, nil, true)
		if !ctx.typ.dataType.IsEqualExceptRefAndConst(ret) {
			c.error(expr.Tok, txtNoConversion, ctx.typ.dataType.Format(), ret.Format())
			return
		}
		c.convertToVariable(ctx)
		if ret.SizeOnStackDWords(c.ptr) == 1 {
			ctx.bc.InstrVar(bytecode.CpyVtoR4, ctx.typ.stackOffset)
		} else {
			ctx.bc.InstrVar(bytecode.CpyVtoR8, ctx.typ.stackOffset)
		}
		c.releaseTemporary(&ctx.typ, &ctx.bc)
		c.processDeferredParams(ctx)
		bc.AddCode(&ctx.bc)
		return
	}

	if ret.IsObjectHandle() {
		c.implicitConversion(ctx, ret, expr, convImplicit, true, nil, true)
		if !ctx.typ.dataType.IsObjectHandle() && ctx.typ.dataType.IsObject() && ctx.typ.dataType.Object.SupportsHandles() {
			// Returning an object where a handle is expected returns a handle to it
			ctx.typ.dataType, _ = ctx.typ.dataType.WithHandle(true)
		}
	} else {
		c.implicitConversion(ctx, ret, expr, convImplicit, true, nil, true)
	}
	got := ctx.typ.dataType
	if got.Object != ret.Object && !got.IsNullHandle() && !(got.Object != nil && got.Object.DerivesFrom(ret.Object)) {
		c.error(expr.Tok, txtNoConversion, got.Format(), ret.Format())
		return
	}
	if ret.IsObjectHandle() && got.IsHandleToConst() && !ret.IsHandleToConst() {
		c.error(expr.Tok, txtNoConversion, got.Format(), ret.Format())
		return
	}

	// The object register takes over a temporary; anything else is copied into one first
	if ret.IsObjectHandle() {
		// A named handle is moved out, which leaves it null for its destructor
		c.convertToVariable(ctx)
	} else if !ctx.typ.isTemporary || !ctx.typ.isVariable {
		c.convertToTempVariable(ctx)
	}
	ctx.bc.Pop(c.ptr)
	ctx.bc.InstrVar(bytecode.LOADOBJ, ctx.typ.stackOffset)
	if ctx.typ.isTemporary {
		c.deallocateVariable(ctx.typ.stackOffset)
	}
	c.processDeferredParams(ctx)
	bc.AddCode(&ctx.bc)
}
