package compiler

import (
	"errors"
	"fmt"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/types"
	"github.com/xplshn/gasc/pkg/util"
)

// ErrCompile is returned, wrapped, for any function whose code had errors. The details have
// already gone to the reporter.
var ErrCompile = errors.New("compilation failed")

// finish resolves labels and packages the code. Code with errors is discarded.
func (c *Compiler) finish(out *bytecode.Fragment, decl *types.Function, node *ast.Node) (*bytecode.Function, error) {
	code, lines, maxStack, err := out.Finalize(c.ptr)
	if err != nil {
		c.error(nodeTok(node), "Internal error while finalizing code: %s", err)
	}
	name := "global initializer"
	if decl != nil {
		name = decl.Declaration()
	}
	if c.hasErrors {
		return nil, fmt.Errorf("%s: %w", name, ErrCompile)
	}

	fn := &bytecode.Function{
		Decl:          decl,
		Code:          code,
		VariableSpace: c.alloc.variableSpace(),
		LineNumbers:   lines,
		Vars:          c.alloc.vars(),
	}
	fn.StackNeeded = maxStack + fn.VariableSpace
	for _, v := range fn.Vars {
		if v.Type.IsObject() && v.Type.Object != nil {
			fn.ObjVars = append(fn.ObjVars, bytecode.ObjVar{Offset: v.Offset, Type: v.Type.Object})
		}
	}
	return fn, nil
}

// paramOffsets gives each parameter's frame offset. The object pointer of a method sits at 0.
func (c *Compiler) paramOffsets(f *types.Function) []int {
	offs := make([]int, len(f.Params))
	off := 0
	if f.Object != nil {
		off = -c.ptr
	}
	for i, p := range f.Params {
		offs[i] = off
		off -= p.SizeOnStackDWords(c.ptr)
	}
	return offs
}

// pushArguments pushes a copy of f's own arguments, last first, to forward them to another call.
func (c *Compiler) pushArguments(f *types.Function, bc *bytecode.Fragment) {
	offs := c.paramOffsets(f)
	for i := len(f.Params) - 1; i >= 0; i-- {
		p := f.Params[i]
		switch {
		case p.Ref || p.IsObject():
			bc.InstrVar(bytecode.PshVPtr, offs[i])
		case p.SizeOnStackDWords(c.ptr) == 1:
			bc.InstrVar(bytecode.PshV4, offs[i])
		default:
			bc.InstrVar(bytecode.PshV8, offs[i])
		}
	}
}

// CompileFunction compiles a script function, method, constructor or destructor from its
// declaration node.
func CompileFunction(b Builder, rep *util.Reporter, f *types.Function, node *ast.Node) (*bytecode.Function, error) {
	return newCompiler(b, rep).compileFunction(f, node)
}

func (c *Compiler) compileFunction(f *types.Function, node *ast.Node) (*bytecode.Function, error) {
	c.fn = f
	c.isConstructor = f.IsConstructor()
	c.isDestructor = f.IsDestructor()
	d := node.Data.(ast.FuncDeclNode)

	if !f.Return.IsVoid() {
		if f.Return.Ref {
			c.error(node.Tok, "Script functions can't return references")
		} else if !f.Return.CanBeInstanced() {
			c.error(node.Tok, "Data type can't be '%s'", f.Return.Format())
		}
	}

	c.scopes.push(false, false)
	for i, off := range c.paramOffsets(f) {
		p := f.Params[i]
		if !p.Ref && !p.CanBeInstanced() {
			c.error(node.Tok, "Parameter type can't be '%s'", p.Format())
		}
		name := ""
		if i < len(f.ParamNames) {
			name = f.ParamNames[i]
		}
		v, err := c.scopes.declare(name, p, off)
		if err != nil {
			c.error(node.Tok, "Parameter '%s' is already declared", name)
			continue
		}
		v.initialized = true
	}

	var body bytecode.Fragment
	hasReturn := false
	if d.Body != nil {
		c.scopes.push(false, false)
		var isFinished bool
		hasReturn, isFinished = c.compileStatements(d.Body.Data.(ast.BlockNode).Stmts, &body)
		if !hasReturn && !isFinished {
			c.destroyScopeVariables(c.scopes.current(), &body)
		}
		c.popScope()
	}
	if !hasReturn && !f.Return.IsVoid() {
		c.error(node.Tok, "Not all paths return a value")
	}

	var out bytecode.Fragment
	c.lineInstr(&out, node)
	ot := f.Object

	if c.isConstructor && ot.Base != nil && !c.isConstructorCalled {
		if ot.Base.Beh.Construct == 0 {
			c.error(node.Tok, "Base class doesn't have a default constructor")
		} else {
			out.InstrVar(bytecode.PshVPtr, 0)
			base := c.funcDesc(ot.Base.Beh.Construct)
			out.Call(c.callOp(base), base.ID, base.SpaceNeededForCall(c.ptr))
		}
	}

	// Keep the object alive while its own method runs
	guard := ot != nil && ot.IsScript() && !c.isConstructor && !c.isDestructor && ot.Beh.AddRef != 0 && ot.Beh.Release != 0
	if guard {
		out.InstrVar(bytecode.PshVPtr, 0)
		out.Call(bytecode.CALLSYS, ot.Beh.AddRef, c.ptr)
	}

	out.AddCode(&body)
	out.Label(exitLabel)

	if guard {
		out.InstrVar(bytecode.PshVPtr, 0)
		out.Call(bytecode.CALLSYS, ot.Beh.Release, c.ptr)
	}
	offs := c.paramOffsets(f)
	for i, p := range f.Params {
		if !p.Ref && p.IsObject() {
			c.callDestructor(p, offs[i], &out)
		}
	}
	out.Ret(f.SpaceNeededForCall(c.ptr))

	return c.finish(&out, f, node)
}

// CompileDefaultConstructor compiles the constructor a class gets when it declares none: it
// only runs the base class constructor.
func CompileDefaultConstructor(b Builder, rep *util.Reporter, f *types.Function) (*bytecode.Function, error) {
	c := newCompiler(b, rep)
	c.fn = f
	c.isConstructor = true

	var out bytecode.Fragment
	if base := f.Object.Base; base != nil && base.Beh.Construct != 0 {
		out.InstrVar(bytecode.PshVPtr, 0)
		ctor := c.funcDesc(base.Beh.Construct)
		out.Call(c.callOp(ctor), ctor.ID, ctor.SpaceNeededForCall(c.ptr))
	}
	out.Label(exitLabel)
	out.Ret(f.SpaceNeededForCall(c.ptr))
	return c.finish(&out, f, nil)
}

// CompileFactory compiles the factory of a script class: it allocates the object with the
// constructor ctor, forwarding its own arguments, and returns the handle.
func CompileFactory(b Builder, rep *util.Reporter, factory *types.Function, ot *types.ObjectType, ctor int) (*bytecode.Function, error) {
	c := newCompiler(b, rep)
	c.fn = factory
	c.scopes.push(false, false)

	handle, _ := types.ObjectOf(ot, false).WithHandle(true)
	off := c.allocateVariable(handle, false)

	var out bytecode.Fragment
	out.InstrVarArg(bytecode.SetV4, off, 0)
	out.InstrVar(bytecode.PSF, off)
	c.pushArguments(factory, &out)
	out.Alloc(ot, ctor, factory.SpaceNeededForArguments(c.ptr)+c.ptr)
	out.InstrVar(bytecode.LOADOBJ, off)
	out.Ret(factory.SpaceNeededForCall(c.ptr))

	fn, err := c.finish(&out, factory, nil)
	if fn != nil {
		// The arguments now belong to the constructor
		fn.DontCleanUpArgs = true
	}
	return fn, err
}

// CompileTemplateFactoryStub compiles the factory of a template instance, which calls the
// generic host factory with the instance's type as the hidden first argument.
func CompileTemplateFactoryStub(b Builder, rep *util.Reporter, stub *types.Function, generic int, inst *types.ObjectType) (*bytecode.Function, error) {
	c := newCompiler(b, rep)
	c.fn = stub
	g := c.funcDesc(generic)
	if g == nil {
		c.error(nodeTok(nil), "Template factory for '%s' is missing", inst.Name)
		return nil, fmt.Errorf("%s: %w", stub.Declaration(), ErrCompile)
	}

	var out bytecode.Fragment
	c.pushArguments(stub, &out)
	out.InstrType(bytecode.OBJTYPE, inst)
	out.Call(bytecode.CALLSYS, g.ID, g.SpaceNeededForCall(c.ptr))
	out.Ret(stub.SpaceNeededForCall(c.ptr))

	fn, err := c.finish(&out, stub, nil)
	if fn != nil {
		fn.DontCleanUpArgs = true
	}
	return fn, err
}
