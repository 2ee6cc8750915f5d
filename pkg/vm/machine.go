// Package vm executes the bytecode of a compiled module.
package vm

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/types"
)

const (
	DefaultStackSize = 1 << 16
	MaxCallDepth     = 1000
	// stackMargin covers the object pointer ALLOC pushes above the counted stack.
	stackMargin = 8
)

// Machine runs the functions of one module. It is not safe for concurrent use.
type Machine struct {
	mod *builder.Module
	eng *registry.Engine
	ptr int
	out io.Writer

	stack   []Cell
	sp      int
	globals []Cell
	depth   int

	reg    Cell
	objReg *Object

	hosts       map[string]HostFunc
	destructErr error

	// Suspend, when set, runs at every SUSPEND instruction. An error aborts the script.
	Suspend func() error
}

// New returns a machine for mod whose host functions print to out.
func New(mod *builder.Module, out io.Writer) *Machine {
	m := &Machine{
		mod:     mod,
		eng:     mod.Engine,
		ptr:     mod.Engine.PtrSize(),
		out:     out,
		stack:   make([]Cell, DefaultStackSize),
		globals: make([]Cell, len(mod.Engine.Globals)),
		hosts:   make(map[string]HostFunc, len(builtinHosts)),
	}
	m.sp = len(m.stack)
	for name, fn := range builtinHosts {
		m.hosts[name] = fn
	}
	return m
}

// SetStackSize replaces the stack with one of n cells. It must be called before the first call.
func (m *Machine) SetStackSize(n int) error {
	if m.depth != 0 {
		return fmt.Errorf("can't resize the stack while a script runs")
	}
	if n < stackMargin*2 {
		return fmt.Errorf("stack of %d cells is too small", n)
	}
	m.stack = make([]Cell, n)
	m.sp = n
	return nil
}

// Bind installs or replaces the implementation of a host function bind name.
func (m *Machine) Bind(name string, fn HostFunc) { m.hosts[name] = fn }

// Global returns the cell of a global property.
func (m *Machine) Global(name string) (*Cell, bool) {
	prop := m.eng.GlobalProperty(name)
	if prop == nil || prop.Index >= len(m.globals) {
		return nil, false
	}
	return &m.globals[prop.Index], true
}

// InitGlobals runs the initializers of the module's globals in order.
func (m *Machine) InitGlobals() error {
	if len(m.globals) < len(m.eng.Globals) {
		m.globals = append(m.globals, make([]Cell, len(m.eng.Globals)-len(m.globals))...)
	}
	for _, fn := range m.mod.Inits {
		if err := m.run(fn); err != nil {
			m.sp = len(m.stack)
			return err
		}
	}
	return nil
}

// Close releases every object the globals hold, last declared first.
func (m *Machine) Close() error {
	for i := len(m.eng.Globals) - 1; i >= 0; i-- {
		g := m.eng.Globals[i]
		if g.Type.IsObject() && g.Index < len(m.globals) {
			m.releaseCell(&m.globals[g.Index])
		}
	}
	err := m.destructErr
	m.destructErr = nil
	return err
}

// Value is the result of a call. Object results carry the reference the call returned.
type Value struct {
	Type   types.DataType
	Bits   uint64
	Object *Object
}

func (v Value) Int() int64 {
	switch v.Type.Kind {
	case types.Int8:
		return int64(int8(v.Bits))
	case types.Int16:
		return int64(int16(v.Bits))
	case types.Int, types.Enum:
		return int64(int32(v.Bits))
	case types.Float:
		return int64(v.Float())
	case types.Double:
		return int64(v.Double())
	}
	return int64(v.Bits)
}

func (v Value) Uint() uint64 { return v.Bits }
func (v Value) Bool() bool   { return v.Bits&0xFF != 0 }

func (v Value) Float() float64 {
	if v.Type.Kind == types.Double {
		return math.Float64frombits(v.Bits)
	}
	return float64(math.Float32frombits(uint32(v.Bits)))
}

func (v Value) Double() float64 { return v.Float() }

func (v Value) String() string {
	switch {
	case v.Type.IsVoid():
		return ""
	case v.Type.IsObject():
		if v.Object == nil {
			return "null"
		}
		if _, ok := v.Object.Host.(string); ok {
			return v.Object.Str()
		}
		return "<" + v.Object.Type.Name + ">"
	case v.Type.IsBooleanType():
		return strconv.FormatBool(v.Bool())
	case v.Type.IsFloatType():
		return strconv.FormatFloat(v.Float(), 'g', -1, 32)
	case v.Type.IsDoubleType():
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case v.Type.IsUnsignedType():
		return strconv.FormatUint(v.Bits, 10)
	}
	return strconv.FormatInt(v.Int(), 10)
}

// CallDecl finds a global function by declaration, such as "int main()", and calls it.
func (m *Machine) CallDecl(decl string, args ...any) (Value, error) {
	f, err := m.mod.FindFunction(decl)
	if err != nil {
		return Value{}, err
	}
	return m.Call(f, args...)
}

// Call runs a global function. Arguments are Go integers, floats, bools, strings or *Object.
func (m *Machine) Call(f *types.Function, args ...any) (Value, error) {
	if f.Object != nil {
		return Value{}, fmt.Errorf("'%s' is a method and can't be called directly", f.Declaration())
	}
	if len(args) != len(f.Params) {
		return Value{}, fmt.Errorf("'%s' takes %d arguments, got %d", f.Declaration(), len(f.Params), len(args))
	}
	base := m.sp
	for i := len(f.Params) - 1; i >= 0; i-- {
		if err := m.pushArg(f.Params[i], args[i]); err != nil {
			m.sp = base
			return Value{}, fmt.Errorf("argument %d of '%s': %w", i+1, f.Declaration(), err)
		}
	}

	m.reg, m.objReg = Cell{}, nil
	err := m.invoke(f)
	if err == nil && m.destructErr != nil {
		err = m.destructErr
	}
	m.destructErr = nil
	if err != nil {
		m.sp = base
		return Value{}, err
	}

	v := Value{Type: f.Return}
	switch {
	case f.Return.IsObject() && !f.Return.Ref:
		v.Object = m.objReg
		m.objReg = nil
	case f.Return.IsObject():
		v.Object = m.reg.Obj
		if v.Object == nil && m.reg.Ref != nil {
			v.Object = m.reg.Ref.Obj
		}
	case f.Return.Ref && m.reg.Ref != nil:
		v.Bits = m.reg.Ref.V
	default:
		v.Bits = m.reg.V
	}
	return v, nil
}

func (m *Machine) pushArg(p types.DataType, arg any) error {
	if p.IsObject() {
		var o *Object
		switch a := arg.(type) {
		case nil:
		case *Object:
			o = a
			m.addRef(o)
		case string:
			o = m.NewString(a)
		default:
			return fmt.Errorf("can't pass %T as '%s'", arg, p.Format())
		}
		m.push(Cell{Obj: o}, m.ptr)
		return nil
	}
	if p.Ref {
		return fmt.Errorf("reference parameters can't be passed from the host")
	}

	var i int64
	var f float64
	isFloat := false
	switch a := arg.(type) {
	case bool:
		if a {
			i = 1
		}
	case int:
		i = int64(a)
	case int32:
		i = int64(a)
	case int64:
		i = a
	case uint:
		i = int64(a)
	case uint32:
		i = int64(a)
	case uint64:
		i = int64(a)
	case float32:
		f, isFloat = float64(a), true
	case float64:
		f, isFloat = a, true
	default:
		return fmt.Errorf("can't pass %T as '%s'", arg, p.Format())
	}
	if isFloat {
		i = int64(f)
	} else {
		f = float64(i)
	}

	bits := uint64(i)
	switch p.Kind {
	case types.Float:
		bits = uint64(math.Float32bits(float32(f)))
	case types.Double:
		bits = math.Float64bits(f)
	}
	size := p.SizeOnStackDWords(m.ptr)
	if size == 1 {
		bits &= mask(p)
	}
	m.push(Cell{V: bits}, size)
	return nil
}

// mask keeps the bits a value of a primitive type of at most 4 bytes occupies.
func mask(dt types.DataType) uint64 {
	switch dt.Kind {
	case types.Bool, types.Int8, types.Uint8:
		return 0xFF
	case types.Int16, types.Uint16:
		return 0xFFFF
	}
	return 0xFFFFFFFF
}

func (m *Machine) push(c Cell, size int) {
	m.sp -= size
	m.stack[m.sp] = c
}

func (m *Machine) pop(size int) Cell {
	c := m.stack[m.sp]
	m.sp += size
	return c
}

// invoke calls f with its arguments already on the stack. On failure the arguments are
// discarded, so the stack is as it would be after a successful call.
func (m *Machine) invoke(f *types.Function) error {
	base := m.sp
	var err error
	switch {
	case f == nil:
		return raise("Call to an unregistered function")
	case f.Kind == types.SystemFunc:
		err = m.callSystem(f)
	case f.Kind == types.InterfaceFunc || (f.Object != nil && f.Object.IsScript() && !f.IsConstructor() && !f.IsDestructor()):
		err = m.callVirtual(f)
	default:
		code := m.mod.Code(f.ID)
		if code == nil {
			return raise("Function '%s' has no code", f.Declaration())
		}
		err = m.run(code)
	}
	if err != nil {
		m.sp = base + f.SpaceNeededForCall(m.ptr)
	}
	return err
}

// callVirtual calls the implementation of method f for the object the call is made on.
func (m *Machine) callVirtual(f *types.Function) error {
	this := m.stack[m.sp].Obj
	if this == nil {
		return raise(ErrNullPointer)
	}
	target := m.resolve(this.Type, f)
	if target == nil {
		return raise("Object of type '%s' doesn't implement '%s'", this.Type.Name, f.Declaration())
	}
	if target.Kind == types.SystemFunc {
		return m.callSystem(target)
	}
	code := m.mod.Code(target.ID)
	if code == nil {
		return raise("Function '%s' has no code", target.Declaration())
	}
	return m.run(code)
}

func (m *Machine) resolve(ot *types.ObjectType, f *types.Function) *types.Function {
	if f.Kind != types.InterfaceFunc && ot == f.Object {
		return f
	}
	sig := f.Signature()
	for t := ot; t != nil; t = t.Base {
		for _, id := range t.Methods {
			g := m.eng.Function(id)
			if g.Kind != types.InterfaceFunc && g.Signature() == sig {
				return g
			}
		}
	}
	if f.Kind == types.InterfaceFunc {
		return nil
	}
	return f
}

func (m *Machine) callSystem(f *types.Function) error {
	fn := m.hosts[f.Bind]
	if fn == nil {
		return raise("No host implementation for '%s'", f.Bind)
	}
	call := &Call{m: m, f: f, base: m.sp}
	err := fn(call)
	m.sp = call.base + f.SpaceNeededForCall(m.ptr)
	// By value object arguments belong to the callee
	for i, p := range f.Params {
		if p.IsObject() && !p.Ref {
			m.releaseCell(call.arg(i))
		}
	}
	return err
}

// run executes code in a new frame. The arguments are already on the stack.
func (m *Machine) run(code *bytecode.Function) error {
	if m.depth >= MaxCallDepth || m.sp-code.StackNeeded-stackMargin < 0 {
		return raise(ErrStackOverflow)
	}
	m.depth++
	defer func() { m.depth-- }()

	fp := m.sp
	m.sp = fp - code.VariableSpace
	clear(m.stack[m.sp:fp])

	err := m.exec(code, fp)
	if err != nil {
		for _, v := range code.ObjVars {
			m.releaseCell(&m.stack[fp-v.Offset])
		}
	}
	return err
}
