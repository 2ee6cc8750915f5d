package vm

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xplshn/gasc/pkg/types"
)

// HostFunc implements a system function. Arguments and results go through the Call.
type HostFunc func(c *Call) error

// Call is the view a host function has of its arguments and results.
type Call struct {
	m    *Machine
	f    *types.Function
	base int
}

func (c *Call) Machine() *Machine          { return c.m }
func (c *Call) Function() *types.Function { return c.f }

// This is the object a method was called on.
func (c *Call) This() *Object {
	if c.f.Object == nil {
		return nil
	}
	return c.m.stack[c.base].Obj
}

// arg is the raw stack cell of argument i.
func (c *Call) arg(i int) *Cell { return &c.m.stack[c.base+c.offset(i)] }

// Value returns the value of argument i, reading through primitive and handle references.
func (c *Call) Value(i int) Cell {
	cell := c.arg(i)
	p := c.f.Params[i]
	if p.Ref && !(p.IsObject() && !p.Handle) && p.Kind != types.VarType {
		if cell.Ref == nil {
			return Cell{}
		}
		return *cell.Ref
	}
	return *cell
}

func (c *Call) Int(i int) int64 {
	v := c.Value(i).V
	switch c.f.Params[i].Kind {
	case types.Int8:
		return int64(int8(v))
	case types.Int16:
		return int64(int16(v))
	case types.Int, types.Enum:
		return int64(int32(v))
	}
	return int64(v)
}

func (c *Call) Uint(i int) uint64 { return c.Value(i).V }

func (c *Call) Float(i int) float64 {
	v := c.Value(i).V
	if c.f.Params[i].Kind == types.Double {
		return math.Float64frombits(v)
	}
	return float64(math.Float32frombits(uint32(v)))
}

// Object returns the object argument i refers to; nil for a null handle.
func (c *Call) Object(i int) *Object { return c.Value(i).Obj }

// String returns the content of the string argument i.
func (c *Call) String(i int) (string, error) {
	o := c.Object(i)
	if o == nil {
		return "", raise(ErrNullPointer)
	}
	return o.Str(), nil
}

// VarArg returns the reference and type id of the ?&in argument i.
func (c *Call) VarArg(i int) (*Cell, int) {
	off := c.base + c.offset(i)
	return c.m.stack[off].Ref, int(c.m.stack[off+c.m.ptr].V)
}

func (c *Call) offset(i int) int {
	off := 0
	if c.f.Object != nil {
		off += c.m.ptr
	}
	for _, p := range c.f.Params[:i] {
		off += p.SizeOnStackDWords(c.m.ptr)
	}
	return off
}

// TemplateType is the instance type a generic template factory receives as its hidden
// first argument.
func (c *Call) TemplateType() *types.ObjectType {
	if o := c.arg(0).Obj; o != nil {
		return o.Type
	}
	return nil
}

// ReturnValue sets a primitive result.
func (c *Call) ReturnValue(bits uint64) { c.m.reg = Cell{V: bits} }

func (c *Call) ReturnBool(b bool) { c.m.reg = Cell{V: b2u(b)} }

func (c *Call) ReturnFloat(f float32) { c.m.reg = Cell{V: pf32(f)} }

func (c *Call) ReturnDouble(f float64) { c.m.reg = Cell{V: pf64(f)} }

// ReturnObject hands an object or handle result, with its reference, to the caller.
func (c *Call) ReturnObject(o *Object) { c.m.objReg = o }

// ReturnRef returns a reference to a primitive or handle cell.
func (c *Call) ReturnRef(cell *Cell) { c.m.reg = Cell{Ref: cell} }

// ReturnObjectRef returns a reference to an object.
func (c *Call) ReturnObjectRef(o *Object) { c.m.reg = Cell{Obj: o} }

// Release drops a reference the host holds, such as one returned by Machine.Call.
func (m *Machine) Release(o *Object) error {
	m.release(o)
	return m.takeDestructErr()
}

var builtinHosts = map[string]HostFunc{
	"object.addref": func(c *Call) error {
		c.m.addRef(c.This())
		return nil
	},
	"object.release": func(c *Call) error {
		c.m.release(c.This())
		return nil
	},
	"object.assign": func(c *Call) error {
		this, src := c.This(), c.Object(0)
		if src == nil {
			return raise(ErrNullPointer)
		}
		if err := c.m.copyMembers(this, src); err != nil {
			return err
		}
		c.ReturnObjectRef(this)
		return nil
	},

	"string.constant": func(c *Call) error {
		id := int(c.Uint(0))
		if id >= len(c.m.mod.Strings) {
			return raise("Invalid string constant %d", id)
		}
		c.ReturnObject(c.m.NewString(c.m.mod.Strings[id]))
		return nil
	},
	"string.new": func(c *Call) error {
		c.ReturnObject(c.m.NewString(""))
		return nil
	},
	"string.assign": func(c *Call) error {
		s, err := c.String(0)
		if err != nil {
			return err
		}
		c.This().Host = s
		c.ReturnObjectRef(c.This())
		return nil
	},
	"string.addAssign": func(c *Call) error {
		s, err := c.String(0)
		if err != nil {
			return err
		}
		this := c.This()
		this.Host = this.Str() + s
		c.ReturnObjectRef(this)
		return nil
	},
	"string.length": func(c *Call) error {
		c.ReturnValue(uint64(uint32(len(c.This().Str()))))
		return nil
	},
	"string.substr": func(c *Call) error {
		s := c.This().Str()
		start, count := int(uint32(c.Uint(0))), c.Uint(1)
		if start > len(s) {
			start = len(s)
		}
		end := len(s)
		if uint32(count) != math.MaxUint32 && start+int(uint32(count)) < end {
			end = start + int(uint32(count))
		}
		c.ReturnObject(c.m.NewString(s[start:end]))
		return nil
	},
	"string.add": func(c *Call) error {
		a, err := c.String(0)
		if err != nil {
			return err
		}
		b, err := c.String(1)
		if err != nil {
			return err
		}
		c.ReturnObject(c.m.NewString(a + b))
		return nil
	},
	"string.addInt": func(c *Call) error {
		a, err := c.String(0)
		if err != nil {
			return err
		}
		c.ReturnObject(c.m.NewString(a + strconv.FormatInt(c.Int(1), 10)))
		return nil
	},
	"string.intAdd": func(c *Call) error {
		b, err := c.String(1)
		if err != nil {
			return err
		}
		c.ReturnObject(c.m.NewString(strconv.FormatInt(c.Int(0), 10) + b))
		return nil
	},
	"string.addDouble": func(c *Call) error {
		a, err := c.String(0)
		if err != nil {
			return err
		}
		c.ReturnObject(c.m.NewString(a + formatFloat(c.Float(1))))
		return nil
	},
	"string.doubleAdd": func(c *Call) error {
		b, err := c.String(1)
		if err != nil {
			return err
		}
		c.ReturnObject(c.m.NewString(formatFloat(c.Float(0)) + b))
		return nil
	},
	"string.equals":    stringCompare(func(a, b string) bool { return a == b }),
	"string.notEquals": stringCompare(func(a, b string) bool { return a != b }),
	"string.less":      stringCompare(func(a, b string) bool { return a < b }),

	"array.new": func(c *Call) error {
		c.ReturnObject(c.m.newArray(c.TemplateType()))
		return nil
	},
	"array.newSized": func(c *Call) error {
		arr := c.m.newArray(c.TemplateType())
		if err := c.m.resizeArray(arr, int(uint32(c.Uint(1)))); err != nil {
			return err
		}
		c.ReturnObject(arr)
		return nil
	},
	"array.index": func(c *Call) error {
		this := c.This()
		elems := this.Elements()
		i := uint32(c.Uint(0))
		if int(i) >= len(elems) {
			return raise(ErrOutOfBounds)
		}
		if sub := this.Type.SubType; sub.IsObject() && !sub.Handle {
			c.ReturnObjectRef(elems[i].Obj)
		} else {
			c.ReturnRef(&elems[i])
		}
		return nil
	},
	"array.assign": func(c *Call) error {
		this, src := c.This(), c.Object(0)
		if src == nil {
			return raise(ErrNullPointer)
		}
		if this != src {
			if err := c.m.copyElements(this, src); err != nil {
				return err
			}
		}
		c.ReturnObjectRef(this)
		return nil
	},
	"array.length": func(c *Call) error {
		c.ReturnValue(uint64(uint32(len(c.This().Elements()))))
		return nil
	},
	"array.resize": func(c *Call) error {
		return c.m.resizeArray(c.This(), int(uint32(c.Uint(0))))
	},
	"array.insertLast": func(c *Call) error {
		this := c.This()
		var cell Cell
		if err := c.m.copyCell(&cell, c.Value(0), this.Type.SubType); err != nil {
			return err
		}
		this.Host = append(this.Elements(), cell)
		return nil
	},
	"array.removeLast": func(c *Call) error {
		this := c.This()
		elems := this.Elements()
		if len(elems) == 0 {
			return raise(ErrOutOfBounds)
		}
		return c.m.resizeArray(this, len(elems)-1)
	},

	"vec2.new": func(c *Call) error { return nil },
	"vec2.newXY": func(c *Call) error {
		this := c.This()
		this.Props[0] = Cell{V: pf32(float32(c.Float(0)))}
		this.Props[1] = Cell{V: pf32(float32(c.Float(1)))}
		return nil
	},
	"vec2.copy": func(c *Call) error {
		src := c.Object(0)
		if src == nil {
			return raise(ErrNullPointer)
		}
		copy(c.This().Props, src.Props)
		return nil
	},
	"vec2.neg": func(c *Call) error {
		x, y := vec2XY(c.This())
		c.ReturnObject(c.m.newVec2(-x, -y))
		return nil
	},
	"vec2.addAssign": func(c *Call) error {
		this, o := c.This(), c.Object(0)
		if o == nil {
			return raise(ErrNullPointer)
		}
		x, y := vec2XY(this)
		ox, oy := vec2XY(o)
		this.Props[0] = Cell{V: pf32(x + ox)}
		this.Props[1] = Cell{V: pf32(y + oy)}
		c.ReturnObjectRef(this)
		return nil
	},
	"vec2.length": func(c *Call) error {
		x, y := vec2XY(c.This())
		c.ReturnFloat(float32(math.Hypot(float64(x), float64(y))))
		return nil
	},
	"vec2.add": func(c *Call) error {
		a, b := c.Object(0), c.Object(1)
		if a == nil || b == nil {
			return raise(ErrNullPointer)
		}
		ax, ay := vec2XY(a)
		bx, by := vec2XY(b)
		c.ReturnObject(c.m.newVec2(ax+bx, ay+by))
		return nil
	},
	"vec2.equals": func(c *Call) error {
		a, b := c.Object(0), c.Object(1)
		if a == nil || b == nil {
			return raise(ErrNullPointer)
		}
		ax, ay := vec2XY(a)
		bx, by := vec2XY(b)
		c.ReturnBool(ax == bx && ay == by)
		return nil
	},

	"print": func(c *Call) error {
		s, err := c.String(0)
		if err != nil {
			return err
		}
		if c.m.out != nil {
			_, err = fmt.Fprint(c.m.out, s)
		}
		return err
	},
	"intToString": func(c *Call) error {
		c.ReturnObject(c.m.NewString(strconv.FormatInt(c.Int(0), 10)))
		return nil
	},
	"floatToString": func(c *Call) error {
		c.ReturnObject(c.m.NewString(formatFloat(c.Float(0))))
		return nil
	},
	"dump": func(c *Call) error {
		ref, id := c.VarArg(0)
		if c.m.out == nil {
			return nil
		}
		_, err := fmt.Fprintln(c.m.out, c.m.formatTyped(ref, id))
		return err
	},
}

func stringCompare(op func(a, b string) bool) HostFunc {
	return func(c *Call) error {
		a, err := c.String(0)
		if err != nil {
			return err
		}
		b, err := c.String(1)
		if err != nil {
			return err
		}
		c.ReturnBool(op(a, b))
		return nil
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func vec2XY(o *Object) (float32, float32) {
	return f32(o.Props[0].V), f32(o.Props[1].V)
}

func (m *Machine) newVec2(x, y float32) *Object {
	o := m.newObject(m.eng.ObjectType("vec2"))
	o.Props[0] = Cell{V: pf32(x)}
	o.Props[1] = Cell{V: pf32(y)}
	return o
}

func (m *Machine) newArray(inst *types.ObjectType) *Object {
	return &Object{Type: inst, Host: []Cell{}, refs: 1}
}

// resizeArray grows an array with default elements or shrinks it, releasing what it drops.
func (m *Machine) resizeArray(arr *Object, n int) error {
	elems := arr.Elements()
	sub := arr.Type.SubType
	for len(elems) > n {
		if sub.IsObject() {
			m.releaseCell(&elems[len(elems)-1])
		}
		elems = elems[:len(elems)-1]
	}
	for len(elems) < n {
		var cell Cell
		if sub.IsObject() && !sub.Handle {
			o, err := m.defaultObject(sub.Object)
			if err != nil {
				arr.Host = elems
				return err
			}
			cell.Obj = o
		}
		elems = append(elems, cell)
	}
	arr.Host = elems
	return nil
}

// formatTyped renders the value a cell holds given its type id, for dump.
func (m *Machine) formatTyped(c *Cell, id int) string {
	if c == nil {
		return "null"
	}
	if id >= 64 {
		handle := id&(1<<20) != 0
		tid := id &^ (1 << 20) - 64
		name := "?"
		if tid > 0 && tid <= len(m.eng.Types) {
			name = m.eng.Types[tid-1].Name
		}
		o := c.Obj
		switch {
		case o == nil:
			return name + "@: null"
		case o.Type == m.eng.StringType:
			return fmt.Sprintf("string: %q", o.Str())
		case handle:
			return fmt.Sprintf("%s@: <%s>", name, o.Type.Name)
		}
		return fmt.Sprintf("%s: <%s>", name, o.Type.Name)
	}

	k := types.Kind(id)
	dt := types.Primitive(k, false)
	v := Value{Type: dt, Bits: c.V}
	return k.String() + ": " + v.String()
}
