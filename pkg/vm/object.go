package vm

import (
	"github.com/xplshn/gasc/pkg/types"
)

// Cell is one dword of the stack, of a global or of an object property. A value of up to
// 64 bits lives in V. Pointers are either an object (Obj) or the address of a cell (Ref).
type Cell struct {
	V   uint64
	Obj *Object
	Ref *Cell
}

func (c Cell) IsNull() bool { return c.Obj == nil && c.Ref == nil }

// Object is a heap instance of a script class or a host type. Script classes and value types
// keep their properties in Props; host types such as string and array keep their state in Host.
type Object struct {
	Type  *types.ObjectType
	Props []Cell
	Host  any

	refs       int
	destroying bool
}

// Refs reports the current reference count. Value types always report 0.
func (o *Object) Refs() int { return o.refs }

// Str returns the content of a string object.
func (o *Object) Str() string {
	if o == nil {
		return ""
	}
	s, _ := o.Host.(string)
	return s
}

// Elements returns the cells of an array object.
func (o *Object) Elements() []Cell {
	if o == nil {
		return nil
	}
	a, _ := o.Host.([]Cell)
	return a
}

func (m *Machine) newObject(ot *types.ObjectType) *Object {
	o := &Object{Type: ot}
	if len(ot.Props) > 0 {
		o.Props = make([]Cell, len(ot.Props))
	}
	if ot.IsRef() {
		o.refs = 1
	}
	return o
}

// NewString creates a string object holding one reference.
func (m *Machine) NewString(s string) *Object {
	return &Object{Type: m.eng.StringType, Host: s, refs: 1}
}

func (m *Machine) addRef(o *Object) {
	if o != nil && o.Type.IsRef() {
		o.refs++
	}
}

// release drops one reference and destroys the object when none are left.
func (m *Machine) release(o *Object) {
	if o == nil {
		return
	}
	if !o.Type.IsRef() {
		m.destroy(o)
		return
	}
	o.refs--
	if o.refs == 0 && !o.destroying {
		m.destroy(o)
	}
}

// destroy runs the destructors of o, most derived first, then releases what o holds.
// The value and object registers survive destructor calls.
func (m *Machine) destroy(o *Object) {
	if o.destroying {
		return
	}
	o.destroying = true
	reg, objReg := m.reg, m.objReg
	for t := o.Type; t != nil; t = t.Base {
		if t.Beh.Destruct == 0 {
			continue
		}
		f := m.eng.Function(t.Beh.Destruct)
		m.push(Cell{Obj: o}, m.ptr)
		if err := m.invoke(f); err != nil && m.destructErr == nil {
			m.destructErr = err
		}
	}
	m.reg, m.objReg = reg, objReg

	for i, p := range o.Type.Props {
		if i < len(o.Props) && p.Type.IsObject() {
			m.releaseCell(&o.Props[i])
		}
	}
	if elems, ok := o.Host.([]Cell); ok && o.Type.SubType.IsObject() {
		for i := range elems {
			m.releaseCell(&elems[i])
		}
	}
}

// releaseCell releases the object a cell of object type holds and clears the cell.
func (m *Machine) releaseCell(c *Cell) {
	o := c.Obj
	*c = Cell{}
	if o != nil {
		m.release(o)
	}
}

// defaultObject creates an object of type ot the way a declaration without initializer does.
func (m *Machine) defaultObject(ot *types.ObjectType) (*Object, error) {
	switch {
	case ot.IsRef() && ot.Beh.Factory != 0:
		return m.callFactory(ot.Beh.Factory)
	case ot.IsRef():
		return nil, &Exception{Message: "Type '" + ot.Name + "' has no default factory"}
	}
	o := m.newObject(ot)
	if ot.Beh.Construct != 0 {
		m.push(Cell{Obj: o}, m.ptr)
		if err := m.invoke(m.eng.Function(ot.Beh.Construct)); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// initMembers default constructs the object members of a freshly allocated script object.
func (m *Machine) initMembers(o *Object) error {
	for i, p := range o.Type.Props {
		if !p.Type.IsObject() || p.Type.Handle || p.Type.Object == nil {
			continue
		}
		sub, err := m.defaultObject(p.Type.Object)
		if err != nil {
			return err
		}
		o.Props[i] = Cell{Obj: sub}
	}
	return nil
}

// callFactory calls a factory without arguments and takes the handle it returns.
func (m *Machine) callFactory(id int) (*Object, error) {
	if err := m.invoke(m.eng.Function(id)); err != nil {
		return nil, err
	}
	o := m.objReg
	m.objReg = nil
	return o, nil
}

// assign copies src into dst with the assignment dst's type uses for raw copies.
func (m *Machine) assign(dst, src *Object) error {
	if dst == src {
		return nil
	}
	ot := dst.Type
	if ot.Beh.Copy != 0 {
		f := m.eng.Function(ot.Beh.Copy)
		if f.Kind != types.SystemFunc || f.Bind != "object.assign" {
			reg, objReg := m.reg, m.objReg
			m.push(Cell{Obj: src}, m.ptr)
			m.push(Cell{Obj: dst}, m.ptr)
			err := m.invoke(f)
			m.reg, m.objReg = reg, objReg
			return err
		}
	}
	return m.copyMembers(dst, src)
}

// copyMembers is the member-wise copy of script classes and plain value types.
func (m *Machine) copyMembers(dst, src *Object) error {
	switch h := src.Host.(type) {
	case string:
		dst.Host = h
	case []Cell:
		return m.copyElements(dst, src)
	}
	for i, p := range dst.Type.Props {
		if i >= len(src.Props) {
			break
		}
		if err := m.copyCell(&dst.Props[i], src.Props[i], p.Type); err != nil {
			return err
		}
	}
	return nil
}

// copyCell stores a copy of the value src into dst, both of type dt.
func (m *Machine) copyCell(dst *Cell, src Cell, dt types.DataType) error {
	switch {
	case !dt.IsObject():
		*dst = Cell{V: src.V}
	case dt.Handle:
		m.addRef(src.Obj)
		old := dst.Obj
		*dst = Cell{Obj: src.Obj}
		m.release(old)
	case src.Obj == nil:
		m.releaseCell(dst)
	case dst.Obj == nil:
		o, err := m.defaultObject(dt.Object)
		if err != nil {
			return err
		}
		*dst = Cell{Obj: o}
		return m.assign(o, src.Obj)
	default:
		return m.assign(dst.Obj, src.Obj)
	}
	return nil
}

func (m *Machine) copyElements(dst, src *Object) error {
	sub := dst.Type.SubType
	se := src.Elements()
	de := dst.Elements()
	for len(de) > len(se) {
		m.releaseCell(&de[len(de)-1])
		de = de[:len(de)-1]
	}
	for len(de) < len(se) {
		de = append(de, Cell{})
	}
	dst.Host = de
	for i := range se {
		if err := m.copyCell(&de[i], se[i], sub); err != nil {
			return err
		}
	}
	return nil
}
