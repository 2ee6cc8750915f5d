package vm

import (
	"math"

	bc "github.com/xplshn/gasc/pkg/bytecode"
)

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func cmpResult[T int32 | uint32 | int64 | uint64 | float32 | float64](a, b T) uint64 {
	switch {
	case a < b:
		return uint64(math.MaxUint32) // int32(-1)
	case a > b:
		return 1
	}
	return 0
}

func f32(v uint64) float32  { return math.Float32frombits(uint32(v)) }
func f64(v uint64) float64  { return math.Float64frombits(v) }
func pf32(f float32) uint64 { return uint64(math.Float32bits(f)) }
func pf64(f float64) uint64 { return math.Float64bits(f) }
func u32(v uint32) uint64   { return uint64(v) }
func i32(v int32) uint64    { return uint64(uint32(v)) }

// exec is the interpreter loop of one frame. fp is the frame pointer: variable offset off
// lives at stack[fp-off].
func (m *Machine) exec(code *bc.Function, fp int) error {
	name := "global initializer"
	if code.Decl != nil {
		name = code.Decl.Declaration()
	}
	ptr := m.ptr
	v := func(off int) *Cell { return &m.stack[fp-off] }

	pc := 0
	fail := func(err error) error { return located(err, name, code.LineAt(pc)) }

	for ; pc < len(code.Code); pc++ {
		in := &code.Code[pc]

		switch in.Op {
		// Stack
		case bc.Pop:
			m.sp += in.A
		case bc.PopPtr:
			m.sp += ptr
		case bc.PshC4:
			m.push(Cell{V: in.Arg & 0xFFFFFFFF}, 1)
		case bc.PshC8:
			m.push(Cell{V: in.Arg}, 2)
		case bc.PshV4:
			m.push(Cell{V: v(in.A).V}, 1)
		case bc.PshV8:
			m.push(Cell{V: v(in.A).V}, 2)
		case bc.PshVPtr:
			c := v(in.A)
			m.push(Cell{Obj: c.Obj, Ref: c.Ref}, ptr)
		case bc.PSF:
			m.push(Cell{Ref: v(in.A)}, ptr)
		case bc.PGA:
			m.push(Cell{Ref: &m.globals[in.A]}, ptr)
		case bc.PshNull:
			m.push(Cell{}, ptr)
		case bc.VAR:
			m.push(Cell{V: uint64(in.A)}, ptr)
		case bc.GETREF:
			c := &m.stack[m.sp+in.A]
			*c = Cell{Ref: v(int(c.V))}
		case bc.GETOBJREF:
			c := &m.stack[m.sp+in.A]
			*c = Cell{Obj: v(int(c.V)).Obj}
		case bc.GETOBJ:
			c := &m.stack[m.sp+in.A]
			src := v(int(c.V))
			*c = Cell{Obj: src.Obj}
			*src = Cell{}
		case bc.RDSPtr:
			top := &m.stack[m.sp]
			if top.Ref == nil {
				return fail(raise(ErrNullPointer))
			}
			*top = Cell{Obj: top.Ref.Obj, Ref: top.Ref.Ref}
		case bc.ADDSi:
			top := &m.stack[m.sp]
			if top.Obj == nil {
				return fail(raise(ErrNullPointer))
			}
			*top = Cell{Ref: &top.Obj.Props[in.A]}
		case bc.PopRPtr:
			m.reg = m.pop(ptr)
		case bc.PshRPtr:
			m.push(Cell{Obj: m.reg.Obj, Ref: m.reg.Ref}, ptr)
		case bc.CHKREF:
			if m.stack[m.sp].IsNull() {
				return fail(raise(ErrNullPointer))
			}
		case bc.ChkRefS:
			if r := m.stack[m.sp].Ref; r == nil || r.IsNull() {
				return fail(raise(ErrNullPointer))
			}
		case bc.ChkNullV:
			if v(in.A).IsNull() {
				return fail(raise(ErrNullPointer))
			}
		case bc.ChkNullS:
			if m.stack[m.sp+in.A].IsNull() {
				return fail(raise(ErrNullPointer))
			}
		case bc.SwapPtr:
			m.stack[m.sp], m.stack[m.sp+ptr] = m.stack[m.sp+ptr], m.stack[m.sp]
		case bc.SWAP4:
			m.stack[m.sp], m.stack[m.sp+1] = m.stack[m.sp+1], m.stack[m.sp]
		case bc.SWAP8:
			m.stack[m.sp], m.stack[m.sp+2] = m.stack[m.sp+2], m.stack[m.sp]
		case bc.SWAP48:
			a, b := m.stack[m.sp], m.stack[m.sp+1]
			m.stack[m.sp], m.stack[m.sp+2] = b, a
		case bc.SWAP84:
			a, b := m.stack[m.sp], m.stack[m.sp+2]
			m.stack[m.sp], m.stack[m.sp+1] = b, a
		case bc.TYPEID:
			m.push(Cell{V: in.Arg}, 1)
		case bc.OBJTYPE:
			m.push(Cell{Obj: &Object{Type: in.Type}}, ptr)
		case bc.STR:
			m.push(Cell{V: uint64(in.A)}, 1)

		// Control flow
		case bc.RET:
			m.sp = fp + in.A
			return nil
		case bc.JMP:
			pc = in.A - 1
		case bc.JZ:
			if int32(m.reg.V) == 0 {
				pc = in.A - 1
			}
		case bc.JNZ:
			if int32(m.reg.V) != 0 {
				pc = in.A - 1
			}
		case bc.JS:
			if int32(m.reg.V) < 0 {
				pc = in.A - 1
			}
		case bc.JNS:
			if int32(m.reg.V) >= 0 {
				pc = in.A - 1
			}
		case bc.JP:
			if int32(m.reg.V) > 0 {
				pc = in.A - 1
			}
		case bc.JNP:
			if int32(m.reg.V) <= 0 {
				pc = in.A - 1
			}
		case bc.JMPP:
			pc += int(int32(v(in.A).V))
		case bc.TZ:
			m.reg = Cell{V: b2u(int32(m.reg.V) == 0)}
		case bc.TNZ:
			m.reg = Cell{V: b2u(int32(m.reg.V) != 0)}
		case bc.TS:
			m.reg = Cell{V: b2u(int32(m.reg.V) < 0)}
		case bc.TNS:
			m.reg = Cell{V: b2u(int32(m.reg.V) >= 0)}
		case bc.TP:
			m.reg = Cell{V: b2u(int32(m.reg.V) > 0)}
		case bc.TNP:
			m.reg = Cell{V: b2u(int32(m.reg.V) <= 0)}
		case bc.CMPi:
			m.reg = Cell{V: cmpResult(int32(v(in.A).V), int32(v(in.B).V))}
		case bc.CMPu:
			m.reg = Cell{V: cmpResult(uint32(v(in.A).V), uint32(v(in.B).V))}
		case bc.CMPi64:
			m.reg = Cell{V: cmpResult(int64(v(in.A).V), int64(v(in.B).V))}
		case bc.CMPu64:
			m.reg = Cell{V: cmpResult(v(in.A).V, v(in.B).V)}
		case bc.CMPf:
			m.reg = Cell{V: cmpResult(f32(v(in.A).V), f32(v(in.B).V))}
		case bc.CMPd:
			m.reg = Cell{V: cmpResult(f64(v(in.A).V), f64(v(in.B).V))}
		case bc.CMPp:
			a, b := v(in.A), v(in.B)
			m.reg = Cell{V: b2u(a.Obj != b.Obj || a.Ref != b.Ref)}

		// Unary
		case bc.NOT:
			c := v(in.A)
			*c = Cell{V: b2u(c.V&0xFF == 0)}
		case bc.NEGi:
			c := v(in.A)
			*c = Cell{V: i32(-int32(c.V))}
		case bc.NEGi64:
			c := v(in.A)
			*c = Cell{V: uint64(-int64(c.V))}
		case bc.NEGf:
			c := v(in.A)
			*c = Cell{V: pf32(-f32(c.V))}
		case bc.NEGd:
			c := v(in.A)
			*c = Cell{V: pf64(-f64(c.V))}
		case bc.BNOT:
			c := v(in.A)
			*c = Cell{V: u32(^uint32(c.V))}
		case bc.BNOT64:
			c := v(in.A)
			*c = Cell{V: ^c.V}

		// Increment and decrement through the register
		case bc.INCi8, bc.INCi16, bc.INCi, bc.INCi64, bc.INCf, bc.INCd,
			bc.DECi8, bc.DECi16, bc.DECi, bc.DECi64, bc.DECf, bc.DECd:
			r := m.reg.Ref
			if r == nil {
				return fail(raise(ErrNullPointer))
			}
			r.V = step(in.Op, r.V)

		// Arithmetic
		case bc.ADDi, bc.SUBi, bc.MULi, bc.DIVi, bc.MODi, bc.DIVu, bc.MODu,
			bc.ADDi64, bc.SUBi64, bc.MULi64, bc.DIVi64, bc.MODi64, bc.DIVu64, bc.MODu64,
			bc.ADDf, bc.SUBf, bc.MULf, bc.DIVf, bc.MODf,
			bc.ADDd, bc.SUBd, bc.MULd, bc.DIVd, bc.MODd,
			bc.BAND, bc.BOR, bc.BXOR, bc.BSLL, bc.BSRL, bc.BSRA,
			bc.BAND64, bc.BOR64, bc.BXOR64, bc.BSLL64, bc.BSRL64, bc.BSRA64:
			r, ok := arith(in.Op, v(in.B).V, v(in.C).V)
			if !ok {
				return fail(raise(ErrDivideByZero))
			}
			*v(in.A) = Cell{V: r}

		// Variables and the register
		case bc.SetV1:
			*v(in.A) = Cell{V: in.Arg & 0xFF}
		case bc.SetV2:
			*v(in.A) = Cell{V: in.Arg & 0xFFFF}
		case bc.SetV4:
			*v(in.A) = Cell{V: in.Arg & 0xFFFFFFFF}
		case bc.SetV8:
			*v(in.A) = Cell{V: in.Arg}
		case bc.CpyVtoV4:
			*v(in.A) = Cell{V: v(in.B).V & 0xFFFFFFFF}
		case bc.CpyVtoV8:
			*v(in.A) = Cell{V: v(in.B).V}
		case bc.CpyVtoR4:
			m.reg = Cell{V: v(in.A).V & 0xFFFFFFFF}
		case bc.CpyVtoR8:
			m.reg = Cell{V: v(in.A).V}
		case bc.CpyRtoV4:
			*v(in.A) = Cell{V: m.reg.V & 0xFFFFFFFF}
		case bc.CpyRtoV8:
			*v(in.A) = Cell{V: m.reg.V}
		case bc.ClrHi:
			m.reg = Cell{V: m.reg.V & 0xFF}
		case bc.RDR1, bc.RDR2, bc.RDR4, bc.RDR8:
			r := m.reg.Ref
			if r == nil {
				return fail(raise(ErrNullPointer))
			}
			*v(in.A) = Cell{V: r.V & widthMask(in.Op)}
		case bc.WRTV1, bc.WRTV2, bc.WRTV4, bc.WRTV8:
			r := m.reg.Ref
			if r == nil {
				return fail(raise(ErrNullPointer))
			}
			*r = Cell{V: v(in.A).V & widthMask(in.Op)}
		case bc.LDG:
			m.reg = Cell{Ref: &m.globals[in.A]}
		case bc.LDV:
			m.reg = Cell{Ref: v(in.A)}

		// Conversions
		case bc.ITOF, bc.FTOI, bc.UTOF, bc.FTOU, bc.SBTOI, bc.SWTOI, bc.UBTOI, bc.UWTOI,
			bc.ITOB, bc.ITOW, bc.DTOI64, bc.DTOU64, bc.I64TOD, bc.U64TOD:
			c := v(in.A)
			*c = Cell{V: convert(in.Op, c.V)}
		case bc.DTOI, bc.DTOU, bc.DTOF, bc.ITOD, bc.UTOD, bc.FTOD, bc.I64TOI, bc.UTOI64,
			bc.ITOI64, bc.FTOI64, bc.FTOU64, bc.I64TOF, bc.U64TOF:
			*v(in.A) = Cell{V: convert(in.Op, v(in.B).V)}

		// Calls and objects
		case bc.CALL, bc.CALLSYS, bc.CALLINTF:
			err := m.invoke(m.eng.Function(in.Func))
			if err == nil {
				err = m.takeDestructErr()
			}
			if err != nil {
				return fail(err)
			}
		case bc.ALLOC:
			if err := m.alloc(in); err != nil {
				return fail(err)
			}
		case bc.FREE:
			m.releaseCell(v(in.A))
			if err := m.takeDestructErr(); err != nil {
				return fail(err)
			}
		case bc.LOADOBJ:
			c := v(in.A)
			m.objReg = c.Obj
			*c = Cell{}
		case bc.STOREOBJ:
			*v(in.A) = Cell{Obj: m.objReg}
			m.objReg = nil
		case bc.REFCPY:
			dst := m.pop(ptr).Ref
			if dst == nil {
				return fail(raise(ErrNullPointer))
			}
			src := m.stack[m.sp].Obj
			old := dst.Obj
			if in.Type.IsRef() {
				m.addRef(src)
			}
			*dst = Cell{Obj: src}
			if in.Type.IsRef() {
				m.release(old)
				if err := m.takeDestructErr(); err != nil {
					return fail(err)
				}
			}
		case bc.COPY:
			dst := m.pop(ptr).Obj
			src := &m.stack[m.sp]
			if dst == nil || src.Obj == nil {
				return fail(raise(ErrNullPointer))
			}
			if err := m.copyMembers(dst, src.Obj); err != nil {
				return fail(err)
			}
			*src = Cell{Obj: dst}
		case bc.Cast:
			a := m.pop(ptr)
			o := a.Obj
			if a.Ref != nil {
				o = a.Ref.Obj
			}
			m.objReg = nil
			if o != nil && (o.Type.DerivesFrom(in.Type) || o.Type.Implements(in.Type)) {
				m.addRef(o)
				m.objReg = o
			}
		case bc.SUSPEND:
			if m.Suspend != nil {
				if err := m.Suspend(); err != nil {
					return fail(raise("%s: %s", ErrAborted, err))
				}
			}

		default:
			return fail(raise("Invalid instruction %s", in.Op))
		}
	}
	return fail(raise("Function ended without returning"))
}

func (m *Machine) takeDestructErr() error {
	err := m.destructErr
	m.destructErr = nil
	return err
}

// alloc creates an object for the destination pointer below the constructor's arguments
// and runs the constructor on it.
func (m *Machine) alloc(in *bc.Instr) error {
	ot := in.Type
	o := m.newObject(ot)
	reg := m.reg
	if ot.IsScript() {
		if err := m.initMembers(o); err != nil {
			return err
		}
	}
	if in.Func != 0 {
		f := m.eng.Function(in.Func)
		m.push(Cell{Obj: o}, m.ptr)
		if err := m.invoke(f); err != nil {
			m.sp += m.ptr
			return err
		}
	}
	m.reg = reg
	dst := m.pop(m.ptr).Ref
	if dst == nil {
		return raise(ErrNullPointer)
	}
	*dst = Cell{Obj: o}
	return nil
}

func widthMask(op bc.Op) uint64 {
	switch op {
	case bc.RDR1, bc.WRTV1:
		return 0xFF
	case bc.RDR2, bc.WRTV2:
		return 0xFFFF
	case bc.RDR4, bc.WRTV4:
		return 0xFFFFFFFF
	}
	return math.MaxUint64
}

func step(op bc.Op, x uint64) uint64 {
	switch op {
	case bc.INCi8:
		return uint64(uint8(x) + 1)
	case bc.INCi16:
		return uint64(uint16(x) + 1)
	case bc.INCi:
		return u32(uint32(x) + 1)
	case bc.INCi64:
		return x + 1
	case bc.INCf:
		return pf32(f32(x) + 1)
	case bc.INCd:
		return pf64(f64(x) + 1)
	case bc.DECi8:
		return uint64(uint8(x) - 1)
	case bc.DECi16:
		return uint64(uint16(x) - 1)
	case bc.DECi:
		return u32(uint32(x) - 1)
	case bc.DECi64:
		return x - 1
	case bc.DECf:
		return pf32(f32(x) - 1)
	case bc.DECd:
		return pf64(f64(x) - 1)
	}
	return x
}

// arith computes b op c. ok is false on division by zero.
func arith(op bc.Op, b, c uint64) (r uint64, ok bool) {
	switch op {
	case bc.DIVi, bc.MODi, bc.DIVu, bc.MODu:
		if uint32(c) == 0 {
			return 0, false
		}
	case bc.DIVi64, bc.MODi64, bc.DIVu64, bc.MODu64:
		if c == 0 {
			return 0, false
		}
	case bc.DIVf, bc.MODf:
		if f32(c) == 0 {
			return 0, false
		}
	case bc.DIVd, bc.MODd:
		if f64(c) == 0 {
			return 0, false
		}
	}

	switch op {
	case bc.ADDi:
		return i32(int32(b) + int32(c)), true
	case bc.SUBi:
		return i32(int32(b) - int32(c)), true
	case bc.MULi:
		return i32(int32(b) * int32(c)), true
	case bc.DIVi:
		return i32(int32(b) / int32(c)), true
	case bc.MODi:
		return i32(int32(b) % int32(c)), true
	case bc.DIVu:
		return u32(uint32(b) / uint32(c)), true
	case bc.MODu:
		return u32(uint32(b) % uint32(c)), true

	case bc.ADDi64:
		return b + c, true
	case bc.SUBi64:
		return b - c, true
	case bc.MULi64:
		return uint64(int64(b) * int64(c)), true
	case bc.DIVi64:
		return uint64(int64(b) / int64(c)), true
	case bc.MODi64:
		return uint64(int64(b) % int64(c)), true
	case bc.DIVu64:
		return b / c, true
	case bc.MODu64:
		return b % c, true

	case bc.ADDf:
		return pf32(f32(b) + f32(c)), true
	case bc.SUBf:
		return pf32(f32(b) - f32(c)), true
	case bc.MULf:
		return pf32(f32(b) * f32(c)), true
	case bc.DIVf:
		return pf32(f32(b) / f32(c)), true
	case bc.MODf:
		return pf32(float32(math.Mod(float64(f32(b)), float64(f32(c))))), true

	case bc.ADDd:
		return pf64(f64(b) + f64(c)), true
	case bc.SUBd:
		return pf64(f64(b) - f64(c)), true
	case bc.MULd:
		return pf64(f64(b) * f64(c)), true
	case bc.DIVd:
		return pf64(f64(b) / f64(c)), true
	case bc.MODd:
		return pf64(math.Mod(f64(b), f64(c))), true

	case bc.BAND:
		return u32(uint32(b) & uint32(c)), true
	case bc.BOR:
		return u32(uint32(b) | uint32(c)), true
	case bc.BXOR:
		return u32(uint32(b) ^ uint32(c)), true
	case bc.BSLL:
		return u32(uint32(b) << uint32(c)), true
	case bc.BSRL:
		return u32(uint32(b) >> uint32(c)), true
	case bc.BSRA:
		return i32(int32(b) >> uint32(c)), true
	case bc.BAND64:
		return b & c, true
	case bc.BOR64:
		return b | c, true
	case bc.BXOR64:
		return b ^ c, true
	case bc.BSLL64:
		return b << uint32(c), true
	case bc.BSRL64:
		return b >> uint32(c), true
	case bc.BSRA64:
		return uint64(int64(b) >> uint32(c)), true
	}
	return 0, true
}

func convert(op bc.Op, x uint64) uint64 {
	switch op {
	case bc.ITOF:
		return pf32(float32(int32(x)))
	case bc.FTOI:
		return i32(int32(f32(x)))
	case bc.UTOF:
		return pf32(float32(uint32(x)))
	case bc.FTOU:
		return u32(uint32(f32(x)))
	case bc.SBTOI:
		return i32(int32(int8(x)))
	case bc.SWTOI:
		return i32(int32(int16(x)))
	case bc.UBTOI:
		return uint64(uint8(x))
	case bc.UWTOI:
		return uint64(uint16(x))
	case bc.ITOB:
		return x & 0xFF
	case bc.ITOW:
		return x & 0xFFFF
	case bc.DTOI64:
		return uint64(int64(f64(x)))
	case bc.DTOU64:
		return uint64(f64(x))
	case bc.I64TOD:
		return pf64(float64(int64(x)))
	case bc.U64TOD:
		return pf64(float64(x))
	case bc.DTOI:
		return i32(int32(f64(x)))
	case bc.DTOU:
		return u32(uint32(f64(x)))
	case bc.DTOF:
		return pf32(float32(f64(x)))
	case bc.ITOD:
		return pf64(float64(int32(x)))
	case bc.UTOD:
		return pf64(float64(uint32(x)))
	case bc.FTOD:
		return pf64(float64(f32(x)))
	case bc.I64TOI:
		return x & 0xFFFFFFFF
	case bc.UTOI64:
		return uint64(uint32(x))
	case bc.ITOI64:
		return uint64(int64(int32(x)))
	case bc.FTOI64:
		return uint64(int64(f32(x)))
	case bc.FTOU64:
		return uint64(f32(x))
	case bc.I64TOF:
		return pf32(float32(int64(x)))
	case bc.U64TOF:
		return pf32(float32(x))
	}
	return x
}
