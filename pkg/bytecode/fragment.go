package bytecode

import (
	"fmt"

	"github.com/xplshn/gasc/pkg/types"
)

// Instr is one instruction. Which operand fields are meaningful depends on Op.Form().
// Before Finalize, jump operands hold label ids; afterwards they hold instruction indexes.
type Instr struct {
	Op       Op
	A, B, C  int
	Arg      uint64
	Type     *types.ObjectType
	Func     int
	StackInc int
}

// Fragment is an append-only run of instructions
type Fragment struct {
	Code []Instr
}

func (f *Fragment) emit(in Instr) { f.Code = append(f.Code, in) }

func (f *Fragment) Instr(op Op)                { f.emit(Instr{Op: op}) }
func (f *Fragment) InstrVar(op Op, a int)      { f.emit(Instr{Op: op, A: a}) }
func (f *Fragment) InstrDW(op Op, a int)       { f.emit(Instr{Op: op, A: a}) }
func (f *Fragment) InstrVarVar(op Op, a, b int) { f.emit(Instr{Op: op, A: a, B: b}) }
func (f *Fragment) InstrVarVarVar(op Op, a, b, c int) {
	f.emit(Instr{Op: op, A: a, B: b, C: c})
}
func (f *Fragment) InstrVarArg(op Op, a int, arg uint64) { f.emit(Instr{Op: op, A: a, Arg: arg}) }
func (f *Fragment) InstrArg(op Op, arg uint64)           { f.emit(Instr{Op: op, Arg: arg}) }
func (f *Fragment) InstrType(op Op, ot *types.ObjectType) { f.emit(Instr{Op: op, Type: ot}) }
func (f *Fragment) InstrVarType(op Op, a int, ot *types.ObjectType) {
	f.emit(Instr{Op: op, A: a, Type: ot})
}

// Call emits a call that pops pop dwords of arguments.
func (f *Fragment) Call(op Op, funcID, pop int) {
	f.emit(Instr{Op: op, Func: funcID, StackInc: -pop})
}

// Alloc emits an allocation whose constructor pops pop dwords, including the destination pointer.
func (f *Fragment) Alloc(ot *types.ObjectType, funcID, pop int) {
	f.emit(Instr{Op: ALLOC, Type: ot, Func: funcID, StackInc: -pop})
}

func (f *Fragment) Pop(n int) {
	if n > 0 {
		f.emit(Instr{Op: Pop, A: n, StackInc: -n})
	}
}

func (f *Fragment) Ret(n int)             { f.emit(Instr{Op: RET, A: n}) }
func (f *Fragment) Label(id int)          { f.emit(Instr{Op: Label, A: id}) }
func (f *Fragment) Jump(op Op, label int) { f.emit(Instr{Op: op, A: label}) }
func (f *Fragment) Line(line int)         { f.emit(Instr{Op: Line, A: line}) }

// AddCode appends all of other's instructions and empties it.
func (f *Fragment) AddCode(other *Fragment) {
	f.Code = append(f.Code, other.Code...)
	other.Code = nil
}

func (f *Fragment) IsEmpty() bool { return len(f.Code) == 0 }
func (f *Fragment) ClearAll()     { f.Code = nil }

// LastOp returns the last real instruction, skipping pseudo instructions.
func (f *Fragment) LastOp() (Op, bool) {
	for i := len(f.Code) - 1; i >= 0; i-- {
		if op := f.Code[i].Op; op != Line && op != Label {
			return op, true
		}
	}
	return 0, false
}

func varOperands(in *Instr) []*int {
	switch in.Op.Form() {
	case FormVar, FormVarArg, FormVarType:
		return []*int{&in.A}
	case FormVarVar:
		return []*int{&in.A, &in.B}
	case FormVarVarVar:
		return []*int{&in.A, &in.B, &in.C}
	}
	return nil
}

// VarsUsed lists every variable offset referenced by the fragment.
func (f *Fragment) VarsUsed() []int {
	seen := make(map[int]bool)
	var vars []int
	for i := range f.Code {
		for _, v := range varOperands(&f.Code[i]) {
			if !seen[*v] {
				seen[*v] = true
				vars = append(vars, *v)
			}
		}
	}
	return vars
}

func (f *Fragment) IsVarUsed(offset int) bool {
	for i := range f.Code {
		for _, v := range varOperands(&f.Code[i]) {
			if *v == offset {
				return true
			}
		}
	}
	return false
}

// ExchangeVar rewrites every reference to variable oldOffset into newOffset.
func (f *Fragment) ExchangeVar(oldOffset, newOffset int) {
	for i := range f.Code {
		for _, v := range varOperands(&f.Code[i]) {
			if *v == oldOffset {
				*v = newOffset
			}
		}
	}
}

// LinePos maps the first instruction generated for a source line.
type LinePos struct {
	PC   int
	Line int
}

// Finalize resolves labels, strips pseudo instructions, builds the line table and
// computes the deepest stack the code can reach.
func (f *Fragment) Finalize(ptr int) (code []Instr, lines []LinePos, maxStack int, err error) {
	labels := make(map[int]int)
	for _, in := range f.Code {
		switch in.Op {
		case Label:
			if _, dup := labels[in.A]; dup {
				return nil, nil, 0, fmt.Errorf("label %d defined twice", in.A)
			}
			labels[in.A] = len(code)
		case Line:
			if len(lines) > 0 && lines[len(lines)-1].PC == len(code) {
				lines[len(lines)-1].Line = in.A
			} else {
				lines = append(lines, LinePos{PC: len(code), Line: in.A})
			}
		default:
			code = append(code, in)
		}
	}

	for i := range code {
		if !code[i].Op.IsJump() {
			continue
		}
		target, ok := labels[code[i].A]
		if !ok {
			return nil, nil, 0, fmt.Errorf("jump to undefined label %d", code[i].A)
		}
		code[i].A = target
	}

	maxStack, err = stackDepth(code, ptr)
	return code, lines, maxStack, err
}

func instrStackEffect(in Instr, ptr int) int {
	if inc, fixed := in.Op.StackEffect(ptr); fixed {
		return inc
	}
	return in.StackInc
}

// stackDepth walks every path through code and checks that paths agree on the stack size.
func stackDepth(code []Instr, ptr int) (int, error) {
	if len(code) == 0 {
		return 0, nil
	}
	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}
	largest := 0
	work := []int{0}
	depth[0] = 0

	visit := func(pc, d int) error {
		if pc >= len(code) {
			return nil
		}
		if depth[pc] == -1 {
			depth[pc] = d
			work = append(work, pc)
			return nil
		}
		if depth[pc] != d {
			return fmt.Errorf("inconsistent stack size at instruction %d: %d vs %d", pc, depth[pc], d)
		}
		return nil
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		in := code[pc]
		d := depth[pc] + instrStackEffect(in, ptr)
		if d > largest {
			largest = d
		}
		if d < 0 {
			return 0, fmt.Errorf("stack underflow at instruction %d (%s)", pc, in.Op)
		}

		switch {
		case in.Op == RET:
			continue
		case in.Op == JMP:
			if err := visit(in.A, d); err != nil {
				return 0, err
			}
		case in.Op.IsJump():
			if err := visit(in.A, d); err != nil {
				return 0, err
			}
			if err := visit(pc+1, d); err != nil {
				return 0, err
			}
		case in.Op == JMPP:
			for t := pc + 1; t < len(code) && code[t].Op == JMP; t++ {
				if err := visit(t, d); err != nil {
					return 0, err
				}
			}
		default:
			if err := visit(pc+1, d); err != nil {
				return 0, err
			}
		}
	}
	return largest, nil
}
