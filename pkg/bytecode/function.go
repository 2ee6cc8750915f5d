package bytecode

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/gasc/pkg/types"
)

// ObjVar is an object variable the executor must release if the function unwinds
type ObjVar struct {
	Offset int
	Type   *types.ObjectType
}

// VarInfo describes one allocated stack slot
type VarInfo struct {
	Offset    int
	Type      types.DataType
	Temporary bool
}

// Function is compiled, finalized code ready for the executor
type Function struct {
	Decl            *types.Function
	Code            []Instr
	VariableSpace   int
	StackNeeded     int
	LineNumbers     []LinePos
	ObjVars         []ObjVar
	Vars            []VarInfo
	DontCleanUpArgs bool
}

// LineAt returns the source line of the instruction at pc, or 0 if unknown.
func (f *Function) LineAt(pc int) int {
	i := sort.Search(len(f.LineNumbers), func(i int) bool { return f.LineNumbers[i].PC > pc })
	if i == 0 {
		return 0
	}
	return f.LineNumbers[i-1].Line
}

// Namer resolves function ids for listings
type Namer interface {
	FunctionName(id int) string
}

func formatOperands(in Instr, names Namer) string {
	typeName := func() string {
		if in.Type == nil {
			return "<nil>"
		}
		return in.Type.Name
	}
	funcName := func() string {
		if names == nil {
			return fmt.Sprintf("#%d", in.Func)
		}
		return names.FunctionName(in.Func)
	}

	switch in.Op.Form() {
	case FormVar:
		return fmt.Sprintf("v%d", in.A)
	case FormVarVar:
		return fmt.Sprintf("v%d, v%d", in.A, in.B)
	case FormVarVarVar:
		return fmt.Sprintf("v%d, v%d, v%d", in.A, in.B, in.C)
	case FormVarArg:
		if in.Op == SetV8 {
			return fmt.Sprintf("v%d, 0x%x (i:%d, d:%g)", in.A, in.Arg, int64(in.Arg), math.Float64frombits(in.Arg))
		}
		return fmt.Sprintf("v%d, 0x%x (i:%d, f:%g)", in.A, uint32(in.Arg), int32(in.Arg), math.Float32frombits(uint32(in.Arg)))
	case FormArg:
		return fmt.Sprintf("%d", int64(in.Arg))
	case FormDW:
		return fmt.Sprintf("%d", in.A)
	case FormLabel:
		return fmt.Sprintf("+%d", in.A)
	case FormFunc:
		return funcName()
	case FormType:
		return typeName()
	case FormVarType:
		return fmt.Sprintf("v%d, %s", in.A, typeName())
	case FormTypeFunc:
		return fmt.Sprintf("%s, %s", typeName(), funcName())
	}
	return ""
}

// Disassemble writes a human readable listing of the function.
func (f *Function) Disassemble(w io.Writer, names Namer) {
	name := "<init>"
	if f.Decl != nil {
		name = f.Decl.Declaration()
	}
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  Variables: %d, Stack: %d\n", f.VariableSpace, f.StackNeeded)
	for _, v := range f.Vars {
		tag := ""
		if v.Temporary {
			tag = " (tmp)"
		}
		fmt.Fprintf(w, "  v%d: %s%s\n", v.Offset, v.Type.Format(), tag)
	}
	line := 0
	for pc, in := range f.Code {
		if l := f.LineAt(pc); l != line {
			line = l
			fmt.Fprintf(w, "  - %d -\n", line)
		}
		ops := formatOperands(in, names)
		if ops == "" {
			fmt.Fprintf(w, "  %4d: %s\n", pc, in.Op)
		} else {
			fmt.Fprintf(w, "  %4d: %-10s %s\n", pc, in.Op, ops)
		}
	}
	fmt.Fprintln(w)
}

// Listing returns the disassembly as a string.
func (f *Function) Listing(names Namer) string {
	var sb strings.Builder
	f.Disassemble(&sb, names)
	return sb.String()
}

// Checksum hashes the instruction stream, so identical code yields identical sums.
func (f *Function) Checksum() uint64 {
	h := xxhash.New()
	for _, in := range f.Code {
		typeID := -1
		if in.Type != nil {
			typeID = in.Type.ID
		}
		fmt.Fprintf(h, "%d %d %d %d %d %d %d;", in.Op, in.A, in.B, in.C, in.Arg, typeID, in.Func)
	}
	return h.Sum64()
}
