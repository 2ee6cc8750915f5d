package types

import "strings"

type FuncKind int

const (
	ScriptFunc FuncKind = iota
	SystemFunc
	InterfaceFunc
)

// ParamMode is the in/out qualifier of a reference parameter
type ParamMode int

const (
	ModeNone ParamMode = iota
	ModeIn
	ModeOut
	ModeInOut
)

func (m ParamMode) String() string {
	switch m {
	case ModeIn:
		return "in"
	case ModeOut:
		return "out"
	case ModeInOut:
		return "inout"
	}
	return ""
}

type Function struct {
	ID         int
	Name       string
	Object     *ObjectType
	Return     DataType
	Params     []DataType
	Modes      []ParamMode
	ParamNames []string
	IsConst    bool
	Kind       FuncKind
	// Bind names the host implementation of a system function.
	Bind string
}

// SpaceNeededForArguments is the number of dwords the arguments occupy, excluding the object pointer.
func (f *Function) SpaceNeededForArguments(ptr int) int {
	size := 0
	for _, p := range f.Params {
		size += p.SizeOnStackDWords(ptr)
	}
	return size
}

// SpaceNeededForCall adds the object pointer of methods to the argument space.
func (f *Function) SpaceNeededForCall(ptr int) int {
	size := f.SpaceNeededForArguments(ptr)
	if f.Object != nil {
		size += ptr
	}
	return size
}

func (f *Function) IsConstructor() bool {
	return f.Object != nil && f.Name == f.Object.Name
}

func (f *Function) IsDestructor() bool {
	return f.Object != nil && f.Name == "~"+f.Object.Name
}

func formatParam(dt DataType, mode ParamMode) string {
	if !dt.Ref {
		return dt.Format()
	}
	s := dt.WithRef(false).Format() + "&"
	if mode != ModeInOut {
		s += mode.String()
	}
	return s
}

func (f *Function) paramList() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		mode := ModeNone
		if i < len(f.Modes) {
			mode = f.Modes[i]
		}
		sb.WriteString(formatParam(p, mode))
	}
	sb.WriteString(")")
	if f.IsConst {
		sb.WriteString(" const")
	}
	return sb.String()
}

// Declaration renders the function as it would be declared, e.g. "int add(int, int)".
func (f *Function) Declaration() string {
	var sb strings.Builder
	if !f.IsConstructor() && !f.IsDestructor() {
		sb.WriteString(f.Return.Format())
		sb.WriteString(" ")
	}
	if f.Object != nil {
		sb.WriteString(f.Object.Name)
		sb.WriteString("::")
	}
	sb.WriteString(f.Name)
	sb.WriteString(f.paramList())
	return sb.String()
}

// Signature identifies a method for virtual dispatch: name, parameters and constness.
func (f *Function) Signature() string {
	return f.Name + f.paramList()
}

func (f *Function) IsSignatureEqual(o *Function) bool {
	if f.Name != o.Name || f.IsConst != o.IsConst || len(f.Params) != len(o.Params) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] || f.Modes[i] != o.Modes[i] {
			return false
		}
	}
	return f.Return == o.Return
}
