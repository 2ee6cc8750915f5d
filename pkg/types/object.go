package types

// TypeFlags describe how an object type is allocated and referenced
type TypeFlags uint32

const (
	FlagRef TypeFlags = 1 << iota
	FlagValue
	FlagPOD
	FlagScript
	FlagEnum
	FlagTemplate
	FlagNoHandle
)

var flagNames = []struct {
	flag TypeFlags
	name string
}{
	{FlagRef, "ref"}, {FlagValue, "value"}, {FlagPOD, "pod"}, {FlagScript, "script"},
	{FlagEnum, "enum"}, {FlagTemplate, "template"}, {FlagNoHandle, "nohandle"},
}

// FlagByName resolves the lower-case flag names used by host interface files.
func FlagByName(name string) (TypeFlags, bool) {
	for _, f := range flagNames {
		if f.name == name {
			return f.flag, true
		}
	}
	return 0, false
}

type Property struct {
	Name  string
	Type  DataType
	Index int
}

type EnumValue struct {
	Name  string
	Value int64
}

// Behaviour identifies a special function in a behaviour table.
type Behaviour int

const (
	BehNone Behaviour = iota

	// Assignment family, in token order from '=' to '>>>='
	BehAssign
	BehAddAssign
	BehSubAssign
	BehMulAssign
	BehDivAssign
	BehModAssign
	BehAndAssign
	BehOrAssign
	BehXorAssign
	BehSllAssign
	BehSrlAssign
	BehSraAssign

	BehIndex
	BehNegate
	BehValueCast
	BehImplicitValueCast
	BehRefCast
	BehImplicitRefCast

	// Global dual operators
	BehAdd
	BehSub
	BehMul
	BehDiv
	BehMod
	BehEqual
	BehNotEqual
	BehLess
	BehGreater
	BehLessEqual
	BehGreaterEqual
	BehLogicOr
	BehLogicAnd
	BehBitOr
	BehBitAnd
	BehBitXor
	BehBitSll
	BehBitSrl
	BehBitSra
)

var behaviourNames = map[Behaviour]string{
	BehAssign: "opAssign", BehAddAssign: "opAddAssign", BehSubAssign: "opSubAssign",
	BehMulAssign: "opMulAssign", BehDivAssign: "opDivAssign", BehModAssign: "opModAssign",
	BehAndAssign: "opAndAssign", BehOrAssign: "opOrAssign", BehXorAssign: "opXorAssign",
	BehSllAssign: "opShlAssign", BehSrlAssign: "opShrAssign", BehSraAssign: "opUShrAssign",
	BehIndex: "opIndex", BehNegate: "opNeg", BehValueCast: "opConv", BehImplicitValueCast: "opImplConv",
	BehRefCast: "opCast", BehImplicitRefCast: "opImplCast",
	BehAdd: "opAdd", BehSub: "opSub", BehMul: "opMul", BehDiv: "opDiv", BehMod: "opMod",
	BehEqual: "opEquals", BehNotEqual: "opNotEquals", BehLess: "opLess", BehGreater: "opGreater",
	BehLessEqual: "opLessEqual", BehGreaterEqual: "opGreaterEqual", BehLogicOr: "opLogicOr",
	BehLogicAnd: "opLogicAnd", BehBitOr: "opOr", BehBitAnd: "opAnd", BehBitXor: "opXor",
	BehBitSll: "opShl", BehBitSrl: "opShr", BehBitSra: "opUShr",
}

func (b Behaviour) String() string {
	if s, ok := behaviourNames[b]; ok {
		return s
	}
	return "<none>"
}

func BehaviourByName(name string) (Behaviour, bool) {
	for b, s := range behaviourNames {
		if s == name {
			return b, true
		}
	}
	return BehNone, false
}

func (b Behaviour) IsAssignment() bool { return b >= BehAssign && b <= BehSraAssign }

type BehaviourFunc struct {
	Beh  Behaviour
	Func int
}

// Behaviours is the per-type table of special functions. A zero id means "not registered".
type Behaviours struct {
	Factory      int
	Construct    int
	Destruct     int
	AddRef       int
	Release      int
	Copy         int
	Factories    []int
	Constructors []int
	Operators    []BehaviourFunc
}

// OperatorFuncs returns the function ids registered for beh, in registration order.
func (b *Behaviours) OperatorFuncs(beh Behaviour) []int {
	var ids []int
	for _, op := range b.Operators {
		if op.Beh == beh {
			ids = append(ids, op.Func)
		}
	}
	return ids
}

type ObjectType struct {
	Name       string
	ID         int
	Flags      TypeFlags
	Size       int
	Props      []*Property
	Methods    []int
	Beh        Behaviours
	Base       *ObjectType
	Interfaces []*ObjectType
	EnumValues []EnumValue

	// Set on template instances.
	SubType  DataType
	Template *ObjectType
}

func (ot *ObjectType) IsRef() bool    { return ot.Flags&FlagRef != 0 }
func (ot *ObjectType) IsScript() bool { return ot.Flags&FlagScript != 0 }
func (ot *ObjectType) IsPOD() bool    { return ot.Flags&FlagPOD != 0 }

func (ot *ObjectType) SupportsHandles() bool {
	return ot.Flags&FlagRef != 0 && ot.Flags&FlagNoHandle == 0
}

func (ot *ObjectType) DerivesFrom(other *ObjectType) bool {
	for t := ot; t != nil; t = t.Base {
		if t == other {
			return true
		}
	}
	return false
}

func (ot *ObjectType) Implements(iface *ObjectType) bool {
	for t := ot; t != nil; t = t.Base {
		for _, i := range t.Interfaces {
			if i == iface {
				return true
			}
		}
	}
	return false
}

// Property looks up a property by name, including those inherited from base types.
func (ot *ObjectType) Property(name string) *Property {
	for _, p := range ot.Props {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (ot *ObjectType) EnumValue(name string) (int64, bool) {
	for _, v := range ot.EnumValues {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// GlobalProperty is a module or host level variable
type GlobalProperty struct {
	Name           string
	Type           DataType
	Index          int
	IsPureConstant bool
	Constant       Constant
}
