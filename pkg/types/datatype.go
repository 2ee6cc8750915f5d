// Package types defines the semantic types shared by the registry, the compiler and the executor.
package types

import "strings"

// Kind is the coarse category of a DataType
type Kind int

const (
	Void Kind = iota
	Bool
	Int8
	Int16
	Int
	Int64
	Uint8
	Uint16
	Uint
	Uint64
	Float
	Double
	Enum
	Object
	VarType
	NullHandle
)

var kindNames = [...]string{
	Void: "void", Bool: "bool", Int8: "int8", Int16: "int16", Int: "int", Int64: "int64",
	Uint8: "uint8", Uint16: "uint16", Uint: "uint", Uint64: "uint64", Float: "float",
	Double: "double", Enum: "enum", Object: "object", VarType: "?", NullHandle: "<null handle>",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "<unknown>"
}

// KindByName maps primitive type names to their kind.
var KindByName = map[string]Kind{
	"void": Void, "bool": Bool, "int8": Int8, "int16": Int16, "int": Int, "int32": Int,
	"int64": Int64, "uint8": Uint8, "uint16": Uint16, "uint": Uint, "uint32": Uint,
	"uint64": Uint64, "float": Float, "double": Double,
}

// DataType is the full type of a value: base kind or object type plus modifiers.
// It is comparable, so two types are identical exactly when they are ==.
type DataType struct {
	Kind        Kind
	Object      *ObjectType
	Const       bool
	Ref         bool
	Handle      bool
	ConstHandle bool
}

func Primitive(k Kind, isConst bool) DataType { return DataType{Kind: k, Const: isConst} }

// ObjectOf returns a non-handle data type for ot; enum types become Enum kinds.
func ObjectOf(ot *ObjectType, isConst bool) DataType {
	if ot.Flags&FlagEnum != 0 {
		return DataType{Kind: Enum, Object: ot, Const: isConst}
	}
	return DataType{Kind: Object, Object: ot, Const: isConst}
}

func HandleOf(ot *ObjectType, toConst bool) DataType {
	return DataType{Kind: Object, Object: ot, Handle: true, Const: toConst}
}

func NullType() DataType { return DataType{Kind: NullHandle, Handle: true} }

func (dt DataType) IsPrimitive() bool {
	return dt.Kind <= Double || dt.Kind == Enum
}

func (dt DataType) IsObject() bool       { return dt.Kind == Object }
func (dt DataType) IsVoid() bool         { return dt.Kind == Void }
func (dt DataType) IsEnumType() bool     { return dt.Kind == Enum }
func (dt DataType) IsBooleanType() bool  { return dt.Kind == Bool }
func (dt DataType) IsFloatType() bool    { return dt.Kind == Float }
func (dt DataType) IsDoubleType() bool   { return dt.Kind == Double }
func (dt DataType) IsNullHandle() bool   { return dt.Kind == NullHandle }
func (dt DataType) IsVarType() bool      { return dt.Kind == VarType }
func (dt DataType) IsIntegerType() bool  { return dt.Kind >= Int8 && dt.Kind <= Int64 }
func (dt DataType) IsUnsignedType() bool { return dt.Kind >= Uint8 && dt.Kind <= Uint64 }

// IsNumber is true for every integer, float and enum type.
func (dt DataType) IsNumber() bool {
	return dt.IsIntegerType() || dt.IsUnsignedType() || dt.IsFloatType() || dt.IsDoubleType() || dt.IsEnumType()
}

func (dt DataType) IsObjectHandle() bool { return dt.Handle }

// IsReadOnly reports whether the value itself may not be modified.
func (dt DataType) IsReadOnly() bool {
	if dt.Handle {
		return dt.ConstHandle
	}
	return dt.Const
}

func (dt DataType) IsHandleToConst() bool { return dt.Handle && dt.Const }

func (dt DataType) WithRef(b bool) DataType {
	dt.Ref = b
	return dt
}

// WithReadOnly toggles constness of the value, which for handles is the handle itself.
func (dt DataType) WithReadOnly(b bool) DataType {
	if dt.Handle {
		dt.ConstHandle = b
	} else {
		dt.Const = b
	}
	return dt
}

func (dt DataType) WithHandleToConst(b bool) DataType {
	if dt.Handle {
		dt.Const = b
	}
	return dt
}

// WithHandle turns dt into a handle (or back). It fails for types that cannot be referenced by handle.
func (dt DataType) WithHandle(b bool) (DataType, bool) {
	if !b {
		if dt.Handle {
			dt.Handle = false
			dt.Const = dt.Const && dt.Kind != NullHandle
			dt.ConstHandle = false
		}
		return dt, true
	}
	if dt.Handle {
		return dt, true
	}
	if dt.Kind == NullHandle {
		dt.Handle = true
		return dt, true
	}
	if dt.Kind != Object || dt.Object == nil || !dt.Object.SupportsHandles() {
		return dt, false
	}
	dt.Handle = true
	dt.ConstHandle = false
	return dt, true
}

// Base strips reference, constness and handle modifiers.
func (dt DataType) Base() DataType {
	return DataType{Kind: dt.Kind, Object: dt.Object}
}

func (dt DataType) IsSameBaseType(o DataType) bool {
	return dt.Kind == o.Kind && dt.Object == o.Object
}

// IsSamePrimitiveBaseType is true when both are in the same primitive family, e.g. int8 and int64.
func (dt DataType) IsSamePrimitiveBaseType(o DataType) bool {
	if !dt.IsPrimitive() || !o.IsPrimitive() {
		return false
	}
	switch {
	case dt.IsIntegerType():
		return o.IsIntegerType()
	case dt.IsUnsignedType():
		return o.IsUnsignedType()
	case dt.IsFloatType() || dt.IsDoubleType():
		return o.IsFloatType() || o.IsDoubleType()
	}
	return dt.Kind == o.Kind
}

func (dt DataType) IsEqualExceptRef(o DataType) bool {
	dt.Ref, o.Ref = false, false
	return dt == o
}

func (dt DataType) IsEqualExceptConst(o DataType) bool {
	dt.Const, o.Const = false, false
	dt.ConstHandle, o.ConstHandle = false, false
	return dt == o
}

func (dt DataType) IsEqualExceptRefAndConst(o DataType) bool {
	dt.Ref, o.Ref = false, false
	return dt.IsEqualExceptConst(o)
}

// CanBeInstanced reports whether a variable of this type can be declared.
func (dt DataType) CanBeInstanced() bool {
	if dt.Kind == Void || dt.Kind == NullHandle || dt.Kind == VarType {
		return false
	}
	if dt.Kind == Object && !dt.Handle && dt.Object.Flags&FlagRef != 0 && dt.Object.Beh.Factory == 0 && len(dt.Object.Beh.Factories) == 0 {
		return false
	}
	return true
}

// CanBeCopied reports whether a value of the type can be duplicated into another instance.
func (dt DataType) CanBeCopied() bool {
	if dt.IsPrimitive() || dt.Handle {
		return true
	}
	if dt.Kind != Object {
		return false
	}
	ot := dt.Object
	if ot.Flags&FlagPOD != 0 {
		return true
	}
	if ot.Beh.Factory == 0 && ot.Beh.Construct == 0 {
		return false
	}
	return ot.Beh.Copy != 0
}

func (dt DataType) SizeInMemoryBytes(ptr int) int {
	switch dt.Kind {
	case Void, VarType:
		return 0
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int, Uint, Float, Enum:
		return 4
	case Int64, Uint64, Double:
		return 8
	}
	return 4 * ptr
}

func (dt DataType) SizeInMemoryDWords(ptr int) int {
	s := dt.SizeInMemoryBytes(ptr)
	if s == 0 {
		return 0
	}
	if s <= 4 {
		return 1
	}
	return 2
}

// SizeOnStackDWords is the number of stack dwords a value of this type takes when pushed.
func (dt DataType) SizeOnStackDWords(ptr int) int {
	extra := 0
	if dt.Kind == VarType {
		extra = 1
	}
	if dt.Ref || dt.Kind == Object || dt.Kind == NullHandle {
		return ptr + extra
	}
	return dt.SizeInMemoryDWords(ptr) + extra
}

func (dt DataType) Name() string {
	switch dt.Kind {
	case Object, Enum:
		if dt.Object != nil {
			return dt.Object.Name
		}
	case NullHandle:
		return "<null handle>"
	}
	return dt.Kind.String()
}

// Format renders the type the way declarations spell it, e.g. "const int&" or "array<int>@".
func (dt DataType) Format() string {
	var sb strings.Builder
	if dt.Const && (!dt.Handle || dt.Kind != NullHandle) {
		sb.WriteString("const ")
	}
	if dt.Kind == NullHandle {
		return "<null handle>"
	}
	sb.WriteString(dt.Name())
	if dt.Handle {
		sb.WriteString("@")
		if dt.ConstHandle {
			sb.WriteString(" const")
		}
	}
	if dt.Ref {
		sb.WriteString("&")
	}
	return sb.String()
}

func (dt DataType) String() string { return dt.Format() }
