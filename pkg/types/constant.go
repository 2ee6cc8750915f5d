package types

import (
	"fmt"
	"math"
)

// Constant is a compile-time value. There is one variant per primitive family,
// so a value can only be read back in the family it was created in.
type Constant interface {
	isConstant()
	String() string
}

type (
	IntConst    int64
	UintConst   uint64
	FloatConst  float32
	DoubleConst float64
	BoolConst   bool
	NullConst   struct{}
	StringConst int
)

func (IntConst) isConstant()    {}
func (UintConst) isConstant()   {}
func (FloatConst) isConstant()  {}
func (DoubleConst) isConstant() {}
func (BoolConst) isConstant()   {}
func (NullConst) isConstant()   {}
func (StringConst) isConstant() {}

func (c IntConst) String() string    { return fmt.Sprintf("%d", int64(c)) }
func (c UintConst) String() string   { return fmt.Sprintf("%d", uint64(c)) }
func (c FloatConst) String() string  { return fmt.Sprintf("%g", float32(c)) }
func (c DoubleConst) String() string { return fmt.Sprintf("%g", float64(c)) }
func (c BoolConst) String() string   { return fmt.Sprintf("%t", bool(c)) }
func (NullConst) String() string     { return "null" }
func (c StringConst) String() string { return fmt.Sprintf("string#%d", int(c)) }

func mismatch(want string, c Constant) string {
	return fmt.Sprintf("types: read %s constant from %T", want, c)
}

// The accessors below panic when used on the wrong variant: that is a compiler bug, never a user error.

func ConstInt(c Constant) int64 {
	if v, ok := c.(IntConst); ok {
		return int64(v)
	}
	panic(mismatch("int", c))
}

func ConstUint(c Constant) uint64 {
	if v, ok := c.(UintConst); ok {
		return uint64(v)
	}
	panic(mismatch("uint", c))
}

func ConstFloat(c Constant) float32 {
	if v, ok := c.(FloatConst); ok {
		return float32(v)
	}
	panic(mismatch("float", c))
}

func ConstDouble(c Constant) float64 {
	if v, ok := c.(DoubleConst); ok {
		return float64(v)
	}
	panic(mismatch("double", c))
}

func ConstBool(c Constant) bool {
	if v, ok := c.(BoolConst); ok {
		return bool(v)
	}
	panic(mismatch("bool", c))
}

func ConstString(c Constant) int {
	if v, ok := c.(StringConst); ok {
		return int(v)
	}
	panic(mismatch("string", c))
}

// ConstantFor builds the constant variant appropriate for kind k from raw 64-bit integer bits,
// truncating to the width of k.
func ConstantFor(k Kind, bits uint64) Constant {
	switch k {
	case Bool:
		return BoolConst(bits != 0)
	case Int8:
		return IntConst(int8(bits))
	case Int16:
		return IntConst(int16(bits))
	case Int, Enum:
		return IntConst(int32(bits))
	case Int64:
		return IntConst(int64(bits))
	case Uint8:
		return UintConst(uint8(bits))
	case Uint16:
		return UintConst(uint16(bits))
	case Uint:
		return UintConst(uint32(bits))
	case Uint64:
		return UintConst(bits)
	case Float:
		return FloatConst(math.Float32frombits(uint32(bits)))
	case Double:
		return DoubleConst(math.Float64frombits(bits))
	}
	return NullConst{}
}

// Bits returns the value as it is laid out in a stack cell.
func Bits(c Constant) uint64 {
	switch v := c.(type) {
	case IntConst:
		return uint64(v)
	case UintConst:
		return uint64(v)
	case FloatConst:
		return uint64(math.Float32bits(float32(v)))
	case DoubleConst:
		return math.Float64bits(float64(v))
	case BoolConst:
		if v {
			return 1
		}
		return 0
	case StringConst:
		return uint64(v)
	}
	return 0
}
