package compiler

import (
	"math"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

const (
	txtNotExact      = "Implicit conversion of value is not exact"
	txtChangeSign    = "Implicit conversion changed sign of value"
	txtValueTooLarge = "Value is too large for data type"
	txtPossibleLoss  = "Conversion from double to float, possible loss of precision"
)

// assignBase maps compound assignments to the operator they apply.
var assignBase = map[token.Type]token.Type{
	token.PlusEq: token.Plus, token.MinusEq: token.Minus, token.StarEq: token.Star,
	token.SlashEq: token.Slash, token.RemEq: token.Rem, token.AndEq: token.Amp,
	token.OrEq: token.Or, token.XorEq: token.Xor, token.ShlEq: token.Shl,
	token.ShrEq: token.Shr, token.SraEq: token.Sra,
}

func baseOp(op token.Type) token.Type {
	if b, ok := assignBase[op]; ok {
		return b
	}
	return op
}

func bitWidth(k types.Kind) uint {
	switch k {
	case types.Int8, types.Uint8, types.Bool:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int64, types.Uint64, types.Double:
		return 64
	}
	return 32
}

func signedRange(k types.Kind) (int64, int64) {
	w := bitWidth(k)
	if w == 64 {
		return math.MinInt64, math.MaxInt64
	}
	return -1 << (w - 1), 1<<(w-1) - 1
}

func unsignedMax(k types.Kind) uint64 {
	w := bitWidth(k)
	if w == 64 {
		return math.MaxUint64
	}
	return 1<<w - 1
}

// implicitConversionConstant folds a constant into type to. Lossy conversions warn unless
// the conversion was asked for explicitly.
func (c *Compiler) implicitConversionConstant(t *exprType, to types.DataType, node *ast.Node, kind convKind) {
	if !t.isConstant || to.Ref {
		return
	}
	from := t.dataType
	if from.IsEqualExceptRefAndConst(to) {
		return
	}
	if from.IsBooleanType() || to.IsBooleanType() || !from.IsNumber() || !to.IsNumber() {
		return
	}
	if to.IsEnumType() && !from.IsEnumType() && kind != convExplicitValue {
		return
	}

	report := kind != convExplicitValue && node != nil
	warn := func(w config.Warning, text string) {
		if report {
			c.warn(w, node.Tok, "%s", text)
		}
	}

	var result types.Constant
	switch {
	case to.IsIntegerType() || to.IsEnumType():
		lo, hi := signedRange(to.Kind)
		switch v := t.constant.(type) {
		case types.IntConst:
			if int64(v) < lo || int64(v) > hi {
				warn(config.WarnValueTooLarge, txtValueTooLarge)
			}
			result = types.ConstantFor(to.Kind, uint64(v))
		case types.UintConst:
			if uint64(v) > uint64(hi) {
				if bitWidth(from.Kind) == bitWidth(to.Kind) {
					warn(config.WarnChangeSign, txtChangeSign)
				} else {
					warn(config.WarnValueTooLarge, txtValueTooLarge)
				}
			}
			result = types.ConstantFor(to.Kind, uint64(v))
		default:
			f := constFloat64(t.constant)
			if f < float64(lo) || f > float64(hi) {
				warn(config.WarnValueTooLarge, txtValueTooLarge)
			}
			i := int64(f)
			if float64(i) != f {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.ConstantFor(to.Kind, uint64(i))
		}

	case to.IsUnsignedType():
		hi := unsignedMax(to.Kind)
		switch v := t.constant.(type) {
		case types.IntConst:
			if v < 0 {
				warn(config.WarnChangeSign, txtChangeSign)
			} else if uint64(v) > hi {
				warn(config.WarnValueTooLarge, txtValueTooLarge)
			}
			result = types.ConstantFor(to.Kind, uint64(v))
		case types.UintConst:
			if uint64(v) > hi {
				warn(config.WarnValueTooLarge, txtValueTooLarge)
			}
			result = types.ConstantFor(to.Kind, uint64(v))
		default:
			f := constFloat64(t.constant)
			if f < 0 {
				warn(config.WarnChangeSign, txtChangeSign)
				result = types.ConstantFor(to.Kind, uint64(int64(f)))
				break
			}
			if f > float64(hi) {
				warn(config.WarnValueTooLarge, txtValueTooLarge)
			}
			u := uint64(f)
			if float64(u) != f {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.ConstantFor(to.Kind, u)
		}

	case to.IsFloatType():
		switch v := t.constant.(type) {
		case types.IntConst:
			f := float32(v)
			if int64(f) != int64(v) {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.FloatConst(f)
		case types.UintConst:
			f := float32(v)
			if uint64(f) != uint64(v) {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.FloatConst(f)
		case types.DoubleConst:
			f := float32(v)
			if float64(f) != float64(v) {
				warn(config.WarnNotExact, txtPossibleLoss)
			}
			result = types.FloatConst(f)
		}

	case to.IsDoubleType():
		switch v := t.constant.(type) {
		case types.IntConst:
			d := float64(v)
			if int64(d) != int64(v) {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.DoubleConst(d)
		case types.UintConst:
			d := float64(v)
			if uint64(d) != uint64(v) {
				warn(config.WarnNotExact, txtNotExact)
			}
			result = types.DoubleConst(d)
		case types.FloatConst:
			result = types.DoubleConst(float64(v))
		}
	}
	if result == nil {
		return
	}

	dt := to.WithRef(false)
	dt.Const = from.Const
	t.setConstant(dt, result)
}

// constFloat64 reads any numeric constant as a float64.
func constFloat64(v types.Constant) float64 {
	switch v := v.(type) {
	case types.IntConst:
		return float64(v)
	case types.UintConst:
		return float64(v)
	case types.FloatConst:
		return float64(v)
	case types.DoubleConst:
		return float64(v)
	}
	return 0
}

// isZeroConstant reports whether a numeric constant is zero.
func isZeroConstant(v types.Constant) bool {
	switch v := v.(type) {
	case types.IntConst:
		return v == 0
	case types.UintConst:
		return v == 0
	case types.FloatConst:
		return v == 0
	case types.DoubleConst:
		return v == 0
	}
	return false
}

// foldMath evaluates a math operator on two constants already converted to dt. Division by
// zero yields zero; the caller reports it.
func foldMath(op token.Type, l, r types.Constant, dt types.DataType) (types.Constant, types.DataType) {
	op = baseOp(op)
	switch dt.Kind {
	case types.Int, types.Int64, types.Enum:
		a, b := types.ConstInt(l), types.ConstInt(r)
		var v int64
		switch op {
		case token.Plus:
			v = a + b
		case token.Minus:
			v = a - b
		case token.Star:
			v = a * b
		case token.Slash:
			if b != 0 {
				v = a / b
			}
		case token.Rem:
			if b != 0 {
				v = a % b
			}
		}
		return types.ConstantFor(dt.Kind, uint64(v)), dt

	case types.Uint, types.Uint64:
		a, b := types.ConstUint(l), types.ConstUint(r)
		var v uint64
		switch op {
		case token.Plus:
			v = a + b
		case token.Minus:
			v = a - b
			if a < b {
				signed := types.Int
				if dt.Kind == types.Uint64 {
					signed = types.Int64
				}
				dt.Kind = signed
				return types.ConstantFor(signed, v), dt
			}
		case token.Star:
			v = a * b
		case token.Slash:
			if b != 0 {
				v = a / b
			}
		case token.Rem:
			if b != 0 {
				v = a % b
			}
		}
		return types.ConstantFor(dt.Kind, v), dt

	case types.Float:
		a, b := types.ConstFloat(l), types.ConstFloat(r)
		var v float32
		switch op {
		case token.Plus:
			v = a + b
		case token.Minus:
			v = a - b
		case token.Star:
			v = a * b
		case token.Slash:
			if b != 0 {
				v = a / b
			}
		case token.Rem:
			if b != 0 {
				v = float32(math.Mod(float64(a), float64(b)))
			}
		}
		return types.FloatConst(v), dt

	case types.Double:
		a, b := types.ConstDouble(l), types.ConstDouble(r)
		var v float64
		switch op {
		case token.Plus:
			v = a + b
		case token.Minus:
			v = a - b
		case token.Star:
			v = a * b
		case token.Slash:
			if b != 0 {
				v = a / b
			}
		case token.Rem:
			if b != 0 {
				v = math.Mod(a, b)
			}
		}
		return types.DoubleConst(v), dt
	}
	return l, dt
}

// foldBitwise evaluates a bitwise or shift operator. For shifts r is the shift count.
func foldBitwise(op token.Type, l, r types.Constant, dt types.DataType) types.Constant {
	a, b := types.Bits(l), types.Bits(r)
	wide := bitWidth(dt.Kind) == 64
	var v uint64
	switch baseOp(op) {
	case token.Amp:
		v = a & b
	case token.Or:
		v = a | b
	case token.Xor:
		v = a ^ b
	case token.Shl:
		v = a << b
	case token.Shr:
		if wide {
			v = a >> b
		} else {
			v = uint64(uint32(a) >> b)
		}
	case token.Sra:
		if wide {
			v = uint64(int64(a) >> b)
		} else {
			v = uint64(int32(uint32(a)) >> b)
		}
	}
	return types.ConstantFor(dt.Kind, v)
}

// foldComparison compares two constants already converted to the same type.
func foldComparison(op token.Type, l, r types.Constant) types.Constant {
	var cmp int
	switch a := l.(type) {
	case types.IntConst:
		cmp = compare(int64(a), types.ConstInt(r))
	case types.UintConst:
		cmp = compare(uint64(a), types.ConstUint(r))
	case types.FloatConst:
		cmp = compare(float32(a), types.ConstFloat(r))
	case types.DoubleConst:
		cmp = compare(float64(a), types.ConstDouble(r))
	case types.BoolConst:
		if bool(a) != types.ConstBool(r) {
			cmp = 1
		}
	}
	var v bool
	switch op {
	case token.EqEq:
		v = cmp == 0
	case token.Neq:
		v = cmp != 0
	case token.Lt:
		v = cmp < 0
	case token.Lte:
		v = cmp <= 0
	case token.Gt:
		v = cmp > 0
	case token.Gte:
		v = cmp >= 0
	}
	return types.BoolConst(v)
}

func compare[T int64 | uint64 | float32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func foldBoolean(op token.Type, l, r types.Constant) types.Constant {
	a, b := types.ConstBool(l), types.ConstBool(r)
	switch op {
	case token.AndAnd:
		return types.BoolConst(a && b)
	case token.OrOr:
		return types.BoolConst(a || b)
	}
	return types.BoolConst(a != b)
}
