package compiler

import (
	"testing"

	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

func TestFoldMath(t *testing.T) {
	intT := types.Primitive(types.Int, false)
	uintT := types.Primitive(types.Uint, false)
	uint64T := types.Primitive(types.Uint64, false)
	doubleT := types.Primitive(types.Double, false)

	tests := []struct {
		name     string
		op       token.Type
		l, r     types.Constant
		dt       types.DataType
		want     types.Constant
		wantKind types.Kind
	}{
		{"int add", token.Plus, types.IntConst(2), types.IntConst(3), intT, types.IntConst(5), types.Int},
		{"int wraps", token.Star, types.IntConst(1 << 30), types.IntConst(4), intT, types.IntConst(0), types.Int},
		{"compound", token.MinusEq, types.IntConst(2), types.IntConst(3), intT, types.IntConst(-1), types.Int},
		{"div by zero", token.Slash, types.IntConst(7), types.IntConst(0), intT, types.IntConst(0), types.Int},
		{"rem by zero", token.Rem, types.UintConst(7), types.UintConst(0), uintT, types.UintConst(0), types.Uint},
		{"uint underflow", token.Minus, types.UintConst(3), types.UintConst(5), uintT, types.IntConst(-2), types.Int},
		{"uint64 underflow", token.Minus, types.UintConst(3), types.UintConst(5), uint64T, types.IntConst(-2), types.Int64},
		{"uint no underflow", token.Minus, types.UintConst(5), types.UintConst(3), uintT, types.UintConst(2), types.Uint},
		{"double rem", token.Rem, types.DoubleConst(7.5), types.DoubleConst(2), doubleT, types.DoubleConst(1.5), types.Double},
		{"double div by zero", token.Slash, types.DoubleConst(1), types.DoubleConst(0), doubleT, types.DoubleConst(0), types.Double},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dt := foldMath(tt.op, tt.l, tt.r, tt.dt)
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
			if dt.Kind != tt.wantKind {
				t.Errorf("result type %s, want %s", dt.Kind, tt.wantKind)
			}
		})
	}
}

func TestFoldBitwise(t *testing.T) {
	intT := types.Primitive(types.Int, false)
	int64T := types.Primitive(types.Int64, false)
	tests := []struct {
		name string
		op   token.Type
		l, r types.Constant
		dt   types.DataType
		want types.Constant
	}{
		{"and", token.Amp, types.IntConst(12), types.IntConst(10), intT, types.IntConst(8)},
		{"xor assign", token.XorEq, types.IntConst(12), types.IntConst(10), intT, types.IntConst(6)},
		{"arithmetic shift", token.Sra, types.IntConst(-8), types.UintConst(1), intT, types.IntConst(-4)},
		{"logical shift", token.Shr, types.IntConst(-8), types.UintConst(1), intT, types.IntConst(0x7FFFFFFC)},
		{"shift into sign", token.Shl, types.IntConst(1), types.UintConst(31), intT, types.IntConst(-1 << 31)},
		{"wide logical shift", token.Shr, types.IntConst(-1), types.UintConst(32), int64T, types.IntConst(0xFFFFFFFF)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := foldBitwise(tt.op, tt.l, tt.r, tt.dt); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFoldComparison(t *testing.T) {
	tests := []struct {
		op   token.Type
		l, r types.Constant
		want bool
	}{
		{token.Lt, types.IntConst(-1), types.IntConst(0), true},
		{token.Lt, types.UintConst(1), types.UintConst(0), false},
		{token.Gte, types.DoubleConst(2), types.DoubleConst(2), true},
		{token.Neq, types.FloatConst(0.5), types.FloatConst(0.25), true},
		{token.EqEq, types.BoolConst(true), types.BoolConst(false), false},
	}
	for _, tt := range tests {
		if got := foldComparison(tt.op, tt.l, tt.r); got != types.BoolConst(tt.want) {
			t.Errorf("%v %s %v = %v, want %v", tt.l, tt.op, tt.r, got, tt.want)
		}
	}
}

func TestFoldBoolean(t *testing.T) {
	if foldBoolean(token.AndAnd, types.BoolConst(true), types.BoolConst(false)) != types.BoolConst(false) {
		t.Error("true && false")
	}
	if foldBoolean(token.OrOr, types.BoolConst(false), types.BoolConst(true)) != types.BoolConst(true) {
		t.Error("false || true")
	}
	if foldBoolean(token.XorXor, types.BoolConst(true), types.BoolConst(true)) != types.BoolConst(false) {
		t.Error("true ^^ true")
	}
}

func TestIsZeroConstant(t *testing.T) {
	for _, c := range []types.Constant{types.IntConst(0), types.UintConst(0), types.FloatConst(0), types.DoubleConst(0)} {
		if !isZeroConstant(c) {
			t.Errorf("%v (%T) should be zero", c, c)
		}
	}
	if isZeroConstant(types.IntConst(1)) || isZeroConstant(types.BoolConst(false)) {
		t.Error("non-numeric or non-zero constants are not zero")
	}
}
