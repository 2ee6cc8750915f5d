package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/util"
)

type lexed struct {
	Type  token.Type
	Value string
}

func lex(t *testing.T, src string) ([]lexed, *util.Reporter) {
	t.Helper()
	rep := util.NewReporter(nil, nil, nil)
	idx := rep.AddFile("test.as", []rune(src))
	var out []lexed
	for _, tok := range NewLexer([]rune(src), idx, rep).Tokenize() {
		out = append(out, lexed{tok.Type, tok.Value})
	}
	return out, rep
}

func TestOperators(t *testing.T) {
	got, rep := lex(t, "a >>>= b !is c ^^ d >> e >>> f :: g !isx")
	want := []lexed{
		{token.Ident, "a"}, {token.SraEq, ""}, {token.Ident, "b"}, {token.NotIs, ""},
		{token.Ident, "c"}, {token.XorXor, ""}, {token.Ident, "d"}, {token.Shr, ""},
		{token.Ident, "e"}, {token.Sra, ""}, {token.Ident, "f"}, {token.Scope, ""},
		{token.Ident, "g"}, {token.Not, ""}, {token.Ident, "isx"}, {token.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if rep.HadErrors() {
		t.Errorf("unexpected errors: %v", rep.Errors())
	}
}

func TestCompoundAssignments(t *testing.T) {
	got, _ := lex(t, "+= -= *= /= %= &= |= ^= <<= >>= ++ -- && ||")
	var types []token.Type
	for _, l := range got {
		types = append(types, l.Type)
	}
	want := []token.Type{
		token.PlusEq, token.MinusEq, token.StarEq, token.SlashEq, token.RemEq, token.AndEq,
		token.OrEq, token.XorEq, token.ShlEq, token.ShrEq, token.Inc, token.Dec,
		token.AndAnd, token.OrOr, token.EOF,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestNumbers(t *testing.T) {
	got, rep := lex(t, "0x1F 3.5 2.0f 1e3 42 'a' '\\n' .5")
	want := []lexed{
		{token.HexNumber, "0x1F"}, {token.DoubleNumber, "3.5"}, {token.FloatNumber, "2.0"},
		{token.DoubleNumber, "1e3"}, {token.Number, "42"}, {token.Number, "97"},
		{token.Number, "10"}, {token.DoubleNumber, ".5"}, {token.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if rep.HadErrors() {
		t.Errorf("unexpected errors: %v", rep.Errors())
	}
}

func TestKeywords(t *testing.T) {
	got, _ := lex(t, "int32 uint8 cast is class null myVar")
	want := []lexed{
		{token.Int, "int32"}, {token.Uint8, "uint8"}, {token.Cast, "cast"}, {token.Is, "is"},
		{token.Class, "class"}, {token.Null, "null"}, {token.Ident, "myVar"}, {token.EOF, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestStrings(t *testing.T) {
	got, rep := lex(t, `"a\n\x41\"q"`)
	want := []lexed{{token.String, "a\nA\"q"}, {token.EOF, ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
	if rep.HadErrors() {
		t.Errorf("unexpected errors: %v", rep.Errors())
	}
}

func TestCommentsAndPositions(t *testing.T) {
	src := "// line\n/* block\n spanning */ int\n  x;"
	rep := util.NewReporter(nil, nil, nil)
	idx := rep.AddFile("test.as", []rune(src))
	toks := NewLexer([]rune(src), idx, rep).Tokenize()

	type pos struct {
		Type         token.Type
		Line, Column int
	}
	var got []pos
	for _, tok := range toks {
		got = append(got, pos{tok.Type, tok.Line, tok.Column})
	}
	want := []pos{{token.Int, 3, 14}, {token.Ident, 4, 3}, {token.Semi, 4, 4}, {token.EOF, 4, 5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unterminated string", "\"abc\nx", "Unterminated string literal"},
		{"bad hex", "0x", "Malformed hexadecimal literal"},
		{"bad exponent", "1e+", "Malformed floating-point literal: exponent has no digits"},
		{"bad escape", `"\q"`, `Unrecognized escape sequence '\q'`},
		{"stray character", "a $ b", "Unexpected character: '$'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rep := lex(t, tt.src)
			errs := rep.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Text != tt.want {
				t.Errorf("got %q, want %q", errs[0].Text, tt.want)
			}
		})
	}
}
