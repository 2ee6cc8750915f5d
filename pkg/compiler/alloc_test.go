package compiler

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/lexer"
	"github.com/xplshn/gasc/pkg/parser"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/types"
	"github.com/xplshn/gasc/pkg/util"
)

// testBuilder serves a single function straight from an engine, with no script globals.
type testBuilder struct {
	*registry.Engine
	strings []string
}

func (b *testBuilder) DataType(spec *ast.TypeSpec) (types.DataType, error) {
	return b.DataTypeFromSpec(spec, nil)
}

func (b *testBuilder) GlobalProperty(name string) (*types.GlobalProperty, bool) {
	prop := b.Engine.GlobalProperty(name)
	return prop, prop != nil
}

func (b *testBuilder) GlobalBehaviours() []types.BehaviourFunc { return b.Engine.GlobalBehaviours }
func (b *testBuilder) StringFactory() int                      { return b.Engine.StringFactory }
func (b *testBuilder) TypeID(dt types.DataType) int            { return registry.TypeID(dt) }

func (b *testBuilder) AddString(s string) int {
	b.strings = append(b.strings, s)
	return len(b.strings) - 1
}

func compileOne(t *testing.T, src string, hook func(c *Compiler)) *bytecode.Function {
	t.Helper()
	cfg := config.NewConfig()
	eng, err := registry.NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rep := util.NewReporter(cfg, nil, nil)
	content := []rune(src)
	idx := rep.AddFile("test.as", content)
	root, err := parser.NewParser(lexer.NewLexer(content, idx, rep).Tokenize(), rep).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Every function is declared, the last one is compiled
	var node *ast.Node
	var f *types.Function
	for _, node = range root.Data.(ast.ScriptNode).Decls {
		if f, err = eng.FunctionFromDecl(node, nil, nil); err != nil {
			t.Fatal(err)
		}
		f.Kind = types.ScriptFunc
		eng.AddGlobalFunction(f)
	}

	c := newCompiler(&testBuilder{Engine: eng}, rep)
	c.afterStatement = hook
	fn, err := c.compileFunction(f, node)
	if err != nil {
		t.Fatalf("compile: %v: %v", err, rep.Errors())
	}
	return fn
}

func TestTemporariesReleasedAfterEachStatement(t *testing.T) {
	src := `
int f(int a) {
	int b = a * 2 + 1;
	double d = b / 2.0 + a;
	if (a > b && d < 10.0) b = a;
	while (b > 0) { b -= int(d) + 1; }
	string s = "n=" + b;
	return b + int(d * 3) + s.length();
}`
	statements := 0
	compileOne(t, src, func(c *Compiler) {
		statements++
		if len(c.alloc.tempVars) != 0 {
			t.Errorf("statement %d left temporaries at offsets %v", statements, c.alloc.tempVars)
		}
	})
	if statements < 7 {
		t.Errorf("hook ran for %d statements", statements)
	}
}

// checkSlots verifies that every slot is either free or bound to a name in scope, never both.
func checkSlots(t *testing.T, c *Compiler, statement int) {
	t.Helper()
	var all, owned []int
	for n := range c.alloc.slots {
		all = append(all, c.alloc.offset(n))
	}
	owned = append(owned, c.alloc.freeOffsets()...)
	for _, rec := range c.scopes.records {
		for _, v := range rec.vars {
			if v.offset > 0 && v.offset != dummyOffset {
				owned = append(owned, v.offset)
			}
		}
	}
	sort.Ints(all)
	sort.Ints(owned)
	if diff := cmp.Diff(all, owned); diff != "" {
		t.Errorf("statement %d: slots are not exactly free or bound (-all +free and bound):\n%s", statement, diff)
	}
}

func TestSlotsAreFreeOrBound(t *testing.T) {
	src := `
void set(int &out x) {}
void twice(int &inout x) {}
void name(string &out s) {}
string@ tag(const string &in s) { return s; }
int f(int a) {
	int total = 0;
	set(total);
	set(a + 1);
	set(3);
	twice(total);
	string s;
	name(s);
	s = tag("x") + "c";
	for (int i = 0; i < a; i++) {
		double d = i * 0.5;
		if (i % 2 == 0) continue;
		total += int(d) + int(s.length());
		while (total > 100) {
			string t = "t" + total;
			if (t.length() > 3) break;
			total -= 10;
		}
	}
	switch (a) {
	case 1: { int k = 2; total *= k; } break;
	default: total--;
	}
	return total;
}`
	statements := 0
	compileOne(t, src, func(c *Compiler) {
		statements++
		checkSlots(t, c, statements)
	})
	if statements < 15 {
		t.Errorf("hook ran for %d statements", statements)
	}
}

func TestStringLiteralCompiles(t *testing.T) {
	fn := compileOne(t, `void f() { string s = "hi"; }`, nil)
	str := 0
	for _, in := range fn.Code {
		if in.Op == bytecode.STR {
			str++
		}
	}
	if str != 1 {
		t.Errorf("got %d STR instructions", str)
	}
}

func TestSiblingScopesShareSlots(t *testing.T) {
	one := compileOne(t, `void f(int a) { { int x = a; double y = x; } }`, nil)
	two := compileOne(t, `void f(int a) { { int x = a; double y = x; } { int z = a; double w = z; } }`, nil)
	if one.VariableSpace != two.VariableSpace {
		t.Errorf("variable space %d for one scope, %d for two sibling scopes", one.VariableSpace, two.VariableSpace)
	}
}

func TestAllocatorReusesOnlyMatchingSlots(t *testing.T) {
	a := allocator{ptr: 2}
	intT := types.Primitive(types.Int, false)
	doubleT := types.Primitive(types.Double, false)

	x := a.allocate(intT, false)
	y := a.allocate(doubleT, true)
	if !a.isTemporary(y) || a.isTemporary(x) {
		t.Fatalf("temporary flags wrong for %d and %d", x, y)
	}
	a.deallocate(y)
	if a.isTemporary(y) {
		t.Error("a freed slot is still temporary")
	}

	// The only free slot is a two-dword temporary
	if got := a.allocate(types.Primitive(types.Int8, false), false); got == y {
		t.Errorf("non-temporary variable got temporary slot %d", got)
	}
	if got := a.allocate(types.Primitive(types.Int64, false), true); got != y {
		t.Errorf("two-dword temporary got %d, want reused %d", got, y)
	}
	if got := a.allocateNotIn(doubleT, true, nil); got == y {
		t.Error("slot handed out twice")
	}
	if a.variableSpace() != 1+2+1+2 {
		t.Errorf("variable space %d", a.variableSpace())
	}
}
