package builder_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/util"
	"github.com/xplshn/gasc/pkg/vm"
)

func build(t *testing.T, cfg *config.Config, src string) (*builder.Module, *util.Reporter, error) {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	eng, err := registry.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rep := util.NewReporter(cfg, nil, nil)
	mod, err := builder.CompileSource(eng, rep, "test.as", src)
	return mod, rep, err
}

func errorTexts(rep *util.Reporter) []string {
	var out []string
	for _, m := range rep.Errors() {
		out = append(out, m.Text)
	}
	return out
}

const sample = `
const string greeting = "hi";
int total = 0;
class Counter {
	int n;
	Counter() { n = 0; }
	void bump() { n++; total++; }
}
int add(int a, int b) { return a + b; }
string@ twice() { return "hi" + "hi"; }
void main() {
	Counter c;
	c.bump();
	print(greeting + add(1, 2));
}
`

func TestFindFunction(t *testing.T) {
	mod, _, err := build(t, nil, sample)
	if err != nil {
		t.Fatal(err)
	}
	f, err := mod.FindFunction("int add(int, int)")
	if err != nil {
		t.Fatal(err)
	}
	if mod.Code(f.ID) == nil || f.Declaration() != "int add(int, int)" {
		t.Errorf("add resolved to %s", f.Declaration())
	}

	for _, decl := range []string{"int add(int)", "double add(int, int)", "void missing()"} {
		if _, err := mod.FindFunction(decl); err == nil || !strings.Contains(err.Error(), "no function matches") {
			t.Errorf("FindFunction(%q) = %v", decl, err)
		}
	}
	if _, err := mod.FindFunction("void print(const string &in)"); err == nil {
		t.Error("host functions have no script code to run")
	}
	if _, err := mod.FindFunction("int add(int,"); err == nil {
		t.Error("a malformed declaration should not resolve")
	}
}

func TestListingIsDeterministic(t *testing.T) {
	first, _, err := build(t, nil, sample)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := build(t, nil, sample)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Listing(), second.Listing()); diff != "" {
		t.Errorf("listings differ between builds:\n%s", diff)
	}
	for id, fn := range first.Functions {
		if other := second.Code(id); other == nil || other.Checksum() != fn.Checksum() {
			t.Errorf("function %d compiled differently", id)
		}
	}
	if !strings.Contains(first.Listing(), "int add(int, int)") {
		t.Errorf("listing does not name add:\n%s", first.Listing())
	}
}

func TestStringPool(t *testing.T) {
	mod, _, err := build(t, nil, sample)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"hi"}, mod.Strings); diff != "" {
		t.Errorf("string pool mismatch (-want +got):\n%s", diff)
	}
}

func TestGlobalInitializationOrder(t *testing.T) {
	mod, rep, err := build(t, nil, `
int a = b + 1;
int b = c * 2;
int c = 3;
`)
	if err != nil {
		t.Fatalf("%v: %v", err, errorTexts(rep))
	}
	if len(mod.Inits) != 3 {
		t.Fatalf("got %d initializers", len(mod.Inits))
	}
	m := vm.New(mod, nil)
	if err := m.InitGlobals(); err != nil {
		t.Fatal(err)
	}
	for name, want := range map[string]int32{"a": 7, "b": 6, "c": 3} {
		cell, ok := m.Global(name)
		if !ok || int32(cell.V) != want {
			t.Errorf("%s = %d (found %v), want %d", name, int32(cell.V), ok, want)
		}
	}
}

func TestClassLayout(t *testing.T) {
	mod, rep, err := build(t, nil, `
class Base { int a; double b; }
class Derived : Base { int c; }
`)
	if err != nil {
		t.Fatalf("%v: %v", err, errorTexts(rep))
	}
	base, derived := mod.Engine.ObjectType("Base"), mod.Engine.ObjectType("Derived")
	if derived.Base != base {
		t.Fatalf("Derived inherits from %v", derived.Base)
	}
	var names []string
	for _, p := range derived.Props {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("Derived properties mismatch (-want +got):\n%s", diff)
	}
	if derived.Property("a").Index != base.Property("a").Index {
		t.Error("inherited members must keep their index")
	}
}

func TestBuildErrors(t *testing.T) {
	noClasses := config.NewConfig()
	noClasses.SetFeature(config.FeatClasses, false)

	tests := []struct {
		name string
		cfg  *config.Config
		src  string
		want string
	}{
		{"inheritance cycle", nil, "class A : B {} class B : A {}", "Illegal inheritance cycle involving"},
		{"unknown base", nil, "class A : Nope {}", "Identifier 'Nope' is not a data type"},
		{"host base", nil, "class A : string {}", "Can't inherit from 'string'"},
		{"duplicate function", nil, "void f() {} void f() {}", "A function with the same name and parameters already exists"},
		{"classes disabled", noClasses, "class A {}", "Script classes are disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rep, err := build(t, tt.cfg, tt.src)
			if !errors.Is(err, builder.ErrBuild) {
				t.Fatalf("got %v, want a build error", err)
			}
			found := false
			for _, text := range errorTexts(rep) {
				found = found || strings.Contains(text, tt.want)
			}
			if !found {
				t.Errorf("errors %q do not mention %q", errorTexts(rep), tt.want)
			}
		})
	}
}
