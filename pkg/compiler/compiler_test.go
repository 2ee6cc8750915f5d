package compiler_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/util"
	"github.com/xplshn/gasc/pkg/vm"
)

func compile(t *testing.T, src string) (*builder.Module, *util.Reporter, error) {
	t.Helper()
	cfg := config.NewConfig()
	eng, err := registry.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rep := util.NewReporter(cfg, nil, nil)
	mod, err := builder.CompileSource(eng, rep, "test.as", src)
	return mod, rep, err
}

func mustCompile(t *testing.T, src string) (*builder.Module, *util.Reporter) {
	t.Helper()
	mod, rep, err := compile(t, src)
	if err != nil {
		t.Fatalf("compile: %v: %v", err, texts(rep.Errors()))
	}
	return mod, rep
}

func texts(msgs []util.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func run(t *testing.T, mod *builder.Module, decl string, args ...any) vm.Value {
	t.Helper()
	m := vm.New(mod, nil)
	if err := m.InitGlobals(); err != nil {
		t.Fatalf("InitGlobals: %v", err)
	}
	v, err := m.CallDecl(decl, args...)
	if err != nil {
		t.Fatalf("%s: %v", decl, err)
	}
	return v
}

func TestUninitializedVariableWarns(t *testing.T) {
	mod, rep := mustCompile(t, `
int f() {
	int x;
	int y = x + 1;
	return x + y;
}`)
	want := []string{"'x' is not initialized."}
	if diff := cmp.Diff(want, texts(rep.Warnings())); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if _, err := mod.FindFunction("int f()"); err != nil {
		t.Error(err)
	}
}

func TestConstantGlobalsFold(t *testing.T) {
	mod, _ := mustCompile(t, `
const int C = 5;
int f() { return C * 2 + 1; }
`)
	f, err := mod.FindFunction("int f()")
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range mod.Code(f.ID).Code {
		if in.Op == bytecode.PGA || in.Op == bytecode.LDG {
			t.Errorf("f reads the global: %s", mod.Code(f.ID).Listing(mod.Engine))
			break
		}
	}
	if got := run(t, mod, "int f()").Int(); got != 11 {
		t.Errorf("f() = %d, want 11", got)
	}
}

func TestOutArguments(t *testing.T) {
	mod, rep := mustCompile(t, `
void set(int &out x) { x = 7; }
int main() {
	int y = 0;
	set(y);
	set(3);
	set(y + 1);
	return y;
}`)
	discarded := "Argument cannot be assigned. Output will be discarded."
	want := []string{discarded, discarded}
	if diff := cmp.Diff(want, texts(rep.Warnings())); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
	if got := run(t, mod, "int main()").Int(); got != 7 {
		t.Errorf("main() = %d, want 7", got)
	}
}

func TestOverloadResolution(t *testing.T) {
	mod, _ := mustCompile(t, `
int f(int a) { return 1; }
int f(int8 a) { return 2; }
int f(double a) { return 3; }
int wide() { int v = 3; return f(v); }
int narrow() { int8 v = 3; return f(v); }
int real() { float v = 3; return f(v); }
`)
	for decl, want := range map[string]int64{"int wide()": 1, "int narrow()": 2, "int real()": 3} {
		if got := run(t, mod, decl).Int(); got != want {
			t.Errorf("%s = %d, want %d", decl, got, want)
		}
	}
}

func TestOperatorOperandsKeepTheirSlots(t *testing.T) {
	mod, _ := mustCompile(t, `
string@ tag(const string &in n) { return n + "-"; }
int pair(int a, int b) { return a * 10 + b; }
int f() {
	string k = tag("x") + "c";
	string m = "a" + tag("b") + tag("c");
	return int(k.length()) * 100 + int(m.length()) * 10 + pair(int(tag("y").length()), 3);
}`)
	if got := run(t, mod, "int f()").Int(); got != 373 {
		t.Errorf("f() = %d, want 373", got)
	}
}

func TestClassWithoutDefaultConstructor(t *testing.T) {
	mod, _ := mustCompile(t, `
class P {
	int n;
	P(int v) { n = v; }
}
int f() {
	P p(3);
	P@ h = P(5);
	return p.n * 10 + h.n;
}`)
	if got := run(t, mod, "int f()").Int(); got != 35 {
		t.Errorf("f() = %d, want 35", got)
	}

	_, rep, err := compile(t, "class P { P(int v) {} } void f() { P p; }")
	if !errors.Is(err, builder.ErrBuild) {
		t.Fatalf("got %v, want a build error", err)
	}
	want := []string{"No default constructor for object of type 'P'."}
	if diff := cmp.Diff(want, texts(rep.Errors())); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"divide by zero", "int f() { return 3 / 0; }", "Divide by zero"},
		{"modulo by zero", "int f(int a) { return a % 0; }", "Divide by zero"},
		{"undeclared", "int f() { return z; }", "'z' is not declared"},
		{"missing return", "int f(int a) { if (a > 0) return 1; }", "Not all paths return a value"},
		{"reference return", "int &f(int a) { return a; }", "Script functions can't return references"},
		{"ambiguous call", "void h(float a) {} void h(double a) {} void f() { int v = 1; h(v); }", "Multiple matching signatures to 'h(int)'"},
		{"no match", "void h(int a, int b) {} void f() { h(1); }", "No matching signatures to 'h("},
		{"duplicate case", "void f(int a) { switch (a) { case 1: break; case 1: break; } }", "Duplicate switch case"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rep, err := compile(t, tt.src)
			if !errors.Is(err, builder.ErrBuild) {
				t.Fatalf("got %v, want a build error", err)
			}
			errs := texts(rep.Errors())
			found := false
			for _, e := range errs {
				if strings.Contains(e, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %q do not mention %q", errs, tt.want)
			}
		})
	}
}

func TestUnreachableCodeWarnsOnce(t *testing.T) {
	_, rep := mustCompile(t, `
int f() {
	return 1;
	int a = 2;
	int b = 3;
}`)
	if diff := cmp.Diff([]string{"Unreachable code"}, texts(rep.Warnings())); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledWarningIsSilent(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUninitialized, false)
	eng, err := registry.NewEngine(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rep := util.NewReporter(cfg, nil, nil)
	if _, err := builder.CompileSource(eng, rep, "test.as", "int f() { int x; return x; }"); err != nil {
		t.Fatal(err)
	}
	if rep.WarningCount() != 0 {
		t.Errorf("got warnings %q", texts(rep.Warnings()))
	}
}

func TestSwitchWithoutDefaultFallsThrough(t *testing.T) {
	mod, _ := mustCompile(t, `
int pick(int v) {
	int r = -1;
	switch (v) {
	case 0: case 1: r = 10; break;
	case 2: r = 20;
	case 3: r += 1; break;
	case 4: case 5: case 6: case 7: case 8: r = 80; break;
	}
	return r;
}`)
	want := map[int]int64{0: 10, 1: 10, 2: 21, 3: 0, 6: 80, 9: -1, -4: -1}
	for arg, w := range want {
		if got := run(t, mod, "int pick(int)", arg).Int(); got != w {
			t.Errorf("pick(%d) = %d, want %d", arg, got, w)
		}
	}
}
