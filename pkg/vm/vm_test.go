package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/builder"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/util"
)

func build(t *testing.T, src string) (*Machine, *bytes.Buffer) {
	t.Helper()
	cfg := config.NewConfig()
	eng, err := registry.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	var diag bytes.Buffer
	rep := util.NewReporter(cfg, &diag, nil)
	mod, err := builder.CompileSource(eng, rep, "test.as", src)
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, diag.String())
	}
	var out bytes.Buffer
	m := New(mod, &out)
	if err := m.InitGlobals(); err != nil {
		t.Fatalf("InitGlobals: %v", err)
	}
	return m, &out
}

func call(t *testing.T, m *Machine, decl string, args ...any) Value {
	t.Helper()
	v, err := m.CallDecl(decl, args...)
	if err != nil {
		t.Fatalf("%s: %v", decl, err)
	}
	return v
}

func TestArithmetic(t *testing.T) {
	m, _ := build(t, `
int add(int a, int b) { return a + b; }
int64 mul64(int64 a, int64 b) { return a * b; }
uint udiv(uint a, uint b) { return a / b; }
double half(double d) { return d / 2; }
int neg(int a) { return -a; }
int mix(int a) { return (a << 2) | (a & 1) ^ 8; }
int main() { return add(2, 3); }
`)
	tests := []struct {
		decl string
		args []any
		want string
	}{
		{"int main()", nil, "5"},
		{"int add(int, int)", []any{-7, 3}, "-4"},
		{"int64 mul64(int64, int64)", []any{int64(1) << 33, 3}, "25769803776"},
		{"uint udiv(uint, uint)", []any{uint(4000000000), uint(2)}, "2000000000"},
		{"double half(double)", []any{5.0}, "2.5"},
		{"int neg(int)", []any{42}, "-42"},
		{"int mix(int)", []any{3}, "13"},
	}
	for _, tt := range tests {
		got := call(t, m, tt.decl, tt.args...).String()
		if got != tt.want {
			t.Errorf("%s%v = %s, want %s", tt.decl, tt.args, got, tt.want)
		}
	}
}

func TestControlFlow(t *testing.T) {
	m, _ := build(t, `
int fib(int n) {
	if (n < 2) return n;
	return fib(n - 1) + fib(n - 2);
}
int sumTo(int n) {
	int s = 0;
	for (int i = 1; i <= n; i++) {
		if (i % 2 == 0) continue;
		s += i;
	}
	return s;
}
int countDown(int n) {
	int steps = 0;
	do {
		n--;
		steps++;
	} while (n > 0);
	return steps;
}
int firstOver(int limit) {
	int i = 0;
	while (true) {
		if (i * i > limit) break;
		i++;
	}
	return i;
}
bool logic(int a, int b) { return a > 0 && b > 0 || a == b; }
int pick(bool c) { return c ? 10 : 20; }
`)
	tests := []struct {
		decl string
		args []any
		want string
	}{
		{"int fib(int)", []any{10}, "55"},
		{"int sumTo(int)", []any{10}, "25"},
		{"int countDown(int)", []any{3}, "3"},
		{"int countDown(int)", []any{0}, "1"},
		{"int firstOver(int)", []any{50}, "8"},
		{"bool logic(int, int)", []any{1, 2}, "true"},
		{"bool logic(int, int)", []any{-1, -1}, "true"},
		{"bool logic(int, int)", []any{-1, 2}, "false"},
		{"int pick(bool)", []any{true}, "10"},
		{"int pick(bool)", []any{false}, "20"},
	}
	for _, tt := range tests {
		got := call(t, m, tt.decl, tt.args...).String()
		if got != tt.want {
			t.Errorf("%s%v = %s, want %s", tt.decl, tt.args, got, tt.want)
		}
	}
}

// The jump table built for a dense run of cases must route exactly like a comparison chain.
func TestSwitchMatchesIfChain(t *testing.T) {
	m, _ := build(t, `
int viaSwitch(int v) {
	int r = -1;
	switch (v) {
	case 0: r = 10; break;
	case 1: r = 11; break;
	case 2: r = 12; break;
	case 3: r = 13; break;
	case 4: r = 14; break;
	case 5: r = 15; break;
	case 6: r = 16; break;
	case 100: r = 200; break;
	}
	return r;
}
int viaIf(int v) {
	if (v == 0) return 10;
	if (v == 1) return 11;
	if (v == 2) return 12;
	if (v == 3) return 13;
	if (v == 4) return 14;
	if (v == 5) return 15;
	if (v == 6) return 16;
	if (v == 100) return 200;
	return -1;
}
int fallThrough(int v) {
	int r = 0;
	switch (v) {
	case 1:
	case 2: r += 1;
	case 3: r += 10; break;
	default: r = -5;
	}
	return r;
}
`)
	for v := -3; v <= 103; v++ {
		a := call(t, m, "int viaSwitch(int)", v).Int()
		b := call(t, m, "int viaIf(int)", v).Int()
		if a != b {
			t.Errorf("v=%d: switch gives %d, if chain gives %d", v, a, b)
		}
	}

	var got []int64
	for _, v := range []int{1, 2, 3, 4} {
		got = append(got, call(t, m, "int fallThrough(int)", v).Int())
	}
	if diff := cmp.Diff([]int64{11, 11, 10, -5}, got); diff != "" {
		t.Errorf("fall through (-want +got):\n%s", diff)
	}
}

// A switch without default leaves the value untouched for unmatched input.
func TestSwitchWithoutDefault(t *testing.T) {
	m, _ := build(t, `
int route(int v) {
	int r = 0;
	switch (v) {
	case 1: r = 1; break;
	case 2: r = 2; break;
	}
	return r;
}
`)
	if got := call(t, m, "int route(int)", 5).Int(); got != 0 {
		t.Errorf("route(5) = %d, want 0", got)
	}
	if got := call(t, m, "int route(int)", 2).Int(); got != 2 {
		t.Errorf("route(2) = %d, want 2", got)
	}
}

func TestGlobals(t *testing.T) {
	m, _ := build(t, `
const int C = 5;
int counter = C * 2;
double ratio = PI / 2;
int next() { counter++; return counter; }
int usesConst() { return C + 1; }
`)
	if got := call(t, m, "int next()").Int(); got != 11 {
		t.Errorf("first next() = %d, want 11", got)
	}
	if got := call(t, m, "int next()").Int(); got != 12 {
		t.Errorf("second next() = %d, want 12", got)
	}
	if got := call(t, m, "int usesConst()").Int(); got != 6 {
		t.Errorf("usesConst() = %d, want 6", got)
	}
	cell, ok := m.Global("counter")
	if !ok || int32(cell.V) != 12 {
		t.Errorf("global counter = %v (found %v), want 12", cell, ok)
	}
}

func TestOutParameter(t *testing.T) {
	m, _ := build(t, `
void set(int &out x) { x = 7; }
void twice(int &inout x) { x *= 2; }
int main() {
	int y = 0;
	set(y);
	twice(y);
	return y;
}
`)
	if got := call(t, m, "int main()").Int(); got != 14 {
		t.Errorf("main() = %d, want 14", got)
	}
}

func TestStrings(t *testing.T) {
	m, out := build(t, `
string@ greet(const string &in name) {
	string s = "hello, " + name;
	s += "!";
	return s;
}
void main() {
	print(greet("world") + "\n");
	print("n=" + 42 + "\n");
	string a = "abc";
	if (a == "abc" && a != "abd" && a < "abd")
		print("cmp ok\n");
	print(a.substr(1, 1) + intToString(a.length()) + "\n");
}
`)
	call(t, m, "void main()")
	want := "hello, world!\nn=42\ncmp ok\nb3\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}

	v := call(t, m, "string@ greet(const string &in)", "go")
	if v.String() != "hello, go!" {
		t.Errorf("greet = %q", v.String())
	}
	if err := m.Release(v.Object); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestArrays(t *testing.T) {
	m, _ := build(t, `
int sum() {
	array<int> a = {1, 2, 3};
	a.insertLast(4);
	int s = 0;
	for (uint i = 0; i < a.length(); i++)
		s += a[i];
	return s;
}
int resized() {
	array<int> a(3);
	a[2] = 9;
	a.resize(5);
	a.removeLast();
	return int(a.length()) * 10 + a[2];
}
uint names() {
	array<string> n;
	n.insertLast("a");
	n.insertLast("bc");
	array<string> copy = n;
	copy[0] = "xyz";
	return n[0].length() + copy[0].length() * 10;
}
`)
	if got := call(t, m, "int sum()").Int(); got != 10 {
		t.Errorf("sum() = %d, want 10", got)
	}
	if got := call(t, m, "int resized()").Int(); got != 49 {
		t.Errorf("resized() = %d, want 49", got)
	}
	if got := call(t, m, "uint names()").Uint(); got != 31 {
		t.Errorf("names() = %d, want 31", got)
	}
}

func TestValueType(t *testing.T) {
	m, _ := build(t, `
float len() {
	vec2 v(3, 4);
	return v.length();
}
float sum() {
	vec2 a(1, 2);
	vec2 b = a;
	b += a;
	vec2 c = -(a + b);
	return c.x * 10 + c.y;
}
`)
	if got := call(t, m, "float len()").Float(); got != 5 {
		t.Errorf("len() = %v, want 5", got)
	}
	if got := call(t, m, "float sum()").Float(); got != -36 {
		t.Errorf("sum() = %v, want -36", got)
	}
}

func TestClasses(t *testing.T) {
	m, _ := build(t, `
class Counter {
	int n;
	Counter() { n = 1; }
	Counter(int start) { n = start; }
	void bump() { n++; }
	int get() const { return n; }
}
class Shape {
	int sides() { return 0; }
	int describe() { return sides() * 100; }
}
class Square : Shape {
	int sides() { return 4; }
}
int counters() {
	Counter a;
	Counter b(10);
	a.bump();
	b.bump();
	Counter@ h = @b;
	h.bump();
	return a.get() * 100 + b.get();
}
int virtualCall() {
	Shape@ s = Square();
	return s.describe() + s.sides();
}
int downcast() {
	Shape@ s = Square();
	Square@ q = cast<Square>(s);
	Shape@ plain = Shape();
	Square@ none = cast<Square>(plain);
	return (q is null ? 0 : 1) + (none is null ? 10 : 0);
}
`)
	tests := []struct {
		decl string
		want int64
	}{
		{"int counters()", 212},
		{"int virtualCall()", 404},
		{"int downcast()", 11},
	}
	for _, tt := range tests {
		if got := call(t, m, tt.decl).Int(); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.decl, got, tt.want)
		}
	}
}

func TestDestructorOrder(t *testing.T) {
	m, out := build(t, `
class Tracer {
	string name;
	Tracer(const string &in n) { name = n; print("+" + name + " "); }
	~Tracer() { print("-" + name + " "); }
}
void scopes() {
	Tracer a("a");
	{
		Tracer b("b");
	}
	Tracer c("c");
}
int early(bool leave) {
	Tracer a("x");
	if (leave) {
		Tracer b("y");
		return 1;
	}
	return 2;
}
void loops() {
	for (int i = 0; i < 3; i++) {
		Tracer a("a" + i);
		if (i == 0) continue;
		{
			Tracer b("b" + i);
			if (i == 1) continue;
			Tracer c("c" + i);
			break;
		}
	}
	print("| ");
}
int nested() {
	int n = 0;
	while (true) {
		Tracer o("o");
		while (true) {
			Tracer i("i");
			n++;
			if (n < 2) continue;
			break;
		}
		if (n >= 3) break;
	}
	return n;
}
void handles() {
	Tracer@ h = Tracer("h");
	Tracer@ g = h;
	@h = null;
	print("| ");
	@g = null;
	print("| ");
}
`)
	tests := []struct {
		decl string
		args []any
		want string
	}{
		{"void scopes()", nil, "+a +b -b +c -c -a "},
		{"int early(bool)", []any{true}, "+x +y -y -x "},
		{"int early(bool)", []any{false}, "+x -x "},
		{"void handles()", nil, "+h | -h | "},
		{"void loops()", nil, "+a0 -a0 +a1 +b1 -b1 -a1 +a2 +b2 +c2 -c2 -b2 -a2 | "},
		{"int nested()", nil, "+o +i -i +i -i -o +o +i -i -o "},
	}
	for _, tt := range tests {
		out.Reset()
		call(t, m, tt.decl, tt.args...)
		if diff := cmp.Diff(tt.want, out.String()); diff != "" {
			t.Errorf("%s%v (-want +got):\n%s", tt.decl, tt.args, diff)
		}
	}
}

func TestExceptions(t *testing.T) {
	m, _ := build(t, `
int div(int a) {
	return 10 / a;
}
class Node { int v; }
int deref() {
	Node@ n;
	return n.v;
}
int oob() {
	array<int> a(2);
	return a[5];
}
`)
	tests := []struct {
		decl string
		args []any
		want Exception
	}{
		{"int div(int)", []any{0}, Exception{Message: ErrDivideByZero, Function: "int div(int)", Line: 3}},
		{"int deref()", nil, Exception{Message: ErrNullPointer, Function: "int deref()", Line: 8}},
		{"int oob()", nil, Exception{Message: ErrOutOfBounds, Function: "int oob()", Line: 12}},
	}
	for _, tt := range tests {
		_, err := m.CallDecl(tt.decl, tt.args...)
		var ex *Exception
		if !errors.As(err, &ex) {
			t.Errorf("%s: got %v, want an exception", tt.decl, err)
			continue
		}
		if diff := cmp.Diff(tt.want, *ex); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.decl, diff)
		}
	}

	// The machine stays usable after an exception
	if got := call(t, m, "int div(int)", 5).Int(); got != 2 {
		t.Errorf("div(5) = %d, want 2", got)
	}
}

func TestSuspendAborts(t *testing.T) {
	m, _ := build(t, `
int spin() {
	int i = 0;
	while (true) { i++; }
	return i;
}
`)
	n := 0
	m.Suspend = func() error {
		n++
		if n == 100 {
			return errors.New("budget exhausted")
		}
		return nil
	}
	_, err := m.CallDecl("int spin()")
	var ex *Exception
	if !errors.As(err, &ex) {
		t.Fatalf("got %v, want an exception", err)
	}
	if want := ErrAborted + ": budget exhausted"; ex.Message != want {
		t.Errorf("message = %q, want %q", ex.Message, want)
	}
	if n != 100 {
		t.Errorf("suspend ran %d times, want 100", n)
	}
}

func TestStackOverflow(t *testing.T) {
	m, _ := build(t, `
int down(int n) { return down(n + 1) + 1; }
`)
	_, err := m.CallDecl("int down(int)", 0)
	var ex *Exception
	if !errors.As(err, &ex) || ex.Message != ErrStackOverflow {
		t.Fatalf("got %v, want a stack overflow", err)
	}
}

func TestSetStackSize(t *testing.T) {
	m, _ := build(t, `
int depth(int n) { if (n == 0) return 0; return depth(n - 1) + 1; }
`)
	if got := call(t, m, "int depth(int)", 500).Int(); got != 500 {
		t.Fatalf("depth(500) = %d", got)
	}
	if err := m.SetStackSize(8); err == nil {
		t.Error("a stack smaller than the safety margin should be refused")
	}
	if err := m.SetStackSize(64); err != nil {
		t.Fatal(err)
	}
	_, err := m.CallDecl("int depth(int)", 500)
	var ex *Exception
	if !errors.As(err, &ex) || ex.Message != ErrStackOverflow {
		t.Fatalf("got %v, want a stack overflow", err)
	}
}

func TestHostBind(t *testing.T) {
	m, out := build(t, `
void main() { print("intercepted"); }
`)
	var seen []string
	m.Bind("print", func(c *Call) error {
		s, err := c.String(0)
		seen = append(seen, s)
		return err
	})
	call(t, m, "void main()")
	if diff := cmp.Diff([]string{"intercepted"}, seen); diff != "" {
		t.Errorf("bound print (-want +got):\n%s", diff)
	}
	if out.Len() != 0 {
		t.Errorf("default print still wrote %q", out.String())
	}
}

func TestDump(t *testing.T) {
	m, out := build(t, `
void main() {
	int i = -3;
	string s = "hi";
	dump(i);
	dump(s);
}
`)
	call(t, m, "void main()")
	want := "int: -3\nstring: \"hi\"\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("dump (-want +got):\n%s", diff)
	}
}
