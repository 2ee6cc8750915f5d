package registry

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/parser"
	"github.com/xplshn/gasc/pkg/types"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(config.NewConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func resolve(t *testing.T, eng *Engine, src string) (types.DataType, error) {
	t.Helper()
	spec, err := parser.ParseDataType(src)
	if err != nil {
		t.Fatalf("ParseDataType(%q): %v", src, err)
	}
	return eng.DataTypeFromSpec(spec, nil)
}

func TestBuiltins(t *testing.T) {
	eng := newEngine(t)
	str := eng.ObjectType("string")
	if str == nil || str.Flags&types.FlagRef == 0 {
		t.Fatalf("string should be a registered ref type, got %+v", str)
	}
	if eng.StringFactory == 0 || eng.StringType != str {
		t.Errorf("string factory not wired: id %d type %v", eng.StringFactory, eng.StringType)
	}
	if f := eng.Function(eng.StringFactory); f.Bind != "string.constant" {
		t.Errorf("string factory binds %q", f.Bind)
	}
	if eng.Function(0) != nil || eng.Function(len(eng.Funcs)) != nil {
		t.Error("out of range function ids must resolve to nil")
	}
	if len(eng.GlobalFunctions("print")) != 1 {
		t.Errorf("print registered %d times", len(eng.GlobalFunctions("print")))
	}
	pi := eng.GlobalProperty("PI")
	if pi == nil || !pi.IsPureConstant || pi.Constant != types.DoubleConst(3.141592653589793) {
		t.Errorf("PI = %+v", pi)
	}
}

func TestDataTypeFromSpec(t *testing.T) {
	eng := newEngine(t)
	tests := []struct {
		src     string
		want    string
		wantErr string
	}{
		{src: "int", want: "int"},
		{src: "const double", want: "const double"},
		{src: "string@", want: "string@"},
		{src: "const string@ const", want: "const string@ const"},
		{src: "array<int>@", want: "array<int>@"},
		{src: "array<array<string@>@>", want: "array<array<string@>@>"},
		{src: "Missing", wantErr: "identifier 'Missing' is not a data type"},
		{src: "array", wantErr: "template 'array' needs a subtype"},
		{src: "string<int>", wantErr: "type 'string' is not a template"},
		{src: "vec2@", wantErr: "object handle is not supported for 'vec2'"},
		{src: "array<void>", wantErr: "'void' cannot be used as a template subtype"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			dt, err := resolve(t, eng, tt.src)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("got error %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := dt.Format(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplateInstances(t *testing.T) {
	eng := newEngine(t)
	a, err := resolve(t, eng, "array<int>")
	if err != nil {
		t.Fatal(err)
	}
	b, err := resolve(t, eng, "array<int>@")
	if err != nil {
		t.Fatal(err)
	}
	if a.Object != b.Object {
		t.Fatal("array<int> was instantiated twice")
	}

	inst := a.Object
	if inst.Flags&types.FlagTemplate != 0 || inst.Template != eng.ObjectType("array") {
		t.Errorf("instance flags %v template %v", inst.Flags, inst.Template)
	}
	if inst.SubType.Kind != types.Int {
		t.Errorf("subtype %s", inst.SubType.Format())
	}
	if eng.ObjectType("array<int>") != inst {
		t.Error("instance not registered by name")
	}

	var decls []string
	for _, id := range inst.Methods {
		decls = append(decls, eng.Function(id).Declaration())
	}
	want := []string{
		"uint array<int>::length() const",
		"void array<int>::resize(uint)",
		"void array<int>::insertLast(const int&in)",
		"void array<int>::removeLast()",
	}
	if diff := cmp.Diff(want, decls); diff != "" {
		t.Errorf("instance methods mismatch (-want +got):\n%s", diff)
	}
	if inst.Beh.Copy == 0 {
		t.Error("the instance should have a copy behaviour")
	}

	stubs := eng.TakePendingStubs()
	if len(stubs) != 2 {
		t.Fatalf("got %d pending factory stubs, want 2", len(stubs))
	}
	for _, s := range stubs {
		if s.Instance != inst {
			t.Errorf("stub %d belongs to %s", s.Func, s.Instance.Name)
		}
		if eng.Function(s.Func).Kind != types.ScriptFunc {
			t.Errorf("stub %d should be compiled as script code", s.Func)
		}
	}
	if inst.Beh.Factory != stubs[0].Func {
		t.Errorf("default factory %d, want %d", inst.Beh.Factory, stubs[0].Func)
	}
	if len(eng.TakePendingStubs()) != 0 {
		t.Error("stubs handed over twice")
	}
}

const hostYAML = `
types:
  - name: Node
    flags: [ref]
    behaviours:
      - {beh: factory, decl: "Node@ f()", bind: node.new}
      - {beh: addref, decl: "void f()", bind: object.addref}
      - {beh: release, decl: "void f()", bind: object.release}
    methods:
      - {decl: "Point at() const", bind: node.at}
  - name: Point
    flags: [value, pod]
    size: 8
    properties: ["int x", "int y"]
    behaviours:
      - {beh: construct, decl: "void f()", bind: point.new}
      - {beh: opAssign, decl: "Point& f(const Point &in)"}
    methods:
      - {decl: "int sum() const", bind: point.sum}
enums:
  - name: Color
    values: [{name: Red, value: 1}, {name: Green, value: 2}]
functions:
  - {decl: "void g(int &in, int &out, const int &, int &)"}
properties:
  - {decl: "const int MAX", value: 10}
  - {decl: "const double SCALE", value: 0.5}
  - {decl: "Point origin"}
`

func TestLoadHostInterface(t *testing.T) {
	eng := newEngine(t)
	if err := eng.LoadHostInterface(strings.NewReader(hostYAML)); err != nil {
		t.Fatalf("LoadHostInterface: %v", err)
	}

	point := eng.ObjectType("Point")
	if point == nil || point.Size != 8 || point.Flags != types.FlagValue|types.FlagPOD {
		t.Fatalf("Point registered as %+v", point)
	}
	if len(point.Props) != 2 || point.Property("y").Index != 1 {
		t.Errorf("Point properties %v", point.Props)
	}
	if point.Beh.Construct == 0 || point.Beh.Copy == 0 {
		t.Errorf("Point behaviours %+v", point.Beh)
	}
	if got := eng.Function(point.Beh.Copy).Bind; got != "Point& f(const Point &in)" {
		t.Errorf("an empty bind should default to the declaration, got %q", got)
	}
	// Node refers to Point before the document declares it
	if node := eng.ObjectType("Node"); node == nil || node.Beh.Factory == 0 {
		t.Errorf("Node registered as %+v", node)
	}

	g := eng.Function(eng.GlobalFunctions("g")[0])
	if diff := cmp.Diff([]types.ParamMode{types.ModeIn, types.ModeOut, types.ModeIn, types.ModeInOut}, g.Modes); diff != "" {
		t.Errorf("parameter modes mismatch (-want +got):\n%s", diff)
	}
	if got := g.Declaration(); got != "void g(const int&in, int&out, const int&in, int&)" {
		t.Errorf("g declared as %q", got)
	}

	maxProp := eng.GlobalProperty("MAX")
	if !maxProp.IsPureConstant || maxProp.Constant != types.IntConst(10) {
		t.Errorf("MAX = %+v", maxProp)
	}
	if scale := eng.GlobalProperty("SCALE"); scale.Constant != types.DoubleConst(0.5) {
		t.Errorf("SCALE = %v", scale.Constant)
	}
	if origin := eng.GlobalProperty("origin"); origin.IsPureConstant || origin.Type.Object != point {
		t.Errorf("origin = %+v", origin)
	}

	dt, value, found := eng.EnumValue("Green", nil)
	if found != 1 || value != 2 || dt.Object != eng.ObjectType("Color") {
		t.Errorf("Green resolved to %s=%d (found %d)", dt.Format(), value, found)
	}
}

func TestEnumAmbiguity(t *testing.T) {
	eng := newEngine(t)
	err := eng.LoadHostInterface(strings.NewReader(`
enums:
  - {name: A, values: [{name: X, value: 1}]}
  - {name: B, values: [{name: X, value: 2}, {name: Y, value: 3}]}
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, found := eng.EnumValue("X", nil); found != 2 {
		t.Errorf("X found %d times, want ambiguous", found)
	}
	if _, v, found := eng.EnumValue("X", eng.ObjectType("B")); found != 1 || v != 2 {
		t.Errorf("B::X = %d (found %d)", v, found)
	}
	if _, _, found := eng.EnumValue("Z", nil); found != 0 {
		t.Errorf("Z found %d times", found)
	}
}

func TestHostInterfaceErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown flag", "types: [{name: T, flags: [shiny]}]", "type T: unknown flag 'shiny'"},
		{"duplicate type", "types: [{name: string, flags: [ref]}]", "type 'string' is already registered"},
		{"reserved name", "types: [{name: int, flags: [value]}]", "'int' is a reserved type name"},
		{"no kind", "types: [{name: T}]", "type 'T' must be either a ref or a value type"},
		{"ref constructor", "types: [{name: T, flags: [ref], behaviours: [{beh: construct, decl: 'void f()'}]}]", "ref type 'T' must use factories, not constructors"},
		{"unknown field", "functionz: []", "field functionz not found"},
		{"valued mutable global", "properties: [{decl: 'int n', value: 1}]", "only const primitive globals can have a value"},
		{"bad global behaviour", "operators: [{beh: opAdd, decl: 'int f(int)'}]", "global behaviour 'opAdd' must take two parameters"},
		{"bad declaration", "functions: [{decl: 'void f('}]", "Expected a data type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newEngine(t).LoadHostInterface(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestTypeID(t *testing.T) {
	eng := newEngine(t)
	str := eng.ObjectType("string")
	if got, want := TypeID(types.ObjectOf(str, false)), 64+str.ID; got != want {
		t.Errorf("string id %d, want %d", got, want)
	}
	if got, want := TypeID(types.HandleOf(str, false)), (64+str.ID)|1<<20; got != want {
		t.Errorf("string@ id %d, want %d", got, want)
	}
	if got := TypeID(types.Primitive(types.Double, false)); got != int(types.Double) {
		t.Errorf("double id %d", got)
	}
}
