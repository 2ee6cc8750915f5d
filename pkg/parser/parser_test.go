package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/lexer"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/util"
)

func parse(t *testing.T, src string) (*ast.Node, *util.Reporter, error) {
	t.Helper()
	rep := util.NewReporter(nil, nil, nil)
	idx := rep.AddFile("test.as", []rune(src))
	toks := lexer.NewLexer([]rune(src), idx, rep).Tokenize()
	root, err := NewParser(toks, rep).Parse()
	return root, rep, err
}

func mustParse(t *testing.T, src string) []*ast.Node {
	t.Helper()
	root, rep, err := parse(t, src)
	if err != nil {
		t.Fatalf("parse %q: %v (%v)", src, err, rep.Errors())
	}
	return root.Data.(ast.ScriptNode).Decls
}

// bodyOf returns the statements of the first function in src.
func bodyOf(t *testing.T, src string) []*ast.Node {
	t.Helper()
	decls := mustParse(t, src)
	return decls[0].Data.(ast.FuncDeclNode).Body.Data.(ast.BlockNode).Stmts
}

func typeName(ts *ast.TypeSpec) string {
	s := ts.Name
	if ts.SubType != nil {
		s += "<" + typeName(ts.SubType) + ">"
	}
	if ts.IsHandle {
		s += "@"
	}
	return s
}

func scoped(scope, name string) string {
	switch scope {
	case "":
		return name
	case "::":
		return "::" + name
	}
	return scope + "::" + name
}

// sexpr renders an expression in prefix form.
func sexpr(n *ast.Node) string {
	if n == nil {
		return "nil"
	}
	list := func(head string, nodes ...*ast.Node) string {
		parts := []string{head}
		for _, c := range nodes {
			parts = append(parts, sexpr(c))
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	switch d := n.Data.(type) {
	case ast.NumberNode:
		return d.Text
	case ast.BoolNode:
		return fmt.Sprint(d.Value)
	case ast.StringNode:
		return fmt.Sprintf("%q", d.Value)
	case ast.IdentNode:
		return scoped(d.Scope, d.Name)
	case ast.AssignNode:
		return list(d.Op.String(), d.Lhs, d.Rhs)
	case ast.BinaryOpNode:
		return list(d.Op.String(), d.Left, d.Right)
	case ast.UnaryOpNode:
		return list(d.Op.String(), d.Expr)
	case ast.PostfixOpNode:
		return list("post"+d.Op.String(), d.Expr)
	case ast.FuncCallNode:
		return list("call "+scoped(d.Scope, d.Name), d.Args...)
	case ast.ConstructCallNode:
		return list("new "+typeName(d.Type), d.Args...)
	case ast.MemberAccessNode:
		if d.Call != nil {
			return list(".", d.Expr, d.Call)
		}
		return list("."+d.Name, d.Expr)
	case ast.SubscriptNode:
		return list("[]", d.Array, d.Index)
	case ast.TernaryNode:
		return list("?", d.Cond, d.ThenExpr, d.ElseExpr)
	case ast.CastNode:
		return list("cast "+typeName(d.Type), d.Expr)
	case ast.InitListNode:
		return list("{}", d.Elems...)
	}
	switch n.Type {
	case ast.Null:
		return "null"
	case ast.This:
		return "this"
	}
	return "<" + n.Type.String() + ">"
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"1 + 2 * 3 - -4", "(- (+ 1 (* 2 3)) (- 4))"},
		{"a = b += c", "(= a (+= b c))"},
		{"x ? y : z ? 1 : 2", "(? x y (? z 1 2))"},
		{"a || b ^^ c && d", "(|| a (^^ b (&& c d)))"},
		{"a & b == c", "(& a (== b c))"},
		{"a << 1 < b | c ^ d", "(| (< (<< a 1) b) (^ c d))"},
		{"h is null || h !is g", "(|| (is h null) (!is h g))"},
		{"obj.m(1).n[2]++", "(post++ ([] (.n (. obj (call m 1))) 2))"},
		{"-x++", "(- (post++ x))"},
		{"cast<Foo>(h)", "(cast Foo h)"},
		{"@h", "(@ h)"},
		{"int(3.5f) + float(2)", "(+ (new int 3.5) (new float 2))"},
		{"array<int>(3)", "(new array<int> 3)"},
		{"::g + ns::f(x)", "(+ ::g (call ns::f x))"},
		{`"ab" "cd"`, `"abcd"`},
		{"this.x", "(.x this)"},
		{"(a + b) * c", "(* (+ a b) c)"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			stmts := bodyOf(t, "void f() { "+tt.src+"; }")
			got := sexpr(stmts[0].Data.(ast.ExprStmtNode).Expr)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeclarationOrExpression(t *testing.T) {
	tests := []struct {
		src  string
		want ast.NodeType
	}{
		{"Foo@ h;", ast.VarDecl},
		{"a * b;", ast.ExprStmt},
		{"x < y;", ast.ExprStmt},
		{"array<int> a;", ast.VarDecl},
		{"array<Foo@>@ a;", ast.VarDecl},
		{"int(3);", ast.ExprStmt},
		{"const int c = 1;", ast.VarDecl},
		{"int a = 1, b;", ast.MultiVarDecl},
		{"ns::T v(1, 2);", ast.VarDecl},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			stmts := bodyOf(t, "void f() { "+tt.src+" }")
			if got := stmts[0].Type; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatements(t *testing.T) {
	stmts := bodyOf(t, `void f() {
		for (int i = 0, j = 1; i < j; i++, j--) ;
		while (true) { break; }
		do { continue; } while (false);
		switch (x) { case 1: case 2: y = 1; break; default: return; }
		if (a) b(); else if (c) d();
	}`)

	var types []ast.NodeType
	for _, s := range stmts {
		types = append(types, s.Type)
	}
	if diff := cmp.Diff([]ast.NodeType{ast.For, ast.While, ast.DoWhile, ast.Switch, ast.If}, types); diff != "" {
		t.Fatalf("statement kinds mismatch (-want +got):\n%s", diff)
	}

	forNode := stmts[0].Data.(ast.ForNode)
	if forNode.Init.Type != ast.MultiVarDecl || len(forNode.Next) != 2 {
		t.Errorf("for: init %s with %d increments", forNode.Init.Type, len(forNode.Next))
	}

	sw := stmts[3].Data.(ast.SwitchNode)
	var labels []string
	var bodies []int
	for _, c := range sw.Cases {
		cn := c.Data.(ast.CaseNode)
		labels = append(labels, sexpr(cn.Value))
		bodies = append(bodies, len(cn.Body))
	}
	if diff := cmp.Diff([]string{"1", "2", "nil"}, labels); diff != "" {
		t.Errorf("case labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2, 1}, bodies); diff != "" {
		t.Errorf("case bodies mismatch (-want +got):\n%s", diff)
	}

	ifNode := stmts[4].Data.(ast.IfNode)
	if ifNode.ElseBody == nil || ifNode.ElseBody.Type != ast.If {
		t.Errorf("else-if did not nest")
	}
}

func TestClass(t *testing.T) {
	decls := mustParse(t, `class A : B, I {
		int x, y;
		Foo@ f;
		A() {}
		A(int v) { x = v; }
		~A() {}
		int get() const { return x; }
		int& at(int i) { return x; }
	}`)
	cls := decls[0].Data.(ast.ClassDeclNode)
	if diff := cmp.Diff([]string{"B", "I"}, cls.Bases); diff != "" {
		t.Errorf("bases mismatch (-want +got):\n%s", diff)
	}

	type member struct {
		Kind                ast.NodeType
		Name                string
		Const, Dtor, RetRef bool
		Params              int
	}
	var got []member
	for _, m := range cls.Members {
		switch d := m.Data.(type) {
		case ast.VarDeclNode:
			got = append(got, member{Kind: m.Type, Name: d.Name})
		case ast.FuncDeclNode:
			got = append(got, member{Kind: m.Type, Name: d.Name, Const: d.IsConst, Dtor: d.IsDestructor, RetRef: d.ReturnRef, Params: len(d.Params)})
		}
	}
	want := []member{
		{Kind: ast.VarDecl, Name: "x"},
		{Kind: ast.VarDecl, Name: "y"},
		{Kind: ast.VarDecl, Name: "f"},
		{Kind: ast.FuncDecl, Name: "A"},
		{Kind: ast.FuncDecl, Name: "A", Params: 1},
		{Kind: ast.FuncDecl, Name: "~A", Dtor: true},
		{Kind: ast.FuncDecl, Name: "get", Const: true},
		{Kind: ast.FuncDecl, Name: "at", RetRef: true, Params: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumAndGlobals(t *testing.T) {
	decls := mustParse(t, "enum E { A, B = 5, C }\nint g = 1, h = g + 1;\nconst double pi = 3.14;")
	if len(decls) != 4 {
		t.Fatalf("got %d top-level declarations, want 4", len(decls))
	}
	enum := decls[0].Data.(ast.EnumDeclNode)
	var names, values []string
	for _, v := range enum.Values {
		names = append(names, v.Name)
		values = append(values, sexpr(v.Value))
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, names); diff != "" {
		t.Errorf("enum names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"nil", "5", "nil"}, values); diff != "" {
		t.Errorf("enum values mismatch (-want +got):\n%s", diff)
	}
	if got := sexpr(decls[2].Data.(ast.VarDeclNode).Init); got != "(+ g 1)" {
		t.Errorf("h initializer: got %s", got)
	}
	if !decls[3].Data.(ast.VarDeclNode).Type.IsConst {
		t.Errorf("pi should be const")
	}
}

func TestParameters(t *testing.T) {
	decls := mustParse(t, "void f(int a, int &out b, const string &in s, Foo@ h, float) {}")
	params := decls[0].Data.(ast.FuncDeclNode).Params

	type param struct {
		Type  string
		Ref   bool
		Mode  token.Type
		Name  string
		Const bool
	}
	var got []param
	for _, p := range params {
		got = append(got, param{typeName(p.Type), p.IsRef, p.Mode, p.Name, p.Type.IsConst})
	}
	want := []param{
		{"int", false, token.EOF, "a", false},
		{"int", true, token.Out, "b", false},
		{"string", true, token.In, "s", true},
		{"Foo@", false, token.EOF, "h", false},
		{"float", false, token.EOF, "", false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int f( { }", "Expected a data type. Found '{'."},
		{"void f() { x = ; }", "Expected an expression. Found ';'."},
		{"void f() { return 1 }", "Expected ';' after the return statement. Found '}'."},
		{"class A { ~B() {} }", "The destructor name must match the class name 'A'."},
		{"import void f() from \"m\";", "Import declarations are not supported."},
		{"int& g;", "Global variables cannot be references."},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, rep, err := parse(t, tt.src)
			if err == nil {
				t.Fatal("expected a syntax error")
			}
			errs := rep.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want exactly the first one: %v", len(errs), errs)
			}
			if errs[0].Text != tt.want {
				t.Errorf("got %q, want %q", errs[0].Text, tt.want)
			}
		})
	}
}

func TestParseDeclaration(t *testing.T) {
	node, err := ParseDeclaration("string@ f(uint, const T&in)")
	if err != nil {
		t.Fatal(err)
	}
	fn := node.Data.(ast.FuncDeclNode)
	if fn.Name != "f" || typeName(fn.ReturnType) != "string@" || len(fn.Params) != 2 {
		t.Errorf("got %s %s with %d params", typeName(fn.ReturnType), fn.Name, len(fn.Params))
	}
	if fn.Params[1].Mode != token.In || !fn.Params[1].Type.IsConst {
		t.Errorf("second parameter should be const &in")
	}

	prop, err := ParseDeclaration("float x")
	if err != nil {
		t.Fatal(err)
	}
	if prop.Type != ast.VarDecl {
		t.Errorf("property declaration parsed as %s", prop.Type)
	}

	if _, err := ParseDeclaration("int f() extra"); err == nil {
		t.Error("trailing text should be rejected")
	}
}

func TestParseDataType(t *testing.T) {
	spec, err := ParseDataType("const array<int>@")
	if err != nil {
		t.Fatal(err)
	}
	if !spec.IsConst || typeName(spec) != "array<int>@" {
		t.Errorf("got const=%v %s", spec.IsConst, typeName(spec))
	}
	if _, err := ParseDataType("int int"); err == nil {
		t.Error("trailing text should be rejected")
	}
}
