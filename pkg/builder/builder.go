// Package builder turns a parsed script into a Module: it registers the script's classes,
// enums, functions and globals with the registry, then compiles all of them.
package builder

import (
	"errors"
	"fmt"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/compiler"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/lexer"
	"github.com/xplshn/gasc/pkg/parser"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/types"
	"github.com/xplshn/gasc/pkg/util"
)

// ErrBuild is returned when any part of the script failed to compile.
var ErrBuild = errors.New("build failed")

type scriptFunc struct {
	f    *types.Function
	node *ast.Node
}

type scriptGlobal struct {
	prop *types.GlobalProperty
	node *ast.Node
}

type scriptClass struct {
	ot   *types.ObjectType
	node *ast.Node
	// factories[i] allocates the object with constructor ctors[i].
	ctors     []int
	factories []int
	defCtor   int
	laidOut   bool
	visiting  bool
}

// Builder compiles one script against an engine. It implements compiler.Builder.
type Builder struct {
	eng *registry.Engine
	cfg *config.Config
	rep *util.Reporter

	strings   []string
	stringIDs map[string]int

	funcs    []scriptFunc
	globals  []scriptGlobal
	classes  []*scriptClass
	classOf  map[*types.ObjectType]*scriptClass
	compiled map[*types.GlobalProperty]bool
	script   map[*types.GlobalProperty]bool
}

func New(eng *registry.Engine, rep *util.Reporter) *Builder {
	return &Builder{
		eng:       eng,
		cfg:       eng.Config(),
		rep:       rep,
		stringIDs: make(map[string]int),
		classOf:   make(map[*types.ObjectType]*scriptClass),
		compiled:  make(map[*types.GlobalProperty]bool),
		script:    make(map[*types.GlobalProperty]bool),
	}
}

// compiler.Builder

func (b *Builder) Config() *config.Config { return b.cfg }
func (b *Builder) PtrSize() int           { return b.eng.PtrSize() }

func (b *Builder) DataType(spec *ast.TypeSpec) (types.DataType, error) {
	return b.eng.DataTypeFromSpec(spec, nil)
}

func (b *Builder) Function(id int) *types.Function          { return b.eng.Function(id) }
func (b *Builder) GlobalFunctions(name string) []int        { return b.eng.GlobalFunctions(name) }
func (b *Builder) ObjectType(name string) *types.ObjectType { return b.eng.ObjectType(name) }

func (b *Builder) ObjectMethods(ot *types.ObjectType, name string) []int {
	return b.eng.ObjectMethods(ot, name)
}

// GlobalProperty treats host globals as always initialized.
func (b *Builder) GlobalProperty(name string) (*types.GlobalProperty, bool) {
	prop := b.eng.GlobalProperty(name)
	if prop == nil {
		return nil, false
	}
	return prop, !b.script[prop] || b.compiled[prop]
}

func (b *Builder) EnumValue(name string, scope *types.ObjectType) (types.DataType, int64, int) {
	return b.eng.EnumValue(name, scope)
}

func (b *Builder) GlobalBehaviours() []types.BehaviourFunc { return b.eng.GlobalBehaviours }
func (b *Builder) StringFactory() int                      { return b.eng.StringFactory }
func (b *Builder) TypeID(dt types.DataType) int            { return registry.TypeID(dt) }

// AddString interns a string constant and returns its id.
func (b *Builder) AddString(s string) int {
	if id, ok := b.stringIDs[s]; ok {
		return id
	}
	id := len(b.strings)
	b.strings = append(b.strings, s)
	b.stringIDs[s] = id
	return id
}

// Parse tokenizes and parses one source file, reporting through rep.
func Parse(rep *util.Reporter, name, src string) (*ast.Node, error) {
	content := []rune(src)
	idx := rep.AddFile(name, content)
	before := rep.ErrorCount()
	toks := lexer.NewLexer(content, idx, rep).Tokenize()
	if rep.ErrorCount() > before {
		return nil, fmt.Errorf("%s: %w", name, ErrBuild)
	}
	return parser.NewParser(toks, rep).Parse()
}

// CompileSource parses and builds src in one step.
func CompileSource(eng *registry.Engine, rep *util.Reporter, name, src string) (*Module, error) {
	root, err := Parse(rep, name, src)
	if err != nil {
		return nil, err
	}
	return New(eng, rep).Build(name, root)
}

// Build registers and compiles every declaration of the script. The module is returned even
// when some functions failed, so callers may still list what did compile.
func (b *Builder) Build(name string, script *ast.Node) (*Module, error) {
	decls := script.Data.(ast.ScriptNode).Decls
	errorsBefore := b.rep.ErrorCount()

	b.registerTypes(decls)
	b.registerEnumValues(decls)
	b.registerClasses()
	for _, d := range decls {
		switch d.Type {
		case ast.FuncDecl:
			b.registerFunction(d)
		case ast.VarDecl:
			b.registerGlobal(d)
		case ast.MultiVarDecl:
			for _, v := range d.Data.(ast.MultiVarDeclNode).Decls {
				b.registerGlobal(v)
			}
		}
	}

	m := &Module{Name: name, Engine: b.eng, Functions: make(map[int]*bytecode.Function)}
	m.Inits = b.compileGlobals()
	b.compileClasses(m)
	for _, sf := range b.funcs {
		fn, err := compiler.CompileFunction(b, b.rep, sf.f, sf.node)
		if err == nil {
			m.Functions[sf.f.ID] = fn
		}
	}
	b.compileStubs(m)

	m.Strings = b.strings
	if b.rep.ErrorCount() > errorsBefore {
		return m, fmt.Errorf("%s: %d error(s): %w", name, b.rep.ErrorCount()-errorsBefore, ErrBuild)
	}
	return m, nil
}

func (b *Builder) registerTypes(decls []*ast.Node) {
	for _, d := range decls {
		switch d.Type {
		case ast.ClassDecl:
			if !b.cfg.IsFeatureEnabled(config.FeatClasses) {
				b.rep.Error(d.Tok, "Script classes are disabled")
				continue
			}
			cd := d.Data.(ast.ClassDeclNode)
			ot, err := b.eng.RegisterObjectType(cd.Name, 0, types.FlagRef|types.FlagScript)
			if err != nil {
				b.rep.Error(d.Tok, "%s", err)
				continue
			}
			sc := &scriptClass{ot: ot, node: d}
			b.classes = append(b.classes, sc)
			b.classOf[ot] = sc
		case ast.EnumDecl:
			if _, err := b.eng.RegisterEnum(d.Data.(ast.EnumDeclNode).Name); err != nil {
				b.rep.Error(d.Tok, "%s", err)
			}
		}
	}
}

// registerEnumValues numbers enum values from zero, or one past the previous value. Explicit
// values may refer to values declared before them.
func (b *Builder) registerEnumValues(decls []*ast.Node) {
	for _, d := range decls {
		if d.Type != ast.EnumDecl {
			continue
		}
		ed := d.Data.(ast.EnumDeclNode)
		next := int64(0)
		for _, v := range ed.Values {
			value := next
			if v.Value != nil {
				c, ok := compiler.EvalConstant(b, b.rep, v.Value, types.Primitive(types.Int, true))
				if ok {
					value = types.ConstInt(c)
				}
			}
			if err := b.eng.RegisterEnumValue(ed.Name, v.Name, value); err != nil {
				b.rep.Error(v.Tok, "%s", err)
			}
			next = value + 1
		}
	}
}

func (b *Builder) registerClasses() {
	for _, sc := range b.classes {
		b.layoutClass(sc)
	}
	for _, sc := range b.classes {
		b.registerMembers(sc)
	}
}

// layoutClass resolves the base class and copies its properties first, so inherited members
// keep their indexes. It returns false when sc is part of an inheritance cycle.
func (b *Builder) layoutClass(sc *scriptClass) bool {
	if sc.laidOut {
		return true
	}
	cd := sc.node.Data.(ast.ClassDeclNode)
	if sc.visiting {
		b.rep.Error(sc.node.Tok, "Illegal inheritance cycle involving '%s'", cd.Name)
		return false
	}
	sc.visiting = true
	defer func() { sc.visiting = false; sc.laidOut = true }()

	if len(cd.Bases) > 1 {
		b.rep.Error(sc.node.Tok, "Multiple inheritance is not supported")
	}
	if len(cd.Bases) > 0 {
		base := b.eng.ObjectType(cd.Bases[0])
		bsc := b.classOf[base]
		switch {
		case base == nil:
			b.rep.Error(sc.node.Tok, "Identifier '%s' is not a data type", cd.Bases[0])
		case bsc == nil:
			b.rep.Error(sc.node.Tok, "Can't inherit from '%s'", cd.Bases[0])
		case b.layoutClass(bsc):
			sc.ot.Base = base
			for _, p := range base.Props {
				sc.ot.Props = append(sc.ot.Props, &types.Property{Name: p.Name, Type: p.Type, Index: p.Index})
			}
		}
	}

	for _, m := range cd.Members {
		if m.Type != ast.VarDecl {
			continue
		}
		vd := m.Data.(ast.VarDeclNode)
		dt, err := b.DataType(vd.Type)
		if err != nil {
			b.rep.Error(m.Tok, "%s", err)
			continue
		}
		if !dt.CanBeInstanced() {
			b.rep.Error(m.Tok, "Data type can't be '%s'", dt.Format())
			continue
		}
		if _, err := b.eng.AddObjectProperty(sc.ot, vd.Name, dt); err != nil {
			b.rep.Error(m.Tok, "%s", err)
		}
	}
	return true
}

func (b *Builder) registerMembers(sc *scriptClass) {
	ot := sc.ot
	cd := sc.node.Data.(ast.ClassDeclNode)

	b.addHostBehaviour(ot, registry.BehAddRef, "addref", "object.addref")
	b.addHostBehaviour(ot, registry.BehRelease, "release", "object.release")

	hasAssign := false
	for _, m := range cd.Members {
		if m.Type != ast.FuncDecl {
			continue
		}
		fd := m.Data.(ast.FuncDeclNode)
		f, err := b.eng.FunctionFromDecl(m, ot, nil)
		if err != nil {
			b.rep.Error(m.Tok, "%s", err)
			continue
		}
		f.Kind = types.ScriptFunc

		switch {
		case fd.IsDestructor:
			if len(f.Params) > 0 {
				b.rep.Error(m.Tok, "The destructor must not have any parameters")
				continue
			}
			if ot.Beh.Destruct != 0 {
				b.rep.Error(m.Tok, "A destructor is already declared")
				continue
			}
			b.eng.AddBehaviour(ot, registry.BehDestruct, f)
		case fd.ReturnType == nil && fd.Name == ot.Name:
			if b.duplicate(ot.Beh.Constructors, f) {
				b.rep.Error(m.Tok, "A constructor with the same parameters already exists")
				continue
			}
			id, _ := b.eng.AddBehaviour(ot, registry.BehConstruct, f)
			sc.ctors = append(sc.ctors, id)
		default:
			if b.duplicate(ot.Methods, f) {
				b.rep.Error(m.Tok, "A function with the same name and parameters already exists")
				continue
			}
			id := b.eng.AddFunction(f)
			ot.Methods = append(ot.Methods, id)
			if beh, ok := types.BehaviourByName(f.Name); ok && beh < types.BehAdd {
				ot.Beh.Operators = append(ot.Beh.Operators, types.BehaviourFunc{Beh: beh, Func: id})
				if beh == types.BehAssign && len(f.Params) == 1 && f.Params[0].Object == ot && !f.Params[0].Handle {
					hasAssign = true
				}
			}
		}
		b.funcs = append(b.funcs, scriptFunc{f: f, node: m})
	}

	if len(sc.ctors) == 0 {
		f := &types.Function{Object: ot, Kind: types.ScriptFunc}
		id, _ := b.eng.AddBehaviour(ot, registry.BehConstruct, f)
		sc.ctors = append(sc.ctors, id)
		sc.defCtor = id
	}
	for _, ctor := range sc.ctors {
		c := b.eng.Function(ctor)
		factory := &types.Function{
			Return:     types.HandleOf(ot, false),
			Params:     c.Params,
			Modes:      c.Modes,
			ParamNames: c.ParamNames,
			Kind:       types.ScriptFunc,
		}
		id, _ := b.eng.AddBehaviour(ot, registry.BehFactory, factory)
		sc.factories = append(sc.factories, id)
	}
	// Member-wise copy, performed by the executor. A script opAssign cannot return a
	// reference, so it only serves explicit assignments and never raw copies.
	param := types.ObjectOf(ot, true).WithRef(true)
	f := &types.Function{
		Name:   "opAssign",
		Object: ot,
		Return: types.ObjectOf(ot, false).WithRef(true),
		Params: []types.DataType{param},
		Modes:  []types.ParamMode{types.ModeIn},
		Kind:   types.SystemFunc,
		Bind:   "object.assign",
	}
	if hasAssign {
		ot.Beh.Copy = b.eng.AddFunction(f)
	} else {
		b.eng.AddBehaviour(ot, "opAssign", f)
	}
}

func (b *Builder) addHostBehaviour(ot *types.ObjectType, beh, name, bind string) {
	f := &types.Function{Name: name, Object: ot, Kind: types.SystemFunc, Bind: bind}
	b.eng.AddBehaviour(ot, beh, f)
}

func (b *Builder) duplicate(ids []int, f *types.Function) bool {
	for _, id := range ids {
		if g := b.eng.Function(id); g != nil && g.Name == f.Name && g.IsSignatureEqual(f) {
			return true
		}
	}
	return false
}

func (b *Builder) registerFunction(node *ast.Node) {
	f, err := b.eng.FunctionFromDecl(node, nil, nil)
	if err != nil {
		b.rep.Error(node.Tok, "%s", err)
		return
	}
	f.Kind = types.ScriptFunc
	if b.duplicate(b.eng.GlobalFunctions(f.Name), f) {
		b.rep.Error(node.Tok, "A function with the same name and parameters already exists")
		return
	}
	b.eng.AddGlobalFunction(f)
	b.funcs = append(b.funcs, scriptFunc{f: f, node: node})
}

func (b *Builder) registerGlobal(node *ast.Node) {
	vd := node.Data.(ast.VarDeclNode)
	dt, err := b.DataType(vd.Type)
	if err != nil {
		b.rep.Error(node.Tok, "%s", err)
		return
	}
	if !dt.CanBeInstanced() {
		b.rep.Error(node.Tok, "Data type can't be '%s'", dt.Format())
		return
	}
	prop, err := b.eng.AddGlobalProperty(vd.Name, dt)
	if err != nil {
		b.rep.Error(node.Tok, "%s", err)
		return
	}
	b.script[prop] = true
	b.globals = append(b.globals, scriptGlobal{prop: prop, node: node})
}

// compileGlobals compiles initializers in declaration order, postponing those that read
// globals not initialized yet. Once a pass makes no progress the rest are taken as they are.
func (b *Builder) compileGlobals() []*bytecode.Function {
	var inits []*bytecode.Function
	pending := b.globals
	final := false
	for len(pending) > 0 {
		var next []scriptGlobal
		progress := false
		for _, g := range pending {
			buf := b.rep.Buffer()
			fn, err := compiler.CompileGlobalVariable(b, buf, g.prop, g.node)
			if errors.Is(err, compiler.ErrUncompiledGlobal) && !final {
				next = append(next, g)
				continue
			}
			b.rep.Merge(buf)
			b.compiled[g.prop] = true
			progress = true
			if fn != nil {
				inits = append(inits, fn)
			}
		}
		if !progress {
			final = true
		}
		pending = next
	}
	return inits
}

func (b *Builder) compileClasses(m *Module) {
	for _, sc := range b.classes {
		ot := sc.ot
		if sc.defCtor != 0 {
			if fn, err := compiler.CompileDefaultConstructor(b, b.rep, b.eng.Function(sc.defCtor)); err == nil {
				m.Functions[sc.defCtor] = fn
			}
		}
		for i, ctor := range sc.ctors {
			id := sc.factories[i]
			if fn, err := compiler.CompileFactory(b, b.rep, b.eng.Function(id), ot, ctor); err == nil {
				m.Functions[id] = fn
			}
		}
	}
}

// compileStubs generates the factories of template instances, including those created while
// compiling function bodies.
func (b *Builder) compileStubs(m *Module) {
	for {
		stubs := b.eng.TakePendingStubs()
		if len(stubs) == 0 {
			return
		}
		for _, s := range stubs {
			fn, err := compiler.CompileTemplateFactoryStub(b, b.rep, b.eng.Function(s.Func), s.Generic, s.Instance)
			if err == nil {
				m.Functions[s.Func] = fn
			}
		}
	}
}
