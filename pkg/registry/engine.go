// Package registry holds every type, function and property known to a build: the host
// interface (built in and loaded from YAML) plus whatever the script registers.
package registry

import (
	"fmt"

	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/parser"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
)

// Engine is the registry of one build. It is not safe for concurrent use.
type Engine struct {
	cfg *config.Config
	ptr int

	Types      []*types.ObjectType
	typeByName map[string]*types.ObjectType

	// Funcs is indexed by function id; id 0 is never used.
	Funcs       []*types.Function
	globalFuncs map[string][]int

	Globals          []*types.GlobalProperty
	globalByName     map[string]*types.GlobalProperty
	GlobalBehaviours []types.BehaviourFunc
	StringFactory    int
	StringType       *types.ObjectType

	placeholder *types.ObjectType
	instances   map[uint64]*types.ObjectType
	// PendingStubs are template factory stubs still waiting for bytecode.
	PendingStubs []TemplateStub
}

// NewEngine returns an engine with the built-in host interface registered.
func NewEngine(cfg *config.Config) (*Engine, error) {
	e := &Engine{
		cfg:          cfg,
		ptr:          cfg.PtrSize,
		typeByName:   make(map[string]*types.ObjectType),
		Funcs:        []*types.Function{nil},
		globalFuncs:  make(map[string][]int),
		globalByName: make(map[string]*types.GlobalProperty),
		instances:    make(map[uint64]*types.ObjectType),
		placeholder:  &types.ObjectType{Name: "T", Flags: types.FlagRef | types.FlagTemplate},
	}
	if err := e.loadBuiltins(); err != nil {
		return nil, fmt.Errorf("registering built-in host interface: %w", err)
	}
	return e, nil
}

func (e *Engine) Config() *config.Config { return e.cfg }
func (e *Engine) PtrSize() int           { return e.ptr }

// ObjectType finds a registered type by name, including enums and template instances.
func (e *Engine) ObjectType(name string) *types.ObjectType { return e.typeByName[name] }

func (e *Engine) Function(id int) *types.Function {
	if id <= 0 || id >= len(e.Funcs) {
		return nil
	}
	return e.Funcs[id]
}

// FunctionName satisfies bytecode.Namer for listings.
func (e *Engine) FunctionName(id int) string {
	if f := e.Function(id); f != nil {
		return f.Declaration()
	}
	return fmt.Sprintf("<func %d>", id)
}

func (e *Engine) GlobalFunctions(name string) []int { return e.globalFuncs[name] }

func (e *Engine) GlobalProperty(name string) *types.GlobalProperty { return e.globalByName[name] }

// AddFunction assigns f an id and stores it.
func (e *Engine) AddFunction(f *types.Function) int {
	f.ID = len(e.Funcs)
	e.Funcs = append(e.Funcs, f)
	return f.ID
}

// AddGlobalFunction stores f and makes it visible to calls by name.
func (e *Engine) AddGlobalFunction(f *types.Function) int {
	id := e.AddFunction(f)
	e.globalFuncs[f.Name] = append(e.globalFuncs[f.Name], id)
	return id
}

// AddGlobalProperty stores a new global and gives it the next storage index.
func (e *Engine) AddGlobalProperty(name string, dt types.DataType) (*types.GlobalProperty, error) {
	if _, dup := e.globalByName[name]; dup {
		return nil, fmt.Errorf("global property '%s' is already registered", name)
	}
	prop := &types.GlobalProperty{Name: name, Type: dt, Index: len(e.Globals)}
	e.Globals = append(e.Globals, prop)
	e.globalByName[name] = prop
	return prop, nil
}

// RegisterObjectType adds a host or script object type.
func (e *Engine) RegisterObjectType(name string, size int, flags types.TypeFlags) (*types.ObjectType, error) {
	if _, dup := e.typeByName[name]; dup {
		return nil, fmt.Errorf("type '%s' is already registered", name)
	}
	if _, prim := types.KindByName[name]; prim {
		return nil, fmt.Errorf("'%s' is a reserved type name", name)
	}
	if flags&(types.FlagRef|types.FlagValue|types.FlagEnum) == 0 {
		return nil, fmt.Errorf("type '%s' must be either a ref or a value type", name)
	}
	ot := &types.ObjectType{Name: name, ID: len(e.Types) + 1, Flags: flags, Size: size}
	e.Types = append(e.Types, ot)
	e.typeByName[name] = ot
	return ot, nil
}

func (e *Engine) RegisterEnum(name string) (*types.ObjectType, error) {
	return e.RegisterObjectType(name, 4, types.FlagEnum)
}

func (e *Engine) RegisterEnumValue(enumName, name string, value int64) error {
	ot := e.typeByName[enumName]
	if ot == nil || ot.Flags&types.FlagEnum == 0 {
		return fmt.Errorf("'%s' is not a registered enum", enumName)
	}
	if _, dup := ot.EnumValue(name); dup {
		return fmt.Errorf("enum value '%s::%s' is already registered", enumName, name)
	}
	ot.EnumValues = append(ot.EnumValues, types.EnumValue{Name: name, Value: value})
	return nil
}

// EnumValue resolves an enum value, optionally restricted to one enum. found is 0 when the
// value does not exist, 1 when it is unique and 2 when several unscoped enums define it.
func (e *Engine) EnumValue(name string, scope *types.ObjectType) (dt types.DataType, value int64, found int) {
	if scope != nil {
		if v, ok := scope.EnumValue(name); ok {
			return types.ObjectOf(scope, true), v, 1
		}
		return dt, 0, 0
	}
	for _, ot := range e.Types {
		if ot.Flags&types.FlagEnum == 0 {
			continue
		}
		if v, ok := ot.EnumValue(name); ok {
			found++
			if found == 1 {
				dt, value = types.ObjectOf(ot, true), v
			}
		}
	}
	if found > 1 {
		found = 2
	}
	return dt, value, found
}

// DataTypeFromSpec resolves a parsed type. Within a template's own declarations, "T" is the
// subtype placeholder.
func (e *Engine) DataTypeFromSpec(spec *ast.TypeSpec, tmpl *types.ObjectType) (types.DataType, error) {
	var dt types.DataType
	kind, isPrim := types.KindByName[spec.Name]
	switch {
	case spec.Name == "?":
		dt = types.DataType{Kind: types.VarType}
	case isPrim && spec.SubType == nil && spec.Scope == "":
		dt = types.Primitive(kind, false)
	case tmpl != nil && spec.Name == "T" && spec.SubType == nil:
		dt = types.ObjectOf(e.placeholder, false)
	default:
		ot := e.typeByName[spec.Name]
		if ot == nil {
			return dt, fmt.Errorf("identifier '%s' is not a data type", spec.Name)
		}
		if spec.SubType != nil {
			if ot.Flags&types.FlagTemplate == 0 {
				return dt, fmt.Errorf("type '%s' is not a template", spec.Name)
			}
			sub, err := e.DataTypeFromSpec(spec.SubType, tmpl)
			if err != nil {
				return dt, err
			}
			if sub.Object != e.placeholder {
				inst, err := e.TemplateInstance(ot, sub)
				if err != nil {
					return dt, err
				}
				ot = inst
			}
		} else if ot.Flags&types.FlagTemplate != 0 {
			return dt, fmt.Errorf("template '%s' needs a subtype", spec.Name)
		}
		dt = types.ObjectOf(ot, false)
	}

	dt.Const = spec.IsConst
	if spec.IsHandle {
		h, ok := dt.WithHandle(true)
		if !ok {
			return dt, fmt.Errorf("object handle is not supported for '%s'", dt.Format())
		}
		dt = h
		dt.ConstHandle = spec.ConstHandle
	}
	return dt, nil
}

// paramMode maps a parameter's written qualifier to the compiler's notion of it.
func paramMode(p *ast.Param, dt types.DataType) types.ParamMode {
	if !p.IsRef {
		return types.ModeNone
	}
	switch p.Mode {
	case token.In:
		return types.ModeIn
	case token.Out:
		return types.ModeOut
	case token.InOut:
		return types.ModeInOut
	}
	if dt.Const && !dt.Handle {
		return types.ModeIn
	}
	return types.ModeInOut
}

// FunctionFromDecl builds a function descriptor from a parsed declaration node.
func (e *Engine) FunctionFromDecl(node *ast.Node, object, tmpl *types.ObjectType) (*types.Function, error) {
	d, ok := node.Data.(ast.FuncDeclNode)
	if !ok {
		return nil, fmt.Errorf("'%s' is not a function declaration", node.Tok.Value)
	}
	f := &types.Function{Name: d.Name, Object: object, IsConst: d.IsConst}
	if d.ReturnType != nil {
		ret, err := e.DataTypeFromSpec(d.ReturnType, tmpl)
		if err != nil {
			return nil, err
		}
		ret.Ref = d.ReturnRef
		f.Return = ret
	}
	for _, p := range d.Params {
		dt, err := e.DataTypeFromSpec(p.Type, tmpl)
		if err != nil {
			return nil, err
		}
		dt.Ref = p.IsRef
		mode := paramMode(p, dt)
		if mode == types.ModeIn && dt.IsPrimitive() {
			dt.Const = true
		}
		f.Params = append(f.Params, dt)
		f.Modes = append(f.Modes, mode)
		f.ParamNames = append(f.ParamNames, p.Name)
	}
	return f, nil
}

func (e *Engine) parseFunction(decl string, object, tmpl *types.ObjectType) (*types.Function, error) {
	node, err := parser.ParseDeclaration(decl)
	if err != nil {
		return nil, err
	}
	return e.FunctionFromDecl(node, object, tmpl)
}

func (e *Engine) lookupType(typeName string) (*types.ObjectType, error) {
	ot := e.typeByName[typeName]
	if ot == nil {
		return nil, fmt.Errorf("type '%s' is not registered", typeName)
	}
	return ot, nil
}

func templateOf(ot *types.ObjectType) *types.ObjectType {
	if ot.Flags&types.FlagTemplate != 0 {
		return ot
	}
	return nil
}

// RegisterObjectProperty adds a property such as "float x" to a type.
func (e *Engine) RegisterObjectProperty(typeName, decl string) (*types.Property, error) {
	ot, err := e.lookupType(typeName)
	if err != nil {
		return nil, err
	}
	node, err := parser.ParseDeclaration(decl)
	if err != nil {
		return nil, err
	}
	vd, ok := node.Data.(ast.VarDeclNode)
	if !ok {
		return nil, fmt.Errorf("%q is not a property declaration", decl)
	}
	dt, err := e.DataTypeFromSpec(vd.Type, templateOf(ot))
	if err != nil {
		return nil, err
	}
	return e.AddObjectProperty(ot, vd.Name, dt)
}

func (e *Engine) AddObjectProperty(ot *types.ObjectType, name string, dt types.DataType) (*types.Property, error) {
	if ot.Property(name) != nil {
		return nil, fmt.Errorf("property '%s::%s' is already registered", ot.Name, name)
	}
	prop := &types.Property{Name: name, Type: dt, Index: len(ot.Props)}
	ot.Props = append(ot.Props, prop)
	return prop, nil
}

// RegisterObjectMethod adds a system method to a type.
func (e *Engine) RegisterObjectMethod(typeName, decl, bind string) (int, error) {
	ot, err := e.lookupType(typeName)
	if err != nil {
		return 0, err
	}
	f, err := e.parseFunction(decl, ot, templateOf(ot))
	if err != nil {
		return 0, err
	}
	f.Kind = types.SystemFunc
	f.Bind = bind
	id := e.AddFunction(f)
	ot.Methods = append(ot.Methods, id)
	return id, nil
}

// Behaviour names accepted by RegisterObjectBehaviour besides the operator names.
const (
	BehConstruct = "construct"
	BehFactory   = "factory"
	BehDestruct  = "destruct"
	BehAddRef    = "addref"
	BehRelease   = "release"
)

// RegisterObjectBehaviour adds a special function to a type's behaviour table.
func (e *Engine) RegisterObjectBehaviour(typeName, beh, decl, bind string) (int, error) {
	ot, err := e.lookupType(typeName)
	if err != nil {
		return 0, err
	}
	f, err := e.parseFunction(decl, ot, templateOf(ot))
	if err != nil {
		return 0, err
	}
	f.Kind = types.SystemFunc
	f.Bind = bind
	return e.AddBehaviour(ot, beh, f)
}

// AddBehaviour stores f in ot's behaviour table under beh.
func (e *Engine) AddBehaviour(ot *types.ObjectType, beh string, f *types.Function) (int, error) {
	switch beh {
	case BehConstruct:
		if ot.Flags&types.FlagRef != 0 && ot.Flags&types.FlagScript == 0 {
			return 0, fmt.Errorf("ref type '%s' must use factories, not constructors", ot.Name)
		}
		f.Name = ot.Name
		f.Return = types.Primitive(types.Void, false)
		id := e.AddFunction(f)
		ot.Beh.Constructors = append(ot.Beh.Constructors, id)
		if len(f.Params) == 0 {
			ot.Beh.Construct = id
		}
		return id, nil
	case BehFactory:
		f.Object = nil
		f.Name = ot.Name
		id := e.AddFunction(f)
		ot.Beh.Factories = append(ot.Beh.Factories, id)
		hidden := 0
		if ot.Flags&types.FlagTemplate != 0 {
			hidden = 1
		}
		if len(f.Params) == hidden {
			ot.Beh.Factory = id
		}
		return id, nil
	case BehDestruct:
		f.Name = "~" + ot.Name
		id := e.AddFunction(f)
		ot.Beh.Destruct = id
		return id, nil
	case BehAddRef:
		id := e.AddFunction(f)
		ot.Beh.AddRef = id
		return id, nil
	case BehRelease:
		id := e.AddFunction(f)
		ot.Beh.Release = id
		return id, nil
	}

	b, ok := types.BehaviourByName(beh)
	if !ok || b >= types.BehAdd {
		return 0, fmt.Errorf("unknown object behaviour '%s'", beh)
	}
	f.Name = beh
	id := e.AddFunction(f)
	ot.Beh.Operators = append(ot.Beh.Operators, types.BehaviourFunc{Beh: b, Func: id})
	if b == types.BehAssign && len(f.Params) == 1 && f.Params[0].Object == ot && !f.Params[0].Handle {
		ot.Beh.Copy = id
	}
	return id, nil
}

// RegisterGlobalFunction adds a host function callable from scripts.
func (e *Engine) RegisterGlobalFunction(decl, bind string) (int, error) {
	f, err := e.parseFunction(decl, nil, nil)
	if err != nil {
		return 0, err
	}
	f.Kind = types.SystemFunc
	f.Bind = bind
	return e.AddGlobalFunction(f), nil
}

// RegisterGlobalBehaviour adds a dual operator such as opAdd taking two operands.
func (e *Engine) RegisterGlobalBehaviour(beh, decl, bind string) (int, error) {
	b, ok := types.BehaviourByName(beh)
	if !ok || b < types.BehAdd {
		return 0, fmt.Errorf("unknown global behaviour '%s'", beh)
	}
	f, err := e.parseFunction(decl, nil, nil)
	if err != nil {
		return 0, err
	}
	if len(f.Params) != 2 {
		return 0, fmt.Errorf("global behaviour '%s' must take two parameters", beh)
	}
	f.Kind = types.SystemFunc
	f.Bind = bind
	f.Name = beh
	id := e.AddFunction(f)
	e.GlobalBehaviours = append(e.GlobalBehaviours, types.BehaviourFunc{Beh: b, Func: id})
	return id, nil
}

// RegisterStringFactory sets the function that turns a string constant id into a string object.
func (e *Engine) RegisterStringFactory(decl, bind string) (int, error) {
	f, err := e.parseFunction(decl, nil, nil)
	if err != nil {
		return 0, err
	}
	if len(f.Params) != 1 || f.Params[0].Kind != types.Uint || f.Return.Object == nil {
		return 0, fmt.Errorf("the string factory must take a uint and return a string object")
	}
	f.Kind = types.SystemFunc
	f.Bind = bind
	f.Name = "$str"
	e.StringFactory = e.AddFunction(f)
	e.StringType = f.Return.Object
	return e.StringFactory, nil
}

// RegisterGlobalProperty adds a host global. A constant value makes it a pure constant.
func (e *Engine) RegisterGlobalProperty(decl string, value types.Constant) (*types.GlobalProperty, error) {
	node, err := parser.ParseDeclaration(decl)
	if err != nil {
		return nil, err
	}
	vd, ok := node.Data.(ast.VarDeclNode)
	if !ok {
		return nil, fmt.Errorf("%q is not a property declaration", decl)
	}
	dt, err := e.DataTypeFromSpec(vd.Type, nil)
	if err != nil {
		return nil, err
	}
	prop, err := e.AddGlobalProperty(vd.Name, dt)
	if err != nil {
		return nil, err
	}
	if value != nil {
		if !dt.IsPrimitive() || !dt.IsReadOnly() {
			return nil, fmt.Errorf("only const primitive globals can have a value: %q", decl)
		}
		prop.IsPureConstant = true
		prop.Constant = value
	}
	return prop, nil
}

// ObjectMethods lists the methods of ot named name, including inherited ones that are not overridden.
func (e *Engine) ObjectMethods(ot *types.ObjectType, name string) []int {
	var ids []int
	var seen []*types.Function
	for t := ot; t != nil; t = t.Base {
	next:
		for _, id := range t.Methods {
			f := e.Funcs[id]
			if f.Name != name {
				continue
			}
			for _, s := range seen {
				if s.IsSignatureEqual(f) {
					continue next
				}
			}
			seen = append(seen, f)
			ids = append(ids, id)
		}
	}
	return ids
}

// TypeID gives every data type a stable number for the executor's variable type arguments.
func TypeID(dt types.DataType) int {
	if dt.Kind == types.Object && dt.Object != nil {
		id := 64 + dt.Object.ID
		if dt.Handle {
			id |= 1 << 20
		}
		return id
	}
	if dt.Kind == types.Enum {
		return int(types.Int)
	}
	return int(dt.Kind)
}
