// Package compiler lowers checked script syntax trees into bytecode. Each entry point runs on
// a fresh Compiler value, so independent functions may be compiled on different goroutines
// as long as their builders are not shared.
package compiler

import (
	"github.com/xplshn/gasc/pkg/ast"
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/config"
	"github.com/xplshn/gasc/pkg/token"
	"github.com/xplshn/gasc/pkg/types"
	"github.com/xplshn/gasc/pkg/util"
)

// Builder answers every question the compiler has about the module being built and the
// host interface it runs against.
type Builder interface {
	Config() *config.Config
	PtrSize() int
	DataType(spec *ast.TypeSpec) (types.DataType, error)
	Function(id int) *types.Function
	GlobalFunctions(name string) []int
	ObjectMethods(ot *types.ObjectType, name string) []int
	ObjectType(name string) *types.ObjectType
	// GlobalProperty reports whether the global's initializer has already been compiled.
	GlobalProperty(name string) (prop *types.GlobalProperty, compiled bool)
	EnumValue(name string, scope *types.ObjectType) (dt types.DataType, value int64, found int)
	GlobalBehaviours() []types.BehaviourFunc
	StringFactory() int
	AddString(s string) int
	// TypeID identifies dt at run time, for variable type arguments.
	TypeID(dt types.DataType) int
}

// dummyOffset is where names that failed to resolve are declared so compilation can continue.
const dummyOffset = 0x7FFF

// exitLabel is the shared return point of every function.
const exitLabel = 0

type Compiler struct {
	b   Builder
	cfg *config.Config
	rep *util.Reporter
	ptr int

	fn            *types.Function
	isConstructor bool
	isDestructor  bool
	// isConstructorCalled tracks an explicit or implicit base constructor call.
	isConstructorCalled bool
	// compilingGlobal is set while a global variable initializer is being compiled.
	compilingGlobal bool
	// usedUncompiledGlobal is set when an initializer refers to a global that has no value yet.
	usedUncompiledGlobal bool

	scopes *scopeStack
	alloc  allocator

	nextLabel      int
	breakLabels    []int
	continueLabels []int

	hasErrors                  bool
	isProcessingDeferredParams bool

	// afterStatement, when set, runs after every statement of a block has been compiled.
	afterStatement func(c *Compiler)
}

func newCompiler(b Builder, rep *util.Reporter) *Compiler {
	c := &Compiler{
		b:         b,
		cfg:       b.Config(),
		rep:       rep,
		ptr:       b.PtrSize(),
		scopes:    newScopeStack(),
		nextLabel: exitLabel + 1,
	}
	c.alloc.ptr = c.ptr
	return c
}

func (c *Compiler) error(tok token.Token, format string, args ...any) {
	c.hasErrors = true
	c.rep.Error(tok, format, args...)
}

func (c *Compiler) warn(wt config.Warning, tok token.Token, format string, args ...any) {
	c.rep.Warn(wt, tok, format, args...)
}

func (c *Compiler) feature(ft config.Feature) bool { return c.cfg.IsFeatureEnabled(ft) }

func (c *Compiler) newLabel() int {
	l := c.nextLabel
	c.nextLabel++
	return l
}

func (c *Compiler) lineInstr(bc *bytecode.Fragment, node *ast.Node) {
	if node != nil && c.feature(config.FeatLineCues) {
		bc.Line(node.Tok.Line)
	}
}

// nodeTok returns a token usable for diagnostics even when node is missing.
func nodeTok(node *ast.Node) token.Token {
	if node == nil {
		return token.Token{}
	}
	return node.Tok
}

func (c *Compiler) funcDesc(id int) *types.Function { return c.b.Function(id) }

func (c *Compiler) voidType() types.DataType { return types.Primitive(types.Void, false) }
