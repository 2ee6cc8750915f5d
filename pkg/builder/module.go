package builder

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/parser"
	"github.com/xplshn/gasc/pkg/registry"
	"github.com/xplshn/gasc/pkg/types"
)

// Module is a compiled script: the bytecode of its functions, the initializers of its
// globals in the order they must run, and its string constants.
type Module struct {
	Name      string
	Engine    *registry.Engine
	Functions map[int]*bytecode.Function
	Inits     []*bytecode.Function
	Strings   []string
}

// Code returns the bytecode of a script function, or nil for host functions.
func (m *Module) Code(id int) *bytecode.Function { return m.Functions[id] }

// FindFunction resolves a global function by its declaration, such as "int main()".
func (m *Module) FindFunction(decl string) (*types.Function, error) {
	node, err := parser.ParseDeclaration(decl)
	if err != nil {
		return nil, err
	}
	want, err := m.Engine.FunctionFromDecl(node, nil, nil)
	if err != nil {
		return nil, err
	}
	for _, id := range m.Engine.GlobalFunctions(want.Name) {
		f := m.Engine.Function(id)
		if f.IsSignatureEqual(want) && f.Return == want.Return {
			if m.Functions[id] == nil {
				return nil, fmt.Errorf("function '%s' has no compiled code", f.Declaration())
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("no function matches '%s'", decl)
}

// Disassemble lists the global initializers, then every function by id.
func (m *Module) Disassemble(w io.Writer) {
	for _, fn := range m.Inits {
		fn.Disassemble(w, m.Engine)
	}
	ids := make([]int, 0, len(m.Functions))
	for id := range m.Functions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		m.Functions[id].Disassemble(w, m.Engine)
	}
}

func (m *Module) Listing() string {
	var sb strings.Builder
	m.Disassemble(&sb)
	return sb.String()
}
