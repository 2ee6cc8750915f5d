package registry

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/gasc/pkg/types"
)

// TemplateStub is a factory of a template instance whose bytecode has not been generated yet.
// The stub forwards to Generic with the instance type as the hidden first argument.
type TemplateStub struct {
	Func     int
	Generic  int
	Instance *types.ObjectType
}

func instanceKey(tmpl *types.ObjectType, sub types.DataType) uint64 {
	return xxhash.Sum64String(tmpl.Name + "<" + sub.Format() + ">")
}

// TemplateInstance returns the concrete type for tmpl<sub>, creating it on first use.
func (e *Engine) TemplateInstance(tmpl *types.ObjectType, sub types.DataType) (*types.ObjectType, error) {
	if sub.IsVoid() || sub.Ref || sub.IsVarType() || sub.IsNullHandle() {
		return nil, fmt.Errorf("'%s' cannot be used as a template subtype", sub.Format())
	}
	if sub.Kind == types.Object && !sub.Handle && !sub.CanBeInstanced() {
		return nil, fmt.Errorf("'%s' cannot be used as a template subtype", sub.Format())
	}
	key := instanceKey(tmpl, sub)
	if inst, ok := e.instances[key]; ok {
		return inst, nil
	}

	inst := &types.ObjectType{
		Name:     fmt.Sprintf("%s<%s>", tmpl.Name, sub.Format()),
		ID:       len(e.Types) + 1,
		Flags:    tmpl.Flags &^ types.FlagTemplate,
		Size:     tmpl.Size,
		SubType:  sub,
		Template: tmpl,
	}
	e.Types = append(e.Types, inst)
	e.typeByName[inst.Name] = inst
	e.instances[key] = inst

	subst := func(dt types.DataType) types.DataType { return e.substitute(dt, tmpl, inst) }
	clone := func(id int, object *types.ObjectType) *types.Function {
		src := e.Funcs[id]
		f := &types.Function{
			Name:       src.Name,
			Object:     object,
			Return:     subst(src.Return),
			Modes:      append([]types.ParamMode(nil), src.Modes...),
			ParamNames: append([]string(nil), src.ParamNames...),
			IsConst:    src.IsConst,
			Kind:       src.Kind,
			Bind:       src.Bind,
		}
		for _, p := range src.Params {
			f.Params = append(f.Params, subst(p))
		}
		return f
	}

	inst.Beh.AddRef = tmpl.Beh.AddRef
	inst.Beh.Release = tmpl.Beh.Release
	inst.Beh.Destruct = tmpl.Beh.Destruct

	for _, id := range tmpl.Beh.Factories {
		generic := e.Funcs[id]
		if len(generic.Params) == 0 {
			return nil, fmt.Errorf("template factory '%s' lacks the hidden type parameter", generic.Declaration())
		}
		stub := clone(id, nil)
		stub.Name = inst.Name
		stub.Kind = types.ScriptFunc
		stub.Bind = ""
		stub.Params = stub.Params[1:]
		stub.Modes = stub.Modes[1:]
		if len(stub.ParamNames) > 0 {
			stub.ParamNames = stub.ParamNames[1:]
		}
		sid := e.AddFunction(stub)
		inst.Beh.Factories = append(inst.Beh.Factories, sid)
		if len(stub.Params) == 0 {
			inst.Beh.Factory = sid
		}
		e.PendingStubs = append(e.PendingStubs, TemplateStub{Func: sid, Generic: id, Instance: inst})
	}

	for _, op := range tmpl.Beh.Operators {
		f := clone(op.Func, inst)
		id := e.AddFunction(f)
		inst.Beh.Operators = append(inst.Beh.Operators, types.BehaviourFunc{Beh: op.Beh, Func: id})
		if op.Beh == types.BehAssign && len(f.Params) == 1 && f.Params[0].Object == inst && !f.Params[0].Handle {
			inst.Beh.Copy = id
		}
	}
	for _, id := range tmpl.Methods {
		inst.Methods = append(inst.Methods, e.AddFunction(clone(id, inst)))
	}
	for _, p := range tmpl.Props {
		inst.Props = append(inst.Props, &types.Property{Name: p.Name, Type: subst(p.Type), Index: p.Index})
	}
	return inst, nil
}

// substitute replaces the subtype placeholder and the template itself inside dt.
func (e *Engine) substitute(dt types.DataType, tmpl, inst *types.ObjectType) types.DataType {
	switch dt.Object {
	case e.placeholder:
		nd := inst.SubType
		if dt.Handle && !nd.Handle {
			if h, ok := nd.WithHandle(true); ok {
				nd = h
			}
		}
		if dt.Const {
			if nd.Handle && !dt.Handle {
				nd = nd.WithReadOnly(true)
			} else {
				nd.Const = true
			}
		}
		nd.Ref = dt.Ref
		return nd
	case tmpl:
		dt.Object = inst
	}
	return dt
}

// TakePendingStubs hands over the factory stubs created since the last call.
func (e *Engine) TakePendingStubs() []TemplateStub {
	stubs := e.PendingStubs
	e.PendingStubs = nil
	return stubs
}
