package compiler

import (
	"fmt"

	"github.com/xplshn/gasc/pkg/types"
)

type variable struct {
	name         string
	dt           types.DataType
	offset       int
	initialized  bool
	pureConstant bool
	constant     types.Constant
}

// scopeRecord is one block's worth of declarations. Parent is the index of the enclosing
// record, or -1 for the function's outermost scope.
type scopeRecord struct {
	parent          int
	vars            []*variable
	isBreakScope    bool
	isContinueScope bool
}

type scopeStack struct {
	records []scopeRecord
}

func newScopeStack() *scopeStack { return &scopeStack{} }

func (s *scopeStack) push(isBreak, isContinue bool) {
	s.records = append(s.records, scopeRecord{
		parent:          len(s.records) - 1,
		isBreakScope:    isBreak,
		isContinueScope: isContinue,
	})
}

func (s *scopeStack) pop() {
	if len(s.records) > 0 {
		s.records = s.records[:len(s.records)-1]
	}
}

func (s *scopeStack) current() *scopeRecord {
	if len(s.records) == 0 {
		return nil
	}
	return &s.records[len(s.records)-1]
}

func (s *scopeStack) depth() int { return len(s.records) }

// declare adds name to the innermost scope. Empty names are anonymous and never clash.
func (s *scopeStack) declare(name string, dt types.DataType, offset int) (*variable, error) {
	cur := s.current()
	if cur == nil {
		return nil, fmt.Errorf("no active scope")
	}
	if name != "" {
		for _, v := range cur.vars {
			if v.name == name {
				return nil, fmt.Errorf("'%s' is already declared", name)
			}
		}
	}
	v := &variable{name: name, dt: dt, offset: offset}
	cur.vars = append(cur.vars, v)
	return v, nil
}

// lookup finds the nearest declaration of name.
func (s *scopeStack) lookup(name string) *variable {
	for i := len(s.records) - 1; i >= 0; i = s.records[i].parent {
		vars := s.records[i].vars
		for j := len(vars) - 1; j >= 0; j-- {
			if vars[j].name == name {
				return vars[j]
			}
		}
	}
	return nil
}

func (s *scopeStack) lookupByOffset(offset int) *variable {
	for i := len(s.records) - 1; i >= 0; i = s.records[i].parent {
		for _, v := range s.records[i].vars {
			if v.offset == offset {
				return v
			}
		}
	}
	return nil
}

// boundOffsets lists the offsets of every named local in the active chain.
func (s *scopeStack) boundOffsets() []int {
	var offs []int
	for i := len(s.records) - 1; i >= 0; i = s.records[i].parent {
		for _, v := range s.records[i].vars {
			if v.offset > 0 && v.offset != dummyOffset {
				offs = append(offs, v.offset)
			}
		}
	}
	return offs
}
