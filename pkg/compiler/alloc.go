package compiler

import (
	"github.com/xplshn/gasc/pkg/bytecode"
	"github.com/xplshn/gasc/pkg/types"
)

// allocator hands out stack slots for locals and temporaries. A slot keeps the type it was
// first allocated with for its whole life, so it can only be reused for that same type.
type allocator struct {
	ptr       int
	slots     []types.DataType
	temporary []bool
	free      []int
	tempVars  []int
}

func (a *allocator) slotSize(dt types.DataType) int {
	if dt.IsObject() || dt.IsNullHandle() {
		return a.ptr
	}
	return dt.SizeOnStackDWords(a.ptr)
}

// normalize maps primitives to the representative type of their size.
func normalize(dt types.DataType) types.DataType {
	dt = dt.WithRef(false)
	if dt.IsPrimitive() {
		if dt.SizeInMemoryDWords(1) == 1 {
			return types.Primitive(types.Int, false)
		}
		return types.Primitive(types.Double, false)
	}
	return dt
}

// offset returns the frame offset of a slot. Multi-dword slots are addressed by their
// highest offset, which is the lowest cell.
func (a *allocator) offset(slot int) int {
	off := 1
	for n := 0; n < slot; n++ {
		off += a.slotSize(a.slots[n])
	}
	return off + a.slotSize(a.slots[slot]) - 1
}

func (a *allocator) slotOf(offset int) int {
	for n := range a.slots {
		if a.offset(n) == offset {
			return n
		}
	}
	return -1
}

func (a *allocator) allocate(dt types.DataType, temp bool) int {
	return a.allocateNotIn(dt, temp, nil)
}

// allocateNotIn is allocate, but never returns one of excluded.
func (a *allocator) allocateNotIn(dt types.DataType, temp bool, excluded []int) int {
	t := normalize(dt)
	for i, slot := range a.free {
		if !a.slots[slot].IsEqualExceptConst(t) || a.temporary[slot] != temp {
			continue
		}
		off := a.offset(slot)
		if contains(excluded, off) {
			continue
		}
		a.free = append(a.free[:i], a.free[i+1:]...)
		if temp {
			a.tempVars = append(a.tempVars, off)
		}
		return off
	}

	a.slots = append(a.slots, t)
	a.temporary = append(a.temporary, temp)
	off := a.offset(len(a.slots) - 1)
	if temp {
		a.tempVars = append(a.tempVars, off)
	}
	return off
}

// deallocate returns the slot at offset to the free list. The dummy offset is ignored.
func (a *allocator) deallocate(offset int) {
	for i, t := range a.tempVars {
		if t == offset {
			a.tempVars = append(a.tempVars[:i], a.tempVars[i+1:]...)
			break
		}
	}
	if slot := a.slotOf(offset); slot != -1 && !contains(a.free, slot) {
		a.free = append(a.free, slot)
	}
}

func (a *allocator) isTemporary(offset int) bool {
	for _, t := range a.tempVars {
		if t == offset {
			return true
		}
	}
	return false
}

// allocatedType is the type a slot was created with, which may differ from what an
// expression currently believes it holds.
func (a *allocator) allocatedType(offset int) (types.DataType, bool) {
	slot := a.slotOf(offset)
	if slot == -1 {
		return types.DataType{}, false
	}
	return a.slots[slot], true
}

// variableSpace is the number of dwords all slots occupy.
func (a *allocator) variableSpace() int {
	size := 0
	for _, dt := range a.slots {
		size += a.slotSize(dt)
	}
	return size
}

func (a *allocator) vars() []bytecode.VarInfo {
	infos := make([]bytecode.VarInfo, len(a.slots))
	for n, dt := range a.slots {
		infos[n] = bytecode.VarInfo{Offset: a.offset(n), Type: dt, Temporary: a.temporary[n]}
	}
	return infos
}

func (a *allocator) freeOffsets() []int {
	offs := make([]int, len(a.free))
	for i, slot := range a.free {
		offs[i] = a.offset(slot)
	}
	return offs
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (c *Compiler) allocateVariable(dt types.DataType, temp bool) int {
	return c.alloc.allocate(dt, temp)
}

func (c *Compiler) allocateVariableNotIn(dt types.DataType, temp bool, excluded []int) int {
	return c.alloc.allocateNotIn(dt, temp, excluded)
}

func (c *Compiler) deallocateVariable(offset int) { c.alloc.deallocate(offset) }

// releaseTemporary destroys and frees t's slot if t is a temporary, using the type the slot
// was allocated with.
func (c *Compiler) releaseTemporary(t *exprType, bc *bytecode.Fragment) {
	if !t.isTemporary {
		return
	}
	c.releaseTemporaryOffset(t.stackOffset, bc)
}

func (c *Compiler) releaseTemporaryOffset(offset int, bc *bytecode.Fragment) {
	if bc != nil {
		if dt, ok := c.alloc.allocatedType(offset); ok {
			c.callDestructor(dt, offset, bc)
		}
	}
	c.deallocateVariable(offset)
}
