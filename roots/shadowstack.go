// Package roots supplies a root walker for the collector. Roots are
// held in a shadow stack of slots living inside the collector's
// address space, so that a minor collection can rewrite them in place.
package roots

import "fmt"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/malloc"

// Shadowstack is a stack of root slots. Each slot is one word holding
// an object address or api.NULL.
type Shadowstack struct {
	space *malloc.Space
	base  api.Addr
	depth int64
	top   int64 // number of pushed slots
}

// NewShadowstack map a stack of `depth` slots from space.
func NewShadowstack(space *malloc.Space, depth int64) (*Shadowstack, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("invalid shadowstack depth %v", depth)
	}
	base, err := space.Mmap(depth * api.WORD)
	if err != nil {
		return nil, err
	}
	return &Shadowstack{space: space, base: base, depth: depth}, nil
}

// Push obj as a new root and return its slot.
func (ss *Shadowstack) Push(obj api.Addr) api.Addr {
	if ss.top >= ss.depth {
		panic(fmt.Errorf("shadowstack overflow, depth %v", ss.depth))
	}
	slot := ss.base + api.Addr(ss.top*api.WORD)
	ss.space.Setaddr(slot, obj)
	ss.top++
	return slot
}

// Pop the top root and return the object it refers to.
func (ss *Shadowstack) Pop() api.Addr {
	if ss.top == 0 {
		panic(fmt.Errorf("shadowstack underflow"))
	}
	ss.top--
	slot := ss.base + api.Addr(ss.top*api.WORD)
	obj := ss.space.Getaddr(slot)
	ss.space.Setaddr(slot, api.NULL)
	return obj
}

// Get return the object referred by the n-th root, from bottom.
func (ss *Shadowstack) Get(n int64) api.Addr {
	return ss.space.Getaddr(ss.Slot(n))
}

// Set the n-th root, from bottom.
func (ss *Shadowstack) Set(n int64, obj api.Addr) {
	ss.space.Setaddr(ss.Slot(n), obj)
}

// Slot return the address of n-th root slot.
func (ss *Shadowstack) Slot(n int64) api.Addr {
	if n < 0 || n >= ss.top {
		panic(fmt.Errorf("root %v out of range [0,%v)", n, ss.top))
	}
	return ss.base + api.Addr(n*api.WORD)
}

// Len return the number of pushed roots.
func (ss *Shadowstack) Len() int64 {
	return ss.top
}

// Truncate drop roots above `n`.
func (ss *Shadowstack) Truncate(n int64) {
	for ss.top > n {
		ss.Pop()
	}
}

// Walkroots implement api.RootWalker{} interface. NULL slots are
// skipped.
func (ss *Shadowstack) Walkroots(callback api.Slotcallback) {
	for n := int64(0); n < ss.top; n++ {
		slot := ss.base + api.Addr(n*api.WORD)
		if ss.space.Getaddr(slot) != api.NULL {
			callback(slot)
		}
	}
}
