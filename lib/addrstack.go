package lib

import "github.com/bnclabs/incmark/api"

// Addrchunk number of addresses held by a single chunk of Addrstack.
const Addrchunk = 1019

// Addrstack is a growable LIFO of addresses. Entries are held in fixed
// size chunks, growing the stack never copies pushed entries and
// drained chunks are recycled.
type Addrstack struct {
	chunks [][]api.Addr // full chunks, excluding cur
	cur    []api.Addr
	spare  [][]api.Addr
	n      int
}

// NewAddrstack return an empty stack.
func NewAddrstack() *Addrstack {
	return &Addrstack{cur: make([]api.Addr, 0, Addrchunk)}
}

// Append push addr on top of the stack.
func (s *Addrstack) Append(addr api.Addr) {
	if len(s.cur) == cap(s.cur) {
		if cap(s.cur) > 0 {
			s.chunks = append(s.chunks, s.cur)
		}
		s.cur = s.newchunk()
	}
	s.cur = append(s.cur, addr)
	s.n++
}

// Pop the top of the stack, panics on empty stack.
func (s *Addrstack) Pop() api.Addr {
	if len(s.cur) == 0 {
		if len(s.chunks) == 0 {
			panic("Addrstack.Pop(): empty stack")
		}
		s.spare = append(s.spare, s.cur[:0])
		last := len(s.chunks) - 1
		s.cur, s.chunks = s.chunks[last], s.chunks[:last]
	}
	last := len(s.cur) - 1
	addr := s.cur[last]
	s.cur = s.cur[:last]
	s.n--
	return addr
}

// Top return the top of the stack without removing it.
func (s *Addrstack) Top() api.Addr {
	if len(s.cur) > 0 {
		return s.cur[len(s.cur)-1]
	} else if len(s.chunks) > 0 {
		chunk := s.chunks[len(s.chunks)-1]
		return chunk[len(chunk)-1]
	}
	panic("Addrstack.Top(): empty stack")
}

// Nonempty return true if stack has atleast one entry.
func (s *Addrstack) Nonempty() bool {
	return s.n > 0
}

// Len return number of entries in the stack.
func (s *Addrstack) Len() int {
	return s.n
}

// Foreach call fn for every entry, bottom to top. fn shall not mutate
// the stack.
func (s *Addrstack) Foreach(fn func(addr api.Addr)) {
	for _, chunk := range s.chunks {
		for _, addr := range chunk {
			fn(addr)
		}
	}
	for _, addr := range s.cur {
		fn(addr)
	}
}

// Contains return true if addr is in the stack, linear scan.
func (s *Addrstack) Contains(addr api.Addr) (ok bool) {
	s.Foreach(func(a api.Addr) {
		if a == addr {
			ok = true
		}
	})
	return ok
}

// Filter keep only those entries for which keep returns true, order
// of the kept entries is preserved.
func (s *Addrstack) Filter(keep func(addr api.Addr) bool) {
	old := s.Tolist()
	s.Clear()
	for _, addr := range old {
		if keep(addr) {
			s.Append(addr)
		}
	}
}

// Tolist return a copy of the entries, bottom to top.
func (s *Addrstack) Tolist() []api.Addr {
	list := make([]api.Addr, 0, s.n)
	s.Foreach(func(addr api.Addr) { list = append(list, addr) })
	return list
}

// Clear remove all entries, chunks are retained for reuse.
func (s *Addrstack) Clear() {
	for _, chunk := range s.chunks {
		s.spare = append(s.spare, chunk[:0])
	}
	s.chunks, s.cur, s.n = s.chunks[:0], s.cur[:0], 0
}

// Swap contents of two stacks.
func (s *Addrstack) Swap(other *Addrstack) {
	*s, *other = *other, *s
}

func (s *Addrstack) newchunk() []api.Addr {
	if ln := len(s.spare); ln > 0 {
		chunk := s.spare[ln-1]
		s.spare = s.spare[:ln-1]
		return chunk
	}
	return make([]api.Addr, 0, Addrchunk)
}
