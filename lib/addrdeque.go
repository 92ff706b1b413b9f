package lib

import "github.com/bnclabs/incmark/api"

// Addrdeque is a FIFO of addresses, with append at the right and pop
// at the left.
type Addrdeque struct {
	items []api.Addr
	head  int
}

// NewAddrdeque return an empty deque.
func NewAddrdeque() *Addrdeque {
	return &Addrdeque{items: make([]api.Addr, 0, 16)}
}

// Append addr at the right end.
func (d *Addrdeque) Append(addr api.Addr) {
	if d.head > 0 && d.head == len(d.items) {
		d.items, d.head = d.items[:0], 0
	}
	d.items = append(d.items, addr)
}

// Popleft remove and return the leftmost entry, panics if empty.
func (d *Addrdeque) Popleft() api.Addr {
	if d.head >= len(d.items) {
		panic("Addrdeque.Popleft(): empty deque")
	}
	addr := d.items[d.head]
	d.head++
	if d.head > 1024 && d.head*2 > len(d.items) {
		n := copy(d.items, d.items[d.head:])
		d.items, d.head = d.items[:n], 0
	}
	return addr
}

// Peekleft return the leftmost entry without removing it.
func (d *Addrdeque) Peekleft() api.Addr {
	if d.head >= len(d.items) {
		panic("Addrdeque.Peekleft(): empty deque")
	}
	return d.items[d.head]
}

// Nonempty return true if deque has atleast one entry.
func (d *Addrdeque) Nonempty() bool {
	return d.head < len(d.items)
}

// Len return the number of entries.
func (d *Addrdeque) Len() int {
	return len(d.items) - d.head
}

// Foreach call fn for entries, left to right.
func (d *Addrdeque) Foreach(fn func(addr api.Addr)) {
	for _, addr := range d.items[d.head:] {
		fn(addr)
	}
}

// Clear remove all entries.
func (d *Addrdeque) Clear() {
	d.items, d.head = d.items[:0], 0
}
