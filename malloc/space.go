package malloc

import "sort"
import "encoding/binary"

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"

// Spacebase first address handed out by a Space, addresses below this
// are never mapped so that small integers never alias an object.
const Spacebase = api.Addr(0x10000)

// Spacealign every mapped region starts at a multiple of Spacealign,
// with atleast one unmapped Spacealign gap between regions.
const Spacealign = int64(0x10000)

// Space is a simulated flat address space. Regions are mapped and
// unmapped like anonymous memory from the OS, and never reused once
// unmapped, so that a stale address always faults. Freshly mapped
// memory is zero filled.
type Space struct {
	// 64-bit aligned stats
	mapped   int64
	peak     int64
	nmaps    int64
	nunmaps  int64
	capacity int64

	regions []*region // sorted by base address
	last    *region
	next    api.Addr
}

type region struct {
	base  api.Addr
	limit api.Addr
	mem   []byte
}

// NewSpace create an address space that can map upto "capacity"
// bytes.
func NewSpace(setts s.Settings) *Space {
	setts = make(s.Settings).Mixin(Defaultspacesettings(), setts)
	space := &Space{
		capacity: setts.Int64("capacity"),
		regions:  make([]*region, 0, 64),
		next:     Spacebase,
	}
	return space
}

// Mmap map a new region of atleast `size` bytes, rounded up to
// Alignment.
func (space *Space) Mmap(size int64) (api.Addr, error) {
	if size <= 0 {
		panicerr("Mmap(): invalid size %v", size)
	}
	size = Roundup(size, Alignment)
	if space.mapped+size > space.capacity {
		return api.NULL, api.ErrorOutofMemory
	}
	base := space.next
	r := &region{base: base, limit: base + api.Addr(size)}
	r.mem = make([]byte, size)
	space.regions = append(space.regions, r)
	space.next = api.Addr(Roundup(int64(r.limit), Spacealign)) +
		api.Addr(Spacealign)

	space.mapped += size
	if space.mapped > space.peak {
		space.peak = space.mapped
	}
	space.nmaps++
	return base, nil
}

// Munmap unmap the region starting at `base`, return the size of the
// region.
func (space *Space) Munmap(base api.Addr) int64 {
	i := space.search(base)
	if i >= len(space.regions) || space.regions[i].base != base {
		panicerr("Munmap(): %x is not a mapped region", base)
	}
	r := space.regions[i]
	copy(space.regions[i:], space.regions[i+1:])
	space.regions[len(space.regions)-1] = nil
	space.regions = space.regions[:len(space.regions)-1]
	if space.last == r {
		space.last = nil
	}
	size := int64(len(r.mem))
	freeblock(r.mem)
	r.mem = nil
	space.mapped -= size
	space.nunmaps++
	return size
}

// Ismapped return true if addr falls inside a mapped region.
func (space *Space) Ismapped(addr api.Addr) bool {
	return space.lookup(addr) != nil
}

// Regionof return the base and limit of the region holding addr.
func (space *Space) Regionof(addr api.Addr) (base, limit api.Addr, ok bool) {
	if r := space.lookup(addr); r != nil {
		return r.base, r.limit, true
	}
	return api.NULL, api.NULL, false
}

// Bytes return a slice aliasing [addr, addr+n), the range shall not
// cross a region.
func (space *Space) Bytes(addr api.Addr, n int64) []byte {
	r := space.region(addr)
	off := int64(addr - r.base)
	if off+n > int64(len(r.mem)) {
		panicerr("Bytes(): range %x+%v crosses region %x", addr, n, r.base)
	}
	return r.mem[off : off+n]
}

// Getword load a word from addr.
func (space *Space) Getword(addr api.Addr) uint64 {
	r := space.region(addr)
	return binary.LittleEndian.Uint64(r.mem[addr-r.base:])
}

// Setword store a word at addr.
func (space *Space) Setword(addr api.Addr, word uint64) {
	r := space.region(addr)
	binary.LittleEndian.PutUint64(r.mem[addr-r.base:], word)
}

// Getaddr load an address from addr.
func (space *Space) Getaddr(addr api.Addr) api.Addr {
	return api.Addr(space.Getword(addr))
}

// Setaddr store an address at addr.
func (space *Space) Setaddr(addr, value api.Addr) {
	space.Setword(addr, uint64(value))
}

// Getint load a signed word from addr.
func (space *Space) Getint(addr api.Addr) int64 {
	return int64(space.Getword(addr))
}

// Setint store a signed word at addr.
func (space *Space) Setint(addr api.Addr, value int64) {
	space.Setword(addr, uint64(value))
}

// Getbyte load a byte from addr.
func (space *Space) Getbyte(addr api.Addr) byte {
	r := space.region(addr)
	return r.mem[addr-r.base]
}

// Setbyte store a byte at addr.
func (space *Space) Setbyte(addr api.Addr, b byte) {
	r := space.region(addr)
	r.mem[addr-r.base] = b
}

// Clear zero fill [addr, addr+n).
func (space *Space) Clear(addr api.Addr, n int64) {
	if n <= 0 {
		return
	}
	dst := space.Bytes(addr, n)
	for i := range dst {
		dst[i] = 0
	}
}

// Copy n bytes from src to dst, ranges may overlap.
func (space *Space) Copy(dst, src api.Addr, n int64) {
	if n <= 0 {
		return
	}
	copy(space.Bytes(dst, n), space.Bytes(src, n))
}

// Info return memory accounting for this space.
func (space *Space) Info() (capacity, heap, alloc, overhead int64) {
	overhead = int64(len(space.regions)) * 48
	return space.capacity, space.peak, space.mapped, overhead
}

// Mapped return number of bytes currently mapped.
func (space *Space) Mapped() int64 {
	return space.mapped
}

// Capacity return the maximum bytes that can be mapped.
func (space *Space) Capacity() int64 {
	return space.capacity
}

// Available return the bytes that can still be mapped.
func (space *Space) Available() int64 {
	return space.capacity - space.mapped
}

// Stats return statistics for this space.
func (space *Space) Stats() map[string]interface{} {
	return map[string]interface{}{
		"capacity":  space.capacity,
		"mapped":    space.mapped,
		"peak":      space.peak,
		"n_mmap":    space.nmaps,
		"n_munmap":  space.nunmaps,
		"n_regions": int64(len(space.regions)),
	}
}

//---- local functions

func (space *Space) region(addr api.Addr) *region {
	if r := space.lookup(addr); r != nil {
		return r
	}
	panicerr("access to unmapped address %x", addr)
	return nil
}

func (space *Space) lookup(addr api.Addr) *region {
	if r := space.last; r != nil && addr >= r.base && addr < r.limit {
		return r
	}
	i := space.search(addr)
	if i < len(space.regions) {
		if r := space.regions[i]; addr >= r.base && addr < r.limit {
			space.last = r
			return r
		}
	}
	return nil
}

// search return the index of the first region whose limit is above
// addr.
func (space *Space) search(addr api.Addr) int {
	return sort.Search(len(space.regions), func(i int) bool {
		return space.regions[i].limit > addr
	})
}
