package malloc

import "github.com/bnclabs/incmark/api"

// Rawmalloc allocates objects too large for ArenaCollection, each one
// in its own region. Optionally prepends card bytes below the returned
// address, card byte `i` is at `addr - 1 - i`.
type Rawmalloc struct {
	// 64-bit aligned stats
	totalsize int64
	count     int64
	nmallocs  int64
	nfrees    int64

	space *Space
}

// NewRawmalloc create a raw allocator over space.
func NewRawmalloc(space *Space) *Rawmalloc {
	return &Rawmalloc{space: space}
}

// Malloc implement api.Mallocer{} interface.
func (raw *Rawmalloc) Malloc(n int64) (api.Addr, error) {
	return raw.Mallocwithcards(0, n)
}

// Mallocwithcards allocate `size` bytes with `cardbytes` bytes of card
// space below it, cardbytes shall be a multiple of Alignment. Memory,
// including card bytes, is zero filled.
func (raw *Rawmalloc) Mallocwithcards(cardbytes, size int64) (api.Addr, error) {
	if cardbytes < 0 || cardbytes%Alignment != 0 {
		panicerr("Mallocwithcards(): invalid cardbytes %v", cardbytes)
	} else if size <= 0 {
		panicerr("Mallocwithcards(): invalid size %v", size)
	}
	base, err := raw.space.Mmap(cardbytes + size)
	if err != nil {
		return api.NULL, err
	}
	raw.totalsize += Roundup(cardbytes+size, Alignment)
	raw.count++
	raw.nmallocs++
	return base + api.Addr(cardbytes), nil
}

// Free memory allocated by Malloc or Mallocwithcards, the same
// cardbytes shall be supplied.
func (raw *Rawmalloc) Free(addr api.Addr, cardbytes int64) {
	n := raw.space.Munmap(addr - api.Addr(cardbytes))
	raw.totalsize -= n
	raw.count--
	raw.nfrees++
}

// Totalsize return bytes held by live raw allocations.
func (raw *Rawmalloc) Totalsize() int64 {
	return raw.totalsize
}

// Count return number of live raw allocations.
func (raw *Rawmalloc) Count() int64 {
	return raw.count
}

// Release implement api.Mallocer{} interface. Raw allocations are
// owned by their callers, Release only drops the accounting.
func (raw *Rawmalloc) Release() {
	raw.totalsize, raw.count = 0, 0
}

// Info implement api.Mallocer{} interface.
func (raw *Rawmalloc) Info() (capacity, heap, alloc, overhead int64) {
	return raw.space.Capacity(), raw.totalsize, raw.totalsize, 0
}

// Utilization implement api.Mallocer{} interface, raw allocations
// are not size classed.
func (raw *Rawmalloc) Utilization() ([]int, []float64) {
	return []int{}, []float64{}
}

// Stats return statistics for raw allocations.
func (raw *Rawmalloc) Stats() map[string]interface{} {
	return map[string]interface{}{
		"totalsize": raw.totalsize,
		"count":     raw.count,
		"n_mallocs": raw.nmallocs,
		"n_frees":   raw.nfrees,
	}
}
