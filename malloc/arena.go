package malloc

import "fmt"
import "math"

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

// ArenaCollection serves small, non-moving chunks. Memory is mapped
// from Space in arenas, each arena is sliced into pages and each page
// serves chunks of one size class. Chunks are never freed one by one,
// they are released in bulk by sweeping, see MassFreePrepare and
// MassFreeIncremental.
type ArenaCollection struct {
	// 64-bit aligned stats
	totalmemoryused    int64
	totalmemoryalloced int64
	peakmemoryused     int64
	nmallocs           int64
	nfrees             int64
	narenas            int64

	space *Space

	// per size class, index is size/Alignment
	pagefor   [][]*page // pages with atleast one free chunk
	fullpages [][]*page
	tosweep   [][]*page // pages yet to be swept in current sweep
	sweeping  bool
	sweepidx  int

	arenas    []*arena // arenas with free pages, last one used first
	allarenas map[api.Addr]*arena
	nfreepg   int64

	// settings
	arenasize    int64
	pagesize     int64
	smallrequest int64
	npages       int64
}

type arena struct {
	base      api.Addr
	freepages []int64
	pages     []*page // indexed by page number, nil if free
	npages    int64
}

// NewArenaCollection create a new collection mapping arenas from
// space.
func NewArenaCollection(space *Space, setts s.Settings) *ArenaCollection {
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	ac := &ArenaCollection{space: space}
	ac.readsettings(setts)

	nclasses := ac.smallrequest/Alignment + 1
	ac.pagefor = make([][]*page, nclasses)
	ac.fullpages = make([][]*page, nclasses)
	ac.tosweep = make([][]*page, nclasses)
	ac.arenas = make([]*arena, 0, 16)
	ac.allarenas = make(map[api.Addr]*arena)

	fmsg := "arenas of %v, pages of %v, small requests upto %v\n"
	arsz, pgsz := humanize.Bytes(uint64(ac.arenasize)), ac.pagesize
	debugf(fmsg, arsz, humanize.Bytes(uint64(pgsz)), ac.smallrequest)
	return ac
}

func (ac *ArenaCollection) readsettings(setts s.Settings) {
	ac.arenasize = setts.Int64("arenasize")
	ac.pagesize = setts.Int64("pagesize")
	ac.smallrequest = setts.Int64("smallrequest")
	if ac.pagesize%Alignment != 0 {
		panicerr("pagesize %v is not multiple of %v", ac.pagesize, Alignment)
	} else if ac.arenasize < ac.pagesize {
		panicerr("arenasize %v < pagesize %v", ac.arenasize, ac.pagesize)
	} else if ac.smallrequest > ac.pagesize {
		panicerr("smallrequest %v > pagesize %v", ac.smallrequest, ac.pagesize)
	} else if ac.smallrequest < Alignment {
		panicerr("smallrequest %v < %v", ac.smallrequest, Alignment)
	} else if ac.smallrequest%Alignment != 0 {
		fmsg := "smallrequest %v is not multiple of %v"
		panicerr(fmsg, ac.smallrequest, Alignment)
	}
	ac.npages = ac.arenasize / ac.pagesize
}

//---- operations

// Malloc implement api.Mallocer{} interface. Allocate a chunk of atleast
// `n` bytes, n shall not exceed "smallrequest".
func (ac *ArenaCollection) Malloc(n int64) (api.Addr, error) {
	if n <= 0 || n > ac.smallrequest {
		panicerr("Malloc(): size %v out of range (0,%v]", n, ac.smallrequest)
	}
	size := Roundup(n, Alignment)
	class := size / Alignment
	pages := ac.pagefor[class]
	if len(pages) == 0 {
		pg, err := ac.allocatenewpage(size)
		if err != nil {
			return api.NULL, err
		}
		pages = append(pages, pg)
		ac.pagefor[class] = pages
	}
	pg := pages[len(pages)-1]
	chunk, _ := pg.allocchunk()
	if pg.isfull() {
		ac.pagefor[class] = pages[:len(pages)-1]
		ac.fullpages[class] = append(ac.fullpages[class], pg)
	}
	ac.space.Clear(chunk, size)
	ac.totalmemoryused += size
	if ac.totalmemoryused > ac.peakmemoryused {
		ac.peakmemoryused = ac.totalmemoryused
	}
	ac.nmallocs++
	return chunk, nil
}

// MassFreePrepare start a sweep. Every page holding chunks is set
// aside to be swept, new allocations are served from fresh pages or
// pages that are already swept.
func (ac *ArenaCollection) MassFreePrepare() {
	if ac.sweeping {
		panicerr("MassFreePrepare(): sweep already in progress")
	}
	for class := range ac.pagefor {
		tosweep := ac.tosweep[class][:0]
		tosweep = append(tosweep, ac.pagefor[class]...)
		tosweep = append(tosweep, ac.fullpages[class]...)
		for _, pg := range tosweep {
			pg.unswept = true
		}
		ac.tosweep[class] = tosweep
		ac.pagefor[class] = nil
		ac.fullpages[class] = nil
	}
	ac.sweeping, ac.sweepidx = true, 0
}

// MassFreeIncremental sweep atmost `maxpages` pages. Chunks for which
// ok() returns true are freed. Return true when the sweep is complete.
func (ac *ArenaCollection) MassFreeIncremental(
	ok func(api.Addr) bool, maxpages int64) bool {

	if !ac.sweeping {
		return true
	}
	for ; ac.sweepidx < len(ac.tosweep); ac.sweepidx++ {
		class := ac.sweepidx
		for len(ac.tosweep[class]) > 0 {
			if maxpages <= 0 {
				return false
			}
			pages := ac.tosweep[class]
			pg := pages[len(pages)-1]
			ac.tosweep[class] = pages[:len(pages)-1]
			ac.sweeppage(pg, ok)
			maxpages--
		}
	}
	ac.sweeping = false
	return true
}

// MassFree sweep all pages in one go.
func (ac *ArenaCollection) MassFree(ok func(api.Addr) bool) {
	ac.MassFreePrepare()
	for !ac.MassFreeIncremental(ok, math.MaxInt64) {
	}
}

// Sweeping return true if a sweep is in progress.
func (ac *ArenaCollection) Sweeping() bool {
	return ac.sweeping
}

// Foreach call fn for every allocated chunk, swept or not.
func (ac *ArenaCollection) Foreach(fn func(chunk api.Addr, size int64)) {
	walk := func(lists [][]*page) {
		for _, pages := range lists {
			for _, pg := range pages {
				for nth := int64(0); nth < pg.nblocks; nth++ {
					if pg.isallocated(nth) {
						fn(pg.base+api.Addr(nth*pg.size), pg.size)
					}
				}
			}
		}
	}
	walk(ac.pagefor)
	walk(ac.fullpages)
	walk(ac.tosweep)
}

// Unswept return true if chunk holding addr is in a page that the
// current sweep has not reached yet.
func (ac *ArenaCollection) Unswept(addr api.Addr) bool {
	pg, _ := ac.chunkof(addr)
	return ac.sweeping && pg != nil && pg.unswept
}

// Freebytes return bytes in free pages of mapped arenas, available
// without mapping more memory.
func (ac *ArenaCollection) Freebytes() int64 {
	return ac.nfreepg * ac.pagesize
}

// Mapneeded return an upper bound on bytes to be mapped from space
// for allocating `n` bytes of chunks, in any mix of size classes.
func (ac *ArenaCollection) Mapneeded(n int64) int64 {
	// every size class may start a new page, and chunks waste atmost
	// half of each page.
	pages := 2*n/ac.pagesize + int64(len(ac.pagefor))
	if pages <= ac.nfreepg {
		return 0
	}
	narenas := (pages - ac.nfreepg + ac.npages - 1) / ac.npages
	return narenas * ac.arenasize
}

// Contains return true if addr is the start of an allocated chunk.
func (ac *ArenaCollection) Contains(addr api.Addr) bool {
	pg, nth := ac.chunkof(addr)
	if pg == nil || pg.base+api.Addr(nth*pg.size) != addr {
		return false
	}
	return pg.isallocated(nth)
}

// Chunksize return the size of chunk holding addr, 0 if addr is not
// inside an allocated chunk.
func (ac *ArenaCollection) Chunksize(addr api.Addr) int64 {
	if pg, nth := ac.chunkof(addr); pg != nil && pg.isallocated(nth) {
		return pg.size
	}
	return 0
}

// TotalMemoryUsed return bytes in allocated chunks.
func (ac *ArenaCollection) TotalMemoryUsed() int64 {
	return ac.totalmemoryused
}

// TotalMemoryAlloced return bytes mapped for arenas.
func (ac *ArenaCollection) TotalMemoryAlloced() int64 {
	return ac.totalmemoryalloced
}

// Release implement api.Mallocer{} interface.
func (ac *ArenaCollection) Release() {
	for base := range ac.allarenas {
		ac.space.Munmap(base)
	}
	for class := range ac.pagefor {
		ac.pagefor[class], ac.fullpages[class] = nil, nil
		ac.tosweep[class] = nil
	}
	ac.arenas, ac.nfreepg = nil, 0
	ac.allarenas = make(map[api.Addr]*arena)
	ac.totalmemoryused, ac.totalmemoryalloced, ac.narenas = 0, 0, 0
	ac.sweeping = false
}

// Info implement api.Mallocer{} interface.
func (ac *ArenaCollection) Info() (capacity, heap, alloc, overhead int64) {
	npages := int64(0)
	count := func(lists [][]*page) {
		for _, pages := range lists {
			npages += int64(len(pages))
		}
	}
	count(ac.pagefor)
	count(ac.fullpages)
	count(ac.tosweep)
	overhead = npages * (80 + (ac.pagesize/Alignment)*2)
	capacity = ac.space.Capacity()
	return capacity, ac.totalmemoryalloced, ac.totalmemoryused, overhead
}

// Utilization implement api.Mallocer{} interface.
func (ac *ArenaCollection) Utilization() ([]int, []float64) {
	sizes, zs := []int{}, []float64{}
	for class := range ac.pagefor {
		var used, capacity int64
		tally := func(pages []*page) {
			for _, pg := range pages {
				used += pg.nallocated() * pg.size
				capacity += ac.pagesize
			}
		}
		tally(ac.pagefor[class])
		tally(ac.fullpages[class])
		tally(ac.tosweep[class])
		if capacity == 0 {
			continue
		}
		sizes = append(sizes, class*int(Alignment))
		zs = append(zs, (float64(used)/float64(capacity))*100)
	}
	return sizes, zs
}

// Stats return statistics for this collection.
func (ac *ArenaCollection) Stats() map[string]interface{} {
	return map[string]interface{}{
		"totalmemoryused":    ac.totalmemoryused,
		"totalmemoryalloced": ac.totalmemoryalloced,
		"peakmemoryused":     ac.peakmemoryused,
		"n_mallocs":          ac.nmallocs,
		"n_frees":            ac.nfrees,
		"n_arenas":           ac.narenas,
		"n_freepages":        ac.nfreepg,
	}
}

// Log arena collection statistics.
func (ac *ArenaCollection) Log() {
	sizes, zs := ac.Utilization()
	used := humanize.Bytes(uint64(ac.totalmemoryused))
	alloced := humanize.Bytes(uint64(ac.totalmemoryalloced))
	infof("arenas: %v used out of %v in %v arenas\n", used, alloced, ac.narenas)
	for i, size := range sizes {
		infof("  size %4v utilization %.2f%%\n", size, zs[i])
	}
}

//---- local functions

func (ac *ArenaCollection) allocatenewpage(size int64) (*page, error) {
	if len(ac.arenas) == 0 {
		if err := ac.allocatenewarena(); err != nil {
			return nil, err
		}
	}
	ar := ac.arenas[len(ac.arenas)-1]
	index := ar.freepages[len(ar.freepages)-1]
	ar.freepages = ar.freepages[:len(ar.freepages)-1]
	if len(ar.freepages) == 0 {
		ac.arenas = ac.arenas[:len(ac.arenas)-1]
	}
	ac.nfreepg--
	pg := newpage(ar, index, ac.pagesize, size)
	ar.pages[index] = pg
	return pg, nil
}

func (ac *ArenaCollection) allocatenewarena() error {
	base, err := ac.space.Mmap(ac.arenasize)
	if err != nil {
		return err
	}
	ar := &arena{base: base, npages: ac.npages}
	ar.pages = make([]*page, ac.npages)
	ar.freepages = make([]int64, 0, ac.npages)
	for i := ac.npages - 1; i >= 0; i-- {
		ar.freepages = append(ar.freepages, i)
	}
	ac.arenas = append(ac.arenas, ar)
	ac.allarenas[base] = ar
	ac.nfreepg += ac.npages
	ac.totalmemoryalloced += ac.arenasize
	ac.narenas++
	debugf("new arena at %x, %v arenas\n", base, ac.narenas)
	return nil
}

func (ac *ArenaCollection) sweeppage(pg *page, ok func(api.Addr) bool) {
	pg.unswept = false
	freed := pg.sweep(func(chunk api.Addr) bool {
		if ok(chunk) {
			freeblock(ac.space.Bytes(chunk, pg.size))
			return true
		}
		return false
	})
	ac.totalmemoryused -= freed * pg.size
	ac.nfrees += freed

	class := pg.size / Alignment
	if pg.isempty() {
		ac.freepage(pg)
	} else if pg.isfull() {
		ac.fullpages[class] = append(ac.fullpages[class], pg)
	} else {
		ac.pagefor[class] = append(ac.pagefor[class], pg)
	}
}

func (ac *ArenaCollection) freepage(pg *page) {
	ar := pg.arena
	if len(ar.freepages) == 0 {
		ac.arenas = append(ac.arenas, ar)
	}
	ar.freepages = append(ar.freepages, pg.index)
	ar.pages[pg.index] = nil
	ac.nfreepg++
	if int64(len(ar.freepages)) < ar.npages {
		return
	}
	// every page in this arena is free, give it back.
	for i, x := range ac.arenas {
		if x == ar {
			copy(ac.arenas[i:], ac.arenas[i+1:])
			ac.arenas = ac.arenas[:len(ac.arenas)-1]
			break
		}
	}
	ac.nfreepg -= ar.npages
	delete(ac.allarenas, ar.base)
	ac.space.Munmap(ar.base)
	ac.totalmemoryalloced -= ac.arenasize
	ac.narenas--
	debugf("arena at %x given back, %v arenas\n", ar.base, ac.narenas)
}

func (ac *ArenaCollection) chunkof(addr api.Addr) (*page, int64) {
	base, _, ok := ac.space.Regionof(addr)
	if !ok {
		return nil, -1
	}
	ar, ok := ac.allarenas[base]
	if !ok {
		return nil, -1
	}
	pg := ar.pages[int64(addr-base)/ac.pagesize]
	if pg == nil {
		return nil, -1
	}
	nth := int64(addr-pg.base) / pg.size
	if nth >= pg.nblocks {
		return nil, -1
	}
	return pg, nth
}

func (ac *ArenaCollection) String() string {
	used := humanize.Bytes(uint64(ac.totalmemoryused))
	return fmt.Sprintf("ArenaCollection{%v in %v arenas}", used, ac.narenas)
}
