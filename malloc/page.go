package malloc

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/lib"

// page manages a block of pagesize bytes sliced up into equal sized
// chunks. Free chunks are tracked by a free list, allocated chunks by
// a bitmap so that sweeping can enumerate them.
type page struct {
	arena    *arena
	index    int64    // page index within arena
	base     api.Addr // page's base address
	size     int64    // fixed size chunks in this page
	nblocks  int64
	freelist []uint16
	bitmap   []uint8 // one bit per allocated chunk
	unswept  bool    // set aside by MassFreePrepare
}

func newpage(ar *arena, index, pagesize, size int64) *page {
	nblocks := pagesize / size
	if nblocks > Maxpageblocks {
		nblocks = Maxpageblocks
	}
	pg := &page{
		arena:    ar,
		index:    index,
		base:     ar.base + api.Addr(index*pagesize),
		size:     size,
		nblocks:  nblocks,
		freelist: make([]uint16, nblocks),
		bitmap:   make([]uint8, (nblocks+7)/8),
	}
	// lower chunks are handed out first.
	for i := int64(0); i < nblocks; i++ {
		pg.freelist[i] = uint16(nblocks - 1 - i)
	}
	return pg
}

func (pg *page) allocchunk() (api.Addr, bool) {
	ln := len(pg.freelist)
	if ln == 0 {
		return api.NULL, false
	}
	nth := pg.freelist[ln-1]
	pg.freelist = pg.freelist[:ln-1]
	byteoff, bit := nth>>3, uint8(nth&0x7)
	pg.bitmap[byteoff] = lib.Bit8(pg.bitmap[byteoff]).Setbit(bit)
	return pg.base + api.Addr(int64(nth)*pg.size), true
}

func (pg *page) freechunk(nth int64) {
	byteoff, bit := nth>>3, uint8(nth&0x7)
	if !lib.Bit8(pg.bitmap[byteoff]).Isset(bit) {
		panicerr("page.freechunk(): chunk %v in page %x is free", nth, pg.base)
	}
	pg.bitmap[byteoff] = lib.Bit8(pg.bitmap[byteoff]).Clearbit(bit)
	pg.freelist = append(pg.freelist, uint16(nth))
}

func (pg *page) isallocated(nth int64) bool {
	return lib.Bit8(pg.bitmap[nth>>3]).Isset(uint8(nth & 0x7))
}

func (pg *page) nallocated() int64 {
	return pg.nblocks - int64(len(pg.freelist))
}

func (pg *page) isfull() bool {
	return len(pg.freelist) == 0
}

func (pg *page) isempty() bool {
	return int64(len(pg.freelist)) == pg.nblocks
}

// sweep call ok() on every allocated chunk, chunks for which ok()
// returns true are freed. Return number of freed chunks.
func (pg *page) sweep(ok func(api.Addr) bool) (freed int64) {
	for i, bits := range pg.bitmap {
		if bits == 0 {
			continue
		}
		for bit := int64(0); bit < 8; bit++ {
			nth := int64(i)*8 + bit
			if nth >= pg.nblocks || !pg.isallocated(nth) {
				continue
			}
			chunk := pg.base + api.Addr(nth*pg.size)
			if ok(chunk) {
				pg.freechunk(nth)
				freed++
			}
		}
	}
	return freed
}
