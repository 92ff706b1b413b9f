package gc

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/malloc"

func (g *GC) header(obj api.Addr) header {
	return decodeheader(g.space.Getword(obj - api.Addr(HDR)))
}

func (g *GC) setheader(obj api.Addr, hdr header) {
	g.space.Setword(obj-api.Addr(HDR), hdr.encode())
}

func (g *GC) initobject(hdraddr api.Addr, typeid api.Typeid, flags Flags) {
	g.space.Setword(hdraddr, normalheader(typeid, flags).encode())
}

// flags of a live, not forwarded, object.
func (g *GC) flags(obj api.Addr) Flags {
	hdr := g.header(obj)
	assertf(hdr.kind == hdrnormal, "flags(): %x is %v", obj, hdr)
	return hdr.flags
}

func (g *GC) hasflags(obj api.Addr, f Flags) bool {
	return g.flags(obj)&f != 0
}

func (g *GC) addflags(obj api.Addr, f Flags) {
	hdr := g.header(obj)
	assertf(hdr.kind == hdrnormal, "addflags(): %x is %v", obj, hdr)
	hdr.flags |= f
	g.setheader(obj, hdr)
}

func (g *GC) clearflags(obj api.Addr, f Flags) {
	hdr := g.header(obj)
	assertf(hdr.kind == hdrnormal, "clearflags(): %x is %v", obj, hdr)
	hdr.flags &^= f
	g.setheader(obj, hdr)
}

func (g *GC) typeid(obj api.Addr) api.Typeid {
	hdr := g.header(obj)
	assertf(hdr.kind == hdrnormal, "typeid(): %x is %v", obj, hdr)
	return hdr.typeid
}

func (g *GC) isforwarded(obj api.Addr) bool {
	assertf(g.isinnursery(obj), "isforwarded(): %x not in nursery", obj)
	return g.header(obj).kind == hdrforwarded
}

func (g *GC) forwardingaddress(obj api.Addr) api.Addr {
	return g.space.Getaddr(obj)
}

// setforwarded turn obj into a forwarding stub pointing to newobj.
func (g *GC) setforwarded(obj, newobj api.Addr) {
	g.setheader(obj, header{kind: hdrforwarded})
	g.space.Setaddr(obj, newobj)
}

func (g *GC) isinnursery(addr api.Addr) bool {
	return addr >= g.nursery && addr < g.nurseryrealtop
}

func (g *GC) isvarsize(typeid api.Typeid) bool {
	return g.layout.Isvarsize(typeid)
}

func (g *GC) length(obj api.Addr, typeid api.Typeid) int64 {
	_, lengthofs, _ := g.layout.Varsize(typeid)
	return g.space.Getint(obj + api.Addr(lengthofs))
}

// getsize return the payload size of obj, excluding header.
func (g *GC) getsize(obj api.Addr) int64 {
	typeid := g.typeid(obj)
	size := g.layout.Fixedsize(typeid)
	if g.isvarsize(typeid) {
		itemsize, _, _ := g.layout.Varsize(typeid)
		size += itemsize * g.length(obj, typeid)
	}
	return size
}

// totalsize return the footprint of obj including header, as
// allocated in the nursery.
func (g *GC) totalsize(obj api.Addr) int64 {
	size := malloc.Roundup(HDR+g.getsize(obj), api.WORD)
	return maxint64(size, Minnurserysize)
}

func (g *GC) haspointers(typeid api.Typeid) bool {
	return g.layout.Haspointers(typeid)
}

// trace call fn on every non NULL pointer slot of obj, fixed part
// first, then every item of the variable part.
func (g *GC) trace(obj api.Addr, fn api.Slotcallback) {
	typeid := g.typeid(obj)
	if !g.layout.Haspointers(typeid) {
		return
	}
	for _, ofs := range g.layout.Ptroffsets(typeid) {
		if slot := obj + api.Addr(ofs); g.space.Getaddr(slot) != api.NULL {
			fn(slot)
		}
	}
	if g.isvarsize(typeid) && g.layout.Hasvarpointers(typeid) {
		g.traceitems(obj, typeid, 0, g.length(obj, typeid), fn)
	}
}

// tracepartial is like trace, limited to array items [start, stop).
func (g *GC) tracepartial(obj api.Addr, start, stop int64, fn api.Slotcallback) {
	assertf(start < stop, "tracepartial(): empty range %v..%v", start, stop)
	typeid := g.typeid(obj)
	if g.layout.Hasvarpointers(typeid) {
		g.traceitems(obj, typeid, start, stop, fn)
	}
}

func (g *GC) traceitems(
	obj api.Addr, typeid api.Typeid, start, stop int64,
	fn api.Slotcallback) {

	itemsize, _, itemsofs := g.layout.Varsize(typeid)
	ptrofs := g.layout.Varptroffsets(typeid)
	item := obj + api.Addr(itemsofs+start*itemsize)
	for i := start; i < stop; i++ {
		for _, ofs := range ptrofs {
			if slot := item + api.Addr(ofs); g.space.Getaddr(slot) != api.NULL {
				fn(slot)
			}
		}
		item += api.Addr(itemsize)
	}
}

//---- card marking

// cardmarkingwords for an array of length items.
func (g *GC) cardmarkingwords(length int64) int64 {
	shift := g.cardpageshift + 6
	return int64((uint64(length) + (uint64(64)<<g.cardpageshift - 1)) >> shift)
}

// cardmarkingbytes that are in use for an array of length items.
func (g *GC) cardmarkingbytes(length int64) int64 {
	shift := g.cardpageshift + 3
	return int64((uint64(length) + (uint64(8)<<g.cardpageshift - 1)) >> shift)
}

// getcard return the address of card byte `byteindex` of obj, card
// bytes grow downwards from the header.
func (g *GC) getcard(obj api.Addr, byteindex int64) api.Addr {
	return obj - api.Addr(HDR) - 1 - api.Addr(byteindex)
}

// freerawobject give back a raw allocated object along with its
// card bytes, return the number of bytes released.
func (g *GC) freerawobject(obj api.Addr) int64 {
	cardbytes := int64(0)
	if g.cardpageindices > 0 && g.hasflags(obj, HASCARDS) {
		typeid := g.typeid(obj)
		assertf(g.layout.Hasvarpointers(typeid),
			"HASCARDS but no pointers in variable part %x", obj)
		cardbytes = g.cardmarkingwords(g.length(obj, typeid)) * api.WORD
	}
	before := g.raw.Totalsize()
	g.raw.Free(obj-api.Addr(HDR), cardbytes)
	return before - g.raw.Totalsize()
}
