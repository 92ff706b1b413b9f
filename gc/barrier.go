package gc

import "github.com/bnclabs/incmark/api"

// Flagsof return the header flags of obj. Compiled code inlines the
// barrier fast path as:
//
//	if g.Flagsof(obj)&TRACKYOUNGPTRS != 0 { g.Writebarrier(obj) }
func (g *GC) Flagsof(obj api.Addr) Flags {
	return g.flags(obj)
}

// Typeidof return the type of obj.
func (g *GC) Typeidof(obj api.Addr) api.Typeid {
	return g.typeid(obj)
}

// Writebarrier shall be called before storing a pointer into obj.
func (g *GC) Writebarrier(obj api.Addr) {
	if g.hasflags(obj, TRACKYOUNGPTRS) {
		g.rememberyoungpointer(obj)
	}
}

// Writebarrierfromarray shall be called before storing a pointer into
// item `index` of array obj.
func (g *GC) Writebarrierfromarray(obj api.Addr, index int64) {
	if g.hasflags(obj, TRACKYOUNGPTRS) {
		if g.cardpageindices > 0 {
			g.rememberyoungpointerfromarray(obj, index)
		} else {
			g.rememberyoungpointer(obj)
		}
	}
}

func (g *GC) rememberyoungpointer(obj api.Addr) {
	assertf(!g.Isyoung(obj) || g.hasflags(obj, HASCARDS),
		"young object %x with TRACKYOUNGPTRS and no cards", obj)

	g.nbarriers++
	g.oldobjectspointingtoyoung.Append(obj)
	g.clearflags(obj, TRACKYOUNGPTRS)
	// first write into a prebuilt object makes it a root.
	if g.hasflags(obj, NOHEAPPTRS) {
		g.clearflags(obj, NOHEAPPTRS)
		g.prebuiltrootobjects.Append(obj)
	}
}

func (g *GC) rememberyoungpointerfromarray(obj api.Addr, index int64) {
	if !g.hasflags(obj, HASCARDS) {
		g.rememberyoungpointer(obj)
		return
	}
	bitindex := index >> g.cardpageshift
	byteindex, bitmask := bitindex>>3, byte(1)<<uint(bitindex&7)
	cardaddr := g.getcard(obj, byteindex)
	cardbyte := g.space.Getbyte(cardaddr)
	if cardbyte&bitmask != 0 {
		return
	}
	g.ncardbarriers++
	g.space.Setbyte(cardaddr, cardbyte|bitmask)
	if !g.hasflags(obj, CARDSSET) {
		g.oldobjectswithcardsset.Append(obj)
		g.addflags(obj, CARDSSET)
	}
}

// Writebarrierbeforecopy has the same effect as calling the write
// barrier for every item copied from src into dst, though it may
// remember dst more eagerly. Return false if the caller shall copy
// item by item through Writebarrierfromarray.
func (g *GC) Writebarrierbeforecopy(
	src, dst api.Addr, srcstart, dststart, length int64) bool {

	srcflags, dstflags := g.flags(src), g.flags(dst)
	if dstflags&TRACKYOUNGPTRS == 0 {
		return true
	}
	// copied references may be the only ones left to white objects,
	// black dst is traced again.
	if g.state == STATEMARKING && dstflags&VISITED != 0 {
		g.rememberyoungpointer(dst)
		return true
	}

	if srcflags&HASCARDS != 0 {
		if srcflags&TRACKYOUNGPTRS == 0 {
			return false // src may hold young pointers anywhere.
		} else if srcflags&CARDSSET == 0 {
			return true // no young pointers in src.
		} else if dstflags&HASCARDS == 0 {
			return false
		} else if srcstart != 0 || dststart != 0 {
			return false // misaligned cards.
		}
		g.manuallycopycardbits(src, dst, length)
		return true
	}

	if srcflags&TRACKYOUNGPTRS == 0 {
		// src may point to young objects.
		g.oldobjectspointingtoyoung.Append(dst)
		g.clearflags(dst, TRACKYOUNGPTRS)
	}
	if g.hasflags(dst, NOHEAPPTRS) && srcflags&NOHEAPPTRS == 0 {
		g.clearflags(dst, NOHEAPPTRS)
		g.prebuiltrootobjects.Append(dst)
	}
	return true
}

func (g *GC) manuallycopycardbits(src, dst api.Addr, length int64) {
	anybyte := byte(0)
	for i := int64(0); i < g.cardmarkingbytes(length); i++ {
		srcbyte := g.space.Getbyte(g.getcard(src, i))
		dstaddr := g.getcard(dst, i)
		g.space.Setbyte(dstaddr, g.space.Getbyte(dstaddr)|srcbyte)
		anybyte |= srcbyte
	}
	if anybyte != 0 && !g.hasflags(dst, CARDSSET) {
		g.oldobjectswithcardsset.Append(dst)
		g.addflags(dst, CARDSSET)
	}
}

// Arraycopy copy `length` items from src[srcstart:] to dst[dststart:],
// both arrays shall be of the same type. Overlapping ranges are
// handled like memmove.
func (g *GC) Arraycopy(src, dst api.Addr, srcstart, dststart, length int64) {
	if length <= 0 {
		return
	}
	typeid := g.typeid(src)
	itemsize, _, itemsofs := g.layout.Varsize(typeid)
	srcitem := src + api.Addr(itemsofs+srcstart*itemsize)
	dstitem := dst + api.Addr(itemsofs+dststart*itemsize)

	if g.Writebarrierbeforecopy(src, dst, srcstart, dststart, length) {
		g.space.Copy(dstitem, srcitem, length*itemsize)
		return
	}
	// item by item, in memmove order.
	copyitem := func(i int64) {
		g.Writebarrierfromarray(dst, dststart+i)
		off := api.Addr(i * itemsize)
		g.space.Copy(dstitem+off, srcitem+off, itemsize)
	}
	if dstitem > srcitem {
		for i := length - 1; i >= 0; i-- {
			copyitem(i)
		}
		return
	}
	for i := int64(0); i < length; i++ {
		copyitem(i)
	}
}

// Setfield store pointer value at offset ofs of obj, through the
// write barrier.
func (g *GC) Setfield(obj api.Addr, ofs int64, value api.Addr) {
	g.Writebarrier(obj)
	g.space.Setaddr(obj+api.Addr(ofs), value)
}

// Getfield load the pointer at offset ofs of obj.
func (g *GC) Getfield(obj api.Addr, ofs int64) api.Addr {
	return g.space.Getaddr(obj + api.Addr(ofs))
}

// Setitem store pointer value at offset ofs of item `index` of array
// obj, through the array write barrier.
func (g *GC) Setitem(obj api.Addr, index, ofs int64, value api.Addr) {
	g.Writebarrierfromarray(obj, index)
	g.space.Setaddr(g.itemaddr(obj, index)+api.Addr(ofs), value)
}

// Getitem load the pointer at offset ofs of item `index` of array obj.
func (g *GC) Getitem(obj api.Addr, index, ofs int64) api.Addr {
	return g.space.Getaddr(g.itemaddr(obj, index) + api.Addr(ofs))
}

// Length return the length of array obj.
func (g *GC) Length(obj api.Addr) int64 {
	return g.length(obj, g.typeid(obj))
}

func (g *GC) itemaddr(obj api.Addr, index int64) api.Addr {
	typeid := g.typeid(obj)
	itemsize, _, itemsofs := g.layout.Varsize(typeid)
	if length := g.length(obj, typeid); index < 0 || index >= length {
		panicerr("index %v out of range for %x, length %v", index, obj, length)
	}
	return obj + api.Addr(itemsofs+index*itemsize)
}
