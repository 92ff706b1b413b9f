package gc

import "math"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/malloc"

// Mallocfixedsize allocate a zero filled object of `size` bytes,
// excluding header. Objects with a full finalizer, and objects too
// large for the nursery, are allocated directly in the old generation.
func (g *GC) Mallocfixedsize(
	typeid api.Typeid, size int64,
	needsfinalizer, finalizerislight, containsweakptr bool) (api.Addr, error) {

	if typeid == 0 {
		return api.NULL, api.ErrorInvalidTypeid
	}
	totalsize := HDR + size

	if needsfinalizer && !finalizerislight {
		if containsweakptr {
			panicerr("Mallocfixedsize(): finalizer and weakptr on %v", typeid)
		}
		obj, err := g.externalmalloc(typeid, 0, false /*young*/)
		if err != nil {
			return api.NULL, err
		}
		g.objectswithfinalizers.Append(obj)
		return obj, nil

	} else if totalsize > g.nonlargemax {
		if containsweakptr {
			panicerr("Mallocfixedsize(): weakptr on large object %v", typeid)
		} else if needsfinalizer {
			// old, so that its death is noticed by marking.
			obj, err := g.externalmalloc(typeid, 0, false /*young*/)
			if err != nil {
				return api.NULL, err
			}
			g.oldlightfinalizers.Append(obj)
			return obj, nil
		}
		return g.externalmalloc(typeid, 0, true /*young*/)
	}

	totalsize = maxint64(malloc.Roundup(totalsize, api.WORD), Minnurserysize)
	result, err := g.reserve(totalsize)
	if err != nil {
		return api.NULL, err
	}
	g.initobject(result, typeid, 0)
	obj := result + api.Addr(HDR)
	if needsfinalizer && finalizerislight {
		g.younglightfinalizers.Append(obj)
	}
	if containsweakptr {
		g.youngobjectswithweakrefs.Append(obj)
	}
	return obj, nil
}

// Mallocvarsize allocate a zero filled object with a variable part of
// `length` items of `itemsize` bytes, following `size` bytes of fixed
// part. The length is stored at `lengthofs`. Negative lengths and
// sizes that overflow fail with api.ErrorOutofMemory.
func (g *GC) Mallocvarsize(
	typeid api.Typeid, length, size, itemsize,
	lengthofs int64) (api.Addr, error) {

	if typeid == 0 {
		return api.NULL, api.ErrorInvalidTypeid
	}
	nonvarsize := HDR + size

	// maximal length that keeps the object below nonlargemax, also
	// routes negative lengths to externalmalloc.
	var toobig uint64
	if maxsize := g.nonlargemax - nonvarsize; maxsize < 0 {
		toobig = 0
	} else if itemsize > 0 {
		toobig = uint64(maxsize/itemsize) + 1
	} else {
		toobig = uint64(math.MaxInt64) + 1
	}
	if uint64(length) >= toobig {
		return g.externalmalloc(typeid, length, true /*young*/)
	}

	totalsize := malloc.Roundup(nonvarsize+itemsize*length, api.WORD)
	totalsize = maxint64(totalsize, Minnurserysize)
	result, err := g.reserve(totalsize)
	if err != nil {
		return api.NULL, err
	}
	g.initobject(result, typeid, 0)
	obj := result + api.Addr(HDR)
	g.space.Setint(obj+api.Addr(lengthofs), length)
	return obj, nil
}

// Malloc allocate an object of typeid, sizes are obtained from the
// type layout. Length is ignored for fixed size types.
func (g *GC) Malloc(typeid api.Typeid, length int64) (api.Addr, error) {
	if typeid == 0 {
		return api.NULL, api.ErrorInvalidTypeid
	}
	size := g.layout.Fixedsize(typeid)
	if g.isvarsize(typeid) {
		itemsize, lengthofs, _ := g.layout.Varsize(typeid)
		return g.Mallocvarsize(typeid, length, size, itemsize, lengthofs)
	}
	light := g.layout.Lightfinalizer(typeid) != nil
	full := g.layout.Finalizer(typeid) != nil
	weak := g.layout.Weakptroffset(typeid) >= 0
	return g.Mallocfixedsize(typeid, size, light || full, light, weak)
}

// Mallocfixedsizenonmovable allocate an object that never moves.
func (g *GC) Mallocfixedsizenonmovable(typeid api.Typeid) (api.Addr, error) {
	return g.externalmalloc(typeid, 0, true /*young*/)
}

// Mallocvarsizenonmovable allocate an array that never moves.
func (g *GC) Mallocvarsizenonmovable(
	typeid api.Typeid, length int64) (api.Addr, error) {

	return g.externalmalloc(typeid, length, true /*young*/)
}

// Prebuilt allocate an immortal object outside the collected heap,
// like static data emitted by a compiler. Prebuilt objects are never
// freed, they become roots once a pointer is written into them.
func (g *GC) Prebuilt(typeid api.Typeid, length int64) (api.Addr, error) {
	if typeid == 0 {
		return api.NULL, api.ErrorInvalidTypeid
	}
	totalsize, err := g.externalsize(typeid, length)
	if err != nil {
		return api.NULL, err
	}
	result, err := g.prebuilts.Malloc(totalsize)
	if err != nil {
		return api.NULL, err
	}
	g.initobject(result, typeid, NOHEAPPTRS|TRACKYOUNGPTRS)
	obj := result + api.Addr(HDR)
	if g.isvarsize(typeid) {
		_, lengthofs, _ := g.layout.Varsize(typeid)
		g.space.Setint(obj+api.Addr(lengthofs), length)
	}
	return obj, nil
}

// reserve totalsize bytes in the nursery, collecting if needed.
func (g *GC) reserve(totalsize int64) (api.Addr, error) {
	result := g.nurseryfree
	if result+api.Addr(totalsize) > g.nurserytop {
		return g.collectandreserve(totalsize)
	}
	g.nurseryfree = result + api.Addr(totalsize)
	return result, nil
}

// movenurserytop make the next cleanup chunk usable.
func (g *GC) movenurserytop(totalsize int64) {
	size := minint64(g.nurserycleanup, int64(g.nurseryrealtop-g.nurserytop))
	assertf(totalsize <= g.nurserycleanup,
		"movenurserytop(): totalsize %v > nurserycleanup", totalsize)
	g.space.Clear(g.nurserytop, size)
	g.nurserytop += api.Addr(size)
}

// collectandreserve is called when nurseryfree would overflow
// nurserytop. Skip past pinned objects, else move the top by one
// cleanup chunk, else collect.
func (g *GC) collectandreserve(totalsize int64) (api.Addr, error) {
	nminors := 0
	for {
		if g.nurserybarriers.Nonempty() {
			// nurserytop is the header of a pinned object, move past it
			// to the next free block.
			pinned := g.nurserytop + api.Addr(HDR)
			g.nurseryfree = g.nurserytop + api.Addr(g.totalsize(pinned))
			g.nurserytop = g.nurserybarriers.Popleft()

		} else if g.nurserytop < g.nurseryrealtop {
			g.movenurserytop(totalsize)

		} else if nminors > 2 {
			warnf("%v too many pinned objects, nursery exhausted\n",
				g.logprefix)
			return api.NULL, api.ErrorOutofMemory

		} else {
			if err := g.collectminor(); err != nil {
				return api.NULL, err
			}
			nminors++
			if nminors == 1 {
				// in the middle of a major collection always progress by
				// one step, otherwise wait for enough garbage.
				used := float64(g.Totalmemoryused())
				if g.state != STATESCANNING || used > g.nextmajorthreshold {
					if err := g.majorcollectionstep(0); err != nil {
						return api.NULL, err
					}
					// finalizers may have allocated, or pinned objects
					// leave too little room.
					free := g.nurseryfree + api.Addr(totalsize)
					if free > g.nurserytop && free > g.nurseryrealtop {
						if err := g.collectminor(); err != nil {
							return api.NULL, err
						}
					}
				}
			}
		}

		if result := g.nurseryfree; result+api.Addr(totalsize) <= g.nurserytop {
			g.nurseryfree = result + api.Addr(totalsize)
			return result, nil
		}
	}
}

// externalsize compute the total size of an object allocated outside
// the nursery, checking for overflow.
func (g *GC) externalsize(typeid api.Typeid, length int64) (int64, error) {
	nonvarsize := HDR + g.layout.Fixedsize(typeid)
	if length == 0 {
		return nonvarsize, nil
	} else if length < 0 {
		return 0, api.ErrorOutofMemory
	}
	itemsize, _, _ := g.layout.Varsize(typeid)
	if itemsize > 0 && length > (math.MaxInt64-nonvarsize)/itemsize {
		return 0, api.ErrorOutofMemory
	}
	return nonvarsize + itemsize*length, nil
}

// externalmalloc allocate a zero filled object outside the nursery,
// from arena collection if small, else raw allocated with card bytes
// if it is a large array of pointers.
func (g *GC) externalmalloc(
	typeid api.Typeid, length int64, young bool) (api.Addr, error) {

	if typeid == 0 {
		return api.NULL, api.ErrorInvalidTypeid
	}
	totalsize, err := g.externalsize(typeid, length)
	if err != nil {
		return api.NULL, err
	}
	g.nexternals++

	// repeated external allocations must eventually force a full
	// collection.
	used := float64(g.Totalmemoryused())
	if used+float64(totalsize) > g.nextmajorthreshold {
		if err := g.Gcstepuntil(STATESWEEPING, 0); err != nil {
			return api.NULL, err
		}
		err := g.Gcstepuntil(STATEFINALIZING, malloc.Roundup(totalsize, api.WORD))
		if err != nil {
			return api.NULL, err
		}
	}

	var result api.Addr
	var flags Flags
	if totalsize <= g.smallrequest {
		// arena objects are always old, even if young is requested.
		if result, err = g.ac.Malloc(totalsize); err != nil {
			return api.NULL, err
		}
		flags = TRACKYOUNGPTRS

	} else {
		cardheadersize := int64(0)
		if g.cardpageindices > 0 && g.layout.Hasvarpointers(typeid) &&
			totalsize > g.nonlargemax {

			cardheadersize = api.WORD * g.cardmarkingwords(length)
			flags = HASCARDS | TRACKYOUNGPTRS
			// young arrays carry CARDSSET without being in
			// oldobjectswithcardsset, so writes only set the card bits.
			if young {
				flags |= CARDSSET
			}
		}
		if totalsize > math.MaxInt64-(api.WORD-1)-cardheadersize {
			return api.NULL, api.ErrorOutofMemory
		}
		allocsize := malloc.Roundup(totalsize, api.WORD)
		if result, err = g.raw.Mallocwithcards(cardheadersize, allocsize); err != nil {
			return api.NULL, err
		}
		obj := result + api.Addr(HDR)
		if young {
			g.youngrawmalloced[obj] = struct{}{}
		} else {
			g.oldrawmalloced.Append(obj)
			flags |= TRACKYOUNGPTRS
		}
	}

	g.initobject(result, typeid, flags)
	obj := result + api.Addr(HDR)
	if g.isvarsize(typeid) {
		_, lengthofs, _ := g.layout.Varsize(typeid)
		g.space.Setint(obj+api.Addr(lengthofs), length)
	}
	return obj, nil
}

// mallocoutofnursery allocate old space for a nursery object being
// promoted, or for its shadow. Running out of memory here leaves the
// nursery half evacuated, which is fatal, collectminor checks for
// room before promoting.
func (g *GC) mallocoutofnursery(totalsize int64) api.Addr {
	if totalsize <= g.smallrequest {
		hdraddr, err := g.ac.Malloc(totalsize)
		if err != nil {
			abortf("%v promoting %v bytes: %v", g.logprefix, totalsize, err)
		}
		return hdraddr
	}
	assertf(totalsize%api.WORD == 0, "misaligned totalsize %v", totalsize)
	hdraddr, err := g.raw.Malloc(totalsize)
	if err != nil {
		abortf("%v promoting %v bytes: %v", g.logprefix, totalsize, err)
	}
	g.oldrawmalloced.Append(hdraddr + api.Addr(HDR))
	return hdraddr
}

// Shrinkarray lower the length of a nursery array. Return false if
// the object is not in the nursery, has a shadow or is pinned.
func (g *GC) Shrinkarray(obj api.Addr, smallerlength int64) bool {
	if !g.isinnursery(obj) {
		return false
	} else if g.hasflags(obj, HASSHADOW|PINNED) {
		return false
	}
	typeid := g.typeid(obj)
	if !g.isvarsize(typeid) || smallerlength < 0 {
		return false
	} else if smallerlength > g.length(obj, typeid) {
		return false
	}
	oldsize := g.totalsize(obj)
	_, lengthofs, _ := g.layout.Varsize(typeid)
	g.space.Setint(obj+api.Addr(lengthofs), smallerlength)
	// last object in the nursery gives back its tail.
	if obj-api.Addr(HDR)+api.Addr(oldsize) == g.nurseryfree {
		newsize := g.totalsize(obj)
		g.space.Clear(g.nurseryfree-api.Addr(oldsize-newsize), oldsize-newsize)
		g.nurseryfree -= api.Addr(oldsize - newsize)
	}
	return true
}

// Setmaxheapsize bound the heap, zero removes the bound.
func (g *GC) Setmaxheapsize(size int64) {
	g.maxheapsize = float64(size)
	if g.maxheapsize > 0 {
		if g.maxheapsize < g.nextmajorinitial {
			g.nextmajorinitial = g.maxheapsize
		}
		if g.maxheapsize < g.nextmajorthreshold {
			g.nextmajorthreshold = g.maxheapsize
		}
	}
}

// Memorypressure account for `sizehint` bytes of memory held outside
// the heap on behalf of some object, bringing the next major
// collection closer.
func (g *GC) Memorypressure(sizehint int64) {
	g.nextmajorthreshold -= float64(sizehint + 2*api.WORD)
	if g.nextmajorthreshold < 0 {
		// force a collection on the next nursery allocation.
		g.nurserybarriers.Clear()
		g.nurserytop = g.nurseryrealtop
		g.nurseryfree = g.nurseryrealtop
	}
}
