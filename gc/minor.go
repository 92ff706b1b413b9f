package gc

import "sort"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/lib"

// collectminor run a minor collection if the old generation can take
// every object in the nursery, else fail with api.ErrorOutofMemory
// leaving the heap untouched.
func (g *GC) collectminor() error {
	used := int64(g.nurseryfree - g.nursery)
	// nursery objects too large for arenas are promoted to raw memory.
	need := g.ac.Mapneeded(used) + used
	if avail := g.space.Available(); need > avail {
		warnf("%v minor collection needs %v bytes, %v available\n",
			g.logprefix, need, avail)
		return api.ErrorOutofMemory
	}
	g.minorcollection()
	return nil
}

// minorcollection find the nursery objects that are alive and move
// them out, except pinned ones, then reset the nursery.
func (g *GC) minorcollection() {
	g.nminors++
	debugf("%v minor collection %v, state %v\n",
		g.logprefix, g.nminors, Statename(g.state))

	// barriers are rebuilt below, only surviving pinned objects count.
	g.nurserybarriers.Clear()
	g.survivingpinned.Clear()
	g.pinnedinnursery = 0

	if len(g.youngrawmalloced) > 0 {
		g.removeyoungarraysfromoldobjects()
	}

	// modified old objects are grey again.
	if g.state == STATEMARKING {
		g.oldobjectspointingtoyoung.Foreach(func(obj api.Addr) {
			g.clearflags(obj, VISITED)
			g.moreobjectstotrace.Append(obj)
		})
	}

	// old objects that pointed to pinned objects at the last minor
	// collection keep those objects alive.
	if g.oldobjectspointingtopinned.Nonempty() {
		parents := g.oldobjectspointingtopinned
		g.oldobjectspointingtopinned = lib.NewAddrstack()
		parents.Foreach(func(parent api.Addr) {
			g.clearflags(parent, PINNEDPARENTKNOWN)
		})
		for parents.Nonempty() {
			parent := parents.Pop()
			g.trace(parent, func(slot api.Addr) { g.dragout(slot, parent) })
		}
	}

	g.nurserysurviving = 0
	g.collectrootsinnursery()

	for {
		if g.cardpageindices > 0 {
			g.collectcardrefs()
		}
		g.collectoldrefs()
		if g.cardpageindices > 0 && g.oldobjectswithcardsset.Nonempty() {
			continue
		}
		break
	}

	if g.youngobjectswithweakrefs.Nonempty() {
		g.invalidateyoungweakrefs()
	}
	if g.younglightfinalizers.Nonempty() {
		g.dealwithyoungfinalizers()
	}

	// shadows are kept only for pinned objects that stay behind.
	if len(g.nurseryshadows) > 0 {
		shadows := make(map[api.Addr]api.Addr)
		g.survivingpinned.Foreach(func(hdraddr api.Addr) {
			obj := hdraddr + api.Addr(HDR)
			if shadow, ok := g.nurseryshadows[obj]; ok {
				shadows[obj] = shadow
			}
		})
		g.nurseryshadows = shadows
	}

	if len(g.youngrawmalloced) > 0 {
		g.freeyoungrawmalloced()
	}

	g.resetnursery()

	g.h_surviving.Add(g.nurserysurviving)
	g.h_pinned.Add(g.pinnedinnursery)
	verbosef("%v minor done, survived %v bytes, pinned %v, used %v\n",
		g.logprefix, g.nurserysurviving, g.pinnedinnursery,
		g.Totalmemoryused())
	if debugmode {
		if err := g.Debugcheckconsistency(); err != nil {
			abortf("%v after minor collection: %v", g.logprefix, err)
		}
	}
}

// resetnursery zero the nursery around surviving pinned objects and
// install a barrier in front of each of them.
func (g *GC) resetnursery() {
	pinned := g.survivingpinned.Tolist()
	sort.Slice(pinned, func(i, j int) bool { return pinned[i] < pinned[j] })
	assertf(int64(len(pinned)) == g.pinnedinnursery,
		"pinned count %v, survivors %v", g.pinnedinnursery, len(pinned))

	prev := g.nursery
	for _, next := range pinned {
		assertf(next >= prev, "overlapping pinned object %x < %x", next, prev)
		g.space.Clear(prev, int64(next-prev))
		obj := next + api.Addr(HDR)
		g.clearflags(obj, VISITED)
		g.nurserybarriers.Append(next)
		prev = next + api.Addr(g.totalsize(obj))
	}
	g.survivingpinned.Clear()

	cleanup := minint64(g.initialcleanup, int64(g.nurseryrealtop-prev))
	g.space.Clear(prev, cleanup)
	g.nurserybarriers.Append(prev + api.Addr(cleanup))

	g.nurseryfree = g.nursery
	g.nurserytop = g.nurserybarriers.Popleft()
}

func (g *GC) collectrootsinnursery() {
	if g.state == STATEMARKING {
		g.roots.Walkroots(func(slot api.Addr) {
			g.dragout(slot, api.NULL)
			// white old objects reachable from roots must be traced.
			obj := g.space.Getaddr(slot)
			if obj == api.NULL || g.isinnursery(obj) {
				return
			} else if !g.hasflags(obj, VISITED) {
				g.moreobjectstotrace.Append(obj)
			}
		})
		return
	}
	g.roots.Walkroots(func(slot api.Addr) { g.dragout(slot, api.NULL) })
}

// collectcardrefs trace the marked cards of arrays in
// oldobjectswithcardsset.
func (g *GC) collectcardrefs() {
	oldlist := g.oldobjectswithcardsset
	for oldlist.Nonempty() {
		obj := oldlist.Pop()
		assertf(g.hasflags(obj, CARDSSET),
			"%x in oldobjectswithcardsset without CARDSSET", obj)
		g.clearflags(obj, CARDSSET)

		length := g.length(obj, g.typeid(obj))
		nbytes := g.cardmarkingbytes(length)

		// without TRACKYOUNGPTRS obj is in the remembered set and will
		// be fully traced, just reset the card bits.
		if !g.hasflags(obj, TRACKYOUNGPTRS) {
			g.space.Clear(g.getcard(obj, nbytes-1), nbytes)
			continue
		}

		dragout := func(slot api.Addr) { g.dragout(slot, obj) }
		for i := int64(0); i < nbytes; i++ {
			cardaddr := g.getcard(obj, i)
			cardbyte := lib.Bit8(g.space.Getbyte(cardaddr))
			g.space.Setbyte(cardaddr, 0)
			for cardbyte != 0 {
				bit := cardbyte.Findfirstset()
				cardbyte = lib.Bit8(cardbyte.Clearbit(uint8(bit)))
				start := (i*8 + int64(bit)) * g.cardpageindices
				stop := minint64(start+g.cardpageindices, length)
				if start < stop {
					g.tracepartial(obj, start, stop, dragout)
				}
			}
		}

		// the whole array is traced once more at the end of marking.
		if g.state == STATEMARKING {
			g.clearflags(obj, VISITED)
			g.moreobjectstotrace.Append(obj)
		}
	}
}

// collectoldrefs trace the remembered set, moving the young objects
// they point to out of the nursery, which may add more objects.
func (g *GC) collectoldrefs() {
	oldlist := g.oldobjectspointingtoyoung
	for oldlist.Nonempty() {
		obj := oldlist.Pop()
		assertf(!g.hasflags(obj, TRACKYOUNGPTRS),
			"remembered object %x with TRACKYOUNGPTRS", obj)
		g.addflags(obj, TRACKYOUNGPTRS)
		g.trace(obj, func(slot api.Addr) { g.dragout(slot, obj) })
	}
}

// dragout make sure the object referenced from slot is out of the
// nursery, rewriting slot. Parent is the old object holding slot, or
// NULL for roots.
func (g *GC) dragout(slot, parent api.Addr) {
	obj := g.space.Getaddr(slot)
	if obj == api.NULL {
		return
	}

	if !g.isinnursery(obj) {
		if _, ok := g.youngrawmalloced[obj]; ok {
			g.visityoungrawmalloced(obj)
		}
		return
	}

	var newhdr api.Addr
	var totalsize int64

	hdr := g.header(obj)
	switch hdr.kind {
	case hdrforwarded:
		g.space.Setaddr(slot, g.forwardingaddress(obj))
		return

	case hdrnormal:
		switch {
		case hdr.flags&PINNED != 0:
			// a pinned object may have several old parents, record all
			// of them before checking VISITED.
			if parent != api.NULL && !g.hasflags(parent, PINNEDPARENTKNOWN) {
				g.oldobjectspointingtopinned.Append(parent)
				g.addflags(parent, PINNEDPARENTKNOWN)
			}
			if hdr.flags&VISITED != 0 {
				return
			}
			g.addflags(obj, VISITED)
			assertf(hdr.flags&HASCARDS == 0, "pinned object %x with cards", obj)
			g.survivingpinned.Append(obj - api.Addr(HDR))
			g.pinnedinnursery++
			return

		case hdr.flags&HASSHADOW != 0:
			shadow, ok := g.nurseryshadows[obj]
			assertf(ok, "HASSHADOW but no shadow for %x", obj)
			newhdr = shadow - api.Addr(HDR)
			// the shadow shall not inherit the flag.
			g.clearflags(obj, HASSHADOW)
			totalsize = g.totalsize(obj)

		default:
			totalsize = g.totalsize(obj)
			newhdr = g.mallocoutofnursery(totalsize)
		}
		g.nurserysurviving += totalsize

	default:
		panicerr("dragout(): invalid header %v at %x", hdr, obj)
	}

	typeid := g.typeid(obj)
	g.space.Copy(newhdr, obj-api.Addr(HDR), HDR+g.getsize(obj))
	newobj := newhdr + api.Addr(HDR)
	g.setforwarded(obj, newobj)
	g.space.Setaddr(slot, newobj)
	g.npromoted++
	g.npromotedbytes += totalsize

	// the copy may still point into the nursery.
	if g.haspointers(typeid) {
		g.oldobjectspointingtoyoung.Append(newobj)
	} else {
		g.addflags(newobj, TRACKYOUNGPTRS)
	}
	// parent may be black already, like a pinned parent or an old
	// object that was written to.
	if g.state == STATEMARKING {
		g.moreobjectstotrace.Append(newobj)
	}
}

// visityoungrawmalloced mark a young raw object as surviving, it is
// old from now on.
func (g *GC) visityoungrawmalloced(obj api.Addr) {
	flags := g.flags(obj)
	if flags&VISITEDRMY != 0 {
		return
	}
	g.addflags(obj, VISITEDRMY)

	added := false
	if flags&TRACKYOUNGPTRS == 0 {
		g.oldobjectspointingtoyoung.Append(obj)
		added = true
	}
	if flags&HASCARDS != 0 {
		assertf(flags&CARDSSET != 0, "young array %x without CARDSSET", obj)
		g.oldobjectswithcardsset.Append(obj)
		added = true
	}
	assertf(added, "young raw object %x with flags %v", obj, flags)
	if g.state == STATEMARKING {
		g.moreobjectstotrace.Append(obj)
	}
}

func (g *GC) freeyoungrawmalloced() {
	for obj := range g.youngrawmalloced {
		g.freerawifunvisited(obj, VISITEDRMY)
	}
	g.youngrawmalloced = make(map[api.Addr]struct{})
}

func (g *GC) removeyoungarraysfromoldobjects() {
	g.oldobjectspointingtoyoung.Filter(func(obj api.Addr) bool {
		_, young := g.youngrawmalloced[obj]
		return !young
	})
}
