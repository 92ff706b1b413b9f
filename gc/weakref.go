package gc

import "github.com/bnclabs/incmark/api"

// Weakrefs are nursery allocated objects with a single weak pointer
// at Weakptroffset. The weak pointer is set when the weakref is
// created and never written afterwards, it is not traced.

// invalidateyoungweakrefs update or clear weak pointers of weakrefs
// allocated since the last minor collection.
func (g *GC) invalidateyoungweakrefs() {
	young := g.tmpstack
	for g.youngobjectswithweakrefs.Nonempty() {
		obj := g.youngobjectswithweakrefs.Pop()
		if g.isinnursery(obj) {
			if g.isforwarded(obj) {
				obj = g.forwardingaddress(obj)
			} else if !g.hasflags(obj, VISITED) {
				continue // weakref itself died.
			}
		}

		slot := obj + api.Addr(g.layout.Weakptroffset(g.typeid(obj)))
		target := g.space.Getaddr(slot)
		if target == api.NULL {
			continue
		}
		if g.isinnursery(target) {
			if g.isforwarded(target) {
				target = g.forwardingaddress(target)
				g.space.Setaddr(slot, target)
			} else if !g.hasflags(target, VISITED) {
				g.space.Setaddr(slot, api.NULL)
				g.nweakcleared++
				continue
			}
		} else if _, ok := g.youngrawmalloced[target]; ok {
			if !g.hasflags(target, VISITEDRMY) {
				g.space.Setaddr(slot, api.NULL)
				g.nweakcleared++
				continue
			}
		} else if g.hasflags(target, NOHEAPPTRS) {
			continue // prebuilt targets never die.
		}

		// pinned weakrefs, or weakrefs to pinned objects, are looked
		// at again by the next minor collection.
		if g.isinnursery(obj) || g.isinnursery(target) {
			young.Append(obj)
		} else {
			g.oldobjectswithweakrefs.Append(obj)
		}
	}
	for young.Nonempty() {
		g.youngobjectswithweakrefs.Append(young.Pop())
	}
}

// invalidateoldweakrefs clear weak pointers to objects that were not
// marked, or that are kept alive only to run their finalizer.
func (g *GC) invalidateoldweakrefs() {
	survivors := g.tmpstack
	for g.oldobjectswithweakrefs.Nonempty() {
		obj := g.oldobjectswithweakrefs.Pop()
		if !g.hasflags(obj, VISITED) {
			continue // weakref itself dies.
		}
		slot := obj + api.Addr(g.layout.Weakptroffset(g.typeid(obj)))
		target := g.space.Getaddr(slot)
		if target == api.NULL {
			continue
		}
		assertf(!g.isinnursery(target), "old weakref %x to nursery %x", obj, target)
		flags := g.flags(target)
		if flags&VISITED != 0 && flags&FINALIZATIONORDERING == 0 {
			survivors.Append(obj)
			continue
		}
		g.space.Setaddr(slot, api.NULL)
		g.nweakcleared++
	}
	g.oldobjectswithweakrefs.Swap(survivors)
}
