package gc

import "github.com/bnclabs/incmark/api"

// Pin obj so that minor collections do not move it. Only nursery
// objects without pointers can be pinned, and only upto
// "maxpinnedobjects" at a time. Return false if obj cannot be pinned,
// objects outside the nursery never move anyway.
func (g *GC) Pin(obj api.Addr) bool {
	if g.pinnedinnursery >= g.maxpinned {
		return false
	} else if !g.isinnursery(obj) {
		return false
	}
	flags := g.flags(obj)
	if flags&PINNED != 0 {
		return false
	} else if g.haspointers(g.typeid(obj)) {
		return false
	}
	g.addflags(obj, PINNED)
	g.pinnedinnursery++
	debugf("%v pinned %x, %v pinned\n", g.logprefix, obj, g.pinnedinnursery)
	return true
}

// Unpin an object pinned by Pin.
func (g *GC) Unpin(obj api.Addr) {
	if !g.isinnursery(obj) || !g.hasflags(obj, PINNED) {
		panicerr("Unpin(): %x is not pinned", obj)
	}
	g.clearflags(obj, PINNED)
	g.pinnedinnursery--
}

// Ispinned return true if obj is pinned.
func (g *GC) Ispinned(obj api.Addr) bool {
	return g.isinnursery(obj) && g.hasflags(obj, PINNED)
}
