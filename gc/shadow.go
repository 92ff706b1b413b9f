package gc

import "github.com/bnclabs/incmark/api"

// Id return a stable identity for obj. Old objects never move and are
// their own id. A nursery object is given a shadow, old space set
// aside for it, and the next minor collection copies the object into
// its shadow.
func (g *GC) Id(obj api.Addr) api.Addr {
	if obj == api.NULL || !g.isinnursery(obj) {
		return obj
	}
	return g.findshadow(obj)
}

// Identityhash return a hash for obj that does not change when obj
// moves.
func (g *GC) Identityhash(obj api.Addr) int64 {
	return manglehash(int64(g.Id(obj)))
}

// Canmove return true if obj may still be moved by a collection.
func (g *GC) Canmove(obj api.Addr) bool {
	return g.isinnursery(obj)
}

func (g *GC) findshadow(obj api.Addr) api.Addr {
	if g.hasflags(obj, HASSHADOW) {
		shadow, ok := g.nurseryshadows[obj]
		assertf(ok, "HASSHADOW but no shadow for %x", obj)
		return shadow
	}

	// shadow shall look like a valid object, it is swept like any
	// other if obj dies before it is copied.
	typeid := g.typeid(obj)
	hdraddr := g.mallocoutofnursery(g.totalsize(obj))
	g.initobject(hdraddr, typeid, 0)
	shadow := hdraddr + api.Addr(HDR)
	if g.isvarsize(typeid) {
		_, lengthofs, _ := g.layout.Varsize(typeid)
		g.space.Setint(shadow+api.Addr(lengthofs), g.length(obj, typeid))
	}

	g.addflags(obj, HASSHADOW)
	g.nurseryshadows[obj] = shadow
	g.nshadows++
	return shadow
}
