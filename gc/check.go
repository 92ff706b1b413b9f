package gc

import "fmt"

import "github.com/bnclabs/incmark/api"

// Debugcheckconsistency validate the heap, return the first violation
// found. Expensive, meant for tests and debug builds.
func (g *GC) Debugcheckconsistency() error {
	if err := g.checknursery(); err != nil {
		return err
	}
	if err := g.checkrememberedset(); err != nil {
		return err
	}
	var err error
	g.foreacholdobject(func(obj api.Addr, unswept bool) bool {
		// dead objects waiting for the sweep may point to freed memory.
		if unswept && !g.hasflags(obj, VISITED) {
			return true
		}
		err = g.checkoldobject(obj)
		return err == nil
	})
	if err != nil {
		return err
	}
	if g.state == STATESCANNING {
		if g.objectstotrace.Nonempty() || g.moreobjectstotrace.Nonempty() {
			return fmt.Errorf("pending objects to trace in SCANNING")
		}
	}
	return nil
}

func (g *GC) checknursery() error {
	nursery, free, top, realtop := g.Nurseryrange()
	if !(nursery <= free && free <= top && top <= realtop) {
		fmsg := "nursery bounds %x <= %x <= %x <= %x violated"
		return fmt.Errorf(fmsg, nursery, free, top, realtop)
	}
	if top > free {
		for _, b := range g.space.Bytes(free, int64(top-free)) {
			if b != 0 {
				return fmt.Errorf("nursery not zero in [%x, %x)", free, top)
			}
		}
	}
	var err error
	prev := top
	g.nurserybarriers.Foreach(func(barrier api.Addr) {
		if err == nil && (barrier < prev || barrier > realtop) {
			err = fmt.Errorf("nursery barrier %x out of order", barrier)
		}
		prev = barrier
	})
	return err
}

func (g *GC) checkrememberedset() (err error) {
	g.oldobjectspointingtoyoung.Foreach(func(obj api.Addr) {
		if err == nil && g.hasflags(obj, TRACKYOUNGPTRS) {
			err = fmt.Errorf("remembered %x has TRACKYOUNGPTRS", obj)
		}
	})
	if err != nil {
		return err
	}
	g.oldobjectswithcardsset.Foreach(func(obj api.Addr) {
		if err == nil && !g.hasflags(obj, CARDSSET) {
			err = fmt.Errorf("%x with cards set has no CARDSSET", obj)
		}
	})
	if err != nil {
		return err
	}
	if int64(g.survivingpinned.Len()) > g.pinnedinnursery {
		fmsg := "%v surviving pinned, %v pinned"
		return fmt.Errorf(fmsg, g.survivingpinned.Len(), g.pinnedinnursery)
	}
	if g.pinnedinnursery > g.maxpinned {
		return fmt.Errorf("%v pinned over %v", g.pinnedinnursery, g.maxpinned)
	}
	return nil
}

func (g *GC) checkoldobject(obj api.Addr) error {
	hdr := g.header(obj)
	if hdr.kind != hdrnormal {
		return fmt.Errorf("old object %x is %v", obj, hdr)
	} else if err := hdr.flags.check(); err != nil {
		return fmt.Errorf("old object %x: %v", obj, err)
	} else if hdr.flags&(PINNED|HASSHADOW|VISITEDRMY) != 0 {
		return fmt.Errorf("old object %x has %v", obj, hdr.flags)
	} else if hdr.flags&FINALIZATIONORDERING != 0 {
		return fmt.Errorf("old object %x has %v", obj, hdr.flags)
	}
	if g.state == STATESCANNING && hdr.flags&VISITED != 0 {
		return fmt.Errorf("old object %x VISITED in SCANNING", obj)
	}

	// an old object not in the remembered set may only point to
	// pinned nursery objects, or must be a known parent of one.
	if hdr.flags&(TRACKYOUNGPTRS|PINNEDPARENTKNOWN) != TRACKYOUNGPTRS {
		return nil
	} else if hdr.flags&HASCARDS != 0 {
		return nil
	}
	var err error
	g.trace(obj, func(slot api.Addr) {
		child := g.space.Getaddr(slot)
		if err != nil || !g.isinnursery(child) {
			return
		}
		if g.header(child).kind != hdrnormal || !g.hasflags(child, PINNED) {
			err = fmt.Errorf("old %x points to young %x unremembered", obj, child)
		}
	})
	return err
}

// foreacholdobject call fn for every object in the old generation,
// until fn returns false. Unswept is true for objects the ongoing
// sweep is yet to decide upon.
func (g *GC) foreacholdobject(fn func(obj api.Addr, unswept bool) bool) {
	ok := true
	g.ac.Foreach(func(chunk api.Addr, _ int64) {
		if ok {
			ok = fn(chunk+api.Addr(HDR), g.ac.Unswept(chunk))
		}
	})
	g.oldrawmalloced.Foreach(func(obj api.Addr) {
		if ok {
			ok = fn(obj, false)
		}
	})
	g.rawmallocmightsweep.Foreach(func(obj api.Addr) {
		if ok {
			ok = fn(obj, true)
		}
	})
}
