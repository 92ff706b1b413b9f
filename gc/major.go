package gc

import "math"

import "github.com/bnclabs/incmark/api"

// majorcollectionstep advance the major collection by one increment.
// Shall be called right after a minor collection, when the nursery
// holds nothing but pinned objects. Reserving is the size of an
// allocation that is about to happen, only the last step of a sweep
// fails with api.ErrorOutofMemory if the heap cannot make room for it.
func (g *GC) majorcollectionstep(reserving int64) error {
	g.nmajorsteps++
	debugf("%v major step %v in %v\n",
		g.logprefix, g.nmajorsteps, Statename(g.state))

	switch g.state {
	case STATESCANNING:
		assertf(!g.objectstotrace.Nonempty(), "objectstotrace not empty")
		assertf(!g.moreobjectstotrace.Nonempty(), "moreobjectstotrace not empty")
		g.collectroots()
		g.state = STATEMARKING

	case STATEMARKING:
		estimate := maxint64(g.gcincrementstep, 2*g.nurserysurviving)
		remaining := g.visitstep(estimate)
		g.a_markbudget.Add(estimate - remaining)
		if remaining >= estimate/2 && g.moreobjectstotrace.Nonempty() {
			// consumed less than half the budget, visit everything
			// added during this major collection so that marking
			// terminates.
			g.objectstotrace.Swap(g.moreobjectstotrace)
			g.visitall()
		}
		if g.objectstotrace.Nonempty() || g.moreobjectstotrace.Nonempty() {
			return nil
		}
		g.finishmarking()
		g.state = STATESWEEPING

	case STATESWEEPING:
		if !g.sweepstep() {
			return nil
		}
		g.nmajorcollects++
		g.prebuiltrootobjects.Foreach(func(obj api.Addr) {
			g.clearflags(obj, VISITED)
		})

		used := float64(g.Totalmemoryused())
		threshold := math.Min(used*g.majorthreshold, used+g.maxdelta)
		bounded := g.setmajorthresholdfrom(threshold, reserving)
		infof("%v major collection %v done, used %v next at %.0f\n",
			g.logprefix, g.nmajorcollects, int64(used), g.nextmajorthreshold)

		if bounded && used+float64(reserving) >= g.nextmajorinitial {
			if g.maxheapraised {
				abortf("%v heap %v exceeds maxheapsize %.0f",
					g.logprefix, int64(used)+reserving, g.maxheapsize)
			}
			// give the mutator one chance to recover, next time the
			// ceiling is hit the process aborts.
			g.maxheapraised = true
			warnf("%v heap %v at maxheapsize %.0f, out of memory\n",
				g.logprefix, int64(used)+reserving, g.maxheapsize)
			return api.ErrorOutofMemory
		}
		g.state = STATEFINALIZING

	case STATEFINALIZING:
		g.state = STATESCANNING
		g.executefinalizers()

	default:
		panicerr("majorcollectionstep(): invalid state %v", g.state)
	}
	return nil
}

// collectroots grey every object directly reachable from the roots.
func (g *GC) collectroots() {
	// pinned objects stay in the nursery and hold no references, the
	// minor collection keeps them alive.
	push := func(obj api.Addr) {
		if obj != api.NULL && !g.isinnursery(obj) {
			g.objectstotrace.Append(obj)
		}
	}
	g.prebuiltrootobjects.Foreach(push)
	g.roots.Walkroots(func(slot api.Addr) { push(g.space.Getaddr(slot)) })
	// objects pending finalization are alive until their finalizer
	// has run.
	g.runfinalizers.Foreach(push)
}

// visitstep visit grey objects until `budget` bytes are traced, return
// the unused budget.
func (g *GC) visitstep(budget int64) int64 {
	pending := g.objectstotrace
	for pending.Nonempty() {
		budget -= g.visit(pending.Pop())
		if budget < 0 {
			return 0
		}
	}
	return budget
}

func (g *GC) visitall() {
	for g.objectstotrace.Nonempty() {
		g.visitstep(math.MaxInt64)
	}
}

// visit mark obj and grey its children, return the number of bytes
// traced.
func (g *GC) visit(obj api.Addr) int64 {
	flags := g.flags(obj)
	if flags&(VISITED|NOHEAPPTRS|PINNED) != 0 {
		return 0
	}
	// marked objects track young pointers again, a write into them
	// re-greys them at the next minor collection.
	g.addflags(obj, VISITED|TRACKYOUNGPTRS)
	typeid := g.typeid(obj)
	if g.haspointers(typeid) {
		g.trace(obj, func(slot api.Addr) {
			child := g.space.Getaddr(slot)
			if g.isinnursery(child) {
				return
			} else if !g.hasflags(child, VISITED|NOHEAPPTRS) {
				g.objectstotrace.Append(child)
			}
		})
	}
	return HDR + g.getsize(obj)
}

// finishmarking deal with finalizers and weakrefs, then set up the
// sweep.
func (g *GC) finishmarking() {
	if g.objectswithfinalizers.Nonempty() {
		g.dealwithobjectswithfinalizers()
	} else if g.oldobjectswithweakrefs.Nonempty() {
		g.invalidateoldweakrefs()
	}
	assertf(!g.objectstotrace.Nonempty(), "objectstotrace not empty")
	assertf(!g.moreobjectstotrace.Nonempty(), "moreobjectstotrace not empty")

	// young weakrefs left behind are pinned.
	g.youngobjectswithweakrefs.Filter(func(obj api.Addr) bool {
		return g.isinnursery(obj) || g.hasflags(obj, VISITED)
	})
	g.oldobjectspointingtopinned.Filter(func(obj api.Addr) bool {
		if g.hasflags(obj, VISITED) {
			return true
		}
		g.clearflags(obj, PINNEDPARENTKNOWN)
		return false
	})
	// shadows of pinned objects are not reachable from any old object.
	for _, shadow := range g.nurseryshadows {
		g.addflags(shadow, VISITED)
	}
	if g.oldlightfinalizers.Nonempty() {
		g.dealwitholdfinalizers()
	}

	g.ac.MassFreePrepare()
	g.rawmallocmightsweep.Swap(g.oldrawmalloced)
	assertf(!g.oldrawmalloced.Nonempty(), "oldrawmalloced not empty")
}

// sweepstep free a slice of unmarked raw objects, then a slice of
// arena pages. Return true when the sweep is complete.
func (g *GC) sweepstep() bool {
	if g.rawmallocmightsweep.Nonempty() {
		limit := 3 * g.nurserysize / g.smallrequest
		for ; limit > 0 && g.rawmallocmightsweep.Nonempty(); limit-- {
			g.freerawifunvisited(g.rawmallocmightsweep.Pop(), VISITED)
		}
		return false
	}
	maxpages := maxint64(3*g.nurserysize/g.pagesize, 1)
	return g.ac.MassFreeIncremental(g.freechunkifunvisited, maxpages)
}

// freerawifunvisited free a raw allocated object unless flag is set,
// in which case flag is cleared and object moves to oldrawmalloced.
func (g *GC) freerawifunvisited(obj api.Addr, flag Flags) {
	if g.hasflags(obj, flag) {
		g.clearflags(obj, flag)
		g.oldrawmalloced.Append(obj)
		return
	}
	g.freerawobject(obj)
}

func (g *GC) freechunkifunvisited(chunk api.Addr) bool {
	obj := chunk + api.Addr(HDR)
	if g.hasflags(obj, VISITED) {
		g.clearflags(obj, VISITED)
		return false
	}
	return true
}

// setmajorthresholdfrom compute the next major threshold from
// `threshold`, clamped by growthratemax and maxheapsize. Return true
// if maxheapsize clamped it.
func (g *GC) setmajorthresholdfrom(threshold float64, reserving int64) bool {
	if limit := g.nextmajorinitial * g.growthratemax; threshold > limit {
		threshold = limit
	}
	threshold += float64(reserving)
	if threshold < g.minheapsize {
		threshold = g.minheapsize
	}
	bounded := false
	if g.maxheapsize > 0 && threshold > g.maxheapsize {
		threshold = g.maxheapsize
		bounded = true
	}
	g.nextmajorinitial = threshold
	g.nextmajorthreshold = threshold
	return bounded
}

// Gcstepuntil run minor collections and major steps until the major
// collection reaches `state`.
func (g *GC) Gcstepuntil(state int, reserving int64) error {
	for g.state != state {
		if err := g.collectminor(); err != nil {
			return err
		}
		if err := g.majorcollectionstep(reserving); err != nil {
			return err
		}
	}
	return nil
}

// Minorandmajorcollection complete any ongoing major collection, then
// run a full one.
func (g *GC) Minorandmajorcollection() error {
	if err := g.Gcstepuntil(STATESCANNING, 0); err != nil {
		return err
	}
	if err := g.Gcstepuntil(STATEMARKING, 0); err != nil {
		return err
	}
	return g.Gcstepuntil(STATESCANNING, 0)
}

// Collect generation 0 runs a minor collection, generation 1 a minor
// collection followed by one major step, any other value a full
// collection. Finalizers are executed before returning.
func (g *GC) Collect(gen int) error {
	switch gen {
	case 0:
		if err := g.collectminor(); err != nil {
			return err
		}
	case 1:
		if err := g.collectminor(); err != nil {
			return err
		}
		if err := g.majorcollectionstep(0); err != nil {
			return err
		}
	default:
		if err := g.Minorandmajorcollection(); err != nil {
			return err
		}
	}
	g.executefinalizers()
	return nil
}

// Debuggcstep advance the major collection by n steps, each step
// preceded by a minor collection.
func (g *GC) Debuggcstep(n int) error {
	for i := 0; i < n; i++ {
		if err := g.collectminor(); err != nil {
			return err
		}
		if err := g.majorcollectionstep(0); err != nil {
			return err
		}
	}
	return nil
}
