package gc

import "github.com/bnclabs/incmark/api"

// dealwithyoungfinalizers run light finalizers of nursery objects that
// did not survive the minor collection.
func (g *GC) dealwithyoungfinalizers() {
	pinned := g.tmpstack
	for g.younglightfinalizers.Nonempty() {
		obj := g.younglightfinalizers.Pop()
		if g.isforwarded(obj) {
			g.oldlightfinalizers.Append(g.forwardingaddress(obj))
		} else if g.hasflags(obj, VISITED) {
			pinned.Append(obj) // pinned survivor, still young.
		} else {
			g.lightfinalize(obj)
		}
	}
	for pinned.Nonempty() {
		g.younglightfinalizers.Append(pinned.Pop())
	}
}

// dealwitholdfinalizers run light finalizers of old objects that were
// not marked.
func (g *GC) dealwitholdfinalizers() {
	survivors := g.tmpstack
	for g.oldlightfinalizers.Nonempty() {
		obj := g.oldlightfinalizers.Pop()
		if g.hasflags(obj, VISITED) {
			survivors.Append(obj)
			continue
		}
		g.lightfinalize(obj)
	}
	g.oldlightfinalizers.Swap(survivors)
}

func (g *GC) lightfinalize(obj api.Addr) {
	finalizer := g.layout.Lightfinalizer(g.typeid(obj))
	assertf(finalizer != nil, "no light finalizer for %x", obj)
	g.nlightfinalized++
	finalizer(obj)
}

// Finalization state of an object, tracked with VISITED and
// FINALIZATIONORDERING.
//
//	state 0: neither flag, not reachable so far.
//	state 1: FINALIZATIONORDERING, reachable from a dying finalizer.
//	state 2: both, alive only because a finalizer must run.
//	state 3: VISITED, alive.
func (g *GC) finalizationstate(obj api.Addr) int {
	flags := g.flags(obj)
	if flags&VISITED != 0 {
		if flags&FINALIZATIONORDERING != 0 {
			return 2
		}
		return 3
	} else if flags&FINALIZATIONORDERING != 0 {
		return 1
	}
	return 0
}

// dealwithobjectswithfinalizers queue the unmarked finalizer objects,
// keeping alive everything they reach. An object reachable from
// another dying finalizer object is finalized in a later collection,
// so that finalizers always run in topological order.
func (g *GC) dealwithobjectswithfinalizers() {
	assertf(!g.objectstotrace.Nonempty(), "objectstotrace not empty")
	survivors := make([]api.Addr, 0, g.objectswithfinalizers.Len())
	marked := make([]api.Addr, 0)
	pending := make([]api.Addr, 0)

	appendchild := func(slot api.Addr) {
		child := g.space.Getaddr(slot)
		if !g.hasflags(child, NOHEAPPTRS|PINNED) {
			pending = append(pending, child)
		}
	}

	for g.objectswithfinalizers.Nonempty() {
		x := g.objectswithfinalizers.Popleft()
		assertf(g.finalizationstate(x) != 1, "%x in finalization state 1", x)
		if g.hasflags(x, VISITED) {
			survivors = append(survivors, x)
			continue
		}
		marked = append(marked, x)
		pending = append(pending, x)
		for len(pending) > 0 {
			y := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			switch g.finalizationstate(y) {
			case 0:
				g.addflags(y, FINALIZATIONORDERING)
				g.trace(y, appendchild)
			case 2:
				g.recursivelybump2to3(y)
			}
		}
		g.recursivelybump1to2(x)
	}

	// objects in state 2 are about to be finalized, weakrefs to them
	// are cleared as well.
	g.invalidateoldweakrefs()

	for _, x := range marked {
		state := g.finalizationstate(x)
		assertf(state >= 2, "%x in finalization state %v", x, state)
		if state == 2 {
			g.runfinalizers.Append(x)
			g.recursivelybump2to3(x)
		} else {
			survivors = append(survivors, x)
		}
	}
	for _, x := range survivors {
		g.objectswithfinalizers.Append(x)
	}
}

func (g *GC) recursivelybump2to3(obj api.Addr) {
	pending := g.tmpstack
	pending.Append(obj)
	for pending.Nonempty() {
		y := pending.Pop()
		if !g.hasflags(y, FINALIZATIONORDERING) {
			continue
		}
		g.clearflags(y, FINALIZATIONORDERING)
		g.trace(y, func(slot api.Addr) {
			pending.Append(g.space.Getaddr(slot))
		})
	}
}

// recursivelybump1to2 mark everything reachable from obj, objects in
// state 1 move to state 2.
func (g *GC) recursivelybump1to2(obj api.Addr) {
	g.objectstotrace.Append(obj)
	g.visitall()
}

// executefinalizers run queued full finalizers. A finalizer may
// allocate and thus collect, finalizers queued meanwhile are run by
// the outermost call.
func (g *GC) executefinalizers() {
	if g.finalizerlock {
		return
	}
	g.finalizerlock = true
	defer func() { g.finalizerlock = false }()

	for g.runfinalizers.Nonempty() {
		obj := g.runfinalizers.Popleft()
		finalizer := g.layout.Finalizer(g.typeid(obj))
		assertf(finalizer != nil, "no finalizer for %x", obj)
		g.nfinalized++
		finalizer(obj)
	}
}

// Pendingfinalizers return the number of objects whose finalizer is
// yet to run.
func (g *GC) Pendingfinalizers() int {
	return g.runfinalizers.Len()
}
