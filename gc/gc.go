package gc

import "fmt"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/lib"
import "github.com/bnclabs/incmark/malloc"
import s "github.com/bnclabs/gosettings"

// HDR size of the object header.
const HDR = api.WORD

// Minnurserysize is the smallest footprint of a nursery object, header
// plus one word to hold the forwarding address.
const Minnurserysize = HDR + api.WORD

// Major collection states.
const (
	STATESCANNING int = iota
	STATEMARKING
	STATESWEEPING
	STATEFINALIZING
)

var statenames = []string{"SCANNING", "MARKING", "SWEEPING", "FINALIZING"}

// GC is an incremental, generational, mostly non moving garbage
// collector. Young objects are bump allocated in a nursery and moved
// out by minor collections, old objects are reclaimed by an
// incremental mark and sweep. GC is not thread safe, the mutator and
// the collector share one thread.
type GC struct {
	// 64-bit aligned stats
	nminors         int64
	nmajorsteps     int64
	nmajorcollects  int64
	npromoted       int64
	npromotedbytes  int64
	nshadows        int64
	nexternals      int64
	nlightfinalized int64
	nfinalized      int64
	nweakcleared    int64
	nbarriers       int64
	ncardbarriers   int64

	name      string
	logprefix string
	space     *malloc.Space
	layout    api.TypeLayout
	roots     api.RootWalker
	ac        *malloc.ArenaCollection
	raw       *malloc.Rawmalloc
	prebuilts *malloc.Rawmalloc

	// nursery
	nursery             api.Addr
	nurseryfree         api.Addr
	nurserytop          api.Addr
	nurseryrealtop      api.Addr
	nurserybarriers     *lib.Addrdeque
	initialcleanup      int64
	pinnedinnursery     int64
	survivingpinned     *lib.Addrstack
	nurserysurviving    int64
	nurseryshadows      map[api.Addr]api.Addr
	youngrawmalloced    map[api.Addr]struct{}
	oldrawmalloced      *lib.Addrstack
	rawmallocmightsweep *lib.Addrstack

	// remembered set
	oldobjectspointingtoyoung  *lib.Addrstack
	oldobjectswithcardsset     *lib.Addrstack
	oldobjectspointingtopinned *lib.Addrstack
	prebuiltrootobjects        *lib.Addrstack

	// major collection
	state              int
	objectstotrace     *lib.Addrstack
	moreobjectstotrace *lib.Addrstack
	tmpstack           *lib.Addrstack

	// finalizers and weakrefs
	objectswithfinalizers    *lib.Addrdeque
	runfinalizers            *lib.Addrdeque
	finalizerlock            bool
	younglightfinalizers     *lib.Addrstack
	oldlightfinalizers       *lib.Addrstack
	youngobjectswithweakrefs *lib.Addrstack
	oldobjectswithweakrefs   *lib.Addrstack

	// thresholds
	nextmajorinitial   float64
	nextmajorthreshold float64
	maxheapraised      bool

	// settings
	nurserysize     int64
	nurserycleanup  int64
	pagesize        int64
	smallrequest    int64
	largeobject     int64
	nonlargemax     int64
	cardpageindices int64
	cardpageshift   uint
	majorthreshold  float64
	growthratemax   float64
	minheapsize     float64
	maxheapsize     float64
	maxdelta        float64
	gcincrementstep int64
	maxpinned       int64
	setts           s.Settings

	// statistics
	h_surviving  *lib.HistogramInt64
	h_pinned     *lib.HistogramInt64
	a_markbudget lib.AverageInt64
}

// NewGC create a new collector. If space is nil a new address space
// is created from "space.*" settings. Layout describes the objects
// and roots enumerates the mutator's root slots, both are consulted
// on every collection.
func NewGC(
	name string, space *malloc.Space, layout api.TypeLayout,
	roots api.RootWalker, setts s.Settings) (*GC, error) {

	g := &GC{
		name:      name,
		logprefix: fmt.Sprintf("GC [%s]", name),
		layout:    layout,
		roots:     roots,
	}
	setts = make(s.Settings).Mixin(Defaultsettings(), setts)
	g.readsettings(setts)
	g.setts = setts

	if space == nil {
		space = malloc.NewSpace(setts.Section("space").Trim("space."))
	}
	g.space = space
	acsetts := s.Settings{
		"pagesize":     g.pagesize,
		"arenasize":    setts.Int64("arenasize"),
		"smallrequest": g.smallrequest,
	}
	g.ac = malloc.NewArenaCollection(space, acsetts)
	g.raw = malloc.NewRawmalloc(space)
	g.prebuilts = malloc.NewRawmalloc(space)

	g.nurserybarriers = lib.NewAddrdeque()
	g.survivingpinned = lib.NewAddrstack()
	g.nurseryshadows = make(map[api.Addr]api.Addr)
	g.youngrawmalloced = make(map[api.Addr]struct{})
	g.oldrawmalloced = lib.NewAddrstack()
	g.rawmallocmightsweep = lib.NewAddrstack()
	g.oldobjectspointingtoyoung = lib.NewAddrstack()
	g.oldobjectswithcardsset = lib.NewAddrstack()
	g.oldobjectspointingtopinned = lib.NewAddrstack()
	g.prebuiltrootobjects = lib.NewAddrstack()
	g.objectstotrace = lib.NewAddrstack()
	g.moreobjectstotrace = lib.NewAddrstack()
	g.tmpstack = lib.NewAddrstack()
	g.objectswithfinalizers = lib.NewAddrdeque()
	g.runfinalizers = lib.NewAddrdeque()
	g.younglightfinalizers = lib.NewAddrstack()
	g.oldlightfinalizers = lib.NewAddrstack()
	g.youngobjectswithweakrefs = lib.NewAddrstack()
	g.oldobjectswithweakrefs = lib.NewAddrstack()

	width := maxint64(g.nurserysize/32, api.WORD)
	g.h_surviving = lib.NewHistogramInt64(0, g.nurserysize, width)
	g.h_pinned = lib.NewHistogramInt64(0, g.maxpinned+1, 1)

	if err := g.allocatenursery(); err != nil {
		return nil, err
	}
	g.state = STATESCANNING

	infof("%v started, nursery %v at %x ...\n", g.logprefix,
		g.nurserysize, g.nursery)
	g.logsettings()
	return g, nil
}

func (g *GC) readsettings(setts s.Settings) {
	g.nurserysize = setts.Int64("nurserysize")
	g.nurserycleanup = setts.Int64("nurserycleanup")
	g.pagesize = setts.Int64("pagesize")
	g.smallrequest = setts.Int64("smallrequest")
	g.largeobject = setts.Int64("largeobject")
	g.cardpageindices = setts.Int64("cardpageindices")
	g.majorthreshold = setts.Float64("majorcollectionthreshold")
	g.growthratemax = setts.Float64("growthratemax")
	g.minheapsize = float64(setts.Int64("minheapsize"))
	g.maxheapsize = float64(setts.Int64("maxheapsize"))
	g.maxdelta = float64(setts.Int64("maxdelta"))
	g.gcincrementstep = setts.Int64("gcincrementstep")
	g.maxpinned = setts.Int64("maxpinnedobjects")

	g.nurserysize = malloc.Roundup(g.nurserysize, api.WORD)
	g.nonlargemax = g.largeobject - 1
	if g.nurserysize < 2*(g.nonlargemax+1) {
		fmsg := "nurserysize %v must be atleast twice largeobject %v"
		panicerr(fmsg, g.nurserysize, g.largeobject)
	}
	if g.smallrequest > g.nonlargemax {
		fmsg := "smallrequest %v must be less than largeobject %v"
		panicerr(fmsg, g.smallrequest, g.largeobject)
	}
	if n := g.cardpageindices; n < 0 || (n&(n-1)) != 0 {
		panicerr("cardpageindices %v must be zero or a power of 2", n)
	}
	for g.cardpageindices > 0 && (int64(1)<<g.cardpageshift) != g.cardpageindices {
		g.cardpageshift++
	}
	if g.majorthreshold <= 1.0 {
		panicerr("majorcollectionthreshold %v must be > 1.0", g.majorthreshold)
	} else if g.growthratemax <= 1.0 {
		panicerr("growthratemax %v must be > 1.0", g.growthratemax)
	}
	if g.maxpinned < 0 {
		panicerr("maxpinnedobjects %v must not be negative", g.maxpinned)
	}
	if g.gcincrementstep <= 0 {
		g.gcincrementstep = g.nurserysize * 4
	}
	g.nurserycleanup = malloc.Roundup(g.nurserycleanup, api.WORD)
	if g.nurserycleanup < g.nonlargemax+1 {
		g.nurserycleanup = malloc.Roundup(g.nonlargemax+1, api.WORD)
	}
	if g.maxdelta <= 0 {
		total, _, _ := getsysmem()
		g.maxdelta = float64(total) * 0.125
	}
}

func (g *GC) allocatenursery() error {
	nursery, err := g.space.Mmap(g.nurserysize)
	if err != nil {
		errorf("%v cannot allocate nursery: %v\n", g.logprefix, err)
		return err
	}
	g.nursery = nursery
	g.nurseryfree = nursery
	g.nurseryrealtop = nursery + api.Addr(g.nurserysize)

	// threshold
	floor := float64(g.nurserysize) * g.majorthreshold
	if g.minheapsize < floor {
		g.minheapsize = floor
	}
	g.nextmajorinitial = g.minheapsize
	g.nextmajorthreshold = g.minheapsize
	g.setmajorthresholdfrom(0, 0)

	// exactly initialcleanup + N*nurserycleanup == nurserysize, with
	// initialcleanup between 1x and 2x of nurserycleanup.
	g.initialcleanup = g.nurserycleanup + (g.nurserysize % g.nurserycleanup)
	if g.initialcleanup > g.nurserysize {
		g.initialcleanup = g.nurserysize
	}
	// freshly mapped memory is zero filled.
	g.nurserytop = g.nurseryrealtop
	return nil
}

// Destroy release all memory held by the collector. Objects allocated
// from this collector shall not be accessed after Destroy.
func (g *GC) Destroy() {
	if g.nursery != api.NULL {
		g.space.Munmap(g.nursery)
		g.nursery, g.nurseryfree = api.NULL, api.NULL
		g.nurserytop, g.nurseryrealtop = api.NULL, api.NULL
	}
	for obj := range g.youngrawmalloced {
		g.freerawobject(obj)
	}
	g.youngrawmalloced = make(map[api.Addr]struct{})
	freeall := func(stack *lib.Addrstack) {
		for stack.Nonempty() {
			g.freerawobject(stack.Pop())
		}
	}
	freeall(g.oldrawmalloced)
	freeall(g.rawmallocmightsweep)
	g.ac.Release()
	infof("%v destroyed\n", g.logprefix)
}

// ID return the name of this collector.
func (g *GC) ID() string {
	return g.name
}

// Space return the address space objects are allocated from.
func (g *GC) Space() *malloc.Space {
	return g.space
}

// State return the current major collection state.
func (g *GC) State() int {
	return g.state
}

// Statename return the name of a major collection state.
func Statename(state int) string {
	if state >= 0 && state < len(statenames) {
		return statenames[state]
	}
	return fmt.Sprintf("state(%v)", state)
}

// Totalmemoryused return bytes held by the old generation, objects in
// the nursery are not counted.
func (g *GC) Totalmemoryused() int64 {
	return g.ac.TotalMemoryUsed() + g.raw.Totalsize()
}

// Nurseryrange return the nursery's bounds and the current bump
// pointer.
func (g *GC) Nurseryrange() (nursery, free, top, realtop api.Addr) {
	return g.nursery, g.nurseryfree, g.nurserytop, g.nurseryrealtop
}

// Isinnursery return true if obj lies within the nursery.
func (g *GC) Isinnursery(obj api.Addr) bool {
	return g.isinnursery(obj)
}

// Isyoung return true if obj is in the nursery or is a young raw
// allocated object.
func (g *GC) Isyoung(obj api.Addr) bool {
	if g.isinnursery(obj) {
		return true
	}
	_, ok := g.youngrawmalloced[obj]
	return ok
}

// Remembered return true if obj is in the remembered set.
func (g *GC) Remembered(obj api.Addr) bool {
	return g.oldobjectspointingtoyoung.Contains(obj)
}

// Pinnedcount return the number of pinned objects in the nursery.
func (g *GC) Pinnedcount() int64 {
	return g.pinnedinnursery
}

// Nextmajorthreshold return the old generation size at which the next
// major collection starts.
func (g *GC) Nextmajorthreshold() float64 {
	return g.nextmajorthreshold
}

func (g *GC) logsettings() {
	fmsg := "%v nursery %v cleanup %v/%v, largeobject %v, smallrequest %v\n"
	infof(fmsg, g.logprefix, g.nurserysize, g.initialcleanup,
		g.nurserycleanup, g.largeobject, g.smallrequest)
	fmsg = "%v threshold %v growth %v, minheap %.0f maxheap %.0f " +
		"maxdelta %.0f step %v\n"
	infof(fmsg, g.logprefix, g.majorthreshold, g.growthratemax,
		g.minheapsize, g.maxheapsize, g.maxdelta, g.gcincrementstep)
}
