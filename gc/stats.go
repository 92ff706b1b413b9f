package gc

import "strings"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/lib"
import humanize "github.com/dustin/go-humanize"

// Stats return collector statistics.
func (g *GC) Stats() map[string]interface{} {
	_, free, top, _ := g.Nurseryrange()
	return map[string]interface{}{
		"n_minors":            g.nminors,
		"n_majorsteps":        g.nmajorsteps,
		"n_majorcollects":     g.nmajorcollects,
		"n_promoted":          g.npromoted,
		"n_promotedbytes":     g.npromotedbytes,
		"n_shadows":           g.nshadows,
		"n_externals":         g.nexternals,
		"n_lightfinalized":    g.nlightfinalized,
		"n_finalized":         g.nfinalized,
		"n_weakcleared":       g.nweakcleared,
		"n_barriers":          g.nbarriers,
		"n_cardbarriers":      g.ncardbarriers,
		"n_pinned":            g.pinnedinnursery,
		"n_oldraw":            int64(g.oldrawmalloced.Len()),
		"n_pendingfinalizers": int64(g.runfinalizers.Len()),
		"state":               Statename(g.state),
		"nursery.used":        int64(free - g.nursery),
		"nursery.available":   int64(top - free),
		"memory.used":         g.Totalmemoryused(),
		"memory.arena":        g.ac.TotalMemoryUsed(),
		"memory.raw":          g.raw.Totalsize(),
		"memory.mapped":       g.space.Mapped(),
		"memory.overhead":     g.overhead(),
		"threshold.next":      int64(g.nextmajorthreshold),
		"threshold.initial":   int64(g.nextmajorinitial),
		"markbudget.mean":     g.a_markbudget.Mean(),
		"markbudget.samples":  g.a_markbudget.Samples(),
		"h_surviving":         g.h_surviving.Fullstats(),
		"h_pinned":            g.h_pinned.Fullstats(),
	}
}

// overhead is allocator book keeping held outside the heap.
func (g *GC) overhead() (n int64) {
	for _, m := range []api.Mallocer{g.ac, g.raw, g.prebuilts} {
		_, _, _, overhead := m.Info()
		n += overhead
	}
	return n
}

// Log collector statistics, sizes are humanized if asked for.
func (g *GC) Log(dohumanize bool) {
	stats := g.Stats()
	if dohumanize {
		tobytes := func(key string) string {
			return humanize.Bytes(uint64(stats[key].(int64)))
		}
		fmsg := "%v memory used %v (arena %v raw %v) mapped %v, next major at %v\n"
		infof(fmsg, g.logprefix, tobytes("memory.used"),
			tobytes("memory.arena"), tobytes("memory.raw"),
			tobytes("memory.mapped"), tobytes("threshold.next"))
		fmsg = "%v %v minors, %v major collections in %v steps, " +
			"promoted %v objects (%v)\n"
		infof(fmsg, g.logprefix, humanize.Comma(g.nminors), g.nmajorcollects,
			g.nmajorsteps, humanize.Comma(g.npromoted),
			tobytes("n_promotedbytes"))
		g.ac.Log()
	}

	outs := []string{
		"  surviving " + g.h_surviving.Logstring(),
		"  pinned " + g.h_pinned.Logstring(),
	}
	infof("%v histograms:\n%v\n", g.logprefix, strings.Join(outs, "\n"))

	delete(stats, "h_surviving")
	delete(stats, "h_pinned")
	infof("%v stats %v\n", g.logprefix, lib.Prettystats(stats, false))
}
