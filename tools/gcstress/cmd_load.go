package main

import "fmt"
import "flag"
import "time"
import "math/rand"

import "github.com/bnclabs/incmark/gc"
import s "github.com/bnclabs/gosettings"
import humanize "github.com/dustin/go-humanize"

var loadopts struct {
	n        int
	nroots   int
	seed     int
	nursery  string
	maxheap  string
	capacity string
	every    int
	check    bool
	logstats int
	mprof    string
	pprof    string
}

func parseLoadopts(args []string) {
	f := flag.NewFlagSet("load", flag.ExitOnError)

	f.IntVar(&loadopts.n, "n", 1000000,
		"number of operations to apply")
	f.IntVar(&loadopts.nroots, "roots", 1024,
		"number of root slots")
	f.IntVar(&loadopts.seed, "seed", 0,
		"random seed, zero picks one from time")
	f.StringVar(&loadopts.nursery, "nursery", "",
		"nursery size, like 4MB, default from gc settings")
	f.StringVar(&loadopts.maxheap, "maxheap", "",
		"bound the heap, like 1GB, default unbounded")
	f.StringVar(&loadopts.capacity, "capacity", "4GB",
		"capacity of the simulated address space")
	f.IntVar(&loadopts.every, "every", 100000,
		"run a full collection every so many operations, zero disables")
	f.BoolVar(&loadopts.check, "check", false,
		"check heap consistency after every full collection")
	f.IntVar(&loadopts.logstats, "stats", 1000,
		"log collector stats for every tick, in ms")
	f.StringVar(&loadopts.mprof, "mprof", "",
		"dump mem-profile to file")
	f.StringVar(&loadopts.pprof, "pprof", "",
		"dump cpu-profile to file")
	f.Parse(args)

	if loadopts.seed == 0 {
		loadopts.seed = int(time.Now().UnixNano() % 1000000)
	}
	fmt.Printf("seed: %v\n", loadopts.seed)
}

// stresssettings compose collector settings from defaults, the
// environment and command line, in that order.
func stresssettings(nursery, maxheap, capacity string) (s.Settings, error) {
	setts := make(s.Settings).Mixin(gc.Defaultsettings(), gc.Envsettings())
	sizes := [][2]string{
		{nursery, "nurserysize"},
		{maxheap, "maxheapsize"},
		{capacity, "space.capacity"},
	}
	for _, pair := range sizes {
		if pair[0] == "" {
			continue
		}
		n, err := humanize.ParseBytes(pair[0])
		if err != nil {
			return nil, fmt.Errorf("%v: %v", pair[1], err)
		}
		setts[pair[1]] = int64(n)
	}
	return setts, nil
}

func doLoad(args []string) {
	parseLoadopts(args)
	defer takeCPUProfile(loadopts.pprof)()

	setts, err := stresssettings(
		loadopts.nursery, loadopts.maxheap, loadopts.capacity)
	if err != nil {
		fmt.Printf("invalid settings: %v\n", err)
		return
	}
	m, err := newmutator(int64(loadopts.nroots), setts)
	if err != nil {
		fmt.Printf("newmutator: %v\n", err)
		return
	}
	defer m.g.Destroy()

	rnd := rand.New(rand.NewSource(int64(loadopts.seed)))
	tick := time.Duration(loadopts.logstats) * time.Millisecond
	now, lastlog := time.Now(), time.Now()
	for i := 1; i <= loadopts.n; i++ {
		cmd := m.randomop(rnd)
		if err := m.safeapply(cmd); err != nil {
			fmt.Printf("op %v %v: %v\n", i, cmd, err)
			break
		}
		if loadopts.every > 0 && i%loadopts.every == 0 {
			if err := m.fullcollect(loadopts.check); err != nil {
				fmt.Printf("op %v: %v\n", i, err)
				break
			}
		}
		if tick > 0 && time.Since(lastlog) > tick {
			m.g.Log(false)
			lastlog = time.Now()
		}
	}
	fmt.Printf("Took %v to apply %v operations\n",
		time.Since(now), humanize.Comma(int64(loadopts.n)))
	m.report()

	if takeMEMProfile(loadopts.mprof) {
		fmt.Printf("dumped mem-profile to %v\n", loadopts.mprof)
	}
}

func (m *mutator) fullcollect(check bool) error {
	if err := m.g.Collect(2); err != nil {
		return err
	}
	if check {
		return m.g.Debugcheckconsistency()
	}
	return nil
}

func (m *mutator) report() {
	stats := m.g.Stats()
	used := humanize.Bytes(uint64(stats["memory.used"].(int64)))
	mapped := humanize.Bytes(uint64(stats["memory.mapped"].(int64)))
	fmsg := "minors:%v majors:%v promoted:%v used:%v mapped:%v\n"
	fmt.Printf(fmsg, stats["n_minors"], stats["n_majorcollects"],
		humanize.Comma(stats["n_promoted"].(int64)), used, mapped)
	fmsg = "finalized:%v light:%v weakcleared:%v shadows:%v\n"
	fmt.Printf(fmsg, m.nfinalized, m.nlight, stats["n_weakcleared"],
		stats["n_shadows"])
	for name, count := range m.stats {
		fmt.Printf("  %-8v : %v\n", name, humanize.Comma(count))
	}
	m.g.Log(true)
}
