package main

import "fmt"
import "flag"

import "github.com/bnclabs/incmark/malloc"
import humanize "github.com/dustin/go-humanize"

var sizesopts struct {
	pagesize     string
	smallrequest int64
}

func parseSizesopts(args []string) {
	f := flag.NewFlagSet("sizes", flag.ExitOnError)

	f.StringVar(&sizesopts.pagesize, "pagesize", "8KiB",
		"arena page size")
	f.Int64Var(&sizesopts.smallrequest, "smallrequest", 35*8,
		"largest chunk served by arenas")
	f.Parse(args)
}

// doSizes tell how well each arena size class fills a page.
func doSizes(args []string) {
	parseSizesopts(args)

	n, err := humanize.ParseBytes(sizesopts.pagesize)
	if err != nil {
		fmt.Printf("invalid pagesize: %v\n", err)
		return
	}
	pagesize := int64(n)
	fmt.Printf("page %v, size classes upto %v\n",
		humanize.IBytes(n), sizesopts.smallrequest)

	nclasses := 0
	for size := malloc.Alignment * 2; size <= sizesopts.smallrequest; size += malloc.Alignment {
		nblocks := pagesize / size
		if nblocks > malloc.Maxpageblocks {
			nblocks = malloc.Maxpageblocks
		}
		waste := pagesize - nblocks*size
		u := float64(nblocks*size) / float64(pagesize)
		fmt.Printf("size %4v, chunks %5v, waste %5v, util %.4f\n",
			size, nblocks, waste, u)
		nclasses++
	}
	fmt.Printf("total %v size classes\n", nclasses)
}
