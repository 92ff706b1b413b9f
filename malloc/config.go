package malloc

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"

// Alignment every chunk handed out by this package is a multiple of
// Alignment and aligned to it.
const Alignment = api.WORD

// Maxpageblocks maximum number of chunks in a single page.
const Maxpageblocks = int64(65535)

// Defaultsettings for ArenaCollection.
//
// "arenasize" (int64, default: 65536*WORD)
//		Size of an arena, memory is mapped from Space in arena
//		granularity and unmapped once every page in the arena is free.
//
// "pagesize" (int64, default: 1024*WORD)
//		Size of a page. Each page serves chunks of a single size class.
//
// "smallrequest" (int64, default: 35*WORD)
//		Largest chunk served by the collection. Size classes are
//		multiples of Alignment upto this size.
//
func Defaultsettings() s.Settings {
	return s.Settings{
		"arenasize":    65536 * api.WORD,
		"pagesize":     1024 * api.WORD,
		"smallrequest": 35 * api.WORD,
	}
}

// Defaultspacesettings for Space.
//
// "capacity" (int64, default: <free RAM>)
//		Maximum number of bytes that can be mapped at any time.
//
func Defaultspacesettings() s.Settings {
	_, _, free := getsysmem()
	return s.Settings{
		"capacity": int64(free),
	}
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
