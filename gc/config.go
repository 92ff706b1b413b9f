package gc

import "os"
import "strconv"

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"
import "github.com/cloudfoundry/gosigar"
import humanize "github.com/dustin/go-humanize"

// Defaultsettings for GC instance, along with its arena collection and
// address space.
//
// "nurserysize" (int64, default: 896*1024)
//		Size of the nursery, young objects are bump allocated here.
//
// "nurserycleanup" (int64, default: 32768*WORD)
//		The nursery is zeroed in chunks of this size as allocation
//		proceeds. Raised to hold atleast one object of size
//		"largeobject".
//
// "pagesize" (int64, default: 1024*WORD)
//		Page size for the arena collection.
//
// "arenasize" (int64, default: 65536*WORD)
//		Arena size for the arena collection.
//
// "smallrequest" (int64, default: 35*WORD)
//		Objects upto this size, including header, are allocated from
//		the arena collection when they leave the nursery.
//
// "largeobject" (int64, default: (16384+512)*WORD)
//		Objects of this size and above are never allocated in the
//		nursery.
//
// "cardpageindices" (int64, default: 128)
//		Number of array items covered by one card bit, shall be a
//		power of 2. Zero disables card marking.
//
// "majorcollectionthreshold" (float64, default: 1.82)
//		Next major collection starts when the old generation has
//		grown by this factor since the end of the last one.
//
// "growthratemax" (float64, default: 1.4)
//		Upper bound on the growth of the threshold from one major
//		collection to the next.
//
// "minheapsize" (int64, default: 0)
//		Lower bound for the threshold, raised to atleast
//		nurserysize*majorcollectionthreshold.
//
// "maxheapsize" (int64, default: 0)
//		Upper bound for the heap. Zero means unbounded.
//
// "maxdelta" (int64, default: <total RAM/8>)
//		Upper bound on how much the old generation may grow between
//		two major collections.
//
// "gcincrementstep" (int64, default: 0)
//		Minimum number of bytes to mark in a single major collection
//		step. Zero means 4*nurserysize.
//
// "maxpinnedobjects" (int64, default: 100)
//		Maximum number of objects that can be pinned at any time.
//
// "space.capacity" (int64, default: <free RAM>)
//		Capacity of the address space created by NewGC when
//		none is supplied.
//
func Defaultsettings() s.Settings {
	total, _, free := getsysmem()
	return s.Settings{
		"nurserysize":              int64(896 * 1024),
		"nurserycleanup":           32768 * api.WORD,
		"pagesize":                 1024 * api.WORD,
		"arenasize":                65536 * api.WORD,
		"smallrequest":             35 * api.WORD,
		"largeobject":              (16384 + 512) * api.WORD,
		"cardpageindices":          int64(128),
		"majorcollectionthreshold": float64(1.82),
		"growthratemax":            float64(1.4),
		"minheapsize":              int64(0),
		"maxheapsize":              int64(0),
		"maxdelta":                 int64(total / 8),
		"gcincrementstep":          int64(0),
		"maxpinnedobjects":         int64(100),
		"space.capacity":           int64(free),
	}
}

// Envsettings read collector settings from environment variables,
// sizes accept humanized values like "4MB".
//
//	INCMARK_NURSERY        -> "nurserysize"
//	INCMARK_NURSERY_CLEANUP -> "nurserycleanup"
//	INCMARK_MAJOR_COLLECT  -> "majorcollectionthreshold"
//	INCMARK_GROWTH         -> "growthratemax"
//	INCMARK_MIN            -> "minheapsize"
//	INCMARK_MAX            -> "maxheapsize"
//	INCMARK_MAX_DELTA      -> "maxdelta"
//	INCMARK_INCREMENT_STEP -> "gcincrementstep"
//
// Unset, unparsable and out of range values are skipped.
func Envsettings() s.Settings {
	setts := make(s.Settings)
	sizes := [][2]string{
		{"INCMARK_NURSERY", "nurserysize"},
		{"INCMARK_NURSERY_CLEANUP", "nurserycleanup"},
		{"INCMARK_MIN", "minheapsize"},
		{"INCMARK_MAX", "maxheapsize"},
		{"INCMARK_MAX_DELTA", "maxdelta"},
		{"INCMARK_INCREMENT_STEP", "gcincrementstep"},
	}
	for _, pair := range sizes {
		if n, ok := envsize(pair[0]); ok {
			setts[pair[1]] = n
		}
	}
	factors := [][2]string{
		{"INCMARK_MAJOR_COLLECT", "majorcollectionthreshold"},
		{"INCMARK_GROWTH", "growthratemax"},
	}
	for _, pair := range factors {
		if f, ok := envfactor(pair[0]); ok {
			setts[pair[1]] = f
		}
	}
	return setts
}

func envsize(name string) (int64, bool) {
	value := os.Getenv(name)
	if value == "" {
		return 0, false
	}
	n, err := humanize.ParseBytes(value)
	if err != nil || n == 0 {
		warnf("ignoring %v=%q: %v\n", name, value, err)
		return 0, false
	}
	return int64(n), true
}

func envfactor(name string) (float64, bool) {
	value := os.Getenv(name)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 1.0 {
		warnf("ignoring %v=%q\n", name, value)
		return 0, false
	}
	return f, true
}

func getsysmem() (total, used, free uint64) {
	mem := sigar.Mem{}
	mem.Get()
	return mem.Total, mem.Used, mem.Free
}
