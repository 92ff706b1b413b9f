package gc

import "fmt"
import "strings"

import "github.com/bnclabs/incmark/api"

// Flags held in the upper half of an object's header word, see
// Flagsof().
type Flags uint16

const (
	// TRACKYOUNGPTRS is set on old objects that are not in the
	// remembered set, a write to such an object must go through the
	// write barrier. Set on large young arrays with cards as well.
	TRACKYOUNGPTRS Flags = 1 << iota
	// NOHEAPPTRS is set on prebuilt objects until the first pointer
	// is written into them.
	NOHEAPPTRS
	// VISITED marks survivors of a major collection, and surviving
	// pinned objects during a minor collection.
	VISITED
	// HASSHADOW is set on nursery objects whose id or hash was taken.
	HASSHADOW
	// FINALIZATIONORDERING is set temporarily while ordering
	// finalizers.
	FINALIZATIONORDERING
	// EXTRA is reserved for the runtime.
	EXTRA
	// HASCARDS is set on raw allocated arrays with card bytes.
	HASCARDS
	// CARDSSET atleast one card bit is set.
	CARDSSET
	// VISITEDRMY marks young raw allocated objects surviving a minor
	// collection.
	VISITEDRMY
	// PINNED nursery objects are not moved by minor collections.
	PINNED
	// PINNEDPARENTKNOWN is set on old objects already recorded as
	// pointing to a pinned object.
	PINNEDPARENTKNOWN
)

var flagnames = []string{
	"TRACKYOUNGPTRS", "NOHEAPPTRS", "VISITED", "HASSHADOW",
	"FINALIZATIONORDERING", "EXTRA", "HASCARDS", "CARDSSET", "VISITEDRMY",
	"PINNED", "PINNEDPARENTKNOWN",
}

// Has return true if all bits in f are set.
func (flags Flags) Has(f Flags) bool {
	return flags&f == f
}

// Any return true if atleast one bit in f is set.
func (flags Flags) Any(f Flags) bool {
	return flags&f != 0
}

func (flags Flags) String() string {
	if flags == 0 {
		return "0"
	}
	ss := []string{}
	for i, name := range flagnames {
		if flags&(1<<uint(i)) != 0 {
			ss = append(ss, name)
		}
	}
	if rem := flags &^ (1<<uint(len(flagnames)) - 1); rem != 0 {
		ss = append(ss, fmt.Sprintf("%#x", uint16(rem)))
	}
	return strings.Join(ss, "|")
}

// check combinations that can never occur on a live object.
func (flags Flags) check() error {
	switch {
	case flags.Has(PINNED | TRACKYOUNGPTRS):
		return fmt.Errorf("pinned object with TRACKYOUNGPTRS: %v", flags)
	case flags.Has(PINNED | HASCARDS):
		return fmt.Errorf("pinned object with HASCARDS: %v", flags)
	case flags.Has(PINNED | VISITEDRMY):
		return fmt.Errorf("pinned object with VISITEDRMY: %v", flags)
	case flags.Has(CARDSSET) && !flags.Has(HASCARDS):
		return fmt.Errorf("CARDSSET without HASCARDS: %v", flags)
	case flags.Has(NOHEAPPTRS | HASCARDS):
		return fmt.Errorf("prebuilt object with HASCARDS: %v", flags)
	}
	return nil
}

//---- header word

type hdrkind byte

const (
	hdrnormal hdrkind = iota + 1
	hdrforwarded
)

// forwardtag set in header word of nursery objects that were moved
// out, the new address is stored in the first payload word.
const forwardtag = uint64(1) << 63

// header is the decoded form of an object's header word.
type header struct {
	kind   hdrkind
	typeid api.Typeid
	flags  Flags
}

func normalheader(typeid api.Typeid, flags Flags) header {
	return header{kind: hdrnormal, typeid: typeid, flags: flags}
}

func decodeheader(word uint64) header {
	if word&forwardtag != 0 {
		return header{kind: hdrforwarded}
	}
	return header{
		kind:   hdrnormal,
		typeid: api.Typeid(word & 0xffff),
		flags:  Flags((word >> 16) & 0xffff),
	}
}

func (hdr header) encode() uint64 {
	switch hdr.kind {
	case hdrnormal:
		return uint64(hdr.typeid) | (uint64(hdr.flags) << 16)
	case hdrforwarded:
		return forwardtag
	}
	panicerr("header.encode(): invalid kind %v", hdr.kind)
	return 0
}

func (hdr header) String() string {
	switch hdr.kind {
	case hdrnormal:
		return fmt.Sprintf("{typeid:%v flags:%v}", hdr.typeid, hdr.flags)
	case hdrforwarded:
		return "{forwarded}"
	}
	return fmt.Sprintf("{invalid %v}", hdr.kind)
}
