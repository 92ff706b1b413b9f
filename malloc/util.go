package malloc

import "fmt"

// Roundup size to the next multiple of align, align shall be a power
// of 2.
func Roundup(size, align int64) int64 {
	return (size + align - 1) &^ (align - 1)
}

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

// freeblkinit is copied over memory that is given back, only in debug
// builds.
var freeblkinit = make([]byte, 1024)

func init() {
	for i := 0; i < len(freeblkinit); i++ {
		freeblkinit[i] = 0xdd
	}
}
