package gc

import "fmt"
import "os"

import "github.com/bnclabs/golog"

// exit is replaced by tests that exercise fatal paths.
var exit = os.Exit

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

// abortf terminates the process. Used when the heap cannot be left in
// a state from which the mutator can safely continue.
func abortf(fmsg string, args ...interface{}) {
	log.Fatalf("incmark abort: "+fmsg, args...)
	exit(2)
	// exit may be replaced, never return into a corrupted collector.
	panic(fmt.Errorf("incmark abort: "+fmsg, args...))
}

// manglehash spreads the low bits of an address, which are always zero
// for aligned objects.
func manglehash(i int64) int64 {
	return i ^ (i >> 4)
}

func maxint64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minint64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
