//go:build debug
// +build debug

package malloc

// freeblock poison memory being given back, so that a use after free
// reads garbage instead of stale but plausible data.
func freeblock(block []byte) {
	for len(block) > 0 {
		n := copy(block, freeblkinit)
		block = block[n:]
	}
}
