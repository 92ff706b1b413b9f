//go:build debug
// +build debug

package gc

const debugmode = true

// assertf abort if cond is false. Compiled away in production builds.
func assertf(cond bool, fmsg string, args ...interface{}) {
	if !cond {
		abortf("assertion failed: "+fmsg, args...)
	}
}
