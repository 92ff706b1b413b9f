//go:build !debug
// +build !debug

package gc

const debugmode = false

func assertf(cond bool, fmsg string, args ...interface{}) {
}
