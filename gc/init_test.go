package gc

import "os"
import "testing"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/layout"
import "github.com/bnclabs/incmark/malloc"
import "github.com/bnclabs/incmark/roots"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/require"

func init() {
	setts := map[string]interface{}{
		"log.level":      "ignore",
		"log.colorfatal": "red",
		"log.colorerror": "hired",
		"log.colorwarn":  "yellow",
	}
	log.SetLogger(nil, setts)
}

func testsettings() s.Settings {
	return s.Settings{
		"nurserysize":      int64(8192),
		"nurserycleanup":   int64(1024),
		"largeobject":      int64(1024),
		"smallrequest":     int64(35 * 8),
		"pagesize":         int64(1024),
		"arenasize":        int64(64 * 1024),
		"cardpageindices":  int64(8),
		"maxdelta":         int64(1024 * 1024),
		"maxpinnedobjects": int64(4),
	}
}

// testenv bundles a collector with a type registry and a shadow
// stack of roots.
type testenv struct {
	g     *GC
	space *malloc.Space
	reg   *layout.Registry
	stack *roots.Shadowstack

	node  api.Typeid // two references and one word
	leaf  api.Typeid // two words
	bytes api.Typeid
	ptrs  api.Typeid
	weak  api.Typeid
}

func newtestenv(t *testing.T, setts s.Settings) *testenv {
	env := &testenv{reg: layout.NewRegistry()}
	env.node = env.reg.Struct("node", 2, 1)
	env.leaf = env.reg.Struct("leaf", 0, 2)
	env.bytes = env.reg.Array("bytes", 1, false)
	env.ptrs = env.reg.Array("ptrs", 0, true)
	env.weak = env.reg.Weakref("weak")

	capacity := int64(256 * 1024 * 1024)
	if x, ok := setts["space.capacity"]; ok {
		capacity = x.(int64)
	}
	env.space = malloc.NewSpace(s.Settings{"capacity": capacity})
	stack, err := roots.NewShadowstack(env.space, 1024)
	require.NoError(t, err)
	env.stack = stack

	setts = make(s.Settings).Mixin(testsettings(), setts)
	env.g, err = NewGC("test", env.space, env.reg, stack, setts)
	require.NoError(t, err)
	return env
}

func (env *testenv) alloc(t *testing.T, typeid api.Typeid, length int64) api.Addr {
	obj, err := env.g.Malloc(typeid, length)
	require.NoError(t, err)
	require.NotEqual(t, api.NULL, obj)
	return obj
}

// root allocate an object and push it on the shadow stack, return its
// root index.
func (env *testenv) root(t *testing.T, typeid api.Typeid, length int64) int64 {
	env.stack.Push(env.alloc(t, typeid, length))
	return env.stack.Len() - 1
}

func (env *testenv) check(t *testing.T) {
	if err := env.g.Debugcheckconsistency(); err != nil {
		t.Fatalf("inconsistent heap: %v", err)
	}
}

func withexit(t *testing.T, fn func()) (aborted bool) {
	exit = func(code int) { panic(code) }
	defer func() {
		exit = os.Exit
		if r := recover(); r != nil {
			aborted = true
		}
	}()
	fn()
	return false
}
