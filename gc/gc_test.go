package gc

import "testing"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/malloc"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/require"

func TestNewGC(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	nursery, free, top, realtop := g.Nurseryrange()
	require.NotEqual(t, api.NULL, nursery)
	require.Equal(t, nursery, free)
	require.Equal(t, realtop, top)
	require.Equal(t, api.Addr(8192), realtop-nursery)
	require.Equal(t, STATESCANNING, g.State())
	require.Equal(t, "SCANNING", Statename(g.State()))
	require.Equal(t, "state(9)", Statename(9))
	require.Equal(t, "test", g.ID())
	require.InDelta(t, 8192*1.82, g.Nextmajorthreshold(), 0.01)
	require.Equal(t, int64(1024), g.initialcleanup)
	require.Equal(t, int64(32*1024), g.gcincrementstep)
	require.Equal(t, uint(3), g.cardpageshift)
	env.check(t)
}

func TestNewGCSettings(t *testing.T) {
	for _, setts := range []s.Settings{
		s.Settings{"nurserysize": int64(1024)},
		s.Settings{"smallrequest": int64(1024)},
		s.Settings{"cardpageindices": int64(6)},
		s.Settings{"majorcollectionthreshold": float64(0.5)},
		s.Settings{"growthratemax": float64(1.0)},
	} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic for %v", setts)
				}
			}()
			newtestenv(t, setts)
		}()
	}
}

func TestDestroy(t *testing.T) {
	env := newtestenv(t, nil)
	for i := 0; i < 100; i++ {
		env.root(t, env.leaf, 0)
	}
	env.root(t, env.bytes, 4000)
	require.NoError(t, env.g.Collect(0))
	require.True(t, env.space.Mapped() > 8192)

	env.g.Destroy()
	// only the shadow stack remains.
	require.Equal(t, int64(8192), env.space.Mapped())
}

// objects exceeding the nursery capacity are all promoted, and the
// old generation holds exactly their sizes.
func TestPromoteAll(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	n := int64(500)
	for i := int64(0); i < n; i++ {
		obj := env.alloc(t, env.leaf, 0)
		env.space.Setint(obj, i)
		env.stack.Push(obj)
	}
	require.True(t, g.nminors > 0)
	require.NoError(t, g.Collect(0))

	nursery, free, _, _ := g.Nurseryrange()
	require.Equal(t, nursery, free)
	require.Equal(t, n*24, g.Totalmemoryused())
	for i := int64(0); i < n; i++ {
		obj := env.stack.Get(i)
		require.False(t, g.Isinnursery(obj))
		if x := env.space.Getint(obj); x != i {
			t.Errorf("expected %v, got %v", i, x)
		}
	}
	env.check(t)
}

func TestForwarding(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	n1 := env.alloc(t, env.node, 0)
	env.stack.Push(n1)
	n2, n3 := env.alloc(t, env.node, 0), env.alloc(t, env.node, 0)
	leaf := env.alloc(t, env.leaf, 0)
	g.Setfield(n1, 0, n2)
	g.Setfield(n2, 0, n3)
	g.Setfield(n3, 0, n1) // cycle
	g.Setfield(n1, 8, leaf)
	g.Setfield(n3, 8, leaf)
	env.space.Setint(leaf, 77)

	require.NoError(t, g.Collect(0))

	m1 := env.stack.Get(0)
	m2 := g.Getfield(m1, 0)
	m3 := g.Getfield(m2, 0)
	for _, obj := range []api.Addr{m1, m2, m3} {
		require.False(t, g.Isinnursery(obj))
		require.Equal(t, hdrnormal, g.header(obj).kind)
		require.Equal(t, env.node, g.typeid(obj))
	}
	require.Equal(t, m1, g.Getfield(m3, 0))
	l1, l2 := g.Getfield(m1, 8), g.Getfield(m3, 8)
	require.Equal(t, l1, l2)
	require.False(t, g.Isinnursery(l1))
	require.Equal(t, int64(77), env.space.Getint(l1))
	require.Equal(t, int64(3*32+24), g.Totalmemoryused())
	env.check(t)
}

func TestMarkSweep(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	head := env.alloc(t, env.node, 0)
	env.stack.Push(head)
	prev := head
	for i := 0; i < 9; i++ {
		obj := env.alloc(t, env.node, 0)
		g.Setfield(prev, 0, obj)
		prev = obj
	}
	for i := 0; i < 10; i++ {
		env.root(t, env.node, 0)
	}
	require.NoError(t, g.Collect(0))
	require.Equal(t, int64(20*32), g.Totalmemoryused())

	env.stack.Truncate(1)
	require.NoError(t, g.Collect(2))
	require.Equal(t, STATESCANNING, g.State())
	require.Equal(t, int64(10*32), g.Totalmemoryused())
	require.Equal(t, int64(1), g.nmajorcollects)

	count, obj := 0, env.stack.Get(0)
	for ; obj != api.NULL; obj = g.Getfield(obj, 0) {
		require.Equal(t, env.node, g.typeid(obj))
		count++
	}
	require.Equal(t, 10, count)
	env.check(t)
}

// old objects written during marking are traced again.
func TestIncrementalMarking(t *testing.T) {
	env := newtestenv(t, s.Settings{"gcincrementstep": int64(64)})
	g := env.g
	defer g.Destroy()

	for i := 0; i < 50; i++ {
		env.root(t, env.node, 0)
	}
	require.NoError(t, g.Collect(0))
	require.NoError(t, g.Debuggcstep(1))
	require.Equal(t, STATEMARKING, g.State())

	// roots are popped in reverse, the last root is marked first.
	last := env.stack.Get(49)
	require.NoError(t, g.Debuggcstep(1))
	require.Equal(t, STATEMARKING, g.State())
	require.True(t, g.hasflags(last, VISITED))
	require.False(t, g.hasflags(env.stack.Get(0), VISITED))

	// hide a fresh object in an already marked object.
	young := env.alloc(t, env.leaf, 0)
	env.space.Setint(young, 99)
	g.Setfield(last, 8, young)
	require.True(t, g.Remembered(last))

	require.NoError(t, g.Gcstepuntil(STATESCANNING, 0))
	obj := g.Getfield(last, 8)
	require.False(t, g.Isinnursery(obj))
	require.Equal(t, int64(99), env.space.Getint(obj))
	require.Equal(t, int64(50*32+24), g.Totalmemoryused())
	env.check(t)
}

func TestCollectGenerations(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	env.root(t, env.leaf, 0)
	nminors := g.nminors
	require.NoError(t, g.Collect(0))
	require.Equal(t, nminors+1, g.nminors)
	require.Equal(t, STATESCANNING, g.State())

	require.NoError(t, g.Collect(1))
	require.Equal(t, STATEMARKING, g.State())
	require.NoError(t, g.Collect(1))
	require.Equal(t, STATESWEEPING, g.State())

	require.NoError(t, g.Collect(2))
	require.Equal(t, STATESCANNING, g.State())
	require.Equal(t, int64(2), g.nmajorcollects)

	require.NoError(t, g.Minorandmajorcollection())
	require.Equal(t, int64(3), g.nmajorcollects)
	require.Equal(t, int64(24), g.Totalmemoryused())
	env.check(t)
}

func TestIdentity(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	obj := env.alloc(t, env.leaf, 0)
	env.stack.Push(obj)
	env.space.Setint(obj, 5)
	require.True(t, g.Canmove(obj))

	id, hash := g.Id(obj), g.Identityhash(obj)
	require.NotEqual(t, obj, id)
	require.Equal(t, id, g.Id(obj))
	require.True(t, g.hasflags(obj, HASSHADOW))

	// an unreferenced object with a shadow.
	garbage := env.alloc(t, env.leaf, 0)
	require.NotEqual(t, api.NULL, g.Id(garbage))
	require.Equal(t, int64(2*24), g.Totalmemoryused())

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Collect(0))
		moved := env.stack.Get(0)
		require.Equal(t, id, moved)
		require.Equal(t, id, g.Id(moved))
		require.Equal(t, hash, g.Identityhash(moved))
		require.False(t, g.Canmove(moved))
		require.Equal(t, int64(5), env.space.Getint(moved))
		require.False(t, g.hasflags(moved, HASSHADOW))
	}
	require.NoError(t, g.Collect(2))
	require.Equal(t, id, env.stack.Get(0))
	require.Equal(t, hash, g.Identityhash(env.stack.Get(0)))
	require.Equal(t, int64(24), g.Totalmemoryused())
	require.Equal(t, api.NULL, g.Id(api.NULL))
	env.check(t)
}

func TestNonmovable(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	obj, err := g.Mallocfixedsizenonmovable(env.leaf)
	require.NoError(t, err)
	require.False(t, g.Canmove(obj))
	arr, err := g.Mallocvarsizenonmovable(env.bytes, 2000)
	require.NoError(t, err)
	require.False(t, g.Canmove(arr))
	require.True(t, g.Isyoung(arr))
	require.Equal(t, int64(2000), g.Length(arr))
	env.stack.Push(obj)
	env.stack.Push(arr)

	require.NoError(t, g.Collect(0))
	require.Equal(t, obj, env.stack.Get(0))
	require.Equal(t, arr, env.stack.Get(1))
	require.False(t, g.Isyoung(arr))

	_, err = g.Mallocfixedsizenonmovable(0)
	require.Equal(t, api.ErrorInvalidTypeid, err)
	env.check(t)
}

func TestSharedSpace(t *testing.T) {
	env := newtestenv(t, nil)
	defer env.g.Destroy()
	// NewGC can create its own space.
	setts := testsettings()
	setts["space.capacity"] = int64(64 * 1024 * 1024)
	g, err := NewGC("own", nil, env.reg, env.stack, setts)
	require.NoError(t, err)
	require.NotEqual(t, env.space, g.Space())
	require.Equal(t, int64(64*1024*1024), g.Space().Capacity())
	g.Destroy()

	// too small a space for the nursery.
	space := malloc.NewSpace(s.Settings{"capacity": int64(4096)})
	_, err = NewGC("small", space, env.reg, env.stack, testsettings())
	require.Equal(t, api.ErrorOutofMemory, err)
}
