package gc

import "testing"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/layout"
import "github.com/stretchr/testify/require"

func TestFinalizer(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	calls, states, ncollects := 0, []int{}, int64(-1)
	fin := env.reg.Register(layout.Typeinfo{
		Name: "fin", Fixedsize: 16, Weakptrofs: -1,
		Finalizer: func(obj api.Addr) {
			calls++
			states = append(states, g.State())
			ncollects = g.nmajorcollects
		},
	})
	obj := env.alloc(t, fin, 0)
	require.False(t, g.Isinnursery(obj))
	require.Equal(t, 1, g.objectswithfinalizers.Len())

	require.NoError(t, g.Collect(2))
	require.Equal(t, 1, calls)
	// finalizer runs only after the sweep has completed.
	require.Equal(t, []int{STATESCANNING}, states)
	require.Equal(t, int64(1), ncollects)
	require.Equal(t, 0, g.Pendingfinalizers())
	require.Equal(t, int64(24), g.Totalmemoryused())

	require.NoError(t, g.Collect(2))
	require.Equal(t, 1, calls)
	require.Equal(t, int64(0), g.Totalmemoryused())
	require.Equal(t, int64(1), g.nfinalized)
	env.check(t)
}

func TestFinalizerReachable(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	calls := 0
	fin := env.reg.Register(layout.Typeinfo{
		Name: "fin", Fixedsize: 16, Weakptrofs: -1,
		Finalizer: func(obj api.Addr) { calls++ },
	})
	env.root(t, fin, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Collect(2))
	}
	require.Equal(t, 0, calls)
	env.stack.Pop()
	require.NoError(t, g.Collect(2))
	require.Equal(t, 1, calls)
}

// a finalizer object reachable from another dying finalizer object is
// finalized in a later collection.
func TestFinalizerOrdering(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	order := []int64{}
	var finnode api.Typeid
	finnode = env.reg.Register(layout.Typeinfo{
		Name: "finnode", Fixedsize: 16, Ptrofs: []int64{0}, Weakptrofs: -1,
		Finalizer: func(obj api.Addr) {
			order = append(order, env.space.Getint(obj+8))
			// the referred object is not yet swept.
			if ref := g.Getfield(obj, 0); ref != api.NULL {
				if typeid := g.typeid(ref); typeid != finnode {
					t.Errorf("expected %v, got %v", finnode, typeid)
				}
			}
		},
	})
	a, b := env.alloc(t, finnode, 0), env.alloc(t, finnode, 0)
	env.space.Setint(a+8, 1)
	env.space.Setint(b+8, 2)
	g.Setfield(a, 0, b)
	require.True(t, g.Remembered(a))

	require.NoError(t, g.Collect(2))
	require.Equal(t, []int64{1}, order)
	require.NoError(t, g.Collect(2))
	require.Equal(t, []int64{1, 2}, order)
	require.NoError(t, g.Collect(2))
	require.Equal(t, int64(0), g.Totalmemoryused())
	env.check(t)
}

func TestLightfinalizer(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	finalized := []int64{}
	light := env.reg.Register(layout.Typeinfo{
		Name: "light", Fixedsize: 16, Weakptrofs: -1,
		Lightfinalizer: func(obj api.Addr) {
			finalized = append(finalized, env.space.Getint(obj))
		},
	})

	dead := env.alloc(t, light, 0)
	env.space.Setint(dead, 1)
	live := env.alloc(t, light, 0)
	env.space.Setint(live, 2)
	env.stack.Push(live)
	require.True(t, g.Isinnursery(dead))
	require.Equal(t, 2, g.younglightfinalizers.Len())

	require.NoError(t, g.Collect(0))
	require.Equal(t, []int64{1}, finalized)
	require.Equal(t, 0, g.younglightfinalizers.Len())
	require.Equal(t, 1, g.oldlightfinalizers.Len())

	require.NoError(t, g.Collect(2))
	require.Equal(t, []int64{1}, finalized)

	env.stack.Pop()
	require.NoError(t, g.Collect(2))
	require.Equal(t, []int64{1, 2}, finalized)
	require.Equal(t, 0, g.oldlightfinalizers.Len())
	require.Equal(t, int64(2), g.nlightfinalized)
	env.check(t)
}

func TestLightfinalizerLarge(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	calls := 0
	light := env.reg.Register(layout.Typeinfo{
		Name: "biglight", Fixedsize: 2048, Weakptrofs: -1,
		Lightfinalizer: func(obj api.Addr) { calls++ },
	})
	obj := env.alloc(t, light, 0)
	require.False(t, g.Isyoung(obj))
	require.Equal(t, 1, g.oldlightfinalizers.Len())

	require.NoError(t, g.Collect(2))
	require.Equal(t, 1, calls)
	require.Equal(t, int64(0), g.Totalmemoryused())
}

// finalizers that allocate may trigger collections, queued
// finalizers still run exactly once.
func TestFinalizerAllocates(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	calls := 0
	fin := env.reg.Register(layout.Typeinfo{
		Name: "fin", Fixedsize: 16, Weakptrofs: -1,
		Finalizer: func(obj api.Addr) {
			calls++
			for i := 0; i < 1000; i++ {
				env.alloc(t, env.leaf, 0)
			}
		},
	})
	for i := 0; i < 20; i++ {
		env.alloc(t, fin, 0)
	}
	require.NoError(t, g.Collect(2))
	require.Equal(t, 20, calls)
	require.Equal(t, 0, g.Pendingfinalizers())
	require.False(t, g.finalizerlock)
}
