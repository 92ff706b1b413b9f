package gc

import "testing"

import "github.com/bnclabs/incmark/api"
import "github.com/stretchr/testify/require"

func TestWeakrefYoung(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	w := env.alloc(t, env.weak, 0)
	env.stack.Push(w)
	target := env.alloc(t, env.leaf, 0)
	env.space.Setaddr(w, target)
	require.Equal(t, 1, g.youngobjectswithweakrefs.Len())

	require.NoError(t, g.Collect(2))
	w = env.stack.Get(0)
	require.False(t, g.Isinnursery(w))
	require.Equal(t, api.NULL, g.Getfield(w, 0))
	require.Equal(t, 0, g.oldobjectswithweakrefs.Len())
	require.Equal(t, int64(1), g.nweakcleared)
	env.check(t)
}

func TestWeakrefOld(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	w := env.alloc(t, env.weak, 0)
	env.stack.Push(w)
	target := env.alloc(t, env.leaf, 0)
	env.stack.Push(target)
	env.space.Setaddr(w, target)

	require.NoError(t, g.Collect(0))
	w, target = env.stack.Get(0), env.stack.Get(1)
	require.False(t, g.Isinnursery(target))
	require.Equal(t, target, g.Getfield(w, 0))
	require.Equal(t, 0, g.youngobjectswithweakrefs.Len())
	require.Equal(t, 1, g.oldobjectswithweakrefs.Len())

	require.NoError(t, g.Collect(2))
	require.Equal(t, target, g.Getfield(w, 0))

	env.stack.Set(1, api.NULL)
	require.NoError(t, g.Collect(2))
	require.Equal(t, api.NULL, g.Getfield(w, 0))
	require.Equal(t, 0, g.oldobjectswithweakrefs.Len())
	require.Equal(t, int64(16), g.Totalmemoryused())

	// a dead weakref is dropped.
	env.stack.Set(0, api.NULL)
	require.NoError(t, g.Collect(2))
	require.Equal(t, int64(0), g.Totalmemoryused())
	env.check(t)
}

func TestWeakrefPrebuilt(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	pb, err := g.Prebuilt(env.leaf, 0)
	require.NoError(t, err)
	w := env.alloc(t, env.weak, 0)
	env.stack.Push(w)
	env.space.Setaddr(w, pb)

	require.NoError(t, g.Collect(2))
	w = env.stack.Get(0)
	require.Equal(t, pb, g.Getfield(w, 0))
	require.Equal(t, 0, g.oldobjectswithweakrefs.Len())
}

func TestWeakrefYoungRaw(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	w1, w2 := env.alloc(t, env.weak, 0), env.alloc(t, env.weak, 0)
	env.stack.Push(w1)
	env.stack.Push(w2)
	live := env.alloc(t, env.bytes, 4000)
	env.stack.Push(live)
	dead := env.alloc(t, env.bytes, 4000)
	require.True(t, g.Isyoung(dead))
	env.space.Setaddr(w1, live)
	env.space.Setaddr(w2, dead)

	require.NoError(t, g.Collect(0))
	w1, w2 = env.stack.Get(0), env.stack.Get(1)
	require.Equal(t, live, g.Getfield(w1, 0))
	require.Equal(t, api.NULL, g.Getfield(w2, 0))
	require.Equal(t, 1, g.oldobjectswithweakrefs.Len())
	env.check(t)
}
