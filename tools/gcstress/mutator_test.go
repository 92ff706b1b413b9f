package main

import "testing"
import "math/rand"

import "github.com/bnclabs/incmark/api"
import "github.com/bnclabs/incmark/gc"
import "github.com/prataprc/goparsec"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/require"

func testmutator(t *testing.T) *mutator {
	setts := make(s.Settings).Mixin(gc.Defaultsettings(), s.Settings{
		"nurserysize":    int64(16 * 1024),
		"nurserycleanup": int64(1024),
		"largeobject":    int64(2048),
		"smallrequest":   int64(280),
		"pagesize":       int64(1024),
		"arenasize":      int64(64 * 1024),
		"space.capacity": int64(256 * 1024 * 1024),
	})
	m, err := newmutator(64, setts)
	require.NoError(t, err)
	return m
}

func TestMutatorApply(t *testing.T) {
	m := testmutator(t)
	defer m.g.Destroy()

	cmds := [][]interface{}{
		{"alloc", "node", int64(1), int64(0)},
		{"alloc", "leaf", int64(2), int64(0)},
		{"link", int64(1), int64(2), int64(0)},
		{"drop", int64(2)},
		{"collect", int64(0)},
	}
	for _, cmd := range cmds {
		require.NoError(t, m.safeapply(cmd))
	}
	node := m.stack.Get(1)
	require.False(t, m.g.Isinnursery(node))
	require.NotEqual(t, api.NULL, m.g.Getfield(node, 0))
	require.Equal(t, api.NULL, m.stack.Get(2))

	require.Error(t, m.safeapply([]interface{}{"alloc", "nosuchtype", int64(0)}))
	require.Error(t, m.safeapply([]interface{}{"nosuchop"}))
	// malformed operations are caught.
	require.Error(t, m.safeapply([]interface{}{"alloc"}))
	require.NoError(t, m.fullcollect(true))
}

func TestMutatorRandom(t *testing.T) {
	m := testmutator(t)
	defer m.g.Destroy()

	rnd := rand.New(rand.NewSource(100))
	for i := 0; i < 20000; i++ {
		cmd := m.randomop(rnd)
		require.NoError(t, m.safeapply(cmd), "%v", cmd)
		if i%5000 == 0 {
			require.NoError(t, m.fullcollect(true))
		}
	}
	require.NoError(t, m.fullcollect(true))
	require.True(t, m.g.Stats()["n_minors"].(int64) > 0)
}

func TestOpsparser(t *testing.T) {
	text := "alloc node 3 0; link 3 7 1; collect 0"
	node, _ := opsparser()(parsec.NewScanner([]byte(text)))
	cmds, ok := node.([]parsec.ParsecNode)
	require.True(t, ok)
	require.Equal(t, 3, len(cmds))
	require.Equal(t, []interface{}{"alloc", "node", int64(3), int64(0)}, cmds[0])
	require.Equal(t, []interface{}{"link", int64(3), int64(7), int64(1)}, cmds[1])
	require.Equal(t, []interface{}{"collect", int64(0)}, cmds[2])
}
