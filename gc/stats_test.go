package gc

import "sync/atomic"
import "testing"

import "github.com/stretchr/testify/require"

func TestStats(t *testing.T) {
	env := newtestenv(t, nil)
	g := env.g
	defer g.Destroy()

	for i := 0; i < 10; i++ {
		env.root(t, env.leaf, 0)
	}
	w := env.alloc(t, env.weak, 0)
	env.space.Setaddr(w, env.stack.Get(0))
	env.stack.Push(w)
	require.NoError(t, g.Collect(2))

	stats := g.Stats()
	keys := []string{
		"n_minors", "n_majorsteps", "n_majorcollects", "n_promoted",
		"n_promotedbytes", "n_shadows", "n_externals", "n_lightfinalized",
		"n_finalized", "n_weakcleared", "n_barriers", "n_cardbarriers",
		"n_pinned", "n_oldraw", "n_pendingfinalizers", "state",
		"nursery.used", "nursery.available", "memory.used", "memory.arena",
		"memory.raw", "memory.mapped", "memory.overhead", "threshold.next", "threshold.initial",
		"markbudget.mean", "markbudget.samples", "h_surviving", "h_pinned",
	}
	for _, key := range keys {
		if _, ok := stats[key]; !ok {
			t.Errorf("missing %v", key)
		}
	}
	require.Equal(t, int64(11), stats["n_promoted"])
	require.Equal(t, int64(10*24+16), stats["n_promotedbytes"])
	require.Equal(t, int64(1), stats["n_majorcollects"])
	require.Equal(t, "SCANNING", stats["state"])
	require.Equal(t, int64(10*24+16), stats["memory.used"])
	require.Equal(t, stats["memory.used"], stats["memory.arena"])
	require.Equal(t, int64(0), stats["nursery.used"])

	atomic.StoreInt64(&logok, 1)
	defer atomic.StoreInt64(&logok, 0)
	g.Log(true)
	g.Log(false)
}
