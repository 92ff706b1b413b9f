package malloc

import "testing"

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/require"

func newtestcollection(capacity int64) (*Space, *ArenaCollection) {
	space := NewSpace(s.Settings{"capacity": capacity})
	ac := NewArenaCollection(space, s.Settings{
		"arenasize":    int64(4 * 1024),
		"pagesize":     int64(1024),
		"smallrequest": int64(64),
	})
	return space, ac
}

func TestArenaSettings(t *testing.T) {
	space := NewSpace(s.Settings{"capacity": int64(1024 * 1024)})
	for _, setts := range []s.Settings{
		s.Settings{"pagesize": int64(1001)},
		s.Settings{"arenasize": int64(512), "pagesize": int64(1024)},
		s.Settings{"smallrequest": int64(4096), "pagesize": int64(1024)},
		s.Settings{"smallrequest": int64(20)},
	} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic for %v", setts)
				}
			}()
			NewArenaCollection(space, setts)
		}()
	}
}

func TestArenaMalloc(t *testing.T) {
	space, ac := newtestcollection(1024 * 1024)
	seen := map[api.Addr]bool{}
	total := int64(0)
	for i := int64(1); i <= 1000; i++ {
		n := (i % 64) + 1
		chunk, err := ac.Malloc(n)
		require.NoError(t, err)
		if seen[chunk] {
			t.Fatalf("chunk %x handed out twice", chunk)
		} else if int64(chunk)%Alignment != 0 {
			t.Fatalf("chunk %x not aligned", chunk)
		}
		seen[chunk] = true
		require.True(t, ac.Contains(chunk))
		require.Equal(t, Roundup(n, Alignment), ac.Chunksize(chunk))
		total += Roundup(n, Alignment)
		space.Setword(chunk, uint64(i))
	}
	require.Equal(t, total, ac.TotalMemoryUsed())
	require.True(t, ac.TotalMemoryAlloced() >= total)
	require.False(t, ac.Contains(api.Addr(12)))

	count := int64(0)
	ac.Foreach(func(chunk api.Addr, size int64) { count++ })
	require.Equal(t, int64(1000), count)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		ac.Malloc(65)
	}()
}

func TestArenaMassFree(t *testing.T) {
	space, ac := newtestcollection(1024 * 1024)
	chunks := []api.Addr{}
	for i := 0; i < 500; i++ {
		chunk, err := ac.Malloc(24)
		require.NoError(t, err)
		space.Setword(chunk, uint64(i))
		chunks = append(chunks, chunk)
	}
	mapped := space.Mapped()

	// free odd numbered chunks.
	ac.MassFree(func(chunk api.Addr) bool {
		return space.Getword(chunk)%2 == 1
	})
	require.Equal(t, int64(250*24), ac.TotalMemoryUsed())
	for i, chunk := range chunks {
		require.Equal(t, i%2 == 0, ac.Contains(chunk))
	}

	// freed chunks are reused, and zero filled.
	chunk, err := ac.Malloc(24)
	require.NoError(t, err)
	require.Equal(t, uint64(0), space.Getword(chunk))
	require.Equal(t, mapped, space.Mapped())

	// free everything, arenas are given back.
	ac.MassFree(func(chunk api.Addr) bool { return true })
	require.Equal(t, int64(0), ac.TotalMemoryUsed())
	require.Equal(t, int64(0), ac.TotalMemoryAlloced())
	require.Equal(t, int64(0), space.Mapped())
}

func TestArenaMassFreeIncremental(t *testing.T) {
	space, ac := newtestcollection(1024 * 1024)
	for i := 0; i < 300; i++ {
		chunk, err := ac.Malloc(32)
		require.NoError(t, err)
		space.Setword(chunk, 1)
	}
	// 32 chunks per 1024 byte page
	ac.MassFreePrepare()
	require.True(t, ac.Sweeping())

	// allocation during a sweep lands outside swept pages.
	fresh, err := ac.Malloc(32)
	require.NoError(t, err)

	steps := 0
	for !ac.MassFreeIncremental(func(chunk api.Addr) bool {
		if chunk == fresh {
			t.Fatalf("fresh chunk %x swept", chunk)
		}
		return true
	}, 2) {
		steps++
	}
	require.Equal(t, 4, steps) // 10 pages, 2 per step
	require.False(t, ac.Sweeping())
	require.Equal(t, int64(32), ac.TotalMemoryUsed())
	require.True(t, ac.Contains(fresh))

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		ac.MassFreePrepare()
		ac.MassFreePrepare()
	}()
}

func TestArenaUnswept(t *testing.T) {
	space, ac := newtestcollection(1024 * 1024)
	chunks := []api.Addr{}
	for i := 0; i < 100; i++ {
		chunk, err := ac.Malloc(32)
		require.NoError(t, err)
		space.Setword(chunk, 1)
		chunks = append(chunks, chunk)
	}
	require.False(t, ac.Unswept(chunks[0]))
	require.Equal(t, int64(0), ac.Freebytes()) // 4 pages, one arena

	ac.MassFreePrepare()
	for _, chunk := range chunks {
		if !ac.Unswept(chunk) {
			t.Errorf("expected %x unswept", chunk)
		}
	}
	fresh, err := ac.Malloc(32)
	require.NoError(t, err)
	require.False(t, ac.Unswept(fresh))
	require.False(t, ac.Unswept(api.Addr(12)))

	// keep every chunk, none of them is unswept after the sweep.
	for !ac.MassFreeIncremental(func(api.Addr) bool { return false }, 1) {
	}
	for _, chunk := range chunks {
		if ac.Unswept(chunk) {
			t.Errorf("unexpected %x unswept", chunk)
		}
	}
	require.Equal(t, int64(101*32), ac.TotalMemoryUsed())
}

func TestArenaOutofMemory(t *testing.T) {
	_, ac := newtestcollection(8 * 1024)
	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		_, err = ac.Malloc(64)
	}
	require.Equal(t, api.ErrorOutofMemory, err)
	require.Equal(t, int64(8*1024), ac.TotalMemoryAlloced())
}

func TestArenaUtilization(t *testing.T) {
	_, ac := newtestcollection(1024 * 1024)
	for i := 0; i < 16; i++ {
		ac.Malloc(64)
	}
	sizes, zs := ac.Utilization()
	require.Equal(t, []int{64}, sizes)
	require.Equal(t, float64(100), zs[0])

	capacity, heap, alloc, overhead := ac.Info()
	require.Equal(t, int64(1024*1024), capacity)
	require.Equal(t, int64(4*1024), heap)
	require.Equal(t, int64(1024), alloc)
	require.True(t, overhead > 0)

	ac.Release()
	require.Equal(t, int64(0), ac.TotalMemoryAlloced())
}

func BenchmarkArenaMalloc(b *testing.B) {
	space := NewSpace(s.Settings{"capacity": int64(1024 * 1024 * 1024)})
	ac := NewArenaCollection(space, nil)
	for i := 0; i < b.N; i++ {
		ac.Malloc(int64((i%35)+1) * 8)
	}
}
