package lib

import "testing"

import "github.com/bnclabs/incmark/api"
import "github.com/stretchr/testify/require"

func TestAddrstack(t *testing.T) {
	s := NewAddrstack()
	require.False(t, s.Nonempty())

	n := (Addrchunk * 3) + 7
	for i := 1; i <= n; i++ {
		s.Append(api.Addr(i * 8))
	}
	require.Equal(t, n, s.Len())
	require.Equal(t, api.Addr(n*8), s.Top())
	require.True(t, s.Contains(api.Addr(8)))
	require.False(t, s.Contains(api.Addr(3)))

	list := s.Tolist()
	require.Equal(t, n, len(list))
	for i, addr := range list {
		if addr != api.Addr((i+1)*8) {
			t.Fatalf("expected %v, got %v", (i+1)*8, addr)
		}
	}

	for i := n; i >= 1; i-- {
		if addr := s.Pop(); addr != api.Addr(i*8) {
			t.Fatalf("expected %v, got %v", i*8, addr)
		}
	}
	require.False(t, s.Nonempty())
	require.Equal(t, 0, s.Len())

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		s.Pop()
	}()
}

func TestAddrstackZero(t *testing.T) {
	var s Addrstack
	s.Append(16)
	s.Append(24)
	require.Equal(t, api.Addr(24), s.Pop())
	require.Equal(t, api.Addr(16), s.Pop())
	require.False(t, s.Nonempty())
}

func TestAddrstackFilter(t *testing.T) {
	s := NewAddrstack()
	for i := 0; i < 2*Addrchunk; i++ {
		s.Append(api.Addr(i))
	}
	s.Filter(func(addr api.Addr) bool { return addr%2 == 0 })
	require.Equal(t, Addrchunk, s.Len())
	s.Foreach(func(addr api.Addr) {
		if addr%2 != 0 {
			t.Errorf("unexpected %v", addr)
		}
	})
	s.Clear()
	require.Equal(t, 0, s.Len())
	s.Append(10)
	require.Equal(t, api.Addr(10), s.Top())
}

func TestAddrstackSwap(t *testing.T) {
	a, b := NewAddrstack(), NewAddrstack()
	a.Append(1)
	a.Append(2)
	b.Append(3)
	a.Swap(b)
	require.Equal(t, 1, a.Len())
	require.Equal(t, 2, b.Len())
	require.Equal(t, api.Addr(3), a.Pop())
}

func TestAddrdeque(t *testing.T) {
	d := NewAddrdeque()
	require.False(t, d.Nonempty())
	for i := 0; i < 5000; i++ {
		d.Append(api.Addr(i))
	}
	for i := 0; i < 3000; i++ {
		if addr := d.Popleft(); addr != api.Addr(i) {
			t.Fatalf("expected %v, got %v", i, addr)
		}
	}
	require.Equal(t, 2000, d.Len())
	require.Equal(t, api.Addr(3000), d.Peekleft())
	d.Append(9999)
	seen := 0
	d.Foreach(func(addr api.Addr) { seen++ })
	require.Equal(t, 2001, seen)
	d.Clear()
	require.False(t, d.Nonempty())

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		d.Popleft()
	}()
}

func BenchmarkAddrstack(b *testing.B) {
	s := NewAddrstack()
	for i := 0; i < b.N; i++ {
		s.Append(api.Addr(i))
	}
	for s.Nonempty() {
		s.Pop()
	}
}
