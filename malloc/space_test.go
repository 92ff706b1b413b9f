package malloc

import "testing"

import "github.com/bnclabs/incmark/api"
import s "github.com/bnclabs/gosettings"
import "github.com/stretchr/testify/require"

func TestSpaceMmap(t *testing.T) {
	space := NewSpace(s.Settings{"capacity": int64(1024 * 1024)})
	a, err := space.Mmap(100)
	require.NoError(t, err)
	require.Equal(t, Spacebase, a)
	b, err := space.Mmap(4096)
	require.NoError(t, err)
	if int64(b)%Spacealign != 0 {
		t.Errorf("expected %x to be aligned to %x", b, Spacealign)
	}
	require.True(t, b > a+104)
	require.Equal(t, int64(104+4096), space.Mapped())

	// fresh memory is zero.
	for off := int64(0); off < 104; off += 8 {
		if x := space.Getword(a + api.Addr(off)); x != 0 {
			t.Fatalf("expected %v, got %v", 0, x)
		}
	}

	space.Setword(a, 0xdeadbeef)
	space.Setaddr(a+8, b)
	space.Setint(a+16, -1)
	space.Setbyte(b+10, 0xab)
	require.Equal(t, uint64(0xdeadbeef), space.Getword(a))
	require.Equal(t, b, space.Getaddr(a+8))
	require.Equal(t, int64(-1), space.Getint(a+16))
	require.Equal(t, byte(0xab), space.Getbyte(b+10))

	base, limit, ok := space.Regionof(b + 100)
	require.True(t, ok)
	require.Equal(t, b, base)
	require.Equal(t, b+4096, limit)
	_, _, ok = space.Regionof(b + 4096)
	require.False(t, ok)

	require.Equal(t, int64(104), space.Munmap(a))
	require.False(t, space.Ismapped(a))
	require.True(t, space.Ismapped(b))

	// unmapped addresses fault.
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		space.Getword(a)
	}()
	// unmapped addresses are never handed out again.
	c, err := space.Mmap(100)
	require.NoError(t, err)
	require.True(t, c > b)
}

func TestSpaceCapacity(t *testing.T) {
	space := NewSpace(s.Settings{"capacity": int64(1000)})
	require.Equal(t, int64(1000), space.Available())
	_, err := space.Mmap(1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), space.Available())
	_, err = space.Mmap(8)
	require.Equal(t, api.ErrorOutofMemory, err)
}

func TestSpaceCopyClear(t *testing.T) {
	space := NewSpace(s.Settings{"capacity": int64(1024 * 1024)})
	a, _ := space.Mmap(64)
	for i := int64(0); i < 64; i++ {
		space.Setbyte(a+api.Addr(i), byte(i))
	}
	// overlapping copy
	space.Copy(a+8, a, 32)
	for i := int64(0); i < 32; i++ {
		if x := space.Getbyte(a + 8 + api.Addr(i)); x != byte(i) {
			t.Fatalf("expected %v, got %v", i, x)
		}
	}
	space.Clear(a, 64)
	for i := int64(0); i < 64; i++ {
		if x := space.Getbyte(a + api.Addr(i)); x != 0 {
			t.Fatalf("expected %v, got %v", 0, x)
		}
	}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		space.Bytes(a+60, 8)
	}()
}

func BenchmarkSpaceGetword(b *testing.B) {
	space := NewSpace(s.Settings{"capacity": int64(1024 * 1024)})
	a, _ := space.Mmap(1024)
	for i := 0; i < b.N; i++ {
		space.Getword(a + api.Addr((i&0x7f)*8))
	}
}
