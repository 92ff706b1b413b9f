package lib

// Bit8 alias for uint8, provides bit twiddling methods on 8-bit number,
// used on card bytes.
type Bit8 uint8

// Findfirstset return the position of the least significant set bit,
// -1 if no bit is set.
func (b Bit8) Findfirstset() int8 {
	if b == 0 {
		return -1
	}
	pos := int8(0)
	for (b & 1) == 0 {
		b, pos = b>>1, pos+1
	}
	return pos
}

// Setbit return b with n-th bit set.
func (b Bit8) Setbit(n uint8) uint8 {
	return uint8(b | (1 << n))
}

// Clearbit return b with n-th bit cleared.
func (b Bit8) Clearbit(n uint8) uint8 {
	return uint8(b &^ (1 << n))
}

// Isset return true if n-th bit is set.
func (b Bit8) Isset(n uint8) bool {
	return (b & (1 << n)) != 0
}

// Ones return the number of set bits.
func (b Bit8) Ones() int8 {
	b = b - ((b >> 1) & 0x55)
	b = (b & 0x33) + ((b >> 2) & 0x33)
	return int8((b + (b >> 4)) & 0x0F)
}

// Zeros return the number of cleared bits.
func (b Bit8) Zeros() int8 {
	return 8 - b.Ones()
}
