package helpers

// TwoByteSplit splits v into its high and low bytes.
func TwoByteSplit(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// TwoByteCombine joins a high and low byte into a big-endian uint16.
func TwoByteCombine(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// FourByteSplit splits v into four bytes, most significant first.
func FourByteSplit(v uint32) (b0, b1, b2, b3 byte) {
	return byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)
}

// FourByteCombine joins four bytes, most significant first, into a uint32.
func FourByteCombine(b0, b1, b2, b3 byte) uint32 {
	return uint32(b0)<<24 | uint32(b1)<<16 | uint32(b2)<<8 | uint32(b3)
}

// AppendUint16 appends v to b in big-endian order.
func AppendUint16(b []byte, v uint16) []byte {
	hi, lo := TwoByteSplit(v)
	return append(b, hi, lo)
}

// AppendUint32 appends v to b in big-endian order.
func AppendUint32(b []byte, v uint32) []byte {
	b0, b1, b2, b3 := FourByteSplit(v)
	return append(b, b0, b1, b2, b3)
}
