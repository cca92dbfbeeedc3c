package helpers_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/jroosing/dnstp/internal/helpers"
	"github.com/stretchr/testify/assert"
)

func TestClampIntToUint16(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want uint16
	}{
		{name: "negative", in: -1, want: 0},
		{name: "zero", in: 0, want: 0},
		{name: "one", in: 1, want: 1},
		{name: "max", in: int(math.MaxUint16), want: math.MaxUint16},
		{name: "above-max", in: int(math.MaxUint16) + 1, want: math.MaxUint16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, helpers.ClampIntToUint16(tt.in))
		})
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		name       string
		v          int
		lowerLimit int
		upperLimit int
		want       int
	}{
		{name: "below", v: 0, lowerLimit: 10, upperLimit: 20, want: 10},
		{name: "inside", v: 15, lowerLimit: 10, upperLimit: 20, want: 15},
		{name: "above", v: 25, lowerLimit: 10, upperLimit: 20, want: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, helpers.ClampInt(tt.v, tt.lowerLimit, tt.upperLimit))
		})
	}
}

func TestClampIntToUint8(t *testing.T) {
	assert.Equal(t, uint8(0), helpers.ClampIntToUint8(-5))
	assert.Equal(t, uint8(63), helpers.ClampIntToUint8(63))
	assert.Equal(t, uint8(math.MaxUint8), helpers.ClampIntToUint8(300))
}

func TestTwoByteSplitCombine(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x00ff, 0xff00, 0x1234, math.MaxUint16} {
		hi, lo := helpers.TwoByteSplit(v)
		assert.Equal(t, v, helpers.TwoByteCombine(hi, lo))
		assert.Equal(t, v, binary.BigEndian.Uint16([]byte{hi, lo}))
	}
}

func TestFourByteSplitCombine(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xdeadbeef, 0x01020304, math.MaxUint32} {
		b0, b1, b2, b3 := helpers.FourByteSplit(v)
		assert.Equal(t, v, helpers.FourByteCombine(b0, b1, b2, b3))
		assert.Equal(t, v, binary.BigEndian.Uint32([]byte{b0, b1, b2, b3}))
	}
}

func TestAppend(t *testing.T) {
	b := helpers.AppendUint16(nil, 0x0102)
	b = helpers.AppendUint32(b, 0x03040506)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b)
}
