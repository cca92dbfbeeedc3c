package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshal(t *testing.T) {
	h := Header{
		ID:                 0x1234,
		Direction:          DirectionResponse,
		RecursionDesired:   true,
		RecursionAvailable: true,
		QDCount:            1,
		ANCount:            2,
		NSCount:            3,
		ARCount:            4,
	}

	b := h.Marshal()
	require.Len(t, b, HeaderSize)
	assert.Equal(t, []byte{
		0x12, 0x34,
		0x81, 0x80,
		0x00, 0x01,
		0x00, 0x02,
		0x00, 0x03,
		0x00, 0x04,
	}, b)
}

func TestHeaderFlagBits(t *testing.T) {
	tests := []struct {
		name string
		h    Header
		want uint16
	}{
		{name: "query", h: Header{}, want: 0x0000},
		{name: "response", h: Header{Direction: DirectionResponse}, want: 0x8000},
		{name: "rquery", h: Header{Opcode: OpcodeRQuery}, want: 0x0800},
		{name: "reserved", h: Header{Opcode: OpcodeReserved}, want: 0x1800},
		{name: "aa", h: Header{Authoritative: true}, want: 0x0400},
		{name: "tc", h: Header{Truncated: true}, want: 0x0200},
		{name: "rd", h: Header{RecursionDesired: true}, want: 0x0100},
		{name: "ra", h: Header{RecursionAvailable: true}, want: 0x0080},
		{name: "notzone", h: Header{RCode: RCodeNotZone}, want: 0x000A},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.Flags())
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, dir := range []Direction{DirectionRequest, DirectionResponse} {
		for op := OpcodeQuery; op <= OpcodeReserved; op++ {
			for rc := RCodeNoError; rc <= RCodeNotZone; rc++ {
				for bits := 0; bits < 16; bits++ {
					h := Header{
						ID:                 uint16(bits*4099 + int(rc)),
						Direction:          dir,
						Opcode:             op,
						Authoritative:      bits&1 != 0,
						Truncated:          bits&2 != 0,
						RecursionDesired:   bits&4 != 0,
						RecursionAvailable: bits&8 != 0,
						RCode:              rc,
						QDCount:            uint16(bits),
						ANCount:            0xffff,
						NSCount:            uint16(rc),
						ARCount:            uint16(op),
					}
					got, err := ParseHeader(h.Marshal())
					require.NoError(t, err)
					assert.Equal(t, h, got)
				}
			}
		}
	}
}

func TestParseHeader_Errors(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		_, err := ParseHeader(make([]byte, 11))
		var hErr *HeaderParseError
		require.ErrorAs(t, err, &hErr)
		assert.Equal(t, HeaderShort, hErr.Kind)
		assert.Equal(t, uint16(11), hErr.Raw)
		assert.ErrorIs(t, err, ErrDNSError)
	})

	t.Run("opcode", func(t *testing.T) {
		b := make([]byte, HeaderSize)
		b[2] = 0x20 // opcode 4
		_, err := ParseHeader(b)
		var hErr *HeaderParseError
		require.ErrorAs(t, err, &hErr)
		assert.Equal(t, OpcodeParse, hErr.Kind)
		assert.Equal(t, uint16(4), hErr.Raw)
	})

	t.Run("rcode", func(t *testing.T) {
		b := make([]byte, HeaderSize)
		b[3] = 0x0B
		_, err := ParseHeader(b)
		var hErr *HeaderParseError
		require.ErrorAs(t, err, &hErr)
		assert.Equal(t, ResponseCodeParse, hErr.Kind)
		assert.Equal(t, uint16(11), hErr.Raw)
	})
}

func TestParseHeader_IgnoresZBits(t *testing.T) {
	b := make([]byte, HeaderSize)
	b[3] = 0x70
	h, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, Header{}, h)
}
