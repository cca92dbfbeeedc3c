package dns

import (
	"github.com/jroosing/dnstp/internal/helpers"
)

// HeaderSize is the fixed size of a DNS header in bytes.
const HeaderSize = 12

// Header is the decoded 12-byte message header.
//
// The flags word is kept unpacked; Flags reassembles it for the wire.
type Header struct {
	ID                 uint16
	Direction          Direction
	Opcode             Opcode
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	RCode              RCode
	QDCount            uint16 // Question count
	ANCount            uint16 // Answer count
	NSCount            uint16 // Authority count
	ARCount            uint16 // Additional count
}

// Flags packs direction, opcode, the four flag bits and the response code.
func (h Header) Flags() uint16 {
	var f uint16
	if h.Direction == DirectionResponse {
		f |= QRFlag
	}
	f |= (uint16(h.Opcode) << opcodeShift) & OpcodeMask
	if h.Authoritative {
		f |= AAFlag
	}
	if h.Truncated {
		f |= TCFlag
	}
	if h.RecursionDesired {
		f |= RDFlag
	}
	if h.RecursionAvailable {
		f |= RAFlag
	}
	f |= uint16(h.RCode) & RCodeMask
	return f
}

// Marshal serializes the header to its 12-byte wire form.
func (h Header) Marshal() []byte {
	b := make([]byte, 0, HeaderSize)
	b = helpers.AppendUint16(b, h.ID)
	b = helpers.AppendUint16(b, h.Flags())
	b = helpers.AppendUint16(b, h.QDCount)
	b = helpers.AppendUint16(b, h.ANCount)
	b = helpers.AppendUint16(b, h.NSCount)
	b = helpers.AppendUint16(b, h.ARCount)
	return b
}

// ParseHeader decodes the first 12 bytes of msg.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderSize {
		return Header{}, &HeaderParseError{Kind: HeaderShort, Raw: helpers.ClampIntToUint16(len(msg))}
	}
	flags := helpers.TwoByteCombine(msg[2], msg[3])

	rawOpcode := (flags & OpcodeMask) >> opcodeShift
	opcode, ok := parseOpcode(rawOpcode)
	if !ok {
		return Header{}, &HeaderParseError{Kind: OpcodeParse, Raw: rawOpcode}
	}
	rawRCode := flags & RCodeMask
	rcode, ok := parseRCode(rawRCode)
	if !ok {
		return Header{}, &HeaderParseError{Kind: ResponseCodeParse, Raw: rawRCode}
	}

	h := Header{
		ID:                 helpers.TwoByteCombine(msg[0], msg[1]),
		Direction:          DirectionRequest,
		Opcode:             opcode,
		Authoritative:      flags&AAFlag != 0,
		Truncated:          flags&TCFlag != 0,
		RecursionDesired:   flags&RDFlag != 0,
		RecursionAvailable: flags&RAFlag != 0,
		RCode:              rcode,
		QDCount:            helpers.TwoByteCombine(msg[4], msg[5]),
		ANCount:            helpers.TwoByteCombine(msg[6], msg[7]),
		NSCount:            helpers.TwoByteCombine(msg[8], msg[9]),
		ARCount:            helpers.TwoByteCombine(msg[10], msg[11]),
	}
	if flags&QRFlag != 0 {
		h.Direction = DirectionResponse
	}
	return h, nil
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool {
	return h.Direction == DirectionResponse
}
