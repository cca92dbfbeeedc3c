package dns

// DNS header flags and masks.
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	|QR|   Opcode  |AA|TC|RD|RA|   Z    |   RCODE   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	 15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
//
// The Z bits are ignored on decode and always written as zero.
const (
	QRFlag      uint16 = 0x8000
	OpcodeMask  uint16 = 0x7800
	AAFlag      uint16 = 0x0400
	TCFlag      uint16 = 0x0200
	RDFlag      uint16 = 0x0100
	RAFlag      uint16 = 0x0080
	RCodeMask   uint16 = 0x000F
	opcodeShift        = 11
)

// Direction distinguishes requests from responses (the QR bit).
type Direction uint8

const (
	DirectionRequest  Direction = 0
	DirectionResponse Direction = 1
)

func (d Direction) String() string {
	if d == DirectionResponse {
		return "response"
	}
	return "request"
}

// Opcode is the 4-bit operation code of a message.
type Opcode uint8

const (
	OpcodeQuery    Opcode = 0
	OpcodeRQuery   Opcode = 1
	OpcodeStatus   Opcode = 2
	OpcodeReserved Opcode = 3
)

func parseOpcode(v uint16) (Opcode, bool) {
	if v > uint16(OpcodeReserved) {
		return 0, false
	}
	return Opcode(v), true
}

// RCode is the 4-bit response code of a message.
type RCode uint8

const (
	RCodeNoError        RCode = 0
	RCodeFormatError    RCode = 1
	RCodeServerFailure  RCode = 2
	RCodeNameError      RCode = 3
	RCodeNotImplemented RCode = 4
	RCodeRefused        RCode = 5
	RCodeYXDomain       RCode = 6
	RCodeYXRRSet        RCode = 7
	RCodeNXRRSet        RCode = 8
	RCodeNotAuth        RCode = 9
	RCodeNotZone        RCode = 10
)

var rcodeNames = [...]string{
	"NOERROR", "FORMERR", "SERVFAIL", "NXDOMAIN", "NOTIMP", "REFUSED",
	"YXDOMAIN", "YXRRSET", "NXRRSET", "NOTAUTH", "NOTZONE",
}

func (r RCode) String() string {
	if int(r) < len(rcodeNames) {
		return rcodeNames[r]
	}
	return "RCODE?"
}

func parseRCode(v uint16) (RCode, bool) {
	if v > uint16(RCodeNotZone) {
		return 0, false
	}
	return RCode(v), true
}

// QType is the type of a question or resource record.
type QType uint16

const (
	TypeA     QType = 1
	TypeNS    QType = 2
	TypeCNAME QType = 5
	TypeSOA   QType = 6
	TypeWKS   QType = 11
	TypePTR   QType = 12
	TypeHINFO QType = 13
	TypeMINFO QType = 14
	TypeMX    QType = 15
	TypeTXT   QType = 16
	TypeRP    QType = 17
	TypeAAAA  QType = 28
	TypeSRV   QType = 33
	TypeOPT   QType = 41
	TypeANY   QType = 255
)

var qtypeNames = map[QType]string{
	TypeA: "A", TypeNS: "NS", TypeCNAME: "CNAME", TypeSOA: "SOA", TypeWKS: "WKS",
	TypePTR: "PTR", TypeHINFO: "HINFO", TypeMINFO: "MINFO", TypeMX: "MX",
	TypeTXT: "TXT", TypeRP: "RP", TypeAAAA: "AAAA", TypeSRV: "SRV",
	TypeOPT: "OPT", TypeANY: "ANY",
}

func (t QType) String() string {
	if s, ok := qtypeNames[t]; ok {
		return s
	}
	return "TYPE?"
}

// ParseQType maps a raw wire value to a known QType.
func ParseQType(v uint16) (QType, bool) {
	t := QType(v)
	_, ok := qtypeNames[t]
	return t, ok
}

// QClass is the class of a question or resource record.
type QClass uint16

const (
	ClassInternet QClass = 1
	ClassChaos    QClass = 3
	ClassHesiod   QClass = 4
)

func (c QClass) String() string {
	switch c {
	case ClassInternet:
		return "IN"
	case ClassChaos:
		return "CH"
	case ClassHesiod:
		return "HS"
	default:
		return "CLASS?"
	}
}

// ParseQClass maps a raw wire value to a known QClass.
func ParseQClass(v uint16) (QClass, bool) {
	switch c := QClass(v); c {
	case ClassInternet, ClassChaos, ClassHesiod:
		return c, true
	default:
		return 0, false
	}
}
