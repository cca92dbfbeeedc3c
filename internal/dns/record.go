package dns

import (
	"fmt"
	"math"

	"github.com/jroosing/dnstp/internal/helpers"
)

// PointerMask marks a name field as a compression pointer (top two bits set).
const PointerMask uint16 = 0xC000

// RData is the payload of a resource record.
//
// The set of implementations is closed: RawRData, ARData, AAAARData,
// CNAMERData and TXTRData.
type RData interface {
	Bytes() []byte
	rdata()
}

// ResourceRecord is one answer, authority or additional record.
//
// NameOffset is the 14-bit offset of the owner name within the message; the
// pointer bits are added on encode and stripped on decode.
type ResourceRecord struct {
	NameOffset uint16
	Type       QType
	Class      QClass
	TTL        uint32
	RDLength   uint16
	RData      RData
}

// NewResourceRecord builds a record whose RDLength matches its payload.
func NewResourceRecord(nameOffset uint16, t QType, c QClass, ttl uint32, data RData) (ResourceRecord, error) {
	n := len(data.Bytes())
	if n > math.MaxUint16 {
		return ResourceRecord{}, fmt.Errorf("%w: rdata too long (%d bytes)", ErrDNSError, n)
	}
	return ResourceRecord{
		NameOffset: nameOffset,
		Type:       t,
		Class:      c,
		TTL:        ttl,
		RDLength:   uint16(n),
		RData:      data,
	}, nil
}

// RecordFromQuestion answers q with data, pointing back at the question's name.
func RecordFromQuestion(q Question, nameOffset uint16, data RData) (ResourceRecord, error) {
	return NewResourceRecord(nameOffset, q.Type, q.Class, 0, data)
}

// Marshal serializes the record.
func (r ResourceRecord) Marshal() ([]byte, error) {
	return r.appendTo(nil)
}

func (r ResourceRecord) appendTo(out []byte) ([]byte, error) {
	var data []byte
	if r.RData != nil {
		data = r.RData.Bytes()
	}
	if len(data) != int(r.RDLength) {
		return nil, fmt.Errorf("%w: rdlength %d does not match %d rdata bytes", ErrDNSError, r.RDLength, len(data))
	}
	out = helpers.AppendUint16(out, r.NameOffset|PointerMask)
	out = helpers.AppendUint16(out, uint16(r.Type))
	out = helpers.AppendUint16(out, uint16(r.Class))
	out = helpers.AppendUint32(out, r.TTL)
	out = helpers.AppendUint16(out, r.RDLength)
	return append(out, data...), nil
}

// MarshalRecords serializes records back to back.
func MarshalRecords(records []ResourceRecord) ([]byte, error) {
	var out []byte
	var err error
	for _, r := range records {
		if out, err = r.appendTo(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type recordState int

const (
	rsPointer recordState = iota
	rsType
	rsClass
	rsTTL
	rsLength
	rsData
)

// fieldWidth is the number of bytes each fixed field occupies.
var fieldWidth = [...]int{rsPointer: 2, rsType: 2, rsClass: 2, rsTTL: 4, rsLength: 2}

// ParseRecords decodes up to count records from the front of b and returns
// them with the unconsumed remainder. Payloads are always RawRData.
//
// If b runs out exactly on a record boundary the records found so far are
// returned; the caller compares the count against what it expected. Running
// out inside a record is a RecordShortLength error.
func ParseRecords(b []byte, count int) ([]ResourceRecord, []byte, error) {
	if count == 0 {
		return nil, b, nil
	}

	records := make([]ResourceRecord, 0, count)
	var (
		state = rsPointer
		pos   int
		cur   ResourceRecord
	)

	for len(records) < count {
		if state == rsPointer && pos == len(b) {
			break
		}
		if state != rsData && pos+fieldWidth[state] > len(b) {
			return nil, nil, &RecordParseError{Kind: RecordShortLength, Raw: helpers.ClampIntToUint16(pos)}
		}

		switch state {
		case rsPointer:
			cur = ResourceRecord{NameOffset: helpers.TwoByteCombine(b[pos], b[pos+1]) &^ PointerMask}
			pos += 2
			state = rsType

		case rsType:
			raw := helpers.TwoByteCombine(b[pos], b[pos+1])
			t, ok := ParseQType(raw)
			if !ok {
				return nil, nil, &RecordParseError{Kind: RecordQTypeParse, Raw: raw}
			}
			cur.Type = t
			pos += 2
			state = rsClass

		case rsClass:
			raw := helpers.TwoByteCombine(b[pos], b[pos+1])
			c, ok := ParseQClass(raw)
			if !ok {
				return nil, nil, &RecordParseError{Kind: RecordQClassParse, Raw: raw}
			}
			cur.Class = c
			pos += 2
			state = rsTTL

		case rsTTL:
			cur.TTL = helpers.FourByteCombine(b[pos], b[pos+1], b[pos+2], b[pos+3])
			pos += 4
			state = rsLength

		case rsLength:
			cur.RDLength = helpers.TwoByteCombine(b[pos], b[pos+1])
			pos += 2
			state = rsData

		case rsData:
			n := int(cur.RDLength)
			if pos+n > len(b) {
				return nil, nil, &RecordParseError{Kind: RecordShortLength, Raw: helpers.ClampIntToUint16(pos)}
			}
			data := make(RawRData, n)
			copy(data, b[pos:pos+n])
			cur.RData = data
			pos += n
			records = append(records, cur)
			state = rsPointer
		}
	}
	return records, b[pos:], nil
}
