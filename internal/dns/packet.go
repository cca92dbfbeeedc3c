package dns

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/jroosing/dnstp/internal/helpers"
)

// MaxMessageSize is the classic UDP ceiling. Larger messages are still sent;
// the transport only warns about them.
const MaxMessageSize = 512

// Message is a complete decoded message.
//
// Peer is routing metadata for the transport and is never serialized.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
	Peer        netip.AddrPort
}

// Marshal serializes the message. The four header counts are taken from the
// section lengths, so the declared counts always match what is written.
func (m Message) Marshal() ([]byte, error) {
	for _, n := range []int{len(m.Questions), len(m.Answers), len(m.Authorities), len(m.Additionals)} {
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("%w: section has %d entries", ErrDNSError, n)
		}
	}
	h := m.Header
	h.QDCount = helpers.ClampIntToUint16(len(m.Questions))
	h.ANCount = helpers.ClampIntToUint16(len(m.Answers))
	h.NSCount = helpers.ClampIntToUint16(len(m.Authorities))
	h.ARCount = helpers.ClampIntToUint16(len(m.Additionals))

	out := make([]byte, 0, MaxMessageSize)
	out = append(out, h.Marshal()...)

	var err error
	for _, q := range m.Questions {
		if out, err = q.appendTo(out); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]ResourceRecord{m.Answers, m.Authorities, m.Additionals} {
		for _, r := range section {
			if out, err = r.appendTo(out); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ParseMessage decodes a complete message received from peer.
//
// Records of all three sections are parsed as one run and split back by the
// header counts. Bytes after the last declared record are ignored.
func ParseMessage(b []byte, peer netip.AddrPort) (Message, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Message{}, err
	}

	questions, rest, err := ParseQuestions(b[HeaderSize:], int(h.QDCount))
	if err != nil {
		return Message{}, err
	}

	an, ns, ar := int(h.ANCount), int(h.NSCount), int(h.ARCount)
	total := an + ns + ar
	records, _, err := ParseRecords(rest, total)
	if err != nil {
		return Message{}, err
	}
	if len(records) != total {
		return Message{}, &RecordCountError{Expected: total, Actual: len(records)}
	}

	return Message{
		Header:      h,
		Questions:   questions,
		Answers:     section(records, 0, an),
		Authorities: section(records, an, an+ns),
		Additionals: section(records, an+ns, total),
		Peer:        peer,
	}, nil
}

func section(records []ResourceRecord, from, to int) []ResourceRecord {
	if from == to {
		return nil
	}
	return records[from:to:to]
}
