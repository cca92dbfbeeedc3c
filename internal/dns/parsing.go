package dns

import (
	"errors"
	"fmt"
	"net/netip"
)

// Limits for incoming requests.
const (
	MaxIncomingMessageSize = 4096
	MaxQuestions           = 4 // an upload with a key is the largest request
	MaxTotalRR             = 16
)

// ErrNotRequest is returned by ParseRequestBounded for messages with the QR bit set.
var ErrNotRequest = errors.New("dns message is a response")

// ParseRequestBounded parses a request with resource bounds applied before
// any section is walked.
func ParseRequestBounded(msg []byte, peer netip.AddrPort) (Message, error) {
	if len(msg) > MaxIncomingMessageSize {
		return Message{}, fmt.Errorf("%w: message too large (%d bytes)", ErrDNSError, len(msg))
	}
	h, err := ParseHeader(msg)
	if err != nil {
		return Message{}, err
	}
	if h.IsResponse() {
		return Message{}, ErrNotRequest
	}
	if int(h.QDCount) > MaxQuestions {
		return Message{}, fmt.Errorf("%w: too many questions (%d)", ErrDNSError, h.QDCount)
	}
	if int(h.ANCount)+int(h.NSCount)+int(h.ARCount) > MaxTotalRR {
		return Message{}, fmt.Errorf("%w: too many resource records", ErrDNSError)
	}
	return ParseMessage(msg, peer)
}

// QuestionOffset returns the wire offset of the i-th question's name, for
// use as a record's NameOffset.
func QuestionOffset(questions []Question, i int) (uint16, error) {
	off := HeaderSize
	for _, q := range questions[:i] {
		b, err := q.Marshal()
		if err != nil {
			return 0, err
		}
		off += len(b)
	}
	if off > int(^PointerMask) {
		return 0, fmt.Errorf("%w: question offset %d out of pointer range", ErrDNSError, off)
	}
	return uint16(off), nil
}

// ResponseTo starts a response to req: same ID, opcode and cloned questions,
// the QR bit set and recursion-available echoing recursion-desired.
func ResponseTo(req Message, rcode RCode) Message {
	h := req.Header
	h.Direction = DirectionResponse
	h.RCode = rcode
	h.Truncated = false
	if h.RecursionDesired {
		h.RecursionAvailable = true
	}
	h.ANCount, h.NSCount, h.ARCount = 0, 0, 0

	var questions []Question
	if len(req.Questions) > 0 {
		questions = make([]Question, len(req.Questions))
		copy(questions, req.Questions)
	}
	h.QDCount = uint16(len(questions)) //nolint:gosec // bounded by the parsed header count
	return Message{Header: h, Questions: questions, Peer: req.Peer}
}

// EmptyResponse acknowledges req with NoError and no answers.
func EmptyResponse(req Message) Message {
	return ResponseTo(req, RCodeNoError)
}

// NotImplementedResponse answers traffic the server does not serve.
func NotImplementedResponse(req Message) Message {
	return ResponseTo(req, RCodeNotImplemented)
}

// ProtocolErrorResponse signals a protocol-state failure: ServerFailure plus a
// single empty TXT answer pointing at the first question.
func ProtocolErrorResponse(req Message) Message {
	resp := ResponseTo(req, RCodeServerFailure)
	rr, _ := NewResourceRecord(HeaderSize, TypeTXT, ClassInternet, 0, TXTRData(""))
	resp.Answers = []ResourceRecord{rr}
	resp.Header.ANCount = 1
	return resp
}

// AResponse answers every question with an A record for addr.
func AResponse(req Message, addr netip.Addr) (Message, error) {
	data, ok := NewARData(addr)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s is not an IPv4 address", ErrDNSError, addr)
	}
	resp := ResponseTo(req, RCodeNoError)
	for i, q := range resp.Questions {
		off, err := QuestionOffset(resp.Questions, i)
		if err != nil {
			return Message{}, err
		}
		rr, err := NewResourceRecord(off, TypeA, q.Class, 0, data)
		if err != nil {
			return Message{}, err
		}
		resp.Answers = append(resp.Answers, rr)
	}
	resp.Header.ANCount = uint16(len(resp.Answers)) //nolint:gosec // one per question
	return resp, nil
}
