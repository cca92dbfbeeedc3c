// Package dns implements the wire codec for the tunnel.
//
// The layout is RFC 1035 with one deliberate deviation: every label is
// percent-encoded before it is length prefixed, so a label may carry any byte
// sequence (base64 ciphertext, PEM lines) and may be up to 255 bytes long.
// Resource records always name their owner through a single fixed
// compression pointer; no other compression or EDNS is understood.
//
// Error Handling:
//
// Every decode failure is a typed error carrying the offending raw value.
// All of them unwrap to ErrDNSError so callers can test with errors.Is.
package dns

import (
	"errors"
	"fmt"
)

var (
	// ErrDNSError is the sentinel every wire error unwraps to.
	ErrDNSError = errors.New("dns wire error")
)

// HeaderErrorKind classifies a header decode failure.
type HeaderErrorKind int

const (
	HeaderShort HeaderErrorKind = iota
	OpcodeParse
	ResponseCodeParse
)

// HeaderParseError reports an undecodable header.
type HeaderParseError struct {
	Kind HeaderErrorKind
	Raw  uint16
}

func (e *HeaderParseError) Error() string {
	switch e.Kind {
	case OpcodeParse:
		return fmt.Sprintf("dns header: unknown opcode %d", e.Raw)
	case ResponseCodeParse:
		return fmt.Sprintf("dns header: unknown response code %d", e.Raw)
	default:
		return fmt.Sprintf("dns header: need %d bytes, have %d", HeaderSize, e.Raw)
	}
}

func (e *HeaderParseError) Unwrap() error { return ErrDNSError }

// QuestionErrorKind classifies a question decode failure.
type QuestionErrorKind int

const (
	QuestionShortLength QuestionErrorKind = iota
	QuestionTruncated
	QTypeParse
	QClassParse
	LabelDecode
)

// QuestionParseError reports an undecodable question section.
type QuestionParseError struct {
	Kind QuestionErrorKind
	Raw  uint16
	Err  error
}

func (e *QuestionParseError) Error() string {
	switch e.Kind {
	case QuestionShortLength:
		return fmt.Sprintf("dns question: short input (%d bytes)", e.Raw)
	case QuestionTruncated:
		return fmt.Sprintf("dns question: input ends at byte %d inside a question", e.Raw)
	case QTypeParse:
		return fmt.Sprintf("dns question: unknown qtype %d", e.Raw)
	case QClassParse:
		return fmt.Sprintf("dns question: unknown qclass %d", e.Raw)
	default:
		return fmt.Sprintf("dns question: label decode: %v", e.Err)
	}
}

func (e *QuestionParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDNSError, e.Err}
	}
	return []error{ErrDNSError}
}

// RecordErrorKind classifies a resource record decode failure.
type RecordErrorKind int

const (
	RecordShortLength RecordErrorKind = iota
	RecordQTypeParse
	RecordQClassParse
)

// RecordParseError reports an undecodable resource record.
type RecordParseError struct {
	Kind RecordErrorKind
	Raw  uint16
}

func (e *RecordParseError) Error() string {
	switch e.Kind {
	case RecordQTypeParse:
		return fmt.Sprintf("dns record: unknown type %d", e.Raw)
	case RecordQClassParse:
		return fmt.Sprintf("dns record: unknown class %d", e.Raw)
	default:
		return fmt.Sprintf("dns record: input ends at byte %d inside a record", e.Raw)
	}
}

func (e *RecordParseError) Unwrap() error { return ErrDNSError }

// RecordCountError reports that fewer records were present than the header declared.
type RecordCountError struct {
	Expected int
	Actual   int
}

func (e *RecordCountError) Error() string {
	return fmt.Sprintf("dns message: header declares %d records, found %d", e.Expected, e.Actual)
}

func (e *RecordCountError) Unwrap() error { return ErrDNSError }
