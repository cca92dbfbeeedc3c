package protocol

import (
	"errors"
	"fmt"

	"github.com/jroosing/dnstp/internal/dns"
)

// ErrPayloadTooLarge is returned when an encoded payload does not fit in one label.
var ErrPayloadTooLarge = errors.New("payload does not fit in a label")

// ErrHandshakeIncomplete is returned when a client sends data before the
// handshake has finished.
var ErrHandshakeIncomplete = errors.New("handshake not complete")

// KeyDecodeErrorKind classifies a rejected handshake.
type KeyDecodeErrorKind int

const (
	QuestionCount KeyDecodeErrorKind = iota
	FirstQuestionNotA
	SecondQuestionNotA
	SharedSecretDerivation
)

// KeyDecodeError reports why a handshake request was rejected.
type KeyDecodeError struct {
	Kind  KeyDecodeErrorKind
	Count int       // QuestionCount
	QType dns.QType // FirstQuestionNotA, SecondQuestionNotA
	Err   error     // SharedSecretDerivation
}

func (e *KeyDecodeError) Error() string {
	switch e.Kind {
	case QuestionCount:
		return fmt.Sprintf("handshake: expected 2 questions, got %d", e.Count)
	case FirstQuestionNotA:
		return fmt.Sprintf("handshake: first question is %s, not A", e.QType)
	case SecondQuestionNotA:
		return fmt.Sprintf("handshake: second question is %s, not A", e.QType)
	default:
		return fmt.Sprintf("handshake: shared secret derivation: %v", e.Err)
	}
}

func (e *KeyDecodeError) Unwrap() error { return e.Err }

// RequestErrorKind classifies a rejected upload or download.
type RequestErrorKind int

const (
	NoHandshake RequestErrorKind = iota
	WrongNumberOfQuestions
	CryptoFailure
)

func (k RequestErrorKind) String() string {
	switch k {
	case NoHandshake:
		return "no-handshake"
	case WrongNumberOfQuestions:
		return "wrong-number-of-questions"
	default:
		return "crypto-failure"
	}
}

// RequestError reports why a post-handshake request was rejected.
type RequestError struct {
	Kind  RequestErrorKind
	Count int
	Err   error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case WrongNumberOfQuestions:
		return fmt.Sprintf("request: unexpected question count %d", e.Count)
	case CryptoFailure:
		return fmt.Sprintf("request: crypto failure: %v", e.Err)
	default:
		return "request: client has not completed a handshake"
	}
}

func (e *RequestError) Unwrap() error { return e.Err }
