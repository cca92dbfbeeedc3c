package dns

import (
	"fmt"
	"strings"

	"github.com/jroosing/dnstp/internal/helpers"
)

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  QType
	Class QClass
}

// Marshal serializes the question: encoded name, then type and class.
func (q Question) Marshal() ([]byte, error) {
	return q.appendTo(make([]byte, 0, len(q.Name)+8))
}

func (q Question) appendTo(out []byte) ([]byte, error) {
	out, err := appendName(out, q.Name)
	if err != nil {
		return nil, fmt.Errorf("question %q: %w", q.Name, err)
	}
	out = helpers.AppendUint16(out, uint16(q.Type))
	out = helpers.AppendUint16(out, uint16(q.Class))
	return out, nil
}

// MarshalQuestions serializes questions back to back.
func MarshalQuestions(questions []Question) ([]byte, error) {
	var out []byte
	var err error
	for _, q := range questions {
		if out, err = q.appendTo(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type questionState int

const (
	qsLength questionState = iota
	qsLabel
	qsType
	qsClass
)

// ParseQuestions decodes count questions from the front of b and returns
// them with the unconsumed remainder.
//
// Decoding walks a small state machine over the bytes: a length byte either
// opens a label or, when zero, ends the name and moves on to the type and
// class fields. Once count questions are complete the walk stops and the
// rest of b is handed back untouched.
func ParseQuestions(b []byte, count int) ([]Question, []byte, error) {
	if count == 0 {
		return nil, b, nil
	}
	if len(b) < 4 {
		return nil, nil, &QuestionParseError{Kind: QuestionShortLength, Raw: helpers.ClampIntToUint16(len(b))}
	}

	questions := make([]Question, 0, count)
	labels := make([]string, 0, 6)
	var (
		state    = qsLength
		pos      int
		labelLen int
		qtype    QType
	)
	truncated := func() error {
		return &QuestionParseError{Kind: QuestionTruncated, Raw: helpers.ClampIntToUint16(pos)}
	}

	for len(questions) < count {
		switch state {
		case qsLength:
			if pos >= len(b) {
				return nil, nil, truncated()
			}
			labelLen = int(b[pos])
			pos++
			if labelLen == 0 {
				state = qsType
			} else {
				state = qsLabel
			}

		case qsLabel:
			if pos+labelLen > len(b) {
				return nil, nil, truncated()
			}
			label, err := DecodeLabel(string(b[pos : pos+labelLen]))
			if err != nil {
				return nil, nil, &QuestionParseError{Kind: LabelDecode, Raw: helpers.ClampIntToUint16(pos), Err: err}
			}
			labels = append(labels, label)
			pos += labelLen
			state = qsLength

		case qsType:
			if pos+2 > len(b) {
				return nil, nil, truncated()
			}
			raw := helpers.TwoByteCombine(b[pos], b[pos+1])
			t, ok := ParseQType(raw)
			if !ok {
				return nil, nil, &QuestionParseError{Kind: QTypeParse, Raw: raw}
			}
			qtype = t
			pos += 2
			state = qsClass

		case qsClass:
			if pos+2 > len(b) {
				return nil, nil, truncated()
			}
			raw := helpers.TwoByteCombine(b[pos], b[pos+1])
			c, ok := ParseQClass(raw)
			if !ok {
				return nil, nil, &QuestionParseError{Kind: QClassParse, Raw: raw}
			}
			pos += 2
			questions = append(questions, Question{Name: strings.Join(labels, "."), Type: qtype, Class: c})
			labels = labels[:0]
			state = qsLength
		}
	}
	return questions, b[pos:], nil
}
