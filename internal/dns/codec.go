package dns

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// MaxLabelLength is the largest encoded label the one-byte length prefix can describe.
//
// The RFC 1035 limit of 63 is not enforced: a PEM key line is 64 characters
// before escaping and base64 payload labels are longer still.
const MaxLabelLength = math.MaxUint8

// NormalizeName returns a lowercase name without trailing dots, for
// case-insensitive comparison.
func NormalizeName(name string) string {
	return strings.ToLower(trimDot(name))
}

// EncodeLabel percent-encodes a single label.
func EncodeLabel(label string) string {
	return url.PathEscape(label)
}

// DecodeLabel reverses EncodeLabel.
func DecodeLabel(label string) (string, error) {
	return url.PathUnescape(label)
}

// EncodeName encodes a dot-separated name to wire format.
//
// Each label is percent-encoded, then written as a length byte followed by
// the encoded bytes. The name ends with a zero-length label.
//
// Example: "a+b/c.example" encodes as
//
//	[7]"a+b%2Fc"[7]"example"[0]
func EncodeName(name string) ([]byte, error) {
	name = trimDot(name)
	if name == "" {
		return []byte{0}, nil
	}
	return appendName(make([]byte, 0, len(name)+2), name)
}

func appendName(out []byte, name string) ([]byte, error) {
	name = trimDot(name)
	if name == "" {
		return append(out, 0), nil
	}
	for label := range strings.SplitSeq(name, ".") {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label in %q", ErrDNSError, name)
		}
		enc := EncodeLabel(label)
		if len(enc) > MaxLabelLength {
			return nil, fmt.Errorf("%w: label too long (%d > %d)", ErrDNSError, len(enc), MaxLabelLength)
		}
		out = append(out, byte(len(enc)))
		out = append(out, enc...)
	}
	return append(out, 0), nil
}

// DecodeName reads an uncompressed name from msg starting at *off and
// advances *off past its terminating zero byte.
func DecodeName(msg []byte, off *int) (string, error) {
	labels := make([]string, 0, 6)
	for {
		if *off >= len(msg) {
			return "", fmt.Errorf("%w: unexpected EOF while decoding name", ErrDNSError)
		}
		n := int(msg[*off])
		*off++
		if n == 0 {
			return joinLabels(labels), nil
		}
		if *off+n > len(msg) {
			return "", fmt.Errorf("%w: unexpected EOF while reading label", ErrDNSError)
		}
		label, err := DecodeLabel(string(msg[*off : *off+n]))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrDNSError, err)
		}
		*off += n
		labels = append(labels, label)
	}
}

// trimDot removes all trailing dots from a string.
func trimDot(s string) string {
	for len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

// joinLabels concatenates DNS labels with dots.
func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	}
	totalSize := len(labels) - 1
	for _, label := range labels {
		totalSize += len(label)
	}
	var sb strings.Builder
	sb.Grow(totalSize)
	for i, label := range labels {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(label)
	}
	return sb.String()
}
