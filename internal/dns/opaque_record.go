package dns

// RawRData is an uninterpreted payload. Every record decoded from the wire
// carries one.
type RawRData []byte

func (r RawRData) Bytes() []byte { return r }

func (RawRData) rdata() {}

// TXTRData is the payload of a TXT record.
//
// The text is written as raw UTF-8 without RFC 1035 character-string length
// prefixes, so a single record may exceed 255 bytes.
type TXTRData string

func (r TXTRData) Bytes() []byte { return []byte(r) }

func (TXTRData) rdata() {}
