package dns

// CNAMERData is the payload of a CNAME record: an encoded domain name.
//
// The wire form is computed once at construction so Bytes cannot fail.
type CNAMERData struct {
	name string
	wire []byte
}

// NewCNAMERData encodes name for use as CNAME rdata.
func NewCNAMERData(name string) (CNAMERData, error) {
	wire, err := EncodeName(name)
	if err != nil {
		return CNAMERData{}, err
	}
	return CNAMERData{name: trimDot(name), wire: wire}, nil
}

// Name returns the target name.
func (r CNAMERData) Name() string { return r.name }

func (r CNAMERData) Bytes() []byte { return r.wire }

func (CNAMERData) rdata() {}

// DecodeCNAME interprets the payload of any record as an encoded name.
// Records decoded from the wire carry RawRData, so this is how a received
// CNAME answer is read.
func DecodeCNAME(data RData) (string, error) {
	if c, ok := data.(CNAMERData); ok {
		return c.name, nil
	}
	off := 0
	return DecodeName(data.Bytes(), &off)
}
