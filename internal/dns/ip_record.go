package dns

import "net/netip"

// ARData is the payload of an A record.
type ARData [4]byte

// NewARData converts an IPv4 (or IPv4-mapped) address.
func NewARData(addr netip.Addr) (ARData, bool) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return ARData{}, false
	}
	return ARData(addr.As4()), true
}

func (r ARData) Bytes() []byte { return r[:] }

// Addr returns the address as a netip.Addr.
func (r ARData) Addr() netip.Addr { return netip.AddrFrom4(r) }

func (ARData) rdata() {}

// AAAARData is the payload of an AAAA record.
type AAAARData [16]byte

// NewAAAARData converts an IPv6 address.
func NewAAAARData(addr netip.Addr) (AAAARData, bool) {
	if !addr.Is6() {
		return AAAARData{}, false
	}
	return AAAARData(addr.As16()), true
}

func (r AAAARData) Bytes() []byte { return r[:] }

// Addr returns the address as a netip.Addr.
func (r AAAARData) Addr() netip.Addr { return netip.AddrFrom16(r) }

func (AAAARData) rdata() {}
