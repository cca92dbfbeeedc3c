// Package protocol builds and consumes the tunnel's handshake, upload and
// download messages on both the client and the server side.
package protocol

import (
	"strings"

	"github.com/jroosing/dnstp/internal/dns"
)

// DefaultKeyEndpoint is the handshake subdomain used when none is configured.
const DefaultKeyEndpoint = "static"

// Domain names the zone the tunnel runs under.
type Domain struct {
	BaseDomain  string
	KeyEndpoint string
}

// NewDomain normalises trailing dots and fills in the default key endpoint.
func NewDomain(baseDomain, keyEndpoint string) Domain {
	if keyEndpoint == "" {
		keyEndpoint = DefaultKeyEndpoint
	}
	return Domain{
		BaseDomain:  strings.Trim(baseDomain, "."),
		KeyEndpoint: strings.Trim(keyEndpoint, "."),
	}
}

// FQKeyEndpoint is the fully qualified handshake name.
func (d Domain) FQKeyEndpoint() string {
	return d.KeyEndpoint + "." + d.BaseDomain
}

// AppendBaseDomain suffixes label with the base domain.
func (d Domain) AppendBaseDomain(label string) string {
	return label + "." + d.BaseDomain
}

// HasBaseDomain reports whether name lies strictly under the base domain.
// The comparison is case-insensitive.
func (d Domain) HasBaseDomain(name string) bool {
	n := dns.NormalizeName(name)
	return strings.HasSuffix(n, "."+dns.NormalizeName(d.BaseDomain))
}

// IsKeyEndpoint reports whether name is the handshake name.
func (d Domain) IsKeyEndpoint(name string) bool {
	return strings.EqualFold(dns.NormalizeName(name), dns.NormalizeName(d.FQKeyEndpoint()))
}

// StripBaseDomain removes the base domain suffix from name. If name is not
// under the base domain it is returned unchanged with ok false.
func (d Domain) StripBaseDomain(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".")
	if !d.HasBaseDomain(name) {
		return name, false
	}
	return name[:len(name)-len(d.BaseDomain)-1], true
}

// AnyUnderBaseDomain reports whether at least one question targets the base domain.
func (d Domain) AnyUnderBaseDomain(questions []dns.Question) bool {
	for _, q := range questions {
		if d.HasBaseDomain(q.Name) {
			return true
		}
	}
	return false
}
