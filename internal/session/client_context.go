package session

import (
	"crypto/ecdh"
	"errors"
	"io"
	"sync"

	"github.com/jroosing/dnstp/internal/crypto"
)

// ErrAlreadyComplete is returned when a completed context is handed a second server key.
var ErrAlreadyComplete = errors.New("client handshake already complete")

// ClientContext is the client's half of a handshake. There is one per
// process and it is never renegotiated once complete.
type ClientContext struct {
	mu        sync.Mutex
	private   *ecdh.PrivateKey
	publicKey string
	serverKey string
	key       *crypto.Key
}

// NewClientContext generates the client's ephemeral key pair.
func NewClientContext(rand io.Reader) (*ClientContext, error) {
	priv, pub, err := crypto.GenerateKeyPair(rand)
	if err != nil {
		return nil, err
	}
	return &ClientContext{private: priv, publicKey: pub}, nil
}

// PublicKey returns the client's PEM public key.
func (c *ClientContext) PublicKey() string {
	return c.publicKey
}

// PublicKeyDomain returns the trimmed public key with baseDomain appended;
// this is the client's session id.
func (c *ClientContext) PublicKeyDomain(baseDomain string) string {
	return crypto.TrimPublicKey(c.publicKey) + "." + baseDomain
}

// Complete derives the shared key from the server's PEM public key.
func (c *ClientContext) Complete(serverPublic string) error {
	c.mu.Lock()
	done := c.key != nil
	c.mu.Unlock()
	if done {
		return ErrAlreadyComplete
	}

	secret, err := crypto.DeriveSharedSecret(c.private, serverPublic)
	if err != nil {
		return err
	}
	key, err := crypto.DeriveSymmetricKey(secret)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key != nil {
		return ErrAlreadyComplete
	}
	c.serverKey = serverPublic
	c.key = key
	return nil
}

// IsComplete reports whether the server key and derived key are both set.
func (c *ClientContext) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverKey != "" && c.key != nil
}

// ServerKey returns the server's PEM public key once known.
func (c *ClientContext) ServerKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverKey
}

// Key returns the derived symmetric key once the handshake is complete.
func (c *ClientContext) Key() (*crypto.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.key != nil
}
