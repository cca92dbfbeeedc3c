// Package crypto holds the key agreement and payload encryption used by the
// tunnel: ephemeral P-256 ECDH, with the raw shared secret keying
// AES-256-GCM-SIV.
//
// Every function that needs randomness takes it as an io.Reader so tests can
// inject a deterministic source.
package crypto

import (
	"bytes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"

	siv "github.com/secure-io/siv-go"
)

const (
	// NonceSize is the AEAD nonce length in bytes.
	NonceSize = 12
	// KeySize is the symmetric key length in bytes.
	KeySize = 32

	pemHeader = "-----BEGIN PUBLIC KEY-----\n"
	pemFooter = "\n-----END PUBLIC KEY-----\n"
	pemType   = "PUBLIC KEY"
)

var (
	// ErrDecrypt is returned for any authentication failure. Wrong key, wrong
	// nonce and tampered ciphertext are deliberately indistinguishable.
	ErrDecrypt = errors.New("crypto: message authentication failed")

	// ErrCrypto wraps failures that are not authentication failures.
	ErrCrypto = errors.New("crypto error")
)

// KeyParseError reports a peer public key that is not a valid P-256 point.
type KeyParseError struct {
	Err error
}

func (e *KeyParseError) Error() string { return "crypto: invalid peer public key: " + e.Err.Error() }

func (e *KeyParseError) Unwrap() error { return e.Err }

// GenerateKeyPair creates an ephemeral P-256 key and its PEM encoded public key.
func GenerateKeyPair(rand io.Reader) (*ecdh.PrivateKey, string, error) {
	priv, err := ecdh.P256().GenerateKey(rand)
	if err != nil {
		return nil, "", fmt.Errorf("%w: generate key: %w", ErrCrypto, err)
	}
	pub, err := EncodePublicKey(priv.PublicKey())
	if err != nil {
		return nil, "", err
	}
	return priv, pub, nil
}

// EncodePublicKey renders pub as a PKIX PEM block.
func EncodePublicKey(pub *ecdh.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: marshal public key: %w", ErrCrypto, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})), nil
}

// ParsePublicKey parses a PKIX PEM block holding a P-256 key.
func ParsePublicKey(s string) (*ecdh.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != pemType {
		return nil, &KeyParseError{Err: errors.New("no PEM public key block")}
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, &KeyParseError{Err: err}
	}
	type ecdhConvertible interface {
		ECDH() (*ecdh.PublicKey, error)
	}
	conv, ok := key.(ecdhConvertible)
	if !ok {
		return nil, &KeyParseError{Err: fmt.Errorf("unsupported key type %T", key)}
	}
	pub, err := conv.ECDH()
	if err != nil {
		return nil, &KeyParseError{Err: err}
	}
	if pub.Curve() != ecdh.P256() {
		return nil, &KeyParseError{Err: errors.New("key is not on P-256")}
	}
	return pub, nil
}

// DeriveSharedSecret performs ECDH between priv and the PEM encoded peer key.
func DeriveSharedSecret(priv *ecdh.PrivateKey, peerPublic string) ([]byte, error) {
	pub, err := ParsePublicKey(peerPublic)
	if err != nil {
		return nil, err
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, &KeyParseError{Err: err}
	}
	return secret, nil
}

// Key is a symmetric AEAD key derived from a shared secret.
type Key struct {
	raw  []byte
	aead cipher.AEAD
}

// DeriveSymmetricKey keys AES-256-GCM-SIV directly with the 32-byte ECDH output.
func DeriveSymmetricKey(secret []byte) (*Key, error) {
	if len(secret) != KeySize {
		return nil, fmt.Errorf("%w: shared secret is %d bytes, want %d", ErrCrypto, len(secret), KeySize)
	}
	aead, err := siv.NewGCM(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	raw := make([]byte, KeySize)
	copy(raw, secret)
	return &Key{raw: raw, aead: aead}, nil
}

// Equal reports whether two keys hold the same bytes.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return bytes.Equal(k.raw, other.raw)
}

// GenerateNonce returns a fresh 96-bit nonce.
func GenerateNonce(rand io.Reader) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", ErrCrypto, err)
	}
	return nonce, nil
}

// Encrypt seals plaintext under key and nonce.
func Encrypt(key *Key, nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrCrypto, len(nonce), NonceSize)
	}
	return key.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext sealed with Encrypt.
func Decrypt(key *Key, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrDecrypt
	}
	plaintext, err := key.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// TrimPublicKey turns a PEM public key into a dotted label sequence by
// removing the envelope and replacing each newline with a dot.
func TrimPublicKey(pemKey string) string {
	s := strings.TrimPrefix(pemKey, pemHeader)
	s = strings.TrimSuffix(s, pemFooter)
	return strings.ReplaceAll(s, "\n", ".")
}

// FattenPublicKey reverses TrimPublicKey.
func FattenPublicKey(trimmed string) string {
	return pemHeader + strings.ReplaceAll(trimmed, ".", "\n") + pemFooter
}
