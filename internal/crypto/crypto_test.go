package crypto

import (
	"bytes"
	"crypto/rand"
	mrand "math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) (string, func(string) []byte) {
	t.Helper()
	priv, pub, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	return pub, func(peer string) []byte {
		secret, err := DeriveSharedSecret(priv, peer)
		require.NoError(t, err)
		return secret
	}
}

func TestGenerateKeyPair_PEMShape(t *testing.T) {
	_, pub, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pub, pemHeader))
	assert.True(t, strings.HasSuffix(pub, pemFooter))

	labels := strings.Split(TrimPublicKey(pub), ".")
	require.Len(t, labels, 2)
	assert.Len(t, labels[0], 64)
	assert.Len(t, labels[1], 60)
}

func TestECDHSymmetry(t *testing.T) {
	pubA, secretA := newKeyPair(t)
	pubB, secretB := newKeyPair(t)
	assert.Equal(t, secretA(pubB), secretB(pubA))
	assert.Len(t, secretA(pubB), KeySize)
}

func TestDeriveSharedSecret_BadPeer(t *testing.T) {
	priv, _, err := GenerateKeyPair(rand.Reader)
	require.NoError(t, err)

	for _, peer := range []string{
		"",
		"not pem at all",
		FattenPublicKey("AAAA.BBBB"),
	} {
		_, err := DeriveSharedSecret(priv, peer)
		var kErr *KeyParseError
		assert.ErrorAs(t, err, &kErr, "peer %q", peer)
	}
}

func TestPEMRoundTrip(t *testing.T) {
	for range 20 {
		_, pub, err := GenerateKeyPair(rand.Reader)
		require.NoError(t, err)
		trimmed := TrimPublicKey(pub)
		assert.NotContains(t, trimmed, "\n")
		assert.NotContains(t, trimmed, "-----")
		assert.Equal(t, pub, FattenPublicKey(trimmed))

		_, err = ParsePublicKey(FattenPublicKey(trimmed))
		require.NoError(t, err)
	}
}

func TestAEADRoundTrip(t *testing.T) {
	pubA, secretA := newKeyPair(t)
	pubB, secretB := newKeyPair(t)

	keyA, err := DeriveSymmetricKey(secretA(pubB))
	require.NoError(t, err)
	keyB, err := DeriveSymmetricKey(secretB(pubA))
	require.NoError(t, err)
	assert.True(t, keyA.Equal(keyB))

	rng := mrand.New(mrand.NewPCG(1, 2))
	for _, size := range []int{0, 1, 15, 16, 17, 255, 4096} {
		msg := make([]byte, size)
		for i := range msg {
			msg[i] = byte(rng.UintN(256))
		}
		nonce, err := GenerateNonce(rand.Reader)
		require.NoError(t, err)

		ct, err := Encrypt(keyA, nonce, msg)
		require.NoError(t, err)
		pt, err := Decrypt(keyB, nonce, ct)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(msg, pt))
	}
}

func TestDecrypt_Failures(t *testing.T) {
	pubA, secretA := newKeyPair(t)
	pubB, _ := newKeyPair(t)
	_, secretC := newKeyPair(t)

	key, err := DeriveSymmetricKey(secretA(pubB))
	require.NoError(t, err)
	other, err := DeriveSymmetricKey(secretC(pubA))
	require.NoError(t, err)

	nonce, err := GenerateNonce(rand.Reader)
	require.NoError(t, err)
	ct, err := Encrypt(key, nonce, []byte("secret"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := Decrypt(other, nonce, ct)
		assert.ErrorIs(t, err, ErrDecrypt)
	})
	t.Run("wrong nonce", func(t *testing.T) {
		n2 := bytes.Clone(nonce)
		n2[0] ^= 0xff
		_, err := Decrypt(key, n2, ct)
		assert.ErrorIs(t, err, ErrDecrypt)
	})
	t.Run("tampered", func(t *testing.T) {
		ct2 := bytes.Clone(ct)
		ct2[len(ct2)-1] ^= 1
		_, err := Decrypt(key, nonce, ct2)
		assert.ErrorIs(t, err, ErrDecrypt)
	})
	t.Run("short nonce", func(t *testing.T) {
		_, err := Decrypt(key, nonce[:4], ct)
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestDeterministicRandomness(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, NonceSize*2)
	n1, err := GenerateNonce(bytes.NewReader(seed))
	require.NoError(t, err)
	n2, err := GenerateNonce(bytes.NewReader(seed))
	require.NoError(t, err)
	assert.Equal(t, n1, n2)

	_, err = GenerateNonce(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestDeriveSymmetricKey_WrongLength(t *testing.T) {
	_, err := DeriveSymmetricKey(make([]byte, 16))
	assert.ErrorIs(t, err, ErrCrypto)
}
