package session

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnstp/internal/crypto"
)

func TestClientContext_Complete(t *testing.T) {
	c, err := NewClientContext(rand.Reader)
	require.NoError(t, err)
	assert.False(t, c.IsComplete())
	_, ok := c.Key()
	assert.False(t, ok)

	serverPriv, serverPub, err := crypto.GenerateKeyPair(rand.Reader)
	require.NoError(t, err)
	require.NoError(t, c.Complete(serverPub))
	assert.True(t, c.IsComplete())
	assert.Equal(t, serverPub, c.ServerKey())

	secret, err := crypto.DeriveSharedSecret(serverPriv, c.PublicKey())
	require.NoError(t, err)
	serverKey, err := crypto.DeriveSymmetricKey(secret)
	require.NoError(t, err)
	clientKey, ok := c.Key()
	require.True(t, ok)
	assert.True(t, clientKey.Equal(serverKey))

	assert.ErrorIs(t, c.Complete(serverPub), ErrAlreadyComplete)
}

func TestClientContext_BadServerKey(t *testing.T) {
	c, err := NewClientContext(rand.Reader)
	require.NoError(t, err)
	err = c.Complete("garbage")
	var kErr *crypto.KeyParseError
	require.ErrorAs(t, err, &kErr)
	assert.False(t, c.IsComplete())
}

func TestClientContext_PublicKeyDomain(t *testing.T) {
	c, err := NewClientContext(rand.Reader)
	require.NoError(t, err)
	d := c.PublicKeyDomain("sarsoo.xyz")
	assert.True(t, strings.HasSuffix(d, ".sarsoo.xyz"))
	assert.Equal(t, c.PublicKey(), crypto.FattenPublicKey(strings.TrimSuffix(d, ".sarsoo.xyz")))
}
