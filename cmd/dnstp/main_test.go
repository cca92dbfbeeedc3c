package main

import (
	"bytes"
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/server"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/transport"
)

func startServer(t *testing.T) (netip.AddrPort, *session.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sock := transport.NewSocket(nil, netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, sock.Bind(ctx))

	reg := session.NewRegistry(nil)
	d := &server.Dispatcher{Domain: protocol.NewDomain("sarsoo.xyz", ""), Registry: reg}
	in := make(chan transport.NetworkMessage, 8)
	out := make(chan transport.NetworkMessage, 8)
	sock.RunRx(ctx, in)
	sock.RunTx(ctx, out)
	go d.Run(ctx, in, out)

	t.Cleanup(func() {
		cancel()
		_ = sock.Close(2 * time.Second)
	})
	return sock.LocalAddr(), reg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCommand_RequiresNetworkFlags(t *testing.T) {
	_, err := run(t, "handshake")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}

func TestRootCommand_RejectsBadAddress(t *testing.T) {
	_, err := run(t, "handshake", "--address", "nope", "--base-domain", "sarsoo.xyz")
	assert.ErrorContains(t, err, "--address")
}

func TestHandshakeCommand(t *testing.T) {
	addr, reg := startServer(t)

	out, err := run(t, "handshake", "--address", addr.String(), "--base-domain", "sarsoo.xyz")
	require.NoError(t, err)

	fp := strings.TrimSpace(out)
	_, ok := reg.Lookup(fp)
	assert.True(t, ok, "fingerprint %q not registered", fp)
}

func TestUploadCommand(t *testing.T) {
	addr, reg := startServer(t)

	_, err := run(t, "upload", "--address", addr.String(), "--base-domain", "sarsoo.xyz", "--key", "k", "--value", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestDownloadCommand_NothingQueued(t *testing.T) {
	addr, _ := startServer(t)

	_, err := run(t, "download", "--address", addr.String(), "--base-domain", "sarsoo.xyz")
	assert.ErrorContains(t, err, "no payload")
}

func TestTestCommand(t *testing.T) {
	addr, _ := startServer(t)

	_, err := run(t, "test", "--address", addr.String(), "--base-domain", "sarsoo.xyz",
		"--count", "2", "--interval", "10ms")
	assert.NoError(t, err)
}
