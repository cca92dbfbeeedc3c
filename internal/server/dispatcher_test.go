package server_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnstp/internal/dns"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/server"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/transport"
)

var (
	testDomain = protocol.NewDomain("sarsoo.xyz", "")
	testPeer   = netip.MustParseAddrPort("192.0.2.10:40000")
)

type recordingSink struct {
	mu       sync.Mutex
	sessions []session.Info
	uploads  []protocol.Upload
}

func (s *recordingSink) RecordSession(_ context.Context, info session.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, info)
	return nil
}

func (s *recordingSink) RecordUpload(_ context.Context, _ session.Info, up protocol.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, up)
	return nil
}

type fixture struct {
	d        *server.Dispatcher
	registry *session.Registry
	sink     *recordingSink
}

func newFixture() *fixture {
	reg := session.NewRegistry(nil)
	sink := &recordingSink{}
	return &fixture{
		d: &server.Dispatcher{
			Domain:   testDomain,
			Registry: reg,
			Sink:     sink,
			Stats:    server.NewStats(nil),
		},
		registry: reg,
		sink:     sink,
	}
}

// send pushes m through the wire codec and the dispatcher.
func (f *fixture) send(t *testing.T, m dns.Message) server.Result {
	t.Helper()
	b, err := m.Marshal()
	require.NoError(t, err)
	return f.d.Handle(context.Background(), transport.NetworkMessage{Buffer: b, Peer: testPeer})
}

func parseResponse(t *testing.T, res server.Result) dns.Message {
	t.Helper()
	require.NotNil(t, res.Response, "expected a response")
	resp, err := dns.ParseMessage(res.Response, testPeer)
	require.NoError(t, err)
	return resp
}

// handshake completes a fresh client against f and returns its context.
func (f *fixture) handshake(t *testing.T) *session.ClientContext {
	t.Helper()
	cc, err := session.NewClientContext(rand.Reader)
	require.NoError(t, err)

	res := f.send(t, protocol.NewHandshakeRequest(1, testDomain, cc))
	require.Equal(t, server.StateHandshake, res.State)
	require.NoError(t, res.Err)
	require.NoError(t, protocol.ConsumeHandshakeResponse(testDomain, cc, parseResponse(t, res)))
	return cc
}

func request(id uint16, questions ...dns.Question) dns.Message {
	return dns.Message{
		Header:    dns.Header{ID: id, Direction: dns.DirectionRequest, Opcode: dns.OpcodeQuery},
		Questions: questions,
	}
}

func aQuestion(name string) dns.Question {
	return dns.Question{Name: name, Type: dns.TypeA, Class: dns.ClassInternet}
}

// ============================================================================
// State Tests
// ============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state server.State
		want  string
	}{
		{server.StateNotOurDomain, "not_our_domain"},
		{server.StateHandshake, "handshake"},
		{server.StateKnownClientUpload, "upload"},
		{server.StateKnownClientDownload, "download"},
		{server.StateUnknownClient, "unknown_client"},
		{server.StateMalformed, "malformed"},
		{server.StateDropped, "dropped"},
		{server.State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

// ============================================================================
// Handshake Tests
// ============================================================================

func TestDispatcher_Handshake(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)

	assert.True(t, cc.IsComplete())
	id := cc.PublicKeyDomain(testDomain.BaseDomain)
	assert.True(t, f.registry.Contains(id))
	require.Len(t, f.sink.sessions, 1)
	assert.Equal(t, session.Fingerprint(id), f.sink.sessions[0].Fingerprint)
	assert.Equal(t, testPeer, f.sink.sessions[0].Peer)

	// Both sides hold the same key.
	serverKey, ok := f.registry.SharedKey(id)
	require.True(t, ok)
	clientKey, ok := cc.Key()
	require.True(t, ok)
	assert.True(t, serverKey.Equal(clientKey))
}

func TestDispatcher_HandshakeResponseShape(t *testing.T) {
	f := newFixture()
	cc, err := session.NewClientContext(rand.Reader)
	require.NoError(t, err)

	resp := parseResponse(t, f.send(t, protocol.NewHandshakeRequest(42, testDomain, cc)))

	assert.Equal(t, uint16(42), resp.Header.ID)
	assert.Equal(t, dns.RCodeNoError, resp.Header.RCode)
	require.Len(t, resp.Questions, 2)
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, dns.TypeA, resp.Answers[0].Type)
	assert.Equal(t, []byte{127, 0, 0, 1}, resp.Answers[0].RData.Bytes())
	assert.Equal(t, dns.TypeCNAME, resp.Answers[1].Type)
}

func TestDispatcher_HandshakeRejected(t *testing.T) {
	tests := []struct {
		name string
		req  dns.Message
	}{
		{"single question", request(1, aQuestion("static.sarsoo.xyz"))},
		{"unparseable key", request(1, aQuestion("static.sarsoo.xyz"), aQuestion("garbage.sarsoo.xyz"))},
		{"key asked as CNAME", request(1,
			aQuestion("static.sarsoo.xyz"),
			dns.Question{Name: "k.sarsoo.xyz", Type: dns.TypeCNAME, Class: dns.ClassInternet},
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			res := f.send(t, tt.req)

			assert.Equal(t, server.StateHandshake, res.State)
			var kde *protocol.KeyDecodeError
			assert.True(t, errors.As(res.Err, &kde))
			resp := parseResponse(t, res)
			assert.Equal(t, dns.RCodeServerFailure, resp.Header.RCode)
			require.Len(t, resp.Answers, 1)
			assert.Equal(t, dns.TypeTXT, resp.Answers[0].Type)
			assert.Zero(t, f.registry.Len())
		})
	}
}

// ============================================================================
// Upload Tests
// ============================================================================

func TestDispatcher_Upload(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		hasKey bool
	}{
		{"value only", "", "hello", false},
		{"key and value", "greeting", "hello world", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			cc := f.handshake(t)

			req, err := protocol.NewUploadRequest(rand.Reader, 2, testDomain, cc, tt.key, tt.value)
			require.NoError(t, err)
			res := f.send(t, req)

			assert.Equal(t, server.StateKnownClientUpload, res.State)
			require.NoError(t, res.Err)
			require.NotNil(t, res.Upload)
			assert.Equal(t, tt.value, res.Upload.Value)
			assert.Equal(t, tt.key, res.Upload.Key)
			assert.Equal(t, tt.hasKey, res.Upload.HasKey)

			resp := parseResponse(t, res)
			assert.Equal(t, dns.RCodeNoError, resp.Header.RCode)
			assert.Empty(t, resp.Answers)

			require.Len(t, f.sink.uploads, 1)
			assert.Equal(t, tt.value, f.sink.uploads[0].Value)
		})
	}
}

func TestDispatcher_UploadCryptoFailure(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)

	req, err := protocol.NewUploadRequest(rand.Reader, 2, testDomain, cc, "", "hello")
	require.NoError(t, err)
	junk := make([]byte, 21)
	_, _ = rand.Read(junk)
	req.Questions[1].Name = base64.StdEncoding.EncodeToString(junk)

	res := f.send(t, req)

	assert.Equal(t, server.StateKnownClientUpload, res.State)
	assert.Nil(t, res.Response)
	assert.Nil(t, res.Upload)
	var reqErr *protocol.RequestError
	require.True(t, errors.As(res.Err, &reqErr))
	assert.Equal(t, protocol.CryptoFailure, reqErr.Kind)
	assert.Empty(t, f.sink.uploads)
}

func TestDispatcher_WrongNumberOfQuestions(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)

	res := f.send(t, request(3, aQuestion(cc.PublicKeyDomain(testDomain.BaseDomain))))

	assert.Equal(t, server.StateKnownClientUpload, res.State)
	var reqErr *protocol.RequestError
	require.True(t, errors.As(res.Err, &reqErr))
	assert.Equal(t, protocol.WrongNumberOfQuestions, reqErr.Kind)
	assert.Equal(t, dns.RCodeServerFailure, parseResponse(t, res).Header.RCode)
}

// ============================================================================
// Download Tests
// ============================================================================

func TestDispatcher_DownloadNothingQueued(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)

	res := f.send(t, protocol.NewDownloadRequest(4, testDomain, cc))

	assert.Equal(t, server.StateKnownClientDownload, res.State)
	resp := parseResponse(t, res)
	assert.Equal(t, dns.RCodeNoError, resp.Header.RCode)
	assert.Empty(t, resp.Answers)

	_, ok, err := protocol.ConsumeDownloadResponse(cc, resp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcher_DownloadDeliversQueuedPayloadsInOrder(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)
	fp := session.Fingerprint(cc.PublicKeyDomain(testDomain.BaseDomain))
	require.NoError(t, f.registry.Enqueue(fp, []byte("first")))
	require.NoError(t, f.registry.Enqueue(fp, []byte("second")))

	for _, want := range []string{"first", "second"} {
		res := f.send(t, protocol.NewDownloadRequest(5, testDomain, cc))
		require.Equal(t, server.StateKnownClientDownload, res.State)

		resp := parseResponse(t, res)
		require.Len(t, resp.Answers, 2)
		assert.Equal(t, dns.TypeTXT, resp.Answers[0].Type)
		assert.Equal(t, dns.TypeTXT, resp.Answers[1].Type)

		payload, ok, err := protocol.ConsumeDownloadResponse(cc, resp)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, string(payload))
	}

	info, ok := f.registry.Lookup(fp)
	require.True(t, ok)
	assert.Zero(t, info.Pending)
}

// ============================================================================
// Classification Tests
// ============================================================================

func TestDispatcher_UnknownClient(t *testing.T) {
	f := newFixture()
	stranger, err := session.NewClientContext(rand.Reader)
	require.NoError(t, err)

	res := f.send(t, protocol.NewDownloadRequest(6, testDomain, stranger))

	assert.Equal(t, server.StateUnknownClient, res.State)
	var reqErr *protocol.RequestError
	require.True(t, errors.As(res.Err, &reqErr))
	assert.Equal(t, protocol.NoHandshake, reqErr.Kind)
	resp := parseResponse(t, res)
	assert.Equal(t, dns.RCodeServerFailure, resp.Header.RCode)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, dns.TypeTXT, resp.Answers[0].Type)
}

func TestDispatcher_NotOurDomain(t *testing.T) {
	f := newFixture()

	res := f.send(t, request(7, aQuestion("www.example.com")))

	assert.Equal(t, server.StateNotOurDomain, res.State)
	resp := parseResponse(t, res)
	assert.Equal(t, dns.RCodeNotImplemented, resp.Header.RCode)
	assert.Empty(t, resp.Answers)
}

func TestDispatcher_Malformed(t *testing.T) {
	f := newFixture()
	// Header claims one question; the name is cut off.
	buf := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x05, 'a', 'b'}

	res := f.d.Handle(context.Background(), transport.NetworkMessage{Buffer: buf, Peer: testPeer})

	assert.Equal(t, server.StateMalformed, res.State)
	assert.Error(t, res.Err)
	assert.Nil(t, res.Response)
}

func TestDispatcher_RateLimited(t *testing.T) {
	f := newFixture()
	f.d.Limiter = server.NewRateLimiter(server.RateLimitSettings{IPQPS: 1, IPBurst: 1}, clockwork.NewFakeClock())

	first := f.send(t, request(8, aQuestion("www.example.com")))
	second := f.send(t, request(9, aQuestion("www.example.com")))

	assert.Equal(t, server.StateNotOurDomain, first.State)
	assert.Equal(t, server.StateDropped, second.State)
	assert.Nil(t, second.Response)
}

func TestDispatcher_RecordsStats(t *testing.T) {
	f := newFixture()
	cc := f.handshake(t)
	f.send(t, protocol.NewDownloadRequest(10, testDomain, cc))
	f.send(t, request(11, aQuestion("www.example.com")))

	snap := f.d.Stats.Snapshot()
	assert.EqualValues(t, 3, snap.Total)
	assert.EqualValues(t, 1, snap.ByState["handshake"])
	assert.EqualValues(t, 1, snap.ByState["download"])
	assert.EqualValues(t, 1, snap.ByState["not_our_domain"])
}

// ============================================================================
// Worker Loop Tests
// ============================================================================

func TestDispatcher_Run(t *testing.T) {
	f := newFixture()
	cc, err := session.NewClientContext(rand.Reader)
	require.NoError(t, err)
	b, err := protocol.NewHandshakeRequest(12, testDomain, cc).Marshal()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan transport.NetworkMessage, 2)
	out := make(chan transport.NetworkMessage, 2)
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx, in, out)
		close(done)
	}()

	// The malformed message produces no reply; the handshake does.
	in <- transport.NetworkMessage{Buffer: []byte{0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 9}, Peer: testPeer}
	in <- transport.NetworkMessage{Buffer: b, Peer: testPeer}

	select {
	case msg := <-out:
		assert.Equal(t, testPeer, msg.Peer)
		resp, err := dns.ParseMessage(msg.Buffer, msg.Peer)
		require.NoError(t, err)
		assert.Equal(t, uint16(12), resp.Header.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from worker")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Empty(t, out)
}
