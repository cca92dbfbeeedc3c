// Package client drives the tunnel from the client side: one UDP socket, one
// crypto context, and a response processor that routes replies back to the
// request that is waiting for them.
package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/netip"
	"sync"
	"time"

	"github.com/jroosing/dnstp/internal/dns"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/transport"
)

// DefaultTimeout bounds a single request/response exchange.
const DefaultTimeout = 5 * time.Second

var (
	// ErrClosed is returned for exchanges on a closed client.
	ErrClosed = errors.New("client closed")
	// ErrRejected is returned when the server answers with a protocol error.
	ErrRejected = errors.New("server rejected request")
)

// Config describes the server a Client talks to.
type Config struct {
	Server  netip.AddrPort
	Domain  protocol.Domain
	Timeout time.Duration // per exchange; DefaultTimeout when zero
	Logger  *slog.Logger
	Rand    io.Reader // defaults to crypto/rand
}

// Client is a tunnel client bound to one local UDP socket.
type Client struct {
	logger  *slog.Logger
	server  netip.AddrPort
	domain  protocol.Domain
	timeout time.Duration
	rand    io.Reader

	sock   *transport.Socket
	cc     *session.ClientContext
	out    chan transport.NetworkMessage
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	pending map[uint16]chan dns.Message
	closed  bool
}

// Dial binds an ephemeral local socket of the server's address family,
// generates a key pair and starts the socket loops and response processor.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if !cfg.Server.IsValid() {
		return nil, fmt.Errorf("client: invalid server address %q", cfg.Server)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cc, err := session.NewClientContext(cfg.Rand)
	if err != nil {
		return nil, fmt.Errorf("client: key pair: %w", err)
	}

	local := netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	if cfg.Server.Addr().Unmap().Is6() {
		local = netip.AddrPortFrom(netip.IPv6Unspecified(), 0)
	}
	sock := transport.NewSocket(cfg.Logger, local)
	if err := sock.Bind(ctx); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		logger:  cfg.Logger,
		server:  cfg.Server,
		domain:  cfg.Domain,
		timeout: cfg.Timeout,
		rand:    cfg.Rand,
		sock:    sock,
		cc:      cc,
		out:     make(chan transport.NetworkMessage, 16),
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[uint16]chan dns.Message),
	}

	in := make(chan transport.NetworkMessage, 16)
	sock.RunRx(runCtx, in)
	sock.RunTx(runCtx, c.out)
	go c.processResponses(runCtx, in)
	return c, nil
}

// ID returns the client's session id: its trimmed public key under the base domain.
func (c *Client) ID() string {
	return c.cc.PublicKeyDomain(c.domain.BaseDomain)
}

// Fingerprint returns the short handle the server uses for this session.
func (c *Client) Fingerprint() string {
	return session.Fingerprint(c.ID())
}

// LocalAddr returns the bound local address.
func (c *Client) LocalAddr() netip.AddrPort {
	return c.sock.LocalAddr()
}

// Context exposes the crypto context.
func (c *Client) Context() *session.ClientContext {
	return c.cc
}

// Handshake runs the key exchange. It is a no-op once complete.
func (c *Client) Handshake(ctx context.Context) error {
	if c.cc.IsComplete() {
		return nil
	}
	resp, err := c.exchange(ctx, func(id uint16) (dns.Message, error) {
		return protocol.NewHandshakeRequest(id, c.domain, c.cc), nil
	})
	if err != nil {
		return err
	}
	if err := rejected(resp); err != nil {
		return err
	}
	if err := protocol.ConsumeHandshakeResponse(c.domain, c.cc, resp); err != nil {
		return err
	}
	c.logger.Info("handshake complete", "session", c.Fingerprint())
	return nil
}

// Upload sends value, and key when non-empty, and waits for the
// acknowledgement.
func (c *Client) Upload(ctx context.Context, key, value string) error {
	resp, err := c.exchange(ctx, func(id uint16) (dns.Message, error) {
		return protocol.NewUploadRequest(c.rand, id, c.domain, c.cc, key, value)
	})
	if err != nil {
		return err
	}
	if err := rejected(resp); err != nil {
		return err
	}
	c.logger.Info("upload acknowledged", "session", c.Fingerprint(), "bytes", len(value))
	return nil
}

// Download polls for one queued payload. ok is false when nothing was queued.
func (c *Client) Download(ctx context.Context) (payload []byte, ok bool, err error) {
	if !c.cc.IsComplete() {
		return nil, false, protocol.ErrHandshakeIncomplete
	}
	resp, err := c.exchange(ctx, func(id uint16) (dns.Message, error) {
		return protocol.NewDownloadRequest(id, c.domain, c.cc), nil
	})
	if err != nil {
		return nil, false, err
	}
	if err := rejected(resp); err != nil {
		return nil, false, err
	}
	return protocol.ConsumeDownloadResponse(c.cc, resp)
}

// Probe sends a plain A query for the key endpoint and returns the response
// code. It checks reachability without touching the crypto context.
func (c *Client) Probe(ctx context.Context) (dns.RCode, error) {
	resp, err := c.exchange(ctx, func(id uint16) (dns.Message, error) {
		return dns.Message{
			Header: dns.Header{ID: id, Direction: dns.DirectionRequest, Opcode: dns.OpcodeQuery},
			Questions: []dns.Question{
				{Name: c.domain.FQKeyEndpoint(), Type: dns.TypeA, Class: dns.ClassInternet},
			},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return resp.Header.RCode, nil
}

// Close stops the socket loops and the response processor and fails any
// exchange still waiting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.sock.Close(DefaultTimeout)
	<-c.done
	return err
}

// exchange sends the message built for a fresh ID and waits for the reply
// carrying that ID.
func (c *Client) exchange(ctx context.Context, build func(id uint16) (dns.Message, error)) (dns.Message, error) {
	id, ch, err := c.register()
	if err != nil {
		return dns.Message{}, err
	}
	defer c.unregister(id)

	req, err := build(id)
	if err != nil {
		return dns.Message{}, err
	}
	b, err := req.Marshal()
	if err != nil {
		return dns.Message{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case c.out <- transport.NetworkMessage{Buffer: b, Peer: c.server}:
	case <-ctx.Done():
		return dns.Message{}, ctx.Err()
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return dns.Message{}, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		return dns.Message{}, fmt.Errorf("waiting for response %d: %w", id, ctx.Err())
	}
}

func (c *Client) register() (uint16, chan dns.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	for {
		id, err := randomID(c.rand)
		if err != nil {
			return 0, nil, err
		}
		if _, taken := c.pending[id]; taken {
			continue
		}
		ch := make(chan dns.Message, 1)
		c.pending[id] = ch
		return id, ch, nil
	}
}

func (c *Client) unregister(id uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// processResponses decodes inbound datagrams and hands each to the exchange
// waiting on its ID. Anything unmatched is logged and dropped.
func (c *Client) processResponses(ctx context.Context, in <-chan transport.NetworkMessage) {
	defer close(c.done)
	defer c.failPending()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-in:
			resp, err := dns.ParseMessage(msg.Buffer, msg.Peer)
			if err != nil {
				c.logger.Warn("failed to decode response", "peer", msg.Peer.String(), "err", err)
				continue
			}
			if !resp.Header.IsResponse() {
				c.logger.Debug("ignoring request on client socket", "peer", msg.Peer.String())
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.Header.ID]
			if ok {
				delete(c.pending, resp.Header.ID)
			}
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("unmatched response", "id", int(resp.Header.ID), "peer", msg.Peer.String())
				continue
			}
			ch <- resp
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// rejected maps a protocol error response to ErrRejected.
func rejected(resp dns.Message) error {
	if resp.Header.RCode == dns.RCodeNoError {
		return nil
	}
	return fmt.Errorf("%w: rcode %s", ErrRejected, resp.Header.RCode)
}

func randomID(r io.Reader) (uint16, error) {
	n, err := rand.Int(r, big.NewInt(1<<16))
	if err != nil {
		return 0, err
	}
	return uint16(n.Uint64()), nil //nolint:gosec // bounded above
}
