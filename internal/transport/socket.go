// Package transport moves raw datagrams between a UDP socket and the rest of
// the process over channels.
//
// A Socket runs one receive loop and one send loop. Buffers travel inside
// NetworkMessage values; whoever receives a message owns its buffer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jroosing/dnstp/internal/dns"
	"github.com/jroosing/dnstp/internal/pool"
)

// pollInterval bounds how long a blocked read waits before the receive loop
// checks for cancellation again.
const pollInterval = time.Second

// NetworkMessage is a raw datagram and the peer it came from or goes to.
type NetworkMessage struct {
	Buffer []byte
	Peer   netip.AddrPort
}

// Counters is a snapshot of a socket's traffic.
type Counters struct {
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	Sent      uint64 `json:"sent"`
	SendErrs  uint64 `json:"send_errors"`
	Oversized uint64 `json:"oversized"`
}

// Socket is a UDP socket bound to the first usable address of a list.
type Socket struct {
	Logger *slog.Logger

	addrs   []netip.AddrPort
	conn    *net.UDPConn
	buffers *pool.Buffers
	wg      sync.WaitGroup

	received  atomic.Uint64
	dropped   atomic.Uint64
	sent      atomic.Uint64
	sendErrs  atomic.Uint64
	oversized atomic.Uint64
}

// NewSocket prepares a socket that will try addrs in order.
func NewSocket(logger *slog.Logger, addrs ...netip.AddrPort) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	return &Socket{
		Logger:  logger,
		addrs:   addrs,
		buffers: pool.NewBuffers(dns.MaxIncomingMessageSize),
	}
}

// Bind binds to the first address that succeeds. Failure to bind any of
// them is returned as a joined error.
func (s *Socket) Bind(ctx context.Context) error {
	if len(s.addrs) == 0 {
		return errors.New("transport: no addresses to bind")
	}
	lc := net.ListenConfig{Control: reuseAddrControl}
	var errs []error
	for _, addr := range s.addrs {
		pc, err := lc.ListenPacket(ctx, "udp", addr.String())
		if err != nil {
			s.Logger.Warn("bind failed", "addr", addr.String(), "err", err)
			errs = append(errs, fmt.Errorf("bind %s: %w", addr, err))
			continue
		}
		conn, ok := pc.(*net.UDPConn)
		if !ok {
			_ = pc.Close()
			errs = append(errs, fmt.Errorf("bind %s: not a UDP socket", addr))
			continue
		}
		s.conn = conn
		s.Logger.Info("socket bound", "addr", s.LocalAddr().String())
		return nil
	}
	return errors.Join(errs...)
}

// LocalAddr is the bound address, or the zero value before Bind.
func (s *Socket) LocalAddr() netip.AddrPort {
	if s.conn == nil {
		return netip.AddrPort{}
	}
	return s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// RunRx starts the receive loop. Datagrams shorter than a DNS header are
// dropped; everything else is copied out of the pooled read buffer and sent
// on out. The loop ends when ctx is cancelled or the socket is closed.
func (s *Socket) RunRx(ctx context.Context, out chan<- NetworkMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.rxLoop(ctx, out)
		s.Logger.Debug("receive loop finished")
	}()
}

func (s *Socket) rxLoop(ctx context.Context, out chan<- NetworkMessage) {
	for ctx.Err() == nil {
		msg, ok, err := s.receive()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.Warn("receive failed", "err", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Socket) receive() (NetworkMessage, bool, error) {
	bufPtr := s.buffers.Get()
	defer s.buffers.Put(bufPtr)
	buf := *bufPtr

	_ = s.conn.SetReadDeadline(time.Now().Add(pollInterval))
	n, peer, err := s.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return NetworkMessage{}, false, nil
		}
		return NetworkMessage{}, false, err
	}
	s.received.Add(1)
	if n <= dns.HeaderSize {
		s.dropped.Add(1)
		s.Logger.Debug("dropping short datagram", "peer", peer.String(), "bytes", n)
		return NetworkMessage{}, false, nil
	}

	data := make([]byte, n)
	copy(data, buf[:n])
	return NetworkMessage{Buffer: data, Peer: peer}, true, nil
}

// RunTx starts the send loop. It drains in until in is closed or ctx is
// cancelled. Send failures are logged and the loop carries on.
func (s *Socket) RunTx(ctx context.Context, in <-chan NetworkMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.txLoop(ctx, in)
		s.Logger.Debug("send loop finished")
	}()
}

func (s *Socket) txLoop(ctx context.Context, in <-chan NetworkMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			s.send(msg)
		}
	}
}

func (s *Socket) send(msg NetworkMessage) {
	if len(msg.Buffer) > dns.MaxMessageSize {
		s.oversized.Add(1)
		s.Logger.Warn("sending datagram above classic DNS size",
			"peer", msg.Peer.String(), "bytes", len(msg.Buffer), "limit", dns.MaxMessageSize)
	}
	if _, err := s.conn.WriteToUDPAddrPort(msg.Buffer, msg.Peer); err != nil {
		s.sendErrs.Add(1)
		s.Logger.Error("send failed", "peer", msg.Peer.String(), "err", err)
		return
	}
	s.sent.Add(1)
}

// Counters returns a snapshot of the traffic counters.
func (s *Socket) Counters() Counters {
	return Counters{
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		Sent:      s.sent.Load(),
		SendErrs:  s.sendErrs.Load(),
		Oversized: s.oversized.Load(),
	}
}

// Close closes the socket and waits up to timeout for both loops to exit.
func (s *Socket) Close(timeout time.Duration) error {
	if s.conn == nil {
		return nil
	}
	_ = s.conn.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("transport: timeout waiting for socket loops")
	}
}
