// Package server classifies tunnelled DNS requests, answers them, and runs the
// dnstpd process: socket, dispatcher workers, session janitor and API.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jroosing/dnstp/internal/crypto"
	"github.com/jroosing/dnstp/internal/dns"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/transport"
)

// State is the classification of one inbound message.
type State int

const (
	StateNotOurDomain State = iota
	StateHandshake
	StateKnownClientUpload
	StateKnownClientDownload
	StateUnknownClient
	// StateMalformed covers messages that failed to decode.
	StateMalformed
	// StateDropped covers messages refused by admission control.
	StateDropped

	numStates
)

func (s State) String() string {
	switch s {
	case StateNotOurDomain:
		return "not_our_domain"
	case StateHandshake:
		return "handshake"
	case StateKnownClientUpload:
		return "upload"
	case StateKnownClientDownload:
		return "download"
	case StateUnknownClient:
		return "unknown_client"
	case StateMalformed:
		return "malformed"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// UploadSink receives established sessions and decrypted uploads.
type UploadSink interface {
	RecordSession(ctx context.Context, info session.Info) error
	RecordUpload(ctx context.Context, info session.Info, up protocol.Upload) error
}

// Result is the outcome of handling one message.
type Result struct {
	State State
	// Response is the encoded reply, nil when nothing is sent back.
	Response []byte
	// Upload is set for a successfully decrypted upload.
	Upload *protocol.Upload
	// Err is the protocol, crypto or decode error behind the outcome, if any.
	Err error
}

// Dispatcher answers handshake, upload and download requests for one base
// domain against a session registry.
type Dispatcher struct {
	Logger   *slog.Logger
	Domain   protocol.Domain
	Registry *session.Registry
	Sink     UploadSink   // optional
	Limiter  *RateLimiter // optional
	Stats    *Stats       // optional
	Rand     io.Reader    // defaults to crypto/rand
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dispatcher) rand() io.Reader {
	if d.Rand == nil {
		return rand.Reader
	}
	return d.Rand
}

// Run handles messages from in until ctx is cancelled or in is closed,
// forwarding replies to out.
func (d *Dispatcher) Run(ctx context.Context, in <-chan transport.NetworkMessage, out chan<- transport.NetworkMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			res := d.Handle(ctx, msg)
			if res.Response == nil {
				continue
			}
			select {
			case out <- transport.NetworkMessage{Buffer: res.Response, Peer: msg.Peer}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Handle classifies msg and builds the reply.
//
// Transitions, in order: admission control, decode, base domain check, key
// endpoint (handshake), session lookup, then upload or download by shape.
func (d *Dispatcher) Handle(ctx context.Context, msg transport.NetworkMessage) Result {
	start := time.Now()
	res := d.handle(ctx, msg)
	d.Stats.Record(res.State, time.Since(start))
	return res
}

func (d *Dispatcher) handle(ctx context.Context, msg transport.NetworkMessage) Result {
	log := d.logger().With("peer", msg.Peer.String())

	if !d.Limiter.AllowAddr(msg.Peer.Addr()) {
		return Result{State: StateDropped}
	}

	req, err := dns.ParseRequestBounded(msg.Buffer, msg.Peer)
	if err != nil {
		logDecodeError(log, err)
		return Result{State: StateMalformed, Err: err}
	}
	d.logRequest(ctx, log, req, len(msg.Buffer))

	if !d.Domain.AnyUnderBaseDomain(req.Questions) {
		return d.reply(log, Result{State: StateNotOurDomain}, dns.NotImplementedResponse(req))
	}

	if d.Domain.IsKeyEndpoint(req.Questions[0].Name) {
		return d.handshake(ctx, log, req)
	}

	clientID := req.Questions[0].Name
	key, ok := d.Registry.SharedKey(clientID)
	if !ok {
		err := &protocol.RequestError{Kind: protocol.NoHandshake}
		log.Warn("request from unknown client", "session", session.Fingerprint(clientID))
		log.Debug("unknown client id", "client", clientID)
		return d.reply(log, Result{State: StateUnknownClient, Err: err}, dns.ProtocolErrorResponse(req))
	}
	if err := d.Registry.BumpLastSeen(clientID); err != nil {
		log.Warn("failed to bump last seen time", "err", err)
	}
	log = log.With("session", session.Fingerprint(clientID))

	switch n := len(req.Questions); {
	case n == 3 || n == 4:
		return d.upload(ctx, log, req, key)
	case protocol.IsDownloadRequest(req):
		return d.download(log, req, key)
	default:
		// Neither layout matches; counted with uploads.
		err := &protocol.RequestError{Kind: protocol.WrongNumberOfQuestions, Count: n}
		log.Warn("rejected request", "err", err)
		return d.reply(log, Result{State: StateKnownClientUpload, Err: err}, dns.ProtocolErrorResponse(req))
	}
}

func (d *Dispatcher) handshake(ctx context.Context, log *slog.Logger, req dns.Message) Result {
	hs, err := protocol.DecodeHandshake(d.rand(), d.Domain, req)
	if err != nil {
		var kde *protocol.KeyDecodeError
		if !errors.As(err, &kde) {
			log.Error("failed to build handshake response", "err", err)
			return Result{State: StateHandshake, Err: err}
		}
		log.Warn("rejected handshake", "err", err)
		return d.reply(log, Result{State: StateHandshake, Err: err}, dns.ProtocolErrorResponse(req))
	}

	info := d.Registry.Add(hs.ClientID, hs.Key, req.Peer)
	log.Info("session established", "session", info.Fingerprint)
	if d.Sink != nil {
		if err := d.Sink.RecordSession(ctx, info); err != nil {
			log.Error("failed to record session", "session", info.Fingerprint, "err", err)
		}
	}
	return d.reply(log, Result{State: StateHandshake}, hs.Response)
}

func (d *Dispatcher) upload(ctx context.Context, log *slog.Logger, req dns.Message, key *crypto.Key) Result {
	up, err := protocol.DecodeUpload(key, req)
	if err != nil {
		// No plaintext and no reply on a crypto failure.
		log.Warn("discarded upload", "err", err)
		return Result{State: StateKnownClientUpload, Err: err}
	}
	log.Info("received upload", "has_key", up.HasKey, "bytes", len(up.Value))

	if d.Sink != nil {
		if info, ok := d.Registry.Get(up.ClientID); ok {
			if err := d.Sink.RecordUpload(ctx, info, up); err != nil {
				log.Error("failed to record upload", "err", err)
			}
		}
	}
	return d.reply(log, Result{State: StateKnownClientUpload, Upload: &up}, dns.EmptyResponse(req))
}

func (d *Dispatcher) download(log *slog.Logger, req dns.Message, key *crypto.Key) Result {
	if err := protocol.ValidateDownload(req); err != nil {
		log.Warn("rejected download", "err", err)
		return d.reply(log, Result{State: StateKnownClientDownload, Err: err}, dns.ProtocolErrorResponse(req))
	}
	payload, _ := d.Registry.Dequeue(req.Questions[0].Name)
	resp, err := protocol.NewDownloadResponse(d.rand(), key, req, payload)
	if err != nil {
		log.Error("failed to seal download", "err", err)
		return Result{State: StateKnownClientDownload, Err: err}
	}
	log.Info("served download", "pending", payload != nil, "bytes", len(payload))
	return d.reply(log, Result{State: StateKnownClientDownload}, resp)
}

// reply encodes resp into res. An encoding failure leaves the result without a
// response.
func (d *Dispatcher) reply(log *slog.Logger, res Result, resp dns.Message) Result {
	b, err := resp.Marshal()
	if err != nil {
		log.Error("failed to encode response", "state", res.State, "err", err)
		if res.Err == nil {
			res.Err = err
		}
		return res
	}
	res.Response = b
	return res
}

// logDecodeError logs a malformed message with the raw value that failed.
func logDecodeError(log *slog.Logger, err error) {
	var (
		herr *dns.HeaderParseError
		qerr *dns.QuestionParseError
		rerr *dns.RecordParseError
	)
	switch {
	case errors.As(err, &herr):
		log.Warn("malformed header", "raw", herr.Raw, "err", err)
	case errors.As(err, &qerr):
		log.Warn("malformed question", "raw", qerr.Raw, "err", err)
	case errors.As(err, &rerr):
		log.Warn("malformed record", "raw", rerr.Raw, "err", err)
	default:
		log.Warn("malformed message", "err", err)
	}
}

// logRequest logs request details at debug level.
func (d *Dispatcher) logRequest(ctx context.Context, log *slog.Logger, req dns.Message, n int) {
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	qname, qtype := "<no-question>", dns.QType(0)
	if len(req.Questions) > 0 {
		qname, qtype = req.Questions[0].Name, req.Questions[0].Type
	}
	log.Debug("dns request",
		"id", int(req.Header.ID),
		"questions", len(req.Questions),
		"qname", qname,
		"qtype", qtype.String(),
		"bytes", n,
	)
}
