package protocol

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jroosing/dnstp/internal/crypto"
	"github.com/jroosing/dnstp/internal/dns"
	"github.com/jroosing/dnstp/internal/session"
)

func request(id uint16, questions ...dns.Question) dns.Message {
	return dns.Message{
		Header: dns.Header{
			ID:        id,
			Direction: dns.DirectionRequest,
			Opcode:    dns.OpcodeQuery,
		},
		Questions: questions,
	}
}

func aQuestion(name string) dns.Question {
	return dns.Question{Name: name, Type: dns.TypeA, Class: dns.ClassInternet}
}

// NewHandshakeRequest asks for the key endpoint and announces the client's
// public key as the second question.
func NewHandshakeRequest(id uint16, d Domain, cc *session.ClientContext) dns.Message {
	return request(id,
		aQuestion(d.FQKeyEndpoint()),
		aQuestion(cc.PublicKeyDomain(d.BaseDomain)),
	)
}

// ConsumeHandshakeResponse completes cc from the server's CNAME answer.
func ConsumeHandshakeResponse(d Domain, cc *session.ClientContext, resp dns.Message) error {
	if len(resp.Answers) != 2 {
		return fmt.Errorf("handshake response: expected 2 answers, got %d (rcode %s)",
			len(resp.Answers), resp.Header.RCode)
	}
	keyAnswer := resp.Answers[1]
	if keyAnswer.Type != dns.TypeCNAME {
		return fmt.Errorf("handshake response: second answer is %s, not CNAME", keyAnswer.Type)
	}
	name, err := dns.DecodeCNAME(keyAnswer.RData)
	if err != nil {
		return fmt.Errorf("handshake response: %w", err)
	}
	trimmed, _ := d.StripBaseDomain(name)
	return cc.Complete(crypto.FattenPublicKey(trimmed))
}

// NewUploadRequest encrypts value (and key, when non-empty) under a fresh
// nonce and lays them out as questions after the client id.
func NewUploadRequest(rand io.Reader, id uint16, d Domain, cc *session.ClientContext, key, value string) (dns.Message, error) {
	sym, ok := cc.Key()
	if !ok {
		return dns.Message{}, ErrHandshakeIncomplete
	}
	nonce, err := crypto.GenerateNonce(rand)
	if err != nil {
		return dns.Message{}, err
	}

	questions := []dns.Question{aQuestion(cc.PublicKeyDomain(d.BaseDomain))}
	if key != "" {
		label, err := sealLabel(sym, nonce, key)
		if err != nil {
			return dns.Message{}, fmt.Errorf("key: %w", err)
		}
		questions = append(questions, aQuestion(label))
	}
	label, err := sealLabel(sym, nonce, value)
	if err != nil {
		return dns.Message{}, fmt.Errorf("value: %w", err)
	}
	questions = append(questions,
		aQuestion(label),
		aQuestion(base64.StdEncoding.EncodeToString(nonce)),
	)
	return request(id, questions...), nil
}

func sealLabel(key *crypto.Key, nonce []byte, text string) (string, error) {
	ct, err := crypto.Encrypt(key, nonce, []byte(text))
	if err != nil {
		return "", err
	}
	label := base64.StdEncoding.EncodeToString(ct)
	if n := len(dns.EncodeLabel(label)); n > dns.MaxLabelLength {
		return "", fmt.Errorf("%w: %d encoded bytes", ErrPayloadTooLarge, n)
	}
	return label, nil
}

// NewDownloadRequest polls the server for a queued payload.
func NewDownloadRequest(id uint16, d Domain, cc *session.ClientContext) dns.Message {
	return request(id,
		aQuestion(cc.PublicKeyDomain(d.BaseDomain)),
		dns.Question{Name: d.BaseDomain, Type: dns.TypeCNAME, Class: dns.ClassInternet},
	)
}

// ConsumeDownloadResponse decrypts a download answer. ok is false when the
// server had nothing queued.
func ConsumeDownloadResponse(cc *session.ClientContext, resp dns.Message) (payload []byte, ok bool, err error) {
	if resp.Header.RCode != dns.RCodeNoError {
		return nil, false, fmt.Errorf("download response: rcode %s", resp.Header.RCode)
	}
	if len(resp.Answers) == 0 {
		return nil, false, nil
	}
	if len(resp.Answers) != 2 {
		return nil, false, fmt.Errorf("download response: expected 2 answers, got %d", len(resp.Answers))
	}
	sym, haveKey := cc.Key()
	if !haveKey {
		return nil, false, ErrHandshakeIncomplete
	}
	nonce, err := base64.StdEncoding.DecodeString(string(resp.Answers[0].RData.Bytes()))
	if err != nil {
		return nil, false, fmt.Errorf("download nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(string(resp.Answers[1].RData.Bytes()))
	if err != nil {
		return nil, false, fmt.Errorf("download payload: %w", err)
	}
	pt, err := crypto.Decrypt(sym, nonce, ct)
	if err != nil {
		return nil, false, err
	}
	return pt, true, nil
}
