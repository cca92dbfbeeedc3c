package protocol

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/netip"
	"unicode/utf8"

	"github.com/jroosing/dnstp/internal/crypto"
	"github.com/jroosing/dnstp/internal/dns"
)

// handshakeAddr is the inert address returned for the key endpoint question.
var handshakeAddr = netip.AddrFrom4([4]byte{127, 0, 0, 1})

// HandshakeResult is a successfully decoded handshake.
type HandshakeResult struct {
	// ClientID is the second question's name: the client's trimmed public
	// key plus the base domain. It identifies the session from now on.
	ClientID     string
	ClientPublic string
	ServerPublic string
	Key          *crypto.Key
	Response     dns.Message
}

// DecodeHandshake validates a handshake request, runs the server half of
// the key exchange with a fresh key pair and builds the response.
func DecodeHandshake(rand io.Reader, d Domain, req dns.Message) (HandshakeResult, error) {
	if len(req.Questions) != 2 {
		return HandshakeResult{}, &KeyDecodeError{Kind: QuestionCount, Count: len(req.Questions)}
	}
	if t := req.Questions[0].Type; t != dns.TypeA {
		return HandshakeResult{}, &KeyDecodeError{Kind: FirstQuestionNotA, QType: t}
	}
	keyQuestion := req.Questions[1]
	if t := keyQuestion.Type; t != dns.TypeA {
		return HandshakeResult{}, &KeyDecodeError{Kind: SecondQuestionNotA, QType: t}
	}

	trimmed, _ := d.StripBaseDomain(keyQuestion.Name)
	clientPublic := crypto.FattenPublicKey(trimmed)

	serverPriv, serverPublic, err := crypto.GenerateKeyPair(rand)
	if err != nil {
		return HandshakeResult{}, &KeyDecodeError{Kind: SharedSecretDerivation, Err: err}
	}
	secret, err := crypto.DeriveSharedSecret(serverPriv, clientPublic)
	if err != nil {
		return HandshakeResult{}, &KeyDecodeError{Kind: SharedSecretDerivation, Err: err}
	}
	key, err := crypto.DeriveSymmetricKey(secret)
	if err != nil {
		return HandshakeResult{}, &KeyDecodeError{Kind: SharedSecretDerivation, Err: err}
	}

	resp, err := handshakeResponse(d, req, serverPublic)
	if err != nil {
		return HandshakeResult{}, err
	}
	return HandshakeResult{
		ClientID:     keyQuestion.Name,
		ClientPublic: clientPublic,
		ServerPublic: serverPublic,
		Key:          key,
		Response:     resp,
	}, nil
}

// handshakeResponse answers the key endpoint with an inert A record and the
// client's key question with a CNAME carrying the server's trimmed key.
func handshakeResponse(d Domain, req dns.Message, serverPublic string) (dns.Message, error) {
	resp := dns.EmptyResponse(req)

	a, _ := dns.NewARData(handshakeAddr)
	first, err := dns.RecordFromQuestion(req.Questions[0], dns.HeaderSize, a)
	if err != nil {
		return dns.Message{}, err
	}

	secondOffset, err := dns.QuestionOffset(req.Questions, 1)
	if err != nil {
		return dns.Message{}, err
	}
	cname, err := dns.NewCNAMERData(d.AppendBaseDomain(crypto.TrimPublicKey(serverPublic)))
	if err != nil {
		return dns.Message{}, err
	}
	second, err := dns.NewResourceRecord(secondOffset, dns.TypeCNAME, dns.ClassInternet, 0, cname)
	if err != nil {
		return dns.Message{}, err
	}

	resp.Answers = []dns.ResourceRecord{first, second}
	resp.Header.ANCount = 2
	return resp, nil
}

// Upload is a decrypted upload request.
type Upload struct {
	ClientID string
	Key      string
	HasKey   bool
	Value    string
}

// DecodeUpload decrypts an upload request with the session key.
//
// The question layout is [client_id, value, nonce] or
// [client_id, key, value, nonce]; value, key and nonce are base64 text and
// key and value share the nonce.
func DecodeUpload(key *crypto.Key, req dns.Message) (Upload, error) {
	qs := req.Questions
	up := Upload{}
	var encKey, encValue, encNonce string
	switch len(qs) {
	case 3:
		encValue, encNonce = qs[1].Name, qs[2].Name
	case 4:
		up.HasKey = true
		encKey, encValue, encNonce = qs[1].Name, qs[2].Name, qs[3].Name
	default:
		return Upload{}, &RequestError{Kind: WrongNumberOfQuestions, Count: len(qs)}
	}
	up.ClientID = qs[0].Name

	nonce, err := base64.StdEncoding.DecodeString(encNonce)
	if err != nil {
		return Upload{}, &RequestError{Kind: CryptoFailure, Err: fmt.Errorf("nonce: %w", err)}
	}
	if up.Value, err = openText(key, nonce, encValue); err != nil {
		return Upload{}, &RequestError{Kind: CryptoFailure, Err: fmt.Errorf("value: %w", err)}
	}
	if up.HasKey {
		if up.Key, err = openText(key, nonce, encKey); err != nil {
			return Upload{}, &RequestError{Kind: CryptoFailure, Err: fmt.Errorf("key: %w", err)}
		}
	}
	return up, nil
}

func openText(key *crypto.Key, nonce []byte, b64 string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", err
	}
	pt, err := crypto.Decrypt(key, nonce, ct)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(pt) {
		return "", fmt.Errorf("%w: plaintext is not UTF-8", crypto.ErrCrypto)
	}
	return string(pt), nil
}

// IsDownloadRequest reports whether req is shaped like a download poll: the
// second question asks for a CNAME.
func IsDownloadRequest(req dns.Message) bool {
	return len(req.Questions) >= 2 && req.Questions[1].Type == dns.TypeCNAME
}

// ValidateDownload checks the [client_id(A), base_domain(CNAME)] layout.
func ValidateDownload(req dns.Message) error {
	if len(req.Questions) != 2 {
		return &RequestError{Kind: WrongNumberOfQuestions, Count: len(req.Questions)}
	}
	return nil
}

// NewDownloadResponse answers a download poll. With a payload, the answers
// are two TXT records: base64 nonce, then base64 ciphertext. A nil payload
// yields an empty NoError response.
func NewDownloadResponse(rand io.Reader, key *crypto.Key, req dns.Message, payload []byte) (dns.Message, error) {
	resp := dns.EmptyResponse(req)
	if payload == nil {
		return resp, nil
	}

	nonce, err := crypto.GenerateNonce(rand)
	if err != nil {
		return dns.Message{}, err
	}
	ct, err := crypto.Encrypt(key, nonce, payload)
	if err != nil {
		return dns.Message{}, err
	}
	nonceRR, err := dns.NewResourceRecord(dns.HeaderSize, dns.TypeTXT, dns.ClassInternet, 0,
		dns.TXTRData(base64.StdEncoding.EncodeToString(nonce)))
	if err != nil {
		return dns.Message{}, err
	}
	dataRR, err := dns.NewResourceRecord(dns.HeaderSize, dns.TypeTXT, dns.ClassInternet, 0,
		dns.TXTRData(base64.StdEncoding.EncodeToString(ct)))
	if err != nil {
		return dns.Message{}, err
	}
	resp.Answers = []dns.ResourceRecord{nonceRR, dataRR}
	resp.Header.ANCount = 2
	return resp, nil
}
