// Package session tracks handshaken clients on the server and the single
// crypto context on the client.
package session

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"

	"github.com/jroosing/dnstp/internal/crypto"
)

var (
	// ErrNotFound is returned for operations on an unknown session.
	ErrNotFound = errors.New("session not found")
	// ErrOutboxFull is returned when a session already holds the maximum
	// number of undelivered payloads.
	ErrOutboxFull = errors.New("session outbox full")
)

// DefaultMaxOutbox bounds the undelivered payloads kept per session.
const DefaultMaxOutbox = 64

// Session is the server-side state of one handshaken client.
type Session struct {
	ID          string
	Fingerprint string
	Peer        netip.AddrPort
	FirstSeen   time.Time
	LastSeen    time.Time

	key    *crypto.Key
	outbox [][]byte
}

// Info is a point-in-time copy of a session without its key.
type Info struct {
	ID          string         `json:"id"`
	Fingerprint string         `json:"fingerprint"`
	Peer        netip.AddrPort `json:"peer"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastSeen    time.Time      `json:"last_seen"`
	Pending     int            `json:"pending"`
}

func (s *Session) info() Info {
	return Info{
		ID:          s.ID,
		Fingerprint: s.Fingerprint,
		Peer:        s.Peer,
		FirstSeen:   s.FirstSeen,
		LastSeen:    s.LastSeen,
		Pending:     len(s.outbox),
	}
}

// Fingerprint returns the short stable handle for a session id. Raw ids are
// a public key plus the base domain and contain '/' and '+', so logs and URLs
// use this instead.
func Fingerprint(id string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(id))
}

// Registry maps session ids to sessions.
//
// Every method takes the lock for a short, non-blocking critical section; no
// crypto or I/O happens while it is held.
type Registry struct {
	mu            sync.Mutex
	clock         clockwork.Clock
	sessions      map[string]*Session
	byFingerprint map[string]string
	maxOutbox     int
}

// NewRegistry creates an empty registry. A nil clock means the wall clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:         clock,
		sessions:      make(map[string]*Session),
		byFingerprint: make(map[string]string),
		maxOutbox:     DefaultMaxOutbox,
	}
}

// SetMaxOutbox changes the per-session outbox bound. Values below 1 are ignored.
func (r *Registry) SetMaxOutbox(n int) {
	if n < 1 {
		return
	}
	r.mu.Lock()
	r.maxOutbox = n
	r.mu.Unlock()
}

// Add stores a new session under id, replacing any previous one.
func (r *Registry) Add(id string, key *crypto.Key, peer netip.AddrPort) Info {
	now := r.clock.Now()
	s := &Session{
		ID:          id,
		Fingerprint: Fingerprint(id),
		Peer:        peer,
		FirstSeen:   now,
		LastSeen:    now,
		key:         key,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	r.byFingerprint[s.Fingerprint] = id
	return s.info()
}

// Contains reports whether id has a session.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// BumpLastSeen marks id as active now.
func (r *Registry) BumpLastSeen(id string) error {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.LastSeen = now
	return nil
}

// SharedKey returns the symmetric key of id.
func (r *Registry) SharedKey(id string) (*crypto.Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.key, true
}

// Get returns a snapshot of id.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// Lookup returns a snapshot of the session with the given fingerprint.
func (r *Registry) Lookup(fingerprint string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byFingerprint[fingerprint]
	if !ok {
		return Info{}, false
	}
	return r.sessions[id].info(), true
}

// List returns snapshots of all sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.info())
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Info) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle removes sessions not seen for longer than maxIdle and returns them.
func (r *Registry) EvictIdle(maxIdle time.Duration) []Info {
	cutoff := r.clock.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []Info
	for id, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			evicted = append(evicted, s.info())
			delete(r.sessions, id)
			delete(r.byFingerprint, s.Fingerprint)
		}
	}
	return evicted
}

// Enqueue queues payload for delivery to the session with the given
// fingerprint on its next download poll.
func (r *Registry) Enqueue(fingerprint string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byFingerprint[fingerprint]
	if !ok {
		return ErrNotFound
	}
	s := r.sessions[id]
	if len(s.outbox) >= r.maxOutbox {
		return ErrOutboxFull
	}
	s.outbox = append(s.outbox, slices.Clone(payload))
	return nil
}

// Dequeue pops the oldest queued payload for id.
func (r *Registry) Dequeue(id string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || len(s.outbox) == 0 {
		return nil, false
	}
	p := s.outbox[0]
	s.outbox[0] = nil
	s.outbox = s.outbox[1:]
	return p, true
}
