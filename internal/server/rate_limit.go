package server

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// This file implements pre-parse admission control.
//
// Two token buckets are consulted for every datagram:
//   - Global: server-wide request rate
//   - IP: per source address rate
//
// A zero rate disables the corresponding level.

// RateLimitSettings contains rate limiting configuration values.
type RateLimitSettings struct {
	GlobalQPS    float64
	GlobalBurst  int
	IPQPS        float64
	IPBurst      int
	MaxIPEntries int
	Cleanup      time.Duration
}

// RateLimiter combines a global limiter with per-IP limiters.
type RateLimiter struct {
	clock  clockwork.Clock
	global *rate.Limiter

	mu         sync.Mutex
	peers      map[netip.Addr]*peerLimiter
	ipLimit    rate.Limit
	ipBurst    int
	maxEntries int
	cleanup    time.Duration
	lastSweep  time.Time
}

type peerLimiter struct {
	rl       *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter from s. A nil clock uses the real one.
func NewRateLimiter(s RateLimitSettings, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &RateLimiter{
		clock:      clock,
		peers:      make(map[netip.Addr]*peerLimiter),
		maxEntries: s.MaxIPEntries,
		cleanup:    s.Cleanup,
		lastSweep:  clock.Now(),
	}
	if s.GlobalQPS > 0 {
		r.global = rate.NewLimiter(rate.Limit(s.GlobalQPS), max(s.GlobalBurst, 1))
	}
	if s.IPQPS > 0 {
		r.ipLimit = rate.Limit(s.IPQPS)
		r.ipBurst = max(s.IPBurst, 1)
	}
	if r.maxEntries <= 0 {
		r.maxEntries = 65536
	}
	if r.cleanup <= 0 {
		r.cleanup = time.Minute
	}
	return r
}

// AllowAddr reports whether a datagram from ip should be admitted.
func (r *RateLimiter) AllowAddr(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	now := r.clock.Now()
	if r.global != nil && !r.global.AllowN(now, 1) {
		return false
	}
	if r.ipLimit == 0 {
		return true
	}
	return r.peer(ip.Unmap(), now).AllowN(now, 1)
}

func (r *RateLimiter) peer(ip netip.Addr, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastSweep) >= r.cleanup {
		r.sweepLocked(now)
	}
	if p, ok := r.peers[ip]; ok {
		p.lastSeen = now
		return p.rl
	}
	if len(r.peers) >= r.maxEntries {
		r.evictOldestLocked()
	}
	p := &peerLimiter{rl: rate.NewLimiter(r.ipLimit, r.ipBurst), lastSeen: now}
	r.peers[ip] = p
	return p.rl
}

// sweepLocked drops peers idle for longer than the cleanup interval.
func (r *RateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-r.cleanup)
	for ip, p := range r.peers {
		if p.lastSeen.Before(cutoff) {
			delete(r.peers, ip)
		}
	}
	r.lastSweep = now
}

func (r *RateLimiter) evictOldestLocked() {
	var oldest netip.Addr
	var oldestSeen time.Time
	first := true
	for ip, p := range r.peers {
		if first || p.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen, first = ip, p.lastSeen, false
		}
	}
	if !first {
		delete(r.peers, oldest)
	}
}

// Tracked returns the number of peers with a live limiter.
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// FormatRateLimitsLog renders the settings for the startup log line.
func FormatRateLimitsLog(s RateLimitSettings) string {
	return fmt.Sprintf("global=%s ip=%s max_ips=%d cleanup=%s",
		formatQPS(s.GlobalQPS, s.GlobalBurst), formatQPS(s.IPQPS, s.IPBurst), s.MaxIPEntries, s.Cleanup)
}

func formatQPS(qps float64, burst int) string {
	if qps <= 0 {
		return "off"
	}
	return fmt.Sprintf("%g/s(burst %d)", qps, burst)
}
