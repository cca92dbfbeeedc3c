package server

import (
	"net/netip"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_NilAllowsAll(t *testing.T) {
	var r *RateLimiter
	assert.True(t, r.AllowAddr(netip.MustParseAddr("192.0.2.1")))
}

func TestRateLimiter_DisabledLevels(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{}, clockwork.NewFakeClock())
	ip := netip.MustParseAddr("192.0.2.1")
	for range 100 {
		assert.True(t, r.AllowAddr(ip))
	}
	assert.Zero(t, r.Tracked())
}

func TestRateLimiter_PerIP(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRateLimiter(RateLimitSettings{IPQPS: 1, IPBurst: 2}, clock)
	a := netip.MustParseAddr("192.0.2.1")
	b := netip.MustParseAddr("2001:db8::1")

	assert.True(t, r.AllowAddr(a))
	assert.True(t, r.AllowAddr(a))
	assert.False(t, r.AllowAddr(a), "burst exhausted")
	assert.True(t, r.AllowAddr(b), "other peers have their own bucket")

	clock.Advance(time.Second)
	assert.True(t, r.AllowAddr(a), "one token refilled")
	assert.Equal(t, 2, r.Tracked())
}

func TestRateLimiter_MappedAddressSharesBucket(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{IPQPS: 1, IPBurst: 1}, clockwork.NewFakeClock())
	assert.True(t, r.AllowAddr(netip.MustParseAddr("192.0.2.7")))
	assert.False(t, r.AllowAddr(netip.MustParseAddr("::ffff:192.0.2.7")))
}

func TestRateLimiter_Global(t *testing.T) {
	r := NewRateLimiter(RateLimitSettings{GlobalQPS: 1, GlobalBurst: 3}, clockwork.NewFakeClock())
	allowed := 0
	for i := range 10 {
		ip := netip.AddrFrom4([4]byte{198, 51, 100, byte(i)})
		if r.AllowAddr(ip) {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestRateLimiter_EvictsAndSweeps(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRateLimiter(RateLimitSettings{IPQPS: 10, MaxIPEntries: 2, Cleanup: time.Minute}, clock)

	r.AllowAddr(netip.MustParseAddr("192.0.2.1"))
	clock.Advance(time.Second)
	r.AllowAddr(netip.MustParseAddr("192.0.2.2"))
	clock.Advance(time.Second)
	r.AllowAddr(netip.MustParseAddr("192.0.2.3"))
	assert.Equal(t, 2, r.Tracked(), "oldest peer evicted at capacity")

	clock.Advance(2 * time.Minute)
	r.AllowAddr(netip.MustParseAddr("192.0.2.4"))
	assert.Equal(t, 1, r.Tracked(), "idle peers swept")
}

func TestFormatRateLimitsLog(t *testing.T) {
	got := FormatRateLimitsLog(RateLimitSettings{IPQPS: 50, IPBurst: 100, MaxIPEntries: 10, Cleanup: time.Minute})
	assert.Equal(t, "global=off ip=50/s(burst 100) max_ips=10 cleanup=1m0s", got)
}
