package server

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_NilIsSafe(t *testing.T) {
	var s *Stats
	s.Record(StateHandshake, time.Millisecond)

	snap := s.Snapshot()
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.ByState)
}

func TestStats_Snapshot(t *testing.T) {
	s := NewStats(nil)
	s.Record(StateHandshake, 2*time.Millisecond)
	s.Record(StateKnownClientUpload, 4*time.Millisecond)
	s.Record(StateKnownClientUpload, 0)

	snap := s.Snapshot()
	assert.EqualValues(t, 3, snap.Total)
	assert.EqualValues(t, 1, snap.ByState["handshake"])
	assert.EqualValues(t, 2, snap.ByState["upload"])
	assert.Zero(t, snap.ByState["download"])
	assert.Len(t, snap.ByState, int(numStates))
	assert.InDelta(t, 2.0, snap.AvgLatencyMs, 0.001)
}

func TestStats_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStats(reg)
	s.Record(StateDropped, time.Microsecond)
	s.Record(StateDropped, time.Microsecond)
	s.Record(StateMalformed, time.Microsecond)

	assert.InDelta(t, 2, testutil.ToFloat64(s.requests.WithLabelValues("dropped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.requests.WithLabelValues("malformed")), 0)

	n, err := testutil.GatherAndCount(reg, "dnstp_requests_total", "dnstp_dispatch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStats_RegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStats(reg)
	assert.Panics(t, func() { NewStats(reg) })
}
