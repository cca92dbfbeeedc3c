package server

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts dispatcher outcomes per State.
// All methods are safe for concurrent use.
type Stats struct {
	byState   [numStates]atomic.Uint64
	total     atomic.Uint64
	latencyNs atomic.Uint64

	requests *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewStats creates a collector and registers its Prometheus metrics with reg.
// A nil reg keeps the metrics unregistered.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dnstp",
				Name:      "requests_total",
				Help:      "DNS messages handled by the dispatcher, by outcome.",
			},
			[]string{"state"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dnstp",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent classifying and answering one message.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(s.requests, s.latency)
	}
	return s
}

// Record counts one handled message.
func (s *Stats) Record(state State, elapsed time.Duration) {
	if s == nil {
		return
	}
	if state >= 0 && state < numStates {
		s.byState[state].Add(1)
	}
	s.total.Add(1)
	if elapsed > 0 {
		s.latencyNs.Add(uint64(elapsed))
	}
	s.requests.WithLabelValues(state.String()).Inc()
	s.latency.Observe(elapsed.Seconds())
}

// StatsSnapshot is a point-in-time copy of the dispatcher counters.
type StatsSnapshot struct {
	Total        uint64            `json:"total"`
	ByState      map[string]uint64 `json:"by_state"`
	AvgLatencyMs float64           `json:"avg_latency_ms"`
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{ByState: make(map[string]uint64, numStates)}
	if s == nil {
		return snap
	}
	snap.Total = s.total.Load()
	for st := State(0); st < numStates; st++ {
		snap.ByState[st.String()] = s.byState[st].Load()
	}
	if snap.Total > 0 {
		snap.AvgLatencyMs = float64(s.latencyNs.Load()) / float64(snap.Total) / 1e6
	}
	return snap
}
