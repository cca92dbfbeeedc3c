package models

import "time"

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     time.Time        `json:"start_time"`
	GoRoutines    int              `json:"goroutines"`
	MemoryAllocMB float64          `json:"memory_alloc_mb"`
	NumCPU        int              `json:"num_cpu"`
	Process       *ProcessStats    `json:"process,omitempty"`
	Dispatcher    *DispatcherStats `json:"dispatcher,omitempty"`
	Socket        *SocketStats     `json:"socket,omitempty"`
	Sessions      int              `json:"sessions"`
	Uploads       *int64           `json:"uploads,omitempty"`
}

// ProcessStats is what the OS reports about the server process.
type ProcessStats struct {
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	NumThreads int32   `json:"num_threads"`
	NumFDs     int32   `json:"num_fds,omitempty"`
}

// DispatcherStats counts handled messages per dispatcher state.
type DispatcherStats struct {
	Total        uint64            `json:"total"`
	ByState      map[string]uint64 `json:"by_state"`
	AvgLatencyMs float64           `json:"avg_latency_ms"`
}

// SocketStats mirrors the UDP socket counters.
type SocketStats struct {
	Received   uint64 `json:"received"`
	Dropped    uint64 `json:"dropped"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
	Oversized  uint64 `json:"oversized"`
}
