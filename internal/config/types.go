package config

import (
	"strconv"
	"strings"
	"time"
)

// WorkersMode specifies how the dispatcher worker count is determined.
type WorkersMode int

const (
	// WorkersAuto runs one dispatcher worker per available CPU.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// Duration wraps time.Duration so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	var err error
	d.Duration, err = time.ParseDuration(raw)
	return err
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig contains the DNS listener settings.
type ServerConfig struct {
	// Addresses are tried in order; the first one that binds is used.
	Addresses  []string      `toml:"addresses" json:"addresses"`
	Workers    WorkerSetting `toml:"-" json:"-"`
	WorkersRaw string        `toml:"workers" json:"workers"`
	// QueueSize bounds the channels between the socket and the dispatcher.
	QueueSize int `toml:"queue_size" json:"queue_size"`
}

// DomainConfig names the zone the tunnel answers for.
type DomainConfig struct {
	Base        string `toml:"base" json:"base"`
	KeyEndpoint string `toml:"key_endpoint" json:"key_endpoint"`
}

// SessionConfig controls the session registry.
type SessionConfig struct {
	// IdleTimeout evicts sessions not seen for this long. Zero keeps sessions forever.
	IdleTimeout     Duration `toml:"idle_timeout" json:"idle_timeout"`
	JanitorInterval Duration `toml:"janitor_interval" json:"janitor_interval"`
	MaxOutbox       int      `toml:"max_outbox" json:"max_outbox"`
}

// StoreConfig points at the SQLite upload journal. An empty path disables it.
type StoreConfig struct {
	Path string `toml:"path" json:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `toml:"level" json:"level"`
	Structured       bool              `toml:"structured" json:"structured"`
	StructuredFormat string            `toml:"structured_format" json:"structured_format"`
	IncludePID       bool              `toml:"include_pid" json:"include_pid"`
	File             string            `toml:"file" json:"file"`
	ExtraFields      map[string]string `toml:"extra_fields" json:"extra_fields,omitempty"`
}

// RateLimitConfig controls per-peer admission.
type RateLimitConfig struct {
	// GlobalQPS is the server-wide request rate (0 = disabled).
	GlobalQPS   float64 `toml:"global_qps" json:"global_qps"`
	GlobalBurst int     `toml:"global_burst" json:"global_burst"`
	// IPQPS is the per-source-address rate (0 = disabled).
	IPQPS        float64  `toml:"ip_qps" json:"ip_qps"`
	IPBurst      int      `toml:"ip_burst" json:"ip_burst"`
	MaxIPEntries int      `toml:"max_ip_entries" json:"max_ip_entries"`
	Cleanup      Duration `toml:"cleanup" json:"cleanup"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is a secret and is never returned by API endpoints.
type APIConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Host    string `toml:"host" json:"host"`
	Port    int    `toml:"port" json:"port"`
	APIKey  string `toml:"api_key" json:"-"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Domain    DomainConfig    `toml:"domain" json:"domain"`
	Session   SessionConfig   `toml:"session" json:"session"`
	Store     StoreConfig     `toml:"store" json:"store"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" json:"rate_limit"`
	API       APIConfig       `toml:"api" json:"api"`
}
