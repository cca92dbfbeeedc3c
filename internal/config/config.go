// Package config provides configuration types, loading and validation for dnstp.
//
// Configuration is read from a TOML file, then overridden by DNSTP_* environment
// variables, then by command-line flags in cmd/dnstpd. Validate normalises the
// result and fills in defaults.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DNSTP_CONFIG"

// Defaults applied by Default and Validate.
const (
	DefaultListenAddress   = "0.0.0.0:1053"
	DefaultKeyEndpoint     = "static"
	DefaultQueueSize       = 1024
	DefaultMaxOutbox       = 64
	DefaultJanitorInterval = 30 * time.Second
	DefaultAPIPort         = 8080
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addresses:  []string{DefaultListenAddress},
			WorkersRaw: "auto",
			QueueSize:  DefaultQueueSize,
		},
		Domain: DomainConfig{KeyEndpoint: DefaultKeyEndpoint},
		Session: SessionConfig{
			JanitorInterval: Duration{DefaultJanitorInterval},
			MaxOutbox:       DefaultMaxOutbox,
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		RateLimit: RateLimitConfig{
			MaxIPEntries: 65536,
			Cleanup:      Duration{time.Minute},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: DefaultAPIPort,
		},
	}
}

// ResolveConfigPath returns the flag value if set, otherwise DNSTP_CONFIG.
func ResolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load reads the TOML file at path on top of Default and applies environment
// overrides. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("could not load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("DNSTP_ADDRESSES")); v != "" {
		cfg.Server.Addresses = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_BASE_DOMAIN")); v != "" {
		cfg.Domain.Base = v
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_KEY_ENDPOINT")); v != "" {
		cfg.Domain.KeyEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_WORKERS")); v != "" {
		cfg.Server.WorkersRaw = v
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_STORE_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_SESSION_IDLE_TIMEOUT")); v != "" {
		if err := cfg.Session.IdleTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("DNSTP_SESSION_IDLE_TIMEOUT: %w", err)
		}
	}
	if v, ok := os.LookupEnv("DNSTP_API_ENABLED"); ok {
		cfg.API.Enabled = envBool(v, cfg.API.Enabled)
	}
	if v := strings.TrimSpace(os.Getenv("DNSTP_API_KEY")); v != "" {
		cfg.API.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	// Listener
	if len(cfg.Server.Addresses) == 0 {
		cfg.Server.Addresses = []string{DefaultListenAddress}
	}
	if _, err := cfg.Server.ListenAddrs(); err != nil {
		return err
	}
	if cfg.Server.QueueSize <= 0 {
		cfg.Server.QueueSize = DefaultQueueSize
	}
	workers, err := parseWorkers(cfg.Server.WorkersRaw)
	if err != nil {
		return err
	}
	cfg.Server.Workers = workers

	// Domain
	cfg.Domain.Base = strings.Trim(strings.ToLower(strings.TrimSpace(cfg.Domain.Base)), ".")
	if cfg.Domain.Base == "" {
		return errors.New("domain.base is required")
	}
	cfg.Domain.KeyEndpoint = strings.Trim(strings.TrimSpace(cfg.Domain.KeyEndpoint), ".")
	if cfg.Domain.KeyEndpoint == "" {
		cfg.Domain.KeyEndpoint = DefaultKeyEndpoint
	}

	// Sessions
	if cfg.Session.IdleTimeout.Duration < 0 {
		return errors.New("session.idle_timeout must not be negative")
	}
	if cfg.Session.JanitorInterval.Duration <= 0 {
		cfg.Session.JanitorInterval = Duration{DefaultJanitorInterval}
	}
	if cfg.Session.MaxOutbox <= 0 {
		cfg.Session.MaxOutbox = DefaultMaxOutbox
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Rate limiting
	if cfg.RateLimit.GlobalQPS < 0 || cfg.RateLimit.IPQPS < 0 {
		return errors.New("rate_limit qps values must not be negative")
	}
	if cfg.RateLimit.GlobalQPS > 0 && cfg.RateLimit.GlobalBurst <= 0 {
		cfg.RateLimit.GlobalBurst = int(cfg.RateLimit.GlobalQPS)
	}
	if cfg.RateLimit.IPQPS > 0 && cfg.RateLimit.IPBurst <= 0 {
		cfg.RateLimit.IPBurst = int(cfg.RateLimit.IPQPS)
	}
	if cfg.RateLimit.MaxIPEntries <= 0 {
		cfg.RateLimit.MaxIPEntries = 65536
	}
	if cfg.RateLimit.Cleanup.Duration <= 0 {
		cfg.RateLimit.Cleanup = Duration{time.Minute}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}

// ListenAddrs parses the configured listen addresses.
func (s ServerConfig) ListenAddrs() ([]netip.AddrPort, error) {
	out := make([]netip.AddrPort, 0, len(s.Addresses))
	for _, raw := range s.Addresses {
		ap, err := netip.ParseAddrPort(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("server.addresses: %w", err)
		}
		out = append(out, ap)
	}
	return out, nil
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) (WorkerSetting, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return WorkerSetting{}, fmt.Errorf("server.workers must be \"auto\" or a positive integer, got %q", raw)
	}
	return WorkerSetting{Mode: WorkersFixed, Value: n}, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
