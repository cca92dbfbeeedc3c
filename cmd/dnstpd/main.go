package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jroosing/dnstp/internal/config"
	"github.com/jroosing/dnstp/internal/logging"
	"github.com/jroosing/dnstp/internal/server"
)

// addressList collects repeated -address flags.
type addressList []string

func (a *addressList) String() string { return strings.Join(*a, ",") }

func (a *addressList) Set(v string) error {
	*a = append(*a, v)
	return nil
}

func main() {
	var addresses addressList
	var (
		configPath  = flag.String("config", "", "Path to TOML configuration file (or set DNSTP_CONFIG)")
		baseDomain  = flag.String("base-domain", "", "Override the base domain the tunnel answers for")
		keyEndpoint = flag.String("key-endpoint", "", "Override the key exchange sub-domain")
		storePath   = flag.String("store", "", "Override the upload journal path")
		jsonLogs    = flag.Bool("json-logs", false, "Enable JSON structured logging")
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Var(&addresses, "address", "Listen address, tried in order (repeatable)")
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if len(addresses) > 0 {
		cfg.Server.Addresses = addresses
	}
	if *baseDomain != "" {
		cfg.Domain.Base = *baseDomain
	}
	if *keyEndpoint != "" {
		cfg.Domain.KeyEndpoint = *keyEndpoint
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if *debug {
		cfg.Logging.Level = "DEBUG"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := logging.Open(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
		File:             cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}

	logger.Info("dnstpd starting",
		"addresses", cfg.Server.Addresses,
		"base_domain", cfg.Domain.Base,
		"workers", cfg.Server.Workers.String(),
	)

	runner := server.NewRunner(logger)
	err = runner.Run(cfg)
	_ = closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}
