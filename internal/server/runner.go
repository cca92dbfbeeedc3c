package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/jroosing/dnstp/internal/api"
	"github.com/jroosing/dnstp/internal/api/models"
	"github.com/jroosing/dnstp/internal/config"
	"github.com/jroosing/dnstp/internal/protocol"
	"github.com/jroosing/dnstp/internal/session"
	"github.com/jroosing/dnstp/internal/store"
	"github.com/jroosing/dnstp/internal/transport"
)

const stopTimeout = 5 * time.Second

// Runner orchestrates the dnstpd startup, configuration, and shutdown.
type Runner struct {
	logger  *slog.Logger
	onReady func(addr netip.AddrPort)
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// SetReadyHook registers fn to be called with the bound DNS address once the
// socket is up and the workers are running.
func (r *Runner) SetReadyHook(fn func(addr netip.AddrPort)) {
	r.onReady = fn
}

// Run starts the server and blocks until SIGINT or SIGTERM.
//
// Server lifecycle:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Bind the UDP socket to the first usable address
//  3. Open the upload journal (if configured)
//  4. Start receive/send loops, dispatcher workers, janitor and API
//  5. Wait for shutdown signal (SIGINT/SIGTERM)
//  6. Close the socket with a timeout
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the server and blocks until ctx is cancelled or a
// component fails. A bind failure is returned before anything else starts.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	workers := r.configureRuntime(cfg)

	addrs, err := cfg.Server.ListenAddrs()
	if err != nil {
		return err
	}
	sock := transport.NewSocket(r.logger, addrs...)
	if err := sock.Bind(ctx); err != nil {
		return fmt.Errorf("bind dns socket: %w", err)
	}
	defer func() {
		if err := sock.Close(stopTimeout); err != nil {
			r.logger.Warn("socket shutdown", "err", err)
		}
	}()

	registry := session.NewRegistry(nil)
	registry.SetMaxOutbox(cfg.Session.MaxOutbox)

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open upload journal: %w", err)
		}
		defer st.Close()
		r.logger.Info("upload journal opened", "path", cfg.Store.Path)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stats := NewStats(promReg)

	rl := RateLimitSettings{
		GlobalQPS:    cfg.RateLimit.GlobalQPS,
		GlobalBurst:  cfg.RateLimit.GlobalBurst,
		IPQPS:        cfg.RateLimit.IPQPS,
		IPBurst:      cfg.RateLimit.IPBurst,
		MaxIPEntries: cfg.RateLimit.MaxIPEntries,
		Cleanup:      cfg.RateLimit.Cleanup.Duration,
	}

	d := &Dispatcher{
		Logger:   r.logger,
		Domain:   protocol.NewDomain(cfg.Domain.Base, cfg.Domain.KeyEndpoint),
		Registry: registry,
		Limiter:  NewRateLimiter(rl, nil),
		Stats:    stats,
	}
	if st != nil {
		d.Sink = st
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(cfg, api.Deps{Registry: registry, Store: st, Gatherer: promReg}, r.logger)
		apiServer.Handler().SetDispatcherStatsFunc(func() models.DispatcherStats {
			snap := stats.Snapshot()
			return models.DispatcherStats{Total: snap.Total, ByState: snap.ByState, AvgLatencyMs: snap.AvgLatencyMs}
		})
		apiServer.Handler().SetSocketStatsFunc(func() models.SocketStats {
			c := sock.Counters()
			return models.SocketStats{
				Received:   c.Received,
				Dropped:    c.Dropped,
				Sent:       c.Sent,
				SendErrors: c.SendErrs,
				Oversized:  c.Oversized,
			}
		})
	}

	r.logStartup(cfg, sock.LocalAddr(), workers)
	r.logger.Info("rate limits", "limits", FormatRateLimitsLog(rl))

	g, gctx := errgroup.WithContext(ctx)

	in := make(chan transport.NetworkMessage, cfg.Server.QueueSize)
	out := make(chan transport.NetworkMessage, cfg.Server.QueueSize)
	sock.RunRx(gctx, in)
	sock.RunTx(gctx, out)

	for range workers {
		g.Go(func() error {
			d.Run(gctx, in, out)
			return nil
		})
	}
	if cfg.Session.IdleTimeout.Duration > 0 {
		g.Go(func() error {
			r.runJanitor(gctx, registry, cfg.Session.IdleTimeout.Duration, cfg.Session.JanitorInterval.Duration)
			return nil
		})
	}
	if apiServer != nil {
		g.Go(func() error {
			return apiServer.Run(gctx)
		})
	}

	if r.onReady != nil {
		r.onReady(sock.LocalAddr())
	}

	err = g.Wait()
	r.logger.Info("shutting down", "sessions", registry.Len())
	return err
}

// runJanitor evicts idle sessions every interval until ctx is cancelled.
func (r *Runner) runJanitor(ctx context.Context, registry *session.Registry, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, info := range registry.EvictIdle(idle) {
				r.logger.Info("session evicted", "session", info.Fingerprint, "last_seen", info.LastSeen)
			}
		}
	}
}

// configureRuntime sets GOMAXPROCS based on worker configuration and returns
// the dispatcher worker count.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := max(runtime.GOMAXPROCS(0), 1)
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := max(cfg.Server.Workers.Value, 1)
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		return max(cfg.Server.Workers.Value, 1)
	}
	return actual
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr netip.AddrPort, workers int) {
	r.logger.Info(
		"dns listening",
		"addr", addr.String(),
		"base_domain", cfg.Domain.Base,
		"key_endpoint", cfg.Domain.KeyEndpoint,
		"workers", workers,
		"queue_size", cfg.Server.QueueSize,
		"idle_timeout", cfg.Session.IdleTimeout.Duration,
		"journal", cfg.Store.Path != "",
		"api", cfg.API.Enabled,
	)
}
