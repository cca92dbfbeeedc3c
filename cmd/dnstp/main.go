// Command dnstp is the tunnel client: it handshakes with a dnstpd server and
// moves data over DNS queries.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jroosing/dnstp/internal/client"
	"github.com/jroosing/dnstp/internal/logging"
	"github.com/jroosing/dnstp/internal/protocol"
)

type netOptions struct {
	address     string
	baseDomain  string
	keyEndpoint string
	timeout     time.Duration
	debug       bool
	logFile     string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &netOptions{}
	var closeLog func() error

	root := &cobra.Command{
		Use:           "dnstp",
		Short:         "Move data through a dnstpd server over DNS",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "INFO"
			if opts.debug {
				level = "DEBUG"
			}
			var err error
			_, closeLog, err = logging.Open(logging.Config{Level: level, File: opts.logFile})
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closeLog != nil {
				return closeLog()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.address, "address", "a", "", "Server address to send requests to (ip:port)")
	flags.StringVar(&opts.baseDomain, "base-domain", "", "Base domain the server is operating on")
	flags.StringVarP(&opts.keyEndpoint, "key-endpoint", "k", protocol.DefaultKeyEndpoint, "Sub-domain that handles key exchange")
	flags.DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.logFile, "log-file", "", "Append logs to this file as well as stderr")
	_ = root.MarkPersistentFlagRequired("address")
	_ = root.MarkPersistentFlagRequired("base-domain")

	root.AddCommand(
		newHandshakeCommand(opts),
		newUploadCommand(opts),
		newDownloadCommand(opts),
		newTestCommand(opts),
	)
	return root
}

// dial connects a client using the shared network flags.
func dial(ctx context.Context, opts *netOptions) (*client.Client, error) {
	addr, err := netip.ParseAddrPort(opts.address)
	if err != nil {
		return nil, fmt.Errorf("--address: %w", err)
	}
	return client.Dial(ctx, client.Config{
		Server:  addr,
		Domain:  protocol.NewDomain(opts.baseDomain, opts.keyEndpoint),
		Timeout: opts.timeout,
		Logger:  slog.Default(),
	})
}

func newHandshakeCommand(opts *netOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "handshake",
		Short: "Run the key exchange and print the session fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Handshake(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Fingerprint())
			return nil
		},
	}
}

func newUploadCommand(opts *netOptions) *cobra.Command {
	var key, value string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a value, optionally under a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer c.Close()

			slog.Info("sending handshake")
			if err := c.Handshake(cmd.Context()); err != nil {
				return err
			}
			slog.Info("crypto complete, sending data")
			if err := c.Upload(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringVarP(&value, "value", "v", "", "Value to upload")
	cmd.Flags().StringVar(&key, "key", "", "Optional key sent alongside the value")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newDownloadCommand(opts *netOptions) *cobra.Command {
	var wait, interval time.Duration
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Handshake, then poll for a payload queued for this session",
		Long: "Handshake, print the session fingerprint and poll until a payload arrives " +
			"or --wait elapses. Payloads are queued through the server's management API.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := dial(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Handshake(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "session", c.Fingerprint())

			deadline := time.Now().Add(wait)
			for {
				payload, ok, err := c.Download(ctx)
				if err != nil {
					return err
				}
				if ok {
					_, err := cmd.OutOrStdout().Write(payload)
					return err
				}
				if !time.Now().Before(deadline) {
					return fmt.Errorf("no payload after %s", wait)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to keep polling (0 polls once)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between polls")
	return cmd
}

func newTestCommand(opts *netOptions) *cobra.Command {
	var count int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send probe queries to the key endpoint on a loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := dial(ctx, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			for i := 0; count <= 0 || i < count; i++ {
				rcode, err := c.Probe(ctx)
				if err != nil {
					slog.Warn("probe failed", "err", err)
				} else {
					slog.Info("probe answered", "rcode", rcode.String())
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Number of probes (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Delay between probes")
	return cmd
}
