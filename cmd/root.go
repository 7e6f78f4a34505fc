// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"reactnet/config"
	"reactnet/internal/core"
	"reactnet/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X reactnet/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected reactnet mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)
	fs := flag.NewFlagSet("reactnet", flag.ContinueOnError)

	// ── serve ────────────────────────────────────────────────────
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Listen port")
	fs.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen() backlog")
	fs.IntVar(&cfg.TransientSize, "buffer-size", cfg.TransientSize, "Per-session request buffer in bytes")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Bound on sending one response")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Drop sessions older than this (0 disables)")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Concurrent session limit")
	fs.BoolVar(&cfg.DisableCORS, "no-cors", cfg.DisableCORS, "Omit the Access-Control-Allow-* headers")
	fs.StringVar(&cfg.Handler, "handler", cfg.Handler, "Request handler: echo or exec")
	fs.StringVarP(&cfg.Script, "script", "c", cfg.Script, "Shell command run by --handler=exec")
	fs.DurationVar(&cfg.ExecTimeout, "exec-timeout", cfg.ExecTimeout, "Wall-clock bound for the exec command")
	fs.IntVar(&cfg.ExecMaxOutput, "exec-max-output", cfg.ExecMaxOutput, "Cap for exec stdout and stderr in bytes")

	// ── fetch ────────────────────────────────────────────────────
	fs.StringVarP(&cfg.Method, "method", "X", cfg.Method, "Request method")
	fs.BoolVar(&cfg.TLS, "tls", cfg.TLS, "Use TLS (implied by https://)")
	fs.BoolVar(&cfg.AllowSSL2, "ssl2", cfg.AllowSSL2, "Accept the oldest protocol versions available")
	fs.BoolVar(&cfg.AllowSSL3, "ssl3", cfg.AllowSSL3, "Accept the oldest protocol versions available")
	fs.BoolVar(&cfg.NoCertChain, "no-cert-chain", cfg.NoCertChain, "Verify the peer against an empty trust store")
	fs.BoolVar(&cfg.DataDump, "data-dump", cfg.DataDump, "Hex-dump traffic (needs "+config.EnvDataDump+")")
	fs.BoolVar(&cfg.KeyDump, "key-dump", cfg.KeyDump, "Write TLS secrets (needs "+config.EnvKeyLogFile+")")
	fs.BoolVar(&cfg.Blocking, "blocking", cfg.Blocking, "Use a blocking socket")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Wait for a pending connect")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Overall TLS handshake bound")
	fs.DurationVarP(&cfg.ReceiveTimeout, "timeout", "w", cfg.ReceiveTimeout, "Give up when the server is silent this long")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Reconnect attempts after a retryable failure")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("reactnet %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		logger.SetTimestamps(true)
	}

	if cfg.DryRun {
		fmt.Fprintln(os.Stderr, describe(cfg))
		return nil
	}

	// ── build & run ──────────────────────────────────────────────
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) == 0 {
		return fmt.Errorf("mode required: serve or fetch (use --help for usage)")
	}
	cfg.Mode = remaining[0]
	rest := remaining[1:]

	switch cfg.Mode {
	case config.ModeServe:
		if len(rest) > 0 {
			return fmt.Errorf("serve takes no arguments, got %q", rest[0])
		}
	case config.ModeFetch:
		switch len(rest) {
		case 0:
			return fmt.Errorf("fetch requires a target URL")
		case 1:
		default:
			return fmt.Errorf("too many arguments for fetch mode")
		}
		t, err := config.ParseTarget(rest[0])
		if err != nil {
			return err
		}
		cfg.Host = t.Host
		cfg.RemotePort = t.Port
		cfg.Path = t.Path
		cfg.TLS = cfg.TLS || t.TLS
	}
	return nil
}

// describe summarises a validated configuration for --dry-run.
func describe(cfg *config.Config) string {
	if cfg.Mode == config.ModeFetch {
		return fmt.Sprintf("fetch %s %s (tls=%v retries=%d)",
			cfg.Method, util.FormatAddr(cfg.Host, cfg.RemotePort)+cfg.Path, cfg.TLS, cfg.Retries)
	}
	return fmt.Sprintf("serve :%d handler=%s max-sessions=%d idle=%v",
		cfg.Port, cfg.Handler, cfg.MaxSessions, cfg.IdleTimeout)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `reactnet v%s

A select()-driven HTTP endpoint and TLS-capable fetch client.

Usage:
  reactnet serve [options]                    Serve HTTP requests
  reactnet fetch [options] <url>              Send one request, print the response

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  reactnet serve -p 8080                              Echo requests as JSON
  reactnet serve --handler=exec -c 'wc -c'            Answer with a script
  reactnet fetch https://example.com/                 GET over TLS
  echo hi | reactnet fetch -X POST localhost:8080/p   POST stdin
`)
}
