package core

import (
	"fmt"
	"strings"

	"reactnet/config"
	"reactnet/httpd"
	"reactnet/internal/capability"
	"reactnet/internal/execute"
	"reactnet/internal/metrics"
	"reactnet/internal/retry"
	"reactnet/netconn"
	"reactnet/util"
)

// Build constructs the Mode selected by cfg.Mode.  cfg is expected to
// have passed Validate.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	switch cfg.Mode {
	case config.ModeServe:
		return buildServe(cfg, logger)
	case config.ModeFetch:
		return buildFetch(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	h, err := buildCapability(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ServeMode{
		Server:      httpd.NewServer(cfg, logger, metrics.New()),
		Port:        cfg.Port,
		Capability:  h,
		IdleTimeout: cfg.IdleTimeout,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
	}, nil
}

func buildFetch(cfg *config.Config, logger *util.Logger) (Mode, error) {
	opts := netconn.DefaultOptions()
	opts.Logger = logger
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.HandshakeTimeout = cfg.HandshakeTimeout

	return &FetchMode{
		Runtime: netconn.NewRuntime(opts),
		Host:    cfg.Host,
		Port:    cfg.RemotePort,
		Path:    cfg.Path,
		Method:  strings.ToUpper(cfg.Method),
		Flags:   connFlags(cfg),
		Retries: cfg.Retries,
		Idle:    cfg.ReceiveTimeout,
		Logger:  logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildCapability selects the per-request behaviour.
func buildCapability(cfg *config.Config, logger *util.Logger) (capability.Capability, error) {
	switch cfg.Handler {
	case config.HandlerEcho, "":
		return capability.Echo{}, nil
	case config.HandlerExec:
		breaker := retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
			OnStateChange: func(from, to retry.State) {
				logger.Warn("exec: circuit %s → %s", from, to)
			},
		})
		return &capability.Exec{
			Command: cfg.Script,
			Options: execute.Options{
				Timeout:   cfg.ExecTimeout,
				MaxOutput: cfg.ExecMaxOutput,
			},
			Breaker: breaker,
			Logger:  logger,
		}, nil
	}
	return nil, fmt.Errorf("unknown handler %q", cfg.Handler)
}

// connFlags maps the fetch options onto connection flags.
func connFlags(cfg *config.Config) netconn.Flags {
	f := netconn.Plain
	if cfg.TLS {
		f |= netconn.TLS
	}
	if cfg.AllowSSL2 {
		f |= netconn.SSL2
	}
	if cfg.AllowSSL3 {
		f |= netconn.SSL3
	}
	if cfg.NoCertChain {
		f |= netconn.NoCertChain
	}
	if cfg.DataDump {
		f |= netconn.DebugDataDump
	}
	if cfg.KeyDump {
		f |= netconn.DebugKeyDump
	}
	if !cfg.Blocking {
		f |= netconn.NonBlock
	}
	return f
}
