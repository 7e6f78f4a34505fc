package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the REACTNET_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Serve
	if v := envInt("REACTNET_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envInt("REACTNET_BACKLOG"); v > 0 {
		cfg.Backlog = v
	}
	if v := envInt("REACTNET_BUFFER_SIZE"); v > 0 {
		cfg.TransientSize = v
	}
	if v := envInt("REACTNET_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = secondsDuration(v)
	}
	if v := envInt("REACTNET_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = secondsDuration(v)
	}
	if envBool("REACTNET_NO_CORS") {
		cfg.DisableCORS = true
	}
	if v := os.Getenv("REACTNET_HANDLER"); v != "" {
		cfg.Handler = strings.ToLower(v)
	}
	if v := os.Getenv("REACTNET_SCRIPT"); v != "" {
		cfg.Script = v
	}
	if v := envInt("REACTNET_EXEC_TIMEOUT"); v > 0 {
		cfg.ExecTimeout = secondsDuration(v)
	}

	// Fetch
	if v := envInt("REACTNET_CONNECT_TIMEOUT"); v > 0 {
		cfg.ConnectTimeout = secondsDuration(v)
	}
	if v := envInt("REACTNET_HANDSHAKE_TIMEOUT"); v > 0 {
		cfg.HandshakeTimeout = secondsDuration(v)
	}
	if v := envInt("REACTNET_RETRIES"); v > 0 {
		cfg.Retries = v
	}
	if envBool("REACTNET_NO_CERT_CHAIN") {
		cfg.NoCertChain = true
	}

	// Output
	if v := envInt("REACTNET_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// DataDumpEnabled reports whether the raw-traffic dump gate is set.
func DataDumpEnabled() bool { return os.Getenv(EnvDataDump) != "" }

// KeyLogPath returns the TLS key-log destination, or "".
func KeyLogPath() string { return os.Getenv(EnvKeyLogFile) }

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
