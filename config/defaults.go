package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultPort is the serve-mode listen port.
	DefaultPort = 8080

	// DefaultBacklog is the listen() backlog.
	DefaultBacklog = 16

	// DefaultTransientSize is the per-session parse buffer (32 KiB).
	// The request line, the header block and the body each have to fit.
	DefaultTransientSize = 32 * 1024

	// MinTransientSize is the smallest accepted parse buffer.
	MinTransientSize = 64

	// DefaultWriteTimeout bounds a single response write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultIdleTimeout drops sessions that never complete a request.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultMaxSessions caps concurrently open sessions.
	DefaultMaxSessions = 256

	// DefaultConnectTimeout is the wait for a non-blocking connect.
	DefaultConnectTimeout = 2 * time.Second

	// DefaultHandshakeTimeout is the overall TLS handshake deadline.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultReceiveTimeout ends fetch mode when the peer goes quiet.
	DefaultReceiveTimeout = 30 * time.Second

	// DefaultRetries is how many times fetch reconnects after a
	// retryable connect failure.
	DefaultRetries = 0

	// DefaultExecTimeout bounds the exec handler's child process.
	DefaultExecTimeout = 10 * time.Second

	// DefaultExecMaxOutput caps stdout (and separately stderr) of the
	// exec handler's child process.
	DefaultExecMaxOutput = 64 * 1024

	// DefaultLoopTick is the longest the serve loop sleeps in select()
	// before re-checking idle sessions and the context.
	DefaultLoopTick = 250 * time.Millisecond
)

// Environment gates for connection debugging.  These are read at
// connect time and are independent of the REACTNET_ overlay.
const (
	EnvDataDump   = "NETDUMPENABLE"
	EnvKeyLogFile = "SSLKEYLOGFILE"
)
