// Package netconn implements outbound TCP connections with optional TLS
// that plug into a caller-driven select() loop.
//
// A [Runtime] owns everything that would otherwise be process-wide: the
// logger, the metrics collector used as the live-connection counter,
// the last-error slot and the debug gates read from the environment.
// Connections are created with [Runtime.Connect] and participate in the
// caller's wait through [Conn.Register] and [Conn.Ready].
package netconn

import (
	"crypto/x509"
	"time"

	"reactnet/config"
	"reactnet/internal/errors"
	"reactnet/internal/metrics"
	"reactnet/util"
)

// DefaultMaxPendingWrite bounds the ciphertext queued behind a
// non-blocking TLS socket before Send stops accepting data.
const DefaultMaxPendingWrite = 1 << 20

// Options configure a Runtime.  Zero values select the defaults.
type Options struct {
	Logger  *util.Logger
	Metrics *metrics.Collector

	ConnectTimeout   time.Duration // select() wait for a pending connect
	HandshakeTimeout time.Duration // overall TLS handshake bound
	MaxPendingWrite  int

	// RootCAs replaces the system pool for chain verification.
	RootCAs *x509.CertPool

	// DataDump and KeyLogPath are the environment gates for the
	// DebugDataDump and DebugKeyDump flags.
	DataDump   bool
	KeyLogPath string
}

// DefaultOptions returns the defaults with the debug gates taken from
// the process environment.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:   config.DefaultConnectTimeout,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		MaxPendingWrite:  DefaultMaxPendingWrite,
		DataDump:         config.DataDumpEnabled(),
		KeyLogPath:       config.KeyLogPath(),
	}
}

// Runtime is the context object every connection belongs to.
type Runtime struct {
	opts    Options
	log     *util.Logger
	metrics *metrics.Collector
	lastErr errors.Slot
	live    int
	closed  bool
}

// NewRuntime creates a runtime.
func NewRuntime(opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = config.DefaultConnectTimeout
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if opts.MaxPendingWrite <= 0 {
		opts.MaxPendingWrite = DefaultMaxPendingWrite
	}
	return &Runtime{
		opts:    opts,
		log:     opts.Logger.Named("netconn"),
		metrics: opts.Metrics,
	}
}

// Close ends the runtime.  Connections still open keep working until
// they are closed, but no new ones can be made.
func (rt *Runtime) Close() error {
	if rt.closed {
		return errors.ErrClosed
	}
	rt.closed = true
	if rt.live > 0 {
		rt.log.Warn("runtime closed with %d live connection(s)", rt.live)
	}
	return nil
}

// Live returns the number of connections not yet closed.
func (rt *Runtime) Live() int { return rt.live }

// Metrics returns the collector the runtime reports to.
func (rt *Runtime) Metrics() *metrics.Collector { return rt.metrics }

// ErrorCode returns the folded number of the last recorded error, or -1.
func (rt *Runtime) ErrorCode() int { return rt.lastErr.Code() }

// ErrorString returns the text of the last recorded error.
func (rt *Runtime) ErrorString() string { return rt.lastErr.String() }

// ErrorContext returns the operation label of the last recorded error.
func (rt *Runtime) ErrorContext() string { return rt.lastErr.Context() }

// LastError returns the last recorded error, or nil.
func (rt *Runtime) LastError() *errors.NetError { return rt.lastErr.Last() }

func (rt *Runtime) fail(err error) error {
	rt.metrics.RecordError(err.Error())
	return rt.lastErr.Record(err)
}
