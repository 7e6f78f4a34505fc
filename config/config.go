// Package config defines the runtime configuration for reactnet and
// provides helpers for parsing fetch targets and validating settings.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reactnet/internal/errors"
)

// Modes selectable on the command line.
const (
	ModeServe = "serve"
	ModeFetch = "fetch"
)

// Handlers selectable for serve mode.
const (
	HandlerEcho = "echo"
	HandlerExec = "exec"
)

// Config holds every tuneable for a single reactnet run.
type Config struct {
	Mode string // "serve" or "fetch"

	// ── Serve ────────────────────────────────────────────────────────
	Port          int           // listen port
	Backlog       int           // listen() backlog
	TransientSize int           // per-session parse buffer capacity
	WriteTimeout  time.Duration // bound on a single response write
	IdleTimeout   time.Duration // sessions older than this are dropped
	DisableCORS   bool
	MaxSessions   int

	Handler       string        // "echo" or "exec"
	Script        string        // exec handler: command line
	ExecTimeout   time.Duration // exec handler: wall-clock bound
	ExecMaxOutput int           // exec handler: stdout/stderr cap

	// ── Fetch ────────────────────────────────────────────────────────
	Host             string
	RemotePort       int
	Path             string
	Method           string
	TLS              bool
	AllowSSL2        bool
	AllowSSL3        bool
	NoCertChain      bool
	DataDump         bool
	KeyDump          bool
	Blocking         bool
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	ReceiveTimeout   time.Duration
	Retries          int

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Mode:             ModeServe,
		Port:             DefaultPort,
		Backlog:          DefaultBacklog,
		TransientSize:    DefaultTransientSize,
		WriteTimeout:     DefaultWriteTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		MaxSessions:      DefaultMaxSessions,
		Handler:          HandlerEcho,
		ExecTimeout:      DefaultExecTimeout,
		ExecMaxOutput:    DefaultExecMaxOutput,
		Path:             "/",
		Method:           "GET",
		ConnectTimeout:   DefaultConnectTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReceiveTimeout:   DefaultReceiveTimeout,
		Retries:          DefaultRetries,
	}
}

// ── Target parser ────────────────────────────────────────────────────

// targetRe matches [scheme://]host[:port][/path].
var targetRe = regexp.MustCompile(`^(?:(https?)://)?([^:/\[\]]+|\[[0-9a-fA-F:.]+\])(?::(\d+))?(/.*)?$`)

// Target is a parsed fetch destination.
type Target struct {
	Host string
	Port int
	Path string
	TLS  bool
}

// ParseTarget splits "https://example.com:8443/status?x=1" into its
// parts.  The port defaults to 443 for https and 80 otherwise; the path
// defaults to "/".
func ParseTarget(target string) (Target, error) {
	m := targetRe.FindStringSubmatch(target)
	if m == nil {
		return Target{}, fmt.Errorf("invalid target %q – expected [http[s]://]host[:port][/path]", target)
	}
	t := Target{
		Host: strings.Trim(m[2], "[]"),
		Path: m[4],
		TLS:  m[1] == "https",
		Port: 80,
	}
	if t.TLS {
		t.Port = 443
	}
	if m[3] != "" {
		port, err := strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("invalid target port %q", m[3])
		}
		t.Port = port
	}
	if t.Path == "" {
		t.Path = "/"
	}
	return t, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe:
		return c.validateServe()
	case ModeFetch:
		return c.validateFetch()
	default:
		return &errors.ConfigError{
			Field:   "mode",
			Value:   c.Mode,
			Message: "unknown mode",
			Hint:    "use 'serve' or 'fetch'",
		}
	}
}

func (c *Config) validateServe() error {
	if c.Port < 1 || c.Port > 65535 {
		return &errors.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    "use a port between 1 and 65535",
		}
	}
	if c.Backlog < 1 {
		return &errors.ConfigError{Field: "backlog", Value: c.Backlog, Message: "must be positive"}
	}
	if c.TransientSize < MinTransientSize {
		return &errors.ConfigError{
			Field:   "buffer-size",
			Value:   c.TransientSize,
			Message: fmt.Sprintf("must be at least %d bytes", MinTransientSize),
			Hint:    "the whole request line and header block must fit in this buffer",
		}
	}
	switch c.Handler {
	case HandlerEcho:
	case HandlerExec:
		if strings.TrimSpace(c.Script) == "" {
			return &errors.ConfigError{
				Field:   "script",
				Message: "required with --handler=exec",
				Hint:    "pass the command to run, e.g. --script='/usr/bin/wc -c'",
			}
		}
		if c.ExecMaxOutput < 1 {
			return &errors.ConfigError{Field: "exec-max-output", Value: c.ExecMaxOutput, Message: "must be positive"}
		}
	default:
		return &errors.ConfigError{
			Field:   "handler",
			Value:   c.Handler,
			Message: "unknown handler",
			Hint:    "use 'echo' or 'exec'",
		}
	}
	if c.MaxSessions < 1 {
		return &errors.ConfigError{Field: "max-sessions", Value: c.MaxSessions, Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Host == "" {
		return &errors.ConfigError{
			Field:   "target",
			Message: "hostname is required",
			Hint:    "reactnet fetch https://example.com/",
		}
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return &errors.ConfigError{Field: "target", Value: c.RemotePort, Message: "port out of range 1-65535"}
	}
	if (c.AllowSSL2 || c.AllowSSL3 || c.NoCertChain || c.KeyDump) && !c.TLS {
		return &errors.ConfigError{
			Field:   "tls",
			Message: "TLS options given for a plain connection",
			Hint:    "use an https:// target or add --tls",
		}
	}
	switch strings.ToUpper(c.Method) {
	case "GET", "HEAD", "DELETE", "POST", "PUT", "PATCH":
	default:
		return &errors.ConfigError{Field: "method", Value: c.Method, Message: "unsupported method"}
	}
	if c.Retries < 0 {
		return &errors.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	return nil
}
