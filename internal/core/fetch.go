package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"reactnet/internal/capability"
	"reactnet/internal/errors"
	"reactnet/internal/retry"
	"reactnet/internal/session"
	"reactnet/netconn"
	"reactnet/util"
)

// userAgent is sent with every fetch request.
const userAgent = "reactnet"

// FetchMode connects to a remote server, sends one request and copies
// the raw response to Stdout until the server closes the connection.
type FetchMode struct {
	Runtime *netconn.Runtime
	Host    string
	Port    int
	Path    string
	Method  string
	Flags   netconn.Flags
	Retries int           // reconnects after a retryable connect failure
	Idle    time.Duration // receive inactivity bound
	Logger  *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *FetchMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *FetchMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects, sends the request and relays the response.  The
// runtime is closed when Run returns.
func (m *FetchMode) Run(ctx context.Context) error {
	defer m.Runtime.Close() //nolint:errcheck

	body, err := m.requestBody()
	if err != nil {
		return err
	}
	address := util.FormatAddr(m.Host, m.Port)
	m.Logger.Verbose("connecting to %s (%s)", address, m.Flags)

	var conn *netconn.Conn
	bo := retry.ConnectBackoff(m.Retries, errors.IsRetryable)
	bo.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Warn("connect attempt %d failed: %v; retrying in %v", attempt, err, wait)
	}
	err = bo.Do(ctx, func(int) error {
		c, err := m.Runtime.Connect(ctx, m.Host, m.Port, m.Flags)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	defer conn.Close() //nolint:errcheck

	m.Logger.Verbose("connected to %s from local port %d", address, conn.LocalPort())
	if conn.IsTLS() {
		if status := conn.CertificateStatus(); status != netconn.CertOK {
			m.Logger.Warn("certificate: %s", status)
		} else {
			m.Logger.Verbose("certificate: %s", status)
		}
	}

	sess := session.New(conn, m.stdin(), m.stdout(), m.Logger)
	relay := &capability.Relay{
		Request: buildRequest(m.Method, m.Host, m.Path, body),
		Idle:    m.Idle,
	}
	err = relay.Handle(ctx, sess)
	m.Logger.Debug("fetch: %s", m.Runtime.Metrics().JSON())
	return err
}

// requestBody reads the body for methods that carry one.  An
// interactive terminal on stdin is never read.
func (m *FetchMode) requestBody() ([]byte, error) {
	switch m.Method {
	case "POST", "PUT", "PATCH":
	default:
		return nil, nil
	}
	in := m.stdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, nil
	}
	body, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// buildRequest renders an HTTP/1.0 request; the server is expected to
// close the connection after responding.
func buildRequest(method, host, path string, body []byte) []byte {
	req := make([]byte, 0, 128+len(body))
	req = append(req, method...)
	req = append(req, ' ')
	req = append(req, path...)
	req = append(req, " HTTP/1.0\r\nHost: "...)
	req = append(req, host...)
	req = append(req, "\r\nUser-Agent: "...)
	req = append(req, userAgent...)
	req = append(req, "\r\nConnection: close\r\n"...)
	if body != nil {
		req = append(req, "Content-Length: "...)
		req = strconv.AppendInt(req, int64(len(body)), 10)
		req = append(req, "\r\n"...)
	}
	req = append(req, "\r\n"...)
	return append(req, body...)
}
