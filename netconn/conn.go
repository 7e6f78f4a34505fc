package netconn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"reactnet/internal/buffer"
	"reactnet/internal/errors"
	"reactnet/internal/reactor"
	"reactnet/util"
)

const (
	// maxPlaintextRecord is the largest payload a single TLS record carries.
	maxPlaintextRecord = 16 << 10

	// stagingLimit caps decrypted bytes held ahead of the caller.
	stagingLimit = 4 * maxPlaintextRecord
)

// Conn is an outbound connection created by [Runtime.Connect].
// It is not safe for concurrent use.
type Conn struct {
	rt    *Runtime
	fd    int
	flags Flags
	raw   *fdConn
	tls   *tls.Conn

	staged  *buffer.Buffer
	scratch []byte
	readErr error

	peerIP    string
	peerPort  int
	localPort int
	label     string

	cert      CertStatus
	keyLog    *os.File
	dump      bool
	blocking  bool
	connected bool
	counted   bool
	closed    bool
}

// Connect opens a connection to host:port.  With a TLS flavour in
// flags the handshake is completed before Connect returns.  Failures
// are recorded in the runtime's last-error slot as well as returned.
func (rt *Runtime) Connect(ctx context.Context, host string, port int, flags Flags) (*Conn, error) {
	if rt.closed {
		return nil, errors.ErrClosed
	}
	if !util.ValidPort(port) {
		return nil, rt.fail(errors.Internal("port", errors.InternalBadPort,
			fmt.Errorf("port %d outside 1-65535", port)))
	}
	ip, err := util.ResolveIP(ctx, host)
	if err != nil {
		return nil, rt.fail(errors.Internal("resolve", errors.InternalBadAddress, err))
	}

	c := &Conn{
		rt:        rt,
		fd:        -1,
		flags:     flags,
		peerIP:    ip.String(),
		peerPort:  port,
		localPort: -1,
		label:     util.FormatAddr(ip.String(), port),
		cert:      CertUnableToGetIssuerCert,
		dump:      flags&DebugDataDump != 0 && rt.opts.DataDump,
		blocking:  flags&NonBlock == 0,
	}
	if err := c.dial(ctx, ip); err != nil {
		c.teardown()
		return nil, rt.fail(err)
	}
	if flags.Secure() {
		if err := c.handshake(ctx, host); err != nil {
			c.teardown()
			return nil, rt.fail(err)
		}
	}
	if c.blocking {
		if err := c.restoreBlocking(); err != nil {
			c.teardown()
			return nil, rt.fail(err)
		}
	}

	c.connected = true
	c.counted = true
	rt.live++
	rt.metrics.ConnectionOpened()
	rt.log.Verbose("connected to %s from port %d (%s)", c.label, c.localPort, flags)
	return c, nil
}

func (c *Conn) dial(ctx context.Context, ip net.IP) error {
	family := unix.AF_INET
	var sa unix.Sockaddr
	if v4 := ip.To4(); v4 != nil {
		a := &unix.SockaddrInet4{Port: c.peerPort}
		copy(a.Addr[:], v4)
		sa = a
	} else {
		family = unix.AF_INET6
		a := &unix.SockaddrInet6{Port: c.peerPort}
		copy(a.Addr[:], ip.To16())
		sa = a
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return errors.OS("socket", err)
	}
	c.fd = fd
	if err := unix.SetNonblock(fd, true); err != nil {
		return errors.OS("fcntl", err)
	}

	switch err := unix.Connect(fd, sa); err {
	case nil:
	case unix.EINPROGRESS, unix.EINTR:
		if err := c.awaitConnect(ctx); err != nil {
			return err
		}
	default:
		return errors.OS("connect", err)
	}

	var local net.Addr = &net.TCPAddr{}
	if lsa, err := unix.Getsockname(fd); err == nil {
		switch a := lsa.(type) {
		case *unix.SockaddrInet4:
			c.localPort = a.Port
			local = &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
		case *unix.SockaddrInet6:
			c.localPort = a.Port
			local = &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
		}
	}
	c.raw = newFDConn(fd, local, &net.TCPAddr{IP: ip, Port: c.peerPort})
	return nil
}

// awaitConnect waits for a pending connect to finish and reads its
// outcome from SO_ERROR.
func (c *Conn) awaitConnect(ctx context.Context) error {
	timeout := c.rt.opts.ConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	ok, err := reactor.WaitFD(c.fd, reactor.WantWrite, timeout)
	if err != nil {
		return errors.OS("select", err)
	}
	if !ok {
		return errors.Internal("connect", errors.InternalTimeout, errors.ErrTimeout)
	}
	soErr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.OS("getsockopt", err)
	}
	if soErr != 0 {
		return errors.Errno("getsockopt", soErr)
	}
	return nil
}

func (c *Conn) handshake(ctx context.Context, host string) error {
	opts := c.rt.opts
	cfg := &tls.Config{
		ServerName: host,
		// Verification runs after the handshake and only records a status.
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
	if c.flags.Legacy() {
		c.rt.log.Warn("%s: SSLv2/SSLv3 are unavailable, accepting TLS 1.0 and later", c.label)
		cfg.MinVersion = tls.VersionTLS10
	}
	if c.flags&DebugKeyDump != 0 && opts.KeyLogPath != "" {
		f, err := os.OpenFile(opts.KeyLogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			c.rt.log.Warn("key log %s: %v", opts.KeyLogPath, err)
		} else {
			c.keyLog = f
			cfg.KeyLogWriter = f
		}
	}

	c.raw.wait = true
	c.raw.ctx = ctx
	if opts.HandshakeTimeout > 0 {
		_ = c.raw.SetDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	c.tls = tls.Client(c.raw, cfg)
	err := c.tls.Handshake()
	c.raw.wait = false
	c.raw.ctx = nil
	_ = c.raw.SetDeadline(time.Time{})
	if err != nil {
		return handshakeError(err)
	}

	roots := opts.RootCAs
	if c.flags&NoCertChain != 0 {
		roots = x509.NewCertPool()
	}
	name := host
	if net.ParseIP(host) != nil {
		name = ""
	}
	state := c.tls.ConnectionState()
	c.cert = verifyPeer(state.PeerCertificates, roots, name, time.Now())
	c.staged = buffer.New(stagingLimit)
	c.rt.log.Verbose("%s: %s %s, certificate: %s", c.label,
		tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite), c.cert)
	return nil
}

// restoreBlocking returns a plain socket to blocking mode.  TLS
// connections keep the descriptor non-blocking and park in select()
// instead, so the pending-data check can never stall.
func (c *Conn) restoreBlocking() error {
	if c.tls != nil {
		c.raw.wait = true
		return nil
	}
	if err := unix.SetNonblock(c.fd, false); err != nil {
		return errors.OS("fcntl", err)
	}
	return nil
}

func handshakeError(err error) error {
	var wt *waitTimeout
	switch {
	case errors.As(err, &wt):
		code := errors.TLSWantRead
		if wt.dir == reactor.WantWrite {
			code = errors.TLSWantWrite
		}
		return errors.TLS("handshake", code, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.TLS("handshake", errors.TLSWantConnect, err)
	}
	return tlsError("handshake", err)
}

func tlsError(op string, err error) error {
	var errno unix.Errno
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &errno) {
		return errors.TLS(op, errors.TLSSyscall, err)
	}
	return errors.TLS(op, errors.TLSFatal, err)
}

// Send writes up to len(p) bytes and returns how many were accepted.
// A short count is not an error.
func (c *Conn) Send(p []byte) (int, error) {
	if c.closed {
		return 0, errors.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var err error
	if c.tls != nil {
		n, err = c.sendTLS(p)
	} else {
		if n, err = c.raw.send(p); err != nil {
			err = errors.OS("send", err)
		}
	}
	if err != nil {
		c.trace(">!", p)
		return n, c.rt.fail(err)
	}
	if n > 0 {
		c.trace("> ", p[:n])
		c.rt.metrics.BytesSent(int64(n))
	}
	return n, nil
}

func (c *Conn) sendTLS(p []byte) (int, error) {
	limit := c.rt.opts.MaxPendingWrite
	if c.raw.Pending() >= limit {
		if err := c.raw.Flush(); err != nil {
			return 0, tlsError("write", err)
		}
		if c.raw.Pending() >= limit {
			return 0, nil
		}
	}
	n, err := c.tls.Write(p)
	if err != nil {
		return n, tlsError("write", err)
	}
	return n, nil
}

// Receive reads into p.  It returns 0, nil when nothing is available
// yet and [errors.ErrPeerClosed] once the peer has closed.
func (c *Conn) Receive(p []byte) (int, error) {
	if c.closed {
		return 0, errors.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var err error
	if c.tls != nil {
		n, err = c.receiveTLS(p)
	} else {
		n, err = c.receivePlain(p)
	}
	if n > 0 {
		c.trace("< ", p[:n])
		c.rt.metrics.BytesReceived(int64(n))
	}
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrPeerClosed):
		c.connected = false
	default:
		c.trace("<!", p[:n])
		err = c.rt.fail(err)
	}
	return n, err
}

func (c *Conn) receivePlain(p []byte) (int, error) {
	n, err := c.raw.Read(p)
	switch {
	case err == nil:
		return n, nil
	case err == io.EOF:
		return 0, errors.ErrPeerClosed
	case isWouldBlock(err):
		return 0, nil
	}
	return 0, errors.OS("recv", err)
}

func (c *Conn) receiveTLS(p []byte) (int, error) {
	if c.staged.Len() == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		c.fill(c.blocking)
		if c.staged.Len() == 0 {
			return 0, c.readErr
		}
	}
	n := copy(p, c.staged.Bytes())
	c.staged.Consume(n)
	if c.staged.Len() == 0 && c.readErr == nil {
		// Pull whatever the TLS layer already holds so HasPendingData
		// and Register see it.
		c.fill(false)
	}
	return n, nil
}

// fill moves one read's worth of plaintext from the TLS layer into the
// staging buffer.  Terminal outcomes are kept in readErr and reported
// once the staged bytes are consumed.
func (c *Conn) fill(block bool) {
	if c.scratch == nil {
		c.scratch = make([]byte, maxPlaintextRecord)
	}
	room := c.staged.Free()
	if room == 0 {
		return
	}
	if room > len(c.scratch) {
		room = len(c.scratch)
	}
	prev := c.raw.wait
	c.raw.wait = block
	n, err := c.tls.Read(c.scratch[:room])
	c.raw.wait = prev
	if n > 0 {
		_, _ = c.staged.Write(c.scratch[:n])
	}
	switch {
	case err == nil, isWouldBlock(err):
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.readErr = errors.ErrPeerClosed
	default:
		c.readErr = tlsError("read", err)
	}
}

// HasPendingData reports whether a Receive would return data without
// touching the socket.  For TLS this is exact; for plain sockets it is
// a non-destructive peek and only advisory.
func (c *Conn) HasPendingData() bool {
	if c.closed {
		return false
	}
	if c.tls != nil {
		return c.staged.Len() > 0
	}
	var b [1]byte
	n, _, err := unix.Recvfrom(c.fd, b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return err == nil && n > 0
}

func (c *Conn) tlsPending() bool {
	return c.tls != nil && (c.staged.Len() > 0 || c.readErr != nil)
}

// Register adds the connection to s: always for reading, for writing
// while queued ciphertext waits, and as immediate when decrypted data
// is already staged.
func (c *Conn) Register(s *reactor.Sets) error {
	if c.closed {
		return errors.ErrClosed
	}
	if err := s.AddRead(c.fd); err != nil {
		return err
	}
	if c.raw.WantWrite() {
		if err := s.AddWrite(c.fd); err != nil {
			return err
		}
	}
	if c.tlsPending() {
		s.MarkImmediate()
	}
	return nil
}

// Ready reports whether the connection needs pumping after a wait on
// s.  Queued ciphertext is flushed here when the socket became
// writable.
func (c *Conn) Ready(s *reactor.Sets) bool {
	if c.closed {
		return false
	}
	if c.raw.WantWrite() && s.Writable(c.fd) {
		if err := c.raw.Flush(); err != nil && c.readErr == nil {
			c.readErr = c.rt.fail(tlsError("write", err))
		}
	}
	return s.Readable(c.fd) || c.tlsPending()
}

// CertificateStatus returns the verification result of the peer
// certificate.  Plain connections report CertNoPeerCertificate.
func (c *Conn) CertificateStatus() CertStatus {
	if !c.flags.Secure() {
		return CertNoPeerCertificate
	}
	return c.cert
}

// Close releases the connection.  A second call returns
// [errors.ErrClosed].
func (c *Conn) Close() error {
	if c.closed {
		return errors.ErrClosed
	}
	c.closed = true
	c.teardown()
	if c.counted {
		c.counted = false
		c.rt.live--
		c.rt.metrics.ConnectionClosed()
	}
	c.rt.log.Verbose("closed %s", c.label)
	return nil
}

func (c *Conn) teardown() {
	switch {
	case c.tls != nil:
		c.raw.wait = false
		_ = unix.SetNonblock(c.fd, true)
		_ = c.tls.Close()
		c.tls = nil
	case c.raw != nil:
		_ = c.raw.Close()
	case c.fd >= 0:
		_ = unix.Close(c.fd)
	}
	if c.keyLog != nil {
		_ = c.keyLog.Close()
		c.keyLog = nil
	}
	if c.staged != nil {
		c.staged.Release()
	}
	c.fd = -1
	c.connected = false
}

func (c *Conn) trace(prefix string, p []byte) {
	if c.dump && len(p) > 0 {
		c.rt.log.Raw(util.HexDump(prefix, c.label, p))
	}
}

// FD returns the socket descriptor, or -1 once closed.
func (c *Conn) FD() int { return c.fd }

// PeerIP returns the remote address as text.
func (c *Conn) PeerIP() string { return c.peerIP }

// PeerPort returns the remote port.
func (c *Conn) PeerPort() int { return c.peerPort }

// LocalPort returns the locally bound port, or -1 if unknown.
func (c *Conn) LocalPort() int { return c.localPort }

// IsTLS reports whether the connection carries a TLS session.
func (c *Conn) IsTLS() bool { return c.flags.Secure() }

// Flags returns the option flags the connection was created with.
func (c *Conn) Flags() Flags { return c.flags }

// IsConnected reports whether the connection is established and not yet closed.
func (c *Conn) IsConnected() bool { return c.connected && !c.closed }

// FdSetInfo summarises the connection's membership in s:
// readable, staged TLS data, writable.
func (c *Conn) FdSetInfo(s *reactor.Sets) string {
	mark := func(on bool, yes byte) byte {
		if on {
			return yes
		}
		return '-'
	}
	open := c.fd >= 0
	pend := byte(' ')
	if c.tls != nil {
		pend = mark(c.staged.Len() > 0, 'O')
	}
	return fmt.Sprintf("R: %c%c W: %c",
		mark(open && s.Readable(c.fd), 'S'), pend, mark(open && s.Writable(c.fd), 'S'))
}
