// Package httpd is a minimal HTTP/1.1 request receiver for embedding in
// a single-threaded select() loop.
//
// A [Server] owns the listening socket.  Every accepted connection
// becomes a [Session] that is fed incrementally by [Session.Pump] until
// one request has been parsed, answered with [Session.SendResponse]
// and closed.  There is no keep-alive and no pipelining.
package httpd

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"reactnet/config"
	"reactnet/internal/errors"
	"reactnet/internal/metrics"
	"reactnet/internal/reactor"
	"reactnet/util"
)

// Server is the listener context shared by all sessions it accepts.
type Server struct {
	cfg     *config.Config
	log     *util.Logger
	metrics *metrics.Collector
	lastErr errors.Slot

	fd   int
	port int
}

// NewServer creates an unbound server.  A nil cfg selects the defaults.
func NewServer(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:     cfg,
		log:     logger.Named("httpd"),
		metrics: m,
		fd:      -1,
	}
}

// Bind listens on port on every IPv4 interface.  A previous listener is
// closed first.
func (s *Server) Bind(port int) error {
	if !util.ValidPort(port) {
		return s.lastErr.Record(errors.Internal("bind", errors.InternalBadPort,
			fmt.Errorf("port %d outside 1-65535", port)))
	}
	s.closeListener()

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return s.lastErr.Record(errors.OS("socket", err))
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return s.lastErr.Record(errors.OS("setsockopt", err))
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return s.lastErr.Record(errors.OS("bind", err))
	}
	backlog := s.cfg.Backlog
	if backlog <= 0 {
		backlog = config.DefaultBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return s.lastErr.Record(errors.OS("listen", err))
	}

	s.fd = fd
	s.port = port
	s.log.Verbose("listening on %s", util.FormatAddr(s.Addr(), port))
	return nil
}

// Accept returns the next pending session, or nil, nil when no
// connection is waiting.
func (s *Server) Accept() (*Session, error) {
	if s.fd < 0 {
		return nil, errors.ErrNotConnected
	}
	nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	switch {
	case err == nil:
	case errors.IsWouldBlock(err), err == unix.EINTR, err == unix.ECONNABORTED:
		return nil, nil
	default:
		return nil, s.lastErr.Record(errors.OS("accept", err))
	}

	ip, port := "", 0
	if a, ok := sa.(*unix.SockaddrInet4); ok {
		ip = net.IP(a.Addr[:]).String()
		port = a.Port
	}

	sess := newSession(s, nfd, ip, port)
	s.metrics.SessionAccepted()
	s.log.Verbose("accepted %s", util.FormatAddr(ip, port))
	return sess, nil
}

// Register adds the listening socket to the read set.
func (s *Server) Register(set *reactor.Sets) error {
	if s.fd < 0 {
		return errors.ErrNotConnected
	}
	return set.AddRead(s.fd)
}

// Ready reports whether a connection is waiting to be accepted.
func (s *Server) Ready(set *reactor.Sets) bool {
	return s.fd >= 0 && set.Readable(s.fd)
}

// Port returns the bound port, or 0.
func (s *Server) Port() int { return s.port }

// FD returns the listening descriptor, or -1.
func (s *Server) FD() int { return s.fd }

// Addr returns the address clients should use to reach this host.
func (s *Server) Addr() string { return util.PrimaryIPv4() }

// Metrics returns the collector sessions report to.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// LastError returns the most recent listener or session transport
// error, or nil.
func (s *Server) LastError() *errors.NetError { return s.lastErr.Last() }

// Shutdown closes the listener.  Sessions already accepted stay usable.
func (s *Server) Shutdown() error {
	if s.fd < 0 {
		return errors.ErrClosed
	}
	s.closeListener()
	s.log.Verbose("listener closed")
	return nil
}

func (s *Server) closeListener() {
	if s.fd >= 0 {
		unix.Close(s.fd)
	}
	s.fd = -1
	s.port = 0
}
