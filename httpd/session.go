package httpd

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reactnet/config"
	"reactnet/internal/buffer"
	"reactnet/internal/errors"
	"reactnet/internal/reactor"
	"reactnet/util"
)

// Status codes returned by Pump besides 0 and -1.
const (
	StatusOK                 = 200
	StatusLengthRequired     = 411
	StatusURITooLong         = 414
	StatusHeaderFieldsTooBig = 431
	StatusInternalError      = 500
)

// State is the parse state of a session.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateComplete
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateComplete:
		return "complete"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further input will be consumed.
func (s State) Terminal() bool { return s >= StateComplete }

var contentLength = []byte("content-length:")

// Session is one accepted connection and the request read from it.
type Session struct {
	srv *Server
	fd  int

	peerIP   string
	peerPort int
	opened   time.Time

	state     State
	transient *buffer.Buffer
	hasBody   bool
	remaining int

	method string
	target string
	path   string
	params []Param
	body   []byte

	closed bool
}

func newSession(srv *Server, fd int, ip string, port int) *Session {
	size := srv.cfg.TransientSize
	if size <= 0 {
		size = config.DefaultTransientSize
	}
	return &Session{
		srv:       srv,
		fd:        fd,
		peerIP:    ip,
		peerPort:  port,
		opened:    time.Now(),
		state:     StateRequestLine,
		transient: buffer.New(size),
	}
}

// Pump reads whatever the socket has and advances the parser.  It
// returns 0 while more input is needed, -1 once the peer closed or the
// session failed earlier, or an HTTP status: 200 when the request is
// complete, or 411, 414, 431, 500 for a rejected request.  A rejected
// session stops reading but can still send its error response.
// Bytes following a complete request are discarded.
func (s *Session) Pump() int {
	switch {
	case s.closed, s.state == StateClosed, s.state == StateFailed:
		return -1
	case s.state == StateComplete:
		return StatusOK
	}

	bp := util.GetBuf()
	defer util.PutBuf(bp)
	buf := *bp

	n, err := unix.Read(s.fd, buf)
	switch {
	case err == unix.EINTR, errors.IsWouldBlock(err):
		return 0
	case err != nil:
		s.srv.lastErr.Record(errors.OS("recv", err))
		s.state = StateClosed
		return -1
	case n == 0:
		s.state = StateClosed
		return -1
	}
	s.srv.metrics.BytesReceived(int64(n))

	for _, c := range buf[:n] {
		if code := s.feed(c); code != 0 {
			return code
		}
	}
	return 0
}

func (s *Session) feed(c byte) int {
	if c == '\r' && s.state != StateBody {
		return 0
	}
	if err := s.transient.WriteByte(c); err != nil {
		return s.fail(StatusHeaderFieldsTooBig)
	}

	switch s.state {
	case StateRequestLine:
		if c == '\n' {
			return s.requestLine()
		}
	case StateHeaders:
		if c == '\n' && s.headersDone() {
			return s.headers()
		}
	case StateBody:
		s.remaining--
		if s.remaining <= 0 {
			s.body = s.transient.Clone()
			s.transient.Reset()
			return s.complete()
		}
	default:
		return s.fail(StatusInternalError)
	}
	return 0
}

// requestLine parses "METHOD SP TARGET SP VERSION".
func (s *Session) requestLine() int {
	line := strings.TrimSuffix(s.transient.String(), "\n")
	sp := strings.IndexByte(line, ' ')
	if sp < 0 {
		return s.fail(StatusURITooLong)
	}
	rest := line[sp+1:]
	end := strings.IndexByte(rest, ' ')
	if end <= 0 {
		return s.fail(StatusURITooLong)
	}

	s.method = line[:sp]
	s.hasBody = len(line) > 0 && (line[0] == 'p' || line[0] == 'P')
	s.target = rest[:end]
	s.path, s.params = parseTarget(s.target)

	s.transient.Reset()
	s.state = StateHeaders
	return 0
}

// headersDone reports whether the header block ended with a blank line.
// A request without any header lines ends on its first newline.
func (s *Session) headersDone() bool {
	b := s.transient.Bytes()
	return len(b) == 1 || bytes.HasSuffix(b, []byte("\n\n"))
}

func (s *Session) headers() int {
	if !s.hasBody {
		s.transient.Reset()
		return s.complete()
	}
	n, ok := s.contentLength()
	if !ok {
		return s.fail(StatusLengthRequired)
	}
	s.transient.Reset()
	if n == 0 {
		s.body = []byte{}
		return s.complete()
	}
	s.remaining = n
	s.state = StateBody
	return 0
}

// contentLength finds the Content-Length header, matched without regard
// to case.  The value must be a run of decimal digits; anything else,
// including an empty or negative value, reports false.  A value too large
// for an int is clamped to math.MaxInt so the body runs into the
// transient capacity.
func (s *Session) contentLength() (int, bool) {
	for _, line := range bytes.Split(s.transient.Bytes(), []byte("\n")) {
		if len(line) < len(contentLength) || !bytes.EqualFold(line[:len(contentLength)], contentLength) {
			continue
		}
		v := bytes.TrimSpace(line[len(contentLength):])
		if len(v) == 0 {
			return 0, false
		}
		for _, c := range v {
			if c < '0' || c > '9' {
				return 0, false
			}
		}
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return math.MaxInt, true
		}
		return n, true
	}
	return 0, false
}

func (s *Session) complete() int {
	s.state = StateComplete
	s.srv.log.Verbose("%s %s from %s", s.method, s.target, util.FormatAddr(s.peerIP, s.peerPort))
	return StatusOK
}

func (s *Session) fail(code int) int {
	s.state = StateFailed
	s.transient.Reset()
	if s.fd >= 0 {
		_ = unix.Shutdown(s.fd, unix.SHUT_RD)
	}
	s.srv.metrics.RecordError("request rejected with " + strconv.Itoa(code))
	s.srv.log.Verbose("rejected request from %s: %d", util.FormatAddr(s.peerIP, s.peerPort), code)
	return code
}

// State returns the parse state.
func (s *Session) State() State { return s.state }

// Method returns the request method once the request line was parsed.
func (s *Session) Method() string { return s.method }

// URI returns the decoded request path once the request line was parsed.
func (s *Session) URI() string { return s.path }

// Target returns the raw request target as received.
func (s *Session) Target() string { return s.target }

// Body returns the request body of a complete request, or nil.
func (s *Session) Body() []byte {
	if s.state != StateComplete {
		return nil
	}
	return s.body
}

// Param returns the first parameter called name.
func (s *Session) Param(name string) (string, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ParamInt returns the first parameter called name as an integer.
func (s *Session) ParamInt(name string) (int, bool) {
	v, ok := s.Param(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return n, err == nil
}

// ParamFloat returns the first parameter called name as a float.
func (s *Session) ParamFloat(name string) (float64, bool) {
	v, ok := s.Param(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f, err == nil
}

// NumParams returns the number of parameters.
func (s *Session) NumParams() int { return len(s.params) }

// ParamName returns the name of parameter i, or "" when out of range.
func (s *Session) ParamName(i int) string {
	if i < 0 || i >= len(s.params) {
		return ""
	}
	return s.params[i].Name
}

// ParamValue returns the value of parameter i, or "" when out of range.
func (s *Session) ParamValue(i int) string {
	if i < 0 || i >= len(s.params) {
		return ""
	}
	return s.params[i].Value
}

// Params returns a copy of the parameter list in request order.
func (s *Session) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

// PeerIP returns the textual address of the client.
func (s *Session) PeerIP() string { return s.peerIP }

// PeerPort returns the client's source port.
func (s *Session) PeerPort() int { return s.peerPort }

// FD returns the session socket, or -1 once closed.
func (s *Session) FD() int { return s.fd }

// Age returns the seconds since the session was accepted, or -1 once
// it is closed.
func (s *Session) Age() int {
	if s.closed {
		return -1
	}
	return int(time.Since(s.opened).Seconds())
}

// Register adds the session socket to the read set.
func (s *Session) Register(set *reactor.Sets) error {
	if s.closed {
		return errors.ErrClosed
	}
	return set.AddRead(s.fd)
}

// Ready reports whether the session socket became readable.
func (s *Session) Ready(set *reactor.Sets) bool {
	return !s.closed && set.Readable(s.fd)
}

// Close releases the session.  A second call returns [errors.ErrClosed].
func (s *Session) Close() error {
	if s.closed {
		return errors.ErrClosed
	}
	s.closed = true
	if !s.state.Terminal() {
		s.state = StateClosed
	}
	err := unix.Close(s.fd)
	s.fd = -1
	s.transient.Release()
	s.srv.metrics.SessionClosed()
	if err != nil {
		return errors.OS("close", err)
	}
	return nil
}
