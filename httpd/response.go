package httpd

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"reactnet/config"
	"reactnet/internal/errors"
	"reactnet/internal/reactor"
)

// StatusClass returns the reason text used for every code in the
// code's hundred.
func StatusClass(code int) string {
	switch {
	case code < 200:
		return "Info"
	case code < 300:
		return "OK"
	case code < 400:
		return "Redirect"
	case code < 500:
		return "Client Error"
	default:
		return "Server Error"
	}
}

// responseHead builds the status line and headers.  Entity headers are
// only present when the response carries a body.
func responseHead(code int, contentType string, bodyLen int, withBody, cors bool) []byte {
	head := make([]byte, 0, 256)
	head = append(head, "HTTP/1.1 "...)
	head = strconv.AppendInt(head, int64(code), 10)
	head = append(head, ' ')
	head = append(head, StatusClass(code)...)
	head = append(head, "\r\nConnection: close\r\n"...)
	if withBody {
		head = append(head, "Content-Type: "...)
		head = append(head, contentType...)
		head = append(head, "\r\nContent-Length: "...)
		head = strconv.AppendInt(head, int64(bodyLen), 10)
		head = append(head, "\r\n"...)
		if cors {
			head = append(head, "Access-Control-Allow-Origin: *\r\n"...)
			head = append(head, "Access-Control-Allow-Headers: *\r\n"...)
			head = append(head, "Access-Control-Allow-Methods: *\r\n"...)
		}
	}
	return append(head, "\r\n"...)
}

// SendResponse sends a complete response.  An empty contentType sends
// the status line and Connection header only.
func (s *Session) SendResponse(code int, contentType, body string) error {
	return s.SendResponseBytes(code, contentType, []byte(body))
}

// SendResponseBytes is SendResponse for a binary body.
func (s *Session) SendResponseBytes(code int, contentType string, body []byte) error {
	if s.closed {
		return errors.ErrClosed
	}
	withBody := contentType != ""
	msg := responseHead(code, contentType, len(body), withBody, !s.srv.cfg.DisableCORS)
	if withBody {
		msg = append(msg, body...)
	}

	timeout := s.srv.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = config.DefaultWriteTimeout
	}
	if err := writeFull(s.fd, msg, time.Now().Add(timeout)); err != nil {
		s.srv.metrics.RecordError(err.Error())
		return s.srv.lastErr.Record(err)
	}
	s.srv.metrics.Response(code)
	s.srv.metrics.BytesSent(int64(len(msg)))
	return nil
}

// writeFull sends p on a non-blocking socket, waiting for write
// readiness whenever the socket is full.
func writeFull(fd int, p []byte, deadline time.Time) error {
	for len(p) > 0 {
		n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case errors.IsWouldBlock(err):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return errors.Internal("send", errors.InternalTimeout,
					fmt.Errorf("%d bytes unsent: %w", len(p), errors.ErrTimeout))
			}
			if _, err := reactor.WaitFD(fd, reactor.WantWrite, remaining); err != nil {
				return errors.OS("select", err)
			}
			continue
		case err != nil:
			return errors.OS("send", err)
		}
		p = p[n:]
	}
	return nil
}
