package netconn

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"reactnet/internal/errors"
	"reactnet/internal/reactor"
)

// waitSlice bounds a single select() while waiting so that context
// cancellation is noticed promptly.
const waitSlice = 100 * time.Millisecond

// wouldBlock is reported by fdConn reads when the socket has nothing to
// give.  crypto/tls treats temporary net.Errors as retryable and keeps
// any partially received record, so the next Read resumes cleanly.
type wouldBlock struct{}

func (wouldBlock) Error() string   { return "operation would block" }
func (wouldBlock) Timeout() bool   { return true }
func (wouldBlock) Temporary() bool { return true }

func isWouldBlock(err error) bool {
	var wb wouldBlock
	return errors.As(err, &wb)
}

// waitTimeout ends a bounded wait; dir is the readiness that never came.
type waitTimeout struct{ dir reactor.Direction }

func (e *waitTimeout) Error() string   { return "timed out waiting for " + e.dir.String() + " readiness" }
func (e *waitTimeout) Timeout() bool   { return true }
func (e *waitTimeout) Temporary() bool { return false }

type pending struct{ buf []byte }

// fdConn is a net.Conn over a raw socket descriptor.  In wait mode a
// would-block read or write parks in select() until the deadline;
// otherwise reads report wouldBlock and writes that the socket cannot
// take are queued and flushed on later write readiness.
type fdConn struct {
	fd       int
	wait     bool
	ctx      context.Context
	deadline time.Time
	lastWait reactor.Direction

	out    *queue.Queue
	queued int

	local, remote net.Addr
	closed        bool
}

func newFDConn(fd int, local, remote net.Addr) *fdConn {
	return &fdConn{fd: fd, out: queue.New(), local: local, remote: remote}
}

func (c *fdConn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, b)
		switch {
		case err == unix.EINTR:
			continue
		case errors.IsWouldBlock(err):
			if !c.wait {
				return 0, wouldBlock{}
			}
			if werr := c.block(reactor.WantRead); werr != nil {
				return 0, werr
			}
			continue
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

func (c *fdConn) Write(b []byte) (int, error) {
	if c.closed {
		return 0, errors.ErrClosed
	}
	if c.wait {
		if err := c.drain(); err != nil {
			return 0, err
		}
		return c.writeAll(b)
	}
	if err := c.Flush(); err != nil {
		return 0, err
	}
	n := 0
	if c.out.Length() == 0 {
		var err error
		if n, err = c.send(b); err != nil {
			return n, err
		}
	}
	if n < len(b) {
		rest := make([]byte, len(b)-n)
		copy(rest, b[n:])
		c.out.Add(&pending{buf: rest})
		c.queued += len(rest)
	}
	return len(b), nil
}

// send makes one non-signalling send; would-block is 0, nil.
func (c *fdConn) send(b []byte) (int, error) {
	for {
		n, err := unix.SendmsgN(c.fd, b, nil, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == unix.EINTR:
			continue
		case errors.IsWouldBlock(err):
			return 0, nil
		case err != nil:
			return 0, os.NewSyscallError("send", err)
		}
		return n, nil
	}
}

func (c *fdConn) writeAll(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := c.send(b[written:])
		if err != nil {
			return written, err
		}
		written += n
		if n == 0 {
			if err := c.block(reactor.WantWrite); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Flush pushes queued bytes until the queue is empty or the socket
// would block.
func (c *fdConn) Flush() error {
	for c.out.Length() > 0 {
		p := c.out.Peek().(*pending)
		n, err := c.send(p.buf)
		if err != nil {
			return err
		}
		c.queued -= n
		p.buf = p.buf[n:]
		if len(p.buf) > 0 {
			return nil
		}
		c.out.Remove()
	}
	return nil
}

func (c *fdConn) drain() error {
	for c.out.Length() > 0 {
		if err := c.Flush(); err != nil {
			return err
		}
		if c.out.Length() > 0 {
			if err := c.block(reactor.WantWrite); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pending returns the number of queued bytes.
func (c *fdConn) Pending() int { return c.queued }

// WantWrite reports whether queued bytes are waiting for the socket.
func (c *fdConn) WantWrite() bool { return c.out.Length() > 0 }

func (c *fdConn) block(d reactor.Direction) error {
	c.lastWait = d
	for {
		slice := waitSlice
		if !c.deadline.IsZero() {
			remaining := time.Until(c.deadline)
			if remaining <= 0 {
				return &waitTimeout{dir: d}
			}
			if remaining < slice {
				slice = remaining
			}
		}
		if c.ctx != nil {
			if err := c.ctx.Err(); err != nil {
				return err
			}
		}
		ok, err := reactor.WaitFD(c.fd, d, slice)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (c *fdConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for c.out.Length() > 0 {
		c.out.Remove()
	}
	c.queued = 0
	if err := unix.Close(c.fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

func (c *fdConn) LocalAddr() net.Addr  { return c.local }
func (c *fdConn) RemoteAddr() net.Addr { return c.remote }

func (c *fdConn) SetDeadline(t time.Time) error {
	c.deadline = t
	return nil
}

func (c *fdConn) SetReadDeadline(t time.Time) error  { return c.SetDeadline(t) }
func (c *fdConn) SetWriteDeadline(t time.Time) error { return c.SetDeadline(t) }
