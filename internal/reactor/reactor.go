// Package reactor provides the readiness sets handed to connections,
// listeners and sessions before the caller's single select() wait, and
// the bounded single-descriptor waits used while setting up a
// connection.
//
// The library never owns the caller's wait: components only add their
// descriptors to a [Sets] and later ask whether they became ready.
// Data that is already buffered above the socket (decrypted TLS
// records) is signalled through [Sets.MarkImmediate], which turns the
// next [Sets.Wait] into a non-blocking poll instead of relying on a
// dummy always-ready descriptor.
package reactor

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"reactnet/internal/errors"
)

// MaxFD is the largest descriptor a select() set can hold.
const MaxFD = len(unix.FdSet{}.Bits)*int(unsafe.Sizeof(unix.FdSet{}.Bits[0]))*8 - 1

// ErrDescriptorRange is returned when a descriptor does not fit a set.
var ErrDescriptorRange = errors.New("descriptor outside select() range")

// Sets is a read/write descriptor set pair plus the immediate flag.
type Sets struct {
	read      unix.FdSet
	write     unix.FdSet
	max       int
	immediate bool
}

// NewSets returns empty sets.
func NewSets() *Sets {
	s := &Sets{}
	s.Reset()
	return s
}

// Reset empties both sets and clears the immediate flag.  Call it at
// the top of every loop iteration.
func (s *Sets) Reset() {
	s.read.Zero()
	s.write.Zero()
	s.max = -1
	s.immediate = false
}

// AddRead adds fd to the read set.
func (s *Sets) AddRead(fd int) error {
	if fd < 0 || fd > MaxFD {
		return fmt.Errorf("read set fd %d: %w", fd, ErrDescriptorRange)
	}
	s.read.Set(fd)
	s.track(fd)
	return nil
}

// AddWrite adds fd to the write set.
func (s *Sets) AddWrite(fd int) error {
	if fd < 0 || fd > MaxFD {
		return fmt.Errorf("write set fd %d: %w", fd, ErrDescriptorRange)
	}
	s.write.Set(fd)
	s.track(fd)
	return nil
}

func (s *Sets) track(fd int) {
	if fd > s.max {
		s.max = fd
	}
}

// Readable reports whether fd is marked in the read set.
func (s *Sets) Readable(fd int) bool {
	return fd >= 0 && fd <= MaxFD && s.read.IsSet(fd)
}

// Writable reports whether fd is marked in the write set.
func (s *Sets) Writable(fd int) bool {
	return fd >= 0 && fd <= MaxFD && s.write.IsSet(fd)
}

// MarkImmediate requests that the next Wait does not block, because a
// participant already holds data the socket cannot report.
func (s *Sets) MarkImmediate() { s.immediate = true }

// Immediate reports whether MarkImmediate was called since Reset.
func (s *Sets) Immediate() bool { return s.immediate }

// Max returns the highest registered descriptor, or -1.
func (s *Sets) Max() int { return s.max }

// Wait runs select() over the registered descriptors.  A negative
// timeout blocks indefinitely; the immediate flag forces a zero
// timeout.  EINTR is reported as zero ready descriptors.
func (s *Sets) Wait(timeout time.Duration) (int, error) {
	if s.immediate {
		timeout = 0
	}
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}
	n, err := unix.Select(s.max+1, &s.read, &s.write, nil, tv)
	if err == unix.EINTR {
		s.read.Zero()
		s.write.Zero()
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select: %w", err)
	}
	return n, nil
}

// Direction selects the readiness a single-descriptor wait looks for.
type Direction int

const (
	WantRead Direction = iota
	WantWrite
)

func (d Direction) String() string {
	if d == WantWrite {
		return "write"
	}
	return "read"
}

// WaitFD blocks until fd is ready in direction d or timeout elapses.
// A negative timeout waits indefinitely.  It returns false on timeout.
func WaitFD(fd int, d Direction, timeout time.Duration) (bool, error) {
	if fd < 0 || fd > MaxFD {
		return false, fmt.Errorf("wait fd %d: %w", fd, ErrDescriptorRange)
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var set unix.FdSet
		set.Set(fd)

		var tv *unix.Timeval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			t := unix.NsecToTimeval(remaining.Nanoseconds())
			tv = &t
		}

		var n int
		var err error
		if d == WantWrite {
			n, err = unix.Select(fd+1, nil, &set, nil, tv)
		} else {
			n, err = unix.Select(fd+1, &set, nil, nil, tv)
		}
		switch {
		case err == unix.EINTR:
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return false, nil
			}
			continue
		case err != nil:
			return false, err
		case n > 0:
			return true, nil
		default:
			return false, nil
		}
	}
}
