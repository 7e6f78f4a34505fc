// Package errors provides the error taxonomy shared by the connection,
// listener and HTTP session layers.
//
// Every transport or TLS failure is described by a [NetError] carrying a
// domain (OS errno, internal, TLS library), a numeric code and a short
// context label.  The same triple is recorded in a [Slot] so callers that
// prefer the classic "last error" accessors can query it after the fact.
package errors

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrClosed       = errors.New("handle already closed")
	ErrPeerClosed   = errors.New("peer closed the connection")
	ErrNotConnected = errors.New("not connected")
	ErrCapacity     = errors.New("buffer capacity exceeded")
	ErrTimeout      = errors.New("operation timed out")
)

// ── Domains and codes ────────────────────────────────────────────────

// Domain identifies which layer produced an error code.
type Domain int

const (
	DomainOS       Domain = 0     // code is an errno value
	DomainInternal Domain = 10000 // code is one of the Internal* constants
	DomainTLS      Domain = 20000 // code is one of the TLS* constants
)

func (d Domain) String() string {
	switch d {
	case DomainOS:
		return "os"
	case DomainInternal:
		return "internal"
	case DomainTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Internal codes supplement errno and the TLS codes.
const (
	InternalOK         = 0
	InternalBadPointer = 1
	InternalBadPort    = 2
	InternalBadAddress = 3
	InternalTimeout    = 4
	InternalUnknown    = 5
)

// TLS codes follow the numbering of the classic TLS library error enum
// so that logs stay comparable across implementations.
const (
	TLSNone           = 0
	TLSFatal          = 1
	TLSWantRead       = 2
	TLSWantWrite      = 3
	TLSWantX509Lookup = 4
	TLSSyscall        = 5
	TLSZeroReturn     = 6
	TLSWantConnect    = 7
	TLSWantAccept     = 8
)

// ── Structured error types ───────────────────────────────────────────

// NetError is a transport, TLS or internal failure with its domain code
// and the operation it happened in.
type NetError struct {
	Domain  Domain
	Code    int    // domain-relative code
	Context string // short label: "connect", "getsockopt", "handshake", …
	Err     error  // underlying error, may be nil
}

func (e *NetError) Error() string {
	msg := describe(e.Domain, e.Code)
	if e.Err != nil && e.Domain != DomainOS {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Context, msg)
}

func (e *NetError) Unwrap() error { return e.Err }

// Number folds domain and code into the single integer exposed by
// [Slot.Code]: errno < 1000, internal 10000+n, TLS 20000+n.
func (e *NetError) Number() int { return int(e.Domain) + e.Code }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// OS wraps an errno failure.  A nil or non-errno err becomes EIO.
func OS(context string, err error) *NetError {
	code := int(unix.EIO)
	var errno unix.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}
	return &NetError{Domain: DomainOS, Code: code, Context: context, Err: err}
}

// Errno wraps a raw errno value such as the one returned by SO_ERROR.
func Errno(context string, code int) *NetError {
	return &NetError{Domain: DomainOS, Code: code, Context: context, Err: unix.Errno(code)}
}

// Internal creates an internal-domain error.
func Internal(context string, code int, err error) *NetError {
	return &NetError{Domain: DomainInternal, Code: code, Context: context, Err: err}
}

// TLS creates a TLS-domain error.
func TLS(context string, code int, err error) *NetError {
	return &NetError{Domain: DomainTLS, Code: code, Context: context, Err: err}
}

// ── Last-error slot ──────────────────────────────────────────────────

// Slot remembers the most recent error recorded into it.  It is not a
// history: every Record overwrites the previous entry.
type Slot struct {
	mu   sync.Mutex
	last *NetError
}

// Record stores err if it is a *NetError (or wraps one) and returns err
// unchanged so it can be used inline in return statements.
func (s *Slot) Record(err error) error {
	var ne *NetError
	if !errors.As(err, &ne) {
		return err
	}
	s.mu.Lock()
	s.last = ne
	s.mu.Unlock()
	return err
}

// Reset clears the slot.
func (s *Slot) Reset() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

// Last returns the recorded error, or nil.
func (s *Slot) Last() *NetError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Code returns the folded error number, or -1 if nothing was recorded.
func (s *Slot) Code() int {
	if e := s.Last(); e != nil {
		return e.Number()
	}
	return -1
}

// String returns the human text for the recorded code.
func (s *Slot) String() string {
	e := s.Last()
	if e == nil {
		return "OK"
	}
	return describe(e.Domain, e.Code)
}

// Context returns the context label of the recorded error, or "".
func (s *Slot) Context() string {
	if e := s.Last(); e != nil {
		return e.Context
	}
	return ""
}

// ── Classification helpers ───────────────────────────────────────────

// IsWouldBlock reports whether err is EAGAIN/EWOULDBLOCK.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// IsRetryable reports whether err is worth retrying at the connection
// level: timeouts and refused/unreachable peers are, TLS and
// configuration failures are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetError
	if errors.As(err, &ne) {
		switch ne.Domain {
		case DomainInternal:
			return ne.Code == InternalTimeout
		case DomainOS:
			switch unix.Errno(ne.Code) {
			case unix.ECONNREFUSED, unix.ETIMEDOUT, unix.EHOSTUNREACH,
				unix.ENETUNREACH, unix.ECONNRESET, unix.EINTR:
				return true
			}
		}
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Timeout()
	}
	return false
}

func describe(d Domain, code int) string {
	switch d {
	case DomainOS:
		return unix.Errno(code).Error()
	case DomainInternal:
		switch code {
		case InternalOK:
			return "OK"
		case InternalBadPointer:
			return "invalid pointer"
		case InternalBadPort:
			return "invalid port number"
		case InternalBadAddress:
			return "invalid address"
		case InternalTimeout:
			return "timeout establishing connection"
		}
	case DomainTLS:
		switch code {
		case TLSNone:
			return "OK"
		case TLSFatal:
			return "non-recoverable fatal error in TLS library"
		case TLSWantRead:
			return "want read: insufficient data available at this time"
		case TLSWantWrite:
			return "want write: was unable to send all data at this time"
		case TLSWantX509Lookup:
			return "want x509 lookup: operation did not complete, try after lookup"
		case TLSSyscall:
			return "system call failure during TLS operation"
		case TLSZeroReturn:
			return "zero return: peer has closed the connection"
		case TLSWantConnect:
			return "want connect: operation did not complete, try again"
		case TLSWantAccept:
			return "want accept: operation did not complete, try again"
		}
	}
	return "unknown error"
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
