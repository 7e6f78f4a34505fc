package errors

import (
	"fmt"
	"io"
	"testing"

	"golang.org/x/sys/unix"
)

func TestNetError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *NetError
		want string
	}{
		{
			name: "errno",
			err:  Errno("getsockopt", int(unix.ECONNREFUSED)),
			want: "getsockopt: connection refused",
		},
		{
			name: "internal",
			err:  Internal("connect", InternalTimeout, nil),
			want: "connect: timeout establishing connection",
		},
		{
			name: "tls with cause",
			err:  TLS("handshake", TLSFatal, fmt.Errorf("bad record MAC")),
			want: "handshake: non-recoverable fatal error in TLS library: bad record MAC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetError_Number(t *testing.T) {
	if n := Errno("x", int(unix.EPIPE)).Number(); n != int(unix.EPIPE) {
		t.Errorf("errno number = %d", n)
	}
	if n := Internal("x", InternalBadPort, nil).Number(); n != 10002 {
		t.Errorf("internal number = %d, want 10002", n)
	}
	if n := TLS("x", TLSWantRead, nil).Number(); n != 20002 {
		t.Errorf("tls number = %d, want 20002", n)
	}
}

func TestNetError_Unwrap(t *testing.T) {
	err := TLS("read", TLSSyscall, io.EOF)
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
	if !Is(OS("recv", unix.ECONNRESET), unix.ECONNRESET) {
		t.Error("OS error should unwrap to its errno")
	}
}

func TestOS_NonErrno(t *testing.T) {
	err := OS("send", fmt.Errorf("weird"))
	if err.Code != int(unix.EIO) {
		t.Errorf("code = %d, want EIO", err.Code)
	}
}

func TestSlot_MostRecentWins(t *testing.T) {
	var s Slot
	if s.Code() != -1 || s.Context() != "" || s.String() != "OK" {
		t.Fatalf("empty slot = (%d, %q, %q)", s.Code(), s.Context(), s.String())
	}

	s.Record(Internal("port", InternalBadPort, nil))
	s.Record(Errno("connect", int(unix.ECONNREFUSED)))

	if s.Context() != "connect" {
		t.Errorf("context = %q, want connect", s.Context())
	}
	if s.Code() != int(unix.ECONNREFUSED) {
		t.Errorf("code = %d", s.Code())
	}
	if s.String() != unix.ECONNREFUSED.Error() {
		t.Errorf("string = %q", s.String())
	}

	s.Reset()
	if s.Last() != nil {
		t.Error("Reset should clear the slot")
	}
}

func TestSlot_IgnoresForeignErrors(t *testing.T) {
	var s Slot
	s.Record(Internal("port", InternalBadPort, nil))
	s.Record(io.EOF)
	if s.Context() != "port" {
		t.Errorf("plain errors must not overwrite the slot, context = %q", s.Context())
	}

	wrapped := fmt.Errorf("outer: %w", TLS("handshake", TLSFatal, nil))
	s.Record(wrapped)
	if s.Context() != "handshake" {
		t.Errorf("wrapped NetError should be recorded, context = %q", s.Context())
	}
}

func TestConfigError_Format(t *testing.T) {
	err := &ConfigError{
		Field:   "port",
		Value:   99999,
		Message: "out of range 1-65535",
		Hint:    "use a port between 1 and 65535",
	}
	want := "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"refused", Errno("getsockopt", int(unix.ECONNREFUSED)), true},
		{"timeout", Internal("connect", InternalTimeout, nil), true},
		{"bad port", Internal("port", InternalBadPort, nil), false},
		{"tls", TLS("handshake", TLSFatal, nil), false},
		{"plain", io.EOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsWouldBlock(t *testing.T) {
	if !IsWouldBlock(unix.EAGAIN) {
		t.Error("EAGAIN should be would-block")
	}
	if !IsWouldBlock(fmt.Errorf("read: %w", unix.EAGAIN)) {
		t.Error("wrapped EAGAIN should be would-block")
	}
	if IsWouldBlock(unix.ECONNRESET) {
		t.Error("ECONNRESET is not would-block")
	}
}

func TestDomain_String(t *testing.T) {
	if DomainTLS.String() != "tls" || DomainOS.String() != "os" || DomainInternal.String() != "internal" {
		t.Error("unexpected domain names")
	}
}
