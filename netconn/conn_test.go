package netconn

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"reactnet/internal/errors"
	"reactnet/internal/reactor"
	"reactnet/util"
)

func newTestRuntime(t *testing.T, mutate func(*Options)) *Runtime {
	t.Helper()
	opts := Options{
		Logger:           util.NewLogger(0),
		ConnectTimeout:   2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	rt := NewRuntime(opts)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func listenLoopback(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func newSets(t *testing.T, c *Conn) *reactor.Sets {
	t.Helper()
	s := reactor.NewSets()
	if err := c.Register(s); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

// receiveWithin drives the select loop for one connection until it
// yields data or a terminal error.
func receiveWithin(t *testing.T, c *Conn, p []byte, d time.Duration) (int, error) {
	t.Helper()
	s := reactor.NewSets()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		s.Reset()
		if err := c.Register(s); err != nil {
			t.Fatalf("register: %v", err)
		}
		if _, err := s.Wait(100 * time.Millisecond); err != nil {
			t.Fatalf("wait: %v", err)
		}
		if !c.Ready(s) {
			continue
		}
		n, err := c.Receive(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
	t.Fatal("nothing received before deadline")
	return 0, nil
}

func TestConnect_PlainExchange(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn) //nolint:errcheck
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if c.PeerIP() != "127.0.0.1" || c.PeerPort() != port {
		t.Errorf("peer = %s:%d", c.PeerIP(), c.PeerPort())
	}
	if c.LocalPort() <= 0 {
		t.Errorf("local port = %d", c.LocalPort())
	}
	if !c.IsConnected() || c.IsTLS() {
		t.Errorf("connected=%v tls=%v", c.IsConnected(), c.IsTLS())
	}
	if rt.Live() != 1 {
		t.Errorf("live = %d, want 1", rt.Live())
	}

	if n, err := c.Send([]byte("ping")); err != nil || n != 4 {
		t.Fatalf("send = %d, %v", n, err)
	}
	buf := make([]byte, 64)
	n, err := receiveWithin(t, c, buf, 2*time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got := string(buf[:n]); got != "ping" {
		t.Errorf("got %q, want ping", got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second close = %v, want ErrClosed", err)
	}
	if rt.Live() != 0 {
		t.Errorf("live after close = %d", rt.Live())
	}
	if c.FD() != -1 {
		t.Errorf("fd after close = %d", c.FD())
	}
}

func TestConnect_BlockingReceive(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(50 * time.Millisecond)
		conn.Write([]byte("late")) //nolint:errcheck
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, Plain)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	buf := make([]byte, 16)
	n, err := c.Receive(buf)
	if err != nil || string(buf[:n]) != "late" {
		t.Fatalf("receive = %q, %v", buf[:n], err)
	}
}

func TestConnect_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}

	rt := newTestRuntime(t, nil)
	_, err = rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err == nil {
		t.Fatal("expected connection refused")
	}
	var ne *errors.NetError
	if !errors.As(err, &ne) || ne.Domain != errors.DomainOS {
		t.Fatalf("err = %v, want OS-domain NetError", err)
	}
	if rt.ErrorCode() != int(unix.ECONNREFUSED) {
		t.Errorf("error code = %d, want ECONNREFUSED", rt.ErrorCode())
	}
	if ctx := rt.ErrorContext(); ctx != "connect" && ctx != "getsockopt" {
		t.Errorf("error context = %q", ctx)
	}
	if rt.Live() != 0 {
		t.Errorf("failed connect must not count as live")
	}
}

func TestConnect_BadPort(t *testing.T) {
	rt := newTestRuntime(t, nil)
	for _, port := range []int{0, -1, 65536} {
		_, err := rt.Connect(context.Background(), "127.0.0.1", port, Plain)
		var ne *errors.NetError
		if !errors.As(err, &ne) || ne.Domain != errors.DomainInternal || ne.Code != errors.InternalBadPort {
			t.Errorf("port %d: err = %v", port, err)
		}
	}
	if rt.ErrorCode() != 10002 || rt.ErrorContext() != "port" {
		t.Errorf("slot = (%d, %q)", rt.ErrorCode(), rt.ErrorContext())
	}
	if rt.ErrorString() != "invalid port number" {
		t.Errorf("error string = %q", rt.ErrorString())
	}
}

func TestConnect_RuntimeClosed(t *testing.T) {
	rt := NewRuntime(Options{})
	if err := rt.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Connect(context.Background(), "127.0.0.1", 80, Plain); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("connect on closed runtime = %v", err)
	}
	if err := rt.Close(); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second runtime close = %v", err)
	}
}

func TestReceive_PeerClosed(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	_, err = receiveWithin(t, c, make([]byte, 8), 2*time.Second)
	if !errors.Is(err, errors.ErrPeerClosed) {
		t.Fatalf("receive = %v, want ErrPeerClosed", err)
	}
	if c.IsConnected() {
		t.Error("connection should report disconnected")
	}
	if c.HasPendingData() {
		t.Error("closed peer has no pending data")
	}
}

func TestSend_AfterClose(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(100 * time.Millisecond)
		}
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if _, err := c.Send([]byte("x")); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("send after close = %v", err)
	}
	if _, err := c.Receive(make([]byte, 1)); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("receive after close = %v", err)
	}
	if err := c.Register(reactor.NewSets()); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("register after close = %v", err)
	}
}

func TestHasPendingData_Plain(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("abc")) //nolint:errcheck
		time.Sleep(500 * time.Millisecond)
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if ok, err := reactor.WaitFD(c.FD(), reactor.WantRead, 2*time.Second); !ok || err != nil {
		t.Fatalf("wait = %v, %v", ok, err)
	}
	if !c.HasPendingData() {
		t.Error("peek should see unread bytes")
	}
	buf := make([]byte, 8)
	if n, _ := c.Receive(buf); string(buf[:n]) != "abc" {
		t.Errorf("peek must not consume, got %q", buf[:n])
	}
}

func TestFdSetInfo(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()

	rt := newTestRuntime(t, nil)
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	s := reactor.NewSets()
	if err := c.Register(s); err != nil {
		t.Fatal(err)
	}
	if got := c.FdSetInfo(s); got != "R: S  W: -" {
		t.Errorf("before wait = %q", got)
	}
}

func TestDataDump(t *testing.T) {
	ln, port := listenLoopback(t)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			io.Copy(io.Discard, conn) //nolint:errcheck
		}
	}()

	var out bytes.Buffer
	logger := util.NewLogger(0)
	logger.SetOutput(&out)
	rt := newTestRuntime(t, func(o *Options) {
		o.Logger = logger
		o.DataDump = true
	})
	c, err := rt.Connect(context.Background(), "127.0.0.1", port, NonBlock|DebugDataDump)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Send([]byte("GET")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), " >  127.0.0.1:") || !strings.Contains(out.String(), "474554") {
		t.Errorf("dump = %q", out.String())
	}
}

func TestFlags_String(t *testing.T) {
	tests := []struct {
		f    Flags
		want string
	}{
		{Plain, "plain"},
		{TLS | NonBlock, "tls|nonblock"},
		{SSL3 | NoCertChain, "ssl3|nocertchain"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("%d: got %q, want %q", tt.f, got, tt.want)
		}
	}
	if !SSL2.Secure() || !SSL2.Legacy() || TLS.Legacy() || NonBlock.Secure() {
		t.Error("flag predicates wrong")
	}
}
