package core

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"reactnet/internal/errors"
	"reactnet/netconn"
	"reactnet/util"
)

func newFetch(t *testing.T, addr, method string, body string) (*FetchMode, *bytes.Buffer) {
	t.Helper()
	host, port := splitAddr(t, addr)
	out := &bytes.Buffer{}
	return &FetchMode{
		Runtime: netconn.NewRuntime(netconn.Options{}),
		Host:    host,
		Port:    port,
		Path:    "/fetch?k=v",
		Method:  method,
		Flags:   netconn.NonBlock,
		Idle:    2 * time.Second,
		Logger:  util.NewLogger(0),
		Stdin:   strings.NewReader(body),
		Stdout:  out,
	}, out
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	return tcp.IP.String(), tcp.Port
}

// TestFetch_AgainstServe drives a full request through both modes.
func TestFetch_AgainstServe(t *testing.T) {
	addr := startServe(t, nil)
	dial(t, addr).Close() // wait for the listener

	tests := []struct {
		method string
		body   string
		want   []string
	}{
		{"GET", "ignored", []string{"HTTP/1.1 200 OK", `"method":"GET"`, `"uri":"/fetch"`, `"body":""`}},
		{"POST", "payload", []string{"HTTP/1.1 200 OK", `"method":"POST"`, `"body":"payload"`, `{"name":"k","value":"v"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m, out := newFetch(t, addr, tt.method, tt.body)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Run(ctx); err != nil {
				t.Fatalf("Run: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output %q missing %q", out.String(), w)
				}
			}
		})
	}
}

func TestFetch_RefusedWithRetries(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	m, _ := newFetch(t, util.FormatAddr("127.0.0.1", port), "GET", "")
	m.Retries = 1

	start := time.Now()
	err = m.Run(context.Background())
	if err == nil {
		t.Fatal("expected connect error")
	}
	if !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Errorf("error = %v", err)
	}
	var ne *errors.NetError
	if !errors.As(err, &ne) || ne.Domain != errors.DomainOS {
		t.Errorf("error should carry the OS-domain NetError: %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("expected a backoff wait between attempts")
	}
}

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   []byte
		want   string
	}{
		{
			name:   "get",
			method: "GET",
			want:   "GET /x HTTP/1.0\r\nHost: h\r\nUser-Agent: reactnet\r\nConnection: close\r\n\r\n",
		},
		{
			name:   "post",
			method: "POST",
			body:   []byte("abc"),
			want:   "POST /x HTTP/1.0\r\nHost: h\r\nUser-Agent: reactnet\r\nConnection: close\r\nContent-Length: 3\r\n\r\nabc",
		},
		{
			name:   "empty post",
			method: "POST",
			body:   []byte{},
			want:   "POST /x HTTP/1.0\r\nHost: h\r\nUser-Agent: reactnet\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(buildRequest(tt.method, "h", "/x", tt.body)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
