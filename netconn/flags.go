package netconn

import "strings"

// Flags select the connection flavour.  They combine with |.
type Flags uint

const (
	Plain         Flags = 0
	TLS           Flags = 1
	SSL2          Flags = 2 // legacy request; lowers the floor to TLS 1.0
	SSL3          Flags = 4 // legacy request; lowers the floor to TLS 1.0
	NoCertChain   Flags = 8
	DebugDataDump Flags = 16
	DebugKeyDump  Flags = 32
	NonBlock      Flags = 256
)

// Secure reports whether any TLS flavour was requested.
func (f Flags) Secure() bool { return f&(TLS|SSL2|SSL3) != 0 }

// Legacy reports whether an obsolete SSL protocol was requested.
func (f Flags) Legacy() bool { return f&(SSL2|SSL3) != 0 }

func (f Flags) String() string {
	if f == Plain {
		return "plain"
	}
	names := []struct {
		bit  Flags
		name string
	}{
		{TLS, "tls"},
		{SSL2, "ssl2"},
		{SSL3, "ssl3"},
		{NoCertChain, "nocertchain"},
		{DebugDataDump, "datadump"},
		{DebugKeyDump, "keydump"},
		{NonBlock, "nonblock"},
	}
	var parts []string
	for _, n := range names {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
