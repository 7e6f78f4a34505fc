// Package session binds an outbound connection to the local I/O
// endpoints a fetch run reads from and writes to.
//
// Capabilities operate on a Session rather than on os.Stdin/os.Stdout
// directly, so tests can swap in buffers.
package session

import (
	"io"

	"reactnet/netconn"
	"reactnet/util"
)

// Session is the runtime context for one fetch connection.
type Session struct {
	Conn   *netconn.Conn
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// New creates a Session.  A nil logger becomes a quiet one.
func New(conn *netconn.Conn, stdin io.Reader, stdout io.Writer, logger *util.Logger) *Session {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Session{
		Conn:   conn,
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
	}
}
