// Package capability defines what the server does with a completed
// request and what fetch mode does over an established connection.
// Each Capability encapsulates a single behaviour (echo the request,
// run a script) and operates on an [httpd.Session] rather than a raw
// descriptor, which keeps handlers testable and decoupled from the
// reactor loop that produced the request.
package capability

import (
	"context"

	"reactnet/httpd"
)

// Capability answers one request.  Handle is only called on a session
// whose Pump returned 200; it sends exactly one response and returns
// the transport error of that send, if any.
type Capability interface {
	Handle(ctx context.Context, req *httpd.Session) error
}
