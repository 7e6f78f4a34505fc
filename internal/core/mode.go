// Package core is the orchestration layer.  It composes the listener,
// outbound connections and capabilities into complete operational
// modes and provides a builder that selects the right mode from a
// Config.
//
// Architecture layers (bottom → top):
//
//	reactor  →  netconn / httpd  →  capability  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of reactnet (serve or fetch).
// Each mode owns its full lifecycle from socket creation to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
