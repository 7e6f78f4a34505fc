package core

import (
	"context"
	"fmt"
	"time"

	"reactnet/config"
	"reactnet/httpd"
	"reactnet/internal/capability"
	"reactnet/internal/reactor"
	"reactnet/util"
)

// ServeMode runs the single-threaded reactor loop: one select() over
// the listener and every live session per iteration, one request per
// session.
type ServeMode struct {
	Server      *httpd.Server
	Port        int
	Capability  capability.Capability
	IdleTimeout time.Duration // 0 disables the idle sweep
	MaxSessions int           // listener is left out of the wait set at this count
	Tick        time.Duration // 0 means config.DefaultLoopTick
	Logger      *util.Logger

	sessions []*httpd.Session
}

// Run binds the listener and serves until ctx is cancelled.
func (m *ServeMode) Run(ctx context.Context) error {
	if err := m.Server.Bind(m.Port); err != nil {
		return fmt.Errorf("listen on port %d: %w", m.Port, err)
	}
	defer m.Server.Shutdown() //nolint:errcheck
	defer m.closeAll()

	m.Logger.Info("listening on %s", util.FormatAddr(m.Server.Addr(), m.Server.Port()))

	tick := m.Tick
	if tick <= 0 {
		tick = config.DefaultLoopTick
	}
	sets := reactor.NewSets()

	for {
		select {
		case <-ctx.Done():
			m.Logger.Verbose("shutting down: %s", m.Server.Metrics().JSON())
			return nil
		default:
		}

		sets.Reset()
		if m.MaxSessions <= 0 || len(m.sessions) < m.MaxSessions {
			if err := m.Server.Register(sets); err != nil {
				return err
			}
		}
		m.registerSessions(sets)

		if _, err := sets.Wait(tick); err != nil {
			return err
		}

		if m.Server.Ready(sets) {
			m.accept()
		}
		m.pump(ctx, sets)
	}
}

func (m *ServeMode) accept() {
	for m.MaxSessions <= 0 || len(m.sessions) < m.MaxSessions {
		sess, err := m.Server.Accept()
		if err != nil {
			m.Logger.Warn("accept: %v", err)
			return
		}
		if sess == nil {
			return
		}
		m.sessions = append(m.sessions, sess)
	}
}

// registerSessions adds every session to the wait set.  A session whose
// descriptor does not fit in an fd_set is dropped.
func (m *ServeMode) registerSessions(sets *reactor.Sets) {
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if err := s.Register(sets); err != nil {
			m.Logger.Warn("session %s: %v", util.FormatAddr(s.PeerIP(), s.PeerPort()), err)
			s.Close() //nolint:errcheck
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
}

func (m *ServeMode) pump(ctx context.Context, sets *reactor.Sets) {
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.Ready(sets) && m.serve(ctx, s) {
			s.Close() //nolint:errcheck
			continue
		}
		if m.idle(s) {
			m.Logger.Verbose("dropping idle session %s after %ds",
				util.FormatAddr(s.PeerIP(), s.PeerPort()), s.Age())
			s.Close() //nolint:errcheck
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
}

// serve pumps s once and reports whether the session is finished.
func (m *ServeMode) serve(ctx context.Context, s *httpd.Session) bool {
	peer := util.FormatAddr(s.PeerIP(), s.PeerPort())
	switch code := s.Pump(); code {
	case 0:
		return false
	case -1:
		m.Logger.Debug("session %s closed by peer", peer)
	case 200:
		m.Logger.Verbose("%s %s from %s", s.Method(), s.Target(), peer)
		if err := m.Capability.Handle(ctx, s); err != nil {
			m.Logger.Warn("respond to %s: %v", peer, err)
		}
	default:
		m.Logger.Verbose("rejecting request from %s with %d", peer, code)
		if err := s.SendResponse(code, "", ""); err != nil {
			m.Logger.Debug("respond to %s: %v", peer, err)
		}
	}
	return true
}

func (m *ServeMode) idle(s *httpd.Session) bool {
	return m.IdleTimeout > 0 && time.Duration(s.Age())*time.Second >= m.IdleTimeout
}

func (m *ServeMode) closeAll() {
	for _, s := range m.sessions {
		s.Close() //nolint:errcheck
	}
	m.sessions = nil
}
